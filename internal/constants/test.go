package constants

import "time"

// Test Constants
//
// IMPORTANT: These constants are for testing only. DO NOT use in production code.
const (
	// TestServerStartupDelay is the delay to wait for server startup in transport tests
	TestServerStartupDelay = 100 * time.Millisecond

	// TestReadTimeout bounds a single blocking read in transport tests
	TestReadTimeout = 2 * time.Second

	// TestPassword is the session password used in fixtures
	TestPassword = "secret"

	// TestMapName is the map name used in fixtures
	TestMapName = "test map"

	// TestMapSize is the width and height of fixture maps
	TestMapSize = 64
)
