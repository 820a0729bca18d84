package live

import "errors"

var (
	// ErrProtocolViolation is returned when a peer sends a packet that is
	// malformed or not allowed in its current state. The connection is closed.
	ErrProtocolViolation = errors.New("protocol violation")

	// ErrKicked is returned after a KICK was sent or received.
	ErrKicked = errors.New("kicked")

	// ErrClosed is returned when using a closed connection or a stopped dispatcher.
	ErrClosed = errors.New("connection closed")

	// ErrQueueFull is returned when a slow connection cannot keep up with sends.
	ErrQueueFull = errors.New("send queue full")
)
