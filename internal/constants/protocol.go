package constants

import "time"

// Live Protocol Version Constants
//
// Editor version id is packed as major*10000000 + minor*100000 + patch*1000.
const (
	// EditorVersionMajor is the major editor version
	EditorVersionMajor = 3

	// EditorVersionMinor is the minor editor version
	EditorVersionMinor = 8

	// EditorVersionPatch is the editor subversion
	EditorVersionPatch = 0

	// EditorVersionID is the packed editor build id sent in HELLO_FROM_CLIENT
	EditorVersionID = EditorVersionMajor*10000000 + EditorVersionMinor*100000 + EditorVersionPatch*1000

	// LiveNetVersion is the live protocol revision
	LiveNetVersion = 5
)

// Message Framing Constants
//
// Every message on the wire:
//
//	[size 4 bytes LE, excludes itself]
//	[type 1 byte][payload] ... repeated until size is exhausted
const (
	// MessageHeaderSize is the size of the length prefix
	MessageHeaderSize = 4

	// MaxMessageSize limits a single framed message body.
	// A fully populated node with 16 floors stays far below this.
	MaxMessageSize = 8 << 20

	// DefaultMessageCapacity is the initial capacity for outgoing messages
	DefaultMessageCapacity = 512

	// NodeBatchSize is the body size after which a message of NODE records
	// is sent and a new one started
	NodeBatchSize = 1 << 20
)

// Live Session Limits
const (
	// MaxLiveClients is the number of client id slots (id 0 is the host)
	MaxLiveClients = 16

	// HostClientID is the id reserved for the hosting editor
	HostClientID = 0

	// MaxNameLength is the maximum server name / nickname length
	MaxNameLength = 32

	// MaxPasswordLength is the maximum session password length
	MaxPasswordLength = 32

	// MaxNodesPerRequest limits one REQUEST_NODES packet
	MaxNodesPerRequest = 1 << 16
)

// Peer I/O Constants
const (
	// DefaultSendQueueSize is the per-peer outgoing message queue size
	DefaultSendQueueSize = 256

	// DefaultWriteTimeout is the per-write deadline on peer connections
	DefaultWriteTimeout = 5 * time.Second

	// DefaultReadTimeout is the idle read deadline on peer connections.
	// Zero disables it: the protocol has no keepalive and a watching peer
	// may stay silent for hours.
	DefaultReadTimeout = 0

	// DefaultDialTimeout is the per-endpoint connect timeout on the client
	DefaultDialTimeout = 10 * time.Second

	// OperationUpdateInterval throttles UPDATE_OPERATION packets
	OperationUpdateInterval = 250 * time.Millisecond
)
