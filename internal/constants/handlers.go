// Package constants provides shared constants used across the codebase.
package constants

// Event channel constants
const (
	// EventChannelBuffer is the buffer size for live event listener channels
	EventChannelBuffer = 100
)

// File upload constants
const (
	// MaxUploadSize is the maximum frame or reference image upload size in bytes (20MB)
	MaxUploadSize = 20 << 20
)

// WebSocket constants
const (
	// WSWriteWaitSeconds is the deadline for a single websocket write
	WSWriteWaitSeconds = 10

	// WSPongWaitSeconds is how long a websocket client may stay silent
	WSPongWaitSeconds = 60
)
