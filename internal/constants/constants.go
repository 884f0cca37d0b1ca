// Package constants provides shared constants used across the codebase.
// Centralizing these values ensures consistency and makes them easier to modify.
package constants

// Recognition constants
const (
	// UnknownName is the display name of a face that matched nobody in the gallery
	UnknownName = "Unknown"

	// DefaultTolerance is the maximum Euclidean distance accepted as a match
	// Lower values = stricter matching
	DefaultTolerance = 0.6

	// DefaultFrameScale is the factor frames are shrunk by before face detection
	DefaultFrameScale = 0.25

	// HNSWCandidates is the number of neighbours fetched from the HNSW graph
	// before exact re-ranking
	HNSWCandidates = 8

	// HNSWMaxNeighbors is the M parameter of the HNSW graph
	HNSWMaxNeighbors = 16
)

// Throttle constants
const (
	// DefaultHistoryCooldownSeconds throttles history entries per (name, id)
	DefaultHistoryCooldownSeconds = 2

	// DefaultWelcomeCooldownSeconds throttles welcome notifications per name
	DefaultWelcomeCooldownSeconds = 5

	// ThrottleRetentionMinutes is how long idle throttle keys are kept before pruning
	ThrottleRetentionMinutes = 10
)

// History constants
const (
	// DefaultHistorySize is the number of recognition events kept in memory
	DefaultHistorySize = 50
)

// Registration constants
const (
	// DefaultCropPadding is the padding in pixels around a captured face
	DefaultCropPadding = 20

	// ReferenceImageExt is the extension used for newly registered reference images
	ReferenceImageExt = ".jpg"

	// ReferenceJPEGQuality is the JPEG quality of saved reference images
	ReferenceJPEGQuality = 95
)

// ReferenceImageExts lists the source image extensions scanned by the gallery.
var ReferenceImageExts = []string{".jpg", ".jpeg", ".png", ".bmp"}

// Processing constants
const (
	// GalleryRefreshMinutes is the interval of the background gallery staleness check
	GalleryRefreshMinutes = 5
)
