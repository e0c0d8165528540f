// Package constants provides shared constants used across the codebase.
// Centralizing these values ensures consistency and makes them easier to modify.
package constants

// Face matching constants
const (
	// DefaultTolerance is the default maximum Euclidean distance for a face
	// to be accepted as a match. The threshold is exclusive: a distance equal
	// to the tolerance is rejected. Lower values = stricter matching.
	DefaultTolerance = 0.6

	// DefaultMinConfidence is the acceptance floor for match confidence.
	// Candidates below it are downgraded to unknown.
	DefaultMinConfidence = 0.35

	// DefaultMinFaceSize is the minimum width/height in pixels for a
	// detection box to survive merging. Smaller boxes are discarded.
	DefaultMinFaceSize = 35

	// DuplicateCenterRatio controls detection merging: two boxes describe the
	// same face when their centers are closer than this fraction of the
	// smaller box size.
	DuplicateCenterRatio = 0.5
)

// Embedding constants
const (
	// DefaultEmbeddingDim is the embedding dimension produced by the default
	// face encoder (dlib ResNet). Deployments using a different model set
	// EMBEDDING_DIM accordingly.
	DefaultEmbeddingDim = 128
)

// Registration constants
const (
	// DefaultWorkerPoolSize is the number of parallel workers for per-image
	// encode tasks during registration.
	DefaultWorkerPoolSize = 4

	// DefaultEncodeTimeoutSec is the per-image hard timeout in seconds.
	// A slow or corrupt image fails alone instead of stalling the batch.
	DefaultEncodeTimeoutSec = 8

	// MaxImageWidth is the maximum width for preprocessed images. Larger
	// images are downscaled before being sent to the detector.
	MaxImageWidth = 800
)

// Web server constants
const (
	// MaxUploadSize is the maximum multipart upload size in bytes (32 MB).
	MaxUploadSize = 32 << 20
)

// Gallery constants
const (
	// HNSWMaxNeighbors is the M parameter for the optional HNSW gallery index
	HNSWMaxNeighbors = 16

	// HNSWMinGallerySize is the flattened-embedding count above which the
	// gallery builds an HNSW index. Below it a linear scan is faster anyway.
	HNSWMinGallerySize = 2048
)
