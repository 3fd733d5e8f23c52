package common

const (
	// MiB is the Glacier tree-hash leaf size and the smallest part size.
	MiB int64 = 1 << 20
	// GiB is a convenience multiple of MiB.
	GiB int64 = 1 << 30

	// MinChunkSize and MaxChunkSize bound the multipart part size.
	MinChunkSize = MiB
	MaxChunkSize = 4 * GiB

	// MaxParts is the largest number of parts a single multipart upload may have.
	MaxParts = 10000

	// DefaultMaxConcurrentUploads bounds the upload worker pool when no value is configured.
	DefaultMaxConcurrentUploads = 4
)
