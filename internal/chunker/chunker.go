// Package chunker splits a file of known size into fixed-size byte ranges.
//
// All ranges but the last have exactly the chunk size; the last one may be
// shorter. Together the ranges tile [0, total) with no gaps or overlaps.
// The package is pure: it never touches the file itself.
package chunker

import (
	"fmt"
	"iter"
	"math/bits"

	"github.com/jladan/glacier-upload/internal/common"
)

// Range is a half-open byte range [Start, End).
type Range struct {
	Start int64
	End   int64
}

// Len returns the number of bytes covered by r.
func (r Range) Len() int64 { return r.End - r.Start }

// ContentRange renders r in the "bytes START-END/*" form used by multipart
// part uploads. End is inclusive in that notation.
func (r Range) ContentRange() string {
	return fmt.Sprintf("bytes %d-%d/*", r.Start, r.End-1)
}

func (r Range) String() string { return fmt.Sprintf("[%d,%d)", r.Start, r.End) }

// Plan is the chunk layout of a file.
type Plan struct {
	TotalSize int64
	ChunkSize int64
}

// NewPlan validates the sizes and returns the plan. It fails with
// ErrInvalidChunkSize when chunkSize is not positive, or when it exceeds a
// non-zero totalSize.
func NewPlan(totalSize, chunkSize int64) (Plan, error) {
	if totalSize < 0 {
		return Plan{}, fmt.Errorf("%w: negative total size %d", common.ErrInvalidChunkSize, totalSize)
	}
	if chunkSize <= 0 {
		return Plan{}, fmt.Errorf("%w: %d", common.ErrInvalidChunkSize, chunkSize)
	}
	if totalSize > 0 && chunkSize > totalSize {
		return Plan{}, fmt.Errorf("%w: %d exceeds total size %d", common.ErrInvalidChunkSize, chunkSize, totalSize)
	}
	return Plan{TotalSize: totalSize, ChunkSize: chunkSize}, nil
}

// Count returns the number of chunks. A zero-length file has none.
func (p Plan) Count() int {
	if p.TotalSize == 0 {
		return 0
	}
	return int((p.TotalSize + p.ChunkSize - 1) / p.ChunkSize)
}

// Range returns the byte range of chunk i. It panics when i is out of range.
func (p Plan) Range(i int) Range {
	if i < 0 || i >= p.Count() {
		panic(fmt.Sprintf("chunker: index %d out of range [0,%d)", i, p.Count()))
	}
	start := int64(i) * p.ChunkSize
	return Range{Start: start, End: min(start+p.ChunkSize, p.TotalSize)}
}

// Index returns the chunk index whose range starts at offset, or false when
// offset is not a chunk boundary of p.
func (p Plan) Index(offset int64) (int, bool) {
	if offset < 0 || offset >= p.TotalSize || offset%p.ChunkSize != 0 {
		return 0, false
	}
	return int(offset / p.ChunkSize), true
}

// Chunks yields (index, range) pairs in ascending order. The sequence is lazy
// and may be iterated any number of times.
func (p Plan) Chunks() iter.Seq2[int, Range] {
	return func(yield func(int, Range) bool) {
		n := p.Count()
		for i := 0; i < n; i++ {
			if !yield(i, p.Range(i)) {
				return
			}
		}
	}
}

// ValidateChunkSize enforces the multipart part-size rule: a power of two
// between 1 MiB and 4 GiB inclusive.
func ValidateChunkSize(size int64) error {
	if size < common.MinChunkSize || size > common.MaxChunkSize {
		return fmt.Errorf("%w: %d not within [%d, %d]", common.ErrInvalidChunkSize, size, common.MinChunkSize, common.MaxChunkSize)
	}
	if bits.OnesCount64(uint64(size)) != 1 {
		return fmt.Errorf("%w: %d is not a power of two", common.ErrInvalidChunkSize, size)
	}
	return nil
}

// SuggestChunkSize returns the smallest valid chunk size that keeps the part
// count of a totalSize file within common.MaxParts.
func SuggestChunkSize(totalSize int64) int64 {
	size := common.MinChunkSize
	for size < common.MaxChunkSize && (totalSize+size-1)/size > common.MaxParts {
		size <<= 1
	}
	return size
}

// FitChunkSize halves a valid chunk size until it no longer exceeds
// totalSize. It never goes below MinChunkSize, so files smaller than that
// still produce a size NewPlan rejects.
func FitChunkSize(size, totalSize int64) int64 {
	for size > totalSize && size > common.MinChunkSize {
		size >>= 1
	}
	return size
}
