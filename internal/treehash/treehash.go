// Package treehash computes the SHA-256 tree hash used by archival object
// stores to verify multipart uploads.
//
// Data is split into 1 MiB leaves, each leaf is hashed with SHA-256, and
// adjacent digests are concatenated and re-hashed level by level until a
// single root remains. An odd digest at the end of a level is carried up
// unchanged. Because chunk sizes are power-of-two multiples of the leaf size,
// the tree hash of a file equals the tree hash of its chunk tree hashes.
package treehash

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"

	"github.com/jladan/glacier-upload/internal/common"
)

// LeafSize is the size of the data blocks hashed at the bottom of the tree.
const LeafSize = 1 << 20

// Digest is a SHA-256 digest.
type Digest [sha256.Size]byte

// String returns the lower-case hex encoding of d.
func (d Digest) String() string { return hex.EncodeToString(d[:]) }

// IsZero reports whether d is the zero value (no digest recorded).
func (d Digest) IsZero() bool { return d == Digest{} }

// ParseDigest decodes a 64-character hex string.
func ParseDigest(s string) (Digest, error) {
	var d Digest
	b, err := hex.DecodeString(s)
	if err != nil {
		return d, fmt.Errorf("parse digest: %w", err)
	}
	if len(b) != len(d) {
		return d, fmt.Errorf("parse digest: want %d bytes, got %d", len(d), len(b))
	}
	copy(d[:], b)
	return d, nil
}

// ChunkHash returns the tree hash of one chunk's bytes. Chunks up to one leaf
// long hash to their plain SHA-256; an empty chunk hashes to SHA-256 of the
// empty string.
func ChunkHash(b []byte) Digest {
	if len(b) <= LeafSize {
		return sha256.Sum256(b)
	}
	leaves := make([]Digest, 0, (len(b)+LeafSize-1)/LeafSize)
	for off := 0; off < len(b); off += LeafSize {
		leaves = append(leaves, sha256.Sum256(b[off:min(off+LeafSize, len(b))]))
	}
	root, _ := TreeHash(leaves)
	return root
}

// TreeHash combines digests, given in chunk-index order, into a single root.
// It fails with ErrEmptyInput when digests is empty.
func TreeHash(digests []Digest) (Digest, error) {
	if len(digests) == 0 {
		return Digest{}, fmt.Errorf("tree hash: %w", common.ErrEmptyInput)
	}

	level := make([]Digest, len(digests))
	copy(level, digests)

	for len(level) > 1 {
		next := level[:0:0]
		for i := 0; i+1 < len(level); i += 2 {
			next = append(next, combine(level[i], level[i+1]))
		}
		if len(level)%2 == 1 {
			next = append(next, level[len(level)-1])
		}
		level = next
	}
	return level[0], nil
}

func combine(l, r Digest) Digest {
	var buf [2 * sha256.Size]byte
	copy(buf[:sha256.Size], l[:])
	copy(buf[sha256.Size:], r[:])
	return sha256.Sum256(buf[:])
}
