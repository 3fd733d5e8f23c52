package treehash

import (
	"crypto/sha256"
	"hash"
)

// Hasher computes the tree hash of a byte stream written to it.
// The zero value is not usable; call New.
type Hasher struct {
	leaf   hash.Hash
	filled int
	leaves []Digest
}

func New() *Hasher {
	return &Hasher{leaf: sha256.New()}
}

// Write never returns an error.
func (h *Hasher) Write(p []byte) (int, error) {
	n := len(p)
	for len(p) > 0 {
		take := min(LeafSize-h.filled, len(p))
		h.leaf.Write(p[:take])
		h.filled += take
		p = p[take:]
		if h.filled == LeafSize {
			h.flush()
		}
	}
	return n, nil
}

func (h *Hasher) flush() {
	var d Digest
	h.leaf.Sum(d[:0])
	h.leaves = append(h.leaves, d)
	h.leaf.Reset()
	h.filled = 0
}

// Sum returns the tree hash of everything written so far. An empty stream
// hashes to SHA-256 of the empty string. Sum does not change the state.
func (h *Hasher) Sum() Digest {
	leaves := h.leaves
	if h.filled > 0 || len(leaves) == 0 {
		var d Digest
		h.leaf.Sum(d[:0])
		leaves = append(leaves[:len(leaves):len(leaves)], d)
	}
	root, _ := TreeHash(leaves)
	return root
}

// Size returns the number of bytes written.
func (h *Hasher) Size() int64 {
	return int64(len(h.leaves))*LeafSize + int64(h.filled)
}
