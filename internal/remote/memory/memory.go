// Package memory is an in-process remote.Store used by tests and dry runs.
// It validates parts the way an archival store would and computes its own tree
// hash over the bytes it received.
package memory

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"slices"
	"sync"

	"github.com/google/uuid"
	"github.com/jladan/glacier-upload/internal/chunker"
	"github.com/jladan/glacier-upload/internal/common"
	"github.com/jladan/glacier-upload/internal/remote"
	"github.com/jladan/glacier-upload/internal/treehash"
)

// Op names used for call counting.
const (
	OpInitiate   = "initiate"
	OpUploadPart = "upload_part"
	OpComplete   = "complete"
	OpAbort      = "abort"
)

var (
	errUnknownUpload = errors.New("unknown upload id")
	errClosed        = errors.New("upload is no longer open")
)

type upload struct {
	req       remote.InitiateRequest
	parts     map[int64][]byte
	completed bool
	aborted   bool
}

// Store is safe for concurrent use.
type Store struct {
	mu       sync.Mutex
	uploads  map[string]*upload
	archives map[string][]byte
	calls    map[string]int
	attempts map[string]int

	// InitiateErr, when set, is returned by Initiate.
	InitiateErr error
	// PartErr, when set, is consulted before every part upload; attempt is
	// 1-based per (job, range start). A non-nil result fails the call.
	PartErr func(jobID string, r chunker.Range, attempt int) error
	// CompleteErr, when set, is returned by Complete.
	CompleteErr error
	// AbortErr, when set, is returned by Abort.
	AbortErr error
	// CorruptHash makes Complete report a hash that differs from the real one.
	CorruptHash bool
	// UnverifiedErr, when set, makes Complete create the archive and then
	// fail with ErrRemoteUnverified, as if the hash could not be read back.
	UnverifiedErr error
}

func New() *Store {
	return &Store{
		uploads:  make(map[string]*upload),
		archives: make(map[string][]byte),
		calls:    make(map[string]int),
		attempts: make(map[string]int),
	}
}

// Calls returns how often op was invoked.
func (s *Store) Calls(op string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.calls[op]
}

// Archive returns the assembled bytes of a completed archive.
func (s *Store) Archive(id string) ([]byte, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	b, ok := s.archives[id]
	return b, ok
}

// ArchiveIDs lists the completed archives in id order.
func (s *Store) ArchiveIDs() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	ids := make([]string, 0, len(s.archives))
	for id := range s.archives {
		ids = append(ids, id)
	}
	slices.Sort(ids)
	return ids
}

// Aborted reports whether the upload was aborted.
func (s *Store) Aborted(jobID string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	u, ok := s.uploads[jobID]
	return ok && u.aborted
}

func (s *Store) Initiate(ctx context.Context, req remote.InitiateRequest) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls[OpInitiate]++

	if s.InitiateErr != nil {
		return "", remote.NewError(OpInitiate, common.ErrRemoteInit, s.InitiateErr).WithVault(req.Vault)
	}
	if _, err := chunker.NewPlan(req.TotalSize, req.ChunkSize); err != nil {
		return "", remote.NewError(OpInitiate, common.ErrRemoteInit, err).WithVault(req.Vault)
	}

	id := uuid.NewString()
	s.uploads[id] = &upload{req: req, parts: make(map[int64][]byte)}
	return id, nil
}

func (s *Store) UploadPart(ctx context.Context, jobID string, r chunker.Range, body []byte, hash treehash.Digest) error {
	s.mu.Lock()
	s.calls[OpUploadPart]++
	key := fmt.Sprintf("%s/%d", jobID, r.Start)
	s.attempts[key]++
	attempt := s.attempts[key]
	hook := s.PartErr
	u, ok := s.uploads[jobID]
	s.mu.Unlock()

	fail := func(kind, err error) error {
		return remote.NewError(OpUploadPart, kind, err).WithJob(jobID)
	}

	if !ok {
		return fail(common.ErrRemoteRejected, errUnknownUpload)
	}
	if hook != nil {
		if err := hook(jobID, r, attempt); err != nil {
			if errors.Is(err, common.ErrRemoteRejected) {
				return fail(common.ErrRemoteRejected, err)
			}
			return fail(common.ErrRemotePart, err)
		}
	}
	if err := ctx.Err(); err != nil {
		return fail(common.ErrRemotePart, err)
	}

	plan, _ := chunker.NewPlan(u.req.TotalSize, u.req.ChunkSize)
	idx, aligned := plan.Index(r.Start)
	switch {
	case !aligned || plan.Range(idx) != r:
		return fail(common.ErrRemoteRejected, fmt.Errorf("range %s does not match part layout", r))
	case int64(len(body)) != r.Len():
		return fail(common.ErrRemoteRejected, fmt.Errorf("body length %d does not match range %s", len(body), r))
	case treehash.ChunkHash(body) != hash:
		return fail(common.ErrRemoteRejected, fmt.Errorf("checksum mismatch for range %s", r))
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if u.completed || u.aborted {
		return fail(common.ErrRemoteRejected, errClosed)
	}
	u.parts[r.Start] = bytes.Clone(body)
	return nil
}

func (s *Store) Complete(ctx context.Context, jobID string, totalSize int64, hash treehash.Digest) (*remote.CompleteResult, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls[OpComplete]++

	fail := func(err error) error {
		return remote.NewError(OpComplete, common.ErrRemoteComplete, err).WithJob(jobID)
	}

	if s.CompleteErr != nil {
		return nil, fail(s.CompleteErr)
	}
	u, ok := s.uploads[jobID]
	if !ok {
		return nil, fail(errUnknownUpload)
	}
	if u.completed || u.aborted {
		return nil, fail(errClosed)
	}
	if totalSize != u.req.TotalSize {
		return nil, fail(fmt.Errorf("archive size %d does not match initiated size %d", totalSize, u.req.TotalSize))
	}

	starts := make([]int64, 0, len(u.parts))
	for start := range u.parts {
		starts = append(starts, start)
	}
	slices.Sort(starts)

	var (
		assembled []byte
		digests   []treehash.Digest
	)
	for _, start := range starts {
		if start != int64(len(assembled)) {
			return nil, fail(fmt.Errorf("missing part at offset %d", len(assembled)))
		}
		assembled = append(assembled, u.parts[start]...)
		digests = append(digests, treehash.ChunkHash(u.parts[start]))
	}
	if int64(len(assembled)) != totalSize {
		return nil, fail(fmt.Errorf("received %d of %d bytes", len(assembled), totalSize))
	}

	computed, err := treehash.TreeHash(digests)
	if err != nil {
		return nil, fail(err)
	}
	if s.CorruptHash {
		computed[0] ^= 0xff
	}

	u.completed = true
	id := uuid.NewString()
	s.archives[id] = assembled
	res := &remote.CompleteResult{ArchiveID: id, Hash: computed, Location: "memory://" + u.req.Vault + "/" + id}
	if s.UnverifiedErr != nil {
		res.Hash = treehash.Digest{}
		return res, remote.NewError(OpComplete, common.ErrRemoteUnverified, s.UnverifiedErr).WithJob(jobID)
	}
	return res, nil
}

func (s *Store) Abort(ctx context.Context, jobID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls[OpAbort]++

	if s.AbortErr != nil {
		return remote.NewError(OpAbort, common.ErrRemoteAbort, s.AbortErr).WithJob(jobID)
	}
	u, ok := s.uploads[jobID]
	if !ok {
		return remote.NewError(OpAbort, common.ErrRemoteAbort, errUnknownUpload).WithJob(jobID)
	}
	u.aborted = true
	u.parts = nil
	return nil
}
