// Package remote defines the archival object store capability consumed by the
// upload coordinator: initiate a multipart upload, upload parts, complete and
// abort. Implementations live in the glacier, s3 and memory subpackages.
package remote

import (
	"context"
	"fmt"

	"github.com/jladan/glacier-upload/internal/chunker"
	"github.com/jladan/glacier-upload/internal/treehash"
)

// InitiateRequest describes a new multipart upload.
type InitiateRequest struct {
	Vault       string
	Description string
	ChunkSize   int64
	TotalSize   int64
}

// CompleteResult is the remote acknowledgment of a completed upload.
type CompleteResult struct {
	ArchiveID string
	// Hash is the tree hash the remote side computed over what it received.
	Hash treehash.Digest
	// Location is an optional provider-specific URI of the archive.
	Location string
}

// Store is a remote archival store that accepts multipart uploads.
//
// Errors wrap the common remote taxonomy: Initiate fails with ErrRemoteInit,
// UploadPart with ErrRemotePart (transient) or ErrRemoteRejected (fatal for
// the part), Complete with ErrRemoteComplete. When the archive was created
// but its hash could not be obtained, Complete returns the result with the
// archive id together with an ErrRemoteUnverified error.
type Store interface {
	Initiate(ctx context.Context, req InitiateRequest) (string, error)
	UploadPart(ctx context.Context, jobID string, r chunker.Range, body []byte, hash treehash.Digest) error
	Complete(ctx context.Context, jobID string, totalSize int64, hash treehash.Digest) (*CompleteResult, error)
	Abort(ctx context.Context, jobID string) error
}

// Error attaches operation context to a remote failure.
type Error struct {
	// Op is the store operation that failed (e.g. "initiate", "upload_part").
	Op    string
	Vault string
	JobID string
	// Kind is the common sentinel classifying the failure.
	Kind error
	Err  error
}

func (e *Error) Error() string {
	switch {
	case e.JobID != "":
		return fmt.Sprintf("remote.%s %s/%s: %v: %v", e.Op, e.Vault, e.JobID, e.Kind, e.Err)
	case e.Vault != "":
		return fmt.Sprintf("remote.%s %s: %v: %v", e.Op, e.Vault, e.Kind, e.Err)
	}
	return fmt.Sprintf("remote.%s: %v: %v", e.Op, e.Kind, e.Err)
}

// Unwrap exposes both the sentinel kind and the underlying cause to errors.Is.
func (e *Error) Unwrap() []error {
	return []error{e.Kind, e.Err}
}

// NewError builds an Error of the given kind.
func NewError(op string, kind, err error) *Error {
	return &Error{Op: op, Kind: kind, Err: err}
}

// WithVault adds vault context.
func (e *Error) WithVault(vault string) *Error {
	e.Vault = vault
	return e
}

// WithJob adds job context.
func (e *Error) WithJob(jobID string) *Error {
	e.JobID = jobID
	return e
}
