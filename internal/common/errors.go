// Package common defines the sentinel errors shared by the chunker, journal,
// coordinator, archive index and remote store layers. Callers should use
// errors.Is to match these values; every layer wraps them with %w.
package common

import "errors"

var (
	// Planning errors.
	ErrInvalidChunkSize = errors.New("invalid chunk size")
	ErrEmptyInput       = errors.New("empty input")

	// Remote store errors.
	ErrRemoteInit     = errors.New("remote initiate failed")
	ErrRemotePart     = errors.New("remote part upload failed")
	ErrRemoteRejected = errors.New("remote rejected part")
	ErrRemoteComplete = errors.New("remote complete failed")
	ErrRemoteAbort    = errors.New("remote abort failed")

	// ErrRemoteUnverified means the archive was created but the store could
	// not report its tree hash. The upload cannot be completed again.
	ErrRemoteUnverified = errors.New("remote archive created but not verified")

	// Coordinator errors.
	ErrAlreadyUploaded   = errors.New("chunk already uploaded")
	ErrChunkSizeMismatch = errors.New("chunk size mismatch")
	ErrChunksPending     = errors.New("chunks still pending")
	ErrNoPendingChunks   = errors.New("no pending chunks")
	ErrJobTerminal       = errors.New("job is in a terminal state")
	ErrNotAbortable      = errors.New("job cannot be aborted")
	ErrChunkInFlight     = errors.New("chunk upload already in flight")

	// Integrity errors. These are never retried.
	ErrHashMismatch  = errors.New("tree hash mismatch")
	ErrSourceChanged = errors.New("source file changed")

	// Journal / index errors.
	ErrJobNotFound  = errors.New("job not found")
	ErrDuplicateJob = errors.New("duplicate job")
)

// IsRetryable reports whether err is a transient failure that the coordinator
// may retry for the same chunk.
func IsRetryable(err error) bool {
	return errors.Is(err, ErrRemotePart) && !errors.Is(err, ErrRemoteRejected)
}
