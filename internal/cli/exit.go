package cli

import (
	"context"
	"errors"
	"io/fs"

	"github.com/jladan/glacier-upload/internal/common"
)

// Exit codes
const (
	ExitSuccess        = 0
	ExitGeneralError   = 1
	ExitInvalidArgs    = 2
	ExitSourceNotFound = 3
	ExitRemoteError    = 4
	ExitSourceChanged  = 5
	ExitHashMismatch   = 6
	ExitInterrupted    = 7
)

type usageError struct {
	err error
}

func (e *usageError) Error() string { return e.err.Error() }
func (e *usageError) Unwrap() error { return e.err }

// ExitCode maps an error returned by a command to a process exit code.
func ExitCode(err error) int {
	var ue *usageError
	switch {
	case err == nil:
		return ExitSuccess
	case errors.As(err, &ue),
		errors.Is(err, common.ErrInvalidChunkSize),
		errors.Is(err, common.ErrEmptyInput),
		errors.Is(err, common.ErrChunkSizeMismatch):
		return ExitInvalidArgs
	case errors.Is(err, fs.ErrNotExist), errors.Is(err, fs.ErrPermission):
		return ExitSourceNotFound
	case errors.Is(err, common.ErrSourceChanged):
		return ExitSourceChanged
	case errors.Is(err, common.ErrHashMismatch):
		return ExitHashMismatch
	case errors.Is(err, context.Canceled):
		return ExitInterrupted
	case errors.Is(err, common.ErrRemoteInit),
		errors.Is(err, common.ErrRemotePart),
		errors.Is(err, common.ErrRemoteRejected),
		errors.Is(err, common.ErrRemoteComplete),
		errors.Is(err, common.ErrRemoteAbort),
		errors.Is(err, common.ErrRemoteUnverified):
		return ExitRemoteError
	}
	return ExitGeneralError
}
