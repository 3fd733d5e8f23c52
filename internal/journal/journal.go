package journal

import (
	"context"

	"github.com/jladan/glacier-upload/internal/models"
)

// Journal is the durable, append-only upload log.
type Journal interface {
	// Append persists one entry before returning. Seq and CreatedAt are
	// filled in on the passed entry.
	Append(ctx context.Context, e *models.JournalEntry) error

	// Replay rebuilds the job and its chunk records from the job's entries.
	// It returns common.ErrJobNotFound if the job has no entries.
	Replay(ctx context.Context, jobID string) (*models.Job, map[int]*models.ChunkRecord, error)

	// FindResumable lists jobs whose last job-level status is initiated or
	// in_progress, oldest first.
	FindResumable(ctx context.Context) ([]string, error)

	// Entries returns the raw entries of a job in append order.
	Entries(ctx context.Context, jobID string) ([]*models.JournalEntry, error)
}
