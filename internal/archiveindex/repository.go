// Package archiveindex records completed archives in an append-only index.
//
// An index row is written exactly once per completed upload job and never
// updated or deleted. Three sinks are provided: the local SQLite state
// database, a shared PostgreSQL table, and a tab-separated file for external
// tooling. All of them keep the column order of Columns.
package archiveindex

import (
	"context"

	"github.com/jladan/glacier-upload/internal/models"
)

// Columns is the persisted column order of every sink.
var Columns = []string{"file_path", "description", "archive_id", "completed_at", "job_id", "tree_hash", "size"}

// Repository is an append-only archive index.
type Repository interface {
	// Record appends row. It fails with common.ErrDuplicateJob when a row for
	// row.JobID already exists.
	Record(ctx context.Context, row *models.ArchiveIndexRow) error

	// Lookup returns every archive recorded for filePath, oldest first.
	Lookup(ctx context.Context, filePath string) ([]*models.ArchiveIndexRow, error)

	// List returns every recorded archive, oldest first.
	List(ctx context.Context) ([]*models.ArchiveIndexRow, error)
}
