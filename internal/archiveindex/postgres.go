package archiveindex

import (
	"context"
	"fmt"

	"github.com/jladan/glacier-upload/internal/common"
	"github.com/jladan/glacier-upload/internal/dbx"
	"github.com/jladan/glacier-upload/internal/models"
)

// PostgresRepository keeps the index in a shared PostgreSQL table so several
// hosts can record into, and audit, one index.
type PostgresRepository struct {
	db dbx.DBTX
}

// NewPostgresRepository constructs a repository bound to the given DBTX.
func NewPostgresRepository(db dbx.DBTX) *PostgresRepository {
	return &PostgresRepository{db: db}
}

// Record inserts row. A conflicting job_id leaves the existing row untouched
// and yields ErrDuplicateJob.
func (r *PostgresRepository) Record(ctx context.Context, row *models.ArchiveIndexRow) error {
	query := `
		INSERT INTO archive_index (file_path, description, archive_id, completed_at, job_id, tree_hash, size)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		ON CONFLICT (job_id) DO NOTHING;
	`
	res, err := r.db.ExecContext(ctx, query,
		row.FilePath, row.Description, row.ArchiveID, row.CompletedAt.UTC(), row.JobID, row.TreeHash, row.Size)
	if err != nil {
		return fmt.Errorf("db error: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected error: %w", err)
	}
	switch n {
	case 1:
		return nil
	case 0:
		return fmt.Errorf("job %s: %w", row.JobID, common.ErrDuplicateJob)
	default:
		return fmt.Errorf("unexpected rows affected: %d", n)
	}
}

// Lookup returns all rows for filePath ordered by completion time.
func (r *PostgresRepository) Lookup(ctx context.Context, filePath string) ([]*models.ArchiveIndexRow, error) {
	query := ` SELECT file_path, description, archive_id, completed_at, job_id, tree_hash, size FROM archive_index
		WHERE file_path=$1 ORDER BY completed_at
		`
	return r.query(ctx, query, filePath)
}

// List returns all rows ordered by completion time.
func (r *PostgresRepository) List(ctx context.Context) ([]*models.ArchiveIndexRow, error) {
	query := ` SELECT file_path, description, archive_id, completed_at, job_id, tree_hash, size FROM archive_index
		ORDER BY completed_at
		`
	return r.query(ctx, query)
}

func (r *PostgresRepository) query(ctx context.Context, query string, args ...any) ([]*models.ArchiveIndexRow, error) {
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to select archive rows: %w", err)
	}
	defer rows.Close()

	var result []*models.ArchiveIndexRow
	for rows.Next() {
		var item models.ArchiveIndexRow
		if err := rows.Scan(&item.FilePath, &item.Description, &item.ArchiveID, &item.CompletedAt,
			&item.JobID, &item.TreeHash, &item.Size); err != nil {
			return nil, err
		}
		result = append(result, &item)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return result, nil
}
