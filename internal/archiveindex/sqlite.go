package archiveindex

import (
	"context"
	"fmt"
	"time"

	"github.com/jladan/glacier-upload/internal/common"
	"github.com/jladan/glacier-upload/internal/dbx"
	"github.com/jladan/glacier-upload/internal/models"
)

// SQLiteRepository keeps the index in the local state database.
type SQLiteRepository struct {
	db dbx.DBTX
}

func NewSQLiteRepository(db dbx.DBTX) *SQLiteRepository {
	return &SQLiteRepository{db: db}
}

func (r *SQLiteRepository) Record(ctx context.Context, row *models.ArchiveIndexRow) error {
	query := `INSERT INTO archive_index (file_path, description, archive_id, completed_at, job_id, tree_hash, size)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(job_id) DO NOTHING`

	res, err := r.db.ExecContext(ctx, query, row.FilePath, row.Description, row.ArchiveID,
		row.CompletedAt.UTC().Format(time.RFC3339Nano), row.JobID, row.TreeHash, row.Size)
	if err != nil {
		return fmt.Errorf("failed to insert archive row: %w", err)
	}

	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if n == 0 {
		return fmt.Errorf("job %s: %w", row.JobID, common.ErrDuplicateJob)
	}
	return nil
}

func (r *SQLiteRepository) Lookup(ctx context.Context, filePath string) ([]*models.ArchiveIndexRow, error) {
	query := `SELECT file_path, description, archive_id, completed_at, job_id, tree_hash, size
		FROM archive_index WHERE file_path=? ORDER BY completed_at, rowid`
	return r.query(ctx, query, filePath)
}

func (r *SQLiteRepository) List(ctx context.Context) ([]*models.ArchiveIndexRow, error) {
	query := `SELECT file_path, description, archive_id, completed_at, job_id, tree_hash, size
		FROM archive_index ORDER BY completed_at, rowid`
	return r.query(ctx, query)
}

func (r *SQLiteRepository) query(ctx context.Context, query string, args ...any) ([]*models.ArchiveIndexRow, error) {
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("error selecting archive rows: %w", err)
	}
	defer rows.Close()

	var result []*models.ArchiveIndexRow
	for rows.Next() {
		var (
			item        models.ArchiveIndexRow
			completedAt string
		)
		if err := rows.Scan(&item.FilePath, &item.Description, &item.ArchiveID, &completedAt,
			&item.JobID, &item.TreeHash, &item.Size); err != nil {
			return nil, err
		}
		if item.CompletedAt, err = time.Parse(time.RFC3339Nano, completedAt); err != nil {
			return nil, fmt.Errorf("archive row %s: bad timestamp: %w", item.JobID, err)
		}
		result = append(result, &item)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return result, nil
}
