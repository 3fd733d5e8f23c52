package journal

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/jladan/glacier-upload/internal/dbx"
	"github.com/jladan/glacier-upload/internal/models"
)

// SQLiteJournal stores entries in the journal_entries table.
type SQLiteJournal struct {
	db  *sql.DB
	now func() time.Time
}

func NewSQLiteJournal(db *sql.DB) *SQLiteJournal {
	return &SQLiteJournal{db: db, now: func() time.Time { return time.Now().UTC() }}
}

const entryColumns = `seq, job_id, entity, entity_key, status, hash, detail, created_at,
	file_path, total_size, chunk_size, vault, description`

func (j *SQLiteJournal) Append(ctx context.Context, e *models.JournalEntry) error {
	if e.CreatedAt.IsZero() {
		e.CreatedAt = j.now()
	}

	query := `INSERT INTO journal_entries (job_id, entity, entity_key, status, hash, detail, created_at,
			file_path, total_size, chunk_size, vault, description)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`

	return dbx.WithTx(ctx, j.db, nil, func(ctx context.Context, tx dbx.DBTX) error {
		res, err := tx.ExecContext(ctx, query,
			e.JobID, string(e.Entity), e.EntityKey, e.Status, e.Hash, e.Detail, e.CreatedAt.Format(time.RFC3339Nano),
			e.FilePath, e.TotalSize, e.ChunkSize, e.Vault, e.Description)
		if err != nil {
			return fmt.Errorf("failed to append journal entry: %w", err)
		}
		seq, err := res.LastInsertId()
		if err != nil {
			return fmt.Errorf("failed to get journal seq: %w", err)
		}
		e.Seq = seq
		return nil
	})
}

// scan streams a job's entries in append order into fn.
func (j *SQLiteJournal) scan(ctx context.Context, jobID string, fn func(*models.JournalEntry) error) error {
	query := `SELECT ` + entryColumns + ` FROM journal_entries WHERE job_id=? ORDER BY seq`
	rows, err := j.db.QueryContext(ctx, query, jobID)
	if err != nil {
		return fmt.Errorf("error selecting journal entries: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var (
			e         models.JournalEntry
			entity    string
			createdAt string
		)
		if err := rows.Scan(&e.Seq, &e.JobID, &entity, &e.EntityKey, &e.Status, &e.Hash, &e.Detail, &createdAt,
			&e.FilePath, &e.TotalSize, &e.ChunkSize, &e.Vault, &e.Description); err != nil {
			return err
		}
		e.Entity = models.Entity(entity)
		if e.CreatedAt, err = time.Parse(time.RFC3339Nano, createdAt); err != nil {
			return fmt.Errorf("entry seq %d: bad timestamp: %w", e.Seq, err)
		}
		if err := fn(&e); err != nil {
			return err
		}
	}

	return rows.Err()
}

func (j *SQLiteJournal) Replay(ctx context.Context, jobID string) (*models.Job, map[int]*models.ChunkRecord, error) {
	var st State
	if err := j.scan(ctx, jobID, st.Apply); err != nil {
		return nil, nil, err
	}
	return st.Result(jobID)
}

func (j *SQLiteJournal) Entries(ctx context.Context, jobID string) ([]*models.JournalEntry, error) {
	var result []*models.JournalEntry
	err := j.scan(ctx, jobID, func(e *models.JournalEntry) error {
		result = append(result, e)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return result, nil
}

func (j *SQLiteJournal) FindResumable(ctx context.Context) ([]string, error) {
	query := `SELECT e.job_id FROM journal_entries e
		JOIN (SELECT job_id, MAX(seq) AS seq FROM journal_entries WHERE entity='job' GROUP BY job_id) last
			ON last.seq = e.seq
		WHERE e.status IN (?, ?)
		ORDER BY e.seq`

	rows, err := j.db.QueryContext(ctx, query, string(models.JobInitiated), string(models.JobInProgress))
	if err != nil {
		return nil, fmt.Errorf("error selecting resumable jobs: %w", err)
	}
	defer rows.Close()

	var result []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		result = append(result, id)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return result, nil
}
