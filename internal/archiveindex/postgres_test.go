package archiveindex

import (
	"context"
	"database/sql"
	"errors"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/jladan/glacier-upload/internal/common"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newRepoWithMock(t *testing.T) (*PostgresRepository, sqlmock.Sqlmock, *sql.DB) {
	t.Helper()
	db, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherRegexp))
	if err != nil {
		t.Fatalf("sqlmock.New error: %v", err)
	}
	return NewPostgresRepository(db), mock, db
}

const insertQuery = `(?s)^\s*INSERT\s+INTO\s+archive_index\b.*ON\s+CONFLICT\s*\(job_id\)\s*DO\s+NOTHING;?\s*$`

func TestPostgresRecord_Success(t *testing.T) {
	repo, mock, db := newRepoWithMock(t)
	defer db.Close()

	at := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	r := row("job-1", "/data/a.tar", at)

	mock.ExpectExec(insertQuery).
		WithArgs(r.FilePath, r.Description, r.ArchiveID, at, r.JobID, r.TreeHash, r.Size).
		WillReturnResult(sqlmock.NewResult(0, 1))

	require.NoError(t, repo.Record(context.Background(), r))
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresRecord_Duplicate(t *testing.T) {
	repo, mock, db := newRepoWithMock(t)
	defer db.Close()

	mock.ExpectExec(insertQuery).WillReturnResult(sqlmock.NewResult(0, 0))

	err := repo.Record(context.Background(), row("job-1", "/a", time.Now()))
	require.ErrorIs(t, err, common.ErrDuplicateJob)
}

func TestPostgresRecord_DBError(t *testing.T) {
	repo, mock, db := newRepoWithMock(t)
	defer db.Close()

	mock.ExpectExec(insertQuery).WillReturnError(errors.New("db down"))

	err := repo.Record(context.Background(), row("job-1", "/a", time.Now()))
	require.ErrorContains(t, err, "db down")
}

func TestPostgresRecord_UnexpectedRows(t *testing.T) {
	repo, mock, db := newRepoWithMock(t)
	defer db.Close()

	mock.ExpectExec(insertQuery).WillReturnResult(sqlmock.NewResult(0, 2))

	err := repo.Record(context.Background(), row("job-1", "/a", time.Now()))
	require.ErrorContains(t, err, "unexpected rows affected")
}

func TestPostgresLookup(t *testing.T) {
	repo, mock, db := newRepoWithMock(t)
	defer db.Close()

	at := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	rows := sqlmock.NewRows(Columns).
		AddRow("/data/a.tar", "d", "arch-1", at, "job-1", "hash", int64(42))

	mock.ExpectQuery(`(?s)SELECT\s+file_path.*FROM\s+archive_index\s+WHERE\s+file_path=\$1`).
		WithArgs("/data/a.tar").
		WillReturnRows(rows)

	got, err := repo.Lookup(context.Background(), "/data/a.tar")
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, "arch-1", got[0].ArchiveID)
	assert.Equal(t, at, got[0].CompletedAt)
	assert.Equal(t, int64(42), got[0].Size)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresList_QueryError(t *testing.T) {
	repo, mock, db := newRepoWithMock(t)
	defer db.Close()

	mock.ExpectQuery(`(?s)SELECT\s+file_path.*FROM\s+archive_index`).WillReturnError(errors.New("boom"))

	_, err := repo.List(context.Background())
	require.ErrorContains(t, err, "boom")
}

func TestPostgresList_RowError(t *testing.T) {
	repo, mock, db := newRepoWithMock(t)
	defer db.Close()

	rows := sqlmock.NewRows(Columns).
		AddRow("/a", "d", "arch-1", time.Now(), "job-1", "hash", int64(1)).
		RowError(0, errors.New("row broken"))
	mock.ExpectQuery(`(?s)SELECT\s+file_path.*FROM\s+archive_index`).WillReturnRows(rows)

	_, err := repo.List(context.Background())
	require.ErrorContains(t, err, "row broken")
}
