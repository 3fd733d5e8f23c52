package journal

import (
	"context"
	"database/sql"
	"testing"
	"time"

	"github.com/jladan/glacier-upload/internal/common"
	"github.com/jladan/glacier-upload/internal/models"
	"github.com/jladan/glacier-upload/internal/storage"
	"github.com/jladan/glacier-upload/internal/treehash"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setupJournal(t *testing.T) (*SQLiteJournal, *sql.DB) {
	t.Helper()
	db, err := storage.OpenSQLite(context.Background(), ":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	return NewSQLiteJournal(db), db
}

func initiated(jobID string) *models.JournalEntry {
	return &models.JournalEntry{
		JobID:       jobID,
		Entity:      models.EntityJob,
		Status:      string(models.JobInitiated),
		FilePath:    "/data/backup.tar",
		TotalSize:   25,
		ChunkSize:   10,
		Vault:       "icicles",
		Description: "nightly",
	}
}

func jobEntry(jobID string, s models.JobStatus) *models.JournalEntry {
	return &models.JournalEntry{JobID: jobID, Entity: models.EntityJob, Status: string(s)}
}

func chunkEntry(jobID string, idx int, s models.ChunkStatus, hash string) *models.JournalEntry {
	return &models.JournalEntry{JobID: jobID, Entity: models.EntityChunk, EntityKey: ChunkKey(idx), Status: string(s), Hash: hash}
}

func appendAll(t *testing.T, j *SQLiteJournal, entries ...*models.JournalEntry) {
	t.Helper()
	for _, e := range entries {
		require.NoError(t, j.Append(context.Background(), e))
	}
}

func TestAppend_AssignsSeqAndTimestamp(t *testing.T) {
	j, _ := setupJournal(t)
	fixed := time.Date(2026, 1, 2, 3, 4, 5, 6, time.UTC)
	j.now = func() time.Time { return fixed }

	e1 := initiated("job-1")
	e2 := jobEntry("job-1", models.JobInProgress)
	appendAll(t, j, e1, e2)

	assert.Greater(t, e2.Seq, e1.Seq)
	assert.Equal(t, fixed, e1.CreatedAt)

	got, err := j.Entries(context.Background(), "job-1")
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, fixed, got[0].CreatedAt)
	assert.Equal(t, "/data/backup.tar", got[0].FilePath)
	assert.Equal(t, models.EntityJob, got[1].Entity)
}

func TestReplay_RebuildsJobAndChunks(t *testing.T) {
	j, _ := setupJournal(t)
	h0 := treehash.ChunkHash([]byte("zero"))
	h1 := treehash.ChunkHash([]byte("one"))

	appendAll(t, j,
		initiated("job-1"),
		jobEntry("job-1", models.JobInProgress),
		chunkEntry("job-1", 0, models.ChunkUploaded, h0.String()),
		chunkEntry("job-1", 1, models.ChunkFailed, ""),
		chunkEntry("job-1", 1, models.ChunkFailed, ""),
		chunkEntry("job-1", 1, models.ChunkUploaded, h1.String()),
		// interleaved job must not leak in
		initiated("job-2"),
	)

	job, chunks, err := j.Replay(context.Background(), "job-1")
	require.NoError(t, err)

	assert.Equal(t, models.JobInProgress, job.Status)
	assert.Equal(t, int64(25), job.TotalSize)
	assert.Equal(t, int64(10), job.ChunkSize)
	assert.Equal(t, "icicles", job.Vault)
	assert.Equal(t, "nightly", job.Description)

	require.Len(t, chunks, 3)
	assert.Equal(t, models.ChunkUploaded, chunks[0].Status)
	assert.Equal(t, h0, chunks[0].Hash)
	assert.Equal(t, models.ChunkUploaded, chunks[1].Status)
	assert.Equal(t, h1, chunks[1].Hash)
	assert.Equal(t, 0, chunks[1].Attempts)
	assert.Equal(t, models.ChunkPending, chunks[2].Status)
	assert.Equal(t, int64(20), chunks[2].Range.Start)
	assert.Equal(t, int64(25), chunks[2].Range.End)
}

func TestReplay_IsDeterministic(t *testing.T) {
	j, _ := setupJournal(t)
	appendAll(t, j,
		initiated("job-1"),
		jobEntry("job-1", models.JobInProgress),
		chunkEntry("job-1", 2, models.ChunkFailed, ""),
	)

	job1, chunks1, err := j.Replay(context.Background(), "job-1")
	require.NoError(t, err)
	job2, chunks2, err := j.Replay(context.Background(), "job-1")
	require.NoError(t, err)

	assert.Equal(t, job1, job2)
	assert.Equal(t, chunks1, chunks2)
	assert.Equal(t, 1, chunks1[2].Attempts)
}

func TestReplay_NotFound(t *testing.T) {
	j, _ := setupJournal(t)
	_, _, err := j.Replay(context.Background(), "missing")
	require.ErrorIs(t, err, common.ErrJobNotFound)
}

func TestReplay_RejectsJournalWithoutInitiated(t *testing.T) {
	j, _ := setupJournal(t)
	appendAll(t, j, jobEntry("job-x", models.JobInProgress))

	_, _, err := j.Replay(context.Background(), "job-x")
	require.ErrorContains(t, err, "initiated")
}

func TestReplay_RejectsChunkOutsidePlan(t *testing.T) {
	j, _ := setupJournal(t)
	appendAll(t, j, initiated("job-1"), chunkEntry("job-1", 7, models.ChunkFailed, ""))

	_, _, err := j.Replay(context.Background(), "job-1")
	require.ErrorContains(t, err, "outside plan")
}

func TestFindResumable(t *testing.T) {
	j, _ := setupJournal(t)
	appendAll(t, j,
		initiated("a"),
		initiated("b"),
		jobEntry("b", models.JobInProgress),
		initiated("c"),
		jobEntry("c", models.JobInProgress),
		jobEntry("c", models.JobCompleting),
		jobEntry("c", models.JobCompleted),
		initiated("d"),
		jobEntry("d", models.JobAborted),
		initiated("e"),
		jobEntry("e", models.JobFailed),
		// chunk entries after the last job entry do not affect the answer
		chunkEntry("b", 0, models.ChunkFailed, ""),
	)

	ids, err := j.FindResumable(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []string{"a", "b"}, ids)
}

func TestState_ApplyRejectsForeignEntries(t *testing.T) {
	var st State
	require.NoError(t, st.Apply(initiated("job-1")))
	require.Error(t, st.Apply(jobEntry("job-2", models.JobInProgress)))
	require.Error(t, st.Apply(&models.JournalEntry{JobID: "job-1", Entity: "vault"}))
	require.Error(t, st.Apply(chunkEntry("job-1", 0, "lost", "")))
	require.Error(t, st.Apply(chunkEntry("job-1", 0, models.ChunkUploaded, "nothex")))
	require.Error(t, st.Apply(&models.JournalEntry{JobID: "job-1", Entity: models.EntityChunk, EntityKey: "x", Status: "failed"}))
}
