package upload

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/jladan/glacier-upload/internal/archiveindex"
	"github.com/jladan/glacier-upload/internal/journal"
	"github.com/jladan/glacier-upload/internal/logging"
	"github.com/jladan/glacier-upload/internal/models"
	"github.com/jladan/glacier-upload/internal/remote/memory"
	"github.com/jladan/glacier-upload/internal/storage"
	"github.com/stretchr/testify/require"
)

type harness struct {
	store   *memory.Store
	journal *journal.SQLiteJournal
	index   *archiveindex.SQLiteRepository
	coord   *Coordinator
}

func newHarness(t *testing.T, opts Options) *harness {
	t.Helper()
	db, err := storage.OpenSQLite(context.Background(), ":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })

	h := &harness{
		store:   memory.New(),
		journal: journal.NewSQLiteJournal(db),
		index:   archiveindex.NewSQLiteRepository(db),
	}
	h.coord = NewCoordinator(h.store, h.journal, h.index, logging.Discard(), opts)
	return h
}

// writeSource writes size bytes of non-repeating content to a temp file.
func writeSource(t *testing.T, size int64) (string, []byte) {
	t.Helper()
	data := make([]byte, size)
	for i := range data {
		data[i] = byte(i*7 + i/4093)
	}
	path := filepath.Join(t.TempDir(), "archive.bin")
	require.NoError(t, os.WriteFile(path, data, 0o600))
	return path, data
}

func (h *harness) start(t *testing.T, path string, chunkSize int64) *Session {
	t.Helper()
	s, err := h.coord.Start(context.Background(), StartRequest{
		FilePath:    path,
		Vault:       "icicles",
		Description: "nightly backup",
		ChunkSize:   chunkSize,
	})
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func (h *harness) chunkStatuses(t *testing.T, jobID string, idx int) []string {
	t.Helper()
	entries, err := h.journal.Entries(context.Background(), jobID)
	require.NoError(t, err)
	var out []string
	for _, e := range entries {
		if e.Entity == models.EntityChunk && e.EntityKey == journal.ChunkKey(idx) {
			out = append(out, e.Status)
		}
	}
	return out
}

func (h *harness) jobStatuses(t *testing.T, jobID string) []string {
	t.Helper()
	entries, err := h.journal.Entries(context.Background(), jobID)
	require.NoError(t, err)
	var out []string
	for _, e := range entries {
		if e.Entity == models.EntityJob {
			out = append(out, e.Status)
		}
	}
	return out
}
