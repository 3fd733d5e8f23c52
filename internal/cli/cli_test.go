package cli

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jladan/glacier-upload/internal/chunker"
	"github.com/jladan/glacier-upload/internal/common"
	"github.com/jladan/glacier-upload/internal/config"
	"github.com/jladan/glacier-upload/internal/remote"
	"github.com/jladan/glacier-upload/internal/remote/memory"
	"github.com/jladan/glacier-upload/internal/treehash"
)

type testEnv struct {
	dir   string
	store *memory.Store
}

// newTestEnv points every command at one in-process store and a state
// database in a temp dir.
func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	e := &testEnv{dir: t.TempDir(), store: memory.New()}

	orig := newRemoteStore
	newRemoteStore = func(context.Context, *config.Config) (remote.Store, error) { return e.store, nil }
	t.Cleanup(func() { newRemoteStore = orig })
	return e
}

func (e *testEnv) run(t *testing.T, args ...string) (int, string, string) {
	t.Helper()
	base := []string{
		"--db", filepath.Join(e.dir, "state.db"),
		"--backend", config.BackendMemory,
		"--vault", "icicles",
		"--chunk-size", fmt.Sprint(common.MiB),
		"--retries", "0",
	}
	// Flags given by the test come last so they override the defaults.
	args = append(append(args[:1:1], base...), args[1:]...)

	var stdout, stderr bytes.Buffer
	code := Execute(context.Background(), args, &stdout, &stderr)
	return code, stdout.String(), stderr.String()
}

func (e *testEnv) writeFile(t *testing.T, name string, size int) (string, []byte) {
	t.Helper()
	data := make([]byte, size)
	for i := range data {
		data[i] = byte(i*31 + i/1021)
	}
	path := filepath.Join(e.dir, name)
	require.NoError(t, os.WriteFile(path, data, 0o600))
	return path, data
}

func jobIDFrom(t *testing.T, stdout string) string {
	t.Helper()
	line, _, _ := strings.Cut(stdout, "\n")
	id, ok := strings.CutPrefix(line, "job ")
	require.True(t, ok, "first line %q", line)
	return id
}

func treeHashOf(data []byte) string {
	h := treehash.New()
	_, _ = h.Write(data)
	return h.Sum().String()
}

func TestUpload_EndToEnd(t *testing.T) {
	e := newTestEnv(t)
	path, data := e.writeFile(t, "photos.tar", 3*int(common.MiB)+512)

	code, out, errOut := e.run(t, "upload", path, "-d", "photos")
	require.Equal(t, ExitSuccess, code, errOut)

	want := treeHashOf(data)
	assert.Contains(t, out, "tree hash:  "+want)
	assert.Equal(t, 4, e.store.Calls(memory.OpUploadPart))
	assert.Contains(t, errOut, "4/4 parts")

	code, out, errOut = e.run(t, "lookup", path)
	require.Equal(t, ExitSuccess, code, errOut)
	assert.Contains(t, out, want)
	assert.Contains(t, out, path)

	code, out, _ = e.run(t, "list")
	require.Equal(t, ExitSuccess, code)
	assert.Contains(t, out, want)

	code, out, _ = e.run(t, "pending")
	require.Equal(t, ExitSuccess, code)
	assert.Contains(t, out, "no pending uploads")
}

func TestUpload_InterruptedThenResumed(t *testing.T) {
	e := newTestEnv(t)
	path, data := e.writeFile(t, "db.dump", 3*int(common.MiB))

	e.store.PartErr = func(_ string, r chunker.Range, _ int) error {
		if r.Start == common.MiB {
			return fmt.Errorf("connection reset: %w", common.ErrRemotePart)
		}
		return nil
	}
	code, out, _ := e.run(t, "upload", path)
	require.Equal(t, ExitRemoteError, code)
	id := jobIDFrom(t, out)

	code, out, _ = e.run(t, "pending")
	require.Equal(t, ExitSuccess, code)
	assert.Contains(t, out, id)

	code, out, _ = e.run(t, "journal", id)
	require.Equal(t, ExitSuccess, code)
	assert.Contains(t, out, "failed")

	e.store.PartErr = nil
	before := e.store.Calls(memory.OpUploadPart)

	code, out, errOut := e.run(t, "resume", id)
	require.Equal(t, ExitSuccess, code, errOut)
	assert.Contains(t, out, treeHashOf(data))
	assert.LessOrEqual(t, e.store.Calls(memory.OpUploadPart)-before, 3)

	code, out, _ = e.run(t, "pending")
	require.Equal(t, ExitSuccess, code)
	assert.Contains(t, out, "no pending uploads")
}

func TestResume_AllPending(t *testing.T) {
	e := newTestEnv(t)
	a, _ := e.writeFile(t, "a.bin", 2*int(common.MiB))
	b, _ := e.writeFile(t, "b.bin", 2*int(common.MiB))

	e.store.PartErr = func(_ string, r chunker.Range, _ int) error {
		if r.Start > 0 {
			return fmt.Errorf("throttled: %w", common.ErrRemotePart)
		}
		return nil
	}
	code, _, _ := e.run(t, "upload", a)
	require.Equal(t, ExitRemoteError, code)
	code, _, _ = e.run(t, "upload", b)
	require.Equal(t, ExitRemoteError, code)

	e.store.PartErr = nil
	code, _, errOut := e.run(t, "resume")
	require.Equal(t, ExitSuccess, code, errOut)

	code, out, _ := e.run(t, "list")
	require.Equal(t, ExitSuccess, code)
	assert.Contains(t, out, a)
	assert.Contains(t, out, b)
}

func TestAbort(t *testing.T) {
	e := newTestEnv(t)
	path, _ := e.writeFile(t, "vm.img", 2*int(common.MiB))

	e.store.PartErr = func(string, chunker.Range, int) error {
		return fmt.Errorf("timeout: %w", common.ErrRemotePart)
	}
	code, out, _ := e.run(t, "upload", path)
	require.Equal(t, ExitRemoteError, code)
	id := jobIDFrom(t, out)

	code, out, _ = e.run(t, "abort", id)
	require.Equal(t, ExitSuccess, code)
	assert.Contains(t, out, "aborted")
	assert.True(t, e.store.Aborted(id))

	code, _, errOut := e.run(t, "resume", id)
	assert.Equal(t, ExitGeneralError, code)
	assert.Contains(t, errOut, common.ErrJobTerminal.Error())
}

func TestUpload_Errors(t *testing.T) {
	e := newTestEnv(t)
	empty, _ := e.writeFile(t, "empty", 0)

	tests := []struct {
		name string
		args []string
		want int
	}{
		{"missing file", []string{"upload", filepath.Join(e.dir, "nope")}, ExitSourceNotFound},
		{"empty file", []string{"upload", empty}, ExitInvalidArgs},
		{"no file argument", []string{"upload"}, ExitInvalidArgs},
		{"unknown flag", []string{"upload", empty, "--frobnicate"}, ExitInvalidArgs},
		{"bad chunk size", []string{"upload", empty, "--chunk-size", "1000"}, ExitInvalidArgs},
		{"unknown job", []string{"resume", "no-such-job"}, ExitGeneralError},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			code, _, errOut := e.run(t, tt.args...)
			assert.Equal(t, tt.want, code, errOut)
			assert.Contains(t, errOut, "error:")
		})
	}
	assert.Zero(t, e.store.Calls(memory.OpUploadPart))
}

func TestUpload_ChunkSizeFitsFile(t *testing.T) {
	e := newTestEnv(t)
	path, data := e.writeFile(t, "report.pdf", 3*int(common.MiB))

	code, out, errOut := e.run(t, "upload", path, "--chunk-size", fmt.Sprint(64*common.MiB))
	require.Equal(t, ExitSuccess, code, errOut)
	assert.Contains(t, out, treeHashOf(data))
	assert.Equal(t, 2, e.store.Calls(memory.OpUploadPart), "3 MiB in 2 MiB parts")
}

func TestUpload_BelowMinimumPartSize(t *testing.T) {
	e := newTestEnv(t)
	path, _ := e.writeFile(t, "notes.txt", 100<<10)

	for _, chunkSize := range []string{"0", fmt.Sprint(common.MiB)} {
		t.Run("chunk size "+chunkSize, func(t *testing.T) {
			code, _, errOut := e.run(t, "upload", path, "--chunk-size", chunkSize)
			assert.Equal(t, ExitInvalidArgs, code)
			assert.Contains(t, errOut, "minimum part size of 1.0 MiB")
		})
	}
	assert.Zero(t, e.store.Calls(memory.OpInitiate))
}

func TestTreeHashCommand(t *testing.T) {
	e := newTestEnv(t)
	path, data := e.writeFile(t, "small", 2*int(common.MiB)+7)

	code, out, _ := e.run(t, "treehash", path)
	require.Equal(t, ExitSuccess, code)
	assert.Equal(t, treeHashOf(data)+"  "+path+"\n", out)
}

func TestVersionCommand(t *testing.T) {
	var stdout, stderr bytes.Buffer
	code := Execute(context.Background(), []string{"version"}, &stdout, &stderr)
	require.Equal(t, ExitSuccess, code)
	assert.Contains(t, stdout.String(), "Build version:")
}

func TestExitCode(t *testing.T) {
	tests := []struct {
		err  error
		want int
	}{
		{nil, ExitSuccess},
		{errors.New("boom"), ExitGeneralError},
		{&usageError{err: errors.New("bad flag")}, ExitInvalidArgs},
		{fmt.Errorf("x: %w", common.ErrInvalidChunkSize), ExitInvalidArgs},
		{fmt.Errorf("open: %w", os.ErrNotExist), ExitSourceNotFound},
		{fmt.Errorf("x: %w", common.ErrSourceChanged), ExitSourceChanged},
		{fmt.Errorf("x: %w", common.ErrHashMismatch), ExitHashMismatch},
		{fmt.Errorf("x: %w", context.Canceled), ExitInterrupted},
		{fmt.Errorf("x: %w", common.ErrRemoteRejected), ExitRemoteError},
		{errors.Join(errors.New("a"), common.ErrRemoteComplete), ExitRemoteError},
		{fmt.Errorf("job j1 archive %q: %w", "A1", common.ErrRemoteUnverified), ExitRemoteError},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, ExitCode(tt.err), "%v", tt.err)
	}
}

func TestNewApp_IndexBackends(t *testing.T) {
	dir := t.TempDir()

	cfg := &config.Config{}
	cfg.LoadDefaults()
	cfg.DatabasePath = filepath.Join(dir, "state", "state.db")
	cfg.IndexBackend = config.IndexTSV
	cfg.IndexTSVPath = filepath.Join(dir, "index", "archives.tsv")

	a, err := NewApp(context.Background(), cfg, &bytes.Buffer{})
	require.NoError(t, err)
	t.Cleanup(func() { _ = a.Close() })

	rows, err := a.index.List(context.Background())
	require.NoError(t, err)
	assert.Empty(t, rows)

	cfg.IndexBackend = config.IndexPostgres
	cfg.IndexDSN = ""
	_, err = NewApp(context.Background(), cfg, &bytes.Buffer{})
	var ue *usageError
	assert.ErrorAs(t, err, &ue)
}
