package upload

import (
	"io"
	"io/fs"
	"os"
	"slices"
	"sync"

	"github.com/jladan/glacier-upload/internal/chunker"
	"github.com/jladan/glacier-upload/internal/models"
)

// Source is the file being uploaded. Workers read it only through ReadAt.
type Source interface {
	io.ReaderAt
	io.Closer
	Stat() (fs.FileInfo, error)
}

// openSource is a seam for tests.
var openSource = func(path string) (Source, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	return f, nil
}

// Session is the live state of one job. Its mutex is the per-job journal
// lock: it is held across journal appends and state mutation, never across
// remote calls.
type Session struct {
	mu       sync.Mutex
	job      models.Job
	plan     chunker.Plan
	chunks   []*models.ChunkRecord
	inflight map[int]bool
	src      Source
}

func newSession(job models.Job, plan chunker.Plan, chunks []*models.ChunkRecord, src Source) *Session {
	return &Session{job: job, plan: plan, chunks: chunks, inflight: make(map[int]bool), src: src}
}

// Job returns a snapshot of the job.
func (s *Session) Job() models.Job {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.job
}

// Chunks returns a snapshot of the chunk records in index order.
func (s *Session) Chunks() []models.ChunkRecord {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]models.ChunkRecord, len(s.chunks))
	for i, c := range s.chunks {
		out[i] = *c
	}
	return out
}

// Close releases the source file.
func (s *Session) Close() error {
	if s.src == nil {
		return nil
	}
	return s.src.Close()
}

// claim marks the lowest unclaimed chunk in one of the given states as in
// flight. Callers hold s.mu.
func (s *Session) claim(states ...models.ChunkStatus) (int, bool) {
	for _, c := range s.chunks {
		if !s.inflight[c.Index] && slices.Contains(states, c.Status) {
			s.inflight[c.Index] = true
			return c.Index, true
		}
	}
	return 0, false
}

func (s *Session) release(idx int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.inflight, idx)
}

// remaining lists chunks not yet uploaded. Callers hold s.mu.
func (s *Session) remaining() []int {
	var out []int
	for _, c := range s.chunks {
		if c.Status != models.ChunkUploaded {
			out = append(out, c.Index)
		}
	}
	return out
}

func (s *Session) progress() Progress {
	p := Progress{JobID: s.job.ID, Total: len(s.chunks), TotalBytes: s.job.TotalSize}
	for _, c := range s.chunks {
		if c.Status == models.ChunkUploaded {
			p.Done++
			p.Bytes += c.Range.Len()
		}
	}
	return p
}
