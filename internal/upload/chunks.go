package upload

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/jladan/glacier-upload/internal/common"
	"github.com/jladan/glacier-upload/internal/journal"
	"github.com/jladan/glacier-upload/internal/models"
	"github.com/jladan/glacier-upload/internal/treehash"
	"github.com/sethvargo/go-retry"
	"golang.org/x/sync/errgroup"
)

// ChunkError identifies the chunk behind a failed upload.
type ChunkError struct {
	JobID string
	Index int
	Err   error
}

func (e *ChunkError) Error() string {
	return fmt.Sprintf("job %s chunk %d: %v", e.JobID, e.Index, e.Err)
}

func (e *ChunkError) Unwrap() error { return e.Err }

// UploadNextPendingChunk uploads the lowest-index chunk that is pending or
// failed and returns its index. It fails with common.ErrNoPendingChunks when
// every chunk is uploaded or already being uploaded.
func (c *Coordinator) UploadNextPendingChunk(ctx context.Context, s *Session) (int, error) {
	s.mu.Lock()
	if err := s.checkActive(); err != nil {
		s.mu.Unlock()
		return -1, err
	}
	idx, ok := s.claim(models.ChunkPending, models.ChunkFailed)
	s.mu.Unlock()

	if !ok {
		return -1, fmt.Errorf("job %s: %w", s.job.ID, common.ErrNoPendingChunks)
	}
	return idx, c.failIfFatal(ctx, s, c.uploadClaimed(ctx, s, idx))
}

// UploadChunk uploads one chunk by index. An uploaded chunk is reported with
// common.ErrAlreadyUploaded and the remote store is not contacted.
func (c *Coordinator) UploadChunk(ctx context.Context, s *Session, idx int) error {
	s.mu.Lock()
	if err := s.checkActive(); err != nil {
		s.mu.Unlock()
		return err
	}
	if idx < 0 || idx >= len(s.chunks) {
		s.mu.Unlock()
		return fmt.Errorf("job %s has %d chunks, no chunk %d", s.job.ID, len(s.chunks), idx)
	}
	switch {
	case s.chunks[idx].Status == models.ChunkUploaded:
		s.mu.Unlock()
		return &ChunkError{JobID: s.job.ID, Index: idx, Err: common.ErrAlreadyUploaded}
	case s.inflight[idx]:
		s.mu.Unlock()
		return &ChunkError{JobID: s.job.ID, Index: idx, Err: common.ErrChunkInFlight}
	}
	s.inflight[idx] = true
	s.mu.Unlock()

	return c.failIfFatal(ctx, s, c.uploadClaimed(ctx, s, idx))
}

// UploadAll uploads every chunk that is not yet uploaded, at most
// MaxConcurrentUploads at a time. It stops dispatching after the first
// failure or when ctx is done. Every chunk error is inspected: a rejected
// chunk, or one whose transient failures outlived a non-zero retry limit,
// fails the job. Cancellation and failures under the single-attempt default
// leave it resumable.
func (c *Coordinator) UploadAll(ctx context.Context, s *Session) error {
	s.mu.Lock()
	if err := s.checkActive(); err != nil {
		s.mu.Unlock()
		return err
	}
	todo := s.remaining()
	s.mu.Unlock()

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(c.opts.MaxConcurrentUploads)

	var (
		errsMu sync.Mutex
		errs   []error
	)

	for _, idx := range todo {
		if gctx.Err() != nil {
			break
		}
		s.mu.Lock()
		if s.inflight[idx] || s.chunks[idx].Status == models.ChunkUploaded {
			s.mu.Unlock()
			continue
		}
		s.inflight[idx] = true
		s.mu.Unlock()

		g.Go(func() error {
			err := c.uploadClaimed(gctx, s, idx)
			if err != nil {
				errsMu.Lock()
				errs = append(errs, err)
				errsMu.Unlock()
			}
			return err
		})
	}

	err := g.Wait()
	if err == nil {
		return ctx.Err()
	}
	for _, e := range errs {
		if c.fatal(ctx, e) {
			return c.failIfFatal(ctx, s, e)
		}
	}
	return err
}

// fatal reports whether a chunk failure ends the job.
func (c *Coordinator) fatal(ctx context.Context, err error) bool {
	var ce *ChunkError
	if !errors.As(err, &ce) {
		return false
	}
	if errors.Is(err, common.ErrRemoteRejected) {
		return true
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) || ctx.Err() != nil {
		return false
	}
	return c.opts.Retry.MaxRetries > 0 && common.IsRetryable(err)
}

// failIfFatal journals the job failed, with the chunk in the detail, when
// err is fatal. err is returned unchanged otherwise.
func (c *Coordinator) failIfFatal(ctx context.Context, s *Session, err error) error {
	if err == nil || !c.fatal(ctx, err) {
		return err
	}
	var ce *ChunkError
	errors.As(err, &ce)
	c.logger.Error(ctx, "chunk failed permanently, failing job", "job_id", s.job.ID, "chunk", ce.Index, "error", ce.Err)
	if jerr := c.setJobStatus(ctx, s, models.JobFailed, ce.Error()); jerr != nil {
		return errors.Join(err, jerr)
	}
	return err
}

// uploadClaimed uploads a chunk the caller has marked in flight.
func (c *Coordinator) uploadClaimed(ctx context.Context, s *Session, idx int) error {
	defer s.release(idx)

	if s.src == nil {
		return fmt.Errorf("job %s: session has no source file", s.job.ID)
	}

	r := s.plan.Range(idx)
	body := make([]byte, r.Len())
	if n, err := s.src.ReadAt(body, r.Start); n < len(body) {
		return &ChunkError{JobID: s.job.ID, Index: idx, Err: fmt.Errorf("read %s at %d: %w", s.job.FilePath, r.Start, err)}
	}
	hash := treehash.ChunkHash(body)

	attempt := 0
	err := retry.Do(ctx, c.opts.Retry.backoff(), func(ctx context.Context) error {
		attempt++
		err := c.store.UploadPart(ctx, s.job.ID, r, body, hash)
		if err == nil {
			return nil
		}

		c.logger.Warn(ctx, "chunk upload failed",
			"job_id", s.job.ID, "chunk", idx, "status", models.ChunkFailed, "attempt", attempt, "error", err)
		if jerr := c.setChunk(ctx, s, idx, models.ChunkFailed, treehash.Digest{}, err.Error()); jerr != nil {
			return jerr
		}
		if common.IsRetryable(err) {
			return retry.RetryableError(err)
		}
		return err
	})
	if err != nil {
		return &ChunkError{JobID: s.job.ID, Index: idx, Err: err}
	}

	if err := c.setChunk(ctx, s, idx, models.ChunkUploaded, hash, ""); err != nil {
		return &ChunkError{JobID: s.job.ID, Index: idx, Err: err}
	}
	c.logger.Debug(ctx, "chunk uploaded",
		"job_id", s.job.ID, "chunk", idx, "status", models.ChunkUploaded, "range", r.String(), "hash", hash.String())

	if c.opts.OnProgress != nil {
		s.mu.Lock()
		p := s.progress()
		s.mu.Unlock()
		c.opts.OnProgress(p)
	}
	return nil
}

// setChunk journals a chunk transition and applies it to the session.
func (c *Coordinator) setChunk(ctx context.Context, s *Session, idx int, st models.ChunkStatus, hash treehash.Digest, detail string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	e := &models.JournalEntry{
		JobID:     s.job.ID,
		Entity:    models.EntityChunk,
		EntityKey: journal.ChunkKey(idx),
		Status:    string(st),
		Detail:    detail,
	}
	if st == models.ChunkUploaded {
		e.Hash = hash.String()
	}
	if err := c.journal.Append(context.WithoutCancel(ctx), e); err != nil {
		return fmt.Errorf("journal chunk %d %s: %w", idx, st, err)
	}

	rec := s.chunks[idx]
	rec.Status = st
	switch st {
	case models.ChunkUploaded:
		rec.Hash = hash
		rec.Attempts = 0
	case models.ChunkFailed:
		rec.Attempts++
	}
	return nil
}

// checkActive fails unless chunks may be uploaded. Callers hold s.mu.
func (s *Session) checkActive() error {
	if s.job.Status != models.JobInProgress {
		return fmt.Errorf("job %s is %s: %w", s.job.ID, s.job.Status, common.ErrJobTerminal)
	}
	return nil
}
