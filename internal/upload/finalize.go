package upload

import (
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/jladan/glacier-upload/internal/common"
	"github.com/jladan/glacier-upload/internal/models"
	"github.com/jladan/glacier-upload/internal/treehash"
)

// Finalize completes the remote upload once every chunk is uploaded.
//
// The aggregate tree hash is computed from the chunk digests in index order.
// If the remote store reports a different hash the job is failed with
// common.ErrHashMismatch. On success the job is journaled completed and the
// archive is recorded in the index.
func (c *Coordinator) Finalize(ctx context.Context, s *Session) (*models.ArchiveIndexRow, error) {
	s.mu.Lock()
	if err := s.checkActive(); err != nil {
		s.mu.Unlock()
		return nil, err
	}
	if pending := s.remaining(); len(pending) > 0 {
		s.mu.Unlock()
		return nil, fmt.Errorf("job %s: %d of %d chunks not uploaded (first %d): %w",
			s.job.ID, len(pending), len(s.chunks), pending[0], common.ErrChunksPending)
	}
	digests := make([]treehash.Digest, len(s.chunks))
	for i, rec := range s.chunks {
		digests[i] = rec.Hash
	}
	job := s.job
	s.mu.Unlock()

	local, err := treehash.TreeHash(digests)
	if err != nil {
		return nil, err
	}

	if c.opts.VerifyFile {
		if err := c.verifySource(s, local); err != nil {
			c.logger.Error(ctx, "source verification failed", "job_id", job.ID, "error", err)
			c.abortRemote(ctx, job.ID)
			if jerr := c.setJobStatus(ctx, s, models.JobFailed, err.Error()); jerr != nil {
				return nil, errors.Join(err, jerr)
			}
			return nil, err
		}
	}

	if err := c.setJobStatus(ctx, s, models.JobCompleting, local.String()); err != nil {
		return nil, err
	}

	res, err := c.store.Complete(ctx, job.ID, job.TotalSize, local)
	if errors.Is(err, common.ErrRemoteUnverified) {
		archiveID := ""
		if res != nil {
			archiveID = res.ArchiveID
		}
		err = fmt.Errorf("job %s archive %q: %w", job.ID, archiveID, err)
		c.logger.Error(ctx, "archive created but not verified", "job_id", job.ID, "archive_id", archiveID, "error", err)
		if jerr := c.setJobStatus(ctx, s, models.JobFailed, err.Error()); jerr != nil {
			return nil, errors.Join(err, jerr)
		}
		return nil, err
	}
	if err != nil {
		if !errors.Is(err, common.ErrRemoteComplete) {
			err = fmt.Errorf("%w: %w", common.ErrRemoteComplete, err)
		}
		c.logger.Warn(ctx, "remote complete failed", "job_id", job.ID, "error", err)
		if jerr := c.setJobStatus(ctx, s, models.JobInProgress, err.Error()); jerr != nil {
			return nil, errors.Join(err, jerr)
		}
		return nil, err
	}

	if res.Hash != local {
		err := fmt.Errorf("job %s: local %s, remote %s: %w", job.ID, local, res.Hash, common.ErrHashMismatch)
		c.logger.Error(ctx, "tree hash mismatch", "job_id", job.ID, "archive_id", res.ArchiveID,
			"local", local.String(), "remote", res.Hash.String())
		if jerr := c.setJobStatus(ctx, s, models.JobFailed, err.Error()); jerr != nil {
			return nil, errors.Join(err, jerr)
		}
		return nil, err
	}

	if err := c.setJobStatus(ctx, s, models.JobCompleted, res.ArchiveID); err != nil {
		return nil, err
	}

	row := &models.ArchiveIndexRow{
		FilePath:    job.FilePath,
		Description: job.Description,
		ArchiveID:   res.ArchiveID,
		CompletedAt: s.Job().UpdatedAt,
		JobID:       job.ID,
		TreeHash:    local.String(),
		Size:        job.TotalSize,
	}
	if row.CompletedAt.IsZero() {
		row.CompletedAt = time.Now().UTC()
	}
	if err := c.index.Record(context.WithoutCancel(ctx), row); err != nil {
		c.logger.Error(ctx, "archive index write failed", "job_id", job.ID, "archive_id", res.ArchiveID, "error", err)
		return row, fmt.Errorf("record archive %s: %w", res.ArchiveID, err)
	}

	c.logger.Info(ctx, "upload completed",
		"job_id", job.ID, "status", models.JobCompleted, "archive_id", res.ArchiveID, "tree_hash", row.TreeHash)
	return row, nil
}

// verifySource re-hashes the whole source file and compares it with the
// aggregate of the uploaded chunk digests.
func (c *Coordinator) verifySource(s *Session, want treehash.Digest) error {
	if s.src == nil {
		return fmt.Errorf("job %s: session has no source file", s.job.ID)
	}
	h := treehash.New()
	if _, err := io.Copy(h, io.NewSectionReader(s.src, 0, s.job.TotalSize)); err != nil {
		return fmt.Errorf("hash %s: %w", s.job.FilePath, err)
	}
	if h.Size() != s.job.TotalSize {
		return fmt.Errorf("%s: read %d of %d bytes: %w", s.job.FilePath, h.Size(), s.job.TotalSize, common.ErrSourceChanged)
	}
	if got := h.Sum(); got != want {
		return fmt.Errorf("%s hashes to %s, uploaded chunks to %s: %w", s.job.FilePath, got, want, common.ErrHashMismatch)
	}
	return nil
}
