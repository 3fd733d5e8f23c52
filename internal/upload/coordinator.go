package upload

import (
	"context"
	"errors"
	"fmt"

	"github.com/jladan/glacier-upload/internal/archiveindex"
	"github.com/jladan/glacier-upload/internal/chunker"
	"github.com/jladan/glacier-upload/internal/common"
	"github.com/jladan/glacier-upload/internal/journal"
	"github.com/jladan/glacier-upload/internal/logging"
	"github.com/jladan/glacier-upload/internal/models"
	"github.com/jladan/glacier-upload/internal/remote"
)

// StartRequest describes a new upload job.
type StartRequest struct {
	FilePath    string
	Vault       string
	Description string
	ChunkSize   int64
}

// Coordinator owns the job state machine. One Coordinator may drive many
// jobs; each job is represented by its own Session.
type Coordinator struct {
	store   remote.Store
	journal journal.Journal
	index   archiveindex.Repository
	logger  logging.Logger
	opts    Options
}

// NewCoordinator wires a Coordinator. A non-positive MaxConcurrentUploads
// falls back to the default.
func NewCoordinator(store remote.Store, j journal.Journal, index archiveindex.Repository, logger logging.Logger, opts Options) *Coordinator {
	if opts.MaxConcurrentUploads <= 0 {
		opts.MaxConcurrentUploads = common.DefaultMaxConcurrentUploads
	}
	return &Coordinator{store: store, journal: j, index: index, logger: logger, opts: opts}
}

// Start validates the request, initiates a remote multipart upload and
// journals the new job as initiated and then in_progress.
func (c *Coordinator) Start(ctx context.Context, req StartRequest) (*Session, error) {
	if err := chunker.ValidateChunkSize(req.ChunkSize); err != nil {
		return nil, err
	}

	src, err := openSource(req.FilePath)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", req.FilePath, err)
	}
	s, err := c.start(ctx, req, src)
	if err != nil {
		_ = src.Close()
		return nil, err
	}
	return s, nil
}

func (c *Coordinator) start(ctx context.Context, req StartRequest, src Source) (*Session, error) {
	fi, err := src.Stat()
	if err != nil {
		return nil, fmt.Errorf("stat %s: %w", req.FilePath, err)
	}
	if fi.Size() == 0 {
		return nil, fmt.Errorf("%s: %w", req.FilePath, common.ErrEmptyInput)
	}
	plan, err := chunker.NewPlan(fi.Size(), req.ChunkSize)
	if err != nil {
		return nil, err
	}

	jobID, err := c.store.Initiate(ctx, remote.InitiateRequest{
		Vault:       req.Vault,
		Description: req.Description,
		ChunkSize:   req.ChunkSize,
		TotalSize:   fi.Size(),
	})
	if err != nil {
		if !errors.Is(err, common.ErrRemoteInit) {
			err = fmt.Errorf("%w: %w", common.ErrRemoteInit, err)
		}
		return nil, err
	}

	job := models.Job{
		ID:          jobID,
		FilePath:    req.FilePath,
		TotalSize:   fi.Size(),
		ChunkSize:   req.ChunkSize,
		Vault:       req.Vault,
		Description: req.Description,
		Status:      models.JobInitiated,
	}
	chunks := make([]*models.ChunkRecord, 0, plan.Count())
	for i, r := range plan.Chunks() {
		chunks = append(chunks, &models.ChunkRecord{JobID: jobID, Index: i, Range: r, Status: models.ChunkPending})
	}
	s := newSession(job, plan, chunks, src)

	init := &models.JournalEntry{
		JobID:       jobID,
		Entity:      models.EntityJob,
		Status:      string(models.JobInitiated),
		FilePath:    job.FilePath,
		TotalSize:   job.TotalSize,
		ChunkSize:   job.ChunkSize,
		Vault:       job.Vault,
		Description: job.Description,
	}
	if err := c.journal.Append(ctx, init); err != nil {
		c.abortRemote(ctx, jobID)
		return nil, fmt.Errorf("journal job %s: %w", jobID, err)
	}
	s.job.CreatedAt = init.CreatedAt
	s.job.UpdatedAt = init.CreatedAt

	if err := c.setJobStatus(ctx, s, models.JobInProgress, ""); err != nil {
		return nil, err
	}

	c.logger.Info(ctx, "upload started",
		"job_id", jobID, "file", job.FilePath, "size", job.TotalSize,
		"chunk_size", job.ChunkSize, "chunks", plan.Count())
	return s, nil
}

// Resume rebuilds a session from the journal. A non-zero chunkSize must match
// the job's original chunk size. The source file must still have the size it
// had when the job started.
func (c *Coordinator) Resume(ctx context.Context, jobID string, chunkSize int64) (*Session, error) {
	job, records, err := c.journal.Replay(ctx, jobID)
	if err != nil {
		return nil, err
	}
	if chunkSize != 0 && chunkSize != job.ChunkSize {
		return nil, fmt.Errorf("job %s uses %d byte chunks, got %d: %w", jobID, job.ChunkSize, chunkSize, common.ErrChunkSizeMismatch)
	}
	if !job.Status.Resumable() {
		return nil, fmt.Errorf("job %s is %s: %w", jobID, job.Status, common.ErrJobTerminal)
	}

	plan, err := job.Plan()
	if err != nil {
		return nil, err
	}

	src, err := openSource(job.FilePath)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", job.FilePath, err)
	}
	fi, err := src.Stat()
	if err != nil {
		_ = src.Close()
		return nil, fmt.Errorf("stat %s: %w", job.FilePath, err)
	}
	if fi.Size() != job.TotalSize {
		_ = src.Close()
		return nil, fmt.Errorf("%s is %d bytes, job %s expects %d: %w", job.FilePath, fi.Size(), jobID, job.TotalSize, common.ErrSourceChanged)
	}

	s := newSession(*job, plan, orderedChunks(records, plan.Count()), src)
	if job.Status == models.JobInitiated {
		if err := c.setJobStatus(ctx, s, models.JobInProgress, "resumed"); err != nil {
			_ = src.Close()
			return nil, err
		}
	}

	p := s.progress()
	c.logger.Info(ctx, "upload resumed", "job_id", jobID, "uploaded", p.Done, "chunks", p.Total)
	return s, nil
}

// PendingJobs lists resumable jobs, oldest first.
func (c *Coordinator) PendingJobs(ctx context.Context) ([]*models.Job, error) {
	ids, err := c.journal.FindResumable(ctx)
	if err != nil {
		return nil, err
	}
	jobs := make([]*models.Job, 0, len(ids))
	for _, id := range ids {
		job, _, err := c.journal.Replay(ctx, id)
		if err != nil {
			return nil, err
		}
		jobs = append(jobs, job)
	}
	return jobs, nil
}

// Abort cancels the remote upload and journals the job as aborted. Remote
// failures are logged and do not prevent the local transition. Aborting an
// aborted job is a no-op; a completed job cannot be aborted.
func (c *Coordinator) Abort(ctx context.Context, s *Session) error {
	s.mu.Lock()
	st := s.job.Status
	s.mu.Unlock()

	switch st {
	case models.JobCompleted:
		return fmt.Errorf("job %s: %w", s.job.ID, common.ErrNotAbortable)
	case models.JobAborted:
		return nil
	}

	c.abortRemote(ctx, s.job.ID)
	if err := c.setJobStatus(ctx, s, models.JobAborted, ""); err != nil {
		return err
	}
	c.logger.Info(ctx, "upload aborted", "job_id", s.job.ID)
	return nil
}

// AbortJob aborts a job known only by id, without opening its source file.
func (c *Coordinator) AbortJob(ctx context.Context, jobID string) error {
	job, records, err := c.journal.Replay(ctx, jobID)
	if err != nil {
		return err
	}
	plan, err := job.Plan()
	if err != nil {
		return err
	}
	return c.Abort(ctx, newSession(*job, plan, orderedChunks(records, plan.Count()), nil))
}

// Run uploads a file end to end.
func (c *Coordinator) Run(ctx context.Context, req StartRequest) (*models.ArchiveIndexRow, error) {
	s, err := c.Start(ctx, req)
	if err != nil {
		return nil, err
	}
	defer s.Close()
	return c.finish(ctx, s)
}

// ResumeAndFinish resumes a job and drives it to completion.
func (c *Coordinator) ResumeAndFinish(ctx context.Context, jobID string, chunkSize int64) (*models.ArchiveIndexRow, error) {
	s, err := c.Resume(ctx, jobID, chunkSize)
	if err != nil {
		return nil, err
	}
	defer s.Close()
	return c.finish(ctx, s)
}

func (c *Coordinator) finish(ctx context.Context, s *Session) (*models.ArchiveIndexRow, error) {
	if err := c.UploadAll(ctx, s); err != nil {
		return nil, err
	}
	return c.Finalize(ctx, s)
}

func (c *Coordinator) abortRemote(ctx context.Context, jobID string) {
	if err := c.store.Abort(context.WithoutCancel(ctx), jobID); err != nil {
		c.logger.Warn(ctx, "remote abort failed", "job_id", jobID, "error", err)
	}
}

// setJobStatus journals a job transition and applies it to the session.
func (c *Coordinator) setJobStatus(ctx context.Context, s *Session, st models.JobStatus, detail string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	e := &models.JournalEntry{JobID: s.job.ID, Entity: models.EntityJob, Status: string(st), Detail: detail}
	if err := c.journal.Append(context.WithoutCancel(ctx), e); err != nil {
		return fmt.Errorf("journal job %s %s: %w", s.job.ID, st, err)
	}
	s.job.Status = st
	s.job.UpdatedAt = e.CreatedAt
	return nil
}

func orderedChunks(records map[int]*models.ChunkRecord, n int) []*models.ChunkRecord {
	out := make([]*models.ChunkRecord, n)
	for i := range n {
		out[i] = records[i]
	}
	return out
}
