package journal

import (
	"fmt"
	"strconv"

	"github.com/jladan/glacier-upload/internal/common"
	"github.com/jladan/glacier-upload/internal/models"
	"github.com/jladan/glacier-upload/internal/treehash"
)

// State folds journal entries of one job into its current state.
type State struct {
	Job    *models.Job
	Chunks map[int]*models.ChunkRecord
}

// Apply advances the state by one entry. The first entry of a job must be the
// job's initiated entry carrying its parameters.
func (s *State) Apply(e *models.JournalEntry) error {
	if s.Job == nil {
		if e.Entity != models.EntityJob || models.JobStatus(e.Status) != models.JobInitiated {
			return fmt.Errorf("journal for job %s does not start with an initiated entry (seq %d)", e.JobID, e.Seq)
		}
		return s.init(e)
	}

	if e.JobID != s.Job.ID {
		return fmt.Errorf("entry seq %d belongs to job %s, not %s", e.Seq, e.JobID, s.Job.ID)
	}

	switch e.Entity {
	case models.EntityJob:
		s.Job.Status = models.JobStatus(e.Status)
		s.Job.UpdatedAt = e.CreatedAt
	case models.EntityChunk:
		return s.applyChunk(e)
	default:
		return fmt.Errorf("entry seq %d: unknown entity %q", e.Seq, e.Entity)
	}
	return nil
}

func (s *State) init(e *models.JournalEntry) error {
	s.Job = &models.Job{
		ID:          e.JobID,
		FilePath:    e.FilePath,
		TotalSize:   e.TotalSize,
		ChunkSize:   e.ChunkSize,
		Vault:       e.Vault,
		Description: e.Description,
		Status:      models.JobInitiated,
		CreatedAt:   e.CreatedAt,
		UpdatedAt:   e.CreatedAt,
	}
	s.Chunks = make(map[int]*models.ChunkRecord)

	plan, err := s.Job.Plan()
	if err != nil {
		return fmt.Errorf("job %s: %w", e.JobID, err)
	}
	for i, r := range plan.Chunks() {
		s.Chunks[i] = &models.ChunkRecord{JobID: e.JobID, Index: i, Range: r, Status: models.ChunkPending}
	}
	return nil
}

func (s *State) applyChunk(e *models.JournalEntry) error {
	idx, err := strconv.Atoi(e.EntityKey)
	if err != nil {
		return fmt.Errorf("entry seq %d: bad chunk key %q: %w", e.Seq, e.EntityKey, err)
	}
	rec, ok := s.Chunks[idx]
	if !ok {
		return fmt.Errorf("entry seq %d: chunk %d outside plan of job %s", e.Seq, idx, s.Job.ID)
	}

	switch st := models.ChunkStatus(e.Status); st {
	case models.ChunkUploaded:
		d, err := treehash.ParseDigest(e.Hash)
		if err != nil {
			return fmt.Errorf("entry seq %d: %w", e.Seq, err)
		}
		rec.Hash = d
		rec.Status = st
		rec.Attempts = 0
	case models.ChunkFailed:
		rec.Status = st
		rec.Attempts++
	case models.ChunkPending:
		rec.Status = st
	default:
		return fmt.Errorf("entry seq %d: unknown chunk status %q", e.Seq, e.Status)
	}
	return nil
}

// Result returns the folded state, or ErrJobNotFound if nothing was applied.
func (s *State) Result(jobID string) (*models.Job, map[int]*models.ChunkRecord, error) {
	if s.Job == nil {
		return nil, nil, fmt.Errorf("job %s: %w", jobID, common.ErrJobNotFound)
	}
	return s.Job, s.Chunks, nil
}

// ChunkKey renders a chunk index as a journal entity key.
func ChunkKey(index int) string { return strconv.Itoa(index) }
