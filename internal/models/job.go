// Package models defines the upload job, chunk, journal and archive-index
// records shared by the journal, coordinator and index packages.
package models

import (
	"time"

	"github.com/jladan/glacier-upload/internal/chunker"
	"github.com/jladan/glacier-upload/internal/treehash"
)

// JobStatus is the lifecycle state of an upload job.
type JobStatus string

const (
	JobInitiated  JobStatus = "initiated"
	JobInProgress JobStatus = "in_progress"
	JobCompleting JobStatus = "completing"
	JobCompleted  JobStatus = "completed"
	JobAborted    JobStatus = "aborted"
	JobFailed     JobStatus = "failed"
)

// Resumable reports whether a job in this state may be picked up again.
func (s JobStatus) Resumable() bool {
	return s == JobInitiated || s == JobInProgress
}

// Terminal reports whether no further transitions are allowed.
func (s JobStatus) Terminal() bool {
	return s == JobCompleted || s == JobAborted || s == JobFailed
}

// Job is one multipart upload of a single file.
type Job struct {
	// ID is the opaque upload id issued by the remote store.
	ID string

	FilePath  string
	TotalSize int64
	// ChunkSize is fixed for the lifetime of the job.
	ChunkSize int64

	// Vault is the remote destination (Glacier vault or S3 bucket).
	Vault       string
	Description string

	Status    JobStatus
	CreatedAt time.Time
	UpdatedAt time.Time
}

// Plan returns the chunk layout of the job.
func (j *Job) Plan() (chunker.Plan, error) {
	return chunker.NewPlan(j.TotalSize, j.ChunkSize)
}

// ChunkStatus is the state of a single chunk.
type ChunkStatus string

const (
	ChunkPending  ChunkStatus = "pending"
	ChunkUploaded ChunkStatus = "uploaded"
	ChunkFailed   ChunkStatus = "failed"
)

// ChunkRecord tracks one chunk of a job.
type ChunkRecord struct {
	JobID string
	Index int
	Range chunker.Range
	// Hash is set once the chunk has been uploaded.
	Hash   treehash.Digest
	Status ChunkStatus
	// Attempts counts failed uploads since the last success.
	Attempts int
}

// ArchiveIndexRow records one completed archive.
type ArchiveIndexRow struct {
	FilePath    string
	Description string
	ArchiveID   string
	CompletedAt time.Time

	JobID    string
	TreeHash string
	Size     int64
}
