package models

import "time"

// Entity distinguishes job-level and chunk-level journal entries.
type Entity string

const (
	EntityJob   Entity = "job"
	EntityChunk Entity = "chunk"
)

// JournalEntry is one immutable state transition.
//
// For job entries EntityKey is empty; for chunk entries it is the decimal
// chunk index. The job parameters (FilePath..Description) are only filled on
// the entry that records JobInitiated.
type JournalEntry struct {
	Seq       int64
	JobID     string
	Entity    Entity
	EntityKey string
	Status    string
	Hash      string
	Detail    string
	CreatedAt time.Time

	FilePath    string
	TotalSize   int64
	ChunkSize   int64
	Vault       string
	Description string
}
