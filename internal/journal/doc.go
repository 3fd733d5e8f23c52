// Package journal persists the append-only log of upload state transitions
// and reconstructs job and chunk state from it.
//
// # Overview
//
// Every transition of a job or one of its chunks is one JournalEntry. Entries
// are inserted in their own transaction and never updated or deleted (the
// SQLite schema enforces this with triggers). Replaying a job's entries in
// sequence order yields its current models.Job and chunk records; later
// entries for the same chunk index supersede earlier ones.
//
// Key Types
//
//   - type Journal: contract used by the upload coordinator
//   - type SQLiteJournal: SQLite implementation over dbx
//   - type State: pure replay fold shared by implementations
//
// Typical Usage
//
//	j := journal.NewSQLiteJournal(db)
//	_ = j.Append(ctx, &models.JournalEntry{JobID: id, Entity: models.EntityJob, Status: "in_progress"})
//	job, chunks, _ := j.Replay(ctx, id)
//	ids, _ := j.FindResumable(ctx)
package journal
