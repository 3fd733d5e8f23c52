// Package upload drives multipart uploads of single files to a remote.Store.
//
// A Coordinator moves each job through
//
//	initiated -> in_progress -> completing -> completed
//	                         \-> aborted | failed
//
// and records every job and chunk transition in a journal.Journal before the
// in-memory state changes, so that an interrupted upload can be resumed from
// the journal alone. Chunk uploads may run on a bounded worker pool; journal
// writes for one job are serialized by the job's Session. On completion the
// aggregate tree hash is checked against the remote store's own hash and the
// archive is recorded in an archiveindex.Repository.
package upload
