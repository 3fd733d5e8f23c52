// Package cli implements the glacier-upload command line.
//
// Each subcommand opens an App for the duration of one run. The App holds
// the state database (journal and, with the sqlite backend, the archive
// index) and connects to the remote store lazily, so pending, journal,
// lookup and list work offline.
//
// Commands:
//   - upload FILE: start a new multipart upload and drive it to completion
//   - resume [JOB_ID]: continue one or all interrupted uploads
//   - abort JOB_ID: cancel an upload remotely and locally
//   - pending, journal JOB_ID: inspect the local journal
//   - lookup FILE, list: query the archive index
//   - treehash FILE, version: local utilities
//
// Execute returns a process exit code; see the Exit constants.
package cli
