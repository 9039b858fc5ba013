// Package state persists configuration documents and their backups.
//
// Responsibilities:
//   - Store loads and saves exactly one document: the active configuration.
//   - Every save replaces the file atomically (temp file, fsync, rename) so a
//     reader or a crash only ever observes the old or the new content.
//   - Backups are immutable timestamped copies kept next to the document and
//     ordered by ID; the newest backup sorts last.
//   - FileStore serialises writers across processes with a lock file so the
//     CLI and a running service never interleave writes.
//
// The hotconfig package owns validation and in-memory state; this package only
// moves bytes.
package state
