// Package docstore provides a file-backed, path-addressable JSON document
// store with atomic writes and cross-process mutual exclusion.
//
// Each document is one JSON file named by its ID within the store directory,
// with a sibling advisory lock file. Writers acquire the lock, read the
// current document, apply a mutation, and persist via write-to-temp-then-
// rename, so a concurrent reader never observes a partial write. Lock
// acquisition is time-bounded; on timeout the operation fails with
// errors.ErrLockTimeout and the caller is expected to retry with backoff.
//
// Read-only operations (Load, Get, Query, IDs) do not take the lock: they
// see a point-in-time snapshot, which rename atomicity guarantees is always
// a complete committed version.
//
// # Layout
//
//	<dir>/<id>.json   the document
//	<dir>/<id>.lock   advisory lock (present only while held or after a crash)
//
// Stale locks left by dead processes are detected via PID liveness and
// reaped automatically during acquisition.
package docstore
