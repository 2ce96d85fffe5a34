package docstore

import (
	"encoding/json"
	"os"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/hiveplane/hive/internal/errors"
	"github.com/hiveplane/hive/internal/logging"
)

// LockInfo is the serialized content of an advisory lock file.
type LockInfo struct {
	DocumentID string    `json:"document_id"`
	PID        int       `json:"pid"`
	Hostname   string    `json:"hostname"`
	Token      string    `json:"token"`
	AcquiredAt time.Time `json:"acquired_at"`
}

// fileLock is a held advisory lock on one document.
type fileLock struct {
	info     LockInfo
	lockPath string
	logger   *logging.Logger
	released bool
}

// acquireLock blocks until the lock file can be created exclusively, the
// timeout elapses, or a stale lock is reaped. On timeout it reports
// ErrLockTimeout.
func acquireLock(lockPath, documentID string, timeout, retryInterval time.Duration, logger *logging.Logger) (*fileLock, error) {
	hostname, err := os.Hostname()
	if err != nil {
		hostname = "unknown"
	}

	info := LockInfo{
		DocumentID: documentID,
		PID:        os.Getpid(),
		Hostname:   hostname,
		Token:      uuid.NewString(),
	}

	deadline := time.Now().Add(timeout)
	for {
		info.AcquiredAt = time.Now()
		ok, err := tryCreateLock(lockPath, info)
		if err != nil {
			return nil, err
		}
		if ok {
			logger.Debug("lock acquired", "document_id", documentID, "pid", info.PID)
			return &fileLock{info: info, lockPath: lockPath, logger: logger}, nil
		}

		// Lock file exists. Reap it if the holder is dead, otherwise wait.
		if existing, err := readLockInfo(lockPath); err == nil {
			if !isProcessAlive(existing.PID) {
				if reapStaleLock(lockPath, existing) {
					logger.Warn("stale lock cleaned",
						"document_id", documentID,
						"old_pid", existing.PID,
					)
				}
				continue
			}
		}

		if time.Now().After(deadline) {
			logger.Warn("failed to acquire lock",
				"document_id", documentID,
				"timeout", timeout.String(),
			)
			return nil, errors.Wrap(errors.ErrLockTimeout, "document %s after %s", documentID, timeout)
		}
		time.Sleep(retryInterval)
	}
}

// reapStaleLock removes a lock file whose holder was observed dead.
// Removal is quarantine-then-delete: the file is renamed to a unique name
// first, so when several waiters observe the same dead holder only one
// rename succeeds, and a fresh lock created at lockPath in the meantime is
// never deleted on the strength of a stale observation. If the quarantined
// file turns out to belong to a different, live holder, it is restored with
// a hard link, which fails atomically if yet another lock has appeared.
// Reports whether the stale lock was removed.
func reapStaleLock(lockPath string, observed *LockInfo) bool {
	quarantine := lockPath + ".reap-" + uuid.NewString()
	if err := os.Rename(lockPath, quarantine); err != nil {
		// Another waiter reaped first, or the holder released.
		return false
	}

	current, err := readLockInfo(quarantine)
	if err == nil && current.Token != observed.Token && isProcessAlive(current.PID) {
		// The file at lockPath was no longer the stale lock: a new holder
		// acquired between our read and the rename. Put it back.
		_ = os.Link(quarantine, lockPath)
		_ = os.Remove(quarantine)
		return false
	}

	_ = os.Remove(quarantine)
	return true
}

// tryCreateLock attempts a single O_EXCL creation of the lock file.
// Returns false without error if the file already exists.
func tryCreateLock(lockPath string, info LockInfo) (bool, error) {
	data, err := json.MarshalIndent(info, "", "  ")
	if err != nil {
		return false, errors.WrapCause(errors.ErrIO, err, "marshaling lock info")
	}

	f, err := os.OpenFile(lockPath, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o644)
	if err != nil {
		if os.IsExist(err) {
			return false, nil
		}
		return false, errors.WrapCause(errors.ErrIO, err, "creating lock file")
	}
	defer f.Close()

	if _, err := f.Write(data); err != nil {
		os.Remove(lockPath)
		return false, errors.WrapCause(errors.ErrIO, err, "writing lock file")
	}
	return true, nil
}

// release removes the lock file if this holder still owns it.
// Safe to call multiple times.
func (l *fileLock) release() error {
	if l == nil || l.released {
		return nil
	}
	l.released = true

	existing, err := readLockInfo(l.lockPath)
	if err != nil {
		// Lock file gone or unreadable - nothing to release.
		return nil
	}
	if existing.Token != l.info.Token {
		// Someone reaped and re-acquired; not ours to remove.
		l.logger.Warn("lock ownership lost before release",
			"document_id", l.info.DocumentID,
		)
		return nil
	}

	if err := removeFile(l.lockPath); err != nil {
		return err
	}
	l.logger.Debug("lock released", "document_id", l.info.DocumentID)
	return nil
}

// readLockInfo reads and parses a lock file.
func readLockInfo(lockPath string) (*LockInfo, error) {
	data, err := os.ReadFile(lockPath)
	if err != nil {
		return nil, err
	}
	var info LockInfo
	if err := json.Unmarshal(data, &info); err != nil {
		return nil, err
	}
	return &info, nil
}

// Holder returns the current lock holder for a document, or nil if the
// document is unlocked or the lock is stale.
func (s *Store) Holder(id string) *LockInfo {
	info, err := readLockInfo(s.lockPath(id))
	if err != nil {
		return nil
	}
	if !isProcessAlive(info.PID) {
		return nil
	}
	return info
}

// isProcessAlive checks if a process with the given PID is still running.
func isProcessAlive(pid int) bool {
	// On Unix, sending signal 0 checks if process exists without affecting it
	process, err := os.FindProcess(pid)
	if err != nil {
		return false
	}

	err = process.Signal(syscall.Signal(0))
	return err == nil
}
