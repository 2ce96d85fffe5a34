// Package logging provides structured logging for the hive document store.
package logging

import (
	"compress/gzip"
	"fmt"
	"io"
	"os"
	"sync"
)

// RotationConfig holds configuration for log rotation.
type RotationConfig struct {
	// MaxSizeMB is the maximum size of a log file in megabytes before rotation.
	// A value of 0 disables rotation.
	MaxSizeMB int
	// MaxBackups is the number of old log files to keep.
	// A value of 0 keeps no backups.
	MaxBackups int
	// Compress determines whether rotated log files are gzip compressed.
	Compress bool
}

// DefaultRotationConfig returns a RotationConfig with sensible defaults.
func DefaultRotationConfig() RotationConfig {
	return RotationConfig{
		MaxSizeMB:  10,
		MaxBackups: 3,
		Compress:   false,
	}
}

// RotatingWriter wraps a log file and rotates it when it exceeds the
// configured size. It is safe for concurrent use.
type RotatingWriter struct {
	mu sync.Mutex

	filePath   string
	maxSizeB   int64
	maxBackups int
	compress   bool

	file        *os.File
	currentSize int64
}

// NewRotatingWriter creates a RotatingWriter that appends to the given file
// path and rotates when the file exceeds config.MaxSizeMB megabytes.
//
// If MaxSizeMB is 0, rotation is disabled and the writer behaves like a
// regular append-only file writer.
func NewRotatingWriter(filePath string, config RotationConfig) (*RotatingWriter, error) {
	rw := &RotatingWriter{
		filePath:   filePath,
		maxSizeB:   int64(config.MaxSizeMB) * 1024 * 1024,
		maxBackups: config.MaxBackups,
		compress:   config.Compress,
	}

	if err := rw.open(); err != nil {
		return nil, err
	}
	return rw, nil
}

// open opens (or creates) the current log file and records its size.
func (rw *RotatingWriter) open() error {
	f, err := os.OpenFile(rw.filePath, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		return fmt.Errorf("failed to open log file: %w", err)
	}

	info, err := f.Stat()
	if err != nil {
		f.Close()
		return fmt.Errorf("failed to stat log file: %w", err)
	}

	rw.file = f
	rw.currentSize = info.Size()
	return nil
}

// Write appends to the log file, rotating first if the write would push the
// file past the size limit.
func (rw *RotatingWriter) Write(p []byte) (int, error) {
	rw.mu.Lock()
	defer rw.mu.Unlock()

	if rw.file == nil {
		return 0, fmt.Errorf("rotating writer is closed")
	}

	if rw.maxSizeB > 0 && rw.currentSize+int64(len(p)) > rw.maxSizeB {
		if err := rw.rotate(); err != nil {
			return 0, err
		}
	}

	n, err := rw.file.Write(p)
	rw.currentSize += int64(n)
	return n, err
}

// rotate shifts backup files up by one index and reopens a fresh log file.
// Must be called with rw.mu held.
func (rw *RotatingWriter) rotate() error {
	if err := rw.file.Close(); err != nil {
		return fmt.Errorf("failed to close log file for rotation: %w", err)
	}
	rw.file = nil

	if rw.maxBackups > 0 {
		// Drop the oldest backup, then shift the rest up.
		oldest := rw.backupPath(rw.maxBackups)
		if err := os.Remove(oldest); err != nil && !os.IsNotExist(err) {
			return fmt.Errorf("failed to remove oldest backup: %w", err)
		}
		for i := rw.maxBackups - 1; i >= 1; i-- {
			src := rw.backupPath(i)
			if _, err := os.Stat(src); err != nil {
				continue
			}
			if err := os.Rename(src, rw.backupPath(i+1)); err != nil {
				return fmt.Errorf("failed to shift backup: %w", err)
			}
		}

		if rw.compress {
			if err := compressFile(rw.filePath, rw.backupPath(1)); err != nil {
				return err
			}
			if err := os.Remove(rw.filePath); err != nil && !os.IsNotExist(err) {
				return fmt.Errorf("failed to remove rotated log: %w", err)
			}
		} else {
			if err := os.Rename(rw.filePath, rw.backupPath(1)); err != nil {
				return fmt.Errorf("failed to rotate log file: %w", err)
			}
		}
	} else {
		// No backups kept - truncate by removing.
		if err := os.Remove(rw.filePath); err != nil && !os.IsNotExist(err) {
			return fmt.Errorf("failed to remove log file: %w", err)
		}
	}

	return rw.open()
}

// backupPath returns the path for the backup file at the given index.
func (rw *RotatingWriter) backupPath(index int) string {
	path := fmt.Sprintf("%s.%d", rw.filePath, index)
	if rw.compress {
		path += ".gz"
	}
	return path
}

// compressFile gzips src into dst.
func compressFile(src, dst string) error {
	in, err := os.Open(src)
	if err != nil {
		return fmt.Errorf("failed to open log for compression: %w", err)
	}
	defer in.Close()

	out, err := os.Create(dst)
	if err != nil {
		return fmt.Errorf("failed to create compressed backup: %w", err)
	}
	defer out.Close()

	gz := gzip.NewWriter(out)
	if _, err := io.Copy(gz, in); err != nil {
		gz.Close()
		return fmt.Errorf("failed to compress log: %w", err)
	}
	return gz.Close()
}

// Close flushes and closes the current log file.
func (rw *RotatingWriter) Close() error {
	rw.mu.Lock()
	defer rw.mu.Unlock()

	if rw.file == nil {
		return nil
	}

	if err := rw.file.Sync(); err != nil {
		rw.file.Close()
		rw.file = nil
		return fmt.Errorf("failed to sync log file: %w", err)
	}
	err := rw.file.Close()
	rw.file = nil
	return err
}
