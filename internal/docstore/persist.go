package docstore

import (
	"encoding/json"
	"os"
	"path/filepath"

	"github.com/hiveplane/hive/internal/errors"
)

// readDocument deserializes the JSON file at path. A missing file reports
// ErrNotFound; a file that exists but cannot be decoded as a JSON object
// reports ErrCorruptDocument, never ErrNotFound.
func readDocument(path string) (map[string]any, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, errors.Wrap(errors.ErrNotFound, "document %s", filepath.Base(path))
		}
		return nil, errors.WrapCause(errors.ErrIO, err, "reading %s", filepath.Base(path))
	}

	var doc map[string]any
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, errors.WrapCause(errors.ErrCorruptDocument, err, "decoding %s", filepath.Base(path))
	}
	if doc == nil {
		return nil, errors.Wrap(errors.ErrCorruptDocument, "%s: document root is null", filepath.Base(path))
	}
	return doc, nil
}

// writeDocument serializes a document and commits it atomically: the bytes
// go to a uniquely named temp file in the same directory, are flushed, and
// the temp file is renamed onto the target. A failed write leaves the
// previous committed version intact.
func writeDocument(path string, doc map[string]any) error {
	data, err := json.MarshalIndent(doc, "", "  ")
	if err != nil {
		return errors.WrapCause(errors.ErrIO, err, "encoding %s", filepath.Base(path))
	}
	return atomicWriteFile(path, data, 0o644)
}

// atomicWriteFile writes data to a file atomically by writing to a temporary
// file first, then renaming. The temp name carries a random suffix from
// CreateTemp, so concurrent writers never collide on the staging file even
// if locking is bypassed.
func atomicWriteFile(path string, data []byte, perm os.FileMode) error {
	dir := filepath.Dir(path)

	tmpFile, err := os.CreateTemp(dir, ".tmp-"+filepath.Base(path)+"-*")
	if err != nil {
		return errors.WrapCause(errors.ErrIO, err, "creating temp file in %s", dir)
	}
	tmpPath := tmpFile.Name()

	// Clean up temp file on any error
	success := false
	defer func() {
		if !success {
			os.Remove(tmpPath)
		}
	}()

	if _, err := tmpFile.Write(data); err != nil {
		tmpFile.Close()
		return errors.WrapCause(errors.ErrIO, err, "writing temp file")
	}

	if err := tmpFile.Sync(); err != nil {
		tmpFile.Close()
		return errors.WrapCause(errors.ErrIO, err, "syncing temp file")
	}

	if err := tmpFile.Close(); err != nil {
		return errors.WrapCause(errors.ErrIO, err, "closing temp file")
	}

	if err := os.Chmod(tmpPath, perm); err != nil {
		return errors.WrapCause(errors.ErrIO, err, "setting permissions")
	}

	// The rename is the only step visible to concurrent readers.
	if err := os.Rename(tmpPath, path); err != nil {
		return errors.WrapCause(errors.ErrIO, err, "committing %s", filepath.Base(path))
	}

	success = true
	return nil
}

// removeFile deletes a file, treating a missing file as success.
func removeFile(path string) error {
	if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
		return errors.WrapCause(errors.ErrIO, err, "removing %s", filepath.Base(path))
	}
	return nil
}
