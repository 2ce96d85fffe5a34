package docstore

import (
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/hiveplane/hive/internal/errors"
	"github.com/hiveplane/hive/internal/logging"
	"github.com/hiveplane/hive/internal/pathexpr"
)

const (
	// DocumentExt is the file extension for document files.
	DocumentExt = ".json"
	// LockExt is the file extension for advisory lock files.
	LockExt = ".lock"

	// DefaultLockTimeout bounds how long a mutator waits for the per-document lock.
	DefaultLockTimeout = 5 * time.Second
	// DefaultRetryInterval is the polling interval while waiting for the lock.
	DefaultRetryInterval = 25 * time.Millisecond
)

// Store is a directory of JSON documents addressed by ID. All mutating
// operations take the per-document advisory lock; reads are lock-free
// point-in-time snapshots. Safe for concurrent use from multiple goroutines
// and multiple processes.
type Store struct {
	dir           string
	lockTimeout   time.Duration
	retryInterval time.Duration
	logger        *logging.Logger
}

// Option configures a Store.
type Option func(*Store)

// WithLockTimeout bounds lock acquisition for mutating operations.
func WithLockTimeout(d time.Duration) Option {
	return func(s *Store) { s.lockTimeout = d }
}

// WithRetryInterval sets the lock polling interval.
func WithRetryInterval(d time.Duration) Option {
	return func(s *Store) { s.retryInterval = d }
}

// WithLogger attaches a structured logger.
func WithLogger(logger *logging.Logger) Option {
	return func(s *Store) { s.logger = logger }
}

// New creates a Store rooted at the given directory, creating it if needed.
func New(dir string, opts ...Option) (*Store, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, errors.WrapCause(errors.ErrIO, err, "creating store directory %s", dir)
	}

	s := &Store{
		dir:           dir,
		lockTimeout:   DefaultLockTimeout,
		retryInterval: DefaultRetryInterval,
		logger:        logging.NopLogger(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

// Dir returns the directory this store is rooted at.
func (s *Store) Dir() string { return s.dir }

func (s *Store) docPath(id string) string  { return filepath.Join(s.dir, id+DocumentExt) }
func (s *Store) lockPath(id string) string { return filepath.Join(s.dir, id+LockExt) }

// validateID rejects IDs that would escape the store directory.
func validateID(id string) error {
	if id == "" {
		return errors.Wrap(errors.ErrNotFound, "empty document ID")
	}
	if strings.ContainsAny(id, "/\\") || id == "." || id == ".." {
		return errors.Wrap(errors.ErrInvalidPath, "document ID %q contains path separators", id)
	}
	return nil
}

// Load returns a point-in-time snapshot of a document without locking.
func (s *Store) Load(id string) (map[string]any, error) {
	if err := validateID(id); err != nil {
		return nil, err
	}
	return readDocument(s.docPath(id))
}

// Save persists a document atomically without the read-modify-write cycle.
// Most callers want Update; Save is for writers that already hold the full
// intended document state.
func (s *Store) Save(id string, doc map[string]any) error {
	if err := validateID(id); err != nil {
		return err
	}
	return writeDocument(s.docPath(id), doc)
}

// Exists reports whether a document file is present.
func (s *Store) Exists(id string) bool {
	if err := validateID(id); err != nil {
		return false
	}
	_, err := os.Stat(s.docPath(id))
	return err == nil
}

// IDs returns the sorted IDs of all documents in the store.
func (s *Store) IDs() ([]string, error) {
	entries, err := os.ReadDir(s.dir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, errors.WrapCause(errors.ErrIO, err, "listing %s", s.dir)
	}

	var ids []string
	for _, entry := range entries {
		name := entry.Name()
		if entry.IsDir() || !strings.HasSuffix(name, DocumentExt) || strings.HasPrefix(name, ".") {
			continue
		}
		ids = append(ids, strings.TrimSuffix(name, DocumentExt))
	}
	sort.Strings(ids)
	return ids, nil
}

// Update runs a read-modify-write cycle under the per-document lock: load
// the current document (or, with create, synthesize an empty one), apply fn,
// and persist atomically. Any error from fn aborts the write and is returned
// unchanged. This is the primitive every mutation goes through, so two
// updates of the same ID are totally ordered and lost updates cannot occur.
func (s *Store) Update(id string, create bool, fn func(doc map[string]any) error) error {
	if err := validateID(id); err != nil {
		return err
	}

	lock, err := acquireLock(s.lockPath(id), id, s.lockTimeout, s.retryInterval, s.logger)
	if err != nil {
		return err
	}
	defer func() { _ = lock.release() }()

	doc, err := readDocument(s.docPath(id))
	if err != nil {
		if !errors.Is(err, errors.ErrNotFound) || !create {
			return err
		}
		doc = map[string]any{}
	}

	if err := fn(doc); err != nil {
		return err
	}

	return writeDocument(s.docPath(id), doc)
}

// Delete removes a document and its lock file. Idempotent: deleting a
// missing document is not an error. The per-document lock is held for the
// removal so a concurrent mutator cannot interleave.
func (s *Store) Delete(id string) error {
	if err := validateID(id); err != nil {
		return err
	}

	lock, err := acquireLock(s.lockPath(id), id, s.lockTimeout, s.retryInterval, s.logger)
	if err != nil {
		return err
	}
	// The lock file itself is removed below; release only has to handle the
	// failure paths before that point.
	defer func() { _ = lock.release() }()

	if err := removeFile(s.docPath(id)); err != nil {
		return err
	}
	s.logger.Info("document deleted", "document_id", id)
	return nil
}

// DeleteIf removes a document only if cond approves the current state,
// evaluated under the per-document lock. This closes the race between an
// unlocked scan deciding a document is removable and the removal itself:
// a concurrent mutation lands either before cond sees the document or after
// the lock is released. Returns whether the document was removed. A missing
// document reports (false, nil).
func (s *Store) DeleteIf(id string, cond func(doc map[string]any) (bool, error)) (bool, error) {
	if err := validateID(id); err != nil {
		return false, err
	}

	lock, err := acquireLock(s.lockPath(id), id, s.lockTimeout, s.retryInterval, s.logger)
	if err != nil {
		return false, err
	}
	defer func() { _ = lock.release() }()

	doc, err := readDocument(s.docPath(id))
	if err != nil {
		if errors.Is(err, errors.ErrNotFound) {
			return false, nil
		}
		return false, err
	}

	ok, err := cond(doc)
	if err != nil || !ok {
		return false, err
	}

	if err := removeFile(s.docPath(id)); err != nil {
		return false, err
	}
	s.logger.Info("document deleted", "document_id", id)
	return true, nil
}

// Get evaluates a path expression against a document snapshot. Dotted paths
// return the single addressed value; $-rooted expressions return the single
// match, the list of matches, or ErrNotFound for zero matches. An empty path
// returns the whole document.
func (s *Store) Get(id, path string) (any, error) {
	doc, err := s.Load(id)
	if err != nil {
		return nil, err
	}
	if path == "" {
		return doc, nil
	}
	if strings.HasPrefix(path, "$") {
		return pathexpr.QueryOne(doc, path)
	}
	return pathexpr.Get(doc, path)
}

// Query evaluates a $-rooted expression and returns all matches.
func (s *Store) Query(id, expr string) ([]any, error) {
	doc, err := s.Load(id)
	if err != nil {
		return nil, err
	}
	return pathexpr.Query(doc, expr)
}

// Set writes a value at a dotted path under the document lock, creating the
// document and intermediate objects as needed.
func (s *Store) Set(id, path string, value any) error {
	return s.Update(id, true, func(doc map[string]any) error {
		return pathexpr.Set(doc, path, value)
	})
}

// Merge deep-merges an object into the object at a dotted path under the
// document lock. Merging into a non-object value reports ErrTypeMismatch.
func (s *Store) Merge(id, path string, value map[string]any) error {
	return s.Update(id, true, func(doc map[string]any) error {
		return pathexpr.Merge(doc, path, value)
	})
}

// DeleteAt removes the value at a dotted path under the document lock.
func (s *Store) DeleteAt(id, path string) error {
	return s.Update(id, false, func(doc map[string]any) error {
		return pathexpr.Delete(doc, path)
	})
}
