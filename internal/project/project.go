// Package project exposes the per-project shared state area: a small fixed
// set of documents (config, epics, sprints) under projects/<id>/, each with
// the document store's atomicity and locking guarantees. Sessions reference
// projects by ID; the area itself carries no lifecycle.
package project

import (
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	"github.com/hiveplane/hive/internal/docstore"
	"github.com/hiveplane/hive/internal/errors"
	"github.com/hiveplane/hive/internal/logging"
)

// Document names within a project area.
const (
	DocConfig  = "config"
	DocEpics   = "epics"
	DocSprints = "sprints"
)

var knownDocs = map[string]bool{
	DocConfig:  true,
	DocEpics:   true,
	DocSprints: true,
}

// Area manages the project directories under a root. Each project gets its
// own docstore so locks and temp files stay inside the project directory.
type Area struct {
	root   string
	logger *logging.Logger

	mu     sync.Mutex
	stores map[string]*docstore.Store
}

// Option configures an Area.
type Option func(*Area)

// WithLogger attaches a structured logger.
func WithLogger(logger *logging.Logger) Option {
	return func(a *Area) { a.logger = logger }
}

// NewArea creates the project area rooted at dir.
func NewArea(dir string, opts ...Option) (*Area, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, errors.WrapCause(errors.ErrIO, err, "creating project area %s", dir)
	}
	a := &Area{
		root:   dir,
		logger: logging.NopLogger(),
		stores: make(map[string]*docstore.Store),
	}
	for _, opt := range opts {
		opt(a)
	}
	return a, nil
}

// validate rejects malformed project IDs and unknown document names.
func validate(projectID, doc string) error {
	if projectID == "" || strings.ContainsAny(projectID, "/\\") || projectID == "." || projectID == ".." {
		return errors.Wrap(errors.ErrInvalidPath, "project ID %q", projectID)
	}
	if !knownDocs[doc] {
		return errors.Wrap(errors.ErrInvalidPath, "unknown project document %q (valid: config, epics, sprints)", doc)
	}
	return nil
}

// store returns (creating on first use) the docstore for one project.
func (a *Area) store(projectID string) (*docstore.Store, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if s, ok := a.stores[projectID]; ok {
		return s, nil
	}
	s, err := docstore.New(filepath.Join(a.root, projectID), docstore.WithLogger(a.logger))
	if err != nil {
		return nil, err
	}
	a.stores[projectID] = s
	return s, nil
}

// Get evaluates a path expression against a project document. An empty path
// returns the whole document.
func (a *Area) Get(projectID, doc, path string) (any, error) {
	if err := validate(projectID, doc); err != nil {
		return nil, err
	}
	s, err := a.store(projectID)
	if err != nil {
		return nil, err
	}
	return s.Get(doc, path)
}

// Set writes a value at a dotted path, creating the document if missing.
func (a *Area) Set(projectID, doc, path string, value any) error {
	if err := validate(projectID, doc); err != nil {
		return err
	}
	s, err := a.store(projectID)
	if err != nil {
		return err
	}
	return s.Set(doc, path, value)
}

// Merge deep-merges an object at a dotted path.
func (a *Area) Merge(projectID, doc, path string, value map[string]any) error {
	if err := validate(projectID, doc); err != nil {
		return err
	}
	s, err := a.store(projectID)
	if err != nil {
		return err
	}
	return s.Merge(doc, path, value)
}

// DeleteAt removes the value at a dotted path.
func (a *Area) DeleteAt(projectID, doc, path string) error {
	if err := validate(projectID, doc); err != nil {
		return err
	}
	s, err := a.store(projectID)
	if err != nil {
		return err
	}
	return s.DeleteAt(doc, path)
}

// List returns the sorted IDs of all projects with a directory in the area.
func (a *Area) List() ([]string, error) {
	entries, err := os.ReadDir(a.root)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, errors.WrapCause(errors.ErrIO, err, "listing %s", a.root)
	}
	var ids []string
	for _, entry := range entries {
		if !entry.IsDir() || strings.HasPrefix(entry.Name(), ".") {
			continue
		}
		ids = append(ids, entry.Name())
	}
	sort.Strings(ids)
	return ids, nil
}
