// Package eventlog provides the append-only per-session event log.
//
// Each session has one JSONL file (one JSON object per line) next to its
// document. Appends go through a single O_APPEND write of one complete
// record, so concurrent writers may interleave at the line level but a
// partial record can never occur. Readers tolerate the log growing
// concurrently and skip malformed lines rather than aborting - the log is
// observability data, not a source of truth.
package eventlog

import (
	"bufio"
	"encoding/json"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	"github.com/hiveplane/hive/internal/errors"
)

// FileSuffix is appended to a session ID to form its event log file name.
const FileSuffix = ".events.jsonl"

// Event type names, in the "category.action" convention.
const (
	TypeSessionCreated   = "session.created"
	TypeHeartbeat        = "session.heartbeat"
	TypeHandoffCompleted = "session.handoff_completed"
	TypeHandoffReceived  = "session.handoff_received"
	TypeRecovered        = "session.recovered"
	TypeSuspended        = "session.suspended"
	TypeExpired          = "session.expired"
	TypeCleaned          = "session.cleaned"
	TypeUpdated          = "session.updated"
	TypeDocumentUpdated  = "document.updated"
)

// Event is one immutable record in a session's log. Ordering is the log's
// physical append order.
type Event struct {
	ID        string         `json:"id"`
	Timestamp time.Time      `json:"timestamp"`
	Type      string         `json:"type"`
	Source    string         `json:"source,omitempty"`
	Severity  string         `json:"severity,omitempty"`
	Data      map[string]any `json:"data,omitempty"`
	SessionID string         `json:"session_id"`
}

// Log reads and appends per-session event files within a directory.
type Log struct {
	dir string
}

// New creates a Log rooted at the given directory, creating it if needed.
func New(dir string) (*Log, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, errors.WrapCause(errors.ErrIO, err, "creating event log directory %s", dir)
	}
	return &Log{dir: dir}, nil
}

// Path returns the event log file path for a session.
func (l *Log) Path(sessionID string) string {
	return filepath.Join(l.dir, sessionID+FileSuffix)
}

// Append writes one event record. A missing ID is filled with a fresh UUID
// and a zero timestamp with the current time. The write is a single
// O_APPEND syscall of the full line.
func (l *Log) Append(sessionID string, ev Event) error {
	if ev.ID == "" {
		ev.ID = uuid.NewString()
	}
	if ev.Timestamp.IsZero() {
		ev.Timestamp = time.Now().UTC()
	}
	ev.SessionID = sessionID
	if ev.Severity == "" {
		ev.Severity = "info"
	}

	data, err := json.Marshal(ev)
	if err != nil {
		return errors.WrapCause(errors.ErrIO, err, "marshaling event")
	}
	data = append(data, '\n')

	f, err := os.OpenFile(l.Path(sessionID), os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		return errors.WrapCause(errors.ErrIO, err, "opening event log for %s", sessionID)
	}
	defer f.Close()

	if _, err := f.Write(data); err != nil {
		return errors.WrapCause(errors.ErrIO, err, "appending event for %s", sessionID)
	}
	return nil
}

// Read returns all events for a session in append order, skipping malformed
// lines. A missing log file yields an empty slice, not an error.
func (l *Log) Read(sessionID string) ([]Event, error) {
	f, err := os.Open(l.Path(sessionID))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, errors.WrapCause(errors.ErrIO, err, "opening event log for %s", sessionID)
	}
	defer f.Close()

	events, _, err := decodeEvents(f)
	return events, err
}

// Tail returns the last n events for a session.
func (l *Log) Tail(sessionID string, n int) ([]Event, error) {
	events, err := l.Read(sessionID)
	if err != nil {
		return nil, err
	}
	if n > 0 && len(events) > n {
		events = events[len(events)-n:]
	}
	return events, nil
}

// Remove deletes a session's event log file. Idempotent.
func (l *Log) Remove(sessionID string) error {
	if err := os.Remove(l.Path(sessionID)); err != nil && !os.IsNotExist(err) {
		return errors.WrapCause(errors.ErrIO, err, "removing event log for %s", sessionID)
	}
	return nil
}

// decodeEvents reads JSONL records from r, skipping lines that do not parse.
// It returns the number of bytes consumed so Follow can resume mid-file.
func decodeEvents(f *os.File) ([]Event, int64, error) {
	var events []Event
	var consumed int64

	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for scanner.Scan() {
		line := scanner.Bytes()
		consumed += int64(len(line)) + 1
		if len(line) == 0 {
			continue
		}
		var ev Event
		if err := json.Unmarshal(line, &ev); err != nil {
			// Malformed line - skip rather than failing the whole read.
			continue
		}
		events = append(events, ev)
	}
	if err := scanner.Err(); err != nil {
		return events, consumed, errors.WrapCause(errors.ErrIO, err, "scanning event log")
	}
	return events, consumed, nil
}
