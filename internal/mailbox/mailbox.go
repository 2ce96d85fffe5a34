// Package mailbox is the file-per-message queue boundary. Producers drop one
// JSON file per pending message under the queue directory; the file name
// encodes priority and enqueue time so a plain lexical listing yields
// delivery order. Message bodies are opaque, no validation beyond addressing.
package mailbox

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/hiveplane/hive/internal/errors"
)

// BroadcastRecipient is the "to" value for messages addressed to everyone.
const BroadcastRecipient = "broadcast"

const messageExt = ".json"

// Message is one queued communication. Lower Priority values deliver first.
type Message struct {
	ID        string         `json:"id"`
	From      string         `json:"from"`
	To        string         `json:"to"`
	Priority  int            `json:"priority"`
	Body      string         `json:"body"`
	Timestamp time.Time      `json:"timestamp"`
	Metadata  map[string]any `json:"metadata,omitempty"`
}

// IsBroadcast reports whether the message is addressed to all consumers.
func (m Message) IsBroadcast() bool {
	return m.To == BroadcastRecipient
}

// Pending pairs a queued message with the file name used to dequeue it.
type Pending struct {
	Name    string
	Message Message
}

// Queue is a directory of pending message files.
type Queue struct {
	dir string
}

// NewQueue creates a Queue rooted at dir.
func NewQueue(dir string) *Queue {
	return &Queue{dir: dir}
}

// Dir returns the queue directory.
func (q *Queue) Dir() string { return q.dir }

// Enqueue writes a message file atomically. Empty ID and Timestamp fields
// are populated. The file name is <priority>-<timestamp>-<id>.json with the
// priority zero-padded and the timestamp in a lexically sortable form, so
// name order is delivery order.
func (q *Queue) Enqueue(msg Message) (string, error) {
	if msg.From == "" {
		return "", errors.New("mailbox: message From is required")
	}
	if msg.To == "" {
		return "", errors.New("mailbox: message To is required")
	}
	if msg.Priority < 0 || msg.Priority > 99 {
		return "", errors.Wrap(errors.ErrTypeMismatch, "priority %d out of range [0,99]", msg.Priority)
	}
	if msg.ID == "" {
		msg.ID = uuid.NewString()
	}
	if msg.Timestamp.IsZero() {
		msg.Timestamp = time.Now().UTC()
	}

	if err := os.MkdirAll(q.dir, 0o755); err != nil {
		return "", errors.WrapCause(errors.ErrIO, err, "creating queue directory %s", q.dir)
	}

	data, err := json.MarshalIndent(msg, "", "  ")
	if err != nil {
		return "", errors.WrapCause(errors.ErrIO, err, "encoding message %s", msg.ID)
	}

	name := fmt.Sprintf("%02d-%s-%s%s",
		msg.Priority,
		msg.Timestamp.UTC().Format("20060102T150405.000000000"),
		msg.ID,
		messageExt,
	)

	tmp, err := os.CreateTemp(q.dir, ".tmp-msg-*")
	if err != nil {
		return "", errors.WrapCause(errors.ErrIO, err, "creating temp file in %s", q.dir)
	}
	tmpName := tmp.Name()
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return "", errors.WrapCause(errors.ErrIO, err, "writing message %s", msg.ID)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return "", errors.WrapCause(errors.ErrIO, err, "syncing message %s", msg.ID)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return "", errors.WrapCause(errors.ErrIO, err, "closing message %s", msg.ID)
	}
	if err := os.Rename(tmpName, filepath.Join(q.dir, name)); err != nil {
		os.Remove(tmpName)
		return "", errors.WrapCause(errors.ErrIO, err, "publishing message %s", msg.ID)
	}
	return name, nil
}

// List returns all pending messages in delivery order: priority ascending,
// then enqueue time. Unreadable or malformed files are skipped.
func (q *Queue) List() ([]Pending, error) {
	entries, err := os.ReadDir(q.dir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, errors.WrapCause(errors.ErrIO, err, "listing queue %s", q.dir)
	}

	var names []string
	for _, entry := range entries {
		name := entry.Name()
		if entry.IsDir() || strings.HasPrefix(name, ".") || !strings.HasSuffix(name, messageExt) {
			continue
		}
		names = append(names, name)
	}
	sort.Strings(names)

	pending := make([]Pending, 0, len(names))
	for _, name := range names {
		data, err := os.ReadFile(filepath.Join(q.dir, name))
		if err != nil {
			continue
		}
		var msg Message
		if err := json.Unmarshal(data, &msg); err != nil {
			continue
		}
		pending = append(pending, Pending{Name: name, Message: msg})
	}
	return pending, nil
}

// For returns pending messages addressed to a recipient, including
// broadcasts, in delivery order.
func (q *Queue) For(recipient string) ([]Pending, error) {
	all, err := q.List()
	if err != nil {
		return nil, err
	}
	var out []Pending
	for _, p := range all {
		if p.Message.To == recipient || p.Message.IsBroadcast() {
			out = append(out, p)
		}
	}
	return out, nil
}

// Dequeue removes a pending message file by name. Idempotent.
func (q *Queue) Dequeue(name string) error {
	if strings.ContainsAny(name, "/\\") {
		return errors.Wrap(errors.ErrInvalidPath, "message name %q", name)
	}
	if err := os.Remove(filepath.Join(q.dir, name)); err != nil && !os.IsNotExist(err) {
		return errors.WrapCause(errors.ErrIO, err, "removing message %s", name)
	}
	return nil
}
