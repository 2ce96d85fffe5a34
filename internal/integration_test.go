// Package internal contains integration tests that verify the store layers
// work together: configuration feeding the document store, the session
// lifecycle writing through the lock, and the event log recording every
// transition.
package internal

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/hiveplane/hive/internal/docstore"
	"github.com/hiveplane/hive/internal/errors"
	"github.com/hiveplane/hive/internal/eventlog"
	"github.com/hiveplane/hive/internal/mailbox"
	"github.com/hiveplane/hive/internal/project"
	"github.com/hiveplane/hive/internal/session"
)

// buildStack wires the full layout the CLI uses under one root.
func buildStack(t *testing.T) (*session.Manager, *project.Area, *mailbox.Queue, *fakeClock) {
	t.Helper()
	root := t.TempDir()

	sessionsDir := filepath.Join(root, "sessions")
	store, err := docstore.New(sessionsDir)
	if err != nil {
		t.Fatalf("docstore.New: %v", err)
	}
	events, err := eventlog.New(sessionsDir)
	if err != nil {
		t.Fatalf("eventlog.New: %v", err)
	}

	clock := &fakeClock{t: time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)}
	manager := session.NewManager(store, events, session.WithClock(clock.now))

	area, err := project.NewArea(filepath.Join(root, "projects"))
	if err != nil {
		t.Fatalf("project.NewArea: %v", err)
	}

	return manager, area, mailbox.NewQueue(filepath.Join(root, "queue")), clock
}

type fakeClock struct {
	t time.Time
}

func (c *fakeClock) now() time.Time          { return c.t }
func (c *fakeClock) advance(d time.Duration) { c.t = c.t.Add(d) }

// TestSessionLifecycleEndToEnd walks a session from creation through
// path-scoped updates, handoff, and cleanup, checking the event log at
// each step.
func TestSessionLifecycleEndToEnd(t *testing.T) {
	manager, area, queue, clock := buildStack(t)

	// Shared project state the session will reference.
	if err := area.Set("apollo", project.DocConfig, "ci.provider", "buildkite"); err != nil {
		t.Fatalf("project Set: %v", err)
	}

	s, err := manager.Create(session.CreateOptions{
		Mode:    session.ModeDevelopment,
		Owner:   "agent-1",
		Project: "apollo",
	})
	if err != nil {
		t.Fatalf("Create: %v", err)
	}

	// Orchestration state goes in via path updates; lifecycle fields must
	// survive untouched.
	if err := manager.Update(s.ID, "execution.tasks.build", map[string]any{"state": "running"}); err != nil {
		t.Fatalf("Update: %v", err)
	}
	got, err := manager.Get(s.ID)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if got.Mode != session.ModeDevelopment || got.Status != session.StatusActive {
		t.Fatalf("lifecycle fields clobbered: %+v", got)
	}

	// Work moves to a second agent.
	clock.advance(time.Hour)
	successor, err := manager.Handoff(s.ID, "", map[string]any{"resume": "build"}, "shift change")
	if err != nil {
		t.Fatalf("Handoff: %v", err)
	}
	if successor.ParentSession != s.ID {
		t.Errorf("parent = %q, want %q", successor.ParentSession, s.ID)
	}

	// The successor signals the original owner through the queue.
	if _, err := queue.Enqueue(mailbox.Message{
		From: successor.ID,
		To:   "agent-1",
		Body: "picked up the build",
	}); err != nil {
		t.Fatalf("Enqueue: %v", err)
	}
	pending, err := queue.For("agent-1")
	if err != nil || len(pending) != 1 {
		t.Fatalf("queue.For: %v, %d pending", err, len(pending))
	}

	// The completed source session expires and is swept; the successor,
	// freshly heartbeated, survives.
	clock.advance(25 * time.Hour)
	if _, err := manager.Heartbeat(successor.ID, nil); err != nil {
		t.Fatalf("Heartbeat: %v", err)
	}
	removed, err := manager.Cleanup(false)
	if err != nil {
		t.Fatalf("Cleanup: %v", err)
	}
	if len(removed) != 1 || removed[0] != s.ID {
		t.Fatalf("removed = %v, want [%s]", removed, s.ID)
	}
	if _, err := manager.Get(s.ID); !errors.Is(err, errors.ErrNotFound) {
		t.Errorf("source session survived cleanup: %v", err)
	}

	// Event log on the successor shows the received handoff and heartbeat.
	evs, err := manager.Events(successor.ID)
	if err != nil {
		t.Fatalf("Events: %v", err)
	}
	var types []string
	for _, ev := range evs {
		types = append(types, ev.Type)
	}
	if len(types) < 2 || types[0] != eventlog.TypeHandoffReceived {
		t.Errorf("event types = %v", types)
	}
}
