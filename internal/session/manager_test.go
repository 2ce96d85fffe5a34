package session

import (
	"testing"
	"time"

	"github.com/hiveplane/hive/internal/docstore"
	"github.com/hiveplane/hive/internal/errors"
	"github.com/hiveplane/hive/internal/eventlog"
)

// fakeClock is a settable time source for TTL tests.
type fakeClock struct {
	t time.Time
}

func (c *fakeClock) now() time.Time          { return c.t }
func (c *fakeClock) advance(d time.Duration) { c.t = c.t.Add(d) }

func newTestManager(t *testing.T, opts ...Option) (*Manager, *fakeClock) {
	t.Helper()
	dir := t.TempDir()
	store, err := docstore.New(dir)
	if err != nil {
		t.Fatalf("docstore.New: %v", err)
	}
	events, err := eventlog.New(dir)
	if err != nil {
		t.Fatalf("eventlog.New: %v", err)
	}
	clock := &fakeClock{t: time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)}
	opts = append([]Option{WithClock(clock.now)}, opts...)
	return NewManager(store, events, opts...), clock
}

// === create ===

func TestCreateAppliesModePresets(t *testing.T) {
	m, clock := newTestManager(t)

	s, err := m.Create(CreateOptions{Mode: ModeDevelopment, Owner: "agent-1", Project: "apollo"})
	if err != nil {
		t.Fatalf("Create: %v", err)
	}

	if s.Status != StatusActive {
		t.Errorf("status = %q, want %q", s.Status, StatusActive)
	}
	if s.Team != "engineering" {
		t.Errorf("team = %q, want engineering", s.Team)
	}
	if !s.AutoCleanup {
		t.Error("development sessions should auto-clean")
	}
	want := clock.t.Add(24 * time.Hour)
	if !s.Expiry.Equal(want) {
		t.Errorf("expiry = %v, want %v", s.Expiry, want)
	}
	if len(s.Handoffs) != 0 {
		t.Errorf("fresh session has %d handoff entries", len(s.Handoffs))
	}

	// Reloads through the store, exercising schema validation.
	got, err := m.Get(s.ID)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if got.Mode != ModeDevelopment || got.Project != "apollo" {
		t.Errorf("reloaded session = %+v", got)
	}

	evs, err := m.Events(s.ID)
	if err != nil {
		t.Fatalf("Events: %v", err)
	}
	if len(evs) != 1 || evs[0].Type != eventlog.TypeSessionCreated {
		t.Errorf("events = %+v, want one %s", evs, eventlog.TypeSessionCreated)
	}
}

func TestCreateRejectsUnknownMode(t *testing.T) {
	m, _ := newTestManager(t)
	if _, err := m.Create(CreateOptions{Mode: "turbo"}); !errors.Is(err, errors.ErrInvalidMode) {
		t.Errorf("err = %v, want ErrInvalidMode", err)
	}
}

func TestCreateEmergencyHasNoExpiry(t *testing.T) {
	m, clock := newTestManager(t)

	s, err := m.Create(CreateOptions{Mode: ModeEmergency, Owner: "oncall"})
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	if !s.Expiry.IsZero() {
		t.Errorf("emergency expiry = %v, want zero", s.Expiry)
	}
	if s.AutoCleanup {
		t.Error("emergency sessions must not auto-clean")
	}

	clock.advance(30 * 24 * time.Hour)
	if s.IsExpired(clock.t) {
		t.Error("emergency session expired after a month")
	}
}

// === heartbeat ===

func TestHeartbeatExtendsExpiry(t *testing.T) {
	m, clock := newTestManager(t)

	s, err := m.Create(CreateOptions{Mode: ModeConfig, Owner: "cfg"})
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	created := clock.t

	clock.advance(30 * time.Minute)
	s, err = m.Heartbeat(s.ID, nil)
	if err != nil {
		t.Fatalf("Heartbeat: %v", err)
	}

	// Expiry slides to heartbeat+TTL; it does not accumulate.
	want := created.Add(30*time.Minute + time.Hour)
	if !s.Expiry.Equal(want) {
		t.Errorf("expiry = %v, want %v", s.Expiry, want)
	}
}

func TestHeartbeatReactivates(t *testing.T) {
	m, clock := newTestManager(t)

	s, err := m.Create(CreateOptions{Mode: ModeConfig, Owner: "cfg"})
	if err != nil {
		t.Fatalf("Create: %v", err)
	}

	// Let the 1h TTL lapse entirely.
	clock.advance(2 * time.Hour)
	if got, _ := m.Get(s.ID); got.IsActive(clock.t) {
		t.Fatal("session should be expired before heartbeat")
	}

	s, err = m.Heartbeat(s.ID, map[string]any{"phase": "apply"})
	if err != nil {
		t.Fatalf("Heartbeat: %v", err)
	}
	if !s.IsActive(clock.t) {
		t.Error("heartbeat did not reactivate expired session")
	}
	info, ok := s.Context["status_info"].(map[string]any)
	if !ok || info["phase"] != "apply" {
		t.Errorf("status_info = %v", s.Context["status_info"])
	}
}

func TestHeartbeatMissingSession(t *testing.T) {
	m, _ := newTestManager(t)
	if _, err := m.Heartbeat("ghost", nil); !errors.Is(err, errors.ErrNotFound) {
		t.Errorf("err = %v, want ErrNotFound", err)
	}
}

// === handoff ===

func TestHandoffChainPreservesHistory(t *testing.T) {
	m, _ := newTestManager(t)

	a, err := m.Create(CreateOptions{Mode: ModeDevelopment, Owner: "a", Project: "apollo"})
	if err != nil {
		t.Fatalf("Create: %v", err)
	}

	b, err := m.Handoff(a.ID, "session-b", map[string]any{"ticket": "J-12"}, "end of shift")
	if err != nil {
		t.Fatalf("Handoff a->b: %v", err)
	}
	c, err := m.Handoff(b.ID, "session-c", nil, "")
	if err != nil {
		t.Fatalf("Handoff b->c: %v", err)
	}

	if len(c.Handoffs) != 2 {
		t.Fatalf("handoff history length = %d, want 2", len(c.Handoffs))
	}
	if c.Handoffs[0].From != a.ID || c.Handoffs[0].To != "session-b" {
		t.Errorf("first entry = %+v", c.Handoffs[0])
	}
	if c.Handoffs[1].From != "session-b" || c.Handoffs[1].To != "session-c" {
		t.Errorf("second entry = %+v", c.Handoffs[1])
	}
	if c.Owner != "session-c" {
		t.Errorf("final owner = %q, want session-c", c.Owner)
	}
	if c.ParentSession != "session-b" {
		t.Errorf("parent = %q, want session-b", c.ParentSession)
	}
	if c.Context["ticket"] != "J-12" {
		t.Errorf("handoff data not inherited: %v", c.Context)
	}

	// The source is completed, never deleted.
	src, err := m.Get(a.ID)
	if err != nil {
		t.Fatalf("Get source: %v", err)
	}
	if src.Status != StatusCompleted {
		t.Errorf("source status = %q, want %q", src.Status, StatusCompleted)
	}
}

func TestHandoffToExistingSession(t *testing.T) {
	m, _ := newTestManager(t)

	a, _ := m.Create(CreateOptions{Mode: ModeSprint, Owner: "a"})
	b, _ := m.Create(CreateOptions{Mode: ModeSprint, Owner: "b"})

	got, err := m.Handoff(a.ID, b.ID, map[string]any{"board": "42"}, "")
	if err != nil {
		t.Fatalf("Handoff: %v", err)
	}
	if got.ID != b.ID {
		t.Errorf("target = %q, want %q", got.ID, b.ID)
	}
	if got.Owner != b.ID {
		t.Errorf("owner = %q, want %q", got.Owner, b.ID)
	}
	if len(got.Handoffs) != 1 {
		t.Errorf("history length = %d, want 1", len(got.Handoffs))
	}
	if got.Context["board"] != "42" {
		t.Errorf("context = %v", got.Context)
	}
}

func TestHandoffToSelfRejected(t *testing.T) {
	m, _ := newTestManager(t)
	a, _ := m.Create(CreateOptions{Mode: ModeDevelopment, Owner: "a"})
	if _, err := m.Handoff(a.ID, a.ID, nil, ""); err == nil {
		t.Error("self handoff should fail")
	}
}

// === recover ===

func TestRecoverSuspendedSession(t *testing.T) {
	m, clock := newTestManager(t)

	s, _ := m.Create(CreateOptions{Mode: ModeDevelopment, Owner: "a"})
	if _, err := m.Suspend(s.ID); err != nil {
		t.Fatalf("Suspend: %v", err)
	}

	got, err := m.Recover(s.ID, map[string]any{"resume_from": "step-3"})
	if err != nil {
		t.Fatalf("Recover: %v", err)
	}
	if !got.IsActive(clock.t) {
		t.Error("recovered session not active")
	}
	if got.Context["resume_from"] != "step-3" {
		t.Errorf("context = %v", got.Context)
	}
}

func TestRecoverActiveSessionFails(t *testing.T) {
	m, _ := newTestManager(t)
	s, _ := m.Create(CreateOptions{Mode: ModeDevelopment, Owner: "a"})
	if _, err := m.Recover(s.ID, nil); !errors.Is(err, errors.ErrAlreadyActive) {
		t.Errorf("err = %v, want ErrAlreadyActive", err)
	}
}

func TestRecoverExpiredSession(t *testing.T) {
	m, clock := newTestManager(t)

	s, _ := m.Create(CreateOptions{Mode: ModeConfig, Owner: "a"})
	clock.advance(3 * time.Hour)

	got, err := m.Recover(s.ID, nil)
	if err != nil {
		t.Fatalf("Recover: %v", err)
	}
	if !got.IsActive(clock.t) {
		t.Error("recovered session not active")
	}
}

// === suspend / expire ===

func TestSuspendIsIdempotent(t *testing.T) {
	m, _ := newTestManager(t)
	s, _ := m.Create(CreateOptions{Mode: ModeDevelopment, Owner: "a"})

	if _, err := m.Suspend(s.ID); err != nil {
		t.Fatalf("Suspend: %v", err)
	}
	got, err := m.Suspend(s.ID)
	if err != nil {
		t.Fatalf("second Suspend: %v", err)
	}
	if got.Status != StatusSuspended {
		t.Errorf("status = %q", got.Status)
	}

	// The no-op suspend appends no event.
	evs, _ := m.Events(s.ID)
	var suspends int
	for _, ev := range evs {
		if ev.Type == eventlog.TypeSuspended {
			suspends++
		}
	}
	if suspends != 1 {
		t.Errorf("suspend events = %d, want 1", suspends)
	}
}

func TestCompletedSessionStaysCompleted(t *testing.T) {
	m, clock := newTestManager(t)

	// Handoff marks the source completed; no lifecycle verb may bring it
	// back.
	a, _ := m.Create(CreateOptions{Mode: ModeDevelopment, Owner: "a"})
	if _, err := m.Handoff(a.ID, "session-b", nil, ""); err != nil {
		t.Fatalf("Handoff: %v", err)
	}

	if _, err := m.Suspend(a.ID); !errors.Is(err, errors.ErrInvalidTransition) {
		t.Errorf("Suspend on completed = %v, want ErrInvalidTransition", err)
	}
	if _, err := m.Expire(a.ID); !errors.Is(err, errors.ErrInvalidTransition) {
		t.Errorf("Expire on completed = %v, want ErrInvalidTransition", err)
	}
	if _, err := m.Recover(a.ID, nil); !errors.Is(err, errors.ErrInvalidTransition) {
		t.Errorf("Recover on completed = %v, want ErrInvalidTransition", err)
	}

	// Heartbeat refreshes timestamps but must not resurrect, even after the
	// TTL lapses.
	clock.advance(30 * time.Hour)
	s, err := m.Heartbeat(a.ID, nil)
	if err != nil {
		t.Fatalf("Heartbeat: %v", err)
	}
	if s.Status != StatusCompleted {
		t.Errorf("status after heartbeat = %q, want %q", s.Status, StatusCompleted)
	}
	if s.IsActive(clock.t) {
		t.Error("completed session reported active")
	}
}

func TestSuspendRequiresActiveSession(t *testing.T) {
	m, _ := newTestManager(t)

	s, _ := m.Create(CreateOptions{Mode: ModeDevelopment, Owner: "a"})
	if _, err := m.Expire(s.ID); err != nil {
		t.Fatalf("Expire: %v", err)
	}

	if _, err := m.Suspend(s.ID); !errors.Is(err, errors.ErrInvalidTransition) {
		t.Errorf("Suspend on terminating = %v, want ErrInvalidTransition", err)
	}
}

func TestExpireTerminatesImmediately(t *testing.T) {
	m, clock := newTestManager(t)
	s, _ := m.Create(CreateOptions{Mode: ModeSprint, Owner: "a"})

	clock.advance(time.Minute)
	got, err := m.Expire(s.ID)
	if err != nil {
		t.Fatalf("Expire: %v", err)
	}
	if got.Status != StatusTerminating {
		t.Errorf("status = %q, want %q", got.Status, StatusTerminating)
	}

	clock.advance(time.Second)
	if !got.IsExpired(clock.t) {
		t.Error("expired session still within TTL window")
	}
}

// === path-scoped updates ===

func TestUpdatePreservesLifecycleFields(t *testing.T) {
	m, _ := newTestManager(t)
	s, _ := m.Create(CreateOptions{Mode: ModeDevelopment, Owner: "a"})

	if err := m.Update(s.ID, "execution.tasks.t1", map[string]any{"state": "running"}); err != nil {
		t.Fatalf("Update: %v", err)
	}
	if err := m.MergePath(s.ID, "context", map[string]any{"branch": "main"}); err != nil {
		t.Fatalf("MergePath: %v", err)
	}

	got, err := m.Get(s.ID)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if got.Mode != ModeDevelopment || got.Status != StatusActive {
		t.Errorf("lifecycle fields clobbered: %+v", got)
	}
	task, ok := got.Execution.Tasks["t1"].(map[string]any)
	if !ok || task["state"] != "running" {
		t.Errorf("tasks = %v", got.Execution.Tasks)
	}
	if got.Context["branch"] != "main" {
		t.Errorf("context = %v", got.Context)
	}

	v, err := m.Query(s.ID, "$.execution.tasks.t1.state")
	if err != nil {
		t.Fatalf("Query: %v", err)
	}
	if v != "running" {
		t.Errorf("query = %v, want running", v)
	}
}

func TestDeletePathRemovesValue(t *testing.T) {
	m, _ := newTestManager(t)
	s, _ := m.Create(CreateOptions{Mode: ModeDevelopment, Owner: "a", Context: map[string]any{"x": 1.0, "y": 2.0}})

	if err := m.DeletePath(s.ID, "context.x"); err != nil {
		t.Fatalf("DeletePath: %v", err)
	}
	got, _ := m.Get(s.ID)
	if _, present := got.Context["x"]; present {
		t.Error("context.x survived delete")
	}
	if got.Context["y"] != 2.0 {
		t.Errorf("context.y = %v", got.Context["y"])
	}
}

// === list ===

func TestListFilters(t *testing.T) {
	m, clock := newTestManager(t)

	dev, _ := m.Create(CreateOptions{Mode: ModeDevelopment, Owner: "a", Project: "apollo"})
	cfg, _ := m.Create(CreateOptions{Mode: ModeConfig, Owner: "b", Project: "apollo"})
	m.Create(CreateOptions{Mode: ModeSprint, Owner: "c", Project: "gemini"})

	all, err := m.List(Filter{})
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if len(all) != 3 {
		t.Fatalf("len = %d, want 3", len(all))
	}

	apollo, _ := m.List(Filter{Project: "apollo"})
	if len(apollo) != 2 {
		t.Errorf("apollo sessions = %d, want 2", len(apollo))
	}

	// The config session's 1h TTL lapses; active-only must drop it even
	// though its stored status is still "active".
	clock.advance(2 * time.Hour)
	active, _ := m.List(Filter{ActiveOnly: true})
	for _, sum := range active {
		if sum.ID == cfg.ID {
			t.Error("expired config session listed as active")
		}
	}
	found := false
	for _, sum := range active {
		if sum.ID == dev.ID {
			found = true
		}
	}
	if !found {
		t.Error("development session missing from active list")
	}
}

// === cleanup ===

func TestCleanupRemovesExpired(t *testing.T) {
	m, clock := newTestManager(t)

	cfg, _ := m.Create(CreateOptions{Mode: ModeConfig, Owner: "a"})
	dev, _ := m.Create(CreateOptions{Mode: ModeDevelopment, Owner: "b"})
	emg, _ := m.Create(CreateOptions{Mode: ModeEmergency, Owner: "c"})

	clock.advance(2 * time.Hour)

	// Dry run reports without deleting.
	eligible, err := m.Cleanup(true)
	if err != nil {
		t.Fatalf("Cleanup dry-run: %v", err)
	}
	if len(eligible) != 1 || eligible[0] != cfg.ID {
		t.Errorf("dry-run = %v, want [%s]", eligible, cfg.ID)
	}
	if _, err := m.Get(cfg.ID); err != nil {
		t.Fatalf("dry-run deleted the session: %v", err)
	}

	removed, err := m.Cleanup(false)
	if err != nil {
		t.Fatalf("Cleanup: %v", err)
	}
	if len(removed) != 1 || removed[0] != cfg.ID {
		t.Errorf("removed = %v, want [%s]", removed, cfg.ID)
	}

	if _, err := m.Get(cfg.ID); !errors.Is(err, errors.ErrNotFound) {
		t.Errorf("Get after cleanup = %v, want ErrNotFound", err)
	}
	evs, err := m.Events(cfg.ID)
	if err != nil || len(evs) != 0 {
		t.Errorf("event log survived cleanup: %v, %v", evs, err)
	}

	// Unexpired and no-auto-cleanup sessions survive.
	if _, err := m.Get(dev.ID); err != nil {
		t.Errorf("development session removed: %v", err)
	}
	if _, err := m.Get(emg.ID); err != nil {
		t.Errorf("emergency session removed: %v", err)
	}
}

func TestCleanupSparesHeartbeated(t *testing.T) {
	m, clock := newTestManager(t)

	s, _ := m.Create(CreateOptions{Mode: ModeConfig, Owner: "a"})
	clock.advance(2 * time.Hour)

	// Heartbeat lands between scan eligibility and the sweep.
	if _, err := m.Heartbeat(s.ID, nil); err != nil {
		t.Fatalf("Heartbeat: %v", err)
	}

	removed, err := m.Cleanup(false)
	if err != nil {
		t.Fatalf("Cleanup: %v", err)
	}
	if len(removed) != 0 {
		t.Errorf("removed = %v, want none", removed)
	}
}

// === ttl overrides ===

func TestTTLOverride(t *testing.T) {
	m, clock := newTestManager(t, WithTTL(ModeDevelopment, 10*time.Minute))

	s, _ := m.Create(CreateOptions{Mode: ModeDevelopment, Owner: "a"})
	want := clock.t.Add(10 * time.Minute)
	if !s.Expiry.Equal(want) {
		t.Errorf("expiry = %v, want %v", s.Expiry, want)
	}
}

// === inline event tail ===

func TestInlineTailBounded(t *testing.T) {
	m, _ := newTestManager(t, WithInlineTail(3))

	s, _ := m.Create(CreateOptions{Mode: ModeDevelopment, Owner: "a"})
	for i := 0; i < 5; i++ {
		if _, err := m.Heartbeat(s.ID, nil); err != nil {
			t.Fatalf("Heartbeat %d: %v", i, err)
		}
	}

	got, _ := m.Get(s.ID)
	if len(got.Observability.Events) != 3 {
		t.Errorf("inline tail = %d events, want 3", len(got.Observability.Events))
	}
	// The tail holds the most recent events.
	last := got.Observability.Events[len(got.Observability.Events)-1]
	if last.Type != eventlog.TypeHeartbeat {
		t.Errorf("last inline event = %q", last.Type)
	}

	// The log keeps everything.
	evs, _ := m.Events(s.ID)
	if len(evs) != 6 {
		t.Errorf("log events = %d, want 6", len(evs))
	}
}
