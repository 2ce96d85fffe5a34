package session

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"github.com/hiveplane/hive/internal/docstore"
	"github.com/hiveplane/hive/internal/errors"
	"github.com/hiveplane/hive/internal/eventlog"
	"github.com/hiveplane/hive/internal/logging"
	"github.com/hiveplane/hive/internal/pathexpr"
)

// DefaultInlineTail bounds the observability.events tail mirrored into each
// session document. The full history lives in the event log file.
const DefaultInlineTail = 20

// Manager implements the session lifecycle state machine on top of the
// document store. Every mutation runs under the per-document lock via the
// store's read-modify-write primitive, then appends to the session's event
// log.
type Manager struct {
	store      *docstore.Store
	events     *eventlog.Log
	logger     *logging.Logger
	ttls       map[Mode]time.Duration
	inlineTail int
	now        func() time.Time
}

// Option configures a Manager.
type Option func(*Manager)

// WithLogger attaches a structured logger.
func WithLogger(logger *logging.Logger) Option {
	return func(m *Manager) { m.logger = logger }
}

// WithClock overrides the time source. Tests use this to exercise TTL
// behavior without sleeping.
func WithClock(now func() time.Time) Option {
	return func(m *Manager) { m.now = now }
}

// WithTTL overrides the TTL for one mode.
func WithTTL(mode Mode, ttl time.Duration) Option {
	return func(m *Manager) { m.ttls[mode] = ttl }
}

// WithInlineTail bounds the inline event tail size. Zero disables mirroring.
func WithInlineTail(n int) Option {
	return func(m *Manager) { m.inlineTail = n }
}

// NewManager creates a Manager over a document store and event log.
func NewManager(store *docstore.Store, events *eventlog.Log, opts ...Option) *Manager {
	m := &Manager{
		store:      store,
		events:     events,
		logger:     logging.NopLogger(),
		ttls:       make(map[Mode]time.Duration),
		inlineTail: DefaultInlineTail,
		now:        time.Now,
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// ttl returns the effective TTL for a mode, honoring overrides.
func (m *Manager) ttl(mode Mode) time.Duration {
	if override, ok := m.ttls[mode]; ok {
		return override
	}
	return modeProfiles[mode].TTL
}

// CreateOptions carries the inputs to Create.
type CreateOptions struct {
	Mode    Mode
	Owner   string
	User    string
	Project string
	Context map[string]any
}

// Create generates a fresh session: a new ID, mode presets applied,
// expiry computed from the mode TTL, status active (passing through
// initializing synchronously), persisted atomically, with a
// session.created event appended.
func (m *Manager) Create(opts CreateOptions) (*Session, error) {
	mode, err := ParseMode(string(opts.Mode))
	if err != nil {
		return nil, err
	}
	profile := modeProfiles[mode]

	now := m.now().UTC()
	s := &Session{
		ID:           uuid.NewString(),
		Mode:         mode,
		Status:       StatusInitializing,
		CreatedAt:    now,
		UpdatedAt:    now,
		LastActivity: now,
		Heartbeat:    now,
		Owner:        opts.Owner,
		User:         opts.User,
		Project:      opts.Project,
		AutoCleanup:  profile.AutoCleanup,
		Permissions:  profile.Permissions,
		Team:         profile.Team,
		Handoffs:     []HandoffEntry{},
		Context:      opts.Context,
	}

	// Initialization is synchronous; the stored document is already active.
	s.Status = StatusActive
	if ttl := m.ttl(mode); ttl > 0 {
		s.Expiry = now.Add(ttl)
	}

	ev := m.newEvent(s.ID, eventlog.TypeSessionCreated, opts.Owner, map[string]any{
		"mode":    string(mode),
		"project": opts.Project,
	})
	m.mirrorEvent(s, ev)

	err = m.store.Update(s.ID, true, func(doc map[string]any) error {
		return overlaySession(doc, s)
	})
	if err != nil {
		return nil, err
	}

	m.appendEvent(ev)
	m.logger.Info("session created",
		"session_id", s.ID,
		"mode", string(mode),
		"owner", opts.Owner,
	)
	return s, nil
}

// Get returns a session by ID without taking the lock.
func (m *Manager) Get(id string) (*Session, error) {
	doc, err := m.store.Load(id)
	if err != nil {
		return nil, err
	}
	return m.decode(id, doc)
}

// Heartbeat refreshes a session's liveness window: heartbeat and
// last_activity move to now and expiry is recomputed from the mode TTL
// (extended, not accumulated). A session that was suspended, failed, or
// TTL-expired while active is reactivated - heartbeat is a recovery path,
// not just a keep-alive. Completed and terminating sessions keep their
// status. Optional statusInfo is recorded under the session context.
func (m *Manager) Heartbeat(id string, statusInfo map[string]any) (*Session, error) {
	var result *Session
	var ev eventlog.Event

	err := m.store.Update(id, false, func(doc map[string]any) error {
		s, err := m.decode(id, doc)
		if err != nil {
			return err
		}

		now := m.now().UTC()

		// Suspended and failed sessions come back; completed and
		// terminating are end states and keep their status, with only the
		// timestamps refreshed.
		reactivated := false
		switch {
		case s.Status == StatusSuspended, s.Status == StatusFailed:
			s.Status = StatusActive
			reactivated = true
		case s.Status == StatusActive && s.IsExpired(now):
			reactivated = true
		}

		s.Heartbeat = now
		s.LastActivity = now
		s.UpdatedAt = now
		if ttl := m.ttl(s.Mode); ttl > 0 {
			s.Expiry = now.Add(ttl)
		}
		if statusInfo != nil {
			if s.Context == nil {
				s.Context = map[string]any{}
			}
			s.Context["status_info"] = statusInfo
		}

		ev = m.newEvent(id, eventlog.TypeHeartbeat, s.Owner, map[string]any{
			"reactivated": reactivated,
		})
		m.mirrorEvent(s, ev)

		result = s
		return overlaySession(doc, s)
	})
	if err != nil {
		return nil, err
	}

	m.appendEvent(ev)
	return result, nil
}

// Handoff transfers ownership and an opaque context blob from one session
// to another. A missing target creates a new session inheriting the source's
// mode and context, parented via parent_session. The source is marked
// completed; it is never deleted by handoff. The full handoff history
// travels to the receiving session so repeated handoffs preserve chain
// order.
func (m *Manager) Handoff(fromID, toID string, data map[string]any, notes string) (*Session, error) {
	if toID == "" {
		toID = uuid.NewString()
	}
	if fromID == toID {
		return nil, errors.New("handoff: target equals source " + fromID)
	}

	now := m.now().UTC()
	entry := HandoffEntry{From: fromID, To: toID, At: now, Notes: notes}

	// Complete the source first so a crash between the two writes leaves the
	// chain auditable from the source's history.
	var from *Session
	var fromEv eventlog.Event
	err := m.store.Update(fromID, false, func(doc map[string]any) error {
		s, err := m.decode(fromID, doc)
		if err != nil {
			return err
		}
		s.Handoffs = append(s.Handoffs, entry)
		s.Status = StatusCompleted
		s.UpdatedAt = now
		s.LastActivity = now

		fromEv = m.newEvent(fromID, eventlog.TypeHandoffCompleted, s.Owner, map[string]any{
			"to": toID,
		})
		m.mirrorEvent(s, fromEv)

		from = s
		return overlaySession(doc, s)
	})
	if err != nil {
		return nil, err
	}
	m.appendEvent(fromEv)

	var to *Session
	var toEv eventlog.Event
	err = m.store.Update(toID, true, func(doc map[string]any) error {
		var s *Session
		if len(doc) == 0 {
			// Fresh target: inherit mode and context from the source.
			profile := modeProfiles[from.Mode]
			s = &Session{
				ID:            toID,
				Mode:          from.Mode,
				Status:        StatusActive,
				CreatedAt:     now,
				Owner:         toID,
				Project:       from.Project,
				ParentSession: fromID,
				AutoCleanup:   profile.AutoCleanup,
				Permissions:   profile.Permissions,
				Team:          profile.Team,
				Context:       cloneMap(from.Context),
				Handoffs:      append([]HandoffEntry{}, from.Handoffs...),
			}
		} else {
			var err error
			if s, err = m.decode(toID, doc); err != nil {
				return err
			}
			s.Handoffs = append(s.Handoffs, entry)
			s.Status = StatusActive
			s.Owner = toID
		}

		s.Heartbeat = now
		s.LastActivity = now
		s.UpdatedAt = now
		if ttl := m.ttl(s.Mode); ttl > 0 {
			s.Expiry = now.Add(ttl)
		}
		if data != nil {
			if s.Context == nil {
				s.Context = map[string]any{}
			}
			mergeInto(s.Context, data)
		}

		toEv = m.newEvent(toID, eventlog.TypeHandoffReceived, s.Owner, map[string]any{
			"from": fromID,
		})
		m.mirrorEvent(s, toEv)

		to = s
		return overlaySession(doc, s)
	})
	if err != nil {
		return nil, err
	}
	m.appendEvent(toEv)

	m.logger.Info("handoff completed",
		"from", fromID,
		"to", toID,
	)
	return to, nil
}

// Recover reactivates a suspended, failed, or TTL-expired session,
// refreshing its liveness window and optionally merging restoration
// context. Recovering a session that is active and not expired reports
// ErrAlreadyActive.
func (m *Manager) Recover(id string, context map[string]any) (*Session, error) {
	var result *Session
	var ev eventlog.Event

	err := m.store.Update(id, false, func(doc map[string]any) error {
		s, err := m.decode(id, doc)
		if err != nil {
			return err
		}

		now := m.now().UTC()
		if s.Status == StatusActive && !s.IsExpired(now) {
			return errors.Wrap(errors.ErrAlreadyActive, "session %s", id)
		}
		if s.Status == StatusCompleted {
			return errors.Wrap(errors.ErrInvalidTransition, "session %s is completed", id)
		}

		prior := s.Status
		s.Status = StatusActive
		s.Heartbeat = now
		s.LastActivity = now
		s.UpdatedAt = now
		if ttl := m.ttl(s.Mode); ttl > 0 {
			s.Expiry = now.Add(ttl)
		}
		if context != nil {
			if s.Context == nil {
				s.Context = map[string]any{}
			}
			mergeInto(s.Context, context)
		}

		ev = m.newEvent(id, eventlog.TypeRecovered, s.Owner, map[string]any{
			"prior_status": string(prior),
		})
		m.mirrorEvent(s, ev)

		result = s
		return overlaySession(doc, s)
	})
	if err != nil {
		return nil, err
	}

	m.appendEvent(ev)
	m.logger.Info("session recovered", "session_id", id)
	return result, nil
}

// Suspend moves an active session to suspended. Suspending an already
// suspended session is a no-op.
func (m *Manager) Suspend(id string) (*Session, error) {
	return m.transition(id, StatusSuspended, eventlog.TypeSuspended)
}

// Expire explicitly terminates a session: status moves to terminating and
// the expiry collapses to now, making the session immediately eligible for
// cleanup (when its mode allows auto-cleanup).
func (m *Manager) Expire(id string) (*Session, error) {
	var result *Session
	var ev eventlog.Event

	err := m.store.Update(id, false, func(doc map[string]any) error {
		s, err := m.decode(id, doc)
		if err != nil {
			return err
		}
		if s.Status == StatusCompleted || s.Status == StatusFailed {
			return errors.Wrap(errors.ErrInvalidTransition, "session %s is %s", id, s.Status)
		}

		now := m.now().UTC()
		s.Status = StatusTerminating
		s.Expiry = now
		s.UpdatedAt = now

		ev = m.newEvent(id, eventlog.TypeExpired, s.Owner, nil)
		m.mirrorEvent(s, ev)

		result = s
		return overlaySession(doc, s)
	})
	if err != nil {
		return nil, err
	}

	m.appendEvent(ev)
	return result, nil
}

// transition applies a plain status change. Only active sessions may leave
// their state this way; completed, failed, and terminating are end states.
func (m *Manager) transition(id string, status Status, eventType string) (*Session, error) {
	var result *Session
	var ev eventlog.Event

	err := m.store.Update(id, false, func(doc map[string]any) error {
		s, err := m.decode(id, doc)
		if err != nil {
			return err
		}
		if s.Status == status {
			result = s
			return nil
		}
		if s.Status != StatusActive {
			return errors.Wrap(errors.ErrInvalidTransition, "session %s is %s", id, s.Status)
		}

		now := m.now().UTC()
		s.Status = status
		s.UpdatedAt = now

		ev = m.newEvent(id, eventType, s.Owner, nil)
		m.mirrorEvent(s, ev)

		result = s
		return overlaySession(doc, s)
	})
	if err != nil {
		return nil, err
	}

	if ev.Type != "" {
		m.appendEvent(ev)
	}
	return result, nil
}

// Update applies a path-scoped set to a session document under its lock,
// bumping updated_at and last_activity.
func (m *Manager) Update(id, path string, value any) error {
	return m.mutateDoc(id, path, func(doc map[string]any) error {
		return pathexpr.Set(doc, path, value)
	})
}

// MergePath deep-merges an object at a path within a session document.
func (m *Manager) MergePath(id, path string, value map[string]any) error {
	return m.mutateDoc(id, path, func(doc map[string]any) error {
		return pathexpr.Merge(doc, path, value)
	})
}

// DeletePath removes the value at a path within a session document.
func (m *Manager) DeletePath(id, path string) error {
	return m.mutateDoc(id, path, func(doc map[string]any) error {
		return pathexpr.Delete(doc, path)
	})
}

// mutateDoc runs a raw document mutation under the lock, stamping activity
// timestamps at the map level so top-level keys outside the reserved schema
// survive untouched.
func (m *Manager) mutateDoc(id, path string, fn func(doc map[string]any) error) error {
	err := m.store.Update(id, false, func(doc map[string]any) error {
		if err := fn(doc); err != nil {
			return err
		}
		stamp := m.now().UTC().Format(time.RFC3339Nano)
		doc["updated_at"] = stamp
		doc["last_activity"] = stamp
		return nil
	})
	if err != nil {
		return err
	}

	m.appendEvent(m.newEvent(id, eventlog.TypeUpdated, "", map[string]any{
		"path": path,
	}))
	return nil
}

// Query evaluates a read-only path expression against a session document.
func (m *Manager) Query(id, expr string) (any, error) {
	return m.store.Get(id, expr)
}

// List returns summaries of all sessions matching the filter. The scan is
// lock-free: unreadable or corrupt documents are logged and skipped rather
// than failing the listing, and TTL-expired sessions count as inactive.
func (m *Manager) List(filter Filter) ([]Summary, error) {
	ids, err := m.store.IDs()
	if err != nil {
		return nil, err
	}

	now := m.now().UTC()
	summaries := make([]Summary, 0, len(ids))
	for _, id := range ids {
		doc, err := m.store.Load(id)
		if err != nil {
			m.logger.Warn("skipping unreadable session", "session_id", id, "error", err.Error())
			continue
		}
		s, err := m.decode(id, doc)
		if err != nil {
			m.logger.Warn("skipping corrupt session", "session_id", id, "error", err.Error())
			continue
		}

		active := s.IsActive(now)
		if filter.ActiveOnly && !active {
			continue
		}
		if filter.Project != "" && s.Project != filter.Project {
			continue
		}
		if filter.Mode != "" && s.Mode != filter.Mode {
			continue
		}

		summaries = append(summaries, Summary{
			ID:        s.ID,
			Mode:      s.Mode,
			Status:    s.Status,
			Owner:     s.Owner,
			Project:   s.Project,
			CreatedAt: s.CreatedAt,
			Expiry:    s.Expiry,
			Active:    active,
		})
	}
	return summaries, nil
}

// Cleanup scans for sessions whose TTL has lapsed and whose mode allows
// auto-cleanup, and deletes them along with their event logs. With dryRun
// the eligible IDs are only reported. Expiry is re-checked under the
// per-document lock before each deletion, so a session heartbeated between
// scan and delete survives. Individual failures are logged and skipped.
func (m *Manager) Cleanup(dryRun bool) ([]string, error) {
	ids, err := m.store.IDs()
	if err != nil {
		return nil, err
	}

	var removed []string
	for _, id := range ids {
		doc, err := m.store.Load(id)
		if err != nil {
			m.logger.Warn("cleanup: skipping unreadable session", "session_id", id, "error", err.Error())
			continue
		}
		s, err := m.decode(id, doc)
		if err != nil {
			m.logger.Warn("cleanup: skipping corrupt session", "session_id", id, "error", err.Error())
			continue
		}
		if !s.AutoCleanup || !s.IsExpired(m.now().UTC()) {
			continue
		}

		if dryRun {
			removed = append(removed, id)
			continue
		}

		ok, err := m.store.DeleteIf(id, func(doc map[string]any) (bool, error) {
			current, err := m.decode(id, doc)
			if err != nil {
				return false, nil
			}
			return current.AutoCleanup && current.IsExpired(m.now().UTC()), nil
		})
		if err != nil {
			m.logger.Warn("cleanup: failed to delete session", "session_id", id, "error", err.Error())
			continue
		}
		if ok {
			if err := m.events.Remove(id); err != nil {
				m.logger.Warn("cleanup: failed to remove event log", "session_id", id, "error", err.Error())
			}
			m.logger.Info("session cleaned", "session_id", id)
			removed = append(removed, id)
		}
	}
	return removed, nil
}

// Delete removes a session document and its event log unconditionally.
func (m *Manager) Delete(id string) error {
	if err := m.store.Delete(id); err != nil {
		return err
	}
	return m.events.Remove(id)
}

// Events returns the full event history for a session.
func (m *Manager) Events(id string) ([]eventlog.Event, error) {
	return m.events.Read(id)
}

// -----------------------------------------------------------------------------
// Helpers
// -----------------------------------------------------------------------------

// newEvent builds a fully stamped event so the inline mirror and the log
// record share one identity.
func (m *Manager) newEvent(sessionID, eventType, source string, data map[string]any) eventlog.Event {
	return eventlog.Event{
		ID:        uuid.NewString(),
		Timestamp: m.now().UTC(),
		Type:      eventType,
		Source:    source,
		Severity:  "info",
		Data:      data,
		SessionID: sessionID,
	}
}

// mirrorEvent appends an event to the session's bounded inline tail.
func (m *Manager) mirrorEvent(s *Session, ev eventlog.Event) {
	if m.inlineTail <= 0 {
		return
	}
	s.Observability.Events = append(s.Observability.Events, ev)
	if n := len(s.Observability.Events); n > m.inlineTail {
		s.Observability.Events = s.Observability.Events[n-m.inlineTail:]
	}
}

// appendEvent writes to the event log, logging rather than failing the
// operation: the document mutation already committed and the log is
// at-least-once observability data.
func (m *Manager) appendEvent(ev eventlog.Event) {
	if err := m.events.Append(ev.SessionID, ev); err != nil {
		m.logger.Error("failed to append event",
			"session_id", ev.SessionID,
			"type", ev.Type,
			"error", err.Error(),
		)
	}
}

// decode validates and converts a raw document into a Session.
func (m *Manager) decode(id string, doc map[string]any) (*Session, error) {
	raw, err := json.Marshal(doc)
	if err != nil {
		return nil, errors.WrapCause(errors.ErrCorruptDocument, err, "session %s", id)
	}
	if err := validateSessionJSON(raw); err != nil {
		return nil, errors.WrapCause(errors.ErrCorruptDocument, err, "session %s", id)
	}
	var s Session
	if err := json.Unmarshal(raw, &s); err != nil {
		return nil, errors.WrapCause(errors.ErrCorruptDocument, err, "session %s", id)
	}
	return &s, nil
}

// overlaySession re-encodes the session and overlays its keys onto the raw
// document, leaving any non-schema top-level keys (written via path-scoped
// updates) in place.
func overlaySession(doc map[string]any, s *Session) error {
	raw, err := json.Marshal(s)
	if err != nil {
		return errors.WrapCause(errors.ErrIO, err, "encoding session %s", s.ID)
	}
	var flat map[string]any
	if err := json.Unmarshal(raw, &flat); err != nil {
		return errors.WrapCause(errors.ErrIO, err, "re-decoding session %s", s.ID)
	}
	for k, v := range flat {
		doc[k] = v
	}
	return nil
}

// cloneMap shallow-copies a context map so sessions never alias each other.
func cloneMap(src map[string]any) map[string]any {
	if src == nil {
		return nil
	}
	dst := make(map[string]any, len(src))
	for k, v := range src {
		dst[k] = v
	}
	return dst
}

// mergeInto deep-merges src into dst: object values merge recursively,
// everything else overwrites.
func mergeInto(dst, src map[string]any) {
	for k, v := range src {
		if srcObj, ok := v.(map[string]any); ok {
			if dstObj, ok := dst[k].(map[string]any); ok {
				mergeInto(dstObj, srcObj)
				continue
			}
		}
		dst[k] = v
	}
}
