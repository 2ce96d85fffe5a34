// Package session implements the lifecycle layer on top of the document
// store: typed session documents, mode-specific TTLs and presets, the
// status state machine, heartbeat-based liveness, ownership handoff,
// recovery, and expiry-driven cleanup.
package session

import (
	"time"

	"github.com/hiveplane/hive/internal/errors"
	"github.com/hiveplane/hive/internal/eventlog"
)

// Mode fixes a session's default TTL and permission/team presets.
// Immutable after creation.
type Mode string

const (
	ModeDevelopment Mode = "development"
	ModeLeadership  Mode = "leadership"
	ModeSprint      Mode = "sprint"
	ModeConfig      Mode = "config"
	ModeEmergency   Mode = "emergency"
)

// ParseMode validates a mode string.
func ParseMode(s string) (Mode, error) {
	m := Mode(s)
	if _, ok := modeProfiles[m]; !ok {
		return "", errors.Wrap(errors.ErrInvalidMode, "%q (valid: development, leadership, sprint, config, emergency)", s)
	}
	return m, nil
}

// Profile is the configuration data attached to a mode. Mode-specific
// behavior lives here rather than in per-mode code paths.
type Profile struct {
	// TTL is the liveness window extended by each heartbeat.
	// Zero means TTL enforcement is suspended.
	TTL time.Duration
	// AutoCleanup marks sessions of this mode as eligible for the
	// expiry sweep.
	AutoCleanup bool
	// Permissions is the default permission preset.
	Permissions []string
	// Team is the default team preset.
	Team string
}

var modeProfiles = map[Mode]Profile{
	ModeDevelopment: {
		TTL:         24 * time.Hour,
		AutoCleanup: true,
		Permissions: []string{"read", "write", "execute"},
		Team:        "engineering",
	},
	ModeLeadership: {
		TTL:         48 * time.Hour,
		AutoCleanup: true,
		Permissions: []string{"read", "write", "approve", "delegate"},
		Team:        "leads",
	},
	ModeSprint: {
		TTL:         168 * time.Hour,
		AutoCleanup: true,
		Permissions: []string{"read", "write", "execute", "review"},
		Team:        "delivery",
	},
	ModeConfig: {
		TTL:         time.Hour,
		AutoCleanup: true,
		Permissions: []string{"read", "configure"},
		Team:        "platform",
	},
	ModeEmergency: {
		TTL:         0, // TTL suspended
		AutoCleanup: false,
		Permissions: []string{"all"},
		Team:        "incident",
	},
}

// ModeProfile returns the profile for a mode.
func ModeProfile(m Mode) Profile {
	return modeProfiles[m]
}

// Status is a session's position in the lifecycle state machine:
//
//	initializing -> active <-> suspended -> terminating -> {completed, failed}
//
// active may also transition directly to terminating on explicit expire.
// TTL expiry is evaluated lazily at read time: an expired session is treated
// as inactive regardless of its stored status.
type Status string

const (
	StatusInitializing Status = "initializing"
	StatusActive       Status = "active"
	StatusSuspended    Status = "suspended"
	StatusTerminating  Status = "terminating"
	StatusCompleted    Status = "completed"
	StatusFailed       Status = "failed"
)

// HandoffEntry records one ownership transfer. Entries are append-only and
// never reordered.
type HandoffEntry struct {
	From  string    `json:"from"`
	To    string    `json:"to"`
	At    time.Time `json:"at"`
	Notes string    `json:"notes,omitempty"`
}

// Execution holds the opaque orchestration payload. The store never
// interprets it; callers mutate it via path-scoped updates.
type Execution struct {
	Agents    map[string]any `json:"agents,omitempty"`
	Tasks     map[string]any `json:"tasks,omitempty"`
	Workflows map[string]any `json:"workflows,omitempty"`
}

// Observability carries the bounded inline tail of recent events. The full
// history lives in the per-session event log file.
type Observability struct {
	Events []eventlog.Event `json:"events,omitempty"`
}

// Session is a document with the reserved lifecycle schema.
type Session struct {
	ID            string         `json:"id"`
	Mode          Mode           `json:"mode"`
	Status        Status         `json:"status"`
	CreatedAt     time.Time      `json:"created_at"`
	UpdatedAt     time.Time      `json:"updated_at"`
	LastActivity  time.Time      `json:"last_activity"`
	Heartbeat     time.Time      `json:"heartbeat"`
	Expiry        time.Time      `json:"expiry,omitempty"`
	Owner         string         `json:"owner"`
	User          string         `json:"user,omitempty"`
	Project       string         `json:"project,omitempty"`
	ParentSession string         `json:"parent_session,omitempty"`
	AutoCleanup   bool           `json:"auto_cleanup"`
	Permissions   []string       `json:"permissions,omitempty"`
	Team          string         `json:"team,omitempty"`
	Handoffs      []HandoffEntry `json:"handoff_history"`
	Context       map[string]any `json:"context,omitempty"`
	Execution     Execution      `json:"execution"`
	Observability Observability  `json:"observability"`
}

// IsExpired reports whether the session's TTL window has lapsed at the
// given instant. Sessions without an expiry (emergency mode) never expire.
func (s *Session) IsExpired(now time.Time) bool {
	if s.Expiry.IsZero() {
		return false
	}
	return now.After(s.Expiry)
}

// IsActive reports whether the session should be treated as live at the
// given instant: status active and not TTL-expired.
func (s *Session) IsActive(now time.Time) bool {
	return s.Status == StatusActive && !s.IsExpired(now)
}

// Summary is the listing projection of a session.
type Summary struct {
	ID        string    `json:"id"`
	Mode      Mode      `json:"mode"`
	Status    Status    `json:"status"`
	Owner     string    `json:"owner"`
	Project   string    `json:"project,omitempty"`
	CreatedAt time.Time `json:"created_at"`
	Expiry    time.Time `json:"expiry,omitempty"`
	Active    bool      `json:"active"`
}

// Filter selects sessions in List.
type Filter struct {
	// ActiveOnly keeps sessions that are active and not TTL-expired.
	ActiveOnly bool
	// Project keeps sessions belonging to the given project.
	Project string
	// Mode keeps sessions of the given mode.
	Mode Mode
}
