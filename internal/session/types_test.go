package session

import (
	"testing"
	"time"

	"github.com/hiveplane/hive/internal/errors"
)

func TestParseMode(t *testing.T) {
	for _, valid := range []string{"development", "leadership", "sprint", "config", "emergency"} {
		if _, err := ParseMode(valid); err != nil {
			t.Errorf("ParseMode(%q) = %v", valid, err)
		}
	}
	for _, invalid := range []string{"", "dev", "DEVELOPMENT", "production"} {
		if _, err := ParseMode(invalid); !errors.Is(err, errors.ErrInvalidMode) {
			t.Errorf("ParseMode(%q) = %v, want ErrInvalidMode", invalid, err)
		}
	}
}

func TestModeProfiles(t *testing.T) {
	tests := []struct {
		mode    Mode
		ttl     time.Duration
		cleanup bool
	}{
		{ModeDevelopment, 24 * time.Hour, true},
		{ModeLeadership, 48 * time.Hour, true},
		{ModeSprint, 168 * time.Hour, true},
		{ModeConfig, time.Hour, true},
		{ModeEmergency, 0, false},
	}
	for _, tt := range tests {
		p := ModeProfile(tt.mode)
		if p.TTL != tt.ttl {
			t.Errorf("%s TTL = %v, want %v", tt.mode, p.TTL, tt.ttl)
		}
		if p.AutoCleanup != tt.cleanup {
			t.Errorf("%s AutoCleanup = %v, want %v", tt.mode, p.AutoCleanup, tt.cleanup)
		}
		if len(p.Permissions) == 0 {
			t.Errorf("%s has no permission preset", tt.mode)
		}
	}
}

func TestIsExpired(t *testing.T) {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	s := Session{Expiry: now.Add(time.Minute)}
	if s.IsExpired(now) {
		t.Error("session with future expiry reported expired")
	}
	if !s.IsExpired(now.Add(2 * time.Minute)) {
		t.Error("session past expiry not reported expired")
	}

	// Zero expiry means TTL enforcement is suspended.
	unbounded := Session{}
	if unbounded.IsExpired(now.Add(1000 * time.Hour)) {
		t.Error("zero-expiry session reported expired")
	}
}

func TestIsActive(t *testing.T) {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	active := Session{Status: StatusActive, Expiry: now.Add(time.Hour)}
	if !active.IsActive(now) {
		t.Error("active unexpired session reported inactive")
	}

	suspended := Session{Status: StatusSuspended, Expiry: now.Add(time.Hour)}
	if suspended.IsActive(now) {
		t.Error("suspended session reported active")
	}

	lapsed := Session{Status: StatusActive, Expiry: now.Add(-time.Second)}
	if lapsed.IsActive(now) {
		t.Error("TTL-lapsed session reported active")
	}
}
