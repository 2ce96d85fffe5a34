package cmd

import (
	"reflect"
	"strings"
	"testing"
	"time"

	"github.com/hiveplane/hive/internal/session"
)

func TestParseValue(t *testing.T) {
	tests := []struct {
		raw  string
		want any
	}{
		{`42`, float64(42)},
		{`true`, true},
		{`"quoted"`, "quoted"},
		{`{"a":1}`, map[string]any{"a": float64(1)}},
		{`[1,2]`, []any{float64(1), float64(2)}},
		{`plain string`, "plain string"},
		{`feature/branch-name`, "feature/branch-name"},
	}
	for _, tt := range tests {
		got := parseValue(tt.raw)
		if !reflect.DeepEqual(got, tt.want) {
			t.Errorf("parseValue(%q) = %#v, want %#v", tt.raw, got, tt.want)
		}
	}
}

func TestParseJSONObject(t *testing.T) {
	obj, err := parseJSONObject("context", `{"k":"v"}`)
	if err != nil {
		t.Fatalf("parseJSONObject: %v", err)
	}
	if obj["k"] != "v" {
		t.Errorf("obj = %v", obj)
	}

	if obj, err := parseJSONObject("context", ""); err != nil || obj != nil {
		t.Errorf("empty flag: obj=%v err=%v", obj, err)
	}
	if _, err := parseJSONObject("context", `[1,2]`); err == nil {
		t.Error("array accepted as object")
	}
}

func TestFormatRelative(t *testing.T) {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	if got := formatRelative(time.Time{}, now); got != "never" {
		t.Errorf("zero expiry = %q", got)
	}
	if got := formatRelative(now.Add(90*time.Minute), now); got != "in 1h30m0s" {
		t.Errorf("future = %q", got)
	}
	if got := formatRelative(now.Add(-time.Hour), now); got != "1h0m0s ago" {
		t.Errorf("past = %q", got)
	}
}

func TestRenderStatusExpired(t *testing.T) {
	// Stored status "active" but TTL lapsed renders as expired.
	got := renderStatus(session.Summary{Status: session.StatusActive, Active: false})
	if !strings.Contains(got, "expired") {
		t.Errorf("renderStatus = %q, want expired marker", got)
	}

	got = renderStatus(session.Summary{Status: session.StatusActive, Active: true})
	if !strings.Contains(got, "active") {
		t.Errorf("renderStatus = %q", got)
	}
}
