package eventlog

import (
	"context"
	"fmt"
	"os"
	"sync"
	"testing"
	"time"
)

func newTestLog(t *testing.T) *Log {
	t.Helper()
	log, err := New(t.TempDir())
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}
	return log
}

func TestAppendAndReadInOrder(t *testing.T) {
	log := newTestLog(t)

	for i := 0; i < 5; i++ {
		err := log.Append("sess-1", Event{
			Type: TypeHeartbeat,
			Data: map[string]any{"seq": i},
		})
		if err != nil {
			t.Fatalf("Append %d failed: %v", i, err)
		}
	}

	events, err := log.Read("sess-1")
	if err != nil {
		t.Fatalf("Read failed: %v", err)
	}
	if len(events) != 5 {
		t.Fatalf("expected 5 events, got %d", len(events))
	}
	for i, ev := range events {
		if ev.Data["seq"] != float64(i) {
			t.Errorf("event %d out of order: %v", i, ev.Data)
		}
		if ev.ID == "" {
			t.Error("event ID should be generated")
		}
		if ev.Timestamp.IsZero() {
			t.Error("timestamp should be filled")
		}
		if ev.SessionID != "sess-1" {
			t.Errorf("session ID not stamped: %q", ev.SessionID)
		}
	}
}

func TestReadMissingLogIsEmpty(t *testing.T) {
	log := newTestLog(t)

	events, err := log.Read("nobody")
	if err != nil {
		t.Fatalf("Read failed: %v", err)
	}
	if len(events) != 0 {
		t.Errorf("expected no events, got %d", len(events))
	}
}

func TestReadSkipsMalformedLines(t *testing.T) {
	log := newTestLog(t)

	log.Append("sess-1", Event{Type: TypeSessionCreated})

	// Simulate a torn or garbage line from a misbehaving writer.
	f, err := os.OpenFile(log.Path("sess-1"), os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		t.Fatal(err)
	}
	f.WriteString("{{{ not json\n")
	f.WriteString("\n")
	f.Close()

	log.Append("sess-1", Event{Type: TypeHeartbeat})

	events, err := log.Read("sess-1")
	if err != nil {
		t.Fatalf("Read failed: %v", err)
	}
	if len(events) != 2 {
		t.Fatalf("expected 2 valid events, got %d", len(events))
	}
	if events[0].Type != TypeSessionCreated || events[1].Type != TypeHeartbeat {
		t.Errorf("unexpected events: %+v", events)
	}
}

func TestTail(t *testing.T) {
	log := newTestLog(t)

	for i := 0; i < 10; i++ {
		log.Append("sess-1", Event{Type: TypeHeartbeat, Data: map[string]any{"seq": i}})
	}

	tail, err := log.Tail("sess-1", 3)
	if err != nil {
		t.Fatalf("Tail failed: %v", err)
	}
	if len(tail) != 3 {
		t.Fatalf("expected 3 events, got %d", len(tail))
	}
	if tail[0].Data["seq"] != float64(7) {
		t.Errorf("tail starts at %v, want 7", tail[0].Data["seq"])
	}
}

func TestConcurrentAppendsProduceCompleteRecords(t *testing.T) {
	log := newTestLog(t)

	const writers = 8
	const perWriter = 20
	var wg sync.WaitGroup
	for w := 0; w < writers; w++ {
		wg.Add(1)
		go func(w int) {
			defer wg.Done()
			for i := 0; i < perWriter; i++ {
				err := log.Append("sess-1", Event{
					Type:   TypeHeartbeat,
					Source: fmt.Sprintf("writer-%d", w),
				})
				if err != nil {
					t.Errorf("Append failed: %v", err)
					return
				}
			}
		}(w)
	}
	wg.Wait()

	events, err := log.Read("sess-1")
	if err != nil {
		t.Fatalf("Read failed: %v", err)
	}
	// Every record must parse: no partial writes under concurrency.
	if len(events) != writers*perWriter {
		t.Errorf("expected %d complete records, got %d", writers*perWriter, len(events))
	}
}

func TestRemoveIsIdempotent(t *testing.T) {
	log := newTestLog(t)
	log.Append("sess-1", Event{Type: TypeSessionCreated})

	if err := log.Remove("sess-1"); err != nil {
		t.Fatalf("Remove failed: %v", err)
	}
	if err := log.Remove("sess-1"); err != nil {
		t.Fatalf("second Remove errored: %v", err)
	}
}

func TestFollowDeliversExistingAndNewEvents(t *testing.T) {
	log := newTestLog(t)

	log.Append("sess-1", Event{Type: TypeSessionCreated})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	ch, err := log.Follow(ctx, "sess-1")
	if err != nil {
		t.Fatalf("Follow failed: %v", err)
	}

	first := <-ch
	if first.Type != TypeSessionCreated {
		t.Errorf("first event = %q, want created", first.Type)
	}

	// Append while following.
	go func() {
		time.Sleep(50 * time.Millisecond)
		log.Append("sess-1", Event{Type: TypeHeartbeat})
	}()

	select {
	case second := <-ch:
		if second.Type != TypeHeartbeat {
			t.Errorf("second event = %q, want heartbeat", second.Type)
		}
	case <-ctx.Done():
		t.Fatal("timed out waiting for followed event")
	}

	cancel()
	// Channel must close after cancellation.
	deadline := time.After(2 * time.Second)
	for {
		select {
		case _, ok := <-ch:
			if !ok {
				return
			}
		case <-deadline:
			t.Fatal("channel did not close after cancel")
		}
	}
}
