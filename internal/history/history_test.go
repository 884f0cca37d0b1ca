package history

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func TestLog_BoundedMostRecentFirst(t *testing.T) {
	l, err := New(3, "")
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}
	base := time.Date(2024, 3, 1, 9, 0, 0, 0, time.UTC)

	for i, name := range []string{"Alice", "Bob", "Carol", "Dave"} {
		l.Add(Event{Name: name, Timestamp: base.Add(time.Duration(i) * time.Second)})
	}

	recent := l.Recent(0)
	if len(recent) != 3 {
		t.Fatalf("expected 3 events, got %d", len(recent))
	}
	for i, want := range []string{"Dave", "Carol", "Bob"} {
		if recent[i].Name != want {
			t.Errorf("event %d = %s, want %s", i, recent[i].Name, want)
		}
	}
	if got := l.Recent(1); len(got) != 1 || got[0].Name != "Dave" {
		t.Errorf("expected only the newest event, got %+v", got)
	}
}

func TestLog_FillsIDAndTimestamp(t *testing.T) {
	l, err := New(0, "")
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}
	conf := 91.5
	e := l.Add(Event{Name: "Alice", Confidence: &conf})
	conf = 0

	if e.ID == "" || e.Timestamp.IsZero() {
		t.Errorf("expected id and timestamp to be set, got %+v", e)
	}
	if *l.Recent(1)[0].Confidence != 91.5 {
		t.Error("expected the log to keep its own copy of the confidence")
	}
	if l.size != 50 {
		t.Errorf("expected default size 50, got %d", l.size)
	}
}

func TestLog_AuditFileRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "logs", "history.jsonl")

	l, err := New(2, path)
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}
	for _, name := range []string{"Alice", "Bob", "Carol"} {
		l.Add(Event{Name: name, ExternalID: "id-" + name})
	}
	if err := l.Close(); err != nil {
		t.Fatalf("Close failed: %v", err)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("failed to read audit file: %v", err)
	}
	if got := strings.Count(string(data), "\n"); got != 3 {
		t.Errorf("expected every event in the audit file, got %d lines", got)
	}

	// Append a corrupt line; reloading must skip it.
	f, err := os.OpenFile(path, os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		t.Fatalf("failed to open audit file: %v", err)
	}
	_, _ = f.WriteString("{not json\n")
	_ = f.Close()

	reloaded, err := New(2, path)
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}
	defer reloaded.Close()

	recent := reloaded.Recent(0)
	if len(recent) != 2 || recent[0].Name != "Carol" || recent[1].Name != "Bob" {
		t.Errorf("expected the newest two events restored, got %+v", recent)
	}
}

func TestLog_Clear(t *testing.T) {
	l, _ := New(5, "")
	l.Add(Event{Name: "Alice"})
	l.Clear()
	if l.Len() != 0 {
		t.Errorf("expected empty history, got %d", l.Len())
	}
}
