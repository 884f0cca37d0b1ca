package throttle

import (
	"sync"
	"sync/atomic"
	"testing"
	"time"
)

func TestShouldEmit(t *testing.T) {
	base := time.Date(2024, 3, 1, 9, 0, 0, 0, time.UTC)
	cooldown := 2 * time.Second

	tests := []struct {
		name   string
		key    string
		offset time.Duration
		want   bool
	}{
		{"first event emits", "Alice_S1", 0, true},
		{"within cooldown", "Alice_S1", 1500 * time.Millisecond, false},
		{"other key unaffected", "Bob_", 1500 * time.Millisecond, true},
		{"exactly at cooldown", "Alice_S1", 2 * time.Second, true},
		{"suppressed event does not extend window", "Alice_S1", 3 * time.Second, false},
		{"after cooldown again", "Alice_S1", 4 * time.Second, true},
	}

	th := New()
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := th.ShouldEmit(tt.key, base.Add(tt.offset), cooldown); got != tt.want {
				t.Errorf("ShouldEmit(%s, +%v) = %v, want %v", tt.key, tt.offset, got, tt.want)
			}
		})
	}
}

func TestShouldEmit_ZeroCooldown(t *testing.T) {
	th := New()
	now := time.Now()
	for range 3 {
		if !th.ShouldEmit("Alice", now, 0) {
			t.Fatal("expected every event to emit without a cooldown")
		}
	}
}

func TestShouldEmit_ConcurrentCallersEmitOnce(t *testing.T) {
	th := New()
	now := time.Now()
	var emitted atomic.Int32
	var wg sync.WaitGroup

	for range 50 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if th.ShouldEmit("Alice", now, time.Minute) {
				emitted.Add(1)
			}
		}()
	}
	wg.Wait()

	if emitted.Load() != 1 {
		t.Errorf("expected exactly one emission, got %d", emitted.Load())
	}
}

func TestPrune(t *testing.T) {
	th := New()
	base := time.Date(2024, 3, 1, 9, 0, 0, 0, time.UTC)

	th.ShouldEmit("old", base, time.Second)
	th.ShouldEmit("recent", base.Add(9*time.Minute), time.Second)

	removed := th.Prune(base.Add(11*time.Minute), 10*time.Minute)
	if removed != 1 {
		t.Errorf("expected 1 key removed, got %d", removed)
	}
	if th.Len() != 1 {
		t.Errorf("expected 1 key left, got %d", th.Len())
	}
	if !th.ShouldEmit("old", base.Add(11*time.Minute), time.Hour) {
		t.Error("expected a pruned key to emit again")
	}

	th.Reset()
	if th.Len() != 0 {
		t.Errorf("expected no keys after Reset, got %d", th.Len())
	}
}
