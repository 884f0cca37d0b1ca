// Package throttle suppresses repeated events for the same key within a cooldown.
package throttle

import (
	"sync"
	"time"
)

// Throttler remembers when each key last emitted.
type Throttler struct {
	mu   sync.Mutex
	last map[string]time.Time
}

func New() *Throttler {
	return &Throttler{last: make(map[string]time.Time)}
}

// ShouldEmit reports whether an event for key may be emitted at now and, if so,
// records now as the key's last emission. A key emits when it was never seen
// or when at least cooldown has elapsed since its last emission.
func (t *Throttler) ShouldEmit(key string, now time.Time, cooldown time.Duration) bool {
	t.mu.Lock()
	defer t.mu.Unlock()

	if last, ok := t.last[key]; ok && now.Sub(last) < cooldown {
		return false
	}
	t.last[key] = now
	return true
}

// Prune forgets keys that have not emitted within maxAge of now.
// It returns the number of keys removed.
func (t *Throttler) Prune(now time.Time, maxAge time.Duration) int {
	t.mu.Lock()
	defer t.mu.Unlock()

	removed := 0
	for key, last := range t.last {
		if now.Sub(last) > maxAge {
			delete(t.last, key)
			removed++
		}
	}
	return removed
}

// Len returns the number of tracked keys.
func (t *Throttler) Len() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.last)
}

// Reset forgets every key.
func (t *Throttler) Reset() {
	t.mu.Lock()
	defer t.mu.Unlock()
	clear(t.last)
}
