package handlers

import (
	"slices"
	"sync"
	"time"

	"github.com/kozaktomas/face-attendance/internal/constants"
	"github.com/kozaktomas/face-attendance/internal/history"
	"github.com/kozaktomas/face-attendance/internal/recognition"
)

// Event types pushed to live clients.
const (
	EventWelcome = "welcome"
	EventHistory = "history"
	EventStatus  = "status"
)

// Event is one live notification.
type Event struct {
	Type    string `json:"type"`
	Message string `json:"message,omitempty"`
	Data    any    `json:"data,omitempty"`
}

// WelcomeData is the payload of a welcome event.
type WelcomeData struct {
	Name       string    `json:"name"`
	Confidence *float64  `json:"confidence,omitempty"`
	At         time.Time `json:"at"`
}

// Broadcaster fans recognition notifications out to SSE and websocket listeners.
// It implements recognition.Listener.
type Broadcaster struct {
	listeners []chan Event
	mu        sync.RWMutex
	now       func() time.Time
}

var _ recognition.Listener = (*Broadcaster)(nil)

// NewBroadcaster creates a broadcaster without listeners.
func NewBroadcaster() *Broadcaster {
	return &Broadcaster{now: time.Now}
}

// AddListener adds an event listener.
func (b *Broadcaster) AddListener() chan Event {
	b.mu.Lock()
	defer b.mu.Unlock()
	ch := make(chan Event, constants.EventChannelBuffer)
	b.listeners = append(b.listeners, ch)
	return ch
}

// RemoveListener removes an event listener and closes its channel.
func (b *Broadcaster) RemoveListener(ch chan Event) {
	b.mu.Lock()
	defer b.mu.Unlock()
	for i, listener := range b.listeners {
		if listener == ch {
			b.listeners = slices.Delete(b.listeners, i, i+1)
			close(ch)
			return
		}
	}
}

// ListenerCount returns the number of connected listeners.
func (b *Broadcaster) ListenerCount() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.listeners)
}

// SendEvent sends an event to all listeners. Slow listeners miss events
// instead of blocking the recognition pipeline.
func (b *Broadcaster) SendEvent(event Event) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	for _, listener := range b.listeners {
		select {
		case listener <- event:
		default:
			// Listener buffer full, skip.
		}
	}
}

// OnWelcome pushes a welcome notification.
func (b *Broadcaster) OnWelcome(name string, confidence *float64) {
	b.SendEvent(Event{
		Type:    EventWelcome,
		Message: "Welcome, " + name + "!",
		Data:    WelcomeData{Name: name, Confidence: confidence, At: b.now()},
	})
}

// OnHistoryEvent pushes a new recognition history entry.
func (b *Broadcaster) OnHistoryEvent(e history.Event) {
	b.SendEvent(Event{Type: EventHistory, Data: e})
}
