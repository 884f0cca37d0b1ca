// Package history keeps the bounded, most-recent-first log of recognition
// events, optionally mirrored to an append-only JSONL file.
package history

import (
	"bufio"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"slices"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/kozaktomas/face-attendance/internal/constants"
)

// Event is one throttled recognition of a known person.
type Event struct {
	ID         string    `json:"id"`
	Timestamp  time.Time `json:"timestamp"`
	Name       string    `json:"name"`
	ExternalID string    `json:"student_id,omitempty"`
	Confidence *float64  `json:"confidence,omitempty"`
}

// Log is a fixed-capacity history. The newest event is always first.
type Log struct {
	mu     sync.Mutex
	size   int
	events []Event
	audit  *os.File
}

// New creates a history holding at most size events. When auditPath is set,
// every event is also appended to that file as a JSON line, and the newest
// events already in the file are loaded back.
func New(size int, auditPath string) (*Log, error) {
	if size <= 0 {
		size = constants.DefaultHistorySize
	}
	l := &Log{size: size}
	if auditPath == "" {
		return l, nil
	}

	if err := os.MkdirAll(filepath.Dir(auditPath), 0o755); err != nil {
		return nil, fmt.Errorf("failed to create history directory: %w", err)
	}
	events, err := readTail(auditPath, size)
	if err != nil {
		return nil, err
	}
	slices.Reverse(events)
	l.events = events

	f, err := os.OpenFile(auditPath, os.O_WRONLY|os.O_CREATE|os.O_APPEND, 0o644) //nolint:gosec // configured path
	if err != nil {
		return nil, fmt.Errorf("failed to open history log: %w", err)
	}
	l.audit = f
	return l, nil
}

// Add records an event at the front of the history, dropping the oldest one
// when the history is full. Missing ids and timestamps are filled in.
func (l *Log) Add(e Event) Event {
	if e.ID == "" {
		e.ID = uuid.NewString()
	}
	if e.Timestamp.IsZero() {
		e.Timestamp = time.Now()
	}
	if e.Confidence != nil {
		c := *e.Confidence
		e.Confidence = &c
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	l.events = slices.Insert(l.events, 0, e)
	if len(l.events) > l.size {
		l.events = l.events[:l.size]
	}

	if l.audit != nil {
		if err := appendJSONLine(l.audit, e); err != nil {
			log.Printf("WARNING: failed to append history event: %v", err)
		}
	}
	return e
}

// Recent returns up to n events, newest first. n <= 0 returns all of them.
func (l *Log) Recent(n int) []Event {
	l.mu.Lock()
	defer l.mu.Unlock()
	if n <= 0 || n > len(l.events) {
		n = len(l.events)
	}
	return slices.Clone(l.events[:n])
}

// Len returns the number of events held.
func (l *Log) Len() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.events)
}

// Clear empties the in-memory history. The audit file is left untouched.
func (l *Log) Clear() {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.events = nil
}

// Close closes the audit file.
func (l *Log) Close() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.audit == nil {
		return nil
	}
	err := l.audit.Close()
	l.audit = nil
	return err
}

func appendJSONLine(f *os.File, e Event) error {
	b, err := json.Marshal(e)
	if err != nil {
		return err
	}
	b = append(b, '\n')
	_, err = f.Write(b)
	return err
}

// readTail returns the last n events of a JSONL file in file order.
// Lines that do not decode are skipped.
func readTail(path string, n int) ([]Event, error) {
	f, err := os.Open(path) //nolint:gosec // configured path
	if errors.Is(err, os.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to open history log: %w", err)
	}
	defer f.Close()

	var events []Event
	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for scanner.Scan() {
		line := scanner.Bytes()
		if len(line) == 0 {
			continue
		}
		var e Event
		if err := json.Unmarshal(line, &e); err != nil {
			log.Printf("WARNING: skipping malformed history line: %v", err)
			continue
		}
		events = append(events, e)
		if len(events) > n {
			events = events[1:]
		}
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("failed to read history log: %w", err)
	}
	return events, nil
}
