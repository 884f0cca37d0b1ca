package database

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/kozaktomas/face-attendance/internal/attendance"
)

// ErrNoBackend is returned when reading from an archive without backends.
var ErrNoBackend = errors.New("no attendance archive configured: set DATABASE_URL or MARIADB_DSN")

// Multi mirrors writes to every backend and serves reads from the first one.
type Multi struct {
	backends []Backend
}

// NewMulti combines the given backends. Nil backends are ignored.
func NewMulti(backends ...Backend) *Multi {
	m := &Multi{}
	for _, b := range backends {
		if b != nil {
			m.backends = append(m.backends, b)
		}
	}
	return m
}

// Len returns the number of backends.
func (m *Multi) Len() int {
	return len(m.backends)
}

// Names lists the configured backends.
func (m *Multi) Names() []string {
	names := make([]string, len(m.backends))
	for i, b := range m.backends {
		names[i] = b.Name()
	}
	return names
}

func (m *Multi) each(op string, fn func(b Backend) error) error {
	var errs []error
	for _, b := range m.backends {
		if err := fn(b); err != nil {
			errs = append(errs, fmt.Errorf("%s %s: %w", b.Name(), op, err))
		}
	}
	return errors.Join(errs...)
}

func (m *Multi) StartSession(ctx context.Context, s attendance.Session) error {
	return m.each("start session", func(b Backend) error { return b.StartSession(ctx, s) })
}

func (m *Multi) RecordAttendance(ctx context.Context, sessionID string, rec attendance.Record) error {
	return m.each("record attendance", func(b Backend) error { return b.RecordAttendance(ctx, sessionID, rec) })
}

func (m *Multi) EndSession(ctx context.Context, sessionID string, end time.Time) error {
	return m.each("end session", func(b Backend) error { return b.EndSession(ctx, sessionID, end) })
}

func (m *Multi) ListSessions(ctx context.Context, limit int) ([]StoredSession, error) {
	if len(m.backends) == 0 {
		return nil, ErrNoBackend
	}
	return m.backends[0].ListSessions(ctx, limit)
}

func (m *Multi) GetSessionRecords(ctx context.Context, sessionID string) ([]StoredRecord, error) {
	if len(m.backends) == 0 {
		return nil, ErrNoBackend
	}
	return m.backends[0].GetSessionRecords(ctx, sessionID)
}

// Close closes every backend.
func (m *Multi) Close() error {
	return m.each("close", func(b Backend) error { return b.Close() })
}
