// Package mock provides an in-memory attendance archive for testing.
package mock

import (
	"context"
	"slices"
	"sync"
	"time"

	"github.com/kozaktomas/face-attendance/internal/attendance"
	"github.com/kozaktomas/face-attendance/internal/database"
)

// Backend is an in-memory implementation of database.Backend
type Backend struct {
	name string

	mu       sync.RWMutex
	sessions []database.StoredSession
	records  map[string][]database.StoredRecord

	// Error injection
	WriteError error
	ReadError  error
}

// NewBackend creates an empty mock backend
func NewBackend(name string) *Backend {
	return &Backend{name: name, records: make(map[string][]database.StoredRecord)}
}

func (b *Backend) Name() string { return b.name }

func (b *Backend) StartSession(_ context.Context, s attendance.Session) error {
	if b.WriteError != nil {
		return b.WriteError
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	b.sessions = append(b.sessions, database.StoredSession{
		ID:        s.ID,
		Name:      s.Name,
		StartedAt: s.Start,
		File:      s.File,
	})
	return nil
}

func (b *Backend) RecordAttendance(_ context.Context, sessionID string, rec attendance.Record) error {
	if b.WriteError != nil {
		return b.WriteError
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	for _, r := range b.records[sessionID] {
		if r.Key == rec.Key {
			return nil
		}
	}
	b.records[sessionID] = append(b.records[sessionID], database.StoredRecord{
		SessionID:  sessionID,
		Key:        rec.Key,
		Name:       rec.Name,
		ExternalID: rec.ExternalID,
		MarkedAt:   rec.At,
		Confidence: rec.Confidence,
	})
	return nil
}

func (b *Backend) EndSession(_ context.Context, sessionID string, end time.Time) error {
	if b.WriteError != nil {
		return b.WriteError
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	for i := range b.sessions {
		if b.sessions[i].ID == sessionID {
			b.sessions[i].EndedAt = &end
		}
	}
	return nil
}

func (b *Backend) ListSessions(_ context.Context, limit int) ([]database.StoredSession, error) {
	if b.ReadError != nil {
		return nil, b.ReadError
	}
	b.mu.RLock()
	defer b.mu.RUnlock()
	out := make([]database.StoredSession, 0, len(b.sessions))
	for i := len(b.sessions) - 1; i >= 0; i-- {
		s := b.sessions[i]
		s.Present = len(b.records[s.ID])
		out = append(out, s)
		if limit > 0 && len(out) == limit {
			break
		}
	}
	return out, nil
}

func (b *Backend) GetSessionRecords(_ context.Context, sessionID string) ([]database.StoredRecord, error) {
	if b.ReadError != nil {
		return nil, b.ReadError
	}
	b.mu.RLock()
	defer b.mu.RUnlock()
	return slices.Clone(b.records[sessionID]), nil
}

func (b *Backend) Close() error { return nil }
