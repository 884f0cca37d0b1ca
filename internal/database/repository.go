package database

import (
	"context"

	"github.com/kozaktomas/face-attendance/internal/attendance"
)

// AttendanceReader provides read access to archived sessions
type AttendanceReader interface {
	// ListSessions returns the most recent sessions first, at most limit of them
	ListSessions(ctx context.Context, limit int) ([]StoredSession, error)
	// GetSessionRecords returns the records of a session in marking order, empty if the session is unknown
	GetSessionRecords(ctx context.Context, sessionID string) ([]StoredRecord, error)
}

// Backend is an attendance archive that can also be queried
type Backend interface {
	attendance.Archive
	AttendanceReader

	// Name identifies the backend in logs
	Name() string
	Close() error
}
