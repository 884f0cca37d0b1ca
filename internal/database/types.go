package database

import (
	"time"
)

// StoredSession is an attendance session as kept in an archive.
type StoredSession struct {
	ID        string     `json:"id"`
	Name      string     `json:"name"`
	StartedAt time.Time  `json:"started_at"`
	EndedAt   *time.Time `json:"ended_at,omitempty"` // nil while the session runs
	File      string     `json:"file"`
	Present   int        `json:"present"`
}

// StoredRecord is one attendance record as kept in an archive.
type StoredRecord struct {
	SessionID  string    `json:"session_id"`
	Key        string    `json:"key"`
	Name       string    `json:"name"`
	ExternalID string    `json:"student_id,omitempty"`
	MarkedAt   time.Time `json:"marked_at"`
	Confidence *float64  `json:"confidence,omitempty"`
}
