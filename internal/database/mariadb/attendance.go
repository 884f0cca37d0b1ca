package mariadb

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/kozaktomas/face-attendance/internal/attendance"
	"github.com/kozaktomas/face-attendance/internal/database"
)

var _ database.Backend = (*AttendanceRepository)(nil)

// AttendanceRepository mirrors attendance sessions into MariaDB tables.
type AttendanceRepository struct {
	pool *Pool
}

func (r *AttendanceRepository) Name() string { return "mariadb" }

func (r *AttendanceRepository) Close() error { return r.pool.Close() }

// StartSession stores a new session.
func (r *AttendanceRepository) StartSession(ctx context.Context, s attendance.Session) error {
	query := `INSERT INTO attendance_sessions (id, name, started_at, file_path) VALUES (?, ?, ?, ?)
		ON DUPLICATE KEY UPDATE name = VALUES(name), started_at = VALUES(started_at), file_path = VALUES(file_path)`
	if _, err := r.pool.db.ExecContext(ctx, query, s.ID, s.Name, s.Start.UTC(), s.File); err != nil {
		return fmt.Errorf("save session: %w", err)
	}
	return nil
}

// RecordAttendance stores a record unless the person is already recorded in the session.
func (r *AttendanceRepository) RecordAttendance(ctx context.Context, sessionID string, rec attendance.Record) error {
	var confidence sql.NullFloat64
	if rec.Confidence != nil {
		confidence = sql.NullFloat64{Float64: *rec.Confidence, Valid: true}
	}

	query := `INSERT IGNORE INTO attendance_records (session_id, person_key, name, student_id, marked_at, confidence)
		VALUES (?, ?, ?, ?, ?, ?)`
	if _, err := r.pool.db.ExecContext(ctx, query, sessionID, rec.Key, rec.Name, rec.ExternalID, rec.At.UTC(), confidence); err != nil {
		return fmt.Errorf("save attendance record: %w", err)
	}
	return nil
}

// EndSession stores the end time of a session.
func (r *AttendanceRepository) EndSession(ctx context.Context, sessionID string, end time.Time) error {
	if _, err := r.pool.db.ExecContext(ctx, `UPDATE attendance_sessions SET ended_at = ? WHERE id = ?`, end.UTC(), sessionID); err != nil {
		return fmt.Errorf("end session: %w", err)
	}
	return nil
}

// ListSessions returns the most recent sessions with their attendance counts.
func (r *AttendanceRepository) ListSessions(ctx context.Context, limit int) ([]database.StoredSession, error) {
	if limit <= 0 {
		limit = 100
	}
	query := `SELECT s.id, s.name, s.started_at, s.ended_at, s.file_path, COUNT(r.person_key)
		FROM attendance_sessions s
		LEFT JOIN attendance_records r ON r.session_id = s.id
		GROUP BY s.id, s.name, s.started_at, s.ended_at, s.file_path
		ORDER BY s.started_at DESC
		LIMIT ?`

	rows, err := r.pool.db.QueryContext(ctx, query, limit)
	if err != nil {
		return nil, fmt.Errorf("query sessions: %w", err)
	}
	defer rows.Close()

	var sessions []database.StoredSession
	for rows.Next() {
		var s database.StoredSession
		var ended sql.NullTime
		if err := rows.Scan(&s.ID, &s.Name, &s.StartedAt, &ended, &s.File, &s.Present); err != nil {
			return nil, fmt.Errorf("scan session: %w", err)
		}
		if ended.Valid {
			s.EndedAt = &ended.Time
		}
		sessions = append(sessions, s)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate sessions: %w", err)
	}
	return sessions, nil
}

// GetSessionRecords returns the records of a session in marking order.
func (r *AttendanceRepository) GetSessionRecords(ctx context.Context, sessionID string) ([]database.StoredRecord, error) {
	query := `SELECT session_id, person_key, name, student_id, marked_at, confidence
		FROM attendance_records WHERE session_id = ? ORDER BY marked_at, person_key`

	rows, err := r.pool.db.QueryContext(ctx, query, sessionID)
	if err != nil {
		return nil, fmt.Errorf("query attendance records: %w", err)
	}
	defer rows.Close()

	var records []database.StoredRecord
	for rows.Next() {
		var rec database.StoredRecord
		var confidence sql.NullFloat64
		if err := rows.Scan(&rec.SessionID, &rec.Key, &rec.Name, &rec.ExternalID, &rec.MarkedAt, &confidence); err != nil {
			return nil, fmt.Errorf("scan attendance record: %w", err)
		}
		if confidence.Valid {
			c := confidence.Float64
			rec.Confidence = &c
		}
		records = append(records, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate attendance records: %w", err)
	}
	return records, nil
}
