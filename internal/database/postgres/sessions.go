package postgres

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/kozaktomas/face-attendance/internal/attendance"
	"github.com/kozaktomas/face-attendance/internal/database"
)

var _ database.Backend = (*AttendanceRepository)(nil)

// AttendanceRepository provides PostgreSQL-backed attendance archiving
type AttendanceRepository struct {
	pool *Pool
}

// NewAttendanceRepository creates a new PostgreSQL attendance repository
func NewAttendanceRepository(pool *Pool) *AttendanceRepository {
	return &AttendanceRepository{pool: pool}
}

// Name identifies the backend in logs
func (r *AttendanceRepository) Name() string {
	return "postgres"
}

// Close closes the underlying pool
func (r *AttendanceRepository) Close() error {
	return r.pool.Close()
}

// StartSession stores a new session
func (r *AttendanceRepository) StartSession(ctx context.Context, s attendance.Session) error {
	query := `
		INSERT INTO attendance_sessions (id, name, started_at, file_path)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (id) DO UPDATE SET
			name = EXCLUDED.name,
			started_at = EXCLUDED.started_at,
			file_path = EXCLUDED.file_path
	`

	_, err := r.pool.Exec(ctx, query, s.ID, s.Name, s.Start, s.File)
	if err != nil {
		return fmt.Errorf("save session: %w", err)
	}
	return nil
}

// EndSession stores the end time of a session
func (r *AttendanceRepository) EndSession(ctx context.Context, sessionID string, end time.Time) error {
	_, err := r.pool.Exec(ctx, "UPDATE attendance_sessions SET ended_at = $2 WHERE id = $1", sessionID, end)
	if err != nil {
		return fmt.Errorf("end session: %w", err)
	}
	return nil
}

// ListSessions returns the most recent sessions with their attendance counts
func (r *AttendanceRepository) ListSessions(ctx context.Context, limit int) ([]database.StoredSession, error) {
	if limit <= 0 {
		limit = 100
	}
	query := `
		SELECT s.id, s.name, s.started_at, s.ended_at, s.file_path, COUNT(r.person_key)
		FROM attendance_sessions s
		LEFT JOIN attendance_records r ON r.session_id = s.id
		GROUP BY s.id
		ORDER BY s.started_at DESC
		LIMIT $1
	`

	rows, err := r.pool.Query(ctx, query, limit)
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
