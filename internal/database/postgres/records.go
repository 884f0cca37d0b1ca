package postgres

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/kozaktomas/face-attendance/internal/attendance"
	"github.com/kozaktomas/face-attendance/internal/database"
)

// RecordAttendance stores a record. A record already stored for the same
// person in the session is kept, matching the first-observation-wins ledger.
func (r *AttendanceRepository) RecordAttendance(ctx context.Context, sessionID string, rec attendance.Record) error {
	query := `
		INSERT INTO attendance_records (session_id, person_key, name, student_id, marked_at, confidence)
		VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (session_id, person_key) DO NOTHING
	`

	var confidence sql.NullFloat64
	if rec.Confidence != nil {
		confidence = sql.NullFloat64{Float64: *rec.Confidence, Valid: true}
	}

	_, err := r.pool.Exec(ctx, query, sessionID, rec.Key, rec.Name, rec.ExternalID, rec.At, confidence)
	if err != nil {
		return fmt.Errorf("save attendance record: %w", err)
	}
	return nil
}

// GetSessionRecords returns the records of a session in marking order
func (r *AttendanceRepository) GetSessionRecords(ctx context.Context, sessionID string) ([]database.StoredRecord, error) {
	query := `
		SELECT session_id, person_key, name, student_id, marked_at, confidence
		FROM attendance_records
		WHERE session_id = $1
		ORDER BY marked_at, person_key
	`

	rows, err := r.pool.Query(ctx, query, sessionID)
	if err != nil {
		return nil, fmt.Errorf("query attendance records: %w", err)
	}
	defer rows.Close()

	return scanRecords(rows)
}

func scanRecords(rows *sql.Rows) ([]database.StoredRecord, error) {
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
