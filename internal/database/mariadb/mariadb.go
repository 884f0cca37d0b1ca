package mariadb

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	_ "github.com/go-sql-driver/mysql"
)

// Pool manages a MariaDB connection pool.
type Pool struct {
	db *sql.DB
}

// NewPool creates a new MariaDB connection pool.
// The DSN must enable parseTime so DATETIME columns scan into time.Time.
func NewPool(dsn string) (*Pool, error) {
	if dsn == "" {
		return nil, errors.New("MariaDB DSN is required")
	}

	db, err := sql.Open("mysql", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open MariaDB: %w", err)
	}

	db.SetMaxOpenConns(5)
	db.SetMaxIdleConns(2)
	db.SetConnMaxLifetime(time.Hour)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to ping MariaDB: %w", err)
	}

	return &Pool{db: db}, nil
}

// Close closes the connection pool.
func (p *Pool) Close() error {
	if p.db != nil {
		if err := p.db.Close(); err != nil {
			return fmt.Errorf("closing database connection: %w", err)
		}
	}
	return nil
}

var schema = []string{
	`CREATE TABLE IF NOT EXISTS attendance_sessions (
		id          CHAR(36) PRIMARY KEY,
		name        VARCHAR(255) NOT NULL,
		started_at  DATETIME(6) NOT NULL,
		ended_at    DATETIME(6) NULL,
		file_path   VARCHAR(1024) NOT NULL DEFAULT '',
		INDEX idx_attendance_sessions_started_at (started_at)
	) CHARACTER SET utf8mb4`,
	`CREATE TABLE IF NOT EXISTS attendance_records (
		session_id  CHAR(36) NOT NULL,
		person_key  VARCHAR(255) NOT NULL,
		name        VARCHAR(255) NOT NULL,
		student_id  VARCHAR(255) NOT NULL DEFAULT '',
		marked_at   DATETIME(6) NOT NULL,
		confidence  DOUBLE NULL,
		PRIMARY KEY (session_id, person_key),
		CONSTRAINT fk_attendance_records_session
			FOREIGN KEY (session_id) REFERENCES attendance_sessions (id) ON DELETE CASCADE
	) CHARACTER SET utf8mb4`,
}

// Migrate creates the attendance tables if they do not exist.
func (p *Pool) Migrate(ctx context.Context) error {
	for _, stmt := range schema {
		if _, err := p.db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("create attendance schema: %w", err)
		}
	}
	return nil
}

// Open connects to MariaDB, creates the schema and returns the attendance archive.
func Open(ctx context.Context, dsn string) (*AttendanceRepository, error) {
	pool, err := NewPool(dsn)
	if err != nil {
		return nil, err
	}
	if err := pool.Migrate(ctx); err != nil {
		_ = pool.Close()
		return nil, err
	}
	return &AttendanceRepository{pool: pool}, nil
}
