package attendance

import (
	"encoding/csv"
	"errors"
	"fmt"
	"os"
)

var sheetHeader = []string{"session_name", "date", "time", "person", "student_id", "confidence"}

// sheet is the append-only CSV file of one session.
type sheet struct {
	path string
	f    *os.File
	w    *csv.Writer
}

// createSheet creates a new session file named base.csv, or base-2.csv,
// base-3.csv and so on when earlier names are taken, and writes the header.
func createSheet(dir, base string) (*sheet, error) {
	for attempt := 1; ; attempt++ {
		path := sessionPath(dir, base, attempt)
		f, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o644) //nolint:gosec // name is sanitized
		if errors.Is(err, os.ErrExist) {
			continue
		}
		if err != nil {
			return nil, fmt.Errorf("failed to create attendance file: %w", err)
		}

		s := &sheet{path: path, f: f, w: csv.NewWriter(f)}
		if err := s.write(sheetHeader); err != nil {
			_ = f.Close()
			_ = os.Remove(path)
			return nil, fmt.Errorf("failed to write attendance header: %w", err)
		}
		return s, nil
	}
}

func (s *sheet) append(session string, rec Record) error {
	confidence := "-"
	if rec.Confidence != nil {
		confidence = fmt.Sprintf("%.1f%%", *rec.Confidence)
	}
	return s.write([]string{
		session,
		rec.At.Format("2006-01-02"),
		rec.At.Format("15:04:05"),
		rec.Name,
		rec.ExternalID,
		confidence,
	})
}

// write appends one row and syncs it to disk.
func (s *sheet) write(row []string) error {
	if err := s.w.Write(row); err != nil {
		return err
	}
	s.w.Flush()
	if err := s.w.Error(); err != nil {
		return err
	}
	return s.f.Sync()
}

func (s *sheet) close() error {
	s.w.Flush()
	if err := s.w.Error(); err != nil {
		_ = s.f.Close()
		return err
	}
	return s.f.Close()
}
