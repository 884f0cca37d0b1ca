package gallery

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"slices"
	"strings"
)

var studentsHeader = []string{"name", "student_id"}

// loadStudents reads the name -> external id table.
// A missing file is an empty table. Rows without a name are skipped.
func loadStudents(path string) (map[string]string, error) {
	ids := make(map[string]string)

	f, err := os.Open(path) //nolint:gosec // path is from trusted config
	if errors.Is(err, os.ErrNotExist) {
		return ids, nil
	}
	if err != nil {
		return ids, fmt.Errorf("failed to open students file: %w", err)
	}
	defer f.Close()

	r := csv.NewReader(f)
	r.FieldsPerRecord = -1
	r.TrimLeadingSpace = true

	header, err := r.Read()
	if errors.Is(err, io.EOF) {
		return ids, nil
	}
	if err != nil {
		return ids, fmt.Errorf("failed to read students header: %w", err)
	}
	nameCol, idCol := slices.Index(header, "name"), slices.Index(header, "student_id")
	if nameCol < 0 {
		return ids, errors.New("students file has no name column")
	}

	for {
		row, err := r.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return ids, fmt.Errorf("failed to read students row: %w", err)
		}
		name := column(row, nameCol)
		if name == "" {
			continue
		}
		ids[name] = column(row, idCol)
	}
	return ids, nil
}

func column(row []string, i int) string {
	if i < 0 || i >= len(row) {
		return ""
	}
	return strings.TrimSpace(row[i])
}

// saveStudents writes the table with a header row, sorted by name.
func saveStudents(path string, ids map[string]string) error {
	f, err := os.Create(path) //nolint:gosec // path is from trusted config
	if err != nil {
		return fmt.Errorf("failed to create students file: %w", err)
	}

	w := csv.NewWriter(f)
	if err := w.Write(studentsHeader); err != nil {
		_ = f.Close()
		return fmt.Errorf("failed to write students header: %w", err)
	}
	names := make([]string, 0, len(ids))
	for name := range ids {
		names = append(names, name)
	}
	slices.Sort(names)
	for _, name := range names {
		if err := w.Write([]string{name, ids[name]}); err != nil {
			_ = f.Close()
			return fmt.Errorf("failed to write students row: %w", err)
		}
	}
	w.Flush()
	if err := w.Error(); err != nil {
		_ = f.Close()
		return fmt.Errorf("failed to flush students file: %w", err)
	}
	if err := f.Close(); err != nil {
		return fmt.Errorf("failed to close students file: %w", err)
	}
	return nil
}
