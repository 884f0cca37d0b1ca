// Package attendance keeps the session ledger: at most one active session,
// one attendance record per person, appended durably to the session's CSV file.
package attendance

import (
	"errors"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/kozaktomas/face-attendance/internal/constants"
	"github.com/kozaktomas/face-attendance/internal/facematch"
)

var (
	// ErrAlreadyActive is returned when a session is started while another is running.
	ErrAlreadyActive = errors.New("a session is already active")
	// ErrInvalidName is returned for a blank session name.
	ErrInvalidName = errors.New("session name is required")
	// ErrNotActive is returned when ending without an active session.
	ErrNotActive = errors.New("no active session")
)

// Session describes a running or finished attendance session.
type Session struct {
	ID    string    `json:"id"`
	Name  string    `json:"name"`
	Start time.Time `json:"start"`
	File  string    `json:"file"`
}

// Record is one person marked present in a session.
type Record struct {
	Key        string    `json:"key"` // external id, or the name when the person has none
	Name       string    `json:"name"`
	ExternalID string    `json:"student_id,omitempty"`
	At         time.Time `json:"at"`
	Confidence *float64  `json:"confidence,omitempty"`
}

// Summary is returned when a session ends.
type Summary struct {
	ID      string    `json:"id"`
	Name    string    `json:"name"`
	Start   time.Time `json:"start"`
	End     time.Time `json:"end"`
	Present int       `json:"present"`
	File    string    `json:"file"`
}

// Ledger owns the session state. All methods are safe for concurrent use.
type Ledger struct {
	dir      string
	archiver *archiver

	mu      sync.Mutex
	session *Session
	sheet   *sheet
	roster  []Record
	keys    map[string]struct{}
}

// NewLedger creates a ledger writing session files to dir.
// archive may be nil; when set, session events are mirrored to it in the background.
func NewLedger(dir string, archive Archive) *Ledger {
	l := &Ledger{dir: dir, keys: make(map[string]struct{})}
	if archive != nil {
		l.archiver = newArchiver(archive)
	}
	return l
}

// Start opens a new session named name. The session file is created and its
// header written before the session becomes active.
func (l *Ledger) Start(name string, now time.Time) (Session, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return Session{}, ErrInvalidName
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	if l.session != nil {
		return Session{}, fmt.Errorf("%w: %s", ErrAlreadyActive, l.session.Name)
	}

	if err := os.MkdirAll(l.dir, 0o755); err != nil {
		return Session{}, fmt.Errorf("failed to create attendance directory: %w", err)
	}

	base := fmt.Sprintf("%s_%s", now.Format("20060102_1504"), facematch.SanitizeFileComponent(name))
	sh, err := createSheet(l.dir, base)
	if err != nil {
		return Session{}, err
	}

	l.session = &Session{ID: uuid.NewString(), Name: name, Start: now, File: sh.path}
	l.sheet = sh
	l.roster = nil
	clear(l.keys)

	s := *l.session
	if l.archiver != nil {
		l.archiver.startSession(s)
	}
	log.Printf("Attendance session '%s' started, recording to %s", s.Name, s.File)
	return s, nil
}

// End closes the active session and returns its summary.
func (l *Ledger) End(now time.Time) (Summary, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.session == nil {
		return Summary{}, ErrNotActive
	}

	s := *l.session
	summary := Summary{
		ID:      s.ID,
		Name:    s.Name,
		Start:   s.Start,
		End:     now,
		Present: len(l.roster),
		File:    s.File,
	}

	if err := l.sheet.close(); err != nil {
		log.Printf("WARNING: failed to close attendance file %s: %v", s.File, err)
	}
	l.session = nil
	l.sheet = nil
	l.roster = nil
	clear(l.keys)

	if l.archiver != nil {
		l.archiver.endSession(s.ID, now)
	}
	log.Printf("Attendance session '%s' ended with %d present", summary.Name, summary.Present)
	return summary, nil
}

// MarkPresent records name as present in the active session.
// It returns the record and true when the person was newly marked. Marking is
// a no-op without an active session, for Unknown faces, and for people already
// present. The row is written and synced before the person enters the roster,
// so a failed write leaves the roster unchanged.
func (l *Ledger) MarkPresent(name, externalID string, confidence *float64, now time.Time) (Record, bool, error) {
	if name == "" || name == constants.UnknownName {
		return Record{}, false, nil
	}

	key := externalID
	if key == "" {
		key = name
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	if l.session == nil {
		return Record{}, false, nil
	}
	if _, ok := l.keys[key]; ok {
		return Record{}, false, nil
	}

	rec := Record{Key: key, Name: name, ExternalID: externalID, At: now}
	if confidence != nil {
		c := *confidence
		rec.Confidence = &c
	}

	if err := l.sheet.append(l.session.Name, rec); err != nil {
		return Record{}, false, fmt.Errorf("failed to record attendance for %s: %w", name, err)
	}

	l.keys[key] = struct{}{}
	l.roster = append(l.roster, rec)

	if l.archiver != nil {
		l.archiver.recordAttendance(l.session.ID, rec)
	}
	return rec, true, nil
}

// Roster returns the records of the active session in the order they were marked.
func (l *Ledger) Roster() []Record {
	l.mu.Lock()
	defer l.mu.Unlock()
	return slices.Clone(l.roster)
}

// PresentNames returns the names of the people present, sorted for display.
func (l *Ledger) PresentNames() []string {
	l.mu.Lock()
	defer l.mu.Unlock()
	names := make([]string, len(l.roster))
	for i, r := range l.roster {
		names[i] = r.Name
	}
	slices.Sort(names)
	return names
}

// Active reports whether a session is running.
func (l *Ledger) Active() bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.session != nil
}

// Session returns the active session, if any.
func (l *Ledger) Session() (Session, bool) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.session == nil {
		return Session{}, false
	}
	return *l.session, true
}

// Close ends the active session, if any, and flushes pending archive writes.
func (l *Ledger) Close(now time.Time) error {
	_, err := l.End(now)
	if errors.Is(err, ErrNotActive) {
		err = nil
	}
	if l.archiver != nil {
		l.archiver.close()
	}
	return err
}

// sessionPath names the session file: base.csv on the first attempt, then base-2.csv, base-3.csv.
func sessionPath(dir, base string, attempt int) string {
	if attempt > 1 {
		base = fmt.Sprintf("%s-%d", base, attempt)
	}
	return filepath.Join(dir, base+".csv")
}
