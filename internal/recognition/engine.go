// Package recognition drives the attendance pipeline: it matches the faces of a
// frame against the gallery, feeds the throttled history, marks attendance and
// notifies listeners. It also owns the operating mode and the registration
// capture flow.
package recognition

import (
	"context"
	"errors"
	"fmt"
	"log"
	"math"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/kozaktomas/face-attendance/internal/attendance"
	"github.com/kozaktomas/face-attendance/internal/constants"
	"github.com/kozaktomas/face-attendance/internal/encoder"
	"github.com/kozaktomas/face-attendance/internal/facematch"
	"github.com/kozaktomas/face-attendance/internal/gallery"
	"github.com/kozaktomas/face-attendance/internal/history"
	"github.com/kozaktomas/face-attendance/internal/matcher"
	"github.com/kozaktomas/face-attendance/internal/throttle"
)

// Mode is the operating mode of the engine.
type Mode string

const (
	ModeIdle      Mode = "idle"
	ModeRegister  Mode = "register"
	ModeRecognize Mode = "recognize"
)

var (
	// ErrNoIdentities is returned when recognition is started with an empty gallery.
	ErrNoIdentities = errors.New("no registered identities, register at least one person first")
	// ErrNoFaceDetected is returned when a capture or registration image has no face.
	ErrNoFaceDetected = errors.New("no face detected, position the face clearly")
	// ErrNoCapture is returned when saving before a face was captured.
	ErrNoCapture = errors.New("no face captured")
	// ErrMissingName is returned when saving a capture without a name.
	ErrMissingName = errors.New("name is required")
	// ErrWrongMode is returned when an operation is not allowed in the current mode.
	ErrWrongMode = errors.New("operation not allowed in the current mode")
)

// Listener receives the notifications of the pipeline. Callbacks run on the
// goroutine processing the frame and must not block.
type Listener interface {
	OnWelcome(name string, confidence *float64)
	OnHistoryEvent(e history.Event)
}

// Recognition is the outcome for one detected face.
type Recognition struct {
	Box        facematch.BoundingBox `json:"box"`
	Name       string                `json:"name"`
	Known      bool                  `json:"known"`
	ExternalID string                `json:"student_id,omitempty"`
	Confidence *float64              `json:"confidence,omitempty"`
	Distance   *float64              `json:"distance,omitempty"` // nil when no gallery embedding was comparable
	Marked     bool                  `json:"marked"` // newly marked present by this face
}

// Capture is a face cut out of a frame, waiting to be saved as a reference image.
type Capture struct {
	Image []byte                `json:"-"`
	Box   facematch.BoundingBox `json:"box"`
	At    time.Time             `json:"at"`
}

// Status is a snapshot of the engine state.
type Status struct {
	Mode          Mode                `json:"mode"`
	Identities    int                 `json:"identities"`
	Embeddings    int                 `json:"embeddings"`
	SessionActive bool                `json:"session_active"`
	Session       *attendance.Session `json:"session,omitempty"`
	Present       int                 `json:"present"`
	HasCapture    bool                `json:"has_capture"`
}

// Options tunes the engine.
type Options struct {
	Tolerance       float64
	FrameScale      float64 // frames are shrunk by this factor before detection
	CropPadding     int
	HistoryCooldown time.Duration
	WelcomeCooldown time.Duration
	Now             func() time.Time
}

func (o *Options) defaults() {
	if o.Tolerance < 0 {
		o.Tolerance = constants.DefaultTolerance
	}
	if o.CropPadding < 0 {
		o.CropPadding = constants.DefaultCropPadding
	}
	if o.Now == nil {
		o.Now = time.Now
	}
}

// Engine wires the gallery, matcher, throttlers, ledger and history together.
type Engine struct {
	store   *gallery.Store
	encoder encoder.Encoder
	matcher matcher.Matcher
	ledger  *attendance.Ledger
	history *history.Log
	opts    Options

	historyThrottle *throttle.Throttler
	welcomeThrottle *throttle.Throttler

	mu        sync.Mutex
	mode      Mode
	capture   *Capture
	listeners []Listener
}

// New creates an engine in idle mode.
func New(store *gallery.Store, enc encoder.Encoder, m matcher.Matcher, ledger *attendance.Ledger, hist *history.Log, opts Options) *Engine {
	opts.defaults()
	return &Engine{
		store:           store,
		encoder:         enc,
		matcher:         m,
		ledger:          ledger,
		history:         hist,
		opts:            opts,
		historyThrottle: throttle.New(),
		welcomeThrottle: throttle.New(),
		mode:            ModeIdle,
	}
}

// AddListener registers l for welcome and history notifications.
func (e *Engine) AddListener(l Listener) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.listeners = append(e.listeners, l)
}

func (e *Engine) listenersSnapshot() []Listener {
	e.mu.Lock()
	defer e.mu.Unlock()
	return slices.Clone(e.listeners)
}

// Store returns the gallery store.
func (e *Engine) Store() *gallery.Store { return e.store }

// Ledger returns the session ledger.
func (e *Engine) Ledger() *attendance.Ledger { return e.ledger }

// History returns the recognition history.
func (e *Engine) History() *history.Log { return e.history }

// Mode returns the current operating mode.
func (e *Engine) Mode() Mode {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.mode
}

// StartRegistration switches to register mode and drops any pending capture.
func (e *Engine) StartRegistration() {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.mode = ModeRegister
	e.capture = nil
}

// StartRecognition switches to recognize mode. The gallery must not be empty.
func (e *Engine) StartRecognition() error {
	if e.store.Snapshot().Len() == 0 {
		return ErrNoIdentities
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	e.mode = ModeRecognize
	e.capture = nil
	return nil
}

// Stop returns to idle mode and drops any pending capture.
func (e *Engine) Stop() {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.mode = ModeIdle
	e.capture = nil
}

// StartSession opens an attendance session.
func (e *Engine) StartSession(name string) (attendance.Session, error) {
	return e.ledger.Start(name, e.opts.Now())
}

// EndSession closes the active attendance session.
func (e *Engine) EndSession() (attendance.Summary, error) {
	return e.ledger.End(e.opts.Now())
}

// ProcessDetections runs the pipeline for the faces of one frame, in detector order.
// Every face is processed even if recording one of them fails; the failures
// are returned joined.
func (e *Engine) ProcessDetections(_ context.Context, detections []facematch.Detection) ([]Recognition, error) {
	snap := e.store.Snapshot()
	listeners := e.listenersSnapshot()

	results := make([]Recognition, 0, len(detections))
	var errs []error
	for _, det := range detections {
		rec := e.match(snap, det)
		if rec.Known {
			now := e.opts.Now()
			e.recordHistory(rec, now, listeners)

			_, added, err := e.ledger.MarkPresent(rec.Name, rec.ExternalID, rec.Confidence, now)
			if err != nil {
				errs = append(errs, err)
			}
			if added {
				rec.Marked = true
				e.welcome(rec, now, listeners)
			}
		}
		results = append(results, rec)
	}
	return results, errors.Join(errs...)
}

func (e *Engine) match(snap *gallery.Gallery, det facematch.Detection) Recognition {
	res := e.matcher.Match(snap, det.Embedding, e.opts.Tolerance)
	rec := Recognition{
		Box:        det.Box,
		Name:       res.Name,
		Known:      res.Known,
		Confidence: res.Confidence,
	}
	if !math.IsInf(res.Distance, 0) && !math.IsNaN(res.Distance) {
		d := res.Distance
		rec.Distance = &d
	}
	if res.Known {
		rec.ExternalID = snap.ExternalID(res.Name)
	}
	return rec
}

func (e *Engine) recordHistory(rec Recognition, now time.Time, listeners []Listener) {
	key := rec.Name + "_" + rec.ExternalID
	if !e.historyThrottle.ShouldEmit(key, now, e.opts.HistoryCooldown) {
		return
	}
	ev := e.history.Add(history.Event{
		Timestamp:  now,
		Name:       rec.Name,
		ExternalID: rec.ExternalID,
		Confidence: rec.Confidence,
	})
	for _, l := range listeners {
		l.OnHistoryEvent(ev)
	}
}

func (e *Engine) welcome(rec Recognition, now time.Time, listeners []Listener) {
	if !e.welcomeThrottle.ShouldEmit(rec.Name, now, e.opts.WelcomeCooldown) {
		return
	}
	for _, l := range listeners {
		l.OnWelcome(rec.Name, rec.Confidence)
	}
}

// ProcessFrame detects the faces of an encoded frame and runs the pipeline on
// them. The frame is downscaled before detection and the boxes are mapped back
// to frame coordinates. Only allowed in recognize mode.
func (e *Engine) ProcessFrame(ctx context.Context, frame []byte) ([]Recognition, error) {
	if mode := e.Mode(); mode != ModeRecognize {
		return nil, fmt.Errorf("%w: frames are processed in %s mode, engine is %s", ErrWrongMode, ModeRecognize, mode)
	}
	detections, err := e.detect(ctx, frame)
	if err != nil {
		return nil, err
	}
	return e.ProcessDetections(ctx, detections)
}

// Identify matches the faces of an image without touching the history,
// the throttlers or the ledger.
func (e *Engine) Identify(ctx context.Context, image []byte) ([]Recognition, error) {
	detections, err := e.detect(ctx, image)
	if err != nil {
		return nil, err
	}
	snap := e.store.Snapshot()
	results := make([]Recognition, len(detections))
	for i, det := range detections {
		results[i] = e.match(snap, det)
	}
	return results, nil
}

func (e *Engine) detect(ctx context.Context, frame []byte) ([]facematch.Detection, error) {
	small, scaleBack, err := encoder.Downscale(frame, e.opts.FrameScale)
	if err != nil {
		return nil, err
	}
	detections, err := e.encoder.DetectAndEncode(ctx, small)
	if err != nil {
		return nil, fmt.Errorf("face detection failed: %w", err)
	}
	if scaleBack != 1 {
		for i := range detections {
			detections[i].Box = detections[i].Box.Scale(scaleBack)
		}
	}
	return detections, nil
}

// Capture detects faces on a full-resolution frame and keeps the first one,
// padded, as the pending registration image. Only allowed in register mode.
func (e *Engine) Capture(ctx context.Context, frame []byte) (*Capture, error) {
	if mode := e.Mode(); mode != ModeRegister {
		return nil, fmt.Errorf("%w: capture needs %s mode, engine is %s", ErrWrongMode, ModeRegister, mode)
	}

	detections, err := e.encoder.DetectAndEncode(ctx, frame)
	if err != nil {
		return nil, fmt.Errorf("face detection failed: %w", err)
	}
	if len(detections) == 0 {
		return nil, ErrNoFaceDetected
	}

	box := detections[0].Box
	crop, err := encoder.CropFace(frame, box, e.opts.CropPadding, constants.ReferenceJPEGQuality)
	if err != nil {
		return nil, err
	}

	c := &Capture{Image: crop, Box: box, At: e.opts.Now()}
	e.mu.Lock()
	e.capture = c
	e.mu.Unlock()
	return c, nil
}

// PendingCapture returns the face waiting to be saved, if any.
func (e *Engine) PendingCapture() (*Capture, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.capture, e.capture != nil
}

// SaveCapture registers the pending capture as name and clears it.
func (e *Engine) SaveCapture(ctx context.Context, name, externalID string) (string, error) {
	e.mu.Lock()
	c := e.capture
	e.mu.Unlock()

	if c == nil {
		return "", ErrNoCapture
	}
	if strings.TrimSpace(name) == "" {
		return "", ErrMissingName
	}

	path, err := e.store.AddIdentity(ctx, name, externalID, c.Image)
	if err != nil {
		return path, err
	}

	e.mu.Lock()
	if e.capture == c {
		e.capture = nil
	}
	e.mu.Unlock()
	log.Printf("Registered %s (%s) from capture", strings.TrimSpace(name), path)
	return path, nil
}

// Register adds a reference image for name after checking that it shows a face.
func (e *Engine) Register(ctx context.Context, name, externalID string, image []byte) (string, error) {
	if strings.TrimSpace(name) == "" {
		return "", ErrMissingName
	}
	detections, err := e.encoder.DetectAndEncode(ctx, image)
	if err != nil {
		return "", fmt.Errorf("face detection failed: %w", err)
	}
	if len(detections) == 0 {
		return "", ErrNoFaceDetected
	}
	return e.store.AddIdentity(ctx, name, externalID, image)
}

// Status reports the current engine state.
func (e *Engine) Status() Status {
	snap := e.store.Snapshot()
	st := Status{
		Identities: len(snap.UniqueNames()),
		Embeddings: snap.Len(),
		Present:    len(e.ledger.Roster()),
	}
	if s, ok := e.ledger.Session(); ok {
		st.SessionActive = true
		st.Session = &s
	}

	e.mu.Lock()
	st.Mode = e.mode
	st.HasCapture = e.capture != nil
	e.mu.Unlock()
	return st
}

// PruneThrottles forgets throttle keys idle for longer than maxAge. maxAge is
// raised to the longest cooldown so no key is dropped while it still throttles.
func (e *Engine) PruneThrottles(maxAge time.Duration) int {
	maxAge = max(maxAge, e.opts.HistoryCooldown, e.opts.WelcomeCooldown)
	now := e.opts.Now()
	return e.historyThrottle.Prune(now, maxAge) + e.welcomeThrottle.Prune(now, maxAge)
}

// Close ends the active session and closes the history file.
func (e *Engine) Close() error {
	return errors.Join(e.ledger.Close(e.opts.Now()), e.history.Close())
}
