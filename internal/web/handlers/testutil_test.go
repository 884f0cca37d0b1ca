package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"image"
	"image/color"
	"image/png"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/kozaktomas/face-attendance/internal/attendance"
	"github.com/kozaktomas/face-attendance/internal/facematch"
	"github.com/kozaktomas/face-attendance/internal/gallery"
	"github.com/kozaktomas/face-attendance/internal/history"
	"github.com/kozaktomas/face-attendance/internal/matcher"
	"github.com/kozaktomas/face-attendance/internal/recognition"
)

// fakeEncoder answers with the detections registered for an image's bytes,
// or with fallback for anything else (downscaled frames, captures).
type fakeEncoder struct {
	mu        sync.Mutex
	byContent map[string][]facematch.Detection
	fallback  []facematch.Detection
}

func (f *fakeEncoder) DetectAndEncode(_ context.Context, img []byte) ([]facematch.Detection, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	dets, ok := f.byContent[string(img)]
	if !ok {
		dets = f.fallback
	}
	out := make([]facematch.Detection, len(dets))
	copy(out, dets)
	return out, nil
}

func (f *fakeEncoder) setFallback(dets ...facematch.Detection) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.fallback = dets
}

type testEnv struct {
	engine      *recognition.Engine
	encoder     *fakeEncoder
	broadcaster *Broadcaster
	dir         string
}

// newTestEnv builds an engine over a gallery holding Alice (S1) and Bob.
func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	dir := t.TempDir()
	faces := filepath.Join(dir, "known_faces")
	if err := os.MkdirAll(faces, 0o755); err != nil {
		t.Fatalf("failed to create faces dir: %v", err)
	}
	for file, content := range map[string]string{"Alice.jpg": "alice-ref", "Bob.jpg": "bob-ref"} {
		if err := os.WriteFile(filepath.Join(faces, file), []byte(content), 0o644); err != nil {
			t.Fatalf("failed to write reference image: %v", err)
		}
	}
	studentsFile := filepath.Join(dir, "students.csv")
	if err := os.WriteFile(studentsFile, []byte("name,student_id\nAlice,S1\n"), 0o644); err != nil {
		t.Fatalf("failed to write students file: %v", err)
	}

	enc := &fakeEncoder{byContent: map[string][]facematch.Detection{
		"alice-ref": {{Embedding: facematch.Embedding{0, 0, 0}}},
		"bob-ref":   {{Embedding: facematch.Embedding{1, 1, 1}}},
		"no-face":   nil,
	}}
	store := gallery.NewStore(enc, gallery.Options{
		SourceDir:    faces,
		CachePath:    filepath.Join(faces, "encodings.gob"),
		StudentsFile: studentsFile,
	})
	if _, err := store.Load(context.Background(), false); err != nil {
		t.Fatalf("gallery load failed: %v", err)
	}

	hist, err := history.New(50, "")
	if err != nil {
		t.Fatalf("history.New failed: %v", err)
	}

	engine := recognition.New(store, enc, matcher.Linear{}, attendance.NewLedger(filepath.Join(dir, "attendance"), nil), hist, recognition.Options{
		Tolerance:       0.6,
		FrameScale:      0.25,
		CropPadding:     20,
		HistoryCooldown: 2 * time.Second,
		WelcomeCooldown: 5 * time.Second,
	})
	t.Cleanup(func() { _ = engine.Close() })

	b := NewBroadcaster()
	engine.AddListener(b)
	return &testEnv{engine: engine, encoder: enc, broadcaster: b, dir: dir}
}

// pngFrame returns a decodable w x h frame.
func pngFrame(t *testing.T, w, h int) []byte {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	for y := range h {
		for x := range w {
			img.Set(x, y, color.RGBA{uint8(x), uint8(y), 90, 255})
		}
	}
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		t.Fatalf("failed to encode frame: %v", err)
	}
	return buf.Bytes()
}

// requestWithChiParams creates a request with chi URL parameters
func requestWithChiParams(r *http.Request, params map[string]string) *http.Request {
	rctx := chi.NewRouteContext()
	for key, value := range params {
		rctx.URLParams.Add(key, value)
	}
	return r.WithContext(context.WithValue(r.Context(), chi.RouteCtxKey, rctx))
}

func jsonRequest(method, path, body string) *http.Request {
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	return req
}

func decodeBody[T any](t *testing.T, recorder *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	if err := json.Unmarshal(recorder.Body.Bytes(), &v); err != nil {
		t.Fatalf("failed to unmarshal response %q: %v", recorder.Body.String(), err)
	}
	return v
}
