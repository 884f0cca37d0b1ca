package gallery

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"slices"
	"sync"
	"testing"
	"time"

	"github.com/kozaktomas/face-attendance/internal/facematch"
)

// fakeEncoder maps image contents to a single embedding.
// Contents it does not know produce no faces.
type fakeEncoder struct {
	mu    sync.Mutex
	faces map[string]facematch.Embedding
	calls int
	err   error
}

func (f *fakeEncoder) DetectAndEncode(_ context.Context, image []byte) ([]facematch.Detection, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	if f.err != nil {
		return nil, f.err
	}
	emb, ok := f.faces[string(image)]
	if !ok {
		return nil, nil
	}
	return []facematch.Detection{{Box: facematch.BoundingBox{X2: 10, Y2: 10}, Embedding: emb}}, nil
}

func (f *fakeEncoder) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

func newTestEncoder() *fakeEncoder {
	return &fakeEncoder{faces: map[string]facematch.Embedding{
		"alice-1": {0.1, 0.2, 0.3},
		"alice-2": {0.11, 0.21, 0.31},
		"bob":     {0.9, 0.8, 0.7},
		"carol":   {0.5, 0.5, 0.5},
	}}
}

func newTestStore(t *testing.T, enc *fakeEncoder) (*Store, string) {
	t.Helper()
	dir := t.TempDir()
	faces := filepath.Join(dir, "known_faces")
	store := NewStore(enc, Options{
		SourceDir:    faces,
		CachePath:    filepath.Join(faces, "encodings.gob"),
		StudentsFile: filepath.Join(dir, "students.csv"),
	})
	return store, faces
}

func writeFile(t *testing.T, path, content string) {
	t.Helper()
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		t.Fatalf("failed to create dir: %v", err)
	}
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("failed to write %s: %v", path, err)
	}
}

func TestStore_LoadBuildsFromReferenceImages(t *testing.T) {
	enc := newTestEncoder()
	store, faces := newTestStore(t, enc)
	writeFile(t, filepath.Join(faces, "Alice.jpg"), "alice-1")
	writeFile(t, filepath.Join(faces, "Blank.jpg"), "no face here")
	writeFile(t, filepath.Join(faces, "Bob.png"), "bob")
	writeFile(t, filepath.Join(faces, "notes.txt"), "carol")

	g, err := store.Load(context.Background(), false)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}

	if got := g.UniqueNames(); !slices.Equal(got, []string{"Alice", "Bob"}) {
		t.Errorf("expected Alice and Bob, got %v", got)
	}
	if g.Name(0) != "Alice" || g.Name(1) != "Bob" {
		t.Errorf("expected file name order, got %s, %s", g.Name(0), g.Name(1))
	}
	if enc.callCount() != 3 {
		t.Errorf("expected one encoder call per image, got %d", enc.callCount())
	}
	if _, err := os.Stat(filepath.Join(faces, "encodings.gob")); err != nil {
		t.Errorf("expected cache to be written: %v", err)
	}
}

func TestStore_LoadUsesFreshCache(t *testing.T) {
	enc := newTestEncoder()
	store, faces := newTestStore(t, enc)
	writeFile(t, filepath.Join(faces, "Alice.jpg"), "alice-1")
	writeFile(t, filepath.Join(faces, "Bob.jpg"), "bob")

	if _, err := store.Load(context.Background(), false); err != nil {
		t.Fatalf("first Load failed: %v", err)
	}
	calls := enc.callCount()

	g, err := store.Load(context.Background(), false)
	if err != nil {
		t.Fatalf("second Load failed: %v", err)
	}
	if enc.callCount() != calls {
		t.Errorf("expected cached load not to call the encoder, got %d extra calls", enc.callCount()-calls)
	}
	if g.Len() != 2 {
		t.Errorf("expected 2 entries from cache, got %d", g.Len())
	}
}

func TestStore_ForceRebuildIgnoresCache(t *testing.T) {
	enc := newTestEncoder()
	store, faces := newTestStore(t, enc)
	writeFile(t, filepath.Join(faces, "Alice.jpg"), "alice-1")

	if _, err := store.Load(context.Background(), false); err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	calls := enc.callCount()

	if _, err := store.Load(context.Background(), true); err != nil {
		t.Fatalf("forced Load failed: %v", err)
	}
	if enc.callCount() != calls+1 {
		t.Errorf("expected forced rebuild to re-encode, got %d calls", enc.callCount()-calls)
	}
}

func TestStore_StaleCacheIsRebuilt(t *testing.T) {
	enc := newTestEncoder()
	store, faces := newTestStore(t, enc)
	writeFile(t, filepath.Join(faces, "Alice.jpg"), "alice-1")

	if _, err := store.Load(context.Background(), false); err != nil {
		t.Fatalf("Load failed: %v", err)
	}

	writeFile(t, filepath.Join(faces, "Bob.jpg"), "bob")

	stale, err := store.IsStale()
	if err != nil {
		t.Fatalf("IsStale failed: %v", err)
	}
	if !stale {
		t.Error("expected gallery to be stale after adding an image")
	}

	g, err := store.Load(context.Background(), false)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if g.CountFor("Bob") != 1 {
		t.Errorf("expected stale cache to be rebuilt with Bob, got %v", g.UniqueNames())
	}
}

func TestStore_TrustCacheSkipsManifestCheck(t *testing.T) {
	enc := newTestEncoder()
	store, faces := newTestStore(t, enc)
	writeFile(t, filepath.Join(faces, "Alice.jpg"), "alice-1")
	if _, err := store.Load(context.Background(), false); err != nil {
		t.Fatalf("Load failed: %v", err)
	}

	writeFile(t, filepath.Join(faces, "Bob.jpg"), "bob")
	trusting := NewStore(enc, Options{
		SourceDir:    store.opts.SourceDir,
		CachePath:    store.opts.CachePath,
		StudentsFile: store.opts.StudentsFile,
		TrustCache:   true,
	})

	g, err := trusting.Load(context.Background(), false)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if g.CountFor("Bob") != 0 {
		t.Error("expected trusted cache to be used even though it is stale")
	}
	if stale, _ := trusting.IsStale(); stale {
		t.Error("expected trusted store never to report staleness")
	}
}

func TestStore_CorruptCacheFallsBackToRebuild(t *testing.T) {
	enc := newTestEncoder()
	store, faces := newTestStore(t, enc)
	writeFile(t, filepath.Join(faces, "Alice.jpg"), "alice-1")
	writeFile(t, filepath.Join(faces, "encodings.gob"), "garbage")

	g, err := store.Load(context.Background(), false)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if g.CountFor("Alice") != 1 {
		t.Errorf("expected rebuild after corrupt cache, got %v", g.UniqueNames())
	}
}

func TestStore_EncoderErrorsSkipImages(t *testing.T) {
	enc := newTestEncoder()
	enc.err = errors.New("embedding server down")
	store, faces := newTestStore(t, enc)
	writeFile(t, filepath.Join(faces, "Alice.jpg"), "alice-1")

	g, err := store.Load(context.Background(), false)
	if err != nil {
		t.Fatalf("Load should not fail on per-image errors: %v", err)
	}
	if g.Len() != 0 {
		t.Errorf("expected empty gallery, got %d entries", g.Len())
	}
	if _, err := os.Stat(filepath.Join(faces, "encodings.gob")); !errors.Is(err, os.ErrNotExist) {
		t.Error("expected no cache for an empty gallery")
	}
}

func TestStore_SaveLoadRoundTrip(t *testing.T) {
	enc := newTestEncoder()
	store, faces := newTestStore(t, enc)
	writeFile(t, filepath.Join(faces, "Bob.jpg"), "bob")
	writeFile(t, filepath.Join(faces, "Alice.jpg"), "alice-1")
	writeFile(t, filepath.Join(faces, "Carol.jpg"), "carol")

	original, err := store.Load(context.Background(), true)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if err := store.Save(); err != nil {
		t.Fatalf("Save failed: %v", err)
	}

	reloaded := NewStore(&fakeEncoder{err: errors.New("must not be called")}, store.opts)
	g, err := reloaded.Load(context.Background(), false)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}

	if !slices.EqualFunc(original.Entries(), g.Entries(), func(a, b Entry) bool {
		return a.Name == b.Name && slices.Equal(a.Embedding, b.Embedding)
	}) {
		t.Errorf("round trip mismatch:\n got %+v\nwant %+v", g.Entries(), original.Entries())
	}
}

func TestStore_AddIdentity(t *testing.T) {
	enc := newTestEncoder()
	store, faces := newTestStore(t, enc)
	ctx := context.Background()
	if _, err := store.Load(ctx, false); err != nil {
		t.Fatalf("Load failed: %v", err)
	}

	first, err := store.AddIdentity(ctx, " Alice ", "S1", []byte("alice-1"))
	if err != nil {
		t.Fatalf("AddIdentity failed: %v", err)
	}
	second, err := store.AddIdentity(ctx, "Alice", "", []byte("alice-2"))
	if err != nil {
		t.Fatalf("second AddIdentity failed: %v", err)
	}

	if filepath.Base(first) != "Alice.jpg" {
		t.Errorf("expected Alice.jpg, got %s", filepath.Base(first))
	}
	if filepath.Base(second) != "Alice2.jpg" {
		t.Errorf("expected Alice2.jpg, got %s", filepath.Base(second))
	}
	if got := store.CountFor("Alice"); got != 2 {
		t.Errorf("expected 2 embeddings for Alice, got %d", got)
	}
	if got := store.ExternalID("Alice"); got != "S1" {
		t.Errorf("expected external id to be kept, got '%s'", got)
	}
	if got := store.Snapshot().ExternalID("Alice"); got != "S1" {
		t.Errorf("expected snapshot to carry external id, got '%s'", got)
	}

	data, err := os.ReadFile(store.opts.StudentsFile)
	if err != nil {
		t.Fatalf("failed to read students file: %v", err)
	}
	if string(data) != "name,student_id\nAlice,S1\n" {
		t.Errorf("unexpected students file:\n%s", data)
	}
	if _, err := os.Stat(filepath.Join(faces, "encodings.gob")); err != nil {
		t.Errorf("expected cache after registration: %v", err)
	}
}

func TestStore_AddIdentityRejectsBadInput(t *testing.T) {
	enc := newTestEncoder()
	store, faces := newTestStore(t, enc)
	ctx := context.Background()

	if _, err := store.AddIdentity(ctx, "Alice", "S1", []byte("alice-1")); err != nil {
		t.Fatalf("AddIdentity failed: %v", err)
	}

	tests := []struct {
		name       string
		identity   string
		externalID string
		wantErr    error
	}{
		{"blank name", "   ", "S9", ErrMissingName},
		{"path separator", "../Alice", "S9", ErrInvalidName},
		{"hidden file", ".Alice", "S9", ErrInvalidName},
		{"changed external id", "Alice", "S2", ErrExternalIDConflict},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := store.AddIdentity(ctx, tt.identity, tt.externalID, []byte("alice-2"))
			if !errors.Is(err, tt.wantErr) {
				t.Errorf("expected %v, got %v", tt.wantErr, err)
			}
		})
	}

	entries, err := os.ReadDir(faces)
	if err != nil {
		t.Fatalf("failed to read faces dir: %v", err)
	}
	images := 0
	for _, e := range entries {
		if isReferenceImage(e.Name()) {
			images++
		}
	}
	if images != 1 {
		t.Errorf("expected rejected registrations not to write images, found %d", images)
	}
}

func TestStore_AddIdentityFailedWriteKeepsMetadata(t *testing.T) {
	enc := newTestEncoder()
	store, faces := newTestStore(t, enc)
	ctx := context.Background()

	// A plain file where the reference directory should be makes the image write fail.
	writeFile(t, faces, "not a directory")
	if _, err := store.AddIdentity(ctx, "Carol", "S3", []byte("carol")); err == nil {
		t.Fatal("expected AddIdentity to fail")
	}
	if got := store.ExternalID("Carol"); got != "" {
		t.Errorf("expected no external id for Carol, got '%s'", got)
	}

	if err := os.Remove(faces); err != nil {
		t.Fatalf("failed to remove blocking file: %v", err)
	}
	if _, err := store.AddIdentity(ctx, "Bob", "S2", []byte("bob")); err != nil {
		t.Fatalf("AddIdentity failed: %v", err)
	}
	data, err := os.ReadFile(store.opts.StudentsFile)
	if err != nil {
		t.Fatalf("failed to read students file: %v", err)
	}
	if string(data) != "name,student_id\nBob,S2\n" {
		t.Errorf("unexpected students file:\n%s", data)
	}
}

func TestStore_RefreshIfStale(t *testing.T) {
	enc := newTestEncoder()
	store, faces := newTestStore(t, enc)
	ctx := context.Background()
	writeFile(t, filepath.Join(faces, "Alice.jpg"), "alice-1")
	if _, err := store.Load(ctx, false); err != nil {
		t.Fatalf("Load failed: %v", err)
	}

	refreshed, err := store.RefreshIfStale(ctx)
	if err != nil {
		t.Fatalf("RefreshIfStale failed: %v", err)
	}
	if refreshed {
		t.Error("expected no refresh for an unchanged directory")
	}

	// Make sure the new file gets a different modification time from the first.
	time.Sleep(10 * time.Millisecond)
	writeFile(t, filepath.Join(faces, "Bob.jpg"), "bob")

	refreshed, err = store.RefreshIfStale(ctx)
	if err != nil {
		t.Fatalf("RefreshIfStale failed: %v", err)
	}
	if !refreshed {
		t.Error("expected refresh after adding an image")
	}
	if store.CountFor("Bob") != 1 {
		t.Errorf("expected Bob after refresh, got %v", store.UniqueNames())
	}
}

func TestIdentityName(t *testing.T) {
	known := map[string]string{"Alice": "S1", "Agent47": "S47"}

	tests := []struct {
		file     string
		expected string
	}{
		{"Alice.jpg", "Alice"},
		{"Alice2.jpg", "Alice"},
		{"Alice13.png", "Alice"},
		{"Alice1.jpg", "Alice1"},
		{"Agent47.jpg", "Agent47"},
		{"Bob2.jpg", "Bob2"},
		{"2024.jpg", "2024"},
		{"Carol.bmp", "Carol"},
	}

	for _, tt := range tests {
		t.Run(tt.file, func(t *testing.T) {
			if got := identityName(tt.file, known); got != tt.expected {
				t.Errorf("identityName(%q) = %q, want %q", tt.file, got, tt.expected)
			}
		})
	}
}
