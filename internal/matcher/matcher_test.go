package matcher

import (
	"errors"
	"math"
	"math/rand/v2"
	"testing"

	"github.com/kozaktomas/face-attendance/internal/constants"
	"github.com/kozaktomas/face-attendance/internal/facematch"
	"github.com/kozaktomas/face-attendance/internal/gallery"
)

func mustGallery(t *testing.T, names []string, embs []facematch.Embedding) *gallery.Gallery {
	t.Helper()
	g, err := gallery.New(names, embs, nil)
	if err != nil {
		t.Fatalf("gallery.New failed: %v", err)
	}
	return g
}

func TestLinear_Match(t *testing.T) {
	g := mustGallery(t,
		[]string{"Alice", "Bob"},
		[]facematch.Embedding{{0, 0, 0}, {1, 1, 1}},
	)

	tests := []struct {
		name       string
		probe      facematch.Embedding
		tolerance  float64
		wantName   string
		wantKnown  bool
		confidence float64
	}{
		{"exact match", facematch.Embedding{0, 0, 0}, 0.6, "Alice", true, 100},
		{"near Alice", facematch.Embedding{0.3, 0, 0}, 0.6, "Alice", true, 70},
		{"near Bob", facematch.Embedding{1, 1, 0.8}, 0.6, "Bob", true, 80},
		{"at tolerance", facematch.Embedding{0.5, 0, 0}, 0.5, "Alice", true, 50},
		{"beyond tolerance", facematch.Embedding{0.61, 0, 0}, 0.6, constants.UnknownName, false, 0},
		{"strict tolerance", facematch.Embedding{0.3, 0, 0}, 0.2, constants.UnknownName, false, 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := Linear{}.Match(g, tt.probe, tt.tolerance)
			if r.Name != tt.wantName || r.Known != tt.wantKnown {
				t.Fatalf("got %s (known=%v), want %s (known=%v)", r.Name, r.Known, tt.wantName, tt.wantKnown)
			}
			if !tt.wantKnown {
				if r.Confidence != nil {
					t.Errorf("expected no confidence for Unknown, got %f", *r.Confidence)
				}
				return
			}
			if r.Confidence == nil {
				t.Fatal("expected a confidence for a known match")
			}
			if math.Abs(*r.Confidence-tt.confidence) > 1e-9 {
				t.Errorf("confidence = %f, want %f", *r.Confidence, tt.confidence)
			}
		})
	}
}

func TestLinear_EmptyGallery(t *testing.T) {
	r := Linear{}.Match(gallery.Empty(), facematch.Embedding{0.1, 0.2}, 0.6)
	if r.Known || r.Name != constants.UnknownName || r.Confidence != nil {
		t.Errorf("expected Unknown for empty gallery, got %+v", r)
	}
	if !math.IsInf(r.Distance, 1) || r.Index != -1 {
		t.Errorf("expected no candidate, got distance %f index %d", r.Distance, r.Index)
	}
}

func TestLinear_TiesKeepFirstOccurrence(t *testing.T) {
	g := mustGallery(t,
		[]string{"Alice", "Bob", "Carol"},
		[]facematch.Embedding{{1, 0}, {-1, 0}, {1, 0}},
	)

	r := Linear{}.Match(g, facematch.Embedding{0, 0}, 1.5)
	if r.Name != "Alice" || r.Index != 0 {
		t.Errorf("expected first occurrence Alice, got %s at %d", r.Name, r.Index)
	}
}

func TestLinear_SkipsMismatchedLengths(t *testing.T) {
	g := mustGallery(t,
		[]string{"Short", "Alice"},
		[]facematch.Embedding{{0, 0}, {0, 0, 0.1}},
	)

	r := Linear{}.Match(g, facematch.Embedding{0, 0, 0}, 0.6)
	if r.Name != "Alice" {
		t.Errorf("expected Alice, got %s", r.Name)
	}
}

func TestLinear_UnclampedConfidence(t *testing.T) {
	g := mustGallery(t, []string{"Alice"}, []facematch.Embedding{{0, 0}})

	r := Linear{}.Match(g, facematch.Embedding{1.2, 0}, 1.5)
	if !r.Known || r.Confidence == nil {
		t.Fatalf("expected a match with tolerance above 1, got %+v", r)
	}
	if math.Abs(*r.Confidence-(-20)) > 1e-9 {
		t.Errorf("expected negative confidence -20, got %f", *r.Confidence)
	}
}

func TestLinear_MultiplePhotosPerIdentity(t *testing.T) {
	g := mustGallery(t,
		[]string{"Alice", "Bob", "Alice"},
		[]facematch.Embedding{{5, 5}, {1, 1}, {0, 0}},
	)

	r := Linear{}.Match(g, facematch.Embedding{0.1, 0}, 0.6)
	if r.Name != "Alice" || r.Index != 2 {
		t.Errorf("expected Alice's second photo, got %s at %d", r.Name, r.Index)
	}
}

func randomGallery(t *testing.T, n, dim int) *gallery.Gallery {
	t.Helper()
	rng := rand.New(rand.NewPCG(42, 7))
	names := make([]string, n)
	embs := make([]facematch.Embedding, n)
	for i := range n {
		names[i] = "person-" + string(rune('A'+i%26)) + string(rune('a'+i/26))
		emb := make(facematch.Embedding, dim)
		for j := range emb {
			emb[j] = rng.Float64()*2 - 1
		}
		embs[i] = emb
	}
	return mustGallery(t, names, embs)
}

func TestHNSW_AgreesWithLinearOnGalleryProbes(t *testing.T) {
	g := randomGallery(t, 120, 16)
	index := NewHNSW(constants.HNSWCandidates)

	for _, i := range []int{0, 7, 33, 64, 101, 119} {
		probe := g.Embedding(i).Clone()
		probe[0] += 0.01

		want := Linear{}.Match(g, probe, 0.6)
		got := index.Match(g, probe, 0.6)
		if got.Name != want.Name || got.Index != want.Index {
			t.Errorf("probe %d: hnsw matched %s at %d, linear %s at %d", i, got.Name, got.Index, want.Name, want.Index)
		}
	}
}

func TestHNSW_RebuildsForNewSnapshot(t *testing.T) {
	index := NewHNSW(4)
	first := mustGallery(t, []string{"Alice"}, []facematch.Embedding{{0, 0}})
	second := mustGallery(t, []string{"Bob"}, []facematch.Embedding{{0, 0}})

	if r := index.Match(first, facematch.Embedding{0, 0}, 0.6); r.Name != "Alice" {
		t.Fatalf("expected Alice, got %s", r.Name)
	}
	if r := index.Match(second, facematch.Embedding{0, 0}, 0.6); r.Name != "Bob" {
		t.Errorf("expected index to follow the new snapshot, got %s", r.Name)
	}
}

func TestHNSW_EmptyAndMismatchedProbe(t *testing.T) {
	index := NewHNSW(4)

	if r := index.Match(gallery.Empty(), facematch.Embedding{0, 0}, 0.6); r.Known {
		t.Errorf("expected Unknown for empty gallery, got %+v", r)
	}

	g := mustGallery(t, []string{"Alice"}, []facematch.Embedding{{0, 0}})
	if r := index.Match(g, facematch.Embedding{0, 0, 0}, 0.6); r.Known {
		t.Errorf("expected Unknown for a probe of a different length, got %+v", r)
	}
}

func TestHNSW_TieBreaksOnIndex(t *testing.T) {
	g := mustGallery(t,
		[]string{"Alice", "Bob"},
		[]facematch.Embedding{{0.5, 0}, {0.5, 0}},
	)

	r := NewHNSW(4).Match(g, facematch.Embedding{0.5, 0}, 0.6)
	if r.Name != "Alice" || r.Index != 0 {
		t.Errorf("expected lowest index to win the tie, got %s at %d", r.Name, r.Index)
	}
}

func TestNew(t *testing.T) {
	tests := []struct {
		kind    string
		wantErr bool
	}{
		{KindLinear, false},
		{KindHNSW, false},
		{KindAuto, false},
		{"", false},
		{"annoy", true},
	}

	for _, tt := range tests {
		t.Run(tt.kind, func(t *testing.T) {
			m, err := New(tt.kind, 10)
			if tt.wantErr {
				if !errors.Is(err, ErrUnknownKind) {
					t.Errorf("expected ErrUnknownKind, got %v", err)
				}
				return
			}
			if err != nil || m == nil {
				t.Errorf("unexpected error: %v", err)
			}
		})
	}
}

func TestAuto_UsesLinearForSmallGalleries(t *testing.T) {
	m := &Auto{Index: NewHNSW(4), MinGallery: 10}
	g := mustGallery(t, []string{"Alice", "Bob"}, []facematch.Embedding{{0, 0}, {1, 1}})

	r := m.Match(g, facematch.Embedding{0.1, 0.1}, 0.6)
	if r.Name != "Alice" {
		t.Errorf("expected Alice, got %s", r.Name)
	}
	m.Index.mu.Lock()
	built := m.Index.built
	m.Index.mu.Unlock()
	if built != nil {
		t.Error("expected the HNSW index not to be built for a small gallery")
	}
}
