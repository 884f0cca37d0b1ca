package matcher

import (
	"math"
	"sync"

	"github.com/coder/hnsw"
	"gonum.org/v1/gonum/floats"

	"github.com/kozaktomas/face-attendance/internal/constants"
	"github.com/kozaktomas/face-attendance/internal/facematch"
	"github.com/kozaktomas/face-attendance/internal/gallery"
)

// HNSW answers matches from an approximate nearest-neighbour graph.
// The graph is built lazily for each gallery snapshot and the returned
// candidates are re-ranked by exact distance.
type HNSW struct {
	candidates int

	mu    sync.Mutex
	built *gallery.Gallery
	graph *hnsw.Graph[int]
	dim   int
}

// NewHNSW creates an index that re-ranks the given number of graph candidates.
func NewHNSW(candidates int) *HNSW {
	if candidates <= 0 {
		candidates = constants.HNSWCandidates
	}
	return &HNSW{candidates: candidates}
}

func (h *HNSW) Match(g *gallery.Gallery, probe facematch.Embedding, tolerance float64) Result {
	graph, dim := h.index(g)
	if graph == nil || dim != len(probe) {
		return Linear{}.Match(g, probe, tolerance)
	}

	neighbors := graph.Search(probe.Float32(), min(h.candidates, g.Len()))

	best, bestDist := -1, math.Inf(1)
	for _, n := range neighbors {
		d := floats.Distance(probe, g.Embedding(n.Key), 2)
		if d < bestDist || (d == bestDist && n.Key < best) {
			best, bestDist = n.Key, d
		}
	}
	return resolve(g, best, bestDist, tolerance)
}

// index returns the graph for g, building it when the snapshot changed.
// The graph is never mutated after it is built, so searches run unlocked.
func (h *HNSW) index(g *gallery.Gallery) (*hnsw.Graph[int], int) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.built == g {
		return h.graph, h.dim
	}

	h.built = g
	h.graph = nil
	h.dim = 0
	if g.Len() == 0 {
		return nil, 0
	}

	graph := hnsw.NewGraph[int]()
	graph.M = constants.HNSWMaxNeighbors
	graph.Ml = 1.0 / float64(constants.HNSWMaxNeighbors)
	graph.Distance = hnsw.EuclideanDistance

	// The graph needs a single dimensionality. Embeddings of a different
	// length can never match the probe anyway, so they are left out.
	dim := len(g.Embedding(0))
	for i := range g.Len() {
		emb := g.Embedding(i)
		if len(emb) != dim || dim == 0 {
			continue
		}
		graph.Add(hnsw.MakeNode(i, emb.Float32()))
	}
	if graph.Len() == 0 {
		return nil, 0
	}

	h.graph = graph
	h.dim = dim
	return graph, dim
}
