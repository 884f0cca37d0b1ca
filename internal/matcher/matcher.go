// Package matcher assigns an identity to a face embedding by nearest-neighbour
// search over a gallery snapshot.
package matcher

import (
	"errors"
	"fmt"
	"math"

	"gonum.org/v1/gonum/floats"

	"github.com/kozaktomas/face-attendance/internal/constants"
	"github.com/kozaktomas/face-attendance/internal/facematch"
	"github.com/kozaktomas/face-attendance/internal/gallery"
)

// Matcher kinds accepted by New.
const (
	KindLinear = "linear"
	KindHNSW   = "hnsw"
	KindAuto   = "auto"
)

// ErrUnknownKind is returned by New for an unsupported matcher kind.
var ErrUnknownKind = errors.New("unknown matcher kind")

// Result is the outcome of matching one embedding.
type Result struct {
	Name       string   `json:"name"`
	Known      bool     `json:"known"`
	Confidence *float64 `json:"confidence,omitempty"` // nil when Unknown
	Distance   float64  `json:"distance"`             // +Inf when nothing was comparable
	Index      int      `json:"-"`                    // gallery index of the best candidate, -1 if none
}

// Unknown returns the result for a face that matched nobody.
func Unknown() Result {
	return Result{Name: constants.UnknownName, Distance: math.Inf(1), Index: -1}
}

// Matcher finds the identity of an embedding in a gallery.
// A match is accepted when the smallest Euclidean distance is at most tolerance.
type Matcher interface {
	Match(g *gallery.Gallery, probe facematch.Embedding, tolerance float64) Result
}

// New returns the matcher for kind. With KindAuto the HNSW index is used once
// the gallery holds at least minGallery embeddings.
func New(kind string, minGallery int) (Matcher, error) {
	switch kind {
	case KindLinear:
		return Linear{}, nil
	case KindHNSW:
		return NewHNSW(constants.HNSWCandidates), nil
	case KindAuto, "":
		return &Auto{Index: NewHNSW(constants.HNSWCandidates), MinGallery: minGallery}, nil
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownKind, kind)
	}
}

// Linear compares the probe against every gallery embedding.
type Linear struct{}

func (Linear) Match(g *gallery.Gallery, probe facematch.Embedding, tolerance float64) Result {
	best, bestDist := -1, math.Inf(1)
	for i := range g.Len() {
		emb := g.Embedding(i)
		if len(emb) != len(probe) {
			continue
		}
		// strict comparison keeps the first occurrence on ties
		if d := floats.Distance(probe, emb, 2); d < bestDist {
			best, bestDist = i, d
		}
	}
	return resolve(g, best, bestDist, tolerance)
}

// resolve turns the best candidate into a Result.
func resolve(g *gallery.Gallery, best int, dist, tolerance float64) Result {
	if best < 0 {
		return Unknown()
	}
	if dist > tolerance {
		r := Unknown()
		r.Distance = dist
		r.Index = best
		return r
	}
	confidence := (1 - dist) * 100
	return Result{
		Name:       g.Name(best),
		Known:      true,
		Confidence: &confidence,
		Distance:   dist,
		Index:      best,
	}
}

// Auto switches from a linear scan to the HNSW index for large galleries.
type Auto struct {
	Index      *HNSW
	MinGallery int
}

func (a *Auto) Match(g *gallery.Gallery, probe facematch.Embedding, tolerance float64) Result {
	if a.Index != nil && a.MinGallery > 0 && g.Len() >= a.MinGallery {
		return a.Index.Match(g, probe, tolerance)
	}
	return Linear{}.Match(g, probe, tolerance)
}
