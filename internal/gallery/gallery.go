// Package gallery holds the known identities and their reference embeddings.
//
// A Gallery is an immutable snapshot. The Store builds snapshots from the
// reference image directory (or from the cache derived from it) and swaps them
// in whole, so readers never observe a half-built gallery.
package gallery

import (
	"fmt"
	"maps"
	"slices"

	"github.com/kozaktomas/face-attendance/internal/facematch"
)

// Entry is one reference embedding and the identity it belongs to.
type Entry struct {
	Name      string
	Embedding facematch.Embedding
}

// Person summarises one identity for listings.
type Person struct {
	Name       string `json:"name"`
	ExternalID string `json:"student_id"`
	Photos     int    `json:"photos"`
}

// Gallery is an ordered list of (name, embedding) pairs plus the external id of
// every identity. Names repeat when a person has several reference photos.
type Gallery struct {
	names       []string
	embeddings  []facematch.Embedding
	externalIDs map[string]string
}

// New creates a gallery from parallel name and embedding lists.
func New(names []string, embeddings []facematch.Embedding, externalIDs map[string]string) (*Gallery, error) {
	if len(names) != len(embeddings) {
		return nil, fmt.Errorf("gallery has %d names but %d embeddings", len(names), len(embeddings))
	}
	ids := make(map[string]string, len(externalIDs))
	maps.Copy(ids, externalIDs)
	return &Gallery{
		names:       slices.Clone(names),
		embeddings:  slices.Clone(embeddings),
		externalIDs: ids,
	}, nil
}

// Empty returns a gallery without entries.
func Empty() *Gallery {
	return &Gallery{externalIDs: map[string]string{}}
}

// Len returns the number of stored embeddings. A nil gallery is empty.
func (g *Gallery) Len() int {
	if g == nil {
		return 0
	}
	return len(g.names)
}

// Name returns the identity of entry i.
func (g *Gallery) Name(i int) string {
	return g.names[i]
}

// Embedding returns the embedding of entry i.
func (g *Gallery) Embedding(i int) facematch.Embedding {
	return g.embeddings[i]
}

// Entries returns the (name, embedding) pairs in gallery order.
func (g *Gallery) Entries() []Entry {
	entries := make([]Entry, g.Len())
	for i := range entries {
		entries[i] = Entry{Name: g.names[i], Embedding: g.embeddings[i]}
	}
	return entries
}

// ExternalID returns the external identifier of name, or "" if none is set.
func (g *Gallery) ExternalID(name string) string {
	if g == nil {
		return ""
	}
	return g.externalIDs[name]
}

// UniqueNames returns every identity once, sorted.
func (g *Gallery) UniqueNames() []string {
	if g == nil {
		return nil
	}
	seen := make(map[string]struct{}, len(g.names))
	var names []string
	for _, n := range g.names {
		if _, ok := seen[n]; ok {
			continue
		}
		seen[n] = struct{}{}
		names = append(names, n)
	}
	slices.Sort(names)
	return names
}

// CountFor returns how many embeddings are stored for name.
func (g *Gallery) CountFor(name string) int {
	if g == nil {
		return 0
	}
	count := 0
	for _, n := range g.names {
		if n == name {
			count++
		}
	}
	return count
}

// People lists every identity with its external id and photo count, sorted by name.
func (g *Gallery) People() []Person {
	counts := make(map[string]int)
	for _, n := range g.namesOrNil() {
		counts[n]++
	}
	people := make([]Person, 0, len(counts))
	for _, name := range g.UniqueNames() {
		people = append(people, Person{
			Name:       name,
			ExternalID: g.ExternalID(name),
			Photos:     counts[name],
		})
	}
	return people
}

func (g *Gallery) namesOrNil() []string {
	if g == nil {
		return nil
	}
	return g.names
}
