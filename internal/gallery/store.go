package gallery

import (
	"context"
	"errors"
	"fmt"
	"log"
	"maps"
	"net/http"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync"

	"github.com/kozaktomas/face-attendance/internal/constants"
	"github.com/kozaktomas/face-attendance/internal/encoder"
	"github.com/kozaktomas/face-attendance/internal/facematch"
)

var (
	// ErrMissingName is returned when an identity is registered without a name.
	ErrMissingName = errors.New("name is required")
	// ErrInvalidName is returned for names that cannot be used as a file name.
	ErrInvalidName = errors.New("name must not contain path separators or start with a dot")
	// ErrExternalIDConflict is returned when a registration would change an identity's external id.
	ErrExternalIDConflict = errors.New("identity already has a different external id")
)

// ProgressFunc is called after every reference image processed during a rebuild.
type ProgressFunc func(done, total int)

// Options configures a Store.
type Options struct {
	SourceDir    string // directory of reference images, the source of truth
	CachePath    string // derived gallery cache
	StudentsFile string // name,student_id table
	TrustCache   bool   // reuse the cache even if the reference images changed
	OnProgress   ProgressFunc
}

// Store owns the current gallery snapshot, the identity metadata and the cache.
type Store struct {
	opts    Options
	encoder encoder.Encoder

	mu       sync.RWMutex
	current  *Gallery
	manifest []SourceFile
	ids      map[string]string

	// rebuildMu serializes rebuilds; readers are never blocked by one.
	rebuildMu sync.Mutex
}

// NewStore creates a store with an empty gallery. Call Load to populate it.
func NewStore(enc encoder.Encoder, opts Options) *Store {
	return &Store{
		opts:    opts,
		encoder: enc,
		current: Empty(),
		ids:     make(map[string]string),
	}
}

// Snapshot returns the current gallery. The returned value is never mutated.
func (s *Store) Snapshot() *Gallery {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.current
}

// UniqueNames returns the registered identities, sorted.
func (s *Store) UniqueNames() []string {
	return s.Snapshot().UniqueNames()
}

// CountFor returns the number of reference embeddings stored for name.
func (s *Store) CountFor(name string) int {
	return s.Snapshot().CountFor(name)
}

// ExternalID returns the external identifier registered for name.
func (s *Store) ExternalID(name string) string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.ids[name]
}

// Load populates the gallery. Unless forceRebuild is set, a readable cache whose
// manifest matches the reference directory is used as is; otherwise the gallery
// is rebuilt from the reference images.
func (s *Store) Load(ctx context.Context, forceRebuild bool) (*Gallery, error) {
	if err := os.MkdirAll(s.opts.SourceDir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create reference directory: %w", err)
	}

	ids, err := loadStudents(s.opts.StudentsFile)
	if err != nil {
		log.Printf("WARNING: failed to load student info: %v", err)
	}
	s.mu.Lock()
	s.ids = ids
	s.mu.Unlock()

	if !forceRebuild {
		if g, ok := s.loadFromCache(); ok {
			return g, nil
		}
	}
	return s.Rebuild(ctx)
}

// loadFromCache installs the cached gallery if it exists, decodes and is fresh.
func (s *Store) loadFromCache() (*Gallery, bool) {
	c, err := readCache(s.opts.CachePath)
	if errors.Is(err, os.ErrNotExist) {
		return nil, false
	}
	if err != nil {
		log.Printf("WARNING: gallery cache unusable, rebuilding: %v", err)
		return nil, false
	}

	manifest := c.Manifest
	if !s.opts.TrustCache {
		current, err := scanSources(s.opts.SourceDir)
		if err != nil {
			log.Printf("WARNING: %v", err)
			return nil, false
		}
		if !sameManifest(c.Manifest, current) {
			log.Printf("Gallery cache is stale (%d cached images, %d on disk), rebuilding", len(c.Manifest), len(current))
			return nil, false
		}
		manifest = current
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	g, err := New(c.Names, c.embeddings(), s.ids)
	if err != nil {
		log.Printf("WARNING: gallery cache unusable, rebuilding: %v", err)
		return nil, false
	}
	s.current = g
	s.manifest = manifest
	return g, true
}

// Rebuild encodes every reference image and swaps the result in.
// Images without a detectable face, or that fail to encode, are skipped with a warning.
// The cache is rewritten when the new gallery is not empty.
func (s *Store) Rebuild(ctx context.Context) (*Gallery, error) {
	s.rebuildMu.Lock()
	defer s.rebuildMu.Unlock()

	sources, err := scanSources(s.opts.SourceDir)
	if err != nil {
		return nil, err
	}

	s.mu.RLock()
	ids := maps.Clone(s.ids)
	s.mu.RUnlock()

	var names []string
	var embeddings []facematch.Embedding
	for i, src := range sources {
		if err := ctx.Err(); err != nil {
			return nil, fmt.Errorf("gallery rebuild interrupted: %w", err)
		}
		if emb, ok := s.encodeReference(ctx, src.Name); ok {
			names = append(names, identityName(src.Name, ids))
			embeddings = append(embeddings, emb)
		}
		if s.opts.OnProgress != nil {
			s.opts.OnProgress(i+1, len(sources))
		}
	}

	g, err := New(names, embeddings, ids)
	if err != nil {
		return nil, err
	}

	s.mu.Lock()
	s.current = g
	s.manifest = sources
	s.mu.Unlock()

	if g.Len() > 0 {
		if err := writeCache(s.opts.CachePath, names, embeddings, sources); err != nil {
			log.Printf("WARNING: cache save error: %v", err)
		}
	}
	return g, nil
}

// encodeReference returns the first face embedding found in a reference image.
func (s *Store) encodeReference(ctx context.Context, fileName string) (facematch.Embedding, bool) {
	path := filepath.Join(s.opts.SourceDir, fileName)
	data, err := os.ReadFile(path) //nolint:gosec // file comes from the reference directory listing
	if err != nil {
		log.Printf("WARNING: error loading %s: %v", path, err)
		return nil, false
	}
	detections, err := s.encoder.DetectAndEncode(ctx, data)
	if err != nil {
		log.Printf("WARNING: error encoding %s: %v", path, err)
		return nil, false
	}
	if len(detections) == 0 {
		log.Printf("WARNING: no face found in %s, skipping", path)
		return nil, false
	}
	return detections[0].Embedding.Clone(), true
}

// Save writes the current gallery to the cache. Failures are logged and returned.
func (s *Store) Save() error {
	s.mu.RLock()
	g, manifest := s.current, s.manifest
	s.mu.RUnlock()

	names := make([]string, g.Len())
	embeddings := make([]facematch.Embedding, g.Len())
	for i := range names {
		names[i] = g.Name(i)
		embeddings[i] = g.Embedding(i)
	}
	if err := writeCache(s.opts.CachePath, names, embeddings, manifest); err != nil {
		log.Printf("WARNING: cache save error: %v", err)
		return err
	}
	return nil
}

// IsStale reports whether the reference directory changed since the current
// gallery was built. Always false when the cache is trusted.
func (s *Store) IsStale() (bool, error) {
	if s.opts.TrustCache {
		return false, nil
	}
	current, err := scanSources(s.opts.SourceDir)
	if err != nil {
		return false, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	return !sameManifest(s.manifest, current), nil
}

// RefreshIfStale rebuilds the gallery when the reference directory changed.
func (s *Store) RefreshIfStale(ctx context.Context) (bool, error) {
	stale, err := s.IsStale()
	if err != nil || !stale {
		return false, err
	}
	if _, err := s.Rebuild(ctx); err != nil {
		return false, err
	}
	return true, nil
}

// AddIdentity stores a new reference image for name, records its external id
// and rebuilds the gallery. It returns the path of the written image.
// An empty externalID keeps the id already on record.
func (s *Store) AddIdentity(ctx context.Context, name, externalID string, image []byte) (string, error) {
	name = strings.TrimSpace(name)
	externalID = strings.TrimSpace(externalID)
	if err := validateName(name); err != nil {
		return "", err
	}

	s.mu.Lock()
	existing, known := s.ids[name]
	if known && existing != "" && externalID != "" && existing != externalID {
		s.mu.Unlock()
		return "", fmt.Errorf("%w: %s is registered as %q", ErrExternalIDConflict, name, existing)
	}
	if externalID == "" {
		externalID = existing
	}
	s.mu.Unlock()

	if err := os.MkdirAll(s.opts.SourceDir, 0o755); err != nil {
		return "", fmt.Errorf("failed to create reference directory: %w", err)
	}
	path, err := writeReferenceImage(s.opts.SourceDir, name, image)
	if err != nil {
		return "", err
	}

	// The id is recorded only once the person has an image on disk.
	s.mu.Lock()
	s.ids[name] = externalID
	ids := maps.Clone(s.ids)
	s.mu.Unlock()

	if err := saveStudents(s.opts.StudentsFile, ids); err != nil {
		log.Printf("WARNING: error saving student info: %v", err)
	}

	if _, err := s.Rebuild(ctx); err != nil {
		return path, fmt.Errorf("reference image saved but rebuild failed: %w", err)
	}
	return path, nil
}

func validateName(name string) error {
	if name == "" {
		return ErrMissingName
	}
	if strings.ContainsAny(name, `/\`) || strings.HasPrefix(name, ".") {
		return ErrInvalidName
	}
	return nil
}

// writeReferenceImage writes image under a collision-free name:
// name.jpg, then name2.jpg, name3.jpg and so on.
func writeReferenceImage(dir, name string, image []byte) (string, error) {
	ext := imageExt(image)
	for counter := 1; ; counter++ {
		suffix := ""
		if counter > 1 {
			suffix = strconv.Itoa(counter)
		}
		path := filepath.Join(dir, name+suffix+ext)
		f, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o644) //nolint:gosec // name is validated
		if errors.Is(err, os.ErrExist) {
			continue
		}
		if err != nil {
			return "", fmt.Errorf("failed to create reference image: %w", err)
		}
		if _, err := f.Write(image); err != nil {
			_ = f.Close()
			_ = os.Remove(path)
			return "", fmt.Errorf("failed to write reference image: %w", err)
		}
		if err := f.Close(); err != nil {
			return "", fmt.Errorf("failed to close reference image: %w", err)
		}
		return path, nil
	}
}

// imageExt picks the file extension matching the encoded image format.
func imageExt(image []byte) string {
	switch http.DetectContentType(image) {
	case "image/png":
		return ".png"
	case "image/bmp":
		return ".bmp"
	default:
		return constants.ReferenceImageExt
	}
}

// identityName derives the identity of a reference image from its file name.
// The collision suffix added by writeReferenceImage is dropped when the base
// name is a known identity, so "Alice2.jpg" is a second photo of Alice.
func identityName(fileName string, known map[string]string) string {
	stem := strings.TrimSuffix(fileName, filepath.Ext(fileName))
	if _, ok := known[stem]; ok {
		return stem
	}
	base := strings.TrimRightFunc(stem, func(r rune) bool { return r >= '0' && r <= '9' })
	if base == stem || base == "" {
		return stem
	}
	if n, err := strconv.Atoi(stem[len(base):]); err != nil || n < 2 {
		return stem
	}
	if _, ok := known[base]; ok {
		return base
	}
	return stem
}
