package gallery

import (
	"bytes"
	"encoding/gob"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"time"

	"github.com/kozaktomas/face-attendance/internal/constants"
	"github.com/kozaktomas/face-attendance/internal/facematch"
)

// cacheVersion is bumped whenever the meaning of a cache field changes.
// Added fields do not need a bump: gob ignores fields it does not know.
const cacheVersion = 1

var errUnsupportedCacheVersion = errors.New("unsupported gallery cache version")

// SourceFile identifies one reference image for staleness detection.
type SourceFile struct {
	Name    string
	Size    int64
	ModTime time.Time
}

// cacheFile is the serialized form of a gallery: two parallel lists plus the
// manifest of the source images it was built from.
type cacheFile struct {
	Version    int
	BuiltAt    time.Time
	Manifest   []SourceFile
	Names      []string
	Embeddings [][]float64
}

// isReferenceImage reports whether name has one of the scanned image extensions.
func isReferenceImage(name string) bool {
	return slices.Contains(constants.ReferenceImageExts, strings.ToLower(filepath.Ext(name)))
}

// scanSources lists the reference images in dir, sorted by file name.
func scanSources(dir string) ([]SourceFile, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("failed to read reference directory: %w", err)
	}

	var files []SourceFile
	for _, e := range entries {
		if e.IsDir() || !isReferenceImage(e.Name()) {
			continue
		}
		info, err := e.Info()
		if err != nil {
			continue // removed between ReadDir and Info
		}
		files = append(files, SourceFile{
			Name:    e.Name(),
			Size:    info.Size(),
			ModTime: info.ModTime(),
		})
	}
	slices.SortFunc(files, func(a, b SourceFile) int { return strings.Compare(a.Name, b.Name) })
	return files, nil
}

// sameManifest reports whether two manifests describe the same source images.
func sameManifest(a, b []SourceFile) bool {
	return slices.EqualFunc(a, b, func(x, y SourceFile) bool {
		return x.Name == y.Name && x.Size == y.Size && x.ModTime.Equal(y.ModTime)
	})
}

// writeCache serializes the gallery entries and the manifest to path.
// The file is written to a temporary name first and renamed into place.
func writeCache(path string, names []string, embeddings []facematch.Embedding, manifest []SourceFile) error {
	data := cacheFile{
		Version:    cacheVersion,
		BuiltAt:    time.Now().UTC(),
		Manifest:   manifest,
		Names:      names,
		Embeddings: make([][]float64, len(embeddings)),
	}
	for i, e := range embeddings {
		data.Embeddings[i] = e
	}

	var buf bytes.Buffer
	if err := gob.NewEncoder(&buf).Encode(data); err != nil {
		return fmt.Errorf("failed to encode gallery cache: %w", err)
	}

	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, buf.Bytes(), 0600); err != nil {
		return fmt.Errorf("failed to write gallery cache: %w", err)
	}
	if err := os.Rename(tmp, path); err != nil {
		_ = os.Remove(tmp)
		return fmt.Errorf("failed to move gallery cache into place: %w", err)
	}
	return nil
}

// readCache loads a cache written by writeCache.
func readCache(path string) (*cacheFile, error) {
	data, err := os.ReadFile(path) //nolint:gosec // path is from trusted config
	if err != nil {
		return nil, fmt.Errorf("failed to read gallery cache: %w", err)
	}

	var c cacheFile
	if err := gob.NewDecoder(bytes.NewReader(data)).Decode(&c); err != nil {
		return nil, fmt.Errorf("failed to decode gallery cache: %w", err)
	}
	if c.Version != cacheVersion {
		return nil, fmt.Errorf("%w: %d", errUnsupportedCacheVersion, c.Version)
	}
	if len(c.Names) != len(c.Embeddings) {
		return nil, fmt.Errorf("corrupt gallery cache: %d names, %d embeddings", len(c.Names), len(c.Embeddings))
	}
	return &c, nil
}

func (c *cacheFile) embeddings() []facematch.Embedding {
	out := make([]facematch.Embedding, len(c.Embeddings))
	for i, e := range c.Embeddings {
		out[i] = facematch.Embedding(e)
	}
	return out
}
