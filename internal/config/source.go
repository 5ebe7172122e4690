package config

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"os"
	"time"
)

// Tree is a fetched Registry plus the revision identifier and commit time
// reported by the underlying versioned source.
type Tree struct {
	Registry     Registry
	Revision     string
	LastModified time.Time
}

// Source is a read-only, versioned source of the config tree. The
// production implementation is Git-backed; per spec.md section 1 that
// storage is an external collaborator out of scope here, so it is treated
// purely as "returns a validated tree at a revision". FileSource below is
// the dev/test implementation; a Git-backed Source can be swapped in
// without touching View.
type Source interface {
	// Fetch returns the current tree. Implementations must return a fresh
	// Revision whenever the underlying content changes and a stable one
	// otherwise, so View can cheaply detect "nothing changed".
	Fetch(ctx context.Context) (Tree, error)
}

// FileSource reads a JSON-encoded Registry from a local path, computing the
// revision as the content hash and LastModified from the file's mtime.
// This stands in for the Git-backed source: a real deployment points
// ConfigSourceURL at a checked-out clone of the CS repository and refreshes
// it out-of-band via a Git webhook or poll, after which FileSource (or an
// equivalent reading from the checkout) observes the new content.
type FileSource struct {
	Path string
}

func NewFileSource(path string) *FileSource {
	return &FileSource{Path: path}
}

func (f *FileSource) Fetch(ctx context.Context) (Tree, error) {
	data, err := os.ReadFile(f.Path)
	if err != nil {
		return Tree{}, fmt.Errorf("config: reading %s: %w", f.Path, err)
	}
	var reg Registry
	if err := json.Unmarshal(data, &reg); err != nil {
		return Tree{}, fmt.Errorf("config: parsing %s: %w", f.Path, err)
	}
	if err := reg.Validate(); err != nil {
		return Tree{}, err
	}
	stat, err := os.Stat(f.Path)
	if err != nil {
		return Tree{}, fmt.Errorf("config: stat %s: %w", f.Path, err)
	}
	sum := sha256.Sum256(data)
	return Tree{
		Registry:     reg,
		Revision:     hex.EncodeToString(sum[:]),
		LastModified: stat.ModTime().UTC(),
	}, nil
}
