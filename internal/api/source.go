package api

import (
	"context"
	"fmt"
	"os"
	"sync"
	"time"

	"github.com/JakeFAU/psl-catalog-crawler/internal/catalog"
)

// Source yields the catalog document to serve.
type Source interface {
	Load(ctx context.Context) (catalog.Document, error)
}

// StaticSource serves a fixed document.
type StaticSource catalog.Document

// Load returns the document.
func (s StaticSource) Load(context.Context) (catalog.Document, error) {
	return catalog.Document(s), nil
}

// FileSource reads an exported document from disk, re-reading it only when
// the file's modification time or size changes.
type FileSource struct {
	path   string
	format catalog.Format

	mu      sync.Mutex
	doc     catalog.Document
	modTime time.Time
	size    int64
}

// NewFileSource builds a FileSource; the format is inferred from the path's
// extension.
func NewFileSource(path string) *FileSource {
	return &FileSource{path: path, format: catalog.FormatForPath(path)}
}

// Load returns the current document.
func (s *FileSource) Load(context.Context) (catalog.Document, error) {
	info, err := os.Stat(s.path)
	if err != nil {
		return nil, fmt.Errorf("stat catalog: %w", err)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.doc != nil && info.ModTime().Equal(s.modTime) && info.Size() == s.size {
		return s.doc, nil
	}
	f, err := os.Open(s.path)
	if err != nil {
		return nil, fmt.Errorf("open catalog: %w", err)
	}
	defer func() { _ = f.Close() }()
	doc, err := catalog.Decode(f, s.format)
	if err != nil {
		return nil, err
	}
	s.doc, s.modTime, s.size = doc, info.ModTime(), info.Size()
	return doc, nil
}
