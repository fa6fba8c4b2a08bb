// Package storage defines where exported catalog documents are written.
package storage

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
)

// BlobStore persists one object and returns a URI for it.
type BlobStore interface {
	PutObject(ctx context.Context, path string, contentType string, r io.Reader) (string, error)
}

// Target pairs a store with the object path it should receive.
type Target struct {
	Name  string
	Store BlobStore
	Path  string
}

// WriteAll writes data to every target in order and returns the URIs that
// succeeded. Failures are joined; a later target is still attempted after an
// earlier one fails.
func WriteAll(ctx context.Context, targets []Target, contentType string, data []byte) ([]string, error) {
	uris := make([]string, 0, len(targets))
	var errs []error
	for _, t := range targets {
		if t.Store == nil {
			continue
		}
		uri, err := t.Store.PutObject(ctx, t.Path, contentType, bytes.NewReader(data))
		if err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", t.Name, err))
			continue
		}
		uris = append(uris, uri)
	}
	return uris, errors.Join(errs...)
}
