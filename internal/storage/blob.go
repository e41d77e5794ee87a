// Package storage holds the blob store the engine keeps original receipt
// images in. The engine only ever puts and gets opaque bytes by locator.
package storage

import (
	"context"
	"errors"
)

// ErrNotFound is returned when no blob exists for a locator.
var ErrNotFound = errors.New("blob not found")

// BlobStore is an id-addressed store for receipt images.
type BlobStore interface {
	// Put stores the bytes and returns an opaque locator for them.
	Put(ctx context.Context, data []byte, contentType string) (string, error)
	// Get returns the bytes stored under the locator.
	Get(ctx context.Context, locator string) ([]byte, error)
}
