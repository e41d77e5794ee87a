package service

import (
	"context"
	"errors"

	"splitsnap/internal/models"
)

var (
	// ErrProviderTimeout means one extraction attempt exceeded its deadline.
	ErrProviderTimeout = errors.New("extraction provider timed out")

	// ErrProviderUnavailable means the provider could not be reached or
	// answered with a server-side failure.
	ErrProviderUnavailable = errors.New("extraction provider unavailable")
)

// Extractor is the AI extraction capability: given image bytes, return a
// best-effort structured extraction, possibly wrong or incomplete. The
// pipeline never trusts the result without reconciliation.
type Extractor interface {
	Extract(ctx context.Context, image []byte, contentType string) (*models.RawExtraction, error)
}

// isTransient reports whether an extraction error is worth retrying.
// Malformed responses are not: the provider answered, it just answered badly.
func isTransient(err error) bool {
	return errors.Is(err, ErrProviderTimeout) || errors.Is(err, ErrProviderUnavailable)
}
