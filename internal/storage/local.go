package storage

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// LocalStore keeps blobs as files under a single directory, named by a fresh
// uuid plus an extension derived from the content type. The locator is the
// file name, never a full path.
type LocalStore struct {
	dir    string
	logger *zap.Logger
}

func NewLocalStore(dir string, logger *zap.Logger) (*LocalStore, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create upload directory: %w", err)
	}
	return &LocalStore{dir: dir, logger: logger}, nil
}

func (s *LocalStore) Put(ctx context.Context, data []byte, contentType string) (string, error) {
	locator := uuid.New().String() + extensionFor(contentType)
	path := filepath.Join(s.dir, locator)
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return "", fmt.Errorf("write blob: %w", err)
	}
	s.logger.Debug("blob stored", zap.String("locator", locator), zap.Int("size", len(data)))
	return locator, nil
}

func (s *LocalStore) Get(ctx context.Context, locator string) ([]byte, error) {
	// The locator is a bare file name; reject anything trying to escape.
	if locator != filepath.Base(locator) {
		return nil, fmt.Errorf("%w: invalid locator %q", ErrNotFound, locator)
	}
	data, err := os.ReadFile(filepath.Join(s.dir, locator))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("%w: %s", ErrNotFound, locator)
		}
		return nil, fmt.Errorf("read blob: %w", err)
	}
	return data, nil
}

func extensionFor(contentType string) string {
	switch strings.ToLower(contentType) {
	case "image/jpeg", "image/jpg":
		return ".jpg"
	case "image/png":
		return ".png"
	case "image/webp":
		return ".webp"
	default:
		return ".bin"
	}
}
