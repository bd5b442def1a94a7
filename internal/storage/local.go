package storage

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"github.com/rs/zerolog/log"
)

// FileStore stores objects on the local filesystem under a configured root,
// sharded into YYYY/MM/DD subdirectories to bound per-directory entry counts.
type FileStore struct {
	root string
}

// NewFileStore creates the root directory if absent and returns a ready store.
func NewFileStore(root string) (*FileStore, error) {
	abs, err := filepath.Abs(root)
	if err != nil {
		return nil, fmt.Errorf("resolve upload dir: %w", err)
	}
	if err := os.MkdirAll(abs, 0o755); err != nil {
		return nil, fmt.Errorf("create upload dir %q: %w", abs, err)
	}
	log.Info().Str("dir", abs).Msg("upload directory ready")
	return &FileStore{root: abs}, nil
}

// Save writes data under a content-addressed, date-sharded relative path and
// returns that path (always forward-slash separated).
func (s *FileStore) Save(_ context.Context, data []byte, originalName string) (string, error) {
	rel := buildObjectPath(data, originalName, time.Now(), func(candidate string) bool {
		_, err := os.Stat(s.ResolvePath(candidate))
		return err == nil
	})

	target := s.ResolvePath(rel)
	if err := os.MkdirAll(filepath.Dir(target), 0o755); err != nil {
		return "", fmt.Errorf("create shard dir: %w: %w", ErrIO, err)
	}
	if err := os.WriteFile(target, data, 0o644); err != nil {
		return "", fmt.Errorf("write %s: %w: %w", rel, ErrIO, err)
	}

	log.Info().Str("path", rel).Int("bytes", len(data)).Msg("file saved")
	return rel, nil
}

// ResolvePath joins relPath onto the store root. Pure path computation, no I/O.
func (s *FileStore) ResolvePath(relPath string) string {
	return filepath.Join(s.root, filepath.FromSlash(relPath))
}

// Open returns a reader for the stored file at relPath.
func (s *FileStore) Open(_ context.Context, relPath string) (io.ReadCloser, error) {
	f, err := os.Open(s.ResolvePath(relPath))
	if err != nil {
		return nil, fmt.Errorf("open %s: %w: %w", relPath, ErrIO, err)
	}
	return f, nil
}

// Exists reports whether a regular file is present at relPath.
func (s *FileStore) Exists(_ context.Context, relPath string) bool {
	info, err := os.Stat(s.ResolvePath(relPath))
	return err == nil && info.Mode().IsRegular()
}

// Size returns the file size in bytes, or false when missing or on error.
func (s *FileStore) Size(_ context.Context, relPath string) (int64, bool) {
	info, err := os.Stat(s.ResolvePath(relPath))
	if err != nil {
		return 0, false
	}
	return info.Size(), true
}

// Delete removes the file at relPath. Returns false when the file was
// already absent or removal failed.
func (s *FileStore) Delete(_ context.Context, relPath string) bool {
	target := s.ResolvePath(relPath)
	if _, err := os.Stat(target); err != nil {
		log.Warn().Str("path", relPath).Msg("cannot delete non-existent file")
		return false
	}
	if err := os.Remove(target); err != nil {
		log.Error().Err(err).Str("path", relPath).Msg("failed to delete file")
		return false
	}
	log.Info().Str("path", relPath).Msg("file deleted")
	return true
}
