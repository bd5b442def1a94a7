// Package storage implements content-addressed blob storage for uploaded files.
// Objects are keyed by a relative path of the form YYYY/MM/DD/<hash8>_<stem><ext>;
// this layout is persisted in image rows and must not change without a
// migration plan. Swap implementations by changing the concrete type injected
// at startup — the MinIO implementation works with any S3-compatible provider.
package storage

import (
	"context"
	"errors"
	"io"
	"path"
	"strings"
	"time"

	"github.com/google/uuid"
)

// ErrIO marks an underlying filesystem or object-store failure during Save or Open.
var ErrIO = errors.New("storage io failure")

// Store is the interface for saving and retrieving uploaded blobs.
type Store interface {
	// Save writes data under a generated content-addressed relative path
	// and returns that path.
	Save(ctx context.Context, data []byte, originalName string) (string, error)
	// Open returns a reader for the object at relPath.
	Open(ctx context.Context, relPath string) (io.ReadCloser, error)
	// Exists reports whether an object is present at relPath. Never errors;
	// any failure reads as absent.
	Exists(ctx context.Context, relPath string) bool
	// Size returns the object size in bytes, or false when missing or on error.
	Size(ctx context.Context, relPath string) (int64, bool)
	// Delete removes the object at relPath. Returns false when the object
	// was already absent or removal failed; deleting a missing object is
	// not an error.
	Delete(ctx context.Context, relPath string) bool
}

// hashPrefixLen is the number of hex digest characters used in object names.
const hashPrefixLen = 8

// dateShard returns the YYYY/MM/DD shard directory for t.
func dateShard(t time.Time) string {
	return t.UTC().Format("2006/01/02")
}

// buildObjectPath constructs the relative path for data with the given
// original name: sanitized stem, digest prefix, current-date shard. taken
// reports whether a candidate path is already occupied; on a true digest
// collision a short random suffix is appended until the path is free.
func buildObjectPath(data []byte, originalName string, now time.Time, taken func(rel string) bool) string {
	clean := SanitizeFilename(originalName)
	ext := path.Ext(clean)
	stem := strings.TrimSuffix(clean, ext)
	hash8 := ContentHash(data)[:hashPrefixLen]

	shard := dateShard(now)
	rel := path.Join(shard, hash8+"_"+stem+ext)
	for taken(rel) {
		suffix := strings.ReplaceAll(uuid.NewString(), "-", "")[:4]
		rel = path.Join(shard, hash8+"_"+stem+"_"+suffix+ext)
	}
	return rel
}
