package storage

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
	"github.com/rs/zerolog/log"
)

// MinioStore implements Store on a MinIO (or any S3-compatible) backend,
// using the same content-addressed relative paths as object keys.
type MinioStore struct {
	client *minio.Client
	bucket string
}

// NewMinioStore creates a MinIO client, ensures the bucket exists, and
// returns a ready-to-use MinioStore.
func NewMinioStore(endpoint, accessKey, secretKey, bucket string, useSSL bool) (*MinioStore, error) {
	client, err := minio.New(endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(accessKey, secretKey, ""),
		Secure: useSSL,
	})
	if err != nil {
		return nil, fmt.Errorf("create minio client: %w", err)
	}

	ctx := context.Background()

	exists, err := client.BucketExists(ctx, bucket)
	if err != nil {
		return nil, fmt.Errorf("check bucket existence: %w", err)
	}
	if !exists {
		if err := client.MakeBucket(ctx, bucket, minio.MakeBucketOptions{}); err != nil {
			return nil, fmt.Errorf("create bucket %q: %w", bucket, err)
		}
		log.Info().Str("bucket", bucket).Msg("storage: created bucket")
	}

	return &MinioStore{client: client, bucket: bucket}, nil
}

// Save uploads data under a content-addressed, date-sharded object key and
// returns that key.
func (s *MinioStore) Save(ctx context.Context, data []byte, originalName string) (string, error) {
	rel := buildObjectPath(data, originalName, time.Now(), func(candidate string) bool {
		_, err := s.client.StatObject(ctx, s.bucket, candidate, minio.StatObjectOptions{})
		return err == nil
	})

	_, err := s.client.PutObject(ctx, s.bucket, rel, bytes.NewReader(data), int64(len(data)),
		minio.PutObjectOptions{ContentType: http.DetectContentType(data)})
	if err != nil {
		return "", fmt.Errorf("put object %s: %w: %w", rel, ErrIO, err)
	}

	log.Info().Str("path", rel).Int("bytes", len(data)).Msg("object saved")
	return rel, nil
}

// Open returns a reader for the object at relPath.
func (s *MinioStore) Open(ctx context.Context, relPath string) (io.ReadCloser, error) {
	// Stat first so a missing object fails here rather than on first read.
	if _, err := s.client.StatObject(ctx, s.bucket, relPath, minio.StatObjectOptions{}); err != nil {
		return nil, fmt.Errorf("stat object %s: %w: %w", relPath, ErrIO, err)
	}
	obj, err := s.client.GetObject(ctx, s.bucket, relPath, minio.GetObjectOptions{})
	if err != nil {
		return nil, fmt.Errorf("get object %s: %w: %w", relPath, ErrIO, err)
	}
	return obj, nil
}

// Exists reports whether an object is present at relPath.
func (s *MinioStore) Exists(ctx context.Context, relPath string) bool {
	_, err := s.client.StatObject(ctx, s.bucket, relPath, minio.StatObjectOptions{})
	return err == nil
}

// Size returns the object size in bytes, or false when missing or on error.
func (s *MinioStore) Size(ctx context.Context, relPath string) (int64, bool) {
	info, err := s.client.StatObject(ctx, s.bucket, relPath, minio.StatObjectOptions{})
	if err != nil {
		return 0, false
	}
	return info.Size, true
}

// Delete removes the object at relPath. Returns false when the object was
// already absent or removal failed.
func (s *MinioStore) Delete(ctx context.Context, relPath string) bool {
	if _, err := s.client.StatObject(ctx, s.bucket, relPath, minio.StatObjectOptions{}); err != nil {
		log.Warn().Str("path", relPath).Msg("cannot delete non-existent object")
		return false
	}
	if err := s.client.RemoveObject(ctx, s.bucket, relPath, minio.RemoveObjectOptions{}); err != nil {
		log.Error().Err(err).Str("path", relPath).Msg("failed to delete object")
		return false
	}
	return true
}
