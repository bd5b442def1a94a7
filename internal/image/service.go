package image

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/pixelscan/service/internal/metrics"
	"github.com/pixelscan/service/internal/pagination"
	"github.com/pixelscan/service/internal/storage"
)

// Repo is the persistence surface the service depends on. *Repository is the
// production implementation; tests substitute named fakes.
type Repo interface {
	Create(ctx context.Context, p CreateParams) (*Image, error)
	GetByID(ctx context.Context, id uuid.UUID) (*Image, error)
	Delete(ctx context.Context, id uuid.UUID) (bool, error)
	GetPaginated(ctx context.Context, page, pageSize int, f Filter) ([]Image, int64, error)
}

// Service contains business logic for image upload and retrieval.
type Service struct {
	repo  Repo
	store storage.Store
	reg   *metrics.Registry
}

// NewService creates a new image Service.
func NewService(repo Repo, store storage.Store, reg *metrics.Registry) *Service {
	return &Service{repo: repo, store: store, reg: reg}
}

// Upload persists the uploaded bytes to blob storage and records the image
// row in pending status. The file write and the row insert are not atomic: a
// failure between them leaves an orphaned file, which is tolerated.
func (s *Service) Upload(ctx context.Context, data []byte, filename string, originalURL *string) (*Image, error) {
	relPath, err := s.store.Save(ctx, data, filename)
	if err != nil {
		return nil, fmt.Errorf("store upload: %w", err)
	}

	img, err := s.repo.Create(ctx, CreateParams{
		Filename:    filename,
		OriginalURL: originalURL,
		StoragePath: relPath,
		FileSize:    int64(len(data)),
	})
	if err != nil {
		return nil, err
	}

	if s.reg != nil {
		s.reg.Inc(ctx, "images_uploaded_total", nil, 1)
	}
	log.Info().Str("image_id", img.ID.String()).Str("path", relPath).Int64("bytes", img.FileSize).Msg("image uploaded")
	return img, nil
}

// Get returns an image by id.
func (s *Service) Get(ctx context.Context, id uuid.UUID) (*Image, error) {
	return s.repo.GetByID(ctx, id)
}

// Delete removes the image row and then the stored file. Detections cascade
// with the row. The row goes first: if the file removal is skipped, only a
// tolerated orphaned file remains, never a row pointing at a missing file.
func (s *Service) Delete(ctx context.Context, id uuid.UUID) error {
	img, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return err
	}

	removed, err := s.repo.Delete(ctx, id)
	if err != nil {
		return err
	}
	if !removed {
		return ErrNotFound
	}

	if !s.store.Delete(ctx, img.StoragePath) {
		log.Warn().Str("image_id", id.String()).Str("path", img.StoragePath).Msg("stored file absent on delete")
	}

	if s.reg != nil {
		s.reg.Inc(ctx, "images_deleted_total", nil, 1)
	}
	return nil
}

// List returns one page of images with paging metadata.
func (s *Service) List(ctx context.Context, page, pageSize int, f Filter) (pagination.Page[Image], error) {
	items, total, err := s.repo.GetPaginated(ctx, page, pageSize, f)
	if err != nil {
		return pagination.Page[Image]{}, fmt.Errorf("list images: %w", err)
	}
	return pagination.NewPage(items, total, page, pageSize), nil
}
