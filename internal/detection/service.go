package detection

import (
	"context"
	"errors"
	"fmt"
	"io"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/rs/zerolog/log"

	"github.com/pixelscan/service/internal/image"
	"github.com/pixelscan/service/internal/metrics"
	"github.com/pixelscan/service/internal/pagination"
	"github.com/pixelscan/service/internal/vision"
)

// ImageRepo is the image-persistence surface the orchestrator needs.
type ImageRepo interface {
	ClaimForProcessing(ctx context.Context, id uuid.UUID) (*image.Image, error)
	UpdateStatus(ctx context.Context, id uuid.UUID, status image.Status) (*image.Image, error)
	UpdateStatusTx(ctx context.Context, tx pgx.Tx, id uuid.UUID, status image.Status) (*image.Image, error)
}

// Repo is the detection-persistence surface the orchestrator needs.
type Repo interface {
	CreateMany(ctx context.Context, tx pgx.Tx, params []CreateParams) ([]Detection, error)
	GetByImageID(ctx context.Context, imageID uuid.UUID) ([]Detection, error)
	GetPaginated(ctx context.Context, page, pageSize int, f Filter) ([]Detection, int64, error)
}

// FileOpener reads stored blobs back; satisfied by any storage.Store.
type FileOpener interface {
	Open(ctx context.Context, relPath string) (io.ReadCloser, error)
}

// TxBeginner starts database transactions; satisfied by *pgxpool.Pool.
type TxBeginner interface {
	Begin(ctx context.Context) (pgx.Tx, error)
}

// Service orchestrates the analysis pipeline: stored bytes through decode and
// the detection provider into persisted detection rows, driving the image's
// status transitions.
type Service struct {
	txer     TxBeginner
	images   ImageRepo
	dets     Repo
	files    FileOpener
	decoder  vision.Decoder
	detector vision.Detector
	reg      *metrics.Registry
}

// NewService creates a new detection Service.
func NewService(txer TxBeginner, images ImageRepo, dets Repo, files FileOpener, decoder vision.Decoder, detector vision.Detector, reg *metrics.Registry) *Service {
	return &Service{
		txer:     txer,
		images:   images,
		dets:     dets,
		files:    files,
		decoder:  decoder,
		detector: detector,
		reg:      reg,
	}
}

// Analyze runs object detection for an image and persists the results.
//
// The image row is first claimed (pending or failed → processing); a row
// already processing or completed is rejected with image.ErrAlreadyProcessed
// so duplicate concurrent calls cannot append a second batch. The detection
// batch and the final completed transition commit in a single transaction.
// Decode, provider, and persistence failures move the image to failed.
func (s *Service) Analyze(ctx context.Context, imageID uuid.UUID) ([]Detection, error) {
	img, err := s.images.ClaimForProcessing(ctx, imageID)
	if err != nil {
		return nil, err
	}

	params, err := s.runDetection(ctx, img)
	if err != nil {
		s.markFailed(ctx, imageID)
		s.count(ctx, "failed")
		return nil, err
	}

	created, err := s.persist(ctx, imageID, params)
	if err != nil {
		s.markFailed(ctx, imageID)
		s.count(ctx, "failed")
		return nil, err
	}

	s.count(ctx, "completed")
	if s.reg != nil {
		s.reg.Inc(ctx, "detections_persisted_total", nil, int64(len(created)))
	}
	log.Info().Str("image_id", imageID.String()).Int("detections", len(created)).Msg("analysis complete")
	return created, nil
}

// runDetection reads the stored bytes, decodes them, and maps the provider's
// raw detections into validated creation payloads.
func (s *Service) runDetection(ctx context.Context, img *image.Image) ([]CreateParams, error) {
	rc, err := s.files.Open(ctx, img.StoragePath)
	if err != nil {
		return nil, fmt.Errorf("open stored image: %w", err)
	}
	data, err := io.ReadAll(rc)
	rc.Close()
	if err != nil {
		return nil, fmt.Errorf("read stored image: %w", err)
	}

	bitmap, err := s.decoder.Decode(data)
	if err != nil {
		return nil, err
	}

	raw, err := s.detector.Detect(ctx, bitmap)
	if err != nil {
		return nil, err
	}

	return mapRaw(raw, img.ID)
}

// persist writes the batch and the completed transition in one transaction.
// An empty batch skips the insert but still completes the image.
func (s *Service) persist(ctx context.Context, imageID uuid.UUID, params []CreateParams) ([]Detection, error) {
	tx, err := s.txer.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("begin analysis commit: %w", err)
	}
	defer tx.Rollback(ctx)

	created := []Detection{}
	if len(params) > 0 {
		created, err = s.dets.CreateMany(ctx, tx, params)
		if err != nil {
			return nil, err
		}
	}

	if _, err := s.images.UpdateStatusTx(ctx, tx, imageID, image.StatusCompleted); err != nil {
		return nil, err
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("commit analysis: %w", err)
	}
	return created, nil
}

// markFailed moves the image to failed, best-effort: the original failure
// stays the caller-visible error even when the status write itself fails.
func (s *Service) markFailed(ctx context.Context, imageID uuid.UUID) {
	if _, err := s.images.UpdateStatus(ctx, imageID, image.StatusFailed); err != nil {
		log.Error().Err(err).Str("image_id", imageID.String()).Msg("could not mark image failed")
	}
}

func (s *Service) count(ctx context.Context, result string) {
	if s.reg != nil {
		s.reg.Inc(ctx, "analyses_total", map[string]string{"result": result}, 1)
	}
}

// GetDetections returns every detection for an image, highest confidence first.
func (s *Service) GetDetections(ctx context.Context, imageID uuid.UUID) ([]Detection, error) {
	return s.dets.GetByImageID(ctx, imageID)
}

// GetAllPaginated returns one page of detections across all images with
// paging metadata.
func (s *Service) GetAllPaginated(ctx context.Context, page, pageSize int, f Filter) (pagination.Page[Detection], error) {
	items, total, err := s.dets.GetPaginated(ctx, page, pageSize, f)
	if err != nil {
		return pagination.Page[Detection]{}, fmt.Errorf("list detections: %w", err)
	}
	return pagination.NewPage(items, total, page, pageSize), nil
}

// IsRecoverable reports whether err is a caller-visible condition rather
// than an internal failure.
func IsRecoverable(err error) bool {
	return errors.Is(err, image.ErrNotFound) ||
		errors.Is(err, image.ErrAlreadyProcessed) ||
		errors.Is(err, vision.ErrInvalidImage) ||
		errors.Is(err, ErrInvalidDetection)
}
