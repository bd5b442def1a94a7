package detection

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

const detectionColumns = `id, image_id, label, confidence_score, bbox_xmin, bbox_ymin, bbox_xmax, bbox_ymax, created_at, updated_at`

const insertDetection = `INSERT INTO detections
	(image_id, label, confidence_score, bbox_xmin, bbox_ymin, bbox_xmax, bbox_ymax)
	VALUES ($1, $2, $3, $4, $5, $6, $7)
	RETURNING ` + detectionColumns

// Repository handles all detection database operations.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository creates a new Repository with the given connection pool.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

// Create inserts a single detection row after validating it.
func (r *Repository) Create(ctx context.Context, p CreateParams) (*Detection, error) {
	if err := p.Validate(); err != nil {
		return nil, err
	}
	det := &Detection{}
	err := r.pool.QueryRow(ctx, insertDetection,
		p.ImageID, p.Label, p.ConfidenceScore, p.BBoxXMin, p.BBoxYMin, p.BBoxXMax, p.BBoxYMax,
	).Scan(scanTargets(det)...)
	if err != nil {
		return nil, fmt.Errorf("create detection: %w", err)
	}
	return det, nil
}

// CreateMany inserts all rows in one batch inside the caller's transaction.
// Every payload is validated first; one invalid payload fails the whole
// batch and nothing is written. Returns the persisted records with generated
// ids and timestamps.
func (r *Repository) CreateMany(ctx context.Context, tx pgx.Tx, params []CreateParams) ([]Detection, error) {
	for _, p := range params {
		if err := p.Validate(); err != nil {
			return nil, err
		}
	}

	batch := &pgx.Batch{}
	for _, p := range params {
		batch.Queue(insertDetection,
			p.ImageID, p.Label, p.ConfidenceScore, p.BBoxXMin, p.BBoxYMin, p.BBoxXMax, p.BBoxYMax)
	}

	br := tx.SendBatch(ctx, batch)
	defer br.Close()

	created := make([]Detection, 0, len(params))
	for range params {
		var det Detection
		if err := br.QueryRow().Scan(scanTargets(&det)...); err != nil {
			return nil, fmt.Errorf("insert detection batch: %w", err)
		}
		created = append(created, det)
	}
	return created, nil
}

// GetByID fetches a detection by its UUID.
func (r *Repository) GetByID(ctx context.Context, id uuid.UUID) (*Detection, error) {
	det := &Detection{}
	err := r.pool.QueryRow(ctx,
		`SELECT `+detectionColumns+` FROM detections WHERE id = $1`,
		id,
	).Scan(scanTargets(det)...)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get detection by id: %w", err)
	}
	return det, nil
}

// GetByImageID returns every detection for an image, highest confidence first.
func (r *Repository) GetByImageID(ctx context.Context, imageID uuid.UUID) ([]Detection, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT `+detectionColumns+` FROM detections
		 WHERE image_id = $1
		 ORDER BY confidence_score DESC, created_at DESC`,
		imageID)
	if err != nil {
		return nil, fmt.Errorf("query detections by image: %w", err)
	}
	defer rows.Close()

	return collect(rows)
}

// Delete removes a detection row. Returns true only when a row existed and
// was removed.
func (r *Repository) Delete(ctx context.Context, id uuid.UUID) (bool, error) {
	tag, err := r.pool.Exec(ctx, `DELETE FROM detections WHERE id = $1`, id)
	if err != nil {
		return false, fmt.Errorf("delete detection: %w", err)
	}
	return tag.RowsAffected() > 0, nil
}

// GetPaginated returns one page of detections plus the total count over the
// same filtered predicate. Pages are 1-based; a page or pageSize below 1
// yields an empty result with no error. Ordering is confidence descending
// with created_at as tiebreak so pages stay stable.
func (r *Repository) GetPaginated(ctx context.Context, page, pageSize int, f Filter) ([]Detection, int64, error) {
	if page < 1 || pageSize < 1 {
		return []Detection{}, 0, nil
	}

	where, args := buildFilter(f)

	var total int64
	if err := r.pool.QueryRow(ctx, `SELECT COUNT(*) FROM detections`+where, args...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("count detections: %w", err)
	}

	args = append(args, pageSize, (page-1)*pageSize)
	rows, err := r.pool.Query(ctx,
		`SELECT `+detectionColumns+` FROM detections`+where+
			` ORDER BY confidence_score DESC, created_at DESC`+
			fmt.Sprintf(` LIMIT $%d OFFSET $%d`, len(args)-1, len(args)),
		args...)
	if err != nil {
		return nil, 0, fmt.Errorf("query detections: %w", err)
	}
	defer rows.Close()

	items, err := collect(rows)
	if err != nil {
		return nil, 0, err
	}
	return items, total, nil
}

// buildFilter renders the conjunctive WHERE clause for f.
func buildFilter(f Filter) (string, []any) {
	var conds []string
	var args []any
	if f.Label != "" {
		args = append(args, f.Label)
		conds = append(conds, fmt.Sprintf("label = $%d", len(args)))
	}
	if f.MinConfidence != nil {
		args = append(args, *f.MinConfidence)
		conds = append(conds, fmt.Sprintf("confidence_score >= $%d", len(args)))
	}
	if len(conds) == 0 {
		return "", nil
	}
	return " WHERE " + strings.Join(conds, " AND "), args
}

func collect(rows pgx.Rows) ([]Detection, error) {
	items := []Detection{}
	for rows.Next() {
		var det Detection
		if err := rows.Scan(scanTargets(&det)...); err != nil {
			return nil, fmt.Errorf("scan detection: %w", err)
		}
		items = append(items, det)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate detections: %w", err)
	}
	return items, nil
}

func scanTargets(det *Detection) []any {
	return []any{
		&det.ID, &det.ImageID, &det.Label, &det.ConfidenceScore,
		&det.BBoxXMin, &det.BBoxYMin, &det.BBoxXMax, &det.BBoxYMax,
		&det.CreatedAt, &det.UpdatedAt,
	}
}
