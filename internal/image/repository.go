package image

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

const imageColumns = `id, filename, original_url, storage_path, file_size, status, upload_timestamp, created_at, updated_at`

// Repository handles all image database operations.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository creates a new Repository with the given connection pool.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

// Create inserts a new image row in pending status and returns the created record.
func (r *Repository) Create(ctx context.Context, p CreateParams) (*Image, error) {
	img := &Image{}
	err := r.pool.QueryRow(ctx,
		`INSERT INTO images (filename, original_url, storage_path, file_size, status)
		 VALUES ($1, $2, $3, $4, $5)
		 RETURNING `+imageColumns,
		p.Filename, p.OriginalURL, p.StoragePath, p.FileSize, StatusPending,
	).Scan(scanTargets(img)...)
	if err != nil {
		if isUniqueViolation(err) {
			return nil, ErrDuplicatePath
		}
		return nil, fmt.Errorf("create image: %w", err)
	}
	return img, nil
}

// GetByID fetches an image by its UUID.
func (r *Repository) GetByID(ctx context.Context, id uuid.UUID) (*Image, error) {
	img := &Image{}
	err := r.pool.QueryRow(ctx,
		`SELECT `+imageColumns+` FROM images WHERE id = $1`,
		id,
	).Scan(scanTargets(img)...)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get image by id: %w", err)
	}
	return img, nil
}

// UpdateStatus transitions an image's status inside its own transaction,
// locking the row first so concurrent transitions on the same id serialize.
func (r *Repository) UpdateStatus(ctx context.Context, id uuid.UUID, status Status) (*Image, error) {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("begin status update: %w", err)
	}
	defer tx.Rollback(ctx)

	img, err := r.UpdateStatusTx(ctx, tx, id, status)
	if err != nil {
		return nil, err
	}
	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("commit status update: %w", err)
	}
	return img, nil
}

// UpdateStatusTx is UpdateStatus running inside the caller's transaction.
func (r *Repository) UpdateStatusTx(ctx context.Context, tx pgx.Tx, id uuid.UUID, status Status) (*Image, error) {
	var current Status
	err := tx.QueryRow(ctx, `SELECT status FROM images WHERE id = $1 FOR UPDATE`, id).Scan(&current)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("lock image row: %w", err)
	}

	img := &Image{}
	err = tx.QueryRow(ctx,
		`UPDATE images SET status = $2, updated_at = now() WHERE id = $1
		 RETURNING `+imageColumns,
		id, status,
	).Scan(scanTargets(img)...)
	if err != nil {
		return nil, fmt.Errorf("update image status: %w", err)
	}
	return img, nil
}

// ClaimForProcessing atomically moves a pending or failed image to
// processing. Images already processing or completed are rejected with
// ErrAlreadyProcessed, which guards against duplicate concurrent analysis.
func (r *Repository) ClaimForProcessing(ctx context.Context, id uuid.UUID) (*Image, error) {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("begin claim: %w", err)
	}
	defer tx.Rollback(ctx)

	var current Status
	err = tx.QueryRow(ctx, `SELECT status FROM images WHERE id = $1 FOR UPDATE`, id).Scan(&current)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("lock image row: %w", err)
	}
	if current == StatusProcessing || current == StatusCompleted {
		return nil, ErrAlreadyProcessed
	}

	img := &Image{}
	err = tx.QueryRow(ctx,
		`UPDATE images SET status = $2, updated_at = now() WHERE id = $1
		 RETURNING `+imageColumns,
		id, StatusProcessing,
	).Scan(scanTargets(img)...)
	if err != nil {
		return nil, fmt.Errorf("claim image: %w", err)
	}
	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("commit claim: %w", err)
	}
	return img, nil
}

// Delete removes an image row. Detections cascade in the database. Returns
// true only when a row existed and was removed.
func (r *Repository) Delete(ctx context.Context, id uuid.UUID) (bool, error) {
	tag, err := r.pool.Exec(ctx, `DELETE FROM images WHERE id = $1`, id)
	if err != nil {
		return false, fmt.Errorf("delete image: %w", err)
	}
	return tag.RowsAffected() > 0, nil
}

// GetPaginated returns one page of images plus the total count over the same
// filtered predicate. Pages are 1-based; a page or pageSize below 1 yields an
// empty result with no error. Ordering is upload_timestamp descending with
// created_at as tiebreak so pages stay stable.
func (r *Repository) GetPaginated(ctx context.Context, page, pageSize int, f Filter) ([]Image, int64, error) {
	if page < 1 || pageSize < 1 {
		return []Image{}, 0, nil
	}

	where, args := buildFilter(f)

	var total int64
	if err := r.pool.QueryRow(ctx, `SELECT COUNT(*) FROM images`+where, args...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("count images: %w", err)
	}

	args = append(args, pageSize, (page-1)*pageSize)
	rows, err := r.pool.Query(ctx,
		`SELECT `+imageColumns+` FROM images`+where+
			` ORDER BY upload_timestamp DESC, created_at DESC`+
			fmt.Sprintf(` LIMIT $%d OFFSET $%d`, len(args)-1, len(args)),
		args...)
	if err != nil {
		return nil, 0, fmt.Errorf("query images: %w", err)
	}
	defer rows.Close()

	items := []Image{}
	for rows.Next() {
		var img Image
		if err := rows.Scan(scanTargets(&img)...); err != nil {
			return nil, 0, fmt.Errorf("scan image: %w", err)
		}
		items = append(items, img)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, fmt.Errorf("iterate images: %w", err)
	}
	return items, total, nil
}

// buildFilter renders the conjunctive WHERE clause for f.
func buildFilter(f Filter) (string, []any) {
	var conds []string
	var args []any
	if f.Status != "" {
		args = append(args, f.Status)
		conds = append(conds, fmt.Sprintf("status = $%d", len(args)))
	}
	if f.FilenameSubstr != "" {
		args = append(args, f.FilenameSubstr)
		conds = append(conds, fmt.Sprintf("filename ILIKE '%%' || $%d || '%%'", len(args)))
	}
	if len(conds) == 0 {
		return "", nil
	}
	return " WHERE " + strings.Join(conds, " AND "), args
}

func scanTargets(img *Image) []any {
	return []any{
		&img.ID, &img.Filename, &img.OriginalURL, &img.StoragePath, &img.FileSize,
		&img.Status, &img.UploadTimestamp, &img.CreatedAt, &img.UpdatedAt,
	}
}

// isUniqueViolation checks whether an error is a PostgreSQL unique_violation (code 23505).
func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == "23505"
}
