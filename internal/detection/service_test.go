package detection

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	stdimage "image"
	"testing"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/stretchr/testify/require"

	"github.com/pixelscan/service/internal/image"
	"github.com/pixelscan/service/internal/vision"
)

// fakeTx satisfies pgx.Tx for the orchestrator's commit path; only Commit
// and Rollback are ever reached because the fake repositories ignore the tx.
type fakeTx struct {
	pgx.Tx
	committed  bool
	rolledBack bool
}

func (t *fakeTx) Commit(context.Context) error   { t.committed = true; return nil }
func (t *fakeTx) Rollback(context.Context) error { t.rolledBack = true; return nil }

type fakeTxBeginner struct {
	last *fakeTx
}

func (b *fakeTxBeginner) Begin(context.Context) (pgx.Tx, error) {
	b.last = &fakeTx{}
	return b.last, nil
}

type fakeImageRepo struct {
	img         *image.Image
	transitions []image.Status
}

func (f *fakeImageRepo) ClaimForProcessing(_ context.Context, id uuid.UUID) (*image.Image, error) {
	if f.img == nil || f.img.ID != id {
		return nil, image.ErrNotFound
	}
	if f.img.Status == image.StatusProcessing || f.img.Status == image.StatusCompleted {
		return nil, image.ErrAlreadyProcessed
	}
	f.img.Status = image.StatusProcessing
	f.transitions = append(f.transitions, image.StatusProcessing)
	return f.img, nil
}

func (f *fakeImageRepo) UpdateStatus(_ context.Context, id uuid.UUID, status image.Status) (*image.Image, error) {
	if f.img == nil || f.img.ID != id {
		return nil, image.ErrNotFound
	}
	f.img.Status = status
	f.transitions = append(f.transitions, status)
	return f.img, nil
}

func (f *fakeImageRepo) UpdateStatusTx(ctx context.Context, _ pgx.Tx, id uuid.UUID, status image.Status) (*image.Image, error) {
	return f.UpdateStatus(ctx, id, status)
}

type fakeDetRepo struct {
	created   [][]CreateParams
	canned    []Detection
	cannedTot int64
}

func (f *fakeDetRepo) CreateMany(_ context.Context, _ pgx.Tx, params []CreateParams) ([]Detection, error) {
	for _, p := range params {
		if err := p.Validate(); err != nil {
			return nil, err
		}
	}
	f.created = append(f.created, params)
	out := make([]Detection, len(params))
	for i, p := range params {
		out[i] = Detection{
			ID:              uuid.New(),
			ImageID:         p.ImageID,
			Label:           p.Label,
			ConfidenceScore: p.ConfidenceScore,
			BBoxXMin:        p.BBoxXMin,
			BBoxYMin:        p.BBoxYMin,
			BBoxXMax:        p.BBoxXMax,
			BBoxYMax:        p.BBoxYMax,
		}
	}
	return out, nil
}

func (f *fakeDetRepo) GetByImageID(context.Context, uuid.UUID) ([]Detection, error) {
	return f.canned, nil
}

func (f *fakeDetRepo) GetPaginated(_ context.Context, page, pageSize int, _ Filter) ([]Detection, int64, error) {
	if page < 1 || pageSize < 1 {
		return []Detection{}, 0, nil
	}
	return f.canned, f.cannedTot, nil
}

type fakeOpener struct {
	blobs map[string][]byte
}

func (f *fakeOpener) Open(_ context.Context, relPath string) (io.ReadCloser, error) {
	data, ok := f.blobs[relPath]
	if !ok {
		return nil, fmt.Errorf("open %s: no such file", relPath)
	}
	return io.NopCloser(bytes.NewReader(data)), nil
}

type fakeDecoder struct {
	err error
}

func (f *fakeDecoder) Decode(data []byte) (stdimage.Image, error) {
	if f.err != nil {
		return nil, f.err
	}
	return stdimage.NewRGBA(stdimage.Rect(0, 0, 64, 64)), nil
}

type fakeDetector struct {
	raw []vision.RawDetection
	err error
}

func (f *fakeDetector) Detect(context.Context, stdimage.Image) ([]vision.RawDetection, error) {
	return f.raw, f.err
}

func (f *fakeDetector) Warmup(context.Context) error { return f.err }

func f64(v float64) *float64 { return &v }

type fixture struct {
	svc    *Service
	txer   *fakeTxBeginner
	images *fakeImageRepo
	dets   *fakeDetRepo
}

func newFixture(img *image.Image, detector *fakeDetector, decoder *fakeDecoder) *fixture {
	blobs := map[string][]byte{}
	if img != nil {
		blobs[img.StoragePath] = []byte("stored bytes")
	}
	fx := &fixture{
		txer:   &fakeTxBeginner{},
		images: &fakeImageRepo{img: img},
		dets:   &fakeDetRepo{},
	}
	fx.svc = NewService(fx.txer, fx.images, fx.dets, &fakeOpener{blobs: blobs}, decoder, detector, nil)
	return fx
}

func pendingImage() *image.Image {
	return &image.Image{
		ID:          uuid.New(),
		Filename:    "demo.jpg",
		StoragePath: "2025/11/12/abcd1234_demo.jpg",
		FileSize:    12,
		Status:      image.StatusPending,
	}
}

func TestAnalyzeHappyPath(t *testing.T) {
	img := pendingImage()
	fx := newFixture(img, &fakeDetector{raw: []vision.RawDetection{
		{Label: "cat", ConfidenceScore: f64(0.92), Box: vision.RawBox{XMin: f64(10), YMin: f64(20), XMax: f64(110), YMax: f64(220)}},
		{Label: "dog", Score: f64(0.81), Box: vision.RawBox{X: f64(5), Y: f64(5), W: f64(50), H: f64(40)}},
	}}, &fakeDecoder{})

	created, err := fx.svc.Analyze(context.Background(), img.ID)
	require.NoError(t, err)
	require.Len(t, created, 2)

	require.Len(t, fx.dets.created, 1, "single batch insert")
	batch := fx.dets.created[0]
	require.Equal(t, "cat", batch[0].Label)
	require.Equal(t, 0.92, batch[0].ConfidenceScore)
	require.Equal(t, 110, batch[0].BBoxXMax)
	require.Equal(t, "dog", batch[1].Label)
	require.Equal(t, 55, batch[1].BBoxXMax, "origin+size box normalized to corners")
	require.Equal(t, 45, batch[1].BBoxYMax)

	require.Equal(t, image.StatusCompleted, fx.images.img.Status)
	require.True(t, fx.txer.last.committed)
}

func TestAnalyzeNotFoundWritesNothing(t *testing.T) {
	fx := newFixture(nil, &fakeDetector{}, &fakeDecoder{})

	_, err := fx.svc.Analyze(context.Background(), uuid.New())
	require.ErrorIs(t, err, image.ErrNotFound)
	require.Empty(t, fx.dets.created)
	require.Empty(t, fx.images.transitions)
}

func TestAnalyzeZeroDetectionsStillCompletes(t *testing.T) {
	img := pendingImage()
	fx := newFixture(img, &fakeDetector{raw: nil}, &fakeDecoder{})

	created, err := fx.svc.Analyze(context.Background(), img.ID)
	require.NoError(t, err)
	require.NotNil(t, created)
	require.Empty(t, created)

	require.Empty(t, fx.dets.created, "no no-op batch round trip")
	require.Equal(t, image.StatusCompleted, fx.images.img.Status)
}

func TestAnalyzeRejectsDuplicateInvocation(t *testing.T) {
	img := pendingImage()
	img.Status = image.StatusCompleted
	fx := newFixture(img, &fakeDetector{}, &fakeDecoder{})

	_, err := fx.svc.Analyze(context.Background(), img.ID)
	require.ErrorIs(t, err, image.ErrAlreadyProcessed)
	require.Empty(t, fx.dets.created)
}

func TestAnalyzeDecodeFailureMarksFailed(t *testing.T) {
	img := pendingImage()
	fx := newFixture(img, &fakeDetector{}, &fakeDecoder{err: fmt.Errorf("%w: truncated", vision.ErrInvalidImage)})

	_, err := fx.svc.Analyze(context.Background(), img.ID)
	require.ErrorIs(t, err, vision.ErrInvalidImage)
	require.Equal(t, image.StatusFailed, fx.images.img.Status)
	require.Empty(t, fx.dets.created)
}

func TestAnalyzeProviderFailureMarksFailed(t *testing.T) {
	img := pendingImage()
	fx := newFixture(img, &fakeDetector{err: vision.ErrProviderUnavailable}, &fakeDecoder{})

	_, err := fx.svc.Analyze(context.Background(), img.ID)
	require.ErrorIs(t, err, vision.ErrProviderUnavailable)
	require.Equal(t, image.StatusFailed, fx.images.img.Status)
}

func TestAnalyzeInvalidBoxFailsWholeBatch(t *testing.T) {
	img := pendingImage()
	fx := newFixture(img, &fakeDetector{raw: []vision.RawDetection{
		{Label: "cat", Score: f64(0.9), Box: vision.RawBox{XMin: f64(0), YMin: f64(0), XMax: f64(10), YMax: f64(10)}},
		{Label: "dog", Score: f64(0.8), Box: vision.RawBox{XMin: f64(50), YMin: f64(50), XMax: f64(50), YMax: f64(60)}},
	}}, &fakeDecoder{})

	_, err := fx.svc.Analyze(context.Background(), img.ID)
	require.ErrorIs(t, err, ErrInvalidDetection)
	require.Empty(t, fx.dets.created, "nothing persisted when one box is invalid")
	require.Equal(t, image.StatusFailed, fx.images.img.Status)
}

func TestAnalyzeMissingFileFails(t *testing.T) {
	img := pendingImage()
	fx := newFixture(img, &fakeDetector{}, &fakeDecoder{})
	img.StoragePath = "2025/01/01/gone.jpg"

	_, err := fx.svc.Analyze(context.Background(), img.ID)
	require.Error(t, err)
	require.Equal(t, image.StatusFailed, fx.images.img.Status)
}

func TestGetAllPaginatedWrapsEnvelope(t *testing.T) {
	fx := newFixture(nil, &fakeDetector{}, &fakeDecoder{})
	fx.dets.canned = []Detection{{Label: "cat"}, {Label: "dog"}}
	fx.dets.cannedTot = 5

	page, err := fx.svc.GetAllPaginated(context.Background(), 1, 2, Filter{})
	require.NoError(t, err)
	require.Equal(t, int64(5), page.Total)
	require.Equal(t, 3, page.Pages)
	require.True(t, page.HasNext)
	require.False(t, page.HasPrevious)
}

func TestIsRecoverable(t *testing.T) {
	require.True(t, IsRecoverable(image.ErrNotFound))
	require.True(t, IsRecoverable(fmt.Errorf("wrap: %w", vision.ErrInvalidImage)))
	require.True(t, IsRecoverable(ErrInvalidDetection))
	require.False(t, IsRecoverable(errors.New("connection reset")))
	require.False(t, IsRecoverable(vision.ErrProviderUnavailable))
}
