// Package detection stores object-detection results and orchestrates the
// analysis pipeline that produces them.
package detection

import (
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/pixelscan/service/internal/vision"
)

// Detection is one detected object in an image. Rows are written once by the
// analysis pipeline and never mutated.
type Detection struct {
	ID              uuid.UUID `json:"id"`
	ImageID         uuid.UUID `json:"imageId"`
	Label           string    `json:"label"`
	ConfidenceScore float64   `json:"confidenceScore"`
	BBoxXMin        int       `json:"bboxXmin"`
	BBoxYMin        int       `json:"bboxYmin"`
	BBoxXMax        int       `json:"bboxXmax"`
	BBoxYMax        int       `json:"bboxYmax"`
	CreatedAt       time.Time `json:"createdAt"`
	UpdatedAt       time.Time `json:"updatedAt"`
}

// ErrNotFound is returned when a detection does not exist.
var ErrNotFound = errors.New("detection not found")

// ErrInvalidDetection is returned when detection fields violate the model
// invariants before persistence.
var ErrInvalidDetection = errors.New("invalid detection data")

// CreateParams are the fields for one new detection row.
type CreateParams struct {
	ImageID         uuid.UUID
	Label           string
	ConfidenceScore float64
	BBoxXMin        int
	BBoxYMin        int
	BBoxXMax        int
	BBoxYMax        int
}

// Validate enforces the detection invariants: non-empty label, confidence in
// [0,1], non-negative box coordinates with xmax > xmin and ymax > ymin.
func (p CreateParams) Validate() error {
	if p.Label == "" {
		return fmt.Errorf("%w: empty label", ErrInvalidDetection)
	}
	if p.ConfidenceScore < 0 || p.ConfidenceScore > 1 {
		return fmt.Errorf("%w: confidence %v outside [0,1]", ErrInvalidDetection, p.ConfidenceScore)
	}
	if p.BBoxXMin < 0 || p.BBoxYMin < 0 || p.BBoxXMax < 0 || p.BBoxYMax < 0 {
		return fmt.Errorf("%w: negative box coordinate", ErrInvalidDetection)
	}
	if p.BBoxXMax <= p.BBoxXMin || p.BBoxYMax <= p.BBoxYMin {
		return fmt.Errorf("%w: degenerate box (%d,%d,%d,%d)",
			ErrInvalidDetection, p.BBoxXMin, p.BBoxYMin, p.BBoxXMax, p.BBoxYMax)
	}
	return nil
}

// Filter narrows paginated detection queries. Zero values mean no filtering.
type Filter struct {
	// Label matches exactly when non-empty.
	Label string
	// MinConfidence is an inclusive lower bound when set.
	MinConfidence *float64
}

// mapRaw converts provider detections into creation payloads bound to
// imageID. Any invariant violation fails the whole batch.
func mapRaw(raw []vision.RawDetection, imageID uuid.UUID) ([]CreateParams, error) {
	params := make([]CreateParams, 0, len(raw))
	for _, d := range raw {
		label := d.Label
		if label == "" {
			label = "unknown"
		}
		xmin, ymin, xmax, ymax := d.Box.Corners()
		p := CreateParams{
			ImageID:         imageID,
			Label:           label,
			ConfidenceScore: d.Confidence(),
			BBoxXMin:        xmin,
			BBoxYMin:        ymin,
			BBoxXMax:        xmax,
			BBoxYMax:        ymax,
		}
		if err := p.Validate(); err != nil {
			return nil, err
		}
		params = append(params, p)
	}
	return params, nil
}
