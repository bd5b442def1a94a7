package vision

import (
	"context"
	"errors"
	"image"
	"math"
)

// ErrProviderUnavailable is returned when the detection provider cannot be
// reached or fails to serve a request.
var ErrProviderUnavailable = errors.New("detection provider unavailable")

// Detector runs object detection on a decoded image.
type Detector interface {
	// Detect returns raw detections sorted by confidence descending.
	Detect(ctx context.Context, img image.Image) ([]RawDetection, error)
	// Warmup verifies the provider is reachable and its model is loaded.
	// Called once at startup so the first request does not pay the load cost.
	Warmup(ctx context.Context) error
}

// RawBox is a bounding box as produced by a provider. Providers disagree on
// shape: some send min/max corners, others origin plus size. Pointer fields
// distinguish absent values, which default to zero.
type RawBox struct {
	XMin *float64 `json:"xmin,omitempty"`
	YMin *float64 `json:"ymin,omitempty"`
	XMax *float64 `json:"xmax,omitempty"`
	YMax *float64 `json:"ymax,omitempty"`

	X *float64 `json:"x,omitempty"`
	Y *float64 `json:"y,omitempty"`
	W *float64 `json:"w,omitempty"`
	H *float64 `json:"h,omitempty"`
}

// RawDetection is one provider detection before mapping into a persistable
// record. The confidence may arrive under either field name.
type RawDetection struct {
	Label           string   `json:"label"`
	Score           *float64 `json:"score,omitempty"`
	ConfidenceScore *float64 `json:"confidence_score,omitempty"`
	Box             RawBox   `json:"box"`
}

// Confidence returns the detection confidence, preferring confidence_score
// over score, defaulting to zero when both are absent.
func (d RawDetection) Confidence() float64 {
	if d.ConfidenceScore != nil {
		return *d.ConfidenceScore
	}
	if d.Score != nil {
		return *d.Score
	}
	return 0
}

// Corners normalizes the box to integer min/max pixel corners, rounding
// fractional coordinates and deriving corners from origin+size when needed.
func (b RawBox) Corners() (xmin, ymin, xmax, ymax int) {
	xmin = roundCoord(coalesce(b.XMin, b.X))
	ymin = roundCoord(coalesce(b.YMin, b.Y))
	xmax = roundCoord(coalesceSum(b.XMax, b.X, b.W))
	ymax = roundCoord(coalesceSum(b.YMax, b.Y, b.H))
	return
}

func coalesce(primary, fallback *float64) float64 {
	if primary != nil {
		return *primary
	}
	if fallback != nil {
		return *fallback
	}
	return 0
}

// coalesceSum prefers the corner value, otherwise origin+size.
func coalesceSum(corner, origin, size *float64) float64 {
	if corner != nil {
		return *corner
	}
	var v float64
	if origin != nil {
		v += *origin
	}
	if size != nil {
		v += *size
	}
	return v
}

func roundCoord(v float64) int {
	return int(math.Round(v))
}
