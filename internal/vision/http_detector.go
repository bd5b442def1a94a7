package vision

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"image"
	"image/jpeg"
	"net/http"
	"sort"
	"strings"
	"time"

	"github.com/rs/zerolog/log"
)

// HTTPDetector calls a remote inference server over HTTP. The server exposes
// POST /detect accepting a JPEG body and returning {"detections": [...]},
// and GET /health for readiness.
type HTTPDetector struct {
	baseURL   string
	client    *http.Client
	threshold float64
}

// NewHTTPDetector returns a detector for the inference server at baseURL.
// Detections below threshold are dropped before mapping.
func NewHTTPDetector(baseURL string, timeout time.Duration, threshold float64) *HTTPDetector {
	return &HTTPDetector{
		baseURL:   strings.TrimRight(baseURL, "/"),
		client:    &http.Client{Timeout: timeout},
		threshold: threshold,
	}
}

// Warmup pings the provider's health endpoint, which loads the model on the
// provider side if it is not resident yet.
func (d *HTTPDetector) Warmup(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, d.baseURL+"/health", nil)
	if err != nil {
		return fmt.Errorf("build warmup request: %w", err)
	}
	start := time.Now()
	resp, err := d.client.Do(req)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrProviderUnavailable, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("%w: health returned %d", ErrProviderUnavailable, resp.StatusCode)
	}
	log.Info().Dur("duration", time.Since(start)).Msg("detection provider warmed up")
	return nil
}

type detectResponse struct {
	Detections []RawDetection `json:"detections"`
}

// Detect encodes img as JPEG, posts it to the provider, and returns the
// detections at or above the confidence threshold, sorted by confidence
// descending.
func (d *HTTPDetector) Detect(ctx context.Context, img image.Image) ([]RawDetection, error) {
	var body bytes.Buffer
	if err := jpeg.Encode(&body, img, nil); err != nil {
		return nil, fmt.Errorf("encode image for provider: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, d.baseURL+"/detect", &body)
	if err != nil {
		return nil, fmt.Errorf("build detect request: %w", err)
	}
	req.Header.Set("Content-Type", "image/jpeg")

	start := time.Now()
	resp, err := d.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrProviderUnavailable, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("%w: detect returned %d", ErrProviderUnavailable, resp.StatusCode)
	}

	var parsed detectResponse
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		return nil, fmt.Errorf("%w: decode response: %v", ErrProviderUnavailable, err)
	}

	kept := make([]RawDetection, 0, len(parsed.Detections))
	for _, det := range parsed.Detections {
		if det.Confidence() >= d.threshold {
			kept = append(kept, det)
		}
	}
	sort.SliceStable(kept, func(i, j int) bool {
		return kept[i].Confidence() > kept[j].Confidence()
	})

	log.Debug().
		Int("raw", len(parsed.Detections)).
		Int("kept", len(kept)).
		Dur("inference", time.Since(start)).
		Msg("provider inference complete")
	return kept, nil
}
