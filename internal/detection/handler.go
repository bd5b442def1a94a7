package detection

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/pixelscan/service/internal/image"
	"github.com/pixelscan/service/internal/response"
	"github.com/pixelscan/service/internal/vision"
)

// maxPageSize caps page_size on list endpoints.
const maxPageSize = 200

// Handler holds HTTP handlers for detection endpoints.
type Handler struct {
	svc *Service
}

// NewHandler creates a new detection Handler.
func NewHandler(svc *Service) *Handler {
	return &Handler{svc: svc}
}

// Analyze godoc
//
//	@Summary		Analyze an image
//	@Description	Runs object detection on an uploaded image, persists the detections, and completes the image.
//	@Tags			detections
//	@Produce		json
//	@Param			imageID	path		string	true	"Image UUID"
//	@Success		201	{object}	response.Envelope{data=[]Detection}
//	@Failure		400	{object}	response.Envelope
//	@Failure		404	{object}	response.Envelope
//	@Failure		409	{object}	response.Envelope
//	@Failure		422	{object}	response.Envelope
//	@Failure		503	{object}	response.Envelope
//	@Router			/images/{imageID}/analyze [post]
func (h *Handler) Analyze(w http.ResponseWriter, r *http.Request) {
	id, ok := parseImageID(w, r)
	if !ok {
		return
	}

	detections, err := h.svc.Analyze(r.Context(), id)
	if err != nil {
		switch {
		case errors.Is(err, image.ErrNotFound):
			response.NotFound(w, "image not found")
		case errors.Is(err, image.ErrAlreadyProcessed):
			response.Conflict(w, "image already analyzed or being analyzed")
		case errors.Is(err, vision.ErrInvalidImage):
			response.UnprocessableEntity(w, "stored file is not a valid image")
		case errors.Is(err, ErrInvalidDetection):
			response.UnprocessableEntity(w, "provider returned invalid detections")
		case errors.Is(err, vision.ErrProviderUnavailable):
			response.ServiceUnavailable(w, "detection provider unavailable")
		default:
			log.Error().Err(err).Str("image_id", id.String()).Msg("analysis failed")
			response.InternalError(w)
		}
		return
	}

	response.Created(w, detections)
}

// ListForImage godoc
//
//	@Summary		List detections for an image
//	@Tags			detections
//	@Produce		json
//	@Param			imageID	path		string	true	"Image UUID"
//	@Success		200	{object}	response.Envelope{data=[]Detection}
//	@Failure		400	{object}	response.Envelope
//	@Router			/images/{imageID}/detections [get]
func (h *Handler) ListForImage(w http.ResponseWriter, r *http.Request) {
	id, ok := parseImageID(w, r)
	if !ok {
		return
	}

	detections, err := h.svc.GetDetections(r.Context(), id)
	if err != nil {
		log.Error().Err(err).Str("image_id", id.String()).Msg("list detections failed")
		response.InternalError(w)
		return
	}

	response.OK(w, detections)
}

// ListAll godoc
//
//	@Summary		List detections globally
//	@Description	Paginated detection listing with optional label and minimum-confidence filters.
//	@Tags			detections
//	@Produce		json
//	@Param			page			query		int		false	"Page number (1-based)"
//	@Param			page_size		query		int		false	"Items per page (max 200)"
//	@Param			label			query		string	false	"Exact label filter"
//	@Param			min_confidence	query		number	false	"Inclusive minimum confidence (0..1)"
//	@Success		200	{object}	response.Envelope
//	@Failure		400	{object}	response.Envelope
//	@Router			/detections [get]
func (h *Handler) ListAll(w http.ResponseWriter, r *http.Request) {
	page, pageSize, ok := parsePaging(w, r)
	if !ok {
		return
	}

	var f Filter
	f.Label = r.URL.Query().Get("label")
	if v := r.URL.Query().Get("min_confidence"); v != "" {
		mc, err := strconv.ParseFloat(v, 64)
		if err != nil || mc < 0 || mc > 1 {
			response.BadRequest(w, "min_confidence must be between 0 and 1")
			return
		}
		f.MinConfidence = &mc
	}

	pageData, err := h.svc.GetAllPaginated(r.Context(), page, pageSize, f)
	if err != nil {
		log.Error().Err(err).Msg("list detections failed")
		response.InternalError(w)
		return
	}

	response.OK(w, pageData)
}

func parseImageID(w http.ResponseWriter, r *http.Request) (uuid.UUID, bool) {
	id, err := uuid.Parse(chi.URLParam(r, "imageID"))
	if err != nil {
		response.BadRequest(w, "invalid image id")
		return uuid.Nil, false
	}
	return id, true
}

func parsePaging(w http.ResponseWriter, r *http.Request) (page, pageSize int, ok bool) {
	page, pageSize = 1, 20
	if v := r.URL.Query().Get("page"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 1 {
			response.BadRequest(w, "page must be a positive integer")
			return 0, 0, false
		}
		page = n
	}
	if v := r.URL.Query().Get("page_size"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 1 || n > maxPageSize {
			response.BadRequest(w, "page_size must be between 1 and 200")
			return 0, 0, false
		}
		pageSize = n
	}
	return page, pageSize, true
}
