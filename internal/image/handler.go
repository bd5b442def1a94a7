package image

import (
	"errors"
	"io"
	"net/http"
	"path"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/pixelscan/service/internal/response"
	"github.com/pixelscan/service/internal/storage"
)

// allowedExtensions whitelists upload filename extensions.
var allowedExtensions = map[string]bool{
	".jpg":  true,
	".jpeg": true,
	".png":  true,
	".webp": true,
}

// maxPageSize caps page_size on list endpoints.
const maxPageSize = 200

// Handler holds HTTP handlers for image endpoints.
type Handler struct {
	svc            *Service
	store          storage.Store
	maxUploadBytes int64
}

// NewHandler creates a new image Handler.
func NewHandler(svc *Service, store storage.Store, maxUploadBytes int64) *Handler {
	return &Handler{svc: svc, store: store, maxUploadBytes: maxUploadBytes}
}

// Upload godoc
//
//	@Summary		Upload an image
//	@Description	Accepts a multipart image file, stores it, and records its metadata in pending status.
//	@Tags			images
//	@Accept			multipart/form-data
//	@Produce		json
//	@Param			file			formData	file	true	"Image file (.jpg, .jpeg, .png, .webp)"
//	@Param			original_url	query		string	false	"Source URL the image was fetched from"
//	@Success		201	{object}	response.Envelope{data=Image}
//	@Failure		409	{object}	response.Envelope
//	@Failure		415	{object}	response.Envelope
//	@Failure		500	{object}	response.Envelope
//	@Router			/images/upload [post]
func (h *Handler) Upload(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, h.maxUploadBytes)

	file, header, err := r.FormFile("file")
	if err != nil {
		response.BadRequest(w, "missing file field")
		return
	}
	defer file.Close()

	filename := header.Filename
	if filename == "" {
		filename = "uploaded_image"
	}
	if !allowedExtensions[strings.ToLower(path.Ext(filename))] {
		response.UnsupportedMediaType(w, "unsupported file extension")
		return
	}

	data, err := io.ReadAll(file)
	if err != nil {
		response.BadRequest(w, "unreadable upload body")
		return
	}
	if len(data) == 0 {
		response.UnsupportedMediaType(w, "empty file")
		return
	}
	if int64(len(data)) > h.maxUploadBytes {
		response.UnsupportedMediaType(w, "file exceeds size limit")
		return
	}

	var originalURL *string
	if v := r.URL.Query().Get("original_url"); v != "" {
		originalURL = &v
	}

	img, err := h.svc.Upload(r.Context(), data, filename, originalURL)
	if err != nil {
		if errors.Is(err, ErrDuplicatePath) {
			response.Conflict(w, "image already exists")
			return
		}
		log.Error().Err(err).Msg("upload failed")
		response.InternalError(w)
		return
	}

	response.Created(w, img)
}

// Get godoc
//
//	@Summary		Get image metadata
//	@Tags			images
//	@Produce		json
//	@Param			imageID	path		string	true	"Image UUID"
//	@Success		200	{object}	response.Envelope{data=Image}
//	@Failure		400	{object}	response.Envelope
//	@Failure		404	{object}	response.Envelope
//	@Router			/images/{imageID} [get]
func (h *Handler) Get(w http.ResponseWriter, r *http.Request) {
	id, ok := parseImageID(w, r)
	if !ok {
		return
	}

	img, err := h.svc.Get(r.Context(), id)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			response.NotFound(w, "image not found")
			return
		}
		log.Error().Err(err).Str("image_id", id.String()).Msg("get image failed")
		response.InternalError(w)
		return
	}

	response.OK(w, img)
}

// List godoc
//
//	@Summary		List images
//	@Description	Paginated image listing with optional status and filename filters.
//	@Tags			images
//	@Produce		json
//	@Param			page			query		int		false	"Page number (1-based)"
//	@Param			page_size		query		int		false	"Items per page (max 200)"
//	@Param			status			query		string	false	"Exact status filter"
//	@Param			filename_substr	query		string	false	"Case-insensitive filename substring"
//	@Success		200	{object}	response.Envelope
//	@Failure		400	{object}	response.Envelope
//	@Router			/images [get]
func (h *Handler) List(w http.ResponseWriter, r *http.Request) {
	page, pageSize, ok := parsePaging(w, r)
	if !ok {
		return
	}

	var f Filter
	if v := r.URL.Query().Get("status"); v != "" {
		st := Status(v)
		if !st.Valid() {
			response.BadRequest(w, "invalid status filter")
			return
		}
		f.Status = st
	}
	f.FilenameSubstr = r.URL.Query().Get("filename_substr")

	pageData, err := h.svc.List(r.Context(), page, pageSize, f)
	if err != nil {
		log.Error().Err(err).Msg("list images failed")
		response.InternalError(w)
		return
	}

	response.OK(w, pageData)
}

// Download godoc
//
//	@Summary		Download the stored image file
//	@Tags			images
//	@Produce		octet-stream
//	@Param			imageID	path	string	true	"Image UUID"
//	@Success		200	{file}		binary
//	@Failure		404	{object}	response.Envelope
//	@Router			/images/{imageID}/file [get]
func (h *Handler) Download(w http.ResponseWriter, r *http.Request) {
	id, ok := parseImageID(w, r)
	if !ok {
		return
	}

	img, err := h.svc.Get(r.Context(), id)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			response.NotFound(w, "image not found")
			return
		}
		log.Error().Err(err).Str("image_id", id.String()).Msg("download lookup failed")
		response.InternalError(w)
		return
	}

	rc, err := h.store.Open(r.Context(), img.StoragePath)
	if err != nil {
		response.NotFound(w, "file missing")
		return
	}
	defer rc.Close()

	w.Header().Set("Content-Type", mediaTypeFor(img.StoragePath))
	if _, err := io.Copy(w, rc); err != nil {
		log.Error().Err(err).Str("path", img.StoragePath).Msg("streaming file failed")
	}
}

// Delete godoc
//
//	@Summary		Delete an image
//	@Description	Removes the stored file and the image row; detections cascade.
//	@Tags			images
//	@Produce		json
//	@Param			imageID	path		string	true	"Image UUID"
//	@Success		200	{object}	response.Envelope
//	@Failure		404	{object}	response.Envelope
//	@Router			/images/{imageID} [delete]
func (h *Handler) Delete(w http.ResponseWriter, r *http.Request) {
	id, ok := parseImageID(w, r)
	if !ok {
		return
	}

	if err := h.svc.Delete(r.Context(), id); err != nil {
		if errors.Is(err, ErrNotFound) {
			response.NotFound(w, "image not found")
			return
		}
		log.Error().Err(err).Str("image_id", id.String()).Msg("delete image failed")
		response.InternalError(w)
		return
	}

	response.OK(w, map[string]string{"deleted": id.String()})
}

// parseImageID normalizes the path parameter to a UUID, writing a 400 on
// malformed input. Identifier coercion lives here at the boundary only.
func parseImageID(w http.ResponseWriter, r *http.Request) (uuid.UUID, bool) {
	id, err := uuid.Parse(chi.URLParam(r, "imageID"))
	if err != nil {
		response.BadRequest(w, "invalid image id")
		return uuid.Nil, false
	}
	return id, true
}

// parsePaging reads page and page_size query params with defaults 1 and 20.
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

func mediaTypeFor(storagePath string) string {
	switch strings.ToLower(path.Ext(storagePath)) {
	case ".jpg", ".jpeg":
		return "image/jpeg"
	case ".png":
		return "image/png"
	case ".webp":
		return "image/webp"
	case ".gif":
		return "image/gif"
	case ".bmp":
		return "image/bmp"
	default:
		return "application/octet-stream"
	}
}
