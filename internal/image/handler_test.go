package image

import (
	"bytes"
	"context"
	"encoding/json"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/require"

	"github.com/pixelscan/service/internal/storage"
)

func newTestHandler(t *testing.T) (*Handler, *fakeRepo) {
	t.Helper()
	store, err := storage.NewFileStore(t.TempDir())
	require.NoError(t, err)
	repo := newFakeRepo()
	svc := NewService(repo, store, nil)
	return NewHandler(svc, store, 1<<20), repo
}

func multipartUpload(t *testing.T, filename string, data []byte) *http.Request {
	t.Helper()
	var body bytes.Buffer
	mw := multipart.NewWriter(&body)
	fw, err := mw.CreateFormFile("file", filename)
	require.NoError(t, err)
	_, err = fw.Write(data)
	require.NoError(t, err)
	require.NoError(t, mw.Close())

	req := httptest.NewRequest(http.MethodPost, "/api/v1/images/upload", &body)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	return req
}

func TestUploadHandlerCreatesImage(t *testing.T) {
	h, repo := newTestHandler(t)

	rec := httptest.NewRecorder()
	h.Upload(rec, multipartUpload(t, "demo.jpg", []byte("jpeg bytes")))

	require.Equal(t, http.StatusCreated, rec.Code)
	require.Len(t, repo.rows, 1)

	var env struct {
		Success bool  `json:"success"`
		Data    Image `json:"data"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &env))
	require.True(t, env.Success)
	require.Equal(t, StatusPending, env.Data.Status)
	require.Equal(t, "demo.jpg", env.Data.Filename)
}

func TestUploadHandlerRejectsExtension(t *testing.T) {
	h, repo := newTestHandler(t)

	rec := httptest.NewRecorder()
	h.Upload(rec, multipartUpload(t, "malware.exe", []byte("MZ")))

	require.Equal(t, http.StatusUnsupportedMediaType, rec.Code)
	require.Empty(t, repo.rows)
}

func TestUploadHandlerRejectsEmptyFile(t *testing.T) {
	h, _ := newTestHandler(t)

	rec := httptest.NewRecorder()
	h.Upload(rec, multipartUpload(t, "empty.png", nil))

	require.Equal(t, http.StatusUnsupportedMediaType, rec.Code)
}

func TestGetHandlerRejectsMalformedID(t *testing.T) {
	h, _ := newTestHandler(t)

	rctx := chi.NewRouteContext()
	rctx.URLParams.Add("imageID", "not-a-uuid")
	req := httptest.NewRequest(http.MethodGet, "/api/v1/images/not-a-uuid", nil)
	req = req.WithContext(context.WithValue(req.Context(), chi.RouteCtxKey, rctx))

	rec := httptest.NewRecorder()
	h.Get(rec, req)
	require.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestListHandlerValidatesPaging(t *testing.T) {
	h, _ := newTestHandler(t)

	rec := httptest.NewRecorder()
	h.List(rec, httptest.NewRequest(http.MethodGet, "/api/v1/images?page_size=500", nil))
	require.Equal(t, http.StatusBadRequest, rec.Code)

	rec = httptest.NewRecorder()
	h.List(rec, httptest.NewRequest(http.MethodGet, "/api/v1/images?status=bogus", nil))
	require.Equal(t, http.StatusBadRequest, rec.Code)

	rec = httptest.NewRecorder()
	h.List(rec, httptest.NewRequest(http.MethodGet, "/api/v1/images?page=2&page_size=5", nil))
	require.Equal(t, http.StatusOK, rec.Code)
}
