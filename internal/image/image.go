// Package image manages uploaded image records and their persistence.
package image

import (
	"errors"
	"time"

	"github.com/google/uuid"
)

// Status is the processing state of an uploaded image.
type Status string

const (
	StatusPending    Status = "pending"
	StatusProcessing Status = "processing"
	StatusCompleted  Status = "completed"
	StatusFailed     Status = "failed"
)

// Valid reports whether s is one of the declared statuses.
func (s Status) Valid() bool {
	switch s {
	case StatusPending, StatusProcessing, StatusCompleted, StatusFailed:
		return true
	}
	return false
}

// Image is an uploaded image record.
type Image struct {
	ID              uuid.UUID `json:"id"`
	Filename        string    `json:"filename"`
	OriginalURL     *string   `json:"originalUrl,omitempty"`
	StoragePath     string    `json:"storagePath"`
	FileSize        int64     `json:"fileSize"`
	Status          Status    `json:"status"`
	UploadTimestamp time.Time `json:"uploadTimestamp"`
	CreatedAt       time.Time `json:"createdAt"`
	UpdatedAt       time.Time `json:"updatedAt"`
}

// ErrNotFound is returned when an image does not exist.
var ErrNotFound = errors.New("image not found")

// ErrDuplicatePath is returned when an image with the same storage path
// already exists.
var ErrDuplicatePath = errors.New("image with the same storage path already exists")

// ErrAlreadyProcessed is returned when analysis is requested for an image
// that is already being analyzed or has finished.
var ErrAlreadyProcessed = errors.New("image already analyzed or being analyzed")

// CreateParams are the caller-supplied fields for a new image row.
type CreateParams struct {
	Filename    string
	OriginalURL *string
	StoragePath string
	FileSize    int64
}

// Filter narrows paginated image queries. Zero values mean no filtering.
type Filter struct {
	// Status matches exactly when non-empty.
	Status Status
	// FilenameSubstr matches case-insensitively as a substring when non-empty.
	FilenameSubstr string
}
