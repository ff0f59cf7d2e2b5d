package models

import (
	"time"

	"github.com/google/uuid"
)

type ProcessingStatus string

const (
	StatusPending    ProcessingStatus = "pending"
	StatusProcessing ProcessingStatus = "processing"
	StatusCompleted  ProcessingStatus = "completed"
	StatusFailed     ProcessingStatus = "failed"
)

// Image is an uploaded photo. The grouping core only ever touches its
// processing status and timestamps; everything else is set at upload time.
type Image struct {
	ID         uuid.UUID        `json:"id" db:"id"`
	Filename   string           `json:"filename" db:"filename"`
	StorageKey string           `json:"storage_key" db:"storage_key"`
	MimeType   string           `json:"mime_type" db:"mime_type"`
	FileSize   int64            `json:"file_size" db:"file_size"`
	Width      int              `json:"width" db:"width"`
	Height     int              `json:"height" db:"height"`
	Status     ProcessingStatus `json:"processing_status" db:"processing_status"`
	UploadedAt time.Time        `json:"uploaded_at" db:"uploaded_at"`
	// ProcessedAt is set when a run reaches a terminal status.
	ProcessedAt *time.Time `json:"processed_at,omitempty" db:"processed_at"`
}

// ProcessTask is the message published to NATS to request one processing
// run for an image. Redo distinguishes an explicit re-detection of a
// completed image from a retry of a pending/failed one.
type ProcessTask struct {
	ImageID uuid.UUID `json:"image_id"`
	Redo    bool      `json:"redo"`
}

// ProcessingEvent is published after every run (and consumed by the API
// for WebSocket broadcast).
type ProcessingEvent struct {
	Type          string           `json:"type"` // image_completed, image_failed
	ImageID       uuid.UUID        `json:"image_id"`
	Status        ProcessingStatus `json:"status"`
	FacesDetected int              `json:"faces_detected"`
	GroupsCreated int              `json:"groups_created"`
	GroupsMatched int              `json:"groups_matched"`
	Error         string           `json:"error,omitempty"`
}
