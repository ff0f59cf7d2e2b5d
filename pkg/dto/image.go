package dto

import "github.com/google/uuid"

type ImageResponse struct {
	ID          uuid.UUID `json:"id"`
	Filename    string    `json:"filename"`
	MimeType    string    `json:"mime_type"`
	FileSize    int64     `json:"file_size"`
	Width       int       `json:"width"`
	Height      int       `json:"height"`
	Status      string    `json:"processing_status"`
	FaceCount   int       `json:"face_count"`
	UploadedAt  string    `json:"uploaded_at"`
	ProcessedAt string    `json:"processed_at,omitempty"`
}

type ImageListResponse struct {
	Images []ImageResponse `json:"images"`
	Total  int             `json:"total"`
}

type ImageQuery struct {
	Status string `form:"status"`
	Limit  int    `form:"limit"`
	Offset int    `form:"offset"`
}

// ProcessAccepted is returned when a processing run is queued.
type ProcessAccepted struct {
	ImageID uuid.UUID `json:"image_id"`
	Status  string    `json:"status"`
}

type ProcessingStatusResponse struct {
	Pending    int `json:"pending"`
	Processing int `json:"processing"`
	Completed  int `json:"completed"`
	Failed     int `json:"failed"`
	QueueDepth int `json:"queue_depth"`
}
