package models

import (
	"time"

	"github.com/google/uuid"
)

// BoundingBox locates a face in source-image pixel space.
type BoundingBox struct {
	X      int `json:"x"`
	Y      int `json:"y"`
	Width  int `json:"width"`
	Height int `json:"height"`
}

// Detection is one face found by the detector: its location, the detector's
// confidence and a fixed-dimension identity embedding.
type Detection struct {
	BBox       BoundingBox `json:"bbox"`
	Confidence float32     `json:"confidence"`
	Embedding  []float32   `json:"embedding"`
}

// Face is one detected face instance persisted by the grouping engine.
// Faces are created during processing and deleted only when their image is
// reprocessed; the only field mutated afterwards is PersonGroupID.
type Face struct {
	ID            uuid.UUID   `json:"id" db:"id"`
	ImageID       uuid.UUID   `json:"image_id" db:"image_id"`
	Embedding     []float32   `json:"-" db:"embedding"`
	BBox          BoundingBox `json:"bounding_box" db:"bounding_box"`
	Confidence    float32     `json:"confidence" db:"confidence"`
	DetectedAt    time.Time   `json:"detected_at" db:"detected_at"`
	PersonGroupID *uuid.UUID  `json:"person_group_id,omitempty" db:"person_group_id"`
}
