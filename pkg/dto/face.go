package dto

import "github.com/google/uuid"

type BoundingBox struct {
	X      int `json:"x"`
	Y      int `json:"y"`
	Width  int `json:"width"`
	Height int `json:"height"`
}

type FaceResponse struct {
	ID            uuid.UUID   `json:"id"`
	ImageID       uuid.UUID   `json:"image_id"`
	BoundingBox   BoundingBox `json:"bounding_box"`
	Confidence    float32     `json:"confidence"`
	PersonGroupID *uuid.UUID  `json:"person_group_id,omitempty"`
	DetectedAt    string      `json:"detected_at"`
}

type FaceListResponse struct {
	Faces []FaceResponse `json:"faces"`
	Total int            `json:"total"`
}

type FaceQuery struct {
	ImageID string `form:"image_id"`
	GroupID string `form:"group_id"`
	Limit   int    `form:"limit"`
	Offset  int    `form:"offset"`
}
