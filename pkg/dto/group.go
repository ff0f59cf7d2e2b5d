package dto

import "github.com/google/uuid"

type GroupResponse struct {
	ID                   uuid.UUID  `json:"id"`
	Name                 string     `json:"name,omitempty"`
	RepresentativeFaceID *uuid.UUID `json:"representative_face_id,omitempty"`
	FaceCount            int        `json:"face_count"`
	CreatedAt            string     `json:"created_at"`
	UpdatedAt            string     `json:"updated_at"`
}

type GroupListResponse struct {
	Groups []GroupResponse `json:"groups"`
	Total  int             `json:"total"`
}

type RenameGroupRequest struct {
	Name string `json:"name" binding:"required"`
}

// MergeGroupsRequest names the group whose faces move into the group
// addressed by the URL.
type MergeGroupsRequest struct {
	SourceID uuid.UUID `json:"source_id" binding:"required"`
}

// WSEvent is a WebSocket message for real-time processing updates.
type WSEvent struct {
	Type          string    `json:"type"` // image_completed, image_failed
	ImageID       uuid.UUID `json:"image_id"`
	Status        string    `json:"status"`
	FacesDetected int       `json:"faces_detected"`
	GroupsCreated int       `json:"groups_created"`
	GroupsMatched int       `json:"groups_matched"`
	Error         string    `json:"error,omitempty"`
}
