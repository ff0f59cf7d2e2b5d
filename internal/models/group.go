package models

import (
	"time"

	"github.com/google/uuid"
)

// PersonGroup is a cluster of faces inferred to belong to one individual.
// It never stores an embedding itself: its position in embedding space is
// always the embedding of its representative face.
type PersonGroup struct {
	ID                   uuid.UUID  `json:"id" db:"id"`
	Name                 string     `json:"name,omitempty" db:"name"`
	RepresentativeFaceID *uuid.UUID `json:"representative_face_id,omitempty" db:"representative_face_id"`
	CreatedAt            time.Time  `json:"created_at" db:"created_at"`
	UpdatedAt            time.Time  `json:"updated_at" db:"updated_at"`
}
