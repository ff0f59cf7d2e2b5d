package grouping

import (
	"context"

	"github.com/google/uuid"

	"github.com/your-org/facegroups/internal/models"
)

// GroupMatch is one similarity-index result: a group and the cosine
// similarity of the query embedding to that group's representative face.
type GroupMatch struct {
	GroupID    uuid.UUID
	Similarity float64
}

// Store is the persistence surface the grouping core depends on. It is
// implemented by storage.PostgresStore and by in-memory fakes in tests.
type Store interface {
	// GetImage returns nil, nil when the image does not exist.
	GetImage(ctx context.Context, id uuid.UUID) (*models.Image, error)

	// ClaimImage conditionally transitions an image to `processing` and
	// reports whether the claim succeeded. The transition must be a single
	// conditional update so the single-flight invariant holds across
	// distributed workers, not just within one process.
	ClaimImage(ctx context.Context, id uuid.UUID) (bool, error)

	// FinishImage records a terminal status and stamps processed_at.
	FinishImage(ctx context.Context, id uuid.UUID, status models.ProcessingStatus) error

	// InTx runs fn inside one transaction. Any error rolls back every
	// write made through tx.
	InTx(ctx context.Context, fn func(tx Tx) error) error
}

// Tx is the transaction-scoped slice of the store. Every group-mutating
// operation of the core goes through one of these inside a single InTx call.
type Tx interface {
	// LockAssignments takes the catalog-wide exclusive lock that serializes
	// concurrent group-mutating transactions (assign, merge, delete). Held
	// until the transaction ends.
	LockAssignments(ctx context.Context) error

	// NearestGroups returns up to k groups ordered by descending cosine
	// similarity of the query to each group's representative embedding,
	// one entry per group, ties broken by earlier group creation. Results
	// reflect writes made earlier in the same transaction.
	NearestGroups(ctx context.Context, embedding []float32, k int) ([]GroupMatch, error)

	InsertFace(ctx context.Context, f *models.Face) error
	GetFace(ctx context.Context, id uuid.UUID) (*models.Face, error)

	// DeleteImageFaces removes every face of the image and returns the ids
	// of the groups those faces belonged to.
	DeleteImageFaces(ctx context.Context, imageID uuid.UUID) ([]uuid.UUID, error)

	CreateGroup(ctx context.Context, g *models.PersonGroup) error
	GetGroup(ctx context.Context, id uuid.UUID) (*models.PersonGroup, error)
	SetRepresentative(ctx context.Context, groupID, faceID uuid.UUID) error
	RenameGroup(ctx context.Context, groupID uuid.UUID, name string) error
	GroupMemberCount(ctx context.Context, groupID uuid.UUID) (int, error)

	// BestMemberFace returns the member with highest confidence, ties
	// broken by earliest detected_at; nil when the group has no members.
	BestMemberFace(ctx context.Context, groupID uuid.UUID) (*models.Face, error)

	// ReassignGroupFaces moves every face from one group to another and
	// returns how many were moved.
	ReassignGroupFaces(ctx context.Context, from, to uuid.UUID) (int64, error)

	// DetachGroupFaces clears person_group_id on every member face.
	DetachGroupFaces(ctx context.Context, groupID uuid.UUID) error

	DeleteGroup(ctx context.Context, groupID uuid.UUID) error
}

// Detector produces face detections for raw image bytes. Implemented by
// vision.Pipeline; the core never sees model internals.
type Detector interface {
	DetectFaces(imageData []byte) ([]models.Detection, error)
}

// BlobStore fetches uploaded image bytes for the detector.
type BlobStore interface {
	GetObject(ctx context.Context, key string) ([]byte, error)
}

// EventPublisher emits processing events after each run. May be nil.
type EventPublisher interface {
	PublishEvent(ctx context.Context, imageID string, data any) error
}
