package grouping

import (
	"errors"
	"fmt"
)

var (
	// ErrImageNotFound is returned when an operation references an image
	// that does not exist.
	ErrImageNotFound = errors.New("image not found")

	// ErrGroupNotFound is returned when merge/delete/rename references a
	// nonexistent person group.
	ErrGroupNotFound = errors.New("person group not found")

	// ErrConcurrentProcessing is returned when a processing run is requested
	// for an image that already has an attempt in flight. The request is
	// rejected, not queued.
	ErrConcurrentProcessing = errors.New("image is already being processed")
)

// DetectionError wraps a failure of the external face detector. The run
// fails, no faces are written, and the caller may retry.
type DetectionError struct {
	Cause error
}

func (e *DetectionError) Error() string {
	return fmt.Sprintf("face detection failed: %v", e.Cause)
}

func (e *DetectionError) Unwrap() error { return e.Cause }

// EmbeddingDimensionError reports a detection whose embedding length does
// not match the configured dimensionality. The whole run is rejected; faces
// are never partially committed for an image.
type EmbeddingDimensionError struct {
	Got  int
	Want int
}

func (e *EmbeddingDimensionError) Error() string {
	return fmt.Sprintf("embedding dimension mismatch: got %d, want %d", e.Got, e.Want)
}
