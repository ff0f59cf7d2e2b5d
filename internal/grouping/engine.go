package grouping

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/your-org/facegroups/internal/config"
	"github.com/your-org/facegroups/internal/models"
	"github.com/your-org/facegroups/internal/observability"
)

// Engine assigns detected faces to person groups: one image per run, each
// detection resolved against the current catalog in detector output order.
// A run is idempotent — it always retracts the image's previous faces before
// re-assigning, so retry, redo and first-time processing share one flow.
type Engine struct {
	cfg      config.GroupingConfig
	store    Store
	detector Detector
	blobs    BlobStore
	events   EventPublisher
}

func NewEngine(cfg config.GroupingConfig, store Store, detector Detector, blobs BlobStore, events EventPublisher) *Engine {
	return &Engine{
		cfg:      cfg,
		store:    store,
		detector: detector,
		blobs:    blobs,
		events:   events,
	}
}

type runResult struct {
	facesDetected int
	groupsCreated int
	groupsMatched int
}

// ProcessImage runs one full processing attempt for an image: claim,
// detect, retract-and-assign, terminal status. Returns
// ErrConcurrentProcessing when an attempt is already in flight.
func (e *Engine) ProcessImage(ctx context.Context, imageID uuid.UUID) error {
	img, err := e.store.GetImage(ctx, imageID)
	if err != nil {
		return fmt.Errorf("get image: %w", err)
	}
	if img == nil {
		return ErrImageNotFound
	}

	claimed, err := e.store.ClaimImage(ctx, imageID)
	if err != nil {
		return fmt.Errorf("claim image: %w", err)
	}
	if !claimed {
		return ErrConcurrentProcessing
	}

	start := time.Now()
	res, runErr := e.run(ctx, img)
	observability.ProcessingDuration.Observe(time.Since(start).Seconds())

	if runErr != nil {
		slog.Error("processing run failed", "image_id", imageID, "error", runErr)
		if err := e.store.FinishImage(ctx, imageID, models.StatusFailed); err != nil {
			slog.Error("mark image failed", "image_id", imageID, "error", err)
		}
		observability.ImagesProcessed.WithLabelValues(string(models.StatusFailed)).Inc()
		e.publish(ctx, models.ProcessingEvent{
			Type:    "image_failed",
			ImageID: imageID,
			Status:  models.StatusFailed,
			Error:   runErr.Error(),
		})
		return runErr
	}

	if err := e.store.FinishImage(ctx, imageID, models.StatusCompleted); err != nil {
		return fmt.Errorf("mark image completed: %w", err)
	}

	observability.ImagesProcessed.WithLabelValues(string(models.StatusCompleted)).Inc()
	observability.FacesDetected.Add(float64(res.facesDetected))

	slog.Info("image processed",
		"image_id", imageID,
		"faces", res.facesDetected,
		"groups_created", res.groupsCreated,
		"groups_matched", res.groupsMatched,
	)

	e.publish(ctx, models.ProcessingEvent{
		Type:          "image_completed",
		ImageID:       imageID,
		Status:        models.StatusCompleted,
		FacesDetected: res.facesDetected,
		GroupsCreated: res.groupsCreated,
		GroupsMatched: res.groupsMatched,
	})
	return nil
}

// run performs the fallible part of a processing attempt. Detector and blob
// calls happen outside the transaction; the retraction of the image's old
// faces and every assignment commit atomically or not at all.
func (e *Engine) run(ctx context.Context, img *models.Image) (*runResult, error) {
	data, err := e.blobs.GetObject(ctx, img.StorageKey)
	if err != nil {
		return nil, fmt.Errorf("load image %s: %w", img.StorageKey, err)
	}

	detections, err := e.detector.DetectFaces(data)
	if err != nil {
		return nil, &DetectionError{Cause: err}
	}

	for _, det := range detections {
		if len(det.Embedding) != e.cfg.EmbeddingDim {
			return nil, &EmbeddingDimensionError{Got: len(det.Embedding), Want: e.cfg.EmbeddingDim}
		}
	}

	res := &runResult{facesDetected: len(detections)}

	err = e.store.InTx(ctx, func(tx Tx) error {
		if err := tx.LockAssignments(ctx); err != nil {
			return fmt.Errorf("lock assignments: %w", err)
		}

		// Retract the previous run's faces so the end state depends only on
		// the current detector output and other images' faces.
		affected, err := tx.DeleteImageFaces(ctx, img.ID)
		if err != nil {
			return fmt.Errorf("delete faces for image %s: %w", img.ID, err)
		}
		for _, groupID := range affected {
			if err := repairGroup(ctx, tx, groupID); err != nil {
				return fmt.Errorf("repair group %s: %w", groupID, err)
			}
		}

		for _, det := range detections {
			if _, err := e.assign(ctx, tx, img.ID, det, res); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return res, nil
}

// assign resolves one detection against the current catalog: join the best
// matching group at or above the threshold, otherwise found a new group with
// this face as its representative.
func (e *Engine) assign(ctx context.Context, tx Tx, imageID uuid.UUID, det models.Detection, res *runResult) (*models.Face, error) {
	embedding := make([]float32, len(det.Embedding))
	copy(embedding, det.Embedding)
	Normalize(embedding)

	matches, err := tx.NearestGroups(ctx, embedding, 1)
	if err != nil {
		return nil, fmt.Errorf("nearest groups: %w", err)
	}

	face := &models.Face{
		ID:         uuid.New(),
		ImageID:    imageID,
		Embedding:  embedding,
		BBox:       det.BBox,
		Confidence: det.Confidence,
	}

	if len(matches) > 0 && matches[0].Similarity >= e.cfg.SimilarityThreshold {
		groupID := matches[0].GroupID
		face.PersonGroupID = &groupID
		if err := tx.InsertFace(ctx, face); err != nil {
			return nil, fmt.Errorf("insert face: %w", err)
		}
		res.groupsMatched++
		slog.Debug("face matched",
			"face_id", face.ID,
			"group_id", groupID,
			"similarity", matches[0].Similarity,
		)
		return face, nil
	}

	group := &models.PersonGroup{ID: uuid.New()}
	if err := tx.CreateGroup(ctx, group); err != nil {
		return nil, fmt.Errorf("create group: %w", err)
	}
	face.PersonGroupID = &group.ID
	if err := tx.InsertFace(ctx, face); err != nil {
		return nil, fmt.Errorf("insert face: %w", err)
	}
	if err := tx.SetRepresentative(ctx, group.ID, face.ID); err != nil {
		return nil, fmt.Errorf("set representative: %w", err)
	}
	res.groupsCreated++
	observability.GroupsCreated.Inc()
	slog.Debug("group created", "face_id", face.ID, "group_id", group.ID)
	return face, nil
}

func (e *Engine) publish(ctx context.Context, ev models.ProcessingEvent) {
	if e.events == nil {
		return
	}
	if err := e.events.PublishEvent(ctx, ev.ImageID.String(), ev); err != nil {
		slog.Warn("publish processing event", "image_id", ev.ImageID, "error", err)
	}
}
