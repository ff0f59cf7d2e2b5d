package grouping

import (
	"context"
	"errors"
	"testing"

	"github.com/google/uuid"

	"github.com/your-org/facegroups/internal/config"
	"github.com/your-org/facegroups/internal/models"
)

// stubBlobs hands the storage key back as the image bytes, so the stub
// detector can key its canned output per image.
type stubBlobs struct{}

func (stubBlobs) GetObject(_ context.Context, key string) ([]byte, error) {
	return []byte(key), nil
}

type stubDetector struct {
	byKey map[string][]models.Detection
	err   error
}

func (d *stubDetector) DetectFaces(data []byte) ([]models.Detection, error) {
	if d.err != nil {
		return nil, d.err
	}
	return d.byKey[string(data)], nil
}

type eventRecorder struct {
	events []models.ProcessingEvent
}

func (r *eventRecorder) PublishEvent(_ context.Context, _ string, data any) error {
	if ev, ok := data.(models.ProcessingEvent); ok {
		r.events = append(r.events, ev)
	}
	return nil
}

func testConfig() config.GroupingConfig {
	return config.GroupingConfig{
		SimilarityThreshold: 0.6,
		EmbeddingDim:        4,
	}
}

func det(confidence float32, embedding []float32) models.Detection {
	return models.Detection{
		BBox:       models.BoundingBox{X: 10, Y: 10, Width: 50, Height: 50},
		Confidence: confidence,
		Embedding:  embedding,
	}
}

func TestProcessImageCreatesGroupPerIdentity(t *testing.T) {
	store := newMemStore()
	img := store.addImage()

	detector := &stubDetector{byKey: map[string][]models.Detection{
		img.StorageKey: {
			det(0.9, []float32{1, 0, 0, 0}),
			det(0.8, []float32{0, 1, 0, 0}),
		},
	}}
	engine := NewEngine(testConfig(), store, detector, stubBlobs{}, nil)

	if err := engine.ProcessImage(context.Background(), img.ID); err != nil {
		t.Fatalf("ProcessImage: %v", err)
	}

	if got := store.faceCount(); got != 2 {
		t.Errorf("face count = %d, want 2", got)
	}
	if got := store.groupCount(); got != 2 {
		t.Errorf("group count = %d, want 2", got)
	}

	// Each new group's representative is its founding face.
	for _, f := range store.imageFaces(img.ID) {
		if f.PersonGroupID == nil {
			t.Fatal("face has no group")
		}
		g, _ := store.GetGroup(context.Background(), *f.PersonGroupID)
		if g == nil || g.RepresentativeFaceID == nil {
			t.Fatal("group missing or has no representative")
		}
		if *g.RepresentativeFaceID != f.ID {
			t.Errorf("representative = %s, want founding face %s", g.RepresentativeFaceID, f.ID)
		}
	}

	got, _ := store.GetImage(context.Background(), img.ID)
	if got.Status != models.StatusCompleted {
		t.Errorf("image status = %s, want completed", got.Status)
	}
	if got.ProcessedAt == nil {
		t.Error("processed_at not set")
	}
}

func TestAssignUsesSimilarityThreshold(t *testing.T) {
	// First image founds a group at [1,0,0,0]; the second image carries one
	// face at similarity 0.8 (joins) and one at 0.3 (founds its own group).
	store := newMemStore()
	img1 := store.addImage()
	img2 := store.addImage()

	detector := &stubDetector{byKey: map[string][]models.Detection{
		img1.StorageKey: {det(0.9, []float32{1, 0, 0, 0})},
		img2.StorageKey: {
			det(0.9, []float32{0.8, 0.6, 0, 0}),
			det(0.9, []float32{0.3, 0.9539392, 0, 0}),
		},
	}}
	engine := NewEngine(testConfig(), store, detector, stubBlobs{}, nil)

	if err := engine.ProcessImage(context.Background(), img1.ID); err != nil {
		t.Fatalf("process img1: %v", err)
	}
	if err := engine.ProcessImage(context.Background(), img2.ID); err != nil {
		t.Fatalf("process img2: %v", err)
	}

	if got := store.groupCount(); got != 2 {
		t.Fatalf("group count = %d, want 2", got)
	}

	founder := store.imageFaces(img1.ID)[0]
	joined := 0
	for _, f := range store.imageFaces(img2.ID) {
		if *f.PersonGroupID == *founder.PersonGroupID {
			joined++
		}
	}
	if joined != 1 {
		t.Errorf("faces joined founder group = %d, want 1", joined)
	}

	// Joining must not change the representative.
	g, _ := store.GetGroup(context.Background(), *founder.PersonGroupID)
	if *g.RepresentativeFaceID != founder.ID {
		t.Errorf("representative changed on join: got %s, want %s", g.RepresentativeFaceID, founder.ID)
	}
}

func TestSameImageFacesCanShareNewGroup(t *testing.T) {
	// Two near-identical faces in one image: the first founds a group, the
	// second must see it and join it within the same run.
	store := newMemStore()
	img := store.addImage()

	detector := &stubDetector{byKey: map[string][]models.Detection{
		img.StorageKey: {
			det(0.9, []float32{1, 0, 0, 0}),
			det(0.8, []float32{0.99, 0.1, 0, 0}),
		},
	}}
	engine := NewEngine(testConfig(), store, detector, stubBlobs{}, nil)

	if err := engine.ProcessImage(context.Background(), img.ID); err != nil {
		t.Fatalf("ProcessImage: %v", err)
	}

	if got := store.groupCount(); got != 1 {
		t.Errorf("group count = %d, want 1", got)
	}
}

func TestReprocessIsIdempotent(t *testing.T) {
	store := newMemStore()
	img := store.addImage()

	detector := &stubDetector{byKey: map[string][]models.Detection{
		img.StorageKey: {
			det(0.9, []float32{1, 0, 0, 0}),
			det(0.8, []float32{0, 1, 0, 0}),
		},
	}}
	engine := NewEngine(testConfig(), store, detector, stubBlobs{}, nil)

	for i := 0; i < 3; i++ {
		if err := engine.ProcessImage(context.Background(), img.ID); err != nil {
			t.Fatalf("run %d: %v", i, err)
		}
	}

	if got := store.faceCount(); got != 2 {
		t.Errorf("face count after reruns = %d, want 2", got)
	}
	if got := store.groupCount(); got != 2 {
		t.Errorf("group count after reruns = %d, want 2", got)
	}
}

func TestReprocessDeletesEmptiedGroup(t *testing.T) {
	store := newMemStore()
	img := store.addImage()

	detector := &stubDetector{byKey: map[string][]models.Detection{
		img.StorageKey: {det(0.9, []float32{1, 0, 0, 0})},
	}}
	engine := NewEngine(testConfig(), store, detector, stubBlobs{}, nil)

	if err := engine.ProcessImage(context.Background(), img.ID); err != nil {
		t.Fatalf("first run: %v", err)
	}

	// The face is gone from the photo on the second run.
	detector.byKey[img.StorageKey] = nil
	if err := engine.ProcessImage(context.Background(), img.ID); err != nil {
		t.Fatalf("second run: %v", err)
	}

	if got := store.faceCount(); got != 0 {
		t.Errorf("face count = %d, want 0", got)
	}
	if got := store.groupCount(); got != 0 {
		t.Errorf("emptied group survived: group count = %d, want 0", got)
	}
}

func TestReprocessReassignsRepresentative(t *testing.T) {
	store := newMemStore()
	img1 := store.addImage()
	img2 := store.addImage()

	// img1's face founds the group and is its representative; img2's face
	// joins. Reprocessing img1 with an unrelated face must hand the
	// representative role to img2's face instead of deleting the group.
	detector := &stubDetector{byKey: map[string][]models.Detection{
		img1.StorageKey: {det(0.9, []float32{1, 0, 0, 0})},
		img2.StorageKey: {det(0.7, []float32{0.95, 0.3122499, 0, 0})},
	}}
	engine := NewEngine(testConfig(), store, detector, stubBlobs{}, nil)

	if err := engine.ProcessImage(context.Background(), img1.ID); err != nil {
		t.Fatalf("process img1: %v", err)
	}
	if err := engine.ProcessImage(context.Background(), img2.ID); err != nil {
		t.Fatalf("process img2: %v", err)
	}
	if got := store.groupCount(); got != 1 {
		t.Fatalf("group count = %d, want 1", got)
	}

	survivor := store.imageFaces(img2.ID)[0]
	groupID := *survivor.PersonGroupID

	detector.byKey[img1.StorageKey] = []models.Detection{det(0.9, []float32{0, 0, 0, 1})}
	if err := engine.ProcessImage(context.Background(), img1.ID); err != nil {
		t.Fatalf("reprocess img1: %v", err)
	}

	g, _ := store.GetGroup(context.Background(), groupID)
	if g == nil {
		t.Fatal("group deleted despite surviving member")
	}
	if g.RepresentativeFaceID == nil || *g.RepresentativeFaceID != survivor.ID {
		t.Errorf("representative = %v, want surviving face %s", g.RepresentativeFaceID, survivor.ID)
	}
}

func TestProcessImageNotFound(t *testing.T) {
	store := newMemStore()
	engine := NewEngine(testConfig(), store, &stubDetector{}, stubBlobs{}, nil)

	err := engine.ProcessImage(context.Background(), uuid.New())
	if !errors.Is(err, ErrImageNotFound) {
		t.Errorf("err = %v, want ErrImageNotFound", err)
	}
}

func TestProcessImageRejectsConcurrentRun(t *testing.T) {
	store := newMemStore()
	img := store.addImage()

	if ok, _ := store.ClaimImage(context.Background(), img.ID); !ok {
		t.Fatal("setup claim failed")
	}

	engine := NewEngine(testConfig(), store, &stubDetector{}, stubBlobs{}, nil)
	err := engine.ProcessImage(context.Background(), img.ID)
	if !errors.Is(err, ErrConcurrentProcessing) {
		t.Errorf("err = %v, want ErrConcurrentProcessing", err)
	}
}

func TestDetectorFailureMarksImageFailed(t *testing.T) {
	store := newMemStore()
	img := store.addImage()
	events := &eventRecorder{}

	detector := &stubDetector{err: errors.New("model exploded")}
	engine := NewEngine(testConfig(), store, detector, stubBlobs{}, events)

	err := engine.ProcessImage(context.Background(), img.ID)
	var detErr *DetectionError
	if !errors.As(err, &detErr) {
		t.Fatalf("err = %v, want *DetectionError", err)
	}

	got, _ := store.GetImage(context.Background(), img.ID)
	if got.Status != models.StatusFailed {
		t.Errorf("image status = %s, want failed", got.Status)
	}
	if len(events.events) != 1 || events.events[0].Type != "image_failed" {
		t.Errorf("events = %+v, want one image_failed", events.events)
	}
}

func TestEmbeddingDimensionMismatchRejectsWholeRun(t *testing.T) {
	store := newMemStore()
	img := store.addImage()

	detector := &stubDetector{byKey: map[string][]models.Detection{
		img.StorageKey: {
			det(0.9, []float32{1, 0, 0, 0}),
			det(0.8, []float32{1, 0}), // wrong dimension
		},
	}}
	engine := NewEngine(testConfig(), store, detector, stubBlobs{}, nil)

	err := engine.ProcessImage(context.Background(), img.ID)
	var dimErr *EmbeddingDimensionError
	if !errors.As(err, &dimErr) {
		t.Fatalf("err = %v, want *EmbeddingDimensionError", err)
	}
	if dimErr.Got != 2 || dimErr.Want != 4 {
		t.Errorf("dimension error = got %d want %d, expected got 2 want 4", dimErr.Got, dimErr.Want)
	}

	// No partial writes: the valid detection must not have been stored.
	if got := store.faceCount(); got != 0 {
		t.Errorf("face count = %d, want 0", got)
	}
	if got := store.groupCount(); got != 0 {
		t.Errorf("group count = %d, want 0", got)
	}
}

func TestZeroDetectionsCompletes(t *testing.T) {
	store := newMemStore()
	img := store.addImage()
	events := &eventRecorder{}

	detector := &stubDetector{byKey: map[string][]models.Detection{}}
	engine := NewEngine(testConfig(), store, detector, stubBlobs{}, events)

	if err := engine.ProcessImage(context.Background(), img.ID); err != nil {
		t.Fatalf("ProcessImage: %v", err)
	}

	got, _ := store.GetImage(context.Background(), img.ID)
	if got.Status != models.StatusCompleted {
		t.Errorf("image status = %s, want completed", got.Status)
	}
	if len(events.events) != 1 || events.events[0].Type != "image_completed" {
		t.Errorf("events = %+v, want one image_completed", events.events)
	}
	if events.events[0].FacesDetected != 0 {
		t.Errorf("faces_detected = %d, want 0", events.events[0].FacesDetected)
	}
}
