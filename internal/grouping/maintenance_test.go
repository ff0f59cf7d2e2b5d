package grouping

import (
	"context"
	"errors"
	"testing"

	"github.com/google/uuid"

	"github.com/your-org/facegroups/internal/models"
)

// seedGroup creates a group with n member faces and the first as its
// representative.
func seedGroup(t *testing.T, store *memStore, n int) (uuid.UUID, []uuid.UUID) {
	t.Helper()
	ctx := context.Background()

	g := &models.PersonGroup{ID: uuid.New()}
	if err := store.CreateGroup(ctx, g); err != nil {
		t.Fatalf("create group: %v", err)
	}

	var faceIDs []uuid.UUID
	for i := 0; i < n; i++ {
		groupID := g.ID
		f := &models.Face{
			ID:            uuid.New(),
			ImageID:       uuid.New(),
			Embedding:     []float32{1, 0, 0, 0},
			Confidence:    0.9,
			PersonGroupID: &groupID,
		}
		if err := store.InsertFace(ctx, f); err != nil {
			t.Fatalf("insert face: %v", err)
		}
		faceIDs = append(faceIDs, f.ID)
	}
	if err := store.SetRepresentative(ctx, g.ID, faceIDs[0]); err != nil {
		t.Fatalf("set representative: %v", err)
	}
	return g.ID, faceIDs
}

func TestMergeGroups(t *testing.T) {
	store := newMemStore()
	m := NewMaintainer(store)
	ctx := context.Background()

	sourceID, _ := seedGroup(t, store, 2)
	targetID, targetFaces := seedGroup(t, store, 1)

	if err := m.MergeGroups(ctx, sourceID, targetID); err != nil {
		t.Fatalf("MergeGroups: %v", err)
	}

	if g, _ := store.GetGroup(ctx, sourceID); g != nil {
		t.Error("source group still exists after merge")
	}

	count, _ := store.GroupMemberCount(ctx, targetID)
	if count != 3 {
		t.Errorf("target member count = %d, want 3", count)
	}

	// Target representative is untouched.
	g, _ := store.GetGroup(ctx, targetID)
	if *g.RepresentativeFaceID != targetFaces[0] {
		t.Errorf("target representative changed: got %s, want %s", g.RepresentativeFaceID, targetFaces[0])
	}
}

func TestMergeGroupsReplaySafe(t *testing.T) {
	store := newMemStore()
	m := NewMaintainer(store)
	ctx := context.Background()

	sourceID, _ := seedGroup(t, store, 1)
	targetID, _ := seedGroup(t, store, 1)

	if err := m.MergeGroups(ctx, sourceID, targetID); err != nil {
		t.Fatalf("first merge: %v", err)
	}
	// The source is gone now; replaying the merge must be a no-op success.
	if err := m.MergeGroups(ctx, sourceID, targetID); err != nil {
		t.Fatalf("replayed merge: %v", err)
	}

	count, _ := store.GroupMemberCount(ctx, targetID)
	if count != 2 {
		t.Errorf("target member count = %d, want 2", count)
	}
}

func TestMergeGroupsSelfIsNoop(t *testing.T) {
	store := newMemStore()
	m := NewMaintainer(store)
	ctx := context.Background()

	groupID, _ := seedGroup(t, store, 2)

	if err := m.MergeGroups(ctx, groupID, groupID); err != nil {
		t.Fatalf("self merge: %v", err)
	}
	if g, _ := store.GetGroup(ctx, groupID); g == nil {
		t.Error("self merge deleted the group")
	}
	count, _ := store.GroupMemberCount(ctx, groupID)
	if count != 2 {
		t.Errorf("member count = %d, want 2", count)
	}
}

func TestMergeGroupsMissingTarget(t *testing.T) {
	store := newMemStore()
	m := NewMaintainer(store)

	sourceID, _ := seedGroup(t, store, 1)

	err := m.MergeGroups(context.Background(), sourceID, uuid.New())
	if !errors.Is(err, ErrGroupNotFound) {
		t.Errorf("err = %v, want ErrGroupNotFound", err)
	}
}

func TestDeleteGroupDetachesFaces(t *testing.T) {
	store := newMemStore()
	m := NewMaintainer(store)
	ctx := context.Background()

	groupID, faceIDs := seedGroup(t, store, 2)

	if err := m.DeleteGroup(ctx, groupID); err != nil {
		t.Fatalf("DeleteGroup: %v", err)
	}

	if g, _ := store.GetGroup(ctx, groupID); g != nil {
		t.Error("group still exists")
	}

	// Faces survive deletion ungrouped; only reprocessing deletes faces.
	for _, id := range faceIDs {
		f, _ := store.GetFace(ctx, id)
		if f == nil {
			t.Fatalf("face %s deleted with its group", id)
		}
		if f.PersonGroupID != nil {
			t.Errorf("face %s still references deleted group", id)
		}
	}
}

func TestDeleteGroupMissing(t *testing.T) {
	store := newMemStore()
	m := NewMaintainer(store)

	err := m.DeleteGroup(context.Background(), uuid.New())
	if !errors.Is(err, ErrGroupNotFound) {
		t.Errorf("err = %v, want ErrGroupNotFound", err)
	}
}

func TestRenameGroup(t *testing.T) {
	store := newMemStore()
	m := NewMaintainer(store)
	ctx := context.Background()

	groupID, _ := seedGroup(t, store, 1)

	if err := m.RenameGroup(ctx, groupID, "Alice"); err != nil {
		t.Fatalf("RenameGroup: %v", err)
	}
	g, _ := store.GetGroup(ctx, groupID)
	if g.Name != "Alice" {
		t.Errorf("name = %q, want Alice", g.Name)
	}

	if err := m.RenameGroup(ctx, uuid.New(), "Bob"); !errors.Is(err, ErrGroupNotFound) {
		t.Errorf("rename missing group: err = %v, want ErrGroupNotFound", err)
	}
}
