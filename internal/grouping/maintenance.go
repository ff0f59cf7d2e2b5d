package grouping

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/google/uuid"
)

// Maintainer implements the manual group operations: merge, delete, rename.
// Each runs in its own transaction under the assignment lock, so a merge is
// never interleaved with an in-flight assignment against its source group.
type Maintainer struct {
	store Store
}

func NewMaintainer(store Store) *Maintainer {
	return &Maintainer{store: store}
}

// MergeGroups reassigns every face of the source group to the target group
// and deletes the source. The target's representative is left unchanged.
// A source that no longer exists is a no-op success, so replaying a merge
// is safe; a missing target is ErrGroupNotFound.
func (m *Maintainer) MergeGroups(ctx context.Context, sourceID, targetID uuid.UUID) error {
	if sourceID == targetID {
		return nil
	}
	return m.store.InTx(ctx, func(tx Tx) error {
		if err := tx.LockAssignments(ctx); err != nil {
			return fmt.Errorf("lock assignments: %w", err)
		}

		target, err := tx.GetGroup(ctx, targetID)
		if err != nil {
			return fmt.Errorf("get target group: %w", err)
		}
		if target == nil {
			return fmt.Errorf("merge target %s: %w", targetID, ErrGroupNotFound)
		}

		source, err := tx.GetGroup(ctx, sourceID)
		if err != nil {
			return fmt.Errorf("get source group: %w", err)
		}
		if source == nil {
			// Already merged away.
			return nil
		}

		moved, err := tx.ReassignGroupFaces(ctx, sourceID, targetID)
		if err != nil {
			return fmt.Errorf("reassign faces: %w", err)
		}
		if err := tx.DeleteGroup(ctx, sourceID); err != nil {
			return fmt.Errorf("delete source group: %w", err)
		}

		slog.Info("groups merged", "source", sourceID, "target", targetID, "faces_moved", moved)
		return nil
	})
}

// DeleteGroup removes a group. Member faces are detached, not deleted —
// faces are only ever deleted by reprocessing their image, which will also
// regroup any detached ones.
func (m *Maintainer) DeleteGroup(ctx context.Context, groupID uuid.UUID) error {
	return m.store.InTx(ctx, func(tx Tx) error {
		if err := tx.LockAssignments(ctx); err != nil {
			return fmt.Errorf("lock assignments: %w", err)
		}

		group, err := tx.GetGroup(ctx, groupID)
		if err != nil {
			return fmt.Errorf("get group: %w", err)
		}
		if group == nil {
			return fmt.Errorf("delete group %s: %w", groupID, ErrGroupNotFound)
		}

		if err := tx.DetachGroupFaces(ctx, groupID); err != nil {
			return fmt.Errorf("detach faces: %w", err)
		}
		if err := tx.DeleteGroup(ctx, groupID); err != nil {
			return fmt.Errorf("delete group: %w", err)
		}

		slog.Info("group deleted", "group_id", groupID)
		return nil
	})
}

// RenameGroup sets the user-assigned label of a group.
func (m *Maintainer) RenameGroup(ctx context.Context, groupID uuid.UUID, name string) error {
	return m.store.InTx(ctx, func(tx Tx) error {
		group, err := tx.GetGroup(ctx, groupID)
		if err != nil {
			return fmt.Errorf("get group: %w", err)
		}
		if group == nil {
			return fmt.Errorf("rename group %s: %w", groupID, ErrGroupNotFound)
		}
		return tx.RenameGroup(ctx, groupID, name)
	})
}

// repairGroup restores group invariants after member faces were removed:
// an emptied group is deleted; a group whose representative is gone gets a
// new one, chosen by highest confidence, ties by earliest detection.
func repairGroup(ctx context.Context, tx Tx, groupID uuid.UUID) error {
	group, err := tx.GetGroup(ctx, groupID)
	if err != nil {
		return err
	}
	if group == nil {
		return nil
	}

	count, err := tx.GroupMemberCount(ctx, groupID)
	if err != nil {
		return err
	}
	if count == 0 {
		slog.Info("deleting emptied group", "group_id", groupID)
		return tx.DeleteGroup(ctx, groupID)
	}

	if group.RepresentativeFaceID != nil {
		rep, err := tx.GetFace(ctx, *group.RepresentativeFaceID)
		if err != nil {
			return err
		}
		if rep != nil && rep.PersonGroupID != nil && *rep.PersonGroupID == groupID {
			return nil
		}
	}

	best, err := tx.BestMemberFace(ctx, groupID)
	if err != nil {
		return err
	}
	if best == nil {
		return fmt.Errorf("group %s has members but no best face", groupID)
	}
	slog.Info("representative reassigned", "group_id", groupID, "face_id", best.ID)
	return tx.SetRepresentative(ctx, groupID, best.ID)
}
