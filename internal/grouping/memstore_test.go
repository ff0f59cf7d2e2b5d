package grouping

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/your-org/facegroups/internal/models"
)

// memStore is a brute-force in-memory Store/Tx used by the engine and
// maintainer tests. It mirrors the Postgres semantics the core depends on:
// similarity search against representative embeddings, conditional claims,
// and read-your-writes inside a transaction.
type memStore struct {
	mu     sync.Mutex
	images map[uuid.UUID]*models.Image
	faces  map[uuid.UUID]*models.Face
	groups map[uuid.UUID]*models.PersonGroup
	clock  time.Time
}

func newMemStore() *memStore {
	return &memStore{
		images: make(map[uuid.UUID]*models.Image),
		faces:  make(map[uuid.UUID]*models.Face),
		groups: make(map[uuid.UUID]*models.PersonGroup),
		clock:  time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC),
	}
}

func (s *memStore) tick() time.Time {
	s.clock = s.clock.Add(time.Second)
	return s.clock
}

func (s *memStore) addImage() *models.Image {
	s.mu.Lock()
	defer s.mu.Unlock()
	id := uuid.New()
	img := &models.Image{
		ID:         id,
		Filename:   "test.jpg",
		StorageKey: "photos/" + id.String() + ".jpg",
		Status:     models.StatusPending,
		UploadedAt: s.tick(),
	}
	s.images[img.ID] = img
	return img
}

func (s *memStore) GetImage(_ context.Context, id uuid.UUID) (*models.Image, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	img, ok := s.images[id]
	if !ok {
		return nil, nil
	}
	cp := *img
	return &cp, nil
}

func (s *memStore) ClaimImage(_ context.Context, id uuid.UUID) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	img, ok := s.images[id]
	if !ok || img.Status == models.StatusProcessing {
		return false, nil
	}
	img.Status = models.StatusProcessing
	return true, nil
}

func (s *memStore) FinishImage(_ context.Context, id uuid.UUID, status models.ProcessingStatus) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if img, ok := s.images[id]; ok {
		img.Status = status
		now := s.tick()
		img.ProcessedAt = &now
	}
	return nil
}

func (s *memStore) InTx(_ context.Context, fn func(tx Tx) error) error {
	return fn(s)
}

func (s *memStore) LockAssignments(context.Context) error { return nil }

func (s *memStore) NearestGroups(_ context.Context, embedding []float32, k int) ([]GroupMatch, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var matches []GroupMatch
	created := make(map[uuid.UUID]time.Time)
	for id, g := range s.groups {
		if g.RepresentativeFaceID == nil {
			continue
		}
		rep, ok := s.faces[*g.RepresentativeFaceID]
		if !ok {
			continue
		}
		matches = append(matches, GroupMatch{GroupID: id, Similarity: CosineSimilarity(embedding, rep.Embedding)})
		created[id] = g.CreatedAt
	}

	sort.Slice(matches, func(i, j int) bool {
		if matches[i].Similarity != matches[j].Similarity {
			return matches[i].Similarity > matches[j].Similarity
		}
		return created[matches[i].GroupID].Before(created[matches[j].GroupID])
	})

	if len(matches) > k {
		matches = matches[:k]
	}
	return matches, nil
}

func (s *memStore) InsertFace(_ context.Context, f *models.Face) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	f.DetectedAt = s.tick()
	cp := *f
	s.faces[f.ID] = &cp
	return nil
}

func (s *memStore) GetFace(_ context.Context, id uuid.UUID) (*models.Face, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	f, ok := s.faces[id]
	if !ok {
		return nil, nil
	}
	cp := *f
	return &cp, nil
}

func (s *memStore) DeleteImageFaces(_ context.Context, imageID uuid.UUID) ([]uuid.UUID, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	seen := make(map[uuid.UUID]bool)
	var affected []uuid.UUID
	for id, f := range s.faces {
		if f.ImageID != imageID {
			continue
		}
		if f.PersonGroupID != nil && !seen[*f.PersonGroupID] {
			seen[*f.PersonGroupID] = true
			affected = append(affected, *f.PersonGroupID)
		}
		delete(s.faces, id)
	}
	return affected, nil
}

func (s *memStore) CreateGroup(_ context.Context, g *models.PersonGroup) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	g.CreatedAt = s.tick()
	g.UpdatedAt = g.CreatedAt
	cp := *g
	s.groups[g.ID] = &cp
	return nil
}

func (s *memStore) GetGroup(_ context.Context, id uuid.UUID) (*models.PersonGroup, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	g, ok := s.groups[id]
	if !ok {
		return nil, nil
	}
	cp := *g
	return &cp, nil
}

func (s *memStore) SetRepresentative(_ context.Context, groupID, faceID uuid.UUID) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	g, ok := s.groups[groupID]
	if !ok {
		return ErrGroupNotFound
	}
	g.RepresentativeFaceID = &faceID
	g.UpdatedAt = s.tick()
	return nil
}

func (s *memStore) RenameGroup(_ context.Context, groupID uuid.UUID, name string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	g, ok := s.groups[groupID]
	if !ok {
		return ErrGroupNotFound
	}
	g.Name = name
	g.UpdatedAt = s.tick()
	return nil
}

func (s *memStore) GroupMemberCount(_ context.Context, groupID uuid.UUID) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for _, f := range s.faces {
		if f.PersonGroupID != nil && *f.PersonGroupID == groupID {
			n++
		}
	}
	return n, nil
}

func (s *memStore) BestMemberFace(_ context.Context, groupID uuid.UUID) (*models.Face, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var best *models.Face
	for _, f := range s.faces {
		if f.PersonGroupID == nil || *f.PersonGroupID != groupID {
			continue
		}
		if best == nil ||
			f.Confidence > best.Confidence ||
			(f.Confidence == best.Confidence && f.DetectedAt.Before(best.DetectedAt)) {
			best = f
		}
	}
	if best == nil {
		return nil, nil
	}
	cp := *best
	return &cp, nil
}

func (s *memStore) ReassignGroupFaces(_ context.Context, from, to uuid.UUID) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var moved int64
	for _, f := range s.faces {
		if f.PersonGroupID != nil && *f.PersonGroupID == from {
			target := to
			f.PersonGroupID = &target
			moved++
		}
	}
	return moved, nil
}

func (s *memStore) DetachGroupFaces(_ context.Context, groupID uuid.UUID) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, f := range s.faces {
		if f.PersonGroupID != nil && *f.PersonGroupID == groupID {
			f.PersonGroupID = nil
		}
	}
	return nil
}

func (s *memStore) DeleteGroup(_ context.Context, groupID uuid.UUID) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.groups, groupID)
	return nil
}

// groupCount and faceCount are test helpers.
func (s *memStore) groupCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.groups)
}

func (s *memStore) faceCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.faces)
}

func (s *memStore) imageFaces(imageID uuid.UUID) []*models.Face {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []*models.Face
	for _, f := range s.faces {
		if f.ImageID == imageID {
			cp := *f
			out = append(out, &cp)
		}
	}
	return out
}
