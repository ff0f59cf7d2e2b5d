package storage

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/pgvector/pgvector-go"

	"github.com/your-org/facegroups/internal/config"
	"github.com/your-org/facegroups/internal/grouping"
	"github.com/your-org/facegroups/internal/models"
)

// assignLockKey is the advisory lock key serializing group-mutating
// transactions (assign, merge, delete). One key for the whole catalog:
// every assignment compares against all representatives, so finer locking
// would not prevent two concurrent runs from double-creating a group.
const assignLockKey = int64(874220)

type querier interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

type PostgresStore struct {
	pool *pgxpool.Pool
	db   querier
}

func NewPostgresStore(cfg config.DatabaseConfig) (*PostgresStore, error) {
	poolCfg, err := pgxpool.ParseConfig(cfg.DSN())
	if err != nil {
		return nil, fmt.Errorf("parse dsn: %w", err)
	}
	poolCfg.MaxConns = int32(cfg.MaxConns)

	pool, err := pgxpool.NewWithConfig(context.Background(), poolCfg)
	if err != nil {
		return nil, fmt.Errorf("connect to postgres: %w", err)
	}

	if err := pool.Ping(context.Background()); err != nil {
		return nil, fmt.Errorf("ping postgres: %w", err)
	}

	return &PostgresStore{pool: pool, db: pool}, nil
}

func (s *PostgresStore) Close() {
	s.pool.Close()
}

func (s *PostgresStore) Ping(ctx context.Context) error {
	return s.pool.Ping(ctx)
}

// InTx runs fn inside one transaction; fn receives a tx-bound store.
func (s *PostgresStore) InTx(ctx context.Context, fn func(tx grouping.Tx) error) error {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback(ctx) //nolint:errcheck

	if err := fn(&PostgresStore{pool: s.pool, db: tx}); err != nil {
		return err
	}
	return tx.Commit(ctx)
}

// LockAssignments blocks until this transaction holds the catalog
// assignment lock; released automatically at commit/rollback.
func (s *PostgresStore) LockAssignments(ctx context.Context) error {
	_, err := s.db.Exec(ctx, `SELECT pg_advisory_xact_lock($1)`, assignLockKey)
	return err
}

// --- Images ---

func (s *PostgresStore) CreateImage(ctx context.Context, img *models.Image) error {
	if img.ID == uuid.Nil {
		img.ID = uuid.New()
	}
	img.Status = models.StatusPending
	err := s.db.QueryRow(ctx,
		`INSERT INTO images (id, filename, storage_key, mime_type, file_size, width, height, processing_status)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8) RETURNING uploaded_at`,
		img.ID, img.Filename, img.StorageKey, img.MimeType, img.FileSize, img.Width, img.Height, img.Status,
	).Scan(&img.UploadedAt)
	if err != nil {
		return fmt.Errorf("create image: %w", err)
	}
	return nil
}

func (s *PostgresStore) GetImage(ctx context.Context, id uuid.UUID) (*models.Image, error) {
	img := &models.Image{}
	err := s.db.QueryRow(ctx,
		`SELECT id, filename, storage_key, mime_type, file_size, width, height, processing_status, uploaded_at, processed_at
		 FROM images WHERE id = $1`, id,
	).Scan(&img.ID, &img.Filename, &img.StorageKey, &img.MimeType, &img.FileSize,
		&img.Width, &img.Height, &img.Status, &img.UploadedAt, &img.ProcessedAt)
	if err != nil {
		if err == pgx.ErrNoRows {
			return nil, nil
		}
		return nil, fmt.Errorf("get image: %w", err)
	}
	return img, nil
}

func (s *PostgresStore) ListImages(ctx context.Context, limit, offset int) ([]models.Image, error) {
	if limit <= 0 {
		limit = 100
	}
	rows, err := s.db.Query(ctx,
		`SELECT id, filename, storage_key, mime_type, file_size, width, height, processing_status, uploaded_at, processed_at
		 FROM images ORDER BY uploaded_at DESC LIMIT $1 OFFSET $2`, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("list images: %w", err)
	}
	defer rows.Close()

	var images []models.Image
	for rows.Next() {
		var img models.Image
		if err := rows.Scan(&img.ID, &img.Filename, &img.StorageKey, &img.MimeType, &img.FileSize,
			&img.Width, &img.Height, &img.Status, &img.UploadedAt, &img.ProcessedAt); err != nil {
			return nil, fmt.Errorf("scan image: %w", err)
		}
		images = append(images, img)
	}
	return images, nil
}

// ClaimImage is the single-flight gate: only one attempt may hold the
// `processing` status at a time, enforced by a conditional update so it
// holds across workers.
func (s *PostgresStore) ClaimImage(ctx context.Context, id uuid.UUID) (bool, error) {
	tag, err := s.db.Exec(ctx,
		`UPDATE images SET processing_status = $1 WHERE id = $2 AND processing_status <> $1`,
		models.StatusProcessing, id)
	if err != nil {
		return false, fmt.Errorf("claim image: %w", err)
	}
	return tag.RowsAffected() > 0, nil
}

func (s *PostgresStore) FinishImage(ctx context.Context, id uuid.UUID, status models.ProcessingStatus) error {
	_, err := s.db.Exec(ctx,
		`UPDATE images SET processing_status = $1, processed_at = now() WHERE id = $2`,
		status, id)
	if err != nil {
		return fmt.Errorf("finish image: %w", err)
	}
	return nil
}

// ProcessingCounts returns the number of images per processing status.
func (s *PostgresStore) ProcessingCounts(ctx context.Context) (map[models.ProcessingStatus]int, error) {
	rows, err := s.db.Query(ctx,
		`SELECT processing_status, COUNT(*) FROM images GROUP BY processing_status`)
	if err != nil {
		return nil, fmt.Errorf("processing counts: %w", err)
	}
	defer rows.Close()

	counts := make(map[models.ProcessingStatus]int)
	for rows.Next() {
		var status models.ProcessingStatus
		var n int
		if err := rows.Scan(&status, &n); err != nil {
			return nil, fmt.Errorf("scan count: %w", err)
		}
		counts[status] = n
	}
	return counts, nil
}

// --- Faces ---

func (s *PostgresStore) InsertFace(ctx context.Context, f *models.Face) error {
	bbox, err := json.Marshal(f.BBox)
	if err != nil {
		return fmt.Errorf("marshal bounding box: %w", err)
	}
	err = s.db.QueryRow(ctx,
		`INSERT INTO faces (id, image_id, embedding, bounding_box, confidence, person_group_id)
		 VALUES ($1, $2, $3, $4, $5, $6) RETURNING detected_at`,
		f.ID, f.ImageID, pgvector.NewVector(f.Embedding), bbox, f.Confidence, f.PersonGroupID,
	).Scan(&f.DetectedAt)
	if err != nil {
		return fmt.Errorf("insert face: %w", err)
	}
	return nil
}

func (s *PostgresStore) GetFace(ctx context.Context, id uuid.UUID) (*models.Face, error) {
	f := &models.Face{}
	var bbox []byte
	err := s.db.QueryRow(ctx,
		`SELECT id, image_id, bounding_box, confidence, detected_at, person_group_id
		 FROM faces WHERE id = $1`, id,
	).Scan(&f.ID, &f.ImageID, &bbox, &f.Confidence, &f.DetectedAt, &f.PersonGroupID)
	if err != nil {
		if err == pgx.ErrNoRows {
			return nil, nil
		}
		return nil, fmt.Errorf("get face: %w", err)
	}
	if err := json.Unmarshal(bbox, &f.BBox); err != nil {
		return nil, fmt.Errorf("unmarshal bounding box: %w", err)
	}
	return f, nil
}

func (s *PostgresStore) ListFaces(ctx context.Context, limit, offset int) ([]models.Face, error) {
	if limit <= 0 {
		limit = 100
	}
	return s.queryFaces(ctx,
		`SELECT id, image_id, bounding_box, confidence, detected_at, person_group_id
		 FROM faces ORDER BY detected_at DESC LIMIT $1 OFFSET $2`, limit, offset)
}

func (s *PostgresStore) ListImageFaces(ctx context.Context, imageID uuid.UUID) ([]models.Face, error) {
	return s.queryFaces(ctx,
		`SELECT id, image_id, bounding_box, confidence, detected_at, person_group_id
		 FROM faces WHERE image_id = $1 ORDER BY detected_at, id`, imageID)
}

func (s *PostgresStore) CountImageFaces(ctx context.Context, imageID uuid.UUID) (int, error) {
	var n int
	err := s.db.QueryRow(ctx, `SELECT COUNT(*) FROM faces WHERE image_id = $1`, imageID).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("count image faces: %w", err)
	}
	return n, nil
}

func (s *PostgresStore) ListGroupFaces(ctx context.Context, groupID uuid.UUID) ([]models.Face, error) {
	return s.queryFaces(ctx,
		`SELECT id, image_id, bounding_box, confidence, detected_at, person_group_id
		 FROM faces WHERE person_group_id = $1 ORDER BY detected_at, id`, groupID)
}

func (s *PostgresStore) queryFaces(ctx context.Context, sql string, args ...any) ([]models.Face, error) {
	rows, err := s.db.Query(ctx, sql, args...)
	if err != nil {
		return nil, fmt.Errorf("query faces: %w", err)
	}
	defer rows.Close()

	var faces []models.Face
	for rows.Next() {
		var f models.Face
		var bbox []byte
		if err := rows.Scan(&f.ID, &f.ImageID, &bbox, &f.Confidence, &f.DetectedAt, &f.PersonGroupID); err != nil {
			return nil, fmt.Errorf("scan face: %w", err)
		}
		if err := json.Unmarshal(bbox, &f.BBox); err != nil {
			return nil, fmt.Errorf("unmarshal bounding box: %w", err)
		}
		faces = append(faces, f)
	}
	return faces, nil
}

// DeleteImageFaces removes every face of an image and returns the distinct
// groups those faces belonged to, so the caller can repair them.
func (s *PostgresStore) DeleteImageFaces(ctx context.Context, imageID uuid.UUID) ([]uuid.UUID, error) {
	rows, err := s.db.Query(ctx,
		`DELETE FROM faces WHERE image_id = $1 RETURNING person_group_id`, imageID)
	if err != nil {
		return nil, fmt.Errorf("delete image faces: %w", err)
	}
	defer rows.Close()

	seen := make(map[uuid.UUID]bool)
	var groups []uuid.UUID
	for rows.Next() {
		var groupID *uuid.UUID
		if err := rows.Scan(&groupID); err != nil {
			return nil, fmt.Errorf("scan deleted face: %w", err)
		}
		if groupID != nil && !seen[*groupID] {
			seen[*groupID] = true
			groups = append(groups, *groupID)
		}
	}
	return groups, nil
}

// --- Similarity index ---

// NearestGroups compares the query embedding against every group's
// representative face using the pgvector cosine-distance operator. The scan
// is exact; ties are broken by group creation order so assignment stays
// deterministic.
func (s *PostgresStore) NearestGroups(ctx context.Context, embedding []float32, k int) ([]grouping.GroupMatch, error) {
	if k <= 0 {
		k = 1
	}
	vec := pgvector.NewVector(embedding)
	rows, err := s.db.Query(ctx,
		`SELECT pg.id, 1 - (f.embedding <=> $1) AS similarity
		 FROM person_groups pg
		 JOIN faces f ON f.id = pg.representative_face_id
		 ORDER BY f.embedding <=> $1, pg.created_at, pg.id
		 LIMIT $2`, vec, k)
	if err != nil {
		return nil, fmt.Errorf("nearest groups: %w", err)
	}
	defer rows.Close()

	var matches []grouping.GroupMatch
	for rows.Next() {
		var m grouping.GroupMatch
		if err := rows.Scan(&m.GroupID, &m.Similarity); err != nil {
			return nil, fmt.Errorf("scan match: %w", err)
		}
		matches = append(matches, m)
	}
	return matches, nil
}

// --- Person groups ---

func (s *PostgresStore) CreateGroup(ctx context.Context, g *models.PersonGroup) error {
	if g.ID == uuid.Nil {
		g.ID = uuid.New()
	}
	err := s.db.QueryRow(ctx,
		`INSERT INTO person_groups (id, name) VALUES ($1, NULLIF($2, '')) RETURNING created_at, updated_at`,
		g.ID, g.Name,
	).Scan(&g.CreatedAt, &g.UpdatedAt)
	if err != nil {
		return fmt.Errorf("create group: %w", err)
	}
	return nil
}

func (s *PostgresStore) GetGroup(ctx context.Context, id uuid.UUID) (*models.PersonGroup, error) {
	g := &models.PersonGroup{}
	var name *string
	err := s.db.QueryRow(ctx,
		`SELECT id, name, representative_face_id, created_at, updated_at FROM person_groups WHERE id = $1`, id,
	).Scan(&g.ID, &name, &g.RepresentativeFaceID, &g.CreatedAt, &g.UpdatedAt)
	if err != nil {
		if err == pgx.ErrNoRows {
			return nil, nil
		}
		return nil, fmt.Errorf("get group: %w", err)
	}
	if name != nil {
		g.Name = *name
	}
	return g, nil
}

func (s *PostgresStore) ListGroups(ctx context.Context, limit, offset int) ([]models.PersonGroup, error) {
	if limit <= 0 {
		limit = 100
	}
	rows, err := s.db.Query(ctx,
		`SELECT id, name, representative_face_id, created_at, updated_at
		 FROM person_groups ORDER BY created_at DESC LIMIT $1 OFFSET $2`, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("list groups: %w", err)
	}
	defer rows.Close()

	var groups []models.PersonGroup
	for rows.Next() {
		var g models.PersonGroup
		var name *string
		if err := rows.Scan(&g.ID, &name, &g.RepresentativeFaceID, &g.CreatedAt, &g.UpdatedAt); err != nil {
			return nil, fmt.Errorf("scan group: %w", err)
		}
		if name != nil {
			g.Name = *name
		}
		groups = append(groups, g)
	}
	return groups, nil
}

// SetRepresentative points a group at a member face. The membership check
// lives in the statement itself so a stale face id can never be written.
func (s *PostgresStore) SetRepresentative(ctx context.Context, groupID, faceID uuid.UUID) error {
	tag, err := s.db.Exec(ctx,
		`UPDATE person_groups SET representative_face_id = $2, updated_at = now()
		 WHERE id = $1
		   AND EXISTS (SELECT 1 FROM faces f WHERE f.id = $2 AND f.person_group_id = $1)`,
		groupID, faceID)
	if err != nil {
		return fmt.Errorf("set representative: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("set representative: face %s is not a member of group %s", faceID, groupID)
	}
	return nil
}

func (s *PostgresStore) RenameGroup(ctx context.Context, groupID uuid.UUID, name string) error {
	_, err := s.db.Exec(ctx,
		`UPDATE person_groups SET name = NULLIF($2, ''), updated_at = now() WHERE id = $1`,
		groupID, name)
	if err != nil {
		return fmt.Errorf("rename group: %w", err)
	}
	return nil
}

func (s *PostgresStore) GroupMemberCount(ctx context.Context, groupID uuid.UUID) (int, error) {
	var count int
	err := s.db.QueryRow(ctx,
		`SELECT COUNT(*) FROM faces WHERE person_group_id = $1`, groupID,
	).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("group member count: %w", err)
	}
	return count, nil
}

func (s *PostgresStore) BestMemberFace(ctx context.Context, groupID uuid.UUID) (*models.Face, error) {
	f := &models.Face{}
	var bbox []byte
	err := s.db.QueryRow(ctx,
		`SELECT id, image_id, bounding_box, confidence, detected_at, person_group_id
		 FROM faces WHERE person_group_id = $1
		 ORDER BY confidence DESC, detected_at, id LIMIT 1`, groupID,
	).Scan(&f.ID, &f.ImageID, &bbox, &f.Confidence, &f.DetectedAt, &f.PersonGroupID)
	if err != nil {
		if err == pgx.ErrNoRows {
			return nil, nil
		}
		return nil, fmt.Errorf("best member face: %w", err)
	}
	if err := json.Unmarshal(bbox, &f.BBox); err != nil {
		return nil, fmt.Errorf("unmarshal bounding box: %w", err)
	}
	return f, nil
}

func (s *PostgresStore) ReassignGroupFaces(ctx context.Context, from, to uuid.UUID) (int64, error) {
	tag, err := s.db.Exec(ctx,
		`UPDATE faces SET person_group_id = $2 WHERE person_group_id = $1`, from, to)
	if err != nil {
		return 0, fmt.Errorf("reassign group faces: %w", err)
	}
	return tag.RowsAffected(), nil
}

func (s *PostgresStore) DetachGroupFaces(ctx context.Context, groupID uuid.UUID) error {
	_, err := s.db.Exec(ctx,
		`UPDATE faces SET person_group_id = NULL WHERE person_group_id = $1`, groupID)
	if err != nil {
		return fmt.Errorf("detach group faces: %w", err)
	}
	return nil
}

func (s *PostgresStore) DeleteGroup(ctx context.Context, groupID uuid.UUID) error {
	_, err := s.db.Exec(ctx, `DELETE FROM person_groups WHERE id = $1`, groupID)
	if err != nil {
		return fmt.Errorf("delete group: %w", err)
	}
	return nil
}

// ListGroupImages returns the distinct images that contain a face of the
// group, newest upload first.
func (s *PostgresStore) ListGroupImages(ctx context.Context, groupID uuid.UUID) ([]models.Image, error) {
	rows, err := s.db.Query(ctx,
		`SELECT DISTINCT i.id, i.filename, i.storage_key, i.mime_type, i.file_size, i.width, i.height,
		        i.processing_status, i.uploaded_at, i.processed_at
		 FROM images i
		 JOIN faces f ON f.image_id = i.id
		 WHERE f.person_group_id = $1
		 ORDER BY i.uploaded_at DESC`, groupID)
	if err != nil {
		return nil, fmt.Errorf("list group images: %w", err)
	}
	defer rows.Close()

	var images []models.Image
	for rows.Next() {
		var img models.Image
		if err := rows.Scan(&img.ID, &img.Filename, &img.StorageKey, &img.MimeType, &img.FileSize,
			&img.Width, &img.Height, &img.Status, &img.UploadedAt, &img.ProcessedAt); err != nil {
			return nil, fmt.Errorf("scan image: %w", err)
		}
		images = append(images, img)
	}
	return images, nil
}
