package storage

import (
	"context"
	"fmt"
)

// Migrate creates the schema if it does not exist. The embedding column
// width is fixed by the detector model, so it is part of the DDL.
//
// person_groups.representative_face_id deliberately has no foreign key:
// it would be circular with faces.person_group_id, and membership is
// validated at write time in SetRepresentative instead.
func (s *PostgresStore) Migrate(ctx context.Context, embeddingDim int) error {
	stmts := []string{
		`CREATE EXTENSION IF NOT EXISTS vector`,

		`CREATE TABLE IF NOT EXISTS images (
			id UUID PRIMARY KEY,
			filename VARCHAR(255) NOT NULL,
			storage_key VARCHAR(500) NOT NULL UNIQUE,
			mime_type VARCHAR(100),
			file_size BIGINT,
			width INT,
			height INT,
			processing_status VARCHAR(20) NOT NULL DEFAULT 'pending',
			uploaded_at TIMESTAMPTZ NOT NULL DEFAULT now(),
			processed_at TIMESTAMPTZ
		)`,

		`CREATE TABLE IF NOT EXISTS person_groups (
			id UUID PRIMARY KEY,
			name VARCHAR(255),
			representative_face_id UUID,
			created_at TIMESTAMPTZ NOT NULL DEFAULT now(),
			updated_at TIMESTAMPTZ NOT NULL DEFAULT now()
		)`,

		fmt.Sprintf(`CREATE TABLE IF NOT EXISTS faces (
			id UUID PRIMARY KEY,
			image_id UUID NOT NULL REFERENCES images(id) ON DELETE CASCADE,
			embedding vector(%d) NOT NULL,
			bounding_box JSONB NOT NULL,
			confidence REAL NOT NULL DEFAULT 0,
			detected_at TIMESTAMPTZ NOT NULL DEFAULT now(),
			person_group_id UUID REFERENCES person_groups(id) ON DELETE SET NULL
		)`, embeddingDim),

		`CREATE INDEX IF NOT EXISTS idx_faces_image_id ON faces(image_id)`,
		`CREATE INDEX IF NOT EXISTS idx_faces_person_group_id ON faces(person_group_id)`,
		`CREATE INDEX IF NOT EXISTS idx_images_processing_status ON images(processing_status)`,
	}

	for _, stmt := range stmts {
		if _, err := s.db.Exec(ctx, stmt); err != nil {
			return fmt.Errorf("migrate: %w", err)
		}
	}
	return nil
}
