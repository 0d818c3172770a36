package store

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/erazemk/gradilisce/internal/apperr"
	"github.com/erazemk/gradilisce/internal/model"
)

const materialCols = `id, name, unit, description, created_at, deleted_at`

func scanMaterial(s rowScanner) (*model.Material, error) {
	m := &model.Material{}
	var description sql.NullString
	if err := s.Scan(&m.ID, &m.Name, &m.Unit, &description, &m.CreatedAt, &m.DeletedAt); err != nil {
		return nil, err
	}
	m.Description = description.String
	return m, nil
}

// CreateMaterial adds a catalogue entry.
func CreateMaterial(ctx context.Context, db *sql.DB, name, unit, description string) (*model.Material, error) {
	result, err := db.ExecContext(ctx,
		`INSERT INTO materials (name, unit, description) VALUES (?, ?, ?)`,
		name, unit, nullString(description),
	)
	if err != nil {
		return nil, fmt.Errorf("creating material: %w", err)
	}

	id, err := result.LastInsertId()
	if err != nil {
		return nil, fmt.Errorf("getting material id: %w", err)
	}

	return GetMaterial(ctx, db, id)
}

// GetMaterial returns a material by ID.
func GetMaterial(ctx context.Context, db *sql.DB, id int64) (*model.Material, error) {
	m, err := scanMaterial(db.QueryRowContext(ctx,
		`SELECT `+materialCols+` FROM materials WHERE id = ?`, id,
	))
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("getting material: %w", err)
	}
	return m, nil
}

// ListMaterials returns all non-deleted materials.
func ListMaterials(ctx context.Context, db *sql.DB) ([]model.Material, error) {
	rows, err := db.QueryContext(ctx,
		`SELECT `+materialCols+` FROM materials WHERE deleted_at IS NULL ORDER BY name`,
	)
	if err != nil {
		return nil, fmt.Errorf("listing materials: %w", err)
	}
	defer rows.Close()

	var materials []model.Material
	for rows.Next() {
		m, err := scanMaterial(rows)
		if err != nil {
			return nil, fmt.Errorf("scanning material: %w", err)
		}
		materials = append(materials, *m)
	}
	return materials, rows.Err()
}

// UpdateMaterial updates a material's metadata.
func UpdateMaterial(ctx context.Context, db *sql.DB, id int64, name, unit, description string) error {
	_, err := db.ExecContext(ctx,
		`UPDATE materials SET name = ?, unit = ?, description = ? WHERE id = ? AND deleted_at IS NULL`,
		name, unit, nullString(description), id,
	)
	if err != nil {
		return fmt.Errorf("updating material: %w", err)
	}
	return nil
}

// DeleteMaterial soft-deletes a material.
func DeleteMaterial(ctx context.Context, db *sql.DB, id int64) error {
	_, err := db.ExecContext(ctx,
		`UPDATE materials SET deleted_at = CURRENT_TIMESTAMP WHERE id = ? AND deleted_at IS NULL`,
		id,
	)
	if err != nil {
		return fmt.Errorf("deleting material: %w", err)
	}
	return nil
}

func activeMaterial(ctx context.Context, q querier, id int64) (*model.Material, error) {
	m, err := scanMaterial(q.QueryRowContext(ctx,
		`SELECT `+materialCols+` FROM materials WHERE id = ? AND deleted_at IS NULL`, id,
	))
	if err == sql.ErrNoRows {
		return nil, apperr.NotFound("material")
	}
	if err != nil {
		return nil, fmt.Errorf("getting material: %w", err)
	}
	return m, nil
}
