package store

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/erazemk/gradilisce/internal/apperr"
	"github.com/erazemk/gradilisce/internal/model"
)

const projectCols = `id, name, address, status, created_at, deleted_at`

func scanProject(s rowScanner) (*model.Project, error) {
	p := &model.Project{}
	var address sql.NullString
	if err := s.Scan(&p.ID, &p.Name, &address, &p.Status, &p.CreatedAt, &p.DeletedAt); err != nil {
		return nil, err
	}
	p.Address = address.String
	return p, nil
}

// CreateProject creates a new active project.
func CreateProject(ctx context.Context, db *sql.DB, name, address string) (*model.Project, error) {
	result, err := db.ExecContext(ctx,
		`INSERT INTO projects (name, address) VALUES (?, ?)`,
		name, nullString(address),
	)
	if err != nil {
		return nil, fmt.Errorf("creating project: %w", err)
	}

	id, err := result.LastInsertId()
	if err != nil {
		return nil, fmt.Errorf("getting project id: %w", err)
	}

	return GetProject(ctx, db, id)
}

// GetProject returns a project by ID, including soft-deleted ones.
func GetProject(ctx context.Context, db *sql.DB, id int64) (*model.Project, error) {
	p, err := scanProject(db.QueryRowContext(ctx,
		`SELECT `+projectCols+` FROM projects WHERE id = ?`, id,
	))
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("getting project: %w", err)
	}
	return p, nil
}

// ListProjects returns all non-deleted projects, optionally filtered by status.
func ListProjects(ctx context.Context, db *sql.DB, status string) ([]model.Project, error) {
	query := `SELECT ` + projectCols + ` FROM projects WHERE deleted_at IS NULL`
	var args []any
	if status != "" {
		query += ` AND status = ?`
		args = append(args, status)
	}
	query += ` ORDER BY name`

	rows, err := db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("listing projects: %w", err)
	}
	defer rows.Close()

	var projects []model.Project
	for rows.Next() {
		p, err := scanProject(rows)
		if err != nil {
			return nil, fmt.Errorf("scanning project: %w", err)
		}
		projects = append(projects, *p)
	}
	return projects, rows.Err()
}

// UpdateProject updates a project's name, address and status.
func UpdateProject(ctx context.Context, db *sql.DB, id int64, name, address, status string) error {
	_, err := db.ExecContext(ctx,
		`UPDATE projects SET name = ?, address = ?, status = ? WHERE id = ? AND deleted_at IS NULL`,
		name, nullString(address), status, id,
	)
	if err != nil {
		return fmt.Errorf("updating project: %w", err)
	}
	return nil
}

// DeleteProject soft-deletes a project. Fails while the project holds stock
// or is party to a pending transfer.
func DeleteProject(ctx context.Context, db *sql.DB, id int64) error {
	var stocked int
	err := db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM site_inventory WHERE project_id = ? AND CAST(quantity AS REAL) > 0`, id,
	).Scan(&stocked)
	if err != nil {
		return fmt.Errorf("checking project inventory: %w", err)
	}
	if stocked > 0 {
		return apperr.Newf(apperr.CodeInvalidState, "cannot delete project: still holds %d inventory entries", stocked)
	}

	var pending int
	err = db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM transfer_requests
		 WHERE status = 'pending' AND (from_project_id = ? OR to_project_id = ?)`, id, id,
	).Scan(&pending)
	if err != nil {
		return fmt.Errorf("checking pending transfers: %w", err)
	}
	if pending > 0 {
		return apperr.Newf(apperr.CodeInvalidState, "cannot delete project: %d pending transfer requests", pending)
	}

	_, err = db.ExecContext(ctx,
		`UPDATE projects SET deleted_at = CURRENT_TIMESTAMP WHERE id = ? AND deleted_at IS NULL`,
		id,
	)
	if err != nil {
		return fmt.Errorf("deleting project: %w", err)
	}
	return nil
}

// activeProject loads a non-deleted project inside a transaction.
func activeProject(ctx context.Context, q querier, id int64) (*model.Project, error) {
	p, err := scanProject(q.QueryRowContext(ctx,
		`SELECT `+projectCols+` FROM projects WHERE id = ? AND deleted_at IS NULL`, id,
	))
	if err == sql.ErrNoRows {
		return nil, apperr.NotFound("project")
	}
	if err != nil {
		return nil, fmt.Errorf("getting project: %w", err)
	}
	return p, nil
}
