package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/erazemk/gradilisce/internal/apperr"
	"github.com/erazemk/gradilisce/internal/model"
)

const pastProjectCols = `id, project_key, name, address, status, created_by, started_at, created_at`

func scanPastProject(s rowScanner) (*model.PastProject, error) {
	p := &model.PastProject{}
	var name, address sql.NullString
	err := s.Scan(&p.ID, &p.ProjectKey, &name, &address, &p.Status, &p.CreatedBy, &p.StartedAt, &p.CreatedAt)
	if err != nil {
		return nil, err
	}
	p.Name = name.String
	p.Address = address.String
	return p, nil
}

// StartPastProject opens a draft and issues the key uploads are tagged with.
func StartPastProject(ctx context.Context, db *sql.DB, createdBy *int64) (*model.PastProject, error) {
	key := uuid.NewString()
	result, err := db.ExecContext(ctx,
		`INSERT INTO past_projects (project_key, created_by, started_at) VALUES (?, ?, ?)`,
		key, createdBy, now(),
	)
	if err != nil {
		return nil, fmt.Errorf("starting past project: %w", err)
	}
	id, err := result.LastInsertId()
	if err != nil {
		return nil, fmt.Errorf("getting past project id: %w", err)
	}
	return GetPastProject(ctx, db, id)
}

// GetPastProject returns a past project by ID.
func GetPastProject(ctx context.Context, db *sql.DB, id int64) (*model.PastProject, error) {
	return getPastProject(ctx, db, `id = ?`, id)
}

// GetPastProjectByKey returns a past project by its project key.
func GetPastProjectByKey(ctx context.Context, db *sql.DB, key string) (*model.PastProject, error) {
	return getPastProject(ctx, db, `project_key = ?`, key)
}

func getPastProject(ctx context.Context, db *sql.DB, where string, arg any) (*model.PastProject, error) {
	p, err := scanPastProject(db.QueryRowContext(ctx,
		`SELECT `+pastProjectCols+` FROM past_projects WHERE `+where, arg,
	))
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("getting past project: %w", err)
	}
	return p, nil
}

// ListPastProjects returns finalised past projects, newest first. A nil
// createdBy lists every author's.
func ListPastProjects(ctx context.Context, db *sql.DB, createdBy *int64) ([]model.PastProject, error) {
	query := `SELECT ` + pastProjectCols + ` FROM past_projects WHERE status = 'created'`
	var args []any
	if createdBy != nil {
		query += ` AND created_by = ?`
		args = append(args, *createdBy)
	}
	query += ` ORDER BY created_at DESC, id DESC`
	return queryPastProjects(ctx, db, query, args...)
}

// FinalizePastProject turns a draft into a past project. A key finalises once.
func FinalizePastProject(ctx context.Context, db *sql.DB, key, name, address string, by *int64) (*model.PastProject, error) {
	if name == "" {
		return nil, apperr.Invalid("name is required")
	}

	p, err := GetPastProjectByKey(ctx, db, key)
	if err != nil {
		return nil, err
	}
	if p == nil {
		return nil, apperr.NotFound("project key")
	}
	if by != nil && p.CreatedBy != nil && *by != *p.CreatedBy {
		return nil, apperr.New(apperr.CodePermissionDenied, "project key belongs to another user")
	}

	result, err := db.ExecContext(ctx,
		`UPDATE past_projects SET name = ?, address = ?, status = 'created', created_at = ?
		 WHERE id = ? AND status = 'draft'`,
		name, nullString(address), now(), p.ID,
	)
	if err != nil {
		return nil, fmt.Errorf("finalising past project: %w", err)
	}
	if n, _ := result.RowsAffected(); n == 0 {
		return nil, apperr.New(apperr.CodeInvalidState, "project key has already been used")
	}
	return GetPastProject(ctx, db, p.ID)
}

// StaleDrafts returns drafts started before cutoff.
func StaleDrafts(ctx context.Context, db *sql.DB, cutoff time.Time) ([]model.PastProject, error) {
	drafts, err := queryPastProjects(ctx, db,
		`SELECT `+pastProjectCols+` FROM past_projects WHERE status = 'draft' ORDER BY id`,
	)
	if err != nil {
		return nil, err
	}

	var stale []model.PastProject
	for _, d := range drafts {
		if d.StartedAt.Before(cutoff) {
			stale = append(stale, d)
		}
	}
	return stale, nil
}

// DeletePastProject removes a past project and its media metadata.
func DeletePastProject(ctx context.Context, db *sql.DB, id int64) error {
	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("beginning transaction: %w", err)
	}
	defer tx.Rollback()

	_, err = tx.ExecContext(ctx,
		`DELETE FROM media WHERE owner_kind = ? AND owner_ref = (SELECT project_key FROM past_projects WHERE id = ?)`,
		model.MediaOwnerPastProject, id,
	)
	if err != nil {
		return fmt.Errorf("deleting past project media: %w", err)
	}
	if _, err := tx.ExecContext(ctx, `DELETE FROM past_projects WHERE id = ?`, id); err != nil {
		return fmt.Errorf("deleting past project: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("committing past project deletion: %w", err)
	}
	return nil
}

// DeleteDraft removes a past project only while it is still a draft, along
// with its media metadata. It returns the removed media so the caller can
// delete the blobs, and false when the project was finalised or is gone.
func DeleteDraft(ctx context.Context, db *sql.DB, id int64) ([]model.Media, bool, error) {
	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return nil, false, fmt.Errorf("beginning transaction: %w", err)
	}
	defer tx.Rollback()

	var key string
	err = tx.QueryRowContext(ctx,
		`SELECT project_key FROM past_projects WHERE id = ? AND status = 'draft'`, id,
	).Scan(&key)
	if err == sql.ErrNoRows {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("getting draft: %w", err)
	}

	result, err := tx.ExecContext(ctx, `DELETE FROM past_projects WHERE id = ? AND status = 'draft'`, id)
	if err != nil {
		return nil, false, fmt.Errorf("deleting draft: %w", err)
	}
	if n, _ := result.RowsAffected(); n != 1 {
		return nil, false, nil
	}

	rows, err := tx.QueryContext(ctx,
		`SELECT `+mediaCols+` FROM media WHERE owner_kind = ? AND owner_ref = ? ORDER BY id`,
		model.MediaOwnerPastProject, key,
	)
	if err != nil {
		return nil, false, fmt.Errorf("listing draft media: %w", err)
	}
	var files []model.Media
	for rows.Next() {
		m, err := scanMedia(rows)
		if err != nil {
			rows.Close()
			return nil, false, fmt.Errorf("scanning media: %w", err)
		}
		files = append(files, *m)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, false, fmt.Errorf("listing draft media: %w", err)
	}

	if _, err := tx.ExecContext(ctx,
		`DELETE FROM media WHERE owner_kind = ? AND owner_ref = ?`, model.MediaOwnerPastProject, key,
	); err != nil {
		return nil, false, fmt.Errorf("deleting draft media: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return nil, false, fmt.Errorf("committing draft deletion: %w", err)
	}
	return files, true, nil
}

func queryPastProjects(ctx context.Context, db *sql.DB, query string, args ...any) ([]model.PastProject, error) {
	rows, err := db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("listing past projects: %w", err)
	}
	defer rows.Close()

	var projects []model.PastProject
	for rows.Next() {
		p, err := scanPastProject(rows)
		if err != nil {
			return nil, fmt.Errorf("scanning past project: %w", err)
		}
		projects = append(projects, *p)
	}
	return projects, rows.Err()
}
