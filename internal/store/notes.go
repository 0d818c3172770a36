package store

import (
	"context"
	"database/sql"
	"fmt"
	"strconv"
	"time"

	"github.com/erazemk/gradilisce/internal/apperr"
	"github.com/erazemk/gradilisce/internal/model"
)

const noteCols = `id, title, body, reminder_at, created_by, created_at, updated_at`

func scanNote(s rowScanner) (*model.Note, error) {
	n := &model.Note{}
	var body sql.NullString
	if err := s.Scan(&n.ID, &n.Title, &body, &n.ReminderAt, &n.CreatedBy, &n.CreatedAt, &n.UpdatedAt); err != nil {
		return nil, err
	}
	n.Body = body.String
	return n, nil
}

// NoteInput is the editable part of a note.
type NoteInput struct {
	Title      string
	Body       string
	ReminderAt *time.Time
	ProjectIDs []int64
}

// CreateNote creates a note linked to the given projects.
func CreateNote(ctx context.Context, db *sql.DB, in NoteInput, createdBy *int64) (*model.Note, error) {
	if in.Title == "" {
		return nil, apperr.Invalid("title is required")
	}

	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("beginning transaction: %w", err)
	}
	defer tx.Rollback()

	ts := now()
	result, err := tx.ExecContext(ctx,
		`INSERT INTO notes (title, body, reminder_at, created_by, created_at, updated_at) VALUES (?, ?, ?, ?, ?, ?)`,
		in.Title, nullString(in.Body), utcPtr(in.ReminderAt), createdBy, ts, ts,
	)
	if err != nil {
		return nil, fmt.Errorf("creating note: %w", err)
	}
	id, err := result.LastInsertId()
	if err != nil {
		return nil, fmt.Errorf("getting note id: %w", err)
	}
	if err := linkNoteProjects(ctx, tx, id, in.ProjectIDs); err != nil {
		return nil, err
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("committing note: %w", err)
	}
	return GetNote(ctx, db, id)
}

// GetNote returns a note with its project links.
func GetNote(ctx context.Context, db *sql.DB, id int64) (*model.Note, error) {
	n, err := scanNote(db.QueryRowContext(ctx, `SELECT `+noteCols+` FROM notes WHERE id = ?`, id))
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("getting note: %w", err)
	}
	if n.ProjectIDs, err = noteProjectIDs(ctx, db, id); err != nil {
		return nil, err
	}
	return n, nil
}

// NoteFilter narrows ListNotes. A nil CreatedBy matches every author.
type NoteFilter struct {
	CreatedBy *int64
	ProjectID int64
}

// ListNotes returns notes, most recently updated first.
func ListNotes(ctx context.Context, db *sql.DB, f NoteFilter) ([]model.Note, error) {
	query := `SELECT ` + noteCols + ` FROM notes WHERE 1=1`
	var args []any

	if f.CreatedBy != nil {
		query += ` AND created_by = ?`
		args = append(args, *f.CreatedBy)
	}
	if f.ProjectID > 0 {
		query += ` AND id IN (SELECT note_id FROM note_projects WHERE project_id = ?)`
		args = append(args, f.ProjectID)
	}
	query += ` ORDER BY updated_at DESC, id DESC`

	notes, err := queryNotes(ctx, db, query, args...)
	if err != nil {
		return nil, err
	}
	for i := range notes {
		if notes[i].ProjectIDs, err = noteProjectIDs(ctx, db, notes[i].ID); err != nil {
			return nil, err
		}
	}
	return notes, nil
}

// DueReminders returns notes whose reminder is at or before the given time.
func DueReminders(ctx context.Context, db *sql.DB, before time.Time, createdBy *int64) ([]model.Note, error) {
	query := `SELECT ` + noteCols + ` FROM notes WHERE reminder_at IS NOT NULL`
	var args []any
	if createdBy != nil {
		query += ` AND created_by = ?`
		args = append(args, *createdBy)
	}

	all, err := queryNotes(ctx, db, query, args...)
	if err != nil {
		return nil, err
	}

	var due []model.Note
	for _, n := range all {
		if !n.ReminderAt.After(before) {
			due = append(due, n)
		}
	}
	for i := range due {
		if due[i].ProjectIDs, err = noteProjectIDs(ctx, db, due[i].ID); err != nil {
			return nil, err
		}
	}
	return due, nil
}

// UpdateNote replaces a note's editable fields and project links.
func UpdateNote(ctx context.Context, db *sql.DB, id int64, in NoteInput) error {
	if in.Title == "" {
		return apperr.Invalid("title is required")
	}

	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("beginning transaction: %w", err)
	}
	defer tx.Rollback()

	result, err := tx.ExecContext(ctx,
		`UPDATE notes SET title = ?, body = ?, reminder_at = ?, updated_at = ? WHERE id = ?`,
		in.Title, nullString(in.Body), utcPtr(in.ReminderAt), now(), id,
	)
	if err != nil {
		return fmt.Errorf("updating note: %w", err)
	}
	if n, _ := result.RowsAffected(); n == 0 {
		return apperr.NotFound("note")
	}

	if _, err := tx.ExecContext(ctx, `DELETE FROM note_projects WHERE note_id = ?`, id); err != nil {
		return fmt.Errorf("clearing note projects: %w", err)
	}
	if err := linkNoteProjects(ctx, tx, id, in.ProjectIDs); err != nil {
		return err
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("committing note: %w", err)
	}
	return nil
}

// DeleteNote removes a note with its project links and attachment metadata.
func DeleteNote(ctx context.Context, db *sql.DB, id int64) error {
	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("beginning transaction: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, `DELETE FROM note_projects WHERE note_id = ?`, id); err != nil {
		return fmt.Errorf("deleting note projects: %w", err)
	}
	_, err = tx.ExecContext(ctx,
		`DELETE FROM media WHERE owner_kind = ? AND owner_ref = ?`,
		model.MediaOwnerNote, strconv.FormatInt(id, 10),
	)
	if err != nil {
		return fmt.Errorf("deleting note attachments: %w", err)
	}
	if _, err := tx.ExecContext(ctx, `DELETE FROM notes WHERE id = ?`, id); err != nil {
		return fmt.Errorf("deleting note: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("committing note deletion: %w", err)
	}
	return nil
}

func queryNotes(ctx context.Context, db *sql.DB, query string, args ...any) ([]model.Note, error) {
	rows, err := db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("listing notes: %w", err)
	}
	defer rows.Close()

	var notes []model.Note
	for rows.Next() {
		n, err := scanNote(rows)
		if err != nil {
			return nil, fmt.Errorf("scanning note: %w", err)
		}
		notes = append(notes, *n)
	}
	return notes, rows.Err()
}

func noteProjectIDs(ctx context.Context, db *sql.DB, noteID int64) ([]int64, error) {
	rows, err := db.QueryContext(ctx,
		`SELECT project_id FROM note_projects WHERE note_id = ? ORDER BY project_id`, noteID,
	)
	if err != nil {
		return nil, fmt.Errorf("listing note projects: %w", err)
	}
	defer rows.Close()

	ids := []int64{}
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("scanning note project: %w", err)
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

func linkNoteProjects(ctx context.Context, tx querier, noteID int64, projectIDs []int64) error {
	for _, pid := range projectIDs {
		if _, err := activeProject(ctx, tx, pid); err != nil {
			return err
		}
		_, err := tx.ExecContext(ctx,
			`INSERT OR IGNORE INTO note_projects (note_id, project_id) VALUES (?, ?)`, noteID, pid,
		)
		if err != nil {
			return fmt.Errorf("linking note to project: %w", err)
		}
	}
	return nil
}

func utcPtr(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	u := t.UTC()
	return &u
}
