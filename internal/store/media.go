package store

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/erazemk/gradilisce/internal/apperr"
	"github.com/erazemk/gradilisce/internal/model"
)

const mediaCols = `id, owner_kind, owner_ref, object_key, filename, mime, kind, size, uploaded_by, created_at`

func scanMedia(s rowScanner) (*model.Media, error) {
	m := &model.Media{}
	err := s.Scan(&m.ID, &m.OwnerKind, &m.OwnerRef, &m.ObjectKey, &m.Filename,
		&m.MIME, &m.Kind, &m.Size, &m.UploadedBy, &m.CreatedAt)
	if err != nil {
		return nil, err
	}
	return m, nil
}

// CreateMedia records metadata for a stored blob.
func CreateMedia(ctx context.Context, db *sql.DB, m model.Media) (*model.Media, error) {
	if m.Kind == "" {
		m.Kind = model.MediaKindFor(m.MIME)
	}
	m.CreatedAt = now()

	result, err := db.ExecContext(ctx,
		`INSERT INTO media (owner_kind, owner_ref, object_key, filename, mime, kind, size, uploaded_by, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		m.OwnerKind, m.OwnerRef, m.ObjectKey, m.Filename, m.MIME, m.Kind, m.Size, m.UploadedBy, m.CreatedAt,
	)
	if err != nil {
		return nil, fmt.Errorf("creating media: %w", err)
	}
	m.ID, err = result.LastInsertId()
	if err != nil {
		return nil, fmt.Errorf("getting media id: %w", err)
	}
	return &m, nil
}

// GetMedia returns media metadata by ID.
func GetMedia(ctx context.Context, db *sql.DB, id int64) (*model.Media, error) {
	m, err := scanMedia(db.QueryRowContext(ctx, `SELECT `+mediaCols+` FROM media WHERE id = ?`, id))
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("getting media: %w", err)
	}
	return m, nil
}

// ListMedia returns the media attached to one owner, oldest first.
func ListMedia(ctx context.Context, db *sql.DB, ownerKind, ownerRef string) ([]model.Media, error) {
	rows, err := db.QueryContext(ctx,
		`SELECT `+mediaCols+` FROM media WHERE owner_kind = ? AND owner_ref = ? ORDER BY id`,
		ownerKind, ownerRef,
	)
	if err != nil {
		return nil, fmt.Errorf("listing media: %w", err)
	}
	defer rows.Close()

	var media []model.Media
	for rows.Next() {
		m, err := scanMedia(rows)
		if err != nil {
			return nil, fmt.Errorf("scanning media: %w", err)
		}
		media = append(media, *m)
	}
	return media, rows.Err()
}

// DeleteMedia removes media metadata. Audio attached to a rejection is part
// of the request history and cannot be removed.
func DeleteMedia(ctx context.Context, db *sql.DB, id int64) error {
	var ownerKind string
	err := db.QueryRowContext(ctx, `SELECT owner_kind FROM media WHERE id = ?`, id).Scan(&ownerKind)
	if err == sql.ErrNoRows {
		return apperr.NotFound("media")
	}
	if err != nil {
		return fmt.Errorf("checking media: %w", err)
	}
	if ownerKind == model.MediaOwnerTransferRejection {
		return apperr.New(apperr.CodeInvalidState, "rejection audio cannot be deleted")
	}

	if _, err := db.ExecContext(ctx, `DELETE FROM media WHERE id = ?`, id); err != nil {
		return fmt.Errorf("deleting media: %w", err)
	}
	return nil
}

// DeleteMediaByOwner removes all metadata attached to one owner.
func DeleteMediaByOwner(ctx context.Context, db *sql.DB, ownerKind, ownerRef string) error {
	_, err := db.ExecContext(ctx, `DELETE FROM media WHERE owner_kind = ? AND owner_ref = ?`, ownerKind, ownerRef)
	if err != nil {
		return fmt.Errorf("deleting media: %w", err)
	}
	return nil
}

// DiscardMedia removes metadata for an upload whose owning operation failed.
// Rows a rejection already points at are kept.
func DiscardMedia(ctx context.Context, db *sql.DB, id int64) error {
	_, err := db.ExecContext(ctx,
		`DELETE FROM media WHERE id = ?
		 AND id NOT IN (SELECT rejection_audio_id FROM transfer_requests WHERE rejection_audio_id IS NOT NULL)`,
		id,
	)
	if err != nil {
		return fmt.Errorf("discarding media: %w", err)
	}
	return nil
}
