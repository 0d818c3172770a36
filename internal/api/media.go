package api

import (
	"bytes"
	"context"
	"database/sql"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"mime/multipart"
	"net/http"
	"path"
	"strconv"
	"strings"

	"github.com/erazemk/gradilisce/internal/apperr"
	"github.com/erazemk/gradilisce/internal/events"
	"github.com/erazemk/gradilisce/internal/imaging"
	"github.com/erazemk/gradilisce/internal/media"
	"github.com/erazemk/gradilisce/internal/model"
	"github.com/erazemk/gradilisce/internal/store"
)

// multipartMemory is how much of a multipart body is held in memory before
// spilling to temporary files.
const multipartMemory = 8 << 20

// Uploads stores multipart files as blobs with metadata rows.
type Uploads struct {
	DB        *sql.DB
	Store     media.Store
	MaxUpload int64
	Imaging   imaging.Options
}

// parseForm limits and parses a multipart body. Callers must call
// r.MultipartForm.RemoveAll when done.
func (u *Uploads) parseForm(w http.ResponseWriter, r *http.Request) error {
	r.Body = http.MaxBytesReader(w, r.Body, u.MaxUpload)
	if err := r.ParseMultipartForm(multipartMemory); err != nil {
		var maxErr *http.MaxBytesError
		if errors.As(err, &maxErr) {
			return apperr.Invalid(fmt.Sprintf("upload exceeds %d bytes", u.MaxUpload))
		}
		return apperr.Invalid("invalid multipart form")
	}
	return nil
}

// files returns the parts uploaded under field.
func files(r *http.Request, field string) []*multipart.FileHeader {
	if r.MultipartForm == nil {
		return nil
	}
	return r.MultipartForm.File[field]
}

// save stores one uploaded file. Photos are downscaled and re-encoded as
// JPEG; everything else is stored as sent.
func (u *Uploads) save(ctx context.Context, fh *multipart.FileHeader, ownerKind, ownerRef string, by *int64) (*model.Media, error) {
	f, err := fh.Open()
	if err != nil {
		return nil, fmt.Errorf("opening upload: %w", err)
	}
	defer f.Close()

	head := make([]byte, 512)
	n, err := io.ReadFull(f, head)
	if err != nil && !errors.Is(err, io.ErrUnexpectedEOF) && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("reading upload: %w", err)
	}
	if n == 0 {
		return nil, apperr.Invalid("empty file")
	}
	sniffed := http.DetectContentType(head[:n])
	if _, err := f.Seek(0, io.SeekStart); err != nil {
		return nil, fmt.Errorf("rewinding upload: %w", err)
	}

	filename := path.Base(strings.ReplaceAll(fh.Filename, `\`, "/"))
	if filename == "." || filename == "/" {
		filename = "upload"
	}
	mime := fh.Header.Get("Content-Type")
	if mime == "" || mime == "application/octet-stream" {
		mime = sniffed
	}

	var body io.Reader = f
	size := fh.Size
	if imaging.IsPhoto(sniffed) {
		res, err := imaging.Photo(f, u.Imaging)
		if err != nil {
			return nil, apperr.Invalid("could not process photo " + filename)
		}
		body = bytes.NewReader(res.Data)
		size = int64(len(res.Data))
		mime = res.MIME
		filename = strings.TrimSuffix(filename, path.Ext(filename)) + ".jpg"
	}

	key := media.NewKey(ownerKind+"/"+ownerRef, filename)
	if err := u.Store.Put(ctx, key, body, size, mime); err != nil {
		return nil, fmt.Errorf("storing %s: %w", filename, err)
	}

	m, err := store.CreateMedia(ctx, u.DB, model.Media{
		OwnerKind:  ownerKind,
		OwnerRef:   ownerRef,
		ObjectKey:  key,
		Filename:   filename,
		MIME:       mime,
		Size:       size,
		UploadedBy: by,
	})
	if err != nil {
		u.deleteBlob(ctx, key)
		return nil, err
	}
	return m, nil
}

// saveAll stores every file under field. On failure the files already
// stored are removed again.
func (u *Uploads) saveAll(ctx context.Context, r *http.Request, field, ownerKind, ownerRef string) ([]model.Media, error) {
	parts := files(r, field)
	if len(parts) == 0 {
		return nil, apperr.Invalid(field + " file required")
	}

	saved := make([]model.Media, 0, len(parts))
	for _, fh := range parts {
		m, err := u.save(ctx, fh, ownerKind, ownerRef, actor(r))
		if err != nil {
			for i := range saved {
				u.discard(ctx, &saved[i])
			}
			return nil, err
		}
		saved = append(saved, *m)
	}
	return saved, nil
}

// discard undoes save after the operation owning the upload failed.
func (u *Uploads) discard(ctx context.Context, m *model.Media) {
	if err := store.DiscardMedia(ctx, u.DB, m.ID); err != nil {
		slog.Error("discarding upload", "media_id", m.ID, "error", err)
		return
	}
	u.deleteBlob(ctx, m.ObjectKey)
}

// deleteBlobs removes the bytes behind metadata rows that are already gone.
func (u *Uploads) deleteBlobs(ctx context.Context, items []model.Media) {
	for _, m := range items {
		u.deleteBlob(ctx, m.ObjectKey)
	}
}

func (u *Uploads) deleteBlob(ctx context.Context, key string) {
	if err := u.Store.Delete(ctx, key); err != nil {
		slog.Error("deleting media blob", "key", key, "error", err)
	}
}

// MediaHandler serves stored files.
type MediaHandler struct {
	DB      *sql.DB
	Uploads *Uploads
	Events  events.Publisher
}

// Get handles GET /api/media/{id} by streaming the blob.
func (h *MediaHandler) Get(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		writeError(w, r, err)
		return
	}

	m, err := store.GetMedia(r.Context(), h.DB, id)
	if err != nil {
		writeError(w, r, err)
		return
	}
	if m == nil {
		writeError(w, r, apperr.NotFound("media"))
		return
	}

	rc, err := h.Uploads.Store.Get(r.Context(), m.ObjectKey)
	if errors.Is(err, media.ErrNotFound) {
		slog.Warn("media blob missing", "media_id", m.ID, "key", m.ObjectKey)
		writeError(w, r, apperr.NotFound("media"))
		return
	}
	if err != nil {
		writeError(w, r, err)
		return
	}
	defer rc.Close()

	w.Header().Set("Content-Type", m.MIME)
	w.Header().Set("Content-Length", strconv.FormatInt(m.Size, 10))
	w.Header().Set("Content-Disposition", fmt.Sprintf("inline; filename=%q", m.Filename))
	w.Header().Set("Cache-Control", "private, max-age=3600")
	if _, err := io.Copy(w, rc); err != nil {
		slog.Warn("streaming media", "media_id", m.ID, "error", err)
	}
}

// Delete handles DELETE /api/media/{id}. Uploaders may delete their own
// files; managers may delete any.
func (h *MediaHandler) Delete(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		writeError(w, r, err)
		return
	}

	m, err := store.GetMedia(r.Context(), h.DB, id)
	if err != nil {
		writeError(w, r, err)
		return
	}
	if m == nil {
		writeError(w, r, apperr.NotFound("media"))
		return
	}
	if !isRole(r, model.RoleManager) && !owns(r, m.UploadedBy) {
		jsonError(w, apperr.CodePermissionDenied, "only the uploader or a manager can delete this file")
		return
	}

	if err := store.DeleteMedia(r.Context(), h.DB, id); err != nil {
		writeError(w, r, err)
		return
	}
	h.Uploads.deleteBlob(r.Context(), m.ObjectKey)

	slog.Info("media deleted", "user", username(r), "media_id", id, "filename", m.Filename)
	emit(r, h.Events, events.EntityMedia, events.ActionDeleted, id)
	jsonResponse(w, http.StatusOK, map[string]string{"message": "media deleted"})
}
