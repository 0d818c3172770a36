package api

import (
	"database/sql"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/erazemk/gradilisce/internal/apperr"
	"github.com/erazemk/gradilisce/internal/events"
	"github.com/erazemk/gradilisce/internal/model"
	"github.com/erazemk/gradilisce/internal/store"
)

// NotesHandler handles notes and reminders. Notes are private to their
// author; admins see every note.
type NotesHandler struct {
	DB      *sql.DB
	Uploads *Uploads
	Events  events.Publisher
}

func noteFromBody(body []byte) (store.NoteInput, error) {
	in := store.NoteInput{
		Title: strings.TrimSpace(field(body, "title").String()),
		Body:  field(body, "body").String(),
	}
	if raw := field(body, "reminder_at", "reminderAt").String(); raw != "" {
		t, err := time.Parse(time.RFC3339, raw)
		if err != nil {
			return in, apperr.Invalid("reminder_at must be an RFC 3339 time")
		}
		in.ReminderAt = &t
	}
	for _, id := range field(body, "project_ids", "projectIds").Array() {
		if id.Int() <= 0 {
			return in, apperr.Invalid("project_ids must be positive integers")
		}
		in.ProjectIDs = append(in.ProjectIDs, id.Int())
	}
	return in, nil
}

// authorFilter limits non-admins to their own notes.
func authorFilter(r *http.Request) *int64 {
	if isRole(r, model.RoleAdmin) {
		return nil
	}
	return actor(r)
}

// List handles GET /api/note.
func (h *NotesHandler) List(w http.ResponseWriter, r *http.Request) {
	f := store.NoteFilter{CreatedBy: authorFilter(r)}
	var err error
	if f.ProjectID, err = queryID(r, "project_id"); err != nil {
		writeError(w, r, err)
		return
	}

	notes, err := store.ListNotes(r.Context(), h.DB, f)
	if err != nil {
		writeError(w, r, err)
		return
	}
	jsonResponse(w, http.StatusOK, emptyIfNil(notes))
}

// Reminders handles GET /api/note/reminders?before=RFC3339. Without before
// it lists reminders that are due now.
func (h *NotesHandler) Reminders(w http.ResponseWriter, r *http.Request) {
	before := time.Now().UTC()
	if raw := r.URL.Query().Get("before"); raw != "" {
		t, err := time.Parse(time.RFC3339, raw)
		if err != nil {
			jsonError(w, apperr.CodeInvalidArgument, "before must be an RFC 3339 time")
			return
		}
		before = t
	}

	due, err := store.DueReminders(r.Context(), h.DB, before, authorFilter(r))
	if err != nil {
		writeError(w, r, err)
		return
	}
	jsonResponse(w, http.StatusOK, emptyIfNil(due))
}

// Create handles POST /api/note.
func (h *NotesHandler) Create(w http.ResponseWriter, r *http.Request) {
	body, err := readBody(r)
	if err != nil {
		writeError(w, r, err)
		return
	}
	in, err := noteFromBody(body)
	if err != nil {
		writeError(w, r, err)
		return
	}

	note, err := store.CreateNote(r.Context(), h.DB, in, actor(r))
	if err != nil {
		writeError(w, r, err)
		return
	}

	slog.Info("note created", "user", username(r), "note_id", note.ID, "projects", note.ProjectIDs)
	emit(r, h.Events, events.EntityNote, events.ActionCreated, note.ID, note.ProjectIDs...)
	jsonResponse(w, http.StatusCreated, note)
}

// Get handles GET /api/note/{id}, including attachments.
func (h *NotesHandler) Get(w http.ResponseWriter, r *http.Request) {
	note, ok := h.load(w, r)
	if !ok {
		return
	}

	attached, err := store.ListMedia(r.Context(), h.DB, model.MediaOwnerNote, strconv.FormatInt(note.ID, 10))
	if err != nil {
		writeError(w, r, err)
		return
	}
	note.Attachments = attached
	jsonResponse(w, http.StatusOK, note)
}

// Update handles PUT /api/note/{id}.
func (h *NotesHandler) Update(w http.ResponseWriter, r *http.Request) {
	note, ok := h.load(w, r)
	if !ok {
		return
	}

	body, err := readBody(r)
	if err != nil {
		writeError(w, r, err)
		return
	}
	in, err := noteFromBody(body)
	if err != nil {
		writeError(w, r, err)
		return
	}

	if err := store.UpdateNote(r.Context(), h.DB, note.ID, in); err != nil {
		writeError(w, r, err)
		return
	}

	updated, err := store.GetNote(r.Context(), h.DB, note.ID)
	if err != nil {
		writeError(w, r, err)
		return
	}
	slog.Info("note updated", "user", username(r), "note_id", note.ID)
	emit(r, h.Events, events.EntityNote, events.ActionUpdated, note.ID, updated.ProjectIDs...)
	jsonResponse(w, http.StatusOK, updated)
}

// Delete handles DELETE /api/note/{id}.
func (h *NotesHandler) Delete(w http.ResponseWriter, r *http.Request) {
	note, ok := h.load(w, r)
	if !ok {
		return
	}

	attached, err := store.ListMedia(r.Context(), h.DB, model.MediaOwnerNote, strconv.FormatInt(note.ID, 10))
	if err != nil {
		writeError(w, r, err)
		return
	}

	if err := store.DeleteNote(r.Context(), h.DB, note.ID); err != nil {
		writeError(w, r, err)
		return
	}
	h.Uploads.deleteBlobs(r.Context(), attached)

	slog.Info("note deleted", "user", username(r), "note_id", note.ID, "attachments", len(attached))
	emit(r, h.Events, events.EntityNote, events.ActionDeleted, note.ID, note.ProjectIDs...)
	jsonResponse(w, http.StatusOK, map[string]string{"message": "note deleted"})
}

// Attach handles POST /api/note/{id}/attachments (multipart "file").
func (h *NotesHandler) Attach(w http.ResponseWriter, r *http.Request) {
	note, ok := h.load(w, r)
	if !ok {
		return
	}

	if err := h.Uploads.parseForm(w, r); err != nil {
		writeError(w, r, err)
		return
	}
	defer r.MultipartForm.RemoveAll()

	saved, err := h.Uploads.saveAll(r.Context(), r, "file", model.MediaOwnerNote, strconv.FormatInt(note.ID, 10))
	if err != nil {
		writeError(w, r, err)
		return
	}

	slog.Info("note attachments uploaded", "user", username(r), "note_id", note.ID, "count", len(saved))
	for _, m := range saved {
		emit(r, h.Events, events.EntityMedia, events.ActionUploaded, m.ID, note.ProjectIDs...)
	}
	jsonResponse(w, http.StatusCreated, saved)
}

// load resolves {id} to a note the caller may see. Other users' notes are
// reported as missing.
func (h *NotesHandler) load(w http.ResponseWriter, r *http.Request) (*model.Note, bool) {
	id, err := pathID(r, "id")
	if err != nil {
		writeError(w, r, err)
		return nil, false
	}
	note, err := store.GetNote(r.Context(), h.DB, id)
	if err != nil {
		writeError(w, r, err)
		return nil, false
	}
	if note == nil || !owns(r, note.CreatedBy) {
		writeError(w, r, apperr.NotFound("note"))
		return nil, false
	}
	return note, true
}
