package api

import (
	"database/sql"
	"log/slog"
	"net/http"
	"strings"

	"github.com/erazemk/gradilisce/internal/apperr"
	"github.com/erazemk/gradilisce/internal/events"
	"github.com/erazemk/gradilisce/internal/model"
	"github.com/erazemk/gradilisce/internal/store"
)

// PastWorkHandler handles the portfolio of finished projects. Media is
// uploaded against a project key from Start before Create names the record.
type PastWorkHandler struct {
	DB      *sql.DB
	Uploads *Uploads
	Events  events.Publisher
}

// Start handles POST /api/my-past-work/start.
func (h *PastWorkHandler) Start(w http.ResponseWriter, r *http.Request) {
	p, err := store.StartPastProject(r.Context(), h.DB, actor(r))
	if err != nil {
		writeError(w, r, err)
		return
	}

	slog.Info("past project started", "user", username(r), "past_project_id", p.ID)
	jsonResponse(w, http.StatusCreated, map[string]string{"project_key": p.ProjectKey})
}

// Upload handles POST /api/my-past-work/upload (multipart "project_key" and
// "file"). Clients upload each file as soon as it is picked.
func (h *PastWorkHandler) Upload(w http.ResponseWriter, r *http.Request) {
	if err := h.Uploads.parseForm(w, r); err != nil {
		writeError(w, r, err)
		return
	}
	defer r.MultipartForm.RemoveAll()

	key := strings.TrimSpace(firstNonEmpty(r.FormValue("project_key"), r.FormValue("projectKey")))
	if key == "" {
		jsonError(w, apperr.CodeInvalidArgument, "project_key required")
		return
	}
	p, err := store.GetPastProjectByKey(r.Context(), h.DB, key)
	if err != nil {
		writeError(w, r, err)
		return
	}
	if p == nil {
		writeError(w, r, apperr.NotFound("project key"))
		return
	}
	if !owns(r, p.CreatedBy) {
		jsonError(w, apperr.CodePermissionDenied, "project key belongs to another user")
		return
	}

	parts := files(r, "file")
	if len(parts) != 1 {
		jsonError(w, apperr.CodeInvalidArgument, "exactly one file required")
		return
	}

	m, err := h.Uploads.save(r.Context(), parts[0], model.MediaOwnerPastProject, p.ProjectKey, actor(r))
	if err != nil {
		writeError(w, r, err)
		return
	}

	slog.Info("past project media uploaded", "user", username(r), "past_project_id", p.ID,
		"filename", m.Filename, "kind", m.Kind, "size", m.Size)
	emit(r, h.Events, events.EntityMedia, events.ActionUploaded, m.ID)
	jsonResponse(w, http.StatusCreated, m)
}

// Create handles POST /api/my-past-work/create.
func (h *PastWorkHandler) Create(w http.ResponseWriter, r *http.Request) {
	body, err := readBody(r)
	if err != nil {
		writeError(w, r, err)
		return
	}

	key := strings.TrimSpace(field(body, "project_key", "projectKey").String())
	if key == "" {
		jsonError(w, apperr.CodeInvalidArgument, "project_key required")
		return
	}
	name := strings.TrimSpace(field(body, "name").String())
	address := strings.TrimSpace(field(body, "address").String())

	p, err := store.FinalizePastProject(r.Context(), h.DB, key, name, address, actor(r))
	if err != nil {
		writeError(w, r, err)
		return
	}
	if p.Media, err = store.ListMedia(r.Context(), h.DB, model.MediaOwnerPastProject, p.ProjectKey); err != nil {
		writeError(w, r, err)
		return
	}

	slog.Info("past project created", "user", username(r), "past_project_id", p.ID,
		"name", p.Name, "media", len(p.Media))
	emit(r, h.Events, events.EntityPastProject, events.ActionCreated, p.ID)
	jsonResponse(w, http.StatusCreated, p)
}

// List handles GET /api/my-past-work. Admins see everyone's.
func (h *PastWorkHandler) List(w http.ResponseWriter, r *http.Request) {
	projects, err := store.ListPastProjects(r.Context(), h.DB, authorFilter(r))
	if err != nil {
		writeError(w, r, err)
		return
	}
	jsonResponse(w, http.StatusOK, emptyIfNil(projects))
}

// Get handles GET /api/my-past-work/{id}, including media.
func (h *PastWorkHandler) Get(w http.ResponseWriter, r *http.Request) {
	p, ok := h.load(w, r)
	if !ok {
		return
	}

	var err error
	if p.Media, err = store.ListMedia(r.Context(), h.DB, model.MediaOwnerPastProject, p.ProjectKey); err != nil {
		writeError(w, r, err)
		return
	}
	jsonResponse(w, http.StatusOK, p)
}

// Delete handles DELETE /api/my-past-work/{id}.
func (h *PastWorkHandler) Delete(w http.ResponseWriter, r *http.Request) {
	p, ok := h.load(w, r)
	if !ok {
		return
	}

	attached, err := store.ListMedia(r.Context(), h.DB, model.MediaOwnerPastProject, p.ProjectKey)
	if err != nil {
		writeError(w, r, err)
		return
	}

	if err := store.DeletePastProject(r.Context(), h.DB, p.ID); err != nil {
		writeError(w, r, err)
		return
	}
	h.Uploads.deleteBlobs(r.Context(), attached)

	slog.Info("past project deleted", "user", username(r), "past_project_id", p.ID,
		"name", p.Name, "media", len(attached))
	emit(r, h.Events, events.EntityPastProject, events.ActionDeleted, p.ID)
	jsonResponse(w, http.StatusOK, map[string]string{"message": "past project deleted"})
}

func (h *PastWorkHandler) load(w http.ResponseWriter, r *http.Request) (*model.PastProject, bool) {
	id, err := pathID(r, "id")
	if err != nil {
		writeError(w, r, err)
		return nil, false
	}
	p, err := store.GetPastProject(r.Context(), h.DB, id)
	if err != nil {
		writeError(w, r, err)
		return nil, false
	}
	if p == nil || !owns(r, p.CreatedBy) {
		writeError(w, r, apperr.NotFound("past project"))
		return nil, false
	}
	return p, true
}
