package api

import (
	"database/sql"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/erazemk/gradilisce/internal/apperr"
	"github.com/erazemk/gradilisce/internal/events"
	"github.com/erazemk/gradilisce/internal/model"
	"github.com/erazemk/gradilisce/internal/store"
)

// ProjectsHandler handles construction site endpoints.
type ProjectsHandler struct {
	DB      *sql.DB
	Uploads *Uploads
	Events  events.Publisher
}

type projectRequest struct {
	Name    string `json:"name"`
	Address string `json:"address"`
	Status  string `json:"status"`
}

// List handles GET /api/projects.
func (h *ProjectsHandler) List(w http.ResponseWriter, r *http.Request) {
	status := r.URL.Query().Get("status")
	if status != "" && !model.ValidProjectStatus(status) {
		jsonError(w, apperr.CodeInvalidArgument, "invalid status")
		return
	}

	projects, err := store.ListProjects(r.Context(), h.DB, status)
	if err != nil {
		writeError(w, r, err)
		return
	}
	jsonResponse(w, http.StatusOK, emptyIfNil(projects))
}

// Create handles POST /api/projects.
func (h *ProjectsHandler) Create(w http.ResponseWriter, r *http.Request) {
	var req projectRequest
	if err := decodeJSON(r, &req); err != nil {
		invalidBody(w)
		return
	}
	if req.Name == "" {
		jsonError(w, apperr.CodeInvalidArgument, "name required")
		return
	}

	project, err := store.CreateProject(r.Context(), h.DB, req.Name, req.Address)
	if err != nil {
		writeError(w, r, err)
		return
	}

	slog.Info("project created", "user", username(r), "project", project.Name)
	emit(r, h.Events, events.EntityProject, events.ActionCreated, project.ID, project.ID)
	jsonResponse(w, http.StatusCreated, project)
}

// Get handles GET /api/projects/{id}.
func (h *ProjectsHandler) Get(w http.ResponseWriter, r *http.Request) {
	project, ok := h.load(w, r)
	if !ok {
		return
	}
	jsonResponse(w, http.StatusOK, project)
}

// Update handles PUT /api/projects/{id}.
func (h *ProjectsHandler) Update(w http.ResponseWriter, r *http.Request) {
	project, ok := h.load(w, r)
	if !ok {
		return
	}

	var req projectRequest
	if err := decodeJSON(r, &req); err != nil {
		invalidBody(w)
		return
	}
	if req.Name == "" {
		jsonError(w, apperr.CodeInvalidArgument, "name required")
		return
	}
	if req.Status == "" {
		req.Status = project.Status
	}
	if !model.ValidProjectStatus(req.Status) {
		jsonError(w, apperr.CodeInvalidArgument, "invalid status")
		return
	}

	if err := store.UpdateProject(r.Context(), h.DB, project.ID, req.Name, req.Address, req.Status); err != nil {
		writeError(w, r, err)
		return
	}

	updated, err := store.GetProject(r.Context(), h.DB, project.ID)
	if err != nil {
		writeError(w, r, err)
		return
	}
	slog.Info("project updated", "user", username(r), "project", updated.Name, "status", updated.Status)
	emit(r, h.Events, events.EntityProject, events.ActionUpdated, project.ID, project.ID)
	jsonResponse(w, http.StatusOK, updated)
}

// Delete handles DELETE /api/projects/{id}.
func (h *ProjectsHandler) Delete(w http.ResponseWriter, r *http.Request) {
	project, ok := h.load(w, r)
	if !ok {
		return
	}

	if err := store.DeleteProject(r.Context(), h.DB, project.ID); err != nil {
		writeError(w, r, err)
		return
	}

	slog.Info("project deleted", "user", username(r), "project", project.Name)
	emit(r, h.Events, events.EntityProject, events.ActionDeleted, project.ID, project.ID)
	jsonResponse(w, http.StatusOK, map[string]string{"message": "project deleted"})
}

// Inventory handles GET /api/projects/{id}/inventory.
func (h *ProjectsHandler) Inventory(w http.ResponseWriter, r *http.Request) {
	project, ok := h.load(w, r)
	if !ok {
		return
	}

	items, err := store.ListInventory(r.Context(), h.DB, store.InventoryFilter{ProjectID: project.ID})
	if err != nil {
		writeError(w, r, err)
		return
	}
	jsonResponse(w, http.StatusOK, emptyIfNil(items))
}

// Documents handles GET /api/projects/{id}/documents.
func (h *ProjectsHandler) Documents(w http.ResponseWriter, r *http.Request) {
	project, ok := h.load(w, r)
	if !ok {
		return
	}

	docs, err := store.ListMedia(r.Context(), h.DB, model.MediaOwnerProjectDocument, strconv.FormatInt(project.ID, 10))
	if err != nil {
		writeError(w, r, err)
		return
	}
	jsonResponse(w, http.StatusOK, emptyIfNil(docs))
}

// UploadDocuments handles POST /api/projects/{id}/documents (multipart "file").
func (h *ProjectsHandler) UploadDocuments(w http.ResponseWriter, r *http.Request) {
	project, ok := h.load(w, r)
	if !ok {
		return
	}

	if err := h.Uploads.parseForm(w, r); err != nil {
		writeError(w, r, err)
		return
	}
	defer r.MultipartForm.RemoveAll()

	saved, err := h.Uploads.saveAll(r.Context(), r, "file", model.MediaOwnerProjectDocument, strconv.FormatInt(project.ID, 10))
	if err != nil {
		writeError(w, r, err)
		return
	}

	slog.Info("project documents uploaded", "user", username(r), "project", project.Name, "count", len(saved))
	for _, m := range saved {
		emit(r, h.Events, events.EntityMedia, events.ActionUploaded, m.ID, project.ID)
	}
	jsonResponse(w, http.StatusCreated, saved)
}

// load resolves {id} to a live project, writing the error response itself.
func (h *ProjectsHandler) load(w http.ResponseWriter, r *http.Request) (*model.Project, bool) {
	id, err := pathID(r, "id")
	if err != nil {
		writeError(w, r, err)
		return nil, false
	}

	project, err := store.GetProject(r.Context(), h.DB, id)
	if err != nil {
		writeError(w, r, err)
		return nil, false
	}
	if project == nil || project.DeletedAt != nil {
		writeError(w, r, apperr.NotFound("project"))
		return nil, false
	}
	return project, true
}
