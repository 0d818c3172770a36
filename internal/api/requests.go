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

// RequestsHandler handles restock and ask-material requests.
type RequestsHandler struct {
	DB     *sql.DB
	Events events.Publisher
}

// Restock handles POST /api/site-inventory/restock.
func (h *RequestsHandler) Restock(w http.ResponseWriter, r *http.Request) {
	body, err := readBody(r)
	if err != nil {
		writeError(w, r, err)
		return
	}

	inventoryID := field(body, "inventory_id", "inventoryId").Int()
	if inventoryID <= 0 {
		jsonError(w, apperr.CodeInvalidArgument, "inventory_id required")
		return
	}
	quantity, err := requiredDecimal(body, "quantity")
	if err != nil {
		writeError(w, r, err)
		return
	}

	req, err := store.CreateRestockRequest(r.Context(), h.DB, inventoryID, quantity, field(body, "note").String(), actor(r))
	if err != nil {
		writeError(w, r, err)
		return
	}

	slog.Info("restock requested", "user", username(r), "request_id", req.ID,
		"project", req.ProjectName, "material", req.MaterialName, "quantity", req.Quantity)
	emit(r, h.Events, events.EntityMaterialRequest, events.ActionCreated, req.ID, req.ProjectID)
	jsonResponse(w, http.StatusCreated, req)
}

// Ask handles POST /api/site-inventory/ask-material.
func (h *RequestsHandler) Ask(w http.ResponseWriter, r *http.Request) {
	body, err := readBody(r)
	if err != nil {
		writeError(w, r, err)
		return
	}

	in := store.AskInput{
		ProjectID:     field(body, "project_id", "projectId").Int(),
		MaterialID:    field(body, "material_id", "materialId").Int(),
		InventoryType: model.InventoryType(field(body, "inventory_type", "inventoryType").Int()),
		Note:          field(body, "note").String(),
		RequestedBy:   actor(r),
	}
	if in.ProjectID <= 0 || in.MaterialID <= 0 {
		jsonError(w, apperr.CodeInvalidArgument, "project_id and material_id required")
		return
	}
	if in.Quantity, err = requiredDecimal(body, "quantity"); err != nil {
		writeError(w, r, err)
		return
	}

	req, err := store.CreateAskRequest(r.Context(), h.DB, in)
	if err != nil {
		writeError(w, r, err)
		return
	}

	slog.Info("material asked for", "user", username(r), "request_id", req.ID,
		"project", req.ProjectName, "material", req.MaterialName, "quantity", req.Quantity)
	emit(r, h.Events, events.EntityMaterialRequest, events.ActionCreated, req.ID, req.ProjectID)
	jsonResponse(w, http.StatusCreated, req)
}

// List handles GET /api/site-inventory/requests.
func (h *RequestsHandler) List(w http.ResponseWriter, r *http.Request) {
	var f store.MaterialRequestFilter
	var err error
	if f.ProjectID, err = queryID(r, "project_id"); err != nil {
		writeError(w, r, err)
		return
	}
	f.Kind = r.URL.Query().Get("kind")
	if f.Kind != "" && f.Kind != model.MaterialRequestRestock && f.Kind != model.MaterialRequestAsk {
		jsonError(w, apperr.CodeInvalidArgument, "kind must be restock or ask")
		return
	}
	f.Status = r.URL.Query().Get("status")
	if f.Status != "" && !model.ValidRequestStatus(f.Status) {
		jsonError(w, apperr.CodeInvalidArgument, "invalid status")
		return
	}

	requests, err := store.ListMaterialRequests(r.Context(), h.DB, f)
	if err != nil {
		writeError(w, r, err)
		return
	}
	jsonResponse(w, http.StatusOK, emptyIfNil(requests))
}

// Get handles GET /api/site-inventory/requests/{id}.
func (h *RequestsHandler) Get(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		writeError(w, r, err)
		return
	}
	req, err := store.GetMaterialRequest(r.Context(), h.DB, id)
	if err != nil {
		writeError(w, r, err)
		return
	}
	if req == nil {
		writeError(w, r, apperr.NotFound("material request"))
		return
	}
	jsonResponse(w, http.StatusOK, req)
}

// Approve handles POST /api/site-inventory/requests/{id}/approve.
func (h *RequestsHandler) Approve(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		writeError(w, r, err)
		return
	}

	approval, err := approvalFromRequest(r)
	if err != nil {
		writeError(w, r, err)
		return
	}

	req, err := store.ApproveMaterialRequest(r.Context(), h.DB, id, approval, actor(r))
	if err != nil {
		writeError(w, r, err)
		return
	}

	slog.Info("material request approved", "user", username(r), "request_id", req.ID, "kind", req.Kind,
		"project", req.ProjectName, "material", req.MaterialName,
		"quantity", req.ApprovedQuantity, "total_price", req.TotalPrice)
	emit(r, h.Events, events.EntityMaterialRequest, events.ActionApproved, req.ID, req.ProjectID)
	if req.InventoryID != nil {
		emit(r, h.Events, events.EntityInventory, events.ActionUpdated, *req.InventoryID, req.ProjectID)
	}
	jsonResponse(w, http.StatusOK, req)
}

// Reject handles POST /api/site-inventory/requests/{id}/reject.
func (h *RequestsHandler) Reject(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		writeError(w, r, err)
		return
	}

	body, err := readBody(r)
	if err != nil {
		writeError(w, r, err)
		return
	}

	req, err := store.RejectMaterialRequest(r.Context(), h.DB, id, strings.TrimSpace(field(body, "reason").String()), actor(r))
	if err != nil {
		writeError(w, r, err)
		return
	}

	slog.Info("material request rejected", "user", username(r), "request_id", req.ID,
		"kind", req.Kind, "reason", req.RejectionReason)
	emit(r, h.Events, events.EntityMaterialRequest, events.ActionRejected, req.ID, req.ProjectID)
	jsonResponse(w, http.StatusOK, req)
}
