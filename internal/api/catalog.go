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

// VendorsHandler handles supplier endpoints.
type VendorsHandler struct {
	DB     *sql.DB
	Events events.Publisher
}

// vendorFromBody accepts the company name under any spelling clients use.
func vendorFromBody(body []byte) model.Vendor {
	return model.Vendor{
		CompanyName: strings.TrimSpace(field(body, "company_name", "company_Name", "companyName").String()),
		ContactName: field(body, "contact_name", "contactName").String(),
		Phone:       field(body, "phone").String(),
		Email:       field(body, "email").String(),
	}
}

// List handles GET /api/vendors.
func (h *VendorsHandler) List(w http.ResponseWriter, r *http.Request) {
	vendors, err := store.ListVendors(r.Context(), h.DB)
	if err != nil {
		writeError(w, r, err)
		return
	}
	jsonResponse(w, http.StatusOK, emptyIfNil(vendors))
}

// Create handles POST /api/vendors.
func (h *VendorsHandler) Create(w http.ResponseWriter, r *http.Request) {
	body, err := readBody(r)
	if err != nil {
		writeError(w, r, err)
		return
	}
	v := vendorFromBody(body)
	if v.CompanyName == "" {
		jsonError(w, apperr.CodeInvalidArgument, "company_name required")
		return
	}

	vendor, err := store.CreateVendor(r.Context(), h.DB, v)
	if err != nil {
		writeError(w, r, err)
		return
	}

	slog.Info("vendor created", "user", username(r), "vendor", vendor.CompanyName)
	emit(r, h.Events, events.EntityVendor, events.ActionCreated, vendor.ID)
	jsonResponse(w, http.StatusCreated, vendor)
}

// Get handles GET /api/vendors/{id}.
func (h *VendorsHandler) Get(w http.ResponseWriter, r *http.Request) {
	vendor, ok := h.load(w, r)
	if !ok {
		return
	}
	jsonResponse(w, http.StatusOK, vendor)
}

// Update handles PUT /api/vendors/{id}.
func (h *VendorsHandler) Update(w http.ResponseWriter, r *http.Request) {
	vendor, ok := h.load(w, r)
	if !ok {
		return
	}

	body, err := readBody(r)
	if err != nil {
		writeError(w, r, err)
		return
	}
	v := vendorFromBody(body)
	if v.CompanyName == "" {
		jsonError(w, apperr.CodeInvalidArgument, "company_name required")
		return
	}
	v.ID = vendor.ID

	if err := store.UpdateVendor(r.Context(), h.DB, v); err != nil {
		writeError(w, r, err)
		return
	}

	updated, err := store.GetVendor(r.Context(), h.DB, vendor.ID)
	if err != nil {
		writeError(w, r, err)
		return
	}
	slog.Info("vendor updated", "user", username(r), "vendor", updated.CompanyName)
	emit(r, h.Events, events.EntityVendor, events.ActionUpdated, vendor.ID)
	jsonResponse(w, http.StatusOK, updated)
}

// Delete handles DELETE /api/vendors/{id}.
func (h *VendorsHandler) Delete(w http.ResponseWriter, r *http.Request) {
	vendor, ok := h.load(w, r)
	if !ok {
		return
	}

	if err := store.DeleteVendor(r.Context(), h.DB, vendor.ID); err != nil {
		writeError(w, r, err)
		return
	}

	slog.Info("vendor deleted", "user", username(r), "vendor", vendor.CompanyName)
	emit(r, h.Events, events.EntityVendor, events.ActionDeleted, vendor.ID)
	jsonResponse(w, http.StatusOK, map[string]string{"message": "vendor deleted"})
}

func (h *VendorsHandler) load(w http.ResponseWriter, r *http.Request) (*model.Vendor, bool) {
	id, err := pathID(r, "id")
	if err != nil {
		writeError(w, r, err)
		return nil, false
	}
	vendor, err := store.GetVendor(r.Context(), h.DB, id)
	if err != nil {
		writeError(w, r, err)
		return nil, false
	}
	if vendor == nil || vendor.DeletedAt != nil {
		writeError(w, r, apperr.NotFound("vendor"))
		return nil, false
	}
	return vendor, true
}

// MaterialsHandler handles the material catalogue.
type MaterialsHandler struct {
	DB     *sql.DB
	Events events.Publisher
}

type materialRequest struct {
	Name        string `json:"name"`
	Unit        string `json:"unit"`
	Description string `json:"description"`
}

func (req materialRequest) validate() error {
	if strings.TrimSpace(req.Name) == "" || strings.TrimSpace(req.Unit) == "" {
		return apperr.Invalid("name and unit required")
	}
	return nil
}

// List handles GET /api/materials.
func (h *MaterialsHandler) List(w http.ResponseWriter, r *http.Request) {
	materials, err := store.ListMaterials(r.Context(), h.DB)
	if err != nil {
		writeError(w, r, err)
		return
	}
	jsonResponse(w, http.StatusOK, emptyIfNil(materials))
}

// Create handles POST /api/materials.
func (h *MaterialsHandler) Create(w http.ResponseWriter, r *http.Request) {
	var req materialRequest
	if err := decodeJSON(r, &req); err != nil {
		invalidBody(w)
		return
	}
	if err := req.validate(); err != nil {
		writeError(w, r, err)
		return
	}

	material, err := store.CreateMaterial(r.Context(), h.DB, req.Name, req.Unit, req.Description)
	if err != nil {
		writeError(w, r, err)
		return
	}

	slog.Info("material created", "user", username(r), "material", material.Name, "unit", material.Unit)
	emit(r, h.Events, events.EntityMaterial, events.ActionCreated, material.ID)
	jsonResponse(w, http.StatusCreated, material)
}

// Get handles GET /api/materials/{id}.
func (h *MaterialsHandler) Get(w http.ResponseWriter, r *http.Request) {
	material, ok := h.load(w, r)
	if !ok {
		return
	}
	jsonResponse(w, http.StatusOK, material)
}

// Update handles PUT /api/materials/{id}.
func (h *MaterialsHandler) Update(w http.ResponseWriter, r *http.Request) {
	material, ok := h.load(w, r)
	if !ok {
		return
	}

	var req materialRequest
	if err := decodeJSON(r, &req); err != nil {
		invalidBody(w)
		return
	}
	if err := req.validate(); err != nil {
		writeError(w, r, err)
		return
	}

	if err := store.UpdateMaterial(r.Context(), h.DB, material.ID, req.Name, req.Unit, req.Description); err != nil {
		writeError(w, r, err)
		return
	}

	updated, err := store.GetMaterial(r.Context(), h.DB, material.ID)
	if err != nil {
		writeError(w, r, err)
		return
	}
	slog.Info("material updated", "user", username(r), "material", updated.Name)
	emit(r, h.Events, events.EntityMaterial, events.ActionUpdated, material.ID)
	jsonResponse(w, http.StatusOK, updated)
}

// Delete handles DELETE /api/materials/{id}.
func (h *MaterialsHandler) Delete(w http.ResponseWriter, r *http.Request) {
	material, ok := h.load(w, r)
	if !ok {
		return
	}

	if err := store.DeleteMaterial(r.Context(), h.DB, material.ID); err != nil {
		writeError(w, r, err)
		return
	}

	slog.Info("material deleted", "user", username(r), "material", material.Name)
	emit(r, h.Events, events.EntityMaterial, events.ActionDeleted, material.ID)
	jsonResponse(w, http.StatusOK, map[string]string{"message": "material deleted"})
}

func (h *MaterialsHandler) load(w http.ResponseWriter, r *http.Request) (*model.Material, bool) {
	id, err := pathID(r, "id")
	if err != nil {
		writeError(w, r, err)
		return nil, false
	}
	material, err := store.GetMaterial(r.Context(), h.DB, id)
	if err != nil {
		writeError(w, r, err)
		return nil, false
	}
	if material == nil || material.DeletedAt != nil {
		writeError(w, r, apperr.NotFound("material"))
		return nil, false
	}
	return material, true
}
