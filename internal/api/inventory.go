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

// InventoryHandler handles site inventory endpoints.
type InventoryHandler struct {
	DB      *sql.DB
	Uploads *Uploads
	Events  events.Publisher
}

type updateInventoryRequest struct {
	Unit        string `json:"unit"`
	Description string `json:"description"`
	VendorID    *int64 `json:"vendor_id"`
}

// List handles GET /api/site-inventory.
func (h *InventoryHandler) List(w http.ResponseWriter, r *http.Request) {
	var f store.InventoryFilter
	var err error
	if f.ProjectID, err = queryID(r, "project_id"); err != nil {
		writeError(w, r, err)
		return
	}
	if f.MaterialID, err = queryID(r, "material_id"); err != nil {
		writeError(w, r, err)
		return
	}
	typ, err := queryID(r, "inventory_type")
	if err != nil {
		writeError(w, r, err)
		return
	}
	f.InventoryType = model.InventoryType(typ)
	if f.InventoryType != 0 && !f.InventoryType.Valid() {
		jsonError(w, apperr.CodeInvalidArgument, "invalid inventory_type")
		return
	}

	items, err := store.ListInventory(r.Context(), h.DB, f)
	if err != nil {
		writeError(w, r, err)
		return
	}
	jsonResponse(w, http.StatusOK, emptyIfNil(items))
}

// AddStock handles POST /api/site-inventory.
func (h *InventoryHandler) AddStock(w http.ResponseWriter, r *http.Request) {
	body, err := readBody(r)
	if err != nil {
		writeError(w, r, err)
		return
	}

	in := store.StockInput{
		ProjectID:     field(body, "project_id", "projectId").Int(),
		MaterialID:    field(body, "material_id", "materialId").Int(),
		VendorID:      idField(body, "vendor_id", "vendorId"),
		InventoryType: model.InventoryType(field(body, "inventory_type", "inventoryType").Int()),
		Unit:          field(body, "unit").String(),
		Description:   field(body, "description").String(),
		CreatedBy:     actor(r),
	}
	if in.ProjectID <= 0 || in.MaterialID <= 0 {
		jsonError(w, apperr.CodeInvalidArgument, "project_id and material_id required")
		return
	}
	if in.Quantity, err = requiredDecimal(body, "quantity"); err != nil {
		writeError(w, r, err)
		return
	}
	if in.CostPerUnit, err = requiredDecimal(body, "cost_per_unit", "costPerUnit"); err != nil {
		writeError(w, r, err)
		return
	}
	if in.TotalPrice, err = decimalField(body, "total_price", "totalPrice"); err != nil {
		writeError(w, r, err)
		return
	}

	item, err := store.AddStock(r.Context(), h.DB, in)
	if err != nil {
		writeError(w, r, err)
		return
	}

	slog.Info("stock added", "user", username(r),
		"project", item.ProjectName, "material", item.MaterialName,
		"quantity", in.Quantity, "new_quantity", item.Quantity, "cost_per_unit", item.CostPerUnit)
	emit(r, h.Events, events.EntityInventory, events.ActionUpdated, item.ID, item.ProjectID)
	jsonResponse(w, http.StatusCreated, item)
}

// Get handles GET /api/site-inventory/{id}, including attached media.
func (h *InventoryHandler) Get(w http.ResponseWriter, r *http.Request) {
	item, ok := h.load(w, r)
	if !ok {
		return
	}

	attached, err := store.ListMedia(r.Context(), h.DB, model.MediaOwnerInventory, strconv.FormatInt(item.ID, 10))
	if err != nil {
		writeError(w, r, err)
		return
	}
	item.Media = attached
	jsonResponse(w, http.StatusOK, item)
}

// Update handles PUT /api/site-inventory/{id}. Quantities and prices only
// change through stock movements. Fields missing from the body keep their
// stored value; "vendor_id": null detaches the vendor.
func (h *InventoryHandler) Update(w http.ResponseWriter, r *http.Request) {
	item, ok := h.load(w, r)
	if !ok {
		return
	}

	req := updateInventoryRequest{Unit: item.Unit, Description: item.Description, VendorID: item.VendorID}
	if err := decodeJSON(r, &req); err != nil {
		invalidBody(w)
		return
	}
	if req.Unit == "" {
		req.Unit = item.Unit
	}

	if err := store.UpdateInventoryItem(r.Context(), h.DB, item.ID, req.Unit, req.Description, req.VendorID); err != nil {
		writeError(w, r, err)
		return
	}

	updated, err := store.GetInventoryItem(r.Context(), h.DB, item.ID)
	if err != nil {
		writeError(w, r, err)
		return
	}
	slog.Info("inventory item updated", "user", username(r), "inventory_id", item.ID, "material", item.MaterialName)
	emit(r, h.Events, events.EntityInventory, events.ActionUpdated, item.ID, item.ProjectID)
	jsonResponse(w, http.StatusOK, updated)
}

// Delete handles DELETE /api/site-inventory/{id}.
func (h *InventoryHandler) Delete(w http.ResponseWriter, r *http.Request) {
	item, ok := h.load(w, r)
	if !ok {
		return
	}

	attached, err := store.ListMedia(r.Context(), h.DB, model.MediaOwnerInventory, strconv.FormatInt(item.ID, 10))
	if err != nil {
		writeError(w, r, err)
		return
	}

	if err := store.DeleteInventoryItem(r.Context(), h.DB, item.ID); err != nil {
		writeError(w, r, err)
		return
	}
	h.Uploads.deleteBlobs(r.Context(), attached)

	slog.Info("inventory item deleted", "user", username(r), "inventory_id", item.ID,
		"project", item.ProjectName, "material", item.MaterialName)
	emit(r, h.Events, events.EntityInventory, events.ActionDeleted, item.ID, item.ProjectID)
	jsonResponse(w, http.StatusOK, map[string]string{"message": "inventory item deleted"})
}

// UploadMedia handles POST /api/site-inventory/{id}/media (multipart "file").
func (h *InventoryHandler) UploadMedia(w http.ResponseWriter, r *http.Request) {
	item, ok := h.load(w, r)
	if !ok {
		return
	}

	if err := h.Uploads.parseForm(w, r); err != nil {
		writeError(w, r, err)
		return
	}
	defer r.MultipartForm.RemoveAll()

	saved, err := h.Uploads.saveAll(r.Context(), r, "file", model.MediaOwnerInventory, strconv.FormatInt(item.ID, 10))
	if err != nil {
		writeError(w, r, err)
		return
	}

	slog.Info("inventory media uploaded", "user", username(r), "inventory_id", item.ID, "count", len(saved))
	for _, m := range saved {
		emit(r, h.Events, events.EntityMedia, events.ActionUploaded, m.ID, item.ProjectID)
	}
	jsonResponse(w, http.StatusCreated, saved)
}

// LogUsage handles POST /api/site-inventory/{id}/usage.
func (h *InventoryHandler) LogUsage(w http.ResponseWriter, r *http.Request) {
	item, ok := h.load(w, r)
	if !ok {
		return
	}

	body, err := readBody(r)
	if err != nil {
		writeError(w, r, err)
		return
	}
	quantity, err := requiredDecimal(body, "quantity")
	if err != nil {
		writeError(w, r, err)
		return
	}

	usage, err := store.LogUsage(r.Context(), h.DB, item.ID, quantity, field(body, "note").String(), actor(r))
	if err != nil {
		writeError(w, r, err)
		return
	}

	slog.Info("usage logged", "user", username(r), "inventory_id", item.ID,
		"material", item.MaterialName, "quantity", quantity)
	emit(r, h.Events, events.EntityInventory, events.ActionUpdated, item.ID, item.ProjectID)
	jsonResponse(w, http.StatusCreated, usage)
}

// ListUsage handles GET /api/site-inventory/{id}/usage.
func (h *InventoryHandler) ListUsage(w http.ResponseWriter, r *http.Request) {
	item, ok := h.load(w, r)
	if !ok {
		return
	}

	logs, err := store.ListUsage(r.Context(), h.DB, item.ID)
	if err != nil {
		writeError(w, r, err)
		return
	}
	jsonResponse(w, http.StatusOK, emptyIfNil(logs))
}

func (h *InventoryHandler) load(w http.ResponseWriter, r *http.Request) (*model.InventoryItem, bool) {
	id, err := pathID(r, "id")
	if err != nil {
		writeError(w, r, err)
		return nil, false
	}
	item, err := store.GetInventoryItem(r.Context(), h.DB, id)
	if err != nil {
		writeError(w, r, err)
		return nil, false
	}
	if item == nil {
		writeError(w, r, apperr.NotFound("inventory item"))
		return nil, false
	}
	return item, true
}
