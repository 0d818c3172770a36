package api

import (
	"database/sql"
	"log/slog"
	"mime"
	"mime/multipart"
	"net/http"
	"strconv"
	"strings"

	"github.com/erazemk/gradilisce/internal/apperr"
	"github.com/erazemk/gradilisce/internal/events"
	"github.com/erazemk/gradilisce/internal/model"
	"github.com/erazemk/gradilisce/internal/store"
)

// TransfersHandler handles transfer request endpoints.
type TransfersHandler struct {
	DB      *sql.DB
	Uploads *Uploads
	Events  events.Publisher
}

// Create handles POST /api/site-inventory/transfer.
func (h *TransfersHandler) Create(w http.ResponseWriter, r *http.Request) {
	body, err := readBody(r)
	if err != nil {
		writeError(w, r, err)
		return
	}

	in := store.TransferInput{
		InventoryID: field(body, "inventory_id", "inventoryId").Int(),
		ToProjectID: field(body, "to_project_id", "toProjectId").Int(),
		Note:        field(body, "note").String(),
		RequestedBy: actor(r),
	}
	if in.InventoryID <= 0 || in.ToProjectID <= 0 {
		jsonError(w, apperr.CodeInvalidArgument, "inventory_id and to_project_id required")
		return
	}
	if in.Quantity, err = requiredDecimal(body, "quantity"); err != nil {
		writeError(w, r, err)
		return
	}

	tr, err := store.CreateTransferRequest(r.Context(), h.DB, in)
	if err != nil {
		writeError(w, r, err)
		return
	}

	slog.Info("transfer requested", "user", username(r), "transfer_id", tr.ID,
		"material", tr.MaterialName, "quantity", tr.Quantity,
		"from", tr.FromProjectName, "to", tr.ToProjectName)
	emit(r, h.Events, events.EntityTransferRequest, events.ActionCreated, tr.ID, tr.FromProjectID, tr.ToProjectID)
	jsonResponse(w, http.StatusCreated, tr)
}

// List handles GET /api/site-inventory/transfer.
func (h *TransfersHandler) List(w http.ResponseWriter, r *http.Request) {
	var f store.TransferFilter
	var err error
	if f.ProjectID, err = queryID(r, "project_id"); err != nil {
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
	f.Status = r.URL.Query().Get("status")
	if f.Status != "" && !model.ValidRequestStatus(f.Status) {
		jsonError(w, apperr.CodeInvalidArgument, "invalid status")
		return
	}

	transfers, err := store.ListTransferRequests(r.Context(), h.DB, f)
	if err != nil {
		writeError(w, r, err)
		return
	}
	jsonResponse(w, http.StatusOK, emptyIfNil(transfers))
}

// Get handles GET /api/site-inventory/transfer/{id}.
func (h *TransfersHandler) Get(w http.ResponseWriter, r *http.Request) {
	tr, ok := h.load(w, r)
	if !ok {
		return
	}
	jsonResponse(w, http.StatusOK, tr)
}

// Approve handles POST /api/site-inventory/transfer/{id}/approve. A second
// decision on the same request gets 409.
func (h *TransfersHandler) Approve(w http.ResponseWriter, r *http.Request) {
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

	tr, err := store.ApproveTransferRequest(r.Context(), h.DB, id, approval, actor(r))
	if err != nil {
		writeError(w, r, err)
		return
	}

	slog.Info("transfer approved", "user", username(r), "transfer_id", tr.ID,
		"material", tr.MaterialName, "quantity", tr.ApprovedQuantity,
		"cost_per_unit", tr.CostPerUnit, "total_price", tr.TotalPrice,
		"from", tr.FromProjectName, "to", tr.ToProjectName)
	emit(r, h.Events, events.EntityTransferRequest, events.ActionApproved, tr.ID, tr.FromProjectID, tr.ToProjectID)
	jsonResponse(w, http.StatusOK, tr)
}

// Reject handles POST /api/site-inventory/transfer/{id}/reject. The body is
// JSON, or multipart when a voice note is attached under "audio".
func (h *TransfersHandler) Reject(w http.ResponseWriter, r *http.Request) {
	tr, ok := h.load(w, r)
	if !ok {
		return
	}

	var rej store.Rejection
	var audio *multipart.FileHeader
	if isMultipart(r) {
		if err := h.Uploads.parseForm(w, r); err != nil {
			writeError(w, r, err)
			return
		}
		defer r.MultipartForm.RemoveAll()

		rej.Reason = strings.TrimSpace(r.FormValue("reason"))
		rej.Type = firstNonEmpty(r.FormValue("rejection_type"), r.FormValue("rejectionType"))
		if parts := files(r, "audio"); len(parts) > 0 {
			audio = parts[0]
		}
	} else {
		body, err := readBody(r)
		if err != nil {
			writeError(w, r, err)
			return
		}
		rej.Reason = strings.TrimSpace(field(body, "reason").String())
		rej.Type = field(body, "rejection_type", "rejectionType").String()
	}

	if rej.Type == "" {
		rej.Type = inferRejectionType(rej.Reason != "", audio != nil)
	}
	if audio != nil {
		if !isAudio(audio) {
			jsonError(w, apperr.CodeInvalidArgument, "audio must be an audio recording")
			return
		}
		// Validated with a placeholder; the real ID exists only after upload.
		placeholder := int64(0)
		rej.AudioID = &placeholder
	}
	if err := rej.Validate(); err != nil {
		writeError(w, r, err)
		return
	}
	if tr.Status != model.RequestPending {
		writeError(w, r, apperr.Newf(apperr.CodeInvalidState, "transfer request is already %s", tr.Status))
		return
	}

	var saved *model.Media
	if audio != nil {
		m, err := h.Uploads.save(r.Context(), audio, model.MediaOwnerTransferRejection, strconv.FormatInt(tr.ID, 10), actor(r))
		if err != nil {
			writeError(w, r, err)
			return
		}
		saved = m
		rej.AudioID = &m.ID
	}

	rejected, err := store.RejectTransferRequest(r.Context(), h.DB, tr.ID, rej, actor(r))
	if err != nil {
		if saved != nil {
			h.Uploads.discard(r.Context(), saved)
		}
		writeError(w, r, err)
		return
	}

	slog.Info("transfer rejected", "user", username(r), "transfer_id", rejected.ID,
		"rejection_type", rejected.RejectionType, "reason", rejected.RejectionReason)
	emit(r, h.Events, events.EntityTransferRequest, events.ActionRejected, rejected.ID, rejected.FromProjectID, rejected.ToProjectID)
	jsonResponse(w, http.StatusOK, rejected)
}

func (h *TransfersHandler) load(w http.ResponseWriter, r *http.Request) (*model.TransferRequest, bool) {
	id, err := pathID(r, "id")
	if err != nil {
		writeError(w, r, err)
		return nil, false
	}
	tr, err := store.GetTransferRequest(r.Context(), h.DB, id)
	if err != nil {
		writeError(w, r, err)
		return nil, false
	}
	if tr == nil {
		writeError(w, r, apperr.NotFound("transfer request"))
		return nil, false
	}
	return tr, true
}

// approvalFromRequest reads {cost_per_unit, quantity?, total_price?, vendor_id?}.
func approvalFromRequest(r *http.Request) (model.Approval, error) {
	body, err := readBody(r)
	if err != nil {
		return model.Approval{}, err
	}

	var a model.Approval
	if a.CostPerUnit, err = requiredDecimal(body, "cost_per_unit", "costPerUnit"); err != nil {
		return model.Approval{}, err
	}
	if a.Quantity, err = decimalField(body, "quantity"); err != nil {
		return model.Approval{}, err
	}
	if a.TotalPrice, err = decimalField(body, "total_price", "totalPrice"); err != nil {
		return model.Approval{}, err
	}
	a.VendorID = idField(body, "vendor_id", "vendorId")
	return a, nil
}

func isMultipart(r *http.Request) bool {
	mediaType, _, err := mime.ParseMediaType(r.Header.Get("Content-Type"))
	return err == nil && mediaType == "multipart/form-data"
}

// isAudio accepts audio/* and the webm/ogg containers browsers record into.
func isAudio(fh *multipart.FileHeader) bool {
	ct := fh.Header.Get("Content-Type")
	switch {
	case ct == "", ct == "application/octet-stream":
		return true
	case strings.HasPrefix(ct, "audio/"):
		return true
	case strings.HasPrefix(ct, "video/webm"), strings.HasPrefix(ct, "application/ogg"):
		return true
	}
	return false
}

func inferRejectionType(hasReason, hasAudio bool) string {
	switch {
	case hasReason && hasAudio:
		return model.RejectionBoth
	case hasAudio:
		return model.RejectionAudio
	default:
		return model.RejectionText
	}
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}
