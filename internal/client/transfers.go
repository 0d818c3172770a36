package client

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"mime"
	"mime/multipart"
	"net/http"
	"net/textproto"
	"net/url"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/shopspring/decimal"

	"github.com/erazemk/gradilisce/internal/model"
)

// TransferFilter narrows GetTransferRequests. Zero values match everything.
type TransferFilter struct {
	ProjectID     int64
	InventoryType model.InventoryType
	Status        string
}

func (f TransferFilter) query() url.Values {
	q := url.Values{}
	if f.ProjectID > 0 {
		q.Set("project_id", strconv.FormatInt(f.ProjectID, 10))
	}
	if f.InventoryType != 0 {
		q.Set("inventory_type", strconv.Itoa(int(f.InventoryType)))
	}
	if f.Status != "" {
		q.Set("status", f.Status)
	}
	return q
}

// GetTransferRequests lists transfer requests.
func (c *Client) GetTransferRequests(ctx context.Context, f TransferFilter) ([]model.TransferRequest, error) {
	data, err := c.doJSON(ctx, http.MethodGet, "/api/site-inventory/transfer", f.query(), nil)
	if err != nil {
		return nil, err
	}
	return fillIDs(data,
		func(tr *model.TransferRequest, id int64) { tr.ID = id },
		func(tr *model.TransferRequest) int64 { return tr.ID },
	)
}

type transferBody struct {
	InventoryID int64           `json:"inventory_id"`
	ToProjectID int64           `json:"to_project_id"`
	Quantity    decimal.Decimal `json:"quantity"`
	Note        string          `json:"note,omitempty"`
}

// CreateTransferRequest asks to move quantity of an inventory row to another project.
func (c *Client) CreateTransferRequest(ctx context.Context, inventoryID, toProjectID int64, quantity decimal.Decimal, note string) (*model.TransferRequest, error) {
	data, err := c.doJSON(ctx, http.MethodPost, "/api/site-inventory/transfer", nil, transferBody{
		InventoryID: inventoryID,
		ToProjectID: toProjectID,
		Quantity:    quantity,
		Note:        note,
	})
	if err != nil {
		return nil, err
	}
	var tr model.TransferRequest
	if err := decode(data, &tr); err != nil {
		return nil, err
	}
	return &tr, nil
}

// GetTransferRequest returns one transfer request.
func (c *Client) GetTransferRequest(ctx context.Context, id int64) (*model.TransferRequest, error) {
	data, err := c.doJSON(ctx, http.MethodGet, fmt.Sprintf("/api/site-inventory/transfer/%d", id), nil, nil)
	if err != nil {
		return nil, err
	}
	var tr model.TransferRequest
	if err := decode(data, &tr); err != nil {
		return nil, err
	}
	return &tr, nil
}

// Approval prices an approved transfer. A nil Quantity approves the requested
// quantity; a nil TotalPrice is filled in as Quantity × CostPerUnit.
type Approval struct {
	CostPerUnit decimal.Decimal
	Quantity    *decimal.Decimal
	TotalPrice  *decimal.Decimal
}

// ApprovalFor starts an approval of tr at the given unit cost, defaulting the
// quantity to what was requested.
func ApprovalFor(tr model.TransferRequest, costPerUnit decimal.Decimal) Approval {
	qty := tr.Quantity
	return Approval{CostPerUnit: costPerUnit, Quantity: &qty}
}

// WithDefaults fills TotalPrice from Quantity and CostPerUnit when the caller
// has not overridden it.
func (a Approval) WithDefaults() Approval {
	if a.TotalPrice == nil && a.Quantity != nil {
		total := model.LineTotal(*a.Quantity, a.CostPerUnit)
		a.TotalPrice = &total
	}
	return a
}

type approvalBody struct {
	CostPerUnit decimal.Decimal  `json:"cost_per_unit"`
	Quantity    *decimal.Decimal `json:"quantity,omitempty"`
	TotalPrice  *decimal.Decimal `json:"total_price,omitempty"`
}

// ApproveTransferRequest approves a pending transfer. A failed approval
// leaves the request pending.
func (c *Client) ApproveTransferRequest(ctx context.Context, id int64, a Approval) (*model.TransferRequest, error) {
	a = a.WithDefaults()
	data, err := c.doJSON(ctx, http.MethodPost, fmt.Sprintf("/api/site-inventory/transfer/%d/approve", id), nil, approvalBody{
		CostPerUnit: a.CostPerUnit,
		Quantity:    a.Quantity,
		TotalPrice:  a.TotalPrice,
	})
	if err != nil {
		return nil, err
	}
	var tr model.TransferRequest
	if err := decode(data, &tr); err != nil {
		return nil, err
	}
	return &tr, nil
}

// Rejection turns a transfer down with a text reason, a voice note, or both.
type Rejection struct {
	Reason string
	// Type is text, audio or both. Empty lets the server infer it.
	Type string
	// Audio, when set, is uploaded as AudioName.
	Audio     io.Reader
	AudioName string
}

// RejectTransferRequest rejects a pending transfer.
func (c *Client) RejectTransferRequest(ctx context.Context, id int64, r Rejection) (*model.TransferRequest, error) {
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	if r.Reason != "" {
		if err := mw.WriteField("reason", r.Reason); err != nil {
			return nil, fmt.Errorf("write reason: %w", err)
		}
	}
	if r.Type != "" {
		if err := mw.WriteField("rejection_type", r.Type); err != nil {
			return nil, fmt.Errorf("write rejection type: %w", err)
		}
	}
	if r.Audio != nil {
		name := r.AudioName
		if name == "" {
			name = "rejection.webm"
		}
		if err := writeFile(mw, "audio", name, r.Audio); err != nil {
			return nil, err
		}
	}
	if err := mw.Close(); err != nil {
		return nil, fmt.Errorf("close multipart: %w", err)
	}

	data, err := c.do(ctx, http.MethodPost, fmt.Sprintf("/api/site-inventory/transfer/%d/reject", id), nil, &buf, mw.FormDataContentType())
	if err != nil {
		return nil, err
	}
	var tr model.TransferRequest
	if err := decode(data, &tr); err != nil {
		return nil, err
	}
	return &tr, nil
}

// mediaTypes covers recordings and videos missing from minimal mime tables.
var mediaTypes = map[string]string{
	".m4a":  "audio/mp4",
	".mp3":  "audio/mpeg",
	".ogg":  "audio/ogg",
	".wav":  "audio/wav",
	".webm": "audio/webm",
	".mov":  "video/quicktime",
	".mp4":  "video/mp4",
}

// writeFile adds a file part whose Content-Type follows the file extension.
func writeFile(mw *multipart.Writer, field, filename string, r io.Reader) error {
	ext := strings.ToLower(filepath.Ext(filename))
	contentType, ok := mediaTypes[ext]
	if !ok {
		contentType = mime.TypeByExtension(ext)
	}
	if contentType == "" {
		contentType = "application/octet-stream"
	}
	h := make(textproto.MIMEHeader)
	h.Set("Content-Disposition", fmt.Sprintf(`form-data; name=%q; filename=%q`, field, filepath.Base(filename)))
	h.Set("Content-Type", contentType)

	part, err := mw.CreatePart(h)
	if err != nil {
		return fmt.Errorf("create %s part: %w", field, err)
	}
	if _, err := io.Copy(part, r); err != nil {
		return fmt.Errorf("write %s: %w", filename, err)
	}
	return nil
}
