package model

import (
	"time"

	"github.com/shopspring/decimal"
)

// Request statuses shared by transfer, restock and ask-material requests.
const (
	RequestPending  = "pending"
	RequestApproved = "approved"
	RequestRejected = "rejected"
)

// ValidRequestStatus reports whether s is a known request status.
func ValidRequestStatus(s string) bool {
	return s == RequestPending || s == RequestApproved || s == RequestRejected
}

// Rejection types.
const (
	RejectionText  = "text"
	RejectionAudio = "audio"
	RejectionBoth  = "both"
)

// TransferRequest is a proposed movement of stock between two projects.
type TransferRequest struct {
	ID               int64            `json:"id"`
	InventoryID      int64            `json:"inventory_id"`
	FromProjectID    int64            `json:"from_project_id"`
	ToProjectID      int64            `json:"to_project_id"`
	Quantity         decimal.Decimal  `json:"quantity"`
	Note             string           `json:"note,omitempty"`
	Status           string           `json:"status"`
	RequestedBy      *int64           `json:"requested_by,omitempty"`
	RequestedAt      time.Time        `json:"requested_at"`
	DecidedBy        *int64           `json:"decided_by,omitempty"`
	DecidedAt        *time.Time       `json:"decided_at,omitempty"`
	ApprovedQuantity *decimal.Decimal `json:"approved_quantity,omitempty"`
	CostPerUnit      *decimal.Decimal `json:"cost_per_unit,omitempty"`
	TotalPrice       *decimal.Decimal `json:"total_price,omitempty"`
	RejectionReason  string           `json:"rejection_reason,omitempty"`
	RejectionType    string           `json:"rejection_type,omitempty"`
	RejectionAudioID *int64           `json:"rejection_audio_id,omitempty"`

	// Joined fields (not always populated).
	MaterialID      int64         `json:"material_id"`
	MaterialName    string        `json:"material_name,omitempty"`
	InventoryType   InventoryType `json:"inventory_type"`
	Unit            string        `json:"unit,omitempty"`
	FromProjectName string        `json:"from_project_name,omitempty"`
	ToProjectName   string        `json:"to_project_name,omitempty"`
}

// Material request kinds.
const (
	MaterialRequestRestock = "restock"
	MaterialRequestAsk     = "ask"
)

// MaterialRequest asks for more stock at a project: a restock of an existing
// inventory row or an ask for a material the project does not hold yet.
type MaterialRequest struct {
	ID               int64            `json:"id"`
	Kind             string           `json:"kind"`
	ProjectID        int64            `json:"project_id"`
	MaterialID       int64            `json:"material_id"`
	InventoryType    InventoryType    `json:"inventory_type"`
	InventoryID      *int64           `json:"inventory_id,omitempty"`
	Quantity         decimal.Decimal  `json:"quantity"`
	Note             string           `json:"note,omitempty"`
	Status           string           `json:"status"`
	RequestedBy      *int64           `json:"requested_by,omitempty"`
	RequestedAt      time.Time        `json:"requested_at"`
	DecidedBy        *int64           `json:"decided_by,omitempty"`
	DecidedAt        *time.Time       `json:"decided_at,omitempty"`
	ApprovedQuantity *decimal.Decimal `json:"approved_quantity,omitempty"`
	CostPerUnit      *decimal.Decimal `json:"cost_per_unit,omitempty"`
	TotalPrice       *decimal.Decimal `json:"total_price,omitempty"`
	VendorID         *int64           `json:"vendor_id,omitempty"`
	RejectionReason  string           `json:"rejection_reason,omitempty"`

	// Joined fields (not always populated).
	ProjectName  string `json:"project_name,omitempty"`
	MaterialName string `json:"material_name,omitempty"`
}

// Approval carries the pricing an approver settles a request with.
// A nil Quantity means "as requested"; a nil TotalPrice means Quantity × CostPerUnit.
type Approval struct {
	CostPerUnit decimal.Decimal
	Quantity    *decimal.Decimal
	TotalPrice  *decimal.Decimal
	VendorID    *int64
}
