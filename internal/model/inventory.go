package model

import (
	"time"

	"github.com/shopspring/decimal"
)

// InventoryType classifies stock as durable or depleting.
type InventoryType int

// Inventory types.
const (
	InventoryReusable   InventoryType = 1
	InventoryConsumable InventoryType = 2
)

// Valid reports whether t is a known inventory type.
func (t InventoryType) Valid() bool {
	return t == InventoryReusable || t == InventoryConsumable
}

func (t InventoryType) String() string {
	switch t {
	case InventoryReusable:
		return "reusable"
	case InventoryConsumable:
		return "consumable"
	default:
		return "unknown"
	}
}

// InventoryItem is the stock of one material held by one project.
type InventoryItem struct {
	ID            int64           `json:"id"`
	ProjectID     int64           `json:"project_id"`
	MaterialID    int64           `json:"material_id"`
	VendorID      *int64          `json:"vendor_id,omitempty"`
	InventoryType InventoryType   `json:"inventory_type"`
	Quantity      decimal.Decimal `json:"quantity"`
	Unit          string          `json:"unit"`
	CostPerUnit   decimal.Decimal `json:"cost_per_unit"`
	TotalPrice    decimal.Decimal `json:"total_price"`
	Description   string          `json:"description,omitempty"`
	CreatedBy     *int64          `json:"created_by,omitempty"`
	CreatedAt     time.Time       `json:"created_at"`
	UpdatedAt     time.Time       `json:"updated_at"`

	// Joined fields (not always populated).
	ProjectName  string  `json:"project_name,omitempty"`
	MaterialName string  `json:"material_name,omitempty"`
	VendorName   string  `json:"vendor_name,omitempty"`
	Media        []Media `json:"media,omitempty"`
}

// UsageLog records consumption of consumable stock.
type UsageLog struct {
	ID          int64           `json:"id"`
	InventoryID int64           `json:"inventory_id"`
	Quantity    decimal.Decimal `json:"quantity"`
	Note        string          `json:"note,omitempty"`
	UsedBy      *int64          `json:"used_by,omitempty"`
	UsedAt      time.Time       `json:"used_at"`
}

// Decimal inputs carry at most MaxScale fractional digits, an exponent of at
// most MaxExponent and a coefficient of at most 128 bits. Arithmetic outside
// these limits rescales to enormous integers.
const (
	MaxScale    = 8
	MaxExponent = 15

	maxCoefficientBits = 128
)

// DecimalInBounds reports whether d fits the limits above. Only the exponent
// and coefficient are inspected, so the check is cheap for any input.
func DecimalInBounds(d decimal.Decimal) bool {
	exp := d.Exponent()
	if exp < -MaxScale || exp > MaxExponent {
		return false
	}
	return d.Coefficient().BitLen() <= maxCoefficientBits
}

// LineTotal returns quantity × costPerUnit, the default total price of a line.
func LineTotal(quantity, costPerUnit decimal.Decimal) decimal.Decimal {
	return quantity.Mul(costPerUnit)
}
