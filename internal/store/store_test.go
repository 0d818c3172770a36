package store

import (
	"context"
	"database/sql"
	"testing"

	"github.com/shopspring/decimal"

	"github.com/erazemk/gradilisce/internal/model"
)

func dec(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}

func decp(s string) *decimal.Decimal {
	d := dec(s)
	return &d
}

func mustProject(t *testing.T, database *sql.DB, name string) *model.Project {
	t.Helper()
	p, err := CreateProject(context.Background(), database, name, "")
	if err != nil {
		t.Fatalf("CreateProject(%q): %v", name, err)
	}
	return p
}

func mustMaterial(t *testing.T, database *sql.DB, name, unit string) *model.Material {
	t.Helper()
	m, err := CreateMaterial(context.Background(), database, name, unit, "")
	if err != nil {
		t.Fatalf("CreateMaterial(%q): %v", name, err)
	}
	return m
}

func mustStock(t *testing.T, database *sql.DB, projectID, materialID int64, typ model.InventoryType, qty, cost string) *model.InventoryItem {
	t.Helper()
	inv, err := AddStock(context.Background(), database, StockInput{
		ProjectID:     projectID,
		MaterialID:    materialID,
		InventoryType: typ,
		Quantity:      dec(qty),
		CostPerUnit:   dec(cost),
	})
	if err != nil {
		t.Fatalf("AddStock: %v", err)
	}
	return inv
}

func assertDecimal(t *testing.T, what string, got decimal.Decimal, want string) {
	t.Helper()
	if !got.Equal(dec(want)) {
		t.Errorf("%s = %s, want %s", what, got, want)
	}
}
