package store

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/shopspring/decimal"

	"github.com/erazemk/gradilisce/internal/apperr"
	"github.com/erazemk/gradilisce/internal/model"
)

const materialRequestSelect = `SELECT r.id, r.kind, r.project_id, r.material_id, r.inventory_type, r.inventory_id,
        r.quantity, r.note, r.status, r.requested_by, r.requested_at, r.decided_by, r.decided_at,
        r.approved_quantity, r.cost_per_unit, r.total_price, r.vendor_id, r.rejection_reason,
        p.name, m.name
 FROM material_requests r
 JOIN projects p ON p.id = r.project_id
 JOIN materials m ON m.id = r.material_id`

func scanMaterialRequest(s rowScanner) (*model.MaterialRequest, error) {
	r := &model.MaterialRequest{}
	var note, reason sql.NullString
	var approvedQty, cost, total decimal.NullDecimal
	err := s.Scan(&r.ID, &r.Kind, &r.ProjectID, &r.MaterialID, &r.InventoryType, &r.InventoryID,
		&r.Quantity, &note, &r.Status, &r.RequestedBy, &r.RequestedAt, &r.DecidedBy, &r.DecidedAt,
		&approvedQty, &cost, &total, &r.VendorID, &reason,
		&r.ProjectName, &r.MaterialName)
	if err != nil {
		return nil, err
	}
	r.Note = note.String
	r.RejectionReason = reason.String
	r.ApprovedQuantity = decimalPtr(approvedQty)
	r.CostPerUnit = decimalPtr(cost)
	r.TotalPrice = decimalPtr(total)
	return r, nil
}

// AskInput asks for a material at a project, whether or not the project
// already holds it.
type AskInput struct {
	ProjectID     int64
	MaterialID    int64
	InventoryType model.InventoryType
	Quantity      decimal.Decimal
	Note          string
	RequestedBy   *int64
}

// MaterialRequestFilter narrows ListMaterialRequests.
type MaterialRequestFilter struct {
	Kind      string
	ProjectID int64
	Status    string
}

// CreateRestockRequest asks for more of an existing inventory row.
func CreateRestockRequest(ctx context.Context, db *sql.DB, inventoryID int64, quantity decimal.Decimal, note string, requestedBy *int64) (*model.MaterialRequest, error) {
	if err := positive("quantity", quantity); err != nil {
		return nil, err
	}

	row, err := loadStockRow(ctx, db, inventoryID)
	if err != nil {
		return nil, err
	}

	return insertMaterialRequest(ctx, db, model.MaterialRequestRestock, AskInput{
		ProjectID:     row.ProjectID,
		MaterialID:    row.MaterialID,
		InventoryType: row.InventoryType,
		Quantity:      quantity,
		Note:          note,
		RequestedBy:   requestedBy,
	}, &inventoryID)
}

// CreateAskRequest asks for a material at a project.
func CreateAskRequest(ctx context.Context, db *sql.DB, in AskInput) (*model.MaterialRequest, error) {
	if err := positive("quantity", in.Quantity); err != nil {
		return nil, err
	}
	if !in.InventoryType.Valid() {
		return nil, apperr.Invalid("inventory_type must be 1 (reusable) or 2 (consumable)")
	}
	if _, err := activeProject(ctx, db, in.ProjectID); err != nil {
		return nil, err
	}
	if _, err := activeMaterial(ctx, db, in.MaterialID); err != nil {
		return nil, err
	}

	var inventoryID *int64
	var id int64
	err := db.QueryRowContext(ctx,
		`SELECT id FROM site_inventory WHERE project_id = ? AND material_id = ? AND inventory_type = ?`,
		in.ProjectID, in.MaterialID, in.InventoryType,
	).Scan(&id)
	switch {
	case err == nil:
		inventoryID = &id
	case err != sql.ErrNoRows:
		return nil, fmt.Errorf("checking inventory row: %w", err)
	}

	return insertMaterialRequest(ctx, db, model.MaterialRequestAsk, in, inventoryID)
}

func insertMaterialRequest(ctx context.Context, db *sql.DB, kind string, in AskInput, inventoryID *int64) (*model.MaterialRequest, error) {
	result, err := db.ExecContext(ctx,
		`INSERT INTO material_requests (kind, project_id, material_id, inventory_type, inventory_id, quantity, note, requested_by, requested_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		kind, in.ProjectID, in.MaterialID, in.InventoryType, inventoryID, in.Quantity, nullString(in.Note), in.RequestedBy, now(),
	)
	if err != nil {
		return nil, fmt.Errorf("creating %s request: %w", kind, err)
	}
	id, err := result.LastInsertId()
	if err != nil {
		return nil, fmt.Errorf("getting request id: %w", err)
	}
	return GetMaterialRequest(ctx, db, id)
}

// GetMaterialRequest returns a restock or ask request by ID.
func GetMaterialRequest(ctx context.Context, db *sql.DB, id int64) (*model.MaterialRequest, error) {
	r, err := scanMaterialRequest(db.QueryRowContext(ctx, materialRequestSelect+` WHERE r.id = ?`, id))
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("getting material request: %w", err)
	}
	return r, nil
}

// ListMaterialRequests returns restock and ask requests, newest first.
func ListMaterialRequests(ctx context.Context, db *sql.DB, f MaterialRequestFilter) ([]model.MaterialRequest, error) {
	query := materialRequestSelect + ` WHERE 1=1`
	var args []any

	if f.Kind != "" {
		query += ` AND r.kind = ?`
		args = append(args, f.Kind)
	}
	if f.ProjectID > 0 {
		query += ` AND r.project_id = ?`
		args = append(args, f.ProjectID)
	}
	if f.Status != "" {
		query += ` AND r.status = ?`
		args = append(args, f.Status)
	}
	query += ` ORDER BY r.requested_at DESC, r.id DESC`

	rows, err := db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("listing material requests: %w", err)
	}
	defer rows.Close()

	var requests []model.MaterialRequest
	for rows.Next() {
		r, err := scanMaterialRequest(rows)
		if err != nil {
			return nil, fmt.Errorf("scanning material request: %w", err)
		}
		requests = append(requests, *r)
	}
	return requests, rows.Err()
}

// ApproveMaterialRequest settles a pending restock or ask request by adding
// the approved stock to the requesting project.
func ApproveMaterialRequest(ctx context.Context, db *sql.DB, id int64, a model.Approval, decidedBy *int64) (*model.MaterialRequest, error) {
	if err := checkApproval(a); err != nil {
		return nil, err
	}

	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("beginning transaction: %w", err)
	}
	defer tx.Rollback()

	if err := decide(ctx, tx, "material_requests", "material request", id, model.RequestApproved, decidedBy); err != nil {
		return nil, err
	}

	var projectID, materialID int64
	var inventoryType model.InventoryType
	var requested decimal.Decimal
	err = tx.QueryRowContext(ctx,
		`SELECT project_id, material_id, inventory_type, quantity FROM material_requests WHERE id = ?`, id,
	).Scan(&projectID, &materialID, &inventoryType, &requested)
	if err != nil {
		return nil, fmt.Errorf("loading material request: %w", err)
	}

	quantity, err := approvedQuantity(requested, a.Quantity)
	if err != nil {
		return nil, err
	}
	total, err := settlePrice(quantity, a.CostPerUnit, a.TotalPrice)
	if err != nil {
		return nil, err
	}
	if err := checkVendor(ctx, tx, a.VendorID); err != nil {
		return nil, err
	}
	if _, err := activeProject(ctx, tx, projectID); err != nil {
		return nil, err
	}
	material, err := activeMaterial(ctx, tx, materialID)
	if err != nil {
		return nil, err
	}

	inventoryID, err := receiveStock(ctx, tx, receipt{
		ProjectID:     projectID,
		MaterialID:    materialID,
		InventoryType: inventoryType,
		VendorID:      a.VendorID,
		Unit:          material.Unit,
		Quantity:      quantity,
		TotalPrice:    total,
		CreatedBy:     decidedBy,
	})
	if err != nil {
		return nil, err
	}

	_, err = tx.ExecContext(ctx,
		`UPDATE material_requests
		 SET approved_quantity = ?, cost_per_unit = ?, total_price = ?, vendor_id = ?, inventory_id = ?
		 WHERE id = ?`,
		quantity, a.CostPerUnit, total, a.VendorID, inventoryID, id,
	)
	if err != nil {
		return nil, fmt.Errorf("recording approval: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("committing approval: %w", err)
	}
	return GetMaterialRequest(ctx, db, id)
}

// RejectMaterialRequest turns down a pending restock or ask request.
func RejectMaterialRequest(ctx context.Context, db *sql.DB, id int64, reason string, decidedBy *int64) (*model.MaterialRequest, error) {
	if reason == "" {
		return nil, apperr.Invalid("reason is required")
	}

	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("beginning transaction: %w", err)
	}
	defer tx.Rollback()

	if err := decide(ctx, tx, "material_requests", "material request", id, model.RequestRejected, decidedBy); err != nil {
		return nil, err
	}
	if _, err := tx.ExecContext(ctx, `UPDATE material_requests SET rejection_reason = ? WHERE id = ?`, reason, id); err != nil {
		return nil, fmt.Errorf("recording rejection: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("committing rejection: %w", err)
	}
	return GetMaterialRequest(ctx, db, id)
}
