package store

import (
	"context"
	"database/sql"
	"fmt"
	"strconv"

	"github.com/shopspring/decimal"

	"github.com/erazemk/gradilisce/internal/apperr"
	"github.com/erazemk/gradilisce/internal/model"
)

// costScale is the number of decimal places kept for derived unit costs.
const costScale = 4

const inventorySelect = `SELECT inv.id, inv.project_id, inv.material_id, inv.vendor_id, inv.inventory_type,
        inv.quantity, inv.unit, inv.cost_per_unit, inv.total_price, inv.description,
        inv.created_by, inv.created_at, inv.updated_at,
        p.name AS project_name, m.name AS material_name, v.company_name AS vendor_name
 FROM site_inventory inv
 JOIN projects p ON p.id = inv.project_id
 JOIN materials m ON m.id = inv.material_id
 LEFT JOIN vendors v ON v.id = inv.vendor_id`

func scanInventory(s rowScanner) (*model.InventoryItem, error) {
	inv := &model.InventoryItem{}
	var description, vendorName sql.NullString
	err := s.Scan(&inv.ID, &inv.ProjectID, &inv.MaterialID, &inv.VendorID, &inv.InventoryType,
		&inv.Quantity, &inv.Unit, &inv.CostPerUnit, &inv.TotalPrice, &description,
		&inv.CreatedBy, &inv.CreatedAt, &inv.UpdatedAt,
		&inv.ProjectName, &inv.MaterialName, &vendorName)
	if err != nil {
		return nil, err
	}
	inv.Description = description.String
	inv.VendorName = vendorName.String
	return inv, nil
}

// StockInput describes stock arriving at a project.
type StockInput struct {
	ProjectID     int64
	MaterialID    int64
	VendorID      *int64
	InventoryType model.InventoryType
	Quantity      decimal.Decimal
	CostPerUnit   decimal.Decimal
	// TotalPrice defaults to Quantity × CostPerUnit.
	TotalPrice *decimal.Decimal
	// Unit defaults to the material's unit.
	Unit        string
	Description string
	CreatedBy   *int64
}

// InventoryFilter narrows ListInventory. Zero values match everything.
type InventoryFilter struct {
	ProjectID     int64
	MaterialID    int64
	InventoryType model.InventoryType
}

// AddStock adds stock to a project's inventory row, creating the row on first
// delivery. Repeated deliveries accumulate quantity and total price; the unit
// cost becomes the weighted average.
func AddStock(ctx context.Context, db *sql.DB, in StockInput) (*model.InventoryItem, error) {
	if !in.InventoryType.Valid() {
		return nil, apperr.Invalid("inventory_type must be 1 (reusable) or 2 (consumable)")
	}
	total, err := settlePrice(in.Quantity, in.CostPerUnit, in.TotalPrice)
	if err != nil {
		return nil, err
	}

	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("beginning transaction: %w", err)
	}
	defer tx.Rollback()

	if _, err := activeProject(ctx, tx, in.ProjectID); err != nil {
		return nil, err
	}
	material, err := activeMaterial(ctx, tx, in.MaterialID)
	if err != nil {
		return nil, err
	}
	if err := checkVendor(ctx, tx, in.VendorID); err != nil {
		return nil, err
	}

	unit := in.Unit
	if unit == "" {
		unit = material.Unit
	}

	id, err := receiveStock(ctx, tx, receipt{
		ProjectID:     in.ProjectID,
		MaterialID:    in.MaterialID,
		InventoryType: in.InventoryType,
		VendorID:      in.VendorID,
		Unit:          unit,
		Description:   in.Description,
		Quantity:      in.Quantity,
		TotalPrice:    total,
		CreatedBy:     in.CreatedBy,
	})
	if err != nil {
		return nil, err
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("committing stock addition: %w", err)
	}
	return GetInventoryItem(ctx, db, id)
}

// GetInventoryItem returns an inventory row by ID.
func GetInventoryItem(ctx context.Context, db *sql.DB, id int64) (*model.InventoryItem, error) {
	inv, err := scanInventory(db.QueryRowContext(ctx, inventorySelect+` WHERE inv.id = ?`, id))
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("getting inventory item: %w", err)
	}
	return inv, nil
}

// ListInventory returns inventory rows matching the filter.
func ListInventory(ctx context.Context, db *sql.DB, f InventoryFilter) ([]model.InventoryItem, error) {
	query := inventorySelect + ` WHERE 1=1`
	var args []any

	if f.ProjectID > 0 {
		query += ` AND inv.project_id = ?`
		args = append(args, f.ProjectID)
	}
	if f.MaterialID > 0 {
		query += ` AND inv.material_id = ?`
		args = append(args, f.MaterialID)
	}
	if f.InventoryType != 0 {
		query += ` AND inv.inventory_type = ?`
		args = append(args, f.InventoryType)
	}
	query += ` ORDER BY p.name, m.name`

	rows, err := db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("listing inventory: %w", err)
	}
	defer rows.Close()

	var items []model.InventoryItem
	for rows.Next() {
		inv, err := scanInventory(rows)
		if err != nil {
			return nil, fmt.Errorf("scanning inventory: %w", err)
		}
		items = append(items, *inv)
	}
	return items, rows.Err()
}

// UpdateInventoryItem edits descriptive fields. Quantities and prices only
// change through deliveries, transfers and usage.
func UpdateInventoryItem(ctx context.Context, db *sql.DB, id int64, unit, description string, vendorID *int64) error {
	if err := checkVendor(ctx, db, vendorID); err != nil {
		return err
	}
	_, err := db.ExecContext(ctx,
		`UPDATE site_inventory SET unit = ?, description = ?, vendor_id = ?, updated_at = ? WHERE id = ?`,
		unit, nullString(description), vendorID, now(), id,
	)
	if err != nil {
		return fmt.Errorf("updating inventory item: %w", err)
	}
	return nil
}

// DeleteInventoryItem removes an empty inventory row with its usage log and
// media metadata.
// Rows referenced by transfer or material requests are kept for history.
func DeleteInventoryItem(ctx context.Context, db *sql.DB, id int64) error {
	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("beginning transaction: %w", err)
	}
	defer tx.Rollback()

	var quantity decimal.Decimal
	err = tx.QueryRowContext(ctx, `SELECT quantity FROM site_inventory WHERE id = ?`, id).Scan(&quantity)
	if err == sql.ErrNoRows {
		return apperr.NotFound("inventory item")
	}
	if err != nil {
		return fmt.Errorf("checking inventory item: %w", err)
	}
	if quantity.IsPositive() {
		return apperr.Newf(apperr.CodeInvalidState, "cannot delete inventory item: still holds %s", quantity)
	}

	var refs int
	err = tx.QueryRowContext(ctx,
		`SELECT (SELECT COUNT(*) FROM transfer_requests WHERE inventory_id = ?)
		      + (SELECT COUNT(*) FROM material_requests WHERE inventory_id = ?)`, id, id,
	).Scan(&refs)
	if err != nil {
		return fmt.Errorf("checking inventory references: %w", err)
	}
	if refs > 0 {
		return apperr.New(apperr.CodeInvalidState, "cannot delete inventory item: referenced by requests")
	}

	if _, err := tx.ExecContext(ctx, `DELETE FROM inventory_usage WHERE inventory_id = ?`, id); err != nil {
		return fmt.Errorf("deleting usage log: %w", err)
	}
	_, err = tx.ExecContext(ctx,
		`DELETE FROM media WHERE owner_kind = ? AND owner_ref = ?`,
		model.MediaOwnerInventory, strconv.FormatInt(id, 10),
	)
	if err != nil {
		return fmt.Errorf("deleting inventory media: %w", err)
	}
	if _, err := tx.ExecContext(ctx, `DELETE FROM site_inventory WHERE id = ?`, id); err != nil {
		return fmt.Errorf("deleting inventory item: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("committing inventory deletion: %w", err)
	}
	return nil
}

// LogUsage records consumption of consumable stock and depletes the row.
func LogUsage(ctx context.Context, db *sql.DB, inventoryID int64, quantity decimal.Decimal, note string, usedBy *int64) (*model.UsageLog, error) {
	if err := positive("quantity", quantity); err != nil {
		return nil, err
	}

	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("beginning transaction: %w", err)
	}
	defer tx.Rollback()

	row, err := loadStockRow(ctx, tx, inventoryID)
	if err != nil {
		return nil, err
	}
	if row.InventoryType != model.InventoryConsumable {
		return nil, apperr.Invalid("usage can only be logged against consumable inventory")
	}
	if _, err := issueStock(ctx, tx, inventoryID, quantity, true); err != nil {
		return nil, err
	}

	usedAt := now()
	result, err := tx.ExecContext(ctx,
		`INSERT INTO inventory_usage (inventory_id, quantity, note, used_by, used_at) VALUES (?, ?, ?, ?, ?)`,
		inventoryID, quantity, nullString(note), usedBy, usedAt,
	)
	if err != nil {
		return nil, fmt.Errorf("recording usage: %w", err)
	}
	id, err := result.LastInsertId()
	if err != nil {
		return nil, fmt.Errorf("getting usage id: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("committing usage: %w", err)
	}

	return &model.UsageLog{
		ID:          id,
		InventoryID: inventoryID,
		Quantity:    quantity,
		Note:        note,
		UsedBy:      usedBy,
		UsedAt:      usedAt,
	}, nil
}

// ListUsage returns the usage log of an inventory row, newest first.
func ListUsage(ctx context.Context, db *sql.DB, inventoryID int64) ([]model.UsageLog, error) {
	rows, err := db.QueryContext(ctx,
		`SELECT id, inventory_id, quantity, note, used_by, used_at
		 FROM inventory_usage WHERE inventory_id = ? ORDER BY used_at DESC, id DESC`, inventoryID,
	)
	if err != nil {
		return nil, fmt.Errorf("listing usage: %w", err)
	}
	defer rows.Close()

	var logs []model.UsageLog
	for rows.Next() {
		var u model.UsageLog
		var note sql.NullString
		if err := rows.Scan(&u.ID, &u.InventoryID, &u.Quantity, &note, &u.UsedBy, &u.UsedAt); err != nil {
			return nil, fmt.Errorf("scanning usage: %w", err)
		}
		u.Note = note.String
		logs = append(logs, u)
	}
	return logs, rows.Err()
}

// receipt is stock arriving at a (project, material, type) row.
type receipt struct {
	ProjectID     int64
	MaterialID    int64
	InventoryType model.InventoryType
	VendorID      *int64
	Unit          string
	Description   string
	Quantity      decimal.Decimal
	TotalPrice    decimal.Decimal
	CreatedBy     *int64
}

// receiveStock upserts the destination row of a delivery and returns its ID.
func receiveStock(ctx context.Context, tx querier, r receipt) (int64, error) {
	var id int64
	var quantity, total decimal.Decimal
	err := tx.QueryRowContext(ctx,
		`SELECT id, quantity, total_price FROM site_inventory
		 WHERE project_id = ? AND material_id = ? AND inventory_type = ?`,
		r.ProjectID, r.MaterialID, r.InventoryType,
	).Scan(&id, &quantity, &total)

	ts := now()
	if err == sql.ErrNoRows {
		result, err := tx.ExecContext(ctx,
			`INSERT INTO site_inventory (project_id, material_id, vendor_id, inventory_type,
			        quantity, unit, cost_per_unit, total_price, description, created_by, created_at, updated_at)
			 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
			r.ProjectID, r.MaterialID, r.VendorID, r.InventoryType,
			r.Quantity, r.Unit, r.TotalPrice.DivRound(r.Quantity, costScale), r.TotalPrice,
			nullString(r.Description), r.CreatedBy, ts, ts,
		)
		if err != nil {
			return 0, fmt.Errorf("creating inventory row: %w", err)
		}
		return result.LastInsertId()
	}
	if err != nil {
		return 0, fmt.Errorf("checking inventory row: %w", err)
	}

	newQty := quantity.Add(r.Quantity)
	newTotal := total.Add(r.TotalPrice)
	_, err = tx.ExecContext(ctx,
		`UPDATE site_inventory
		 SET quantity = ?, total_price = ?, cost_per_unit = ?, vendor_id = COALESCE(?, vendor_id), updated_at = ?
		 WHERE id = ?`,
		newQty, newTotal, newTotal.DivRound(newQty, costScale), r.VendorID, ts, id,
	)
	if err != nil {
		return 0, fmt.Errorf("updating inventory row: %w", err)
	}
	return id, nil
}

// stockRow is the part of an inventory row needed to move stock out of it.
type stockRow struct {
	ID            int64
	ProjectID     int64
	MaterialID    int64
	InventoryType model.InventoryType
	Unit          string
	Quantity      decimal.Decimal
	CostPerUnit   decimal.Decimal
}

func loadStockRow(ctx context.Context, q querier, id int64) (*stockRow, error) {
	row := &stockRow{ID: id}
	err := q.QueryRowContext(ctx,
		`SELECT project_id, material_id, inventory_type, unit, quantity, cost_per_unit
		 FROM site_inventory WHERE id = ?`, id,
	).Scan(&row.ProjectID, &row.MaterialID, &row.InventoryType, &row.Unit, &row.Quantity, &row.CostPerUnit)
	if err == sql.ErrNoRows {
		return nil, apperr.NotFound("inventory item")
	}
	if err != nil {
		return nil, fmt.Errorf("getting inventory row: %w", err)
	}
	return row, nil
}

// issueStock takes quantity out of an inventory row at its current unit cost.
// With write false it only checks availability.
func issueStock(ctx context.Context, tx querier, inventoryID int64, quantity decimal.Decimal, write bool) (*stockRow, error) {
	row, err := loadStockRow(ctx, tx, inventoryID)
	if err != nil {
		return nil, err
	}
	if row.Quantity.LessThan(quantity) {
		return nil, apperr.Newf(apperr.CodeInsufficientStock,
			"insufficient quantity: have %s, need %s", row.Quantity, quantity)
	}
	if !write {
		return row, nil
	}

	remaining := row.Quantity.Sub(quantity)
	_, err = tx.ExecContext(ctx,
		`UPDATE site_inventory SET quantity = ?, total_price = ?, updated_at = ? WHERE id = ?`,
		remaining, remaining.Mul(row.CostPerUnit), now(), inventoryID,
	)
	if err != nil {
		return nil, fmt.Errorf("updating source inventory: %w", err)
	}
	row.Quantity = remaining
	return row, nil
}

// checkApproval validates the caller-supplied figures of an approval before
// any transaction is opened.
func checkApproval(a model.Approval) error {
	if a.Quantity != nil {
		if err := positive("quantity", *a.Quantity); err != nil {
			return err
		}
	}
	if err := nonNegative("cost_per_unit", a.CostPerUnit); err != nil {
		return err
	}
	if a.TotalPrice != nil {
		return nonNegative("total_price", *a.TotalPrice)
	}
	return nil
}

// settlePrice validates a priced quantity and resolves the default total.
func settlePrice(quantity, costPerUnit decimal.Decimal, totalPrice *decimal.Decimal) (decimal.Decimal, error) {
	if err := positive("quantity", quantity); err != nil {
		return decimal.Zero, err
	}
	if err := nonNegative("cost_per_unit", costPerUnit); err != nil {
		return decimal.Zero, err
	}
	if totalPrice == nil {
		return model.LineTotal(quantity, costPerUnit), nil
	}
	if err := nonNegative("total_price", *totalPrice); err != nil {
		return decimal.Zero, err
	}
	return *totalPrice, nil
}

func checkVendor(ctx context.Context, q querier, vendorID *int64) error {
	if vendorID == nil {
		return nil
	}
	var count int
	err := q.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM vendors WHERE id = ? AND deleted_at IS NULL`, *vendorID,
	).Scan(&count)
	if err != nil {
		return fmt.Errorf("checking vendor: %w", err)
	}
	if count == 0 {
		return apperr.NotFound("vendor")
	}
	return nil
}
