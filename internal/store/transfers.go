package store

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/shopspring/decimal"

	"github.com/erazemk/gradilisce/internal/apperr"
	"github.com/erazemk/gradilisce/internal/model"
)

const transferSelect = `SELECT t.id, t.inventory_id, t.from_project_id, t.to_project_id, t.quantity, t.note,
        t.status, t.requested_by, t.requested_at, t.decided_by, t.decided_at,
        t.approved_quantity, t.cost_per_unit, t.total_price,
        t.rejection_reason, t.rejection_type, t.rejection_audio_id,
        inv.material_id, m.name, inv.inventory_type, inv.unit, fp.name, tp.name
 FROM transfer_requests t
 JOIN site_inventory inv ON inv.id = t.inventory_id
 JOIN materials m ON m.id = inv.material_id
 JOIN projects fp ON fp.id = t.from_project_id
 JOIN projects tp ON tp.id = t.to_project_id`

func scanTransfer(s rowScanner) (*model.TransferRequest, error) {
	t := &model.TransferRequest{}
	var note, reason, rejectionType sql.NullString
	var approvedQty, cost, total decimal.NullDecimal
	err := s.Scan(&t.ID, &t.InventoryID, &t.FromProjectID, &t.ToProjectID, &t.Quantity, &note,
		&t.Status, &t.RequestedBy, &t.RequestedAt, &t.DecidedBy, &t.DecidedAt,
		&approvedQty, &cost, &total,
		&reason, &rejectionType, &t.RejectionAudioID,
		&t.MaterialID, &t.MaterialName, &t.InventoryType, &t.Unit, &t.FromProjectName, &t.ToProjectName)
	if err != nil {
		return nil, err
	}
	t.Note = note.String
	t.RejectionReason = reason.String
	t.RejectionType = rejectionType.String
	t.ApprovedQuantity = decimalPtr(approvedQty)
	t.CostPerUnit = decimalPtr(cost)
	t.TotalPrice = decimalPtr(total)
	return t, nil
}

// TransferInput describes a new transfer request.
type TransferInput struct {
	InventoryID int64
	ToProjectID int64
	Quantity    decimal.Decimal
	Note        string
	RequestedBy *int64
}

// TransferFilter narrows ListTransferRequests. ProjectID matches either end
// of the transfer.
type TransferFilter struct {
	ProjectID     int64
	InventoryType model.InventoryType
	Status        string
}

// Rejection is the reason a request was turned down.
type Rejection struct {
	Reason  string
	Type    string
	AudioID *int64
}

// Validate checks that the rejection carries what its type promises.
func (r Rejection) Validate() error {
	switch r.Type {
	case model.RejectionText:
		if r.Reason == "" {
			return apperr.Invalid("reason is required for a text rejection")
		}
	case model.RejectionAudio:
		if r.AudioID == nil {
			return apperr.Invalid("audio is required for an audio rejection")
		}
	case model.RejectionBoth:
		if r.Reason == "" || r.AudioID == nil {
			return apperr.Invalid("reason and audio are both required")
		}
	default:
		return apperr.Invalid("rejection_type must be text, audio or both")
	}
	return nil
}

// CreateTransferRequest opens a pending request to move stock from the
// inventory row's project to another project.
func CreateTransferRequest(ctx context.Context, db *sql.DB, in TransferInput) (*model.TransferRequest, error) {
	if err := positive("quantity", in.Quantity); err != nil {
		return nil, err
	}

	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("beginning transaction: %w", err)
	}
	defer tx.Rollback()

	row, err := issueStock(ctx, tx, in.InventoryID, in.Quantity, false)
	if err != nil {
		return nil, err
	}
	if row.ProjectID == in.ToProjectID {
		return nil, apperr.Invalid("destination project must differ from the source project")
	}
	if _, err := activeProject(ctx, tx, in.ToProjectID); err != nil {
		return nil, err
	}

	result, err := tx.ExecContext(ctx,
		`INSERT INTO transfer_requests (inventory_id, from_project_id, to_project_id, quantity, note, requested_by, requested_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?)`,
		in.InventoryID, row.ProjectID, in.ToProjectID, in.Quantity, nullString(in.Note), in.RequestedBy, now(),
	)
	if err != nil {
		return nil, fmt.Errorf("creating transfer request: %w", err)
	}
	id, err := result.LastInsertId()
	if err != nil {
		return nil, fmt.Errorf("getting transfer request id: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("committing transfer request: %w", err)
	}
	return GetTransferRequest(ctx, db, id)
}

// GetTransferRequest returns a transfer request by ID.
func GetTransferRequest(ctx context.Context, db *sql.DB, id int64) (*model.TransferRequest, error) {
	t, err := scanTransfer(db.QueryRowContext(ctx, transferSelect+` WHERE t.id = ?`, id))
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("getting transfer request: %w", err)
	}
	return t, nil
}

// ListTransferRequests returns transfer requests, newest first.
func ListTransferRequests(ctx context.Context, db *sql.DB, f TransferFilter) ([]model.TransferRequest, error) {
	query := transferSelect + ` WHERE 1=1`
	var args []any

	if f.ProjectID > 0 {
		query += ` AND (t.from_project_id = ? OR t.to_project_id = ?)`
		args = append(args, f.ProjectID, f.ProjectID)
	}
	if f.InventoryType != 0 {
		query += ` AND inv.inventory_type = ?`
		args = append(args, f.InventoryType)
	}
	if f.Status != "" {
		query += ` AND t.status = ?`
		args = append(args, f.Status)
	}
	query += ` ORDER BY t.requested_at DESC, t.id DESC`

	rows, err := db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("listing transfer requests: %w", err)
	}
	defer rows.Close()

	var transfers []model.TransferRequest
	for rows.Next() {
		t, err := scanTransfer(rows)
		if err != nil {
			return nil, fmt.Errorf("scanning transfer request: %w", err)
		}
		transfers = append(transfers, *t)
	}
	return transfers, rows.Err()
}

// ApproveTransferRequest settles a pending request: the approved quantity
// leaves the source row at its current cost and arrives at the destination
// row priced by the approval. Only the first decision on a request wins.
func ApproveTransferRequest(ctx context.Context, db *sql.DB, id int64, a model.Approval, decidedBy *int64) (*model.TransferRequest, error) {
	if err := checkApproval(a); err != nil {
		return nil, err
	}

	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("beginning transaction: %w", err)
	}
	defer tx.Rollback()

	if err := decide(ctx, tx, "transfer_requests", "transfer request", id, model.RequestApproved, decidedBy); err != nil {
		return nil, err
	}

	var inventoryID, toProjectID int64
	var requested decimal.Decimal
	err = tx.QueryRowContext(ctx,
		`SELECT inventory_id, to_project_id, quantity FROM transfer_requests WHERE id = ?`, id,
	).Scan(&inventoryID, &toProjectID, &requested)
	if err != nil {
		return nil, fmt.Errorf("loading transfer request: %w", err)
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

	src, err := issueStock(ctx, tx, inventoryID, quantity, true)
	if err != nil {
		return nil, err
	}
	if _, err := activeProject(ctx, tx, toProjectID); err != nil {
		return nil, err
	}
	_, err = receiveStock(ctx, tx, receipt{
		ProjectID:     toProjectID,
		MaterialID:    src.MaterialID,
		InventoryType: src.InventoryType,
		VendorID:      a.VendorID,
		Unit:          src.Unit,
		Quantity:      quantity,
		TotalPrice:    total,
		CreatedBy:     decidedBy,
	})
	if err != nil {
		return nil, err
	}

	_, err = tx.ExecContext(ctx,
		`UPDATE transfer_requests SET approved_quantity = ?, cost_per_unit = ?, total_price = ? WHERE id = ?`,
		quantity, a.CostPerUnit, total, id,
	)
	if err != nil {
		return nil, fmt.Errorf("recording approval: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("committing approval: %w", err)
	}
	return GetTransferRequest(ctx, db, id)
}

// RejectTransferRequest turns down a pending request. Stock is untouched.
func RejectTransferRequest(ctx context.Context, db *sql.DB, id int64, r Rejection, decidedBy *int64) (*model.TransferRequest, error) {
	if err := r.Validate(); err != nil {
		return nil, err
	}

	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("beginning transaction: %w", err)
	}
	defer tx.Rollback()

	if err := decide(ctx, tx, "transfer_requests", "transfer request", id, model.RequestRejected, decidedBy); err != nil {
		return nil, err
	}

	_, err = tx.ExecContext(ctx,
		`UPDATE transfer_requests SET rejection_reason = ?, rejection_type = ?, rejection_audio_id = ? WHERE id = ?`,
		nullString(r.Reason), r.Type, r.AudioID, id,
	)
	if err != nil {
		return nil, fmt.Errorf("recording rejection: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("committing rejection: %w", err)
	}
	return GetTransferRequest(ctx, db, id)
}

// decide moves a pending request to status. It must run before anything else
// in the transaction so concurrent deciders serialise on the write lock; the
// loser sees a non-pending row and gets INVALID_STATE.
func decide(ctx context.Context, tx querier, table, entity string, id int64, status string, decidedBy *int64) error {
	result, err := tx.ExecContext(ctx,
		`UPDATE `+table+` SET status = ?, decided_by = ?, decided_at = ? WHERE id = ? AND status = 'pending'`,
		status, decidedBy, now(), id,
	)
	if err != nil {
		return fmt.Errorf("deciding %s: %w", entity, err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("deciding %s: %w", entity, err)
	}
	if n == 1 {
		return nil
	}

	var current string
	err = tx.QueryRowContext(ctx, `SELECT status FROM `+table+` WHERE id = ?`, id).Scan(&current)
	if err == sql.ErrNoRows {
		return apperr.NotFound(entity)
	}
	if err != nil {
		return fmt.Errorf("checking %s: %w", entity, err)
	}
	return apperr.Newf(apperr.CodeInvalidState, "%s is already %s", entity, current)
}

// approvedQuantity resolves the quantity an approver settles on. It may lower
// the requested quantity but never raise it.
func approvedQuantity(requested decimal.Decimal, override *decimal.Decimal) (decimal.Decimal, error) {
	if override == nil {
		return requested, nil
	}
	if err := positive("quantity", *override); err != nil {
		return decimal.Zero, err
	}
	if override.GreaterThan(requested) {
		return decimal.Zero, apperr.Invalid("approved quantity cannot exceed the requested " + requested.String())
	}
	return *override, nil
}
