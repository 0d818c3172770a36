package store

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/erazemk/gradilisce/internal/model"
)

const vendorCols = `id, company_name, contact_name, phone, email, created_at, deleted_at`

func scanVendor(s rowScanner) (*model.Vendor, error) {
	v := &model.Vendor{}
	var contact, phone, email sql.NullString
	if err := s.Scan(&v.ID, &v.CompanyName, &contact, &phone, &email, &v.CreatedAt, &v.DeletedAt); err != nil {
		return nil, err
	}
	v.ContactName = contact.String
	v.Phone = phone.String
	v.Email = email.String
	return v, nil
}

// CreateVendor creates a new vendor.
func CreateVendor(ctx context.Context, db *sql.DB, v model.Vendor) (*model.Vendor, error) {
	result, err := db.ExecContext(ctx,
		`INSERT INTO vendors (company_name, contact_name, phone, email) VALUES (?, ?, ?, ?)`,
		v.CompanyName, nullString(v.ContactName), nullString(v.Phone), nullString(v.Email),
	)
	if err != nil {
		return nil, fmt.Errorf("creating vendor: %w", err)
	}

	id, err := result.LastInsertId()
	if err != nil {
		return nil, fmt.Errorf("getting vendor id: %w", err)
	}

	return GetVendor(ctx, db, id)
}

// GetVendor returns a vendor by ID.
func GetVendor(ctx context.Context, db *sql.DB, id int64) (*model.Vendor, error) {
	v, err := scanVendor(db.QueryRowContext(ctx,
		`SELECT `+vendorCols+` FROM vendors WHERE id = ?`, id,
	))
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("getting vendor: %w", err)
	}
	return v, nil
}

// ListVendors returns all non-deleted vendors.
func ListVendors(ctx context.Context, db *sql.DB) ([]model.Vendor, error) {
	rows, err := db.QueryContext(ctx,
		`SELECT `+vendorCols+` FROM vendors WHERE deleted_at IS NULL ORDER BY company_name`,
	)
	if err != nil {
		return nil, fmt.Errorf("listing vendors: %w", err)
	}
	defer rows.Close()

	var vendors []model.Vendor
	for rows.Next() {
		v, err := scanVendor(rows)
		if err != nil {
			return nil, fmt.Errorf("scanning vendor: %w", err)
		}
		vendors = append(vendors, *v)
	}
	return vendors, rows.Err()
}

// UpdateVendor replaces a vendor's details.
func UpdateVendor(ctx context.Context, db *sql.DB, v model.Vendor) error {
	_, err := db.ExecContext(ctx,
		`UPDATE vendors SET company_name = ?, contact_name = ?, phone = ?, email = ?
		 WHERE id = ? AND deleted_at IS NULL`,
		v.CompanyName, nullString(v.ContactName), nullString(v.Phone), nullString(v.Email), v.ID,
	)
	if err != nil {
		return fmt.Errorf("updating vendor: %w", err)
	}
	return nil
}

// DeleteVendor soft-deletes a vendor. Inventory rows keep their reference.
func DeleteVendor(ctx context.Context, db *sql.DB, id int64) error {
	_, err := db.ExecContext(ctx,
		`UPDATE vendors SET deleted_at = CURRENT_TIMESTAMP WHERE id = ? AND deleted_at IS NULL`,
		id,
	)
	if err != nil {
		return fmt.Errorf("deleting vendor: %w", err)
	}
	return nil
}
