package store

import (
	"context"
	"database/sql"
	"time"

	"github.com/shopspring/decimal"

	"github.com/erazemk/gradilisce/internal/apperr"
	"github.com/erazemk/gradilisce/internal/model"
)

// querier is satisfied by both *sql.DB and *sql.Tx.
type querier interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// rowScanner is satisfied by *sql.Row and *sql.Rows.
type rowScanner interface {
	Scan(dest ...any) error
}

// now is the clock used for timestamps written from Go.
var now = func() time.Time { return time.Now().UTC() }

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}

func nullDecimal(d *decimal.Decimal) decimal.NullDecimal {
	if d == nil {
		return decimal.NullDecimal{}
	}
	return decimal.NullDecimal{Decimal: *d, Valid: true}
}

func decimalPtr(d decimal.NullDecimal) *decimal.Decimal {
	if !d.Valid {
		return nil
	}
	v := d.Decimal
	return &v
}

// positive checks a quantity or amount that must be greater than zero.
func positive(name string, d decimal.Decimal) error {
	if !model.DecimalInBounds(d) {
		return apperr.Invalid(name + " is out of range")
	}
	if !d.IsPositive() {
		return apperr.Invalid(name + " must be positive")
	}
	return nil
}

// nonNegative checks a price that may be zero.
func nonNegative(name string, d decimal.Decimal) error {
	if !model.DecimalInBounds(d) {
		return apperr.Invalid(name + " is out of range")
	}
	if d.IsNegative() {
		return apperr.Invalid(name + " must not be negative")
	}
	return nil
}
