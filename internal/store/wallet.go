package store

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/shopspring/decimal"

	"github.com/erazemk/gradilisce/internal/apperr"
	"github.com/erazemk/gradilisce/internal/model"
)

// GetWallet returns a user's balance. Users without a wallet have zero.
func GetWallet(ctx context.Context, db *sql.DB, userID int64) (*model.Wallet, error) {
	w := &model.Wallet{UserID: userID}
	err := db.QueryRowContext(ctx, `SELECT balance FROM wallets WHERE user_id = ?`, userID).Scan(&w.Balance)
	if err == sql.ErrNoRows {
		return w, nil
	}
	if err != nil {
		return nil, fmt.Errorf("getting wallet: %w", err)
	}
	return w, nil
}

// CreditWallet adds amount to a user's balance.
func CreditWallet(ctx context.Context, db *sql.DB, userID int64, amount decimal.Decimal, reference string) (*model.WalletTransaction, error) {
	return applyWallet(ctx, db, userID, amount, model.WalletCredit, reference)
}

// DebitWallet takes amount from a user's balance, refusing overdrafts.
func DebitWallet(ctx context.Context, db *sql.DB, userID int64, amount decimal.Decimal, reference string) (*model.WalletTransaction, error) {
	return applyWallet(ctx, db, userID, amount, model.WalletDebit, reference)
}

// ListWalletTransactions returns a user's balance movements, newest first.
func ListWalletTransactions(ctx context.Context, db *sql.DB, userID int64) ([]model.WalletTransaction, error) {
	rows, err := db.QueryContext(ctx,
		`SELECT id, user_id, amount, kind, reference, created_at
		 FROM wallet_transactions WHERE user_id = ? ORDER BY created_at DESC, id DESC`, userID,
	)
	if err != nil {
		return nil, fmt.Errorf("listing wallet transactions: %w", err)
	}
	defer rows.Close()

	var txns []model.WalletTransaction
	for rows.Next() {
		var t model.WalletTransaction
		var reference sql.NullString
		if err := rows.Scan(&t.ID, &t.UserID, &t.Amount, &t.Kind, &reference, &t.CreatedAt); err != nil {
			return nil, fmt.Errorf("scanning wallet transaction: %w", err)
		}
		t.Reference = reference.String
		txns = append(txns, t)
	}
	return txns, rows.Err()
}

func applyWallet(ctx context.Context, db *sql.DB, userID int64, amount decimal.Decimal, kind, reference string) (*model.WalletTransaction, error) {
	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("beginning transaction: %w", err)
	}
	defer tx.Rollback()

	t, err := walletTx(ctx, tx, userID, amount, kind, reference)
	if err != nil {
		return nil, err
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("committing wallet %s: %w", kind, err)
	}
	return t, nil
}

// walletTx moves a user's balance inside an open transaction.
func walletTx(ctx context.Context, tx querier, userID int64, amount decimal.Decimal, kind, reference string) (*model.WalletTransaction, error) {
	if err := positive("amount", amount); err != nil {
		return nil, err
	}

	if _, err := tx.ExecContext(ctx, `INSERT OR IGNORE INTO wallets (user_id) VALUES (?)`, userID); err != nil {
		return nil, fmt.Errorf("opening wallet: %w", err)
	}
	var balance decimal.Decimal
	if err := tx.QueryRowContext(ctx, `SELECT balance FROM wallets WHERE user_id = ?`, userID).Scan(&balance); err != nil {
		return nil, fmt.Errorf("getting wallet: %w", err)
	}

	switch kind {
	case model.WalletCredit:
		balance = balance.Add(amount)
	case model.WalletDebit:
		if balance.LessThan(amount) {
			return nil, apperr.Newf(apperr.CodeInsufficientFunds, "insufficient funds: balance is %s", balance)
		}
		balance = balance.Sub(amount)
	default:
		return nil, fmt.Errorf("unknown wallet transaction kind %q", kind)
	}

	if _, err := tx.ExecContext(ctx, `UPDATE wallets SET balance = ? WHERE user_id = ?`, balance, userID); err != nil {
		return nil, fmt.Errorf("updating wallet: %w", err)
	}

	t := &model.WalletTransaction{
		UserID:    userID,
		Amount:    amount,
		Kind:      kind,
		Reference: reference,
		CreatedAt: now(),
	}
	result, err := tx.ExecContext(ctx,
		`INSERT INTO wallet_transactions (user_id, amount, kind, reference, created_at) VALUES (?, ?, ?, ?, ?)`,
		userID, amount, kind, nullString(reference), t.CreatedAt,
	)
	if err != nil {
		return nil, fmt.Errorf("recording wallet transaction: %w", err)
	}
	if t.ID, err = result.LastInsertId(); err != nil {
		return nil, fmt.Errorf("getting wallet transaction id: %w", err)
	}
	return t, nil
}
