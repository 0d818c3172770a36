package store

import (
	"context"
	"database/sql"
	"fmt"
	"strconv"
	"strings"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/erazemk/gradilisce/internal/apperr"
	"github.com/erazemk/gradilisce/internal/model"
)

const referralCodeLength = 8

// GetReferralCode returns the user's referral code, creating one on first use.
func GetReferralCode(ctx context.Context, db *sql.DB, userID int64) (string, error) {
	for range 5 {
		code, err := referralCode(ctx, db, userID)
		if err != nil || code != "" {
			return code, err
		}

		candidate := strings.ToUpper(strings.ReplaceAll(uuid.NewString(), "-", "")[:referralCodeLength])
		_, err = db.ExecContext(ctx,
			`INSERT OR IGNORE INTO referral_codes (user_id, code) VALUES (?, ?)`, userID, candidate,
		)
		if err != nil {
			return "", fmt.Errorf("creating referral code: %w", err)
		}
	}
	return "", fmt.Errorf("creating referral code: no unique code after retries")
}

func referralCode(ctx context.Context, db *sql.DB, userID int64) (string, error) {
	var code string
	err := db.QueryRowContext(ctx, `SELECT code FROM referral_codes WHERE user_id = ?`, userID).Scan(&code)
	if err == sql.ErrNoRows {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("getting referral code: %w", err)
	}
	return code, nil
}

// RedeemReferral records that userID was referred by the owner of code and
// credits the referrer's wallet with reward. Each user redeems at most once.
func RedeemReferral(ctx context.Context, db *sql.DB, userID int64, code string, reward decimal.Decimal) (*model.Referral, error) {
	code = strings.ToUpper(strings.TrimSpace(code))
	if code == "" {
		return nil, apperr.Invalid("code is required")
	}

	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("beginning transaction: %w", err)
	}
	defer tx.Rollback()

	var referrerID int64
	err = tx.QueryRowContext(ctx, `SELECT user_id FROM referral_codes WHERE code = ?`, code).Scan(&referrerID)
	if err == sql.ErrNoRows {
		return nil, apperr.NotFound("referral code")
	}
	if err != nil {
		return nil, fmt.Errorf("looking up referral code: %w", err)
	}
	if referrerID == userID {
		return nil, apperr.Invalid("cannot redeem your own referral code")
	}

	var redeemed int
	err = tx.QueryRowContext(ctx, `SELECT COUNT(*) FROM referrals WHERE referred_user_id = ?`, userID).Scan(&redeemed)
	if err != nil {
		return nil, fmt.Errorf("checking referrals: %w", err)
	}
	if redeemed > 0 {
		return nil, apperr.New(apperr.CodeInvalidState, "a referral code has already been redeemed")
	}

	ref := &model.Referral{
		ReferrerID:     referrerID,
		ReferredUserID: userID,
		Reward:         reward,
		CreatedAt:      now(),
	}
	result, err := tx.ExecContext(ctx,
		`INSERT INTO referrals (referrer_id, referred_user_id, reward, created_at) VALUES (?, ?, ?, ?)`,
		referrerID, userID, reward, ref.CreatedAt,
	)
	if err != nil {
		return nil, fmt.Errorf("recording referral: %w", err)
	}
	if ref.ID, err = result.LastInsertId(); err != nil {
		return nil, fmt.Errorf("getting referral id: %w", err)
	}

	if reward.IsPositive() {
		if _, err := walletTx(ctx, tx, referrerID, reward, model.WalletCredit, "referral:"+strconv.FormatInt(userID, 10)); err != nil {
			return nil, err
		}
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("committing referral: %w", err)
	}
	return ref, nil
}

// ListReferrals returns the referrals a user made, newest first.
func ListReferrals(ctx context.Context, db *sql.DB, referrerID int64) ([]model.Referral, error) {
	rows, err := db.QueryContext(ctx,
		`SELECT r.id, r.referrer_id, r.referred_user_id, u.username, r.reward, r.created_at
		 FROM referrals r JOIN users u ON u.id = r.referred_user_id
		 WHERE r.referrer_id = ? ORDER BY r.created_at DESC, r.id DESC`, referrerID,
	)
	if err != nil {
		return nil, fmt.Errorf("listing referrals: %w", err)
	}
	defer rows.Close()

	var refs []model.Referral
	for rows.Next() {
		var r model.Referral
		if err := rows.Scan(&r.ID, &r.ReferrerID, &r.ReferredUserID, &r.ReferredName, &r.Reward, &r.CreatedAt); err != nil {
			return nil, fmt.Errorf("scanning referral: %w", err)
		}
		refs = append(refs, r)
	}
	return refs, rows.Err()
}
