package model

import (
	"time"

	"github.com/shopspring/decimal"
)

// Wallet transaction kinds.
const (
	WalletCredit = "credit"
	WalletDebit  = "debit"
)

// Wallet is a user's balance.
type Wallet struct {
	UserID  int64           `json:"user_id"`
	Balance decimal.Decimal `json:"balance"`
}

// WalletTransaction is one balance movement.
type WalletTransaction struct {
	ID        int64           `json:"id"`
	UserID    int64           `json:"user_id"`
	Amount    decimal.Decimal `json:"amount"`
	Kind      string          `json:"kind"`
	Reference string          `json:"reference,omitempty"`
	CreatedAt time.Time       `json:"created_at"`
}

// Referral records that ReferredUserID signed up with ReferrerID's code.
type Referral struct {
	ID             int64           `json:"id"`
	ReferrerID     int64           `json:"referrer_id"`
	ReferredUserID int64           `json:"referred_user_id"`
	ReferredName   string          `json:"referred_username,omitempty"`
	Reward         decimal.Decimal `json:"reward"`
	CreatedAt      time.Time       `json:"created_at"`
}
