package api

import (
	"database/sql"
	"log/slog"
	"net/http"
	"strings"

	"github.com/shopspring/decimal"

	"github.com/erazemk/gradilisce/internal/apperr"
	"github.com/erazemk/gradilisce/internal/events"
	"github.com/erazemk/gradilisce/internal/store"
)

// WalletHandler handles referral codes and wallet balances.
type WalletHandler struct {
	DB     *sql.DB
	Events events.Publisher
	// Reward is credited to a referrer each time their code is redeemed.
	Reward decimal.Decimal
}

// callerID returns the authenticated user's ID.
func callerID(r *http.Request) int64 {
	if claims := GetClaims(r.Context()); claims != nil {
		return claims.UserID
	}
	return 0
}

// ReferralCode handles GET /api/referral/code.
func (h *WalletHandler) ReferralCode(w http.ResponseWriter, r *http.Request) {
	code, err := store.GetReferralCode(r.Context(), h.DB, callerID(r))
	if err != nil {
		writeError(w, r, err)
		return
	}
	jsonResponse(w, http.StatusOK, map[string]string{"code": code})
}

// Redeem handles POST /api/referral/redeem.
func (h *WalletHandler) Redeem(w http.ResponseWriter, r *http.Request) {
	body, err := readBody(r)
	if err != nil {
		writeError(w, r, err)
		return
	}

	ref, err := store.RedeemReferral(r.Context(), h.DB, callerID(r), field(body, "code", "referral_code", "referralCode").String(), h.Reward)
	if err != nil {
		writeError(w, r, err)
		return
	}

	slog.Info("referral redeemed", "user", username(r), "referrer_id", ref.ReferrerID, "reward", ref.Reward)
	emit(r, h.Events, events.EntityReferral, events.ActionCreated, ref.ID)
	if ref.Reward.IsPositive() {
		emit(r, h.Events, events.EntityWallet, events.ActionUpdated, ref.ReferrerID)
	}
	jsonResponse(w, http.StatusCreated, ref)
}

// Referrals handles GET /api/referral.
func (h *WalletHandler) Referrals(w http.ResponseWriter, r *http.Request) {
	refs, err := store.ListReferrals(r.Context(), h.DB, callerID(r))
	if err != nil {
		writeError(w, r, err)
		return
	}
	jsonResponse(w, http.StatusOK, emptyIfNil(refs))
}

// Balance handles GET /api/wallet.
func (h *WalletHandler) Balance(w http.ResponseWriter, r *http.Request) {
	wallet, err := store.GetWallet(r.Context(), h.DB, callerID(r))
	if err != nil {
		writeError(w, r, err)
		return
	}
	jsonResponse(w, http.StatusOK, wallet)
}

// Transactions handles GET /api/wallet/transactions.
func (h *WalletHandler) Transactions(w http.ResponseWriter, r *http.Request) {
	txns, err := store.ListWalletTransactions(r.Context(), h.DB, callerID(r))
	if err != nil {
		writeError(w, r, err)
		return
	}
	jsonResponse(w, http.StatusOK, emptyIfNil(txns))
}

// Withdraw handles POST /api/wallet/withdraw. Overdrafts are refused with
// INSUFFICIENT_FUNDS.
func (h *WalletHandler) Withdraw(w http.ResponseWriter, r *http.Request) {
	body, err := readBody(r)
	if err != nil {
		writeError(w, r, err)
		return
	}
	amount, err := requiredDecimal(body, "amount")
	if err != nil {
		writeError(w, r, err)
		return
	}

	userID := callerID(r)
	txn, err := store.DebitWallet(r.Context(), h.DB, userID, amount, "withdrawal")
	if err != nil {
		writeError(w, r, err)
		return
	}

	slog.Info("wallet withdrawal", "user", username(r), "amount", amount)
	emit(r, h.Events, events.EntityWallet, events.ActionUpdated, userID)
	jsonResponse(w, http.StatusCreated, txn)
}

// Credit handles POST /api/wallet/credit (admin).
func (h *WalletHandler) Credit(w http.ResponseWriter, r *http.Request) {
	body, err := readBody(r)
	if err != nil {
		writeError(w, r, err)
		return
	}

	userID := field(body, "user_id", "userId", "id", "_id").Int()
	if userID <= 0 {
		jsonError(w, apperr.CodeInvalidArgument, "user_id required")
		return
	}
	amount, err := requiredDecimal(body, "amount")
	if err != nil {
		writeError(w, r, err)
		return
	}
	user, err := store.GetUser(r.Context(), h.DB, userID)
	if err != nil {
		writeError(w, r, err)
		return
	}
	if user == nil || user.DeletedAt != nil {
		writeError(w, r, apperr.NotFound("user"))
		return
	}

	reference := strings.TrimSpace(field(body, "reference").String())
	if reference == "" {
		reference = "credit:" + username(r)
	}
	txn, err := store.CreditWallet(r.Context(), h.DB, userID, amount, reference)
	if err != nil {
		writeError(w, r, err)
		return
	}

	slog.Info("wallet credited", "user", username(r), "target", user.Username, "amount", amount, "reference", reference)
	emit(r, h.Events, events.EntityWallet, events.ActionUpdated, userID)
	jsonResponse(w, http.StatusCreated, txn)
}
