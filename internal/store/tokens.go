package store

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"time"
)

// RevokeToken stops the session identified by jti from authenticating again.
// The entry is kept until expiresAt, after which the token is rejected on its
// own and the row only takes up space.
func RevokeToken(ctx context.Context, db *sql.DB, jti string, userID int64, expiresAt time.Time) error {
	if _, err := db.ExecContext(ctx, `
		INSERT INTO revoked_tokens (jti, user_id, revoked_at, expires_at)
		VALUES (?, ?, ?, ?)
		ON CONFLICT (jti) DO NOTHING`,
		jti, userID, now(), expiresAt.UTC(),
	); err != nil {
		return fmt.Errorf("revoking session %s: %w", jti, err)
	}

	if n, err := PurgeRevokedTokens(ctx, db, now()); err != nil {
		slog.Warn("purging expired revocations", "error", err)
	} else if n > 0 {
		slog.Debug("purged expired revocations", "count", n)
	}
	return nil
}

// IsTokenRevoked reports whether the session has been logged out.
func IsTokenRevoked(ctx context.Context, db *sql.DB, jti string) (bool, error) {
	var revoked bool
	err := db.QueryRowContext(ctx,
		`SELECT EXISTS (SELECT 1 FROM revoked_tokens WHERE jti = ?)`, jti,
	).Scan(&revoked)
	if err != nil {
		return false, fmt.Errorf("looking up session %s: %w", jti, err)
	}
	return revoked, nil
}

// PurgeRevokedTokens drops revocations for tokens that expired before cutoff.
func PurgeRevokedTokens(ctx context.Context, db *sql.DB, cutoff time.Time) (int64, error) {
	res, err := db.ExecContext(ctx, `DELETE FROM revoked_tokens WHERE expires_at < ?`, cutoff.UTC())
	if err != nil {
		return 0, fmt.Errorf("purging revocations: %w", err)
	}
	return res.RowsAffected()
}
