package store

import (
	"context"
	"database/sql"
	"testing"
	"time"

	"github.com/erazemk/gradilisce/internal/db"
)

func revocationCount(t *testing.T, database *sql.DB) int {
	t.Helper()
	var n int
	if err := database.QueryRow(`SELECT COUNT(*) FROM revoked_tokens`).Scan(&n); err != nil {
		t.Fatal(err)
	}
	return n
}

func TestSessionRevocation(t *testing.T) {
	database := db.NewTestDB(t)
	ctx := context.Background()
	expires := time.Now().Add(time.Hour)

	// Logging out twice from the same session is harmless.
	for range 2 {
		if err := RevokeToken(ctx, database, "site-manager-phone", 7, expires); err != nil {
			t.Fatalf("RevokeToken: %v", err)
		}
	}

	for jti, want := range map[string]bool{
		"site-manager-phone":  true,
		"site-manager-laptop": false,
		"":                    false,
	} {
		got, err := IsTokenRevoked(ctx, database, jti)
		if err != nil {
			t.Fatalf("IsTokenRevoked(%q): %v", jti, err)
		}
		if got != want {
			t.Errorf("IsTokenRevoked(%q) = %v, want %v", jti, got, want)
		}
	}
	if n := revocationCount(t, database); n != 1 {
		t.Errorf("revocations = %d, want 1", n)
	}

	var userID int64
	if err := database.QueryRow(`SELECT user_id FROM revoked_tokens WHERE jti = ?`, "site-manager-phone").Scan(&userID); err != nil {
		t.Fatal(err)
	}
	if userID != 7 {
		t.Errorf("user_id = %d, want 7", userID)
	}
}

func TestRevokeTokenPurgesExpiredEntries(t *testing.T) {
	database := db.NewTestDB(t)
	ctx := context.Background()

	realNow := now
	t.Cleanup(func() { now = realNow })
	start := time.Date(2026, 3, 2, 7, 0, 0, 0, time.UTC)
	now = func() time.Time { return start }

	if err := RevokeToken(ctx, database, "morning-shift", 1, start.Add(8*time.Hour)); err != nil {
		t.Fatal(err)
	}

	// The next day the morning token has long expired on its own.
	now = func() time.Time { return start.Add(24 * time.Hour) }
	if err := RevokeToken(ctx, database, "next-day", 1, start.Add(32*time.Hour)); err != nil {
		t.Fatal(err)
	}

	if n := revocationCount(t, database); n != 1 {
		t.Fatalf("revocations = %d, want only the unexpired one", n)
	}
	if gone, _ := IsTokenRevoked(ctx, database, "morning-shift"); gone {
		t.Error("expired revocation should have been purged")
	}
	if kept, _ := IsTokenRevoked(ctx, database, "next-day"); !kept {
		t.Error("fresh revocation should be kept")
	}
}

func TestPurgeRevokedTokensCutoff(t *testing.T) {
	database := db.NewTestDB(t)
	ctx := context.Background()
	cutoff := time.Now().UTC()

	if _, err := database.Exec(`INSERT INTO revoked_tokens (jti, user_id, revoked_at, expires_at) VALUES
		('a', 1, ?, ?), ('b', 1, ?, ?), ('c', 2, ?, ?)`,
		cutoff, cutoff.Add(-2*time.Hour),
		cutoff, cutoff.Add(-time.Minute),
		cutoff, cutoff.Add(time.Hour),
	); err != nil {
		t.Fatal(err)
	}

	n, err := PurgeRevokedTokens(ctx, database, cutoff)
	if err != nil {
		t.Fatalf("PurgeRevokedTokens: %v", err)
	}
	if n != 2 {
		t.Errorf("purged %d, want 2", n)
	}
	if n, _ := PurgeRevokedTokens(ctx, database, cutoff); n != 0 {
		t.Errorf("second purge removed %d, want 0", n)
	}
	if n := revocationCount(t, database); n != 1 {
		t.Errorf("revocations = %d, want 1", n)
	}
}
