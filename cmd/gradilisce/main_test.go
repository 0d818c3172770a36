package main

import (
	"bytes"
	"context"
	"log/slog"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/erazemk/gradilisce/internal/auth"
	"github.com/erazemk/gradilisce/internal/store"
)

func TestLevelRouterSplitsBySeverity(t *testing.T) {
	var out, errOut bytes.Buffer
	logger := slog.New(&levelRouter{
		level:  slog.LevelInfo,
		stdout: slog.NewTextHandler(&out, nil),
		stderr: slog.NewTextHandler(&errOut, nil),
	}).With("component", "test")

	logger.Debug("hidden")
	logger.Info("routine")
	logger.Error("broken")

	assert.NotContains(t, out.String(), "hidden")
	assert.Contains(t, out.String(), "routine")
	assert.Contains(t, out.String(), "component=test")
	assert.NotContains(t, out.String(), "broken")
	assert.Contains(t, errOut.String(), "broken")
}

func TestFlagsOverrideConfig(t *testing.T) {
	t.Setenv("GRADILISCE_ADDR", ":7000")
	dbPath := filepath.Join(t.TempDir(), "site.sqlite3")

	root := newRootCmd()
	serve, _, err := root.Find([]string{"serve"})
	require.NoError(t, err)
	require.NoError(t, serve.ParseFlags([]string{"--db", dbPath, "--log-level", "debug"}))

	f := &flags{configPath: "", dbPath: dbPath, logLevel: "debug"}
	cfg, err := f.load(serve)
	require.NoError(t, err)
	assert.Equal(t, dbPath, cfg.DBPath)
	assert.Equal(t, ":7000", cfg.Addr, "unset flags leave the environment value")
	assert.Equal(t, "debug", cfg.LogLevel)
}

func TestFlagsRejectBadLevel(t *testing.T) {
	root := newRootCmd()
	serve, _, err := root.Find([]string{"serve"})
	require.NoError(t, err)
	require.NoError(t, serve.ParseFlags([]string{"--log-level", "loud"}))

	_, err = (&flags{logLevel: "loud"}).load(serve)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "loud")
}

func TestInitDatabaseCreatesAdmin(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "site.sqlite3")

	database, password, err := initDatabase(ctx, path, "boss")
	require.NoError(t, err)
	defer database.Close()
	assert.Len(t, password, 16)

	u, err := store.GetUserByUsername(ctx, database, "boss")
	require.NoError(t, err)
	require.NotNil(t, u)
	assert.Equal(t, "admin", u.Role)
	assert.True(t, auth.CheckPassword(u.PasswordHash, password))
}

func TestGeneratePassword(t *testing.T) {
	a, err := generatePassword(24)
	require.NoError(t, err)
	b, err := generatePassword(24)
	require.NoError(t, err)
	assert.Len(t, a, 24)
	assert.NotEqual(t, a, b)
	assert.False(t, strings.ContainsAny(a, " \t\n"))

	_, err = generatePassword(0)
	assert.Error(t, err)
}
