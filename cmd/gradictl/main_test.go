package main

import (
	"bytes"
	"context"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strconv"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/erazemk/gradilisce/internal/api"
	"github.com/erazemk/gradilisce/internal/auth"
	"github.com/erazemk/gradilisce/internal/db"
	"github.com/erazemk/gradilisce/internal/media"
	"github.com/erazemk/gradilisce/internal/model"
	"github.com/erazemk/gradilisce/internal/store"
)

type site struct {
	url      string
	token    string
	transfer *model.TransferRequest
}

func newSite(t *testing.T) site {
	t.Helper()
	ctx := context.Background()
	database := db.NewTestDB(t)
	blobs, err := media.NewDiskStore(t.TempDir())
	require.NoError(t, err)
	srv := httptest.NewServer(api.NewRouter(api.Options{DB: database, JWTSecret: "secret", Media: blobs}))
	t.Cleanup(srv.Close)

	hash, err := auth.HashPassword("password")
	require.NoError(t, err)
	admin, err := store.CreateUser(ctx, database, "admin", hash, model.RoleAdmin)
	require.NoError(t, err)
	token, err := auth.GenerateToken("secret", admin.ID, admin.Username, admin.Role)
	require.NoError(t, err)

	from, err := store.CreateProject(ctx, database, "Depot", "")
	require.NoError(t, err)
	to, err := store.CreateProject(ctx, database, "Tower", "")
	require.NoError(t, err)
	m, err := store.CreateMaterial(ctx, database, "Rebar", "kg", "")
	require.NoError(t, err)
	item, err := store.AddStock(ctx, database, store.StockInput{
		ProjectID:     from.ID,
		MaterialID:    m.ID,
		InventoryType: model.InventoryConsumable,
		Quantity:      decimal.NewFromInt(1200),
		CostPerUnit:   decimal.NewFromInt(3),
	})
	require.NoError(t, err)
	tr, err := store.CreateTransferRequest(ctx, database, store.TransferInput{
		InventoryID: item.ID,
		ToProjectID: to.ID,
		Quantity:    decimal.NewFromInt(10),
	})
	require.NoError(t, err)

	return site{url: srv.URL, token: token, transfer: tr}
}

func run(t *testing.T, s site, args ...string) (string, error) {
	t.Helper()
	var out bytes.Buffer
	root := newRootCmd()
	root.SetOut(&out)
	root.SetErr(&out)
	root.SetArgs(append([]string{"--server", s.url, "--token", s.token}, args...))
	err := root.Execute()
	return out.String(), err
}

func TestLogin(t *testing.T) {
	s := newSite(t)
	s.token = ""
	out, err := run(t, s, "login", "admin", "--password", "password")
	require.NoError(t, err)
	assert.Contains(t, out, "export GRADILISCE_TOKEN=")
}

func TestRequiresToken(t *testing.T) {
	t.Setenv(TokenEnv, "")
	s := newSite(t)
	s.token = ""
	_, err := run(t, s, "transfers", "list")
	require.Error(t, err)
	assert.Contains(t, err.Error(), TokenEnv)
}

func TestInventoryList(t *testing.T) {
	s := newSite(t)
	out, err := run(t, s, "inventory", "list", "--type", "consumable")
	require.NoError(t, err)
	assert.Contains(t, out, "Rebar")
	assert.Contains(t, out, "1 rows, stock value 3,600.00")
}

func TestApproveDefaultsToRequestedQuantity(t *testing.T) {
	s := newSite(t)
	id := strconv.FormatInt(s.transfer.ID, 10)

	out, err := run(t, s, "transfers", "approve", id, "--cost", "5")
	require.NoError(t, err)
	assert.Contains(t, out, "approved: 10 kg of Rebar to Tower for 50.00")

	_, err = run(t, s, "transfers", "reject", id, "--reason", "late")
	require.Error(t, err)

	out, err = run(t, s, "transfers", "list", "--status", "approved")
	require.NoError(t, err)
	assert.Contains(t, out, "1 requests")
}

func TestRejectWithAudio(t *testing.T) {
	s := newSite(t)
	audio := filepath.Join(t.TempDir(), "note.ogg")
	require.NoError(t, os.WriteFile(audio, []byte("OggS voice"), 0o600))

	out, err := run(t, s, "transfers", "reject", strconv.FormatInt(s.transfer.ID, 10), "--reason", "wrong grade", "--audio", audio)
	require.NoError(t, err)
	assert.Contains(t, out, "rejected (both)")
}

func TestPastWorkUpload(t *testing.T) {
	s := newSite(t)
	dir := t.TempDir()
	plan := filepath.Join(dir, "plan.pdf")
	require.NoError(t, os.WriteFile(plan, []byte("%PDF-1.4 plan"), 0o600))

	out, err := run(t, s, "pastwork", "upload", "--name", "Villa Bled", plan)
	require.NoError(t, err)
	assert.Contains(t, out, "uploaded "+plan)
	assert.Contains(t, out, `"Villa Bled" created with 1 files`)

	_, err = run(t, s, "pastwork", "upload", plan)
	assert.Error(t, err, "name is required")
}

func TestParseInventoryType(t *testing.T) {
	for in, want := range map[string]model.InventoryType{
		"":           0,
		"1":          model.InventoryReusable,
		"reusable":   model.InventoryReusable,
		"consumable": model.InventoryConsumable,
	} {
		got, err := parseInventoryType(in)
		require.NoError(t, err, in)
		assert.Equal(t, want, got, in)
	}
	_, err := parseInventoryType("borrowed")
	assert.Error(t, err)
}
