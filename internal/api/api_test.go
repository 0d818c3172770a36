package api

import (
	"bytes"
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"image"
	"image/color"
	"image/png"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"net/textproto"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"github.com/erazemk/gradilisce/internal/apperr"
	"github.com/erazemk/gradilisce/internal/auth"
	"github.com/erazemk/gradilisce/internal/db"
	"github.com/erazemk/gradilisce/internal/events"
	"github.com/erazemk/gradilisce/internal/media"
	"github.com/erazemk/gradilisce/internal/model"
	"github.com/erazemk/gradilisce/internal/store"
)

const testJWTSecret = "test-secret"

// recorder collects published events.
type recorder struct {
	mu     sync.Mutex
	events []events.Event
}

func (r *recorder) Publish(_ context.Context, e events.Event) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, e)
	return nil
}

func (r *recorder) find(typ string) (events.Event, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, e := range r.events {
		if e.Type == typ {
			return e, true
		}
	}
	return events.Event{}, false
}

type testEnv struct {
	server *httptest.Server
	db     *sql.DB
	token  string
	events *recorder
}

func newTestEnv(t *testing.T, opts Options) *testEnv {
	t.Helper()
	database := db.NewTestDB(t)
	blobs, err := media.NewDiskStore(t.TempDir())
	if err != nil {
		t.Fatalf("NewDiskStore: %v", err)
	}
	rec := &recorder{}

	opts.DB = database
	opts.JWTSecret = testJWTSecret
	opts.Media = blobs
	opts.Events = rec
	if opts.ReferralReward.IsZero() {
		opts.ReferralReward = decimal.NewFromInt(100)
	}

	server := httptest.NewServer(NewRouter(opts))
	t.Cleanup(server.Close)

	env := &testEnv{server: server, db: database, events: rec}
	createUser(t, database, "admin", model.RoleAdmin)
	env.token = env.login(t, "admin", "password")
	return env
}

func setupTestServer(t *testing.T) *testEnv {
	return newTestEnv(t, Options{})
}

func createUser(t *testing.T, database *sql.DB, name, role string) *model.User {
	t.Helper()
	hash, err := auth.HashPassword("password")
	if err != nil {
		t.Fatalf("HashPassword: %v", err)
	}
	u, err := store.CreateUser(context.Background(), database, name, hash, role)
	if err != nil {
		t.Fatalf("CreateUser(%s): %v", name, err)
	}
	return u
}

func (env *testEnv) login(t *testing.T, username, password string) string {
	t.Helper()
	resp := env.do(t, http.MethodPost, "/api/auth/login", "", map[string]string{"username": username, "password": password})
	if resp.StatusCode != http.StatusOK {
		resp.Body.Close()
		t.Fatalf("login %s failed: %d", username, resp.StatusCode)
	}
	var body loginResponse
	decode(t, resp, &body)
	if body.Token == "" {
		t.Fatal("empty token from login")
	}
	return body.Token
}

// userToken creates a user with the given role and logs them in.
func (env *testEnv) userToken(t *testing.T, name, role string) string {
	t.Helper()
	createUser(t, env.db, name, role)
	return env.login(t, name, "password")
}

// do sends body as JSON. A string body is sent verbatim.
func (env *testEnv) do(t *testing.T, method, path, token string, body any) *http.Response {
	t.Helper()
	var reader io.Reader = http.NoBody
	switch b := body.(type) {
	case nil:
	case string:
		reader = bytes.NewReader([]byte(b))
	default:
		data, err := json.Marshal(b)
		if err != nil {
			t.Fatalf("marshal: %v", err)
		}
		reader = bytes.NewReader(data)
	}

	req, err := http.NewRequest(method, env.server.URL+path, reader)
	if err != nil {
		t.Fatalf("new request: %v", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("%s %s: %v", method, path, err)
	}
	return resp
}

type filePart struct {
	field, filename, contentType string
	data                         []byte
}

func (env *testEnv) doMultipart(t *testing.T, path, token string, fields map[string]string, parts ...filePart) *http.Response {
	t.Helper()
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	for k, v := range fields {
		if err := mw.WriteField(k, v); err != nil {
			t.Fatalf("WriteField: %v", err)
		}
	}
	for _, p := range parts {
		h := make(textproto.MIMEHeader)
		h.Set("Content-Disposition", fmt.Sprintf(`form-data; name=%q; filename=%q`, p.field, p.filename))
		h.Set("Content-Type", p.contentType)
		w, err := mw.CreatePart(h)
		if err != nil {
			t.Fatalf("CreatePart: %v", err)
		}
		w.Write(p.data)
	}
	mw.Close()

	req, err := http.NewRequest(http.MethodPost, env.server.URL+path, &buf)
	if err != nil {
		t.Fatalf("new request: %v", err)
	}
	req.Header.Set("Content-Type", mw.FormDataContentType())
	req.Header.Set("Authorization", "Bearer "+token)
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("POST %s: %v", path, err)
	}
	return resp
}

func decode(t *testing.T, resp *http.Response, v any) {
	t.Helper()
	defer resp.Body.Close()
	if err := json.NewDecoder(resp.Body).Decode(v); err != nil {
		t.Fatalf("decoding response: %v", err)
	}
}

func expectStatus(t *testing.T, resp *http.Response, want int) {
	t.Helper()
	if resp.StatusCode != want {
		body, _ := io.ReadAll(resp.Body)
		resp.Body.Close()
		t.Fatalf("%s %s: expected %d, got %d: %s", resp.Request.Method, resp.Request.URL.Path, want, resp.StatusCode, body)
	}
}

func expectError(t *testing.T, resp *http.Response, status int, code apperr.Code) {
	t.Helper()
	expectStatus(t, resp, status)
	var body errorBody
	decode(t, resp, &body)
	if body.Code != code {
		t.Errorf("error code = %q, want %q (message %q)", body.Code, code, body.Message)
	}
	if body.Message == "" {
		t.Error("error message is empty")
	}
}

func dec(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}

type siteFixture struct {
	from, to *model.Project
	material *model.Material
	source   *model.InventoryItem
}

// seedStock creates two projects and puts qty of a consumable at the first.
func (env *testEnv) seedStock(t *testing.T, qty string) siteFixture {
	t.Helper()
	ctx := context.Background()
	from, err := store.CreateProject(ctx, env.db, "Depot", "Industrijska 1")
	if err != nil {
		t.Fatalf("CreateProject: %v", err)
	}
	to, err := store.CreateProject(ctx, env.db, "Tower", "Dunajska 5")
	if err != nil {
		t.Fatalf("CreateProject: %v", err)
	}
	m, err := store.CreateMaterial(ctx, env.db, "Cement", "bag", "")
	if err != nil {
		t.Fatalf("CreateMaterial: %v", err)
	}
	item, err := store.AddStock(ctx, env.db, store.StockInput{
		ProjectID:     from.ID,
		MaterialID:    m.ID,
		InventoryType: model.InventoryConsumable,
		Quantity:      dec(qty),
		CostPerUnit:   dec("4"),
	})
	if err != nil {
		t.Fatalf("AddStock: %v", err)
	}
	return siteFixture{from: from, to: to, material: m, source: item}
}

func (env *testEnv) requestTransfer(t *testing.T, token string, f siteFixture, qty string) model.TransferRequest {
	t.Helper()
	resp := env.do(t, http.MethodPost, "/api/site-inventory/transfer", token, map[string]any{
		"inventory_id":  f.source.ID,
		"to_project_id": f.to.ID,
		"quantity":      qty,
		"note":          "for the second floor",
	})
	expectStatus(t, resp, http.StatusCreated)
	var tr model.TransferRequest
	decode(t, resp, &tr)
	return tr
}

func tinyPNG(t *testing.T) []byte {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, 8, 8))
	for x := range 8 {
		img.Set(x, x, color.RGBA{R: 200, A: 255})
	}
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		t.Fatalf("png.Encode: %v", err)
	}
	return buf.Bytes()
}

func TestLoginEndpoint(t *testing.T) {
	env := setupTestServer(t)

	resp := env.do(t, http.MethodPost, "/api/auth/login", "", map[string]string{"username": "admin", "password": "wrong"})
	expectError(t, resp, http.StatusUnauthorized, apperr.CodeUnauthenticated)

	resp = env.do(t, http.MethodPost, "/api/auth/login", "", map[string]string{"username": "admin"})
	expectError(t, resp, http.StatusBadRequest, apperr.CodeInvalidArgument)
}

func TestLoginThrottled(t *testing.T) {
	env := newTestEnv(t, Options{Limiter: auth.NewMemoryLimiter(2, time.Minute)})

	for range 2 {
		resp := env.do(t, http.MethodPost, "/api/auth/login", "", map[string]string{"username": "admin", "password": "wrong"})
		expectStatus(t, resp, http.StatusUnauthorized)
		resp.Body.Close()
	}

	// Even the right password is refused until the window passes.
	resp := env.do(t, http.MethodPost, "/api/auth/login", "", map[string]string{"username": "admin", "password": "password"})
	expectError(t, resp, http.StatusTooManyRequests, apperr.CodeRateLimited)
}

func TestLogoutRevokesToken(t *testing.T) {
	env := setupTestServer(t)

	resp := env.do(t, http.MethodGet, "/api/projects", env.token, nil)
	expectStatus(t, resp, http.StatusOK)
	resp.Body.Close()

	resp = env.do(t, http.MethodPost, "/api/auth/logout", env.token, nil)
	expectStatus(t, resp, http.StatusOK)
	resp.Body.Close()

	resp = env.do(t, http.MethodGet, "/api/projects", env.token, nil)
	expectError(t, resp, http.StatusUnauthorized, apperr.CodeUnauthenticated)
}

func TestUnauthenticatedAccess(t *testing.T) {
	env := setupTestServer(t)

	resp := env.do(t, http.MethodGet, "/api/site-inventory", "", nil)
	expectError(t, resp, http.StatusUnauthorized, apperr.CodeUnauthenticated)

	resp = env.do(t, http.MethodGet, "/api/site-inventory", "not-a-jwt", nil)
	expectError(t, resp, http.StatusUnauthorized, apperr.CodeUnauthenticated)
}

func TestRolePermissions(t *testing.T) {
	env := setupTestServer(t)
	userToken := env.userToken(t, "worker", model.RoleUser)

	resp := env.do(t, http.MethodPost, "/api/projects", userToken, map[string]string{"name": "Bridge"})
	expectError(t, resp, http.StatusForbidden, apperr.CodePermissionDenied)

	resp = env.do(t, http.MethodGet, "/api/users", userToken, nil)
	expectError(t, resp, http.StatusForbidden, apperr.CodePermissionDenied)

	resp = env.do(t, http.MethodPost, "/api/projects", env.token, map[string]string{"name": "Bridge"})
	expectStatus(t, resp, http.StatusCreated)
	resp.Body.Close()
}

func TestUserRoles(t *testing.T) {
	env := setupTestServer(t)
	userToken := env.userToken(t, "worker", model.RoleUser)

	resp := env.do(t, http.MethodGet, "/api/builder/user-roles", userToken, nil)
	expectStatus(t, resp, http.StatusOK)
	var roles []model.RoleInfo
	decode(t, resp, &roles)
	if len(roles) != 3 || roles[0].Role != model.RoleAdmin {
		t.Errorf("roles = %+v", roles)
	}
}

func TestUnknownRoute(t *testing.T) {
	env := setupTestServer(t)
	resp := env.do(t, http.MethodGet, "/api/nope", env.token, nil)
	expectError(t, resp, http.StatusNotFound, apperr.CodeNotFound)
}

func TestVendorFieldSpellings(t *testing.T) {
	env := setupTestServer(t)

	for _, body := range []string{
		`{"company_name": "Gradbeništvo Novak"}`,
		`{"company_Name": "Gradbeništvo Novak"}`,
		`{"companyName": "Gradbeništvo Novak"}`,
	} {
		resp := env.do(t, http.MethodPost, "/api/vendors", env.token, body)
		expectStatus(t, resp, http.StatusCreated)
		var v model.Vendor
		decode(t, resp, &v)
		if v.CompanyName != "Gradbeništvo Novak" {
			t.Errorf("%s: company_name = %q", body, v.CompanyName)
		}
	}

	resp := env.do(t, http.MethodPost, "/api/vendors", env.token, `{"contact_name": "Ana"}`)
	expectError(t, resp, http.StatusBadRequest, apperr.CodeInvalidArgument)
}

func TestSiteInventoryAddStock(t *testing.T) {
	env := setupTestServer(t)
	f := env.seedStock(t, "10")

	// A second delivery accumulates and averages the unit cost.
	resp := env.do(t, http.MethodPost, "/api/site-inventory", env.token, map[string]any{
		"project_id":     f.from.ID,
		"material_id":    f.material.ID,
		"inventory_type": model.InventoryConsumable,
		"quantity":       10,
		"cost_per_unit":  "6",
	})
	expectStatus(t, resp, http.StatusCreated)
	var item model.InventoryItem
	decode(t, resp, &item)
	if item.ID != f.source.ID {
		t.Errorf("row id = %d, want %d", item.ID, f.source.ID)
	}
	if !item.Quantity.Equal(dec("20")) || !item.TotalPrice.Equal(dec("100")) || !item.CostPerUnit.Equal(dec("5")) {
		t.Errorf("row = qty %s total %s cost %s, want 20/100/5", item.Quantity, item.TotalPrice, item.CostPerUnit)
	}

	resp = env.do(t, http.MethodGet, fmt.Sprintf("/api/site-inventory?project_id=%d&inventory_type=2", f.from.ID), env.token, nil)
	expectStatus(t, resp, http.StatusOK)
	var items []model.InventoryItem
	decode(t, resp, &items)
	if len(items) != 1 {
		t.Errorf("expected 1 row, got %d", len(items))
	}
}

func TestUsageLogging(t *testing.T) {
	env := setupTestServer(t)
	f := env.seedStock(t, "10")
	userToken := env.userToken(t, "worker", model.RoleUser)
	path := fmt.Sprintf("/api/site-inventory/%d/usage", f.source.ID)

	resp := env.do(t, http.MethodPost, path, userToken, map[string]string{"quantity": "3", "note": "foundation"})
	expectStatus(t, resp, http.StatusCreated)
	resp.Body.Close()

	resp = env.do(t, http.MethodPost, path, userToken, map[string]string{"quantity": "8"})
	expectError(t, resp, http.StatusUnprocessableEntity, apperr.CodeInsufficientStock)

	resp = env.do(t, http.MethodGet, path, userToken, nil)
	expectStatus(t, resp, http.StatusOK)
	var logs []model.UsageLog
	decode(t, resp, &logs)
	if len(logs) != 1 || !logs[0].Quantity.Equal(dec("3")) {
		t.Errorf("usage logs = %+v", logs)
	}
}

func TestUpdateInventoryKeepsOmittedFields(t *testing.T) {
	env := setupTestServer(t)
	f := env.seedStock(t, "10")
	vendor, err := store.CreateVendor(context.Background(), env.db, model.Vendor{CompanyName: "Kovinar"})
	if err != nil {
		t.Fatalf("CreateVendor: %v", err)
	}
	path := fmt.Sprintf("/api/site-inventory/%d", f.source.ID)

	resp := env.do(t, http.MethodPut, path, env.token, map[string]any{
		"description": "north yard, pallet 3",
		"vendor_id":   vendor.ID,
	})
	expectStatus(t, resp, http.StatusOK)
	resp.Body.Close()

	// Changing only the unit leaves the description and vendor alone.
	resp = env.do(t, http.MethodPut, path, env.token, map[string]any{"unit": "kg"})
	expectStatus(t, resp, http.StatusOK)
	var item model.InventoryItem
	decode(t, resp, &item)
	if item.Unit != "kg" || item.Description != "north yard, pallet 3" {
		t.Errorf("unit %q description %q", item.Unit, item.Description)
	}
	if item.VendorID == nil || *item.VendorID != vendor.ID {
		t.Errorf("vendor_id = %v, want %d", item.VendorID, vendor.ID)
	}

	resp = env.do(t, http.MethodPut, path, env.token, `{"vendor_id": null, "description": ""}`)
	expectStatus(t, resp, http.StatusOK)
	item = model.InventoryItem{}
	decode(t, resp, &item)
	if item.VendorID != nil || item.Description != "" || item.Unit != "kg" {
		t.Errorf("after clearing: %+v", item)
	}
}

func TestTransferFlow(t *testing.T) {
	env := setupTestServer(t)
	f := env.seedStock(t, "20")
	userToken := env.userToken(t, "worker", model.RoleUser)

	tr := env.requestTransfer(t, userToken, f, "8")
	if tr.Status != model.RequestPending || tr.FromProjectID != f.from.ID || tr.ToProjectID != f.to.ID {
		t.Fatalf("transfer = %+v", tr)
	}

	approvePath := fmt.Sprintf("/api/site-inventory/transfer/%d/approve", tr.ID)

	// Site staff cannot decide.
	resp := env.do(t, http.MethodPost, approvePath, userToken, map[string]string{"cost_per_unit": "5"})
	expectError(t, resp, http.StatusForbidden, apperr.CodePermissionDenied)

	// Missing cost leaves the request pending.
	resp = env.do(t, http.MethodPost, approvePath, env.token, map[string]string{"quantity": "8"})
	expectError(t, resp, http.StatusBadRequest, apperr.CodeInvalidArgument)

	resp = env.do(t, http.MethodPost, approvePath, env.token, map[string]any{"costPerUnit": 5, "quantity": "6", "totalPrice": "27.50"})
	expectStatus(t, resp, http.StatusOK)
	var approved model.TransferRequest
	decode(t, resp, &approved)
	if approved.Status != model.RequestApproved {
		t.Errorf("status = %q, want approved", approved.Status)
	}
	if approved.ApprovedQuantity == nil || !approved.ApprovedQuantity.Equal(dec("6")) {
		t.Errorf("approved quantity = %v, want 6", approved.ApprovedQuantity)
	}
	if approved.TotalPrice == nil || !approved.TotalPrice.Equal(dec("27.5")) {
		t.Errorf("total price = %v, want 27.5", approved.TotalPrice)
	}

	// Stock moved.
	resp = env.do(t, http.MethodGet, fmt.Sprintf("/api/projects/%d/inventory", f.to.ID), env.token, nil)
	expectStatus(t, resp, http.StatusOK)
	var dest []model.InventoryItem
	decode(t, resp, &dest)
	if len(dest) != 1 || !dest[0].Quantity.Equal(dec("6")) {
		t.Errorf("destination inventory = %+v", dest)
	}
	resp = env.do(t, http.MethodGet, fmt.Sprintf("/api/site-inventory/%d", f.source.ID), env.token, nil)
	expectStatus(t, resp, http.StatusOK)
	var source model.InventoryItem
	decode(t, resp, &source)
	if !source.Quantity.Equal(dec("14")) {
		t.Errorf("source quantity = %s, want 14", source.Quantity)
	}

	// A decided request cannot be decided again.
	resp = env.do(t, http.MethodPost, approvePath, env.token, map[string]string{"cost_per_unit": "5"})
	expectError(t, resp, http.StatusConflict, apperr.CodeInvalidState)
	resp = env.do(t, http.MethodPost, fmt.Sprintf("/api/site-inventory/transfer/%d/reject", tr.ID), env.token,
		map[string]string{"reason": "too late", "rejection_type": "text"})
	expectError(t, resp, http.StatusConflict, apperr.CodeInvalidState)

	// Listing filters by either end of the transfer.
	resp = env.do(t, http.MethodGet, fmt.Sprintf("/api/site-inventory/transfer?project_id=%d&status=approved", f.to.ID), env.token, nil)
	expectStatus(t, resp, http.StatusOK)
	var list []model.TransferRequest
	decode(t, resp, &list)
	if len(list) != 1 || list[0].ID != tr.ID {
		t.Errorf("filtered list = %+v", list)
	}

	e, ok := env.events.find("transfer_request_approved")
	if !ok {
		t.Fatal("no transfer_request_approved event")
	}
	if e.Actor != "admin" || len(e.ProjectIDs) != 2 || e.ProjectIDs[0] != f.from.ID || e.ProjectIDs[1] != f.to.ID {
		t.Errorf("event = %+v", e)
	}
}

func TestApproveDefaultsTotalPrice(t *testing.T) {
	env := setupTestServer(t)
	f := env.seedStock(t, "10")
	tr := env.requestTransfer(t, env.token, f, "10")

	resp := env.do(t, http.MethodPost, fmt.Sprintf("/api/site-inventory/transfer/%d/approve", tr.ID), env.token,
		map[string]string{"cost_per_unit": "5"})
	expectStatus(t, resp, http.StatusOK)
	var approved model.TransferRequest
	decode(t, resp, &approved)
	if approved.TotalPrice == nil || !approved.TotalPrice.Equal(dec("50")) {
		t.Errorf("total price = %v, want 50", approved.TotalPrice)
	}
}

func TestTransferExceedingStock(t *testing.T) {
	env := setupTestServer(t)
	f := env.seedStock(t, "5")

	resp := env.do(t, http.MethodPost, "/api/site-inventory/transfer", env.token, map[string]any{
		"inventory_id":  f.source.ID,
		"to_project_id": f.to.ID,
		"quantity":      "6",
	})
	expectError(t, resp, http.StatusUnprocessableEntity, apperr.CodeInsufficientStock)

	resp = env.do(t, http.MethodPost, "/api/site-inventory/transfer", env.token, map[string]any{
		"inventory_id":  f.source.ID,
		"to_project_id": f.from.ID,
		"quantity":      "1",
	})
	expectError(t, resp, http.StatusBadRequest, apperr.CodeInvalidArgument)
}

func TestRejectsOutOfRangeDecimals(t *testing.T) {
	env := setupTestServer(t)
	f := env.seedStock(t, "10")

	for _, qty := range []any{"1e-300000000", "1e300000000", "0.000000001", json.Number("1e-300000000")} {
		resp := env.do(t, http.MethodPost, "/api/site-inventory/transfer", env.token, map[string]any{
			"inventory_id":  f.source.ID,
			"to_project_id": f.to.ID,
			"quantity":      qty,
		})
		expectError(t, resp, http.StatusBadRequest, apperr.CodeInvalidArgument)
	}

	tr := env.requestTransfer(t, env.token, f, "2")
	resp := env.do(t, http.MethodPost, fmt.Sprintf("/api/site-inventory/transfer/%d/approve", tr.ID), env.token, map[string]any{
		"cost_per_unit": "5",
		"quantity":      "1e-300000000",
	})
	expectError(t, resp, http.StatusBadRequest, apperr.CodeInvalidArgument)

	got := env.do(t, http.MethodGet, fmt.Sprintf("/api/site-inventory/transfer/%d", tr.ID), env.token, nil)
	var after model.TransferRequest
	decode(t, got, &after)
	if after.Status != model.RequestPending {
		t.Errorf("status after rejected approval = %q, want pending", after.Status)
	}
}

func TestConcurrentApprovals(t *testing.T) {
	env := setupTestServer(t)
	f := env.seedStock(t, "20")
	tr := env.requestTransfer(t, env.token, f, "5")
	path := fmt.Sprintf("/api/site-inventory/transfer/%d/approve", tr.ID)

	const approvers = 5
	statuses := make(chan int, approvers)
	var wg sync.WaitGroup
	for range approvers {
		wg.Add(1)
		go func() {
			defer wg.Done()
			data, _ := json.Marshal(map[string]string{"cost_per_unit": "4"})
			req, _ := http.NewRequest(http.MethodPost, env.server.URL+path, bytes.NewReader(data))
			req.Header.Set("Authorization", "Bearer "+env.token)
			resp, err := http.DefaultClient.Do(req)
			if err != nil {
				statuses <- 0
				return
			}
			resp.Body.Close()
			statuses <- resp.StatusCode
		}()
	}
	wg.Wait()
	close(statuses)

	counts := map[int]int{}
	for s := range statuses {
		counts[s]++
	}
	if counts[http.StatusOK] != 1 || counts[http.StatusConflict] != approvers-1 {
		t.Errorf("status counts = %v, want one 200 and %d 409", counts, approvers-1)
	}

	resp := env.do(t, http.MethodGet, fmt.Sprintf("/api/site-inventory/%d", f.source.ID), env.token, nil)
	expectStatus(t, resp, http.StatusOK)
	var source model.InventoryItem
	decode(t, resp, &source)
	if !source.Quantity.Equal(dec("15")) {
		t.Errorf("source quantity = %s, want 15 after a single approval", source.Quantity)
	}
}

func TestRejectTransferWithAudio(t *testing.T) {
	env := setupTestServer(t)
	f := env.seedStock(t, "20")
	tr := env.requestTransfer(t, env.token, f, "5")
	path := fmt.Sprintf("/api/site-inventory/transfer/%d/reject", tr.ID)

	// An audio rejection without the recording is refused.
	resp := env.doMultipart(t, path, env.token, map[string]string{"rejection_type": "audio"})
	expectError(t, resp, http.StatusBadRequest, apperr.CodeInvalidArgument)

	recording := append([]byte("OggS"), bytes.Repeat([]byte{1}, 64)...)
	resp = env.doMultipart(t, path, env.token,
		map[string]string{"reason": "wrong material", "rejection_type": "both"},
		filePart{field: "audio", filename: "reason.ogg", contentType: "audio/ogg", data: recording},
	)
	expectStatus(t, resp, http.StatusOK)
	var rejected model.TransferRequest
	decode(t, resp, &rejected)
	if rejected.Status != model.RequestRejected || rejected.RejectionType != model.RejectionBoth {
		t.Fatalf("rejected = %+v", rejected)
	}
	if rejected.RejectionReason != "wrong material" || rejected.RejectionAudioID == nil {
		t.Fatalf("rejection = %q audio %v", rejected.RejectionReason, rejected.RejectionAudioID)
	}

	resp = env.do(t, http.MethodGet, fmt.Sprintf("/api/media/%d", *rejected.RejectionAudioID), env.token, nil)
	expectStatus(t, resp, http.StatusOK)
	got, _ := io.ReadAll(resp.Body)
	resp.Body.Close()
	if !bytes.Equal(got, recording) {
		t.Error("streamed recording differs from upload")
	}
	if ct := resp.Header.Get("Content-Type"); ct != "audio/ogg" {
		t.Errorf("Content-Type = %q, want audio/ogg", ct)
	}

	// Rejection audio is part of the request history.
	resp = env.do(t, http.MethodDelete, fmt.Sprintf("/api/media/%d", *rejected.RejectionAudioID), env.token, nil)
	expectError(t, resp, http.StatusConflict, apperr.CodeInvalidState)

	// Source stock is untouched.
	item, err := store.GetInventoryItem(context.Background(), env.db, f.source.ID)
	if err != nil {
		t.Fatalf("GetInventoryItem: %v", err)
	}
	if !item.Quantity.Equal(dec("20")) {
		t.Errorf("source quantity = %s, want 20", item.Quantity)
	}
}

func TestRejectTransferJSON(t *testing.T) {
	env := setupTestServer(t)
	f := env.seedStock(t, "20")
	tr := env.requestTransfer(t, env.token, f, "5")
	path := fmt.Sprintf("/api/site-inventory/transfer/%d/reject", tr.ID)

	resp := env.do(t, http.MethodPost, path, env.token, map[string]string{"rejection_type": "text"})
	expectError(t, resp, http.StatusBadRequest, apperr.CodeInvalidArgument)

	resp = env.do(t, http.MethodPost, path, env.token, map[string]string{"reason": "not needed"})
	expectStatus(t, resp, http.StatusOK)
	var rejected model.TransferRequest
	decode(t, resp, &rejected)
	if rejected.RejectionType != model.RejectionText || rejected.RejectionReason != "not needed" {
		t.Errorf("rejected = %+v", rejected)
	}
}

func TestMaterialRequestFlow(t *testing.T) {
	env := setupTestServer(t)
	f := env.seedStock(t, "10")
	userToken := env.userToken(t, "worker", model.RoleUser)

	resp := env.do(t, http.MethodPost, "/api/site-inventory/ask-material", userToken, map[string]any{
		"project_id":     f.to.ID,
		"material_id":    f.material.ID,
		"inventory_type": model.InventoryConsumable,
		"quantity":       "12",
	})
	expectStatus(t, resp, http.StatusCreated)
	var ask model.MaterialRequest
	decode(t, resp, &ask)
	if ask.Kind != model.MaterialRequestAsk || ask.Status != model.RequestPending {
		t.Fatalf("ask = %+v", ask)
	}

	resp = env.do(t, http.MethodPost, "/api/site-inventory/restock", userToken, map[string]any{
		"inventory_id": f.source.ID,
		"quantity":     "4",
	})
	expectStatus(t, resp, http.StatusCreated)
	var restock model.MaterialRequest
	decode(t, resp, &restock)

	resp = env.do(t, http.MethodPost, fmt.Sprintf("/api/site-inventory/requests/%d/approve", ask.ID), env.token,
		map[string]string{"cost_per_unit": "3"})
	expectStatus(t, resp, http.StatusOK)
	var approved model.MaterialRequest
	decode(t, resp, &approved)
	if approved.TotalPrice == nil || !approved.TotalPrice.Equal(dec("36")) || approved.InventoryID == nil {
		t.Errorf("approved = %+v", approved)
	}

	resp = env.do(t, http.MethodPost, fmt.Sprintf("/api/site-inventory/requests/%d/reject", restock.ID), env.token, map[string]string{})
	expectError(t, resp, http.StatusBadRequest, apperr.CodeInvalidArgument)
	resp = env.do(t, http.MethodPost, fmt.Sprintf("/api/site-inventory/requests/%d/reject", restock.ID), env.token,
		map[string]string{"reason": "use the tower stock"})
	expectStatus(t, resp, http.StatusOK)
	resp.Body.Close()

	resp = env.do(t, http.MethodGet, "/api/site-inventory/requests?status=pending", env.token, nil)
	expectStatus(t, resp, http.StatusOK)
	var pending []model.MaterialRequest
	decode(t, resp, &pending)
	if len(pending) != 0 {
		t.Errorf("expected no pending requests, got %d", len(pending))
	}
}

func TestPastWorkFlow(t *testing.T) {
	env := setupTestServer(t)
	ownerToken := env.userToken(t, "builder", model.RoleUser)
	otherToken := env.userToken(t, "other", model.RoleUser)

	resp := env.do(t, http.MethodPost, "/api/my-past-work/start", ownerToken, nil)
	expectStatus(t, resp, http.StatusCreated)
	var started map[string]string
	decode(t, resp, &started)
	key := started["project_key"]
	if key == "" {
		t.Fatal("empty project key")
	}

	photo := filePart{field: "file", filename: "facade.png", contentType: "image/png", data: tinyPNG(t)}

	resp = env.doMultipart(t, "/api/my-past-work/upload", otherToken, map[string]string{"project_key": key}, photo)
	expectError(t, resp, http.StatusForbidden, apperr.CodePermissionDenied)

	resp = env.doMultipart(t, "/api/my-past-work/upload", ownerToken, map[string]string{"project_key": "unknown"}, photo)
	expectError(t, resp, http.StatusNotFound, apperr.CodeNotFound)

	resp = env.doMultipart(t, "/api/my-past-work/upload", ownerToken, map[string]string{"project_key": key}, photo)
	expectStatus(t, resp, http.StatusCreated)
	var uploaded model.Media
	decode(t, resp, &uploaded)
	if uploaded.Kind != model.MediaPhoto || uploaded.MIME != "image/jpeg" || uploaded.Filename != "facade.jpg" {
		t.Errorf("uploaded = %+v", uploaded)
	}

	resp = env.doMultipart(t, "/api/my-past-work/upload", ownerToken, map[string]string{"project_key": key},
		filePart{field: "file", filename: "plan.pdf", contentType: "application/pdf", data: []byte("%PDF-1.4 plan")})
	expectStatus(t, resp, http.StatusCreated)
	resp.Body.Close()

	resp = env.do(t, http.MethodPost, "/api/my-past-work/create", ownerToken, map[string]string{"project_key": key})
	expectError(t, resp, http.StatusBadRequest, apperr.CodeInvalidArgument)

	resp = env.do(t, http.MethodPost, "/api/my-past-work/create", ownerToken, map[string]string{
		"projectKey": key,
		"name":       "Villa Bled",
		"address":    "Cesta svobode 1",
	})
	expectStatus(t, resp, http.StatusCreated)
	var created model.PastProject
	decode(t, resp, &created)
	if created.Status != model.PastProjectCreated || len(created.Media) != 2 {
		t.Fatalf("created = %+v", created)
	}

	// Keys are single use.
	resp = env.do(t, http.MethodPost, "/api/my-past-work/create", ownerToken, map[string]string{"project_key": key, "name": "Again"})
	expectError(t, resp, http.StatusConflict, apperr.CodeInvalidState)

	resp = env.do(t, http.MethodGet, "/api/my-past-work", otherToken, nil)
	expectStatus(t, resp, http.StatusOK)
	var others []model.PastProject
	decode(t, resp, &others)
	if len(others) != 0 {
		t.Errorf("other user sees %d past projects", len(others))
	}

	resp = env.do(t, http.MethodGet, "/api/my-past-work", env.token, nil)
	expectStatus(t, resp, http.StatusOK)
	var all []model.PastProject
	decode(t, resp, &all)
	if len(all) != 1 {
		t.Errorf("admin sees %d past projects, want 1", len(all))
	}

	resp = env.do(t, http.MethodDelete, fmt.Sprintf("/api/my-past-work/%d", created.ID), ownerToken, nil)
	expectStatus(t, resp, http.StatusOK)
	resp.Body.Close()

	resp = env.do(t, http.MethodGet, fmt.Sprintf("/api/media/%d", uploaded.ID), ownerToken, nil)
	expectError(t, resp, http.StatusNotFound, apperr.CodeNotFound)
}

func TestUploadTooLarge(t *testing.T) {
	env := newTestEnv(t, Options{MaxUpload: 1024})

	resp := env.do(t, http.MethodPost, "/api/my-past-work/start", env.token, nil)
	var started map[string]string
	decode(t, resp, &started)

	resp = env.doMultipart(t, "/api/my-past-work/upload", env.token, map[string]string{"project_key": started["project_key"]},
		filePart{field: "file", filename: "big.bin", contentType: "application/octet-stream", data: bytes.Repeat([]byte{7}, 4096)})
	expectError(t, resp, http.StatusBadRequest, apperr.CodeInvalidArgument)
}

func TestNotesVisibility(t *testing.T) {
	env := setupTestServer(t)
	f := env.seedStock(t, "1")
	authorToken := env.userToken(t, "author", model.RoleUser)
	otherToken := env.userToken(t, "other", model.RoleUser)

	reminder := time.Date(2026, 3, 1, 8, 0, 0, 0, time.UTC)
	resp := env.do(t, http.MethodPost, "/api/note", authorToken, map[string]any{
		"title":       "Order rebar",
		"body":        "Call the supplier",
		"reminder_at": reminder.Format(time.RFC3339),
		"project_ids": []int64{f.from.ID, f.to.ID},
	})
	expectStatus(t, resp, http.StatusCreated)
	var note model.Note
	decode(t, resp, &note)
	if len(note.ProjectIDs) != 2 {
		t.Errorf("project ids = %v", note.ProjectIDs)
	}

	path := fmt.Sprintf("/api/note/%d", note.ID)
	resp = env.do(t, http.MethodGet, path, otherToken, nil)
	expectError(t, resp, http.StatusNotFound, apperr.CodeNotFound)

	resp = env.do(t, http.MethodGet, path, env.token, nil)
	expectStatus(t, resp, http.StatusOK)
	resp.Body.Close()

	resp = env.doMultipart(t, path+"/attachments", authorToken, nil,
		filePart{field: "file", filename: "memo.webm", contentType: "audio/webm", data: []byte("\x1aE\xdf\xa3 voice")})
	expectStatus(t, resp, http.StatusCreated)
	resp.Body.Close()

	resp = env.do(t, http.MethodGet, path, authorToken, nil)
	expectStatus(t, resp, http.StatusOK)
	var withFiles model.Note
	decode(t, resp, &withFiles)
	if len(withFiles.Attachments) != 1 || withFiles.Attachments[0].Kind != model.MediaAudio {
		t.Errorf("attachments = %+v", withFiles.Attachments)
	}

	resp = env.do(t, http.MethodGet, "/api/note/reminders?before=2026-03-02T00:00:00Z", authorToken, nil)
	expectStatus(t, resp, http.StatusOK)
	var due []model.Note
	decode(t, resp, &due)
	if len(due) != 1 {
		t.Errorf("due reminders = %d, want 1", len(due))
	}

	resp = env.do(t, http.MethodGet, "/api/note/reminders?before=2026-02-28T00:00:00Z", authorToken, nil)
	expectStatus(t, resp, http.StatusOK)
	decode(t, resp, &due)
	if len(due) != 0 {
		t.Errorf("early reminders = %d, want 0", len(due))
	}

	resp = env.do(t, http.MethodGet, "/api/note/reminders?before=tomorrow", authorToken, nil)
	expectError(t, resp, http.StatusBadRequest, apperr.CodeInvalidArgument)

	resp = env.do(t, http.MethodDelete, path, otherToken, nil)
	expectError(t, resp, http.StatusNotFound, apperr.CodeNotFound)
	resp = env.do(t, http.MethodDelete, path, authorToken, nil)
	expectStatus(t, resp, http.StatusOK)
	resp.Body.Close()
}

func TestReferralsAndWallet(t *testing.T) {
	env := setupTestServer(t)
	referrerToken := env.userToken(t, "referrer", model.RoleUser)
	newcomerToken := env.userToken(t, "newcomer", model.RoleUser)

	resp := env.do(t, http.MethodGet, "/api/referral/code", referrerToken, nil)
	expectStatus(t, resp, http.StatusOK)
	var code map[string]string
	decode(t, resp, &code)

	resp = env.do(t, http.MethodPost, "/api/referral/redeem", referrerToken, map[string]string{"code": code["code"]})
	expectError(t, resp, http.StatusBadRequest, apperr.CodeInvalidArgument)

	resp = env.do(t, http.MethodPost, "/api/referral/redeem", newcomerToken, map[string]string{"code": code["code"]})
	expectStatus(t, resp, http.StatusCreated)
	resp.Body.Close()

	resp = env.do(t, http.MethodPost, "/api/referral/redeem", newcomerToken, map[string]string{"code": code["code"]})
	expectError(t, resp, http.StatusConflict, apperr.CodeInvalidState)

	resp = env.do(t, http.MethodGet, "/api/wallet", referrerToken, nil)
	expectStatus(t, resp, http.StatusOK)
	var wallet model.Wallet
	decode(t, resp, &wallet)
	if !wallet.Balance.Equal(dec("100")) {
		t.Errorf("balance = %s, want 100", wallet.Balance)
	}

	resp = env.do(t, http.MethodPost, "/api/wallet/withdraw", referrerToken, map[string]string{"amount": "150"})
	expectError(t, resp, http.StatusUnprocessableEntity, apperr.CodeInsufficientFunds)

	resp = env.do(t, http.MethodPost, "/api/wallet/withdraw", referrerToken, map[string]string{"amount": "40"})
	expectStatus(t, resp, http.StatusCreated)
	resp.Body.Close()

	resp = env.do(t, http.MethodPost, "/api/wallet/credit", referrerToken, map[string]any{"user_id": wallet.UserID, "amount": "10"})
	expectError(t, resp, http.StatusForbidden, apperr.CodePermissionDenied)

	resp = env.do(t, http.MethodGet, "/api/wallet/transactions", referrerToken, nil)
	expectStatus(t, resp, http.StatusOK)
	var txns []model.WalletTransaction
	decode(t, resp, &txns)
	if len(txns) != 2 || txns[0].Kind != model.WalletDebit {
		t.Errorf("transactions = %+v", txns)
	}
}
