package api_test

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gofiber/fiber/v2"

	"employee-manager/internal/api"
	"employee-manager/internal/auth"
	"employee-manager/internal/catalog"
	"employee-manager/internal/config"
	"employee-manager/internal/store"
	"employee-manager/internal/validation"
)

const (
	testSecret   = "handlers-test-secret"
	userPassword = "User-Pass-123!"
)

const testCatalog = `{
  "validations": [
    {
      "type": "Thermostat",
      "preRequestName": "mode",
      "preRequestValue": "scheduled",
      "rules": [
        {"paramName": "cronExpr", "regex": "^([0-9*/, -]+\\s){4}[0-9*/, -]+$"}
      ]
    }
  ]
}`

type testServer struct {
	app *fiber.App
	st  *store.Store
}

func testErrorHandler(c *fiber.Ctx, err error) error {
	var appErr *api.AppError
	if errors.As(err, &appErr) {
		return c.Status(appErr.Status).JSON(api.ErrorResponse{Error: appErr})
	}
	return c.Status(500).JSON(api.ErrorResponse{
		Error: api.NewAppError("INTERNAL_ERROR", 500, "Internal server error"),
	})
}

// newServer wires the full request path the way main does: auth routes,
// JWT middleware, admin gate and the device rule interceptor over a
// bootstrapped sqlite store.
func newServer(t *testing.T) *testServer {
	t.Helper()
	ctx := context.Background()

	st, err := store.New(ctx, config.DatabaseConfig{
		Driver: "sqlite",
		Path:   t.TempDir(),
		Name:   "handlers_test",
	})
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	t.Cleanup(st.Close)
	if err := st.Bootstrap(ctx); err != nil {
		t.Fatalf("bootstrap: %v", err)
	}
	seedFixtures(t, st)

	cat, err := catalog.Parse([]byte(testCatalog))
	if err != nil {
		t.Fatalf("parse catalog: %v", err)
	}

	app := fiber.New(fiber.Config{ErrorHandler: testErrorHandler})

	auth.RegisterRoutes(app, auth.NewHandler(st, testSecret))
	h := api.NewHandler(st)
	engine := validation.NewEngine(cat, h)
	api.RegisterRoutes(app, h,
		auth.Middleware(testSecret), auth.RequireAdmin(), validation.DeviceRuleMiddleware(engine))

	return &testServer{app: app, st: st}
}

// seedFixtures adds a regular user ("jane") with one assigned device and
// one unassigned device. Bootstrap already created the admin account, so
// jane's person, employee and account rows land at id 2.
func seedFixtures(t *testing.T, st *store.Store) {
	t.Helper()
	ctx := context.Background()

	hash, err := auth.HashPassword(userPassword)
	if err != nil {
		t.Fatalf("hash password: %v", err)
	}

	stmts := []struct {
		sql  string
		args []any
	}{
		{`INSERT INTO persons (passport_number, first_name, last_name, phone_number, email)
		  VALUES (?1, ?2, ?3, ?4, ?5)`,
			[]any{"AB12345678", "Jane", "Smith", "+123456789", "jane@example.com"}},
		{`INSERT INTO employees (person_id, position_id, salary, hire_date)
		  VALUES (?1, ?2, ?3, datetime('now'))`,
			[]any{int64(2), int64(1), 50000.0}},
		{`INSERT INTO accounts (username, password_hash, employee_id, role_id)
		  SELECT ?1, ?2, ?3, id FROM roles WHERE name = 'User'`,
			[]any{"jane", hash, int64(2)}},
		{`INSERT INTO devices (name, type_id, is_enabled, mode)
		  SELECT ?1, id, 1, 'manual' FROM device_types WHERE name = 'Laptop'`,
			[]any{"Jane's laptop"}},
		{`INSERT INTO devices (name, type_id, is_enabled, mode)
		  SELECT ?1, id, 1, 'manual' FROM device_types WHERE name = 'Thermostat'`,
			[]any{"Lobby thermostat"}},
		{`INSERT INTO device_employees (device_id, employee_id) VALUES (?1, ?2)`,
			[]any{int64(1), int64(2)}},
	}
	for _, s := range stmts {
		if _, err := store.Exec(ctx, st.DB, s.sql, s.args...); err != nil {
			t.Fatalf("seed: %v", err)
		}
	}
}

func (ts *testServer) request(t *testing.T, method, path, token, body string) (int, string) {
	t.Helper()
	var reader io.Reader
	if body != "" {
		reader = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, path, reader)
	if body != "" {
		req.Header.Set("Content-Type", fiber.MIMEApplicationJSON)
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	resp, err := ts.app.Test(req, -1)
	if err != nil {
		t.Fatalf("app.Test: %v", err)
	}
	defer resp.Body.Close()
	data, err := io.ReadAll(resp.Body)
	if err != nil {
		t.Fatalf("read body: %v", err)
	}
	return resp.StatusCode, string(data)
}

func (ts *testServer) login(t *testing.T, login, password string) auth.TokenPair {
	t.Helper()
	body := fmt.Sprintf(`{"login": %q, "password": %q}`, login, password)
	status, respBody := ts.request(t, "POST", "/api/auth/login", "", body)
	if status != 200 {
		t.Fatalf("login %s: status %d: %s", login, status, respBody)
	}
	var resp struct {
		Data auth.TokenPair `json:"data"`
	}
	if err := json.Unmarshal([]byte(respBody), &resp); err != nil {
		t.Fatalf("decode login response: %v", err)
	}
	return resp.Data
}

func (ts *testServer) adminToken(t *testing.T) string {
	return ts.login(t, "admin", "ChangeMe-123!").AccessToken
}

func (ts *testServer) userToken(t *testing.T) string {
	return ts.login(t, "jane", userPassword).AccessToken
}

func TestLogin(t *testing.T) {
	ts := newServer(t)

	pair := ts.login(t, "jane", userPassword)
	if pair.AccessToken == "" || pair.RefreshToken == "" {
		t.Fatal("expected a full token pair")
	}

	status, _ := ts.request(t, "POST", "/api/auth/login", "",
		`{"login": "jane", "password": "wrong"}`)
	if status != 401 {
		t.Fatalf("wrong password: expected 401, got %d", status)
	}

	status, _ = ts.request(t, "POST", "/api/auth/login", "",
		`{"login": "nobody", "password": "whatever"}`)
	if status != 401 {
		t.Fatalf("unknown user: expected 401, got %d", status)
	}
}

func TestRefreshRotation(t *testing.T) {
	ts := newServer(t)
	pair := ts.login(t, "jane", userPassword)

	status, respBody := ts.request(t, "POST", "/api/auth/refresh", "",
		fmt.Sprintf(`{"refresh_token": %q}`, pair.RefreshToken))
	if status != 200 {
		t.Fatalf("refresh: expected 200, got %d: %s", status, respBody)
	}

	// The consumed token must not work a second time.
	status, _ = ts.request(t, "POST", "/api/auth/refresh", "",
		fmt.Sprintf(`{"refresh_token": %q}`, pair.RefreshToken))
	if status != 401 {
		t.Fatalf("reused refresh token: expected 401, got %d", status)
	}
}

func TestLogoutInvalidatesRefreshToken(t *testing.T) {
	ts := newServer(t)
	pair := ts.login(t, "jane", userPassword)

	status, _ := ts.request(t, "POST", "/api/auth/logout", "",
		fmt.Sprintf(`{"refresh_token": %q}`, pair.RefreshToken))
	if status != 200 {
		t.Fatalf("logout: expected 200, got %d", status)
	}

	status, _ = ts.request(t, "POST", "/api/auth/refresh", "",
		fmt.Sprintf(`{"refresh_token": %q}`, pair.RefreshToken))
	if status != 401 {
		t.Fatalf("refresh after logout: expected 401, got %d", status)
	}
}

func TestListAccounts_AdminOnly(t *testing.T) {
	ts := newServer(t)

	status, respBody := ts.request(t, "GET", "/api/accounts", ts.adminToken(t), "")
	if status != 200 {
		t.Fatalf("admin list: expected 200, got %d: %s", status, respBody)
	}
	if !strings.Contains(respBody, "admin") || !strings.Contains(respBody, "jane") {
		t.Fatalf("expected both accounts in listing: %s", respBody)
	}

	status, _ = ts.request(t, "GET", "/api/accounts", ts.userToken(t), "")
	if status != 403 {
		t.Fatalf("user list: expected 403, got %d", status)
	}

	status, _ = ts.request(t, "GET", "/api/accounts", "", "")
	if status != 401 {
		t.Fatalf("anonymous list: expected 401, got %d", status)
	}
}

func TestGetAccount_Ownership(t *testing.T) {
	ts := newServer(t)
	userTok := ts.userToken(t)

	// jane's account is id 2.
	status, respBody := ts.request(t, "GET", "/api/accounts/2", userTok, "")
	if status != 200 {
		t.Fatalf("own account: expected 200, got %d: %s", status, respBody)
	}
	var view struct {
		Data map[string]any `json:"data"`
	}
	if err := json.Unmarshal([]byte(respBody), &view); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if _, ok := view.Data["employeeId"]; ok {
		t.Fatal("user view must not expose the employee link")
	}

	status, _ = ts.request(t, "GET", "/api/accounts/1", userTok, "")
	if status != 403 {
		t.Fatalf("foreign account: expected 403, got %d", status)
	}

	status, _ = ts.request(t, "GET", "/api/accounts/999", ts.adminToken(t), "")
	if status != 404 {
		t.Fatalf("admin missing account: expected 404, got %d", status)
	}
}

func TestUpdateAccount_RoleChangeDenied(t *testing.T) {
	ts := newServer(t)
	userTok := ts.userToken(t)

	// Role id 1 is Admin; jane holds role id 2.
	status, respBody := ts.request(t, "PUT", "/api/accounts/2", userTok,
		`{"username": "jane", "password": "User-Pass-123!", "employeeId": 2, "roleId": 1}`)
	if status != 403 {
		t.Fatalf("role escalation: expected 403, got %d: %s", status, respBody)
	}
	if !strings.Contains(respBody, "role") {
		t.Fatalf("denial should mention the role: %s", respBody)
	}

	status, respBody = ts.request(t, "PUT", "/api/accounts/2", userTok,
		`{"username": "jane2", "password": "New-Pass-456!", "employeeId": 2, "roleId": 2}`)
	if status != 200 {
		t.Fatalf("own update: expected 200, got %d: %s", status, respBody)
	}

	// The new credentials must take effect.
	ts.login(t, "jane2", "New-Pass-456!")
}

func TestCreateAccount(t *testing.T) {
	ts := newServer(t)
	adminTok := ts.adminToken(t)

	status, respBody := ts.request(t, "POST", "/api/accounts", adminTok,
		`{"username": "jsmith", "password": "Another-Pass-1!", "employeeId": 2, "roleId": 2}`)
	if status != 201 {
		t.Fatalf("create: expected 201, got %d: %s", status, respBody)
	}

	// Duplicate username maps to a conflict.
	status, _ = ts.request(t, "POST", "/api/accounts", adminTok,
		`{"username": "jsmith", "password": "Another-Pass-1!", "employeeId": 2, "roleId": 2}`)
	if status != 409 {
		t.Fatalf("duplicate username: expected 409, got %d", status)
	}

	status, respBody = ts.request(t, "POST", "/api/accounts", adminTok,
		`{"username": "1bad", "password": "short", "employeeId": 2, "roleId": 2}`)
	if status != 400 {
		t.Fatalf("invalid payload: expected 400, got %d: %s", status, respBody)
	}
}

func TestGetDevice_Ownership(t *testing.T) {
	ts := newServer(t)
	userTok := ts.userToken(t)

	status, respBody := ts.request(t, "GET", "/api/devices/1", userTok, "")
	if status != 200 {
		t.Fatalf("assigned device: expected 200, got %d: %s", status, respBody)
	}

	status, _ = ts.request(t, "GET", "/api/devices/2", userTok, "")
	if status != 403 {
		t.Fatalf("unassigned device: expected 403, got %d", status)
	}

	status, _ = ts.request(t, "GET", "/api/devices/999", userTok, "")
	if status != 404 {
		t.Fatalf("missing device: expected 404, got %d", status)
	}

	status, _ = ts.request(t, "GET", "/api/devices/2", ts.adminToken(t), "")
	if status != 200 {
		t.Fatalf("admin reads any device: expected 200, got %d", status)
	}
}

func TestCreateDevice_ConditionalValidation(t *testing.T) {
	ts := newServer(t)
	adminTok := ts.adminToken(t)

	thermostatID := ts.deviceTypeID(t, "Thermostat")

	body := fmt.Sprintf(`{"name": "Office thermostat", "typeId": %d, "mode": "scheduled",
		"additionalProperties": {"cronExpr": "whenever"}}`, thermostatID)
	status, respBody := ts.request(t, "POST", "/api/devices", adminTok, body)
	if status != 400 {
		t.Fatalf("bad cron: expected 400, got %d: %s", status, respBody)
	}
	if !strings.Contains(respBody, "cronExpr") {
		t.Fatalf("violation should name the field: %s", respBody)
	}

	body = fmt.Sprintf(`{"name": "Office thermostat", "typeId": %d, "mode": "scheduled",
		"additionalProperties": {"cronExpr": "0 8 * * 1"}}`, thermostatID)
	status, respBody = ts.request(t, "POST", "/api/devices", adminTok, body)
	if status != 201 {
		t.Fatalf("valid cron: expected 201, got %d: %s", status, respBody)
	}

	// Manual mode sidesteps the scheduled-only rule entirely.
	body = fmt.Sprintf(`{"name": "Hall thermostat", "typeId": %d, "mode": "manual"}`, thermostatID)
	status, respBody = ts.request(t, "POST", "/api/devices", adminTok, body)
	if status != 201 {
		t.Fatalf("manual mode: expected 201, got %d: %s", status, respBody)
	}

	status, _ = ts.request(t, "POST", "/api/devices", adminTok,
		`{"name": "Ghost", "typeId": 999}`)
	if status != 404 {
		t.Fatalf("dangling type id: expected 404, got %d", status)
	}
}

// A dangling typeId must answer 404 from the handler's own reference check
// too, so the status does not depend on the rule interceptor running first.
func TestCreateDevice_DanglingTypeWithoutInterceptor(t *testing.T) {
	ts := newServer(t)

	app := fiber.New(fiber.Config{ErrorHandler: testErrorHandler})
	auth.RegisterRoutes(app, auth.NewHandler(ts.st, testSecret))
	api.RegisterRoutes(app, api.NewHandler(ts.st),
		auth.Middleware(testSecret), auth.RequireAdmin(),
		func(c *fiber.Ctx) error { return c.Next() })
	bare := &testServer{app: app, st: ts.st}

	status, respBody := bare.request(t, "POST", "/api/devices", bare.adminToken(t),
		`{"name": "Ghost", "typeId": 999}`)
	if status != 404 {
		t.Fatalf("expected 404, got %d: %s", status, respBody)
	}
	if !strings.Contains(respBody, "NOT_FOUND") {
		t.Fatalf("expected the shared not-found code: %s", respBody)
	}
}

func TestUpdateDevice_UserOwnershipGate(t *testing.T) {
	ts := newServer(t)
	userTok := ts.userToken(t)
	laptopID := ts.deviceTypeID(t, "Laptop")

	body := fmt.Sprintf(`{"name": "Renamed laptop", "typeId": %d, "isEnabled": false}`, laptopID)
	status, respBody := ts.request(t, "PUT", "/api/devices/1", userTok, body)
	if status != 200 {
		t.Fatalf("own device update: expected 200, got %d: %s", status, respBody)
	}

	status, _ = ts.request(t, "PUT", "/api/devices/2", userTok, body)
	if status != 403 {
		t.Fatalf("foreign device update: expected 403, got %d", status)
	}
}

func TestEmployees(t *testing.T) {
	ts := newServer(t)
	adminTok := ts.adminToken(t)

	status, respBody := ts.request(t, "POST", "/api/employees", adminTok,
		`{"person": {"passportNumber": "CD98765432", "firstName": "John", "lastName": "Doe",
		  "phoneNumber": "+987654321", "email": "john.doe@example.com"},
		  "salary": 42000, "positionId": 1}`)
	if status != 201 {
		t.Fatalf("create employee: expected 201, got %d: %s", status, respBody)
	}

	status, respBody = ts.request(t, "GET", "/api/employees", adminTok, "")
	if status != 200 {
		t.Fatalf("list employees: expected 200, got %d", status)
	}
	if !strings.Contains(respBody, "John Doe") {
		t.Fatalf("expected new employee in listing: %s", respBody)
	}

	status, respBody = ts.request(t, "GET", "/api/employees/3", adminTok, "")
	if status != 200 {
		t.Fatalf("get employee: expected 200, got %d: %s", status, respBody)
	}
	if !strings.Contains(respBody, "john.doe@example.com") {
		t.Fatalf("expected person detail: %s", respBody)
	}

	status, _ = ts.request(t, "POST", "/api/employees", adminTok,
		`{"person": {"passportNumber": "X", "firstName": "Bad", "lastName": "Email",
		  "phoneNumber": "+987654321", "email": "not-an-email"},
		  "salary": 1, "positionId": 1}`)
	if status != 400 {
		t.Fatalf("invalid email: expected 400, got %d", status)
	}

	// Re-registering an email is a conflict, not a server fault.
	status, respBody = ts.request(t, "POST", "/api/employees", adminTok,
		`{"person": {"passportNumber": "EF11223344", "firstName": "John", "lastName": "Again",
		  "phoneNumber": "+987654321", "email": "john.doe@example.com"},
		  "salary": 42000, "positionId": 1}`)
	if status != 409 {
		t.Fatalf("duplicate email: expected 409, got %d: %s", status, respBody)
	}
}

func TestLookupListings(t *testing.T) {
	ts := newServer(t)
	adminTok := ts.adminToken(t)

	for _, path := range []string{"/api/positions", "/api/roles", "/api/devices/types"} {
		status, respBody := ts.request(t, "GET", path, adminTok, "")
		if status != 200 {
			t.Fatalf("%s: expected 200, got %d: %s", path, status, respBody)
		}
		if !strings.Contains(respBody, "data") {
			t.Fatalf("%s: expected data envelope: %s", path, respBody)
		}
	}
}

func (ts *testServer) deviceTypeID(t *testing.T, name string) int64 {
	t.Helper()
	pb := ts.st.Dialect.NewParamBuilder()
	row, err := store.QueryRow(context.Background(), ts.st.DB,
		"SELECT id FROM device_types WHERE name = "+pb.Add(name), pb.Params()...)
	if err != nil {
		t.Fatalf("device type %s: %v", name, err)
	}
	return store.AsInt64(row["id"])
}
