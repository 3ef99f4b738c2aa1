package validation

import (
	"encoding/json"
	"errors"
	"io"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gofiber/fiber/v2"

	"employee-manager/internal/api"
	"employee-manager/internal/catalog"
)

func newTestApp(t *testing.T) *fiber.App {
	t.Helper()
	cat, err := catalog.Parse([]byte(engineCatalog))
	if err != nil {
		t.Fatalf("parse catalog: %v", err)
	}
	engine := NewEngine(cat, stubTypes{1: "Thermostat", 2: "Laptop"})

	app := fiber.New(fiber.Config{
		ErrorHandler: func(c *fiber.Ctx, err error) error {
			var appErr *api.AppError
			if errors.As(err, &appErr) {
				return c.Status(appErr.Status).JSON(api.ErrorResponse{Error: appErr})
			}
			return c.Status(500).JSON(api.ErrorResponse{
				Error: api.NewAppError("INTERNAL_ERROR", 500, "Internal server error"),
			})
		},
	})

	devices := app.Group("/api/devices", DeviceRuleMiddleware(engine))
	devices.Get("/", func(c *fiber.Ctx) error {
		return c.JSON([]string{})
	})
	devices.Post("/", func(c *fiber.Ctx) error {
		// The handler re-parses the same buffered body the middleware read.
		var req api.DeviceRequest
		if err := c.BodyParser(&req); err != nil {
			return err
		}
		return c.Status(201).JSON(fiber.Map{"name": req.Name})
	})
	return app
}

func postDevice(t *testing.T, app *fiber.App, contentType, body string) (int, string) {
	t.Helper()
	req := httptest.NewRequest("POST", "/api/devices/", strings.NewReader(body))
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}
	resp, err := app.Test(req)
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

func TestDeviceRuleMiddleware_NonJSONContentType(t *testing.T) {
	app := newTestApp(t)
	status, _ := postDevice(t, app, "text/plain", `{"name": "x", "typeId": 1}`)
	if status != 415 {
		t.Fatalf("expected 415, got %d", status)
	}
}

func TestDeviceRuleMiddleware_EmptyBody(t *testing.T) {
	app := newTestApp(t)
	status, _ := postDevice(t, app, fiber.MIMEApplicationJSON, "")
	if status != 415 {
		t.Fatalf("expected 415, got %d", status)
	}
}

func TestDeviceRuleMiddleware_MalformedJSON(t *testing.T) {
	app := newTestApp(t)
	status, _ := postDevice(t, app, fiber.MIMEApplicationJSON, `{"name":`)
	if status != 415 {
		t.Fatalf("expected 415, got %d", status)
	}
}

func TestDeviceRuleMiddleware_ViolationsEnumerated(t *testing.T) {
	app := newTestApp(t)
	body := `{"name": "Work laptop", "typeId": 2, "isEnabled": true,
		"additionalProperties": {"macAddress": "bogus", "warrantyYears": "9"}}`
	status, respBody := postDevice(t, app, fiber.MIMEApplicationJSON, body)
	if status != 400 {
		t.Fatalf("expected 400, got %d: %s", status, respBody)
	}

	var resp api.ErrorResponse
	if err := json.Unmarshal([]byte(respBody), &resp); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if resp.Error == nil || resp.Error.Code != "VALIDATION_FAILED" {
		t.Fatalf("unexpected error payload: %s", respBody)
	}
	if len(resp.Error.Details) != 2 {
		t.Fatalf("expected 2 violation details, got %d: %s", len(resp.Error.Details), respBody)
	}
}

func TestDeviceRuleMiddleware_UnknownDeviceType(t *testing.T) {
	app := newTestApp(t)
	status, _ := postDevice(t, app, fiber.MIMEApplicationJSON, `{"name": "x", "typeId": 77}`)
	if status != 404 {
		t.Fatalf("expected 404 for dangling type id, got %d", status)
	}
}

func TestDeviceRuleMiddleware_ValidPayloadReachesHandler(t *testing.T) {
	app := newTestApp(t)
	body := `{"name": "Hall thermostat", "typeId": 1, "mode": "scheduled",
		"additionalProperties": {"cronExpr": "0 8 * * 1"}}`
	status, respBody := postDevice(t, app, fiber.MIMEApplicationJSON, body)
	if status != 201 {
		t.Fatalf("expected 201, got %d: %s", status, respBody)
	}
	if !strings.Contains(respBody, "Hall thermostat") {
		t.Fatalf("downstream handler did not see the body: %s", respBody)
	}
}

func TestDeviceRuleMiddleware_SkipsReads(t *testing.T) {
	app := newTestApp(t)
	req := httptest.NewRequest("GET", "/api/devices/", nil)
	resp, err := app.Test(req)
	if err != nil {
		t.Fatalf("app.Test: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != 200 {
		t.Fatalf("GET must bypass validation, got %d", resp.StatusCode)
	}
}
