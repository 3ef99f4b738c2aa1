package api

import (
	"context"
	"encoding/json"
	"errors"

	"github.com/gofiber/fiber/v2"

	"employee-manager/internal/store"
)

// ListDevices handles GET /api/devices (admin only).
func (h *Handler) ListDevices(c *fiber.Ctx) error {
	rows, err := store.QueryRows(c.Context(), h.store.DB,
		"SELECT id, name FROM devices ORDER BY id")
	if err != nil {
		return err
	}
	if rows == nil {
		rows = []map[string]any{}
	}
	return c.JSON(fiber.Map{"data": rows})
}

// ListDeviceTypes handles GET /api/devices/types (admin only).
func (h *Handler) ListDeviceTypes(c *fiber.Ctx) error {
	rows, err := store.QueryRows(c.Context(), h.store.DB,
		"SELECT id, name FROM device_types ORDER BY id")
	if err != nil {
		return err
	}
	if rows == nil {
		rows = []map[string]any{}
	}
	return c.JSON(fiber.Map{"data": rows})
}

// GetDevice handles GET /api/devices/:id. Admins read any device; users
// must hold the device through the device_employees link.
func (h *Handler) GetDevice(c *fiber.Ctx) error {
	id, err := parseID(c)
	if err != nil {
		return err
	}
	ident := GetIdentity(c)
	ctx := c.Context()

	if ident == nil || !ident.IsAdmin() {
		if err := Authorize(ctx, ident, id, h.deviceOwnership); err != nil {
			return err
		}
	}

	row, err := h.deviceView(ctx, id)
	if err != nil {
		return notFoundOr(err, "Device", id)
	}
	return c.JSON(fiber.Map{"data": row})
}

// CreateDevice handles POST /api/devices (admin only). The conditional
// rule middleware has already vetted additionalProperties by the time
// this runs.
func (h *Handler) CreateDevice(c *fiber.Ctx) error {
	var body DeviceRequest
	if err := c.BodyParser(&body); err != nil {
		return NewAppError("INVALID_PAYLOAD", 400, "Invalid request body")
	}
	if details := body.Validate(); len(details) > 0 {
		return ValidationError(details)
	}

	ctx := c.Context()
	if err := h.requireDeviceType(ctx, body.TypeID); err != nil {
		return err
	}

	pb := h.store.Dialect.NewParamBuilder()
	_, err := store.Exec(ctx, h.store.DB,
		`INSERT INTO devices (name, type_id, is_enabled, mode, additional_properties) VALUES (`+
			pb.Add(body.Name)+`, `+pb.Add(body.TypeID)+`, `+pb.Add(body.IsEnabled)+`, `+
			pb.Add(body.Mode)+`, `+pb.Add(rawJSONParam(body.AdditionalProperties))+`)`,
		pb.Params()...)
	if err != nil {
		return err
	}
	return c.SendStatus(fiber.StatusCreated)
}

// UpdateDevice handles PUT /api/devices/:id. Admin path updates any
// device; user path passes the ownership gate first.
func (h *Handler) UpdateDevice(c *fiber.Ctx) error {
	id, err := parseID(c)
	if err != nil {
		return err
	}
	var body DeviceRequest
	if err := c.BodyParser(&body); err != nil {
		return NewAppError("INVALID_PAYLOAD", 400, "Invalid request body")
	}
	if details := body.Validate(); len(details) > 0 {
		return ValidationError(details)
	}

	ident := GetIdentity(c)
	ctx := c.Context()

	if ident == nil || !ident.IsAdmin() {
		if err := Authorize(ctx, ident, id, h.deviceOwnership); err != nil {
			return err
		}
	} else if err := h.requireExists(ctx, "devices", "Device", id); err != nil {
		return err
	}

	if err := h.requireDeviceType(ctx, body.TypeID); err != nil {
		return err
	}

	pb := h.store.Dialect.NewParamBuilder()
	_, err = store.Exec(ctx, h.store.DB,
		`UPDATE devices SET name = `+pb.Add(body.Name)+
			`, type_id = `+pb.Add(body.TypeID)+
			`, is_enabled = `+pb.Add(body.IsEnabled)+
			`, mode = `+pb.Add(body.Mode)+
			`, additional_properties = `+pb.Add(rawJSONParam(body.AdditionalProperties))+
			` WHERE id = `+pb.Add(id),
		pb.Params()...)
	if err != nil {
		return err
	}
	return c.SendStatus(fiber.StatusOK)
}

// DeleteDevice handles DELETE /api/devices/:id (admin only).
func (h *Handler) DeleteDevice(c *fiber.Ctx) error {
	id, err := parseID(c)
	if err != nil {
		return err
	}
	ctx := c.Context()
	if err := h.requireExists(ctx, "devices", "Device", id); err != nil {
		return err
	}
	pb := h.store.Dialect.NewParamBuilder()
	_, err = store.Exec(ctx, h.store.DB,
		"DELETE FROM devices WHERE id = "+pb.Add(id), pb.Params()...)
	if err != nil {
		return err
	}
	return c.SendStatus(fiber.StatusOK)
}

func (h *Handler) deviceView(ctx context.Context, id int64) (map[string]any, error) {
	pb := h.store.Dialect.NewParamBuilder()
	row, err := store.QueryRow(ctx, h.store.DB,
		`SELECT d.name, d.is_enabled, d.mode, d.additional_properties, t.name AS type
		 FROM devices d JOIN device_types t ON t.id = d.type_id
		 WHERE d.id = `+pb.Add(id), pb.Params()...)
	if err != nil {
		return nil, err
	}

	var props any
	if raw := store.AsString(row["additional_properties"]); raw != "" {
		// Stored as a JSON document; surface it as structured data.
		if err := json.Unmarshal([]byte(raw), &props); err != nil {
			props = raw
		}
	}
	return map[string]any{
		"name":                 store.AsString(row["name"]),
		"type":                 store.AsString(row["type"]),
		"isEnabled":            store.AsBool(row["is_enabled"]),
		"mode":                 store.AsString(row["mode"]),
		"additionalProperties": props,
	}, nil
}

// requireDeviceType rejects a dangling type reference with the same 404
// the rule interceptor produces, so the answer for a bad typeId does not
// depend on which layer catches it first.
func (h *Handler) requireDeviceType(ctx context.Context, typeID int64) error {
	pb := h.store.Dialect.NewParamBuilder()
	_, err := store.QueryRow(ctx, h.store.DB,
		"SELECT id FROM device_types WHERE id = "+pb.Add(typeID), pb.Params()...)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return NewAppError("NOT_FOUND", 404, "No device type found for the given type id")
		}
		return err
	}
	return nil
}

// rawJSONParam stores the property bag as its JSON text, or NULL when the
// request carried none.
func rawJSONParam(raw json.RawMessage) any {
	if len(raw) == 0 || string(raw) == "null" {
		return nil
	}
	return string(raw)
}
