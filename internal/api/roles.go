package api

import (
	"github.com/gofiber/fiber/v2"

	"employee-manager/internal/store"
)

// ListRoles handles GET /api/roles (admin only).
func (h *Handler) ListRoles(c *fiber.Ctx) error {
	rows, err := store.QueryRows(c.Context(), h.store.DB,
		"SELECT id, name FROM roles ORDER BY id")
	if err != nil {
		return err
	}
	if rows == nil {
		rows = []map[string]any{}
	}
	return c.JSON(fiber.Map{"data": rows})
}
