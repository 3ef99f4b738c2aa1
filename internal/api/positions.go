package api

import (
	"github.com/gofiber/fiber/v2"

	"employee-manager/internal/store"
)

// ListPositions handles GET /api/positions (admin only).
func (h *Handler) ListPositions(c *fiber.Ctx) error {
	rows, err := store.QueryRows(c.Context(), h.store.DB,
		"SELECT id, name FROM positions ORDER BY id")
	if err != nil {
		return err
	}
	if rows == nil {
		rows = []map[string]any{}
	}
	return c.JSON(fiber.Map{"data": rows})
}
