package api

import (
	"context"
	"errors"

	"github.com/gofiber/fiber/v2"

	"employee-manager/internal/store"
)

type Handler struct {
	store *store.Store
}

func NewHandler(s *store.Store) *Handler {
	return &Handler{store: s}
}

// Store exposes the underlying store for collaborators wired in main.
func (h *Handler) Store() *store.Store {
	return h.store
}

func parseID(c *fiber.Ctx) (int64, error) {
	id, err := c.ParamsInt("id")
	if err != nil || id < 0 {
		return 0, NewAppError("INVALID_ID", 400, "Invalid id")
	}
	return int64(id), nil
}

// DeviceTypeName resolves a device type id to its name. Satisfies the
// validation engine's storage collaborator contract; store.ErrNotFound
// signals a dangling type reference.
func (h *Handler) DeviceTypeName(ctx context.Context, id int64) (string, error) {
	pb := h.store.Dialect.NewParamBuilder()
	row, err := store.QueryRow(ctx, h.store.DB,
		"SELECT name FROM device_types WHERE id = "+pb.Add(id), pb.Params()...)
	if err != nil {
		return "", err
	}
	return store.AsString(row["name"]), nil
}

// notFoundOr converts the store's sentinel into the outward 404 and lets
// everything else propagate to the central error handler.
func notFoundOr(err error, entity string, id int64) error {
	if errors.Is(err, store.ErrNotFound) {
		return NotFoundError(entity, id)
	}
	return err
}
