package validation

import (
	"context"
	"encoding/json"
	"errors"
	"strings"

	"github.com/gofiber/fiber/v2"

	"employee-manager/internal/api"
	"employee-manager/internal/store"
)

// Validator is what the interceptor needs from the engine.
type Validator interface {
	Validate(ctx context.Context, typeID int64, payload *api.DeviceRequest) ([]string, error)
}

// DeviceRuleMiddleware intercepts device create and update requests,
// deserializes the body and runs the conditional validation engine before
// any downstream handler executes. Fiber buffers request bodies in
// memory, so the body the handlers parse afterwards is the same bytes
// this middleware read.
func DeviceRuleMiddleware(v Validator) fiber.Handler {
	return func(c *fiber.Ctx) error {
		if c.Method() != fiber.MethodPost && c.Method() != fiber.MethodPut {
			return c.Next()
		}

		body := c.Body()
		if len(body) == 0 || !strings.Contains(c.Get(fiber.HeaderContentType), fiber.MIMEApplicationJSON) {
			return api.UnsupportedMediaError("Invalid request body")
		}

		// Field names match case-insensitively, encoding/json's default.
		var payload api.DeviceRequest
		if err := json.Unmarshal(body, &payload); err != nil {
			return api.UnsupportedMediaError("Invalid request body")
		}

		violations, err := v.Validate(c.Context(), payload.TypeID, &payload)
		if err != nil {
			if errors.Is(err, store.ErrNotFound) {
				return api.NewAppError("NOT_FOUND", 404,
					"No device type found for the given type id")
			}
			// Schema/storage faults are server-side defects; let the
			// central handler turn them into a generic 500.
			return err
		}

		if len(violations) > 0 {
			details := make([]api.ErrorDetail, 0, len(violations))
			for _, msg := range violations {
				details = append(details, api.ErrorDetail{Rule: "conditional", Message: msg})
			}
			return api.ValidationError(details)
		}

		return c.Next()
	}
}
