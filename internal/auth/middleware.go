package auth

import (
	"strings"

	"github.com/gofiber/fiber/v2"

	"employee-manager/internal/api"
)

// Middleware returns a Fiber middleware that validates JWT tokens and
// sets the caller identity on the request. Claims are mapped onto the
// closed role enum; anything unmappable fails closed with a 401.
func Middleware(secret string) fiber.Handler {
	return func(c *fiber.Ctx) error {
		header := c.Get("Authorization")
		if header == "" {
			return api.UnauthorizedError("Missing auth token")
		}

		parts := strings.SplitN(header, " ", 2)
		if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") {
			return api.UnauthorizedError("Invalid auth header format")
		}

		claims, err := ParseAccessToken(parts[1], secret)
		if err != nil {
			return api.UnauthorizedError("Invalid or expired token")
		}

		role, err := api.ParseRole(claims.Role)
		if err != nil {
			return api.UnauthorizedError("Invalid role claim")
		}
		// A user token without an ownership email cannot be authorized
		// against anything: treat it as bad credentials, not a 500.
		if role == api.RoleUser && claims.Email == "" {
			return api.UnauthorizedError("Invalid credentials")
		}

		c.Locals("identity", &api.Identity{
			Role:  role,
			Email: claims.Email,
		})

		return c.Next()
	}
}

// RequireAdmin is a Fiber middleware that checks the authenticated caller
// has the Admin role.
func RequireAdmin() fiber.Handler {
	return func(c *fiber.Ctx) error {
		ident := api.GetIdentity(c)
		if ident == nil {
			return api.UnauthorizedError("Missing auth token")
		}
		if !ident.IsAdmin() {
			return api.ForbiddenError("Admin access required")
		}
		return c.Next()
	}
}
