package api

import (
	"fmt"

	"github.com/gofiber/fiber/v2"
)

// Role is the closed set of role claims the backend understands.
// Anything outside the set fails authorization closed.
type Role string

const (
	RoleAdmin Role = "Admin"
	RoleUser  Role = "User"
)

// ParseRole maps a raw role claim onto the closed enum.
func ParseRole(s string) (Role, error) {
	switch Role(s) {
	case RoleAdmin:
		return RoleAdmin, nil
	case RoleUser:
		return RoleUser, nil
	}
	return "", fmt.Errorf("unknown role claim %q", s)
}

// Identity represents the authenticated caller, set by auth middleware.
// Email is the ownership key for User-scoped operations and is empty
// for admins.
type Identity struct {
	Role  Role
	Email string
}

func (i *Identity) IsAdmin() bool {
	return i.Role == RoleAdmin
}

// GetIdentity extracts the caller identity from a Fiber context.
func GetIdentity(c *fiber.Ctx) *Identity {
	ident, _ := c.Locals("identity").(*Identity)
	return ident
}
