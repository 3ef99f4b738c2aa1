package auth

import (
	"context"
	"errors"
	"time"

	"github.com/gofiber/fiber/v2"

	"employee-manager/internal/api"
	"employee-manager/internal/store"
)

// Handler handles authentication endpoints.
type Handler struct {
	store     *store.Store
	jwtSecret string
}

func NewHandler(s *store.Store, jwtSecret string) *Handler {
	return &Handler{store: s, jwtSecret: jwtSecret}
}

// Login handles POST /api/auth/login.
func (h *Handler) Login(c *fiber.Ctx) error {
	var body api.LoginRequest
	if err := c.BodyParser(&body); err != nil {
		return api.NewAppError("INVALID_PAYLOAD", 400, "Invalid request body")
	}
	if body.Login == "" || body.Password == "" {
		return api.UnauthorizedError("Login and password are required")
	}

	ctx := c.Context()

	account, err := h.findAccount(ctx, body.Login)
	if err != nil {
		// Same answer for unknown user and bad password.
		return api.UnauthorizedError("Invalid login or password")
	}

	hash := store.AsString(account["password_hash"])
	if !CheckPassword(body.Password, hash) {
		return api.UnauthorizedError("Invalid login or password")
	}

	pair, err := h.generateTokenPair(ctx,
		store.AsInt64(account["id"]),
		store.AsString(account["role"]),
		store.AsString(account["email"]))
	if err != nil {
		return err
	}

	return c.JSON(fiber.Map{"data": pair})
}

// Refresh handles POST /api/auth/refresh. Refresh tokens are single-use
// and rotated on every call.
func (h *Handler) Refresh(c *fiber.Ctx) error {
	var body struct {
		RefreshToken string `json:"refresh_token"`
	}
	if err := c.BodyParser(&body); err != nil {
		return api.NewAppError("INVALID_PAYLOAD", 400, "Invalid request body")
	}
	if body.RefreshToken == "" {
		return api.UnauthorizedError("Refresh token is required")
	}

	ctx := c.Context()

	pb := h.store.Dialect.NewParamBuilder()
	row, err := store.QueryRow(ctx, h.store.DB,
		`SELECT rt.id, rt.expires_at, a.id AS account_id, r.name AS role, p.email
		 FROM refresh_tokens rt
		 JOIN accounts a ON a.id = rt.account_id
		 JOIN roles r ON r.id = a.role_id
		 JOIN employees e ON e.id = a.employee_id
		 JOIN persons p ON p.id = e.person_id
		 WHERE rt.token = `+pb.Add(body.RefreshToken), pb.Params()...)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return api.UnauthorizedError("Invalid refresh token")
		}
		return err
	}

	expiresAt := asTime(row["expires_at"])
	tokenID := store.AsInt64(row["id"])
	if time.Now().After(expiresAt) {
		pb = h.store.Dialect.NewParamBuilder()
		_, _ = store.Exec(ctx, h.store.DB,
			"DELETE FROM refresh_tokens WHERE id = "+pb.Add(tokenID), pb.Params()...)
		return api.UnauthorizedError("Refresh token expired")
	}

	pb = h.store.Dialect.NewParamBuilder()
	_, _ = store.Exec(ctx, h.store.DB,
		"DELETE FROM refresh_tokens WHERE id = "+pb.Add(tokenID), pb.Params()...)

	pair, err := h.generateTokenPair(ctx,
		store.AsInt64(row["account_id"]),
		store.AsString(row["role"]),
		store.AsString(row["email"]))
	if err != nil {
		return err
	}

	return c.JSON(fiber.Map{"data": pair})
}

// Logout handles POST /api/auth/logout.
func (h *Handler) Logout(c *fiber.Ctx) error {
	var body struct {
		RefreshToken string `json:"refresh_token"`
	}
	if err := c.BodyParser(&body); err != nil {
		return api.NewAppError("INVALID_PAYLOAD", 400, "Invalid request body")
	}
	if body.RefreshToken == "" {
		return api.UnauthorizedError("Refresh token is required")
	}

	pb := h.store.Dialect.NewParamBuilder()
	_, _ = store.Exec(c.Context(), h.store.DB,
		"DELETE FROM refresh_tokens WHERE token = "+pb.Add(body.RefreshToken), pb.Params()...)

	return c.JSON(fiber.Map{"message": "Logged out"})
}

// RegisterRoutes registers auth routes on the given Fiber app.
func RegisterRoutes(app *fiber.App, h *Handler) {
	grp := app.Group("/api/auth")
	grp.Post("/login", h.Login)
	grp.Post("/refresh", h.Refresh)
	grp.Post("/logout", h.Logout)
}

// --- helpers ---

func (h *Handler) findAccount(ctx context.Context, username string) (map[string]any, error) {
	pb := h.store.Dialect.NewParamBuilder()
	return store.QueryRow(ctx, h.store.DB,
		`SELECT a.id, a.password_hash, r.name AS role, p.email
		 FROM accounts a
		 JOIN roles r ON r.id = a.role_id
		 JOIN employees e ON e.id = a.employee_id
		 JOIN persons p ON p.id = e.person_id
		 WHERE a.username = `+pb.Add(username), pb.Params()...)
}

func (h *Handler) generateTokenPair(ctx context.Context, accountID int64, role, email string) (*TokenPair, error) {
	accessToken, err := GenerateAccessToken(accountID, role, email, h.jwtSecret)
	if err != nil {
		return nil, api.NewAppError("INTERNAL_ERROR", 500, "Failed to generate access token")
	}

	refreshToken := GenerateRefreshToken()
	expiresAt := time.Now().Add(RefreshTokenTTL)

	// Stored as RFC3339 text so the value reads back identically on both
	// dialects.
	pb := h.store.Dialect.NewParamBuilder()
	_, err = store.Exec(ctx, h.store.DB,
		`INSERT INTO refresh_tokens (account_id, token, expires_at) VALUES (`+
			pb.Add(accountID)+`, `+pb.Add(refreshToken)+`, `+pb.Add(expiresAt.UTC().Format(time.RFC3339Nano))+`)`,
		pb.Params()...)
	if err != nil {
		return nil, api.NewAppError("INTERNAL_ERROR", 500, "Failed to store refresh token")
	}

	return &TokenPair{
		AccessToken:  accessToken,
		RefreshToken: refreshToken,
	}, nil
}

// asTime reads a timestamp column that may surface as time.Time or as its
// stored text form, depending on the driver.
func asTime(v any) time.Time {
	switch t := v.(type) {
	case time.Time:
		return t
	case string:
		if parsed, err := time.Parse(time.RFC3339Nano, t); err == nil {
			return parsed
		}
	}
	return time.Time{}
}
