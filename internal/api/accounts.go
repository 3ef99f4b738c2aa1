package api

import (
	"context"
	"errors"

	"github.com/gofiber/fiber/v2"
	"golang.org/x/crypto/bcrypt"

	"employee-manager/internal/store"
)

// ListAccounts handles GET /api/accounts (admin only).
func (h *Handler) ListAccounts(c *fiber.Ctx) error {
	rows, err := store.QueryRows(c.Context(), h.store.DB,
		"SELECT id, username FROM accounts ORDER BY id")
	if err != nil {
		return err
	}
	if rows == nil {
		rows = []map[string]any{}
	}
	return c.JSON(fiber.Map{"data": rows})
}

// GetAccount handles GET /api/accounts/:id. Admins read any account and
// see the role assignment; users pass the ownership gate first and see
// only their own record.
func (h *Handler) GetAccount(c *fiber.Ctx) error {
	id, err := parseID(c)
	if err != nil {
		return err
	}
	ident := GetIdentity(c)
	ctx := c.Context()

	if ident != nil && ident.IsAdmin() {
		row, err := h.accountView(ctx, id, true)
		if err != nil {
			return notFoundOr(err, "Account", id)
		}
		return c.JSON(fiber.Map{"data": row})
	}

	if err := Authorize(ctx, ident, id, h.accountOwnership); err != nil {
		return err
	}
	row, err := h.accountView(ctx, id, false)
	if err != nil {
		return notFoundOr(err, "Account", id)
	}
	return c.JSON(fiber.Map{"data": row})
}

// CreateAccount handles POST /api/accounts (admin only).
func (h *Handler) CreateAccount(c *fiber.Ctx) error {
	var body CreateAccountRequest
	if err := c.BodyParser(&body); err != nil {
		return NewAppError("INVALID_PAYLOAD", 400, "Invalid request body")
	}
	if details := body.Validate(); len(details) > 0 {
		return ValidationError(details)
	}

	ctx := c.Context()
	if err := h.requireExists(ctx, "employees", "Employee", body.EmployeeID); err != nil {
		return err
	}
	if err := h.requireExists(ctx, "roles", "Role", body.RoleID); err != nil {
		return err
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(body.Password), bcrypt.DefaultCost)
	if err != nil {
		return err
	}

	pb := h.store.Dialect.NewParamBuilder()
	_, err = store.Exec(ctx, h.store.DB,
		`INSERT INTO accounts (username, password_hash, employee_id, role_id) VALUES (`+
			pb.Add(body.Username)+`, `+pb.Add(string(hash))+`, `+pb.Add(body.EmployeeID)+`, `+pb.Add(body.RoleID)+`)`,
		pb.Params()...)
	if err != nil {
		if errors.Is(store.MapError(h.store.Dialect, err), store.ErrUniqueViolation) {
			return NewAppError("CONFLICT", 409, "Username already taken")
		}
		return err
	}
	return c.SendStatus(fiber.StatusCreated)
}

// UpdateAccount handles PUT /api/accounts/:id. The admin path may reassign
// employee and role; the user path passes the ownership gate and is denied
// any role change, no matter which role id was supplied.
func (h *Handler) UpdateAccount(c *fiber.Ctx) error {
	id, err := parseID(c)
	if err != nil {
		return err
	}
	var body UpdateAccountRequest
	if err := c.BodyParser(&body); err != nil {
		return NewAppError("INVALID_PAYLOAD", 400, "Invalid request body")
	}
	if details := body.Validate(); len(details) > 0 {
		return ValidationError(details)
	}

	ident := GetIdentity(c)
	ctx := c.Context()

	if ident != nil && ident.IsAdmin() {
		return h.adminUpdateAccount(c, ctx, id, &body)
	}

	if err := Authorize(ctx, ident, id, h.accountOwnership); err != nil {
		return err
	}

	pb := h.store.Dialect.NewParamBuilder()
	current, err := store.QueryRow(ctx, h.store.DB,
		"SELECT role_id FROM accounts WHERE id = "+pb.Add(id), pb.Params()...)
	if err != nil {
		return notFoundOr(err, "Account", id)
	}
	if store.AsInt64(current["role_id"]) != body.RoleID {
		return ForbiddenError("Users can't change their own role")
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(body.Password), bcrypt.DefaultCost)
	if err != nil {
		return err
	}
	pb = h.store.Dialect.NewParamBuilder()
	_, err = store.Exec(ctx, h.store.DB,
		`UPDATE accounts SET username = `+pb.Add(body.Username)+
			`, password_hash = `+pb.Add(string(hash))+
			` WHERE id = `+pb.Add(id),
		pb.Params()...)
	if err != nil {
		return err
	}
	return c.SendStatus(fiber.StatusOK)
}

func (h *Handler) adminUpdateAccount(c *fiber.Ctx, ctx context.Context, id int64, body *UpdateAccountRequest) error {
	if err := h.requireExists(ctx, "employees", "Employee", body.EmployeeID); err != nil {
		return err
	}
	if err := h.requireExists(ctx, "roles", "Role", body.RoleID); err != nil {
		return err
	}
	if err := h.requireExists(ctx, "accounts", "Account", id); err != nil {
		return err
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(body.Password), bcrypt.DefaultCost)
	if err != nil {
		return err
	}
	pb := h.store.Dialect.NewParamBuilder()
	_, err = store.Exec(ctx, h.store.DB,
		`UPDATE accounts SET username = `+pb.Add(body.Username)+
			`, password_hash = `+pb.Add(string(hash))+
			`, employee_id = `+pb.Add(body.EmployeeID)+
			`, role_id = `+pb.Add(body.RoleID)+
			` WHERE id = `+pb.Add(id),
		pb.Params()...)
	if err != nil {
		return err
	}
	return c.SendStatus(fiber.StatusOK)
}

// DeleteAccount handles DELETE /api/accounts/:id (admin only).
func (h *Handler) DeleteAccount(c *fiber.Ctx) error {
	id, err := parseID(c)
	if err != nil {
		return err
	}
	ctx := c.Context()
	if err := h.requireExists(ctx, "accounts", "Account", id); err != nil {
		return err
	}
	pb := h.store.Dialect.NewParamBuilder()
	_, err = store.Exec(ctx, h.store.DB,
		"DELETE FROM accounts WHERE id = "+pb.Add(id), pb.Params()...)
	if err != nil {
		return err
	}
	return c.SendStatus(fiber.StatusOK)
}

// accountView builds the read model for one account. The admin view
// carries the role assignment and employee link; the user view does not.
func (h *Handler) accountView(ctx context.Context, id int64, admin bool) (map[string]any, error) {
	pb := h.store.Dialect.NewParamBuilder()
	row, err := store.QueryRow(ctx, h.store.DB,
		`SELECT a.id, a.username, a.employee_id, r.name AS role
		 FROM accounts a JOIN roles r ON r.id = a.role_id
		 WHERE a.id = `+pb.Add(id), pb.Params()...)
	if err != nil {
		return nil, err
	}
	view := map[string]any{
		"username": store.AsString(row["username"]),
	}
	if admin {
		view["id"] = store.AsInt64(row["id"])
		view["role"] = store.AsString(row["role"])
		view["employeeId"] = store.AsInt64(row["employee_id"])
	} else {
		view["role"] = store.AsString(row["role"])
	}
	return view, nil
}

// requireExists maps a missing row in table to the outward 404.
func (h *Handler) requireExists(ctx context.Context, table, entity string, id int64) error {
	pb := h.store.Dialect.NewParamBuilder()
	_, err := store.QueryRow(ctx, h.store.DB,
		"SELECT id FROM "+table+" WHERE id = "+pb.Add(id), pb.Params()...)
	if err != nil {
		return notFoundOr(err, entity, id)
	}
	return nil
}
