package api

import (
	"errors"
	"fmt"
	"time"

	"github.com/gofiber/fiber/v2"

	"employee-manager/internal/store"
)

// ListEmployees handles GET /api/employees (admin only).
func (h *Handler) ListEmployees(c *fiber.Ctx) error {
	rows, err := store.QueryRows(c.Context(), h.store.DB,
		`SELECT e.id, p.first_name, p.middle_name, p.last_name
		 FROM employees e JOIN persons p ON p.id = e.person_id
		 ORDER BY e.id`)
	if err != nil {
		return err
	}

	out := make([]map[string]any, 0, len(rows))
	for _, row := range rows {
		full := store.AsString(row["first_name"])
		if middle := store.AsString(row["middle_name"]); middle != "" {
			full += " " + middle
		}
		full += " " + store.AsString(row["last_name"])
		out = append(out, map[string]any{
			"id":       store.AsInt64(row["id"]),
			"fullName": full,
		})
	}
	return c.JSON(fiber.Map{"data": out})
}

// GetEmployee handles GET /api/employees/:id (admin only).
func (h *Handler) GetEmployee(c *fiber.Ctx) error {
	id, err := parseID(c)
	if err != nil {
		return err
	}
	ctx := c.Context()

	pb := h.store.Dialect.NewParamBuilder()
	row, err := store.QueryRow(ctx, h.store.DB,
		`SELECT p.passport_number, p.first_name, p.middle_name, p.last_name,
		        p.phone_number, p.email, e.salary, e.hire_date, pos.name AS position
		 FROM employees e
		 JOIN persons p ON p.id = e.person_id
		 JOIN positions pos ON pos.id = e.position_id
		 WHERE e.id = `+pb.Add(id), pb.Params()...)
	if err != nil {
		return notFoundOr(err, "Employee", id)
	}

	hired := ""
	if t, ok := row["hire_date"].(time.Time); ok {
		hired = t.Format("2006-01-02")
	} else {
		hired = store.AsString(row["hire_date"])
	}

	return c.JSON(fiber.Map{"data": fiber.Map{
		"person": fiber.Map{
			"passportNumber": store.AsString(row["passport_number"]),
			"firstName":      store.AsString(row["first_name"]),
			"middleName":     store.AsString(row["middle_name"]),
			"lastName":       store.AsString(row["last_name"]),
			"phoneNumber":    store.AsString(row["phone_number"]),
			"email":          store.AsString(row["email"]),
		},
		"salary":   row["salary"],
		"position": store.AsString(row["position"]),
		"hireDate": hired,
	}})
}

// CreateEmployee handles POST /api/employees (admin only). Person and
// employee rows are written in one transaction so a failed second insert
// leaves nothing behind.
func (h *Handler) CreateEmployee(c *fiber.Ctx) error {
	var body CreateEmployeeRequest
	if err := c.BodyParser(&body); err != nil {
		return NewAppError("INVALID_PAYLOAD", 400, "Invalid request body")
	}
	if details := body.Validate(); len(details) > 0 {
		return ValidationError(details)
	}

	ctx := c.Context()
	pb := h.store.Dialect.NewParamBuilder()
	_, err := store.QueryRow(ctx, h.store.DB,
		"SELECT id FROM positions WHERE id = "+pb.Add(body.PositionID), pb.Params()...)
	if err != nil {
		return NewAppError("INVALID_POSITION", 400, "Invalid position")
	}

	tx, err := h.store.BeginTx(ctx)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	pb = h.store.Dialect.NewParamBuilder()
	personSQL := `INSERT INTO persons (passport_number, first_name, middle_name, last_name, phone_number, email) VALUES (` +
		pb.Add(body.Person.PassportNumber) + `, ` + pb.Add(body.Person.FirstName) + `, ` +
		pb.Add(nullIfEmpty(body.Person.MiddleName)) + `, ` + pb.Add(body.Person.LastName) + `, ` +
		pb.Add(body.Person.PhoneNumber) + `, ` + pb.Add(body.Person.Email) + `)`
	personID, err := h.store.Dialect.InsertID(ctx, tx, personSQL, pb.Params())
	if err != nil {
		if errors.Is(store.MapError(h.store.Dialect, err), store.ErrUniqueViolation) {
			return NewAppError("CONFLICT", 409, "Email already registered")
		}
		return err
	}

	pb = h.store.Dialect.NewParamBuilder()
	empSQL := fmt.Sprintf(
		`INSERT INTO employees (person_id, position_id, salary, hire_date) VALUES (%s, %s, %s, %s)`,
		pb.Add(personID), pb.Add(body.PositionID), pb.Add(body.Salary), h.store.Dialect.NowExpr())
	if _, err := tx.ExecContext(ctx, empSQL, pb.Params()...); err != nil {
		return err
	}

	if err := tx.Commit(); err != nil {
		return err
	}
	return c.SendStatus(fiber.StatusCreated)
}

func nullIfEmpty(s string) any {
	if s == "" {
		return nil
	}
	return s
}
