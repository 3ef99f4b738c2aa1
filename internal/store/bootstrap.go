package store

import (
	"context"
	"fmt"
	"log"

	"golang.org/x/crypto/bcrypt"
)

// tableDDL builds the schema statements for the configured dialect.
// Statements are executed one at a time; modernc/sqlite and pgx differ in
// how they treat multi-statement Exec calls.
func tableDDL(d Dialect) []string {
	return []string{
		fmt.Sprintf(`CREATE TABLE IF NOT EXISTS roles (
    id   %s,
    name TEXT NOT NULL UNIQUE
)`, d.SerialPK()),

		fmt.Sprintf(`CREATE TABLE IF NOT EXISTS positions (
    id   %s,
    name TEXT NOT NULL UNIQUE
)`, d.SerialPK()),

		fmt.Sprintf(`CREATE TABLE IF NOT EXISTS persons (
    id              %s,
    passport_number TEXT NOT NULL,
    first_name      TEXT NOT NULL,
    middle_name     TEXT,
    last_name       TEXT NOT NULL,
    phone_number    TEXT NOT NULL,
    email           TEXT NOT NULL UNIQUE
)`, d.SerialPK()),

		fmt.Sprintf(`CREATE TABLE IF NOT EXISTS employees (
    id          %s,
    person_id   INTEGER NOT NULL REFERENCES persons(id) ON DELETE CASCADE,
    position_id INTEGER NOT NULL REFERENCES positions(id),
    salary      %s NOT NULL DEFAULT 0,
    hire_date   %s NOT NULL
)`, d.SerialPK(), d.MoneyType(), d.TimestampType()),

		fmt.Sprintf(`CREATE TABLE IF NOT EXISTS accounts (
    id            %s,
    username      TEXT NOT NULL UNIQUE,
    password_hash TEXT NOT NULL,
    employee_id   INTEGER NOT NULL REFERENCES employees(id) ON DELETE CASCADE,
    role_id       INTEGER NOT NULL REFERENCES roles(id)
)`, d.SerialPK()),

		fmt.Sprintf(`CREATE TABLE IF NOT EXISTS device_types (
    id   %s,
    name TEXT NOT NULL UNIQUE
)`, d.SerialPK()),

		fmt.Sprintf(`CREATE TABLE IF NOT EXISTS devices (
    id                    %s,
    name                  TEXT NOT NULL,
    type_id               INTEGER NOT NULL REFERENCES device_types(id),
    is_enabled            %s NOT NULL DEFAULT %s,
    mode                  TEXT NOT NULL DEFAULT 'manual',
    additional_properties %s
)`, d.SerialPK(), d.BoolType(), boolLiteral(d, true), d.JSONType()),

		`CREATE TABLE IF NOT EXISTS device_employees (
    device_id   INTEGER NOT NULL REFERENCES devices(id) ON DELETE CASCADE,
    employee_id INTEGER NOT NULL REFERENCES employees(id) ON DELETE CASCADE,
    PRIMARY KEY (device_id, employee_id)
)`,

		fmt.Sprintf(`CREATE TABLE IF NOT EXISTS refresh_tokens (
    id         %s,
    account_id INTEGER NOT NULL REFERENCES accounts(id) ON DELETE CASCADE,
    token      TEXT NOT NULL UNIQUE,
    expires_at %s NOT NULL
)`, d.SerialPK(), d.TimestampType()),

		`CREATE INDEX IF NOT EXISTS idx_refresh_tokens_token ON refresh_tokens(token)`,
		`CREATE INDEX IF NOT EXISTS idx_persons_email ON persons(email)`,
	}
}

func boolLiteral(d Dialect, v bool) string {
	if d.Name() == "sqlite" {
		if v {
			return "1"
		}
		return "0"
	}
	if v {
		return "TRUE"
	}
	return "FALSE"
}

// Bootstrap creates the schema and seeds reference data plus a default
// admin account when the database is empty.
func (s *Store) Bootstrap(ctx context.Context) error {
	for _, stmt := range tableDDL(s.Dialect) {
		if _, err := s.DB.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("bootstrap schema: %w", err)
		}
	}
	if err := s.seedLookups(ctx); err != nil {
		return fmt.Errorf("seed lookups: %w", err)
	}
	if err := s.seedAdminAccount(ctx); err != nil {
		return fmt.Errorf("seed admin account: %w", err)
	}
	return nil
}

func (s *Store) seedLookups(ctx context.Context) error {
	seeds := []struct {
		table string
		names []string
	}{
		{"roles", []string{"Admin", "User"}},
		{"positions", []string{"System Administrator"}},
		{"device_types", []string{"Laptop", "Smartphone", "Thermostat"}},
	}
	for _, seed := range seeds {
		var count int64
		if err := s.DB.QueryRowContext(ctx, "SELECT COUNT(*) FROM "+seed.table).Scan(&count); err != nil {
			return err
		}
		if count > 0 {
			continue
		}
		for _, name := range seed.names {
			pb := s.Dialect.NewParamBuilder()
			stmt := fmt.Sprintf("INSERT INTO %s (name) VALUES (%s)", seed.table, pb.Add(name))
			if _, err := s.DB.ExecContext(ctx, stmt, pb.Params()...); err != nil {
				return err
			}
		}
	}
	return nil
}

func (s *Store) seedAdminAccount(ctx context.Context) error {
	var count int64
	if err := s.DB.QueryRowContext(ctx, "SELECT COUNT(*) FROM accounts").Scan(&count); err != nil {
		return err
	}
	if count > 0 {
		return nil
	}

	hashBytes, err := bcrypt.GenerateFromPassword([]byte("ChangeMe-123!"), bcrypt.DefaultCost)
	if err != nil {
		return err
	}

	tx, err := s.BeginTx(ctx)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	pb := s.Dialect.NewParamBuilder()
	personSQL := fmt.Sprintf(
		`INSERT INTO persons (passport_number, first_name, last_name, phone_number, email)
		 VALUES (%s, %s, %s, %s, %s)`,
		pb.Add("N/A"), pb.Add("System"), pb.Add("Administrator"),
		pb.Add("+000000000"), pb.Add("admin@localhost"))
	personID, err := s.Dialect.InsertID(ctx, tx, personSQL, pb.Params())
	if err != nil {
		return err
	}

	pb = s.Dialect.NewParamBuilder()
	empSQL := fmt.Sprintf(
		`INSERT INTO employees (person_id, position_id, salary, hire_date)
		 SELECT %s, id, 0, %s FROM positions WHERE name = %s`,
		pb.Add(personID), s.Dialect.NowExpr(), pb.Add("System Administrator"))
	employeeID, err := s.Dialect.InsertID(ctx, tx, empSQL, pb.Params())
	if err != nil {
		return err
	}

	pb = s.Dialect.NewParamBuilder()
	accSQL := fmt.Sprintf(
		`INSERT INTO accounts (username, password_hash, employee_id, role_id)
		 SELECT %s, %s, %s, id FROM roles WHERE name = %s`,
		pb.Add("admin"), pb.Add(string(hashBytes)), pb.Add(employeeID), pb.Add("Admin"))
	if _, err := tx.ExecContext(ctx, accSQL, pb.Params()...); err != nil {
		return err
	}

	if err := tx.Commit(); err != nil {
		return err
	}

	log.Println("WARNING: default admin account created (admin / ChangeMe-123!), change the password immediately")
	return nil
}
