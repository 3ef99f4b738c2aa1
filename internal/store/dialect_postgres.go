package store

import (
	"context"
	"fmt"
	"strings"
)

// PostgresDialect implements Dialect for PostgreSQL via pgx/stdlib.
type PostgresDialect struct{}

func (d *PostgresDialect) Name() string       { return "postgres" }
func (d *PostgresDialect) DriverName() string { return "pgx" }

func (d *PostgresDialect) NewParamBuilder() ParamBuilder {
	return &pgParamBuilder{}
}

func (d *PostgresDialect) NowExpr() string       { return "NOW()" }
func (d *PostgresDialect) SerialPK() string      { return "SERIAL PRIMARY KEY" }
func (d *PostgresDialect) BoolType() string      { return "BOOLEAN" }
func (d *PostgresDialect) MoneyType() string     { return "DOUBLE PRECISION" }
func (d *PostgresDialect) JSONType() string      { return "JSONB" }
func (d *PostgresDialect) TimestampType() string { return "TIMESTAMPTZ" }

// InsertID appends RETURNING so the id comes back atomically with the
// insert. Reading MAX(id) afterwards is not safe here: each statement in a
// Read Committed transaction sees rows committed by other sessions in the
// meantime.
func (d *PostgresDialect) InsertID(ctx context.Context, q Querier, insertSQL string, args []any) (int64, error) {
	var id int64
	err := q.QueryRowContext(ctx, insertSQL+" RETURNING id", args...).Scan(&id)
	return id, err
}

func (d *PostgresDialect) MapError(err error) error {
	if err == nil {
		return nil
	}
	// With pgx/stdlib, the underlying error message includes the PG code
	errStr := err.Error()
	if strings.Contains(errStr, "23505") || strings.Contains(errStr, "unique constraint") || strings.Contains(errStr, "duplicate key") {
		return fmt.Errorf("%w: %w", ErrUniqueViolation, err)
	}
	return err
}
