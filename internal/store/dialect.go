package store

import (
	"context"
	"fmt"
)

// Dialect abstracts database-specific SQL generation and behavior.
type Dialect interface {
	// Name returns "postgres" or "sqlite".
	Name() string

	// DriverName returns the database/sql driver name ("pgx" or "sqlite").
	DriverName() string

	// NewParamBuilder creates a dialect-aware parameter builder.
	NewParamBuilder() ParamBuilder

	// NowExpr returns the SQL expression for the current timestamp.
	NowExpr() string

	// SerialPK returns the DDL for an auto-incrementing integer primary key.
	SerialPK() string

	// BoolType returns the DDL type for boolean columns.
	BoolType() string

	// MoneyType returns the DDL type for salary-like columns.
	MoneyType() string

	// JSONType returns the DDL type for free-form JSON columns.
	JSONType() string

	// TimestampType returns the DDL type for timestamp columns.
	TimestampType() string

	// MapError inspects a driver error and returns a well-known sentinel error if applicable.
	MapError(err error) error

	// InsertID executes an INSERT statement and returns the new row's id.
	// The statement must target a table with an `id` primary key and must
	// not carry its own RETURNING clause.
	InsertID(ctx context.Context, q Querier, insertSQL string, args []any) (int64, error)
}

// ParamBuilder accumulates query parameters and generates dialect-specific placeholders.
type ParamBuilder interface {
	// Add appends a value and returns the placeholder string.
	Add(v any) string

	// Params returns all accumulated parameter values.
	Params() []any
}

// NewDialect creates a Dialect for the given driver name ("postgres" or "sqlite").
func NewDialect(driver string) Dialect {
	switch driver {
	case "sqlite":
		return &SQLiteDialect{}
	default:
		return &PostgresDialect{}
	}
}

// --- PostgreSQL ParamBuilder ---

type pgParamBuilder struct {
	params []any
	n      int
}

func (p *pgParamBuilder) Add(v any) string {
	p.n++
	p.params = append(p.params, v)
	return fmt.Sprintf("$%d", p.n)
}

func (p *pgParamBuilder) Params() []any { return p.params }

// --- SQLite ParamBuilder ---

type sqliteParamBuilder struct {
	params []any
	n      int
}

func (p *sqliteParamBuilder) Add(v any) string {
	p.n++
	p.params = append(p.params, v)
	return fmt.Sprintf("?%d", p.n)
}

func (p *sqliteParamBuilder) Params() []any { return p.params }
