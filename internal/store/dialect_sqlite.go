package store

import (
	"context"
	"fmt"
	"strings"
)

// SQLiteDialect implements Dialect for SQLite via modernc.org/sqlite.
type SQLiteDialect struct{}

func (d *SQLiteDialect) Name() string       { return "sqlite" }
func (d *SQLiteDialect) DriverName() string { return "sqlite" }

func (d *SQLiteDialect) NewParamBuilder() ParamBuilder {
	return &sqliteParamBuilder{}
}

func (d *SQLiteDialect) NowExpr() string       { return "datetime('now')" }
func (d *SQLiteDialect) SerialPK() string      { return "INTEGER PRIMARY KEY AUTOINCREMENT" }
func (d *SQLiteDialect) BoolType() string      { return "INTEGER" }
func (d *SQLiteDialect) MoneyType() string     { return "REAL" }
func (d *SQLiteDialect) JSONType() string      { return "TEXT" }
func (d *SQLiteDialect) TimestampType() string { return "TEXT" }

// InsertID uses the driver's rowid of the executed insert, which is scoped
// to this connection.
func (d *SQLiteDialect) InsertID(ctx context.Context, q Querier, insertSQL string, args []any) (int64, error) {
	res, err := q.ExecContext(ctx, insertSQL, args...)
	if err != nil {
		return 0, err
	}
	return res.LastInsertId()
}

func (d *SQLiteDialect) MapError(err error) error {
	if err == nil {
		return nil
	}
	errStr := err.Error()
	if strings.Contains(errStr, "UNIQUE constraint failed") || strings.Contains(errStr, "constraint failed: UNIQUE") {
		return fmt.Errorf("%w: %w", ErrUniqueViolation, err)
	}
	return err
}
