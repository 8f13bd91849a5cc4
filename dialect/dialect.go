package dialect

import (
	"strconv"
	"strings"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/tinywasm/orm/v2"
	"github.com/tinywasm/orm/v2/schema"
)

// SQLite compiles for SQLite 3.35 or later (RETURNING and DROP COLUMN).
type SQLite struct{}

// Postgres compiles for PostgreSQL.
type Postgres struct{}

var (
	_ orm.Compiler         = SQLite{}
	_ orm.ForeignKeySwitch = SQLite{}
	_ schema.Dialect       = SQLite{}
	_ orm.Compiler         = Postgres{}
	_ orm.ForeignKeySwitch = Postgres{}
	_ schema.Dialect       = Postgres{}
)

// For returns the dialect registered under name, as used by orm.Config.
func For(name string) (interface {
	orm.Compiler
	schema.Dialect
}, bool) {
	switch name {
	case "sqlite":
		return SQLite{}, true
	case "postgres":
		return Postgres{}, true
	}
	return nil, false
}

func questionMark(int) string { return "?" }

func dollar(n int) string { return "$" + strconv.Itoa(n) }

func (SQLite) Compile(q orm.Query) (orm.Plan, error) {
	return compile(q, questionMark, true)
}

func (Postgres) Compile(q orm.Query) (orm.Plan, error) {
	return compile(q, dollar, false)
}

func (SQLite) DisableForeignKeys() string { return "PRAGMA defer_foreign_keys = ON" }

func (Postgres) DisableForeignKeys() string { return "SET CONSTRAINTS ALL DEFERRED" }

func (SQLite) Name() string   { return "sqlite" }
func (Postgres) Name() string { return "postgres" }

// SQLite has no identifier length limit.
func (SQLite) MaxIdentifierLength() int   { return 0 }
func (Postgres) MaxIdentifierLength() int { return 63 }

func (SQLite) AlterColumns() bool       { return false }
func (SQLite) AlterForeignKeys() bool   { return false }
func (Postgres) AlterColumns() bool     { return true }
func (Postgres) AlterForeignKeys() bool { return true }

func (SQLite) ColumnType(t orm.FieldType, autoIncrement bool) string {
	switch t {
	case orm.TypeInt64, orm.TypeBool:
		return "integer"
	case orm.TypeFloat64:
		return "real"
	case orm.TypeBlob:
		return "blob"
	case orm.TypeDecimal:
		return "numeric"
	}
	return "text"
}

func (Postgres) ColumnType(t orm.FieldType, autoIncrement bool) string {
	switch t {
	case orm.TypeInt64:
		if autoIncrement {
			return "bigserial"
		}
		return "bigint"
	case orm.TypeFloat64:
		return "double precision"
	case orm.TypeBool:
		return "boolean"
	case orm.TypeBlob:
		return "bytea"
	case orm.TypeDecimal:
		return "numeric"
	case orm.TypeUUID:
		return "uuid"
	}
	return "text"
}

func (SQLite) Literal(v any) string {
	if b, ok := v.(bool); ok {
		if b {
			return "1"
		}
		return "0"
	}
	return literal(v)
}

func (Postgres) Literal(v any) string {
	if b, ok := v.(bool); ok {
		return strconv.FormatBool(b)
	}
	return literal(v)
}

func literal(v any) string {
	switch x := v.(type) {
	case nil:
		return "NULL"
	case string:
		return "'" + strings.ReplaceAll(x, "'", "''") + "'"
	case int:
		return strconv.Itoa(x)
	case int32:
		return strconv.FormatInt(int64(x), 10)
	case int64:
		return strconv.FormatInt(x, 10)
	case float64:
		return strconv.FormatFloat(x, 'g', -1, 64)
	case decimal.Decimal:
		return x.String()
	case uuid.UUID:
		return "'" + x.String() + "'"
	}
	return "NULL"
}
