// Package dialect turns orm queries and schema operations into SQL for
// SQLite and PostgreSQL.
package dialect

import (
	"strconv"
	"strings"

	"github.com/tinywasm/fmt"
	"github.com/tinywasm/orm/v2"
)

// builder accumulates one statement and its arguments.
type builder struct {
	sb          strings.Builder
	args        []any
	placeholder func(n int) string
}

func (b *builder) write(parts ...string) {
	for _, p := range parts {
		b.sb.WriteString(p)
	}
}

func (b *builder) arg(v any) string {
	b.args = append(b.args, v)
	return b.placeholder(len(b.args))
}

func quote(name string) string {
	return `"` + strings.ReplaceAll(name, `"`, `""`) + `"`
}

func quoteAll(names []string) string {
	out := make([]string, len(names))
	for i, n := range names {
		out[i] = quote(n)
	}
	return strings.Join(out, ", ")
}

var operators = map[string]bool{"=": true, "!=": true, ">": true, ">=": true, "<": true, "<=": true, "LIKE": true, "IN": true}

// compile renders q. offsetNeedsLimit adds LIMIT -1 before a bare OFFSET.
func compile(q orm.Query, placeholder func(int) string, offsetNeedsLimit bool) (orm.Plan, error) {
	if q.Table == "" {
		return orm.Plan{}, orm.ErrEmptyTable
	}
	if len(q.Columns) != len(q.Values) && (q.Action == orm.ActionCreate || q.Action == orm.ActionUpdate) {
		return orm.Plan{}, fmt.Err(orm.ErrValidation, "columns and values length mismatch")
	}
	b := &builder{placeholder: placeholder}
	switch q.Action {
	case orm.ActionCreate:
		if len(q.Columns) == 0 {
			b.write("INSERT INTO ", quote(q.Table), " DEFAULT VALUES")
			break
		}
		marks := make([]string, len(q.Values))
		for i, v := range q.Values {
			marks[i] = b.arg(v)
		}
		b.write("INSERT INTO ", quote(q.Table), " (", quoteAll(q.Columns), ") VALUES (", strings.Join(marks, ", "), ")")

	case orm.ActionReadOne, orm.ActionReadAll:
		cols := "*"
		if len(q.Columns) > 0 {
			cols = quoteAll(q.Columns)
		}
		b.write("SELECT ", cols, " FROM ", quote(q.Table))
		if err := where(b, q.Conditions); err != nil {
			return orm.Plan{}, err
		}
		if len(q.OrderBy) > 0 {
			parts := make([]string, len(q.OrderBy))
			for i, o := range q.OrderBy {
				dir := strings.ToUpper(o.Dir())
				if dir == "" {
					dir = "ASC"
				}
				if dir != "ASC" && dir != "DESC" {
					return orm.Plan{}, fmt.Err(orm.ErrValidation, "invalid order direction", o.Dir())
				}
				parts[i] = quote(o.Column()) + " " + dir
			}
			b.write(" ORDER BY ", strings.Join(parts, ", "))
		}
		switch {
		case q.Limit > 0:
			b.write(" LIMIT ", strconv.Itoa(q.Limit))
		case q.Offset > 0 && offsetNeedsLimit:
			b.write(" LIMIT -1")
		}
		if q.Offset > 0 {
			b.write(" OFFSET ", strconv.Itoa(q.Offset))
		}

	case orm.ActionUpdate:
		sets := make([]string, len(q.Columns))
		for i, c := range q.Columns {
			sets[i] = quote(c) + " = " + b.arg(q.Values[i])
		}
		b.write("UPDATE ", quote(q.Table), " SET ", strings.Join(sets, ", "))
		if err := where(b, q.Conditions); err != nil {
			return orm.Plan{}, err
		}

	case orm.ActionDelete:
		b.write("DELETE FROM ", quote(q.Table))
		if err := where(b, q.Conditions); err != nil {
			return orm.Plan{}, err
		}

	default:
		return orm.Plan{}, fmt.Err(orm.ErrValidation, "unknown action")
	}

	if len(q.Returning) > 0 {
		b.write(" RETURNING ", quoteAll(q.Returning))
	}
	return orm.Plan{Mode: q.Action, Query: b.sb.String(), Args: b.args}, nil
}

func where(b *builder, conds []orm.Condition) error {
	for i, c := range conds {
		if i == 0 {
			b.write(" WHERE ")
		} else {
			b.write(" ", c.Logic(), " ")
		}
		op := c.Operator()
		if !operators[op] {
			return fmt.Err(orm.ErrValidation, "invalid operator", op)
		}
		col := quote(c.Field())
		switch {
		case op == "IN":
			vals, _ := c.Value().([]any)
			if len(vals) == 0 {
				b.write("1 = 0")
				continue
			}
			marks := make([]string, len(vals))
			for j, v := range vals {
				marks[j] = b.arg(v)
			}
			b.write(col, " IN (", strings.Join(marks, ", "), ")")
		case c.Value() == nil && op == "=":
			b.write(col, " IS NULL")
		case c.Value() == nil && op == "!=":
			b.write(col, " IS NOT NULL")
		default:
			b.write(col, " ", op, " ", b.arg(c.Value()))
		}
	}
	return nil
}
