package schema

import (
	"context"
	"strings"

	"github.com/tinywasm/orm/v2"
)

// Introspector reads the live schema of a database.
type Introspector interface {
	Introspect(ctx context.Context) (*Schema, error)
}

// SQLiteIntrospector reads table definitions through the pragma table functions.
//
// SQLite keeps no names for foreign keys, so they are reported as
// <table>_<columns>_foreign. Unique constraints are read from unique indexes
// created with CREATE UNIQUE INDEX and carry AsIndex.
type SQLiteIntrospector struct {
	Exec orm.Executor
	// Ignore lists tables left out of the result, such as the migration table.
	Ignore []string
}

func (in *SQLiteIntrospector) Introspect(ctx context.Context) (*Schema, error) {
	names, err := in.list(ctx, `SELECT name FROM sqlite_master WHERE type = 'table' AND name NOT LIKE 'sqlite_%' ORDER BY name`)
	if err != nil {
		return nil, err
	}
	s := &Schema{}
	for _, name := range names {
		if in.ignored(name) {
			continue
		}
		t, err := in.table(ctx, name)
		if err != nil {
			return nil, err
		}
		s.Tables = append(s.Tables, t)
	}
	return s, nil
}

func (in *SQLiteIntrospector) ignored(name string) bool {
	for _, n := range in.Ignore {
		if strings.EqualFold(n, name) {
			return true
		}
	}
	return false
}

func (in *SQLiteIntrospector) table(ctx context.Context, name string) (Table, error) {
	t := Table{Name: name}

	ddl, err := in.list(ctx, `SELECT sql FROM sqlite_master WHERE type = 'table' AND name = ?`, name)
	if err != nil {
		return t, err
	}
	auto := len(ddl) == 1 && strings.Contains(strings.ToUpper(ddl[0]), "AUTOINCREMENT")

	cols, err := in.rows(ctx, `SELECT name, type, "notnull", dflt_value, pk FROM pragma_table_info(?) ORDER BY cid`, name)
	if err != nil {
		return t, err
	}
	pks := map[int64]string{}
	for _, r := range cols {
		pk := asInt(r[4])
		col := Column{
			Name:       asString(r[0]),
			Type:       strings.ToLower(asString(r[1])),
			Nullable:   asInt(r[2]) == 0 && pk == 0,
			PrimaryKey: pk > 0,
		}
		if r[3] != nil {
			d := asString(r[3])
			col.Default = &d
		}
		if pk > 0 {
			pks[pk] = col.Name
			col.AutoIncrement = auto
		}
		t.Columns = append(t.Columns, col)
	}
	for i := int64(1); i <= int64(len(pks)); i++ {
		t.PrimaryKey = append(t.PrimaryKey, pks[i])
	}

	idx, err := in.rows(ctx, `SELECT name, "unique", origin FROM pragma_index_list(?) ORDER BY name`, name)
	if err != nil {
		return t, err
	}
	for _, r := range idx {
		if asString(r[2]) != "c" {
			continue
		}
		ixName := asString(r[0])
		ixCols, err := in.list(ctx, `SELECT name FROM pragma_index_info(?) ORDER BY seqno`, ixName)
		if err != nil {
			return t, err
		}
		if asInt(r[1]) == 1 {
			t.Constraints = append(t.Constraints, Constraint{Name: ixName, Kind: KindUnique, Columns: ixCols, AsIndex: true})
			continue
		}
		t.Indexes = append(t.Indexes, Index{Name: ixName, Columns: ixCols})
	}

	fks, err := in.rows(ctx, `SELECT id, "table", "from", "to", on_delete FROM pragma_foreign_key_list(?) ORDER BY id, seq`, name)
	if err != nil {
		return t, err
	}
	var cur *Constraint
	lastID := int64(-1)
	for _, r := range fks {
		if id := asInt(r[0]); id != lastID || cur == nil {
			t.Constraints = append(t.Constraints, Constraint{
				Kind:     KindForeignKey,
				RefTable: asString(r[1]),
				OnDelete: asString(r[4]),
			})
			cur = &t.Constraints[len(t.Constraints)-1]
			lastID = id
		}
		cur.Columns = append(cur.Columns, asString(r[2]))
		cur.RefColumns = append(cur.RefColumns, asString(r[3]))
	}
	for i := range t.Constraints {
		if c := &t.Constraints[i]; c.Kind == KindForeignKey {
			c.Name = name + "_" + strings.Join(c.Columns, "_") + "_foreign"
		}
	}
	return t, nil
}

func (in *SQLiteIntrospector) rows(ctx context.Context, query string, args ...any) ([][]any, error) {
	rows, err := in.Exec.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	cols, err := rows.Columns()
	if err != nil {
		return nil, err
	}
	var out [][]any
	for rows.Next() {
		vals := make([]any, len(cols))
		ptrs := make([]any, len(cols))
		for i := range vals {
			ptrs[i] = &vals[i]
		}
		if err := rows.Scan(ptrs...); err != nil {
			return nil, err
		}
		out = append(out, vals)
	}
	return out, rows.Err()
}

func (in *SQLiteIntrospector) list(ctx context.Context, query string, args ...any) ([]string, error) {
	rows, err := in.rows(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	out := make([]string, 0, len(rows))
	for _, r := range rows {
		out = append(out, asString(r[0]))
	}
	return out, nil
}

func asString(v any) string {
	switch x := v.(type) {
	case string:
		return x
	case []byte:
		return string(x)
	case nil:
		return ""
	}
	return ""
}

func asInt(v any) int64 {
	switch x := v.(type) {
	case int64:
		return x
	case int:
		return int64(x)
	case bool:
		if x {
			return 1
		}
	}
	return 0
}
