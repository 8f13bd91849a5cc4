package dialect

import (
	"strings"

	"github.com/tinywasm/orm/v2"
	"github.com/tinywasm/orm/v2/schema"
)

func (d SQLite) Render(op schema.Operation) ([]string, error) {
	return render(op, ddl{dialect: d, indexedUniques: true})
}

func (d Postgres) Render(op schema.Operation) ([]string, error) {
	return render(op, ddl{dialect: d})
}

type ddl struct {
	dialect schema.Dialect
	// indexedUniques stores every unique constraint as a unique index.
	indexedUniques bool
}

func (g ddl) unsupported(op schema.Operation) error {
	return &orm.MigrationDivergenceError{
		Table:  op.Table,
		Object: op.Object(),
		Reason: g.dialect.Name() + " cannot " + op.Kind.String() + " on an existing table",
	}
}

func render(op schema.Operation, g ddl) ([]string, error) {
	table := quote(op.Table)
	switch op.Kind {
	case schema.OpCreateTable:
		return g.createTable(op.Def), nil

	case schema.OpDropTable:
		return []string{"DROP TABLE " + table}, nil

	case schema.OpAddColumn:
		return []string{"ALTER TABLE " + table + " ADD COLUMN " + g.column(op.Column)}, nil

	case schema.OpDropColumn:
		return []string{"ALTER TABLE " + table + " DROP COLUMN " + quote(op.Column.Name)}, nil

	case schema.OpAlterColumn:
		if !g.dialect.AlterColumns() {
			return nil, g.unsupported(op)
		}
		return alterColumn(table, op.Column, op.Prior), nil

	case schema.OpAddConstraint:
		c := op.Constraint
		if c.Kind == schema.KindUnique && (g.indexedUniques || c.AsIndex) {
			return []string{createIndex(op.Table, c.Name, c.Columns, true)}, nil
		}
		if !g.dialect.AlterForeignKeys() {
			return nil, g.unsupported(op)
		}
		return []string{"ALTER TABLE " + table + " ADD " + constraint(c)}, nil

	case schema.OpDropConstraint:
		c := op.Constraint
		if c.Kind == schema.KindUnique && (g.indexedUniques || c.AsIndex) {
			return []string{"DROP INDEX " + quote(c.Name)}, nil
		}
		if !g.dialect.AlterForeignKeys() {
			return nil, g.unsupported(op)
		}
		return []string{"ALTER TABLE " + table + " DROP CONSTRAINT " + quote(c.Name)}, nil

	case schema.OpAddIndex:
		return []string{createIndex(op.Table, op.Index.Name, op.Index.Columns, op.Index.Unique)}, nil

	case schema.OpDropIndex:
		return []string{"DROP INDEX " + quote(op.Index.Name)}, nil
	}
	return nil, g.unsupported(op)
}

func (g ddl) createTable(t *schema.Table) []string {
	var defs []string
	inlinePK := false
	for i := range t.Columns {
		c := &t.Columns[i]
		def := g.column(c)
		if _, ok := g.dialect.(SQLite); ok && c.AutoIncrement && len(t.PrimaryKey) == 1 && t.PrimaryKey[0] == c.Name {
			def += " PRIMARY KEY AUTOINCREMENT"
			inlinePK = true
		}
		defs = append(defs, def)
	}
	if len(t.PrimaryKey) > 0 && !inlinePK {
		defs = append(defs, "PRIMARY KEY ("+quoteAll(t.PrimaryKey)+")")
	}

	var after []string
	for _, c := range t.Constraints {
		if c.Kind == schema.KindUnique && (g.indexedUniques || c.AsIndex) {
			after = append(after, createIndex(t.Name, c.Name, c.Columns, true))
			continue
		}
		defs = append(defs, constraint(&c))
	}
	for _, ix := range t.Indexes {
		after = append(after, createIndex(t.Name, ix.Name, ix.Columns, ix.Unique))
	}

	stmts := []string{"CREATE TABLE " + quote(t.Name) + " (" + strings.Join(defs, ", ") + ")"}
	return append(stmts, after...)
}

func (g ddl) column(c *schema.Column) string {
	def := quote(c.Name) + " " + c.Type
	if !c.Nullable {
		def += " NOT NULL"
	}
	if c.Default != nil {
		def += " DEFAULT " + *c.Default
	}
	return def
}

func constraint(c *schema.Constraint) string {
	head := "CONSTRAINT " + quote(c.Name) + " "
	switch c.Kind {
	case schema.KindForeignKey:
		s := head + "FOREIGN KEY (" + quoteAll(c.Columns) + ") REFERENCES " + quote(c.RefTable) + " (" + quoteAll(c.RefColumns) + ")"
		if a := strings.ToUpper(strings.TrimSpace(c.OnDelete)); a != "" && a != "NO ACTION" {
			s += " ON DELETE " + a
		}
		return s
	case schema.KindCheck:
		return head + "CHECK (" + c.Check + ")"
	}
	return head + "UNIQUE (" + quoteAll(c.Columns) + ")"
}

func createIndex(table, name string, cols []string, unique bool) string {
	kw := "CREATE INDEX "
	if unique {
		kw = "CREATE UNIQUE INDEX "
	}
	return kw + quote(name) + " ON " + quote(table) + " (" + quoteAll(cols) + ")"
}

func alterColumn(table string, to, from *schema.Column) []string {
	prefix := "ALTER TABLE " + table + " ALTER COLUMN " + quote(to.Name)
	var out []string
	if from == nil || to.Type != from.Type {
		out = append(out, prefix+" TYPE "+to.Type)
	}
	if from == nil || to.Nullable != from.Nullable {
		if to.Nullable {
			out = append(out, prefix+" DROP NOT NULL")
		} else {
			out = append(out, prefix+" SET NOT NULL")
		}
	}
	fromDefault := ""
	if from != nil && from.Default != nil {
		fromDefault = *from.Default
	}
	toDefault := ""
	if to.Default != nil {
		toDefault = *to.Default
	}
	if from == nil || fromDefault != toDefault || (to.Default == nil) != (from.Default == nil) {
		if to.Default == nil {
			out = append(out, prefix+" DROP DEFAULT")
		} else {
			out = append(out, prefix+" SET DEFAULT "+toDefault)
		}
	}
	return out
}
