// Package schema models relational schema, diffs a live schema against the
// declared one and renders the difference as migrations.
package schema

import (
	"strings"

	"github.com/tinywasm/orm/v2"
)

// Column is one table column. Type is the dialect type in lower case and
// Default the rendered SQL literal, nil when the column has none.
type Column struct {
	Name          string
	Type          string
	Nullable      bool
	Default       *string
	PrimaryKey    bool
	AutoIncrement bool
}

// ConstraintKind distinguishes table constraints.
type ConstraintKind int

const (
	KindUnique ConstraintKind = iota
	KindForeignKey
	KindCheck
)

func (k ConstraintKind) String() string {
	switch k {
	case KindUnique:
		return "unique"
	case KindForeignKey:
		return "foreign key"
	case KindCheck:
		return "check"
	}
	return "unknown"
}

// Constraint is a named unique, foreign-key or check constraint.
type Constraint struct {
	Name       string
	Kind       ConstraintKind
	Columns    []string
	RefTable   string
	RefColumns []string
	OnDelete   string
	Check      string
	// AsIndex marks a unique constraint stored as a unique index.
	AsIndex bool
}

// Index is a named secondary index.
type Index struct {
	Name    string
	Columns []string
	Unique  bool
}

// Table is one table definition.
type Table struct {
	Name        string
	Columns     []Column
	PrimaryKey  []string
	Constraints []Constraint
	Indexes     []Index
}

// Column returns the column named name.
func (t *Table) Column(name string) (*Column, bool) {
	for i := range t.Columns {
		if t.Columns[i].Name == name {
			return &t.Columns[i], true
		}
	}
	return nil, false
}

// Schema is a set of tables.
type Schema struct {
	Tables []Table
}

// Table returns the table named name.
func (s *Schema) Table(name string) (*Table, bool) {
	for i := range s.Tables {
		if s.Tables[i].Name == name {
			return &s.Tables[i], true
		}
	}
	return nil, false
}

// Clone returns a deep copy.
func (s *Schema) Clone() *Schema {
	out := &Schema{Tables: make([]Table, len(s.Tables))}
	for i, t := range s.Tables {
		out.Tables[i] = t.clone()
	}
	return out
}

func (t Table) clone() Table {
	c := Table{
		Name:        t.Name,
		Columns:     make([]Column, len(t.Columns)),
		PrimaryKey:  append([]string(nil), t.PrimaryKey...),
		Constraints: make([]Constraint, len(t.Constraints)),
		Indexes:     make([]Index, len(t.Indexes)),
	}
	for i, col := range t.Columns {
		c.Columns[i] = col.clone()
	}
	for i, k := range t.Constraints {
		c.Constraints[i] = k.clone()
	}
	for i, ix := range t.Indexes {
		ix.Columns = append([]string(nil), ix.Columns...)
		c.Indexes[i] = ix
	}
	return c
}

func (c Column) clone() Column {
	if c.Default != nil {
		d := *c.Default
		c.Default = &d
	}
	return c
}

func (c Constraint) clone() Constraint {
	c.Columns = append([]string(nil), c.Columns...)
	c.RefColumns = append([]string(nil), c.RefColumns...)
	return c
}

// Dialect is what the diff engine needs from a SQL dialect.
type Dialect interface {
	Name() string
	// MaxIdentifierLength is the length identifiers are truncated to.
	MaxIdentifierLength() int
	// ColumnType maps a field type to the dialect column type.
	ColumnType(t orm.FieldType, autoIncrement bool) string
	// Literal renders a default value.
	Literal(v any) string
	// AlterColumns reports whether an existing column can change definition.
	AlterColumns() bool
	// AlterForeignKeys reports whether foreign keys can be added to or
	// dropped from an existing table.
	AlterForeignKeys() bool
	// Render returns the statements performing op.
	Render(op Operation) ([]string, error)
}

// Normalize lower-cases name and truncates it to the dialect limit.
func Normalize(d Dialect, name string) string {
	name = strings.ToLower(name)
	if max := d.MaxIdentifierLength(); max > 0 && len(name) > max {
		name = name[:max]
	}
	return name
}

func normalizeAll(d Dialect, names []string) []string {
	out := make([]string, len(names))
	for i, n := range names {
		out[i] = Normalize(d, n)
	}
	return out
}

// normalized returns a copy of s with every identifier normalized.
func normalized(d Dialect, s *Schema) *Schema {
	out := s.Clone()
	for ti := range out.Tables {
		t := &out.Tables[ti]
		t.Name = Normalize(d, t.Name)
		t.PrimaryKey = normalizeAll(d, t.PrimaryKey)
		for i := range t.Columns {
			c := &t.Columns[i]
			c.Name = Normalize(d, c.Name)
			c.Type = strings.ToLower(strings.TrimSpace(c.Type))
		}
		for i := range t.Constraints {
			c := &t.Constraints[i]
			c.Name = Normalize(d, c.Name)
			c.Columns = normalizeAll(d, c.Columns)
			c.RefColumns = normalizeAll(d, c.RefColumns)
			if c.RefTable != "" {
				c.RefTable = Normalize(d, c.RefTable)
			}
			c.OnDelete = normalizeAction(c.OnDelete)
		}
		for i := range t.Indexes {
			ix := &t.Indexes[i]
			ix.Name = Normalize(d, ix.Name)
			ix.Columns = normalizeAll(d, ix.Columns)
		}
	}
	return out
}

func normalizeAction(a string) string {
	a = strings.ToLower(strings.TrimSpace(a))
	if a == "" {
		return "no action"
	}
	return a
}
