package schema

import (
	"slices"
	"sort"

	"github.com/tinywasm/orm/v2"
)

// OpKind is the kind of a schema operation. Values follow forward order.
type OpKind int

const (
	OpDropIndex OpKind = iota
	OpDropConstraint
	OpCreateTable
	OpAddColumn
	OpAlterColumn
	OpDropColumn
	OpDropTable
	OpAddConstraint
	OpAddIndex
)

func (k OpKind) String() string {
	switch k {
	case OpDropIndex:
		return "drop index"
	case OpDropConstraint:
		return "drop constraint"
	case OpCreateTable:
		return "create table"
	case OpAddColumn:
		return "add column"
	case OpAlterColumn:
		return "alter column"
	case OpDropColumn:
		return "drop column"
	case OpDropTable:
		return "drop table"
	case OpAddConstraint:
		return "add constraint"
	case OpAddIndex:
		return "add index"
	}
	return "unknown"
}

// Operation is one structural change. It carries the definitions needed to
// render it and its inverse.
type Operation struct {
	Kind  OpKind
	Table string
	// Def is the full table for create and drop table.
	Def *Table
	// Column is the new definition for add and alter, the dropped one for drop.
	Column *Column
	// Prior is the live definition replaced by an alter.
	Prior      *Column
	Constraint *Constraint
	Index      *Index
}

// Object names what the operation touches.
func (o Operation) Object() string {
	switch {
	case o.Column != nil:
		return o.Column.Name
	case o.Constraint != nil:
		return o.Constraint.Name
	case o.Index != nil:
		return o.Index.Name
	}
	return o.Table
}

// Inverse returns the operation undoing o.
func (o Operation) Inverse() Operation {
	inv := o
	switch o.Kind {
	case OpCreateTable:
		inv.Kind = OpDropTable
	case OpDropTable:
		inv.Kind = OpCreateTable
	case OpAddColumn:
		inv.Kind = OpDropColumn
	case OpDropColumn:
		inv.Kind = OpAddColumn
	case OpAlterColumn:
		inv.Column, inv.Prior = o.Prior, o.Column
	case OpAddConstraint:
		inv.Kind = OpDropConstraint
	case OpDropConstraint:
		inv.Kind = OpAddConstraint
	case OpAddIndex:
		inv.Kind = OpDropIndex
	case OpDropIndex:
		inv.Kind = OpAddIndex
	}
	return inv
}

// Diff is the ordered set of operations turning the live schema into the
// declared one.
type Diff struct {
	Up []Operation
}

// Empty reports whether live and declared schema match.
func (d Diff) Empty() bool { return len(d.Up) == 0 }

// Down returns the inverses of Up in reverse order.
func (d Diff) Down() []Operation {
	out := make([]Operation, 0, len(d.Up))
	for i := len(d.Up) - 1; i >= 0; i-- {
		out = append(out, d.Up[i].Inverse())
	}
	return out
}

// Render returns forward and backward statements.
func (d Diff) Render(dialect Dialect) (up, down []string, err error) {
	for _, op := range d.Up {
		stmts, err := dialect.Render(op)
		if err != nil {
			return nil, nil, err
		}
		up = append(up, stmts...)
	}
	for _, op := range d.Down() {
		stmts, err := dialect.Render(op)
		if err != nil {
			return nil, nil, err
		}
		down = append(down, stmts...)
	}
	return up, down, nil
}

// Compare diffs live against declared. Identifiers are compared after
// normalization, so a declared name longer than the dialect limit matches its
// truncated live counterpart. Changes that cannot be expressed as a clean
// migration fail with *orm.MigrationDivergenceError.
func Compare(live, declared *Schema, d Dialect) (Diff, error) {
	l := normalized(d, live)
	r := normalized(d, declared)
	var ops []Operation

	for _, t := range r.Tables {
		for _, c := range t.Constraints {
			if c.Kind == KindForeignKey {
				if _, ok := r.Table(c.RefTable); !ok {
					return Diff{}, &orm.MigrationDivergenceError{Table: t.Name, Object: c.Name, Reason: "references undeclared table " + c.RefTable}
				}
			}
		}
	}

	var created []Table
	for _, t := range r.Tables {
		lt, ok := l.Table(t.Name)
		if !ok {
			created = append(created, t)
			continue
		}
		tableOps, err := compareTable(lt, &t, d)
		if err != nil {
			return Diff{}, err
		}
		ops = append(ops, tableOps...)
	}
	for _, t := range createOrder(created) {
		def := t
		ops = append(ops, Operation{Kind: OpCreateTable, Table: t.Name, Def: &def})
	}

	var dropped []Table
	for _, t := range l.Tables {
		if _, ok := r.Table(t.Name); !ok {
			dropped = append(dropped, t)
		}
	}
	order := createOrder(dropped)
	for i := len(order) - 1; i >= 0; i-- {
		def := order[i]
		ops = append(ops, Operation{Kind: OpDropTable, Table: def.Name, Def: &def})
	}

	sort.SliceStable(ops, func(i, j int) bool { return ops[i].Kind < ops[j].Kind })
	return Diff{Up: ops}, nil
}

func compareTable(live, decl *Table, d Dialect) ([]Operation, error) {
	var ops []Operation
	if !slices.Equal(live.PrimaryKey, decl.PrimaryKey) {
		return nil, &orm.MigrationDivergenceError{Table: decl.Name, Object: "primary key", Reason: "primary key columns changed"}
	}

	for _, c := range decl.Columns {
		lc, ok := live.Column(c.Name)
		if !ok {
			col := c
			ops = append(ops, Operation{Kind: OpAddColumn, Table: decl.Name, Column: &col})
			continue
		}
		if sameColumn(lc, &c) {
			continue
		}
		if !d.AlterColumns() {
			return nil, &orm.MigrationDivergenceError{Table: decl.Name, Object: c.Name, Reason: d.Name() + " cannot alter an existing column"}
		}
		col, prior := c, lc.clone()
		ops = append(ops, Operation{Kind: OpAlterColumn, Table: decl.Name, Column: &col, Prior: &prior})
	}
	for _, c := range live.Columns {
		if _, ok := decl.Column(c.Name); !ok {
			col := c
			ops = append(ops, Operation{Kind: OpDropColumn, Table: decl.Name, Column: &col})
		}
	}

	for _, c := range decl.Constraints {
		lc, ok := findConstraint(live.Constraints, c.Name)
		if ok && sameConstraint(lc, &c) {
			continue
		}
		if c.Kind == KindForeignKey && !d.AlterForeignKeys() {
			return nil, &orm.MigrationDivergenceError{Table: decl.Name, Object: c.Name, Reason: d.Name() + " cannot add a foreign key to an existing table"}
		}
		if ok {
			prior := lc.clone()
			ops = append(ops, Operation{Kind: OpDropConstraint, Table: decl.Name, Constraint: &prior})
		}
		add := c.clone()
		ops = append(ops, Operation{Kind: OpAddConstraint, Table: decl.Name, Constraint: &add})
	}
	for _, c := range live.Constraints {
		if _, ok := findConstraint(decl.Constraints, c.Name); ok {
			continue
		}
		if c.Kind == KindForeignKey && !d.AlterForeignKeys() {
			return nil, &orm.MigrationDivergenceError{Table: decl.Name, Object: c.Name, Reason: d.Name() + " cannot drop a foreign key from an existing table"}
		}
		prior := c.clone()
		ops = append(ops, Operation{Kind: OpDropConstraint, Table: decl.Name, Constraint: &prior})
	}

	for _, ix := range decl.Indexes {
		li, ok := findIndex(live.Indexes, ix.Name)
		if ok && li.Unique == ix.Unique && slices.Equal(li.Columns, ix.Columns) {
			continue
		}
		if ok {
			prior := li
			ops = append(ops, Operation{Kind: OpDropIndex, Table: decl.Name, Index: &prior})
		}
		add := ix
		ops = append(ops, Operation{Kind: OpAddIndex, Table: decl.Name, Index: &add})
	}
	for _, ix := range live.Indexes {
		if _, ok := findIndex(decl.Indexes, ix.Name); !ok {
			prior := ix
			ops = append(ops, Operation{Kind: OpDropIndex, Table: decl.Name, Index: &prior})
		}
	}
	return ops, nil
}

func sameColumn(a, b *Column) bool {
	if a.Type != b.Type || a.Nullable != b.Nullable {
		return false
	}
	if (a.Default == nil) != (b.Default == nil) {
		return false
	}
	return a.Default == nil || *a.Default == *b.Default
}

// sameConstraint compares kind and ordered columns; storage as an index is
// not a difference.
func sameConstraint(a, b *Constraint) bool {
	if a.Kind != b.Kind || !slices.Equal(a.Columns, b.Columns) {
		return false
	}
	switch a.Kind {
	case KindForeignKey:
		return a.RefTable == b.RefTable && slices.Equal(a.RefColumns, b.RefColumns) && a.OnDelete == b.OnDelete
	case KindCheck:
		return a.Check == b.Check
	}
	return true
}

func findConstraint(list []Constraint, name string) (*Constraint, bool) {
	for i := range list {
		if list[i].Name == name {
			return &list[i], true
		}
	}
	return nil, false
}

func findIndex(list []Index, name string) (Index, bool) {
	for _, ix := range list {
		if ix.Name == name {
			return ix, true
		}
	}
	return Index{}, false
}

// createOrder sorts tables so a referenced table comes before the tables
// pointing to it. Ties and cycles fall back to name order.
func createOrder(tables []Table) []Table {
	sorted := append([]Table(nil), tables...)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].Name < sorted[j].Name })

	pos := make(map[string]int, len(sorted))
	for i, t := range sorted {
		pos[t.Name] = i
	}
	done := make([]bool, len(sorted))
	out := make([]Table, 0, len(sorted))
	for len(out) < len(sorted) {
		progressed := false
		for i, t := range sorted {
			if done[i] {
				continue
			}
			ready := true
			for _, c := range t.Constraints {
				if c.Kind != KindForeignKey || c.RefTable == t.Name {
					continue
				}
				if j, ok := pos[c.RefTable]; ok && !done[j] {
					ready = false
					break
				}
			}
			if ready {
				done[i] = true
				out = append(out, t)
				progressed = true
				break
			}
		}
		if !progressed {
			for i, t := range sorted {
				if !done[i] {
					done[i] = true
					out = append(out, t)
					break
				}
			}
		}
	}
	return out
}
