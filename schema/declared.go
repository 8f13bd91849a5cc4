package schema

import "github.com/tinywasm/orm/v2"

// FromRegistry builds the declared schema of every registered entity.
//
// Owning to-one relations contribute a column and a foreign key named
// <table>_<column>_foreign; indexed relations also get <table>_<column>_index.
// Unique fields get <table>_<column>_unique.
func FromRegistry(reg *orm.Registry, d Dialect) *Schema {
	s := &Schema{}
	for _, e := range reg.Entities() {
		t := Table{Name: e.Table()}
		pk := e.PrimaryKey()
		t.PrimaryKey = []string{pk.Column}

		for _, f := range e.Fields() {
			auto := f.IsPK() && f.Constraints.Has(orm.ConstraintAutoIncrement)
			col := Column{
				Name:          f.Column,
				Type:          d.ColumnType(f.Type, auto),
				Nullable:      f.Nullable(),
				PrimaryKey:    f.IsPK(),
				AutoIncrement: auto,
			}
			if f.HasDefault {
				lit := d.Literal(f.Default)
				col.Default = &lit
			}
			t.Columns = append(t.Columns, col)
			if f.Constraints.Has(orm.ConstraintUnique) && !f.IsPK() {
				t.Constraints = append(t.Constraints, Constraint{
					Name:    e.Table() + "_" + f.Column + "_unique",
					Kind:    KindUnique,
					Columns: []string{f.Column},
				})
			}
		}

		for _, r := range e.Relations() {
			if r.Kind != orm.ToOne || !r.Owner {
				continue
			}
			target := r.TargetEntity()
			tpk := target.PrimaryKey()
			t.Columns = append(t.Columns, Column{
				Name:     r.Column,
				Type:     d.ColumnType(tpk.Type, false),
				Nullable: r.Nullable,
			})
			t.Constraints = append(t.Constraints, Constraint{
				Name:       e.Table() + "_" + r.Column + "_foreign",
				Kind:       KindForeignKey,
				Columns:    []string{r.Column},
				RefTable:   target.Table(),
				RefColumns: []string{tpk.Column},
				OnDelete:   r.OnDelete,
			})
			if r.Indexed {
				t.Indexes = append(t.Indexes, Index{
					Name:    e.Table() + "_" + r.Column + "_index",
					Columns: []string{r.Column},
				})
			}
		}

		for _, u := range e.Uniques() {
			t.Constraints = append(t.Constraints, Constraint{
				Name:    u.Name,
				Kind:    KindUnique,
				Columns: columnsOf(e, u.Fields),
			})
		}
		for _, ix := range e.Indexes() {
			t.Indexes = append(t.Indexes, Index{
				Name:    ix.Name,
				Columns: columnsOf(e, ix.Fields),
			})
		}
		s.Tables = append(s.Tables, t)
	}
	return s
}

func columnsOf(e *orm.Entity, names []string) []string {
	out := make([]string, 0, len(names))
	for _, n := range names {
		c, _ := e.ColumnOf(n)
		out = append(out, c)
	}
	return out
}
