package schema

import "github.com/tinywasm/orm/v2"

// Apply performs ops on a copy of s without touching a database. It checks
// the same preconditions a database would: objects to drop must exist and
// objects to create must not.
func Apply(s *Schema, ops []Operation) (*Schema, error) {
	out := s.Clone()
	for _, op := range ops {
		if err := applyOne(out, op); err != nil {
			return nil, err
		}
	}
	return out, nil
}

func applyOne(s *Schema, op Operation) error {
	missing := func(what string) error {
		return &orm.MigrationDivergenceError{Table: op.Table, Object: op.Object(), Reason: what + " does not exist"}
	}
	exists := func(what string) error {
		return &orm.MigrationDivergenceError{Table: op.Table, Object: op.Object(), Reason: what + " already exists"}
	}

	if op.Kind == OpCreateTable {
		if _, ok := s.Table(op.Table); ok {
			return exists("table")
		}
		s.Tables = append(s.Tables, op.Def.clone())
		return nil
	}
	if op.Kind == OpDropTable {
		for i := range s.Tables {
			if s.Tables[i].Name == op.Table {
				s.Tables = append(s.Tables[:i], s.Tables[i+1:]...)
				return nil
			}
		}
		return missing("table")
	}

	t, ok := s.Table(op.Table)
	if !ok {
		return missing("table")
	}
	switch op.Kind {
	case OpAddColumn:
		if _, ok := t.Column(op.Column.Name); ok {
			return exists("column")
		}
		t.Columns = append(t.Columns, op.Column.clone())
	case OpAlterColumn:
		c, ok := t.Column(op.Column.Name)
		if !ok {
			return missing("column")
		}
		*c = op.Column.clone()
	case OpDropColumn:
		i := columnIndex(t, op.Column.Name)
		if i < 0 {
			return missing("column")
		}
		t.Columns = append(t.Columns[:i], t.Columns[i+1:]...)
	case OpAddConstraint:
		if _, ok := findConstraint(t.Constraints, op.Constraint.Name); ok {
			return exists("constraint")
		}
		t.Constraints = append(t.Constraints, op.Constraint.clone())
	case OpDropConstraint:
		for i := range t.Constraints {
			if t.Constraints[i].Name == op.Constraint.Name {
				t.Constraints = append(t.Constraints[:i], t.Constraints[i+1:]...)
				return nil
			}
		}
		return missing("constraint")
	case OpAddIndex:
		if _, ok := findIndex(t.Indexes, op.Index.Name); ok {
			return exists("index")
		}
		ix := *op.Index
		ix.Columns = append([]string(nil), ix.Columns...)
		t.Indexes = append(t.Indexes, ix)
	case OpDropIndex:
		for i := range t.Indexes {
			if t.Indexes[i].Name == op.Index.Name {
				t.Indexes = append(t.Indexes[:i], t.Indexes[i+1:]...)
				return nil
			}
		}
		return missing("index")
	}
	return nil
}

func columnIndex(t *Table, name string) int {
	for i := range t.Columns {
		if t.Columns[i].Name == name {
			return i
		}
	}
	return -1
}
