package orm

import "context"

// QB represents a query builder bound to one entity of an EntityManager.
// Consumers hold a *QB reference in variables for incremental building.
type QB struct {
	em      *EntityManager
	meta    *Entity
	conds   []Condition
	orderBy []Order
	fields  []string
	limit   int
	offset  int
	err     error
}

// Query starts a query on entity. Lookup errors surface from All or One.
func (em *EntityManager) Query(entity string) *QB {
	meta, err := em.registry.Entity(entity)
	return &QB{em: em, meta: meta, err: err}
}

// Where adds conditions to the query. Fields are property names.
func (qb *QB) Where(conds ...Condition) *QB {
	qb.conds = append(qb.conds, conds...)
	return qb
}

// Limit sets the limit for the query.
func (qb *QB) Limit(limit int) *QB {
	qb.limit = limit
	return qb
}

// Offset sets the offset for the query.
func (qb *QB) Offset(offset int) *QB {
	qb.offset = offset
	return qb
}

// OrderBy adds an order clause to the query.
func (qb *QB) OrderBy(field, dir string) *QB {
	qb.orderBy = append(qb.orderBy, Order{column: field, dir: dir})
	return qb
}

// Fields restricts hydration to names. The primary key is always selected.
func (qb *QB) Fields(names ...string) *QB {
	qb.fields = append(qb.fields, names...)
	return qb
}

// One executes the query and returns the first match.
func (qb *QB) One(ctx context.Context) (*Instance, error) {
	qb.limit = 1
	list, err := qb.run(ctx, ActionReadOne)
	if err != nil {
		return nil, err
	}
	if len(list) == 0 {
		return nil, &NotFoundError{Entity: qb.meta.name}
	}
	return list[0], nil
}

// All executes the query and returns every match in row order.
func (qb *QB) All(ctx context.Context) ([]*Instance, error) {
	return qb.run(ctx, ActionReadAll)
}

func (qb *QB) run(ctx context.Context, action Action) ([]*Instance, error) {
	if qb.err != nil {
		return nil, qb.err
	}
	meta := qb.meta
	requested, err := selection(meta, qb.fields)
	if err != nil {
		return nil, err
	}
	cols := make([]string, 0, len(requested))
	for _, name := range requested {
		c, _ := meta.ColumnOf(name)
		cols = append(cols, c)
	}
	conds, err := columnConditions(meta, qb.conds)
	if err != nil {
		return nil, err
	}
	orders := make([]Order, 0, len(qb.orderBy))
	for _, o := range qb.orderBy {
		c, ok := meta.ColumnOf(o.column)
		if !ok {
			return nil, &ValidationError{Entity: meta.name, Field: o.column, Reason: "unknown order field"}
		}
		orders = append(orders, Order{column: c, dir: o.dir})
	}

	q := Query{
		Action:     action,
		Table:      meta.table,
		Columns:    cols,
		Conditions: conds,
		OrderBy:    orders,
		Limit:      qb.limit,
		Offset:     qb.offset,
	}
	rows, err := qb.em.query(ctx, qb.em.exec, q)
	if err != nil {
		return nil, err
	}

	out := make([]*Instance, 0, len(rows))
	for _, row := range rows {
		inst, err := qb.em.identity.GetOrCreate(meta, row[meta.PrimaryKey().Column])
		if err != nil {
			return nil, err
		}
		if err := hydrate(qb.em.identity, inst, row, requested); err != nil {
			return nil, err
		}
		out = append(out, inst)
	}
	return out, nil
}

// selection validates names and returns them with the primary key first.
// No names selects every column-backed property.
func selection(meta *Entity, names []string) ([]string, error) {
	if len(names) == 0 {
		return meta.Properties(), nil
	}
	out := []string{meta.pk}
	seen := map[string]bool{meta.pk: true}
	for _, n := range names {
		if _, ok := meta.ColumnOf(n); !ok {
			return nil, &ValidationError{Entity: meta.name, Field: n, Reason: "not a column-backed property"}
		}
		if seen[n] {
			continue
		}
		seen[n] = true
		out = append(out, n)
	}
	return out, nil
}

func columnConditions(meta *Entity, conds []Condition) ([]Condition, error) {
	out := make([]Condition, 0, len(conds))
	for _, c := range conds {
		col, ok := meta.ColumnOf(c.field)
		if !ok {
			return nil, &ValidationError{Entity: meta.name, Field: c.field, Reason: "unknown condition field"}
		}
		c.field = col
		switch v := c.value.(type) {
		case *Instance:
			c.value = instanceKey(v)
		case []any:
			vals := make([]any, len(v))
			for i, x := range v {
				if inst, ok := x.(*Instance); ok {
					x = instanceKey(inst)
				}
				vals[i] = x
			}
			c.value = vals
		}
		out = append(out, c)
	}
	return out, nil
}

func instanceKey(inst *Instance) any {
	if inst == nil {
		return nil
	}
	return inst.key
}

// query compiles q, runs it on exec and collects the rows by column name.
func (em *EntityManager) query(ctx context.Context, exec Executor, q Query) ([]Row, error) {
	plan, err := em.compile(q)
	if err != nil {
		return nil, err
	}
	rows, err := exec.Query(ctx, plan.Query, plan.Args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	cols, err := rows.Columns()
	if err != nil {
		return nil, err
	}
	var out []Row
	for rows.Next() {
		vals := make([]any, len(cols))
		ptrs := make([]any, len(cols))
		for i := range vals {
			ptrs[i] = &vals[i]
		}
		if err := rows.Scan(ptrs...); err != nil {
			return nil, err
		}
		row := make(Row, len(cols))
		for i, c := range cols {
			row[c] = vals[i]
		}
		out = append(out, row)
	}
	return out, rows.Err()
}

func (em *EntityManager) compile(q Query) (Plan, error) {
	if err := validate(q); err != nil {
		return Plan{}, err
	}
	plan, err := em.compiler.Compile(q)
	if err != nil {
		return Plan{}, err
	}
	em.logStatement(plan)
	return plan, nil
}
