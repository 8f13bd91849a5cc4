package orm

import (
	"context"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// ChangeType is the kind of write a ChangeSet performs.
type ChangeType int

const (
	ChangeCreate ChangeType = iota
	ChangeUpdate
	ChangeDelete
)

func (t ChangeType) String() string {
	switch t {
	case ChangeCreate:
		return "create"
	case ChangeUpdate:
		return "update"
	case ChangeDelete:
		return "delete"
	}
	return "unknown"
}

// ChangeSet is one pending write.
type ChangeSet struct {
	Type     ChangeType
	Entity   *Entity
	Instance *Instance
	// Payload maps columns to values. A relation to an instance still waiting
	// for its generated key holds that *Instance.
	Payload map[string]any
	// Columns lists Payload keys in write order.
	Columns []string
	// Key is nil for an insert whose key is generated.
	Key any
	// Version is the expected version of a versioned update or delete.
	Version any

	fills       map[string]any
	nextVersion any
}

func (cs *ChangeSet) put(column string, v any) {
	cs.Payload[column] = v
	cs.Columns = append(cs.Columns, column)
}

type unitOfWork struct {
	identity *IdentityMap
	inserts  []*Instance
	removals []*Instance
}

func newUnitOfWork(im *IdentityMap) *unitOfWork {
	return &unitOfWork{identity: im}
}

func (u *unitOfWork) scheduleInsert(inst *Instance) error {
	for _, cur := range u.inserts {
		if cur == inst {
			return nil
		}
	}
	if inst.key != nil {
		if err := u.identity.Add(inst); err != nil {
			return err
		}
	}
	inst.state = StateNew
	u.inserts = append(u.inserts, inst)
	return nil
}

func (u *unitOfWork) unschedule(inst *Instance) {
	for i, cur := range u.inserts {
		if cur == inst {
			u.inserts = append(u.inserts[:i], u.inserts[i+1:]...)
			return
		}
	}
}

func (u *unitOfWork) scheduleDelete(inst *Instance) {
	if inst.state == StateRemoved {
		return
	}
	inst.state = StateRemoved
	u.removals = append(u.removals, inst)
}

// ChangeSets computes the pending writes without touching storage or any
// instance: inserts in dependency order, then updates in identity-map order,
// then deletes with referrers first.
func (em *EntityManager) ChangeSets() ([]ChangeSet, error) {
	return em.uow.compute()
}

func (u *unitOfWork) compute() ([]ChangeSet, error) {
	var out []ChangeSet

	idx := make(map[*Instance]int, len(u.inserts))
	for i, inst := range u.inserts {
		idx[inst] = i
	}
	order, err := topoSort(len(u.inserts), func(i int) []int {
		var deps []int
		inst := u.inserts[i]
		for _, rel := range inst.meta.relations {
			if rel.Kind != ToOne || !rel.Owner {
				continue
			}
			if ref, _ := inst.current[rel.Name].(*Instance); ref != nil {
				if j, ok := idx[ref]; ok {
					deps = append(deps, j)
				}
			}
		}
		return deps
	})
	if err != nil {
		return nil, err
	}
	for _, i := range order {
		cs, err := createSet(u.inserts[i])
		if err != nil {
			return nil, err
		}
		out = append(out, cs)
	}

	for _, inst := range u.identity.All() {
		if inst.state == StateNew || inst.state == StateRemoved {
			continue
		}
		cs, ok, err := updateSet(inst)
		if err != nil {
			return nil, err
		}
		if ok {
			out = append(out, cs)
		}
	}

	for _, inst := range u.deleteOrder() {
		out = append(out, deleteSet(inst))
	}
	return out, nil
}

// deleteOrder puts an instance before every removed instance it references.
// A reference cycle keeps scheduling order.
func (u *unitOfWork) deleteOrder() []*Instance {
	n := len(u.removals)
	order, err := topoSort(n, func(i int) []int {
		var deps []int
		for j, other := range u.removals {
			if j != i && references(other, u.removals[i]) {
				deps = append(deps, j)
			}
		}
		return deps
	})
	if err != nil {
		return append([]*Instance(nil), u.removals...)
	}
	out := make([]*Instance, 0, n)
	for _, i := range order {
		out = append(out, u.removals[i])
	}
	return out
}

// references reports whether from held a stored foreign key to to.
func references(from, to *Instance) bool {
	for _, rel := range from.meta.relations {
		if rel.Kind != ToOne || !rel.Owner || rel.target != to.meta {
			continue
		}
		if k, ok := from.original[rel.Name]; ok && k != nil && equalValues(to.meta.PrimaryKey().Type, k, to.key) {
			return true
		}
	}
	return false
}

func createSet(inst *Instance) (ChangeSet, error) {
	meta := inst.meta
	cs := ChangeSet{
		Type:     ChangeCreate,
		Entity:   meta,
		Instance: inst,
		Key:      inst.key,
		Payload:  make(map[string]any),
		fills:    make(map[string]any),
	}
	for _, f := range meta.fields {
		v, known := inst.current[f.Name]
		if !known {
			switch {
			case f.HasDefault:
				d, err := normalize(f.Type, f.Default)
				if err != nil {
					return cs, &ValidationError{Entity: meta.name, Field: f.Name, Reason: err.Error()}
				}
				v = d
				cs.fills[f.Name] = d
			case f.IsPK():
			case !f.Nullable():
				return cs, &ValidationError{Entity: meta.name, Field: f.Name, Reason: "missing value for a not-null field"}
			default:
				cs.fills[f.Name] = nil
			}
		}
		if f.IsPK() && v == nil {
			if !f.Constraints.Has(ConstraintAutoIncrement) {
				return cs, &ValidationError{Entity: meta.name, Field: f.Name, Reason: "missing primary key"}
			}
			continue
		}
		cs.put(f.Column, v)
	}
	for _, rel := range meta.relations {
		if rel.Kind != ToOne || !rel.Owner {
			continue
		}
		v, known := inst.current[rel.Name]
		ref, _ := v.(*Instance)
		if ref == nil {
			if !rel.Nullable {
				return cs, &ValidationError{Entity: meta.name, Field: rel.Name, Reason: "missing value for a not-null relation"}
			}
			if !known {
				cs.fills[rel.Name] = nil
			}
			cs.put(rel.Column, nil)
			continue
		}
		cs.put(rel.Column, relationValue(ref))
	}
	return cs, nil
}

func updateSet(inst *Instance) (ChangeSet, bool, error) {
	meta := inst.meta
	dirty := inst.DirtyFields()
	if len(dirty) == 0 {
		return ChangeSet{}, false, nil
	}
	cs := ChangeSet{
		Type:     ChangeUpdate,
		Entity:   meta,
		Instance: inst,
		Key:      inst.key,
		Payload:  make(map[string]any),
	}
	for _, name := range dirty {
		if name == meta.version {
			continue
		}
		col, _ := meta.ColumnOf(name)
		v := inst.current[name]
		if ref, ok := v.(*Instance); ok {
			v = nil
			if ref != nil {
				v = relationValue(ref)
			}
		}
		cs.put(col, v)
	}
	if len(cs.Columns) == 0 {
		return ChangeSet{}, false, nil
	}
	if meta.version != "" {
		old, ok := inst.original[meta.version]
		if !ok || old == nil {
			return cs, false, &ValidationError{Entity: meta.name, Field: meta.version, Reason: "version must be loaded before an update"}
		}
		n, _ := old.(int64)
		cs.Version = old
		cs.nextVersion = n + 1
		vf, _ := meta.Field(meta.version)
		cs.put(vf.Column, cs.nextVersion)
	}
	return cs, true, nil
}

func deleteSet(inst *Instance) ChangeSet {
	cs := ChangeSet{
		Type:     ChangeDelete,
		Entity:   inst.meta,
		Instance: inst,
		Key:      inst.key,
	}
	if v := inst.meta.version; v != "" {
		cs.Version = inst.original[v]
	}
	return cs
}

// relationValue is the stored key of ref, or ref itself while its key is
// still to be generated.
func relationValue(ref *Instance) any {
	if ref.key != nil {
		return ref.key
	}
	return ref
}

// Flush writes every pending change. Nothing is written for an empty change
// set. On error storage is rolled back (when Transactional) and no instance
// is modified; on success originals are synchronized, inserted instances
// become managed and removed ones leave the identity map.
func (em *EntityManager) Flush(ctx context.Context) error {
	sets, err := em.uow.compute()
	if err != nil {
		return err
	}
	if len(sets) == 0 {
		return nil
	}

	ctx, span := tracer.Start(ctx, "orm.Flush", trace.WithAttributes(
		attribute.Int("orm.change_sets", len(sets)),
		attribute.String("orm.context", em.id.String()),
	))
	defer span.End()

	generated := make(map[*Instance]any)
	run := func(exec Executor) error {
		if em.cfg.DisableForeignKeys {
			if sw, ok := em.compiler.(ForeignKeySwitch); ok {
				if stmt := sw.DisableForeignKeys(); stmt != "" {
					em.logStatement(Plan{Query: stmt})
					if _, err := exec.Exec(ctx, stmt); err != nil {
						return err
					}
				}
			}
		}
		for i := range sets {
			if err := em.execute(ctx, exec, &sets[i], generated); err != nil {
				return err
			}
		}
		return nil
	}

	if em.cfg.Transactional {
		err = withTx(ctx, em.exec, run)
	} else {
		err = run(em.exec)
	}
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		em.logError("Flush", len(sets), err)
		return err
	}

	em.uow.commit(sets, generated)
	return nil
}

func (em *EntityManager) execute(ctx context.Context, exec Executor, cs *ChangeSet, generated map[*Instance]any) error {
	meta := cs.Entity
	pk := meta.PrimaryKey()

	values := make([]any, len(cs.Columns))
	for i, col := range cs.Columns {
		v := cs.Payload[col]
		if ref, ok := v.(*Instance); ok {
			k, found := generated[ref]
			if !found {
				return &ValidationError{Entity: meta.name, Field: col, Reason: "related " + ref.meta.name + " has no key"}
			}
			v = k
		}
		values[i] = v
	}

	key := cs.Key
	conds := []Condition{Eq(pk.Column, key)}
	if vf, ok := meta.Field(meta.version); ok && cs.Version != nil {
		conds = append(conds, Eq(vf.Column, cs.Version))
	}

	switch cs.Type {
	case ChangeCreate:
		q := Query{Action: ActionCreate, Table: meta.table, Columns: cs.Columns, Values: values}
		if key != nil {
			plan, err := em.compile(q)
			if err != nil {
				return err
			}
			_, err = exec.Exec(ctx, plan.Query, plan.Args...)
			return err
		}
		q.Returning = []string{pk.Column}
		rows, err := em.query(ctx, exec, q)
		if err != nil {
			return err
		}
		if len(rows) == 0 {
			return &ValidationError{Entity: meta.name, Field: pk.Name, Reason: "insert returned no key"}
		}
		k, err := normalize(pk.Type, rows[0][pk.Column])
		if err != nil || k == nil {
			return &ValidationError{Entity: meta.name, Field: pk.Name, Reason: "insert returned no usable key"}
		}
		generated[cs.Instance] = k
		return nil

	case ChangeUpdate:
		return em.write(ctx, exec, cs, Query{Action: ActionUpdate, Table: meta.table, Columns: cs.Columns, Values: values, Conditions: conds})

	case ChangeDelete:
		return em.write(ctx, exec, cs, Query{Action: ActionDelete, Table: meta.table, Conditions: conds})
	}
	return nil
}

// write runs a keyed update or delete and enforces the version check.
func (em *EntityManager) write(ctx context.Context, exec Executor, cs *ChangeSet, q Query) error {
	plan, err := em.compile(q)
	if err != nil {
		return err
	}
	res, err := exec.Exec(ctx, plan.Query, plan.Args...)
	if err != nil {
		return err
	}
	if cs.Version == nil {
		return nil
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return &ConcurrencyConflictError{Entity: cs.Entity.name, Key: cs.Key, Version: cs.Version}
	}
	return nil
}

func (u *unitOfWork) commit(sets []ChangeSet, generated map[*Instance]any) {
	for _, cs := range sets {
		inst := cs.Instance
		meta := inst.meta
		switch cs.Type {
		case ChangeCreate:
			if inst.key == nil {
				inst.key = generated[inst]
				inst.current[meta.pk] = inst.key
			}
			for name, v := range cs.fills {
				inst.current[name] = v
			}
			for _, p := range meta.Properties() {
				inst.loaded[p] = struct{}{}
			}
			inst.state = StateFull
			inst.sync()
			if _, ok := u.identity.Get(meta, inst.key); !ok {
				u.identity.add(inst)
			}
			u.unschedule(inst)

		case ChangeUpdate:
			if cs.nextVersion != nil {
				inst.current[meta.version] = cs.nextVersion
				inst.loaded[meta.version] = struct{}{}
			}
			inst.sync()
			inst.refreshState()

		case ChangeDelete:
			u.identity.Remove(inst)
			inst.detached = true
		}
	}
	u.removals = nil
}
