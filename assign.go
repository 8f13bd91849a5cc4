package orm

// Data is a partial set of property values keyed by field or relation name.
type Data map[string]any

// AssignOptions selects how relation values are merged by Assign.
type AssignOptions struct {
	// UpdateByPrimaryKey resolves a raw primary key given for a to-one
	// relation into an identity-map reference. Without it, a raw key is a
	// validation error and the caller must pass an instance or nested Data.
	UpdateByPrimaryKey bool
	// MergeObjectProperties merges nested Data into the instance already
	// linked by the relation instead of replacing the link.
	MergeObjectProperties bool
}

// Assign applies data onto inst. Properties absent from data are untouched.
// Validation happens before any change: on error inst is left as it was.
func (em *EntityManager) Assign(inst *Instance, data Data, opts AssignOptions) error {
	steps, err := em.planAssign(inst, data, opts)
	if err != nil {
		return err
	}
	for _, step := range steps {
		step()
	}
	return nil
}

type assignStep func()

func (em *EntityManager) planAssign(inst *Instance, data Data, opts AssignOptions) ([]assignStep, error) {
	meta := inst.meta
	if inst.detached {
		return nil, ErrDetached
	}
	if inst.state == StateRemoved {
		return nil, &ValidationError{Entity: meta.name, Field: "-", Reason: "instance is removed"}
	}
	for name := range data {
		if _, ok := meta.Field(name); ok {
			continue
		}
		if _, ok := meta.Relation(name); ok {
			continue
		}
		return nil, &ValidationError{Entity: meta.name, Field: name, Reason: "unknown property"}
	}

	var steps []assignStep
	for _, f := range meta.fields {
		raw, ok := data[f.Name]
		if !ok {
			continue
		}
		v, err := normalize(f.Type, raw)
		if err != nil {
			return nil, &ValidationError{Entity: meta.name, Field: f.Name, Reason: err.Error()}
		}
		if v == nil && !f.Nullable() {
			return nil, &ValidationError{Entity: meta.name, Field: f.Name, Reason: "null on a not-null field"}
		}
		if f.IsPK() && inst.key != nil {
			if !equalValues(f.Type, inst.key, v) {
				return nil, &ValidationError{Entity: meta.name, Field: f.Name, Reason: "primary key cannot change"}
			}
			continue
		}
		name := f.Name
		isPK := f.IsPK()
		steps = append(steps, func() {
			if isPK {
				inst.key = v
			}
			inst.current[name] = v
			inst.loaded[name] = struct{}{}
			inst.touched[name] = struct{}{}
		})
	}

	for i := range meta.relations {
		rel := &meta.relations[i]
		raw, ok := data[rel.Name]
		if !ok {
			continue
		}
		if rel.Kind != ToOne {
			return nil, &ValidationError{Entity: meta.name, Field: rel.Name, Reason: "collections are changed through their owning side"}
		}
		relSteps, err := em.planRelation(inst, rel, raw, opts)
		if err != nil {
			return nil, err
		}
		steps = append(steps, relSteps...)
	}
	return append(steps, inst.refreshState), nil
}

func (em *EntityManager) planRelation(inst *Instance, rel *Relation, raw any, opts AssignOptions) ([]assignStep, error) {
	meta := inst.meta
	target := rel.target
	link := func(ref *Instance) assignStep {
		return func() {
			inst.current[rel.Name] = ref
			inst.loaded[rel.Name] = struct{}{}
			inst.touched[rel.Name] = struct{}{}
		}
	}

	switch x := raw.(type) {
	case nil:
		if !rel.Nullable {
			return nil, &ValidationError{Entity: meta.name, Field: rel.Name, Reason: "null on a not-null relation"}
		}
		return []assignStep{link(nil)}, nil

	case *Instance:
		if x == nil {
			return em.planRelation(inst, rel, nil, opts)
		}
		if x.meta != target {
			return nil, &ValidationError{Entity: meta.name, Field: rel.Name, Reason: "expected " + target.name + ", got " + x.meta.name}
		}
		if x.detached {
			return nil, ErrDetached
		}
		return []assignStep{link(x)}, nil

	case map[string]any:
		return em.planNested(inst, rel, Data(x), opts, link)

	case Data:
		return em.planNested(inst, rel, x, opts, link)
	}

	if !opts.UpdateByPrimaryKey {
		return nil, &ValidationError{Entity: meta.name, Field: rel.Name, Reason: "raw primary key given without UpdateByPrimaryKey"}
	}
	ref, register, err := em.lookupReference(target, raw)
	if err != nil {
		return nil, err
	}
	return []assignStep{register, link(ref)}, nil
}

func (em *EntityManager) planNested(inst *Instance, rel *Relation, data Data, opts AssignOptions, link func(*Instance) assignStep) ([]assignStep, error) {
	target := rel.target
	pk := target.pk
	nestedKey, hasKey := data[pk]
	hasKey = hasKey && nestedKey != nil

	if existing, _ := inst.Ref(rel.Name); opts.MergeObjectProperties && existing != nil {
		same := !hasKey
		if hasKey && existing.key != nil {
			k, err := normalize(target.PrimaryKey().Type, nestedKey)
			if err != nil {
				return nil, &ValidationError{Entity: target.name, Field: pk, Reason: err.Error()}
			}
			same = equalValues(target.PrimaryKey().Type, existing.key, k)
		}
		if same {
			return em.planAssign(existing, data, opts)
		}
	}

	if hasKey {
		ref, register, err := em.lookupReference(target, nestedKey)
		if err != nil {
			return nil, err
		}
		nested, err := em.planAssign(ref, data, opts)
		if err != nil {
			return nil, err
		}
		return append(append([]assignStep{register}, nested...), link(ref)), nil
	}

	created := newInstance(target, nil, StateNew)
	nested, err := em.planAssign(created, data, opts)
	if err != nil {
		return nil, err
	}
	return append(append(nested, func() { em.uow.scheduleInsert(created) }), link(created)), nil
}

// lookupReference finds the managed instance for key or prepares a Reference
// whose registration is deferred to the returned step.
func (em *EntityManager) lookupReference(meta *Entity, key any) (*Instance, assignStep, error) {
	k, err := normalize(meta.PrimaryKey().Type, key)
	if err != nil {
		return nil, nil, &ValidationError{Entity: meta.name, Field: meta.pk, Reason: err.Error()}
	}
	if k == nil {
		return nil, nil, &ValidationError{Entity: meta.name, Field: meta.pk, Reason: "null primary key"}
	}
	if inst, ok := em.identity.Get(meta, k); ok {
		return inst, func() {}, nil
	}
	inst := newInstance(meta, k, StateReference)
	return inst, func() {
		if cur, ok := em.identity.Get(meta, k); ok && cur != inst {
			return
		}
		em.identity.add(inst)
	}, nil
}
