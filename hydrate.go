package orm

// Row is one result row keyed by column name.
type Row map[string]any

// hydrate copies the requested properties present in row into inst.
//
// Copied properties become loaded and synchronized: both their current and
// original values are overwritten and any local edit on them is dropped.
// Properties outside requested, or missing from row, are left untouched.
// Owning to-one columns resolve to identity-map references.
func hydrate(im *IdentityMap, inst *Instance, row Row, requested []string) error {
	meta := inst.meta
	for _, name := range requested {
		if f, ok := meta.Field(name); ok {
			raw, present := row[f.Column]
			if !present {
				continue
			}
			v, err := normalize(f.Type, raw)
			if err != nil {
				return &ValidationError{Entity: meta.name, Field: name, Reason: err.Error()}
			}
			if f.IsPK() {
				if inst.key != nil && !equalValues(f.Type, inst.key, v) {
					return &ValidationError{Entity: meta.name, Field: name, Reason: "row key does not match instance key"}
				}
				inst.key = v
			}
			inst.current[name] = v
			inst.original[name] = v
			inst.loaded[name] = struct{}{}
			delete(inst.touched, name)
			continue
		}

		rel, ok := meta.Relation(name)
		if !ok || rel.Kind != ToOne || !rel.Owner {
			return &ValidationError{Entity: meta.name, Field: name, Reason: "not a column-backed property"}
		}
		raw, present := row[rel.Column]
		if !present {
			continue
		}
		k, err := normalize(rel.target.PrimaryKey().Type, raw)
		if err != nil {
			return &ValidationError{Entity: meta.name, Field: name, Reason: err.Error()}
		}
		if k == nil {
			inst.current[name] = nil
		} else {
			ref, err := im.GetOrCreate(rel.target, k)
			if err != nil {
				return err
			}
			inst.current[name] = ref
		}
		inst.original[name] = k
		inst.loaded[name] = struct{}{}
		delete(inst.touched, name)
	}
	inst.refreshState()
	return nil
}
