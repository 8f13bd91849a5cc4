package orm

// State is the lifecycle tag of a managed instance.
type State int

const (
	StateReference State = iota // key known, fields unknown
	StatePartial                // some fields loaded
	StateFull                   // every field loaded
	StateNew                    // not yet persisted
	StateRemoved                // scheduled for deletion
)

func (s State) String() string {
	switch s {
	case StateReference:
		return "reference"
	case StatePartial:
		return "partial"
	case StateFull:
		return "full"
	case StateNew:
		return "new"
	case StateRemoved:
		return "removed"
	}
	return "unknown"
}

// Instance is one managed record.
//
// current holds the values visible to the application; relation entries hold
// *Instance or nil. original holds the last value synchronized with storage;
// relation entries hold the raw foreign key or nil. A name missing from a map
// is unknown, which is not the same as a nil entry (SQL NULL).
type Instance struct {
	meta     *Entity
	key      any
	state    State
	current  map[string]any
	original map[string]any
	loaded   map[string]struct{}
	touched  map[string]struct{}
	detached bool
}

func newInstance(meta *Entity, key any, state State) *Instance {
	inst := &Instance{
		meta:     meta,
		key:      key,
		state:    state,
		current:  make(map[string]any),
		original: make(map[string]any),
		loaded:   make(map[string]struct{}),
		touched:  make(map[string]struct{}),
	}
	if key != nil {
		pk := meta.PrimaryKey().Name
		inst.current[pk] = key
		inst.original[pk] = key
		inst.loaded[pk] = struct{}{}
	}
	return inst
}

func (i *Instance) Entity() *Entity { return i.meta }

// Key returns the primary key, nil for a New instance awaiting a generated key.
func (i *Instance) Key() any { return i.key }

func (i *Instance) State() State { return i.state }

// Detached reports whether the owning context was cleared.
func (i *Instance) Detached() bool { return i.detached }

// Get returns the current value of a field or relation and whether it is known.
// A field never loaded nor assigned returns (nil, false); an explicit NULL
// returns (nil, true).
func (i *Instance) Get(name string) (any, bool) {
	v, ok := i.current[name]
	return v, ok
}

// Ref returns the related instance of a to-one relation.
func (i *Instance) Ref(name string) (*Instance, bool) {
	v, ok := i.current[name]
	if !ok || v == nil {
		return nil, ok
	}
	ref, _ := v.(*Instance)
	return ref, true
}

// IsLoaded reports whether name holds a known value, hydrated or assigned.
func (i *Instance) IsLoaded(name string) bool {
	_, ok := i.loaded[name]
	return ok
}

// LoadedFields returns the loaded names in declaration order.
func (i *Instance) LoadedFields() []string {
	var out []string
	for _, p := range i.meta.Properties() {
		if i.IsLoaded(p) {
			out = append(out, p)
		}
	}
	return out
}

// Set mutates a field or to-one relation directly. Values are validated as in
// Assign; a relation accepts *Instance or nil.
func (i *Instance) Set(name string, value any) error {
	if i.detached {
		return ErrDetached
	}
	if i.state == StateRemoved {
		return &ValidationError{Entity: i.meta.name, Field: name, Reason: "instance is removed"}
	}
	if rel, ok := i.meta.Relation(name); ok {
		if rel.Kind != ToOne {
			return &ValidationError{Entity: i.meta.name, Field: name, Reason: "collections are changed through their owning side"}
		}
		var ref *Instance
		if value != nil {
			r, ok := value.(*Instance)
			if !ok {
				return &ValidationError{Entity: i.meta.name, Field: name, Reason: "expected *Instance or nil"}
			}
			ref = r
		}
		if err := i.setRelation(rel, ref); err != nil {
			return err
		}
		i.refreshState()
		return nil
	}
	if err := i.setScalar(name, value); err != nil {
		return err
	}
	i.refreshState()
	return nil
}

func (i *Instance) setScalar(name string, value any) error {
	f, ok := i.meta.Field(name)
	if !ok {
		return &ValidationError{Entity: i.meta.name, Field: name, Reason: "unknown field"}
	}
	v, err := normalize(f.Type, value)
	if err != nil {
		return &ValidationError{Entity: i.meta.name, Field: name, Reason: err.Error()}
	}
	if v == nil && !f.Nullable() && !f.Constraints.Has(ConstraintAutoIncrement) {
		return &ValidationError{Entity: i.meta.name, Field: name, Reason: "null on a not-null field"}
	}
	if f.IsPK() {
		if i.key != nil && !equalValues(f.Type, i.key, v) {
			return &ValidationError{Entity: i.meta.name, Field: name, Reason: "primary key cannot change"}
		}
		if i.key == nil {
			i.key = v
		}
	}
	i.current[name] = v
	i.loaded[name] = struct{}{}
	i.touched[name] = struct{}{}
	return nil
}

func (i *Instance) setRelation(rel *Relation, ref *Instance) error {
	if ref == nil {
		if !rel.Nullable {
			return &ValidationError{Entity: i.meta.name, Field: rel.Name, Reason: "null on a not-null relation"}
		}
		i.current[rel.Name] = nil
		i.loaded[rel.Name] = struct{}{}
		i.touched[rel.Name] = struct{}{}
		return nil
	}
	if ref.meta != rel.target {
		return &ValidationError{Entity: i.meta.name, Field: rel.Name, Reason: "expected " + rel.Target + ", got " + ref.meta.name}
	}
	i.current[rel.Name] = ref
	i.loaded[rel.Name] = struct{}{}
	i.touched[rel.Name] = struct{}{}
	return nil
}

// relationKey returns the foreign key a current relation value maps to.
func relationKey(v any) any {
	ref, ok := v.(*Instance)
	if !ok || ref == nil {
		return nil
	}
	return ref.key
}

// DirtyFields returns explicitly mutated names whose value differs from the
// last synchronized value, in declaration order. A mutated name with no
// original value is always dirty, which is how an explicit NULL on a never
// loaded relation reaches storage.
func (i *Instance) DirtyFields() []string {
	var out []string
	for _, name := range i.meta.Properties() {
		if _, ok := i.touched[name]; !ok {
			continue
		}
		cur := i.current[name]
		orig, had := i.original[name]
		if !had {
			out = append(out, name)
			continue
		}
		if f, ok := i.meta.Field(name); ok {
			if !equalValues(f.Type, cur, orig) {
				out = append(out, name)
			}
			continue
		}
		rel, _ := i.meta.Relation(name)
		if ref, ok := cur.(*Instance); ok && ref != nil && ref.key == nil {
			out = append(out, name)
			continue
		}
		if !equalValues(rel.target.PrimaryKey().Type, relationKey(cur), orig) {
			out = append(out, name)
		}
	}
	return out
}

// IsDirty reports whether flushing would write this instance.
func (i *Instance) IsDirty() bool {
	return i.state == StateNew || i.state == StateRemoved || len(i.DirtyFields()) > 0
}

// sync marks the current values as synchronized with storage.
func (i *Instance) sync() {
	for name, v := range i.current {
		if _, ok := i.meta.Relation(name); ok {
			i.original[name] = relationKey(v)
			continue
		}
		i.original[name] = v
	}
	i.touched = make(map[string]struct{})
}

// refreshState recomputes Reference/Partial/Full from the loaded set.
func (i *Instance) refreshState() {
	if i.state == StateNew || i.state == StateRemoved {
		return
	}
	n := 0
	for _, p := range i.meta.Properties() {
		if i.IsLoaded(p) {
			n++
		}
	}
	switch {
	case n == len(i.meta.Properties()):
		i.state = StateFull
	case n > 1 || (n == 1 && !i.IsLoaded(i.meta.pk)):
		i.state = StatePartial
	default:
		i.state = StateReference
	}
}
