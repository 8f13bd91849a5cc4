package orm

type identityKey struct {
	entity string
	key    string
}

// IdentityMap holds at most one managed instance per (entity, primary key).
// It belongs to a single EntityManager and is not safe for concurrent use.
type IdentityMap struct {
	entries map[identityKey]*Instance
	order   []*Instance
}

// NewIdentityMap returns an empty map.
func NewIdentityMap() *IdentityMap {
	return &IdentityMap{entries: make(map[identityKey]*Instance)}
}

func idKey(meta *Entity, key any) identityKey {
	return identityKey{entity: meta.name, key: keyString(key)}
}

// Get returns the instance registered for (meta, key).
func (m *IdentityMap) Get(meta *Entity, key any) (*Instance, bool) {
	k, err := normalize(meta.PrimaryKey().Type, key)
	if err != nil || k == nil {
		return nil, false
	}
	inst, ok := m.entries[idKey(meta, k)]
	return inst, ok
}

// GetOrCreate returns the registered instance or registers a new Reference.
func (m *IdentityMap) GetOrCreate(meta *Entity, key any) (*Instance, error) {
	k, err := normalize(meta.PrimaryKey().Type, key)
	if err != nil {
		return nil, &ValidationError{Entity: meta.name, Field: meta.pk, Reason: err.Error()}
	}
	if k == nil {
		return nil, &ValidationError{Entity: meta.name, Field: meta.pk, Reason: "null primary key"}
	}
	if inst, ok := m.entries[idKey(meta, k)]; ok {
		return inst, nil
	}
	inst := newInstance(meta, k, StateReference)
	m.add(inst)
	return inst, nil
}

// Add registers inst under its key. A different instance already holding the
// key is a validation error.
func (m *IdentityMap) Add(inst *Instance) error {
	if inst.key == nil {
		return &ValidationError{Entity: inst.meta.name, Field: inst.meta.pk, Reason: "null primary key"}
	}
	if cur, ok := m.entries[idKey(inst.meta, inst.key)]; ok {
		if cur == inst {
			return nil
		}
		return &ValidationError{Entity: inst.meta.name, Field: inst.meta.pk, Reason: "another instance is managed under key " + keyString(inst.key)}
	}
	m.add(inst)
	return nil
}

func (m *IdentityMap) add(inst *Instance) {
	m.entries[idKey(inst.meta, inst.key)] = inst
	m.order = append(m.order, inst)
}

// Remove unregisters inst.
func (m *IdentityMap) Remove(inst *Instance) {
	if inst.key == nil {
		return
	}
	k := idKey(inst.meta, inst.key)
	if m.entries[k] != inst {
		return
	}
	delete(m.entries, k)
	for i, cur := range m.order {
		if cur == inst {
			m.order = append(m.order[:i], m.order[i+1:]...)
			break
		}
	}
}

// All returns registered instances in registration order.
func (m *IdentityMap) All() []*Instance {
	return append([]*Instance(nil), m.order...)
}

func (m *IdentityMap) Len() int { return len(m.entries) }

// Clear empties the map and detaches every instance it held.
func (m *IdentityMap) Clear() {
	for _, inst := range m.order {
		inst.detached = true
	}
	m.entries = make(map[identityKey]*Instance)
	m.order = nil
}
