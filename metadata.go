package orm

import "github.com/tinywasm/fmt"

// RelationKind distinguishes single references from collections.
type RelationKind int

const (
	ToOne RelationKind = iota
	ToMany
)

// Relation describes a to-one or to-many link between two entities.
// Only the owning to-one side carries a column.
type Relation struct {
	Name     string
	Kind     RelationKind
	Target   string
	Column   string
	Nullable bool
	Owner    bool
	Inverse  string // field on the target pointing back, empty if unidirectional
	MappedBy string // to-many: owning to-one on the target
	Indexed  bool
	OnDelete string

	target *Entity
}

// TargetEntity returns the resolved target descriptor.
func (r *Relation) TargetEntity() *Entity { return r.target }

// UniqueConstraint is a declared multi-column unique constraint.
type UniqueConstraint struct {
	Name   string
	Fields []string
}

// IndexDef is a declared non-unique index.
type IndexDef struct {
	Name   string
	Fields []string
}

// Entity is the immutable descriptor of one entity type.
type Entity struct {
	name      string
	table     string
	pk        string
	version   string
	fields    []Field
	relations []Relation
	uniques   []UniqueConstraint
	indexes   []IndexDef

	fieldIdx    map[string]int
	relationIdx map[string]int
}

func (e *Entity) Name() string  { return e.name }
func (e *Entity) Table() string { return e.table }

// PrimaryKey returns the primary-key field.
func (e *Entity) PrimaryKey() Field { return e.fields[e.fieldIdx[e.pk]] }

// VersionField returns the optimistic-lock field name, empty when disabled.
func (e *Entity) VersionField() string { return e.version }

// Fields returns the scalar fields in declaration order.
func (e *Entity) Fields() []Field { return append([]Field(nil), e.fields...) }

// Relations returns the relations in declaration order.
func (e *Entity) Relations() []Relation { return append([]Relation(nil), e.relations...) }

func (e *Entity) Uniques() []UniqueConstraint { return append([]UniqueConstraint(nil), e.uniques...) }

func (e *Entity) Indexes() []IndexDef { return append([]IndexDef(nil), e.indexes...) }

// Field looks up a scalar field by name.
func (e *Entity) Field(name string) (Field, bool) {
	i, ok := e.fieldIdx[name]
	if !ok {
		return Field{}, false
	}
	return e.fields[i], true
}

// Relation looks up a relation by name.
func (e *Entity) Relation(name string) (*Relation, bool) {
	i, ok := e.relationIdx[name]
	if !ok {
		return nil, false
	}
	return &e.relations[i], true
}

// ColumnOf maps a field or owning relation name to its column.
func (e *Entity) ColumnOf(name string) (string, bool) {
	if f, ok := e.Field(name); ok {
		return f.Column, true
	}
	if r, ok := e.Relation(name); ok && r.Kind == ToOne && r.Owner {
		return r.Column, true
	}
	return "", false
}

// Properties returns the names that map to a column: fields then owning
// to-one relations, in declaration order.
func (e *Entity) Properties() []string {
	out := make([]string, 0, len(e.fields)+len(e.relations))
	for _, f := range e.fields {
		out = append(out, f.Name)
	}
	for _, r := range e.relations {
		if r.Kind == ToOne && r.Owner {
			out = append(out, r.Name)
		}
	}
	return out
}

// Registry holds every entity descriptor. It is read-only once built.
type Registry struct {
	entities map[string]*Entity
	order    []string
}

// Entity returns the descriptor registered under name.
func (r *Registry) Entity(name string) (*Entity, error) {
	e, ok := r.entities[name]
	if !ok {
		return nil, &unknownEntityError{name: name}
	}
	return e, nil
}

// Entities returns descriptors in registration order.
func (r *Registry) Entities() []*Entity {
	out := make([]*Entity, 0, len(r.order))
	for _, n := range r.order {
		out = append(out, r.entities[n])
	}
	return out
}

// RegistryBuilder collects entity declarations before Build.
type RegistryBuilder struct {
	entities []*EntityBuilder
}

// NewRegistryBuilder returns an empty builder.
func NewRegistryBuilder() *RegistryBuilder {
	return &RegistryBuilder{}
}

// Entity starts the declaration of an entity type.
func (b *RegistryBuilder) Entity(name string) *EntityBuilder {
	eb := &EntityBuilder{e: &Entity{name: name}}
	b.entities = append(b.entities, eb)
	return eb
}

// EntityBuilder declares fields and relations of one entity.
type EntityBuilder struct {
	e    *Entity
	errs []error
}

// FieldOption adjusts a field declaration.
type FieldOption func(*Field)

func NotNull() FieldOption { return func(f *Field) { f.Constraints |= ConstraintNotNull } }

func Unique() FieldOption { return func(f *Field) { f.Constraints |= ConstraintUnique } }

func AutoIncrement() FieldOption {
	return func(f *Field) { f.Constraints |= ConstraintAutoIncrement }
}

func Column(name string) FieldOption { return func(f *Field) { f.Column = name } }

func Default(v any) FieldOption {
	return func(f *Field) {
		f.Default = v
		f.HasDefault = true
	}
}

// RelationOption adjusts a relation declaration.
type RelationOption func(*Relation)

func Nullable() RelationOption { return func(r *Relation) { r.Nullable = true } }

func Indexed() RelationOption { return func(r *Relation) { r.Indexed = true } }

func JoinColumn(col string) RelationOption { return func(r *Relation) { r.Column = col } }

func Inverse(name string) RelationOption { return func(r *Relation) { r.Inverse = name } }

func OnDelete(action string) RelationOption { return func(r *Relation) { r.OnDelete = action } }

// Table overrides the default snake_case table name.
func (b *EntityBuilder) Table(name string) *EntityBuilder {
	b.e.table = name
	return b
}

// PrimaryKey declares the scalar primary key.
func (b *EntityBuilder) PrimaryKey(name string, t FieldType, opts ...FieldOption) *EntityBuilder {
	if b.e.pk != "" {
		b.errs = append(b.errs, invalidMetadata("%s: second primary key %s", b.e.name, name))
		return b
	}
	b.e.pk = name
	return b.Field(name, t, append([]FieldOption{func(f *Field) { f.Constraints |= ConstraintPK }}, opts...)...)
}

// Field declares a scalar field.
func (b *EntityBuilder) Field(name string, t FieldType, opts ...FieldOption) *EntityBuilder {
	f := Field{Name: name, Type: t}
	for _, opt := range opts {
		opt(&f)
	}
	if f.Column == "" {
		f.Column = snake(name)
	}
	b.e.fields = append(b.e.fields, f)
	return b
}

// Version marks an int64 field as the optimistic-lock counter.
func (b *EntityBuilder) Version(name string) *EntityBuilder {
	b.e.version = name
	return b.Field(name, TypeInt64, NotNull(), Default(int64(1)))
}

// ManyToOne declares an owning to-one relation.
func (b *EntityBuilder) ManyToOne(name, target string, opts ...RelationOption) *EntityBuilder {
	r := Relation{Name: name, Kind: ToOne, Target: target, Owner: true}
	for _, opt := range opts {
		opt(&r)
	}
	b.e.relations = append(b.e.relations, r)
	return b
}

// OneToMany declares the inverse collection of a ManyToOne on target.
func (b *EntityBuilder) OneToMany(name, target, mappedBy string) *EntityBuilder {
	b.e.relations = append(b.e.relations, Relation{Name: name, Kind: ToMany, Target: target, MappedBy: mappedBy, Nullable: true})
	return b
}

// Unique declares a multi-column unique constraint over fields, in order.
func (b *EntityBuilder) Unique(fields ...string) *EntityBuilder {
	b.e.uniques = append(b.e.uniques, UniqueConstraint{Fields: fields})
	return b
}

// Index declares a non-unique index over fields, in order.
func (b *EntityBuilder) Index(fields ...string) *EntityBuilder {
	b.e.indexes = append(b.e.indexes, IndexDef{Fields: fields})
	return b
}

// Model declares the fields of m. A field carrying Ref becomes an owning
// to-one relation named after its column without the _id suffix.
func (b *EntityBuilder) Model(m Model) *EntityBuilder {
	if b.e.table == "" {
		b.e.table = m.TableName()
	}
	for _, f := range m.Schema() {
		if f.Ref != "" {
			name := fmt.Convert(f.Name).TrimSuffix("_id").String()
			opts := []RelationOption{JoinColumn(f.Name)}
			if f.Nullable() {
				opts = append(opts, Nullable())
			}
			b.ManyToOne(name, f.Ref, opts...)
			continue
		}
		if f.Column == "" {
			f.Column = f.Name
		}
		if f.IsPK() {
			if b.e.pk != "" {
				b.errs = append(b.errs, invalidMetadata("%s: second primary key %s", b.e.name, f.Name))
				continue
			}
			b.e.pk = f.Name
		}
		b.e.fields = append(b.e.fields, f)
	}
	return b
}

// Build validates every declaration and links relation targets.
func (b *RegistryBuilder) Build() (*Registry, error) {
	reg := &Registry{entities: make(map[string]*Entity, len(b.entities))}
	for _, eb := range b.entities {
		if len(eb.errs) > 0 {
			return nil, eb.errs[0]
		}
		e := eb.e
		if _, dup := reg.entities[e.name]; dup {
			return nil, invalidMetadata("entity %s declared twice", e.name)
		}
		if e.table == "" {
			e.table = snake(e.name)
		}
		if e.table == "" {
			return nil, ErrEmptyTable
		}
		if e.pk == "" {
			return nil, invalidMetadata("%s: missing primary key", e.name)
		}
		e.fieldIdx = make(map[string]int, len(e.fields))
		for i, f := range e.fields {
			if _, dup := e.fieldIdx[f.Name]; dup {
				return nil, invalidMetadata("%s: field %s declared twice", e.name, f.Name)
			}
			e.fieldIdx[f.Name] = i
		}
		if pk := e.fields[e.fieldIdx[e.pk]]; pk.Type == TypeBlob || pk.Type == TypeFloat64 {
			return nil, invalidMetadata("%s: primary key %s must be text, integer or uuid", e.name, e.pk)
		}
		e.relationIdx = make(map[string]int, len(e.relations))
		for i, r := range e.relations {
			if _, dup := e.fieldIdx[r.Name]; dup {
				return nil, invalidMetadata("%s: relation %s shadows a field", e.name, r.Name)
			}
			if _, dup := e.relationIdx[r.Name]; dup {
				return nil, invalidMetadata("%s: relation %s declared twice", e.name, r.Name)
			}
			e.relationIdx[r.Name] = i
		}
		reg.entities[e.name] = e
		reg.order = append(reg.order, e.name)
	}

	for _, name := range reg.order {
		e := reg.entities[name]
		for i := range e.relations {
			r := &e.relations[i]
			target, ok := reg.entities[r.Target]
			if !ok {
				return nil, invalidMetadata("%s.%s: unknown target %s", e.name, r.Name, r.Target)
			}
			r.target = target
			if r.Kind == ToOne && r.Owner && r.Column == "" {
				r.Column = snake(r.Name) + "_" + target.PrimaryKey().Column
			}
		}
		for i, u := range e.uniques {
			if err := checkFields(e, u.Fields); err != nil {
				return nil, err
			}
			e.uniques[i].Name = e.table + "_" + joinColumns(e, u.Fields) + "_unique"
		}
		for i, ix := range e.indexes {
			if err := checkFields(e, ix.Fields); err != nil {
				return nil, err
			}
			e.indexes[i].Name = e.table + "_" + joinColumns(e, ix.Fields) + "_index"
		}
	}

	// A collection only exists through its owning side.
	for _, name := range reg.order {
		e := reg.entities[name]
		for _, r := range e.relations {
			if r.Kind != ToMany {
				continue
			}
			owner, ok := r.target.Relation(r.MappedBy)
			if !ok || owner.Kind != ToOne || !owner.Owner || owner.Target != e.name {
				return nil, invalidMetadata("%s.%s: mappedBy %s is not an owning to-one on %s pointing to %s", e.name, r.Name, r.MappedBy, r.Target, e.name)
			}
		}
	}
	return reg, nil
}

func checkFields(e *Entity, names []string) error {
	if len(names) == 0 {
		return invalidMetadata("%s: empty column list", e.name)
	}
	for _, n := range names {
		if _, ok := e.ColumnOf(n); !ok {
			return invalidMetadata("%s: unknown field %s", e.name, n)
		}
	}
	return nil
}

func joinColumns(e *Entity, names []string) string {
	cols := make([]string, 0, len(names))
	for _, n := range names {
		c, _ := e.ColumnOf(n)
		cols = append(cols, c)
	}
	return fmt.Convert(cols).Join("_").String()
}

func snake(name string) string {
	return fmt.Convert(name).SnakeLow().String()
}
