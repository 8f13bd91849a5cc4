package orm

import (
	"context"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
)

// EntityManager is one persistence context: an identity map, a unit of work
// and the executor they flush to. It is not safe for concurrent use; call
// Fork to get an independent context per goroutine.
type EntityManager struct {
	id       uuid.UUID
	registry *Registry
	exec     Executor
	compiler Compiler
	identity *IdentityMap
	uow      *unitOfWork
	cfg      Config
	log      *logrus.Logger
}

// Option configures an EntityManager.
type Option func(*EntityManager)

// WithConfig replaces DefaultConfig.
func WithConfig(cfg Config) Option {
	return func(em *EntityManager) { em.cfg = cfg }
}

// WithLogger replaces the package logger.
func WithLogger(l *logrus.Logger) Option {
	return func(em *EntityManager) { em.log = l }
}

// NewEntityManager creates a context over registry that writes through exec
// using statements built by compiler.
func NewEntityManager(registry *Registry, exec Executor, compiler Compiler, opts ...Option) *EntityManager {
	em := &EntityManager{
		id:       uuid.New(),
		registry: registry,
		exec:     exec,
		compiler: compiler,
		cfg:      DefaultConfig(),
	}
	for _, opt := range opts {
		opt(em)
	}
	if em.log == nil {
		em.log = logg
		if em.cfg.Debug {
			em.log = newLogger(logrus.DebugLevel)
		}
	}
	em.reset()
	return em
}

func (em *EntityManager) reset() {
	em.identity = NewIdentityMap()
	em.uow = newUnitOfWork(em.identity)
}

// Fork returns a context with an empty identity map sharing the registry,
// executor, compiler, config and logger.
func (em *EntityManager) Fork() *EntityManager {
	fork := &EntityManager{
		id:       uuid.New(),
		registry: em.registry,
		exec:     em.exec,
		compiler: em.compiler,
		cfg:      em.cfg,
		log:      em.log,
	}
	fork.reset()
	return fork
}

// ID identifies the context in log entries.
func (em *EntityManager) ID() uuid.UUID { return em.id }

func (em *EntityManager) Registry() *Registry { return em.registry }

func (em *EntityManager) Config() Config { return em.cfg }

// Identity exposes the identity map for inspection.
func (em *EntityManager) Identity() *IdentityMap { return em.identity }

// Clear detaches every managed instance and drops pending changes.
func (em *EntityManager) Clear() {
	for _, inst := range em.uow.inserts {
		inst.detached = true
	}
	em.identity.Clear()
	em.uow = newUnitOfWork(em.identity)
}

// GetReference returns the managed instance for key, registering an
// uninitialized Reference when none exists. No statement is issued.
func (em *EntityManager) GetReference(entity string, key any) (*Instance, error) {
	meta, err := em.registry.Entity(entity)
	if err != nil {
		return nil, err
	}
	return em.identity.GetOrCreate(meta, key)
}

// FindOption tunes FindOne.
type FindOption func(*QB)

// Fields restricts FindOne to the given properties.
func Fields(names ...string) FindOption {
	return func(qb *QB) { qb.Fields(names...) }
}

// FindOne loads one instance by primary key. key may also be an *Instance.
func (em *EntityManager) FindOne(ctx context.Context, entity string, key any, opts ...FindOption) (*Instance, error) {
	meta, err := em.registry.Entity(entity)
	if err != nil {
		return nil, err
	}
	if inst, ok := key.(*Instance); ok {
		key = instanceKey(inst)
	}
	qb := em.Query(entity).Where(Eq(meta.pk, key))
	for _, opt := range opts {
		opt(qb)
	}
	inst, err := qb.One(ctx)
	if err != nil {
		if nf, ok := err.(*NotFoundError); ok {
			nf.Key = key
		}
		return nil, err
	}
	return inst, nil
}

// Load fetches fields of inst from storage, every property when none is given.
// It is how a Reference is explicitly initialized.
func (em *EntityManager) Load(ctx context.Context, inst *Instance, fields ...string) error {
	if inst.detached {
		return ErrDetached
	}
	if inst.key == nil {
		return &ValidationError{Entity: inst.meta.name, Field: inst.meta.pk, Reason: "instance has no key yet"}
	}
	meta := inst.meta
	requested, err := selection(meta, fields)
	if err != nil {
		return err
	}
	cols := make([]string, 0, len(requested))
	for _, name := range requested {
		c, _ := meta.ColumnOf(name)
		cols = append(cols, c)
	}
	rows, err := em.query(ctx, em.exec, Query{
		Action:     ActionReadOne,
		Table:      meta.table,
		Columns:    cols,
		Conditions: []Condition{Eq(meta.PrimaryKey().Column, inst.key)},
		Limit:      1,
	})
	if err != nil {
		return err
	}
	if len(rows) == 0 {
		return &NotFoundError{Entity: meta.name, Key: inst.key}
	}
	return hydrate(em.identity, inst, rows[0], requested)
}

// LoadCollection loads the to-many relation of inst through its owning side.
func (em *EntityManager) LoadCollection(ctx context.Context, inst *Instance, relation string) ([]*Instance, error) {
	if inst.detached {
		return nil, ErrDetached
	}
	rel, ok := inst.meta.Relation(relation)
	if !ok || rel.Kind != ToMany {
		return nil, &ValidationError{Entity: inst.meta.name, Field: relation, Reason: "not a collection"}
	}
	if inst.key == nil {
		return nil, nil
	}
	return em.Query(rel.Target).
		Where(Eq(rel.MappedBy, inst.key)).
		OrderBy(rel.target.pk, "ASC").
		All(ctx)
}

// Create builds a New instance from data and schedules it for insertion.
// Raw keys are accepted for relations.
func (em *EntityManager) Create(entity string, data Data) (*Instance, error) {
	meta, err := em.registry.Entity(entity)
	if err != nil {
		return nil, err
	}
	inst := newInstance(meta, nil, StateNew)
	steps, err := em.planAssign(inst, data, AssignOptions{UpdateByPrimaryKey: true})
	if err != nil {
		return nil, err
	}
	if pk, ok := meta.Field(meta.pk); ok {
		if v, given := data[meta.pk]; given && v != nil {
			k, err := normalize(pk.Type, v)
			if err != nil {
				return nil, &ValidationError{Entity: meta.name, Field: meta.pk, Reason: err.Error()}
			}
			if _, taken := em.identity.Get(meta, k); taken {
				return nil, &ValidationError{Entity: meta.name, Field: meta.pk, Reason: "another instance is managed under key " + keyString(k)}
			}
		}
	}
	for _, step := range steps {
		step()
	}
	if err := em.uow.scheduleInsert(inst); err != nil {
		return nil, err
	}
	return inst, nil
}

// Persist makes inst managed. A New instance is scheduled for insertion; a
// detached one is reattached unless another instance holds its key.
func (em *EntityManager) Persist(inst *Instance) error {
	if inst.detached {
		if inst.key == nil {
			inst.detached = false
			inst.state = StateNew
			return em.uow.scheduleInsert(inst)
		}
		if err := em.identity.Add(inst); err != nil {
			return err
		}
		inst.detached = false
		if inst.state == StateNew {
			em.uow.inserts = append(em.uow.inserts, inst)
		}
		return nil
	}
	if inst.state == StateNew {
		return em.uow.scheduleInsert(inst)
	}
	return nil
}

// Remove schedules inst for deletion. A New instance is simply forgotten.
func (em *EntityManager) Remove(inst *Instance) error {
	if inst.detached {
		return ErrDetached
	}
	if inst.state == StateNew {
		em.uow.unschedule(inst)
		em.identity.Remove(inst)
		inst.detached = true
		return nil
	}
	if inst.key == nil {
		return &ValidationError{Entity: inst.meta.name, Field: inst.meta.pk, Reason: "instance has no key"}
	}
	em.uow.scheduleDelete(inst)
	return nil
}
