package schema

import (
	"context"

	"github.com/sirupsen/logrus"
	"github.com/tinywasm/orm/v2"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
)

var tracer = otel.Tracer("github.com/tinywasm/orm/v2/schema")

// Writer persists a rendered migration and returns where it was stored.
type Writer interface {
	Write(name string, up, down []string, allOrNothing bool) (string, error)
}

// PendingChecker reports whether stored migrations wait to be applied.
// *migrate.Store satisfies it.
type PendingChecker interface {
	Pending(ctx context.Context) (bool, error)
}

// Migration is a rendered diff.
type Migration struct {
	Name string
	Diff Diff
	Up   []string
	Down []string
	// Path is set when the migration was handed to a Writer.
	Path string
}

// Migrator compares the declared schema of a registry with the live database.
type Migrator struct {
	registry *orm.Registry
	live     Introspector
	dialect  Dialect
	writer   Writer
	store    PendingChecker
	cfg      orm.Config
	log      *logrus.Logger
}

// MigratorOption configures a Migrator.
type MigratorOption func(*Migrator)

// WithWriter stores created migrations through w. A writer that is also a
// PendingChecker is consulted before creating a migration.
func WithWriter(w Writer) MigratorOption {
	return func(m *Migrator) { m.writer = w }
}

// WithStore consults s before creating a migration.
func WithStore(s PendingChecker) MigratorOption {
	return func(m *Migrator) { m.store = s }
}

// WithConfig replaces orm.DefaultConfig.
func WithConfig(cfg orm.Config) MigratorOption {
	return func(m *Migrator) { m.cfg = cfg }
}

// WithLogger replaces the orm package logger.
func WithLogger(l *logrus.Logger) MigratorOption {
	return func(m *Migrator) { m.log = l }
}

func NewMigrator(reg *orm.Registry, live Introspector, d Dialect, opts ...MigratorOption) *Migrator {
	m := &Migrator{
		registry: reg,
		live:     live,
		dialect:  d,
		cfg:      orm.DefaultConfig(),
		log:      orm.DefaultLogger(),
	}
	for _, opt := range opts {
		opt(m)
	}
	if m.store == nil {
		if s, ok := m.writer.(PendingChecker); ok {
			m.store = s
		}
	}
	return m
}

// Diff compares the live schema with the declared one.
func (m *Migrator) Diff(ctx context.Context) (Diff, error) {
	live, err := m.live.Introspect(ctx)
	if err != nil {
		return Diff{}, err
	}
	return Compare(live, FromRegistry(m.registry, m.dialect), m.dialect)
}

// CheckMigrationNeeded reports whether the live schema differs from the
// declared one.
func (m *Migrator) CheckMigrationNeeded(ctx context.Context) (bool, error) {
	d, err := m.Diff(ctx)
	if err != nil {
		return false, err
	}
	return !d.Empty(), nil
}

// CreateMigration renders the pending diff. It returns nil when nothing
// differs. With a Writer the migration is also stored. While the store holds
// unapplied migrations it fails with orm.ErrPendingMigration, since the live
// schema does not reflect them yet.
func (m *Migrator) CreateMigration(ctx context.Context, name string) (*Migration, error) {
	ctx, span := tracer.Start(ctx, "schema.CreateMigration")
	defer span.End()

	mig, err := m.createMigration(ctx, name)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		m.log.WithFields(logrus.Fields{
			"module":   "schema",
			"funcName": "CreateMigration",
			"data":     name,
		}).Error(err.Error())
		return nil, err
	}
	if mig != nil {
		span.SetAttributes(attribute.Int("schema.operations", len(mig.Diff.Up)))
	}
	return mig, nil
}

func (m *Migrator) createMigration(ctx context.Context, name string) (*Migration, error) {
	if m.store != nil {
		pending, err := m.store.Pending(ctx)
		if err != nil {
			return nil, err
		}
		if pending {
			return nil, orm.ErrPendingMigration
		}
	}
	d, err := m.Diff(ctx)
	if err != nil {
		return nil, err
	}
	if d.Empty() {
		return nil, nil
	}
	up, down, err := d.Render(m.dialect)
	if err != nil {
		return nil, err
	}
	if stmt := m.foreignKeySwitch(); stmt != "" {
		up = append([]string{stmt}, up...)
		down = append([]string{stmt}, down...)
	}
	mig := &Migration{Name: name, Diff: d, Up: up, Down: down}
	if m.writer != nil {
		path, err := m.writer.Write(name, up, down, m.cfg.AllOrNothing)
		if err != nil {
			return nil, err
		}
		mig.Path = path
	}
	m.log.WithFields(logrus.Fields{
		"module":     "schema",
		"migration":  name,
		"operations": len(d.Up),
		"path":       mig.Path,
	}).Info("migration created")
	return mig, nil
}

// foreignKeySwitch returns the statement suspending foreign-key checks when
// DisableForeignKeys is set and the dialect has one.
func (m *Migrator) foreignKeySwitch() string {
	if !m.cfg.DisableForeignKeys {
		return ""
	}
	if sw, ok := m.dialect.(orm.ForeignKeySwitch); ok {
		return sw.DisableForeignKeys()
	}
	return ""
}

// RefreshDatabase drops every live table, dependents first, and creates the
// declared schema. With AllOrNothing it runs in one transaction on exec.
func (m *Migrator) RefreshDatabase(ctx context.Context, exec orm.Executor) error {
	ctx, span := tracer.Start(ctx, "schema.RefreshDatabase")
	defer span.End()

	stmts, err := m.refreshStatements(ctx)
	if err == nil {
		span.SetAttributes(attribute.Int("schema.statements", len(stmts)))
		if m.cfg.AllOrNothing {
			err = m.execTx(ctx, exec, stmts)
		} else {
			err = m.execAll(ctx, exec, stmts)
		}
	}
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		m.log.WithFields(logrus.Fields{
			"module":   "schema",
			"funcName": "RefreshDatabase",
		}).Error(err.Error())
		return err
	}
	m.log.WithFields(logrus.Fields{
		"module":     "schema",
		"statements": len(stmts),
	}).Info("database refreshed")
	return nil
}

func (m *Migrator) refreshStatements(ctx context.Context) ([]string, error) {
	live, err := m.live.Introspect(ctx)
	if err != nil {
		return nil, err
	}
	drop, err := Compare(live, &Schema{}, m.dialect)
	if err != nil {
		return nil, err
	}
	create, err := Compare(&Schema{}, FromRegistry(m.registry, m.dialect), m.dialect)
	if err != nil {
		return nil, err
	}

	var stmts []string
	if stmt := m.foreignKeySwitch(); stmt != "" {
		stmts = append(stmts, stmt)
	}
	for _, op := range append(drop.Up, create.Up...) {
		out, err := m.dialect.Render(op)
		if err != nil {
			return nil, err
		}
		stmts = append(stmts, out...)
	}
	return stmts, nil
}

func (m *Migrator) execTx(ctx context.Context, exec orm.Executor, stmts []string) error {
	txExec, ok := exec.(orm.TxExecutor)
	if !ok {
		return orm.ErrNoTxSupport
	}
	bound, err := txExec.BeginTx(ctx)
	if err != nil {
		return err
	}
	if err := m.execAll(ctx, bound, stmts); err != nil {
		_ = bound.Rollback()
		return err
	}
	return bound.Commit()
}

func (m *Migrator) execAll(ctx context.Context, exec orm.Executor, stmts []string) error {
	for _, stmt := range stmts {
		if m.cfg.Debug {
			m.log.WithFields(logrus.Fields{"module": "schema", "query": stmt}).Debug("schema statement")
		}
		if _, err := exec.Exec(ctx, stmt); err != nil {
			return err
		}
	}
	return nil
}
