// Package migrate stores generated migrations as goose SQL files and applies
// them with goose, which keeps the ordered list of applied versions.
package migrate

import (
	"context"
	"database/sql"
	"errors"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"

	"github.com/pressly/goose/v3"
	"github.com/sirupsen/logrus"
	"github.com/tinywasm/fmt"
	"github.com/tinywasm/orm/v2"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

var tracer = otel.Tracer("github.com/tinywasm/orm/v2/migrate")

// TableName is the goose version table. Introspection should ignore it.
const TableName = "goose_db_version"

// Store is a directory of migration files applied to one database.
type Store struct {
	db      *sql.DB
	dir     string
	dialect goose.Dialect
	log     *logrus.Logger
}

// New returns a store writing to dir. dialect is "sqlite" or "postgres".
func New(db *sql.DB, dir, dialect string) (*Store, error) {
	var d goose.Dialect
	switch dialect {
	case "sqlite":
		d = goose.DialectSQLite3
	case "postgres":
		d = goose.DialectPostgres
	default:
		return nil, &orm.ValidationError{Entity: "migrate", Field: "dialect", Reason: "unsupported dialect " + dialect}
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, err
	}
	return &Store{db: db, dir: dir, dialect: d, log: orm.DefaultLogger()}, nil
}

// WithLogger replaces the orm package logger.
func (s *Store) WithLogger(l *logrus.Logger) *Store {
	s.log = l
	return s
}

// Dir returns the migration directory.
func (s *Store) Dir() string { return s.dir }

// Write stores a migration as <version>_<name>.sql, the version being one
// above the highest file present. Statements of a migration run in one
// transaction unless allOrNothing is false.
func (s *Store) Write(name string, up, down []string, allOrNothing bool) (string, error) {
	version, err := s.nextVersion()
	if err != nil {
		return "", err
	}
	var b strings.Builder
	if !allOrNothing {
		b.WriteString("-- +goose NO TRANSACTION\n")
	}
	b.WriteString("-- +goose Up\n")
	for _, stmt := range up {
		b.WriteString(stmt + ";\n")
	}
	b.WriteString("\n-- +goose Down\n")
	for _, stmt := range down {
		b.WriteString(stmt + ";\n")
	}

	v := strconv.FormatInt(version, 10)
	if len(v) < 5 {
		v = strings.Repeat("0", 5-len(v)) + v
	}
	file := v + "_" + fmt.Convert(name).SnakeLow().String() + ".sql"
	path := filepath.Join(s.dir, file)
	if err := os.WriteFile(path, []byte(b.String()), 0o644); err != nil {
		return "", err
	}
	s.log.WithFields(logrus.Fields{"module": "migrate", "path": path}).Info("migration written")
	return path, nil
}

func (s *Store) nextVersion() (int64, error) {
	entries, err := os.ReadDir(s.dir)
	if err != nil {
		return 0, err
	}
	var max int64
	for _, e := range entries {
		if e.IsDir() || filepath.Ext(e.Name()) != ".sql" {
			continue
		}
		prefix, _, ok := strings.Cut(e.Name(), "_")
		if !ok {
			continue
		}
		if v, err := strconv.ParseInt(prefix, 10, 64); err == nil && v > max {
			max = v
		}
	}
	return max + 1, nil
}

func (s *Store) provider() (*goose.Provider, error) {
	return goose.NewProvider(s.dialect, s.db, os.DirFS(s.dir))
}

// Migration is one migration file and whether it is applied.
type Migration struct {
	Version int64
	Path    string
	Applied bool
}

// List returns every migration file in version order.
func (s *Store) List(ctx context.Context) ([]Migration, error) {
	p, err := s.provider()
	if errors.Is(err, goose.ErrNoMigrations) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	status, err := p.Status(ctx)
	if err != nil {
		return nil, err
	}
	out := make([]Migration, 0, len(status))
	for _, st := range status {
		out = append(out, Migration{
			Version: st.Source.Version,
			Path:    st.Source.Path,
			Applied: st.State == goose.StateApplied,
		})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Version < out[j].Version })
	return out, nil
}

// Applied returns the applied versions in order.
func (s *Store) Applied(ctx context.Context) ([]int64, error) {
	list, err := s.List(ctx)
	if err != nil {
		return nil, err
	}
	var out []int64
	for _, m := range list {
		if m.Applied {
			out = append(out, m.Version)
		}
	}
	return out, nil
}

// Pending reports whether some migration file is not applied.
func (s *Store) Pending(ctx context.Context) (bool, error) {
	p, err := s.provider()
	if errors.Is(err, goose.ErrNoMigrations) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return p.HasPending(ctx)
}

// Up applies every pending migration and returns the applied versions. When a
// migration fails the versions applied before it are returned with the error.
func (s *Store) Up(ctx context.Context) ([]int64, error) {
	ctx, span := tracer.Start(ctx, "migrate.Up")
	defer span.End()

	p, err := s.provider()
	if errors.Is(err, goose.ErrNoMigrations) {
		return nil, nil
	}
	if err != nil {
		return nil, s.fail(span, "Up", err)
	}
	results, err := p.Up(ctx)
	if err != nil {
		var partial *goose.PartialError
		if errors.As(err, &partial) {
			results = partial.Applied
		}
	}
	var out []int64
	for _, r := range results {
		out = append(out, r.Source.Version)
	}
	span.SetAttributes(attribute.Int("migrate.applied", len(out)))
	if err != nil {
		return out, s.fail(span, "Up", err)
	}
	return out, nil
}

// Down reverts the last applied migration and returns its version.
func (s *Store) Down(ctx context.Context) (int64, error) {
	ctx, span := tracer.Start(ctx, "migrate.Down")
	defer span.End()

	p, err := s.provider()
	if err != nil {
		return 0, s.fail(span, "Down", err)
	}
	r, err := p.Down(ctx)
	if err != nil {
		return 0, s.fail(span, "Down", err)
	}
	return r.Source.Version, nil
}

// Version returns the current database version, 0 when nothing is applied.
func (s *Store) Version(ctx context.Context) (int64, error) {
	p, err := s.provider()
	if errors.Is(err, goose.ErrNoMigrations) {
		return 0, nil
	}
	if err != nil {
		return 0, err
	}
	return p.GetDBVersion(ctx)
}

func (s *Store) fail(sp trace.Span, funcName string, err error) error {
	sp.RecordError(err)
	sp.SetStatus(codes.Error, err.Error())
	s.log.WithFields(logrus.Fields{
		"module":   "migrate",
		"funcName": funcName,
		"dir":      s.dir,
	}).Error(err.Error())
	return err
}
