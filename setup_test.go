package orm_test

import (
	"context"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
	"github.com/tinywasm/orm/v2"
	"github.com/tinywasm/orm/v2/dialect"
)

// MockCompiler captures the queries and delegates to the SQLite compiler.
type MockCompiler struct {
	Queries   []orm.Query
	ReturnErr error
}

func (m *MockCompiler) Compile(q orm.Query) (orm.Plan, error) {
	m.Queries = append(m.Queries, q)
	if m.ReturnErr != nil {
		return orm.Plan{}, m.ReturnErr
	}
	return dialect.SQLite{}.Compile(q)
}

func (m *MockCompiler) DisableForeignKeys() string { return "PRAGMA defer_foreign_keys = ON" }

// MockExecutor captures execution calls.
//
// Statements with RETURNING yield one row holding the next generated key.
// Other queries pop Results in order.
type MockExecutor struct {
	Statements []string
	Args       [][]any
	Results    []*MockRows
	// FailOn makes the first statement containing it fail with Err.
	FailOn string
	Err    error
	// Affected is returned by every Exec; nil means 1.
	Affected *int64
	nextKey  int64
}

func (m *MockExecutor) record(query string, args []any) error {
	m.Statements = append(m.Statements, query)
	m.Args = append(m.Args, args)
	if m.FailOn != "" && strings.Contains(query, m.FailOn) {
		return m.Err
	}
	return nil
}

func (m *MockExecutor) Exec(_ context.Context, query string, args ...any) (orm.Result, error) {
	if err := m.record(query, args); err != nil {
		return nil, err
	}
	n := int64(1)
	if m.Affected != nil {
		n = *m.Affected
	}
	return MockResult(n), nil
}

func (m *MockExecutor) Query(_ context.Context, query string, args ...any) (orm.Rows, error) {
	if err := m.record(query, args); err != nil {
		return nil, err
	}
	if i := strings.Index(query, " RETURNING "); i >= 0 {
		m.nextKey++
		col := strings.Trim(query[i+len(" RETURNING "):], `"`)
		return &MockRows{Cols: []string{col}, Data: [][]any{{m.nextKey}}}, nil
	}
	if len(m.Results) == 0 {
		return &MockRows{}, nil
	}
	r := m.Results[0]
	m.Results = m.Results[1:]
	return r, nil
}

// Writes returns the recorded statements that are not SELECTs.
func (m *MockExecutor) Writes() []string {
	var out []string
	for _, s := range m.Statements {
		if !strings.HasPrefix(s, "SELECT") {
			out = append(out, s)
		}
	}
	return out
}

type MockResult int64

func (r MockResult) RowsAffected() (int64, error) { return int64(r), nil }

// MockRows serves Data row by row.
type MockRows struct {
	Cols    []string
	Data    [][]any
	Current int
	ErrVal  error
}

func (m *MockRows) Next() bool {
	if m.Current < len(m.Data) {
		m.Current++
		return true
	}
	return false
}

func (m *MockRows) Scan(dest ...any) error {
	row := m.Data[m.Current-1]
	for i := range dest {
		*(dest[i].(*any)) = row[i]
	}
	return nil
}

func (m *MockRows) Columns() ([]string, error) { return m.Cols, nil }

func (m *MockRows) Close() error { return nil }

func (m *MockRows) Err() error { return m.ErrVal }

// MockTxExecutor hands out a bound executor sharing its statement log.
type MockTxExecutor struct {
	*MockExecutor
	Bound      *MockTxBoundExecutor
	BeginCalls int
	BeginTxErr error
}

func NewMockTxExecutor() *MockTxExecutor {
	exec := &MockExecutor{}
	return &MockTxExecutor{MockExecutor: exec, Bound: &MockTxBoundExecutor{MockExecutor: exec}}
}

func (m *MockTxExecutor) BeginTx(context.Context) (orm.TxBoundExecutor, error) {
	m.BeginCalls++
	if m.BeginTxErr != nil {
		return nil, m.BeginTxErr
	}
	return m.Bound, nil
}

type MockTxBoundExecutor struct {
	*MockExecutor
	CommitCalled   bool
	RollbackCalled bool
}

func (m *MockTxBoundExecutor) Commit() error {
	m.CommitCalled = true
	return nil
}

func (m *MockTxBoundExecutor) Rollback() error {
	m.RollbackCalled = true
	return nil
}

// shopRegistry declares Brand 1-n Product and a versioned Doc.
func shopRegistry(t *testing.T) *orm.Registry {
	t.Helper()
	b := orm.NewRegistryBuilder()
	b.Entity("Brand").
		PrimaryKey("id", orm.TypeInt64, orm.AutoIncrement()).
		Field("name", orm.TypeText, orm.NotNull(), orm.Unique()).
		OneToMany("products", "Product", "brand")
	b.Entity("Product").
		PrimaryKey("id", orm.TypeInt64, orm.AutoIncrement()).
		Field("name", orm.TypeText, orm.NotNull()).
		Field("note", orm.TypeText).
		ManyToOne("brand", "Brand", orm.Nullable())
	b.Entity("Doc").
		PrimaryKey("id", orm.TypeInt64, orm.AutoIncrement()).
		Field("title", orm.TypeText, orm.NotNull()).
		Version("version")
	reg, err := b.Build()
	require.NoError(t, err)
	return reg
}

func newMockManager(t *testing.T, opts ...orm.Option) (*orm.EntityManager, *MockTxExecutor) {
	t.Helper()
	exec := NewMockTxExecutor()
	return orm.NewEntityManager(shopRegistry(t), exec, &MockCompiler{}, opts...), exec
}

func productRow(id int64, name string, brand any) *MockRows {
	return &MockRows{
		Cols: []string{"id", "name", "note", "brand_id"},
		Data: [][]any{{id, name, nil, brand}},
	}
}
