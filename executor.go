package orm

import "context"

// Executor represents the database connection abstraction.
// It must remain compatible with sql.DB, sql.Tx and mocks.
type Executor interface {
	Exec(ctx context.Context, query string, args ...any) (Result, error)
	Query(ctx context.Context, query string, args ...any) (Rows, error)
}

// Result reports the outcome of a write. sql.Result satisfies it.
type Result interface {
	RowsAffected() (int64, error)
}

// Rows represents an iterator over query results.
type Rows interface {
	Next() bool
	Scan(dest ...any) error
	Columns() ([]string, error)
	Close() error
	Err() error
}
