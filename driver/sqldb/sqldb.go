// Package sqldb adapts database/sql to the orm executor contracts.
package sqldb

import (
	"context"
	"database/sql"

	"github.com/tinywasm/orm/v2"
)

// DB wraps a *sql.DB as an orm.TxExecutor.
type DB struct {
	db *sql.DB
}

// New wraps an open database handle.
func New(db *sql.DB) *DB {
	return &DB{db: db}
}

// Open opens a database with the registered driverName and checks the connection.
func Open(ctx context.Context, driverName, dsn string) (*DB, error) {
	db, err := sql.Open(driverName, dsn)
	if err != nil {
		return nil, Classify(err)
	}
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, Classify(err)
	}
	return New(db), nil
}

// SQL returns the underlying handle.
func (d *DB) SQL() *sql.DB { return d.db }

func (d *DB) Close() error { return d.db.Close() }

func (d *DB) Exec(ctx context.Context, query string, args ...any) (orm.Result, error) {
	res, err := d.db.ExecContext(ctx, query, args...)
	if err != nil {
		return nil, Classify(err)
	}
	return res, nil
}

func (d *DB) Query(ctx context.Context, query string, args ...any) (orm.Rows, error) {
	rows, err := d.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, Classify(err)
	}
	return &classifiedRows{Rows: rows}, nil
}

func (d *DB) BeginTx(ctx context.Context) (orm.TxBoundExecutor, error) {
	tx, err := d.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, Classify(err)
	}
	return &Tx{tx: tx}, nil
}

// Tx is a transaction-bound executor.
type Tx struct {
	tx *sql.Tx
}

func (t *Tx) Exec(ctx context.Context, query string, args ...any) (orm.Result, error) {
	res, err := t.tx.ExecContext(ctx, query, args...)
	if err != nil {
		return nil, Classify(err)
	}
	return res, nil
}

func (t *Tx) Query(ctx context.Context, query string, args ...any) (orm.Rows, error) {
	rows, err := t.tx.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, Classify(err)
	}
	return &classifiedRows{Rows: rows}, nil
}

func (t *Tx) Commit() error { return Classify(t.tx.Commit()) }

func (t *Tx) Rollback() error { return Classify(t.tx.Rollback()) }

// classifiedRows reports errors raised while stepping, such as a constraint
// failure on INSERT ... RETURNING, the same way Exec does.
type classifiedRows struct {
	*sql.Rows
}

func (r *classifiedRows) Err() error { return Classify(r.Rows.Err()) }

func (r *classifiedRows) Scan(dest ...any) error { return Classify(r.Rows.Scan(dest...)) }
