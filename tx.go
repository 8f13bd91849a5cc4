package orm

import "context"

// TxBoundExecutor represents an executor bound to a transaction.
type TxBoundExecutor interface {
	Executor
	Commit() error
	Rollback() error
}

// TxExecutor represents an executor that supports transactions.
type TxExecutor interface {
	Executor
	BeginTx(ctx context.Context) (TxBoundExecutor, error)
}

// withTx runs fn on a transaction-bound executor, committing on success and
// rolling back on any error.
func withTx(ctx context.Context, exec Executor, fn func(Executor) error) error {
	txExec, ok := exec.(TxExecutor)
	if !ok {
		return ErrNoTxSupport
	}

	bound, err := txExec.BeginTx(ctx)
	if err != nil {
		return err
	}

	if err := fn(bound); err != nil {
		_ = bound.Rollback()
		return err
	}

	return bound.Commit()
}

// Transactional runs fn against a fork of em bound to one transaction and
// flushes the fork before committing. Any error rolls everything back.
func (em *EntityManager) Transactional(ctx context.Context, fn func(ctx context.Context, tx *EntityManager) error) error {
	return withTx(ctx, em.exec, func(bound Executor) error {
		fork := em.Fork()
		fork.exec = bound
		fork.cfg.Transactional = false
		if err := fn(ctx, fork); err != nil {
			return err
		}
		return fork.Flush(ctx)
	})
}
