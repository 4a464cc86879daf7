package tx

import (
	"context"
	"database/sql"
	"time"

	dErrors "agentledger/pkg/domain-errors"
)

const defaultAtomicTimeout = 5 * time.Second

// SQLAtomic runs a function inside a database transaction. The transaction
// rides the context, so every store touched by one logical operation joins it
// through QuerierFor.
type SQLAtomic struct {
	db      *sql.DB
	timeout time.Duration
}

func NewSQLAtomic(db *sql.DB) *SQLAtomic {
	return &SQLAtomic{db: db, timeout: defaultAtomicTimeout}
}

func (a *SQLAtomic) RunInTx(ctx context.Context, fn func(ctx context.Context) error) error {
	if err := ctx.Err(); err != nil {
		return dErrors.Wrap(err, dErrors.CodeTimeout, "transaction aborted: context cancelled")
	}

	if _, hasDeadline := ctx.Deadline(); !hasDeadline {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, a.timeout)
		defer cancel()
	}

	sqlTx, err := a.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() {
		_ = sqlTx.Rollback()
	}()

	if err := fn(WithTx(ctx, sqlTx)); err != nil {
		return err
	}
	return sqlTx.Commit()
}
