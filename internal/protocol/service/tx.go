package service

import (
	"context"
	"sync"
	"time"

	dErrors "agentledger/pkg/domain-errors"
)

// Atomic provides the transactional boundary for cross-layer mutations.
// Implementations may wrap a database transaction or, in-memory, a coarse
// lock. Every mutating orchestrator entry point runs inside RunInTx so that
// no intermediate state of the two-phase registration handshake (or any
// other multi-layer write) is ever externally observable.
type Atomic interface {
	RunInTx(ctx context.Context, fn func(ctx context.Context) error) error
}

// defaultTxTimeout is the maximum duration for one logical operation.
const defaultTxTimeout = 5 * time.Second

// SerialAtomic serializes all mutations behind one mutex. It pairs with the
// in-memory stores, where cross-store rollback does not exist: callers must
// pre-check every failure condition before the first write.
type SerialAtomic struct {
	mu      sync.Mutex
	timeout time.Duration
}

func NewSerialAtomic() *SerialAtomic {
	return &SerialAtomic{}
}

func (t *SerialAtomic) RunInTx(ctx context.Context, fn func(ctx context.Context) error) error {
	if err := ctx.Err(); err != nil {
		return dErrors.Wrap(err, dErrors.CodeTimeout, "operation aborted: context cancelled")
	}

	timeout := t.timeout
	if timeout == 0 {
		timeout = defaultTxTimeout
	}
	if _, hasDeadline := ctx.Deadline(); !hasDeadline {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}

	t.mu.Lock()
	defer t.mu.Unlock()

	if err := ctx.Err(); err != nil {
		return dErrors.Wrap(err, dErrors.CodeTimeout, "operation aborted: context cancelled")
	}
	return fn(ctx)
}
