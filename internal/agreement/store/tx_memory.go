package store

import (
	"context"
	"sync"
	"time"

	"airdrop/internal/agreement/ports"
	ledgerstore "airdrop/internal/ledger/store"
	dErrors "airdrop/pkg/domain-errors"
	txcontext "airdrop/pkg/platform/tx"
)

// defaultTxTimeout bounds a transaction when the caller set no deadline.
const defaultTxTimeout = 5 * time.Second

// InMemoryTx serializes transactions over the in-memory registry and ledger
// with one lock. Ledger accounts are shared between agreements, so finer
// sharding would not isolate them. Every mutation is journaled, including
// audit appends that find the journal on the context; a failed transaction
// replays the journal in reverse before the lock is released.
type InMemoryTx struct {
	mu       sync.Mutex
	registry *InMemoryRegistry
	ledger   *ledgerstore.InMemoryLedger
	timeout  time.Duration
}

func NewInMemoryTx(registry *InMemoryRegistry, ledger *ledgerstore.InMemoryLedger) *InMemoryTx {
	return &InMemoryTx{registry: registry, ledger: ledger, timeout: defaultTxTimeout}
}

func (t *InMemoryTx) RunInTx(ctx context.Context, fn func(ctx context.Context, stores ports.Stores) error) error {
	if err := ctx.Err(); err != nil {
		return dErrors.Wrap(err, dErrors.CodeTimeout, "transaction aborted: context cancelled")
	}
	if _, hasDeadline := ctx.Deadline(); !hasDeadline && t.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, t.timeout)
		defer cancel()
	}

	t.mu.Lock()
	defer t.mu.Unlock()

	if err := ctx.Err(); err != nil {
		return dErrors.Wrap(err, dErrors.CodeTimeout, "transaction aborted: context cancelled")
	}

	journal := txcontext.NewJournal()
	ledger := t.ledger.InTx(journal)
	stores := ports.Stores{
		Registry:    t.registry.InTx(journal),
		Ledger:      ledger,
		Provisioner: ledger,
	}

	defer func() {
		if r := recover(); r != nil {
			journal.Rollback()
			panic(r)
		}
	}()

	ctx = txcontext.WithJournal(ctx, journal)
	if err := fn(ctx, stores); err != nil {
		journal.Rollback()
		return err
	}
	if err := ctx.Err(); err != nil {
		journal.Rollback()
		return dErrors.Wrap(err, dErrors.CodeTimeout, "transaction aborted: context cancelled")
	}
	journal.Commit()
	return nil
}
