package store

import (
	"context"
	"database/sql"
	"time"

	"airdrop/internal/agreement/ports"
	ledgerstore "airdrop/internal/ledger/store"
	dErrors "airdrop/pkg/domain-errors"
	txcontext "airdrop/pkg/platform/tx"
)

// PostgresTx runs each call in one database transaction. Stores find the
// transaction on the context; rows are locked with SELECT ... FOR UPDATE.
type PostgresTx struct {
	db       *sql.DB
	registry *PostgresRegistry
	ledger   *ledgerstore.PostgresLedger
	timeout  time.Duration
}

func NewPostgresTx(db *sql.DB, registry *PostgresRegistry, ledger *ledgerstore.PostgresLedger) *PostgresTx {
	return &PostgresTx{db: db, registry: registry, ledger: ledger, timeout: defaultTxTimeout}
}

func (t *PostgresTx) RunInTx(ctx context.Context, fn func(ctx context.Context, stores ports.Stores) error) error {
	if err := ctx.Err(); err != nil {
		return dErrors.Wrap(err, dErrors.CodeTimeout, "transaction aborted: context cancelled")
	}
	if _, hasDeadline := ctx.Deadline(); !hasDeadline && t.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, t.timeout)
		defer cancel()
	}

	tx, err := t.db.BeginTx(ctx, &sql.TxOptions{Isolation: sql.LevelReadCommitted})
	if err != nil {
		return dErrors.Wrap(err, dErrors.CodeInternal, "begin transaction")
	}
	defer func() {
		_ = tx.Rollback()
	}()

	stores := ports.Stores{
		Registry:    t.registry,
		Ledger:      t.ledger,
		Provisioner: t.ledger,
	}
	if err := fn(txcontext.WithTx(ctx, tx), stores); err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
		if ctx.Err() != nil {
			return dErrors.Wrap(err, dErrors.CodeTimeout, "transaction aborted: context cancelled")
		}
		return dErrors.Wrap(err, dErrors.CodeInternal, "commit transaction")
	}
	return nil
}
