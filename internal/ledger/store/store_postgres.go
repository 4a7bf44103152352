package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/lib/pq"

	"airdrop/internal/ledger/models"
	"airdrop/pkg/domain"
	dErrors "airdrop/pkg/domain-errors"
	"airdrop/pkg/platform/sentinel"
	txcontext "airdrop/pkg/platform/tx"
)

// PostgresLedger persists accounts in the ledger_accounts table. Balances are
// NUMERIC(20,0) so the full uint64 range round-trips. Every mutation locks the
// rows it touches with SELECT ... FOR UPDATE; called outside a transaction it
// opens its own.
type PostgresLedger struct {
	db  *sql.DB
	now func() time.Time
}

func NewPostgres(db *sql.DB) *PostgresLedger {
	return &PostgresLedger{db: db, now: time.Now}
}

// inTx runs fn on the transaction carried by ctx, or on a fresh one.
func (l *PostgresLedger) inTx(ctx context.Context, fn func(exec txcontext.Executor) error) error {
	if tx, ok := txcontext.From(ctx); ok {
		return fn(tx)
	}
	tx, err := l.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin ledger transaction: %w", err)
	}
	defer func() {
		_ = tx.Rollback()
	}()
	if err := fn(tx); err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit ledger transaction: %w", err)
	}
	return nil
}

const accountColumns = `address, owner, asset, balance, deposit, capability_digest, created_at`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanAccount(row rowScanner) (*models.Account, error) {
	var (
		acct                  models.Account
		address, owner, asset string
		balance, deposit      string
	)
	if err := row.Scan(&address, &owner, &asset, &balance, &deposit, &acct.CapabilityDigest, &acct.CreatedAt); err != nil {
		return nil, err
	}
	var err error
	if acct.Address, err = domain.ParseAccountRef(address); err != nil {
		return nil, fmt.Errorf("parse account address: %w", err)
	}
	if acct.Owner, err = domain.ParseAccountRef(owner); err != nil {
		return nil, fmt.Errorf("parse account owner: %w", err)
	}
	if acct.Asset, err = domain.ParseAssetID(asset); err != nil {
		return nil, fmt.Errorf("parse account asset: %w", err)
	}
	if acct.Balance, err = strconv.ParseUint(balance, 10, 64); err != nil {
		return nil, fmt.Errorf("parse account balance: %w", err)
	}
	if acct.Deposit, err = strconv.ParseUint(deposit, 10, 64); err != nil {
		return nil, fmt.Errorf("parse account deposit: %w", err)
	}
	return &acct, nil
}

func (l *PostgresLedger) Account(ctx context.Context, addr domain.AccountRef) (*models.Account, error) {
	query := `SELECT ` + accountColumns + ` FROM ledger_accounts WHERE address = $1`
	acct, err := scanAccount(txcontext.Exec(ctx, l.db).QueryRowContext(ctx, query, addr.String()))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, models.NotFound(addr)
		}
		return nil, fmt.Errorf("get ledger account: %w", err)
	}
	return acct, nil
}

func (l *PostgresLedger) Balance(ctx context.Context, addr domain.AccountRef) (uint64, error) {
	acct, err := l.Account(ctx, addr)
	if err != nil {
		return 0, err
	}
	return acct.Balance, nil
}

// lockAccounts locks the given rows in address order, so concurrent
// transactions touching the same pair cannot deadlock.
func lockAccounts(ctx context.Context, exec txcontext.Executor, addrs ...domain.AccountRef) (map[domain.AccountRef]*models.Account, error) {
	keys := make([]string, 0, len(addrs))
	for _, a := range addrs {
		keys = append(keys, a.String())
	}
	query := `SELECT ` + accountColumns + ` FROM ledger_accounts
		WHERE address = ANY($1)
		ORDER BY address
		FOR UPDATE`
	rows, err := exec.QueryContext(ctx, query, pq.Array(keys))
	if err != nil {
		return nil, fmt.Errorf("lock ledger accounts: %w", err)
	}
	defer rows.Close()

	locked := make(map[domain.AccountRef]*models.Account, len(addrs))
	for rows.Next() {
		acct, err := scanAccount(rows)
		if err != nil {
			return nil, fmt.Errorf("scan ledger account: %w", err)
		}
		locked[acct.Address] = acct
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate ledger accounts: %w", err)
	}
	return locked, nil
}

func (l *PostgresLedger) insert(ctx context.Context, exec txcontext.Executor, acct *models.Account) error {
	query := `
		INSERT INTO ledger_accounts (` + accountColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
	`
	_, err := exec.ExecContext(ctx, query,
		acct.Address.String(),
		acct.Owner.String(),
		acct.Asset.String(),
		strconv.FormatUint(acct.Balance, 10),
		strconv.FormatUint(acct.Deposit, 10),
		acct.CapabilityDigest,
		acct.CreatedAt,
	)
	if err != nil {
		var pqErr *pq.Error
		if errors.As(err, &pqErr) && pqErr.Code == "23505" {
			return dErrors.Wrap(sentinel.ErrConflict, dErrors.CodeConflict, "account already exists")
		}
		return fmt.Errorf("insert ledger account: %w", err)
	}
	return nil
}

func setBalance(ctx context.Context, exec txcontext.Executor, addr domain.AccountRef, balance uint64) error {
	_, err := exec.ExecContext(ctx, `UPDATE ledger_accounts SET balance = $2 WHERE address = $1`,
		addr.String(), strconv.FormatUint(balance, 10))
	if err != nil {
		return fmt.Errorf("update ledger balance: %w", err)
	}
	return nil
}

func (l *PostgresLedger) Transfer(ctx context.Context, from, to domain.AccountRef, amount uint64, auth domain.Authority) error {
	return l.inTx(ctx, func(exec txcontext.Executor) error {
		locked, err := lockAccounts(ctx, exec, from, to)
		if err != nil {
			return err
		}
		src, ok := locked[from]
		if !ok {
			return models.NotFound(from)
		}
		if err := src.Authorize(auth); err != nil {
			return err
		}
		if err := src.CheckDebit(amount); err != nil {
			return err
		}
		if from == to {
			return nil
		}
		dst, ok := locked[to]
		if !ok {
			if !src.IsNative() {
				return models.NotFound(to)
			}
			dst = &models.Account{Address: to, Owner: to, Asset: src.Asset, CreatedAt: l.now()}
			if err := l.insert(ctx, exec, dst); err != nil {
				return err
			}
		}
		if err := src.CheckSameAsset(dst); err != nil {
			return err
		}
		if err := dst.CheckCredit(amount); err != nil {
			return err
		}
		if err := setBalance(ctx, exec, from, src.Balance-amount); err != nil {
			return err
		}
		return setBalance(ctx, exec, to, dst.Balance+amount)
	})
}

func (l *PostgresLedger) CloseAccount(ctx context.Context, addr, destination domain.AccountRef, auth domain.Authority) error {
	return l.inTx(ctx, func(exec txcontext.Executor) error {
		if addr == destination {
			return dErrors.New(dErrors.CodeValidation, "cannot close an account into itself")
		}
		locked, err := lockAccounts(ctx, exec, addr, destination)
		if err != nil {
			return err
		}
		acct, ok := locked[addr]
		if !ok {
			return models.NotFound(addr)
		}
		if err := acct.Authorize(auth); err != nil {
			return err
		}
		released, err := acct.Closable()
		if err != nil {
			return err
		}
		dst, ok := locked[destination]
		if !ok {
			dst = &models.Account{Address: destination, Owner: destination, Asset: domain.NativeCurrency, CreatedAt: l.now()}
			if err := l.insert(ctx, exec, dst); err != nil {
				return err
			}
		}
		if !dst.IsNative() {
			return dErrors.Wrap(sentinel.ErrAssetMismatch, dErrors.CodeValidation, "close destination must be a native account")
		}
		if err := dst.CheckCredit(released); err != nil {
			return err
		}
		if _, err := exec.ExecContext(ctx, `DELETE FROM ledger_accounts WHERE address = $1`, addr.String()); err != nil {
			return fmt.Errorf("delete ledger account: %w", err)
		}
		return setBalance(ctx, exec, destination, dst.Balance+released)
	})
}

func (l *PostgresLedger) EnsureAccount(ctx context.Context, owner domain.AccountRef, asset domain.AssetID) (domain.AccountRef, error) {
	addr, err := models.AddressFor(owner, asset)
	if err != nil {
		return domain.AccountRef{}, err
	}
	query := `
		INSERT INTO ledger_accounts (` + accountColumns + `)
		VALUES ($1, $2, $3, 0, 0, NULL, $4)
		ON CONFLICT (address) DO NOTHING
	`
	exec := txcontext.Exec(ctx, l.db)
	if _, err := exec.ExecContext(ctx, query, addr.String(), owner.String(), asset.String(), l.now()); err != nil {
		return domain.AccountRef{}, fmt.Errorf("ensure ledger account: %w", err)
	}
	acct, err := l.Account(ctx, addr)
	if err != nil {
		return domain.AccountRef{}, err
	}
	if acct.Owner != owner || acct.Asset != asset {
		return domain.AccountRef{}, dErrors.Wrap(sentinel.ErrAssetMismatch, dErrors.CodeValidation, "account exists with a different binding")
	}
	return addr, nil
}

func (l *PostgresLedger) OpenEscrow(ctx context.Context, owner domain.AccountRef, asset domain.AssetID, digest []byte, payer domain.Authority, deposit uint64) (domain.AccountRef, error) {
	if len(digest) == 0 {
		return domain.AccountRef{}, dErrors.New(dErrors.CodeInvalidInput, "capability digest is required")
	}
	addr, err := models.AddressFor(owner, asset)
	if err != nil {
		return domain.AccountRef{}, err
	}
	err = l.inTx(ctx, func(exec txcontext.Executor) error {
		locked, err := lockAccounts(ctx, exec, addr, payer.Signer)
		if err != nil {
			return err
		}
		existing, exists := locked[addr]
		if exists && !adoptable(existing, owner) {
			return dErrors.Wrap(sentinel.ErrConflict, dErrors.CodeConflict, "escrow account already open")
		}
		src, ok := locked[payer.Signer]
		if !ok {
			return models.NotFound(payer.Signer)
		}
		if !src.IsNative() {
			return dErrors.Wrap(sentinel.ErrAssetMismatch, dErrors.CodeValidation, "deposit payer must be a native account")
		}
		if err := src.Authorize(payer); err != nil {
			return err
		}
		if err := src.CheckDebit(deposit); err != nil {
			return err
		}
		if err := setBalance(ctx, exec, payer.Signer, src.Balance-deposit); err != nil {
			return err
		}
		if exists {
			_, err := exec.ExecContext(ctx,
				`UPDATE ledger_accounts SET deposit = $2, capability_digest = $3 WHERE address = $1`,
				addr.String(), strconv.FormatUint(deposit, 10), digest)
			if err != nil {
				return fmt.Errorf("adopt escrow account: %w", err)
			}
			return nil
		}
		return l.insert(ctx, exec, &models.Account{
			Address:          addr,
			Owner:            owner,
			Asset:            asset,
			Deposit:          deposit,
			CapabilityDigest: digest,
			CreatedAt:        l.now(),
		})
	})
	if err != nil {
		return domain.AccountRef{}, err
	}
	return addr, nil
}

func (l *PostgresLedger) Mint(ctx context.Context, owner domain.AccountRef, asset domain.AssetID, amount uint64) (domain.AccountRef, error) {
	addr, err := l.EnsureAccount(ctx, owner, asset)
	if err != nil {
		return domain.AccountRef{}, err
	}
	err = l.inTx(ctx, func(exec txcontext.Executor) error {
		locked, err := lockAccounts(ctx, exec, addr)
		if err != nil {
			return err
		}
		acct, ok := locked[addr]
		if !ok {
			return models.NotFound(addr)
		}
		if err := acct.CheckCredit(amount); err != nil {
			return err
		}
		return setBalance(ctx, exec, addr, acct.Balance+amount)
	})
	if err != nil {
		return domain.AccountRef{}, err
	}
	return addr, nil
}
