// Package store provides ledger backends: an in-memory ledger for tests and
// single-process deployments, and a PostgreSQL ledger.
package store

import (
	"context"
	"sync"
	"time"

	"airdrop/internal/ledger/models"
	"airdrop/pkg/domain"
	dErrors "airdrop/pkg/domain-errors"
	"airdrop/pkg/platform/sentinel"
	txcontext "airdrop/pkg/platform/tx"
)

type memoryState struct {
	mu       sync.RWMutex
	accounts map[domain.AccountRef]*models.Account
}

// InMemoryLedger keeps accounts in a map. Each call is atomic on its own. A
// view bound to a journal through InTx records a compensating step for every
// mutation, so a failed transaction can be undone in reverse order.
//
// Compensations apply deltas rather than snapshots, so writes made outside the
// transaction (faucet mints) survive a rollback.
type InMemoryLedger struct {
	state   *memoryState
	journal *txcontext.Journal
	now     func() time.Time
}

func NewInMemoryLedger() *InMemoryLedger {
	return &InMemoryLedger{
		state: &memoryState{accounts: make(map[domain.AccountRef]*models.Account)},
		now:   time.Now,
	}
}

// InTx returns a view of the ledger whose mutations are recorded in j.
func (l *InMemoryLedger) InTx(j *txcontext.Journal) *InMemoryLedger {
	return &InMemoryLedger{state: l.state, journal: j, now: l.now}
}

func (l *InMemoryLedger) Account(_ context.Context, addr domain.AccountRef) (*models.Account, error) {
	l.state.mu.RLock()
	defer l.state.mu.RUnlock()
	acct, ok := l.state.accounts[addr]
	if !ok {
		return nil, models.NotFound(addr)
	}
	return acct.Clone(), nil
}

func (l *InMemoryLedger) Balance(ctx context.Context, addr domain.AccountRef) (uint64, error) {
	acct, err := l.Account(ctx, addr)
	if err != nil {
		return 0, err
	}
	return acct.Balance, nil
}

// Transfer moves amount from one account to another of the same asset. A
// missing native destination is created on first credit.
func (l *InMemoryLedger) Transfer(_ context.Context, from, to domain.AccountRef, amount uint64, auth domain.Authority) error {
	l.state.mu.Lock()
	defer l.state.mu.Unlock()

	src, ok := l.state.accounts[from]
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

	dst, ok := l.state.accounts[to]
	if !ok {
		if !src.IsNative() {
			return models.NotFound(to)
		}
		dst = l.createLocked(&models.Account{Address: to, Owner: to, Asset: src.Asset})
	}
	if err := src.CheckSameAsset(dst); err != nil {
		return err
	}
	if err := dst.CheckCredit(amount); err != nil {
		return err
	}

	src.Balance -= amount
	dst.Balance += amount
	l.record(func() {
		l.state.mu.Lock()
		defer l.state.mu.Unlock()
		if a, ok := l.state.accounts[to]; ok {
			a.Balance -= amount
		}
		if a, ok := l.state.accounts[from]; ok {
			a.Balance += amount
		}
	})
	return nil
}

// CloseAccount deletes account and credits the released native value to
// destination.
func (l *InMemoryLedger) CloseAccount(_ context.Context, addr, destination domain.AccountRef, auth domain.Authority) error {
	l.state.mu.Lock()
	defer l.state.mu.Unlock()

	acct, ok := l.state.accounts[addr]
	if !ok {
		return models.NotFound(addr)
	}
	if err := acct.Authorize(auth); err != nil {
		return err
	}
	if addr == destination {
		return dErrors.New(dErrors.CodeValidation, "cannot close an account into itself")
	}
	released, err := acct.Closable()
	if err != nil {
		return err
	}

	dst, ok := l.state.accounts[destination]
	if !ok {
		dst = l.createLocked(&models.Account{Address: destination, Owner: destination, Asset: domain.NativeCurrency})
	}
	if !dst.IsNative() {
		return dErrors.Wrap(sentinel.ErrAssetMismatch, dErrors.CodeValidation, "close destination must be a native account")
	}
	if err := dst.CheckCredit(released); err != nil {
		return err
	}

	delete(l.state.accounts, addr)
	dst.Balance += released
	l.record(func() {
		l.state.mu.Lock()
		defer l.state.mu.Unlock()
		if d, ok := l.state.accounts[destination]; ok {
			d.Balance -= released
		}
		l.state.accounts[addr] = acct
	})
	return nil
}

// EnsureAccount returns the (owner, asset) account, creating an empty one if
// needed. Provisioning is free.
func (l *InMemoryLedger) EnsureAccount(_ context.Context, owner domain.AccountRef, asset domain.AssetID) (domain.AccountRef, error) {
	addr, err := models.AddressFor(owner, asset)
	if err != nil {
		return domain.AccountRef{}, err
	}

	l.state.mu.Lock()
	defer l.state.mu.Unlock()
	if existing, ok := l.state.accounts[addr]; ok {
		if existing.Asset != asset || existing.Owner != owner {
			return domain.AccountRef{}, dErrors.Wrap(sentinel.ErrAssetMismatch, dErrors.CodeValidation, "account exists with a different binding")
		}
		return addr, nil
	}
	l.createLocked(&models.Account{Address: addr, Owner: owner, Asset: asset})
	return addr, nil
}

// OpenEscrow opens the (owner, asset) account under a capability digest. The
// payer funds its deposit. A native account that was credited before it was
// opened is adopted in place.
func (l *InMemoryLedger) OpenEscrow(_ context.Context, owner domain.AccountRef, asset domain.AssetID, digest []byte, payer domain.Authority, deposit uint64) (domain.AccountRef, error) {
	if len(digest) == 0 {
		return domain.AccountRef{}, dErrors.New(dErrors.CodeInvalidInput, "capability digest is required")
	}
	addr, err := models.AddressFor(owner, asset)
	if err != nil {
		return domain.AccountRef{}, err
	}

	l.state.mu.Lock()
	defer l.state.mu.Unlock()

	existing, exists := l.state.accounts[addr]
	if exists && !adoptable(existing, owner) {
		return domain.AccountRef{}, dErrors.Wrap(sentinel.ErrConflict, dErrors.CodeConflict, "escrow account already open")
	}
	src, ok := l.state.accounts[payer.Signer]
	if !ok {
		return domain.AccountRef{}, models.NotFound(payer.Signer)
	}
	if !src.IsNative() {
		return domain.AccountRef{}, dErrors.Wrap(sentinel.ErrAssetMismatch, dErrors.CodeValidation, "deposit payer must be a native account")
	}
	if err := src.Authorize(payer); err != nil {
		return domain.AccountRef{}, err
	}
	if err := src.CheckDebit(deposit); err != nil {
		return domain.AccountRef{}, err
	}

	src.Balance -= deposit
	if exists {
		existing.Deposit = deposit
		existing.CapabilityDigest = append([]byte(nil), digest...)
		l.record(func() {
			l.state.mu.Lock()
			defer l.state.mu.Unlock()
			if a, ok := l.state.accounts[addr]; ok {
				a.Deposit = 0
				a.CapabilityDigest = nil
			}
			if a, ok := l.state.accounts[payer.Signer]; ok {
				a.Balance += deposit
			}
		})
		return addr, nil
	}

	l.createLocked(&models.Account{
		Address:          addr,
		Owner:            owner,
		Asset:            asset,
		Deposit:          deposit,
		CapabilityDigest: append([]byte(nil), digest...),
	})
	l.record(func() {
		l.state.mu.Lock()
		defer l.state.mu.Unlock()
		if a, ok := l.state.accounts[payer.Signer]; ok {
			a.Balance += deposit
		}
	})
	return addr, nil
}

// Mint credits amount to the (owner, asset) account, creating it if needed.
// It is a privileged operation for faucets and tests.
func (l *InMemoryLedger) Mint(ctx context.Context, owner domain.AccountRef, asset domain.AssetID, amount uint64) (domain.AccountRef, error) {
	addr, err := l.EnsureAccount(ctx, owner, asset)
	if err != nil {
		return domain.AccountRef{}, err
	}
	l.state.mu.Lock()
	defer l.state.mu.Unlock()
	acct, ok := l.state.accounts[addr]
	if !ok {
		return domain.AccountRef{}, models.NotFound(addr)
	}
	if err := acct.CheckCredit(amount); err != nil {
		return domain.AccountRef{}, err
	}
	acct.Balance += amount
	l.record(func() {
		l.state.mu.Lock()
		defer l.state.mu.Unlock()
		if a, ok := l.state.accounts[addr]; ok {
			a.Balance -= amount
		}
	})
	return addr, nil
}

// createLocked inserts acct and records its removal. Caller holds the lock.
func (l *InMemoryLedger) createLocked(acct *models.Account) *models.Account {
	acct.CreatedAt = l.now()
	l.state.accounts[acct.Address] = acct
	addr := acct.Address
	l.record(func() {
		l.state.mu.Lock()
		defer l.state.mu.Unlock()
		delete(l.state.accounts, addr)
	})
	return acct
}

func (l *InMemoryLedger) record(undo func()) {
	l.journal.Record(undo)
}

func adoptable(acct *models.Account, owner domain.AccountRef) bool {
	return acct.IsNative() && acct.Owner == owner && acct.Deposit == 0 && len(acct.CapabilityDigest) == 0
}
