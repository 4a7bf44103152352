package store

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/gagliardetto/solana-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"airdrop/internal/agreement/ports"
	ledgerstore "airdrop/internal/ledger/store"
	"airdrop/pkg/domain"
	dErrors "airdrop/pkg/domain-errors"
	"airdrop/pkg/platform/audit"
	auditmemory "airdrop/pkg/platform/audit/store/memory"
)

func newTestTx(t *testing.T) (*InMemoryTx, *InMemoryRegistry, *ledgerstore.InMemoryLedger) {
	t.Helper()
	registry := NewInMemoryRegistry()
	ledger := ledgerstore.NewInMemoryLedger()
	return NewInMemoryTx(registry, ledger), registry, ledger
}

func TestInMemoryTx_CommitKeepsWrites(t *testing.T) {
	tx, registry, _ := newTestTx(t)
	a := newTestAgreement()

	err := tx.RunInTx(context.Background(), func(ctx context.Context, stores ports.Stores) error {
		return stores.Registry.Create(ctx, a)
	})
	require.NoError(t, err)
	assert.Equal(t, 1, registry.Count())
}

func TestInMemoryTx_ErrorRollsBackRegistryAndLedger(t *testing.T) {
	tx, registry, ledger := newTestTx(t)
	ctx := context.Background()
	alice := domain.Principal(solana.NewWallet().PublicKey())
	bob := domain.Principal(solana.NewWallet().PublicKey())
	_, err := ledger.Mint(ctx, alice.Account(), domain.NativeCurrency, 100)
	require.NoError(t, err)

	boom := errors.New("boom")
	err = tx.RunInTx(ctx, func(ctx context.Context, stores ports.Stores) error {
		if err := stores.Registry.Create(ctx, newTestAgreement()); err != nil {
			return err
		}
		if err := stores.Ledger.Transfer(ctx, alice.Account(), bob.Account(), 40, alice.Authority()); err != nil {
			return err
		}
		return boom
	})
	require.ErrorIs(t, err, boom)

	assert.Equal(t, 0, registry.Count())
	balance, err := ledger.Balance(ctx, alice.Account())
	require.NoError(t, err)
	assert.Equal(t, uint64(100), balance)
	_, err = ledger.Account(ctx, bob.Account())
	assert.True(t, dErrors.HasCode(err, dErrors.CodeNotFound), "auto-created destination must be removed")
}

func TestInMemoryTx_PanicRollsBack(t *testing.T) {
	tx, registry, _ := newTestTx(t)

	assert.Panics(t, func() {
		_ = tx.RunInTx(context.Background(), func(ctx context.Context, stores ports.Stores) error {
			if err := stores.Registry.Create(ctx, newTestAgreement()); err != nil {
				return err
			}
			panic("unexpected")
		})
	})
	assert.Equal(t, 0, registry.Count())

	// The lock was released.
	err := tx.RunInTx(context.Background(), func(context.Context, ports.Stores) error { return nil })
	assert.NoError(t, err)
}

func TestInMemoryTx_CancelledContext(t *testing.T) {
	tx, registry, _ := newTestTx(t)

	t.Run("before start", func(t *testing.T) {
		ctx, cancel := context.WithCancel(context.Background())
		cancel()
		called := false
		err := tx.RunInTx(ctx, func(context.Context, ports.Stores) error {
			called = true
			return nil
		})
		assert.False(t, called)
		assert.True(t, dErrors.HasCode(err, dErrors.CodeTimeout))
	})

	t.Run("deadline passes during the call", func(t *testing.T) {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
		defer cancel()
		err := tx.RunInTx(ctx, func(ctx context.Context, stores ports.Stores) error {
			if err := stores.Registry.Create(ctx, newTestAgreement()); err != nil {
				return err
			}
			<-ctx.Done()
			return nil
		})
		assert.True(t, dErrors.HasCode(err, dErrors.CodeTimeout))
		assert.Equal(t, 0, registry.Count())
	})
}

func TestInMemoryTx_RollbackDiscardsAuditEvents(t *testing.T) {
	tx, registry, _ := newTestTx(t)
	events := auditmemory.NewInMemoryStore()
	a := newTestAgreement()

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()
	err := tx.RunInTx(ctx, func(ctx context.Context, stores ports.Stores) error {
		if err := stores.Registry.Create(ctx, a); err != nil {
			return err
		}
		if err := events.Append(ctx, audit.Event{Agreement: a.Authority.String(), Action: string(audit.EventAgreementInitialized)}); err != nil {
			return err
		}
		<-ctx.Done()
		return nil
	})
	assert.True(t, dErrors.HasCode(err, dErrors.CodeTimeout))
	assert.Equal(t, 0, registry.Count())

	listed, err := events.ListByAgreement(context.Background(), a.Authority.String())
	require.NoError(t, err)
	assert.Empty(t, listed)
}
