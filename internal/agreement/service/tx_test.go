package service

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"

	"github.com/gagliardetto/solana-go"
	"go.uber.org/mock/gomock"
	"golang.org/x/sync/errgroup"

	"airdrop/internal/agreement/models"
	"airdrop/internal/agreement/ports"
	"airdrop/internal/agreement/ports/mocks"
	ledgermodels "airdrop/internal/ledger/models"
	"airdrop/pkg/domain"
	dErrors "airdrop/pkg/domain-errors"
)

// ledgerSwapTx runs transactions on an inner runner but hands fn a different
// ledger, built from the transaction's own.
type ledgerSwapTx struct {
	inner ports.TxRunner
	wrap  func(ports.Ledger) ports.Ledger
}

func (t ledgerSwapTx) RunInTx(ctx context.Context, fn func(ctx context.Context, stores ports.Stores) error) error {
	return t.inner.RunInTx(ctx, func(ctx context.Context, stores ports.Stores) error {
		stores.Ledger = t.wrap(stores.Ledger)
		return fn(ctx, stores)
	})
}

// =============================================================================
// Atomicity
// =============================================================================

func (s *ServiceSuite) TestClaim_FailedTokenTransferRollsBackFee() {
	const fee = 5_000
	handle := s.initialize(domain.NativeCurrency, 100, fee, models.FeeModeFlatPerClaim)
	distributorBefore := s.balance(s.distributor.Account())

	ctrl := gomock.NewController(s.T())
	ledger := mocks.NewMockLedger(ctrl)
	var inner ports.Ledger
	svc, err := New(ledgerSwapTx{inner: s.tx, wrap: func(l ports.Ledger) ports.Ledger {
		inner = l
		return ledger
	}}, s.deriver, WithClock(s.clock), WithDeposits(testDeposits))
	s.Require().NoError(err)

	ledger.EXPECT().Balance(gomock.Any(), gomock.Any()).DoAndReturn(
		func(ctx context.Context, addr domain.AccountRef) (uint64, error) {
			return inner.Balance(ctx, addr)
		}).AnyTimes()
	ledger.EXPECT().Account(gomock.Any(), gomock.Any()).DoAndReturn(
		func(ctx context.Context, addr domain.AccountRef) (*ledgermodels.Account, error) {
			return inner.Account(ctx, addr)
		}).AnyTimes()

	ledgerErr := errors.New("ledger unavailable")
	gomock.InOrder(
		ledger.EXPECT().
			Transfer(gomock.Any(), s.claimant.Account(), s.distributor.Account(), uint64(fee), s.claimant.Authority()).
			DoAndReturn(func(ctx context.Context, from, to domain.AccountRef, amount uint64, auth domain.Authority) error {
				return inner.Transfer(ctx, from, to, amount, auth)
			}),
		ledger.EXPECT().
			Transfer(gomock.Any(), handle.EscrowTokenAccount, s.account(s.claimant, s.token), uint64(2*testUnit), gomock.Any()).
			Return(ledgerErr),
	)

	_, err = svc.ClaimNative(s.ctx, handle.Authority, s.claimant, 2)
	s.Require().Error(err)
	s.Equal(ledgerErr, err, "ledger failures propagate unmodified")

	s.Equal(uint64(claimantNative), s.balance(s.claimant.Account()))
	s.Equal(distributorBefore, s.balance(s.distributor.Account()))
	s.Equal(uint64(100*testUnit), s.balance(handle.EscrowTokenAccount))
	_, err = s.ledger.Account(s.ctx, s.account(s.claimant, s.token))
	s.True(dErrors.HasCode(err, dErrors.CodeNotFound), "provisioned claimant account is rolled back")
}

func (s *ServiceSuite) TestClose_FailedDrainStopsTeardown() {
	handle := s.initialize(domain.NativeCurrency, 100, 1, models.FeeModeFlatPerClaim)

	ctrl := gomock.NewController(s.T())
	ledger := mocks.NewMockLedger(ctrl)
	var inner ports.Ledger
	svc, err := New(ledgerSwapTx{inner: s.tx, wrap: func(l ports.Ledger) ports.Ledger {
		inner = l
		return ledger
	}}, s.deriver)
	s.Require().NoError(err)

	ledger.EXPECT().Balance(gomock.Any(), gomock.Any()).DoAndReturn(
		func(ctx context.Context, addr domain.AccountRef) (uint64, error) {
			return inner.Balance(ctx, addr)
		}).AnyTimes()
	ledger.EXPECT().Transfer(gomock.Any(), handle.EscrowTokenAccount, handle.DistributorTokenAccount, uint64(100*testUnit), gomock.Any()).
		Return(errors.New("drain failed"))
	// CloseAccount must never be reached.
	ledger.EXPECT().CloseAccount(gomock.Any(), gomock.Any(), gomock.Any(), gomock.Any()).Times(0)

	err = svc.Close(s.ctx, handle.Authority, s.distributor)
	s.Require().EqualError(err, "drain failed")
	s.Equal(1, s.registry.Count())
	s.Equal(uint64(100*testUnit), s.balance(handle.EscrowTokenAccount))
}

// =============================================================================
// Concurrency
// =============================================================================

func (s *ServiceSuite) TestConcurrentClaimsNeverOverdrawEscrow() {
	const (
		escrowUnits = 10
		claimants   = 25
	)
	handle := s.initialize(domain.NativeCurrency, escrowUnits, 1, models.FeeModeFlatPerClaim)

	principals := make([]domain.Principal, claimants)
	for i := range principals {
		principals[i] = domain.Principal(solana.NewWallet().PublicKey())
		s.mint(principals[i], domain.NativeCurrency, 10)
	}

	var succeeded, starved atomic.Int64
	g, ctx := errgroup.WithContext(s.ctx)
	for _, p := range principals {
		p := p
		g.Go(func() error {
			_, err := s.service.ClaimNative(ctx, handle.Authority, p, 1)
			switch {
			case err == nil:
				succeeded.Add(1)
			case errors.Is(err, models.ErrTokenAmountNotEnough):
				starved.Add(1)
			default:
				return fmt.Errorf("claim by %s: %w", p, err)
			}
			return nil
		})
	}
	s.Require().NoError(g.Wait())

	s.Equal(int64(escrowUnits), succeeded.Load())
	s.Equal(int64(claimants-escrowUnits), starved.Load())
	s.Equal(uint64(0), s.balance(handle.EscrowTokenAccount))
}
