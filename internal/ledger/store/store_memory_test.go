package store

import (
	"context"
	"errors"
	"testing"

	"github.com/gagliardetto/solana-go"
	"github.com/stretchr/testify/suite"

	"airdrop/internal/custody"
	"airdrop/pkg/domain"
	dErrors "airdrop/pkg/domain-errors"
	"airdrop/pkg/platform/sentinel"
	txcontext "airdrop/pkg/platform/tx"
)

type InMemoryLedgerSuite struct {
	suite.Suite
	ctx    context.Context
	ledger *InMemoryLedger
	alice  domain.Principal
	bob    domain.Principal
	token  domain.AssetID
}

func TestInMemoryLedgerSuite(t *testing.T) {
	suite.Run(t, new(InMemoryLedgerSuite))
}

func (s *InMemoryLedgerSuite) SetupTest() {
	s.ctx = context.Background()
	s.ledger = NewInMemoryLedger()
	s.alice = domain.Principal(solana.NewWallet().PublicKey())
	s.bob = domain.Principal(solana.NewWallet().PublicKey())
	s.token = domain.AssetID(solana.NewWallet().PublicKey())
}

func (s *InMemoryLedgerSuite) mint(owner domain.Principal, asset domain.AssetID, amount uint64) domain.AccountRef {
	addr, err := s.ledger.Mint(s.ctx, owner.Account(), asset, amount)
	s.Require().NoError(err)
	return addr
}

func (s *InMemoryLedgerSuite) balance(addr domain.AccountRef) uint64 {
	b, err := s.ledger.Balance(s.ctx, addr)
	s.Require().NoError(err)
	return b
}

// =============================================================================
// Provisioning
// =============================================================================

func (s *InMemoryLedgerSuite) TestEnsureAccount() {
	s.Run("native account lives at the owner's address", func() {
		addr, err := s.ledger.EnsureAccount(s.ctx, s.alice.Account(), domain.NativeCurrency)
		s.Require().NoError(err)
		s.Equal(s.alice.Account(), addr)
	})

	s.Run("token account is the associated address and idempotent", func() {
		first, err := s.ledger.EnsureAccount(s.ctx, s.alice.Account(), s.token)
		s.Require().NoError(err)
		second, err := s.ledger.EnsureAccount(s.ctx, s.alice.Account(), s.token)
		s.Require().NoError(err)
		s.Equal(first, second)

		ata, _, err := solana.FindAssociatedTokenAddress(s.alice.PublicKey(), s.token.PublicKey())
		s.Require().NoError(err)
		s.Equal(domain.AccountRef(ata), first)
	})
}

// =============================================================================
// Transfers
// =============================================================================

func (s *InMemoryLedgerSuite) TestTransfer() {
	s.Run("moves value between same-asset accounts", func() {
		from := s.mint(s.alice, s.token, 100)
		to := s.mint(s.bob, s.token, 0)

		s.Require().NoError(s.ledger.Transfer(s.ctx, from, to, 40, s.alice.Authority()))
		s.Equal(uint64(60), s.balance(from))
		s.Equal(uint64(40), s.balance(to))
	})

	s.Run("creates a missing native destination", func() {
		from := s.mint(s.alice, domain.NativeCurrency, 10)
		carol := domain.Principal(solana.NewWallet().PublicKey())

		s.Require().NoError(s.ledger.Transfer(s.ctx, from, carol.Account(), 3, s.alice.Authority()))
		s.Equal(uint64(3), s.balance(carol.Account()))
	})

	s.Run("rejects a signer that does not own the source", func() {
		from := s.mint(s.alice, s.token, 100)
		to := s.mint(s.bob, s.token, 0)

		err := s.ledger.Transfer(s.ctx, from, to, 1, s.bob.Authority())
		s.True(errors.Is(err, sentinel.ErrUnauthorizedAuthority))
		s.True(dErrors.HasCode(err, dErrors.CodeForbidden))
	})

	s.Run("rejects an overdraft without mutating", func() {
		from := s.mint(s.alice, s.token, 0)
		before := s.balance(from)
		to := s.mint(s.bob, s.token, 0)

		err := s.ledger.Transfer(s.ctx, from, to, before+1, s.alice.Authority())
		s.True(dErrors.HasCode(err, dErrors.CodeInsufficientFunds))
		s.Equal(before, s.balance(from))
	})

	s.Run("rejects mixed assets", func() {
		from := s.mint(s.alice, s.token, 5)
		other := domain.AssetID(solana.NewWallet().PublicKey())
		to := s.mint(s.bob, other, 0)

		err := s.ledger.Transfer(s.ctx, from, to, 1, s.alice.Authority())
		s.True(errors.Is(err, sentinel.ErrAssetMismatch))
	})
}

// =============================================================================
// Escrow accounts
// =============================================================================

func (s *InMemoryLedgerSuite) TestEscrow() {
	authority := domain.AccountRef(solana.NewWallet().PublicKey())
	capability := "capability-token"
	digest := custody.Digest(capability)
	s.mint(s.alice, domain.NativeCurrency, 1_000)
	source := s.mint(s.alice, s.token, 50)

	escrow, err := s.ledger.OpenEscrow(s.ctx, authority, s.token, digest, s.alice.Authority(), 200)
	s.Require().NoError(err)
	s.Equal(uint64(800), s.balance(s.alice.Account()))
	s.Require().NoError(s.ledger.Transfer(s.ctx, source, escrow, 50, s.alice.Authority()))

	s.Run("opening twice conflicts", func() {
		_, err := s.ledger.OpenEscrow(s.ctx, authority, s.token, digest, s.alice.Authority(), 200)
		s.True(dErrors.HasCode(err, dErrors.CodeConflict))
	})

	s.Run("debits require the capability", func() {
		err := s.ledger.Transfer(s.ctx, escrow, source, 1, domain.Authority{Signer: authority})
		s.True(errors.Is(err, sentinel.ErrUnauthorizedAuthority))

		err = s.ledger.Transfer(s.ctx, escrow, source, 1, domain.Authority{Signer: authority, Proof: "forged"})
		s.True(errors.Is(err, sentinel.ErrUnauthorizedAuthority))

		err = s.ledger.Transfer(s.ctx, escrow, source, 1, s.alice.Authority())
		s.True(errors.Is(err, sentinel.ErrUnauthorizedAuthority))
	})

	s.Run("a non-empty token account cannot close", func() {
		err := s.ledger.CloseAccount(s.ctx, escrow, s.alice.Account(), domain.Authority{Signer: authority, Proof: capability})
		s.True(errors.Is(err, sentinel.ErrAccountNotEmpty))
	})

	s.Run("drain then close returns the deposit", func() {
		auth := domain.Authority{Signer: authority, Proof: capability}
		s.Require().NoError(s.ledger.Transfer(s.ctx, escrow, source, 50, auth))
		s.Require().NoError(s.ledger.CloseAccount(s.ctx, escrow, s.alice.Account(), auth))

		s.Equal(uint64(1_000), s.balance(s.alice.Account()))
		_, err := s.ledger.Account(s.ctx, escrow)
		s.True(dErrors.HasCode(err, dErrors.CodeNotFound))
	})
}

func (s *InMemoryLedgerSuite) TestOpenEscrow_AdoptsPrefundedNativeAccount() {
	authority := domain.AccountRef(solana.NewWallet().PublicKey())
	s.mint(s.alice, domain.NativeCurrency, 100)
	s.Require().NoError(s.ledger.Transfer(s.ctx, s.alice.Account(), authority, 5, s.alice.Authority()))

	addr, err := s.ledger.OpenEscrow(s.ctx, authority, domain.NativeCurrency, custody.Digest("cap"), s.alice.Authority(), 10)
	s.Require().NoError(err)
	s.Equal(authority, addr)

	acct, err := s.ledger.Account(s.ctx, authority)
	s.Require().NoError(err)
	s.Equal(uint64(5), acct.Balance)
	s.Equal(uint64(10), acct.Deposit)

	// Closing a native account sweeps balance and deposit.
	s.Require().NoError(s.ledger.CloseAccount(s.ctx, authority, s.alice.Account(), domain.Authority{Signer: authority, Proof: "cap"}))
	s.Equal(uint64(100), s.balance(s.alice.Account()))
}

// =============================================================================
// Journaled transactions
// =============================================================================

func (s *InMemoryLedgerSuite) TestJournalRollback() {
	from := s.mint(s.alice, s.token, 100)
	to := s.mint(s.bob, s.token, 0)
	carol := domain.Principal(solana.NewWallet().PublicKey())
	s.mint(s.alice, domain.NativeCurrency, 10)

	j := txcontext.NewJournal()
	view := s.ledger.InTx(j)
	s.Require().NoError(view.Transfer(s.ctx, from, to, 30, s.alice.Authority()))
	s.Require().NoError(view.Transfer(s.ctx, s.alice.Account(), carol.Account(), 4, s.alice.Authority()))
	_, err := view.EnsureAccount(s.ctx, carol.Account(), s.token)
	s.Require().NoError(err)

	// A mint outside the transaction survives the rollback.
	s.mint(s.bob, s.token, 7)

	j.Rollback()

	s.Equal(uint64(100), s.balance(from))
	s.Equal(uint64(7), s.balance(to))
	s.Equal(uint64(10), s.balance(s.alice.Account()))
	_, err = s.ledger.Account(s.ctx, carol.Account())
	s.True(dErrors.HasCode(err, dErrors.CodeNotFound))
}
