package custody

import (
	"errors"
	"testing"

	"github.com/gagliardetto/solana-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/stretchr/testify/suite"

	"airdrop/pkg/domain"
	dErrors "airdrop/pkg/domain-errors"
)

type CustodySuite struct {
	suite.Suite
	deriver *Deriver
	seeds   Seeds
}

func TestCustodySuite(t *testing.T) {
	suite.Run(t, new(CustodySuite))
}

func (s *CustodySuite) SetupTest() {
	var err error
	s.deriver, err = NewDeriver(solana.NewWallet().PublicKey())
	s.Require().NoError(err)
	s.seeds = Seeds{
		Distributor: domain.Principal(solana.NewWallet().PublicKey()),
		FeeAsset:    domain.NativeCurrency,
		TokenAsset:  domain.AssetID(solana.NewWallet().PublicKey()),
	}
}

// =============================================================================
// Derivation
// =============================================================================

func (s *CustodySuite) TestDerive() {
	s.Run("is deterministic", func() {
		first, err := s.deriver.Derive(s.seeds)
		s.Require().NoError(err)
		second, err := s.deriver.Derive(s.seeds)
		s.Require().NoError(err)
		s.Equal(first, second)
	})

	s.Run("matches the canonical program address search", func() {
		c, err := s.deriver.Derive(s.seeds)
		s.Require().NoError(err)

		addr, bump, err := solana.FindProgramAddress(s.seeds.raw(), s.deriver.ProgramID())
		s.Require().NoError(err)
		s.Equal(domain.AccountRef(addr), c.Authority)
		s.Equal(bump, c.Bump)

		escrow, _, err := solana.FindAssociatedTokenAddress(addr, s.seeds.TokenAsset.PublicKey())
		s.Require().NoError(err)
		s.Equal(domain.AccountRef(escrow), c.Escrow)
	})

	s.Run("distinct seed tuples yield distinct authorities", func() {
		c1, err := s.deriver.Derive(s.seeds)
		s.Require().NoError(err)

		other := s.seeds
		other.FeeAsset = domain.AssetID(solana.NewWallet().PublicKey())
		c2, err := s.deriver.Derive(other)
		s.Require().NoError(err)

		s.NotEqual(c1.Authority, c2.Authority)
		s.NotEqual(c1.Escrow, c2.Escrow)
	})

	s.Run("authority differs per program", func() {
		otherDeriver, err := NewDeriver(solana.NewWallet().PublicKey())
		s.Require().NoError(err)

		c1, err := s.deriver.Derive(s.seeds)
		s.Require().NoError(err)
		c2, err := otherDeriver.Derive(s.seeds)
		s.Require().NoError(err)
		s.NotEqual(c1.Authority, c2.Authority)
	})

	s.Run("missing seed is invalid input", func() {
		_, err := s.deriver.Derive(Seeds{Distributor: s.seeds.Distributor})
		s.Require().Error(err)
		s.True(dErrors.HasCode(err, dErrors.CodeInvalidInput))
	})
}

// =============================================================================
// Verification
// =============================================================================

func (s *CustodySuite) TestVerify() {
	stored, err := s.deriver.Derive(s.seeds)
	s.Require().NoError(err)

	s.Run("accepts the stored derivation", func() {
		s.NoError(s.deriver.Verify(s.seeds, stored))
	})

	s.Run("rejects a tampered bump", func() {
		tampered := stored
		tampered.Bump--
		err := s.deriver.Verify(s.seeds, tampered)
		s.Require().Error(err)
		s.True(errors.Is(err, ErrAccountNotCorrect))
		s.True(dErrors.HasCode(err, dErrors.CodeValidation))
	})

	s.Run("rejects a substituted escrow", func() {
		tampered := stored
		tampered.Escrow = domain.AccountRef(solana.NewWallet().PublicKey())
		err := s.deriver.Verify(s.seeds, tampered)
		s.True(errors.Is(err, ErrAccountNotCorrect))
	})

	s.Run("rejects seeds of another agreement", func() {
		other := s.seeds
		other.Distributor = domain.Principal(solana.NewWallet().PublicKey())
		err := s.deriver.Verify(other, stored)
		s.True(errors.Is(err, ErrAccountNotCorrect))
	})
}

// =============================================================================
// Capability
// =============================================================================

func (s *CustodySuite) TestCapability() {
	stored, err := s.deriver.Derive(s.seeds)
	s.Require().NoError(err)

	s.Run("minted capability signs for the authority", func() {
		capability, err := Mint(stored)
		s.Require().NoError(err)

		auth := capability.Authority()
		s.Equal(stored.Authority, auth.Signer)
		s.True(auth.IsDerived())
		s.True(Matches(capability.Digest(), auth.Proof))
	})

	s.Run("two mints never share a token", func() {
		c1, err := Mint(stored)
		s.Require().NoError(err)
		c2, err := Mint(stored)
		s.Require().NoError(err)
		s.NotEqual(c1.Token(), c2.Token())
		s.False(Matches(c1.Digest(), c2.Token()))
	})

	s.Run("restore requires verifiable custody", func() {
		capability, err := Mint(stored)
		s.Require().NoError(err)

		restored, err := s.deriver.Restore(s.seeds, stored, capability.Token())
		s.Require().NoError(err)
		s.Equal(capability.Authority(), restored.Authority())

		tampered := stored
		tampered.Bump--
		_, err = s.deriver.Restore(s.seeds, tampered, capability.Token())
		s.True(errors.Is(err, ErrAccountNotCorrect))
	})

	s.Run("restore rejects malformed tokens", func() {
		_, err := s.deriver.Restore(s.seeds, stored, "not-base58-0OIl")
		s.True(errors.Is(err, ErrAccountNotCorrect))

		_, err = s.deriver.Restore(s.seeds, stored, "")
		s.True(errors.Is(err, ErrAccountNotCorrect))
	})
}

func TestMatches_RejectsEmpty(t *testing.T) {
	assert.False(t, Matches(nil, "proof"))
	assert.False(t, Matches(Digest("proof"), ""))
	assert.True(t, Matches(Digest("proof"), "proof"))
}

func TestNewDeriver_RequiresProgramID(t *testing.T) {
	_, err := NewDeriver(solana.PublicKey{})
	require.Error(t, err)
}
