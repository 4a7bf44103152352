package models

import (
	"fmt"
	"time"

	"airdrop/internal/custody"
	"airdrop/pkg/domain"
	dErrors "airdrop/pkg/domain-errors"
)

// FeeMode selects how the claim fee is computed.
type FeeMode uint8

const (
	// FeeModeFlatPerClaim charges FeeAmount once per claim.
	FeeModeFlatPerClaim FeeMode = 1
	// FeeModePerUnit charges FeeAmount for every display unit claimed.
	FeeModePerUnit FeeMode = 2
)

// IsValid checks if the fee mode is one of the supported values.
func (m FeeMode) IsValid() bool {
	return m == FeeModeFlatPerClaim || m == FeeModePerUnit
}

func (m FeeMode) String() string {
	switch m {
	case FeeModeFlatPerClaim:
		return "flat_per_claim"
	case FeeModePerUnit:
		return "per_unit"
	}
	return fmt.Sprintf("fee_mode(%d)", uint8(m))
}

// ParseFeeMode creates a FeeMode from its name, validating it.
func ParseFeeMode(s string) (FeeMode, error) {
	switch s {
	case "flat_per_claim":
		return FeeModeFlatPerClaim, nil
	case "per_unit":
		return FeeModePerUnit, nil
	}
	return 0, dErrors.Wrap(ErrInvalidFeeMode, dErrors.CodeValidation, "fee mode must be 'flat_per_claim' or 'per_unit'")
}

func (m FeeMode) MarshalText() ([]byte, error) {
	if !m.IsValid() {
		return nil, ErrInvalidFeeMode
	}
	return []byte(m.String()), nil
}

func (m *FeeMode) UnmarshalText(text []byte) error {
	v, err := ParseFeeMode(string(text))
	if err != nil {
		return err
	}
	*m = v
	return nil
}

// FeePolicy is the fee configuration of an agreement.
type FeePolicy struct {
	Amount uint64
	Mode   FeeMode
}

// Fee computes the fee for claiming amount display units. Integer arithmetic
// only; per-unit fees fail on overflow.
func (p FeePolicy) Fee(amount uint64) (uint64, error) {
	switch p.Mode {
	case FeeModeFlatPerClaim:
		return p.Amount, nil
	case FeeModePerUnit:
		return CheckedMul(amount, p.Amount)
	}
	return 0, dErrors.Wrap(ErrInvalidFeeMode, dErrors.CodeValidation, "agreement has an invalid fee mode")
}

// Agreement is the durable record of one distribution agreement, keyed by its
// derived authority address.
type Agreement struct {
	Initialized bool

	Distributor domain.Principal
	TokenAsset  domain.AssetID
	FeeAsset    domain.AssetID

	DistributorTokenAccount domain.AccountRef
	DistributorFeeAccount   domain.AccountRef
	EscrowTokenAccount      domain.AccountRef

	FeeAmount     uint64
	FeeMode       FeeMode
	TokenDecimals uint8

	Authority domain.AccountRef
	Bump      uint8
	// Capability is the server-side capability token. It never leaves the
	// service boundary.
	Capability string
	// Deposit is the native amount backing the record, returned on close.
	Deposit uint64

	CreatedAt time.Time
	UpdatedAt time.Time
}

// Seeds returns the derivation seeds of the agreement.
func (a *Agreement) Seeds() custody.Seeds {
	return custody.Seeds{
		Distributor: a.Distributor,
		FeeAsset:    a.FeeAsset,
		TokenAsset:  a.TokenAsset,
	}
}

// Custody returns the stored derivation results.
func (a *Agreement) Custody() custody.Custody {
	return custody.Custody{
		Authority: a.Authority,
		Bump:      a.Bump,
		Escrow:    a.EscrowTokenAccount,
	}
}

// Policy returns the current fee policy.
func (a *Agreement) Policy() FeePolicy {
	return FeePolicy{Amount: a.FeeAmount, Mode: a.FeeMode}
}

// NativeFee reports whether claims pay their fee in the native currency. It is
// derived from FeeAsset on every call and never stored.
func (a *Agreement) NativeFee() bool {
	return a.FeeAsset.IsNative()
}

// NewAgreement creates an initialized Agreement with domain invariant validation.
func NewAgreement(seeds custody.Seeds, c custody.Custody, capability string, policy FeePolicy, decimals uint8, now time.Time) (*Agreement, error) {
	if seeds.Distributor.IsNil() || seeds.FeeAsset.IsNil() || seeds.TokenAsset.IsNil() {
		return nil, dErrors.New(dErrors.CodeInvariantViolation, "seed tuple is incomplete")
	}
	if c.Authority.IsNil() || c.Escrow.IsNil() {
		return nil, dErrors.New(dErrors.CodeInvariantViolation, "custody is not derived")
	}
	if capability == "" {
		return nil, dErrors.New(dErrors.CodeInvariantViolation, "capability is required")
	}
	if !policy.Mode.IsValid() {
		return nil, dErrors.Wrap(ErrInvalidFeeMode, dErrors.CodeInvariantViolation, "invalid fee mode")
	}
	if decimals > MaxDecimals {
		return nil, overflow("token decimals exceed 64-bit scaling")
	}
	return &Agreement{
		Initialized:        true,
		Distributor:        seeds.Distributor,
		TokenAsset:         seeds.TokenAsset,
		FeeAsset:           seeds.FeeAsset,
		EscrowTokenAccount: c.Escrow,
		FeeAmount:          policy.Amount,
		FeeMode:            policy.Mode,
		TokenDecimals:      decimals,
		Authority:          c.Authority,
		Bump:               c.Bump,
		Capability:         capability,
		CreatedAt:          now,
		UpdatedAt:          now,
	}, nil
}

// View is the caller-facing projection of an agreement.
type View struct {
	Authority               domain.AccountRef `json:"authority"`
	Distributor             domain.Principal  `json:"distributor"`
	TokenAsset              domain.AssetID    `json:"token_asset"`
	FeeAsset                domain.AssetID    `json:"fee_asset"`
	DistributorTokenAccount domain.AccountRef `json:"distributor_token_account"`
	DistributorFeeAccount   domain.AccountRef `json:"distributor_fee_account"`
	EscrowTokenAccount      domain.AccountRef `json:"escrow_token_account"`
	FeeAmount               uint64            `json:"fee_amount"`
	FeeMode                 FeeMode           `json:"fee_mode"`
	TokenDecimals           uint8             `json:"token_decimals"`
	Bump                    uint8             `json:"bump"`
	EscrowBalance           uint64            `json:"escrow_balance"`
	CreatedAt               time.Time         `json:"created_at"`
	UpdatedAt               time.Time         `json:"updated_at"`
}

// ToView projects a into a View with the given escrow balance.
func (a *Agreement) ToView(escrowBalance uint64) *View {
	return &View{
		Authority:               a.Authority,
		Distributor:             a.Distributor,
		TokenAsset:              a.TokenAsset,
		FeeAsset:                a.FeeAsset,
		DistributorTokenAccount: a.DistributorTokenAccount,
		DistributorFeeAccount:   a.DistributorFeeAccount,
		EscrowTokenAccount:      a.EscrowTokenAccount,
		FeeAmount:               a.FeeAmount,
		FeeMode:                 a.FeeMode,
		TokenDecimals:           a.TokenDecimals,
		Bump:                    a.Bump,
		EscrowBalance:           escrowBalance,
		CreatedAt:               a.CreatedAt,
		UpdatedAt:               a.UpdatedAt,
	}
}

// AgreementHandle identifies an initialized agreement to its distributor.
type AgreementHandle struct {
	Authority               domain.AccountRef `json:"authority"`
	Bump                    uint8             `json:"bump"`
	EscrowTokenAccount      domain.AccountRef `json:"escrow_token_account"`
	DistributorTokenAccount domain.AccountRef `json:"distributor_token_account"`
	DistributorFeeAccount   domain.AccountRef `json:"distributor_fee_account"`
}

// Handle returns the handle of a.
func (a *Agreement) Handle() *AgreementHandle {
	return &AgreementHandle{
		Authority:               a.Authority,
		Bump:                    a.Bump,
		EscrowTokenAccount:      a.EscrowTokenAccount,
		DistributorTokenAccount: a.DistributorTokenAccount,
		DistributorFeeAccount:   a.DistributorFeeAccount,
	}
}

// ClaimReceipt describes a committed claim.
type ClaimReceipt struct {
	Agreement            domain.AccountRef `json:"agreement"`
	ClaimantTokenAccount domain.AccountRef `json:"claimant_token_account"`
	BaseUnits            uint64            `json:"base_units"`
	Fee                  uint64            `json:"fee"`
	FeeAsset             domain.AssetID    `json:"fee_asset"`
}
