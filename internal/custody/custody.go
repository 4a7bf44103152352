// Package custody derives the escrow address of an agreement and the
// capability that authorizes debits from it.
//
// The authority address is a program-derived address over the seed tuple
// (distributor, fee asset, token asset). The search starts at bump 255 and
// walks down to the first address that is off the ed25519 curve, so no private
// key can exist for it and only code holding the seeds can act for it. The
// escrow is the authority's associated account for the token asset.
package custody

import (
	"errors"
	"fmt"

	"github.com/gagliardetto/solana-go"

	"airdrop/pkg/domain"
	dErrors "airdrop/pkg/domain-errors"
)

// ErrAccountNotCorrect is returned when a stored custody record does not match
// a fresh derivation from its seeds.
var ErrAccountNotCorrect = errors.New("account not correct")

// Seeds is the tuple an agreement is keyed by.
type Seeds struct {
	Distributor domain.Principal
	FeeAsset    domain.AssetID
	TokenAsset  domain.AssetID
}

func (s Seeds) validate() error {
	if s.Distributor.IsNil() {
		return dErrors.New(dErrors.CodeInvalidInput, "distributor is required")
	}
	if s.FeeAsset.IsNil() {
		return dErrors.New(dErrors.CodeInvalidInput, "fee asset is required")
	}
	if s.TokenAsset.IsNil() {
		return dErrors.New(dErrors.CodeInvalidInput, "token asset is required")
	}
	return nil
}

func (s Seeds) raw() [][]byte {
	distributor := s.Distributor.PublicKey()
	fee := s.FeeAsset.PublicKey()
	token := s.TokenAsset.PublicKey()
	return [][]byte{distributor[:], fee[:], token[:]}
}

// Custody is the derived placement of one agreement.
type Custody struct {
	// Authority is the derived address that owns the escrow. The registry
	// record is stored under it.
	Authority domain.AccountRef
	Bump      uint8
	Escrow    domain.AccountRef
}

// Deriver derives custody for one program id.
type Deriver struct {
	programID solana.PublicKey
}

// NewDeriver returns a Deriver scoped to programID.
func NewDeriver(programID solana.PublicKey) (*Deriver, error) {
	if programID.IsZero() {
		return nil, fmt.Errorf("program id is required")
	}
	return &Deriver{programID: programID}, nil
}

// ProgramID returns the program the deriver is scoped to.
func (d *Deriver) ProgramID() solana.PublicKey {
	return d.programID
}

// Derive computes the custody placement for seeds.
func (d *Deriver) Derive(seeds Seeds) (Custody, error) {
	if err := seeds.validate(); err != nil {
		return Custody{}, err
	}
	authority, bump, err := solana.FindProgramAddress(seeds.raw(), d.programID)
	if err != nil {
		return Custody{}, dErrors.Wrap(err, dErrors.CodeInternal, "derive escrow authority")
	}
	escrow, _, err := solana.FindAssociatedTokenAddress(authority, seeds.TokenAsset.PublicKey())
	if err != nil {
		return Custody{}, dErrors.Wrap(err, dErrors.CodeInternal, "derive escrow account")
	}
	return Custody{
		Authority: domain.AccountRef(authority),
		Bump:      bump,
		Escrow:    domain.AccountRef(escrow),
	}, nil
}

// Verify recomputes custody from seeds and compares it with stored. Any
// divergence fails with ErrAccountNotCorrect.
func (d *Deriver) Verify(seeds Seeds, stored Custody) error {
	derived, err := d.Derive(seeds)
	if err != nil {
		return dErrors.Wrap(ErrAccountNotCorrect, dErrors.CodeValidation, "custody seeds are not derivable")
	}
	if derived != stored {
		return dErrors.Wrap(ErrAccountNotCorrect, dErrors.CodeValidation, "custody derivation diverges from stored agreement")
	}
	// The canonical bump must also reproduce the stored authority directly.
	withBump := append(seeds.raw(), []byte{stored.Bump})
	addr, err := solana.CreateProgramAddress(withBump, d.programID)
	if err != nil || domain.AccountRef(addr) != stored.Authority {
		return dErrors.Wrap(ErrAccountNotCorrect, dErrors.CodeValidation, "stored bump does not reproduce authority")
	}
	return nil
}
