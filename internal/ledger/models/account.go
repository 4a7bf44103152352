// Package models holds the account record of the ledger and the rules every
// ledger backend applies before mutating one.
package models

import (
	"fmt"
	"math/bits"
	"time"

	"github.com/gagliardetto/solana-go"

	"airdrop/internal/custody"
	"airdrop/pkg/domain"
	dErrors "airdrop/pkg/domain-errors"
	"airdrop/pkg/platform/sentinel"
)

// Account is an asset-bound balance owned by a principal or by a derived
// authority.
//
// Native accounts live at their owner's own address. Token accounts live at
// the associated address of (owner, asset). Accounts owned by a derived
// authority carry the digest of the capability that may debit them.
type Account struct {
	Address          domain.AccountRef
	Owner            domain.AccountRef
	Asset            domain.AssetID
	Balance          uint64
	Deposit          uint64
	CapabilityDigest []byte
	CreatedAt        time.Time
}

// IsNative reports whether the account holds the native currency.
func (a *Account) IsNative() bool {
	return a.Asset.IsNative()
}

// Clone returns a deep copy so callers never alias ledger state.
func (a *Account) Clone() *Account {
	if a == nil {
		return nil
	}
	c := *a
	if a.CapabilityDigest != nil {
		c.CapabilityDigest = append([]byte(nil), a.CapabilityDigest...)
	}
	return &c
}

// Authorize checks that auth may debit or close the account. The signer must
// own the account. Capability-owned accounts additionally require a proof that
// hashes to the stored digest; principal-owned accounts reject any proof.
func (a *Account) Authorize(auth domain.Authority) error {
	if auth.Signer != a.Owner {
		return dErrors.Wrap(sentinel.ErrUnauthorizedAuthority, dErrors.CodeForbidden,
			fmt.Sprintf("signer %s does not own account %s", auth.Signer, a.Address))
	}
	if len(a.CapabilityDigest) > 0 {
		if !custody.Matches(a.CapabilityDigest, auth.Proof) {
			return dErrors.Wrap(sentinel.ErrUnauthorizedAuthority, dErrors.CodeForbidden, "capability does not match account")
		}
		return nil
	}
	if auth.IsDerived() {
		return dErrors.Wrap(sentinel.ErrUnauthorizedAuthority, dErrors.CodeForbidden, "account does not accept capabilities")
	}
	return nil
}

// CheckDebit validates a debit of amount against the balance.
func (a *Account) CheckDebit(amount uint64) error {
	if a.Balance < amount {
		return dErrors.Wrap(sentinel.ErrInsufficientBalance, dErrors.CodeInsufficientFunds,
			fmt.Sprintf("account %s holds %d, needs %d", a.Address, a.Balance, amount))
	}
	return nil
}

// CheckCredit validates that crediting amount does not overflow.
func (a *Account) CheckCredit(amount uint64) error {
	if _, carry := bits.Add64(a.Balance, amount, 0); carry != 0 {
		return dErrors.New(dErrors.CodeArithmeticOverflow, fmt.Sprintf("credit overflows account %s", a.Address))
	}
	return nil
}

// CheckSameAsset validates that value can move between a and to.
func (a *Account) CheckSameAsset(to *Account) error {
	if a.Asset != to.Asset {
		return dErrors.Wrap(sentinel.ErrAssetMismatch, dErrors.CodeValidation,
			fmt.Sprintf("account %s holds %s, account %s holds %s", a.Address, a.Asset, to.Address, to.Asset))
	}
	return nil
}

// Closable returns the native value released by closing the account: the
// deposit, plus the balance for native accounts. Token accounts must be empty.
func (a *Account) Closable() (uint64, error) {
	if a.IsNative() {
		sum, carry := bits.Add64(a.Balance, a.Deposit, 0)
		if carry != 0 {
			return 0, dErrors.New(dErrors.CodeArithmeticOverflow, "closing balance overflows")
		}
		return sum, nil
	}
	if a.Balance != 0 {
		return 0, dErrors.Wrap(sentinel.ErrAccountNotEmpty, dErrors.CodeConflict,
			fmt.Sprintf("account %s still holds %d", a.Address, a.Balance))
	}
	return a.Deposit, nil
}

// AddressFor returns where the (owner, asset) account lives.
func AddressFor(owner domain.AccountRef, asset domain.AssetID) (domain.AccountRef, error) {
	if owner.IsNil() || asset.IsNil() {
		return domain.AccountRef{}, dErrors.New(dErrors.CodeInvalidInput, "owner and asset are required")
	}
	if asset.IsNative() {
		return owner, nil
	}
	addr, _, err := solana.FindAssociatedTokenAddress(owner.PublicKey(), asset.PublicKey())
	if err != nil {
		return domain.AccountRef{}, dErrors.Wrap(err, dErrors.CodeInternal, "derive associated account")
	}
	return domain.AccountRef(addr), nil
}

// NotFound builds the error returned for a missing account.
func NotFound(addr domain.AccountRef) error {
	return dErrors.Wrap(sentinel.ErrNotFound, dErrors.CodeNotFound, fmt.Sprintf("account %s not found", addr))
}
