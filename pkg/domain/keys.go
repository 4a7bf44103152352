package domain

import (
	"strings"

	"github.com/gagliardetto/solana-go"

	dErrors "airdrop/pkg/domain-errors"
)

// Principal identifies an authenticated party (distributor or claimant).
type Principal solana.PublicKey

// AssetID identifies a fungible asset (a token mint).
type AssetID solana.PublicKey

// AccountRef identifies a custody account holding one asset.
type AccountRef solana.PublicKey

// NativeCurrency is the asset id of the platform's native currency. Agreements
// whose fee asset equals it collect fees from native balances.
var NativeCurrency = AssetID(solana.SolMint)

// maxKeyLength bounds base58 input before decoding; a 32 byte key encodes to at
// most 44 characters.
const maxKeyLength = 44

func parseKey(s, field string) (solana.PublicKey, error) {
	if strings.TrimSpace(s) == "" {
		return solana.PublicKey{}, dErrors.New(dErrors.CodeInvalidInput, field+" cannot be empty")
	}
	if len(s) > maxKeyLength {
		return solana.PublicKey{}, dErrors.New(dErrors.CodeInvalidInput, field+" is too long")
	}
	key, err := solana.PublicKeyFromBase58(s)
	if err != nil {
		return solana.PublicKey{}, dErrors.Wrap(err, dErrors.CodeInvalidInput, "invalid "+field)
	}
	if key.IsZero() {
		return solana.PublicKey{}, dErrors.New(dErrors.CodeInvalidInput, field+" cannot be the zero key")
	}
	return key, nil
}

// ParsePrincipal parses a base58 principal at a trust boundary.
func ParsePrincipal(s string) (Principal, error) {
	key, err := parseKey(s, "principal")
	return Principal(key), err
}

// ParseAssetID parses a base58 asset id at a trust boundary.
func ParseAssetID(s string) (AssetID, error) {
	key, err := parseKey(s, "asset id")
	return AssetID(key), err
}

// ParseAccountRef parses a base58 account address at a trust boundary.
func ParseAccountRef(s string) (AccountRef, error) {
	key, err := parseKey(s, "account")
	return AccountRef(key), err
}

func (p Principal) PublicKey() solana.PublicKey { return solana.PublicKey(p) }
func (p Principal) String() string              { return solana.PublicKey(p).String() }
func (p Principal) IsNil() bool                 { return solana.PublicKey(p).IsZero() }

// Account returns the principal's native balance account. Native balances are
// held at the principal's own address.
func (p Principal) Account() AccountRef { return AccountRef(p) }

func (p Principal) MarshalText() ([]byte, error) { return []byte(p.String()), nil }

func (p *Principal) UnmarshalText(text []byte) error {
	v, err := ParsePrincipal(string(text))
	if err != nil {
		return err
	}
	*p = v
	return nil
}

func (a AssetID) PublicKey() solana.PublicKey { return solana.PublicKey(a) }
func (a AssetID) String() string              { return solana.PublicKey(a).String() }
func (a AssetID) IsNil() bool                 { return solana.PublicKey(a).IsZero() }

// IsNative reports whether a is the platform's native currency.
func (a AssetID) IsNative() bool { return a == NativeCurrency }

func (a AssetID) MarshalText() ([]byte, error) { return []byte(a.String()), nil }

func (a *AssetID) UnmarshalText(text []byte) error {
	v, err := ParseAssetID(string(text))
	if err != nil {
		return err
	}
	*a = v
	return nil
}

func (r AccountRef) PublicKey() solana.PublicKey { return solana.PublicKey(r) }
func (r AccountRef) String() string              { return solana.PublicKey(r).String() }
func (r AccountRef) IsNil() bool                 { return solana.PublicKey(r).IsZero() }

func (r AccountRef) MarshalText() ([]byte, error) { return []byte(r.String()), nil }

func (r *AccountRef) UnmarshalText(text []byte) error {
	v, err := ParseAccountRef(string(text))
	if err != nil {
		return err
	}
	*r = v
	return nil
}
