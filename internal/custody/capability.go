package custody

import (
	"crypto/rand"
	"crypto/sha256"
	"crypto/subtle"

	"github.com/mr-tron/base58"

	"airdrop/pkg/domain"
	dErrors "airdrop/pkg/domain-errors"
)

const capabilityBytes = 32

// Capability authorizes debits from accounts owned by one derived authority.
// Its fields are unexported: a usable value only comes from Mint at
// initialization or from Deriver.Restore after the custody record verifies.
type Capability struct {
	authority domain.AccountRef
	token     string
}

// Mint issues a fresh capability for c. The token is stored server-side with
// the agreement; ledgers keep only its digest.
func Mint(c Custody) (Capability, error) {
	buf := make([]byte, capabilityBytes)
	if _, err := rand.Read(buf); err != nil {
		return Capability{}, dErrors.Wrap(err, dErrors.CodeInternal, "mint capability")
	}
	return Capability{authority: c.Authority, token: base58.Encode(buf)}, nil
}

// Restore rebuilds the capability of a stored agreement. The stored custody
// must verify against seeds first.
func (d *Deriver) Restore(seeds Seeds, stored Custody, token string) (Capability, error) {
	if err := d.Verify(seeds, stored); err != nil {
		return Capability{}, err
	}
	raw, err := base58.Decode(token)
	if err != nil || len(raw) != capabilityBytes {
		return Capability{}, dErrors.Wrap(ErrAccountNotCorrect, dErrors.CodeValidation, "stored capability is malformed")
	}
	return Capability{authority: stored.Authority, token: token}, nil
}

// Authority returns the ledger authority backed by the capability.
func (c Capability) Authority() domain.Authority {
	return domain.Authority{Signer: c.authority, Proof: c.token}
}

// Token returns the capability token for persistence in the registry.
func (c Capability) Token() string {
	return c.token
}

// Digest returns the SHA-256 digest of a capability token.
func (c Capability) Digest() []byte {
	return Digest(c.token)
}

// Digest hashes a capability proof.
func Digest(proof string) []byte {
	sum := sha256.Sum256([]byte(proof))
	return sum[:]
}

// Matches reports whether proof hashes to digest, in constant time.
func Matches(digest []byte, proof string) bool {
	if len(digest) == 0 || proof == "" {
		return false
	}
	return subtle.ConstantTimeCompare(digest, Digest(proof)) == 1
}
