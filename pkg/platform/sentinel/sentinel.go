package sentinel

import "errors"

// Sentinel errors for infrastructure facts. Registry stores and ledger adapters
// return these (optionally wrapped) so the agreement service can translate them
// into domain errors.
//
//   - ErrNotFound: record or account does not exist
//   - ErrConflict: record already exists for the key
//   - ErrInsufficientBalance: account balance cannot cover a debit
//   - ErrUnauthorizedAuthority: authority does not control the debited account
//   - ErrAssetMismatch: accounts hold different assets
//   - ErrAccountNotEmpty: account still holds a balance and cannot be closed
var (
	ErrNotFound              = errors.New("not found")
	ErrConflict              = errors.New("conflict")
	ErrInsufficientBalance   = errors.New("insufficient balance")
	ErrUnauthorizedAuthority = errors.New("unauthorized authority")
	ErrAssetMismatch         = errors.New("asset mismatch")
	ErrAccountNotEmpty       = errors.New("account not empty")
)
