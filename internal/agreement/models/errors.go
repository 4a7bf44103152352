package models

import (
	"errors"

	"airdrop/internal/custody"
)

// Reason errors identify why a call was rejected. Services wrap them in coded
// domain errors, so callers can match either the taxonomy code or the reason.
var (
	ErrContractInitialized         = errors.New("contract initialized")
	ErrContractNotInitialized      = errors.New("contract not initialized")
	ErrAccountNotCorrect           = custody.ErrAccountNotCorrect
	ErrGasFeeNotEnough             = errors.New("gas fee not enough")
	ErrTokenAmountNotEnough        = errors.New("token amount not enough")
	ErrClaimAmountZero             = errors.New("claim token amount is zero")
	ErrTransactionPairNotSupported = errors.New("transaction pair not supported")
	ErrInvalidFeeMode              = errors.New("invalid fee mode")
	ErrArithmeticOverflow          = errors.New("arithmetic overflow")
	ErrNotDistributor              = errors.New("caller is not the distributor")
	ErrClaimantIsDistributor       = errors.New("claimant must differ from distributor")
)
