package service

import (
	"context"
	"errors"

	"go.opentelemetry.io/otel/attribute"

	"airdrop/internal/agreement/models"
	"airdrop/internal/agreement/ports"
	"airdrop/internal/custody"
	ledgermodels "airdrop/internal/ledger/models"
	"airdrop/pkg/domain"
	dErrors "airdrop/pkg/domain-errors"
	"airdrop/pkg/platform/audit"
	"airdrop/pkg/platform/sentinel"
)

// FeeRoute selects how a claimant pays the claim fee. It is sealed: the only
// variants are NativeFee and AssetFee, and an agreement accepts exactly one of
// them depending on its fee asset.
type FeeRoute interface {
	route() string
	native() bool
}

// NativeFee pays the fee from the claimant's native balance to the
// distributor's native balance.
type NativeFee struct{}

func (NativeFee) route() string { return "native" }
func (NativeFee) native() bool  { return true }

// AssetFee pays the fee from a claimant account bound to the fee asset to the
// agreement's distributor fee account.
type AssetFee struct {
	// ClaimantFeeAccount is the paying account. Zero selects the claimant's
	// associated account for the fee asset.
	ClaimantFeeAccount domain.AccountRef
}

func (AssetFee) route() string { return "asset" }
func (AssetFee) native() bool  { return false }

// ClaimNative claims amount display units, paying the fee in native currency.
func (s *Service) ClaimNative(ctx context.Context, authority domain.AccountRef, claimant domain.Principal, amount uint64) (*models.ClaimReceipt, error) {
	return s.Claim(ctx, authority, claimant, amount, NativeFee{})
}

// ClaimAsset claims amount display units, paying the fee from
// claimantFeeAccount in the agreement's fee asset.
func (s *Service) ClaimAsset(ctx context.Context, authority domain.AccountRef, claimant domain.Principal, amount uint64, claimantFeeAccount domain.AccountRef) (*models.ClaimReceipt, error) {
	return s.Claim(ctx, authority, claimant, amount, AssetFee{ClaimantFeeAccount: claimantFeeAccount})
}

// feeLeg is the resolved source and destination of a fee transfer.
type feeLeg struct {
	from, to domain.AccountRef
}

// Claim moves amount display units from escrow to the claimant and collects
// the fee along route. The fee and token transfers commit together or not at
// all.
func (s *Service) Claim(ctx context.Context, authority domain.AccountRef, claimant domain.Principal, amount uint64, route FeeRoute) (receipt *models.ClaimReceipt, err error) {
	if route == nil {
		route = NativeFee{}
	}
	ctx, end := s.startSpan(ctx, "claim",
		attribute.String("agreement", authority.String()),
		attribute.String("route", route.route()),
	)
	defer end(&err)

	if amount == 0 {
		return nil, dErrors.Wrap(models.ErrClaimAmountZero, dErrors.CodeValidation, "claim amount must be greater than zero")
	}
	if err := requireCaller(claimant); err != nil {
		return nil, err
	}

	err = s.tx.RunInTx(ctx, func(ctx context.Context, stores ports.Stores) error {
		agreement, capability, err := s.loadForUpdate(ctx, stores, authority)
		if err != nil {
			return err
		}
		if claimant == agreement.Distributor {
			return dErrors.Wrap(models.ErrClaimantIsDistributor, dErrors.CodeValidation, "distributor cannot claim from its own agreement")
		}
		// The fee route is recomputed from the fee asset on every claim.
		if route.native() != agreement.NativeFee() {
			return dErrors.Wrap(models.ErrTransactionPairNotSupported, dErrors.CodeUnsupportedMode,
				"fee route "+route.route()+" does not match the agreement fee asset")
		}

		fee, err := agreement.Policy().Fee(amount)
		if err != nil {
			return err
		}
		baseUnits, err := models.ToBaseUnits(amount, agreement.TokenDecimals)
		if err != nil {
			return err
		}

		leg, err := s.resolveFeeLeg(ctx, stores, agreement, claimant, route)
		if err != nil {
			return err
		}
		if err := requireBalance(ctx, stores, leg.from, fee, models.ErrGasFeeNotEnough, "claimant cannot cover the claim fee"); err != nil {
			return err
		}
		if err := requireBalance(ctx, stores, agreement.EscrowTokenAccount, baseUnits, models.ErrTokenAmountNotEnough, "escrow cannot cover the claimed amount"); err != nil {
			return err
		}

		claimantTokens, err := stores.Provisioner.EnsureAccount(ctx, claimant.Account(), agreement.TokenAsset)
		if err != nil {
			return err
		}

		if fee > 0 {
			if err := stores.Ledger.Transfer(ctx, leg.from, leg.to, fee, claimant.Authority()); err != nil {
				return err
			}
		}
		if err := s.release(ctx, stores, agreement, capability, claimantTokens, baseUnits); err != nil {
			return err
		}

		s.emit(ctx, audit.Event{
			Agreement: authority.String(),
			Actor:     claimant.String(),
			Action:    string(audit.EventTokensClaimed),
			Amount:    baseUnits,
			Fee:       fee,
		}, "route", route.route())

		receipt = &models.ClaimReceipt{
			Agreement:            authority,
			ClaimantTokenAccount: claimantTokens,
			BaseUnits:            baseUnits,
			Fee:                  fee,
			FeeAsset:             agreement.FeeAsset,
		}
		return nil
	})
	if err != nil {
		s.rejected(ctx, authority, claimant, "claim", err)
		return nil, err
	}
	s.metrics.ObserveClaim(route.route(), receipt.BaseUnits, receipt.Fee)
	return receipt, nil
}

// resolveFeeLeg picks the accounts the fee moves between. Native fees move
// between the principals' own addresses. Asset fees require a claimant account
// bound to (claimant, fee asset) and the stored distributor fee account.
func (s *Service) resolveFeeLeg(ctx context.Context, stores ports.Stores, agreement *models.Agreement, claimant domain.Principal, route FeeRoute) (feeLeg, error) {
	switch r := route.(type) {
	case NativeFee:
		return feeLeg{from: claimant.Account(), to: agreement.Distributor.Account()}, nil
	case AssetFee:
		from := r.ClaimantFeeAccount
		if from.IsNil() {
			addr, err := ledgermodels.AddressFor(claimant.Account(), agreement.FeeAsset)
			if err != nil {
				return feeLeg{}, err
			}
			from = addr
		}
		if err := requireBinding(ctx, stores, from, claimant.Account(), agreement.FeeAsset, "claimant fee account"); err != nil {
			return feeLeg{}, err
		}
		to := agreement.DistributorFeeAccount
		if err := requireBinding(ctx, stores, to, agreement.Distributor.Account(), agreement.FeeAsset, "distributor fee account"); err != nil {
			return feeLeg{}, err
		}
		if from == to {
			return feeLeg{}, dErrors.Wrap(models.ErrAccountNotCorrect, dErrors.CodeValidation, "fee accounts must be distinct")
		}
		return feeLeg{from: from, to: to}, nil
	}
	return feeLeg{}, dErrors.Wrap(models.ErrTransactionPairNotSupported, dErrors.CodeUnsupportedMode, "unknown fee route")
}

// requireBinding checks that addr exists, is owned by owner and holds asset.
func requireBinding(ctx context.Context, stores ports.Stores, addr, owner domain.AccountRef, asset domain.AssetID, label string) error {
	acct, err := stores.Ledger.Account(ctx, addr)
	if err != nil {
		if errors.Is(err, sentinel.ErrNotFound) {
			return dErrors.Wrap(models.ErrAccountNotCorrect, dErrors.CodeValidation, label+" does not exist")
		}
		return err
	}
	if acct.Owner != owner || acct.Asset != asset {
		return dErrors.Wrap(models.ErrAccountNotCorrect, dErrors.CodeValidation, label+" is not correctly bound")
	}
	return nil
}

// requireBalance fails with reason when addr holds less than need. A missing
// account holds nothing.
func requireBalance(ctx context.Context, stores ports.Stores, addr domain.AccountRef, need uint64, reason error, msg string) error {
	balance, err := stores.Ledger.Balance(ctx, addr)
	if err != nil {
		if !errors.Is(err, sentinel.ErrNotFound) {
			return err
		}
		balance = 0
	}
	if balance < need {
		return dErrors.Wrap(reason, dErrors.CodeInsufficientFunds, msg)
	}
	return nil
}

// release moves baseUnits out of escrow under the agreement's capability.
func (s *Service) release(ctx context.Context, stores ports.Stores, agreement *models.Agreement, capability custody.Capability, to domain.AccountRef, baseUnits uint64) error {
	return stores.Ledger.Transfer(ctx, agreement.EscrowTokenAccount, to, baseUnits, capability.Authority())
}
