package service

import (
	"context"
	"errors"

	"go.opentelemetry.io/otel/attribute"

	"airdrop/internal/agreement/models"
	"airdrop/internal/agreement/ports"
	"airdrop/internal/custody"
	"airdrop/pkg/domain"
	dErrors "airdrop/pkg/domain-errors"
	"airdrop/pkg/platform/audit"
	"airdrop/pkg/platform/sentinel"
)

// InitializeRequest configures a new agreement. Amounts are display units.
type InitializeRequest struct {
	Distributor domain.Principal
	FeeAsset    domain.AssetID
	TokenAsset  domain.AssetID
	// DistributorTokenAccount funds the escrow. Zero selects the
	// distributor's associated account for the token asset.
	DistributorTokenAccount domain.AccountRef
	Deposit                 uint64
	Decimals                uint8
	FeeAmount               uint64
	FeeMode                 models.FeeMode
}

func (r InitializeRequest) validate() error {
	if err := requireCaller(r.Distributor); err != nil {
		return err
	}
	if r.FeeAsset.IsNil() || r.TokenAsset.IsNil() {
		return dErrors.New(dErrors.CodeValidation, "fee asset and token asset are required")
	}
	if r.TokenAsset.IsNative() || r.TokenAsset == r.FeeAsset {
		return dErrors.Wrap(models.ErrTransactionPairNotSupported, dErrors.CodeValidation, "token asset must be a fungible asset distinct from the fee asset")
	}
	if !r.FeeMode.IsValid() {
		return dErrors.Wrap(models.ErrInvalidFeeMode, dErrors.CodeValidation, "fee mode must be 'flat_per_claim' or 'per_unit'")
	}
	return nil
}

// Initialize creates the agreement for (distributor, fee asset, token asset),
// opens its escrow and moves the initial deposit into it.
func (s *Service) Initialize(ctx context.Context, req InitializeRequest) (handle *models.AgreementHandle, err error) {
	ctx, end := s.startSpan(ctx, "initialize",
		attribute.String("distributor", req.Distributor.String()),
		attribute.String("token_asset", req.TokenAsset.String()),
	)
	defer end(&err)

	if err := req.validate(); err != nil {
		return nil, err
	}
	baseDeposit, err := models.ToBaseUnits(req.Deposit, req.Decimals)
	if err != nil {
		return nil, err
	}
	seeds := custody.Seeds{Distributor: req.Distributor, FeeAsset: req.FeeAsset, TokenAsset: req.TokenAsset}
	derived, err := s.deriver.Derive(seeds)
	if err != nil {
		return nil, err
	}

	err = s.tx.RunInTx(ctx, func(ctx context.Context, stores ports.Stores) error {
		if _, err := stores.Registry.Get(ctx, derived.Authority); err == nil {
			return dErrors.Wrap(models.ErrContractInitialized, dErrors.CodeValidation, "agreement already initialized")
		} else if !errors.Is(err, sentinel.ErrNotFound) {
			return err
		}

		tokenAccount, err := s.distributorTokenAccount(ctx, stores, req)
		if err != nil {
			return err
		}
		feeAccount, err := stores.Provisioner.EnsureAccount(ctx, req.Distributor.Account(), req.FeeAsset)
		if err != nil {
			return err
		}

		capability, err := custody.Mint(derived)
		if err != nil {
			return err
		}
		payer := req.Distributor.Authority()
		// A concurrent Initialize that committed after the registry read
		// surfaces here as an open escrow.
		if _, err := stores.Provisioner.OpenEscrow(ctx, derived.Authority, req.TokenAsset, capability.Digest(), payer, s.deposits.Escrow); err != nil {
			return alreadyInitialized(err)
		}
		if _, err := stores.Provisioner.OpenEscrow(ctx, derived.Authority, domain.NativeCurrency, capability.Digest(), payer, s.deposits.Record); err != nil {
			return alreadyInitialized(err)
		}

		agreement, err := models.NewAgreement(seeds, derived, capability.Token(),
			models.FeePolicy{Amount: req.FeeAmount, Mode: req.FeeMode}, req.Decimals, s.clock.Now())
		if err != nil {
			return err
		}
		agreement.DistributorTokenAccount = tokenAccount
		agreement.DistributorFeeAccount = feeAccount
		agreement.Deposit = s.deposits.Record
		if err := stores.Registry.Create(ctx, agreement); err != nil {
			return alreadyInitialized(err)
		}

		if baseDeposit > 0 {
			if err := stores.Ledger.Transfer(ctx, tokenAccount, derived.Escrow, baseDeposit, payer); err != nil {
				return err
			}
		}

		s.emit(ctx, audit.Event{
			Agreement: derived.Authority.String(),
			Actor:     req.Distributor.String(),
			Action:    string(audit.EventAgreementInitialized),
			Amount:    baseDeposit,
			Fee:       req.FeeAmount,
		}, "fee_mode", req.FeeMode.String(), "decimals", req.Decimals)

		handle = agreement.Handle()
		return nil
	})
	if err != nil {
		return nil, err
	}
	s.metrics.IncrementInitialized()
	return handle, nil
}

// alreadyInitialized maps a storage conflict on the agreement's custody or
// record to ErrContractInitialized.
func alreadyInitialized(err error) error {
	if errors.Is(err, sentinel.ErrConflict) {
		return dErrors.Wrap(models.ErrContractInitialized, dErrors.CodeValidation, "agreement already initialized")
	}
	return err
}

// distributorTokenAccount resolves the account funding the escrow and checks
// that it is bound to (distributor, token asset).
func (s *Service) distributorTokenAccount(ctx context.Context, stores ports.Stores, req InitializeRequest) (domain.AccountRef, error) {
	if req.DistributorTokenAccount.IsNil() {
		return stores.Provisioner.EnsureAccount(ctx, req.Distributor.Account(), req.TokenAsset)
	}
	acct, err := stores.Ledger.Account(ctx, req.DistributorTokenAccount)
	if err != nil {
		if errors.Is(err, sentinel.ErrNotFound) {
			return domain.AccountRef{}, dErrors.Wrap(models.ErrAccountNotCorrect, dErrors.CodeValidation, "distributor token account does not exist")
		}
		return domain.AccountRef{}, err
	}
	if acct.Owner != req.Distributor.Account() || acct.Asset != req.TokenAsset {
		return domain.AccountRef{}, dErrors.Wrap(models.ErrAccountNotCorrect, dErrors.CodeValidation, "distributor token account is not bound to the distributor and token asset")
	}
	return acct.Address, nil
}
