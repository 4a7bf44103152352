package service

import (
	"context"

	"go.opentelemetry.io/otel/attribute"

	"airdrop/internal/agreement/models"
	"airdrop/internal/agreement/ports"
	"airdrop/pkg/domain"
	dErrors "airdrop/pkg/domain-errors"
	"airdrop/pkg/platform/audit"
)

// UpdateRequest replaces the fee policy and optionally tops up the escrow.
type UpdateRequest struct {
	Distributor domain.Principal
	FeeAmount   uint64
	FeeMode     models.FeeMode
	// TopUp is in display units; zero skips the transfer.
	TopUp uint64
}

// Update overwrites the fee policy of the agreement under authority. A failed
// top-up leaves the previous policy in place.
func (s *Service) Update(ctx context.Context, authority domain.AccountRef, req UpdateRequest) (view *models.View, err error) {
	ctx, end := s.startSpan(ctx, "update", attribute.String("agreement", authority.String()))
	defer end(&err)

	if err := requireCaller(req.Distributor); err != nil {
		return nil, err
	}
	if !req.FeeMode.IsValid() {
		return nil, dErrors.Wrap(models.ErrInvalidFeeMode, dErrors.CodeValidation, "fee mode must be 'flat_per_claim' or 'per_unit'")
	}

	err = s.tx.RunInTx(ctx, func(ctx context.Context, stores ports.Stores) error {
		agreement, _, err := s.loadForUpdate(ctx, stores, authority)
		if err != nil {
			return err
		}
		if err := requireDistributor(agreement, req.Distributor); err != nil {
			return err
		}
		topUp, err := models.ToBaseUnits(req.TopUp, agreement.TokenDecimals)
		if err != nil {
			return err
		}

		previous := agreement.Policy()
		agreement.FeeAmount = req.FeeAmount
		agreement.FeeMode = req.FeeMode
		agreement.UpdatedAt = s.clock.Now()
		if err := stores.Registry.Update(ctx, agreement); err != nil {
			return err
		}

		if topUp > 0 {
			if err := stores.Ledger.Transfer(ctx, agreement.DistributorTokenAccount, agreement.EscrowTokenAccount, topUp, req.Distributor.Authority()); err != nil {
				return err
			}
			s.emit(ctx, audit.Event{
				Agreement: authority.String(),
				Actor:     req.Distributor.String(),
				Action:    string(audit.EventEscrowToppedUp),
				Amount:    topUp,
			})
		}
		s.emit(ctx, audit.Event{
			Agreement: authority.String(),
			Actor:     req.Distributor.String(),
			Action:    string(audit.EventAgreementUpdated),
			Fee:       req.FeeAmount,
		}, "fee_mode", req.FeeMode.String(), "previous_fee", previous.Amount, "previous_fee_mode", previous.Mode.String())

		balance, err := stores.Ledger.Balance(ctx, agreement.EscrowTokenAccount)
		if err != nil {
			return err
		}
		view = agreement.ToView(balance)
		return nil
	})
	if err != nil {
		s.rejected(ctx, authority, req.Distributor, "update", err)
		return nil, err
	}
	return view, nil
}
