package service

import (
	"context"

	"go.opentelemetry.io/otel/attribute"

	"airdrop/internal/agreement/ports"
	"airdrop/pkg/domain"
	"airdrop/pkg/platform/audit"
)

// Close tears the agreement down in order: drain the escrow to the
// distributor token account, close the escrow account, then release the
// record deposit and delete the record. A failure at any step rolls back the
// steps before it; later steps never run.
func (s *Service) Close(ctx context.Context, authority domain.AccountRef, distributor domain.Principal) (err error) {
	ctx, end := s.startSpan(ctx, "close", attribute.String("agreement", authority.String()))
	defer end(&err)

	if err := requireCaller(distributor); err != nil {
		return err
	}

	err = s.tx.RunInTx(ctx, func(ctx context.Context, stores ports.Stores) error {
		agreement, capability, err := s.loadForUpdate(ctx, stores, authority)
		if err != nil {
			return err
		}
		if err := requireDistributor(agreement, distributor); err != nil {
			return err
		}
		signer := capability.Authority()

		drained, err := stores.Ledger.Balance(ctx, agreement.EscrowTokenAccount)
		if err != nil {
			return err
		}
		if drained > 0 {
			if err := s.release(ctx, stores, agreement, capability, agreement.DistributorTokenAccount, drained); err != nil {
				return err
			}
		}

		if err := stores.Ledger.CloseAccount(ctx, agreement.EscrowTokenAccount, distributor.Account(), signer); err != nil {
			return err
		}

		if err := stores.Ledger.CloseAccount(ctx, agreement.Authority, distributor.Account(), signer); err != nil {
			return err
		}
		if err := stores.Registry.Delete(ctx, authority); err != nil {
			return err
		}

		s.emit(ctx, audit.Event{
			Agreement: authority.String(),
			Actor:     distributor.String(),
			Action:    string(audit.EventAgreementClosed),
			Amount:    drained,
		}, "record_deposit", agreement.Deposit)
		return nil
	})
	if err != nil {
		s.rejected(ctx, authority, distributor, "close", err)
		return err
	}
	s.metrics.IncrementClosed()
	return nil
}
