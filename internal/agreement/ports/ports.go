// Package ports defines the interfaces the agreement service depends on: the
// asset ledger, account provisioning, the agreement registry, and the
// transaction boundary that binds them.
package ports

import (
	"context"
	"log/slog"

	"airdrop/internal/agreement/models"
	ledgermodels "airdrop/internal/ledger/models"
	"airdrop/pkg/domain"
	"airdrop/pkg/platform/audit"
	"airdrop/pkg/requestcontext"
)

//go:generate mockgen -source=ports.go -destination=mocks/mocks.go -package=mocks

// Ledger is the asset transfer service. Its errors are returned to callers
// unmodified.
type Ledger interface {
	Account(ctx context.Context, addr domain.AccountRef) (*ledgermodels.Account, error)
	Balance(ctx context.Context, addr domain.AccountRef) (uint64, error)
	Transfer(ctx context.Context, from, to domain.AccountRef, amount uint64, auth domain.Authority) error
	CloseAccount(ctx context.Context, addr, destination domain.AccountRef, auth domain.Authority) error
}

// Provisioner creates asset-bound accounts on demand.
type Provisioner interface {
	// EnsureAccount returns the (owner, asset) account, creating it if missing.
	EnsureAccount(ctx context.Context, owner domain.AccountRef, asset domain.AssetID) (domain.AccountRef, error)
	// OpenEscrow opens the (owner, asset) account debitable only by the
	// capability whose digest is given. payer funds the deposit.
	OpenEscrow(ctx context.Context, owner domain.AccountRef, asset domain.AssetID, digest []byte, payer domain.Authority, deposit uint64) (domain.AccountRef, error)
}

// RegistryStore persists agreements keyed by their derived authority.
type RegistryStore interface {
	// Get returns the agreement or a not-found error.
	Get(ctx context.Context, authority domain.AccountRef) (*models.Agreement, error)
	// GetForUpdate is Get that also locks the record until the transaction ends.
	GetForUpdate(ctx context.Context, authority domain.AccountRef) (*models.Agreement, error)
	// Create inserts a new agreement, failing with a conflict if one exists.
	Create(ctx context.Context, agreement *models.Agreement) error
	Update(ctx context.Context, agreement *models.Agreement) error
	Delete(ctx context.Context, authority domain.AccountRef) error
}

// Stores is the set of adapters one transaction operates on.
type Stores struct {
	Registry    RegistryStore
	Ledger      Ledger
	Provisioner Provisioner
}

// TxRunner runs fn atomically: either every mutation fn makes through stores
// is kept, or none is.
type TxRunner interface {
	RunInTx(ctx context.Context, fn func(ctx context.Context, stores Stores) error) error
}

// AuditPublisher emits audit events for agreement operations.
type AuditPublisher interface {
	Emit(ctx context.Context, event audit.Event) error
}

// LogAudit logs an audit event to the structured logger and the publisher.
func LogAudit(ctx context.Context, logger *slog.Logger, publisher AuditPublisher, event audit.Event, attrs ...any) {
	if event.RequestID == "" {
		event.RequestID = requestcontext.RequestID(ctx)
	}
	if event.RequestID != "" {
		attrs = append(attrs, "request_id", event.RequestID)
	}
	args := append(attrs,
		"event", event.Action,
		"agreement", event.Agreement,
		"actor", event.Actor,
		"log_type", "audit",
	)

	if logger != nil {
		logger.InfoContext(ctx, event.Action, args...)
	}

	if publisher == nil {
		return
	}
	if err := publisher.Emit(ctx, event); err != nil && logger != nil {
		logger.WarnContext(ctx, "failed to emit audit event", "event", event.Action, "error", err)
	}
}
