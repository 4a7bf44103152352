// Package service implements the agreement operations: initialization,
// claims on either fee route, fee policy updates, and close.
//
// Every operation runs inside one TxRunner transaction. All preconditions are
// checked before the first mutation, and any failure after that rolls the
// whole call back.
package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/jonboulle/clockwork"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"airdrop/internal/agreement/metrics"
	"airdrop/internal/agreement/models"
	"airdrop/internal/agreement/ports"
	"airdrop/internal/custody"
	"airdrop/pkg/domain"
	dErrors "airdrop/pkg/domain-errors"
	"airdrop/pkg/platform/audit"
	"airdrop/pkg/platform/sentinel"
)

// Type aliases for shared interfaces.
type (
	TxRunner       = ports.TxRunner
	AuditPublisher = ports.AuditPublisher
)

// Deposits are the native amounts a distributor locks while an agreement
// exists. Both are returned at close.
type Deposits struct {
	// Escrow funds the escrow token account.
	Escrow uint64
	// Record funds the agreement record at its authority address.
	Record uint64
}

// DefaultDeposits match the rent-exempt minimums of a token account and an
// agreement record on the reference chain.
var DefaultDeposits = Deposits{Escrow: 2_039_280, Record: 2_463_840}

type Service struct {
	tx             TxRunner
	deriver        *custody.Deriver
	auditPublisher AuditPublisher
	logger         *slog.Logger
	metrics        *metrics.Metrics
	tracer         trace.Tracer
	clock          clockwork.Clock
	deposits       Deposits
}

type Option func(*Service)

func WithLogger(logger *slog.Logger) Option {
	return func(s *Service) {
		s.logger = logger
	}
}

func WithAuditPublisher(publisher AuditPublisher) Option {
	return func(s *Service) {
		s.auditPublisher = publisher
	}
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(s *Service) {
		s.metrics = m
	}
}

func WithClock(clock clockwork.Clock) Option {
	return func(s *Service) {
		s.clock = clock
	}
}

func WithTracer(tracer trace.Tracer) Option {
	return func(s *Service) {
		s.tracer = tracer
	}
}

func WithDeposits(d Deposits) Option {
	return func(s *Service) {
		s.deposits = d
	}
}

func New(tx TxRunner, deriver *custody.Deriver, opts ...Option) (*Service, error) {
	if tx == nil {
		return nil, fmt.Errorf("transaction runner is required")
	}
	if deriver == nil {
		return nil, fmt.Errorf("custody deriver is required")
	}

	svc := &Service{
		tx:       tx,
		deriver:  deriver,
		logger:   slog.Default(),
		clock:    clockwork.NewRealClock(),
		tracer:   otel.Tracer("airdrop/agreement"),
		deposits: DefaultDeposits,
	}

	for _, opt := range opts {
		opt(svc)
	}

	return svc, nil
}

// startSpan opens a span for one operation. The returned func ends it and
// records the outcome in the span and the metrics.
func (s *Service) startSpan(ctx context.Context, operation string, attrs ...attribute.KeyValue) (context.Context, func(*error)) {
	start := time.Now()
	ctx, span := s.tracer.Start(ctx, "agreement."+operation, trace.WithAttributes(attrs...))
	return ctx, func(errp *error) {
		if err := *errp; err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, string(dErrors.CodeOf(err)))
			s.metrics.IncrementRejection(operation, string(dErrors.CodeOf(err)))
		}
		s.metrics.ObserveDuration(operation, start)
		span.End()
	}
}

// loadForUpdate locks the agreement under authority and checks that its
// custody still derives from its seeds. A missing record means the agreement
// was never initialized or has been closed.
func (s *Service) loadForUpdate(ctx context.Context, stores ports.Stores, authority domain.AccountRef) (*models.Agreement, custody.Capability, error) {
	agreement, err := stores.Registry.GetForUpdate(ctx, authority)
	if err != nil {
		if errors.Is(err, sentinel.ErrNotFound) {
			return nil, custody.Capability{}, dErrors.Wrap(models.ErrContractNotInitialized, dErrors.CodeValidation, "agreement is not initialized")
		}
		return nil, custody.Capability{}, err
	}
	if !agreement.Initialized {
		return nil, custody.Capability{}, dErrors.Wrap(models.ErrContractNotInitialized, dErrors.CodeValidation, "agreement is not initialized")
	}
	capability, err := s.deriver.Restore(agreement.Seeds(), agreement.Custody(), agreement.Capability)
	if err != nil {
		return nil, custody.Capability{}, err
	}
	return agreement, capability, nil
}

func requireDistributor(agreement *models.Agreement, caller domain.Principal) error {
	if caller != agreement.Distributor {
		return dErrors.Wrap(models.ErrNotDistributor, dErrors.CodeForbidden, "caller is not the agreement distributor")
	}
	return nil
}

func requireCaller(caller domain.Principal) error {
	if caller.IsNil() {
		return dErrors.New(dErrors.CodeUnauthorized, "authentication required")
	}
	return nil
}

// rejected emits a security audit event for calls that failed an authority or
// custody check. It runs after the transaction so the event outlives the
// rollback.
func (s *Service) rejected(ctx context.Context, authority domain.AccountRef, caller domain.Principal, operation string, err error) {
	var action audit.AuditEvent
	switch {
	case errors.Is(err, models.ErrAccountNotCorrect):
		action = audit.EventCustodyMismatch
	case errors.Is(err, models.ErrNotDistributor), errors.Is(err, models.ErrClaimantIsDistributor):
		action = audit.EventAuthorityRejected
	default:
		return
	}
	ports.LogAudit(ctx, s.logger, s.auditPublisher, audit.Event{
		Agreement: authority.String(),
		Actor:     caller.String(),
		Action:    string(action),
		Reason:    operation + ": " + err.Error(),
	})
}

func (s *Service) emit(ctx context.Context, event audit.Event, attrs ...any) {
	event.Timestamp = s.clock.Now()
	ports.LogAudit(ctx, s.logger, s.auditPublisher, event, attrs...)
}

// Get returns the agreement under authority with its current escrow balance.
func (s *Service) Get(ctx context.Context, authority domain.AccountRef) (view *models.View, err error) {
	ctx, end := s.startSpan(ctx, "get", attribute.String("agreement", authority.String()))
	defer end(&err)

	err = s.tx.RunInTx(ctx, func(ctx context.Context, stores ports.Stores) error {
		agreement, err := stores.Registry.Get(ctx, authority)
		if err != nil {
			if errors.Is(err, sentinel.ErrNotFound) {
				return dErrors.Wrap(models.ErrContractNotInitialized, dErrors.CodeNotFound, "agreement not found")
			}
			return err
		}
		balance, err := stores.Ledger.Balance(ctx, agreement.EscrowTokenAccount)
		if err != nil {
			return err
		}
		view = agreement.ToView(balance)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return view, nil
}
