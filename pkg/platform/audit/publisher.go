package audit

import (
	"context"
	"fmt"

	"github.com/jonboulle/clockwork"
)

// Store persists audit events.
type Store interface {
	Append(ctx context.Context, event Event) error
	ListByAgreement(ctx context.Context, agreement string) ([]Event, error)
}

// Publisher stamps events with its clock and appends them to a store. With a
// transactional store the event commits or rolls back with the caller.
type Publisher struct {
	store Store
	clock clockwork.Clock
}

// NewPublisher creates a publisher. A nil clock uses the real clock.
func NewPublisher(store Store, clock clockwork.Clock) *Publisher {
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	return &Publisher{store: store, clock: clock}
}

// Emit normalizes and stores event.
func (p *Publisher) Emit(ctx context.Context, event Event) error {
	if err := p.store.Append(ctx, event.Normalize(p.clock.Now())); err != nil {
		return fmt.Errorf("append audit event %s: %w", event.Action, err)
	}
	return nil
}

// List returns the stored events of one agreement.
func (p *Publisher) List(ctx context.Context, agreement string) ([]Event, error) {
	return p.store.ListByAgreement(ctx, agreement)
}
