package memory

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"

	audit "airdrop/pkg/platform/audit"
	txcontext "airdrop/pkg/platform/tx"
)

type InMemoryStore struct {
	mu     sync.RWMutex
	events map[string][]audit.Event
}

func NewInMemoryStore() *InMemoryStore {
	return &InMemoryStore{events: make(map[string][]audit.Event)}
}

func (s *InMemoryStore) Clear() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.events = make(map[string][]audit.Event)
}

// Append stores event. Inside an in-memory transaction the append is
// journaled and disappears if the transaction rolls back.
func (s *InMemoryStore) Append(ctx context.Context, event audit.Event) error {
	event = event.Normalize(time.Now())
	s.mu.Lock()
	defer s.mu.Unlock()
	s.events[event.Agreement] = append(s.events[event.Agreement], event)
	txcontext.JournalFrom(ctx).Record(func() { s.remove(event.Agreement, event.ID) })
	return nil
}

func (s *InMemoryStore) remove(agreement string, id uuid.UUID) {
	s.mu.Lock()
	defer s.mu.Unlock()
	events := s.events[agreement]
	for i := len(events) - 1; i >= 0; i-- {
		if events[i].ID == id {
			s.events[agreement] = append(events[:i:i], events[i+1:]...)
			break
		}
	}
	if len(s.events[agreement]) == 0 {
		delete(s.events, agreement)
	}
}

// ListByAgreement returns events for one agreement in append order.
func (s *InMemoryStore) ListByAgreement(_ context.Context, agreement string) ([]audit.Event, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]audit.Event{}, s.events[agreement]...), nil
}
