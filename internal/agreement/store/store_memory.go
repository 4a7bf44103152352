// Package store persists agreements and provides the transaction runners that
// bind the registry to a ledger.
package store

import (
	"context"
	"fmt"
	"sync"

	"airdrop/internal/agreement/models"
	"airdrop/pkg/domain"
	dErrors "airdrop/pkg/domain-errors"
	"airdrop/pkg/platform/sentinel"
	txcontext "airdrop/pkg/platform/tx"
)

type registryState struct {
	mu         sync.RWMutex
	agreements map[domain.AccountRef]*models.Agreement
}

// InMemoryRegistry keeps agreements in a map. Views returned by InTx record a
// compensating step for every mutation in the given journal.
type InMemoryRegistry struct {
	state   *registryState
	journal *txcontext.Journal
}

func NewInMemoryRegistry() *InMemoryRegistry {
	return &InMemoryRegistry{
		state: &registryState{agreements: make(map[domain.AccountRef]*models.Agreement)},
	}
}

// InTx returns a view of the registry whose mutations are recorded in j.
func (r *InMemoryRegistry) InTx(j *txcontext.Journal) *InMemoryRegistry {
	return &InMemoryRegistry{state: r.state, journal: j}
}

func notFound(authority domain.AccountRef) error {
	return dErrors.Wrap(sentinel.ErrNotFound, dErrors.CodeNotFound, fmt.Sprintf("agreement %s not found", authority))
}

func (r *InMemoryRegistry) Get(_ context.Context, authority domain.AccountRef) (*models.Agreement, error) {
	r.state.mu.RLock()
	defer r.state.mu.RUnlock()
	a, ok := r.state.agreements[authority]
	if !ok {
		return nil, notFound(authority)
	}
	c := *a
	return &c, nil
}

// GetForUpdate is Get; the memory runner already serializes transactions.
func (r *InMemoryRegistry) GetForUpdate(ctx context.Context, authority domain.AccountRef) (*models.Agreement, error) {
	return r.Get(ctx, authority)
}

func (r *InMemoryRegistry) Create(_ context.Context, agreement *models.Agreement) error {
	if agreement == nil {
		return fmt.Errorf("agreement is required")
	}
	r.state.mu.Lock()
	defer r.state.mu.Unlock()
	key := agreement.Authority
	if _, exists := r.state.agreements[key]; exists {
		return dErrors.Wrap(sentinel.ErrConflict, dErrors.CodeConflict, "agreement already exists")
	}
	c := *agreement
	r.state.agreements[key] = &c
	r.journal.Record(func() {
		r.state.mu.Lock()
		defer r.state.mu.Unlock()
		delete(r.state.agreements, key)
	})
	return nil
}

func (r *InMemoryRegistry) Update(_ context.Context, agreement *models.Agreement) error {
	if agreement == nil {
		return fmt.Errorf("agreement is required")
	}
	r.state.mu.Lock()
	defer r.state.mu.Unlock()
	key := agreement.Authority
	prev, ok := r.state.agreements[key]
	if !ok {
		return notFound(key)
	}
	c := *agreement
	r.state.agreements[key] = &c
	r.journal.Record(func() {
		r.state.mu.Lock()
		defer r.state.mu.Unlock()
		r.state.agreements[key] = prev
	})
	return nil
}

func (r *InMemoryRegistry) Delete(_ context.Context, authority domain.AccountRef) error {
	r.state.mu.Lock()
	defer r.state.mu.Unlock()
	prev, ok := r.state.agreements[authority]
	if !ok {
		return notFound(authority)
	}
	delete(r.state.agreements, authority)
	r.journal.Record(func() {
		r.state.mu.Lock()
		defer r.state.mu.Unlock()
		r.state.agreements[authority] = prev
	})
	return nil
}

// Count returns the number of stored agreements.
func (r *InMemoryRegistry) Count() int {
	r.state.mu.RLock()
	defer r.state.mu.RUnlock()
	return len(r.state.agreements)
}
