package audit_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"airdrop/pkg/platform/audit"
	"airdrop/pkg/platform/audit/store/memory"
)

type failingStore struct{ err error }

func (f failingStore) Append(context.Context, audit.Event) error { return f.err }
func (f failingStore) ListByAgreement(context.Context, string) ([]audit.Event, error) {
	return nil, f.err
}

func TestPublisher_Emit(t *testing.T) {
	clock := clockwork.NewFakeClockAt(time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC))
	store := memory.NewInMemoryStore()
	pub := audit.NewPublisher(store, clock)
	ctx := context.Background()

	require.NoError(t, pub.Emit(ctx, audit.Event{
		Agreement: "agreement-1",
		Actor:     "claimant",
		Action:    string(audit.EventTokensClaimed),
		Amount:    3_000_000,
		Fee:       5_000,
	}))
	require.NoError(t, pub.Emit(ctx, audit.Event{
		Agreement: "agreement-1",
		Action:    string(audit.EventCustodyMismatch),
	}))

	events, err := pub.List(ctx, "agreement-1")
	require.NoError(t, err)
	require.Len(t, events, 2)

	claimed := events[0]
	assert.NotEqual(t, uuid.Nil, claimed.ID)
	assert.Equal(t, clock.Now(), claimed.Timestamp)
	assert.Equal(t, audit.CategoryCustody, claimed.Category)
	assert.Equal(t, uint64(5_000), claimed.Fee)
	assert.Equal(t, audit.CategorySecurity, events[1].Category)
}

func TestPublisher_EmitKeepsExplicitTimestamp(t *testing.T) {
	clock := clockwork.NewFakeClock()
	store := memory.NewInMemoryStore()
	pub := audit.NewPublisher(store, clock)

	at := time.Date(2025, 1, 2, 3, 4, 5, 0, time.UTC)
	require.NoError(t, pub.Emit(context.Background(), audit.Event{
		Agreement: "a", Action: string(audit.EventAgreementUpdated), Timestamp: at,
	}))

	events, err := pub.List(context.Background(), "a")
	require.NoError(t, err)
	require.Len(t, events, 1)
	assert.Equal(t, at, events[0].Timestamp)
	assert.Equal(t, audit.CategoryOperations, events[0].Category)
}

func TestPublisher_EmitWrapsStoreError(t *testing.T) {
	storeErr := errors.New("disk full")
	pub := audit.NewPublisher(failingStore{err: storeErr}, nil)

	err := pub.Emit(context.Background(), audit.Event{Action: string(audit.EventAgreementClosed)})
	require.ErrorIs(t, err, storeErr)
	assert.Contains(t, err.Error(), "agreement_closed")
}
