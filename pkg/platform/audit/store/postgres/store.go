package postgres

import (
	"context"
	"database/sql"
	"fmt"
	"strconv"
	"time"

	audit "airdrop/pkg/platform/audit"
	txcontext "airdrop/pkg/platform/tx"
)

// Store writes audit events to the agreement_events table. When the context
// carries a transaction the insert joins it, so an event is persisted exactly
// when the call that produced it commits.
type Store struct {
	db *sql.DB
}

// New creates a new PostgreSQL audit store.
func New(db *sql.DB) *Store {
	return &Store{db: db}
}

// Append writes an audit event.
func (s *Store) Append(ctx context.Context, event audit.Event) error {
	event = event.Normalize(time.Now())
	query := `
		INSERT INTO agreement_events (
			id, category, occurred_at, agreement, actor, action,
			amount, fee, reason, request_id
		)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		ON CONFLICT (id) DO NOTHING
	`
	_, err := txcontext.Exec(ctx, s.db).ExecContext(ctx, query,
		event.ID,
		string(event.Category),
		event.Timestamp,
		event.Agreement,
		event.Actor,
		event.Action,
		strconv.FormatUint(event.Amount, 10),
		strconv.FormatUint(event.Fee, 10),
		event.Reason,
		event.RequestID,
	)
	if err != nil {
		return fmt.Errorf("insert agreement event: %w", err)
	}
	return nil
}

// ListByAgreement returns events for one agreement, oldest first.
func (s *Store) ListByAgreement(ctx context.Context, agreement string) ([]audit.Event, error) {
	query := `
		SELECT id, category, occurred_at, agreement, actor, action,
			   amount, fee, reason, request_id
		FROM agreement_events
		WHERE agreement = $1
		ORDER BY occurred_at ASC, id ASC
	`
	rows, err := txcontext.Exec(ctx, s.db).QueryContext(ctx, query, agreement)
	if err != nil {
		return nil, fmt.Errorf("query agreement events: %w", err)
	}
	defer rows.Close()

	var events []audit.Event
	for rows.Next() {
		var (
			event       audit.Event
			category    string
			amount, fee string
		)
		if err := rows.Scan(
			&event.ID,
			&category,
			&event.Timestamp,
			&event.Agreement,
			&event.Actor,
			&event.Action,
			&amount,
			&fee,
			&event.Reason,
			&event.RequestID,
		); err != nil {
			return nil, fmt.Errorf("scan agreement event: %w", err)
		}
		event.Category = audit.EventCategory(category)
		if event.Amount, err = strconv.ParseUint(amount, 10, 64); err != nil {
			return nil, fmt.Errorf("parse event amount: %w", err)
		}
		if event.Fee, err = strconv.ParseUint(fee, 10, 64); err != nil {
			return nil, fmt.Errorf("parse event fee: %w", err)
		}
		events = append(events, event)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate agreement events: %w", err)
	}
	return events, nil
}
