package audit

import (
	"time"

	"github.com/google/uuid"
)

// EventCategory classifies audit events by their primary purpose so stores can
// apply different retention policies.
type EventCategory string

const (
	// CategoryCustody covers movements of escrowed value and agreement lifecycle
	// changes. These are kept for the life of the deployment.
	CategoryCustody EventCategory = "custody"

	// CategorySecurity covers rejected calls that touched authority checks.
	CategorySecurity EventCategory = "security"

	// CategoryOperations covers routine configuration changes.
	CategoryOperations EventCategory = "operations"
)

// Event is emitted from the agreement service after a call commits (or, for
// security events, after it is rejected). Keep it transport-agnostic so stores
// and sinks can fan out.
type Event struct {
	ID        uuid.UUID
	Category  EventCategory
	Timestamp time.Time
	// Agreement is the derived authority address of the agreement, base58.
	Agreement string
	// Actor is the authenticated principal that made the call, base58.
	Actor     string
	Action    string
	Amount    uint64
	Fee       uint64
	Reason    string
	RequestID string
}

type AuditEvent string

const (
	EventAgreementInitialized AuditEvent = "agreement_initialized"
	EventAgreementUpdated     AuditEvent = "agreement_updated"
	EventAgreementClosed      AuditEvent = "agreement_closed"
	EventEscrowToppedUp       AuditEvent = "escrow_topped_up"
	EventTokensClaimed        AuditEvent = "tokens_claimed"
	EventAuthorityRejected    AuditEvent = "authority_rejected"
	EventCustodyMismatch      AuditEvent = "custody_mismatch"
)

var eventCategories = map[AuditEvent]EventCategory{
	EventAgreementInitialized: CategoryCustody,
	EventAgreementClosed:      CategoryCustody,
	EventEscrowToppedUp:       CategoryCustody,
	EventTokensClaimed:        CategoryCustody,

	EventAuthorityRejected: CategorySecurity,
	EventCustodyMismatch:   CategorySecurity,

	EventAgreementUpdated: CategoryOperations,
}

// Category returns the EventCategory for this audit event.
// Unknown events default to CategoryOperations.
func (e AuditEvent) Category() EventCategory {
	if cat, ok := eventCategories[e]; ok {
		return cat
	}
	return CategoryOperations
}

// Normalize fills the derived fields of an event before it is stored.
func (e Event) Normalize(now time.Time) Event {
	if e.ID == uuid.Nil {
		e.ID = uuid.New()
	}
	if e.Timestamp.IsZero() {
		e.Timestamp = now
	}
	e.Category = AuditEvent(e.Action).Category()
	return e
}
