package audit

import (
	"context"
	"time"

	id "certreg/pkg/domain"
)

// EventCategory classifies audit events by their primary purpose so sinks
// can apply different retention.
type EventCategory string

const (
	// CategoryCompliance covers issuance and ownership history.
	CategoryCompliance EventCategory = "compliance"
	// CategorySecurity covers changes to who may administer the registry.
	CategorySecurity EventCategory = "security"
)

type AuditEvent string

const (
	EventCertificateMinted      AuditEvent = "certificate_minted"
	EventCertificateTransferred AuditEvent = "certificate_transferred"
	EventAdminChanged           AuditEvent = "admin_changed"
)

var eventCategories = map[AuditEvent]EventCategory{
	EventCertificateMinted:      CategoryCompliance,
	EventCertificateTransferred: CategoryCompliance,
	EventAdminChanged:           CategorySecurity,
}

// Category returns the category of the event, defaulting to compliance.
func (e AuditEvent) Category() EventCategory {
	if c, ok := eventCategories[e]; ok {
		return c
	}
	return CategoryCompliance
}

// Event records one successful registry mutation.
type Event struct {
	ID        string
	Action    AuditEvent
	Category  EventCategory
	Timestamp time.Time
	// Actor is the authenticated caller that performed the action.
	Actor id.Principal
	// CertificateID is set for mint and transfer events.
	CertificateID *id.CertificateID
	// From and To are the previous and new owner (transfer) or admin
	// (admin change). From is empty for mints.
	From      id.Principal
	To        id.Principal
	Course    string
	Grade     string
	RequestID string
	ClientIP  string
}

// AggregateID is the key events are partitioned by downstream: the
// certificate id, or "admin" for admin changes.
func (e Event) AggregateID() string {
	if e.CertificateID != nil {
		return e.CertificateID.String()
	}
	return "admin"
}

// AggregateType names the entity AggregateID refers to.
func (e Event) AggregateType() string {
	if e.CertificateID != nil {
		return "certificate"
	}
	return "registry"
}

// Store persists audit events. Append must join the transaction carried by
// ctx when the backend supports it.
type Store interface {
	Append(ctx context.Context, event Event) error
}
