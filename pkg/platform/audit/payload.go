package audit

import (
	"encoding/json"
	"fmt"
	"time"

	id "certreg/pkg/domain"
)

// Payload is the JSON document written to the outbox and published to Kafka.
type Payload struct {
	ID            string  `json:"id"`
	Action        string  `json:"action"`
	Category      string  `json:"category"`
	Timestamp     string  `json:"timestamp"`
	Actor         string  `json:"actor"`
	CertificateID *uint64 `json:"certificate_id,omitempty"`
	From          string  `json:"from,omitempty"`
	To            string  `json:"to,omitempty"`
	Course        string  `json:"course,omitempty"`
	Grade         string  `json:"grade,omitempty"`
	RequestID     string  `json:"request_id,omitempty"`
	ClientIP      string  `json:"client_ip,omitempty"`
}

// NewPayload converts an event to its wire form.
func NewPayload(event Event) Payload {
	p := Payload{
		ID:        event.ID,
		Action:    string(event.Action),
		Category:  string(event.Action.Category()),
		Timestamp: event.Timestamp.UTC().Format(time.RFC3339Nano),
		Actor:     event.Actor.String(),
		From:      event.From.String(),
		To:        event.To.String(),
		Course:    event.Course,
		Grade:     event.Grade,
		RequestID: event.RequestID,
		ClientIP:  event.ClientIP,
	}
	if event.CertificateID != nil {
		v := uint64(*event.CertificateID)
		p.CertificateID = &v
	}
	return p
}

// DecodePayload parses a published payload back into an Event.
func DecodePayload(data []byte) (Event, error) {
	var p Payload
	if err := json.Unmarshal(data, &p); err != nil {
		return Event{}, fmt.Errorf("unmarshal audit payload: %w", err)
	}
	if p.Action == "" {
		return Event{}, fmt.Errorf("audit payload %q has no action", p.ID)
	}
	ts, err := time.Parse(time.RFC3339Nano, p.Timestamp)
	if err != nil {
		return Event{}, fmt.Errorf("parse audit timestamp: %w", err)
	}

	action := AuditEvent(p.Action)
	event := Event{
		ID:        p.ID,
		Action:    action,
		Category:  action.Category(),
		Timestamp: ts,
		Actor:     id.Principal(p.Actor),
		From:      id.Principal(p.From),
		To:        id.Principal(p.To),
		Course:    p.Course,
		Grade:     p.Grade,
		RequestID: p.RequestID,
		ClientIP:  p.ClientIP,
	}
	if p.CertificateID != nil {
		certID := id.CertificateID(*p.CertificateID)
		event.CertificateID = &certID
	}
	return event, nil
}
