package postgres

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"

	id "certreg/pkg/domain"
	audit "certreg/pkg/platform/audit"
)

// LogStore implements audit.Store over the audit_log table. It is the sink
// of the audit consumer, so appends are idempotent on the event id and
// Kafka redelivery never duplicates a row.
type LogStore struct {
	db *sql.DB
}

func NewLogStore(db *sql.DB) *LogStore {
	return &LogStore{db: db}
}

func (s *LogStore) Append(ctx context.Context, event audit.Event) error {
	eventID, err := uuid.Parse(event.ID)
	if err != nil {
		return fmt.Errorf("parse audit event id: %w", err)
	}

	var certID sql.NullInt64
	if event.CertificateID != nil {
		certID = sql.NullInt64{Int64: int64(*event.CertificateID), Valid: true}
	}

	query := `
		INSERT INTO audit_log (event_id, action, category, actor, certificate_id,
			from_principal, to_principal, course, grade, request_id, client_ip, occurred_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
		ON CONFLICT (event_id) DO NOTHING
	`
	_, err = s.db.ExecContext(ctx, query,
		eventID,
		string(event.Action),
		string(event.Action.Category()),
		event.Actor.String(),
		certID,
		event.From.String(),
		event.To.String(),
		event.Course,
		event.Grade,
		event.RequestID,
		event.ClientIP,
		event.Timestamp,
	)
	if err != nil {
		return fmt.Errorf("insert audit log entry: %w", err)
	}
	return nil
}

// ListByCertificate returns the recorded history of one certificate,
// oldest first.
func (s *LogStore) ListByCertificate(ctx context.Context, certID uint64) ([]audit.Event, error) {
	query := `
		SELECT event_id, action, actor, certificate_id, from_principal, to_principal,
			course, grade, request_id, client_ip, occurred_at
		FROM audit_log
		WHERE certificate_id = $1
		ORDER BY occurred_at, recorded_at
	`
	rows, err := s.db.QueryContext(ctx, query, int64(certID))
	if err != nil {
		return nil, fmt.Errorf("query audit log: %w", err)
	}
	defer rows.Close()

	var events []audit.Event
	for rows.Next() {
		event, err := scanLogRow(rows)
		if err != nil {
			return nil, err
		}
		events = append(events, event)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate audit log: %w", err)
	}
	return events, nil
}

func scanLogRow(rows *sql.Rows) (audit.Event, error) {
	var (
		eventID    uuid.UUID
		action     string
		actor      string
		certID     sql.NullInt64
		from, to   string
		course     string
		grade      string
		requestID  string
		clientIP   string
		occurredAt time.Time
	)
	if err := rows.Scan(&eventID, &action, &actor, &certID, &from, &to, &course, &grade, &requestID, &clientIP, &occurredAt); err != nil {
		return audit.Event{}, fmt.Errorf("scan audit log row: %w", err)
	}
	event := audit.Event{
		ID:        eventID.String(),
		Action:    audit.AuditEvent(action),
		Category:  audit.AuditEvent(action).Category(),
		Timestamp: occurredAt,
		Actor:     id.Principal(actor),
		From:      id.Principal(from),
		To:        id.Principal(to),
		Course:    course,
		Grade:     grade,
		RequestID: requestID,
		ClientIP:  clientIP,
	}
	if certID.Valid {
		v := id.CertificateID(certID.Int64)
		event.CertificateID = &v
	}
	return event, nil
}
