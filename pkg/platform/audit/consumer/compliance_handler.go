package consumer

import (
	"context"
	"fmt"
	"log/slog"

	"certreg/internal/platform/kafka/consumer"
	audit "certreg/pkg/platform/audit"
)

// ComplianceHandler records issuance and ownership events in the audit log.
type ComplianceHandler struct {
	store  audit.Store
	logger *slog.Logger
}

// NewComplianceHandler creates a compliance event handler.
func NewComplianceHandler(store audit.Store, logger *slog.Logger) *ComplianceHandler {
	return &ComplianceHandler{
		store:  store,
		logger: logger,
	}
}

// Handle processes a compliance audit event.
func (h *ComplianceHandler) Handle(ctx context.Context, msg *consumer.Message) error {
	event, err := audit.DecodePayload(msg.Value)
	if err != nil {
		h.logger.Error("CRITICAL: failed to decode compliance payload",
			"key", string(msg.Key),
			"offset", msg.Offset,
			"error", err,
		)
		// Return nil to commit - malformed messages should not block
		return nil
	}

	// Every compliance event concerns one certificate
	if event.CertificateID == nil {
		h.logger.Error("CRITICAL: compliance event missing certificate id",
			"event_id", event.ID,
			"action", event.Action,
		)
		return nil
	}

	if err := h.store.Append(ctx, event); err != nil {
		h.logger.Error("failed to store compliance event",
			"event_id", event.ID,
			"action", event.Action,
			"error", err,
		)
		return fmt.Errorf("store compliance event: %w", err)
	}

	h.logger.Debug("stored compliance event",
		"event_id", event.ID,
		"action", event.Action,
		"certificate_id", event.CertificateID.String(),
	)
	return nil
}
