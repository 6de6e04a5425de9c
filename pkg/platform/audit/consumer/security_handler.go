package consumer

import (
	"context"
	"fmt"
	"log/slog"

	"certreg/internal/platform/kafka/consumer"
	audit "certreg/pkg/platform/audit"
)

// SecurityHandler records admin changes in the audit log and surfaces them
// at warn level for alerting.
type SecurityHandler struct {
	store  audit.Store
	logger *slog.Logger
}

// NewSecurityHandler creates a security event handler.
func NewSecurityHandler(store audit.Store, logger *slog.Logger) *SecurityHandler {
	return &SecurityHandler{
		store:  store,
		logger: logger,
	}
}

// Handle processes a security audit event.
func (h *SecurityHandler) Handle(ctx context.Context, msg *consumer.Message) error {
	event, err := audit.DecodePayload(msg.Value)
	if err != nil {
		h.logger.Warn("failed to decode security payload",
			"key", string(msg.Key),
			"error", err,
		)
		return nil
	}

	if err := h.store.Append(ctx, event); err != nil {
		h.logger.Error("failed to store security event",
			"event_id", event.ID,
			"action", event.Action,
			"error", err,
		)
		return fmt.Errorf("store security event: %w", err)
	}

	if event.Action == audit.EventAdminChanged {
		h.logger.Warn("registry admin changed",
			"event_id", event.ID,
			"from", event.From,
			"to", event.To,
			"actor", event.Actor,
			"request_id", event.RequestID,
		)
	}
	return nil
}
