package consumer

import (
	"context"
	"log/slog"

	"certreg/internal/platform/kafka/consumer"
)

// HeaderCategory carries the audit category of a published event.
const HeaderCategory = "category"

// CategoryHandler handles messages of one audit category.
type CategoryHandler interface {
	Handle(ctx context.Context, msg *consumer.Message) error
}

// Router dispatches messages to category-specific handlers.
type Router struct {
	handlers map[string]CategoryHandler
	fallback CategoryHandler
	logger   *slog.Logger
}

// NewRouter creates a category router with an optional fallback handler.
func NewRouter(logger *slog.Logger, fallback CategoryHandler) *Router {
	return &Router{
		handlers: make(map[string]CategoryHandler),
		fallback: fallback,
		logger:   logger,
	}
}

// Register adds a handler for a category.
func (r *Router) Register(category string, handler CategoryHandler) {
	r.handlers[category] = handler
}

// Handle routes the message to the handler registered for its category.
func (r *Router) Handle(ctx context.Context, msg *consumer.Message) error {
	handler, ok := r.handlers[msg.Header(HeaderCategory)]
	if !ok {
		if r.fallback != nil {
			return r.fallback.Handle(ctx, msg)
		}
		r.logger.Warn("no handler for audit category, skipping message",
			"category", msg.Header(HeaderCategory),
			"key", string(msg.Key),
		)
		return nil // Commit to avoid redelivery
	}
	return handler.Handle(ctx, msg)
}
