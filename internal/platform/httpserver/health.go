package httpserver

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"go.uber.org/atomic"
)

// Checker reports whether a dependency can serve traffic.
type Checker func(ctx context.Context) error

// Health serves liveness and readiness. Readiness fails while draining or
// when any checker fails.
type Health struct {
	isReady  atomic.Bool
	checkers map[string]Checker
	timeout  time.Duration
	log      *slog.Logger
}

func NewHealth(log *slog.Logger, checkers map[string]Checker) *Health {
	h := &Health{
		checkers: checkers,
		timeout:  2 * time.Second,
		log:      log,
	}
	h.isReady.Store(true)
	return h
}

// Register mounts /livez and /readyz.
func (h *Health) Register(r chi.Router) {
	r.Get("/livez", h.handleLivenessCheck)
	r.Get("/readyz", h.handleReadinessCheck)
}

// RegisterDrain mounts /drain and /undrain. Callers put it behind operator
// authentication.
func (h *Health) RegisterDrain(r chi.Router) {
	r.Get("/drain", h.handleDrain)
	r.Get("/undrain", h.handleUndrain)
}

// Drain marks the server as not ready so load balancers stop routing to it.
func (h *Health) Drain() {
	h.isReady.Store(false)
}

func (h *Health) handleLivenessCheck(w http.ResponseWriter, _ *http.Request) {
	writeStatus(w, http.StatusOK, "alive")
}

func (h *Health) handleReadinessCheck(w http.ResponseWriter, r *http.Request) {
	if !h.isReady.Load() {
		writeStatus(w, http.StatusServiceUnavailable, "not ready")
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), h.timeout)
	defer cancel()
	for name, check := range h.checkers {
		if err := check(ctx); err != nil {
			h.log.WarnContext(ctx, "readiness check failed", "dependency", name, "error", err)
			writeStatus(w, http.StatusServiceUnavailable, "not ready")
			return
		}
	}
	writeStatus(w, http.StatusOK, "ready")
}

func (h *Health) handleDrain(w http.ResponseWriter, _ *http.Request) {
	if !h.isReady.Swap(false) {
		writeStatus(w, http.StatusOK, "already draining")
		return
	}
	h.log.Info("server marked as not ready")
	writeStatus(w, http.StatusOK, "draining")
}

func (h *Health) handleUndrain(w http.ResponseWriter, _ *http.Request) {
	if h.isReady.Swap(true) {
		writeStatus(w, http.StatusOK, "already ready")
		return
	}
	h.log.Info("server marked as ready")
	writeStatus(w, http.StatusOK, "ready")
}

func writeStatus(w http.ResponseWriter, status int, msg string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_, _ = w.Write([]byte(`{"status":"` + msg + `"}`))
}
