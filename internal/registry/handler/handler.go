package handler

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"certreg/internal/registry/models"
	id "certreg/pkg/domain"
	dErrors "certreg/pkg/domain-errors"
	"certreg/pkg/platform/httputil"
	authmw "certreg/pkg/platform/middleware/auth"
	"certreg/pkg/requestcontext"
)

// Service defines the registry operations exposed over HTTP.
type Service interface {
	Mint(ctx context.Context, caller, recipient id.Principal, course, grade string) (id.CertificateID, error)
	Transfer(ctx context.Context, caller id.Principal, certID id.CertificateID, sender, recipient id.Principal) error
	SetAdmin(ctx context.Context, caller, newAdmin id.Principal) error
	GetCertificate(ctx context.Context, certID id.CertificateID) (*models.Certificate, bool, error)
	GetOwner(ctx context.Context, certID id.CertificateID) (id.Principal, bool, error)
	GetAdmin(ctx context.Context) (id.Principal, error)
	TotalCertificates(ctx context.Context) (uint64, error)
}

// Handler serves the registry endpoints.
type Handler struct {
	logger       *slog.Logger
	registry     Service
	jwtValidator authmw.JWTValidator
}

func New(registry Service, logger *slog.Logger, jwtValidator authmw.JWTValidator) *Handler {
	return &Handler{
		logger:       logger,
		registry:     registry,
		jwtValidator: jwtValidator,
	}
}

// Register mounts the registry routes. Queries are public; mutations
// require a bearer token whose subject is the caller.
func (h *Handler) Register(r chi.Router) {
	r.Get("/certificates/total", h.handleTotalCertificates)
	r.Get("/certificates/{id}", h.handleGetCertificate)
	r.Get("/certificates/{id}/owner", h.handleGetOwner)
	r.Get("/admin", h.handleGetAdmin)

	r.Group(func(r chi.Router) {
		r.Use(authmw.RequireCaller(h.jwtValidator, h.logger))
		r.Post("/certificates", h.handleMint)
		r.Post("/certificates/{id}/transfer", h.handleTransfer)
		r.Put("/admin", h.handleSetAdmin)
	})
}

type mintRequest struct {
	Recipient string `json:"recipient"`
	Course    string `json:"course"`
	Grade     string `json:"grade"`
}

type transferRequest struct {
	Sender    string `json:"sender"`
	Recipient string `json:"recipient"`
}

type setAdminRequest struct {
	Admin string `json:"admin"`
}

type mintResponse struct {
	ID id.CertificateID `json:"id"`
}

type resultResponse struct {
	Result bool `json:"result"`
}

type certificateResponse struct {
	Found bool `json:"found"`
	*models.Certificate
}

type ownerResponse struct {
	Found bool         `json:"found"`
	Owner id.Principal `json:"owner,omitempty"`
}

type adminResponse struct {
	Admin id.Principal `json:"admin"`
}

type totalResponse struct {
	Total uint64 `json:"total"`
}

func (h *Handler) handleMint(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	caller, ok := h.caller(w, r)
	if !ok {
		return
	}

	var req mintRequest
	if err := httputil.DecodeJSON(r, &req); err != nil {
		h.writeError(ctx, w, "mint", err)
		return
	}

	certID, err := h.registry.Mint(ctx, caller, id.Principal(req.Recipient), req.Course, req.Grade)
	if err != nil {
		h.writeError(ctx, w, "mint", err)
		return
	}
	httputil.WriteJSON(w, http.StatusCreated, mintResponse{ID: certID})
}

func (h *Handler) handleTransfer(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	caller, ok := h.caller(w, r)
	if !ok {
		return
	}
	certID, err := id.ParseCertificateID(chi.URLParam(r, "id"))
	if err != nil {
		h.writeError(ctx, w, "transfer", err)
		return
	}

	var req transferRequest
	if err := httputil.DecodeJSON(r, &req); err != nil {
		h.writeError(ctx, w, "transfer", err)
		return
	}

	err = h.registry.Transfer(ctx, caller, certID, id.Principal(req.Sender), id.Principal(req.Recipient))
	if err != nil {
		h.writeError(ctx, w, "transfer", err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, resultResponse{Result: true})
}

func (h *Handler) handleSetAdmin(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	caller, ok := h.caller(w, r)
	if !ok {
		return
	}

	var req setAdminRequest
	if err := httputil.DecodeJSON(r, &req); err != nil {
		h.writeError(ctx, w, "set_admin", err)
		return
	}

	if err := h.registry.SetAdmin(ctx, caller, id.Principal(req.Admin)); err != nil {
		h.writeError(ctx, w, "set_admin", err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, resultResponse{Result: true})
}

func (h *Handler) handleGetCertificate(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	certID, err := id.ParseCertificateID(chi.URLParam(r, "id"))
	if err != nil {
		h.writeError(ctx, w, "get_certificate", err)
		return
	}

	cert, found, err := h.registry.GetCertificate(ctx, certID)
	if err != nil {
		h.writeError(ctx, w, "get_certificate", err)
		return
	}
	if !found {
		httputil.WriteJSON(w, http.StatusNotFound, certificateResponse{Found: false})
		return
	}
	httputil.WriteJSON(w, http.StatusOK, certificateResponse{Found: true, Certificate: cert})
}

func (h *Handler) handleGetOwner(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	certID, err := id.ParseCertificateID(chi.URLParam(r, "id"))
	if err != nil {
		h.writeError(ctx, w, "get_owner", err)
		return
	}

	owner, found, err := h.registry.GetOwner(ctx, certID)
	if err != nil {
		h.writeError(ctx, w, "get_owner", err)
		return
	}
	if !found {
		httputil.WriteJSON(w, http.StatusNotFound, ownerResponse{Found: false})
		return
	}
	httputil.WriteJSON(w, http.StatusOK, ownerResponse{Found: true, Owner: owner})
}

func (h *Handler) handleGetAdmin(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	admin, err := h.registry.GetAdmin(ctx)
	if err != nil {
		h.writeError(ctx, w, "get_admin", err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, adminResponse{Admin: admin})
}

func (h *Handler) handleTotalCertificates(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	total, err := h.registry.TotalCertificates(ctx)
	if err != nil {
		h.writeError(ctx, w, "total_certificates", err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, totalResponse{Total: total})
}

// caller reads the principal set by RequireCaller.
func (h *Handler) caller(w http.ResponseWriter, r *http.Request) (id.Principal, bool) {
	caller, ok := requestcontext.Caller(r.Context())
	if !ok {
		// RequireCaller guards every route that calls this.
		h.logger.ErrorContext(r.Context(), "caller missing from context despite auth middleware",
			"request_id", requestcontext.RequestID(r.Context()),
		)
		httputil.WriteError(w, dErrors.New(dErrors.CodeInternal, "authentication context error"))
		return "", false
	}
	return caller, true
}

func (h *Handler) writeError(ctx context.Context, w http.ResponseWriter, op string, err error) {
	requestID := requestcontext.RequestID(ctx)
	if httputil.StatusFor(dErrors.CodeOf(err)) >= http.StatusInternalServerError {
		h.logger.ErrorContext(ctx, "registry request failed",
			"operation", op,
			"request_id", requestID,
			"error", err,
		)
	} else {
		h.logger.InfoContext(ctx, "registry request rejected",
			"operation", op,
			"request_id", requestID,
			"code", dErrors.CodeOf(err),
		)
	}

	var registryCode *uint32
	if rc, ok := models.RegistryCodeOf(err); ok {
		v := uint32(rc)
		registryCode = &v
	}
	httputil.WriteErrorWithCode(w, err, registryCode)
}
