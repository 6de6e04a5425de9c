// Package service implements the certificate registry operations. Every
// mutation runs in a single store transaction: authorization and validation
// happen first, then writes, then the audit event, and nothing is visible
// unless all of them succeed.
package service

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"certreg/internal/registry/allocator"
	"certreg/internal/registry/guard"
	"certreg/internal/registry/metrics"
	"certreg/internal/registry/models"
	"certreg/internal/registry/store"
	id "certreg/pkg/domain"
	dErrors "certreg/pkg/domain-errors"
	audit "certreg/pkg/platform/audit"
	"certreg/pkg/platform/sentinel"
	"certreg/pkg/requestcontext"
)

const tracerName = "certreg/internal/registry/service"

// Store is the registry persistence port.
type Store interface {
	Get(ctx context.Context, certID id.CertificateID) (*models.Certificate, error)
	NextID(ctx context.Context) (id.CertificateID, error)
	Admin(ctx context.Context) (id.Principal, error)
	RunInTx(ctx context.Context, fn func(ctx context.Context, tx store.Tx) error) error
}

// AuditPublisher records one event per committed mutation. Emit runs inside
// the store transaction and its failure aborts the mutation.
type AuditPublisher interface {
	Emit(ctx context.Context, event audit.Event) error
}

// Service orchestrates registry operations.
type Service struct {
	store   Store
	auditor AuditPublisher
	logger  *slog.Logger
	metrics *metrics.Metrics
	tracer  trace.Tracer
}

type Option func(*Service)

func WithLogger(logger *slog.Logger) Option {
	return func(s *Service) {
		s.logger = logger
	}
}

func WithAuditPublisher(publisher AuditPublisher) Option {
	return func(s *Service) {
		s.auditor = publisher
	}
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(s *Service) {
		s.metrics = m
	}
}

func WithTracer(tracer trace.Tracer) Option {
	return func(s *Service) {
		s.tracer = tracer
	}
}

func New(st Store, opts ...Option) (*Service, error) {
	if st == nil {
		return nil, errors.New("registry store is required")
	}
	s := &Service{store: st}
	for _, opt := range opts {
		opt(s)
	}
	if s.logger == nil {
		s.logger = slog.New(slog.DiscardHandler)
	}
	if s.tracer == nil {
		s.tracer = otel.Tracer(tracerName)
	}
	return s, nil
}

// Mint issues a new certificate to recipient and returns its id.
//
// Checks run in order: caller is admin (NotAdmin), course is non-empty
// (InvalidCourse), course/grade/recipient shape (InvalidInput). Grade may be
// empty.
func (s *Service) Mint(ctx context.Context, caller, recipient id.Principal, course, grade string) (certID id.CertificateID, err error) {
	ctx, span := s.tracer.Start(ctx, "registry.Mint", trace.WithAttributes(
		attribute.String("registry.caller", caller.String()),
		attribute.String("registry.recipient", recipient.String()),
	))
	start := time.Now()
	defer func() { s.finish(ctx, span, "mint", start, err) }()

	var total id.CertificateID
	err = s.store.RunInTx(ctx, func(ctx context.Context, tx store.Tx) error {
		admin, err := tx.Admin(ctx)
		if err != nil {
			return dErrors.Wrap(err, dErrors.CodeInternal, "failed to load admin")
		}
		if err := guard.RequireAdmin(caller, admin); err != nil {
			return err
		}
		if course == "" {
			return dErrors.New(dErrors.CodeInvalidCourse, "course cannot be empty")
		}
		if err := models.ValidateMetadata(course, grade); err != nil {
			return err
		}
		if err := recipient.Validate(); err != nil {
			return dErrors.Wrap(err, dErrors.CodeInvalidInput, "invalid recipient")
		}

		next, err := allocator.Allocate(ctx, tx)
		if err != nil {
			return dErrors.Wrap(err, dErrors.CodeInternal, "failed to allocate certificate id")
		}
		cert, err := models.NewCertificate(next, course, grade, recipient, caller, requestcontext.Now(ctx))
		if err != nil {
			return err
		}
		if err := tx.Insert(ctx, cert); err != nil {
			if errors.Is(err, sentinel.ErrConflict) {
				return dErrors.Wrap(err, dErrors.CodeDuplicateID, "certificate id already exists")
			}
			return dErrors.Wrap(err, dErrors.CodeInternal, "failed to store certificate")
		}

		if err := s.emit(ctx, audit.Event{
			Action:        audit.EventCertificateMinted,
			Actor:         caller,
			CertificateID: &cert.ID,
			To:            recipient,
			Course:        course,
			Grade:         grade,
		}); err != nil {
			return err
		}
		certID = cert.ID
		total = next + 1
		return nil
	})
	if err != nil {
		return 0, toDomainError(err)
	}

	span.SetAttributes(attribute.Int64("registry.certificate_id", int64(certID)))
	s.metrics.IncrementMinted(uint64(total))
	s.logger.InfoContext(ctx, "certificate minted",
		"certificate_id", certID,
		"recipient", recipient,
		"issued_by", caller,
		"request_id", requestcontext.RequestID(ctx),
	)
	return certID, nil
}

// Transfer moves certificate certID from sender to recipient.
//
// The certificate must exist (NotFound), and the caller must be the sender
// and the sender the current owner (Unauthorized). Transferring to the
// current owner is accepted.
func (s *Service) Transfer(ctx context.Context, caller id.Principal, certID id.CertificateID, sender, recipient id.Principal) (err error) {
	ctx, span := s.tracer.Start(ctx, "registry.Transfer", trace.WithAttributes(
		attribute.String("registry.caller", caller.String()),
		attribute.Int64("registry.certificate_id", int64(certID)),
		attribute.String("registry.recipient", recipient.String()),
	))
	start := time.Now()
	defer func() { s.finish(ctx, span, "transfer", start, err) }()

	err = s.store.RunInTx(ctx, func(ctx context.Context, tx store.Tx) error {
		cert, err := tx.Get(ctx, certID)
		if err != nil {
			if errors.Is(err, sentinel.ErrNotFound) {
				return dErrors.New(dErrors.CodeNotFound, "certificate not found")
			}
			return dErrors.Wrap(err, dErrors.CodeInternal, "failed to load certificate")
		}
		if err := guard.RequireOwner(caller, sender, cert); err != nil {
			return err
		}
		if err := recipient.Validate(); err != nil {
			return dErrors.Wrap(err, dErrors.CodeInvalidInput, "invalid recipient")
		}

		if err := tx.SetOwner(ctx, certID, recipient, requestcontext.Now(ctx)); err != nil {
			if errors.Is(err, sentinel.ErrNotFound) {
				return dErrors.New(dErrors.CodeNotFound, "certificate not found")
			}
			return dErrors.Wrap(err, dErrors.CodeInternal, "failed to update owner")
		}

		return s.emit(ctx, audit.Event{
			Action:        audit.EventCertificateTransferred,
			Actor:         caller,
			CertificateID: &certID,
			From:          sender,
			To:            recipient,
		})
	})
	if err != nil {
		return toDomainError(err)
	}

	s.metrics.IncrementTransfers()
	s.logger.InfoContext(ctx, "certificate transferred",
		"certificate_id", certID,
		"from", sender,
		"to", recipient,
		"request_id", requestcontext.RequestID(ctx),
	)
	return nil
}

// SetAdmin replaces the administrator. Only the current admin may call it.
func (s *Service) SetAdmin(ctx context.Context, caller, newAdmin id.Principal) (err error) {
	ctx, span := s.tracer.Start(ctx, "registry.SetAdmin", trace.WithAttributes(
		attribute.String("registry.caller", caller.String()),
		attribute.String("registry.new_admin", newAdmin.String()),
	))
	start := time.Now()
	defer func() { s.finish(ctx, span, "set_admin", start, err) }()

	err = s.store.RunInTx(ctx, func(ctx context.Context, tx store.Tx) error {
		admin, err := tx.Admin(ctx)
		if err != nil {
			return dErrors.Wrap(err, dErrors.CodeInternal, "failed to load admin")
		}
		if err := guard.RequireAdmin(caller, admin); err != nil {
			return err
		}
		if err := newAdmin.Validate(); err != nil {
			return dErrors.Wrap(err, dErrors.CodeInvalidInput, "invalid admin")
		}
		if err := tx.SetAdmin(ctx, newAdmin); err != nil {
			return dErrors.Wrap(err, dErrors.CodeInternal, "failed to update admin")
		}
		return s.emit(ctx, audit.Event{
			Action: audit.EventAdminChanged,
			Actor:  caller,
			From:   admin,
			To:     newAdmin,
		})
	})
	if err != nil {
		return toDomainError(err)
	}

	s.metrics.IncrementAdminChanges()
	s.logger.InfoContext(ctx, "registry admin changed",
		"previous_admin", caller,
		"new_admin", newAdmin,
		"request_id", requestcontext.RequestID(ctx),
	)
	return nil
}

// GetCertificate returns the certificate and true, or nil and false when no
// certificate has that id.
func (s *Service) GetCertificate(ctx context.Context, certID id.CertificateID) (*models.Certificate, bool, error) {
	cert, err := s.store.Get(ctx, certID)
	if err != nil {
		if errors.Is(err, sentinel.ErrNotFound) {
			return nil, false, nil
		}
		return nil, false, dErrors.Wrap(err, dErrors.CodeInternal, "failed to load certificate")
	}
	return cert, true, nil
}

// GetOwner returns the current owner and true, or false for unknown ids.
func (s *Service) GetOwner(ctx context.Context, certID id.CertificateID) (id.Principal, bool, error) {
	cert, found, err := s.GetCertificate(ctx, certID)
	if err != nil || !found {
		return "", false, err
	}
	return cert.Owner, true, nil
}

func (s *Service) GetAdmin(ctx context.Context) (id.Principal, error) {
	admin, err := s.store.Admin(ctx)
	if err != nil {
		return "", dErrors.Wrap(err, dErrors.CodeInternal, "failed to load admin")
	}
	return admin, nil
}

// TotalCertificates returns the number of certificates ever minted, which
// is also the next id to be assigned.
func (s *Service) TotalCertificates(ctx context.Context) (uint64, error) {
	next, err := s.store.NextID(ctx)
	if err != nil {
		return 0, dErrors.Wrap(err, dErrors.CodeInternal, "failed to load certificate count")
	}
	return uint64(next), nil
}

func (s *Service) emit(ctx context.Context, event audit.Event) error {
	if s.auditor == nil {
		return nil
	}
	if err := s.auditor.Emit(ctx, event); err != nil {
		return dErrors.Wrap(err, dErrors.CodeInternal, "failed to record audit event")
	}
	return nil
}

func (s *Service) finish(ctx context.Context, span trace.Span, op string, start time.Time, err error) {
	result := "ok"
	if err != nil {
		code := dErrors.CodeOf(err)
		result = string(code)
		span.SetAttributes(attribute.String("registry.error_code", result))
		if rc, ok := models.RegistryCodeOf(err); ok {
			span.SetAttributes(attribute.Int64("registry.code", int64(rc)))
		}
		if code == dErrors.CodeInternal || code == dErrors.CodeTimeout {
			span.RecordError(err)
			span.SetStatus(codes.Error, "registry operation failed")
			s.logger.ErrorContext(ctx, "registry operation failed",
				"operation", op,
				"error", err,
				"request_id", requestcontext.RequestID(ctx),
			)
		} else {
			s.logger.DebugContext(ctx, "registry operation rejected",
				"operation", op,
				"code", result,
				"request_id", requestcontext.RequestID(ctx),
			)
		}
	}
	s.metrics.ObserveOperation(op, result, time.Since(start))
	span.End()
}

// toDomainError passes coded errors through and classifies the rest, which
// come from the transaction boundary itself, as internal.
func toDomainError(err error) error {
	var de *dErrors.Error
	if errors.As(err, &de) {
		return err
	}
	if errors.Is(err, sentinel.ErrUninitialized) {
		return dErrors.Wrap(err, dErrors.CodeInternal, "registry is not initialized")
	}
	return dErrors.Wrap(err, dErrors.CodeInternal, "registry transaction failed")
}
