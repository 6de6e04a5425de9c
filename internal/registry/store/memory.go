package store

import (
	"context"
	"sync"
	"time"

	"certreg/internal/registry/models"
	id "certreg/pkg/domain"
	dErrors "certreg/pkg/domain-errors"
	"certreg/pkg/platform/sentinel"
)

type memState struct {
	initialized bool
	admin       id.Principal
	nextID      id.CertificateID
	certs       map[id.CertificateID]*models.Certificate
}

// InMemory keeps registry state in process memory. A transaction holds the
// writer lock and stages its writes in an overlay that is applied only when
// the callback returns nil.
type InMemory struct {
	mu    sync.RWMutex
	state memState
}

func NewInMemory() *InMemory {
	return &InMemory{state: memState{certs: make(map[id.CertificateID]*models.Certificate)}}
}

func (s *InMemory) Bootstrap(_ context.Context, admin id.Principal) error {
	if err := admin.Validate(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state.initialized {
		return nil
	}
	s.state.initialized = true
	s.state.admin = admin
	s.state.nextID = 0
	return nil
}

func (s *InMemory) Health(context.Context) error {
	return nil
}

func (s *InMemory) Get(_ context.Context, certID id.CertificateID) (*models.Certificate, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if cert, ok := s.state.certs[certID]; ok {
		return cert.Clone(), nil
	}
	return nil, sentinel.ErrNotFound
}

func (s *InMemory) NextID(context.Context) (id.CertificateID, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.state.nextID, nil
}

func (s *InMemory) Admin(context.Context) (id.Principal, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if !s.state.initialized {
		return "", sentinel.ErrUninitialized
	}
	return s.state.admin, nil
}

func (s *InMemory) Count(context.Context) (uint64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return uint64(len(s.state.certs)), nil
}

func (s *InMemory) RunInTx(ctx context.Context, fn func(ctx context.Context, tx Tx) error) error {
	if err := ctx.Err(); err != nil {
		return dErrors.Wrap(err, dErrors.CodeTimeout, "transaction aborted: context cancelled")
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	// Check again after acquiring lock
	if err := ctx.Err(); err != nil {
		return dErrors.Wrap(err, dErrors.CodeTimeout, "transaction aborted: context cancelled")
	}
	if !s.state.initialized {
		return sentinel.ErrUninitialized
	}

	t := &memTx{base: &s.state, staged: make(map[id.CertificateID]*models.Certificate)}
	if err := fn(ctx, t); err != nil {
		return err
	}
	t.commit()
	return nil
}

// memTx reads through its staged writes to the committed state. It is only
// used while the owning store's writer lock is held.
type memTx struct {
	base   *memState
	admin  *id.Principal
	nextID *id.CertificateID
	staged map[id.CertificateID]*models.Certificate
}

func (t *memTx) lookup(certID id.CertificateID) (*models.Certificate, bool) {
	if cert, ok := t.staged[certID]; ok {
		return cert, true
	}
	cert, ok := t.base.certs[certID]
	return cert, ok
}

func (t *memTx) Get(_ context.Context, certID id.CertificateID) (*models.Certificate, error) {
	if cert, ok := t.lookup(certID); ok {
		return cert.Clone(), nil
	}
	return nil, sentinel.ErrNotFound
}

func (t *memTx) NextID(context.Context) (id.CertificateID, error) {
	if t.nextID != nil {
		return *t.nextID, nil
	}
	return t.base.nextID, nil
}

func (t *memTx) Admin(context.Context) (id.Principal, error) {
	if t.admin != nil {
		return *t.admin, nil
	}
	return t.base.admin, nil
}

func (t *memTx) Count(context.Context) (uint64, error) {
	n := uint64(len(t.base.certs))
	for certID := range t.staged {
		if _, ok := t.base.certs[certID]; !ok {
			n++
		}
	}
	return n, nil
}

func (t *memTx) Insert(_ context.Context, cert *models.Certificate) error {
	if _, ok := t.lookup(cert.ID); ok {
		return sentinel.ErrConflict
	}
	t.staged[cert.ID] = cert.Clone()
	return nil
}

func (t *memTx) SetOwner(_ context.Context, certID id.CertificateID, owner id.Principal, now time.Time) error {
	current, ok := t.lookup(certID)
	if !ok {
		return sentinel.ErrNotFound
	}
	updated := current.Clone()
	updated.ApplyTransfer(owner, now)
	t.staged[certID] = updated
	return nil
}

func (t *memTx) SetNextID(_ context.Context, next id.CertificateID) error {
	t.nextID = &next
	return nil
}

func (t *memTx) SetAdmin(_ context.Context, admin id.Principal) error {
	t.admin = &admin
	return nil
}

func (t *memTx) commit() {
	for certID, cert := range t.staged {
		t.base.certs[certID] = cert
	}
	if t.nextID != nil {
		t.base.nextID = *t.nextID
	}
	if t.admin != nil {
		t.base.admin = *t.admin
	}
}
