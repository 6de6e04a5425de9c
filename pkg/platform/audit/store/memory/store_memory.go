package memory

import (
	"context"
	"sync"

	id "certreg/pkg/domain"
	audit "certreg/pkg/platform/audit"
)

// InMemoryStore keeps audit events in append order. Used when the registry
// runs without a database, and in tests.
type InMemoryStore struct {
	mu     sync.RWMutex
	events []audit.Event
}

func NewInMemoryStore() *InMemoryStore {
	return &InMemoryStore{}
}

func (s *InMemoryStore) Clear() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.events = nil
}

func (s *InMemoryStore) Append(_ context.Context, event audit.Event) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.events = append(s.events, event)
	return nil
}

// ListAll returns a copy of every event in append order.
func (s *InMemoryStore) ListAll() []audit.Event {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]audit.Event{}, s.events...)
}

// ListByCertificate returns the events recorded for one certificate.
func (s *InMemoryStore) ListByCertificate(certID id.CertificateID) []audit.Event {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []audit.Event
	for _, e := range s.events {
		if e.CertificateID != nil && *e.CertificateID == certID {
			out = append(out, e)
		}
	}
	return out
}
