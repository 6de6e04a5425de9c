// Package store persists registry state: certificates, the next-id counter
// and the administrator. Every mutation runs inside RunInTx, which applies
// all of a callback's writes or none of them and serializes writers.
package store

import (
	"context"
	"time"

	"certreg/internal/registry/models"
	id "certreg/pkg/domain"
)

// Reader is the read side shared by stores and open transactions.
// Get returns sentinel.ErrNotFound for ids that were never minted.
type Reader interface {
	Get(ctx context.Context, certID id.CertificateID) (*models.Certificate, error)
	NextID(ctx context.Context) (id.CertificateID, error)
	Admin(ctx context.Context) (id.Principal, error)
	Count(ctx context.Context) (uint64, error)
}

// Tx is the write view of the registry inside RunInTx.
// Insert returns sentinel.ErrConflict when the id is taken; SetOwner returns
// sentinel.ErrNotFound when it is absent.
type Tx interface {
	Reader
	Insert(ctx context.Context, cert *models.Certificate) error
	SetOwner(ctx context.Context, certID id.CertificateID, owner id.Principal, now time.Time) error
	SetNextID(ctx context.Context, next id.CertificateID) error
	SetAdmin(ctx context.Context, admin id.Principal) error
}

// Store is a registry backend.
type Store interface {
	Reader
	// RunInTx runs fn in a transaction. The ctx passed to fn carries the
	// backend transaction (see pkg/platform/tx) so collaborators such as the
	// audit outbox can join it.
	RunInTx(ctx context.Context, fn func(ctx context.Context, tx Tx) error) error
	// Bootstrap sets the initial administrator and a zero counter. It is a
	// no-op when the registry already exists.
	Bootstrap(ctx context.Context, admin id.Principal) error
	Health(ctx context.Context) error
}
