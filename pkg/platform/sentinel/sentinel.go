package sentinel

import "errors"

// Sentinel errors for storage facts. Stores return these (optionally wrapped)
// and the registry service translates them into coded domain errors:
//   - ErrNotFound: no certificate with the requested id
//   - ErrConflict: a certificate with the id already exists
//   - ErrUninitialized: the registry state row has not been bootstrapped
//   - ErrUnavailable: backing service temporarily unreachable
var (
	ErrNotFound      = errors.New("not found")
	ErrConflict      = errors.New("conflict")
	ErrUninitialized = errors.New("registry not initialized")
	ErrUnavailable   = errors.New("unavailable")
)
