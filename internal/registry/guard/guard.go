// Package guard holds the registry's authorization predicates. Each check is
// side-effect free and returns a coded error instead of aborting, so the
// service can run every check before it stages any write.
package guard

import (
	"certreg/internal/registry/models"
	id "certreg/pkg/domain"
	dErrors "certreg/pkg/domain-errors"
)

// RequireAdmin fails with NotAdmin unless caller is the current administrator.
func RequireAdmin(caller, admin id.Principal) error {
	if caller.IsZero() || caller != admin {
		return dErrors.New(dErrors.CodeNotAdmin, "caller is not the registry administrator")
	}
	return nil
}

// RequireOwner fails with Unauthorized unless the caller asserted itself as
// sender and the sender currently owns cert. Both conditions share one code.
func RequireOwner(caller, sender id.Principal, cert *models.Certificate) error {
	if cert == nil {
		return dErrors.New(dErrors.CodeUnauthorized, "sender does not own the certificate")
	}
	if caller.IsZero() || caller != sender {
		return dErrors.New(dErrors.CodeUnauthorized, "caller does not match sender")
	}
	if sender != cert.Owner {
		return dErrors.New(dErrors.CodeUnauthorized, "sender does not own the certificate")
	}
	return nil
}
