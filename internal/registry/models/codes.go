package models

import (
	dErrors "certreg/pkg/domain-errors"
)

// RegistryCode is the numeric failure code reported for registry operations,
// kept stable for clients that were built against the on-chain contract.
type RegistryCode uint32

const (
	RegistryCodeUnauthorized  RegistryCode = 1
	RegistryCodeNotFound      RegistryCode = 3
	RegistryCodeInvalidCourse RegistryCode = 400
	RegistryCodeNotAdmin      RegistryCode = 401
	RegistryCodeDuplicateID   RegistryCode = 409
)

var registryCodes = map[dErrors.Code]RegistryCode{
	dErrors.CodeUnauthorized:  RegistryCodeUnauthorized,
	dErrors.CodeNotFound:      RegistryCodeNotFound,
	dErrors.CodeInvalidCourse: RegistryCodeInvalidCourse,
	dErrors.CodeNotAdmin:      RegistryCodeNotAdmin,
	dErrors.CodeDuplicateID:   RegistryCodeDuplicateID,
}

// RegistryCodeOf returns the numeric registry code for err. The boolean is
// false for errors that have no registry code (input validation, internal).
func RegistryCodeOf(err error) (RegistryCode, bool) {
	if err == nil {
		return 0, false
	}
	code, ok := registryCodes[dErrors.CodeOf(err)]
	return code, ok
}
