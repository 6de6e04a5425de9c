package domain

import (
	"strconv"
	"strings"

	dErrors "certreg/pkg/domain-errors"
)

// MaxPrincipalLength bounds principal strings accepted at trust boundaries.
const MaxPrincipalLength = 128

// Principal is an opaque, comparable caller or owner identity, such as a
// standard account address or a contract principal ("ST...ABC.contract").
// The registry never interprets it beyond equality.
type Principal string

// ParsePrincipal validates a principal received from outside the process.
// Principals are 1-128 printable ASCII characters with no whitespace.
func ParsePrincipal(s string) (Principal, error) {
	if s == "" {
		return "", dErrors.New(dErrors.CodeInvalidInput, "principal is required")
	}
	if len(s) > MaxPrincipalLength {
		return "", dErrors.New(dErrors.CodeInvalidInput, "principal must be 128 characters or less")
	}
	for i := 0; i < len(s); i++ {
		if s[i] <= ' ' || s[i] > '~' {
			return "", dErrors.New(dErrors.CodeInvalidInput, "principal must be printable ASCII without whitespace")
		}
	}
	return Principal(s), nil
}

// MustPrincipal is ParsePrincipal for constants and tests.
func MustPrincipal(s string) Principal {
	p, err := ParsePrincipal(s)
	if err != nil {
		panic(err)
	}
	return p
}

// Validate re-checks the parsing invariant for principals built by conversion.
func (p Principal) Validate() error {
	_, err := ParsePrincipal(string(p))
	return err
}

func (p Principal) String() string {
	return string(p)
}

func (p Principal) IsZero() bool {
	return p == ""
}

// CertificateID identifies a minted certificate. Ids are assigned
// sequentially from zero and never reused.
type CertificateID uint64

// ParseCertificateID parses a decimal certificate id, as found in URL paths.
func ParseCertificateID(s string) (CertificateID, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0, dErrors.New(dErrors.CodeInvalidInput, "certificate id is required")
	}
	n, err := strconv.ParseUint(s, 10, 64)
	if err != nil {
		return 0, dErrors.New(dErrors.CodeInvalidInput, "certificate id must be a non-negative integer")
	}
	return CertificateID(n), nil
}

func (id CertificateID) String() string {
	return strconv.FormatUint(uint64(id), 10)
}
