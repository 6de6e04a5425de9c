package models

import (
	"time"

	id "certreg/pkg/domain"
	dErrors "certreg/pkg/domain-errors"
)

const (
	// MaxCourseLength bounds the course name of a certificate.
	MaxCourseLength = 128
	// MaxGradeLength bounds the grade of a certificate.
	MaxGradeLength = 32
)

// Certificate is one issued credential.
//
// Invariants:
//   - ID is assigned by the allocator at mint time and never reused
//   - Course is non-empty printable ASCII, at most 128 characters
//   - Grade is printable ASCII, at most 32 characters, and may be empty
//   - Course, Grade, IssuedBy and MintedAt never change after mint
//   - Owner changes only through a transfer by the current owner
type Certificate struct {
	ID       id.CertificateID `json:"id"`
	Course   string           `json:"course"`
	Grade    string           `json:"grade"`
	Owner    id.Principal     `json:"owner"`
	IssuedBy id.Principal     `json:"issued_by"`
	MintedAt time.Time        `json:"minted_at"`
	// UpdatedAt moves on every ownership change.
	UpdatedAt time.Time `json:"updated_at"`
}

// NewCertificate builds a certificate after checking metadata invariants.
// The empty-course check is done by the service before this so that it can
// report InvalidCourse; here an empty course is an invariant violation.
func NewCertificate(certID id.CertificateID, course, grade string, owner, issuedBy id.Principal, now time.Time) (*Certificate, error) {
	if course == "" {
		return nil, dErrors.New(dErrors.CodeInvariantViolation, "course cannot be empty")
	}
	if err := ValidateMetadata(course, grade); err != nil {
		return nil, err
	}
	if err := owner.Validate(); err != nil {
		return nil, err
	}
	return &Certificate{
		ID:        certID,
		Course:    course,
		Grade:     grade,
		Owner:     owner,
		IssuedBy:  issuedBy,
		MintedAt:  now,
		UpdatedAt: now,
	}, nil
}

// ValidateMetadata checks the bounded-ASCII shape of course and grade.
// It does not reject an empty grade.
func ValidateMetadata(course, grade string) error {
	if len(course) > MaxCourseLength {
		return dErrors.New(dErrors.CodeInvalidInput, "course must be 128 characters or less")
	}
	if !isPrintableASCII(course) {
		return dErrors.New(dErrors.CodeInvalidInput, "course must be printable ASCII")
	}
	if len(grade) > MaxGradeLength {
		return dErrors.New(dErrors.CodeInvalidInput, "grade must be 32 characters or less")
	}
	if !isPrintableASCII(grade) {
		return dErrors.New(dErrors.CodeInvalidInput, "grade must be printable ASCII")
	}
	return nil
}

// ApplyTransfer moves ownership. Authorization is the guard's job.
func (c *Certificate) ApplyTransfer(recipient id.Principal, now time.Time) {
	c.Owner = recipient
	c.UpdatedAt = now
}

// Clone returns a copy safe to hand out of a store.
func (c *Certificate) Clone() *Certificate {
	if c == nil {
		return nil
	}
	cp := *c
	return &cp
}

func isPrintableASCII(s string) bool {
	for i := 0; i < len(s); i++ {
		if s[i] < ' ' || s[i] > '~' {
			return false
		}
	}
	return true
}
