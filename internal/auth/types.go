package auth

import (
	"errors"
	"regexp"
)

// subjectPattern defines the valid format for token subjects:
// alphanumeric, dots, hyphens, underscores, @, 1-64 characters.
var subjectPattern = regexp.MustCompile(`^[a-zA-Z0-9._@-]{1,64}$`)

// IsValidSubject checks if a token subject meets format requirements.
func IsValidSubject(subject string) bool {
	return subjectPattern.MatchString(subject)
}

// Role represents an authorisation tier.
type Role string

const (
	// RoleViewer can read devices and tag views.
	RoleViewer Role = "viewer"

	// RoleEditor can also import, edit, remove and clear tags.
	RoleEditor Role = "editor"

	// RoleAdmin can also create and delete devices.
	RoleAdmin Role = "admin"
)

// ValidRoles is the set of roles a token may carry.
var ValidRoles = []Role{RoleViewer, RoleEditor, RoleAdmin}

// IsValidRole returns true if r is one of ValidRoles.
func IsValidRole(r Role) bool {
	for _, v := range ValidRoles {
		if r == v {
			return true
		}
	}
	return false
}

// Sentinel errors for auth operations.
var (
	ErrTokenInvalid   = errors.New("invalid token")
	ErrForbidden      = errors.New("insufficient permissions")
	ErrInvalidRole    = errors.New("invalid role")
	ErrInvalidSubject = errors.New("invalid subject")
)
