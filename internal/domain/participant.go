package domain

import "github.com/google/uuid"

// Role identifies which portal a participant belongs to
type Role string

const (
	RoleClinician     Role = "clinician"
	RolePatient       Role = "patient"
	RoleAdministrator Role = "administrator"
)

// Valid reports whether the role is one of the fixed set.
func (r Role) Valid() bool {
	switch r {
	case RoleClinician, RolePatient, RoleAdministrator:
		return true
	}
	return false
}

// Participant is the call-facing identity of a portal user. Supplied by the
// hosting session at startup and immutable for the duration of a call.
type Participant struct {
	ID          uuid.UUID `json:"id"`
	DisplayName string    `json:"display_name"`
	Role        Role      `json:"role"`
	Online      bool      `json:"online"`
}
