package domain

import "time"

// UserRole controls API access and escalation routing.
type UserRole string

const (
	RoleCrew       UserRole = "CREW"
	RoleSupervisor UserRole = "SUPERVISOR"
	RoleIntake     UserRole = "INTAKE"
	RoleAdmin      UserRole = "ADMIN"
)

func (r UserRole) Valid() bool {
	switch r {
	case RoleCrew, RoleSupervisor, RoleIntake, RoleAdmin:
		return true
	}
	return false
}

// User is an operator, crew member or supervisor of an organization.
type User struct {
	ID             string
	OrganizationID string
	Name           string
	Email          string
	Phone          string
	PasswordHash   string
	Role           UserRole
	Active         bool
	CreatedAt      time.Time
	UpdatedAt      time.Time
}
