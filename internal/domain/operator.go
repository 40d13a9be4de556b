package domain

import "time"

// OperatorRole enumerates dashboard operator roles.
type OperatorRole string

const (
	OperatorRoleBaseOps OperatorRole = "BASE_OPS"
	OperatorRoleCX      OperatorRole = "CX"
	OperatorRoleAdmin   OperatorRole = "ADMIN"
)

// Valid reports whether r is a known role.
func (r OperatorRole) Valid() bool {
	switch r {
	case OperatorRoleBaseOps, OperatorRoleCX, OperatorRoleAdmin:
		return true
	}
	return false
}

// Operator is a dashboard user who reviews and approves responses.
type Operator struct {
	ID           string
	Name         string
	Email        string
	PasswordHash string
	Role         OperatorRole
	Station      *string
	Active       bool
	CreatedAt    time.Time
	UpdatedAt    time.Time
}
