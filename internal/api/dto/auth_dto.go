package dto

import (
	"time"

	"github.com/spec-kit/complaint-service/internal/domain"
)

// LoginRequest payload for operator login.
type LoginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

// AuthResponse standard response for auth endpoints.
type AuthResponse struct {
	Token     string    `json:"token"`
	ExpiresAt time.Time `json:"expires_at"`
}

// CreateOperatorRequest payload for POST /operators.
type CreateOperatorRequest struct {
	Name     string              `json:"name"`
	Email    string              `json:"email"`
	Password string              `json:"password"`
	Role     domain.OperatorRole `json:"role"`
	Station  *string             `json:"station"`
}

// OperatorResponse omits the password hash.
type OperatorResponse struct {
	ID        string              `json:"id"`
	Name      string              `json:"name"`
	Email     string              `json:"email"`
	Role      domain.OperatorRole `json:"role"`
	Station   *string             `json:"station"`
	Active    bool                `json:"active"`
	CreatedAt time.Time           `json:"created_at"`
}

// NewOperatorResponse maps a domain operator.
func NewOperatorResponse(op *domain.Operator) OperatorResponse {
	return OperatorResponse{
		ID:        op.ID,
		Name:      op.Name,
		Email:     op.Email,
		Role:      op.Role,
		Station:   op.Station,
		Active:    op.Active,
		CreatedAt: op.CreatedAt,
	}
}
