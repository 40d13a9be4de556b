package service

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/spec-kit/complaint-service/internal/auth"
	"github.com/spec-kit/complaint-service/internal/config"
	"github.com/spec-kit/complaint-service/internal/domain"
	"github.com/spec-kit/complaint-service/internal/repository"
	apperrors "github.com/spec-kit/complaint-service/pkg/util"
)

// AuthService coordinates operator login and provisioning.
type AuthService struct {
	operators repository.OperatorRepository
	tokenMgr  *auth.TokenManager
	hasher    *auth.Hasher
}

// NewAuthService builds the service.
func NewAuthService(cfg config.Config, operators repository.OperatorRepository) (*AuthService, error) {
	hasher, err := auth.NewHasher(cfg.Auth.BcryptCost)
	if err != nil {
		return nil, err
	}
	return &AuthService{
		operators: operators,
		tokenMgr:  auth.NewTokenManager(cfg.Auth.JWTSecret, cfg.Auth.AccessTokenTTLMinutes),
		hasher:    hasher,
	}, nil
}

// TokenManager exposes the manager so middleware validates what Login issues.
func (s *AuthService) TokenManager() *auth.TokenManager {
	return s.tokenMgr
}

// OperatorInput describes a new dashboard operator.
type OperatorInput struct {
	Name     string
	Email    string
	Password string
	Role     domain.OperatorRole
	Station  *string
}

// CreateOperator provisions an operator account.
func (s *AuthService) CreateOperator(ctx context.Context, input OperatorInput) (*domain.Operator, error) {
	email := strings.ToLower(strings.TrimSpace(input.Email))
	if email == "" || input.Password == "" {
		return nil, apperrors.NewValidationError("email and password are required", nil)
	}
	if !input.Role.Valid() {
		return nil, apperrors.NewValidationError("unknown role", map[string]any{"role": input.Role})
	}
	if _, err := s.operators.GetByEmail(ctx, email); err == nil {
		return nil, apperrors.NewConflict("email already registered", map[string]any{"email": email})
	} else if !errors.Is(err, repository.ErrNotFound) {
		return nil, err
	}

	hash, err := s.hasher.Hash(input.Password)
	if errors.Is(err, auth.ErrPasswordTooLong) {
		return nil, apperrors.NewValidationError(err.Error(), nil)
	}
	if err != nil {
		return nil, err
	}
	op := &domain.Operator{
		Name:         strings.TrimSpace(input.Name),
		Email:        email,
		PasswordHash: hash,
		Role:         input.Role,
		Station:      input.Station,
		Active:       true,
	}
	if err := s.operators.Create(ctx, op); err != nil {
		return nil, err
	}
	return op, nil
}

// Login authenticates an operator and returns a role-bearing token.
func (s *AuthService) Login(ctx context.Context, email, password string) (*domain.Operator, string, time.Time, error) {
	op, err := s.operators.GetByEmail(ctx, strings.ToLower(strings.TrimSpace(email)))
	if errors.Is(err, repository.ErrNotFound) {
		_ = s.hasher.Verify("", password)
		return nil, "", time.Time{}, apperrors.NewUnauthorized("invalid credentials")
	}
	if err != nil {
		return nil, "", time.Time{}, err
	}
	if !op.Active {
		return nil, "", time.Time{}, apperrors.NewForbidden("operator inactive")
	}
	if err := s.hasher.Verify(op.PasswordHash, password); err != nil {
		return nil, "", time.Time{}, apperrors.NewUnauthorized("invalid credentials")
	}
	token, exp, err := s.tokenMgr.GenerateToken(op.ID, op.Role)
	if err != nil {
		return nil, "", time.Time{}, err
	}
	return op, token, exp, nil
}

// Deactivate disables an operator; existing tokens stop working on next request.
func (s *AuthService) Deactivate(ctx context.Context, operatorID string) error {
	op, err := s.operators.GetByID(ctx, operatorID)
	if errors.Is(err, repository.ErrNotFound) {
		return apperrors.NewNotFound("operator", map[string]any{"id": operatorID})
	}
	if err != nil {
		return err
	}
	op.Active = false
	return s.operators.Update(ctx, op)
}
