package repository

import (
	"context"

	"github.com/google/uuid"

	"github.com/spec-kit/complaint-service/internal/domain"
)

// OperatorRepository handles persistence for dashboard operators.
type OperatorRepository interface {
	Create(ctx context.Context, op *domain.Operator) error
	Update(ctx context.Context, op *domain.Operator) error
	GetByID(ctx context.Context, id string) (*domain.Operator, error)
	GetByEmail(ctx context.Context, email string) (*domain.Operator, error)
}

type operatorRepository struct {
	q Querier
}

// NewOperatorRepository instantiates the repository.
func NewOperatorRepository(q Querier) OperatorRepository {
	return &operatorRepository{q: q}
}

func (r *operatorRepository) Create(ctx context.Context, op *domain.Operator) error {
	if op.ID == "" {
		op.ID = uuid.NewString()
	}
	const query = `
        INSERT INTO operators (id, name, email, password_hash, role, station, active_flag)
        VALUES ($1,$2,LOWER($3),$4,$5,$6,$7)
        RETURNING created_at, updated_at`

	return r.q.QueryRow(ctx, query,
		op.ID,
		op.Name,
		op.Email,
		op.PasswordHash,
		op.Role,
		op.Station,
		op.Active,
	).Scan(&op.CreatedAt, &op.UpdatedAt)
}

func (r *operatorRepository) Update(ctx context.Context, op *domain.Operator) error {
	const query = `
        UPDATE operators
        SET name=$1, email=LOWER($2), password_hash=$3, role=$4, station=$5, active_flag=$6, updated_at=NOW()
        WHERE id=$7`

	cmd, err := r.q.Exec(ctx, query,
		op.Name,
		op.Email,
		op.PasswordHash,
		op.Role,
		op.Station,
		op.Active,
		op.ID,
	)
	if err != nil {
		return err
	}
	if cmd.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (r *operatorRepository) GetByID(ctx context.Context, id string) (*domain.Operator, error) {
	const query = `
        SELECT id, name, email, password_hash, role, station, active_flag, created_at, updated_at
        FROM operators WHERE id=$1`
	return r.fetchSingle(ctx, query, id)
}

func (r *operatorRepository) GetByEmail(ctx context.Context, email string) (*domain.Operator, error) {
	const query = `
        SELECT id, name, email, password_hash, role, station, active_flag, created_at, updated_at
        FROM operators WHERE email=LOWER($1)`
	return r.fetchSingle(ctx, query, email)
}

func (r *operatorRepository) fetchSingle(ctx context.Context, query string, arg any) (*domain.Operator, error) {
	var op domain.Operator
	if err := r.q.QueryRow(ctx, query, arg).Scan(
		&op.ID,
		&op.Name,
		&op.Email,
		&op.PasswordHash,
		&op.Role,
		&op.Station,
		&op.Active,
		&op.CreatedAt,
		&op.UpdatedAt,
	); err != nil {
		return nil, translate(err)
	}
	return &op, nil
}
