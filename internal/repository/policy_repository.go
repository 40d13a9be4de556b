package repository

import (
	"context"

	"github.com/spec-kit/complaint-service/internal/domain"
)

// PolicyRepository reads the compensation limits table.
type PolicyRepository interface {
	List(ctx context.Context) ([]domain.PolicyLimit, error)
	Upsert(ctx context.Context, limit domain.PolicyLimit) error
}

type policyRepository struct {
	q Querier
}

// NewPolicyRepository builds repository.
func NewPolicyRepository(q Querier) PolicyRepository {
	return &policyRepository{q: q}
}

func (r *policyRepository) List(ctx context.Context) ([]domain.PolicyLimit, error) {
	const query = `SELECT action_type, max_allowed_percentage, description FROM policy_limits ORDER BY action_type`
	rows, err := r.q.Query(ctx, query)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []domain.PolicyLimit
	for rows.Next() {
		var l domain.PolicyLimit
		if err := rows.Scan(&l.ActionType, &l.MaxAllowedPercentage, &l.Description); err != nil {
			return nil, err
		}
		result = append(result, l)
	}
	return result, rows.Err()
}

func (r *policyRepository) Upsert(ctx context.Context, limit domain.PolicyLimit) error {
	const query = `
        INSERT INTO policy_limits (action_type, max_allowed_percentage, description)
        VALUES ($1,$2,$3)
        ON CONFLICT (action_type) DO UPDATE
            SET max_allowed_percentage=EXCLUDED.max_allowed_percentage, description=EXCLUDED.description`
	_, err := r.q.Exec(ctx, query, domain.NormalizeActionType(limit.ActionType), limit.MaxAllowedPercentage, limit.Description)
	return err
}
