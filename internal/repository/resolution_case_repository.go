package repository

import (
	"context"

	"github.com/google/uuid"
	"github.com/pgvector/pgvector-go"

	"github.com/spec-kit/complaint-service/internal/domain"
)

// ResolutionCaseRepository stores past resolutions with their embeddings.
type ResolutionCaseRepository interface {
	Create(ctx context.Context, rc *domain.ResolutionCase, embedding []float32) error
	// SearchSimilar returns up to k cases nearest to embedding, best first.
	SearchSimilar(ctx context.Context, embedding []float32, k int) ([]domain.ResolutionCase, error)
}

type resolutionCaseRepository struct {
	q Querier
}

// NewResolutionCaseRepository builds repository.
func NewResolutionCaseRepository(q Querier) ResolutionCaseRepository {
	return &resolutionCaseRepository{q: q}
}

func (r *resolutionCaseRepository) Create(ctx context.Context, rc *domain.ResolutionCase, embedding []float32) error {
	if rc.ID == "" {
		rc.ID = uuid.NewString()
	}
	const query = `
        INSERT INTO resolution_cases (id, complaint_id, category, complaint_text, action_type, outcome, percentage, draft_response, embedding)
        VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9)
        RETURNING created_at`
	return r.q.QueryRow(ctx, query,
		rc.ID,
		rc.ComplaintID,
		rc.Category,
		rc.ComplaintText,
		rc.ActionType,
		rc.Outcome,
		rc.Percentage,
		rc.DraftResponse,
		pgvector.NewVector(embedding),
	).Scan(&rc.CreatedAt)
}

func (r *resolutionCaseRepository) SearchSimilar(ctx context.Context, embedding []float32, k int) ([]domain.ResolutionCase, error) {
	const query = `
        SELECT id, complaint_id, category, complaint_text, action_type, outcome, percentage, draft_response,
               1 - (embedding <=> $1) AS similarity, created_at
        FROM resolution_cases
        ORDER BY embedding <=> $1
        LIMIT $2`
	rows, err := r.q.Query(ctx, query, pgvector.NewVector(embedding), k)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []domain.ResolutionCase
	for rows.Next() {
		var rc domain.ResolutionCase
		if err := rows.Scan(
			&rc.ID,
			&rc.ComplaintID,
			&rc.Category,
			&rc.ComplaintText,
			&rc.ActionType,
			&rc.Outcome,
			&rc.Percentage,
			&rc.DraftResponse,
			&rc.Similarity,
			&rc.CreatedAt,
		); err != nil {
			return nil, err
		}
		result = append(result, rc)
	}
	return result, rows.Err()
}
