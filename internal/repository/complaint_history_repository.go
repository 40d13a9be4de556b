package repository

import (
	"context"

	"github.com/google/uuid"

	"github.com/spec-kit/complaint-service/internal/domain"
)

// ComplaintHistoryRepository stores audit entries.
type ComplaintHistoryRepository interface {
	Create(ctx context.Context, history *domain.ComplaintHistory) error
	ListByComplaint(ctx context.Context, complaintID string) ([]domain.ComplaintHistory, error)
}

type complaintHistoryRepository struct {
	q Querier
}

// NewComplaintHistoryRepository builds repository.
func NewComplaintHistoryRepository(q Querier) ComplaintHistoryRepository {
	return &complaintHistoryRepository{q: q}
}

func (r *complaintHistoryRepository) Create(ctx context.Context, history *domain.ComplaintHistory) error {
	if history.ID == "" {
		history.ID = uuid.NewString()
	}
	const query = `
        INSERT INTO complaint_history (id, complaint_id, actor_type, actor_id, action, old_status, new_status, details)
        VALUES ($1,$2,$3,$4,$5,$6,$7,$8)
        RETURNING created_at`
	return r.q.QueryRow(ctx, query,
		history.ID,
		history.ComplaintID,
		history.ActorType,
		history.ActorID,
		history.Action,
		history.OldStatus,
		history.NewStatus,
		history.Details,
	).Scan(&history.CreatedAt)
}

func (r *complaintHistoryRepository) ListByComplaint(ctx context.Context, complaintID string) ([]domain.ComplaintHistory, error) {
	const query = `
        SELECT id, complaint_id, actor_type, actor_id, action, old_status, new_status, details, created_at
        FROM complaint_history WHERE complaint_id=$1 ORDER BY created_at ASC, seq ASC`
	rows, err := r.q.Query(ctx, query, complaintID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []domain.ComplaintHistory
	for rows.Next() {
		var history domain.ComplaintHistory
		if err := rows.Scan(
			&history.ID,
			&history.ComplaintID,
			&history.ActorType,
			&history.ActorID,
			&history.Action,
			&history.OldStatus,
			&history.NewStatus,
			&history.Details,
			&history.CreatedAt,
		); err != nil {
			return nil, err
		}
		result = append(result, history)
	}
	return result, rows.Err()
}
