package repository

import (
	"context"

	"github.com/spec-kit/complaint-service/internal/domain"
)

// ResolutionAttemptRepository counts failed passes over Base Ops replies.
type ResolutionAttemptRepository interface {
	Get(ctx context.Context, sourceMessageID string) (*domain.ResolutionAttempt, error)
	// RecordFailure increments the attempt counter and returns the new count.
	RecordFailure(ctx context.Context, sourceMessageID, complaintID, reason string) (int, error)
	MarkDeadLettered(ctx context.Context, sourceMessageID string) error
	ListDeadLettered(ctx context.Context, limit int) ([]domain.ResolutionAttempt, error)
}

type resolutionAttemptRepository struct {
	q Querier
}

// NewResolutionAttemptRepository builds repository.
func NewResolutionAttemptRepository(q Querier) ResolutionAttemptRepository {
	return &resolutionAttemptRepository{q: q}
}

func (r *resolutionAttemptRepository) Get(ctx context.Context, sourceMessageID string) (*domain.ResolutionAttempt, error) {
	const query = `
        SELECT source_message_id, complaint_id, attempts, last_error, dead_lettered, updated_at
        FROM resolution_attempts WHERE source_message_id=$1`
	var a domain.ResolutionAttempt
	if err := r.q.QueryRow(ctx, query, sourceMessageID).Scan(
		&a.SourceMessageID,
		&a.ComplaintID,
		&a.Attempts,
		&a.LastError,
		&a.DeadLettered,
		&a.UpdatedAt,
	); err != nil {
		return nil, translate(err)
	}
	return &a, nil
}

func (r *resolutionAttemptRepository) RecordFailure(ctx context.Context, sourceMessageID, complaintID, reason string) (int, error) {
	const query = `
        INSERT INTO resolution_attempts (source_message_id, complaint_id, attempts, last_error)
        VALUES ($1,$2,1,$3)
        ON CONFLICT (source_message_id) DO UPDATE
            SET attempts = resolution_attempts.attempts + 1, last_error = EXCLUDED.last_error, updated_at = NOW()
        RETURNING attempts`
	var attempts int
	if err := r.q.QueryRow(ctx, query, sourceMessageID, complaintID, reason).Scan(&attempts); err != nil {
		return 0, err
	}
	return attempts, nil
}

func (r *resolutionAttemptRepository) MarkDeadLettered(ctx context.Context, sourceMessageID string) error {
	const query = `UPDATE resolution_attempts SET dead_lettered=TRUE, updated_at=NOW() WHERE source_message_id=$1`
	cmd, err := r.q.Exec(ctx, query, sourceMessageID)
	if err != nil {
		return err
	}
	if cmd.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (r *resolutionAttemptRepository) ListDeadLettered(ctx context.Context, limit int) ([]domain.ResolutionAttempt, error) {
	const query = `
        SELECT source_message_id, complaint_id, attempts, last_error, dead_lettered, updated_at
        FROM resolution_attempts WHERE dead_lettered ORDER BY updated_at DESC LIMIT $1`
	rows, err := r.q.Query(ctx, query, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []domain.ResolutionAttempt
	for rows.Next() {
		var a domain.ResolutionAttempt
		if err := rows.Scan(&a.SourceMessageID, &a.ComplaintID, &a.Attempts, &a.LastError, &a.DeadLettered, &a.UpdatedAt); err != nil {
			return nil, err
		}
		result = append(result, a)
	}
	return result, rows.Err()
}
