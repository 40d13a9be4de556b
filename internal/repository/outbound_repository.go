package repository

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/spec-kit/complaint-service/internal/domain"
)

// OutboundRepository is the transactional outbox for mailbox side effects.
type OutboundRepository interface {
	Enqueue(ctx context.Context, n *domain.OutboundNotification) error
	// ListPending returns PENDING rows whose delivery lease is free.
	ListPending(ctx context.Context, limit int) ([]domain.OutboundNotification, error)
	// Claim takes the delivery lease on a PENDING row for lease. It reports
	// false when the row was sent meanwhile or another dispatcher holds it.
	Claim(ctx context.Context, id string, lease time.Duration) (bool, error)
	ListByComplaint(ctx context.Context, complaintID string) ([]domain.OutboundNotification, error)
	MarkSent(ctx context.Context, id, externalID string) error
	// MarkFailed records a failed delivery and moves the row to FAILED once
	// maxAttempts is reached.
	MarkFailed(ctx context.Context, id, reason string, maxAttempts int) error
}

type outboundRepository struct {
	q Querier
}

// NewOutboundRepository builds repository.
func NewOutboundRepository(q Querier) OutboundRepository {
	return &outboundRepository{q: q}
}

const outboundColumns = `id, complaint_id, kind, mailbox, recipient, subject, body, status, attempts, last_error, external_id, created_at, sent_at, claimed_until`

func (r *outboundRepository) Enqueue(ctx context.Context, n *domain.OutboundNotification) error {
	if n.ID == "" {
		n.ID = uuid.NewString()
	}
	n.Status = domain.OutboundStatusPending
	const query = `
        INSERT INTO outbound_notifications (id, complaint_id, kind, mailbox, recipient, subject, body, status)
        VALUES ($1,$2,$3,$4,$5,$6,$7,$8)
        RETURNING created_at`
	return r.q.QueryRow(ctx, query,
		n.ID,
		n.ComplaintID,
		n.Kind,
		n.Mailbox,
		n.Recipient,
		n.Subject,
		n.Body,
		n.Status,
	).Scan(&n.CreatedAt)
}

func (r *outboundRepository) ListPending(ctx context.Context, limit int) ([]domain.OutboundNotification, error) {
	query := `SELECT ` + outboundColumns + `
        FROM outbound_notifications
        WHERE status='PENDING' AND (claimed_until IS NULL OR claimed_until < NOW())
        ORDER BY created_at ASC LIMIT $1`
	return r.list(ctx, query, limit)
}

func (r *outboundRepository) Claim(ctx context.Context, id string, lease time.Duration) (bool, error) {
	const query = `
        UPDATE outbound_notifications SET claimed_until = NOW() + $2 * INTERVAL '1 millisecond'
        WHERE id=$1 AND status='PENDING' AND (claimed_until IS NULL OR claimed_until < NOW())`
	cmd, err := r.q.Exec(ctx, query, id, lease.Milliseconds())
	if err != nil {
		return false, err
	}
	return cmd.RowsAffected() == 1, nil
}

func (r *outboundRepository) ListByComplaint(ctx context.Context, complaintID string) ([]domain.OutboundNotification, error) {
	query := `SELECT ` + outboundColumns + `
        FROM outbound_notifications WHERE complaint_id=$1 ORDER BY created_at ASC`
	return r.list(ctx, query, complaintID)
}

func (r *outboundRepository) MarkSent(ctx context.Context, id, externalID string) error {
	const query = `
        UPDATE outbound_notifications
        SET status='SENT', external_id=$1, sent_at=NOW(), attempts=attempts+1, claimed_until=NULL
        WHERE id=$2`
	cmd, err := r.q.Exec(ctx, query, externalID, id)
	if err != nil {
		return err
	}
	if cmd.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (r *outboundRepository) MarkFailed(ctx context.Context, id, reason string, maxAttempts int) error {
	const query = `
        UPDATE outbound_notifications
        SET attempts=attempts+1, last_error=$1, claimed_until=NULL,
            status=CASE WHEN attempts+1 >= $2 THEN 'FAILED' ELSE status END
        WHERE id=$3`
	cmd, err := r.q.Exec(ctx, query, reason, maxAttempts, id)
	if err != nil {
		return err
	}
	if cmd.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (r *outboundRepository) list(ctx context.Context, query string, arg any) ([]domain.OutboundNotification, error) {
	rows, err := r.q.Query(ctx, query, arg)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []domain.OutboundNotification
	for rows.Next() {
		var n domain.OutboundNotification
		if err := rows.Scan(
			&n.ID,
			&n.ComplaintID,
			&n.Kind,
			&n.Mailbox,
			&n.Recipient,
			&n.Subject,
			&n.Body,
			&n.Status,
			&n.Attempts,
			&n.LastError,
			&n.ExternalID,
			&n.CreatedAt,
			&n.SentAt,
			&n.ClaimedUntil,
		); err != nil {
			return nil, err
		}
		result = append(result, n)
	}
	return result, rows.Err()
}
