package repository

import (
	"context"

	"github.com/google/uuid"

	"github.com/spec-kit/complaint-service/internal/domain"
)

// ConversationMessageRepository stores the append-only complaint log.
type ConversationMessageRepository interface {
	Append(ctx context.Context, msg *domain.ConversationMessage) error
	ListByComplaint(ctx context.Context, complaintID string) ([]domain.ConversationMessage, error)
}

type conversationMessageRepository struct {
	q Querier
}

// NewConversationMessageRepository builds repository.
func NewConversationMessageRepository(q Querier) ConversationMessageRepository {
	return &conversationMessageRepository{q: q}
}

func (r *conversationMessageRepository) Append(ctx context.Context, msg *domain.ConversationMessage) error {
	content, err := domain.EncodeContent(msg.Content)
	if err != nil {
		return err
	}
	if msg.ID == "" {
		msg.ID = uuid.NewString()
	}
	const query = `
        INSERT INTO conversation_messages (id, complaint_id, author_type, author_id, message_type, content)
        VALUES ($1,$2,$3,$4,$5,$6)
        RETURNING created_at`
	return r.q.QueryRow(ctx, query,
		msg.ID,
		msg.ComplaintID,
		msg.AuthorType,
		msg.AuthorID,
		msg.Type(),
		content,
	).Scan(&msg.CreatedAt)
}

func (r *conversationMessageRepository) ListByComplaint(ctx context.Context, complaintID string) ([]domain.ConversationMessage, error) {
	const query = `
        SELECT id, complaint_id, author_type, author_id, message_type, content, created_at
        FROM conversation_messages WHERE complaint_id=$1 ORDER BY seq ASC`
	rows, err := r.q.Query(ctx, query, complaintID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []domain.ConversationMessage
	for rows.Next() {
		var (
			msg         domain.ConversationMessage
			messageType domain.MessageType
			raw         []byte
		)
		if err := rows.Scan(
			&msg.ID,
			&msg.ComplaintID,
			&msg.AuthorType,
			&msg.AuthorID,
			&messageType,
			&raw,
			&msg.CreatedAt,
		); err != nil {
			return nil, err
		}
		content, err := domain.DecodeContent(messageType, raw)
		if err != nil {
			return nil, err
		}
		msg.Content = content
		result = append(result, msg)
	}
	return result, rows.Err()
}
