package dto

import (
	"time"

	"github.com/spec-kit/complaint-service/internal/domain"
	"github.com/spec-kit/complaint-service/internal/service"
)

// ComplaintSummary is a dashboard list row.
type ComplaintSummary struct {
	ID                 string                  `json:"id"`
	Subject            string                  `json:"subject"`
	SenderEmail        string                  `json:"sender_email"`
	ReceivedAt         time.Time               `json:"received_at"`
	Status             domain.ComplaintStatus  `json:"status"`
	ResolutionStatus   domain.ResolutionStatus `json:"resolution_status"`
	OriginStation      *string                 `json:"origin_station"`
	ConfidenceScore    *int                    `json:"confidence_score"`
	Band               *domain.ConfidenceBand  `json:"confidence_band"`
	NeedsManualReview  bool                    `json:"needs_manual_review"`
	ManualReviewReason *string                 `json:"manual_review_reason,omitempty"`
	CreatedAt          time.Time               `json:"created_at"`
	UpdatedAt          time.Time               `json:"updated_at"`
}

// ComplaintDetailResponse adds the grid and conversation.
type ComplaintDetailResponse struct {
	ComplaintSummary
	Grid       *domain.InvestigationGrid `json:"grid"`
	NextAction string                    `json:"next_action"`
	Messages   []MessageResponse         `json:"messages"`
}

// MessageResponse is one entry of the conversation log.
type MessageResponse struct {
	ID          string             `json:"id"`
	MessageType domain.MessageType `json:"message_type"`
	AuthorType  domain.AuthorType  `json:"author_type"`
	AuthorID    *string            `json:"author_id"`
	Content     any                `json:"content"`
	CreatedAt   time.Time          `json:"created_at"`
}

// HistoryResponse is one agent activity entry.
type HistoryResponse struct {
	ID        string                  `json:"id"`
	ActorType domain.ActorType        `json:"actor_type"`
	ActorID   *string                 `json:"actor_id"`
	Action    domain.HistoryAction    `json:"action"`
	OldStatus *domain.ComplaintStatus `json:"old_status"`
	NewStatus domain.ComplaintStatus  `json:"new_status"`
	Details   map[string]any          `json:"details,omitempty"`
	CreatedAt time.Time               `json:"created_at"`
}

// OutboundResponse is one outbox row.
type OutboundResponse struct {
	ID         string                `json:"id"`
	Kind       domain.OutboundKind   `json:"kind"`
	Mailbox    string                `json:"mailbox"`
	Recipient  *string               `json:"recipient"`
	Subject    string                `json:"subject"`
	Status     domain.OutboundStatus `json:"status"`
	Attempts   int                   `json:"attempts"`
	LastError  *string               `json:"last_error,omitempty"`
	ExternalID *string               `json:"external_id,omitempty"`
	CreatedAt  time.Time             `json:"created_at"`
	SentAt     *time.Time            `json:"sent_at,omitempty"`
}

// InspectionResponse is the read-only dry-run report.
type InspectionResponse struct {
	Complaint      ComplaintSummary          `json:"complaint"`
	Grid           *domain.InvestigationGrid `json:"grid"`
	ReplayedGrid   *domain.InvestigationGrid `json:"replayed_grid"`
	GridConsistent bool                      `json:"grid_consistent"`
	NextAction     string                    `json:"next_action"`
	Messages       []MessageResponse         `json:"messages"`
	History        []HistoryResponse         `json:"history"`
	Outbound       []OutboundResponse        `json:"outbound"`
}

// DraftRequest payload for POST /complaints/:id/draft.
type DraftRequest struct {
	Notes string `json:"notes"`
}

// ApproveRequest payload for POST /complaints/:id/approve. An empty body
// approves the latest draft as-is.
type ApproveRequest struct {
	Body string `json:"body"`
}

// NewComplaintSummary maps a complaint to its list row.
func NewComplaintSummary(c *domain.Complaint) ComplaintSummary {
	summary := ComplaintSummary{
		ID:                 c.ID,
		Subject:            c.Subject,
		SenderEmail:        c.SenderEmail,
		ReceivedAt:         c.ReceivedAt,
		Status:             c.Status,
		ResolutionStatus:   c.ResolutionStatus,
		OriginStation:      c.OriginStation,
		NeedsManualReview:  c.NeedsManualReview,
		ManualReviewReason: c.ManualReviewReason,
		CreatedAt:          c.CreatedAt,
		UpdatedAt:          c.UpdatedAt,
	}
	if c.Grid != nil && c.Grid.ConfidenceScore != nil {
		score := *c.Grid.ConfidenceScore
		band := domain.BandFor(score)
		summary.ConfidenceScore = &score
		summary.Band = &band
	}
	return summary
}

// NewMessageResponse maps a conversation message.
func NewMessageResponse(m *domain.ConversationMessage) MessageResponse {
	return MessageResponse{
		ID:          m.ID,
		MessageType: m.Type(),
		AuthorType:  m.AuthorType,
		AuthorID:    m.AuthorID,
		Content:     m.Content,
		CreatedAt:   m.CreatedAt,
	}
}

// NewMessageResponses maps a conversation log.
func NewMessageResponses(msgs []domain.ConversationMessage) []MessageResponse {
	out := make([]MessageResponse, 0, len(msgs))
	for i := range msgs {
		out = append(out, NewMessageResponse(&msgs[i]))
	}
	return out
}

// NewHistoryResponses maps audit entries.
func NewHistoryResponses(entries []domain.ComplaintHistory) []HistoryResponse {
	out := make([]HistoryResponse, 0, len(entries))
	for _, h := range entries {
		out = append(out, HistoryResponse{
			ID:        h.ID,
			ActorType: h.ActorType,
			ActorID:   h.ActorID,
			Action:    h.Action,
			OldStatus: h.OldStatus,
			NewStatus: h.NewStatus,
			Details:   h.Details,
			CreatedAt: h.CreatedAt,
		})
	}
	return out
}

// NewOutboundResponses maps outbox rows.
func NewOutboundResponses(rows []domain.OutboundNotification) []OutboundResponse {
	out := make([]OutboundResponse, 0, len(rows))
	for _, n := range rows {
		out = append(out, OutboundResponse{
			ID:         n.ID,
			Kind:       n.Kind,
			Mailbox:    n.Mailbox,
			Recipient:  n.Recipient,
			Subject:    n.Subject,
			Status:     n.Status,
			Attempts:   n.Attempts,
			LastError:  n.LastError,
			ExternalID: n.ExternalID,
			CreatedAt:  n.CreatedAt,
			SentAt:     n.SentAt,
		})
	}
	return out
}

// NewInspectionResponse maps an engine inspection.
func NewInspectionResponse(in *service.Inspection) InspectionResponse {
	return InspectionResponse{
		Complaint:      NewComplaintSummary(&in.Complaint),
		Grid:           in.Complaint.Grid,
		ReplayedGrid:   in.ReplayedGrid,
		GridConsistent: in.GridConsistent,
		NextAction:     in.NextAction,
		Messages:       NewMessageResponses(in.Messages),
		History:        NewHistoryResponses(in.History),
		Outbound:       NewOutboundResponses(in.Outbound),
	}
}

// DeadLetterResponse is a Base Ops reply the engine gave up on.
type DeadLetterResponse struct {
	SourceMessageID string    `json:"source_message_id"`
	ComplaintID     string    `json:"complaint_id"`
	Attempts        int       `json:"attempts"`
	LastError       string    `json:"last_error"`
	UpdatedAt       time.Time `json:"updated_at"`
}

func NewDeadLetterResponses(rows []domain.ResolutionAttempt) []DeadLetterResponse {
	out := make([]DeadLetterResponse, 0, len(rows))
	for _, a := range rows {
		out = append(out, DeadLetterResponse{
			SourceMessageID: a.SourceMessageID,
			ComplaintID:     a.ComplaintID,
			Attempts:        a.Attempts,
			LastError:       a.LastError,
			UpdatedAt:       a.UpdatedAt,
		})
	}
	return out
}
