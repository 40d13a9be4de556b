package events

import (
	"time"

	"github.com/google/uuid"

	"github.com/spec-kit/complaint-service/internal/domain"
)

// EventType enumerates supported event identifiers.
type EventType string

const (
	EventComplaintCreated            EventType = "complaint.created"
	EventComplaintRouted             EventType = "complaint.routed"
	EventComplaintMissingInfo        EventType = "complaint.missing_info"
	EventComplaintAutoResolved       EventType = "complaint.auto_resolved"
	EventComplaintExtractionDeferred EventType = "complaint.extraction_deferred"
	EventResolutionEvaluated         EventType = "complaint.resolution_evaluated"
	EventResolutionDeadLettered      EventType = "complaint.dead_lettered"
	EventDraftGenerated              EventType = "complaint.draft_generated"
	EventComplaintApproved           EventType = "complaint.approved"
)

// AllEventTypes lists every lifecycle event.
func AllEventTypes() []EventType {
	return []EventType{
		EventComplaintCreated,
		EventComplaintRouted,
		EventComplaintMissingInfo,
		EventComplaintAutoResolved,
		EventComplaintExtractionDeferred,
		EventResolutionEvaluated,
		EventResolutionDeadLettered,
		EventDraftGenerated,
		EventComplaintApproved,
	}
}

// Actor encapsulates actor metadata for an event.
type Actor struct {
	Type       domain.ActorType `json:"type"`
	OperatorID *string          `json:"operator_id,omitempty"`
}

// SystemActor is the actor for engine-driven events.
var SystemActor = Actor{Type: domain.ActorTypeSystem}

// OperatorActor builds the actor for a dashboard operator.
func OperatorActor(operatorID string) Actor {
	return Actor{Type: domain.ActorTypeOperator, OperatorID: &operatorID}
}

// Event represents a domain event emitted by services.
type Event struct {
	ID          string    `json:"id"`
	Type        EventType `json:"type"`
	ComplaintID string    `json:"complaint_id"`
	Actor       Actor     `json:"actor"`
	Timestamp   time.Time `json:"timestamp"`
	Payload     any       `json:"payload"`
}

// New stamps an event with an id and the current time.
func New(eventType EventType, complaintID string, actor Actor, payload any) Event {
	return Event{
		ID:          uuid.NewString(),
		Type:        eventType,
		ComplaintID: complaintID,
		Actor:       actor,
		Timestamp:   time.Now().UTC(),
		Payload:     payload,
	}
}

// ComplaintCreatedPayload payload.
type ComplaintCreatedPayload struct {
	SourceMessageID string `json:"source_message_id"`
	SenderEmail     string `json:"sender_email"`
	Subject         string `json:"subject"`
}

// ComplaintRoutedPayload payload.
type ComplaintRoutedPayload struct {
	OriginStation string `json:"origin_station"`
	Mailbox       string `json:"mailbox"`
	Reason        string `json:"reason,omitempty"`
}

// MissingInfoPayload payload.
type MissingInfoPayload struct {
	PNR    *string `json:"pnr,omitempty"`
	Reason string  `json:"reason"`
}

// AutoResolvedPayload payload.
type AutoResolvedPayload struct {
	Strategy   string `json:"strategy"`
	ActionType string `json:"action_type"`
	Percentage int    `json:"percentage"`
	LimitKey   string `json:"limit_key,omitempty"`
}

// ExtractionDeferredPayload payload.
type ExtractionDeferredPayload struct {
	Attempts     int        `json:"attempts"`
	NextAttempt  *time.Time `json:"next_attempt,omitempty"`
	ManualReview bool       `json:"manual_review"`
	Error        string     `json:"error"`
}

// ResolutionEvaluatedPayload payload.
type ResolutionEvaluatedPayload struct {
	SourceMessageID  string                  `json:"source_message_id"`
	ParseSource      domain.ParseSource      `json:"parse_source"`
	ResolutionStatus domain.ResolutionStatus `json:"resolution_status"`
	ConfidenceScore  int                     `json:"confidence_score"`
	Band             domain.ConfidenceBand   `json:"band"`
}

// DeadLetteredPayload payload.
type DeadLetteredPayload struct {
	SourceMessageID string `json:"source_message_id"`
	Attempts        int    `json:"attempts"`
	Error           string `json:"error"`
}

// DraftGeneratedPayload payload.
type DraftGeneratedPayload struct {
	MessageID string `json:"message_id"`
}

// ComplaintApprovedPayload payload.
type ComplaintApprovedPayload struct {
	MessageID      string `json:"message_id"`
	OutboundID     string `json:"outbound_id"`
	FromDraftReady bool   `json:"from_draft_ready"`
}
