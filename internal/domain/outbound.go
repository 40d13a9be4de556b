package domain

import "time"

// OutboundKind identifies the purpose of a queued outbound message.
type OutboundKind string

const (
	OutboundInvestigationRequest OutboundKind = "INVESTIGATION_REQUEST"
	OutboundMissingInfoRequest   OutboundKind = "MISSING_INFO_REQUEST"
	OutboundCustomerDraft        OutboundKind = "CUSTOMER_DRAFT"
	OutboundFinalResponse        OutboundKind = "FINAL_RESPONSE"
)

// OutboundStatus tracks delivery of a queued message to the mailbox gateway.
type OutboundStatus string

const (
	OutboundStatusPending OutboundStatus = "PENDING"
	OutboundStatusSent    OutboundStatus = "SENT"
	OutboundStatusFailed  OutboundStatus = "FAILED"
)

// OutboundNotification is an outbox row written in the same transaction as the
// state change that requested it.
type OutboundNotification struct {
	ID          string
	ComplaintID string
	Kind        OutboundKind
	Mailbox     string
	Recipient   *string
	Subject     string
	Body        string
	Status      OutboundStatus
	Attempts    int
	LastError   *string
	ExternalID  *string
	CreatedAt   time.Time
	SentAt      *time.Time
	// ClaimedUntil is the delivery lease held by the dispatcher sending the row.
	ClaimedUntil *time.Time
}
