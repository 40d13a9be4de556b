package domain

import (
	"encoding/json"
	"fmt"
	"time"
)

// AuthorType indicates who authored a conversation message.
type AuthorType string

const (
	AuthorTypeCustomer AuthorType = "CUSTOMER"
	AuthorTypeAgent    AuthorType = "AGENT"
	AuthorTypeBaseOps  AuthorType = "BASE_OPS"
)

// MessageType is the tag of the message content union.
type MessageType string

const (
	MessageTypeEmail MessageType = "EMAIL"
	MessageTypeGrid  MessageType = "GRID"
	MessageTypeDraft MessageType = "DRAFT"
	MessageTypeFinal MessageType = "FINAL"
)

// MessageContent is the payload of a conversation message. Exactly one
// implementation exists per MessageType.
type MessageContent interface {
	MessageType() MessageType
}

// EmailContent carries an inbound email. Resolution is set on Base Ops replies
// once they have been parsed and evaluated.
type EmailContent struct {
	From       string            `json:"from"`
	Subject    string            `json:"subject"`
	Body       string            `json:"body"`
	ReceivedAt time.Time         `json:"received_at"`
	SourceID   string            `json:"source_id,omitempty"`
	Resolution *ResolutionRecord `json:"resolution,omitempty"`
}

// GridContent snapshots the accumulated grid and its field confidence.
type GridContent struct {
	GridFields InvestigationGrid          `json:"grid_fields"`
	Confidence map[string]FieldConfidence `json:"confidence"`
}

// DraftContent is AI-drafted customer prose awaiting approval.
type DraftContent struct {
	Text  string `json:"text"`
	Notes string `json:"notes,omitempty"`
}

// FinalContent is the approved customer-facing response.
type FinalContent struct {
	Text string `json:"text"`
}

func (EmailContent) MessageType() MessageType { return MessageTypeEmail }
func (GridContent) MessageType() MessageType  { return MessageTypeGrid }
func (DraftContent) MessageType() MessageType { return MessageTypeDraft }
func (FinalContent) MessageType() MessageType { return MessageTypeFinal }

// ConversationMessage is an append-only log entry attached to a complaint.
type ConversationMessage struct {
	ID          string
	ComplaintID string
	AuthorType  AuthorType
	AuthorID    *string
	Content     MessageContent
	CreatedAt   time.Time
}

// NewConversationMessage builds a message whose type is fixed by its content.
func NewConversationMessage(complaintID string, author AuthorType, content MessageContent) *ConversationMessage {
	return &ConversationMessage{
		ComplaintID: complaintID,
		AuthorType:  author,
		Content:     content,
	}
}

// Type returns the union tag.
func (m ConversationMessage) Type() MessageType {
	if m.Content == nil {
		return ""
	}
	return m.Content.MessageType()
}

// Email returns the EMAIL payload when m carries one.
func (m ConversationMessage) Email() (EmailContent, bool) {
	c, ok := m.Content.(EmailContent)
	return c, ok
}

// Grid returns the GRID payload when m carries one.
func (m ConversationMessage) Grid() (GridContent, bool) {
	c, ok := m.Content.(GridContent)
	return c, ok
}

// Draft returns the DRAFT payload when m carries one.
func (m ConversationMessage) Draft() (DraftContent, bool) {
	c, ok := m.Content.(DraftContent)
	return c, ok
}

// Final returns the FINAL payload when m carries one.
func (m ConversationMessage) Final() (FinalContent, bool) {
	c, ok := m.Content.(FinalContent)
	return c, ok
}

// EncodeContent serializes a payload for storage.
func EncodeContent(content MessageContent) ([]byte, error) {
	if content == nil {
		return nil, fmt.Errorf("nil message content")
	}
	return json.Marshal(content)
}

// DecodeContent rebuilds the payload for the given tag.
func DecodeContent(messageType MessageType, raw []byte) (MessageContent, error) {
	switch messageType {
	case MessageTypeEmail:
		var c EmailContent
		if err := json.Unmarshal(raw, &c); err != nil {
			return nil, fmt.Errorf("decode email content: %w", err)
		}
		return c, nil
	case MessageTypeGrid:
		var c GridContent
		if err := json.Unmarshal(raw, &c); err != nil {
			return nil, fmt.Errorf("decode grid content: %w", err)
		}
		return c, nil
	case MessageTypeDraft:
		var c DraftContent
		if err := json.Unmarshal(raw, &c); err != nil {
			return nil, fmt.Errorf("decode draft content: %w", err)
		}
		return c, nil
	case MessageTypeFinal:
		var c FinalContent
		if err := json.Unmarshal(raw, &c); err != nil {
			return nil, fmt.Errorf("decode final content: %w", err)
		}
		return c, nil
	default:
		return nil, fmt.Errorf("unknown message type %q", messageType)
	}
}

// ReplayGrid derives the grid from the conversation log: the latest GRID
// snapshot, then any evaluated Base Ops resolutions recorded after it.
// It returns nil when no GRID message exists.
func ReplayGrid(messages []ConversationMessage) *InvestigationGrid {
	var grid *InvestigationGrid
	for _, msg := range messages {
		switch content := msg.Content.(type) {
		case GridContent:
			g := content.GridFields.Clone()
			grid = &g
		case EmailContent:
			if grid == nil || content.Resolution == nil || msg.AuthorType != AuthorTypeBaseOps {
				continue
			}
			if err := grid.ApplyResolution(content.Resolution.Fields); err != nil {
				continue
			}
			_ = grid.ApplyEvaluation(content.Resolution.Evaluation)
		}
	}
	return grid
}

// FirstCustomerEmail returns the email that opened the complaint.
func FirstCustomerEmail(messages []ConversationMessage) (EmailContent, bool) {
	for _, msg := range messages {
		if msg.AuthorType != AuthorTypeCustomer {
			continue
		}
		if email, ok := msg.Email(); ok {
			return email, true
		}
	}
	return EmailContent{}, false
}
