package mailbox

import (
	"context"
	"time"
)

// Folder names a logical inbox the engine polls.
type Folder string

// Message is an inbound email as returned by the gateway.
type Message struct {
	ID         string
	Subject    string
	Body       string
	Sender     string
	ReceivedAt time.Time
}

// OutboundRequest asks the gateway to create an outgoing draft or message.
// Mailbox is the mailbox that owns the draft; Recipient defaults to Mailbox.
type OutboundRequest struct {
	Mailbox   string
	Subject   string
	Body      string
	Recipient *string
}

// Gateway is the mail transport used by the engine.
type Gateway interface {
	// FetchNew returns the newest limit messages in folder, newest first. The
	// engine decides which ones are new by its own idempotency key.
	FetchNew(ctx context.Context, folder Folder, limit int) ([]Message, error)
	// CreateOutbound creates the outgoing message and returns its provider id.
	CreateOutbound(ctx context.Context, req OutboundRequest) (string, error)
}

func (r OutboundRequest) to() string {
	if r.Recipient != nil && *r.Recipient != "" {
		return *r.Recipient
	}
	return r.Mailbox
}
