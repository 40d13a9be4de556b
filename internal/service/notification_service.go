package service

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/spec-kit/complaint-service/internal/domain"
	"github.com/spec-kit/complaint-service/internal/events"
	"github.com/spec-kit/complaint-service/internal/mailbox"
	"github.com/spec-kit/complaint-service/internal/observability"
	"github.com/spec-kit/complaint-service/internal/repository"
)

// NotificationService delivers the outbox through the mailbox gateway and
// reacts to lifecycle events.
type NotificationService struct {
	outbound    repository.OutboundRepository
	gateway     mailbox.Gateway
	dispatcher  events.Dispatcher
	metrics     *observability.Metrics
	logger      *zap.Logger
	callTimeout time.Duration
	maxAttempts int
	claimLease  time.Duration
}

// NotificationDependencies bundles collaborators for the notification service.
type NotificationDependencies struct {
	Outbound    repository.OutboundRepository
	Gateway     mailbox.Gateway
	Dispatcher  events.Dispatcher
	Metrics     *observability.Metrics
	Logger      *zap.Logger
	CallTimeout time.Duration
	MaxAttempts int
	// ClaimLease bounds how long a row stays reserved for one dispatcher.
	ClaimLease time.Duration
}

// NewNotificationService creates the service.
func NewNotificationService(deps NotificationDependencies) *NotificationService {
	n := &NotificationService{
		outbound:    deps.Outbound,
		gateway:     deps.Gateway,
		dispatcher:  deps.Dispatcher,
		metrics:     deps.Metrics,
		logger:      deps.Logger,
		callTimeout: deps.CallTimeout,
		maxAttempts: deps.MaxAttempts,
		claimLease:  deps.ClaimLease,
	}
	if n.claimLease <= 0 {
		n.claimLease = 5 * time.Minute
	}
	if n.logger == nil {
		n.logger = zap.NewNop()
	}
	if n.maxAttempts < 1 {
		n.maxAttempts = 1
	}
	return n
}

// RegisterHandlers subscribes to events.
func (n *NotificationService) RegisterHandlers() {
	if n.dispatcher == nil {
		return
	}
	events.SubscribeAll(n.dispatcher, n.handleLifecycleEvent)
}

func (n *NotificationService) handleLifecycleEvent(_ context.Context, event events.Event) error {
	n.metrics.Incr("event."+string(event.Type), 1)
	n.logger.Info(string(event.Type),
		zap.String("complaint_id", event.ComplaintID),
		zap.String("actor_type", string(event.Actor.Type)),
		zap.Any("payload", event.Payload))
	return nil
}

// Pending lists queued messages awaiting delivery.
func (n *NotificationService) Pending(ctx context.Context, limit int) ([]domain.OutboundNotification, error) {
	return n.outbound.ListPending(ctx, limit)
}

// Deliver claims one queued message, hands it to the gateway and records the
// result. A row claimed by another dispatcher, or already sent, is skipped.
func (n *NotificationService) Deliver(ctx context.Context, msg domain.OutboundNotification) (Outcome, error) {
	claimed, err := n.outbound.Claim(ctx, msg.ID, n.claimLease)
	if err != nil {
		return OutcomeError, err
	}
	if !claimed {
		n.logger.Debug("outbound already claimed", zap.String("outbound_id", msg.ID))
		return OutcomeSkipped, nil
	}

	cctx, cancel := callContext(ctx, n.callTimeout)
	externalID, err := n.gateway.CreateOutbound(cctx, mailbox.OutboundRequest{
		Mailbox:   msg.Mailbox,
		Subject:   msg.Subject,
		Body:      msg.Body,
		Recipient: msg.Recipient,
	})
	cancel()

	log := n.logger.With(
		zap.String("outbound_id", msg.ID),
		zap.String("complaint_id", msg.ComplaintID),
		zap.String("kind", string(msg.Kind)),
		zap.String("mailbox", msg.Mailbox))
	if err != nil {
		if markErr := n.outbound.MarkFailed(ctx, msg.ID, err.Error(), n.maxAttempts); markErr != nil {
			return OutcomeError, markErr
		}
		log.Warn("outbound delivery failed", zap.Int("attempt", msg.Attempts+1), zap.Error(err))
		return OutcomeFailed, nil
	}
	if err := n.outbound.MarkSent(ctx, msg.ID, externalID); err != nil {
		return OutcomeError, err
	}
	log.Info("outbound delivered", zap.String("external_id", externalID))
	return OutcomeSent, nil
}

func newOutbound(complaintID string, kind domain.OutboundKind, mailbox string, recipient *string, r Rendered) *domain.OutboundNotification {
	return &domain.OutboundNotification{
		ComplaintID: complaintID,
		Kind:        kind,
		Mailbox:     mailbox,
		Recipient:   recipient,
		Subject:     r.Subject,
		Body:        r.Body,
		Status:      domain.OutboundStatusPending,
	}
}
