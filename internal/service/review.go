package service

import (
	"context"
	"errors"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/spec-kit/complaint-service/internal/config"
	"github.com/spec-kit/complaint-service/internal/domain"
	"github.com/spec-kit/complaint-service/internal/events"
	"github.com/spec-kit/complaint-service/internal/lock"
	"github.com/spec-kit/complaint-service/internal/repository"
	apperrors "github.com/spec-kit/complaint-service/pkg/util"
)

// ReviewService backs the dashboard's draft and approve actions.
type ReviewService struct {
	store       repository.Store
	drafter     DraftWriter
	locker      lock.Locker
	dispatcher  events.Dispatcher
	logger      *zap.Logger
	routing     config.RoutingConfig
	callTimeout time.Duration
	now         func() time.Time
}

// ReviewDependencies bundles collaborators for the review service.
type ReviewDependencies struct {
	Store       repository.Store
	Drafter     DraftWriter
	Locker      lock.Locker
	Dispatcher  events.Dispatcher
	Logger      *zap.Logger
	Routing     config.RoutingConfig
	CallTimeout time.Duration
	Now         func() time.Time
}

// NewReviewService constructs the service.
func NewReviewService(deps ReviewDependencies) *ReviewService {
	s := &ReviewService{
		store:       deps.Store,
		drafter:     deps.Drafter,
		locker:      deps.Locker,
		dispatcher:  deps.Dispatcher,
		logger:      deps.Logger,
		routing:     deps.Routing,
		callTimeout: deps.CallTimeout,
		now:         deps.Now,
	}
	if s.locker == nil {
		s.locker = lock.NewMutexMap()
	}
	if s.logger == nil {
		s.logger = zap.NewNop()
	}
	if s.now == nil {
		s.now = systemClock
	}
	return s
}

// GenerateDraft asks the drafter for customer prose and parks the complaint in
// DRAFT_READY. Regenerating from DRAFT_READY appends another draft.
func (s *ReviewService) GenerateDraft(ctx context.Context, complaintID string, operator domain.Operator, notes string) (*domain.ConversationMessage, error) {
	unlock, err := s.locker.Lock(ctx, complaintID)
	if err != nil {
		return nil, err
	}
	defer unlock()

	c, msgs, err := s.load(ctx, complaintID)
	if err != nil {
		return nil, err
	}
	if c.Status != domain.ComplaintStatusWaitingOps && c.Status != domain.ComplaintStatusDraftReady {
		return nil, apperrors.NewConflict("complaint is not awaiting a draft", map[string]any{"status": c.Status})
	}
	grid := domain.ReplayGrid(msgs)
	if grid == nil {
		return nil, apperrors.NewConflict(domain.ErrGridMissing.Error(), map[string]any{"complaint_id": c.ID})
	}

	text := domain.Deref(grid.Complaint)
	if email, ok := domain.FirstCustomerEmail(msgs); ok {
		text = strings.TrimSpace(email.Subject + "\n\n" + StripHTML(email.Body))
	}
	cctx, cancel := callContext(ctx, s.callTimeout)
	draft, err := s.drafter.DraftReply(cctx, *grid, text, notes)
	cancel()
	if err != nil {
		s.logger.Warn("draft generation failed", zap.String("complaint_id", c.ID), zap.Error(err))
		return nil, apperrors.NewUpstreamError("drafter", err)
	}
	if strings.TrimSpace(draft) == "" {
		return nil, apperrors.NewUpstreamError("drafter", errors.New("empty draft"))
	}

	now := s.now()
	old := c.Status
	if err := c.TransitionTo(domain.ComplaintStatusDraftReady); err != nil {
		return nil, apperrors.NewConflict(err.Error(), nil)
	}
	actor := events.OperatorActor(operator.ID)
	msg := domain.NewConversationMessage(c.ID, domain.AuthorTypeAgent, domain.DraftContent{Text: draft, Notes: notes})
	err = s.store.WithTx(ctx, func(tx repository.Repositories) error {
		if err := tx.Complaints().Update(ctx, c); err != nil {
			return err
		}
		if err := tx.Messages().Append(ctx, msg); err != nil {
			return err
		}
		return tx.History().Create(ctx, newHistory(c, domain.HistoryDraftGenerated, old, actor,
			map[string]any{"message_id": msg.ID, "has_notes": notes != ""}, now))
	})
	if err != nil {
		return nil, err
	}

	s.logger.Info("draft generated", zap.String("complaint_id", c.ID), zap.String("operator_id", operator.ID))
	publish(ctx, s.dispatcher, events.New(events.EventDraftGenerated, c.ID, actor, events.DraftGeneratedPayload{MessageID: msg.ID}))
	return msg, nil
}

// Approve records the final response and queues it to the passenger. An empty
// body approves the latest draft as written.
func (s *ReviewService) Approve(ctx context.Context, complaintID string, operator domain.Operator, body string) (*domain.ConversationMessage, error) {
	unlock, err := s.locker.Lock(ctx, complaintID)
	if err != nil {
		return nil, err
	}
	defer unlock()

	c, msgs, err := s.load(ctx, complaintID)
	if err != nil {
		return nil, err
	}
	if c.Status != domain.ComplaintStatusDraftReady && c.Status != domain.ComplaintStatusApproved {
		return nil, apperrors.NewConflict("complaint has no draft to approve", map[string]any{"status": c.Status})
	}
	text := strings.TrimSpace(body)
	if text == "" {
		text = latestDraft(msgs)
	}
	if text == "" {
		return nil, apperrors.NewValidationError("response body is required", nil)
	}
	recipient := domain.StringPtr(c.SenderEmail)
	if recipient == nil {
		return nil, apperrors.NewConflict("complaint has no sender address", map[string]any{"complaint_id": c.ID})
	}
	rendered, err := RenderFinalResponse(*c, text)
	if err != nil {
		return nil, err
	}

	now := s.now()
	old := c.Status
	if err := c.TransitionTo(domain.ComplaintStatusApproved); err != nil {
		return nil, apperrors.NewConflict(err.Error(), nil)
	}
	cx := s.routing.CXMailbox
	if cx == "" {
		cx = s.routing.FallbackMailbox
	}
	actor := events.OperatorActor(operator.ID)
	msg := domain.NewConversationMessage(c.ID, domain.AuthorTypeBaseOps, domain.FinalContent{Text: text})
	msg.AuthorID = &operator.ID
	outbound := newOutbound(c.ID, domain.OutboundFinalResponse, cx, recipient, rendered)
	err = s.store.WithTx(ctx, func(tx repository.Repositories) error {
		if err := tx.Complaints().Update(ctx, c); err != nil {
			return err
		}
		if err := tx.Messages().Append(ctx, msg); err != nil {
			return err
		}
		if err := tx.Outbound().Enqueue(ctx, outbound); err != nil {
			return err
		}
		return tx.History().Create(ctx, newHistory(c, domain.HistoryApproved, old, actor,
			map[string]any{"message_id": msg.ID, "outbound_id": outbound.ID}, now))
	})
	if err != nil {
		return nil, err
	}

	s.logger.Info("response approved", zap.String("complaint_id", c.ID), zap.String("operator_id", operator.ID))
	publish(ctx, s.dispatcher, events.New(events.EventComplaintApproved, c.ID, actor, events.ComplaintApprovedPayload{
		MessageID:      msg.ID,
		OutboundID:     outbound.ID,
		FromDraftReady: old == domain.ComplaintStatusDraftReady,
	}))
	return msg, nil
}

func (s *ReviewService) load(ctx context.Context, complaintID string) (*domain.Complaint, []domain.ConversationMessage, error) {
	c, err := s.store.Complaints().GetByID(ctx, complaintID)
	if errors.Is(err, repository.ErrNotFound) {
		return nil, nil, apperrors.NewNotFound("complaint", map[string]any{"id": complaintID})
	}
	if err != nil {
		return nil, nil, err
	}
	msgs, err := s.store.Messages().ListByComplaint(ctx, c.ID)
	if err != nil {
		return nil, nil, err
	}
	return c, msgs, nil
}

func latestDraft(msgs []domain.ConversationMessage) string {
	for i := len(msgs) - 1; i >= 0; i-- {
		if d, ok := msgs[i].Draft(); ok {
			return d.Text
		}
	}
	return ""
}
