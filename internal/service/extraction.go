package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/spec-kit/complaint-service/internal/config"
	"github.com/spec-kit/complaint-service/internal/domain"
	"github.com/spec-kit/complaint-service/internal/events"
	"github.com/spec-kit/complaint-service/internal/lock"
	"github.com/spec-kit/complaint-service/internal/observability"
	"github.com/spec-kit/complaint-service/internal/repository"
)

var errResolutionRace = errors.New("resolution already recorded")

// ExtractionService builds the investigation grid for NEW complaints and
// routes them to Base Ops, to the customer for missing info, or straight to
// an auto-resolution.
type ExtractionService struct {
	store       repository.Store
	extractor   GridExtractor
	resolver    AutoResolver
	locker      lock.Locker
	dispatcher  events.Dispatcher
	metrics     *observability.Metrics
	logger      *zap.Logger
	routing     config.RoutingConfig
	callTimeout time.Duration
	maxAttempts int
	backoffBase time.Duration
	backoffMax  time.Duration
	now         func() time.Time
}

// ExtractionDependencies bundles collaborators for the extraction service.
type ExtractionDependencies struct {
	Store       repository.Store
	Extractor   GridExtractor
	Resolver    AutoResolver
	Locker      lock.Locker
	Dispatcher  events.Dispatcher
	Metrics     *observability.Metrics
	Logger      *zap.Logger
	Routing     config.RoutingConfig
	CallTimeout time.Duration
	MaxAttempts int
	BackoffBase time.Duration
	BackoffMax  time.Duration
	Now         func() time.Time
}

// NewExtractionService constructs the service.
func NewExtractionService(deps ExtractionDependencies) *ExtractionService {
	s := &ExtractionService{
		store:       deps.Store,
		extractor:   deps.Extractor,
		resolver:    deps.Resolver,
		locker:      deps.Locker,
		dispatcher:  deps.Dispatcher,
		metrics:     deps.Metrics,
		logger:      deps.Logger,
		routing:     deps.Routing,
		callTimeout: deps.CallTimeout,
		maxAttempts: deps.MaxAttempts,
		backoffBase: deps.BackoffBase,
		backoffMax:  deps.BackoffMax,
		now:         deps.Now,
	}
	if s.resolver == nil {
		s.resolver = noAutoResolve{}
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
	if s.maxAttempts < 1 {
		s.maxAttempts = 1
	}
	return s
}

// Pending lists complaints due for extraction.
func (s *ExtractionService) Pending(ctx context.Context, limit int) ([]domain.Complaint, error) {
	return s.store.Complaints().ListPendingExtraction(ctx, s.now(), limit)
}

// Process runs extraction for one complaint id.
func (s *ExtractionService) Process(ctx context.Context, complaintID string) (Outcome, error) {
	unlock, err := s.locker.Lock(ctx, complaintID)
	if err != nil {
		return OutcomeError, err
	}
	defer unlock()

	c, err := s.store.Complaints().GetByID(ctx, complaintID)
	if err != nil {
		return OutcomeError, err
	}
	if !c.ReadyForExtraction(s.now()) {
		return OutcomeSkipped, nil
	}

	msgs, err := s.store.Messages().ListByComplaint(ctx, c.ID)
	if err != nil {
		return OutcomeError, err
	}
	email, ok := domain.FirstCustomerEmail(msgs)
	if !ok {
		return s.deferExtraction(ctx, c, errors.New("no customer email on record"))
	}

	cctx, cancel := callContext(ctx, s.callTimeout)
	ext, err := s.extractor.ExtractGrid(cctx, email.Subject, email.Body, email.ReceivedAt)
	cancel()
	if err != nil {
		return s.deferExtraction(ctx, c, fmt.Errorf("extract grid: %w", err))
	}
	if ext == nil {
		return s.deferExtraction(ctx, c, errors.New("extractor returned no grid"))
	}
	ext.Normalize()

	if ext.Grid.PNR == nil {
		return s.missingInfo(ctx, c, *ext, "no PNR in complaint")
	}
	passenger, err := s.store.Passengers().GetByPNR(ctx, *ext.Grid.PNR)
	if errors.Is(err, repository.ErrNotFound) {
		return s.missingInfo(ctx, c, *ext, "PNR not found in passenger records")
	}
	if err != nil {
		return s.deferExtraction(ctx, c, fmt.Errorf("passenger lookup: %w", err))
	}
	return s.route(ctx, c, *ext, *passenger, email)
}

func (s *ExtractionService) route(ctx context.Context, c *domain.Complaint, ext domain.Extraction, p domain.Passenger, email domain.EmailContent) (Outcome, error) {
	now := s.now()
	merged := ext.Grid.MergePassenger(p)
	confidence := mergeConfidence(ext.Confidence, merged)

	station := strings.ToUpper(strings.TrimSpace(p.Source))
	if station == "" {
		station = domain.Deref(merged.Source)
	}
	old := c.Status
	c.OriginStation = domain.StringPtr(station)
	c.NextExtractionAt = nil

	proposal, decision := s.propose(ctx, c, merged, &p, email)
	if proposal != nil && decision.Eligible {
		grid := merged.Clone()
		if err := grid.ApplyAutoResolution(*proposal); err != nil {
			return OutcomeError, err
		}
		return s.autoResolve(ctx, c, old, grid, confidence, *proposal, decision, now)
	}

	c.Grid = &merged
	if err := c.TransitionTo(domain.ComplaintStatusWaitingOps); err != nil {
		return OutcomeError, err
	}
	mailbox := s.routing.MailboxFor(station)
	rendered, err := RenderInvestigationRequest(*c, merged)
	if err != nil {
		return OutcomeError, err
	}

	details := map[string]any{"origin_station": station, "mailbox": mailbox}
	if proposal != nil {
		details["auto_resolve"] = decision.Reason
	}
	err = s.store.WithTx(ctx, func(tx repository.Repositories) error {
		if err := tx.Complaints().Update(ctx, c); err != nil {
			return err
		}
		gridMsg := domain.NewConversationMessage(c.ID, domain.AuthorTypeAgent, domain.GridContent{GridFields: merged, Confidence: confidence})
		if err := tx.Messages().Append(ctx, gridMsg); err != nil {
			return err
		}
		if err := tx.Outbound().Enqueue(ctx, newOutbound(c.ID, domain.OutboundInvestigationRequest, mailbox, nil, rendered)); err != nil {
			return err
		}
		return tx.History().Create(ctx, newHistory(c, domain.HistoryRouted, old, events.SystemActor, details, now))
	})
	if err != nil {
		return OutcomeError, err
	}

	s.logger.Info("complaint routed to base ops",
		zap.String("complaint_id", c.ID),
		zap.String("origin_station", station),
		zap.String("mailbox", mailbox))
	publish(ctx, s.dispatcher, events.New(events.EventComplaintRouted, c.ID, events.SystemActor,
		events.ComplaintRoutedPayload{OriginStation: station, Mailbox: mailbox, Reason: decision.Reason}))
	return OutcomeRouted, nil
}

// propose asks the configured strategies for a proposal and runs it through
// the policy gate. A nil proposal means the complaint goes to Base Ops.
func (s *ExtractionService) propose(ctx context.Context, c *domain.Complaint, grid domain.InvestigationGrid, p *domain.Passenger, email domain.EmailContent) (*domain.Proposal, GateDecision) {
	cctx, cancel := callContext(ctx, s.callTimeout)
	defer cancel()
	proposal, err := s.resolver.Propose(cctx, AutoResolveInput{
		Complaint:     *c,
		Grid:          grid,
		Passenger:     p,
		ComplaintText: complaintText(grid, email),
	})
	if err != nil {
		s.logger.Warn("auto-resolve proposal failed", zap.String("complaint_id", c.ID), zap.Error(err))
		return nil, GateDecision{}
	}
	if proposal == nil {
		return nil, GateDecision{}
	}
	limits, err := s.store.Policies().List(ctx)
	if err != nil {
		s.logger.Warn("policy limits unavailable", zap.String("complaint_id", c.ID), zap.Error(err))
		return proposal, GateDecision{Reason: "policy limits unavailable"}
	}
	decision := EvaluatePolicy(*proposal, limits)
	s.logger.Info("policy gate evaluated",
		zap.String("complaint_id", c.ID),
		zap.String("strategy", proposal.Strategy),
		zap.String("action_type", proposal.ActionType),
		zap.Int("percentage", proposal.Percentage),
		zap.Bool("eligible", decision.Eligible),
		zap.String("reason", decision.Reason))
	return proposal, decision
}

func (s *ExtractionService) autoResolve(ctx context.Context, c *domain.Complaint, old domain.ComplaintStatus, grid domain.InvestigationGrid, confidence map[string]domain.FieldConfidence, p domain.Proposal, decision GateDecision, now time.Time) (Outcome, error) {
	c.Grid = &grid
	if err := c.TransitionTo(domain.ComplaintStatusResolved); err != nil {
		return OutcomeError, err
	}
	c.ResolutionStatus = domain.ResolutionStatusResolved

	rendered, err := RenderFinalDraft(*c, domain.ResolutionStatusResolved, domain.AutoResolveConfidence,
		domain.Deref(grid.AgentSummary), p.Reasoning, p.DraftResponse)
	if err != nil {
		return OutcomeError, err
	}
	cx := s.cxMailbox()
	err = s.store.WithTx(ctx, func(tx repository.Repositories) error {
		applied, err := tx.Complaints().TransitionResolution(ctx, c)
		if err != nil {
			return err
		}
		if !applied {
			return errResolutionRace
		}
		gridMsg := domain.NewConversationMessage(c.ID, domain.AuthorTypeAgent, domain.GridContent{GridFields: grid, Confidence: confidence})
		if err := tx.Messages().Append(ctx, gridMsg); err != nil {
			return err
		}
		if err := tx.Outbound().Enqueue(ctx, newOutbound(c.ID, domain.OutboundCustomerDraft, cx, nil, rendered)); err != nil {
			return err
		}
		return tx.History().Create(ctx, newHistory(c, domain.HistoryAutoResolved, old, events.SystemActor, map[string]any{
			"strategy":    p.Strategy,
			"action_type": p.ActionType,
			"percentage":  p.Percentage,
			"reason":      decision.Reason,
		}, now))
	})
	if errors.Is(err, errResolutionRace) {
		return OutcomeSkipped, nil
	}
	if err != nil {
		return OutcomeError, err
	}

	s.logger.Info("complaint auto-resolved",
		zap.String("complaint_id", c.ID),
		zap.String("strategy", p.Strategy),
		zap.String("action_type", p.ActionType))
	publish(ctx, s.dispatcher, events.New(events.EventComplaintAutoResolved, c.ID, events.SystemActor,
		events.AutoResolvedPayload{
			Strategy:   p.Strategy,
			ActionType: p.ActionType,
			Percentage: p.Percentage,
			LimitKey:   decision.LimitKey,
		}))
	return OutcomeAutoResolved, nil
}

func (s *ExtractionService) missingInfo(ctx context.Context, c *domain.Complaint, ext domain.Extraction, reason string) (Outcome, error) {
	now := s.now()
	old := c.Status
	grid := ext.Grid
	c.Grid = &grid
	c.NextExtractionAt = nil
	if err := c.TransitionTo(domain.ComplaintStatusMissingInfo); err != nil {
		return OutcomeError, err
	}
	rendered, err := RenderMissingInfoRequest(*c, grid)
	if err != nil {
		return OutcomeError, err
	}
	recipient := domain.StringPtr(c.SenderEmail)
	cx := s.cxMailbox()

	err = s.store.WithTx(ctx, func(tx repository.Repositories) error {
		if err := tx.Complaints().Update(ctx, c); err != nil {
			return err
		}
		gridMsg := domain.NewConversationMessage(c.ID, domain.AuthorTypeAgent, domain.GridContent{GridFields: grid, Confidence: ext.Confidence})
		if err := tx.Messages().Append(ctx, gridMsg); err != nil {
			return err
		}
		if err := tx.Outbound().Enqueue(ctx, newOutbound(c.ID, domain.OutboundMissingInfoRequest, cx, recipient, rendered)); err != nil {
			return err
		}
		return tx.History().Create(ctx, newHistory(c, domain.HistoryMissingInfo, old, events.SystemActor,
			map[string]any{"reason": reason, "pnr": domain.Deref(grid.PNR)}, now))
	})
	if err != nil {
		return OutcomeError, err
	}

	s.logger.Info("complaint missing passenger info", zap.String("complaint_id", c.ID), zap.String("reason", reason))
	publish(ctx, s.dispatcher, events.New(events.EventComplaintMissingInfo, c.ID, events.SystemActor,
		events.MissingInfoPayload{PNR: grid.PNR, Reason: reason}))
	return OutcomeMissingInfo, nil
}

// deferExtraction schedules a retry with exponential backoff, or flags the
// complaint for manual review once attempts are exhausted.
func (s *ExtractionService) deferExtraction(ctx context.Context, c *domain.Complaint, cause error) (Outcome, error) {
	now := s.now()
	c.ExtractionAttempts++
	payload := events.ExtractionDeferredPayload{Attempts: c.ExtractionAttempts, Error: cause.Error()}
	outcome := OutcomeDeferred
	if c.ExtractionAttempts >= s.maxAttempts {
		c.FlagForManualReview(fmt.Sprintf("extraction failed %d times: %v", c.ExtractionAttempts, cause))
		c.NextExtractionAt = nil
		payload.ManualReview = true
		outcome = OutcomeFlagged
	} else {
		next := now.Add(backoffDelay(s.backoffBase, s.backoffMax, c.ExtractionAttempts))
		c.NextExtractionAt = &next
		payload.NextAttempt = &next
	}

	err := s.store.WithTx(ctx, func(tx repository.Repositories) error {
		if err := tx.Complaints().Update(ctx, c); err != nil {
			return err
		}
		return tx.History().Create(ctx, newHistory(c, domain.HistoryExtractionDeferred, c.Status, events.SystemActor, map[string]any{
			"attempts":      c.ExtractionAttempts,
			"error":         cause.Error(),
			"manual_review": payload.ManualReview,
		}, now))
	})
	if err != nil {
		return OutcomeError, err
	}

	s.logger.Warn("extraction deferred",
		zap.String("complaint_id", c.ID),
		zap.Int("attempts", c.ExtractionAttempts),
		zap.Bool("manual_review", payload.ManualReview),
		zap.Error(cause))
	publish(ctx, s.dispatcher, events.New(events.EventComplaintExtractionDeferred, c.ID, events.SystemActor, payload))
	return outcome, nil
}

func (s *ExtractionService) cxMailbox() string {
	if s.routing.CXMailbox != "" {
		return s.routing.CXMailbox
	}
	return s.routing.FallbackMailbox
}

// backoffDelay returns base doubled for every attempt after the first, capped at max.
func backoffDelay(base, max time.Duration, attempt int) time.Duration {
	if base <= 0 {
		base = time.Minute
	}
	delay := base
	for i := 1; i < attempt; i++ {
		delay *= 2
		if max > 0 && delay >= max {
			return max
		}
	}
	if max > 0 && delay > max {
		return max
	}
	return delay
}

// mergeConfidence marks fields the passenger record filled in as INFERRED.
func mergeConfidence(extracted map[string]domain.FieldConfidence, merged domain.InvestigationGrid) map[string]domain.FieldConfidence {
	out := make(map[string]domain.FieldConfidence, len(extracted))
	for k, v := range extracted {
		out[k] = v
	}
	values := map[string]*string{
		"pnr":           merged.PNR,
		"customer_name": merged.CustomerName,
		"flight_number": merged.FlightNumber,
		"seat_number":   merged.SeatNumber,
		"source":        merged.Source,
		"destination":   merged.Destination,
	}
	for name, v := range values {
		if v != nil && out[name] == domain.ConfidenceMissing {
			out[name] = domain.ConfidenceInferred
		}
	}
	return out
}

func complaintText(grid domain.InvestigationGrid, email domain.EmailContent) string {
	if text := domain.Deref(grid.Complaint); text != "" {
		return text
	}
	return strings.TrimSpace(email.Subject + "\n\n" + StripHTML(email.Body))
}
