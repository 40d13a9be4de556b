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
	"github.com/spec-kit/complaint-service/internal/mailbox"
	"github.com/spec-kit/complaint-service/internal/observability"
	"github.com/spec-kit/complaint-service/internal/repository"
)

// ResolutionService consumes Base Ops replies: it parses the action taken and
// outcome, has them evaluated and records the verdict exactly once.
type ResolutionService struct {
	store       repository.Store
	evaluator   Evaluator
	extractor   ResolutionExtractor
	locker      lock.Locker
	dispatcher  events.Dispatcher
	metrics     *observability.Metrics
	logger      *zap.Logger
	routing     config.RoutingConfig
	callTimeout time.Duration
	maxAttempts int
	transient   func(error) bool
	now         func() time.Time
}

// ResolutionDependencies bundles collaborators for the resolution service.
// Extractor is optional; without it only labelled replies can be parsed.
// Transient classifies evaluator and extractor errors: a transient failure
// leaves the reply for the next cycle without spending an attempt.
type ResolutionDependencies struct {
	Store       repository.Store
	Evaluator   Evaluator
	Extractor   ResolutionExtractor
	Locker      lock.Locker
	Dispatcher  events.Dispatcher
	Metrics     *observability.Metrics
	Logger      *zap.Logger
	Routing     config.RoutingConfig
	CallTimeout time.Duration
	MaxAttempts int
	Transient   func(error) bool
	Now         func() time.Time
}

// NewResolutionService constructs the service.
func NewResolutionService(deps ResolutionDependencies) *ResolutionService {
	s := &ResolutionService{
		store:       deps.Store,
		evaluator:   deps.Evaluator,
		extractor:   deps.Extractor,
		locker:      deps.Locker,
		dispatcher:  deps.Dispatcher,
		metrics:     deps.Metrics,
		logger:      deps.Logger,
		routing:     deps.Routing,
		callTimeout: deps.CallTimeout,
		maxAttempts: deps.MaxAttempts,
		transient:   deps.Transient,
		now:         deps.Now,
	}
	if s.transient == nil {
		s.transient = func(err error) bool { return errors.Is(err, context.DeadlineExceeded) }
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

// Process evaluates one message from the resolutions inbox.
func (s *ResolutionService) Process(ctx context.Context, msg mailbox.Message) (Outcome, error) {
	log := s.logger.With(zap.String("source_message_id", msg.ID))

	caseID, ok := ExtractCaseID(msg.Subject, msg.Body)
	if !ok {
		log.Info("resolution email without case id", zap.String("subject", msg.Subject))
		return OutcomeSkipped, nil
	}
	log = log.With(zap.String("complaint_id", caseID))

	attempt, err := s.store.ResolutionAttempts().Get(ctx, msg.ID)
	if err != nil && !errors.Is(err, repository.ErrNotFound) {
		return OutcomeError, err
	}
	if attempt != nil && attempt.DeadLettered {
		return OutcomeSkipped, nil
	}

	unlock, err := s.locker.Lock(ctx, caseID)
	if err != nil {
		return OutcomeError, err
	}
	defer unlock()

	c, err := s.store.Complaints().GetByID(ctx, caseID)
	if errors.Is(err, repository.ErrNotFound) {
		log.Warn("resolution email for unknown complaint")
		return OutcomeSkipped, nil
	}
	if err != nil {
		return OutcomeError, err
	}
	if !c.ReadyForResolution() {
		log.Debug("complaint not awaiting resolution",
			zap.String("status", string(c.Status)),
			zap.String("resolution_status", string(c.ResolutionStatus)))
		return OutcomeSkipped, nil
	}

	fields, source, ok := ParseResolutionBlock(msg.Body)
	if !ok {
		if s.extractor == nil {
			return s.recordFailure(ctx, c, msg, errNoResolutionFields)
		}
		fields, err = s.extract(ctx, msg.Body)
		if err != nil {
			return s.collaboratorFailed(ctx, c, msg, fmt.Errorf("extract resolution: %w", err))
		}
		if !fields.Complete() {
			return s.recordFailure(ctx, c, msg, errNoResolutionFields)
		}
		source = domain.ParseSourceLLM
	}

	grid := c.Grid.Clone()
	if err := grid.ApplyResolution(fields); err != nil {
		return OutcomeSkipped, nil
	}

	msgs, err := s.store.Messages().ListByComplaint(ctx, c.ID)
	if err != nil {
		return OutcomeError, err
	}
	text := domain.Deref(grid.Complaint)
	if email, ok := domain.FirstCustomerEmail(msgs); ok {
		text = strings.TrimSpace(email.Subject + "\n\n" + StripHTML(email.Body))
	}

	cctx, cancel := callContext(ctx, s.callTimeout)
	eval, err := s.evaluator.Evaluate(cctx, text, grid, StripHTML(msg.Body))
	cancel()
	if err != nil {
		return s.collaboratorFailed(ctx, c, msg, fmt.Errorf("evaluate: %w", err))
	}
	if eval == nil {
		return s.recordFailure(ctx, c, msg, errors.New("evaluator returned no verdict"))
	}
	eval.Normalize()
	if err := grid.ApplyEvaluation(*eval); err != nil {
		return OutcomeSkipped, nil
	}

	return s.record(ctx, c, msg, grid, domain.ResolutionRecord{Fields: fields, Source: source, Evaluation: *eval})
}

var errNoResolutionFields = errors.New("no action taken and outcome in reply")

// extract asks the LLM for the action taken and outcome of an unlabelled reply.
func (s *ResolutionService) extract(ctx context.Context, body string) (domain.ResolutionFields, error) {
	cctx, cancel := callContext(ctx, s.callTimeout)
	defer cancel()
	fields, err := s.extractor.ExtractResolution(cctx, StripHTML(body))
	if err != nil {
		return domain.ResolutionFields{}, err
	}
	fields.ActionTaken = strings.TrimSpace(fields.ActionTaken)
	fields.Outcome = strings.TrimSpace(fields.Outcome)
	return fields, nil
}

// collaboratorFailed leaves msg for the next cycle when the LLM was merely
// unavailable and counts an attempt otherwise.
func (s *ResolutionService) collaboratorFailed(ctx context.Context, c *domain.Complaint, msg mailbox.Message, cause error) (Outcome, error) {
	if !s.transient(cause) {
		return s.recordFailure(ctx, c, msg, cause)
	}
	s.logger.Warn("resolution collaborator unavailable, will retry",
		zap.String("complaint_id", c.ID),
		zap.String("source_message_id", msg.ID),
		zap.Error(cause))
	return OutcomeRetry, nil
}

func (s *ResolutionService) record(ctx context.Context, c *domain.Complaint, msg mailbox.Message, grid domain.InvestigationGrid, rec domain.ResolutionRecord) (Outcome, error) {
	now := s.now()
	old := c.Status
	eval := rec.Evaluation

	next := domain.ComplaintStatusWaitingOps
	if eval.Status == domain.ResolutionStatusResolved {
		next = domain.ComplaintStatusResolved
	}
	if err := c.TransitionTo(next); err != nil {
		return OutcomeError, err
	}
	c.Grid = &grid
	c.ResolutionStatus = eval.Status

	rendered, err := RenderFinalDraft(*c, eval.Status, eval.ConfidenceScore, eval.AgentSummary, eval.AgentReasoning, eval.DraftResponse)
	if err != nil {
		return OutcomeError, err
	}
	cx := s.routing.CXMailbox
	if cx == "" {
		cx = s.routing.FallbackMailbox
	}
	receivedAt := msg.ReceivedAt
	if receivedAt.IsZero() {
		receivedAt = now
	}

	err = s.store.WithTx(ctx, func(tx repository.Repositories) error {
		applied, err := tx.Complaints().TransitionResolution(ctx, c)
		if err != nil {
			return err
		}
		if !applied {
			return errResolutionRace
		}
		reply := domain.NewConversationMessage(c.ID, domain.AuthorTypeBaseOps, domain.EmailContent{
			From:       msg.Sender,
			Subject:    msg.Subject,
			Body:       msg.Body,
			ReceivedAt: receivedAt,
			SourceID:   msg.ID,
			Resolution: &rec,
		})
		if err := tx.Messages().Append(ctx, reply); err != nil {
			return err
		}
		if err := tx.Outbound().Enqueue(ctx, newOutbound(c.ID, domain.OutboundCustomerDraft, cx, nil, rendered)); err != nil {
			return err
		}
		return tx.History().Create(ctx, newHistory(c, domain.HistoryResolutionEvaluated, old, events.SystemActor, map[string]any{
			"source_message_id": msg.ID,
			"parse_source":      string(rec.Source),
			"resolution_status": string(eval.Status),
			"confidence_score":  eval.ConfidenceScore,
		}, now))
	})
	if errors.Is(err, errResolutionRace) {
		return OutcomeSkipped, nil
	}
	if err != nil {
		return OutcomeError, err
	}

	s.logger.Info("resolution evaluated",
		zap.String("complaint_id", c.ID),
		zap.String("parse_source", string(rec.Source)),
		zap.String("resolution_status", string(eval.Status)),
		zap.Int("confidence_score", eval.ConfidenceScore))
	publish(ctx, s.dispatcher, events.New(events.EventResolutionEvaluated, c.ID, events.SystemActor,
		events.ResolutionEvaluatedPayload{
			SourceMessageID:  msg.ID,
			ParseSource:      rec.Source,
			ResolutionStatus: eval.Status,
			ConfidenceScore:  eval.ConfidenceScore,
			Band:             domain.BandFor(eval.ConfidenceScore),
		}))
	if eval.Status == domain.ResolutionStatusResolved {
		return OutcomeResolved, nil
	}
	return OutcomeFlagged, nil
}

// recordFailure counts a failed pass over msg. The message stays in the inbox
// and is retried next cycle until the attempt budget is spent.
func (s *ResolutionService) recordFailure(ctx context.Context, c *domain.Complaint, msg mailbox.Message, cause error) (Outcome, error) {
	attempts, err := s.store.ResolutionAttempts().RecordFailure(ctx, msg.ID, c.ID, cause.Error())
	if err != nil {
		return OutcomeError, err
	}
	log := s.logger.With(
		zap.String("complaint_id", c.ID),
		zap.String("source_message_id", msg.ID),
		zap.Int("attempts", attempts),
		zap.Error(cause))
	if attempts < s.maxAttempts {
		log.Warn("resolution processing failed, will retry")
		return OutcomeRetry, nil
	}

	now := s.now()
	c.FlagForManualReview(fmt.Sprintf("resolution email %s failed %d times: %v", msg.ID, attempts, cause))
	err = s.store.WithTx(ctx, func(tx repository.Repositories) error {
		if err := tx.ResolutionAttempts().MarkDeadLettered(ctx, msg.ID); err != nil {
			return err
		}
		if err := tx.Complaints().Update(ctx, c); err != nil {
			return err
		}
		return tx.History().Create(ctx, newHistory(c, domain.HistoryDeadLettered, c.Status, events.SystemActor, map[string]any{
			"source_message_id": msg.ID,
			"attempts":          attempts,
			"error":             cause.Error(),
		}, now))
	})
	if err != nil {
		return OutcomeError, err
	}

	log.Error("resolution email dead-lettered")
	publish(ctx, s.dispatcher, events.New(events.EventResolutionDeadLettered, c.ID, events.SystemActor,
		events.DeadLetteredPayload{SourceMessageID: msg.ID, Attempts: attempts, Error: cause.Error()}))
	return OutcomeDeadLettered, nil
}
