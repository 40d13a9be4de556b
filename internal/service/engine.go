package service

import (
	"context"
	"errors"
	"fmt"
	"reflect"
	"slices"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/spec-kit/complaint-service/internal/config"
	"github.com/spec-kit/complaint-service/internal/domain"
	"github.com/spec-kit/complaint-service/internal/mailbox"
	"github.com/spec-kit/complaint-service/internal/observability"
	"github.com/spec-kit/complaint-service/internal/repository"
	apperrors "github.com/spec-kit/complaint-service/pkg/util"
)

// CycleReport summarises one polling cycle.
type CycleReport struct {
	StartedAt time.Time    `json:"started_at"`
	Duration  string       `json:"duration"`
	Ingest    *PhaseReport `json:"ingest"`
	Extract   *PhaseReport `json:"extract"`
	Resolve   *PhaseReport `json:"resolve"`
	Dispatch  *PhaseReport `json:"dispatch"`
	Errors    []string     `json:"errors,omitempty"`
}

// Engine runs the four phases of a cycle in order.
type Engine struct {
	store        repository.Store
	gateway      mailbox.Gateway
	ingestion    *IngestionService
	extraction   *ExtractionService
	resolution   *ResolutionService
	notification *NotificationService
	metrics      *observability.Metrics
	logger       *zap.Logger
	mailboxCfg   config.MailboxConfig
	concurrency  int
	batchSize    int

	// one cycle at a time per process
	mu sync.Mutex
}

// EngineDependencies bundles the services driven by the engine.
type EngineDependencies struct {
	Store        repository.Store
	Gateway      mailbox.Gateway
	Ingestion    *IngestionService
	Extraction   *ExtractionService
	Resolution   *ResolutionService
	Notification *NotificationService
	Metrics      *observability.Metrics
	Logger       *zap.Logger
	Mailbox      config.MailboxConfig
	Worker       config.WorkerConfig
}

// NewEngine constructs the engine.
func NewEngine(deps EngineDependencies) *Engine {
	e := &Engine{
		store:        deps.Store,
		gateway:      deps.Gateway,
		ingestion:    deps.Ingestion,
		extraction:   deps.Extraction,
		resolution:   deps.Resolution,
		notification: deps.Notification,
		metrics:      deps.Metrics,
		logger:       deps.Logger,
		mailboxCfg:   deps.Mailbox,
		concurrency:  deps.Worker.Concurrency,
		batchSize:    deps.Worker.BatchSize,
	}
	if e.logger == nil {
		e.logger = zap.NewNop()
	}
	if e.batchSize <= 0 {
		e.batchSize = 25
	}
	return e
}

// RunCycle ingests, extracts, evaluates and dispatches. A failing phase is
// reported and the remaining phases still run.
func (e *Engine) RunCycle(ctx context.Context) *CycleReport {
	e.mu.Lock()
	defer e.mu.Unlock()

	started := time.Now().UTC()
	report := &CycleReport{
		StartedAt: started,
		Ingest:    newPhaseReport(),
		Extract:   newPhaseReport(),
		Resolve:   newPhaseReport(),
		Dispatch:  newPhaseReport(),
	}
	fail := func(phase string, err error) {
		e.logger.Error("cycle phase failed", zap.String("phase", phase), zap.Error(err))
		e.metrics.Incr(phase+".phase_error", 1)
		report.Errors = append(report.Errors, fmt.Sprintf("%s: %v", phase, err))
	}

	if err := e.ingestPhase(ctx, report.Ingest); err != nil {
		fail("ingest", err)
	}
	if err := e.extractPhase(ctx, report.Extract); err != nil {
		fail("extract", err)
	}
	if err := e.resolvePhase(ctx, report.Resolve); err != nil {
		fail("resolve", err)
	}
	if err := e.dispatchPhase(ctx, report.Dispatch); err != nil {
		fail("dispatch", err)
	}

	elapsed := time.Since(started)
	report.Duration = elapsed.String()
	report.Ingest.record(e.metrics, "ingest")
	report.Extract.record(e.metrics, "extract")
	report.Resolve.record(e.metrics, "resolve")
	report.Dispatch.record(e.metrics, "dispatch")
	e.metrics.RecordCycle(started, elapsed)

	e.logger.Info("cycle complete",
		zap.Duration("duration", elapsed),
		zap.Stringer("ingest", report.Ingest),
		zap.Stringer("extract", report.Extract),
		zap.Stringer("resolve", report.Resolve),
		zap.Stringer("dispatch", report.Dispatch))
	return report
}

func (e *Engine) ingestPhase(ctx context.Context, report *PhaseReport) error {
	msgs, err := e.gateway.FetchNew(ctx, mailbox.Folder(e.mailboxCfg.ComplaintsFolder), e.mailboxCfg.FetchLimit)
	if err != nil {
		return fmt.Errorf("fetch complaints: %w", err)
	}
	// the gateway pages newest first; handle the window in arrival order
	slices.Reverse(msgs)
	runBounded(ctx, e.concurrency, msgs, report, func(ctx context.Context, msg mailbox.Message) Outcome {
		outcome, err := e.ingestion.Ingest(ctx, msg)
		if err != nil {
			e.logger.Error("ingest failed", zap.String("source_message_id", msg.ID), zap.Error(err))
		}
		return outcome
	})
	return nil
}

func (e *Engine) extractPhase(ctx context.Context, report *PhaseReport) error {
	pending, err := e.extraction.Pending(ctx, e.batchSize)
	if err != nil {
		return fmt.Errorf("list pending extraction: %w", err)
	}
	runBounded(ctx, e.concurrency, pending, report, func(ctx context.Context, c domain.Complaint) Outcome {
		outcome, err := e.extraction.Process(ctx, c.ID)
		if err != nil {
			e.logger.Error("extraction failed", zap.String("complaint_id", c.ID), zap.Error(err))
		}
		return outcome
	})
	return nil
}

func (e *Engine) resolvePhase(ctx context.Context, report *PhaseReport) error {
	msgs, err := e.gateway.FetchNew(ctx, mailbox.Folder(e.mailboxCfg.ResolutionsFolder), e.mailboxCfg.FetchLimit)
	if err != nil {
		return fmt.Errorf("fetch resolutions: %w", err)
	}
	slices.Reverse(msgs)
	runBounded(ctx, e.concurrency, msgs, report, func(ctx context.Context, msg mailbox.Message) Outcome {
		outcome, err := e.resolution.Process(ctx, msg)
		if err != nil {
			e.logger.Error("resolution failed", zap.String("source_message_id", msg.ID), zap.Error(err))
		}
		return outcome
	})
	return nil
}

func (e *Engine) dispatchPhase(ctx context.Context, report *PhaseReport) error {
	pending, err := e.notification.Pending(ctx, e.batchSize)
	if err != nil {
		return fmt.Errorf("list outbox: %w", err)
	}
	runBounded(ctx, e.concurrency, pending, report, func(ctx context.Context, n domain.OutboundNotification) Outcome {
		outcome, err := e.notification.Deliver(ctx, n)
		if err != nil {
			e.logger.Error("dispatch failed", zap.String("outbound_id", n.ID), zap.Error(err))
		}
		return outcome
	})
	return nil
}

// Inspection is a read-only view of one complaint for operators and the CLI.
type Inspection struct {
	Complaint      domain.Complaint
	ReplayedGrid   *domain.InvestigationGrid
	GridConsistent bool
	Band           *domain.ConfidenceBand
	Messages       []domain.ConversationMessage
	History        []domain.ComplaintHistory
	Outbound       []domain.OutboundNotification
	NextAction     string
}

// Inspect gathers a complaint with its log, audit trail and outbox and checks
// that the stored grid matches the one replayed from the log.
func (e *Engine) Inspect(ctx context.Context, complaintID string) (*Inspection, error) {
	c, err := e.store.Complaints().GetByID(ctx, complaintID)
	if errors.Is(err, repository.ErrNotFound) {
		return nil, apperrors.NewNotFound("complaint", map[string]any{"id": complaintID})
	}
	if err != nil {
		return nil, err
	}
	msgs, err := e.store.Messages().ListByComplaint(ctx, c.ID)
	if err != nil {
		return nil, err
	}
	history, err := e.store.History().ListByComplaint(ctx, c.ID)
	if err != nil {
		return nil, err
	}
	outbound, err := e.store.Outbound().ListByComplaint(ctx, c.ID)
	if err != nil {
		return nil, err
	}

	replayed := domain.ReplayGrid(msgs)
	in := &Inspection{
		Complaint:      *c,
		ReplayedGrid:   replayed,
		GridConsistent: reflect.DeepEqual(replayed, c.Grid),
		Messages:       msgs,
		History:        history,
		Outbound:       outbound,
		NextAction:     NextAction(*c, time.Now().UTC()),
	}
	if c.Grid != nil && c.Grid.ConfidenceScore != nil {
		band := domain.BandFor(*c.Grid.ConfidenceScore)
		in.Band = &band
	}
	return in, nil
}

// NextAction describes what the complaint is waiting for.
func NextAction(c domain.Complaint, now time.Time) string {
	if c.NeedsManualReview {
		return "manual review: " + domain.Deref(c.ManualReviewReason)
	}
	switch c.Status {
	case domain.ComplaintStatusNew:
		if c.NextExtractionAt != nil && now.Before(*c.NextExtractionAt) {
			return "extraction retry at " + c.NextExtractionAt.Format(time.RFC3339)
		}
		return "extraction on next cycle"
	case domain.ComplaintStatusMissingInfo:
		return "waiting for customer to supply a valid PNR"
	case domain.ComplaintStatusWaitingOps:
		if c.ResolutionStatus == domain.ResolutionStatusFlagged {
			return "operator draft for flagged resolution"
		}
		return "waiting for Base Ops resolution"
	case domain.ComplaintStatusDraftReady:
		return "operator approval of draft"
	default:
		return "none"
	}
}
