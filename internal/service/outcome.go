package service

import (
	"context"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/spec-kit/complaint-service/internal/domain"
	"github.com/spec-kit/complaint-service/internal/events"
	"github.com/spec-kit/complaint-service/internal/observability"
)

// Outcome names what happened to one item in a phase.
type Outcome string

const (
	OutcomeCreated      Outcome = "created"
	OutcomeDuplicate    Outcome = "duplicate"
	OutcomeDiscarded    Outcome = "discarded"
	OutcomeRouted       Outcome = "routed"
	OutcomeMissingInfo  Outcome = "missing_info"
	OutcomeAutoResolved Outcome = "auto_resolved"
	OutcomeDeferred     Outcome = "deferred"
	OutcomeResolved     Outcome = "resolved"
	OutcomeFlagged      Outcome = "flagged"
	OutcomeRetry        Outcome = "retry"
	OutcomeDeadLettered Outcome = "dead_lettered"
	OutcomeSent         Outcome = "sent"
	OutcomeFailed       Outcome = "failed"
	OutcomeSkipped      Outcome = "skipped"
	OutcomeError        Outcome = "error"
)

// PhaseReport counts outcomes of one cycle phase.
type PhaseReport struct {
	mu       sync.Mutex
	Outcomes map[Outcome]int `json:"outcomes"`
}

func newPhaseReport() *PhaseReport {
	return &PhaseReport{Outcomes: make(map[Outcome]int)}
}

func (r *PhaseReport) add(o Outcome) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.Outcomes[o]++
}

// Count returns the number of items that ended with o.
func (r *PhaseReport) Count(o Outcome) int {
	if r == nil {
		return 0
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.Outcomes[o]
}

// String renders "created=1 duplicate=2" in stable order.
func (r *PhaseReport) String() string {
	r.mu.Lock()
	defer r.mu.Unlock()
	keys := make([]string, 0, len(r.Outcomes))
	for k := range r.Outcomes {
		keys = append(keys, string(k))
	}
	sort.Strings(keys)
	parts := make([]string, 0, len(keys))
	for _, k := range keys {
		parts = append(parts, k+"="+strconv.Itoa(r.Outcomes[Outcome(k)]))
	}
	return strings.Join(parts, " ")
}

func (r *PhaseReport) record(metrics *observability.Metrics, phase string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for o, n := range r.Outcomes {
		metrics.Incr(phase+"."+string(o), n)
	}
}

// runBounded applies fn to every item with at most limit in flight. Item
// failures are reported through the outcome, never abort the batch.
func runBounded[T any](ctx context.Context, limit int, items []T, report *PhaseReport, fn func(context.Context, T) Outcome) {
	if limit < 1 {
		limit = 1
	}
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(limit)
	for _, item := range items {
		if gctx.Err() != nil {
			break
		}
		g.Go(func() error {
			report.add(fn(gctx, item))
			return nil
		})
	}
	_ = g.Wait()
}

func callContext(ctx context.Context, timeout time.Duration) (context.Context, context.CancelFunc) {
	if timeout <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, timeout)
}

func publish(ctx context.Context, dispatcher events.Dispatcher, event events.Event) {
	if dispatcher == nil {
		return
	}
	_ = dispatcher.Publish(ctx, event)
}

func newHistory(c *domain.Complaint, action domain.HistoryAction, old domain.ComplaintStatus, actor events.Actor, details map[string]any, at time.Time) *domain.ComplaintHistory {
	h := &domain.ComplaintHistory{
		ID:          uuid.NewString(),
		ComplaintID: c.ID,
		ActorType:   actor.Type,
		ActorID:     actor.OperatorID,
		Action:      action,
		NewStatus:   c.Status,
		Details:     details,
		CreatedAt:   at,
	}
	if old != "" {
		h.OldStatus = &old
	}
	return h
}

func systemClock() time.Time {
	return time.Now().UTC()
}
