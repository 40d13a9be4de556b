package service

import (
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/spec-kit/complaint-service/internal/domain"
)

func TestEngineEndToEnd(t *testing.T) {
	f := newFixture(t)
	engine := f.engine()
	f.gateway.Deliver(complaintsFolder, complaintEmail("msg-1"))

	report := engine.RunCycle(f.ctx)
	assert.Empty(t, report.Errors)
	assert.Equal(t, 1, report.Ingest.Count(OutcomeCreated))
	assert.Equal(t, 1, report.Extract.Count(OutcomeRouted))
	assert.Equal(t, 1, report.Dispatch.Count(OutcomeSent))

	c, err := f.store.Complaints().GetBySourceMessageID(f.ctx, "msg-1")
	require.NoError(t, err)
	assert.Equal(t, domain.ComplaintStatusWaitingOps, c.Status)
	assert.Equal(t, "DEL", domain.Deref(c.OriginStation))

	f.gateway.Deliver(resolutionsFolder, resolutionEmail("reply-1", c.ID, labelledReply))
	report = engine.RunCycle(f.ctx)
	assert.Equal(t, 1, report.Ingest.Count(OutcomeDuplicate))
	assert.Equal(t, 1, report.Resolve.Count(OutcomeResolved))
	assert.Equal(t, 1, report.Dispatch.Count(OutcomeSent))

	c, err = f.store.Complaints().GetByID(f.ctx, c.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.ComplaintStatusResolved, c.Status)
	assert.Equal(t, domain.ResolutionStatusResolved, c.ResolutionStatus)
	assert.Equal(t, "John Doe", domain.Deref(c.Grid.CustomerName))
	assert.Equal(t, "6E-501", domain.Deref(c.Grid.FlightNumber))
	assert.Equal(t, "BOM", domain.Deref(c.Grid.Destination))
	assert.NotNil(t, c.Grid.ActionTaken)
	assert.NotNil(t, c.Grid.Outcome)
	require.NotNil(t, c.Grid.ConfidenceScore)
	assert.Equal(t, 85, *c.Grid.ConfidenceScore)

	msgs, err := f.store.Messages().ListByComplaint(f.ctx, c.ID)
	require.NoError(t, err)
	counts := map[domain.MessageType]int{}
	for _, m := range msgs {
		counts[m.Type()]++
	}
	assert.Equal(t, map[domain.MessageType]int{domain.MessageTypeEmail: 2, domain.MessageTypeGrid: 1}, counts)

	report = engine.RunCycle(f.ctx)
	assert.Equal(t, 1, report.Resolve.Count(OutcomeSkipped), "already-evaluated reply is not evaluated again")
	assert.Equal(t, 1, f.evaluator.calls)
	assert.Len(t, f.gateway.Outbox(), 2)

	in, err := engine.Inspect(f.ctx, c.ID)
	require.NoError(t, err)
	assert.True(t, in.GridConsistent)
	require.NotNil(t, in.Band)
	assert.Equal(t, domain.BandExcellent, *in.Band)
	assert.Equal(t, "none", in.NextAction)
	assert.Len(t, in.History, 3)
	assert.Len(t, in.Outbound, 2)

	assert.Equal(t, int64(1), f.metrics.EngineCounter("resolve.resolved"))
	assert.Equal(t, int64(2), f.metrics.EngineCounter("dispatch.sent"))
}

func TestEngineConcurrentPhase(t *testing.T) {
	f := newFixture(t)
	f.worker.Concurrency = 4
	engine := f.engine()
	for _, id := range []string{"m1", "m2", "m3", "m4", "m5", "m6"} {
		f.gateway.Deliver(complaintsFolder, complaintEmail(id))
	}

	report := engine.RunCycle(f.ctx)
	assert.Equal(t, 6, report.Ingest.Count(OutcomeCreated))
	assert.Equal(t, 6, report.Extract.Count(OutcomeRouted))

	list, err := f.store.Complaints().List(f.ctx, domain.ComplaintFilter{})
	require.NoError(t, err)
	ids := map[string]bool{}
	for _, c := range list {
		ids[c.ID] = true
	}
	assert.Len(t, ids, 6, "case ids are unique under concurrency")
}

func TestEngineSeesNewMailPastFullInbox(t *testing.T) {
	f := newFixture(t)
	engine := f.engine()
	base := time.Date(2026, 3, 1, 8, 0, 0, 0, time.UTC)
	for i := 0; i < 11; i++ {
		msg := complaintEmail(fmt.Sprintf("backlog-%02d", i))
		msg.ReceivedAt = base.Add(time.Duration(i) * time.Minute)
		f.gateway.Deliver(complaintsFolder, msg)
	}
	report := engine.RunCycle(f.ctx)
	assert.Equal(t, 10, report.Ingest.Count(OutcomeCreated))

	newest := complaintEmail("newest")
	newest.ReceivedAt = base.Add(time.Hour)
	f.gateway.Deliver(complaintsFolder, newest)
	report = engine.RunCycle(f.ctx)
	assert.Equal(t, 1, report.Ingest.Count(OutcomeCreated))

	_, err := f.store.Complaints().GetBySourceMessageID(f.ctx, "newest")
	require.NoError(t, err)
}

func TestInspectUnknownComplaint(t *testing.T) {
	f := newFixture(t)
	_, err := f.engine().Inspect(f.ctx, "CMP-2026-0404")
	assert.Error(t, err)
}

func TestNextAction(t *testing.T) {
	now := time.Date(2026, 3, 2, 9, 0, 0, 0, time.UTC)
	c := domain.Complaint{Status: domain.ComplaintStatusWaitingOps, ResolutionStatus: domain.ResolutionStatusFlagged}
	assert.Equal(t, "operator draft for flagged resolution", NextAction(c, now))

	c = domain.Complaint{Status: domain.ComplaintStatusMissingInfo}
	assert.Equal(t, "waiting for customer to supply a valid PNR", NextAction(c, now))

	c.FlagForManualReview("extraction failed")
	assert.Equal(t, "manual review: extraction failed", NextAction(c, now))
}
