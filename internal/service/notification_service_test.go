package service

import (
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/spec-kit/complaint-service/internal/domain"
	"github.com/spec-kit/complaint-service/internal/events"
)

func TestDeliverMarksSentAndFailed(t *testing.T) {
	f := newFixture(t)
	id := f.route("msg-1")
	svc := f.notification()

	f.gateway.FailOutbound(errors.New("graph 503"))
	pending, err := svc.Pending(f.ctx, 10)
	require.NoError(t, err)
	require.Len(t, pending, 1)

	outcome, err := svc.Deliver(f.ctx, pending[0])
	require.NoError(t, err)
	assert.Equal(t, OutcomeFailed, outcome)

	pending, err = svc.Pending(f.ctx, 10)
	require.NoError(t, err)
	require.Len(t, pending, 1, "still pending below the attempt limit")
	assert.Equal(t, 1, pending[0].Attempts)

	f.gateway.FailOutbound(nil)
	outcome, err = svc.Deliver(f.ctx, pending[0])
	require.NoError(t, err)
	assert.Equal(t, OutcomeSent, outcome)

	outbox, err := f.store.Outbound().ListByComplaint(f.ctx, id)
	require.NoError(t, err)
	assert.Equal(t, domain.OutboundStatusSent, outbox[0].Status)
	assert.Equal(t, "mem-1", domain.Deref(outbox[0].ExternalID))

	sent := f.gateway.Outbox()
	require.Len(t, sent, 1)
	assert.Equal(t, "baseopsdelhi@airline.test", sent[0].Mailbox)
}

func TestDeliverGivesUpAfterMaxAttempts(t *testing.T) {
	f := newFixture(t)
	f.route("msg-1")
	svc := f.notification()
	f.gateway.FailOutbound(errors.New("mailbox gone"))

	for i := 0; i < f.worker.MaxDispatchAttempts; i++ {
		pending, err := svc.Pending(f.ctx, 10)
		require.NoError(t, err)
		require.Len(t, pending, 1)
		_, err = svc.Deliver(f.ctx, pending[0])
		require.NoError(t, err)
	}
	pending, err := svc.Pending(f.ctx, 10)
	require.NoError(t, err)
	assert.Empty(t, pending)
}

func TestDeliverSendsOnceAcrossDispatchers(t *testing.T) {
	f := newFixture(t)
	f.route("msg-1")
	first, second := f.notification(), f.notification()

	pending, err := first.Pending(f.ctx, 10)
	require.NoError(t, err)
	require.Len(t, pending, 1)

	var wg sync.WaitGroup
	outcomes := make([]Outcome, 2)
	for i, svc := range []*NotificationService{first, second} {
		wg.Add(1)
		go func() {
			defer wg.Done()
			outcome, err := svc.Deliver(f.ctx, pending[0])
			assert.NoError(t, err)
			outcomes[i] = outcome
		}()
	}
	wg.Wait()

	assert.ElementsMatch(t, []Outcome{OutcomeSent, OutcomeSkipped}, outcomes)
	assert.Len(t, f.gateway.Outbox(), 1)
}

func TestClaimedRowReturnsAfterLease(t *testing.T) {
	f := newFixture(t)
	f.route("msg-1")
	svc := f.notification()

	pending, err := svc.Pending(f.ctx, 10)
	require.NoError(t, err)
	require.Len(t, pending, 1)

	claimed, err := f.store.Outbound().Claim(f.ctx, pending[0].ID, time.Minute)
	require.NoError(t, err)
	require.True(t, claimed)

	again, err := svc.Pending(f.ctx, 10)
	require.NoError(t, err)
	assert.Empty(t, again, "claimed rows are hidden from other dispatchers")

	f.advance(2 * time.Minute)
	again, err = svc.Pending(f.ctx, 10)
	require.NoError(t, err)
	assert.Len(t, again, 1, "an abandoned claim expires")
}

func TestRegisterHandlersCountsEvents(t *testing.T) {
	f := newFixture(t)
	f.notification().RegisterHandlers()

	f.ingest("msg-1")
	assert.Equal(t, int64(1), f.metrics.EngineCounter("event."+string(events.EventComplaintCreated)))
}
