package service

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/spec-kit/complaint-service/internal/domain"
	"github.com/spec-kit/complaint-service/internal/events"
)

func TestIngestIsIdempotentPerSourceMessage(t *testing.T) {
	f := newFixture(t)
	svc := f.ingestion()

	outcome, err := svc.Ingest(f.ctx, complaintEmail("msg-1"))
	require.NoError(t, err)
	assert.Equal(t, OutcomeCreated, outcome)

	outcome, err = svc.Ingest(f.ctx, complaintEmail("msg-1"))
	require.NoError(t, err)
	assert.Equal(t, OutcomeDuplicate, outcome)
	assert.Equal(t, 1, f.classifier.calls, "duplicates never reach the classifier")

	c, err := f.store.Complaints().GetBySourceMessageID(f.ctx, "msg-1")
	require.NoError(t, err)
	assert.Equal(t, "CMP-2026-0001", c.ID)
	assert.Equal(t, domain.ComplaintStatusNew, c.Status)
	assert.Equal(t, domain.ResolutionStatusPending, c.ResolutionStatus)
	assert.Equal(t, "john.doe@example.com", c.SenderEmail)
	assert.Nil(t, c.Grid)

	msgs, err := f.store.Messages().ListByComplaint(f.ctx, c.ID)
	require.NoError(t, err)
	require.Len(t, msgs, 1)
	email, ok := msgs[0].Email()
	require.True(t, ok)
	assert.Equal(t, domain.AuthorTypeCustomer, msgs[0].AuthorType)
	assert.Equal(t, "msg-1", email.SourceID)

	history, err := f.store.History().ListByComplaint(f.ctx, c.ID)
	require.NoError(t, err)
	require.Len(t, history, 1)
	assert.Equal(t, domain.HistoryIngested, history[0].Action)
	assert.Equal(t, []events.EventType{events.EventComplaintCreated}, f.dispatcher.published())
}

func TestIngestDiscardsNonComplaintsAndRemembersThem(t *testing.T) {
	f := newFixture(t)
	f.classifier.verdict = false
	svc := f.ingestion()

	outcome, err := svc.Ingest(f.ctx, complaintEmail("newsletter"))
	require.NoError(t, err)
	assert.Equal(t, OutcomeDiscarded, outcome)

	outcome, err = svc.Ingest(f.ctx, complaintEmail("newsletter"))
	require.NoError(t, err)
	assert.Equal(t, OutcomeDiscarded, outcome)
	assert.Equal(t, 1, f.classifier.calls, "second pass is answered by the discard cache")

	list, err := f.store.Complaints().List(f.ctx, domain.ComplaintFilter{})
	require.NoError(t, err)
	assert.Empty(t, list)
}

func TestIngestFailsOpenOnClassifierError(t *testing.T) {
	f := newFixture(t)
	f.classifier.err = errors.New("llm down")

	outcome, err := f.ingestion().Ingest(f.ctx, complaintEmail("msg-1"))
	require.NoError(t, err)
	assert.Equal(t, OutcomeCreated, outcome)
}

func TestIngestAssignsSequentialCaseIDs(t *testing.T) {
	f := newFixture(t)
	svc := f.ingestion()
	for _, id := range []string{"a", "b", "c"} {
		_, err := svc.Ingest(f.ctx, complaintEmail(id))
		require.NoError(t, err)
	}
	c, err := f.store.Complaints().GetBySourceMessageID(f.ctx, "c")
	require.NoError(t, err)
	assert.Equal(t, "CMP-2026-0003", c.ID)
}
