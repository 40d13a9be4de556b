package service

import (
	"errors"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/spec-kit/complaint-service/internal/domain"
	apperrors "github.com/spec-kit/complaint-service/pkg/util"
)

var reviewer = domain.Operator{ID: "op-1", Name: "Priya", Role: domain.OperatorRoleBaseOps, Active: true}

func TestDraftThenApprove(t *testing.T) {
	f := newFixture(t)
	id := f.route("msg-1")
	svc := f.review()

	draft, err := svc.GenerateDraft(f.ctx, id, reviewer, "mention the meal voucher")
	require.NoError(t, err)
	assert.Equal(t, "mention the meal voucher", f.drafter.notes)
	content, ok := draft.Draft()
	require.True(t, ok)
	assert.Equal(t, f.drafter.text, content.Text)

	c, err := f.store.Complaints().GetByID(f.ctx, id)
	require.NoError(t, err)
	assert.Equal(t, domain.ComplaintStatusDraftReady, c.Status)

	final, err := svc.Approve(f.ctx, id, reviewer, "")
	require.NoError(t, err)
	fc, ok := final.Final()
	require.True(t, ok)
	assert.Equal(t, f.drafter.text, fc.Text, "empty body approves the latest draft")
	assert.Equal(t, "op-1", domain.Deref(final.AuthorID))

	c, err = f.store.Complaints().GetByID(f.ctx, id)
	require.NoError(t, err)
	assert.Equal(t, domain.ComplaintStatusApproved, c.Status)

	_, err = svc.Approve(f.ctx, id, reviewer, "Updated wording")
	require.NoError(t, err)

	outbox, err := f.store.Outbound().ListByComplaint(f.ctx, id)
	require.NoError(t, err)
	var finals []domain.OutboundNotification
	for _, n := range outbox {
		if n.Kind == domain.OutboundFinalResponse {
			finals = append(finals, n)
		}
	}
	require.Len(t, finals, 2, "each approval queues a response")
	assert.Equal(t, "john.doe@example.com", domain.Deref(finals[0].Recipient))
	assert.Contains(t, finals[1].Body, "Updated wording")

	history, err := f.store.History().ListByComplaint(f.ctx, id)
	require.NoError(t, err)
	last := history[len(history)-1]
	assert.Equal(t, domain.HistoryApproved, last.Action)
	assert.Equal(t, domain.ActorTypeOperator, last.ActorType)
}

func TestApproveRequiresDraft(t *testing.T) {
	f := newFixture(t)
	id := f.route("msg-1")

	_, err := f.review().Approve(f.ctx, id, reviewer, "text")
	require.Error(t, err)
	assert.Equal(t, http.StatusConflict, apperrors.ToDomainError(err).HTTPStatus)

	_, err = f.review().Approve(f.ctx, "CMP-2026-4040", reviewer, "text")
	assert.Equal(t, http.StatusNotFound, apperrors.ToDomainError(err).HTTPStatus)
}

func TestGenerateDraftDrafterFailureIsUpstreamError(t *testing.T) {
	f := newFixture(t)
	f.drafter.err = errors.New("503 from provider")
	id := f.route("msg-1")

	_, err := f.review().GenerateDraft(f.ctx, id, reviewer, "")
	require.Error(t, err)
	assert.Equal(t, http.StatusBadGateway, apperrors.ToDomainError(err).HTTPStatus)

	c, err := f.store.Complaints().GetByID(f.ctx, id)
	require.NoError(t, err)
	assert.Equal(t, domain.ComplaintStatusWaitingOps, c.Status)
}

func TestGenerateDraftRejectsNewComplaints(t *testing.T) {
	f := newFixture(t)
	id := f.ingest("msg-1")

	_, err := f.review().GenerateDraft(f.ctx, id, reviewer, "")
	require.Error(t, err)
	assert.Equal(t, http.StatusConflict, apperrors.ToDomainError(err).HTTPStatus)
}
