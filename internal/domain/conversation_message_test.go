package domain

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDecodeContentByTag(t *testing.T) {
	raw, err := EncodeContent(DraftContent{Text: "Dear John", Notes: "mention rebooking"})
	require.NoError(t, err)

	content, err := DecodeContent(MessageTypeDraft, raw)
	require.NoError(t, err)
	draft, ok := content.(DraftContent)
	require.True(t, ok)
	assert.Equal(t, "Dear John", draft.Text)

	_, err = DecodeContent("MEMO", raw)
	assert.Error(t, err)
}

func TestReplayGridMatchesAccumulatedState(t *testing.T) {
	extracted := InvestigationGrid{PNR: StringPtr("ABC123"), Source: StringPtr("DEL"), Complaint: StringPtr("Delay")}
	eval := Evaluation{Status: ResolutionStatusResolved, ConfidenceScore: 85, AgentSummary: "ok", AgentReasoning: "matched"}
	fields := ResolutionFields{ActionTaken: "Rebooked", Outcome: "Travelled next day"}

	messages := []ConversationMessage{
		{AuthorType: AuthorTypeCustomer, Content: EmailContent{Body: "my flight was delayed"}},
		{AuthorType: AuthorTypeAgent, Content: GridContent{GridFields: extracted}},
		{AuthorType: AuthorTypeBaseOps, Content: EmailContent{Body: "done", Resolution: &ResolutionRecord{Fields: fields, Evaluation: eval}}},
	}

	want := extracted.Clone()
	require.NoError(t, want.ApplyResolution(fields))
	require.NoError(t, want.ApplyEvaluation(eval))

	got := ReplayGrid(messages)
	require.NotNil(t, got)
	assert.Equal(t, want, *got)
}

func TestReplayGridWithoutGridMessage(t *testing.T) {
	messages := []ConversationMessage{{AuthorType: AuthorTypeCustomer, Content: EmailContent{Body: "hi"}}}
	assert.Nil(t, ReplayGrid(messages))

	email, ok := FirstCustomerEmail(messages)
	assert.True(t, ok)
	assert.Equal(t, "hi", email.Body)
}
