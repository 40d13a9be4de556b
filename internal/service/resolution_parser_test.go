package service

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/spec-kit/complaint-service/internal/domain"
)

func TestExtractCaseID(t *testing.T) {
	id, ok := ExtractCaseID("Re: [ACTION REQUIRED] Investigation Request: late [Case: CMP-2026-0042]", "")
	require.True(t, ok)
	assert.Equal(t, "CMP-2026-0042", id)

	id, ok = ExtractCaseID("Re: delay", "<p>Complaint ID: CMP-2026-0007</p>")
	require.True(t, ok)
	assert.Equal(t, "CMP-2026-0007", id)

	_, ok = ExtractCaseID("hello", "no id here")
	assert.False(t, ok)
}

func TestParseResolutionBlockStrict(t *testing.T) {
	body := `<p>Hi team,</p><p>=== RESOLUTION ===<br>Action Taken: Rebooked on 6E-503<br>` +
		`Outcome: Passenger travelled same day, meal voucher issued<br>=== END RESOLUTION ===</p>`

	fields, source, ok := ParseResolutionBlock(body)
	require.True(t, ok)
	assert.Equal(t, domain.ParseSourceStrict, source)
	assert.Equal(t, "Rebooked on 6E-503", fields.ActionTaken)
	assert.Equal(t, "Passenger travelled same day, meal voucher issued", fields.Outcome)
}

func TestParseResolutionBlockLooseSkipsPlaceholders(t *testing.T) {
	body := "Dear CR Team,\n\n=== INVESTIGATION GRID ===\nPNR: ABC123\n---\n" +
		"Action Taken: Verified crew log, delay due to fog\nOutcome: Refund of 20% initiated\n=== END GRID ===\n\n" +
		"> Action Taken: -\n> Outcome: -\n"

	fields, source, ok := ParseResolutionBlock(body)
	require.True(t, ok)
	assert.Equal(t, domain.ParseSourceLoose, source)
	assert.Equal(t, "Verified crew log, delay due to fog", fields.ActionTaken)
	assert.Equal(t, "Refund of 20% initiated", fields.Outcome)
}

func TestParseResolutionBlockFromHTMLTable(t *testing.T) {
	body := `<table><tr><td>Action Taken</td><td>Baggage traced and delivered</td></tr>` +
		`<tr><td>Outcome</td><td>Delivered to hotel</td></tr></table>`

	fields, _, ok := ParseResolutionBlock(body)
	require.True(t, ok)
	assert.Equal(t, "Baggage traced and delivered", fields.ActionTaken)
	assert.Equal(t, "Delivered to hotel", fields.Outcome)
}

func TestParseResolutionBlockIncomplete(t *testing.T) {
	_, _, ok := ParseResolutionBlock("Action Taken: called passenger\nwill update later")
	assert.False(t, ok)

	_, _, ok = ParseResolutionBlock("=== RESOLUTION ===\nAction Taken: -\nOutcome:\n=== END RESOLUTION ===")
	assert.False(t, ok)
}

func TestStripHTML(t *testing.T) {
	got := StripHTML("<div>Line&nbsp;one</div><p>Tom &amp; Jerry<br/>two</p>")
	assert.Equal(t, "Line one\nTom & Jerry\ntwo\n", got)
}
