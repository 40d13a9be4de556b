package domain

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTransitions(t *testing.T) {
	c := &Complaint{Status: ComplaintStatusNew}
	require.NoError(t, c.TransitionTo(ComplaintStatusWaitingOps))
	require.NoError(t, c.TransitionTo(ComplaintStatusWaitingOps), "flagged complaints stay actionable")
	require.NoError(t, c.TransitionTo(ComplaintStatusDraftReady))
	require.NoError(t, c.TransitionTo(ComplaintStatusApproved))
	require.NoError(t, c.TransitionTo(ComplaintStatusApproved), "re-approval is allowed")

	missing := &Complaint{Status: ComplaintStatusMissingInfo}
	assert.ErrorIs(t, missing.TransitionTo(ComplaintStatusWaitingOps), ErrInvalidTransition)

	resolved := &Complaint{Status: ComplaintStatusResolved}
	assert.ErrorIs(t, resolved.TransitionTo(ComplaintStatusWaitingOps), ErrInvalidTransition)
}

func TestReadyForExtraction(t *testing.T) {
	now := time.Date(2026, 3, 2, 10, 0, 0, 0, time.UTC)
	later := now.Add(time.Minute)

	c := &Complaint{Status: ComplaintStatusNew}
	assert.True(t, c.ReadyForExtraction(now))

	c.NextExtractionAt = &later
	assert.False(t, c.ReadyForExtraction(now))
	assert.True(t, c.ReadyForExtraction(later))

	c.FlagForManualReview("extraction kept failing")
	assert.False(t, c.ReadyForExtraction(later))
}

func TestCaseID(t *testing.T) {
	assert.Equal(t, "CMP-2026-0007", FormatCaseID(2026, 7))
	assert.Equal(t, "CMP-2026-12345", FormatCaseID(2026, 12345))
	assert.True(t, IsCaseID("CMP-2026-0007"))
	assert.False(t, IsCaseID("CMP-26-7"))
}

func TestWeatherAdverse(t *testing.T) {
	vis := 800
	fog := FlightWeather{Station: "DEL", Metar: "VIDP 020530Z 00000KT 0800 FG NSC 09/08 Q1018", VisibilityMeters: &vis}
	assert.NotEmpty(t, fog.AdverseReason())

	clear := 9999
	fine := FlightWeather{Station: "BOM", Metar: "VABB 020530Z 27008KT 9999 FEW020 28/20 Q1010 NOSIG", Condition: "Clear", VisibilityMeters: &clear}
	assert.Empty(t, fine.AdverseReason())

	storm := FlightWeather{Station: "CCU", Metar: "VECC 021200Z 18015G30KT 4000 +TSRA BKN015CB"}
	assert.Contains(t, storm.AdverseReason(), "TS")

	lowVis := 1200
	mist := FlightWeather{Station: "BLR", Metar: "VOBL 020100Z 00000KT 1200 BR", VisibilityMeters: &lowVis}
	assert.Contains(t, mist.AdverseReason(), "visibility 1200m")
}
