package service

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/spec-kit/complaint-service/internal/domain"
	"github.com/spec-kit/complaint-service/internal/repository/memory"
)

func TestBuildAutoResolver(t *testing.T) {
	store := memory.NewStore()
	advisor := &fakeAdvisor{}

	r, err := BuildAutoResolver("none", nil, nil, nil)
	require.NoError(t, err)
	assert.Equal(t, "none", r.Name())

	r, err = BuildAutoResolver(" weather , policy ", advisor, store.Weather(), nil)
	require.NoError(t, err)
	assert.Equal(t, "weather,policy", r.Name())

	_, err = BuildAutoResolver("policy", nil, nil, nil)
	assert.Error(t, err)

	_, err = BuildAutoResolver("astrology", nil, nil, nil)
	assert.Error(t, err)
}

func TestChainFallsThroughFailingStrategies(t *testing.T) {
	ctx := context.Background()
	store := memory.NewStore()
	failing := &fakeAdvisor{err: errors.New("embedding service down")}
	r, err := BuildAutoResolver("policy,weather", failing, store.Weather(), nil)
	require.NoError(t, err)

	in := AutoResolveInput{Grid: domain.InvestigationGrid{IssueType: domain.StringPtr("Lost baggage")}}
	p, err := r.Propose(ctx, in)
	require.NoError(t, err)
	assert.Nil(t, p, "weather does not apply to baggage and policy failed")

	winner := &fakeAdvisor{proposal: &domain.Proposal{ActionType: "Voucher", Percentage: 10}}
	r, err = BuildAutoResolver("policy,weather", winner, store.Weather(), nil)
	require.NoError(t, err)
	p, err = r.Propose(ctx, in)
	require.NoError(t, err)
	require.NotNil(t, p)
	assert.Equal(t, "policy", p.Strategy)
}

func TestWeatherStrategyRequiresAdverseConditions(t *testing.T) {
	ctx := context.Background()
	store := memory.NewStore()
	vis := 8000
	require.NoError(t, store.Weather().Upsert(ctx, domain.FlightWeather{
		FlightNumber: "6E-501", Date: "2026-03-01", Station: "DEL",
		Metar: "VIDP 011730Z 27005KT 8000 NSC 24/10 Q1012", Condition: "Clear", VisibilityMeters: &vis,
	}))
	s := NewWeatherStrategy(store.Weather())
	in := AutoResolveInput{Grid: domain.InvestigationGrid{
		FlightNumber: domain.StringPtr("6E-501"),
		Date:         domain.StringPtr("2026-03-01"),
		Source:       domain.StringPtr("DEL"),
		IssueType:    domain.StringPtr("Flight Delay"),
	}}

	p, err := s.Propose(ctx, in)
	require.NoError(t, err)
	assert.Nil(t, p)

	in.Grid.Date = domain.StringPtr("2026-03-05")
	p, err = s.Propose(ctx, in)
	require.NoError(t, err)
	assert.Nil(t, p, "no recorded weather")
}
