package service

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/spec-kit/complaint-service/internal/domain"
	"github.com/spec-kit/complaint-service/internal/repository"
)

// AutoResolveInput is what a strategy sees about a freshly routed complaint.
type AutoResolveInput struct {
	Complaint     domain.Complaint
	Grid          domain.InvestigationGrid
	Passenger     *domain.Passenger
	ComplaintText string
}

// AutoResolver proposes a resolution that skips the Base Ops round trip.
// A nil proposal means the strategy has nothing to offer.
type AutoResolver interface {
	Name() string
	Propose(ctx context.Context, in AutoResolveInput) (*domain.Proposal, error)
}

type noAutoResolve struct{}

func (noAutoResolve) Name() string { return "none" }

func (noAutoResolve) Propose(context.Context, AutoResolveInput) (*domain.Proposal, error) {
	return nil, nil
}

// PolicyStrategy asks the policy advisor for a proposal.
type PolicyStrategy struct {
	advisor PolicyAdvisor
}

func NewPolicyStrategy(advisor PolicyAdvisor) *PolicyStrategy {
	return &PolicyStrategy{advisor: advisor}
}

func (s *PolicyStrategy) Name() string { return "policy" }

func (s *PolicyStrategy) Propose(ctx context.Context, in AutoResolveInput) (*domain.Proposal, error) {
	p, err := s.advisor.Suggest(ctx, in.ComplaintText, in.Passenger)
	if err != nil || p == nil {
		return nil, err
	}
	p.Strategy = s.Name()
	return p, nil
}

// WeatherStrategy proposes an apology when a delay or cancellation coincides
// with adverse weather at the origin station.
type WeatherStrategy struct {
	weather WeatherLookup
}

func NewWeatherStrategy(weather WeatherLookup) *WeatherStrategy {
	return &WeatherStrategy{weather: weather}
}

func (s *WeatherStrategy) Name() string { return "weather" }

func (s *WeatherStrategy) Propose(ctx context.Context, in AutoResolveInput) (*domain.Proposal, error) {
	issue := strings.ToLower(domain.Deref(in.Grid.IssueType))
	if !strings.Contains(issue, "delay") && !strings.Contains(issue, "cancel") {
		return nil, nil
	}
	flight, date, station := domain.Deref(in.Grid.FlightNumber), domain.Deref(in.Grid.Date), domain.Deref(in.Grid.Source)
	if flight == "" || date == "" || station == "" {
		return nil, nil
	}

	w, err := s.weather.Find(ctx, flight, date, station)
	if errors.Is(err, repository.ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	reason := w.AdverseReason()
	if reason == "" {
		return nil, nil
	}

	category := "Delay"
	if strings.Contains(issue, "cancel") {
		category = "Flight Cancellation"
	}
	name := domain.Deref(in.Grid.CustomerName)
	if name == "" {
		name = "Customer"
	}
	return &domain.Proposal{
		Strategy:   s.Name(),
		Category:   category,
		ActionType: "Apology",
		Outcome:    fmt.Sprintf("Apology issued: disruption caused by adverse weather (%s)", reason),
		Percentage: 0,
		DraftResponse: fmt.Sprintf("Dear %s,\n\nWe are sorry for the disruption to flight %s on %s. "+
			"Weather at %s (%s) did not allow a safe departure on schedule. Safety of our passengers comes first, "+
			"and we appreciate your patience.", name, flight, date, station, w.Describe()),
		Reasoning: fmt.Sprintf("Recorded weather for %s on %s: %s", flight, date, w.Describe()),
	}, nil
}

// ChainResolver returns the first proposal produced by its strategies.
type ChainResolver struct {
	strategies []AutoResolver
	logger     *zap.Logger
}

func (c *ChainResolver) Name() string {
	names := make([]string, len(c.strategies))
	for i, s := range c.strategies {
		names[i] = s.Name()
	}
	return strings.Join(names, ",")
}

func (c *ChainResolver) Propose(ctx context.Context, in AutoResolveInput) (*domain.Proposal, error) {
	for _, s := range c.strategies {
		p, err := s.Propose(ctx, in)
		if err != nil {
			c.logger.Warn("auto-resolve strategy failed",
				zap.String("strategy", s.Name()),
				zap.String("complaint_id", in.Complaint.ID),
				zap.Error(err))
			continue
		}
		if p != nil {
			return p, nil
		}
	}
	return nil, nil
}

// BuildAutoResolver parses a comma separated strategy list such as
// "weather,policy". advisor and weather may be nil when not referenced.
func BuildAutoResolver(spec string, advisor PolicyAdvisor, weather WeatherLookup, logger *zap.Logger) (AutoResolver, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	var strategies []AutoResolver
	for _, name := range strings.Split(spec, ",") {
		switch strings.ToLower(strings.TrimSpace(name)) {
		case "", "none":
		case "policy":
			if advisor == nil {
				return nil, errors.New("policy strategy requires an advisor")
			}
			strategies = append(strategies, NewPolicyStrategy(advisor))
		case "weather":
			if weather == nil {
				return nil, errors.New("weather strategy requires weather data")
			}
			strategies = append(strategies, NewWeatherStrategy(weather))
		default:
			return nil, fmt.Errorf("unknown auto-resolve strategy %q", name)
		}
	}
	if len(strategies) == 0 {
		return noAutoResolve{}, nil
	}
	return &ChainResolver{strategies: strategies, logger: logger}, nil
}
