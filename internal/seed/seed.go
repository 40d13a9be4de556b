// Package seed loads reference data (passengers, policy limits, weather,
// past resolutions and operators) from a YAML file into a store.
package seed

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"go.uber.org/zap"
	"gopkg.in/yaml.v3"

	"github.com/spec-kit/complaint-service/internal/domain"
	"github.com/spec-kit/complaint-service/internal/repository"
	"github.com/spec-kit/complaint-service/internal/service"
	apperrors "github.com/spec-kit/complaint-service/pkg/util"
)

// File is the on-disk seed document.
type File struct {
	Passengers  []Passenger  `yaml:"passengers"`
	Policies    []Policy     `yaml:"policies"`
	Weather     []Weather    `yaml:"weather"`
	Resolutions []Resolution `yaml:"resolutions"`
	Operators   []Operator   `yaml:"operators"`
}

type Passenger struct {
	PNR          string `yaml:"pnr"`
	CustomerName string `yaml:"customer_name"`
	FlightNumber string `yaml:"flight_number"`
	SeatNumber   string `yaml:"seat_number"`
	Source       string `yaml:"source"`
	Destination  string `yaml:"destination"`
}

type Policy struct {
	ActionType           string `yaml:"action_type"`
	MaxAllowedPercentage int    `yaml:"max_allowed_percentage"`
	Description          string `yaml:"description"`
}

type Weather struct {
	FlightNumber     string `yaml:"flight_number"`
	Date             string `yaml:"date"`
	Station          string `yaml:"station"`
	Metar            string `yaml:"metar"`
	Condition        string `yaml:"condition"`
	VisibilityMeters *int   `yaml:"visibility_meters"`
	Wind             string `yaml:"wind"`
}

// Resolution is a past case for the policy advisor's similarity search.
type Resolution struct {
	Category      string `yaml:"category"`
	ComplaintText string `yaml:"complaint_text"`
	ActionType    string `yaml:"action_type"`
	Outcome       string `yaml:"outcome"`
	Percentage    int    `yaml:"percentage"`
	DraftResponse string `yaml:"draft_response"`
}

type Operator struct {
	Name     string  `yaml:"name"`
	Email    string  `yaml:"email"`
	Password string  `yaml:"password"`
	Role     string  `yaml:"role"`
	Station  *string `yaml:"station"`
}

// Embedder turns text into a vector for resolution cases.
type Embedder interface {
	Embed(ctx context.Context, text string) ([]float32, error)
}

// Summary counts what a Load wrote.
type Summary struct {
	Passengers  int
	Policies    int
	Weather     int
	Resolutions int
	Operators   int
	Skipped     int
}

func (s Summary) String() string {
	return fmt.Sprintf("passengers=%d policies=%d weather=%d resolutions=%d operators=%d skipped=%d",
		s.Passengers, s.Policies, s.Weather, s.Resolutions, s.Operators, s.Skipped)
}

// ReadFile parses a seed document.
func ReadFile(path string) (*File, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read seed file: %w", err)
	}
	return Parse(data)
}

// Parse decodes a seed document, rejecting unknown keys.
func Parse(data []byte) (*File, error) {
	var f File
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(&f); err != nil && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("parse seed file: %w", err)
	}
	return &f, nil
}

// Loader writes seed documents into a store.
type Loader struct {
	store    repository.Store
	auth     *service.AuthService
	embedder Embedder
	logger   *zap.Logger
}

// NewLoader builds a loader. embedder may be nil, in which case past
// resolutions are skipped.
func NewLoader(store repository.Store, auth *service.AuthService, embedder Embedder, logger *zap.Logger) *Loader {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Loader{store: store, auth: auth, embedder: embedder, logger: logger}
}

// Load upserts reference data. Operators whose email already exists are skipped.
func (l *Loader) Load(ctx context.Context, f *File) (Summary, error) {
	var sum Summary

	for _, p := range f.Passengers {
		pnr := strings.ToUpper(strings.TrimSpace(p.PNR))
		if pnr == "" {
			return sum, errors.New("passenger without pnr")
		}
		if err := l.store.Passengers().Upsert(ctx, &domain.Passenger{
			PNR:          pnr,
			CustomerName: p.CustomerName,
			FlightNumber: p.FlightNumber,
			SeatNumber:   p.SeatNumber,
			Source:       strings.ToUpper(p.Source),
			Destination:  strings.ToUpper(p.Destination),
		}); err != nil {
			return sum, fmt.Errorf("passenger %s: %w", pnr, err)
		}
		sum.Passengers++
	}

	for _, p := range f.Policies {
		action := domain.NormalizeActionType(p.ActionType)
		if action == "" {
			return sum, errors.New("policy without action_type")
		}
		if err := l.store.Policies().Upsert(ctx, domain.PolicyLimit{
			ActionType:           action,
			MaxAllowedPercentage: p.MaxAllowedPercentage,
			Description:          p.Description,
		}); err != nil {
			return sum, fmt.Errorf("policy %s: %w", action, err)
		}
		sum.Policies++
	}

	for _, w := range f.Weather {
		if err := l.store.Weather().Upsert(ctx, domain.FlightWeather{
			FlightNumber:     w.FlightNumber,
			Date:             w.Date,
			Station:          strings.ToUpper(w.Station),
			Metar:            w.Metar,
			Condition:        w.Condition,
			VisibilityMeters: w.VisibilityMeters,
			Wind:             w.Wind,
		}); err != nil {
			return sum, fmt.Errorf("weather %s %s: %w", w.FlightNumber, w.Date, err)
		}
		sum.Weather++
	}

	if len(f.Resolutions) > 0 && l.embedder == nil {
		l.logger.Warn("no embedder configured; skipping past resolutions", zap.Int("count", len(f.Resolutions)))
		sum.Skipped += len(f.Resolutions)
	} else {
		for _, r := range f.Resolutions {
			vec, err := l.embedder.Embed(ctx, r.ComplaintText)
			if err != nil {
				return sum, fmt.Errorf("embed resolution %q: %w", r.Category, err)
			}
			if err := l.store.ResolutionCases().Create(ctx, &domain.ResolutionCase{
				Category:      r.Category,
				ComplaintText: r.ComplaintText,
				ActionType:    r.ActionType,
				Outcome:       r.Outcome,
				Percentage:    r.Percentage,
				DraftResponse: r.DraftResponse,
			}, vec); err != nil {
				return sum, err
			}
			sum.Resolutions++
		}
	}

	for _, o := range f.Operators {
		_, err := l.auth.CreateOperator(ctx, service.OperatorInput{
			Name:     o.Name,
			Email:    o.Email,
			Password: o.Password,
			Role:     domain.OperatorRole(strings.ToUpper(o.Role)),
			Station:  o.Station,
		})
		if apperrors.HasCode(err, apperrors.CodeConflict) {
			l.logger.Info("operator exists, skipping", zap.String("email", o.Email))
			sum.Skipped++
			continue
		}
		if err != nil {
			return sum, fmt.Errorf("operator %s: %w", o.Email, err)
		}
		sum.Operators++
	}

	return sum, nil
}
