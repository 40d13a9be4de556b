// Package memory provides an in-process Store used when no Postgres DSN is
// configured and as the test double for the engine.
package memory

import (
	"context"
	"sync"
	"time"

	"github.com/spec-kit/complaint-service/internal/domain"
	"github.com/spec-kit/complaint-service/internal/repository"
)

type caseRow struct {
	rc        domain.ResolutionCase
	embedding []float32
}

type state struct {
	complaints map[string]domain.Complaint
	bySource   map[string]string
	sequences  map[int]int64
	messages   map[string][]domain.ConversationMessage
	history    map[string][]domain.ComplaintHistory
	outbound   []domain.OutboundNotification
	attempts   map[string]domain.ResolutionAttempt
	passengers map[string]domain.Passenger
	policies   map[string]domain.PolicyLimit
	weather    map[string]domain.FlightWeather
	operators  map[string]domain.Operator
	cases      []caseRow
}

func newState() *state {
	return &state{
		complaints: make(map[string]domain.Complaint),
		bySource:   make(map[string]string),
		sequences:  make(map[int]int64),
		messages:   make(map[string][]domain.ConversationMessage),
		history:    make(map[string][]domain.ComplaintHistory),
		attempts:   make(map[string]domain.ResolutionAttempt),
		passengers: make(map[string]domain.Passenger),
		policies:   make(map[string]domain.PolicyLimit),
		weather:    make(map[string]domain.FlightWeather),
		operators:  make(map[string]domain.Operator),
	}
}

func (s *state) clone() *state {
	out := newState()
	for k, v := range s.complaints {
		out.complaints[k] = copyComplaint(v)
	}
	for k, v := range s.bySource {
		out.bySource[k] = v
	}
	for k, v := range s.sequences {
		out.sequences[k] = v
	}
	for k, v := range s.messages {
		out.messages[k] = append([]domain.ConversationMessage(nil), v...)
	}
	for k, v := range s.history {
		out.history[k] = append([]domain.ComplaintHistory(nil), v...)
	}
	out.outbound = append([]domain.OutboundNotification(nil), s.outbound...)
	for k, v := range s.attempts {
		out.attempts[k] = v
	}
	for k, v := range s.passengers {
		out.passengers[k] = v
	}
	for k, v := range s.policies {
		out.policies[k] = v
	}
	for k, v := range s.weather {
		out.weather[k] = v
	}
	for k, v := range s.operators {
		out.operators[k] = v
	}
	out.cases = append([]caseRow(nil), s.cases...)
	return out
}

type runner func(fn func(*state) error) error

// Store is a mutex-guarded in-memory repository.Store.
type Store struct {
	mu  sync.Mutex
	st  *state
	now func() time.Time
}

// NewStore returns an empty store.
func NewStore() *Store {
	return &Store{st: newState(), now: func() time.Time { return time.Now().UTC() }}
}

// SetClock overrides the timestamp source, for tests.
func (s *Store) SetClock(now func() time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.now = now
}

func (s *Store) locked(fn func(*state) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return fn(s.st)
}

func (s *Store) clock() time.Time {
	return s.now()
}

func (s *Store) repos(run runner) repoSet {
	return repoSet{run: run, now: s.clock}
}

func (s *Store) Complaints() repository.ComplaintRepository { return s.repos(s.locked).Complaints() }
func (s *Store) Messages() repository.ConversationMessageRepository {
	return s.repos(s.locked).Messages()
}
func (s *Store) History() repository.ComplaintHistoryRepository { return s.repos(s.locked).History() }
func (s *Store) Outbound() repository.OutboundRepository        { return s.repos(s.locked).Outbound() }
func (s *Store) ResolutionAttempts() repository.ResolutionAttemptRepository {
	return s.repos(s.locked).ResolutionAttempts()
}
func (s *Store) Passengers() repository.PassengerRepository { return passengerRepo(s.repos(s.locked)) }
func (s *Store) Policies() repository.PolicyRepository      { return policyRepo(s.repos(s.locked)) }
func (s *Store) Weather() repository.WeatherRepository      { return weatherRepo(s.repos(s.locked)) }
func (s *Store) Operators() repository.OperatorRepository   { return operatorRepo(s.repos(s.locked)) }
func (s *Store) ResolutionCases() repository.ResolutionCaseRepository {
	return caseRepo(s.repos(s.locked))
}

// WithTx runs fn against a private copy of the state and publishes it only
// when fn succeeds. The store lock is held for the duration of fn, so fn must
// use only the repositories it is handed.
func (s *Store) WithTx(ctx context.Context, fn func(tx repository.Repositories) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	working := s.st.clone()
	direct := func(f func(*state) error) error { return f(working) }
	if err := fn(s.repos(direct)); err != nil {
		return err
	}
	s.st = working
	return nil
}

func (s *Store) Ping(ctx context.Context) error {
	return ctx.Err()
}

var _ repository.Store = (*Store)(nil)
