package service

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/spec-kit/complaint-service/internal/config"
	"github.com/spec-kit/complaint-service/internal/domain"
	"github.com/spec-kit/complaint-service/internal/events"
	"github.com/spec-kit/complaint-service/internal/llm"
	"github.com/spec-kit/complaint-service/internal/lock"
	"github.com/spec-kit/complaint-service/internal/mailbox"
	"github.com/spec-kit/complaint-service/internal/observability"
	"github.com/spec-kit/complaint-service/internal/repository/memory"
)

const (
	complaintsFolder  mailbox.Folder = "Complaints"
	resolutionsFolder mailbox.Folder = "Resolutions"
)

type fakeClassifier struct {
	mu      sync.Mutex
	verdict bool
	err     error
	calls   int
}

func (f *fakeClassifier) Classify(context.Context, string, string) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	return f.verdict, f.err
}

type fakeExtractor struct {
	mu    sync.Mutex
	ext   domain.Extraction
	err   error
	calls int
}

func (f *fakeExtractor) ExtractGrid(context.Context, string, string, time.Time) (*domain.Extraction, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	if f.err != nil {
		return nil, f.err
	}
	conf := make(map[string]domain.FieldConfidence, len(f.ext.Confidence))
	for k, v := range f.ext.Confidence {
		conf[k] = v
	}
	return &domain.Extraction{Grid: f.ext.Grid.Clone(), Confidence: conf}, nil
}

type fakeEvaluator struct {
	eval  domain.Evaluation
	err   error
	calls int
	last  string
}

func (f *fakeEvaluator) Evaluate(_ context.Context, _ string, _ domain.InvestigationGrid, responseText string) (*domain.Evaluation, error) {
	f.calls++
	f.last = responseText
	if f.err != nil {
		return nil, f.err
	}
	e := f.eval
	return &e, nil
}

type fakeResolutionExtractor struct {
	fields domain.ResolutionFields
	err    error
	calls  int
}

func (f *fakeResolutionExtractor) ExtractResolution(context.Context, string) (domain.ResolutionFields, error) {
	f.calls++
	return f.fields, f.err
}

type fakeDrafter struct {
	text  string
	err   error
	notes string
}

func (f *fakeDrafter) DraftReply(_ context.Context, _ domain.InvestigationGrid, _ string, notes string) (string, error) {
	f.notes = notes
	return f.text, f.err
}

type fakeAdvisor struct {
	proposal *domain.Proposal
	err      error
}

func (f *fakeAdvisor) Suggest(context.Context, string, *domain.Passenger) (*domain.Proposal, error) {
	if f.proposal == nil {
		return nil, f.err
	}
	p := *f.proposal
	return &p, f.err
}

type memoryDiscardCache struct {
	seen map[string]bool
}

func (c *memoryDiscardCache) Seen(_ context.Context, id string) (bool, error) {
	return c.seen[id], nil
}

func (c *memoryDiscardCache) Remember(_ context.Context, id string) error {
	c.seen[id] = true
	return nil
}

type recordingDispatcher struct {
	events.Dispatcher
	mu    sync.Mutex
	types []events.EventType
}

func (d *recordingDispatcher) Publish(ctx context.Context, e events.Event) error {
	d.mu.Lock()
	d.types = append(d.types, e.Type)
	d.mu.Unlock()
	return d.Dispatcher.Publish(ctx, e)
}

func (d *recordingDispatcher) published() []events.EventType {
	d.mu.Lock()
	defer d.mu.Unlock()
	return append([]events.EventType(nil), d.types...)
}

type fixture struct {
	t          *testing.T
	ctx        context.Context
	store      *memory.Store
	gateway    *mailbox.MemoryGateway
	dispatcher *recordingDispatcher
	metrics    *observability.Metrics
	locker     lock.Locker
	routing    config.RoutingConfig
	worker     config.WorkerConfig

	classifier *fakeClassifier
	extractor  *fakeExtractor
	evaluator  *fakeEvaluator
	resExtract *fakeResolutionExtractor
	drafter    *fakeDrafter
	resolver   AutoResolver

	mu  sync.Mutex
	now time.Time
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	f := &fixture{
		t:          t,
		ctx:        context.Background(),
		store:      memory.NewStore(),
		gateway:    mailbox.NewMemoryGateway(),
		dispatcher: &recordingDispatcher{Dispatcher: events.NewInMemoryDispatcher(nil)},
		metrics:    observability.NewMetrics(),
		locker:     lock.NewMutexMap(),
		routing: config.RoutingConfig{
			CXMailbox:       "cx@airline.test",
			FallbackMailbox: "cr@airline.test",
			Stations:        map[string]string{"DEL": "baseopsdelhi@airline.test", "BOM": "baseopsmumbai@airline.test"},
		},
		worker: config.WorkerConfig{
			Concurrency:           1,
			BatchSize:             25,
			MaxExtractionAttempts: 3,
			MaxResolutionAttempts: 2,
			MaxDispatchAttempts:   2,
			BackoffBase:           time.Minute,
			BackoffMax:            10 * time.Minute,
		},
		classifier: &fakeClassifier{verdict: true},
		extractor:  &fakeExtractor{ext: abc123Extraction()},
		evaluator: &fakeEvaluator{eval: domain.Evaluation{
			Status:          domain.ResolutionStatusResolved,
			ConfidenceScore: 85,
			AgentSummary:    "Passenger rebooked and compensated",
			AgentReasoning:  "Action addresses the delay",
			DraftResponse:   "Dear John Doe,\n\nWe are sorry.",
		}},
		resExtract: &fakeResolutionExtractor{},
		drafter:    &fakeDrafter{text: "Dear John Doe,\n\nPlease accept our apology."},
		now:        time.Date(2026, 3, 2, 9, 0, 0, 0, time.UTC),
	}
	f.store.SetClock(f.clock)
	f.seedPassenger(domain.Passenger{
		PNR:          "ABC123",
		CustomerName: "John Doe",
		FlightNumber: "6E-501",
		SeatNumber:   "12A",
		Source:       "DEL",
		Destination:  "BOM",
	})
	return f
}

func (f *fixture) clock() time.Time {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.now
}

func (f *fixture) advance(d time.Duration) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.now = f.now.Add(d)
}

func (f *fixture) seedPassenger(p domain.Passenger) {
	require.NoError(f.t, f.store.Passengers().Upsert(f.ctx, &p))
}

func (f *fixture) ingestion() *IngestionService {
	return NewIngestionService(IngestionDependencies{
		Store:      f.store,
		Classifier: f.classifier,
		Cache:      &memoryDiscardCache{seen: map[string]bool{}},
		Dispatcher: f.dispatcher,
		Metrics:    f.metrics,
		Now:        f.clock,
	})
}

func (f *fixture) extraction() *ExtractionService {
	return NewExtractionService(ExtractionDependencies{
		Store:       f.store,
		Extractor:   f.extractor,
		Resolver:    f.resolver,
		Locker:      f.locker,
		Dispatcher:  f.dispatcher,
		Metrics:     f.metrics,
		Routing:     f.routing,
		MaxAttempts: f.worker.MaxExtractionAttempts,
		BackoffBase: f.worker.BackoffBase,
		BackoffMax:  f.worker.BackoffMax,
		Now:         f.clock,
	})
}

func (f *fixture) resolution() *ResolutionService {
	return NewResolutionService(ResolutionDependencies{
		Store:       f.store,
		Evaluator:   f.evaluator,
		Extractor:   f.resExtract,
		Locker:      f.locker,
		Dispatcher:  f.dispatcher,
		Metrics:     f.metrics,
		Routing:     f.routing,
		MaxAttempts: f.worker.MaxResolutionAttempts,
		Transient:   llm.IsRetryable,
		Now:         f.clock,
	})
}

func (f *fixture) review() *ReviewService {
	return NewReviewService(ReviewDependencies{
		Store:      f.store,
		Drafter:    f.drafter,
		Locker:     f.locker,
		Dispatcher: f.dispatcher,
		Routing:    f.routing,
		Now:        f.clock,
	})
}

func (f *fixture) notification() *NotificationService {
	return NewNotificationService(NotificationDependencies{
		Outbound:    f.store.Outbound(),
		Gateway:     f.gateway,
		Dispatcher:  f.dispatcher,
		Metrics:     f.metrics,
		MaxAttempts: f.worker.MaxDispatchAttempts,
	})
}

func (f *fixture) engine() *Engine {
	return NewEngine(EngineDependencies{
		Store:        f.store,
		Gateway:      f.gateway,
		Ingestion:    f.ingestion(),
		Extraction:   f.extraction(),
		Resolution:   f.resolution(),
		Notification: f.notification(),
		Metrics:      f.metrics,
		Mailbox: config.MailboxConfig{
			ComplaintsFolder:  string(complaintsFolder),
			ResolutionsFolder: string(resolutionsFolder),
			FetchLimit:        10,
		},
		Worker: f.worker,
	})
}

// ingest creates a NEW complaint from a standard ABC123 email and returns its id.
func (f *fixture) ingest(sourceID string) string {
	f.t.Helper()
	outcome, err := f.ingestion().Ingest(f.ctx, complaintEmail(sourceID))
	require.NoError(f.t, err)
	require.Equal(f.t, OutcomeCreated, outcome)
	c, err := f.store.Complaints().GetBySourceMessageID(f.ctx, sourceID)
	require.NoError(f.t, err)
	return c.ID
}

// route ingests and extracts, leaving the complaint in WAITING_OPS.
func (f *fixture) route(sourceID string) string {
	f.t.Helper()
	id := f.ingest(sourceID)
	outcome, err := f.extraction().Process(f.ctx, id)
	require.NoError(f.t, err)
	require.Equal(f.t, OutcomeRouted, outcome)
	return id
}

func complaintEmail(id string) mailbox.Message {
	return mailbox.Message{
		ID:         id,
		Subject:    "Flight 6E-501 delayed",
		Body:       "<p>My flight with PNR ABC123 from Delhi was delayed by five hours on 1 March.</p>",
		Sender:     "john.doe@example.com",
		ReceivedAt: time.Date(2026, 3, 1, 18, 0, 0, 0, time.UTC),
	}
}

func resolutionEmail(id, caseID, body string) mailbox.Message {
	return mailbox.Message{
		ID:         id,
		Subject:    "Re: [ACTION REQUIRED] Investigation Request: Flight 6E-501 delayed - PNR: ABC123 [Case: " + caseID + "]",
		Body:       body,
		Sender:     "baseopsdelhi@airline.test",
		ReceivedAt: time.Date(2026, 3, 2, 12, 0, 0, 0, time.UTC),
	}
}

func abc123Extraction() domain.Extraction {
	return domain.Extraction{
		Grid: domain.InvestigationGrid{
			PNR:          domain.StringPtr("abc123"),
			CustomerName: domain.StringPtr("John"),
			FlightNumber: domain.StringPtr("6E-501"),
			Source:       domain.StringPtr("XYZ"),
			Complaint:    domain.StringPtr("Flight delayed by five hours"),
			IssueType:    domain.StringPtr("Delay"),
			Date:         domain.StringPtr("2026-03-01"),
		},
		Confidence: map[string]domain.FieldConfidence{
			"pnr":           domain.ConfidenceExplicit,
			"flight_number": domain.ConfidenceExplicit,
			"source":        domain.ConfidenceInferred,
			"complaint":     domain.ConfidenceExplicit,
		},
	}
}
