package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/spec-kit/complaint-service/internal/domain"
	"github.com/spec-kit/complaint-service/internal/events"
	"github.com/spec-kit/complaint-service/internal/mailbox"
	"github.com/spec-kit/complaint-service/internal/observability"
	"github.com/spec-kit/complaint-service/internal/repository"
)

var errDuplicateSource = errors.New("source message already ingested")

// IngestionService turns complaint-inbox messages into NEW complaints.
type IngestionService struct {
	store       repository.Store
	classifier  Classifier
	cache       DiscardCache
	dispatcher  events.Dispatcher
	metrics     *observability.Metrics
	logger      *zap.Logger
	callTimeout time.Duration
	now         func() time.Time
}

// IngestionDependencies bundles collaborators for the ingestion service.
// Cache and Classifier are optional; without a classifier every message is
// treated as a complaint.
type IngestionDependencies struct {
	Store       repository.Store
	Classifier  Classifier
	Cache       DiscardCache
	Dispatcher  events.Dispatcher
	Metrics     *observability.Metrics
	Logger      *zap.Logger
	CallTimeout time.Duration
	Now         func() time.Time
}

// NewIngestionService constructs the service.
func NewIngestionService(deps IngestionDependencies) *IngestionService {
	s := &IngestionService{
		store:       deps.Store,
		classifier:  deps.Classifier,
		cache:       deps.Cache,
		dispatcher:  deps.Dispatcher,
		metrics:     deps.Metrics,
		logger:      deps.Logger,
		callTimeout: deps.CallTimeout,
		now:         deps.Now,
	}
	if s.logger == nil {
		s.logger = zap.NewNop()
	}
	if s.now == nil {
		s.now = systemClock
	}
	return s
}

// Ingest records msg as a complaint unless it was seen before or is not a complaint.
func (s *IngestionService) Ingest(ctx context.Context, msg mailbox.Message) (Outcome, error) {
	log := s.logger.With(zap.String("source_message_id", msg.ID))

	if _, err := s.store.Complaints().GetBySourceMessageID(ctx, msg.ID); err == nil {
		return OutcomeDuplicate, nil
	} else if !errors.Is(err, repository.ErrNotFound) {
		return OutcomeError, err
	}

	if s.cache != nil {
		seen, err := s.cache.Seen(ctx, msg.ID)
		if err != nil {
			log.Warn("discard cache lookup failed", zap.Error(err))
		} else if seen {
			return OutcomeDiscarded, nil
		}
	}

	if !s.isComplaint(ctx, msg, log) {
		if s.cache != nil {
			if err := s.cache.Remember(ctx, msg.ID); err != nil {
				log.Warn("discard cache write failed", zap.Error(err))
			}
		}
		log.Info("message discarded as non-complaint", zap.String("subject", msg.Subject))
		return OutcomeDiscarded, nil
	}

	now := s.now()
	receivedAt := msg.ReceivedAt
	if receivedAt.IsZero() {
		receivedAt = now
	}
	complaint := &domain.Complaint{
		SourceMessageID:  msg.ID,
		Subject:          msg.Subject,
		SenderEmail:      strings.TrimSpace(msg.Sender),
		ReceivedAt:       receivedAt,
		Status:           domain.ComplaintStatusNew,
		ResolutionStatus: domain.ResolutionStatusPending,
	}

	err := s.store.WithTx(ctx, func(tx repository.Repositories) error {
		id, err := tx.Complaints().NextID(ctx, receivedAt.Year())
		if err != nil {
			return fmt.Errorf("reserve complaint id: %w", err)
		}
		complaint.ID = id
		created, err := tx.Complaints().Create(ctx, complaint)
		if err != nil {
			return err
		}
		if !created {
			return errDuplicateSource
		}

		email := domain.NewConversationMessage(id, domain.AuthorTypeCustomer, domain.EmailContent{
			From:       complaint.SenderEmail,
			Subject:    msg.Subject,
			Body:       msg.Body,
			ReceivedAt: receivedAt,
			SourceID:   msg.ID,
		})
		if err := tx.Messages().Append(ctx, email); err != nil {
			return err
		}
		return tx.History().Create(ctx, newHistory(complaint, domain.HistoryIngested, "", events.SystemActor,
			map[string]any{"source_message_id": msg.ID, "sender": complaint.SenderEmail}, now))
	})
	if errors.Is(err, errDuplicateSource) {
		return OutcomeDuplicate, nil
	}
	if err != nil {
		return OutcomeError, err
	}

	log.Info("complaint ingested", zap.String("complaint_id", complaint.ID))
	publish(ctx, s.dispatcher, events.New(events.EventComplaintCreated, complaint.ID, events.SystemActor,
		events.ComplaintCreatedPayload{
			SourceMessageID: msg.ID,
			SenderEmail:     complaint.SenderEmail,
			Subject:         complaint.Subject,
		}))
	return OutcomeCreated, nil
}

// isComplaint fails open on classifier errors.
func (s *IngestionService) isComplaint(ctx context.Context, msg mailbox.Message, log *zap.Logger) bool {
	if s.classifier == nil {
		return true
	}
	cctx, cancel := callContext(ctx, s.callTimeout)
	defer cancel()
	ok, err := s.classifier.Classify(cctx, msg.Subject, msg.Body)
	if err != nil {
		log.Warn("classifier failed, ingesting message", zap.Error(err))
		s.metrics.Incr("ingest.classifier_error", 1)
		return true
	}
	return ok
}
