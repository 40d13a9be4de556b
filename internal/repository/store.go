package repository

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"
)

// ErrNotFound is returned when a lookup matches no record.
var ErrNotFound = errors.New("record not found")

// Querier is satisfied by both *pgxpool.Pool and pgx.Tx.
type Querier interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// Repositories groups the repositories that change together inside one transaction.
type Repositories interface {
	Complaints() ComplaintRepository
	Messages() ConversationMessageRepository
	History() ComplaintHistoryRepository
	Outbound() OutboundRepository
	ResolutionAttempts() ResolutionAttemptRepository
}

// Store is the durable grid store plus its reference tables.
type Store interface {
	Repositories
	Passengers() PassengerRepository
	Policies() PolicyRepository
	Weather() WeatherRepository
	Operators() OperatorRepository
	ResolutionCases() ResolutionCaseRepository
	// WithTx runs fn atomically. fn's repositories must not escape it.
	WithTx(ctx context.Context, fn func(tx Repositories) error) error
	Ping(ctx context.Context) error
}

type pgRepositories struct {
	q Querier
}

func (r pgRepositories) Complaints() ComplaintRepository { return NewComplaintRepository(r.q) }
func (r pgRepositories) Messages() ConversationMessageRepository {
	return NewConversationMessageRepository(r.q)
}
func (r pgRepositories) History() ComplaintHistoryRepository {
	return NewComplaintHistoryRepository(r.q)
}
func (r pgRepositories) Outbound() OutboundRepository { return NewOutboundRepository(r.q) }
func (r pgRepositories) ResolutionAttempts() ResolutionAttemptRepository {
	return NewResolutionAttemptRepository(r.q)
}

type pgStore struct {
	pgRepositories
	pool   *pgxpool.Pool
	logger *zap.Logger
}

// NewPostgresStore builds a Store backed by a pgx pool.
func NewPostgresStore(pool *pgxpool.Pool, logger *zap.Logger) Store {
	return &pgStore{pgRepositories: pgRepositories{q: pool}, pool: pool, logger: logger}
}

func (s *pgStore) Passengers() PassengerRepository { return NewPassengerRepository(s.pool) }
func (s *pgStore) Policies() PolicyRepository      { return NewPolicyRepository(s.pool) }
func (s *pgStore) Weather() WeatherRepository      { return NewWeatherRepository(s.pool) }
func (s *pgStore) Operators() OperatorRepository   { return NewOperatorRepository(s.pool) }
func (s *pgStore) ResolutionCases() ResolutionCaseRepository {
	return NewResolutionCaseRepository(s.pool)
}

func (s *pgStore) WithTx(ctx context.Context, fn func(tx Repositories) error) error {
	tx, err := s.pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}

	committed := false
	defer func() {
		if committed {
			return
		}
		if rbErr := tx.Rollback(context.WithoutCancel(ctx)); rbErr != nil && !errors.Is(rbErr, pgx.ErrTxClosed) {
			s.logger.Error("rollback failed", zap.Error(rbErr))
		}
	}()

	if err := fn(pgRepositories{q: tx}); err != nil {
		return err
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit tx: %w", err)
	}
	committed = true
	return nil
}

func (s *pgStore) Ping(ctx context.Context) error {
	return s.pool.Ping(ctx)
}

func translate(err error) error {
	if errors.Is(err, pgx.ErrNoRows) {
		return ErrNotFound
	}
	return err
}
