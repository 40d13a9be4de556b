package repository

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/spec-kit/complaint-service/internal/domain"
)

// ComplaintRepository encapsulates complaint persistence.
type ComplaintRepository interface {
	// Create inserts c and reports false when its source message already produced a complaint.
	Create(ctx context.Context, c *domain.Complaint) (bool, error)
	// Update writes everything except resolution_status.
	Update(ctx context.Context, c *domain.Complaint) error
	// TransitionResolution writes c including its resolution status, only while
	// the stored resolution status is still PENDING. It reports false otherwise.
	TransitionResolution(ctx context.Context, c *domain.Complaint) (bool, error)
	GetByID(ctx context.Context, id string) (*domain.Complaint, error)
	GetBySourceMessageID(ctx context.Context, sourceMessageID string) (*domain.Complaint, error)
	ListPendingExtraction(ctx context.Context, now time.Time, limit int) ([]domain.Complaint, error)
	List(ctx context.Context, filter domain.ComplaintFilter) ([]domain.Complaint, error)
	// NextID reserves the next CMP-YYYY-#### identifier for year.
	NextID(ctx context.Context, year int) (string, error)
}

type complaintRepository struct {
	q Querier
}

// NewComplaintRepository instantiates repository.
func NewComplaintRepository(q Querier) ComplaintRepository {
	return &complaintRepository{q: q}
}

const complaintColumns = `id, source_message_id, subject, sender_email, received_at, status, resolution_status,
               investigation_grid, origin_station, extraction_attempts, next_extraction_at,
               needs_manual_review, manual_review_reason, created_at, updated_at`

func (r *complaintRepository) Create(ctx context.Context, c *domain.Complaint) (bool, error) {
	grid, err := marshalGrid(c.Grid)
	if err != nil {
		return false, err
	}
	const query = `
        INSERT INTO complaints (id, source_message_id, subject, sender_email, received_at, status, resolution_status,
            investigation_grid, origin_station, extraction_attempts, next_extraction_at, needs_manual_review, manual_review_reason)
        VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13)
        ON CONFLICT (source_message_id) DO NOTHING
        RETURNING created_at, updated_at`
	err = r.q.QueryRow(ctx, query,
		c.ID,
		c.SourceMessageID,
		c.Subject,
		c.SenderEmail,
		c.ReceivedAt,
		c.Status,
		c.ResolutionStatus,
		grid,
		c.OriginStation,
		c.ExtractionAttempts,
		c.NextExtractionAt,
		c.NeedsManualReview,
		c.ManualReviewReason,
	).Scan(&c.CreatedAt, &c.UpdatedAt)
	if err == pgx.ErrNoRows {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, nil
}

func (r *complaintRepository) Update(ctx context.Context, c *domain.Complaint) error {
	grid, err := marshalGrid(c.Grid)
	if err != nil {
		return err
	}
	const query = `
        UPDATE complaints SET status=$1, investigation_grid=$2, origin_station=$3, extraction_attempts=$4,
            next_extraction_at=$5, needs_manual_review=$6, manual_review_reason=$7, updated_at=NOW()
        WHERE id=$8
        RETURNING updated_at`
	return translate(r.q.QueryRow(ctx, query,
		c.Status,
		grid,
		c.OriginStation,
		c.ExtractionAttempts,
		c.NextExtractionAt,
		c.NeedsManualReview,
		c.ManualReviewReason,
		c.ID,
	).Scan(&c.UpdatedAt))
}

func (r *complaintRepository) TransitionResolution(ctx context.Context, c *domain.Complaint) (bool, error) {
	grid, err := marshalGrid(c.Grid)
	if err != nil {
		return false, err
	}
	const query = `
        UPDATE complaints SET status=$1, resolution_status=$2, investigation_grid=$3, origin_station=$4,
            needs_manual_review=$5, manual_review_reason=$6, updated_at=NOW()
        WHERE id=$7 AND resolution_status='PENDING'`
	cmd, err := r.q.Exec(ctx, query,
		c.Status,
		c.ResolutionStatus,
		grid,
		c.OriginStation,
		c.NeedsManualReview,
		c.ManualReviewReason,
		c.ID,
	)
	if err != nil {
		return false, err
	}
	return cmd.RowsAffected() == 1, nil
}

func (r *complaintRepository) GetByID(ctx context.Context, id string) (*domain.Complaint, error) {
	query := `SELECT ` + complaintColumns + ` FROM complaints WHERE id=$1`
	return r.fetchSingle(ctx, query, id)
}

func (r *complaintRepository) GetBySourceMessageID(ctx context.Context, sourceMessageID string) (*domain.Complaint, error) {
	query := `SELECT ` + complaintColumns + ` FROM complaints WHERE source_message_id=$1`
	return r.fetchSingle(ctx, query, sourceMessageID)
}

func (r *complaintRepository) ListPendingExtraction(ctx context.Context, now time.Time, limit int) ([]domain.Complaint, error) {
	query := `SELECT ` + complaintColumns + `
        FROM complaints
        WHERE status='NEW' AND investigation_grid IS NULL AND needs_manual_review=FALSE
          AND (next_extraction_at IS NULL OR next_extraction_at <= $1)
        ORDER BY created_at ASC
        LIMIT $2`
	rows, err := r.q.Query(ctx, query, now, limit)
	if err != nil {
		return nil, err
	}
	return collectComplaints(rows)
}

func (r *complaintRepository) List(ctx context.Context, filter domain.ComplaintFilter) ([]domain.Complaint, error) {
	base := `SELECT ` + complaintColumns + ` FROM complaints`
	clauses := []string{"1=1"}
	args := []any{}

	if len(filter.Statuses) > 0 {
		placeholders := make([]string, len(filter.Statuses))
		for i, status := range filter.Statuses {
			args = append(args, status)
			placeholders[i] = fmt.Sprintf("$%d", len(args))
		}
		clauses = append(clauses, fmt.Sprintf("status IN (%s)", strings.Join(placeholders, ",")))
	}
	if len(filter.ResolutionStatuses) > 0 {
		placeholders := make([]string, len(filter.ResolutionStatuses))
		for i, status := range filter.ResolutionStatuses {
			args = append(args, status)
			placeholders[i] = fmt.Sprintf("$%d", len(args))
		}
		clauses = append(clauses, fmt.Sprintf("resolution_status IN (%s)", strings.Join(placeholders, ",")))
	}
	if filter.OriginStation != nil {
		args = append(args, strings.ToUpper(*filter.OriginStation))
		clauses = append(clauses, fmt.Sprintf("origin_station=$%d", len(args)))
	}
	if filter.NeedsManualReview != nil {
		args = append(args, *filter.NeedsManualReview)
		clauses = append(clauses, fmt.Sprintf("needs_manual_review=$%d", len(args)))
	}

	limit := filter.Limit
	if limit <= 0 {
		limit = 50
	}
	args = append(args, limit, filter.Offset)
	query := fmt.Sprintf("%s WHERE %s ORDER BY created_at DESC LIMIT $%d OFFSET $%d",
		base, strings.Join(clauses, " AND "), len(args)-1, len(args))

	rows, err := r.q.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	return collectComplaints(rows)
}

func (r *complaintRepository) NextID(ctx context.Context, year int) (string, error) {
	const query = `
        INSERT INTO complaint_sequences (year, value) VALUES ($1, 1)
        ON CONFLICT (year) DO UPDATE SET value = complaint_sequences.value + 1
        RETURNING value`
	var seq int64
	if err := r.q.QueryRow(ctx, query, year).Scan(&seq); err != nil {
		return "", err
	}
	return domain.FormatCaseID(year, seq), nil
}

func (r *complaintRepository) fetchSingle(ctx context.Context, query string, arg any) (*domain.Complaint, error) {
	c, err := scanComplaint(r.q.QueryRow(ctx, query, arg))
	if err != nil {
		return nil, translate(err)
	}
	return c, nil
}

func collectComplaints(rows pgx.Rows) ([]domain.Complaint, error) {
	defer rows.Close()
	var result []domain.Complaint
	for rows.Next() {
		c, err := scanComplaint(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, *c)
	}
	return result, rows.Err()
}

func scanComplaint(row pgx.Row) (*domain.Complaint, error) {
	var (
		c    domain.Complaint
		grid []byte
	)
	if err := row.Scan(
		&c.ID,
		&c.SourceMessageID,
		&c.Subject,
		&c.SenderEmail,
		&c.ReceivedAt,
		&c.Status,
		&c.ResolutionStatus,
		&grid,
		&c.OriginStation,
		&c.ExtractionAttempts,
		&c.NextExtractionAt,
		&c.NeedsManualReview,
		&c.ManualReviewReason,
		&c.CreatedAt,
		&c.UpdatedAt,
	); err != nil {
		return nil, err
	}
	if len(grid) > 0 {
		var g domain.InvestigationGrid
		if err := json.Unmarshal(grid, &g); err != nil {
			return nil, fmt.Errorf("decode grid for %s: %w", c.ID, err)
		}
		c.Grid = &g
	}
	return &c, nil
}

func marshalGrid(grid *domain.InvestigationGrid) ([]byte, error) {
	if grid == nil {
		return nil, nil
	}
	return json.Marshal(grid)
}
