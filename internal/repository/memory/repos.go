package memory

import (
	"context"
	"fmt"
	"math"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/spec-kit/complaint-service/internal/domain"
	"github.com/spec-kit/complaint-service/internal/repository"
)

type repoSet struct {
	run runner
	now func() time.Time
}

func (r repoSet) Complaints() repository.ComplaintRepository                 { return complaintRepo(r) }
func (r repoSet) Messages() repository.ConversationMessageRepository         { return messageRepo(r) }
func (r repoSet) History() repository.ComplaintHistoryRepository             { return historyRepo(r) }
func (r repoSet) Outbound() repository.OutboundRepository                    { return outboundRepo(r) }
func (r repoSet) ResolutionAttempts() repository.ResolutionAttemptRepository { return attemptRepo(r) }

func copyComplaint(c domain.Complaint) domain.Complaint {
	if c.Grid != nil {
		g := c.Grid.Clone()
		c.Grid = &g
	}
	if c.OriginStation != nil {
		v := *c.OriginStation
		c.OriginStation = &v
	}
	if c.NextExtractionAt != nil {
		v := *c.NextExtractionAt
		c.NextExtractionAt = &v
	}
	if c.ManualReviewReason != nil {
		v := *c.ManualReviewReason
		c.ManualReviewReason = &v
	}
	return c
}

type complaintRepo repoSet

func (r complaintRepo) Create(ctx context.Context, c *domain.Complaint) (bool, error) {
	created := false
	err := r.run(func(st *state) error {
		if _, exists := st.bySource[c.SourceMessageID]; exists {
			return nil
		}
		if _, exists := st.complaints[c.ID]; exists {
			return fmt.Errorf("duplicate complaint id %s", c.ID)
		}
		now := r.now()
		c.CreatedAt, c.UpdatedAt = now, now
		st.complaints[c.ID] = copyComplaint(*c)
		st.bySource[c.SourceMessageID] = c.ID
		created = true
		return nil
	})
	return created, err
}

func (r complaintRepo) Update(ctx context.Context, c *domain.Complaint) error {
	return r.run(func(st *state) error {
		stored, ok := st.complaints[c.ID]
		if !ok {
			return repository.ErrNotFound
		}
		next := copyComplaint(*c)
		next.ResolutionStatus = stored.ResolutionStatus
		next.SourceMessageID = stored.SourceMessageID
		next.CreatedAt = stored.CreatedAt
		next.UpdatedAt = r.now()
		c.UpdatedAt = next.UpdatedAt
		st.complaints[c.ID] = next
		return nil
	})
}

func (r complaintRepo) TransitionResolution(ctx context.Context, c *domain.Complaint) (bool, error) {
	applied := false
	err := r.run(func(st *state) error {
		stored, ok := st.complaints[c.ID]
		if !ok || stored.ResolutionStatus != domain.ResolutionStatusPending {
			return nil
		}
		next := copyComplaint(*c)
		next.SourceMessageID = stored.SourceMessageID
		next.ExtractionAttempts = stored.ExtractionAttempts
		next.NextExtractionAt = stored.NextExtractionAt
		next.CreatedAt = stored.CreatedAt
		next.UpdatedAt = r.now()
		c.UpdatedAt = next.UpdatedAt
		st.complaints[c.ID] = next
		applied = true
		return nil
	})
	return applied, err
}

func (r complaintRepo) GetByID(ctx context.Context, id string) (*domain.Complaint, error) {
	var out *domain.Complaint
	err := r.run(func(st *state) error {
		c, ok := st.complaints[id]
		if !ok {
			return repository.ErrNotFound
		}
		cp := copyComplaint(c)
		out = &cp
		return nil
	})
	return out, err
}

func (r complaintRepo) GetBySourceMessageID(ctx context.Context, sourceMessageID string) (*domain.Complaint, error) {
	var out *domain.Complaint
	err := r.run(func(st *state) error {
		id, ok := st.bySource[sourceMessageID]
		if !ok {
			return repository.ErrNotFound
		}
		cp := copyComplaint(st.complaints[id])
		out = &cp
		return nil
	})
	return out, err
}

func (r complaintRepo) ListPendingExtraction(ctx context.Context, now time.Time, limit int) ([]domain.Complaint, error) {
	var out []domain.Complaint
	err := r.run(func(st *state) error {
		for _, c := range st.complaints {
			if c.ReadyForExtraction(now) {
				out = append(out, copyComplaint(c))
			}
		}
		return nil
	})
	sortComplaints(out, true)
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, err
}

func (r complaintRepo) List(ctx context.Context, filter domain.ComplaintFilter) ([]domain.Complaint, error) {
	var out []domain.Complaint
	err := r.run(func(st *state) error {
		for _, c := range st.complaints {
			if matches(c, filter) {
				out = append(out, copyComplaint(c))
			}
		}
		return nil
	})
	sortComplaints(out, false)

	limit := filter.Limit
	if limit <= 0 {
		limit = 50
	}
	if filter.Offset >= len(out) {
		return nil, err
	}
	out = out[filter.Offset:]
	if len(out) > limit {
		out = out[:limit]
	}
	return out, err
}

func (r complaintRepo) NextID(ctx context.Context, year int) (string, error) {
	var id string
	err := r.run(func(st *state) error {
		st.sequences[year]++
		id = domain.FormatCaseID(year, st.sequences[year])
		return nil
	})
	return id, err
}

func matches(c domain.Complaint, f domain.ComplaintFilter) bool {
	if len(f.Statuses) > 0 && !containsStatus(f.Statuses, c.Status) {
		return false
	}
	if len(f.ResolutionStatuses) > 0 {
		found := false
		for _, s := range f.ResolutionStatuses {
			if s == c.ResolutionStatus {
				found = true
				break
			}
		}
		if !found {
			return false
		}
	}
	if f.OriginStation != nil && !strings.EqualFold(domain.Deref(c.OriginStation), *f.OriginStation) {
		return false
	}
	if f.NeedsManualReview != nil && c.NeedsManualReview != *f.NeedsManualReview {
		return false
	}
	return true
}

func containsStatus(list []domain.ComplaintStatus, s domain.ComplaintStatus) bool {
	for _, candidate := range list {
		if candidate == s {
			return true
		}
	}
	return false
}

func sortComplaints(list []domain.Complaint, ascending bool) {
	sort.SliceStable(list, func(i, j int) bool {
		if list[i].CreatedAt.Equal(list[j].CreatedAt) {
			if ascending {
				return list[i].ID < list[j].ID
			}
			return list[i].ID > list[j].ID
		}
		if ascending {
			return list[i].CreatedAt.Before(list[j].CreatedAt)
		}
		return list[i].CreatedAt.After(list[j].CreatedAt)
	})
}

type messageRepo repoSet

func (r messageRepo) Append(ctx context.Context, msg *domain.ConversationMessage) error {
	if msg.Content == nil {
		return fmt.Errorf("nil message content")
	}
	return r.run(func(st *state) error {
		if _, ok := st.complaints[msg.ComplaintID]; !ok {
			return fmt.Errorf("append message: complaint %s: %w", msg.ComplaintID, repository.ErrNotFound)
		}
		if msg.ID == "" {
			msg.ID = uuid.NewString()
		}
		msg.CreatedAt = r.now()
		st.messages[msg.ComplaintID] = append(st.messages[msg.ComplaintID], *msg)
		return nil
	})
}

func (r messageRepo) ListByComplaint(ctx context.Context, complaintID string) ([]domain.ConversationMessage, error) {
	var out []domain.ConversationMessage
	err := r.run(func(st *state) error {
		out = append(out, st.messages[complaintID]...)
		return nil
	})
	return out, err
}

type historyRepo repoSet

func (r historyRepo) Create(ctx context.Context, h *domain.ComplaintHistory) error {
	return r.run(func(st *state) error {
		if h.ID == "" {
			h.ID = uuid.NewString()
		}
		h.CreatedAt = r.now()
		st.history[h.ComplaintID] = append(st.history[h.ComplaintID], *h)
		return nil
	})
}

func (r historyRepo) ListByComplaint(ctx context.Context, complaintID string) ([]domain.ComplaintHistory, error) {
	var out []domain.ComplaintHistory
	err := r.run(func(st *state) error {
		out = append(out, st.history[complaintID]...)
		return nil
	})
	return out, err
}

type outboundRepo repoSet

func (r outboundRepo) Enqueue(ctx context.Context, n *domain.OutboundNotification) error {
	return r.run(func(st *state) error {
		if n.ID == "" {
			n.ID = uuid.NewString()
		}
		n.Status = domain.OutboundStatusPending
		n.CreatedAt = r.now()
		st.outbound = append(st.outbound, *n)
		return nil
	})
}

func (r outboundRepo) ListPending(ctx context.Context, limit int) ([]domain.OutboundNotification, error) {
	var out []domain.OutboundNotification
	err := r.run(func(st *state) error {
		now := r.now()
		for _, n := range st.outbound {
			if n.Status == domain.OutboundStatusPending && leaseFree(n, now) {
				out = append(out, n)
			}
			if limit > 0 && len(out) == limit {
				break
			}
		}
		return nil
	})
	return out, err
}

func (r outboundRepo) Claim(ctx context.Context, id string, lease time.Duration) (bool, error) {
	claimed := false
	err := r.update(id, func(n *domain.OutboundNotification) {
		now := r.now()
		if n.Status != domain.OutboundStatusPending || !leaseFree(*n, now) {
			return
		}
		until := now.Add(lease)
		n.ClaimedUntil = &until
		claimed = true
	})
	return claimed, err
}

func leaseFree(n domain.OutboundNotification, now time.Time) bool {
	return n.ClaimedUntil == nil || n.ClaimedUntil.Before(now)
}

func (r outboundRepo) ListByComplaint(ctx context.Context, complaintID string) ([]domain.OutboundNotification, error) {
	var out []domain.OutboundNotification
	err := r.run(func(st *state) error {
		for _, n := range st.outbound {
			if n.ComplaintID == complaintID {
				out = append(out, n)
			}
		}
		return nil
	})
	return out, err
}

func (r outboundRepo) MarkSent(ctx context.Context, id, externalID string) error {
	return r.update(id, func(n *domain.OutboundNotification) {
		now := r.now()
		n.Status = domain.OutboundStatusSent
		n.ExternalID = &externalID
		n.SentAt = &now
		n.Attempts++
		n.ClaimedUntil = nil
	})
}

func (r outboundRepo) MarkFailed(ctx context.Context, id, reason string, maxAttempts int) error {
	return r.update(id, func(n *domain.OutboundNotification) {
		n.Attempts++
		n.LastError = &reason
		n.ClaimedUntil = nil
		if n.Attempts >= maxAttempts {
			n.Status = domain.OutboundStatusFailed
		}
	})
}

func (r outboundRepo) update(id string, fn func(*domain.OutboundNotification)) error {
	return r.run(func(st *state) error {
		for i := range st.outbound {
			if st.outbound[i].ID == id {
				fn(&st.outbound[i])
				return nil
			}
		}
		return repository.ErrNotFound
	})
}

type attemptRepo repoSet

func (r attemptRepo) Get(ctx context.Context, sourceMessageID string) (*domain.ResolutionAttempt, error) {
	var out *domain.ResolutionAttempt
	err := r.run(func(st *state) error {
		a, ok := st.attempts[sourceMessageID]
		if !ok {
			return repository.ErrNotFound
		}
		out = &a
		return nil
	})
	return out, err
}

func (r attemptRepo) RecordFailure(ctx context.Context, sourceMessageID, complaintID, reason string) (int, error) {
	var attempts int
	err := r.run(func(st *state) error {
		a := st.attempts[sourceMessageID]
		a.SourceMessageID = sourceMessageID
		a.ComplaintID = complaintID
		a.Attempts++
		a.LastError = reason
		a.UpdatedAt = r.now()
		st.attempts[sourceMessageID] = a
		attempts = a.Attempts
		return nil
	})
	return attempts, err
}

func (r attemptRepo) MarkDeadLettered(ctx context.Context, sourceMessageID string) error {
	return r.run(func(st *state) error {
		a, ok := st.attempts[sourceMessageID]
		if !ok {
			return repository.ErrNotFound
		}
		a.DeadLettered = true
		a.UpdatedAt = r.now()
		st.attempts[sourceMessageID] = a
		return nil
	})
}

func (r attemptRepo) ListDeadLettered(ctx context.Context, limit int) ([]domain.ResolutionAttempt, error) {
	var out []domain.ResolutionAttempt
	err := r.run(func(st *state) error {
		for _, a := range st.attempts {
			if a.DeadLettered {
				out = append(out, a)
			}
		}
		return nil
	})
	sort.Slice(out, func(i, j int) bool { return out[i].UpdatedAt.After(out[j].UpdatedAt) })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, err
}

type passengerRepo repoSet

func (r passengerRepo) GetByPNR(ctx context.Context, pnr string) (*domain.Passenger, error) {
	var out *domain.Passenger
	err := r.run(func(st *state) error {
		p, ok := st.passengers[strings.ToUpper(pnr)]
		if !ok {
			return repository.ErrNotFound
		}
		out = &p
		return nil
	})
	return out, err
}

func (r passengerRepo) Upsert(ctx context.Context, p *domain.Passenger) error {
	return r.run(func(st *state) error {
		p.PNR = strings.ToUpper(p.PNR)
		p.Source = strings.ToUpper(p.Source)
		p.Destination = strings.ToUpper(p.Destination)
		if existing, ok := st.passengers[p.PNR]; ok {
			p.CreatedAt = existing.CreatedAt
		} else {
			p.CreatedAt = r.now()
		}
		st.passengers[p.PNR] = *p
		return nil
	})
}

type policyRepo repoSet

func (r policyRepo) List(ctx context.Context) ([]domain.PolicyLimit, error) {
	var out []domain.PolicyLimit
	err := r.run(func(st *state) error {
		for _, l := range st.policies {
			out = append(out, l)
		}
		return nil
	})
	sort.Slice(out, func(i, j int) bool { return out[i].ActionType < out[j].ActionType })
	return out, err
}

func (r policyRepo) Upsert(ctx context.Context, limit domain.PolicyLimit) error {
	return r.run(func(st *state) error {
		limit.ActionType = domain.NormalizeActionType(limit.ActionType)
		st.policies[limit.ActionType] = limit
		return nil
	})
}

type weatherRepo repoSet

func weatherKey(flight, date, station string) string {
	return strings.ToUpper(flight) + "|" + date + "|" + strings.ToUpper(station)
}

func (r weatherRepo) Find(ctx context.Context, flightNumber, date, station string) (*domain.FlightWeather, error) {
	var out *domain.FlightWeather
	err := r.run(func(st *state) error {
		w, ok := st.weather[weatherKey(flightNumber, date, station)]
		if !ok {
			return repository.ErrNotFound
		}
		out = &w
		return nil
	})
	return out, err
}

func (r weatherRepo) Upsert(ctx context.Context, w domain.FlightWeather) error {
	return r.run(func(st *state) error {
		w.FlightNumber = strings.ToUpper(w.FlightNumber)
		w.Station = strings.ToUpper(w.Station)
		st.weather[weatherKey(w.FlightNumber, w.Date, w.Station)] = w
		return nil
	})
}

type operatorRepo repoSet

func (r operatorRepo) Create(ctx context.Context, op *domain.Operator) error {
	return r.run(func(st *state) error {
		op.Email = strings.ToLower(op.Email)
		for _, existing := range st.operators {
			if existing.Email == op.Email {
				return fmt.Errorf("operator %s already exists", op.Email)
			}
		}
		if op.ID == "" {
			op.ID = uuid.NewString()
		}
		now := r.now()
		op.CreatedAt, op.UpdatedAt = now, now
		st.operators[op.ID] = *op
		return nil
	})
}

func (r operatorRepo) Update(ctx context.Context, op *domain.Operator) error {
	return r.run(func(st *state) error {
		if _, ok := st.operators[op.ID]; !ok {
			return repository.ErrNotFound
		}
		op.Email = strings.ToLower(op.Email)
		op.UpdatedAt = r.now()
		st.operators[op.ID] = *op
		return nil
	})
}

func (r operatorRepo) GetByID(ctx context.Context, id string) (*domain.Operator, error) {
	var out *domain.Operator
	err := r.run(func(st *state) error {
		op, ok := st.operators[id]
		if !ok {
			return repository.ErrNotFound
		}
		out = &op
		return nil
	})
	return out, err
}

func (r operatorRepo) GetByEmail(ctx context.Context, email string) (*domain.Operator, error) {
	var out *domain.Operator
	err := r.run(func(st *state) error {
		for _, op := range st.operators {
			if op.Email == strings.ToLower(email) {
				found := op
				out = &found
				return nil
			}
		}
		return repository.ErrNotFound
	})
	return out, err
}

type caseRepo repoSet

func (r caseRepo) Create(ctx context.Context, rc *domain.ResolutionCase, embedding []float32) error {
	return r.run(func(st *state) error {
		if rc.ID == "" {
			rc.ID = uuid.NewString()
		}
		rc.CreatedAt = r.now()
		st.cases = append(st.cases, caseRow{rc: *rc, embedding: append([]float32(nil), embedding...)})
		return nil
	})
}

func (r caseRepo) SearchSimilar(ctx context.Context, embedding []float32, k int) ([]domain.ResolutionCase, error) {
	var out []domain.ResolutionCase
	err := r.run(func(st *state) error {
		for _, row := range st.cases {
			rc := row.rc
			rc.Similarity = cosine(embedding, row.embedding)
			out = append(out, rc)
		}
		return nil
	})
	sort.SliceStable(out, func(i, j int) bool { return out[i].Similarity > out[j].Similarity })
	if k > 0 && len(out) > k {
		out = out[:k]
	}
	return out, err
}

func cosine(a, b []float32) float64 {
	if len(a) == 0 || len(a) != len(b) {
		return 0
	}
	var dot, na, nb float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		na += float64(a[i]) * float64(a[i])
		nb += float64(b[i]) * float64(b[i])
	}
	if na == 0 || nb == 0 {
		return 0
	}
	return dot / (math.Sqrt(na) * math.Sqrt(nb))
}
