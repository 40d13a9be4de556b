package handlers

import (
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gofiber/fiber/v2"

	"github.com/spec-kit/complaint-service/internal/api/dto"
	"github.com/spec-kit/complaint-service/internal/auth"
	"github.com/spec-kit/complaint-service/internal/domain"
	"github.com/spec-kit/complaint-service/internal/repository"
	"github.com/spec-kit/complaint-service/internal/service"
	apperrors "github.com/spec-kit/complaint-service/pkg/util"
)

// ComplaintsHandler serves the operator dashboard.
type ComplaintsHandler struct {
	store  repository.Store
	engine *service.Engine
	review *service.ReviewService
}

// NewComplaintsHandler constructs handler.
func NewComplaintsHandler(store repository.Store, engine *service.Engine, review *service.ReviewService) *ComplaintsHandler {
	return &ComplaintsHandler{store: store, engine: engine, review: review}
}

// ListComplaints GET /complaints.
func (h *ComplaintsHandler) ListComplaints(c *fiber.Ctx) error {
	filter, err := parseComplaintQuery(c)
	if err != nil {
		return err
	}
	complaints, err := h.store.Complaints().List(c.UserContext(), filter)
	if err != nil {
		return err
	}
	items := make([]dto.ComplaintSummary, 0, len(complaints))
	for i := range complaints {
		items = append(items, dto.NewComplaintSummary(&complaints[i]))
	}
	return c.JSON(fiber.Map{"data": items})
}

// GetComplaint GET /complaints/:id.
func (h *ComplaintsHandler) GetComplaint(c *fiber.Ctx) error {
	complaint, err := h.load(c)
	if err != nil {
		return err
	}
	msgs, err := h.store.Messages().ListByComplaint(c.UserContext(), complaint.ID)
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"data": dto.ComplaintDetailResponse{
		ComplaintSummary: dto.NewComplaintSummary(complaint),
		Grid:             complaint.Grid,
		NextAction:       service.NextAction(*complaint, time.Now().UTC()),
		Messages:         dto.NewMessageResponses(msgs),
	}})
}

// History GET /complaints/:id/history.
func (h *ComplaintsHandler) History(c *fiber.Ctx) error {
	complaint, err := h.load(c)
	if err != nil {
		return err
	}
	entries, err := h.store.History().ListByComplaint(c.UserContext(), complaint.ID)
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"data": dto.NewHistoryResponses(entries)})
}

// Inspect GET /complaints/:id/inspect.
func (h *ComplaintsHandler) Inspect(c *fiber.Ctx) error {
	id, err := caseIDParam(c)
	if err != nil {
		return err
	}
	in, err := h.engine.Inspect(c.UserContext(), id)
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"data": dto.NewInspectionResponse(in)})
}

// GenerateDraft POST /complaints/:id/draft.
func (h *ComplaintsHandler) GenerateDraft(c *fiber.Ctx) error {
	principal, ok := auth.PrincipalFromContext(c)
	if !ok {
		return apperrors.NewUnauthorized("operator required")
	}
	id, err := caseIDParam(c)
	if err != nil {
		return err
	}
	var req dto.DraftRequest
	if len(c.Body()) > 0 {
		if err := c.BodyParser(&req); err != nil {
			return apperrors.NewValidationError("invalid payload", nil)
		}
	}
	msg, err := h.review.GenerateDraft(c.UserContext(), id, *principal.Operator, strings.TrimSpace(req.Notes))
	if err != nil {
		return err
	}
	return c.Status(http.StatusCreated).JSON(fiber.Map{"data": dto.NewMessageResponse(msg)})
}

// Approve POST /complaints/:id/approve.
func (h *ComplaintsHandler) Approve(c *fiber.Ctx) error {
	principal, ok := auth.PrincipalFromContext(c)
	if !ok {
		return apperrors.NewUnauthorized("operator required")
	}
	id, err := caseIDParam(c)
	if err != nil {
		return err
	}
	var req dto.ApproveRequest
	if len(c.Body()) > 0 {
		if err := c.BodyParser(&req); err != nil {
			return apperrors.NewValidationError("invalid payload", nil)
		}
	}
	msg, err := h.review.Approve(c.UserContext(), id, *principal.Operator, req.Body)
	if err != nil {
		return err
	}
	return c.Status(http.StatusCreated).JSON(fiber.Map{"data": dto.NewMessageResponse(msg)})
}

func (h *ComplaintsHandler) load(c *fiber.Ctx) (*domain.Complaint, error) {
	id, err := caseIDParam(c)
	if err != nil {
		return nil, err
	}
	complaint, err := h.store.Complaints().GetByID(c.UserContext(), id)
	if errors.Is(err, repository.ErrNotFound) {
		return nil, apperrors.NewNotFound("complaint", map[string]any{"id": id})
	}
	return complaint, err
}

func caseIDParam(c *fiber.Ctx) (string, error) {
	id := strings.ToUpper(strings.TrimSpace(c.Params("id")))
	if !domain.IsCaseID(id) {
		return "", apperrors.NewValidationError("invalid complaint id", map[string]any{"id": c.Params("id")})
	}
	return id, nil
}

func parseComplaintQuery(c *fiber.Ctx) (domain.ComplaintFilter, error) {
	var filter domain.ComplaintFilter
	for _, raw := range splitCSV(c.Query("status")) {
		status := domain.ComplaintStatus(strings.ToUpper(raw))
		if !status.Valid() {
			return filter, apperrors.NewValidationError("unknown status", map[string]any{"status": raw})
		}
		filter.Statuses = append(filter.Statuses, status)
	}
	for _, raw := range splitCSV(c.Query("resolution_status")) {
		status := domain.ResolutionStatus(strings.ToUpper(raw))
		if !status.Valid() {
			return filter, apperrors.NewValidationError("unknown resolution_status", map[string]any{"resolution_status": raw})
		}
		filter.ResolutionStatuses = append(filter.ResolutionStatuses, status)
	}
	if station := strings.TrimSpace(c.Query("station")); station != "" {
		upper := strings.ToUpper(station)
		filter.OriginStation = &upper
	}
	if raw := c.Query("manual_review"); raw != "" {
		flag, err := strconv.ParseBool(raw)
		if err != nil {
			return filter, apperrors.NewValidationError("manual_review must be a boolean", nil)
		}
		filter.NeedsManualReview = &flag
	}
	filter.Limit = parseInt(c.Query("limit"), 50)
	if filter.Limit > 200 {
		filter.Limit = 200
	}
	if raw := c.Query("offset"); raw != "" {
		offset, err := strconv.Atoi(raw)
		if err != nil || offset < 0 {
			return filter, apperrors.NewValidationError("offset must be a non-negative integer", nil)
		}
		filter.Offset = offset
	}
	return filter, nil
}

func splitCSV(val string) []string {
	if val == "" {
		return nil
	}
	var out []string
	for _, part := range strings.Split(val, ",") {
		if p := strings.TrimSpace(part); p != "" {
			out = append(out, p)
		}
	}
	return out
}

func parseInt(val string, def int) int {
	if val == "" {
		return def
	}
	parsed, err := strconv.Atoi(val)
	if err != nil || parsed <= 0 {
		return def
	}
	return parsed
}
