package handlers

import (
	"context"

	"github.com/gofiber/fiber/v2"

	"github.com/spec-kit/complaint-service/internal/api/dto"
	"github.com/spec-kit/complaint-service/internal/domain"
	"github.com/spec-kit/complaint-service/internal/observability"
	"github.com/spec-kit/complaint-service/internal/service"
)

// CycleRunner runs one engine cycle on demand.
type CycleRunner interface {
	RunCycle(ctx context.Context) *service.CycleReport
}

// DeadLetterLister reads replies that exhausted their attempts.
type DeadLetterLister interface {
	ListDeadLettered(ctx context.Context, limit int) ([]domain.ResolutionAttempt, error)
}

// OpsHandler exposes manual cycles, dead letters and counters.
type OpsHandler struct {
	runner      CycleRunner
	deadLetters DeadLetterLister
	metrics     *observability.Metrics
}

// NewOpsHandler constructs handler.
func NewOpsHandler(runner CycleRunner, deadLetters DeadLetterLister, metrics *observability.Metrics) *OpsHandler {
	return &OpsHandler{runner: runner, deadLetters: deadLetters, metrics: metrics}
}

// RunCycle POST /cycles.
func (h *OpsHandler) RunCycle(c *fiber.Ctx) error {
	// a cycle is not cut short by the request timeout
	report := h.runner.RunCycle(context.WithoutCancel(c.UserContext()))
	return c.JSON(fiber.Map{"data": report})
}

// DeadLetters GET /dead-letters?limit=.
func (h *OpsHandler) DeadLetters(c *fiber.Ctx) error {
	rows, err := h.deadLetters.ListDeadLettered(c.UserContext(), parseInt(c.Query("limit"), 50))
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"data": dto.NewDeadLetterResponses(rows)})
}

// Metrics GET /metrics.
func (h *OpsHandler) Metrics(c *fiber.Ctx) error {
	return c.JSON(fiber.Map{"data": h.metrics.Snapshot()})
}
