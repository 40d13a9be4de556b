package http

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	nethttp "net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/spec-kit/complaint-service/internal/api/http/handlers"
	"github.com/spec-kit/complaint-service/internal/auth"
	"github.com/spec-kit/complaint-service/internal/config"
	"github.com/spec-kit/complaint-service/internal/domain"
	"github.com/spec-kit/complaint-service/internal/observability"
	"github.com/spec-kit/complaint-service/internal/repository/memory"
	"github.com/spec-kit/complaint-service/internal/service"
)

const caseID = "CMP-2026-0001"

type stubDrafter struct{}

func (stubDrafter) DraftReply(context.Context, domain.InvestigationGrid, string, string) (string, error) {
	return "Dear John Doe, we apologise for the delay.", nil
}

type stubRunner struct {
	calls atomic.Int32
}

func (r *stubRunner) RunCycle(context.Context) *service.CycleReport {
	r.calls.Add(1)
	return &service.CycleReport{StartedAt: time.Now().UTC(), Duration: "1ms"}
}

type apiFixture struct {
	t      *testing.T
	app    *fiber.App
	store  *memory.Store
	runner *stubRunner
}

func newAPIFixture(t *testing.T) *apiFixture {
	t.Helper()
	ctx := context.Background()

	cfg := config.Default()
	cfg.Auth.JWTSecret = "test-secret"
	cfg.Auth.BcryptCost = 4
	cfg.Routing.CXMailbox = "cx@airline.test"

	store := memory.NewStore()
	authService, err := service.NewAuthService(*cfg, store.Operators())
	require.NoError(t, err)
	for _, in := range []service.OperatorInput{
		{Name: "Admin", Email: "admin@airline.test", Password: "pw-admin", Role: domain.OperatorRoleAdmin},
		{Name: "Ops", Email: "ops@airline.test", Password: "pw-ops", Role: domain.OperatorRoleBaseOps, Station: domain.StringPtr("DEL")},
		{Name: "CX", Email: "cx@airline.test", Password: "pw-cx", Role: domain.OperatorRoleCX},
	} {
		_, err = authService.CreateOperator(ctx, in)
		require.NoError(t, err)
	}
	seedWaitingComplaint(t, store)

	logger := zap.NewNop()
	metrics := observability.NewMetrics()
	engine := service.NewEngine(service.EngineDependencies{Store: store, Metrics: metrics})
	review := service.NewReviewService(service.ReviewDependencies{
		Store:   store,
		Drafter: stubDrafter{},
		Routing: cfg.Routing,
	})
	runner := &stubRunner{}

	app := fiber.New()
	RegisterMiddlewares(app, logger, metrics, 5*time.Second)
	RegisterRoutes(app, RouteConfig{
		Health:         handlers.NewHealthHandler("complaint-service", "test", "memory", store, nil),
		Auth:           handlers.NewAuthHandler(authService),
		Complaints:     handlers.NewComplaintsHandler(store, engine, review),
		Ops:            handlers.NewOpsHandler(runner, store.ResolutionAttempts(), metrics),
		AuthMiddleware: auth.NewAuthMiddleware(authService.TokenManager(), store.Operators()),
	})
	return &apiFixture{t: t, app: app, store: store, runner: runner}
}

func seedWaitingComplaint(t *testing.T, store *memory.Store) {
	t.Helper()
	ctx := context.Background()
	grid := domain.InvestigationGrid{
		PNR:          domain.StringPtr("ABC123"),
		CustomerName: domain.StringPtr("John Doe"),
		FlightNumber: domain.StringPtr("6E-501"),
		Source:       domain.StringPtr("DEL"),
		Destination:  domain.StringPtr("BOM"),
		Complaint:    domain.StringPtr("Flight delayed by five hours"),
		IssueType:    domain.StringPtr("Delay"),
	}
	stored := grid.Clone()
	c := &domain.Complaint{
		ID:               caseID,
		SourceMessageID:  "src-1",
		Subject:          "Delayed flight",
		SenderEmail:      "john@example.test",
		ReceivedAt:       time.Date(2026, 3, 2, 8, 0, 0, 0, time.UTC),
		Status:           domain.ComplaintStatusWaitingOps,
		ResolutionStatus: domain.ResolutionStatusPending,
		Grid:             &stored,
		OriginStation:    domain.StringPtr("DEL"),
	}
	created, err := store.Complaints().Create(ctx, c)
	require.NoError(t, err)
	require.True(t, created)
	require.NoError(t, store.Messages().Append(ctx, domain.NewConversationMessage(caseID, domain.AuthorTypeCustomer, domain.EmailContent{
		From:    c.SenderEmail,
		Subject: c.Subject,
		Body:    "My flight 6E-501 (PNR ABC123) was delayed by five hours.",
	})))
	require.NoError(t, store.Messages().Append(ctx, domain.NewConversationMessage(caseID, domain.AuthorTypeAgent, domain.GridContent{
		GridFields: grid,
	})))
}

func (f *apiFixture) login(email, password string) string {
	f.t.Helper()
	status, body := f.do(nethttp.MethodPost, "/auth/login", "", map[string]string{"email": email, "password": password})
	require.Equal(f.t, nethttp.StatusOK, status, string(body))
	var resp struct {
		Data struct {
			Auth struct {
				Token string `json:"token"`
			} `json:"auth"`
		} `json:"data"`
	}
	require.NoError(f.t, json.Unmarshal(body, &resp))
	require.NotEmpty(f.t, resp.Data.Auth.Token)
	return resp.Data.Auth.Token
}

func (f *apiFixture) do(method, path, token string, payload any) (int, []byte) {
	f.t.Helper()
	var reader io.Reader
	if payload != nil {
		raw, err := json.Marshal(payload)
		require.NoError(f.t, err)
		reader = bytes.NewReader(raw)
	}
	req := httptest.NewRequest(method, path, reader)
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	resp, err := f.app.Test(req, -1)
	require.NoError(f.t, err)
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	require.NoError(f.t, err)
	return resp.StatusCode, body
}

func errorCode(t *testing.T, body []byte) string {
	t.Helper()
	var resp struct {
		Error struct {
			Code string `json:"code"`
		} `json:"error"`
	}
	require.NoError(t, json.Unmarshal(body, &resp))
	return resp.Error.Code
}

func TestHealthEndpoints(t *testing.T) {
	f := newAPIFixture(t)

	status, _ := f.do(nethttp.MethodGet, "/health/live", "", nil)
	assert.Equal(t, nethttp.StatusOK, status)

	status, body := f.do(nethttp.MethodGet, "/health/ready", "", nil)
	assert.Equal(t, nethttp.StatusOK, status)
	assert.Contains(t, string(body), `"redis":"disabled"`)
}

func TestLoginRejectsBadCredentials(t *testing.T) {
	f := newAPIFixture(t)

	status, body := f.do(nethttp.MethodPost, "/auth/login", "", map[string]string{"email": "ops@airline.test", "password": "nope"})
	assert.Equal(t, nethttp.StatusUnauthorized, status)
	assert.Equal(t, "UNAUTHORIZED", errorCode(t, body))

	status, _ = f.do(nethttp.MethodPost, "/auth/login", "", map[string]string{"email": ""})
	assert.Equal(t, nethttp.StatusBadRequest, status)
}

func TestComplaintRoutesRequireToken(t *testing.T) {
	f := newAPIFixture(t)

	status, _ := f.do(nethttp.MethodGet, "/complaints", "", nil)
	assert.Equal(t, nethttp.StatusUnauthorized, status)

	status, _ = f.do(nethttp.MethodGet, "/complaints", "garbage", nil)
	assert.Equal(t, nethttp.StatusUnauthorized, status)
}

func TestErrorsEchoRequestID(t *testing.T) {
	f := newAPIFixture(t)

	req := httptest.NewRequest(nethttp.MethodGet, "/complaints", nil)
	req.Header.Set("X-Request-ID", "trace-42")
	resp, err := f.app.Test(req, -1)
	require.NoError(t, err)
	defer resp.Body.Close()

	assert.Equal(t, "trace-42", resp.Header.Get("X-Request-ID"))
	var body struct {
		Error struct {
			RequestID string `json:"request_id"`
		} `json:"error"`
	}
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
	assert.Equal(t, "trace-42", body.Error.RequestID)

	token := f.login("cx@airline.test", "pw-cx")
	status, raw := f.do(nethttp.MethodGet, "/no-such-route", token, nil)
	assert.Equal(t, nethttp.StatusNotFound, status)
	assert.Equal(t, "HTTP_ERROR", errorCode(t, raw))
}

func TestListAndFilterComplaints(t *testing.T) {
	f := newAPIFixture(t)
	token := f.login("cx@airline.test", "pw-cx")

	status, body := f.do(nethttp.MethodGet, "/complaints?status=waiting_ops&station=del", token, nil)
	require.Equal(t, nethttp.StatusOK, status, string(body))
	var list struct {
		Data []struct {
			ID     string `json:"id"`
			Status string `json:"status"`
		} `json:"data"`
	}
	require.NoError(t, json.Unmarshal(body, &list))
	require.Len(t, list.Data, 1)
	assert.Equal(t, caseID, list.Data[0].ID)
	assert.Equal(t, "WAITING_OPS", list.Data[0].Status)

	status, body = f.do(nethttp.MethodGet, "/complaints?status=RESOLVED", token, nil)
	require.Equal(t, nethttp.StatusOK, status)
	require.NoError(t, json.Unmarshal(body, &list))
	assert.Empty(t, list.Data)

	status, body = f.do(nethttp.MethodGet, "/complaints?status=CLOSED", token, nil)
	assert.Equal(t, nethttp.StatusBadRequest, status)
	assert.Equal(t, "VALIDATION_FAILED", errorCode(t, body))
}

func TestGetComplaintAndInspect(t *testing.T) {
	f := newAPIFixture(t)
	token := f.login("ops@airline.test", "pw-ops")

	status, body := f.do(nethttp.MethodGet, "/complaints/"+caseID, token, nil)
	require.Equal(t, nethttp.StatusOK, status, string(body))
	var detail struct {
		Data struct {
			Grid struct {
				PNR string `json:"pnr"`
			} `json:"grid"`
			NextAction string `json:"next_action"`
			Messages   []struct {
				MessageType string `json:"message_type"`
			} `json:"messages"`
		} `json:"data"`
	}
	require.NoError(t, json.Unmarshal(body, &detail))
	assert.Equal(t, "ABC123", detail.Data.Grid.PNR)
	assert.Equal(t, "waiting for Base Ops resolution", detail.Data.NextAction)
	require.Len(t, detail.Data.Messages, 2)
	assert.Equal(t, "EMAIL", detail.Data.Messages[0].MessageType)
	assert.Equal(t, "GRID", detail.Data.Messages[1].MessageType)

	status, body = f.do(nethttp.MethodGet, "/complaints/"+caseID+"/inspect", token, nil)
	require.Equal(t, nethttp.StatusOK, status, string(body))
	assert.Contains(t, string(body), `"grid_consistent":true`)

	status, body = f.do(nethttp.MethodGet, "/complaints/CMP-2026-9999/inspect", token, nil)
	assert.Equal(t, nethttp.StatusNotFound, status)
	assert.Equal(t, "NOT_FOUND", errorCode(t, body))

	status, body = f.do(nethttp.MethodGet, "/complaints/not-a-case/history", token, nil)
	assert.Equal(t, nethttp.StatusBadRequest, status)
	assert.Equal(t, "VALIDATION_FAILED", errorCode(t, body))

	status, _ = f.do(nethttp.MethodGet, "/complaints/cmp-2026-0001", token, nil)
	assert.Equal(t, nethttp.StatusOK, status)
}

func TestDeadLettersAreAdminOnly(t *testing.T) {
	f := newAPIFixture(t)
	ctx := context.Background()
	_, err := f.store.ResolutionAttempts().RecordFailure(ctx, "reply-7", caseID, "no action taken and outcome in reply")
	require.NoError(t, err)
	require.NoError(t, f.store.ResolutionAttempts().MarkDeadLettered(ctx, "reply-7"))

	status, _ := f.do(nethttp.MethodGet, "/dead-letters", f.login("cx@airline.test", "pw-cx"), nil)
	assert.Equal(t, nethttp.StatusForbidden, status)

	status, body := f.do(nethttp.MethodGet, "/dead-letters?limit=5", f.login("admin@airline.test", "pw-admin"), nil)
	require.Equal(t, nethttp.StatusOK, status, string(body))
	var resp struct {
		Data []struct {
			SourceMessageID string `json:"source_message_id"`
			ComplaintID     string `json:"complaint_id"`
			Attempts        int    `json:"attempts"`
		} `json:"data"`
	}
	require.NoError(t, json.Unmarshal(body, &resp))
	require.Len(t, resp.Data, 1)
	assert.Equal(t, "reply-7", resp.Data[0].SourceMessageID)
	assert.Equal(t, caseID, resp.Data[0].ComplaintID)
	assert.Equal(t, 1, resp.Data[0].Attempts)
}

func TestDraftAndApproveFlow(t *testing.T) {
	f := newAPIFixture(t)
	ops := f.login("ops@airline.test", "pw-ops")
	cx := f.login("cx@airline.test", "pw-cx")

	status, _ := f.do(nethttp.MethodPost, "/complaints/"+caseID+"/approve", cx, nil)
	assert.Equal(t, nethttp.StatusConflict, status, "nothing to approve yet")

	status, _ = f.do(nethttp.MethodPost, "/complaints/"+caseID+"/draft", cx, nil)
	assert.Equal(t, nethttp.StatusForbidden, status, "CX cannot generate drafts")

	status, body := f.do(nethttp.MethodPost, "/complaints/"+caseID+"/draft", ops, map[string]string{"notes": "offer voucher"})
	require.Equal(t, nethttp.StatusCreated, status, string(body))
	assert.Contains(t, string(body), `"message_type":"DRAFT"`)

	status, body = f.do(nethttp.MethodPost, "/complaints/"+caseID+"/approve", cx, nil)
	require.Equal(t, nethttp.StatusCreated, status, string(body))
	assert.Contains(t, string(body), `"message_type":"FINAL"`)

	c, err := f.store.Complaints().GetByID(context.Background(), caseID)
	require.NoError(t, err)
	assert.Equal(t, domain.ComplaintStatusApproved, c.Status)

	outbound, err := f.store.Outbound().ListByComplaint(context.Background(), caseID)
	require.NoError(t, err)
	require.Len(t, outbound, 1)
	assert.Equal(t, domain.OutboundFinalResponse, outbound[0].Kind)

	status, body = f.do(nethttp.MethodGet, "/complaints/"+caseID+"/history", cx, nil)
	require.Equal(t, nethttp.StatusOK, status)
	assert.Contains(t, string(body), `"action":"DRAFT_GENERATED"`)
	assert.Contains(t, string(body), `"action":"APPROVED"`)
}

func TestAdminRoutes(t *testing.T) {
	f := newAPIFixture(t)
	admin := f.login("admin@airline.test", "pw-admin")
	ops := f.login("ops@airline.test", "pw-ops")

	status, _ := f.do(nethttp.MethodPost, "/cycles", ops, nil)
	assert.Equal(t, nethttp.StatusForbidden, status)

	status, body := f.do(nethttp.MethodPost, "/cycles", admin, nil)
	require.Equal(t, nethttp.StatusOK, status, string(body))
	assert.Equal(t, int32(1), f.runner.calls.Load())

	status, body = f.do(nethttp.MethodPost, "/operators", admin, map[string]any{
		"name": "New", "email": "new@airline.test", "password": "pw-new", "role": "CX",
	})
	require.Equal(t, nethttp.StatusCreated, status, string(body))
	assert.NotContains(t, string(body), "password")

	status, _ = f.do(nethttp.MethodPost, "/operators", admin, map[string]any{
		"name": "Dup", "email": "new@airline.test", "password": "pw", "role": "CX",
	})
	assert.Equal(t, nethttp.StatusConflict, status)

	op, err := f.store.Operators().GetByEmail(context.Background(), "ops@airline.test")
	require.NoError(t, err)
	status, _ = f.do(nethttp.MethodPost, "/operators/"+op.ID+"/deactivate", admin, nil)
	assert.Equal(t, nethttp.StatusNoContent, status)

	status, _ = f.do(nethttp.MethodGet, "/complaints", ops, nil)
	assert.Equal(t, nethttp.StatusUnauthorized, status, "deactivated operator token is rejected")

	status, body = f.do(nethttp.MethodGet, "/metrics", admin, nil)
	require.Equal(t, nethttp.StatusOK, status)
	assert.Contains(t, string(body), `"requests"`)
}
