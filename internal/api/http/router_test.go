package http

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"

	"github.com/spec-kit/locate-service/internal/app"
	"github.com/spec-kit/locate-service/internal/auth"
	"github.com/spec-kit/locate-service/internal/clock"
	"github.com/spec-kit/locate-service/internal/config"
	"github.com/spec-kit/locate-service/internal/domain"
	"github.com/spec-kit/locate-service/internal/notify"
	"github.com/spec-kit/locate-service/internal/repository/memory"
)

const testEngine = `
version: 1
jurisdictions:
  - code: TS
    timezone: UTC
    weekend: [saturday, sunday]
    notice_business_days: 2
    validity_days: 10
    validity_business_days: true
    response_business_days: 2
    update_after_days: 20
    emergency_notice: 2h
`

// monday0900 is Monday 4 March 2024, 09:00 UTC.
var monday0900 = time.Date(2024, time.March, 4, 9, 0, 0, 0, time.UTC)

type recordingSink struct {
	mu        sync.Mutex
	contracts []notify.Contract
}

func (s *recordingSink) Send(_ context.Context, c notify.Contract) (notify.Receipt, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.contracts = append(s.contracts, c)
	return notify.Receipt{ProviderID: "test", AcceptedAt: time.Now()}, nil
}

func (s *recordingSink) count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.contracts)
}

type testServer struct {
	t      *testing.T
	server *fiber.App
	sink   *recordingSink
}

func newTestServer(t *testing.T) *testServer {
	t.Helper()
	engine, err := config.ParseEngine([]byte(testEngine))
	require.NoError(t, err)

	cfg := &config.Config{
		App:  config.AppConfig{Name: "locate-test", Version: "test"},
		Auth: config.AuthConfig{JWTSecret: "test-secret", AccessTokenTTLMinutes: 15, BcryptCost: bcrypt.MinCost},
		Sweeps: config.SweepConfig{
			TimeZone:        "UTC",
			ExpirySpec:      "@every 1m",
			AlertSpec:       "@every 1m",
			EscalationSpec:  "@every 1m",
			Concurrency:     2,
			LockTTLSeconds:  30,
			UpdateRetries:   3,
			HolidayCacheLen: 8,
		},
		Dispatch: config.DispatchConfig{Rate: "600-M", MaxAttempts: 1, SendTimeoutSec: 1},
	}

	store := memory.NewStore()
	hash, err := auth.HashPassword("admin-pass", bcrypt.MinCost)
	require.NoError(t, err)
	require.NoError(t, store.Users().Create(context.Background(), &domain.User{
		ID:             "admin",
		OrganizationID: "org-1",
		Name:           "Admin",
		Email:          "admin@example.com",
		PasswordHash:   hash,
		Role:           domain.RoleAdmin,
		Active:         true,
		CreatedAt:      monday0900,
	}))
	require.NoError(t, store.Users().Create(context.Background(), &domain.User{
		ID:             "other-admin",
		OrganizationID: "org-2",
		Name:           "Other Admin",
		Email:          "admin@other.example.com",
		PasswordHash:   hash,
		Role:           domain.RoleAdmin,
		Active:         true,
		CreatedAt:      monday0900,
	}))

	sink := &recordingSink{}
	a, err := app.New(context.Background(), cfg, zap.NewNop(), app.Options{
		Engine: engine,
		Store:  store,
		Clock:  clock.Fake(monday0900),
		Sinks:  map[domain.Channel]notify.Sink{domain.ChannelEmail: sink},
	})
	require.NoError(t, err)
	t.Cleanup(a.Close)

	return &testServer{t: t, server: NewServer(a), sink: sink}
}

func (s *testServer) do(method, path, token string, body any) (int, map[string]any) {
	s.t.Helper()
	var reader *bytes.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		require.NoError(s.t, err)
		reader = bytes.NewReader(raw)
	} else {
		reader = bytes.NewReader(nil)
	}
	req := httptest.NewRequest(method, path, reader)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	resp, err := s.server.Test(req, -1)
	require.NoError(s.t, err)
	defer resp.Body.Close()

	var out map[string]any
	if resp.ContentLength != 0 {
		_ = json.NewDecoder(resp.Body).Decode(&out)
	}
	return resp.StatusCode, out
}

func (s *testServer) login(email, password string) string {
	s.t.Helper()
	status, body := s.do(http.MethodPost, "/auth/login", "", map[string]string{"email": email, "password": password})
	require.Equal(s.t, http.StatusOK, status, body)
	return data(s.t, body)["auth"].(map[string]any)["token"].(string)
}

func (s *testServer) createUser(adminToken, email string, role domain.UserRole) string {
	s.t.Helper()
	status, body := s.do(http.MethodPost, "/api/v1/users", adminToken, map[string]any{
		"name":     email,
		"email":    email,
		"password": "password-1",
		"role":     role,
	})
	require.Equal(s.t, http.StatusCreated, status, body)
	return s.login(email, "password-1")
}

func data(t *testing.T, body map[string]any) map[string]any {
	t.Helper()
	d, ok := body["data"].(map[string]any)
	require.True(t, ok, "missing data in %v", body)
	return d
}

func errorCode(body map[string]any) string {
	e, _ := body["error"].(map[string]any)
	code, _ := e["code"].(string)
	return code
}

func TestHealthEndpoints(t *testing.T) {
	s := newTestServer(t)

	status, body := s.do(http.MethodGet, "/health/live", "", nil)
	assert.Equal(t, http.StatusOK, status)
	assert.Equal(t, "alive", body["status"])

	status, body = s.do(http.MethodGet, "/health/ready", "", nil)
	assert.Equal(t, http.StatusOK, status)
	deps := body["dependencies"].(map[string]any)
	assert.Equal(t, "disabled", deps["postgres"])
	assert.Equal(t, "disabled", deps["redis"])
}

func TestUnknownRouteReturnsJSONError(t *testing.T) {
	s := newTestServer(t)
	status, body := s.do(http.MethodGet, "/nope", "", nil)
	assert.Equal(t, http.StatusNotFound, status)
	assert.Equal(t, "NOT_FOUND", errorCode(body))
}

func TestAPIRequiresToken(t *testing.T) {
	s := newTestServer(t)
	status, body := s.do(http.MethodGet, "/api/v1/me", "", nil)
	assert.Equal(t, http.StatusUnauthorized, status)
	assert.Equal(t, "UNAUTHORIZED", errorCode(body))
}

func TestLoginRejectsBadPassword(t *testing.T) {
	s := newTestServer(t)
	status, _ := s.do(http.MethodPost, "/auth/login", "", map[string]string{"email": "admin@example.com", "password": "wrong"})
	assert.Equal(t, http.StatusUnauthorized, status)
}

func TestCrewCannotCreateTickets(t *testing.T) {
	s := newTestServer(t)
	admin := s.login("admin@example.com", "admin-pass")
	crew := s.createUser(admin, "crew@example.com", domain.RoleCrew)

	status, body := s.do(http.MethodPost, "/api/v1/tickets", crew, map[string]any{
		"jurisdiction": "TS",
		"type":         domain.TicketTypeStandard,
		"work_type":    domain.WorkTypeTrenching,
		"address":      "1 Main St",
	})
	assert.Equal(t, http.StatusForbidden, status)
	assert.Equal(t, "FORBIDDEN", errorCode(body))
}

func TestTicketLifecycleOverHTTP(t *testing.T) {
	s := newTestServer(t)
	admin := s.login("admin@example.com", "admin-pass")
	intake := s.createUser(admin, "intake@example.com", domain.RoleIntake)
	supervisor := s.createUser(admin, "lead@example.com", domain.RoleSupervisor)

	status, body := s.do(http.MethodPost, "/api/v1/subscriptions", supervisor, map[string]any{
		"scope":       domain.ScopeOrganization,
		"alert_types": []domain.AlertType{domain.AlertConflictDetected},
		"channels":    []domain.Channel{domain.ChannelEmail},
	})
	require.Equal(t, http.StatusCreated, status, body)
	assert.Equal(t, true, data(t, body)["active"])

	status, body = s.do(http.MethodPost, "/api/v1/tickets", intake, map[string]any{
		"jurisdiction": "TS",
		"type":         domain.TicketTypeStandard,
		"work_type":    domain.WorkTypeTrenching,
		"address":      "1 Main St",
		"utilities": []map[string]any{
			{"code": "GAS1", "name": "Gas Co", "facility": domain.FacilityGas},
			{"code": "ELEC1", "name": "Power Co", "facility": domain.FacilityElectric},
		},
	})
	require.Equal(t, http.StatusCreated, status, body)
	ticket := data(t, body)
	id := ticket["id"].(string)
	assert.Equal(t, "org-1", ticket["organization_id"])
	assert.Equal(t, string(domain.TicketStatusPending), ticket["status"])
	assert.Equal(t, "2024-03-06T09:00:00Z", ticket["legal_dig_date"])

	status, body = s.do(http.MethodGet, "/api/v1/tickets/"+id, supervisor, nil)
	require.Equal(t, http.StatusOK, status, body)
	assert.Len(t, data(t, body)["responses"], 2)

	status, body = s.do(http.MethodPost, "/api/v1/tickets/"+id+"/responses", intake, map[string]any{
		"utility_code":  "GAS1",
		"response_type": domain.ResponseConflict,
	})
	require.Equal(t, http.StatusOK, status, body)
	out := data(t, body)
	assert.Equal(t, string(domain.TicketStatusConflict), out["ticket"].(map[string]any)["status"])
	alert := out["alert"].(map[string]any)
	assert.Equal(t, string(domain.AlertConflictDetected), alert["alert_type"])
	assert.Equal(t, 1, s.sink.count())

	status, body = s.do(http.MethodGet, "/api/v1/alerts/"+alert["id"].(string)+"/acks", supervisor, nil)
	require.Equal(t, http.StatusOK, status, body)
	assert.Len(t, body["data"], 1)

	status, body = s.do(http.MethodPost, "/api/v1/alerts/"+alert["id"].(string)+"/ack", supervisor, nil)
	require.Equal(t, http.StatusOK, status, body)
	assert.Equal(t, string(domain.AckStatusAcknowledged), data(t, body)["status"])

	status, body = s.do(http.MethodGet, "/api/v1/tickets/"+id+"/conflicts", supervisor, nil)
	require.Equal(t, http.StatusOK, status, body)
	conflicts := body["data"].([]any)
	require.Len(t, conflicts, 1)
	conflictID := conflicts[0].(map[string]any)["id"].(string)

	status, body = s.do(http.MethodPost, "/api/v1/conflicts/"+conflictID+"/resolve", intake, nil)
	assert.Equal(t, http.StatusForbidden, status, body)

	status, body = s.do(http.MethodPost, "/api/v1/conflicts/"+conflictID+"/resolve", supervisor, map[string]string{"notes": "re-marked"})
	require.Equal(t, http.StatusOK, status, body)
	assert.Equal(t, string(domain.TicketStatusInProgress), data(t, body)["status"])

	status, body = s.do(http.MethodGet, "/api/v1/tickets/"+id+"/history", supervisor, nil)
	require.Equal(t, http.StatusOK, status, body)
	assert.NotEmpty(t, body["data"])

	status, body = s.do(http.MethodPost, "/api/v1/tickets/"+id+"/cancel", intake, map[string]string{"reason": "job moved"})
	require.Equal(t, http.StatusOK, status, body)
	assert.Equal(t, string(domain.TicketStatusCancelled), data(t, body)["status"])
}

func TestUnknownTicketIsNotFound(t *testing.T) {
	s := newTestServer(t)
	admin := s.login("admin@example.com", "admin-pass")
	status, body := s.do(http.MethodGet, "/api/v1/tickets/missing", admin, nil)
	assert.Equal(t, http.StatusNotFound, status)
	assert.Equal(t, "NOT_FOUND", errorCode(body))
}

func TestTicketsAreHiddenFromOtherOrganizations(t *testing.T) {
	s := newTestServer(t)
	intake := s.createUser(s.login("admin@example.com", "admin-pass"), "intake@example.com", domain.RoleIntake)
	outsider := s.createUser(s.login("admin@other.example.com", "admin-pass"), "intake@other.example.com", domain.RoleIntake)

	status, body := s.do(http.MethodPost, "/api/v1/tickets", intake, map[string]any{
		"jurisdiction": "TS",
		"type":         domain.TicketTypeStandard,
		"work_type":    domain.WorkTypeTrenching,
		"address":      "1 Main St",
		"utilities": []map[string]any{
			{"code": "GAS1", "name": "Gas Co", "facility": domain.FacilityGas},
		},
	})
	require.Equal(t, http.StatusCreated, status, body)
	id := data(t, body)["id"].(string)

	status, body = s.do(http.MethodGet, "/api/v1/tickets/"+id, outsider, nil)
	assert.Equal(t, http.StatusNotFound, status)
	assert.Equal(t, "NOT_FOUND", errorCode(body))

	status, body = s.do(http.MethodGet, "/api/v1/tickets/"+id+"/history", outsider, nil)
	assert.Equal(t, http.StatusNotFound, status)
	assert.Equal(t, "NOT_FOUND", errorCode(body))

	status, body = s.do(http.MethodPost, "/api/v1/tickets/"+id+"/responses", outsider, map[string]any{
		"utility_code":  "GAS1",
		"response_type": domain.ResponseMarked,
	})
	assert.Equal(t, http.StatusNotFound, status)
	assert.Equal(t, "NOT_FOUND", errorCode(body))

	status, body = s.do(http.MethodPost, "/api/v1/tickets/"+id+"/cancel", outsider, map[string]string{"reason": "not mine"})
	assert.Equal(t, http.StatusNotFound, status)
	assert.Equal(t, "NOT_FOUND", errorCode(body))

	status, body = s.do(http.MethodGet, "/api/v1/tickets/"+id, intake, nil)
	require.Equal(t, http.StatusOK, status, body)
	assert.Equal(t, string(domain.TicketStatusPending), data(t, body)["status"])
}

func TestSweepEndpoint(t *testing.T) {
	s := newTestServer(t)
	admin := s.login("admin@example.com", "admin-pass")

	status, body := s.do(http.MethodPost, "/api/v1/sweeps/alerts", admin, nil)
	require.Equal(t, http.StatusOK, status, body)
	assert.Equal(t, "alerts", data(t, body)["sweep"])

	status, body = s.do(http.MethodPost, "/api/v1/sweeps/laundry", admin, nil)
	assert.Equal(t, http.StatusNotFound, status)
	assert.Equal(t, "NOT_FOUND", errorCode(body))
}

func TestMetricsEndpoint(t *testing.T) {
	s := newTestServer(t)
	s.do(http.MethodGet, "/health/live", "", nil)

	req := httptest.NewRequest(http.MethodGet, "/metrics", nil)
	resp, err := s.server.Test(req, -1)
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)
}
