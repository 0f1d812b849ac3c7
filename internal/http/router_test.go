package http

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/mediation-escrow/backend/internal/config"
	"github.com/mediation-escrow/backend/internal/events"
	"github.com/mediation-escrow/backend/internal/fees"
	"github.com/mediation-escrow/backend/internal/http/handlers"
	"github.com/mediation-escrow/backend/internal/repositories"
	"github.com/mediation-escrow/backend/internal/services"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type apiClient struct {
	t   *testing.T
	app *fiber.App
}

type envelope struct {
	OK    bool            `json:"ok"`
	Data  json.RawMessage `json:"data"`
	Error string          `json:"error"`
}

type testUser struct {
	ID    string
	Token string
}

func newTestAPI(t *testing.T) *apiClient {
	t.Helper()
	log := zap.NewNop()
	cfg := &config.Config{
		Env:                      "development",
		JWTSecret:                "test-secret",
		JWTExpiration:            time.Hour,
		USDToTNDRate:             decimal.NewFromInt(3),
		ConflictMaxRetries:       2,
		ConflictRetryBase:        time.Millisecond,
		AssignmentTimeout:        time.Hour,
		SelectionTimeout:         time.Hour,
		MaxSuggestionRefreshes:   3,
		SuggestionBatchSize:      5,
		ReputationPointsPerTrade: 10,
	}
	conv, err := fees.NewConverter(cfg.USDToTNDRate)
	require.NoError(t, err)

	store := repositories.NewMemoryStore()
	bus := events.NewMemoryBus()
	hub := handlers.NewWSHub(bus, log)
	require.NoError(t, hub.Start(context.Background()))

	app := NewApp(log)
	SetupRouter(app, Deps{
		Config:    cfg,
		Log:       log,
		Mediation: services.NewMediationService(store, fees.NewCalculator(conv), events.NewEmitter(bus, log), cfg, log),
		Users:     services.NewUserService(store, log),
		Hub:       hub,
	})
	return &apiClient{t: t, app: app}
}

func (a *apiClient) do(method, path, token string, body any) (int, envelope) {
	a.t.Helper()
	var r io.Reader
	if body != nil {
		b, err := json.Marshal(body)
		require.NoError(a.t, err)
		r = bytes.NewReader(b)
	}
	req := httptest.NewRequest(method, path, r)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	resp, err := a.app.Test(req, -1)
	require.NoError(a.t, err)
	defer resp.Body.Close()

	var env envelope
	raw, err := io.ReadAll(resp.Body)
	require.NoError(a.t, err)
	if len(raw) > 0 {
		require.NoError(a.t, json.Unmarshal(raw, &env), string(raw))
	}
	return resp.StatusCode, env
}

func (a *apiClient) user(role, balance string, qualified bool) testUser {
	a.t.Helper()
	req := httptest.NewRequest(fiber.MethodPost, "/api/v1/dev/users", bytes.NewReader(mustJSON(a.t, map[string]any{
		"role": role, "balance": balance, "is_mediator_qualified": qualified,
	})))
	req.Header.Set("Content-Type", "application/json")
	resp, err := a.app.Test(req, -1)
	require.NoError(a.t, err)
	defer resp.Body.Close()
	require.Equal(a.t, fiber.StatusCreated, resp.StatusCode)

	var out struct {
		Token string `json:"token"`
		User  struct {
			ID string `json:"id"`
		} `json:"user"`
	}
	require.NoError(a.t, json.NewDecoder(resp.Body).Decode(&out))
	return testUser{ID: out.User.ID, Token: out.Token}
}

func mustJSON(t *testing.T, v any) []byte {
	t.Helper()
	b, err := json.Marshal(v)
	require.NoError(t, err)
	return b
}

type mediationView struct {
	ID     string `json:"id"`
	Status string `json:"status"`
	Escrow *struct {
		Amount decimal.Decimal `json:"escrowed_amount"`
	} `json:"escrow"`
}

func decode[T any](t *testing.T, env envelope) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(env.Data, &v))
	return v
}

func TestMediationFlowOverHTTP(t *testing.T) {
	api := newTestAPI(t)
	seller := api.user("user", "0", false)
	buyer := api.user("user", "100", false)
	mediator := api.user("mediator", "0", true)
	admin := api.user("admin", "0", false)

	code, env := api.do(fiber.MethodPost, "/api/v1/mediations", seller.Token, map[string]any{
		"product_id":   "7f1d2c3a-0000-4000-8000-000000000001",
		"buyer_id":     buyer.ID,
		"bid_amount":   "40",
		"bid_currency": "TND",
	})
	require.Equal(t, fiber.StatusCreated, code, env.Error)
	m := decode[mediationView](t, env)
	assert.Equal(t, "pending_assignment", m.Status)
	base := "/api/v1/mediations/" + m.ID

	code, env = api.do(fiber.MethodPost, "/api/v1/admin/mediations/"+m.ID+"/assign", admin.Token, map[string]any{"mediator_id": mediator.ID})
	require.Equal(t, fiber.StatusOK, code, env.Error)

	code, env = api.do(fiber.MethodPost, base+"/accept", mediator.Token, nil)
	require.Equal(t, fiber.StatusOK, code, env.Error)

	code, env = api.do(fiber.MethodPost, base+"/buyer-ready", buyer.Token, nil)
	require.Equal(t, fiber.StatusOK, code, env.Error)
	m = decode[mediationView](t, env)
	assert.Equal(t, "escrow_funded", m.Status)
	require.NotNil(t, m.Escrow)
	assert.True(t, decimal.RequireFromString("41.20").Equal(m.Escrow.Amount), m.Escrow.Amount.String())

	code, env = api.do(fiber.MethodPost, base+"/seller-ready", seller.Token, nil)
	require.Equal(t, fiber.StatusOK, code, env.Error)
	assert.Equal(t, "in_progress", decode[mediationView](t, env).Status)

	code, env = api.do(fiber.MethodPost, base+"/confirm-receipt", buyer.Token, nil)
	require.Equal(t, fiber.StatusOK, code, env.Error)
	assert.Equal(t, "completed", decode[mediationView](t, env).Status)

	code, env = api.do(fiber.MethodGet, "/api/v1/me", buyer.Token, nil)
	require.Equal(t, fiber.StatusOK, code, env.Error)
	acc := decode[struct {
		User struct {
			Balance decimal.Decimal `json:"balance"`
		} `json:"user"`
	}](t, env)
	assert.True(t, decimal.RequireFromString("58.80").Equal(acc.User.Balance), acc.User.Balance.String())

	code, env = api.do(fiber.MethodGet, base+"/history", seller.Token, nil)
	require.Equal(t, fiber.StatusOK, code, env.Error)
	assert.NotEqual(t, "null", string(env.Data))
}

func TestErrorMapping(t *testing.T) {
	api := newTestAPI(t)
	seller := api.user("user", "0", false)
	buyer := api.user("user", "0", false)
	mediator := api.user("mediator", "0", true)
	admin := api.user("admin", "0", false)

	_, env := api.do(fiber.MethodPost, "/api/v1/mediations", seller.Token, map[string]any{
		"product_id": "7f1d2c3a-0000-4000-8000-000000000002", "buyer_id": buyer.ID,
		"bid_amount": "40", "bid_currency": "TND",
	})
	id := decode[mediationView](t, env).ID
	base := "/api/v1/mediations/" + id

	_, _ = api.do(fiber.MethodPost, "/api/v1/admin/mediations/"+id+"/assign", admin.Token, map[string]any{"mediator_id": mediator.ID})
	_, _ = api.do(fiber.MethodPost, base+"/accept", mediator.Token, nil)

	tests := []struct {
		name   string
		method string
		path   string
		token  string
		body   any
		want   int
		errHas string
	}{
		{"missing token", fiber.MethodGet, base, "", nil, fiber.StatusUnauthorized, "bearer"},
		{"bad token", fiber.MethodGet, base, "nope", nil, fiber.StatusUnauthorized, "invalid"},
		{"body validation", fiber.MethodPost, "/api/v1/mediations", seller.Token, map[string]any{"bid_amount": "x"}, fiber.StatusBadRequest, "buyer_id is required"},
		{"bad currency", fiber.MethodPost, "/api/v1/mediations", seller.Token, map[string]any{
			"product_id": "7f1d2c3a-0000-4000-8000-000000000003", "buyer_id": buyer.ID, "bid_amount": "10", "bid_currency": "EUR",
		}, fiber.StatusBadRequest, "bid_currency must be one of"},
		{"bad path id", fiber.MethodGet, "/api/v1/mediations/not-a-uuid", seller.Token, nil, fiber.StatusBadRequest, "invalid id"},
		{"unknown record", fiber.MethodGet, "/api/v1/mediations/7f1d2c3a-0000-4000-8000-0000000000ff", seller.Token, nil, fiber.StatusNotFound, ""},
		{"wrong party", fiber.MethodPost, base + "/buyer-ready", seller.Token, nil, fiber.StatusForbidden, "only the buyer"},
		{"not admin", fiber.MethodPost, "/api/v1/admin/mediations/" + id + "/cancel", seller.Token, map[string]any{"reason": "x"}, fiber.StatusForbidden, "admin access required"},
		{"role lacks permission", fiber.MethodPost, base + "/accept", buyer.Token, nil, fiber.StatusForbidden, "permission denied"},
		{"insufficient funds", fiber.MethodPost, base + "/buyer-ready", buyer.Token, nil, fiber.StatusPaymentRequired, "insufficient"},
		{"missing reason", fiber.MethodPost, base + "/buyer-cancel", buyer.Token, map[string]any{}, fiber.StatusBadRequest, "reason is required"},
		{"wrong state", fiber.MethodPost, base + "/confirm-receipt", buyer.Token, nil, fiber.StatusBadRequest, ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			code, env := api.do(tt.method, tt.path, tt.token, tt.body)
			assert.Equal(t, tt.want, code, env.Error)
			assert.Contains(t, env.Error, tt.errHas)
		})
	}
}

func TestPublicRoutes(t *testing.T) {
	api := newTestAPI(t)

	code, _ := api.do(fiber.MethodGet, "/health", "", nil)
	assert.Equal(t, fiber.StatusOK, code)

	req := httptest.NewRequest(fiber.MethodGet, "/metrics", nil)
	resp, err := api.app.Test(req, -1)
	require.NoError(t, err)
	body, _ := io.ReadAll(resp.Body)
	resp.Body.Close()
	assert.Equal(t, fiber.StatusOK, resp.StatusCode)
	assert.Contains(t, string(body), "go_goroutines")

	code, env := api.do(fiber.MethodPost, "/api/v1/meta/fees/quote", "", map[string]any{"price": 40, "currency": "TND"})
	require.Equal(t, fiber.StatusOK, code, env.Error)
	q := decode[fees.FeeResult](t, env)
	assert.True(t, decimal.RequireFromString("2.40").Equal(q.Fee), q.Fee.String())
	assert.True(t, decimal.RequireFromString("41.20").Equal(q.TotalForBuyer), q.TotalForBuyer.String())

	code, env = api.do(fiber.MethodPost, "/api/v1/meta/fees/quote", "", map[string]any{"price": -1, "currency": "TND"})
	assert.Equal(t, fiber.StatusBadRequest, code)
	assert.False(t, env.OK)

	code, env = api.do(fiber.MethodGet, "/api/v1/meta/fees", "", nil)
	require.Equal(t, fiber.StatusOK, code)
	assert.Contains(t, string(env.Data), `"base_currency":"TND"`)
}

func TestMetricsApp(t *testing.T) {
	app := NewMetricsApp(zap.NewNop())

	resp, err := app.Test(httptest.NewRequest(fiber.MethodGet, "/metrics", nil), -1)
	require.NoError(t, err)
	body, _ := io.ReadAll(resp.Body)
	resp.Body.Close()
	assert.Equal(t, fiber.StatusOK, resp.StatusCode)
	assert.Contains(t, string(body), "go_goroutines")

	resp, err = app.Test(httptest.NewRequest(fiber.MethodGet, "/api/v1/mediations", nil), -1)
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, fiber.StatusNotFound, resp.StatusCode)
}
