package app

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"github.com/silaibook/silaibook/internal/fulfillment"
	"github.com/silaibook/silaibook/internal/observability"
	"github.com/silaibook/silaibook/internal/store/memory"
)

type apiClient struct {
	t       *testing.T
	handler http.Handler
}

func (c apiClient) do(method, path string, body any, out any) int {
	c.t.Helper()
	var reader io.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		require.NoError(c.t, err)
		reader = bytes.NewReader(raw)
	}
	req := httptest.NewRequest(method, path, reader)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	req.Header.Set(ActorHeader, "counter-2")
	rec := httptest.NewRecorder()
	c.handler.ServeHTTP(rec, req)
	if out != nil && rec.Code < 300 {
		require.NoError(c.t, json.Unmarshal(rec.Body.Bytes(), out), rec.Body.String())
	}
	return rec.Code
}

func newTestRouter(t *testing.T, notifier fulfillment.Notifier) (apiClient, *memory.Store) {
	t.Helper()
	decimal.MarshalJSONWithoutQuotes = true
	t.Cleanup(func() { decimal.MarshalJSONWithoutQuotes = false })

	cfg := &Config{AppEnv: "test", PhoneRegion: "IN", LowStockThreshold: decimal.NewFromInt(10), RateLimitPerMin: 1000}
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	metrics := observability.NewMetrics()
	store := memory.New()
	services := NewServices(ServiceDeps{
		Backend:  MemoryBackend(store),
		Config:   cfg,
		Logger:   logger,
		Notifier: notifier,
		Metrics:  metrics,
	})
	params := services.Handlers(RouterParams{Logger: logger, Config: cfg, Metrics: metrics}, nil)
	return apiClient{t: t, handler: NewRouter(params)}, store
}

func TestOrderLifecycleOverHTTP(t *testing.T) {
	var events []fulfillment.ReadyNotificationEvent
	api, store := newTestRouter(t, fulfillment.NotifierFunc(func(_ context.Context, ev fulfillment.ReadyNotificationEvent) error {
		events = append(events, ev)
		return nil
	}))

	var customer struct {
		ID     int64  `json:"id"`
		Mobile string `json:"mobile"`
	}
	require.Equal(t, http.StatusCreated, api.do(http.MethodPost, "/api/customers", map[string]any{"name": "Sana", "mobile": "98765 11111"}, &customer))
	require.Equal(t, "+919876511111", customer.Mobile)

	var lot struct {
		ID int64 `json:"id"`
	}
	require.Equal(t, http.StatusCreated, api.do(http.MethodPost, "/api/stock-lots", map[string]any{
		"dealer_name": "Kanchi Silks", "category": "Silk", "total_meters": 12, "price_per_meter": 650,
	}, &lot))

	var order struct {
		ID          int64  `json:"id"`
		OrderNumber string `json:"order_number"`
		Status      string `json:"status"`
	}
	require.Equal(t, http.StatusCreated, api.do(http.MethodPost, "/api/orders", map[string]any{
		"customer_id":        customer.ID,
		"order_type":         "Saree blouse",
		"cloth_reservations": []map[string]any{{"stock_lot_id": lot.ID, "meters": 4}},
		"delivery_date":      "2026-11-20",
		"price":              2500,
		"advance_amount":     1000,
	}, &order))
	require.Equal(t, "Received", order.Status)

	orderPath := fmt.Sprintf("/api/orders/%d", order.ID)
	require.Equal(t, http.StatusConflict, api.do(http.MethodPut, orderPath+"/status", map[string]any{"status": "Ready"}, nil))
	require.Equal(t, http.StatusOK, api.do(http.MethodPut, orderPath+"/status", map[string]any{"status": "Finishing"}, nil))
	require.Equal(t, http.StatusOK, api.do(http.MethodPost, orderPath+"/ready", nil, &order))
	require.Equal(t, "Ready", order.Status)
	require.Equal(t, http.StatusOK, api.do(http.MethodPost, orderPath+"/ready", nil, nil))
	require.Len(t, events, 1)
	require.True(t, events[0].AmountDue.Equal(decimal.NewFromInt(1500)))

	var remaining struct {
		UsedMeters decimal.Decimal `json:"used_meters"`
	}
	require.Equal(t, http.StatusOK, api.do(http.MethodGet, fmt.Sprintf("/api/stock-lots/%d", lot.ID), nil, &remaining))
	require.True(t, remaining.UsedMeters.Equal(decimal.NewFromInt(4)))

	var paid struct {
		Balance struct {
			Status          string          `json:"status"`
			RemainingAmount decimal.Decimal `json:"remaining_amount"`
		} `json:"balance"`
	}
	require.Equal(t, http.StatusUnprocessableEntity, api.do(http.MethodPost, "/api/payments", map[string]any{
		"customer_id": customer.ID, "total_bill": 0, "paid_amount": 1501, "payment_mode": "UPI",
	}, nil))
	require.Equal(t, http.StatusCreated, api.do(http.MethodPost, "/api/payments", map[string]any{
		"customer_id": customer.ID, "total_bill": 0, "paid_amount": 1500, "payment_mode": "UPI",
	}, &paid))
	require.Equal(t, "Paid", paid.Balance.Status)
	require.True(t, paid.Balance.RemainingAmount.IsZero())

	require.Equal(t, http.StatusOK, api.do(http.MethodPost, orderPath+"/deliver", nil, &order))
	require.Equal(t, "Delivered", order.Status)

	var summaries []map[string]any
	require.Equal(t, http.StatusOK, api.do(http.MethodGet, "/api/payments/summaries", nil, &summaries))
	require.Len(t, summaries, 1)

	trail := store.AuditTrail("order.ready")
	require.Len(t, trail, 1)
	require.Equal(t, "counter-2", trail[0].Actor)
}

func TestRouterInfrastructureRoutes(t *testing.T) {
	api, _ := newTestRouter(t, nil)

	rec := httptest.NewRecorder()
	api.handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	require.Equal(t, "nosniff", rec.Header().Get("X-Content-Type-Options"))
	require.Equal(t, "DENY", rec.Header().Get("X-Frame-Options"))

	rec = httptest.NewRecorder()
	api.handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	require.Contains(t, rec.Body.String(), "silaibook_http_requests_total")

	require.Equal(t, http.StatusNotFound, api.do(http.MethodGet, "/api/nothing-here", nil, nil))
	require.Equal(t, http.StatusNotFound, api.do(http.MethodGet, "/api/orders/404", nil, nil))
	require.Equal(t, http.StatusBadRequest, api.do(http.MethodGet, "/api/orders/abc", nil, nil))
}

func TestConfigValidate(t *testing.T) {
	cfg := Config{StoreDriver: " Memory ", LockBackend: "LOCAL", WorkerTimezone: "Asia/Kolkata"}
	require.NoError(t, cfg.Validate())
	require.Equal(t, StoreMemory, cfg.StoreDriver)
	require.Equal(t, LockLocal, cfg.LockBackend)

	cfg = Config{StoreDriver: StorePostgres, LockBackend: LockLocal, WorkerTimezone: "UTC"}
	require.Error(t, cfg.Validate())

	cfg = Config{StoreDriver: StoreMemory, LockBackend: "etcd", WorkerTimezone: "UTC"}
	require.Error(t, cfg.Validate())

	cfg = Config{StoreDriver: StoreMemory, LockBackend: LockRedis, WorkerTimezone: "UTC", LowStockThreshold: decimal.NewFromInt(-1)}
	require.Error(t, cfg.Validate())

	cfg = Config{StoreDriver: StoreMemory, LockBackend: LockRedis, WorkerTimezone: "Mars/Olympus"}
	require.Error(t, cfg.Validate())
}

func TestInTestMode(t *testing.T) {
	t.Setenv(testModeEnv, "")
	require.False(t, InTestMode())
	t.Setenv(testModeEnv, "true")
	require.True(t, InTestMode())
	t.Setenv(testModeEnv, "1")
	require.True(t, InTestMode())
	t.Setenv(testModeEnv, "nope")
	require.False(t, InTestMode())
}
