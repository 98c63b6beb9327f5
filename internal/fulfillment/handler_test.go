package fulfillment_test

import (
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	"github.com/silaibook/silaibook/internal/fulfillment"
	"github.com/silaibook/silaibook/internal/orders"
	"github.com/silaibook/silaibook/internal/platform/httpx"
)

func newRouter(h *harness) http.Handler {
	r := chi.NewRouter()
	fulfillment.NewHandler(slog.New(slog.NewTextHandler(io.Discard, nil)), h.orch, httpx.NewValidator()).MountRoutes(r)
	return r
}

func TestHandleCreateAndReady(t *testing.T) {
	h := newHarness(t)
	lot := h.lot(t, "12")
	router := newRouter(h)

	body := fmt.Sprintf(`{
		"customer_id": %d,
		"order_type": "Kurta",
		"cloth_reservations": [{"stock_lot_id": %d, "meters": 2.5}],
		"delivery_date": "2026-12-01",
		"price": 1800,
		"advance_amount": 500
	}`, h.customer.ID, lot.ID)
	req := httptest.NewRequest(http.MethodPost, "/orders", strings.NewReader(body))
	req.Header.Set("Idempotency-Key", uuid.NewString())
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

	var created orders.Order
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &created))
	require.Equal(t, orders.StatusReceived, created.Status)
	require.Len(t, created.Reservations, 1)

	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, fmt.Sprintf("/orders/%d/ready", created.ID), nil))
	require.Equal(t, http.StatusConflict, rec.Code)
	require.Contains(t, rec.Body.String(), "illegal_transition")

	h.toFinishing(t, created.ID)
	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, fmt.Sprintf("/orders/%d/ready", created.ID), nil))
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	require.Equal(t, 1, h.notifier.count())
}

func TestHandleCreateRejectsBadInput(t *testing.T) {
	h := newHarness(t)
	lot := h.lot(t, "3")
	router := newRouter(h)

	cases := []struct {
		name   string
		body   string
		status int
	}{
		{"missing reservations", fmt.Sprintf(`{"customer_id": %d, "order_type": "Kurta", "cloth_reservations": [], "delivery_date": "2026-12-01", "price": 100, "advance_amount": 0}`, h.customer.ID), http.StatusBadRequest},
		{"bad date", fmt.Sprintf(`{"customer_id": %d, "order_type": "Kurta", "cloth_reservations": [{"stock_lot_id": %d, "meters": 1}], "delivery_date": "01/12/2026", "price": 100, "advance_amount": 0}`, h.customer.ID, lot.ID), http.StatusBadRequest},
		{"unknown field", `{"customer": 1}`, http.StatusBadRequest},
		{"not enough cloth", fmt.Sprintf(`{"customer_id": %d, "order_type": "Kurta", "cloth_reservations": [{"stock_lot_id": %d, "meters": 4}], "delivery_date": "2026-12-01", "price": 100, "advance_amount": 0}`, h.customer.ID, lot.ID), http.StatusConflict},
		{"advance above price", fmt.Sprintf(`{"customer_id": %d, "order_type": "Kurta", "cloth_reservations": [{"stock_lot_id": %d, "meters": 1}], "delivery_date": "2026-12-01", "price": 100, "advance_amount": 150}`, h.customer.ID, lot.ID), http.StatusUnprocessableEntity},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			rec := httptest.NewRecorder()
			router.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/orders", strings.NewReader(tc.body)))
			require.Equal(t, tc.status, rec.Code, rec.Body.String())
		})
	}

	list, err := h.orders.List(t.Context(), orders.ListFilter{})
	require.NoError(t, err)
	require.Empty(t, list)
}
