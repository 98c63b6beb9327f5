package jobs

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/hibiken/asynq"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"github.com/silaibook/silaibook/internal/customers"
	"github.com/silaibook/silaibook/internal/inventory"
	jobmetrics "github.com/silaibook/silaibook/internal/jobs"
	"github.com/silaibook/silaibook/internal/notify"
	"github.com/silaibook/silaibook/internal/payments"
	"github.com/silaibook/silaibook/internal/shared"
	"github.com/silaibook/silaibook/internal/store/memory"
)

func slogDiscard() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func gathered(t *testing.T, reg *prometheus.Registry, name string) float64 {
	t.Helper()
	families, err := reg.Gather()
	require.NoError(t, err)
	for _, mf := range families {
		if mf.GetName() != name {
			continue
		}
		m := mf.GetMetric()[0]
		if c := m.GetCounter(); c != nil {
			return c.GetValue()
		}
		return m.GetGauge().GetValue()
	}
	t.Fatalf("metric %s not gathered", name)
	return 0
}

type queuedReminder struct {
	payload notify.ReminderPayload
	day     time.Time
}

type fakeQueue struct {
	items []queuedReminder
	fail  int64
}

func (q *fakeQueue) EnqueueReminder(_ context.Context, p notify.ReminderPayload, day time.Time) error {
	if p.CustomerID == q.fail {
		return errors.New("redis unavailable")
	}
	q.items = append(q.items, queuedReminder{payload: p, day: day})
	return nil
}

func seedBalances(t *testing.T, store *memory.Store) (*customers.Service, *payments.Service, []*customers.Customer) {
	t.Helper()
	ctx := context.Background()
	cs := customers.NewService(store.Customers(), "IN")
	ps := payments.NewService(store.Payments(), shared.NewKeyedMutex(), store, nil)
	var list []*customers.Customer
	for _, req := range []customers.CreateCustomerRequest{
		{Name: "Anita", Mobile: "9811111111"},
		{Name: "Arjun", Mobile: "9822222222"},
		{Name: "Kavya", Mobile: "9833333333"},
	} {
		c, err := cs.Create(ctx, req)
		require.NoError(t, err)
		list = append(list, c)
	}
	due := time.Date(2026, 10, 1, 0, 0, 0, 0, time.UTC)
	_, _, err := ps.RecordPayment(ctx, payments.PaymentInput{CustomerID: list[0].ID, TotalBill: decimal.NewFromInt(1000), PaidAmount: decimal.NewFromInt(400), DueDate: &due})
	require.NoError(t, err)
	_, _, err = ps.RecordPayment(ctx, payments.PaymentInput{CustomerID: list[1].ID, TotalBill: decimal.NewFromInt(500), PaidAmount: decimal.NewFromInt(500)})
	require.NoError(t, err)
	_, _, err = ps.RecordPayment(ctx, payments.PaymentInput{CustomerID: list[2].ID, TotalBill: decimal.NewFromInt(300), PaidAmount: decimal.NewFromInt(100)})
	require.NoError(t, err)
	return cs, ps, list
}

func TestReminderScanQueuesOpenBalances(t *testing.T) {
	store := memory.New()
	cs, ps, list := seedBalances(t, store)
	reg := prometheus.NewRegistry()
	metrics := jobmetrics.NewMetrics(reg)
	queue := &fakeQueue{}
	job := NewReminderScanJob(ps, cs, queue, nil, metrics)
	fixed := time.Date(2026, 10, 18, 9, 0, 0, 0, time.UTC)
	job.clock = func() time.Time { return fixed }

	task, err := NewReminderScanTask()
	require.NoError(t, err)
	require.NoError(t, job.Handle(context.Background(), task))

	require.Len(t, queue.items, 2)
	byCustomer := map[int64]notify.ReminderPayload{}
	for _, item := range queue.items {
		require.Equal(t, fixed, item.day)
		byCustomer[item.payload.CustomerID] = item.payload
	}
	require.True(t, byCustomer[list[0].ID].RemainingAmount.Equal(decimal.NewFromInt(600)))
	require.Equal(t, "+919811111111", byCustomer[list[0].ID].CustomerContact)
	require.Equal(t, "Kavya", byCustomer[list[2].ID].CustomerName)
	require.True(t, byCustomer[list[0].ID].Overdue)
	require.False(t, byCustomer[list[2].ID].Overdue)
	require.Equal(t, 2.0, gathered(t, reg, "silaibook_payment_reminders_queued_total"))
}

func TestReminderScanReportsEnqueueFailures(t *testing.T) {
	store := memory.New()
	cs, ps, list := seedBalances(t, store)
	queue := &fakeQueue{fail: list[0].ID}
	job := NewReminderScanJob(ps, cs, queue, nil, nil)

	err := job.Handle(context.Background(), asynq.NewTask(TaskPaymentsReminderScan, nil))
	require.ErrorContains(t, err, "redis unavailable")
	require.Len(t, queue.items, 1)
	require.Equal(t, list[2].ID, queue.items[0].payload.CustomerID)

	require.Error(t, (&ReminderScanJob{}).Handle(context.Background(), nil))
}

func TestLowStockScan(t *testing.T) {
	store := memory.New()
	inv := inventory.NewService(store.Inventory(), store, inventory.ServiceConfig{LowStockThreshold: decimal.NewFromInt(5)})
	ctx := context.Background()
	for _, meters := range []int64{4, 20, 5} {
		_, err := inv.ReceiveStock(ctx, inventory.ReceiveInput{DealerName: "Bombay Dyeing", Category: "Cotton", TotalMeters: decimal.NewFromInt(meters), PricePerMeter: decimal.NewFromInt(120)})
		require.NoError(t, err)
	}
	reg := prometheus.NewRegistry()
	metrics := jobmetrics.NewMetrics(reg)
	job := NewLowStockScanJob(inv, nil, metrics)

	task, err := NewLowStockScanTask()
	require.NoError(t, err)
	require.NoError(t, job.Handle(ctx, task))
	require.Equal(t, 2.0, gathered(t, reg, "silaibook_low_stock_lots"))
}

type fakePruner struct {
	retention time.Duration
	err       error
}

func (f *fakePruner) Cleanup(_ context.Context, olderThan time.Duration) error {
	f.retention = olderThan
	return f.err
}

func TestIdempotencyCleanup(t *testing.T) {
	reg := prometheus.NewRegistry()
	pruner := &fakePruner{}
	job := NewIdempotencyCleanupJob(pruner, 0, slogDiscard(), jobmetrics.NewMetrics(reg))

	task, err := NewIdempotencyCleanupTask()
	require.NoError(t, err)
	require.Equal(t, TaskIdempotencyCleanup, task.Type())
	require.NoError(t, job.Handle(context.Background(), task))
	require.Equal(t, 72*time.Hour, pruner.retention)
	require.Equal(t, 1.0, gathered(t, reg, "silaibook_jobs_total"))

	pruner.err = errors.New("pool closed")
	require.ErrorContains(t, job.Handle(context.Background(), task), "pool closed")
	require.Error(t, (&IdempotencyCleanupJob{}).Handle(context.Background(), task))
}

type fakeInspector struct {
	info map[string]*asynq.QueueInfo
	err  error
}

func (f fakeInspector) GetQueueInfo(queue string) (*asynq.QueueInfo, error) {
	if f.err != nil {
		return nil, f.err
	}
	info, ok := f.info[queue]
	if !ok {
		return nil, asynq.ErrQueueNotFound
	}
	return info, nil
}

func TestHealthEndpoint(t *testing.T) {
	serve := func(h *Handler) *httptest.ResponseRecorder {
		r := chi.NewRouter()
		h.MountRoutes(r)
		rec := httptest.NewRecorder()
		r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health", nil))
		return rec
	}

	rec := serve(NewHandler(fakeInspector{info: map[string]*asynq.QueueInfo{
		notify.QueueNotifications: {Queue: notify.QueueNotifications, Pending: 3, Retry: 1},
	}}, nil))
	require.Equal(t, http.StatusOK, rec.Code)
	var out []queueHealth
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out))
	require.Equal(t, []queueHealth{
		{Queue: QueueDefault},
		{Queue: notify.QueueNotifications, Pending: 3, Retry: 1},
	}, out)

	rec = serve(NewHandler(fakeInspector{err: errors.New("redis down")}, slogDiscard()))
	require.Equal(t, http.StatusServiceUnavailable, rec.Code)
}
