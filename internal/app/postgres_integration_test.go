//go:build integration

package app

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"github.com/silaibook/silaibook/internal/customers"
	"github.com/silaibook/silaibook/internal/fulfillment"
	"github.com/silaibook/silaibook/internal/inventory"
	"github.com/silaibook/silaibook/internal/orders"
	"github.com/silaibook/silaibook/internal/shared"
)

// Run with: SILAIBOOK_TEST_PG_DSN=postgres://... go test -tags integration ./internal/app/
const testDSNEnv = "SILAIBOOK_TEST_PG_DSN"

func pgServices(t *testing.T) *Services {
	t.Helper()
	dsn := os.Getenv(testDSNEnv)
	if dsn == "" {
		t.Skipf("%s not set", testDSNEnv)
	}
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	cfg := &Config{StoreDriver: StorePostgres, PGDSN: dsn, PGMigrate: true, PhoneRegion: "IN", LowStockThreshold: inventory.DefaultLowStockThreshold}
	backend, closeFn, err := OpenBackend(ctx, cfg, logger)
	require.NoError(t, err)
	t.Cleanup(closeFn)
	return NewServices(ServiceDeps{Backend: backend, Config: cfg, Logger: logger})
}

func pgLot(t *testing.T, svc *Services, dealer, meters string) inventory.StockLot {
	t.Helper()
	lot, err := svc.Inventory.ReceiveStock(context.Background(), inventory.ReceiveInput{
		DealerName:    dealer,
		Category:      "Cotton",
		TotalMeters:   decimal.RequireFromString(meters),
		PricePerMeter: decimal.NewFromInt(90),
	})
	require.NoError(t, err)
	return lot
}

func TestPostgresConcurrentConsumeForLastMeters(t *testing.T) {
	svc := pgServices(t)
	ctx := context.Background()
	lot := pgLot(t, svc, "Bhiwandi Looms "+uuid.NewString()[:8], "40")

	var (
		wg        sync.WaitGroup
		mu        sync.Mutex
		successes int
		shortages int
	)
	for i := 0; i < 4; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := svc.Inventory.Consume(ctx, inventory.ConsumeInput{StockLotID: lot.ID, Meters: decimal.NewFromInt(30)})
			mu.Lock()
			defer mu.Unlock()
			switch {
			case err == nil:
				successes++
			case errors.Is(err, shared.ErrInsufficientStock):
				shortages++
			default:
				t.Errorf("unexpected error: %v", err)
			}
		}()
	}
	wg.Wait()

	require.Equal(t, 1, successes)
	require.Equal(t, 3, shortages)
	got, err := svc.Inventory.GetLot(ctx, lot.ID)
	require.NoError(t, err)
	require.True(t, got.Remaining().Equal(decimal.NewFromInt(10)))
}

func TestPostgresConfirmReadyDeductsOnce(t *testing.T) {
	svc := pgServices(t)
	ctx := shared.ContextWithActor(context.Background(), "integration")
	lot := pgLot(t, svc, "Erode Handlooms "+uuid.NewString()[:8], "12")

	customer, err := svc.Customers.Create(ctx, customers.CreateCustomerRequest{
		Name:   "Lakshmi Rao",
		Mobile: fmt.Sprintf("98%08d", time.Now().UnixNano()%100_000_000),
	})
	require.NoError(t, err)

	newOrder := func() orders.Order {
		order, err := svc.Orchestrator.CreateOrder(ctx, fulfillment.CreateOrderInput{
			CustomerID:    customer.ID,
			OrderType:     "Salwar suit",
			Reservations:  []orders.Reservation{{StockLotID: lot.ID, Meters: decimal.NewFromInt(12)}},
			DeliveryDate:  time.Now().AddDate(0, 0, 10),
			Price:         decimal.NewFromInt(3000),
			AdvanceAmount: decimal.NewFromInt(500),
		})
		require.NoError(t, err)
		_, err = svc.Orders.AdvanceStatus(ctx, order.ID, orders.StatusFinishing)
		require.NoError(t, err)
		return order
	}
	first, second := newOrder(), newOrder()

	var wg sync.WaitGroup
	errs := make([]error, 4)
	for i := range errs {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, errs[i] = svc.Orchestrator.ConfirmReady(ctx, first.ID)
		}()
	}
	wg.Wait()
	for _, err := range errs {
		require.NoError(t, err)
	}

	usage, err := svc.Inventory.UsageHistory(ctx, inventory.UsageFilter{StockLotID: lot.ID})
	require.NoError(t, err)
	require.Len(t, usage, 1)
	require.Equal(t, first.ID, *usage[0].OrderID)
	got, err := svc.Inventory.GetLot(ctx, lot.ID)
	require.NoError(t, err)
	require.True(t, got.Remaining().IsZero())

	_, err = svc.Orchestrator.ConfirmReady(ctx, second.ID)
	require.ErrorIs(t, err, shared.ErrInsufficientStock)
	stuck, err := svc.Orders.Get(ctx, second.ID)
	require.NoError(t, err)
	require.Equal(t, orders.StatusFinishing, stuck.Status)
	require.False(t, stuck.Consumed)
}

func TestPostgresDealerSearchIsLiteral(t *testing.T) {
	svc := pgServices(t)
	ctx := context.Background()
	tag := uuid.NewString()[:8]
	pgLot(t, svc, "100% Linen "+tag, "5")
	pgLot(t, svc, "100X Linen "+tag, "5")

	lots, err := svc.Inventory.ListLots(ctx, inventory.LotFilter{DealerName: "100% Linen " + tag})
	require.NoError(t, err)
	require.Len(t, lots, 1)

	lots, err = svc.Inventory.ListLots(ctx, inventory.LotFilter{DealerName: "100_ Linen " + tag})
	require.NoError(t, err)
	require.Empty(t, lots)
}
