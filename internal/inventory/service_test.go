package inventory_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"github.com/silaibook/silaibook/internal/inventory"
	"github.com/silaibook/silaibook/internal/orders"
	"github.com/silaibook/silaibook/internal/shared"
	"github.com/silaibook/silaibook/internal/store/memory"
)

func d(s string) decimal.Decimal { return decimal.RequireFromString(s) }

func newService(t *testing.T) (*inventory.Service, *memory.Store) {
	t.Helper()
	store := memory.New()
	return inventory.NewService(store.Inventory(), store, inventory.ServiceConfig{}), store
}

func receive(t *testing.T, svc *inventory.Service, meters string) inventory.StockLot {
	t.Helper()
	lot, err := svc.ReceiveStock(context.Background(), inventory.ReceiveInput{
		DealerName:    "Raymond Mills",
		Category:      "Cotton",
		TotalMeters:   d(meters),
		PricePerMeter: d("120"),
	})
	require.NoError(t, err)
	return lot
}

func TestConsumeExactRemainingLeavesZero(t *testing.T) {
	svc, _ := newService(t)
	ctx := shared.ContextWithActor(context.Background(), "asha")
	lot := receive(t, svc, "25.50")

	usage, err := svc.Consume(ctx, inventory.ConsumeInput{StockLotID: lot.ID, Meters: d("25.50")})
	require.NoError(t, err)
	require.True(t, usage.RemainingMeters.IsZero())
	require.Equal(t, "asha", usage.Actor)

	got, err := svc.GetLot(ctx, lot.ID)
	require.NoError(t, err)
	require.True(t, got.Remaining().IsZero())
	require.True(t, got.UsedMeters.Equal(got.TotalMeters))
}

func TestConsumeBeyondRemainingIsRejectedWithoutMutation(t *testing.T) {
	svc, _ := newService(t)
	ctx := context.Background()
	lot := receive(t, svc, "10")

	_, err := svc.Consume(ctx, inventory.ConsumeInput{StockLotID: lot.ID, Meters: d("11")})
	require.ErrorIs(t, err, shared.ErrInsufficientStock)
	var short *inventory.InsufficientStockError
	require.True(t, errors.As(err, &short))
	require.True(t, short.Available.Equal(d("10")))

	got, err := svc.GetLot(ctx, lot.ID)
	require.NoError(t, err)
	require.True(t, got.UsedMeters.IsZero())

	history, err := svc.UsageHistory(ctx, inventory.UsageFilter{StockLotID: lot.ID})
	require.NoError(t, err)
	require.Empty(t, history)
}

func TestConsumeValidation(t *testing.T) {
	svc, _ := newService(t)
	ctx := context.Background()
	lot := receive(t, svc, "10")

	_, err := svc.Consume(ctx, inventory.ConsumeInput{StockLotID: lot.ID, Meters: decimal.Zero})
	require.ErrorIs(t, err, shared.ErrValidation)
	_, err = svc.Consume(ctx, inventory.ConsumeInput{StockLotID: lot.ID, Meters: d("-1")})
	require.ErrorIs(t, err, shared.ErrValidation)
	_, err = svc.Consume(ctx, inventory.ConsumeInput{StockLotID: lot.ID, Meters: d("1.005")})
	require.ErrorIs(t, err, shared.ErrValidation)
	_, err = svc.Consume(ctx, inventory.ConsumeInput{StockLotID: 999, Meters: d("1")})
	require.ErrorIs(t, err, shared.ErrNotFound)
}

func TestConcurrentConsumeForLastMeters(t *testing.T) {
	svc, _ := newService(t)
	ctx := context.Background()
	lot := receive(t, svc, "40")

	var (
		wg        sync.WaitGroup
		mu        sync.Mutex
		successes int
		shortages int
	)
	for i := 0; i < 2; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := svc.Consume(ctx, inventory.ConsumeInput{StockLotID: lot.ID, Meters: d("30")})
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
	require.Equal(t, 1, shortages)
	got, err := svc.GetLot(ctx, lot.ID)
	require.NoError(t, err)
	require.True(t, got.Remaining().Equal(d("10")))
}

func TestManyConsumersNeverOverdraw(t *testing.T) {
	svc, _ := newService(t)
	ctx := context.Background()
	lot := receive(t, svc, "50")

	var wg sync.WaitGroup
	for i := 0; i < 32; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, _ = svc.Consume(ctx, inventory.ConsumeInput{StockLotID: lot.ID, Meters: d("3")})
		}()
	}
	wg.Wait()

	got, err := svc.GetLot(ctx, lot.ID)
	require.NoError(t, err)
	require.True(t, got.UsedMeters.Equal(d("48")))
	require.False(t, got.Remaining().IsNegative())

	history, err := svc.UsageHistory(ctx, inventory.UsageFilter{StockLotID: lot.ID})
	require.NoError(t, err)
	require.Len(t, history, 16)
}

func TestReserveDoesNotMutate(t *testing.T) {
	svc, _ := newService(t)
	ctx := context.Background()
	lot := receive(t, svc, "20")

	_, err := svc.Reserve(ctx, lot.ID, d("20"))
	require.NoError(t, err)
	_, err = svc.Reserve(ctx, lot.ID, d("20"))
	require.NoError(t, err)
	_, err = svc.Reserve(ctx, lot.ID, d("21"))
	require.ErrorIs(t, err, shared.ErrInsufficientStock)

	got, err := svc.GetLot(ctx, lot.ID)
	require.NoError(t, err)
	require.True(t, got.UsedMeters.IsZero())
}

func TestLowStockReport(t *testing.T) {
	svc, _ := newService(t)
	ctx := context.Background()
	big := receive(t, svc, "100")
	small := receive(t, svc, "8")
	edge := receive(t, svc, "10")

	var ids []int64
	for lot, err := range svc.LowStockReport(ctx, nil) {
		require.NoError(t, err)
		ids = append(ids, lot.ID)
	}
	require.Equal(t, []int64{small.ID, edge.ID}, ids)

	threshold := d("95")
	_, err := svc.Consume(ctx, inventory.ConsumeInput{StockLotID: big.ID, Meters: d("5")})
	require.NoError(t, err)
	ids = ids[:0]
	for lot, err := range svc.LowStockReport(ctx, &threshold) {
		require.NoError(t, err)
		ids = append(ids, lot.ID)
	}
	require.Equal(t, []int64{small.ID, edge.ID, big.ID}, ids)

	// Stopping early must not yield further lots.
	count := 0
	for range svc.LowStockReport(ctx, &threshold) {
		count++
		break
	}
	require.Equal(t, 1, count)
}

func TestLowStockReportConfiguredDefault(t *testing.T) {
	store := memory.New()
	svc := inventory.NewService(store.Inventory(), nil, inventory.ServiceConfig{LowStockThreshold: d("3")})
	lot := receive(t, svc, "5")
	for range svc.LowStockReport(context.Background(), nil) {
		t.Fatalf("lot %d should not be low at threshold 3", lot.ID)
	}
}

func TestDeleteLotBlockedByOpenReservation(t *testing.T) {
	svc, store := newService(t)
	ctx := context.Background()
	lot := receive(t, svc, "30")

	err := store.Orders().WithTx(ctx, func(ctx context.Context, tx orders.TxRepository) error {
		_, err := tx.Insert(ctx, orders.NewOrder{
			CustomerID:   1,
			OrderType:    "Kurta",
			Priority:     orders.PriorityNormal,
			DeliveryDate: time.Now().AddDate(0, 0, 7),
			Price:        d("900"),
			Reservations: []orders.Reservation{{StockLotID: lot.ID, Meters: d("3")}},
		}, "ORD-2026-0001", "asha", time.Now())
		return err
	})
	require.NoError(t, err)

	require.ErrorIs(t, svc.DeleteLot(ctx, lot.ID), inventory.ErrLotReserved)
	require.ErrorIs(t, svc.DeleteLot(ctx, lot.ID), shared.ErrConflict)

	spare := receive(t, svc, "5")
	require.NoError(t, svc.DeleteLot(ctx, spare.ID))
	_, err = svc.GetLot(ctx, spare.ID)
	require.ErrorIs(t, err, shared.ErrNotFound)
	require.Len(t, store.AuditTrail("stock.deleted"), 1)
}

func TestUpdateLotDetailsKeepsQuantities(t *testing.T) {
	svc, _ := newService(t)
	ctx := context.Background()
	lot := receive(t, svc, "30")
	_, err := svc.Consume(ctx, inventory.ConsumeInput{StockLotID: lot.ID, Meters: d("4")})
	require.NoError(t, err)

	dealer := "Arvind"
	price := d("150.456")
	updated, err := svc.UpdateLotDetails(ctx, lot.ID, inventory.LotDetailsUpdate{DealerName: &dealer, PricePerMeter: &price})
	require.NoError(t, err)
	require.Equal(t, "Arvind", updated.DealerName)
	require.True(t, updated.PricePerMeter.Equal(d("150.46")))
	require.True(t, updated.UsedMeters.Equal(d("4")))
	require.True(t, updated.TotalMeters.Equal(d("30")))

	_, err = svc.UpdateLotDetails(ctx, lot.ID, inventory.LotDetailsUpdate{})
	require.ErrorIs(t, err, shared.ErrValidation)
}

func TestAggregateByDealer(t *testing.T) {
	svc, _ := newService(t)
	ctx := context.Background()
	receive(t, svc, "10")
	receive(t, svc, "5")

	aggs, err := svc.Aggregate(ctx, inventory.GroupByDealer)
	require.NoError(t, err)
	require.Len(t, aggs, 1)
	require.Equal(t, 2, aggs[0].Lots)
	require.True(t, aggs[0].RemainingMeters.Equal(d("15")))
	require.True(t, aggs[0].StockValue.Equal(d("1800")))

	_, err = svc.Aggregate(ctx, "colour")
	require.ErrorIs(t, err, shared.ErrValidation)
}

func TestListLotsAppliesLimitAfterOrdering(t *testing.T) {
	svc, _ := newService(t)
	ctx := context.Background()
	var ids []int64
	for range 4 {
		ids = append(ids, receive(t, svc, "10").ID)
	}

	lots, err := svc.ListLots(ctx, inventory.LotFilter{Limit: 2})
	require.NoError(t, err)
	require.Len(t, lots, 2)
	require.Equal(t, ids[3], lots[0].ID)
	require.Equal(t, ids[2], lots[1].ID)

	low := d("10")
	lots, err = svc.ListLots(ctx, inventory.LotFilter{MaxRemaining: &low, Limit: 1})
	require.NoError(t, err)
	require.Len(t, lots, 1)
	require.Equal(t, ids[0], lots[0].ID)
}

func TestListLotsDealerSearchIsLiteral(t *testing.T) {
	svc, _ := newService(t)
	ctx := context.Background()
	receive(t, svc, "10")

	lots, err := svc.ListLots(ctx, inventory.LotFilter{DealerName: "%"})
	require.NoError(t, err)
	require.Empty(t, lots)

	lots, err = svc.ListLots(ctx, inventory.LotFilter{DealerName: "raymond"})
	require.NoError(t, err)
	require.Len(t, lots, 1)
}
