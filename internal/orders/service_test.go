package orders_test

import (
	"context"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"github.com/silaibook/silaibook/internal/orders"
	"github.com/silaibook/silaibook/internal/shared"
	"github.com/silaibook/silaibook/internal/store/memory"
)

func newOrder(t *testing.T, store *memory.Store, svc *orders.Service) orders.Order {
	t.Helper()
	ctx := shared.ContextWithActor(context.Background(), "counter-1")
	var order orders.Order
	err := store.Orders().WithTx(ctx, func(ctx context.Context, tx orders.TxRepository) error {
		var err error
		order, err = svc.CreateWithin(ctx, tx, orders.NewOrder{
			CustomerID:   1,
			OrderType:    "Sherwani",
			DeliveryDate: time.Now().AddDate(0, 0, 10),
			Price:        decimal.NewFromInt(4500),
			Reservations: []orders.Reservation{{StockLotID: 1, Meters: decimal.NewFromInt(4)}},
		})
		return err
	})
	require.NoError(t, err)
	return order
}

func TestCreateStartsReceived(t *testing.T) {
	store := memory.New()
	svc := orders.NewService(store.Orders(), store, nil)
	order := newOrder(t, store, svc)

	require.Equal(t, orders.StatusReceived, order.Status)
	require.Equal(t, orders.PriorityNormal, order.Priority)
	require.False(t, order.Consumed)
	require.Regexp(t, `^ORD-\d{4}-0001$`, order.OrderNumber)
	require.Len(t, order.History, 1)
	require.Equal(t, "counter-1", order.History[0].ChangedBy)

	second := newOrder(t, store, svc)
	require.NotEqual(t, order.OrderNumber, second.OrderNumber)
}

func TestReadyOnlyThroughConfirmation(t *testing.T) {
	store := memory.New()
	svc := orders.NewService(store.Orders(), store, nil)
	ctx := context.Background()
	order := newOrder(t, store, svc)

	_, err := svc.AdvanceStatus(ctx, order.ID, orders.StatusReady)
	require.ErrorIs(t, err, shared.ErrIllegalTransition)
	_, err = svc.AdvanceStatus(ctx, order.ID, orders.StatusDelivered)
	require.ErrorIs(t, err, shared.ErrIllegalTransition)

	got, err := svc.Get(ctx, order.ID)
	require.NoError(t, err)
	require.Equal(t, orders.StatusReceived, got.Status)
}

func TestAdvanceForwardOnly(t *testing.T) {
	store := memory.New()
	svc := orders.NewService(store.Orders(), store, nil)
	ctx := context.Background()
	order := newOrder(t, store, svc)

	got, err := svc.AdvanceStatus(ctx, order.ID, orders.StatusStitching)
	require.NoError(t, err)
	require.Equal(t, orders.StatusStitching, got.Status)
	require.Len(t, got.History, 2)

	_, err = svc.AdvanceStatus(ctx, order.ID, orders.StatusCutting)
	require.ErrorIs(t, err, shared.ErrIllegalTransition)
	_, err = svc.AdvanceStatus(ctx, order.ID, orders.StatusStitching)
	require.ErrorIs(t, err, shared.ErrIllegalTransition)
	_, err = svc.AdvanceStatus(ctx, 999, orders.StatusCutting)
	require.ErrorIs(t, err, shared.ErrNotFound)

	require.Len(t, store.AuditTrail("order.status_changed"), 1)
}

func TestDeliverRequiresReady(t *testing.T) {
	store := memory.New()
	svc := orders.NewService(store.Orders(), store, nil)
	ctx := context.Background()
	order := newOrder(t, store, svc)

	_, err := svc.Deliver(ctx, order.ID)
	require.ErrorIs(t, err, shared.ErrIllegalTransition)

	_, err = svc.AdvanceStatus(ctx, order.ID, orders.StatusFinishing)
	require.NoError(t, err)
	err = store.Orders().WithTx(ctx, func(ctx context.Context, tx orders.TxRepository) error {
		_, done, err := svc.BeginReadyWithin(ctx, tx, order.ID)
		require.False(t, done)
		if err != nil {
			return err
		}
		_, err = svc.CompleteReadyWithin(ctx, tx, order.ID)
		return err
	})
	require.NoError(t, err)

	delivered, err := svc.Deliver(ctx, order.ID)
	require.NoError(t, err)
	require.Equal(t, orders.StatusDelivered, delivered.Status)
	require.NotNil(t, delivered.DeliveredAt)
	require.True(t, delivered.Consumed)

	_, err = svc.Deliver(ctx, order.ID)
	require.ErrorIs(t, err, shared.ErrIllegalTransition)
	_, err = svc.AdvanceStatus(ctx, order.ID, orders.StatusFinishing)
	require.ErrorIs(t, err, shared.ErrIllegalTransition)
}

func TestNewOrderValidation(t *testing.T) {
	base := func() orders.NewOrder {
		return orders.NewOrder{
			CustomerID:    1,
			OrderType:     "Blouse",
			DeliveryDate:  time.Now(),
			Price:         decimal.NewFromInt(800),
			AdvanceAmount: decimal.NewFromInt(200),
			Reservations:  []orders.Reservation{{StockLotID: 1, Meters: decimal.NewFromInt(1)}},
		}
	}
	n := base()
	require.NoError(t, n.Validate())

	n = base()
	n.Reservations = nil
	require.ErrorIs(t, n.Validate(), shared.ErrValidation)

	n = base()
	n.AdvanceAmount = decimal.NewFromInt(801)
	require.ErrorIs(t, n.Validate(), shared.ErrOverpaymentRejected)

	n = base()
	n.Priority = "Whenever"
	require.ErrorIs(t, n.Validate(), shared.ErrValidation)

	n = base()
	n.Reservations[0].Meters = decimal.Zero
	require.ErrorIs(t, n.Validate(), shared.ErrValidation)
}
