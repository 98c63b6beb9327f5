package memory

import (
	"cmp"
	"context"
	"iter"
	"slices"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/silaibook/silaibook/internal/inventory"
)

type inventoryRepo struct{ s *Store }

type inventoryTx struct{ s *Store }

// Inventory returns the inventory ledger repository.
func (s *Store) Inventory() inventory.RepositoryPort {
	return &inventoryRepo{s: s}
}

func (r *inventoryRepo) WithTx(ctx context.Context, fn func(context.Context, inventory.TxRepository) error) error {
	return r.s.atomically(func() error {
		return fn(ctx, &inventoryTx{s: r.s})
	})
}

func (r *inventoryRepo) GetLot(ctx context.Context, id int64) (inventory.StockLot, error) {
	var lot inventory.StockLot
	err := r.s.atomically(func() error {
		var err error
		lot, err = (&inventoryTx{s: r.s}).GetLot(ctx, id)
		return err
	})
	return lot, err
}

func (r *inventoryRepo) matchingLots(filter inventory.LotFilter) []inventory.StockLot {
	var out []inventory.StockLot
	r.s.read(func() {
		for _, lot := range r.s.data.lots {
			if lot.Deleted() && !filter.IncludeDeleted {
				continue
			}
			if filter.DealerName != "" && !strings.Contains(strings.ToLower(lot.DealerName), strings.ToLower(filter.DealerName)) {
				continue
			}
			if filter.Category != "" && lot.Category != filter.Category {
				continue
			}
			if filter.MaxRemaining != nil && lot.Remaining().GreaterThan(*filter.MaxRemaining) {
				continue
			}
			out = append(out, lot)
		}
	})
	if filter.MaxRemaining != nil {
		slices.SortFunc(out, func(a, b inventory.StockLot) int {
			if c := a.Remaining().Cmp(b.Remaining()); c != 0 {
				return c
			}
			return cmp.Compare(a.ID, b.ID)
		})
	} else {
		slices.SortFunc(out, func(a, b inventory.StockLot) int {
			if c := b.ReceivedAt.Compare(a.ReceivedAt); c != 0 {
				return c
			}
			return cmp.Compare(b.ID, a.ID)
		})
	}
	if filter.Limit > 0 && len(out) > filter.Limit {
		out = out[:filter.Limit]
	}
	return out
}

func (r *inventoryRepo) StreamLots(_ context.Context, filter inventory.LotFilter) iter.Seq2[inventory.StockLot, error] {
	return func(yield func(inventory.StockLot, error) bool) {
		for _, lot := range r.matchingLots(filter) {
			if !yield(lot, nil) {
				return
			}
		}
	}
}

func (r *inventoryRepo) ListLots(_ context.Context, filter inventory.LotFilter) ([]inventory.StockLot, error) {
	return r.matchingLots(filter), nil
}

func (r *inventoryRepo) Aggregate(_ context.Context, by inventory.GroupBy) ([]inventory.Aggregate, error) {
	groups := map[string]*inventory.Aggregate{}
	for _, lot := range r.matchingLots(inventory.LotFilter{}) {
		key := lot.Category
		if by == inventory.GroupByDealer {
			key = lot.DealerName
		}
		agg, ok := groups[key]
		if !ok {
			agg = &inventory.Aggregate{Key: key}
			groups[key] = agg
		}
		agg.Lots++
		agg.TotalMeters = agg.TotalMeters.Add(lot.TotalMeters)
		agg.UsedMeters = agg.UsedMeters.Add(lot.UsedMeters)
		agg.RemainingMeters = agg.RemainingMeters.Add(lot.Remaining())
		agg.StockValue = agg.StockValue.Add(lot.Remaining().Mul(lot.PricePerMeter)).Round(2)
	}
	out := make([]inventory.Aggregate, 0, len(groups))
	for _, agg := range groups {
		out = append(out, *agg)
	}
	slices.SortFunc(out, func(a, b inventory.Aggregate) int { return strings.Compare(a.Key, b.Key) })
	return out, nil
}

func (r *inventoryRepo) ListUsage(_ context.Context, filter inventory.UsageFilter) ([]inventory.UsageRecord, error) {
	var out []inventory.UsageRecord
	r.s.read(func() {
		for i := len(r.s.data.usage) - 1; i >= 0; i-- {
			u := r.s.data.usage[i]
			if filter.StockLotID != 0 && u.StockLotID != filter.StockLotID {
				continue
			}
			if filter.OrderID != 0 && (u.OrderID == nil || *u.OrderID != filter.OrderID) {
				continue
			}
			out = append(out, u)
			if filter.Limit > 0 && len(out) == filter.Limit {
				break
			}
		}
	})
	return out, nil
}

func (t *inventoryTx) GetLot(_ context.Context, id int64) (inventory.StockLot, error) {
	lot, ok := t.s.data.lots[id]
	if !ok || lot.Deleted() {
		return inventory.StockLot{}, inventory.ErrLotNotFound
	}
	return lot, nil
}

func (t *inventoryTx) InsertLot(_ context.Context, lot inventory.StockLot) (inventory.StockLot, error) {
	t.s.data.seq.lot++
	lot.ID = t.s.data.seq.lot
	lot.UsedMeters = decimal.Zero
	lot.DeletedAt = nil
	t.s.data.lots[lot.ID] = lot
	return lot, nil
}

func (t *inventoryTx) UpdateLotDetails(ctx context.Context, id int64, upd inventory.LotDetailsUpdate) (inventory.StockLot, error) {
	lot, err := t.GetLot(ctx, id)
	if err != nil {
		return inventory.StockLot{}, err
	}
	if upd.DealerName != nil {
		lot.DealerName = *upd.DealerName
	}
	if upd.Category != nil {
		lot.Category = *upd.Category
	}
	if upd.PricePerMeter != nil {
		lot.PricePerMeter = *upd.PricePerMeter
	}
	t.s.data.lots[id] = lot
	return lot, nil
}

func (t *inventoryTx) ConsumeLot(ctx context.Context, id int64, meters decimal.Decimal) (inventory.StockLot, error) {
	lot, err := t.GetLot(ctx, id)
	if err != nil {
		return inventory.StockLot{}, err
	}
	if lot.Remaining().LessThan(meters) {
		return inventory.StockLot{}, &inventory.InsufficientStockError{StockLotID: id, Requested: meters, Available: lot.Remaining()}
	}
	lot.UsedMeters = lot.UsedMeters.Add(meters)
	t.s.data.lots[id] = lot
	return lot, nil
}

func (t *inventoryTx) InsertUsage(_ context.Context, rec inventory.UsageRecord) (inventory.UsageRecord, error) {
	t.s.data.seq.usage++
	rec.ID = t.s.data.seq.usage
	t.s.data.usage = append(t.s.data.usage, rec)
	return rec, nil
}

func (t *inventoryTx) SoftDeleteLot(ctx context.Context, id int64, at time.Time) error {
	lot, err := t.GetLot(ctx, id)
	if err != nil {
		return err
	}
	lot.DeletedAt = &at
	t.s.data.lots[id] = lot
	return nil
}

func (t *inventoryTx) HasOpenReservation(_ context.Context, lotID int64) (bool, error) {
	for _, o := range t.s.data.orders {
		if o.Consumed {
			continue
		}
		for _, res := range o.Reservations {
			if res.StockLotID == lotID {
				return true, nil
			}
		}
	}
	return false, nil
}
