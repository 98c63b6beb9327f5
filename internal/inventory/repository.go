package inventory

import (
	"context"
	"errors"
	"fmt"
	"iter"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"

	"github.com/silaibook/silaibook/internal/platform/db"
)

// TxRepository exposes transactional operations used by the service.
type TxRepository interface {
	GetLot(ctx context.Context, id int64) (StockLot, error)
	InsertLot(ctx context.Context, lot StockLot) (StockLot, error)
	UpdateLotDetails(ctx context.Context, id int64, upd LotDetailsUpdate) (StockLot, error)
	// ConsumeLot adds meters to used_meters only if the lot still covers them.
	ConsumeLot(ctx context.Context, id int64, meters decimal.Decimal) (StockLot, error)
	InsertUsage(ctx context.Context, rec UsageRecord) (UsageRecord, error)
	SoftDeleteLot(ctx context.Context, id int64, at time.Time) error
	HasOpenReservation(ctx context.Context, lotID int64) (bool, error)
}

type dbtx interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// Repository persists inventory data in PostgreSQL.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs Repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

type txRepo struct {
	db dbtx
}

// NewTxRepository binds the transactional operations to an open transaction.
func NewTxRepository(tx pgx.Tx) TxRepository {
	return &txRepo{db: tx}
}

// WithTx executes the callback inside a read-committed transaction.
func (r *Repository) WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error {
	return db.WithLedgerTx(ctx, r.pool, func(tx pgx.Tx) error {
		return fn(ctx, NewTxRepository(tx))
	})
}

const lotColumns = `id, dealer_name, category, total_meters, used_meters, price_per_meter, received_at, created_by, deleted_at`

func scanLot(row pgx.Row) (StockLot, error) {
	var lot StockLot
	err := row.Scan(&lot.ID, &lot.DealerName, &lot.Category, &lot.TotalMeters, &lot.UsedMeters, &lot.PricePerMeter, &lot.ReceivedAt, &lot.CreatedBy, &lot.DeletedAt)
	return lot, err
}

func lotQuery(filter LotFilter) (string, []any) {
	var where []string
	var args []any
	add := func(clause string, value any) {
		args = append(args, value)
		where = append(where, fmt.Sprintf(clause, len(args)))
	}
	if !filter.IncludeDeleted {
		where = append(where, "deleted_at IS NULL")
	}
	if filter.DealerName != "" {
		add(`dealer_name ILIKE $%d ESCAPE '\'`, db.ContainsPattern(filter.DealerName))
	}
	if filter.Category != "" {
		add("category = $%d", filter.Category)
	}
	if filter.MaxRemaining != nil {
		add("total_meters - used_meters <= $%d", *filter.MaxRemaining)
	}
	sql := "SELECT " + lotColumns + " FROM stock_lots"
	if len(where) > 0 {
		sql += " WHERE " + strings.Join(where, " AND ")
	}
	if filter.MaxRemaining != nil {
		sql += " ORDER BY total_meters - used_meters ASC, id ASC"
	} else {
		sql += " ORDER BY received_at DESC, id DESC"
	}
	if filter.Limit > 0 {
		args = append(args, filter.Limit)
		sql += fmt.Sprintf(" LIMIT $%d", len(args))
	}
	return sql, args
}

// StreamLots yields lots row by row without buffering the result set.
func (r *Repository) StreamLots(ctx context.Context, filter LotFilter) iter.Seq2[StockLot, error] {
	return func(yield func(StockLot, error) bool) {
		sql, args := lotQuery(filter)
		rows, err := r.pool.Query(ctx, sql, args...)
		if err != nil {
			yield(StockLot{}, err)
			return
		}
		defer rows.Close()
		for rows.Next() {
			lot, err := scanLot(rows)
			if !yield(lot, err) || err != nil {
				return
			}
		}
		if err := rows.Err(); err != nil {
			yield(StockLot{}, err)
		}
	}
}

// ListLots buffers StreamLots.
func (r *Repository) ListLots(ctx context.Context, filter LotFilter) ([]StockLot, error) {
	var lots []StockLot
	for lot, err := range r.StreamLots(ctx, filter) {
		if err != nil {
			return nil, err
		}
		lots = append(lots, lot)
	}
	return lots, nil
}

// GetLot loads a lot outside of a transaction.
func (r *Repository) GetLot(ctx context.Context, id int64) (StockLot, error) {
	return (&txRepo{db: r.pool}).GetLot(ctx, id)
}

// Aggregate totals live lots per dealer or category.
func (r *Repository) Aggregate(ctx context.Context, by GroupBy) ([]Aggregate, error) {
	column := "category"
	if by == GroupByDealer {
		column = "dealer_name"
	}
	rows, err := r.pool.Query(ctx, `SELECT `+column+`, COUNT(*), SUM(total_meters), SUM(used_meters),
       SUM(total_meters - used_meters), SUM((total_meters - used_meters) * price_per_meter)
FROM stock_lots WHERE deleted_at IS NULL GROUP BY `+column+` ORDER BY `+column)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []Aggregate
	for rows.Next() {
		var a Aggregate
		if err := rows.Scan(&a.Key, &a.Lots, &a.TotalMeters, &a.UsedMeters, &a.RemainingMeters, &a.StockValue); err != nil {
			return nil, err
		}
		a.StockValue = a.StockValue.Round(2)
		out = append(out, a)
	}
	return out, rows.Err()
}

// ListUsage returns usage history newest first.
func (r *Repository) ListUsage(ctx context.Context, filter UsageFilter) ([]UsageRecord, error) {
	var where []string
	var args []any
	if filter.StockLotID != 0 {
		args = append(args, filter.StockLotID)
		where = append(where, fmt.Sprintf("stock_lot_id = $%d", len(args)))
	}
	if filter.OrderID != 0 {
		args = append(args, filter.OrderID)
		where = append(where, fmt.Sprintf("order_id = $%d", len(args)))
	}
	sql := `SELECT id, stock_lot_id, order_id, meters_used, remaining_meters, actor, used_at FROM stock_usage`
	if len(where) > 0 {
		sql += " WHERE " + strings.Join(where, " AND ")
	}
	sql += " ORDER BY used_at DESC, id DESC"
	limit := filter.Limit
	if limit <= 0 {
		limit = 200
	}
	args = append(args, limit)
	sql += fmt.Sprintf(" LIMIT $%d", len(args))

	rows, err := r.pool.Query(ctx, sql, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []UsageRecord
	for rows.Next() {
		var u UsageRecord
		if err := rows.Scan(&u.ID, &u.StockLotID, &u.OrderID, &u.MetersUsed, &u.RemainingMeters, &u.Actor, &u.UsedAt); err != nil {
			return nil, err
		}
		out = append(out, u)
	}
	return out, rows.Err()
}

func (r *txRepo) GetLot(ctx context.Context, id int64) (StockLot, error) {
	lot, err := scanLot(r.db.QueryRow(ctx, `SELECT `+lotColumns+` FROM stock_lots WHERE id = $1 AND deleted_at IS NULL`, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return StockLot{}, ErrLotNotFound
	}
	return lot, err
}

func (r *txRepo) InsertLot(ctx context.Context, lot StockLot) (StockLot, error) {
	return scanLot(r.db.QueryRow(ctx, `INSERT INTO stock_lots (dealer_name, category, total_meters, used_meters, price_per_meter, received_at, created_by)
VALUES ($1, $2, $3, 0, $4, $5, $6) RETURNING `+lotColumns,
		lot.DealerName, lot.Category, lot.TotalMeters, lot.PricePerMeter, lot.ReceivedAt, lot.CreatedBy))
}

func (r *txRepo) UpdateLotDetails(ctx context.Context, id int64, upd LotDetailsUpdate) (StockLot, error) {
	var price any
	if upd.PricePerMeter != nil {
		price = *upd.PricePerMeter
	}
	lot, err := scanLot(r.db.QueryRow(ctx, `UPDATE stock_lots SET
    dealer_name = COALESCE($2, dealer_name),
    category = COALESCE($3, category),
    price_per_meter = COALESCE($4::numeric, price_per_meter)
WHERE id = $1 AND deleted_at IS NULL RETURNING `+lotColumns, id, upd.DealerName, upd.Category, price))
	if errors.Is(err, pgx.ErrNoRows) {
		return StockLot{}, ErrLotNotFound
	}
	return lot, err
}

func (r *txRepo) ConsumeLot(ctx context.Context, id int64, meters decimal.Decimal) (StockLot, error) {
	lot, err := scanLot(r.db.QueryRow(ctx, `UPDATE stock_lots SET used_meters = used_meters + $2
WHERE id = $1 AND deleted_at IS NULL AND total_meters - used_meters >= $2
RETURNING `+lotColumns, id, meters))
	if err == nil {
		return lot, nil
	}
	if !errors.Is(err, pgx.ErrNoRows) {
		return StockLot{}, err
	}
	current, err := r.GetLot(ctx, id)
	if err != nil {
		return StockLot{}, err
	}
	return StockLot{}, &InsufficientStockError{StockLotID: id, Requested: meters, Available: current.Remaining()}
}

func (r *txRepo) InsertUsage(ctx context.Context, rec UsageRecord) (UsageRecord, error) {
	err := r.db.QueryRow(ctx, `INSERT INTO stock_usage (stock_lot_id, order_id, meters_used, remaining_meters, actor, used_at)
VALUES ($1, $2, $3, $4, $5, $6) RETURNING id`,
		rec.StockLotID, rec.OrderID, rec.MetersUsed, rec.RemainingMeters, rec.Actor, rec.UsedAt).Scan(&rec.ID)
	return rec, err
}

func (r *txRepo) SoftDeleteLot(ctx context.Context, id int64, at time.Time) error {
	tag, err := r.db.Exec(ctx, `UPDATE stock_lots SET deleted_at = $2 WHERE id = $1 AND deleted_at IS NULL`, id, at)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrLotNotFound
	}
	return nil
}

func (r *txRepo) HasOpenReservation(ctx context.Context, lotID int64) (bool, error) {
	var reserved bool
	err := r.db.QueryRow(ctx, `SELECT EXISTS (
    SELECT 1 FROM order_reservations res
    JOIN orders o ON o.id = res.order_id
    WHERE res.stock_lot_id = $1 AND o.consumed = FALSE)`, lotID).Scan(&reserved)
	return reserved, err
}
