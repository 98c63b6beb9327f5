package orders

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/silaibook/silaibook/internal/platform/db"
)

// TxRepository exposes transactional order operations.
type TxRepository interface {
	NextOrderNumber(ctx context.Context, at time.Time) (string, error)
	Insert(ctx context.Context, order NewOrder, number, actor string, at time.Time) (Order, error)
	GetForUpdate(ctx context.Context, id int64) (Order, error)
	// UpdateStatus moves the order only if it is still in from.
	UpdateStatus(ctx context.Context, id int64, from, to Status, actor string, at time.Time) (Order, error)
	// MarkReady flips consumed and enters Ready only if the order is still an unconsumed Finishing order.
	MarkReady(ctx context.Context, id int64, actor string, at time.Time) (Order, error)
}

type dbtx interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// Repository persists orders in PostgreSQL.
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

// NewTxRepository binds order operations to an open transaction.
func NewTxRepository(tx pgx.Tx) TxRepository {
	return &txRepo{db: tx}
}

// WithTx executes fn inside a read-committed transaction.
func (r *Repository) WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error {
	return db.WithLedgerTx(ctx, r.pool, func(tx pgx.Tx) error {
		return fn(ctx, NewTxRepository(tx))
	})
}

const orderColumns = `id, order_number, customer_id, customer_name, customer_mobile, order_type, status, priority,
measurements, delivery_date, price, advance_amount, consumed, ready_at, delivered_at, created_at, updated_at`

func scanOrder(row pgx.Row) (Order, error) {
	var o Order
	err := row.Scan(&o.ID, &o.OrderNumber, &o.CustomerID, &o.CustomerName, &o.CustomerMobile, &o.OrderType, &o.Status, &o.Priority,
		&o.Measurements, &o.DeliveryDate, &o.Price, &o.AdvanceAmount, &o.Consumed, &o.ReadyAt, &o.DeliveredAt, &o.CreatedAt, &o.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return Order{}, ErrOrderNotFound
	}
	return o, err
}

func loadDetails(ctx context.Context, q dbtx, o *Order) error {
	rows, err := q.Query(ctx, `SELECT stock_lot_id, meters_reserved FROM order_reservations WHERE order_id = $1 ORDER BY line_no`, o.ID)
	if err != nil {
		return err
	}
	o.Reservations = o.Reservations[:0]
	for rows.Next() {
		var res Reservation
		if err := rows.Scan(&res.StockLotID, &res.Meters); err != nil {
			rows.Close()
			return err
		}
		o.Reservations = append(o.Reservations, res)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return err
	}

	rows, err = q.Query(ctx, `SELECT status, changed_by, changed_at FROM order_status_history WHERE order_id = $1 ORDER BY changed_at, id`, o.ID)
	if err != nil {
		return err
	}
	defer rows.Close()
	o.History = nil
	for rows.Next() {
		var ch StatusChange
		if err := rows.Scan(&ch.Status, &ch.ChangedBy, &ch.ChangedAt); err != nil {
			return err
		}
		o.History = append(o.History, ch)
	}
	return rows.Err()
}

func getOrder(ctx context.Context, q dbtx, id int64, lock bool) (Order, error) {
	sql := `SELECT ` + orderColumns + ` FROM orders WHERE id = $1`
	if lock {
		sql += ` FOR UPDATE`
	}
	o, err := scanOrder(q.QueryRow(ctx, sql, id))
	if err != nil {
		return Order{}, err
	}
	return o, loadDetails(ctx, q, &o)
}

// Get loads an order with its reservations and history.
func (r *Repository) Get(ctx context.Context, id int64) (Order, error) {
	return getOrder(ctx, r.pool, id, false)
}

// List returns orders newest first. Reservations are loaded, history is not.
func (r *Repository) List(ctx context.Context, filter ListFilter) ([]Order, error) {
	var where []string
	var args []any
	if filter.Status != "" {
		args = append(args, filter.Status)
		where = append(where, fmt.Sprintf("status = $%d", len(args)))
	}
	if filter.CustomerID != 0 {
		args = append(args, filter.CustomerID)
		where = append(where, fmt.Sprintf("customer_id = $%d", len(args)))
	}
	sql := `SELECT ` + orderColumns + ` FROM orders`
	if len(where) > 0 {
		sql += " WHERE " + strings.Join(where, " AND ")
	}
	args = append(args, filter.Limit, filter.Offset)
	sql += fmt.Sprintf(" ORDER BY created_at DESC, id DESC LIMIT $%d OFFSET $%d", len(args)-1, len(args))

	rows, err := r.pool.Query(ctx, sql, args...)
	if err != nil {
		return nil, err
	}
	var out []Order
	for rows.Next() {
		o, err := scanOrder(rows)
		if err != nil {
			rows.Close()
			return nil, err
		}
		out = append(out, o)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, err
	}
	for i := range out {
		if err := loadDetails(ctx, r.pool, &out[i]); err != nil {
			return nil, err
		}
		out[i].History = nil
	}
	return out, nil
}

func (r *txRepo) NextOrderNumber(ctx context.Context, at time.Time) (string, error) {
	var seq int64
	if err := r.db.QueryRow(ctx, `SELECT nextval('order_number_seq')`).Scan(&seq); err != nil {
		return "", err
	}
	return FormatOrderNumber(at.Year(), seq), nil
}

func (r *txRepo) Insert(ctx context.Context, n NewOrder, number, actor string, at time.Time) (Order, error) {
	measurements := n.Measurements
	if measurements == nil {
		measurements = map[string]string{}
	}
	o, err := scanOrder(r.db.QueryRow(ctx, `INSERT INTO orders (order_number, customer_id, customer_name, customer_mobile, order_type, status, priority,
    measurements, delivery_date, price, advance_amount, consumed, created_at, updated_at)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, FALSE, $12, $12)
RETURNING `+orderColumns,
		number, n.CustomerID, n.CustomerName, n.CustomerMobile, n.OrderType, StatusReceived, n.Priority,
		measurements, n.DeliveryDate, n.Price, n.AdvanceAmount, at))
	if err != nil {
		return Order{}, err
	}
	for i, res := range n.Reservations {
		if _, err := r.db.Exec(ctx, `INSERT INTO order_reservations (order_id, line_no, stock_lot_id, meters_reserved) VALUES ($1, $2, $3, $4)`,
			o.ID, i+1, res.StockLotID, res.Meters); err != nil {
			return Order{}, err
		}
	}
	if err := r.appendHistory(ctx, o.ID, StatusReceived, actor, at); err != nil {
		return Order{}, err
	}
	return o, loadDetails(ctx, r.db, &o)
}

func (r *txRepo) GetForUpdate(ctx context.Context, id int64) (Order, error) {
	return getOrder(ctx, r.db, id, true)
}

func (r *txRepo) UpdateStatus(ctx context.Context, id int64, from, to Status, actor string, at time.Time) (Order, error) {
	var deliveredAt *time.Time
	if to == StatusDelivered {
		deliveredAt = &at
	}
	tag, err := r.db.Exec(ctx, `UPDATE orders SET status = $3, updated_at = $4, delivered_at = COALESCE($5, delivered_at)
WHERE id = $1 AND status = $2`, id, from, to, at, deliveredAt)
	if err != nil {
		return Order{}, err
	}
	if tag.RowsAffected() == 0 {
		return Order{}, ErrStaleStatus
	}
	if err := r.appendHistory(ctx, id, to, actor, at); err != nil {
		return Order{}, err
	}
	return getOrder(ctx, r.db, id, false)
}

func (r *txRepo) MarkReady(ctx context.Context, id int64, actor string, at time.Time) (Order, error) {
	tag, err := r.db.Exec(ctx, `UPDATE orders SET status = $2, consumed = TRUE, ready_at = $3, updated_at = $3
WHERE id = $1 AND status = $4 AND consumed = FALSE`, id, StatusReady, at, StatusFinishing)
	if err != nil {
		return Order{}, err
	}
	if tag.RowsAffected() == 0 {
		return Order{}, ErrStaleStatus
	}
	if err := r.appendHistory(ctx, id, StatusReady, actor, at); err != nil {
		return Order{}, err
	}
	return getOrder(ctx, r.db, id, false)
}

func (r *txRepo) appendHistory(ctx context.Context, id int64, status Status, actor string, at time.Time) error {
	_, err := r.db.Exec(ctx, `INSERT INTO order_status_history (order_id, status, changed_by, changed_at) VALUES ($1, $2, $3, $4)`, id, status, actor, at)
	return err
}
