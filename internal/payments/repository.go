package payments

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/silaibook/silaibook/internal/platform/db"
)

// TxRepository exposes transactional payment operations.
type TxRepository interface {
	// LockCustomer row-locks an active customer so balance checks and the
	// following insert or delete cannot interleave with another writer.
	LockCustomer(ctx context.Context, customerID int64) error
	ListByCustomer(ctx context.Context, customerID int64) ([]Record, error)
	Get(ctx context.Context, id int64) (Record, error)
	Insert(ctx context.Context, rec Record) (Record, error)
	Delete(ctx context.Context, id int64) error
}

type dbtx interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// Repository persists payment records in PostgreSQL.
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

// NewTxRepository binds payment operations to an open transaction.
func NewTxRepository(tx pgx.Tx) TxRepository {
	return &txRepo{db: tx}
}

// WithTx executes fn inside a read-committed transaction.
func (r *Repository) WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error {
	return db.WithLedgerTx(ctx, r.pool, func(tx pgx.Tx) error {
		return fn(ctx, NewTxRepository(tx))
	})
}

const recordColumns = `p.id, p.customer_id, c.name, p.order_id, p.total_bill, p.paid_amount, p.payment_mode, p.due_date, p.created_by, p.created_at`

func scanRecords(rows pgx.Rows) ([]Record, error) {
	defer rows.Close()
	var out []Record
	for rows.Next() {
		var rec Record
		if err := rows.Scan(&rec.ID, &rec.CustomerID, &rec.CustomerName, &rec.OrderID, &rec.TotalBill, &rec.PaidAmount,
			&rec.Mode, &rec.DueDate, &rec.CreatedBy, &rec.CreatedAt); err != nil {
			return nil, err
		}
		out = append(out, rec)
	}
	return out, rows.Err()
}

// CustomerExists reports whether an active customer exists.
func (r *Repository) CustomerExists(ctx context.Context, customerID int64) (bool, error) {
	var ok bool
	err := r.pool.QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM customers WHERE id = $1 AND is_active)`, customerID).Scan(&ok)
	return ok, err
}

// ListByCustomer returns a customer's records oldest first.
func (r *Repository) ListByCustomer(ctx context.Context, customerID int64) ([]Record, error) {
	return (&txRepo{db: r.pool}).ListByCustomer(ctx, customerID)
}

// ListAll returns every record ordered by customer then creation.
func (r *Repository) ListAll(ctx context.Context) ([]Record, error) {
	rows, err := r.pool.Query(ctx, `SELECT `+recordColumns+`
FROM payments p JOIN customers c ON c.id = p.customer_id
ORDER BY p.customer_id, p.id`)
	if err != nil {
		return nil, err
	}
	return scanRecords(rows)
}

func (r *txRepo) LockCustomer(ctx context.Context, customerID int64) error {
	var id int64
	err := r.db.QueryRow(ctx, `SELECT id FROM customers WHERE id = $1 AND is_active FOR UPDATE`, customerID).Scan(&id)
	if errors.Is(err, pgx.ErrNoRows) {
		return ErrCustomerNotFound
	}
	return err
}

func (r *txRepo) ListByCustomer(ctx context.Context, customerID int64) ([]Record, error) {
	rows, err := r.db.Query(ctx, `SELECT `+recordColumns+`
FROM payments p JOIN customers c ON c.id = p.customer_id
WHERE p.customer_id = $1 ORDER BY p.id`, customerID)
	if err != nil {
		return nil, err
	}
	return scanRecords(rows)
}

func (r *txRepo) Get(ctx context.Context, id int64) (Record, error) {
	rows, err := r.db.Query(ctx, `SELECT `+recordColumns+`
FROM payments p JOIN customers c ON c.id = p.customer_id WHERE p.id = $1`, id)
	if err != nil {
		return Record{}, err
	}
	recs, err := scanRecords(rows)
	if err != nil {
		return Record{}, err
	}
	if len(recs) == 0 {
		return Record{}, ErrPaymentNotFound
	}
	return recs[0], nil
}

func (r *txRepo) Insert(ctx context.Context, rec Record) (Record, error) {
	err := r.db.QueryRow(ctx, `INSERT INTO payments (customer_id, order_id, total_bill, paid_amount, payment_mode, due_date, created_by, created_at)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8) RETURNING id`,
		rec.CustomerID, rec.OrderID, rec.TotalBill, rec.PaidAmount, rec.Mode, rec.DueDate, rec.CreatedBy, rec.CreatedAt).Scan(&rec.ID)
	return rec, err
}

func (r *txRepo) Delete(ctx context.Context, id int64) error {
	tag, err := r.db.Exec(ctx, `DELETE FROM payments WHERE id = $1`, id)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrPaymentNotFound
	}
	return nil
}
