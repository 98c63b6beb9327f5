package fulfillment

import (
	"context"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/silaibook/silaibook/internal/customers"
	"github.com/silaibook/silaibook/internal/inventory"
	"github.com/silaibook/silaibook/internal/orders"
	"github.com/silaibook/silaibook/internal/payments"
	"github.com/silaibook/silaibook/internal/platform/db"
)

// Ledgers groups the transactional repositories bound to one unit of work.
type Ledgers struct {
	Customers customers.Repository
	Inventory inventory.TxRepository
	Orders    orders.TxRepository
	Payments  payments.TxRepository
}

// UnitOfWork runs fn so that every ledger write inside it commits or rolls back together.
type UnitOfWork interface {
	Within(ctx context.Context, fn func(context.Context, Ledgers) error) error
}

// PGUnitOfWork binds all ledgers to one PostgreSQL transaction.
type PGUnitOfWork struct {
	pool *pgxpool.Pool
}

// NewPGUnitOfWork constructs PGUnitOfWork.
func NewPGUnitOfWork(pool *pgxpool.Pool) *PGUnitOfWork {
	return &PGUnitOfWork{pool: pool}
}

// Within implements UnitOfWork.
func (u *PGUnitOfWork) Within(ctx context.Context, fn func(context.Context, Ledgers) error) error {
	return db.WithLedgerTx(ctx, u.pool, func(tx pgx.Tx) error {
		return fn(ctx, Ledgers{
			Customers: customers.NewTxRepository(tx),
			Inventory: inventory.NewTxRepository(tx),
			Orders:    orders.NewTxRepository(tx),
			Payments:  payments.NewTxRepository(tx),
		})
	})
}
