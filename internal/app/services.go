package app

import (
	"context"
	"log/slog"

	"github.com/go-playground/validator/v10"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/silaibook/silaibook/internal/customers"
	"github.com/silaibook/silaibook/internal/fulfillment"
	"github.com/silaibook/silaibook/internal/inventory"
	"github.com/silaibook/silaibook/internal/observability"
	"github.com/silaibook/silaibook/internal/orders"
	"github.com/silaibook/silaibook/internal/payments"
	"github.com/silaibook/silaibook/internal/platform/httpx"
	"github.com/silaibook/silaibook/internal/shared"
	"github.com/silaibook/silaibook/internal/store/memory"
	"github.com/silaibook/silaibook/jobs"
)

// AuditRecorder persists audit entries.
type AuditRecorder interface {
	Record(ctx context.Context, log shared.AuditLog) error
}

// Backend bundles the storage implementations behind the ledgers.
type Backend struct {
	Customers   customers.Repository
	Inventory   inventory.RepositoryPort
	Orders      orders.RepositoryPort
	Payments    payments.RepositoryPort
	UnitOfWork  fulfillment.UnitOfWork
	Audit       AuditRecorder
	Idempotency fulfillment.IdempotencyPort
	Health      HealthCheck
	// KeyPruner is nil when the store expires keys on its own.
	KeyPruner jobs.KeyPruner
}

// PostgresBackend wires every ledger to the pool.
func PostgresBackend(pool *pgxpool.Pool) Backend {
	keys := shared.NewIdempotencyStore(pool)
	return Backend{
		Customers:   customers.NewRepository(pool),
		Inventory:   inventory.NewRepository(pool),
		Orders:      orders.NewRepository(pool),
		Payments:    payments.NewRepository(pool),
		UnitOfWork:  fulfillment.NewPGUnitOfWork(pool),
		Audit:       shared.NewAuditLogger(pool),
		Idempotency: keys,
		Health:      pool.Ping,
		KeyPruner:   keys,
	}
}

// MemoryBackend wires every ledger to one in-process store.
func MemoryBackend(store *memory.Store) Backend {
	return Backend{
		Customers:   store.Customers(),
		Inventory:   store.Inventory(),
		Orders:      store.Orders(),
		Payments:    store.Payments(),
		UnitOfWork:  store,
		Audit:       store,
		Idempotency: store,
	}
}

// ServiceDeps collects what the services need beyond storage.
type ServiceDeps struct {
	Backend  Backend
	Config   *Config
	Logger   *slog.Logger
	Locker   shared.Locker
	Notifier fulfillment.Notifier
	Metrics  *observability.Metrics
}

// Services holds the ledger services and the orchestrator.
type Services struct {
	Customers    *customers.Service
	Inventory    *inventory.Service
	Orders       *orders.Service
	Payments     *payments.Service
	Orchestrator *fulfillment.Orchestrator
}

// NewServices builds the services over deps.Backend.
func NewServices(deps ServiceDeps) *Services {
	cfg := deps.Config
	if cfg == nil {
		cfg = &Config{PhoneRegion: "IN", LowStockThreshold: inventory.DefaultLowStockThreshold}
	}
	logger := deps.Logger
	if logger == nil {
		logger = slog.Default()
	}
	locker := deps.Locker
	if locker == nil {
		locker = shared.NewKeyedMutex()
	}
	b := deps.Backend

	inv := inventory.NewService(b.Inventory, b.Audit, inventory.ServiceConfig{
		LowStockThreshold: cfg.LowStockThreshold,
		Observer:          deps.Metrics,
		Logger:            logger.With(slog.String("ledger", "inventory")),
	})
	ord := orders.NewService(b.Orders, b.Audit, logger.With(slog.String("ledger", "orders")))
	pay := payments.NewService(b.Payments, locker, b.Audit, logger.With(slog.String("ledger", "payments")))

	fcfg := fulfillment.Config{
		Idempotency:   b.Idempotency,
		Notifier:      deps.Notifier,
		Observer:      deps.Metrics,
		Logger:        logger.With(slog.String("component", "orchestrator")),
		NotifyTimeout: cfg.NotifyTimeout,
	}
	return &Services{
		Customers:    customers.NewService(b.Customers, cfg.PhoneRegion),
		Inventory:    inv,
		Orders:       ord,
		Payments:     pay,
		Orchestrator: fulfillment.NewOrchestrator(b.UnitOfWork, inv, ord, pay, fcfg),
	}
}

// Handlers fills the HTTP handlers of params from s.
func (s *Services) Handlers(params RouterParams, validate *validator.Validate) RouterParams {
	if validate == nil {
		validate = httpx.NewValidator()
	}
	logger := params.Logger
	params.CustomersHandler = customers.NewHandler(logger, s.Customers, validate)
	params.InventoryHandler = inventory.NewHandler(logger, s.Inventory, validate)
	params.OrdersHandler = orders.NewHandler(logger, s.Orders, validate)
	params.PaymentsHandler = payments.NewHandler(logger, s.Payments, validate)
	params.FulfillmentHandler = fulfillment.NewHandler(logger, s.Orchestrator, validate)
	return params
}
