package app

import (
	"errors"

	"api_pos/api"
	"api_pos/internal/config"
	"api_pos/internal/inventory"
	"api_pos/internal/metrics"
	"api_pos/internal/payments"
	"api_pos/internal/sales"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// Application wires storage, services and the expiry sweep from a Config.
type Application struct {
	cfg      config.Config
	logger   *zap.Logger
	db       *gorm.DB
	registry *prometheus.Registry

	ledger     inventory.Ledger
	sales      *sales.Service
	payments   *payments.Service
	reconciler *payments.Reconciler
	gateway    *payments.Client
	sweeper    *payments.Sweeper
}

// New builds the application. Postgres is used when DatabaseURL is set,
// in-memory storage seeded with a demo catalog otherwise.
func New(cfg config.Config, logger *zap.Logger) (*Application, error) {
	if logger == nil {
		logger, _ = zap.NewProduction()
	}
	a := &Application{cfg: cfg, logger: logger, registry: prometheus.NewRegistry()}
	a.registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	m := metrics.New(a.registry)

	var (
		salesStore    sales.Storage
		paymentsStore payments.Storage
	)
	if cfg.DatabaseURL != "" {
		db, err := OpenDatabase(cfg, logger)
		if err != nil {
			return nil, err
		}
		a.db = db
		a.ledger = inventory.NewGormLedger(db)
		salesStore = sales.NewGormStorage(db)
		paymentsStore = payments.NewGormStorage(db)
		logger.Info("using postgres storage")
	} else {
		ledger := inventory.NewLocalLedger(DemoCatalog()...)
		a.ledger = ledger
		salesStore = sales.NewLocalStorage(ledger)
		paymentsStore = payments.NewLocalStorage()
		logger.Warn("DATABASE_URL not set, using in-memory storage")
	}

	opts := []sales.Option{sales.WithMetrics(m)}
	if cfg.RestockOnPaymentFailure {
		opts = append(opts, sales.WithPaymentFailureHook(sales.RestoreStock(a.ledger)))
	}
	a.sales = sales.NewService(salesStore, logger.Named("sales"), opts...)

	a.gateway = payments.NewClient(cfg.Gateway)
	payOpts := []payments.Option{payments.WithMetrics(m), payments.WithRegion(cfg.PhoneRegion)}
	a.payments = payments.NewService(paymentsStore, a.gateway, a.sales, logger.Named("payments"), payOpts...)
	a.sales.SetPaymentInitiator(a.payments.SaleInitiator())
	a.reconciler = payments.NewReconciler(paymentsStore, a.sales, logger.Named("reconciler"), payOpts...)

	sweeper, err := payments.NewSweeper(a.reconciler, cfg.SweepSchedule, cfg.PaymentTimeout, logger.Named("sweeper"))
	if err != nil {
		_ = a.Close()
		return nil, err
	}
	a.sweeper = sweeper
	return a, nil
}

// Dependencies exposes the services to the HTTP layer.
func (a *Application) Dependencies() api.Dependencies {
	return api.Dependencies{
		Sales:      a.sales,
		Payments:   a.payments,
		Reconciler: a.reconciler,
		Ledger:     a.ledger,
		Gatherer:   a.registry,
		Logger:     a.logger,
	}
}

// Start begins the payment expiry sweep.
func (a *Application) Start() {
	a.sweeper.Start()
}

// Close stops the sweep and releases the gateway client and database.
func (a *Application) Close() error {
	if a.sweeper != nil {
		a.sweeper.Stop()
	}
	var errs []error
	if a.gateway != nil {
		errs = append(errs, a.gateway.Close())
	}
	if a.db != nil {
		if sqlDB, err := a.db.DB(); err == nil {
			errs = append(errs, sqlDB.Close())
		}
	}
	return errors.Join(errs...)
}

// DemoCatalog is the product list of an in-memory instance.
func DemoCatalog() []inventory.Product {
	return []inventory.Product{
		{ID: "SKU-1001", Name: "White Bread 400g", Price: decimal.RequireFromString("65.00"), Quantity: 40, MinStockLevel: 10},
		{ID: "SKU-1002", Name: "Fresh Milk 500ml", Price: decimal.RequireFromString("60.00"), Quantity: 60, MinStockLevel: 15},
		{ID: "SKU-1003", Name: "Sugar 1kg", Price: decimal.RequireFromString("180.00"), Quantity: 25, MinStockLevel: 5},
		{ID: "SKU-1004", Name: "Cooking Oil 1L", Price: decimal.RequireFromString("340.00"), Quantity: 12, MinStockLevel: 4},
		{ID: "SKU-1005", Name: "Maize Flour 2kg", Price: decimal.RequireFromString("210.00"), Quantity: 0, MinStockLevel: 10},
	}
}
