package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"

	"github.com/ManhHE170124/SEP490-G172-sub009/internal/app"
	"github.com/ManhHE170124/SEP490-G172-sub009/internal/audit"
	"github.com/ManhHE170124/SEP490-G172-sub009/internal/clock"
	"github.com/ManhHE170124/SEP490-G172-sub009/internal/config"
	"github.com/ManhHE170124/SEP490-G172-sub009/internal/metrics"
	"github.com/ManhHE170124/SEP490-G172-sub009/internal/storage/postgres"
	transporthttp "github.com/ManhHE170124/SEP490-G172-sub009/internal/transport/http"
	"github.com/ManhHE170124/SEP490-G172-sub009/migrations"
)

const shutdownTimeout = 10 * time.Second

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("load config: %v", err)
	}

	logger, err := newLogger(cfg.LogLevel)
	if err != nil {
		log.Fatalf("build logger: %v", err)
	}
	defer func() { _ = logger.Sync() }()

	startupCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	pool, err := pgxpool.New(startupCtx, cfg.DatabaseURL)
	if err != nil {
		logger.Fatal("connect to db", zap.Error(err))
	}
	defer pool.Close()

	if err := pool.Ping(startupCtx); err != nil {
		logger.Fatal("db ping", zap.Error(err))
	}
	if err := migrations.Apply(startupCtx, pool); err != nil {
		logger.Fatal("apply migrations", zap.Error(err))
	}

	clk := clock.NewSystem()
	sink := audit.NewLogSink(logger.Named("audit"), cfg.AuditBuffer)
	defer sink.Close()

	invRepo := postgres.NewInventoryRepository(pool)
	accountRepo := postgres.NewAccountRepository(pool)
	reservationRepo := postgres.NewReservationRepository(pool)
	adminRepo := postgres.NewAdminRepository(pool)
	sweepRepo := postgres.NewSweepRepository(pool)

	allocator := app.NewAllocator(invRepo, accountRepo, clk, sink)
	reservationSvc := app.NewReservationService(reservationRepo, allocator, clk, sink,
		app.WithDefaultHoldTTL(cfg.HoldTTL))
	adminSvc := app.NewAdminService(adminRepo, clk, sink)
	sweeper := app.NewSweeper(sweepRepo, clk, logger.Named("sweeper"), sink,
		app.WithSweepInterval(cfg.SweepInterval))

	mux := http.NewServeMux()
	mux.HandleFunc("/health", transporthttp.HealthHandler)
	mux.Handle("/metrics", metrics.Handler())
	mux.Handle("/reservations", transporthttp.HandleReserveStock(reservationSvc))
	mux.Handle("/reservations/", transporthttp.HandleReservationAction(reservationSvc))
	mux.Handle("/accounts/", transporthttp.HandleAccountSlots(allocator))
	mux.Handle("/admin/variants", transporthttp.HandleAdminVariants(adminSvc))
	mux.Handle("/admin/variants/", transporthttp.HandleAdminVariants(adminSvc))
	mux.Handle("/admin/keys", transporthttp.HandleAdminKeys(adminSvc, allocator))
	mux.Handle("/admin/keys/", transporthttp.HandleAdminKeys(adminSvc, allocator))
	mux.Handle("/admin/accounts", transporthttp.HandleAdminAccounts(adminSvc, allocator))
	mux.Handle("/admin/accounts/", transporthttp.HandleAdminAccounts(adminSvc, allocator))
	mux.Handle("/", transporthttp.NotFoundHandler())

	handler := transporthttp.RequestLogger(transporthttp.CORS(cfg.CORSOrigins, mux), logger)

	server := &http.Server{
		Addr:    ":" + cfg.Port,
		Handler: handler,
	}

	sweepCtx, stopSweeper := context.WithCancel(context.Background())
	defer stopSweeper()
	go sweeper.Run(sweepCtx)

	logger.Info("engine listening", zap.String("port", cfg.Port))

	srvErr := make(chan error, 1)
	go func() {
		srvErr <- server.ListenAndServe()
	}()

	stopCtx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	select {
	case err := <-srvErr:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("server error", zap.Error(err))
		}
	case <-stopCtx.Done():
		logger.Info("shutdown signal received, stopping server")
	}

	stopSweeper()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer shutdownCancel()
	if err := server.Shutdown(shutdownCtx); err != nil && !errors.Is(err, http.ErrServerClosed) {
		logger.Error("server shutdown error", zap.Error(err))
	}
	logger.Info("server stopped")
}

func newLogger(level string) (*zap.Logger, error) {
	lvl, err := zap.ParseAtomicLevel(level)
	if err != nil {
		return nil, err
	}
	zapcfg := zap.NewProductionConfig()
	zapcfg.Level = lvl
	return zapcfg.Build()
}
