package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/hibiken/asynq"
	"golang.org/x/sync/errgroup"

	"github.com/odyssey-erp/odyssey-pos/cmd/odyssey/cli"
	"github.com/odyssey-erp/odyssey-pos/internal/app"
	"github.com/odyssey-erp/odyssey-pos/internal/audit"
	audithttp "github.com/odyssey-erp/odyssey-pos/internal/audit/http"
	"github.com/odyssey-erp/odyssey-pos/internal/identity"
	"github.com/odyssey-erp/odyssey-pos/internal/inventory"
	"github.com/odyssey-erp/odyssey-pos/internal/observability"
	"github.com/odyssey-erp/odyssey-pos/internal/platform/cache"
	"github.com/odyssey-erp/odyssey-pos/internal/platform/db"
	"github.com/odyssey-erp/odyssey-pos/internal/sales"
	"github.com/odyssey-erp/odyssey-pos/internal/shared"
	"github.com/odyssey-erp/odyssey-pos/internal/workshop"
	"github.com/odyssey-erp/odyssey-pos/jobs"
)

func main() {
	if app.InTestMode() {
		slog.Default().Info("test mode detected, skipping server startup")
		return
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cfg, err := app.LoadConfig()
	if err != nil {
		slog.Default().Error("load config", slog.Any("error", err))
		os.Exit(1)
	}
	logger := app.NewLogger(cfg)

	if len(os.Args) > 1 {
		if err := runCommand(ctx, cfg, os.Args[1:]); err != nil {
			logger.Error("command failed", slog.Any("error", err))
			os.Exit(1)
		}
		return
	}

	if err := serve(ctx, cfg, logger); err != nil && !errors.Is(err, context.Canceled) {
		logger.Error("server stopped", slog.Any("error", err))
		os.Exit(1)
	}
}

// runCommand handles `odyssey jobs trigger <type>` and `odyssey jobs stats`.
func runCommand(ctx context.Context, cfg *app.Config, args []string) error {
	if args[0] != "jobs" || len(args) < 2 {
		return fmt.Errorf("usage: odyssey jobs trigger <type> | odyssey jobs stats")
	}
	jobsCLI := cli.NewJobsCLI(cfg.Redis().AsynqOpt(), cfg.IdempotencyRetention)
	defer func() { _ = jobsCLI.Close() }()

	switch args[1] {
	case "trigger":
		if len(args) < 3 {
			return errors.New("usage: odyssey jobs trigger <type>")
		}
		info, err := jobsCLI.Trigger(ctx, args[2])
		if err != nil {
			return err
		}
		fmt.Printf("enqueued %s id=%s queue=%s\n", info.Type, info.ID, info.Queue)
	case "stats":
		stats, err := jobsCLI.InspectQueues(ctx)
		if err != nil {
			return err
		}
		for _, s := range stats {
			fmt.Printf("%-8s pending=%d active=%d scheduled=%d retry=%d archived=%d\n",
				s.Queue, s.Pending, s.Active, s.Scheduled, s.Retry, s.Archived)
		}
	default:
		return fmt.Errorf("unknown jobs command %q", args[1])
	}
	return nil
}

func serve(ctx context.Context, cfg *app.Config, logger *slog.Logger) error {
	maxQty, err := cfg.MaxQuantity()
	if err != nil {
		return err
	}

	pool, err := db.New(ctx, cfg.PGDSN, db.PoolConfig{MaxConns: cfg.PGMaxConns})
	if err != nil {
		return fmt.Errorf("connect database: %w", err)
	}
	defer pool.Close()

	// Document numbers are allocated while a document transaction holds a connection from pool.
	numberPool, err := db.New(ctx, cfg.PGDSN, db.PoolConfig{MaxConns: cfg.SalesNumberPoolSize})
	if err != nil {
		return fmt.Errorf("connect number pool: %w", err)
	}
	defer numberPool.Close()

	redisClient, err := cache.New(ctx, cfg.Redis())
	if err != nil {
		logger.Warn("redis unavailable, document locks and queued audit degrade", slog.Any("error", err))
	}
	if redisClient != nil {
		defer func() {
			if err := redisClient.Close(); err != nil {
				logger.Warn("redis close", slog.Any("error", err))
			}
		}()
	}

	redisOpts := cfg.Redis().AsynqOpt()
	queue, err := jobs.NewClient(redisOpts)
	if err != nil {
		return fmt.Errorf("jobs client: %w", err)
	}
	defer func() {
		if err := queue.Close(); err != nil {
			logger.Warn("jobs client close", slog.Any("error", err))
		}
	}()
	inspector := asynq.NewInspector(redisOpts)
	defer func() {
		if err := inspector.Close(); err != nil {
			logger.Warn("inspector close", slog.Any("error", err))
		}
	}()

	metrics := observability.NewMetrics()
	txOpts := db.TxOptions{LockTimeout: cfg.SalesLockTimeout}
	retry := db.RetryPolicy{MaxAttempts: cfg.SalesTxMaxAttempts, Backoff: db.DefaultRetryPolicy.Backoff}
	ledger := inventory.NewLedger(maxQty)
	recorder := audit.NewRecorder(queue, shared.NewAuditLogger(pool), logger)
	idempotency := shared.NewIdempotencyStore(pool)

	salesService := sales.NewService(sales.NewRepository(pool, txOpts), sales.NewPGSequencer(numberPool), ledger, recorder, logger)
	salesService.SetObserver(metrics)
	salesService.SetRetryPolicy(retry)
	salesService.SetNumberTimeout(cfg.SalesNumberTimeout)
	if cfg.SalesDocumentLockEnabled && redisClient != nil {
		salesService.SetLocker(cache.NewLocker(redisClient, cache.LockerConfig{TTL: cfg.SalesDocumentLockTTL, Wait: cfg.SalesLockTimeout}))
	}

	inventoryRepo := inventory.NewRepository(pool, txOpts)
	inventoryService := inventory.NewService(inventoryRepo, ledger, recorder, logger)

	workshopService := workshop.NewService(workshop.NewRepository(pool, txOpts), ledger, salesService, recorder, logger)
	workshopService.SetRetryPolicy(retry)

	verifier, err := identity.NewVerifier(identity.Config{Secret: cfg.JWTSecret, Issuer: cfg.JWTIssuer, Leeway: cfg.JWTLeeway})
	if err != nil {
		return err
	}

	router := app.NewRouter(app.RouterParams{
		Logger:           logger,
		Config:           cfg,
		Verifier:         verifier,
		SalesHandler:     sales.NewHandler(logger, salesService, idempotency),
		InventoryHandler: inventory.NewHandler(logger, inventoryService),
		WorkshopHandler:  workshop.NewHandler(logger, workshopService, idempotency),
		AuditHandler:     audithttp.NewHandler(logger, audit.NewService(audit.NewRepository(pool))),
		JobHandler:       jobs.NewHandler(inspector, logger),
		Metrics:          metrics,
		Health:           pool,
	})

	server := &http.Server{
		Addr:         cfg.AppAddr,
		Handler:      router,
		ReadTimeout:  cfg.AppReadTimeout,
		WriteTimeout: cfg.AppWriteTimeout,
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		logger.Info("starting http server", slog.String("addr", cfg.AppAddr))
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		logger.Info("shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return server.Shutdown(shutdownCtx)
	})
	return g.Wait()
}
