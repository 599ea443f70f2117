package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"

	"github.com/spec-kit/repair-service/internal/actor"
	httptransport "github.com/spec-kit/repair-service/internal/api/http"
	"github.com/spec-kit/repair-service/internal/api/http/handlers"
	"github.com/spec-kit/repair-service/internal/bmc"
	"github.com/spec-kit/repair-service/internal/cache"
	"github.com/spec-kit/repair-service/internal/config"
	"github.com/spec-kit/repair-service/internal/events"
	"github.com/spec-kit/repair-service/internal/locker"
	"github.com/spec-kit/repair-service/internal/observability"
	"github.com/spec-kit/repair-service/internal/persistence"
	"github.com/spec-kit/repair-service/internal/registry"
	"github.com/spec-kit/repair-service/internal/repository"
	"github.com/spec-kit/repair-service/internal/service"
	"github.com/spec-kit/repair-service/internal/worker"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}

	logger, err := observability.NewLogger(cfg.Logger)
	if err != nil {
		log.Fatalf("failed to init logger: %v", err)
	}
	defer logger.Sync() //nolint:errcheck

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	pg, err := persistence.NewPostgres(ctx, cfg.Postgres, logger)
	if err != nil {
		logger.Fatal("failed to connect postgres", zap.Error(err))
	}
	defer pg.Close()

	if cfg.Postgres.RunMigrations {
		if err := persistence.RunMigrations(ctx, pg.PoolHandle(), logger); err != nil {
			logger.Fatal("failed to run migrations", zap.Error(err))
		}
	}

	// Redis is optional: without it the snapshot cache and the
	// reconciliation lock fall back to in-process implementations.
	var redisConn *persistence.Redis
	var snapshotCache cache.SnapshotCache
	var unitLocker locker.UnitLocker
	if cfg.Redis.Addr != "" {
		redisConn = persistence.NewRedis(cfg.Redis, logger)
		defer redisConn.Close()
		snapshotCache = cache.NewRedisSnapshotCache(redisConn.Client, cfg.Readout.CacheTTL(), logger)
		unitLocker = locker.NewRedisUnitLocker(redisConn.Client, cfg.Reconcile.LockTTL())
	} else {
		logger.Info("redis not configured; using in-process cache and locks")
		snapshotCache = cache.NewMemorySnapshotCache(cfg.Readout.CacheMaxEntries, cfg.Readout.CacheTTL())
		unitLocker = locker.NewMemoryUnitLocker()
	}

	pool := pg.PoolHandle()
	ticketRepo := repository.NewTicketRepository(pool)
	partRepo := repository.NewSparePartRepository(pool)
	historyRepo := repository.NewPartHistoryRepository(pool)
	loanerRepo := repository.NewLoanerRepository(pool)
	corrRepo := repository.NewCorrespondenceRepository(pool)
	policyRepo := repository.NewSlaPolicyRepository(pool)
	componentRepo := repository.NewComponentRepository(pool)
	attachmentRepo := repository.NewAttachmentRepository(pool)

	dispatcher := events.NewInMemoryDispatcher()
	unitRegistry := registry.NewClient(cfg.Registry.BaseURL, cfg.Registry.RegistryTimeout(), logger)
	componentReader := bmc.NewHTTPReader(cfg.Readout.ReadoutTimeout(), logger)

	allocationService := service.NewAllocationService(service.AllocationDependencies{
		PartRepo:    partRepo,
		HistoryRepo: historyRepo,
		Dispatcher:  dispatcher,
	})
	loanerService := service.NewLoanerService(service.LoanerDependencies{
		LoanerRepo: loanerRepo,
		Dispatcher: dispatcher,
	})
	correspondenceService := service.NewCorrespondenceService(service.CorrespondenceDependencies{
		CorrespondenceRepo: corrRepo,
		TicketRepo:         ticketRepo,
		Dispatcher:         dispatcher,
	})
	ticketService := service.NewTicketService(service.TicketDependencies{
		TicketRepo:     ticketRepo,
		PolicyRepo:     policyRepo,
		AttachmentRepo: attachmentRepo,
		Allocator:      allocationService,
		Loaners:        loanerService,
		Correspondence: correspondenceService,
		UnitRegistry:   unitRegistry,
		Dispatcher:     dispatcher,
	})
	reconciliationService := service.NewReconciliationService(service.ReconciliationDependencies{
		ComponentRepo: componentRepo,
		Reader:        componentReader,
		UnitRegistry:  unitRegistry,
		SnapshotCache: snapshotCache,
		UnitLocker:    unitLocker,
		Dispatcher:    dispatcher,
		Logger:        logger,
	})

	notificationService := service.NewNotificationService(logger)
	worker.StartNotificationWorker(notificationService, dispatcher)

	escalationWorker := worker.NewEscalationWorker(ticketRepo, policyRepo, dispatcher, logger, cfg.SLA.EscalationInterval())
	go escalationWorker.Run(ctx)

	app := fiber.New(fiber.Config{AppName: cfg.App.Name})
	httptransport.RegisterMiddlewares(app, logger, cfg.App.RequestTimeout())

	httptransport.RegisterRoutes(app, httptransport.RouteConfig{
		Health:          handlers.NewHealthHandler(cfg.App.Name, cfg.App.Version, pg, redisConn),
		Tickets:         handlers.NewTicketsHandler(ticketService),
		SpareParts:      handlers.NewSparePartsHandler(allocationService),
		Loaners:         handlers.NewLoanersHandler(loanerService),
		Correspondence:  handlers.NewCorrespondenceHandler(correspondenceService),
		Reconciliation:  handlers.NewReconciliationHandler(reconciliationService),
		ActorMiddleware: actor.NewMiddleware(cfg.Actor.JWTSecret),
	})

	go func() {
		if err := app.Listen(cfg.App.Addr()); err != nil {
			logger.Fatal("fiber listen", zap.Error(err))
		}
	}()

	waitForShutdown(logger)
	cancel()

	_ = app.Shutdown()
}

func waitForShutdown(logger *zap.Logger) {
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	sig := <-sigCh
	logger.Info("shutting down", zap.String("signal", sig.String()))
}
