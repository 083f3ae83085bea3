package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"

	"github.com/aristath/insider-trader/internal/clients/alpaca"
	"github.com/aristath/insider-trader/internal/clients/congress"
	"github.com/aristath/insider-trader/internal/clients/edgar"
	"github.com/aristath/insider-trader/internal/clients/openinsider"
	"github.com/aristath/insider-trader/internal/config"
	"github.com/aristath/insider-trader/internal/database"
	"github.com/aristath/insider-trader/internal/domain"
	"github.com/aristath/insider-trader/internal/events"
	"github.com/aristath/insider-trader/internal/modules/allocation"
	"github.com/aristath/insider-trader/internal/modules/audit"
	"github.com/aristath/insider-trader/internal/modules/backup"
	"github.com/aristath/insider-trader/internal/modules/broker"
	"github.com/aristath/insider-trader/internal/modules/cycles"
	"github.com/aristath/insider-trader/internal/modules/marketdata"
	"github.com/aristath/insider-trader/internal/modules/orders"
	"github.com/aristath/insider-trader/internal/modules/philosophy"
	"github.com/aristath/insider-trader/internal/modules/positions"
	"github.com/aristath/insider-trader/internal/modules/review"
	"github.com/aristath/insider-trader/internal/modules/risk"
	"github.com/aristath/insider-trader/internal/modules/scenarios"
	"github.com/aristath/insider-trader/internal/modules/signals"
	"github.com/aristath/insider-trader/internal/modules/sizing"
	"github.com/aristath/insider-trader/internal/scheduler"
	"github.com/aristath/insider-trader/internal/server"
	"github.com/aristath/insider-trader/pkg/logger"
)

// presetOverridesPath is where operators drop Custom preset tuning.
const presetOverridesPath = "./config/philosophy.yaml"

// liveQuoteAdapter bridges the market data client into the paper broker's
// quote interface.
type liveQuoteAdapter struct {
	client *alpaca.Client
}

func (a liveQuoteAdapter) GetQuote(ctx context.Context, symbol string) (domain.Quote, error) {
	quote, err := a.client.GetQuote(ctx, symbol)
	if err != nil {
		return domain.Quote{}, err
	}
	return *quote, nil
}

func main() {
	cfg, err := config.Load()
	if err != nil {
		boot := logger.New(logger.Config{Level: "info"})
		boot.Fatal().Err(err).Msg("Failed to load configuration")
	}

	log := logger.New(logger.Config{
		Level:  cfg.LogLevel,
		Pretty: cfg.DevMode,
	})

	log.Info().Msg("Starting Insider Trader")

	// Initialize database
	db, err := database.New(cfg.DatabasePath)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to initialize database")
	}
	defer db.Close()

	// Run migrations
	if err := db.Migrate(); err != nil {
		log.Fatal().Err(err).Msg("Failed to run migrations")
	}

	ev := events.NewManager(log)

	// Market data
	alpacaClient := alpaca.NewClient(alpaca.Config{
		BaseURL: cfg.MarketDataURL,
		Key:     cfg.MarketDataKey,
		Secret:  cfg.MarketDataSecret,
		Log:     log,
	})
	market := marketdata.NewProvider(alpacaClient, log)
	marketFilter := marketdata.NewFilter(market, log)

	// Repositories
	signalRepo := signals.NewSignalRepository(db.Conn(), log)
	filerRepo := signals.NewFilerRepository(db.Conn(), log)
	positionRepo := positions.NewRepository(db.Conn(), log)
	orderRepo := orders.NewRepository(db.Conn(), log)
	cycleRepo := cycles.NewCycleRepository(db.Conn(), log)
	decisionRepo := allocation.NewDecisionRepository(db.Conn(), log)
	snapshotRepo := risk.NewSnapshotRepository(db.Conn(), log)
	stateRepo := philosophy.NewStateRepository(db.Conn(), log)
	scenarioRepo := scenarios.NewStateRepository(db.Conn(), log)
	quoteCache := broker.NewQuoteCacheRepository(db.Conn(), log)
	auditLog := audit.NewLog(db.Conn(), log)

	// Primary book broker. Without market data credentials it still runs
	// off cached quotes.
	var live broker.LiveQuoter
	if cfg.MarketDataKey != "" {
		live = liveQuoteAdapter{client: alpacaClient}
	}
	paper := broker.NewPaper(broker.PaperConfig{
		StartingCash: cfg.StartingCash,
		SlippageBps:  float64(cfg.SlippageBps),
		Seed:         cfg.BrokerSeed,
		Live:         live,
		Cache:        quoteCache,
		Events:       ev,
		Log:          log,
	})
	if err := paper.Connect(); err != nil {
		log.Fatal().Err(err).Msg("Failed to connect broker")
	}

	// Core engines
	overrides, err := philosophy.LoadPresetOverrides(presetOverridesPath)
	if err != nil {
		log.Warn().Err(err).Msg("Preset overrides not loaded")
	}
	philosophyEngine := philosophy.NewEngine(stateRepo, overrides, ev, log)
	riskManager := risk.NewManager(snapshotRepo, ev, log)
	sizer := sizing.NewSizer(market, log)

	cycleManager := cycles.NewManager(cycles.Config{
		Repo:         cycleRepo,
		DurationDays: cfg.CycleDurationDays,
		StartingCash: cfg.StartingCash,
		Events:       ev,
		Log:          log,
	})

	orderManager := orders.NewManager(orders.ManagerConfig{
		Broker:    paper,
		Orders:    orderRepo,
		Positions: positionRepo,
		Audit:     auditLog,
		Events:    ev,
		Log:       log,
	})

	settler := cycles.NewSettler(cycles.SettlerConfig{
		Manager:   cycleManager,
		Positions: positionRepo,
		Closer:    orderManager,
		Snapshots: snapshotRepo,
		Audit:     auditLog,
		Events:    ev,
		Log:       log,
	})

	allocator := allocation.NewAllocator(allocation.Config{
		Cycles:     cycleManager,
		Risk:       riskManager,
		Signals:    signalRepo,
		Positions:  positionRepo,
		Decisions:  decisionRepo,
		Orders:     orderManager,
		Philosophy: philosophyEngine,
		Sizer:      sizer,
		Broker:     paper,
		Events:     ev,
		Log:        log,
	})

	escalator := review.NewEscalator(review.Config{
		Signals:   signalRepo,
		Positions: positionRepo,
		Orders:    orderManager,
		OrderRepo: orderRepo,
		Broker:    paper,
		Audit:     auditLog,
		Events:    ev,
		Log:       log,
	})
	sweeper := review.NewSweeper(positionRepo, orderManager, philosophyEngine, snapshotRepo, log)

	orchestrator, err := scenarios.NewOrchestrator(scenarios.Config{
		States:      scenarioRepo,
		Positions:   positionRepo,
		Signals:     signalRepo,
		Philosophy:  philosophyEngine,
		OrderRepo:   orderRepo,
		Audit:       auditLog,
		Events:      ev,
		SlippageBps: float64(cfg.SlippageBps),
		Seed:        cfg.BrokerSeed,
		Log:         log,
	})
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to build scenario sandboxes")
	}

	// Signal pipeline
	ingestService := signals.NewIngestService(signals.IngestConfig{
		Repo:     signalRepo,
		Filter:   signals.NewQualityFilter(marketFilter, log),
		Form4:    openinsider.NewClient(cfg.OpenInsiderURL, log),
		Congress: congress.NewClient(cfg.CongressURL, log),
		Edgar:    edgar.NewClient(cfg.EdgarURL, cfg.EdgarUserAgent, log),
		Events:   ev,
		Log:      log,
	})
	scorer := signals.NewScorer(filerRepo, signalRepo, log)
	scoringService := signals.NewScoringService(signalRepo, scorer, ev, log)

	// Backups (disabled when no bucket is configured)
	backupService, err := backup.NewService(context.Background(), backup.Config{
		Bucket: cfg.BackupBucket,
		Prefix: cfg.BackupPrefix,
		Region: cfg.AWSRegion,
		DB:     db.Conn(),
		Events: ev,
		Log:    log,
	})
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to initialize backup service")
	}

	// Initialize scheduler
	sched := scheduler.New(log)
	marketHours := scheduler.NewMarketHoursService(log)
	registerJobs(sched, jobDeps{
		log:           log,
		db:            db,
		marketHours:   marketHours,
		ingest:        ingestService,
		scoring:       scoringService,
		allocator:     allocator,
		decisions:     decisionRepo,
		orchestrator:  orchestrator,
		escalator:     escalator,
		sweeper:       sweeper,
		orderManager:  orderManager,
		positionRepo:  positionRepo,
		riskManager:   riskManager,
		cycleManager:  cycleManager,
		settler:       settler,
		auditLog:      auditLog,
		snapshotRepo:  snapshotRepo,
		backupService: backupService,
	})
	sched.Start()
	defer sched.Stop()

	// Initialize HTTP server
	srv := server.New(server.Config{
		Port:    cfg.Port,
		Log:     log,
		DB:      db,
		Events:  ev,
		DevMode: cfg.DevMode,
		Handlers: server.Handlers{
			Signals:    signals.NewHandlers(signalRepo, log),
			Positions:  positions.NewHandlers(positionRepo, log),
			Orders:     orders.NewHandlers(orderRepo, log),
			Cycles:     cycles.NewHandlers(cycleManager, settler, log),
			Allocation: allocation.NewHandlers(allocator, log),
			Philosophy: philosophy.NewHandlers(philosophyEngine, log),
			Scenarios:  scenarios.NewHandlers(orchestrator, positionRepo, decisionRepo, cycleManager, log),
			Backup:     backup.NewHandlers(backupService, log),
			Audit:      audit.NewHandlers(auditLog, log),
		},
	})

	// Start server in goroutine
	go func() {
		if err := srv.Start(); err != nil {
			log.Error().Err(err).Msg("HTTP server stopped")
		}
	}()

	log.Info().Int("port", cfg.Port).Msg("Server started successfully")

	// Wait for interrupt signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info().Msg("Shutting down server...")

	// Graceful shutdown
	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()

	if err := srv.Shutdown(ctx); err != nil {
		log.Error().Err(err).Msg("Server forced to shutdown")
	}

	log.Info().Msg("Server stopped")
}

type jobDeps struct {
	log           zerolog.Logger
	db            *database.DB
	marketHours   *scheduler.MarketHoursService
	ingest        *signals.IngestService
	scoring       *signals.ScoringService
	allocator     *allocation.Allocator
	decisions     *allocation.DecisionRepository
	orchestrator  *scenarios.Orchestrator
	escalator     *review.Escalator
	sweeper       *review.Sweeper
	orderManager  *orders.Manager
	positionRepo  *positions.Repository
	riskManager   *risk.Manager
	cycleManager  *cycles.Manager
	settler       *cycles.Settler
	auditLog      *audit.Log
	snapshotRepo  *risk.SnapshotRepository
	backupService *backup.Service
}

// registerJobs wires the daily trading rhythm. All clock times are UTC.
func registerJobs(sched *scheduler.Scheduler, d jobDeps) {
	add := func(schedule string, job scheduler.Job) {
		if err := sched.AddJob(schedule, job); err != nil {
			d.log.Fatal().Err(err).Str("job", job.Name()).Msg("Failed to register job")
		}
	}

	add("0 0 6 * * *", scheduler.NewIngestJob(d.ingest, d.log))
	add("0 0 7 * * *", scheduler.NewScoringJob(d.scoring, d.log))
	add("0 0 8 * * *", scheduler.NewAllocationJob(d.allocator, d.marketHours, d.log))
	add("0 30 8 * * *", scheduler.NewScenarioJob(d.cycleManager, d.decisions, d.orchestrator, d.log))
	add("0 0 9 * * *", scheduler.NewReviewJob(d.escalator, d.log))
	add("0 0 * * * *", scheduler.NewSweepJob(d.sweeper, d.log))
	add("0 */5 * * * *", scheduler.NewMarkJob(scheduler.MarkJobConfig{
		Orders:       d.orderManager,
		Positions:    d.positionRepo,
		Orchestrator: d.orchestrator,
		Risk:         d.riskManager,
		Cycles:       d.cycleManager,
		Settler:      d.settler,
		MarketHours:  d.marketHours,
		Log:          d.log,
	}))
	add("0 0 22 * * *", scheduler.NewReconcileJob(scheduler.ReconcileJobConfig{
		Audit:     d.auditLog,
		Snapshots: d.snapshotRepo,
		Backup:    d.backupService,
		Cycles:    d.cycleManager,
		Risk:      d.riskManager,
		Positions: d.positionRepo,
		Orders:    d.orderManager,
		Log:       d.log,
	}))
	add("0 0 */6 * * *", scheduler.NewHealthCheckJob(d.db, d.log))
}
