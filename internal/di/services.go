package di

import (
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/absfi/vaultd/internal/config"
	"github.com/absfi/vaultd/internal/engine"
	"github.com/absfi/vaultd/internal/events"
	"github.com/absfi/vaultd/internal/feed"
	"github.com/absfi/vaultd/internal/modules/cascade"
	"github.com/absfi/vaultd/internal/modules/evaluation"
	"github.com/absfi/vaultd/internal/modules/execution"
	"github.com/absfi/vaultd/internal/modules/ledger"
	"github.com/absfi/vaultd/internal/modules/optimization"
	"github.com/absfi/vaultd/internal/modules/registry"
	"github.com/absfi/vaultd/internal/modules/returns"
	"github.com/absfi/vaultd/internal/notify"
)

// InitializeServices builds the service graph on top of the databases.
func InitializeServices(container *Container, cfg *config.Config, log zerolog.Logger) error {
	// Events
	container.EventBus = events.NewBus()
	container.EventManager = events.NewManager(container.EventBus, log)

	// Repositories
	container.LedgerRepo = ledger.NewRepository(container.LedgerDB.Conn(), log)
	container.ReturnsRepo = returns.NewRepository(container.HistoryDB.Conn(), log)

	// Vault registry, warmed from config.db.
	container.Registry = registry.NewService(registry.NewRepository(container.ConfigDB.Conn(), log), log)
	if err := container.Registry.LoadAll(); err != nil {
		return fmt.Errorf("failed to load vault registry: %w", err)
	}

	// Return series cache, warmed from the last snapshot.
	container.ReturnsCache = returns.NewCache(container.ReturnsRepo, 0, log)
	container.SnapshotStore = returns.NewSnapshotStore(container.CacheDB.Conn(), log)
	if err := container.SnapshotStore.Load(container.ReturnsCache); err != nil {
		log.Warn().Err(err).Msg("Failed to load return snapshots, starting with a cold cache")
	}

	// Decision pipeline
	container.Reconciler = ledger.NewReconciler(container.LedgerRepo, log)

	lookback := time.Duration(cfg.LookbackDays) * 24 * time.Hour
	container.Optimizer = optimization.NewWeightOptimizer(
		container.ReturnsCache,
		optimization.NewMVSolver(),
		lookback,
		log,
	)

	container.Evaluator = evaluation.NewEvaluator(cfg.ReallocationThreshold, log)

	liquidity := execution.NewPoolLiquidity(container.ReturnsRepo, log)
	container.Executor = execution.NewExecutor(execution.NewChecker(liquidity, log), log)

	container.NotifyQueue = notify.NewQueue(
		cfg.NotifyQueueSize,
		log,
		notify.NewLogSink(log),
		notify.NewBusSink(container.EventManager),
	)

	container.Engine = engine.New(
		container.Registry,
		container.Reconciler,
		container.Optimizer,
		container.Evaluator,
		container.Executor,
		container.NotifyQueue,
		container.EventManager,
		cfg,
		log,
	)

	container.Cascade = cascade.NewCoordinator(container.Registry, container.Engine, log)

	container.Handlers = engine.NewHandlers(
		container.Engine,
		container.Registry,
		container.ReturnsCache,
		container.LedgerRepo,
		container.Cascade,
		container.EventManager,
		log,
	)
	container.Handlers.Register(container.EventBus)

	if cfg.FeedURL != "" {
		container.FeedClient = feed.NewClient(cfg.FeedURL, container.EventManager, log)
	}

	return nil
}
