// Package di provides dependency injection wiring for vaultd.
//
// The Container is the single source of truth for all service instances. It
// is created by Wire() and handed to the composition root.
package di

import (
	"github.com/absfi/vaultd/internal/database"
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
	"github.com/absfi/vaultd/internal/scheduler"
)

// Container holds all dependencies for the application.
type Container struct {
	// Databases (4-database architecture)
	LedgerDB  *database.DB // Append-only allocation ledger
	ConfigDB  *database.DB // Vault configurations
	HistoryDB *database.DB // Return observation history
	CacheDB   *database.DB // Return series snapshots

	// Events
	EventBus     *events.Bus
	EventManager *events.Manager

	// Repositories
	LedgerRepo  *ledger.Repository
	ReturnsRepo *returns.Repository

	// Services
	Reconciler    *ledger.Reconciler
	Registry      *registry.Service
	ReturnsCache  *returns.Cache
	SnapshotStore *returns.SnapshotStore
	Optimizer     *optimization.WeightOptimizer
	Evaluator     *evaluation.Evaluator
	Executor      *execution.Executor
	NotifyQueue   *notify.Queue
	Engine        *engine.Engine
	Cascade       *cascade.Coordinator
	Handlers      *engine.Handlers

	// Feed consumer; nil when no feed URL is configured.
	FeedClient *feed.Client

	// Background maintenance
	Scheduler *scheduler.Scheduler
}

// Close closes every database. Safe to call with partially initialized
// containers.
func (c *Container) Close() {
	for _, db := range []*database.DB{c.LedgerDB, c.ConfigDB, c.HistoryDB, c.CacheDB} {
		if db != nil {
			db.Close()
		}
	}
}
