// Package engine drives the per-vault decision pipeline: reconcile the
// ledger, optimize target weights, evaluate utilization, and execute the
// resulting plan. One inbound event drives one full pass at a time.
package engine

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/absfi/vaultd/internal/config"
	"github.com/absfi/vaultd/internal/domain"
	"github.com/absfi/vaultd/internal/events"
	"github.com/absfi/vaultd/internal/modules/evaluation"
	"github.com/absfi/vaultd/internal/modules/execution"
	"github.com/absfi/vaultd/internal/modules/ledger"
	"github.com/absfi/vaultd/internal/modules/optimization"
	"github.com/absfi/vaultd/internal/modules/registry"
	"github.com/absfi/vaultd/internal/notify"
)

// Engine owns one pass of the decision pipeline per vault. It implements
// the cascade Runner contract: failures are folded into outcomes, and every
// cycle publishes exactly one outcome to the notification queue.
type Engine struct {
	registry   *registry.Service
	reconciler *ledger.Reconciler
	optimizer  *optimization.WeightOptimizer
	evaluator  *evaluation.Evaluator
	executor   *execution.Executor
	queue      *notify.Queue
	manager    *events.Manager
	cfg        *config.Config
	log        zerolog.Logger
}

// New creates a new decision engine.
func New(
	reg *registry.Service,
	reconciler *ledger.Reconciler,
	optimizer *optimization.WeightOptimizer,
	evaluator *evaluation.Evaluator,
	executor *execution.Executor,
	queue *notify.Queue,
	manager *events.Manager,
	cfg *config.Config,
	log zerolog.Logger,
) *Engine {
	return &Engine{
		registry:   reg,
		reconciler: reconciler,
		optimizer:  optimizer,
		evaluator:  evaluator,
		executor:   executor,
		queue:      queue,
		manager:    manager,
		cfg:        cfg,
		log:        log.With().Str("service", "engine").Logger(),
	}
}

// RunVault executes one full decision cycle for a vault under its per-vault
// lock, so concurrent cascades targeting the same vault serialize.
func (e *Engine) RunVault(ctx context.Context, vaultID domain.VaultID) *domain.Outcome {
	unlock, err := e.registry.LockVault(vaultID)
	if err != nil {
		return e.finish(errorOutcome(vaultID, err))
	}
	defer unlock()

	outcome := e.runLocked(ctx, vaultID)
	return e.finish(outcome)
}

// runLocked is the pipeline body. The caller holds the vault lock.
func (e *Engine) runLocked(ctx context.Context, vaultID domain.VaultID) *domain.Outcome {
	// Reconcile the ledger first so the decision starts from truth, not
	// from whatever the last cycle left behind.
	if err := e.ReconcileVault(vaultID); err != nil {
		return errorOutcome(vaultID, fmt.Errorf("reconciliation: %w", err))
	}

	vault, err := e.registry.Get(vaultID)
	if err != nil {
		return errorOutcome(vaultID, err)
	}

	solveCtx, cancelSolve := context.WithTimeout(ctx, e.cfg.SolverTimeout)
	result, err := e.optimizer.Optimize(solveCtx, vault)
	cancelSolve()
	if err != nil {
		// Missing or dirty data means the vault is not ready to reoptimize;
		// that is a warning, not an engine failure.
		if errors.Is(err, domain.ErrDataUnavailable) || errors.Is(err, domain.ErrDataQuality) {
			return &domain.Outcome{
				VaultID:   vaultID,
				Class:     domain.OutcomeWarning,
				Message:   err.Error(),
				Timestamp: time.Now().UTC(),
			}
		}
		return errorOutcome(vaultID, err)
	}

	plan := e.evaluator.Evaluate(vaultID, vault.CurrentAllocation, result.TargetAllocation)
	if !plan.NeedsReallocation {
		return &domain.Outcome{
			VaultID:     vaultID,
			Class:       domain.OutcomeNoChange,
			Message:     "allocation within threshold",
			Utilization: &plan.Utilization,
			Timestamp:   time.Now().UTC(),
		}
	}

	execCtx, cancelExec := context.WithTimeout(ctx, e.cfg.LiquidityTimeout)
	summary, err := e.executor.Execute(execCtx, vaultID, plan.Actions)
	cancelExec()
	if err != nil {
		out := errorOutcome(vaultID, err)
		out.Utilization = &plan.Utilization
		return out
	}

	// The allocation is replaced wholesale only now, after a fully computed
	// successful result.
	next := execution.ApplyToAllocation(vault.CurrentAllocation, summary.Actions)
	if err := e.registry.ReplaceAllocation(vaultID, next); err != nil {
		return errorOutcome(vaultID, err)
	}

	class := domain.OutcomeSuccess
	message := "reallocation executed"
	if summary.Status == domain.SummaryPartial {
		class = domain.OutcomePartial
		message = fmt.Sprintf("reallocation partially filled, shortfall %.4f", summary.Liquidity.Shortfall)
	}

	return &domain.Outcome{
		VaultID:     vaultID,
		Class:       class,
		Message:     message,
		Utilization: &plan.Utilization,
		Summary:     summary,
		Timestamp:   time.Now().UTC(),
	}
}

// ReconcileVault rebuilds one vault's allocation from its ledger and stores
// it in the registry.
func (e *Engine) ReconcileVault(vaultID domain.VaultID) error {
	result, err := e.reconciler.ReconcileVault(vaultID)
	if err != nil {
		return err
	}

	if err := e.registry.ReplaceAllocation(vaultID, result.Allocation); err != nil {
		return err
	}

	e.manager.Emit("engine", &events.VaultReconciledData{
		VaultID:      vaultID,
		Assets:       len(result.Allocation),
		DroppedRows:  result.DroppedRows,
		FromSnapshot: result.FromSnapshot,
	})

	return nil
}

// ReconcileAll rebuilds every registered vault's allocation. Called once at
// startup before the event loop begins.
func (e *Engine) ReconcileAll() error {
	vaults := e.registry.GetAll()
	for _, vault := range vaults {
		if err := e.ReconcileVault(vault.ID); err != nil {
			return fmt.Errorf("reconciling vault %s: %w", vault.ID, err)
		}
	}

	e.log.Info().Int("vaults", len(vaults)).Msg("Startup reconciliation complete")
	return nil
}

// finish publishes the outcome and returns it.
func (e *Engine) finish(outcome *domain.Outcome) *domain.Outcome {
	e.queue.Publish(*outcome)
	return outcome
}

func errorOutcome(vaultID domain.VaultID, err error) *domain.Outcome {
	return &domain.Outcome{
		VaultID:   vaultID,
		Class:     domain.OutcomeError,
		Message:   err.Error(),
		Timestamp: time.Now().UTC(),
	}
}
