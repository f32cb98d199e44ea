// Package cascade fans a market update out to every vault whose allowed
// pools contain the updated asset.
package cascade

import (
	"context"
	"sync"

	"github.com/rs/zerolog"

	"github.com/absfi/vaultd/internal/domain"
)

// VaultFinder resolves which vaults an asset update affects.
type VaultFinder interface {
	VaultsAllowingAsset(asset domain.AssetID) []domain.VaultID
}

// Runner executes one full decision cycle for a vault. Failures are folded
// into the returned outcome, never into an error.
type Runner interface {
	RunVault(ctx context.Context, vaultID domain.VaultID) *domain.Outcome
}

// Coordinator runs the single-level fan-out. An in-flight set guards against
// re-entrant updates targeting a vault that is already mid-cycle: such
// vaults are skipped rather than queued, because the running cycle will pick
// up the newer state on its own next trigger.
type Coordinator struct {
	finder VaultFinder
	runner Runner
	log    zerolog.Logger

	mu       sync.Mutex
	inFlight map[domain.VaultID]bool
}

// NewCoordinator creates a new cascade coordinator.
func NewCoordinator(finder VaultFinder, runner Runner, log zerolog.Logger) *Coordinator {
	return &Coordinator{
		finder:   finder,
		runner:   runner,
		log:      log.With().Str("component", "cascade").Logger(),
		inFlight: make(map[domain.VaultID]bool),
	}
}

// Result is the fan-out outcome for one market update.
type Result struct {
	Outcomes map[domain.VaultID]*domain.Outcome
	Skipped  []domain.VaultID
}

// OnMarketUpdate reoptimizes every vault allowing the updated asset. Each
// affected vault runs independently; one vault's failure does not stop the
// others.
func (c *Coordinator) OnMarketUpdate(ctx context.Context, asset domain.AssetID) *Result {
	vaultIDs := c.finder.VaultsAllowingAsset(asset)

	result := &Result{
		Outcomes: make(map[domain.VaultID]*domain.Outcome, len(vaultIDs)),
	}

	c.log.Debug().
		Int64("asset_id", int64(asset)).
		Int("affected_vaults", len(vaultIDs)).
		Msg("Market update cascade started")

	for _, vaultID := range vaultIDs {
		if !c.markInFlight(vaultID) {
			c.log.Debug().
				Int64("vault_id", int64(vaultID)).
				Msg("Vault already mid-cycle, skipping")
			result.Skipped = append(result.Skipped, vaultID)
			continue
		}

		outcome := c.runner.RunVault(ctx, vaultID)
		c.clearInFlight(vaultID)

		result.Outcomes[vaultID] = outcome
	}

	c.log.Info().
		Int64("asset_id", int64(asset)).
		Int("processed", len(result.Outcomes)).
		Int("skipped", len(result.Skipped)).
		Msg("Market update cascade finished")

	return result
}

func (c *Coordinator) markInFlight(vaultID domain.VaultID) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.inFlight[vaultID] {
		return false
	}
	c.inFlight[vaultID] = true
	return true
}

func (c *Coordinator) clearInFlight(vaultID domain.VaultID) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.inFlight, vaultID)
}
