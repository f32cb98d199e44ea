package execution

import (
	"context"
	"math"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/absfi/vaultd/internal/domain"
)

// marketImpactRate is a flat placeholder estimate until a depth-aware model
// replaces it.
const marketImpactRate = 0.001

// Executor turns an approved plan into a reallocation summary. Partial fills
// are accepted: underlying liquidity can be transiently constrained, and
// refusing to move anything would be worse than moving most of it.
type Executor struct {
	checker *Checker
	log     zerolog.Logger
}

// NewExecutor creates a new executor.
func NewExecutor(checker *Checker, log zerolog.Logger) *Executor {
	return &Executor{
		checker: checker,
		log:     log.With().Str("component", "executor").Logger(),
	}
}

// Execute checks liquidity and composes the final summary. A lookup failure
// aborts with no summary; there is no partial execution on error.
func (e *Executor) Execute(ctx context.Context, vaultID domain.VaultID, actions []domain.ReallocationAction) (*domain.ReallocationSummary, error) {
	assessment, err := e.checker.Check(ctx, actions)
	if err != nil {
		return nil, err
	}

	var total float64
	for _, action := range actions {
		total += math.Abs(action.Delta)
	}

	status := domain.SummaryMatched
	if !assessment.FullyMatched {
		status = domain.SummaryPartial
	}

	summary := &domain.ReallocationSummary{
		ID:                    uuid.New().String(),
		VaultID:               vaultID,
		Status:                status,
		Actions:               actions,
		Liquidity:             *assessment,
		TotalReallocation:     total,
		EstimatedMarketImpact: total * marketImpactRate,
		Timestamp:             time.Now().UTC(),
	}

	e.log.Info().
		Str("reallocation_id", summary.ID).
		Int64("vault_id", int64(vaultID)).
		Str("status", string(status)).
		Int("actions", len(actions)).
		Float64("total", total).
		Float64("shortfall", assessment.Shortfall).
		Msg("Reallocation executed")

	return summary, nil
}

// ApplyToAllocation returns the allocation that results from applying the
// plan's deltas to the current allocation. Assets driven to zero or below
// are removed.
func ApplyToAllocation(current map[domain.AssetID]float64, actions []domain.ReallocationAction) map[domain.AssetID]float64 {
	next := make(map[domain.AssetID]float64, len(current))
	for asset, amount := range current {
		next[asset] = amount
	}
	for _, action := range actions {
		next[action.AssetID] += action.Delta
	}
	for asset, amount := range next {
		if amount <= 0 {
			delete(next, asset)
		}
	}
	return next
}
