// Package execution validates withdrawal feasibility and produces the final
// reallocation summary for a decision cycle.
package execution

import (
	"context"
	"fmt"
	"math"

	"github.com/rs/zerolog"

	"github.com/absfi/vaultd/internal/domain"
)

// LiquidityLookup answers how much of an asset can actually be withdrawn
// right now. Implementations wrap whatever venue or bridge the deployment
// talks to.
type LiquidityLookup interface {
	AvailableLiquidity(ctx context.Context, assetID domain.AssetID, requested float64) (float64, error)
}

// Checker assesses whether a plan's withdrawals can be serviced.
type Checker struct {
	lookup LiquidityLookup
	log    zerolog.Logger
}

// NewChecker creates a new liquidity checker.
func NewChecker(lookup LiquidityLookup, log zerolog.Logger) *Checker {
	return &Checker{
		lookup: lookup,
		log:    log.With().Str("component", "liquidity").Logger(),
	}
}

// Check partitions actions into withdrawals and deposits and queries the
// lookup for every withdrawal. Insufficient liquidity is not an error: it
// shows up as a shortfall with HasLiquidity still true. Only a lookup
// failure produces an error.
func (c *Checker) Check(ctx context.Context, actions []domain.ReallocationAction) (*domain.LiquidityAssessment, error) {
	assessment := &domain.LiquidityAssessment{
		HasLiquidity: true,
		FullyMatched: true,
	}

	for _, action := range actions {
		if action.Delta >= 0 {
			assessment.TotalDeposit += action.Delta
			continue
		}

		requested := -action.Delta
		assessment.TotalWithdraw += requested

		available, err := c.lookup.AvailableLiquidity(ctx, action.AssetID, requested)
		if err != nil {
			assessment.HasLiquidity = false
			assessment.FullyMatched = false
			return assessment, fmt.Errorf("%w: lookup for asset %s: %v", domain.ErrLiquidity, action.AssetID, err)
		}

		assessment.PerAction = append(assessment.PerAction, domain.ActionLiquidity{
			AssetID:   action.AssetID,
			Requested: requested,
			Available: available,
		})

		shortfall := math.Max(0, requested-available)
		if shortfall > 0 {
			assessment.Shortfall += shortfall
			assessment.FullyMatched = false
			c.log.Warn().
				Int64("asset_id", int64(action.AssetID)).
				Float64("requested", requested).
				Float64("available", available).
				Msg("Withdrawal exceeds available liquidity")
		}
	}

	return assessment, nil
}
