package optimization

import (
	"context"
	"fmt"
	"math"
	"sort"
	"time"

	"github.com/rs/zerolog"
	"gonum.org/v1/gonum/mat"

	"github.com/absfi/vaultd/internal/domain"
	"github.com/absfi/vaultd/internal/modules/returns"
)

// WeightOptimizer assembles aligned return series for a vault's allowed
// pools, solves for target weights, applies adaptor caps, and denominates
// the result into absolute amounts. A failed optimization returns an error
// and no partial result.
type WeightOptimizer struct {
	provider returns.Provider
	solver   Solver
	lookback time.Duration
	log      zerolog.Logger
}

// NewWeightOptimizer creates a new weight optimizer.
func NewWeightOptimizer(provider returns.Provider, solver Solver, lookback time.Duration, log zerolog.Logger) *WeightOptimizer {
	return &WeightOptimizer{
		provider: provider,
		solver:   solver,
		lookback: lookback,
		log:      log.With().Str("component", "optimizer").Logger(),
	}
}

// Optimize computes the target allocation for a vault.
func (o *WeightOptimizer) Optimize(ctx context.Context, vault *domain.Vault) (*domain.OptimizationResult, error) {
	assets, matrix, err := o.assembleReturnMatrix(ctx, vault)
	if err != nil {
		return nil, err
	}

	solved, err := o.solver.Solve(ctx, matrix, vault.Strategy)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", domain.ErrOptimizationFailure, err)
	}
	if len(solved) != len(assets) {
		return nil, fmt.Errorf("%w: solver returned %d weights for %d assets",
			domain.ErrOptimizationFailure, len(solved), len(assets))
	}

	weights := make(map[domain.AssetID]float64, len(assets))
	for i, asset := range assets {
		weights[asset] = solved[i]
	}

	weights = ApplyAdaptorCaps(weights, vault.Adaptors)

	// Denominate by the vault's total; a vault with no prior allocation gets
	// unit denomination so targets are directly the weights.
	total := vault.TotalAllocated()
	if total <= 0 {
		total = 1.0
	}

	target := make(map[domain.AssetID]float64, len(weights))
	for asset, w := range weights {
		target[asset] = w * total
	}

	rows, _ := matrix.Dims()
	o.log.Info().
		Int64("vault_id", int64(vault.ID)).
		Str("strategy", string(vault.Strategy)).
		Int("assets", len(assets)).
		Int("aligned_rows", rows).
		Float64("total", total).
		Msg("Target allocation computed")

	return &domain.OptimizationResult{
		VaultID:          vault.ID,
		TargetAllocation: target,
		Weights:          weights,
		ComputedAt:       time.Now().UTC(),
	}, nil
}

// assembleReturnMatrix aligns every allowed pool's series on the common time
// index, drops rows containing NaN or Inf, and returns the matrix with its
// column asset ordering.
func (o *WeightOptimizer) assembleReturnMatrix(ctx context.Context, vault *domain.Vault) ([]domain.AssetID, *mat.Dense, error) {
	assets := make([]domain.AssetID, 0, len(vault.AllowedPools))
	for asset := range vault.AllowedPools {
		assets = append(assets, asset)
	}
	sort.Slice(assets, func(i, j int) bool { return assets[i] < assets[j] })

	series := make(map[domain.AssetID]map[int64]float64, len(assets))
	var commonIndex map[int64]bool

	for _, asset := range assets {
		obs, err := o.provider.GetReturns(ctx, asset, o.lookback)
		if err != nil {
			return nil, nil, fmt.Errorf("%w: fetching returns for asset %s: %v", domain.ErrDataUnavailable, asset, err)
		}
		if len(obs) == 0 {
			return nil, nil, fmt.Errorf("%w: no return series for asset %s", domain.ErrDataUnavailable, asset)
		}

		byTime := make(map[int64]float64, len(obs))
		for _, ob := range obs {
			byTime[ob.Timestamp.Unix()] = ob.APY
		}
		series[asset] = byTime

		if commonIndex == nil {
			commonIndex = make(map[int64]bool, len(byTime))
			for ts := range byTime {
				commonIndex[ts] = true
			}
		} else {
			for ts := range commonIndex {
				if _, ok := byTime[ts]; !ok {
					delete(commonIndex, ts)
				}
			}
		}
	}

	timestamps := make([]int64, 0, len(commonIndex))
	for ts := range commonIndex {
		timestamps = append(timestamps, ts)
	}
	sort.Slice(timestamps, func(i, j int) bool { return timestamps[i] < timestamps[j] })

	// Drop rows with NaN/Inf anywhere.
	var rows [][]float64
	for _, ts := range timestamps {
		row := make([]float64, len(assets))
		clean := true
		for i, asset := range assets {
			v := series[asset][ts]
			if math.IsNaN(v) || math.IsInf(v, 0) {
				clean = false
				break
			}
			row[i] = v
		}
		if clean {
			rows = append(rows, row)
		}
	}

	if len(rows) < 2 {
		return nil, nil, fmt.Errorf("%w: %d valid aligned return rows for vault %s, need at least 2",
			domain.ErrDataQuality, len(rows), vault.ID)
	}

	matrix := mat.NewDense(len(rows), len(assets), nil)
	for i, row := range rows {
		matrix.SetRow(i, row)
	}

	return assets, matrix, nil
}
