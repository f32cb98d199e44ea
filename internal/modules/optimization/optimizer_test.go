package optimization

import (
	"context"
	"fmt"
	"math"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gonum.org/v1/gonum/mat"

	"github.com/absfi/vaultd/internal/domain"
)

// stubProvider serves fixed series per asset.
type stubProvider struct {
	series map[domain.AssetID][]domain.ReturnObservation
	err    error
}

func (p *stubProvider) GetReturns(ctx context.Context, assetID domain.AssetID, lookback time.Duration) ([]domain.ReturnObservation, error) {
	if p.err != nil {
		return nil, p.err
	}
	return p.series[assetID], nil
}

// equalSolver returns uniform weights, recording the matrix it was given.
type equalSolver struct {
	rows, cols int
	err        error
}

func (s *equalSolver) Solve(ctx context.Context, returns *mat.Dense, objective domain.Strategy) ([]float64, error) {
	if s.err != nil {
		return nil, s.err
	}
	s.rows, s.cols = returns.Dims()
	weights := make([]float64, s.cols)
	for i := range weights {
		weights[i] = 1.0 / float64(s.cols)
	}
	return weights, nil
}

func seriesAt(asset domain.AssetID, apys ...float64) []domain.ReturnObservation {
	base := time.Date(2026, 8, 1, 0, 0, 0, 0, time.UTC)
	obs := make([]domain.ReturnObservation, len(apys))
	for i, apy := range apys {
		obs[i] = domain.ReturnObservation{
			AssetID:   asset,
			APY:       apy,
			Timestamp: base.Add(time.Duration(i) * 24 * time.Hour),
		}
	}
	return obs
}

func optimizerVault(current map[domain.AssetID]float64, adaptors ...domain.Adaptor) *domain.Vault {
	return &domain.Vault{
		ID:                1,
		Strategy:          domain.StrategyMinRisk,
		AllowedPools:      map[domain.AssetID]bool{101: true, 102: true},
		Adaptors:          adaptors,
		CurrentAllocation: current,
	}
}

func TestOptimize_DenominatesByVaultTotal(t *testing.T) {
	provider := &stubProvider{series: map[domain.AssetID][]domain.ReturnObservation{
		101: seriesAt(101, 0.05, 0.06, 0.04),
		102: seriesAt(102, 0.10, 0.09, 0.11),
	}}
	solver := &equalSolver{}
	o := NewWeightOptimizer(provider, solver, 30*24*time.Hour, zerolog.Nop())

	result, err := o.Optimize(context.Background(), optimizerVault(map[domain.AssetID]float64{101: 600, 102: 400}))
	require.NoError(t, err)

	assert.Equal(t, 3, solver.rows)
	assert.Equal(t, 2, solver.cols)
	assert.InDelta(t, 500.0, result.TargetAllocation[101], 1e-6)
	assert.InDelta(t, 500.0, result.TargetAllocation[102], 1e-6)
	assert.InDelta(t, 0.5, result.Weights[101], 1e-6)
}

func TestOptimize_UnitDenominationWithoutPriorAllocation(t *testing.T) {
	provider := &stubProvider{series: map[domain.AssetID][]domain.ReturnObservation{
		101: seriesAt(101, 0.05, 0.06),
		102: seriesAt(102, 0.10, 0.09),
	}}
	o := NewWeightOptimizer(provider, &equalSolver{}, 30*24*time.Hour, zerolog.Nop())

	result, err := o.Optimize(context.Background(), optimizerVault(nil))
	require.NoError(t, err)

	assert.InDelta(t, 0.5, result.TargetAllocation[101], 1e-6)
	assert.InDelta(t, 0.5, result.TargetAllocation[102], 1e-6)
}

func TestOptimize_MissingSeriesIsDataUnavailable(t *testing.T) {
	provider := &stubProvider{series: map[domain.AssetID][]domain.ReturnObservation{
		101: seriesAt(101, 0.05, 0.06),
		// 102 has no series at all.
	}}
	o := NewWeightOptimizer(provider, &equalSolver{}, 30*24*time.Hour, zerolog.Nop())

	_, err := o.Optimize(context.Background(), optimizerVault(nil))
	require.ErrorIs(t, err, domain.ErrDataUnavailable)
}

func TestOptimize_NaNRowsDroppedThenDataQuality(t *testing.T) {
	// Three aligned rows, two poisoned by NaN/Inf, leaving one valid row.
	provider := &stubProvider{series: map[domain.AssetID][]domain.ReturnObservation{
		101: seriesAt(101, math.NaN(), 0.06, 0.05),
		102: seriesAt(102, 0.10, math.Inf(1), 0.11),
	}}
	o := NewWeightOptimizer(provider, &equalSolver{}, 30*24*time.Hour, zerolog.Nop())

	_, err := o.Optimize(context.Background(), optimizerVault(nil))
	require.ErrorIs(t, err, domain.ErrDataQuality)
}

func TestOptimize_MisalignedSeriesUseCommonIndexOnly(t *testing.T) {
	base := seriesAt(101, 0.05, 0.06, 0.04)
	// Asset 102 misses the middle observation.
	partial := []domain.ReturnObservation{base[0], base[2]}
	for i := range partial {
		partial[i].AssetID = 102
		partial[i].APY = 0.1
	}

	provider := &stubProvider{series: map[domain.AssetID][]domain.ReturnObservation{
		101: base,
		102: partial,
	}}
	solver := &equalSolver{}
	o := NewWeightOptimizer(provider, solver, 30*24*time.Hour, zerolog.Nop())

	_, err := o.Optimize(context.Background(), optimizerVault(nil))
	require.NoError(t, err)
	assert.Equal(t, 2, solver.rows, "only the common timestamps survive alignment")
}

func TestOptimize_SolverFailureIsOptimizationFailure(t *testing.T) {
	provider := &stubProvider{series: map[domain.AssetID][]domain.ReturnObservation{
		101: seriesAt(101, 0.05, 0.06),
		102: seriesAt(102, 0.10, 0.09),
	}}
	o := NewWeightOptimizer(provider, &equalSolver{err: fmt.Errorf("did not converge")}, 30*24*time.Hour, zerolog.Nop())

	result, err := o.Optimize(context.Background(), optimizerVault(nil))
	require.ErrorIs(t, err, domain.ErrOptimizationFailure)
	assert.Nil(t, result, "no partial results on failure")
}

func TestOptimize_AdaptorCapsHoldEndToEnd(t *testing.T) {
	provider := &stubProvider{series: map[domain.AssetID][]domain.ReturnObservation{
		101: seriesAt(101, 0.050, 0.051, 0.049, 0.050),
		102: seriesAt(102, 0.10, -0.05, 0.12, -0.08),
	}}
	o := NewWeightOptimizer(provider, NewMVSolver(), 30*24*time.Hour, zerolog.Nop())

	// Min-risk favors asset 101 heavily; the adaptor cap forces it down.
	capped := adaptor("stable", 0.3, 101)
	result, err := o.Optimize(context.Background(), optimizerVault(nil, capped))
	require.NoError(t, err)

	var sum float64
	for _, w := range result.Weights {
		sum += w
	}
	assert.InDelta(t, 1.0, sum, 1e-6)
	assert.LessOrEqual(t, result.Weights[101], 0.3+1e-6)
}
