package evaluation

import (
	"math"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/absfi/vaultd/internal/domain"
)

func TestUtilization_MedianOfFiniteRatios(t *testing.T) {
	current := map[domain.AssetID]float64{
		1: 100,
		2: 5858502.99,
		3: 861284.88,
		4: 874894.77,
		5: 455947.62,
	}
	target := map[domain.AssetID]float64{
		1: 200000,
		2: 2900000,
		3: 861284,
		4: 1800000,
		5: 227000,
	}

	report := Utilization(current, target)
	require.Len(t, report.PerAsset, 5)

	// Ratios sorted: 0.0005, ~0.486, ~1.000001, ~2.0086, ~2.0202;
	// the median is asset 3's ratio.
	assert.InDelta(t, 861284.88/861284.0, report.Overall, 1e-9)
}

func TestUtilization_ZeroCases(t *testing.T) {
	current := map[domain.AssetID]float64{1: 0, 2: 50, 3: 100}
	target := map[domain.AssetID]float64{1: 0, 2: 0, 3: 100}

	report := Utilization(current, target)
	require.Len(t, report.PerAsset, 3)

	byAsset := make(map[domain.AssetID]float64)
	for _, u := range report.PerAsset {
		byAsset[u.AssetID] = u.Ratio
	}

	assert.Equal(t, 0.0, byAsset[1], "both zero")
	assert.True(t, math.IsInf(byAsset[2], 1), "target zero, current not")
	assert.Equal(t, 1.0, byAsset[3])

	// Overall is the median of the finite ratios {0, 1}.
	assert.InDelta(t, 0.5, report.Overall, 1e-9)
}

func TestUtilization_NoFiniteRatiosDefaultsToOne(t *testing.T) {
	current := map[domain.AssetID]float64{1: 100}
	target := map[domain.AssetID]float64{}

	report := Utilization(current, target)
	assert.Equal(t, 1.0, report.Overall)
}

func TestUtilization_EmptyAllocationsDefaultToOne(t *testing.T) {
	report := Utilization(nil, nil)
	assert.Equal(t, 1.0, report.Overall)
	assert.Empty(t, report.PerAsset)
}

func TestEvaluate_NoOpWhenOnTarget(t *testing.T) {
	e := NewEvaluator(0.05, zerolog.Nop())

	allocation := map[domain.AssetID]float64{1: 100, 2: 200}
	plan := e.Evaluate(7, allocation, allocation)

	assert.False(t, plan.NeedsReallocation)
	assert.Empty(t, plan.Actions)
	assert.Equal(t, 1.0, plan.Utilization.Overall)
}

func TestEvaluate_WithinThresholdBand(t *testing.T) {
	e := NewEvaluator(0.05, zerolog.Nop())

	current := map[domain.AssetID]float64{1: 103, 2: 198}
	target := map[domain.AssetID]float64{1: 100, 2: 200}

	plan := e.Evaluate(7, current, target)

	assert.False(t, plan.NeedsReallocation)
	assert.Empty(t, plan.Actions, "gate stops action generation entirely")
}

func TestEvaluate_GeneratesActionsOutsideBand(t *testing.T) {
	e := NewEvaluator(0.05, zerolog.Nop())

	current := map[domain.AssetID]float64{1: 50, 2: 200}
	target := map[domain.AssetID]float64{1: 100, 2: 100}

	plan := e.Evaluate(7, current, target)

	assert.True(t, plan.NeedsReallocation)
	require.Len(t, plan.Actions, 2)

	byAsset := make(map[domain.AssetID]float64)
	for _, a := range plan.Actions {
		byAsset[a.AssetID] = a.Delta
	}
	assert.Equal(t, 50.0, byAsset[1])
	assert.Equal(t, -100.0, byAsset[2])
}

func TestEvaluate_SkipsZeroDifferenceAssets(t *testing.T) {
	e := NewEvaluator(0.05, zerolog.Nop())

	current := map[domain.AssetID]float64{1: 100, 2: 10}
	target := map[domain.AssetID]float64{1: 100, 2: 500}

	plan := e.Evaluate(7, current, target)

	require.Len(t, plan.Actions, 1)
	assert.Equal(t, domain.AssetID(2), plan.Actions[0].AssetID)
	assert.Equal(t, 490.0, plan.Actions[0].Delta)
}

func TestEvaluate_NewAssetInTargetOnly(t *testing.T) {
	e := NewEvaluator(0.05, zerolog.Nop())

	// Vault currently holds nothing; the target seeds two pools. The
	// overall ratio is 0 (far outside the band) and every asset moves.
	current := map[domain.AssetID]float64{}
	target := map[domain.AssetID]float64{1: 60, 2: 40}

	plan := e.Evaluate(7, current, target)

	assert.True(t, plan.NeedsReallocation)
	require.Len(t, plan.Actions, 2)
}

func TestRelativeDifference(t *testing.T) {
	assert.Equal(t, 0.0, relativeDifference(0, 0))
	assert.Equal(t, 1.0, relativeDifference(0, 50))
	assert.Equal(t, 1.0, relativeDifference(50, 0))

	// Under-allocated: shortfall relative to target dominates.
	assert.InDelta(t, 0.5, relativeDifference(50, 100), 1e-9)
	// Over-allocated: excess relative to current dominates.
	assert.InDelta(t, 0.5, relativeDifference(100, 50), 1e-9)
}
