package optimization

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/absfi/vaultd/internal/domain"
)

func adaptor(name string, cap float64, members ...domain.AssetID) domain.Adaptor {
	m := make(map[domain.AssetID]bool)
	for _, asset := range members {
		m[asset] = true
	}
	return domain.Adaptor{Name: name, Members: m, Cap: cap}
}

func sumWeights(weights map[domain.AssetID]float64, members map[domain.AssetID]bool) float64 {
	var sum float64
	for asset := range members {
		sum += weights[asset]
	}
	return sum
}

func totalWeight(weights map[domain.AssetID]float64) float64 {
	var sum float64
	for _, w := range weights {
		sum += w
	}
	return sum
}

func TestApplyAdaptorCaps_NoOpWhenUnderCap(t *testing.T) {
	weights := map[domain.AssetID]float64{1: 0.3, 2: 0.3, 3: 0.4}
	adaptors := []domain.Adaptor{adaptor("curve", 0.7, 1, 2)}

	got := ApplyAdaptorCaps(weights, adaptors)

	assert.InDelta(t, 0.3, got[1], 1e-9)
	assert.InDelta(t, 0.3, got[2], 1e-9)
	assert.InDelta(t, 0.4, got[3], 1e-9)
}

func TestApplyAdaptorCaps_ScalesOverCapGroup(t *testing.T) {
	weights := map[domain.AssetID]float64{1: 0.5, 2: 0.3, 3: 0.2}
	adaptors := []domain.Adaptor{adaptor("curve", 0.4, 1, 2)}

	got := ApplyAdaptorCaps(weights, adaptors)

	assert.InDelta(t, 1.0, totalWeight(got), 1e-6)
	assert.LessOrEqual(t, sumWeights(got, adaptors[0].Members), adaptors[0].Cap+1e-6)
	// The uncapped asset absorbs the freed weight.
	assert.Greater(t, got[3], 0.2)
}

func TestApplyAdaptorCaps_HoldsAfterRenormalization(t *testing.T) {
	// Scaling asset 1 to the cap then renormalizing would push it back over;
	// the fixed-point loop must keep the cap.
	weights := map[domain.AssetID]float64{1: 0.8, 2: 0.2}
	adaptors := []domain.Adaptor{adaptor("aave", 0.5, 1)}

	got := ApplyAdaptorCaps(weights, adaptors)

	assert.InDelta(t, 1.0, totalWeight(got), 1e-6)
	assert.LessOrEqual(t, got[1], 0.5+1e-6)
	assert.InDelta(t, 0.5, got[2], 1e-6)
}

func TestApplyAdaptorCaps_MultipleAdaptors(t *testing.T) {
	weights := map[domain.AssetID]float64{1: 0.4, 2: 0.3, 3: 0.2, 4: 0.1}
	adaptors := []domain.Adaptor{
		adaptor("curve", 0.3, 1),
		adaptor("aave", 0.35, 2, 3),
	}

	got := ApplyAdaptorCaps(weights, adaptors)

	assert.InDelta(t, 1.0, totalWeight(got), 1e-6)
	for _, a := range adaptors {
		assert.LessOrEqual(t, sumWeights(got, a.Members), a.Cap+1e-6, "cap for %s", a.Name)
	}
}

func TestApplyAdaptorCaps_NoAdaptors(t *testing.T) {
	weights := map[domain.AssetID]float64{1: 0.6, 2: 0.4}

	got := ApplyAdaptorCaps(weights, nil)

	assert.InDelta(t, 0.6, got[1], 1e-9)
	assert.InDelta(t, 0.4, got[2], 1e-9)
}

func TestApplyAdaptorCaps_DoesNotMutateInput(t *testing.T) {
	weights := map[domain.AssetID]float64{1: 0.9, 2: 0.1}
	ApplyAdaptorCaps(weights, []domain.Adaptor{adaptor("curve", 0.2, 1)})

	assert.Equal(t, 0.9, weights[1])
}
