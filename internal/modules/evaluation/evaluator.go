// Package evaluation computes utilization, gates the reallocation decision,
// and generates reallocation actions.
package evaluation

import (
	"math"
	"sort"

	"github.com/rs/zerolog"

	"github.com/absfi/vaultd/internal/domain"
)

// Evaluator compares a vault's current allocation against an optimization
// target and decides whether moving capital is worth it.
type Evaluator struct {
	threshold float64
	log       zerolog.Logger
}

// NewEvaluator creates a new reallocation evaluator. threshold is the
// relative band around 1.0 inside which the allocation counts as on-target.
func NewEvaluator(threshold float64, log zerolog.Logger) *Evaluator {
	return &Evaluator{
		threshold: threshold,
		log:       log.With().Str("component", "evaluator").Logger(),
	}
}

// Utilization computes per-asset current/target ratios over the union of
// both allocations. Overall is the median of the finite ratios; the median
// keeps one drained or overfunded pool from dominating the decision.
func Utilization(current, target map[domain.AssetID]float64) domain.UtilizationReport {
	assets := unionAssets(current, target)

	report := domain.UtilizationReport{Overall: 1.0}
	var finite []float64

	for _, asset := range assets {
		c := current[asset]
		tg := target[asset]

		var ratio float64
		switch {
		case c == 0 && tg == 0:
			ratio = 0
		case tg == 0:
			ratio = math.Inf(1)
		default:
			ratio = c / tg
		}

		report.PerAsset = append(report.PerAsset, domain.AssetUtilization{AssetID: asset, Ratio: ratio})
		if !math.IsInf(ratio, 0) {
			finite = append(finite, ratio)
		}
	}

	if len(finite) > 0 {
		report.Overall = median(finite)
	}

	return report
}

// Evaluate produces the reallocation plan for one decision cycle.
func (e *Evaluator) Evaluate(vaultID domain.VaultID, current, target map[domain.AssetID]float64) domain.ReallocationPlan {
	report := Utilization(current, target)

	plan := domain.ReallocationPlan{
		VaultID:     vaultID,
		Utilization: report,
	}

	// Inside the band the allocation is close enough; don't churn.
	if report.Overall >= 1-e.threshold && report.Overall <= 1+e.threshold {
		e.log.Debug().
			Int64("vault_id", int64(vaultID)).
			Float64("overall", report.Overall).
			Msg("Utilization within threshold, no reallocation")
		return plan
	}

	assets := unionAssets(current, target)

	var diffSum float64
	for _, asset := range assets {
		c := current[asset]
		tg := target[asset]

		diff := relativeDifference(c, tg)
		if diff == 0 {
			continue
		}

		diffSum += diff
		plan.Actions = append(plan.Actions, domain.ReallocationAction{
			AssetID: asset,
			Delta:   tg - c,
		})
	}

	if len(assets) > 0 {
		plan.NeedsReallocation = diffSum/float64(len(assets)) > e.threshold
	}

	e.log.Info().
		Int64("vault_id", int64(vaultID)).
		Float64("overall", report.Overall).
		Float64("diff_sum", diffSum).
		Int("actions", len(plan.Actions)).
		Bool("needs_reallocation", plan.NeedsReallocation).
		Msg("Reallocation evaluated")

	return plan
}

// relativeDifference is asymmetric by design: it reports the larger of the
// shortfall relative to target and the excess relative to current, so both
// under- and over-allocation register at full strength.
func relativeDifference(current, target float64) float64 {
	switch {
	case current == 0 && target == 0:
		return 0
	case current == 0 || target == 0:
		return 1.0
	default:
		return math.Max((target-current)/target, (current-target)/current)
	}
}

func unionAssets(current, target map[domain.AssetID]float64) []domain.AssetID {
	seen := make(map[domain.AssetID]bool, len(current)+len(target))
	for asset := range current {
		seen[asset] = true
	}
	for asset := range target {
		seen[asset] = true
	}

	assets := make([]domain.AssetID, 0, len(seen))
	for asset := range seen {
		assets = append(assets, asset)
	}
	sort.Slice(assets, func(i, j int) bool { return assets[i] < assets[j] })
	return assets
}

// median averages the two middle values for even-length input.
func median(values []float64) float64 {
	sorted := make([]float64, len(values))
	copy(sorted, values)
	sort.Float64s(sorted)

	mid := len(sorted) / 2
	if len(sorted)%2 == 1 {
		return sorted[mid]
	}
	return (sorted[mid-1] + sorted[mid]) / 2
}
