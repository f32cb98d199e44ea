package optimization

import (
	"github.com/absfi/vaultd/internal/domain"
)

const capTolerance = 1e-9

// maxCapPasses bounds the scale/renormalize loop when caps are mutually
// infeasible (e.g. every asset capped and caps summing below 1).
const maxCapPasses = 100

// ApplyAdaptorCaps scales down adaptor groups whose summed weight exceeds
// their cap, then renormalizes every weight so the total is 1. Because
// renormalization can push a previously capped group back over its limit,
// the scale/renormalize pass repeats until all caps hold. The input map is
// not modified.
func ApplyAdaptorCaps(weights map[domain.AssetID]float64, adaptors []domain.Adaptor) map[domain.AssetID]float64 {
	out := make(map[domain.AssetID]float64, len(weights))
	for asset, w := range weights {
		out[asset] = w
	}

	for pass := 0; pass < maxCapPasses; pass++ {
		violated := false

		for _, adaptor := range adaptors {
			var groupSum float64
			for asset := range adaptor.Members {
				groupSum += out[asset]
			}

			if groupSum <= adaptor.Cap+capTolerance || groupSum == 0 {
				continue
			}

			scale := adaptor.Cap / groupSum
			for asset := range adaptor.Members {
				out[asset] *= scale
			}
			violated = true
		}

		var total float64
		for _, w := range out {
			total += w
		}
		if total > 0 {
			for asset := range out {
				out[asset] /= total
			}
		}

		if !violated {
			break
		}
	}

	return out
}
