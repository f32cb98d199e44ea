package execution

import (
	"context"
	"fmt"

	"github.com/rs/zerolog"

	"github.com/absfi/vaultd/internal/domain"
)

// TVLSource serves the most recently observed total value locked for an
// asset. The returns repository implements it.
type TVLSource interface {
	LatestTVL(assetID domain.AssetID) (float64, error)
}

// PoolLiquidity answers liquidity lookups from observed pool TVL: a
// withdrawal can at most drain what the pool currently holds.
type PoolLiquidity struct {
	source TVLSource
	log    zerolog.Logger
}

// NewPoolLiquidity creates a TVL-backed liquidity lookup.
func NewPoolLiquidity(source TVLSource, log zerolog.Logger) *PoolLiquidity {
	return &PoolLiquidity{
		source: source,
		log:    log.With().Str("component", "pool_liquidity").Logger(),
	}
}

// AvailableLiquidity returns the latest observed TVL for the asset. An asset
// with no observations is a failed lookup, not a zero.
func (p *PoolLiquidity) AvailableLiquidity(ctx context.Context, assetID domain.AssetID, requested float64) (float64, error) {
	tvl, err := p.source.LatestTVL(assetID)
	if err != nil {
		return 0, fmt.Errorf("tvl lookup for asset %s: %w", assetID, err)
	}

	if tvl < requested {
		p.log.Debug().
			Int64("asset_id", int64(assetID)).
			Float64("tvl", tvl).
			Float64("requested", requested).
			Msg("Pool TVL below requested withdrawal")
	}
	return tvl, nil
}
