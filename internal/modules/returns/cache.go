package returns

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/absfi/vaultd/internal/domain"
)

// Provider serves a return series for an asset. The cache implements it for
// the optimizer; tests substitute fixtures.
type Provider interface {
	GetReturns(ctx context.Context, assetID domain.AssetID, lookback time.Duration) ([]domain.ReturnObservation, error)
}

// Cache keeps recent observations in memory per asset, backed by the history
// repository. The hot path (optimizer assembling a return matrix during a
// cascade) never touches the database.
type Cache struct {
	repo        *Repository
	maxPerAsset int
	log         zerolog.Logger

	mu     sync.RWMutex
	series map[domain.AssetID][]domain.ReturnObservation
}

// NewCache creates a new return series cache. maxPerAsset bounds the
// in-memory series length per asset.
func NewCache(repo *Repository, maxPerAsset int, log zerolog.Logger) *Cache {
	if maxPerAsset <= 0 {
		maxPerAsset = 512
	}
	return &Cache{
		repo:        repo,
		maxPerAsset: maxPerAsset,
		log:         log.With().Str("component", "returns_cache").Logger(),
		series:      make(map[domain.AssetID][]domain.ReturnObservation),
	}
}

// Record persists an observation and folds it into the in-memory series.
// Observations at an already-seen timestamp replace the earlier value.
func (c *Cache) Record(obs domain.ReturnObservation, tvl float64) error {
	if err := c.repo.Record(obs, tvl); err != nil {
		return err
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	series := c.series[obs.AssetID]
	replaced := false
	for i := range series {
		if series[i].Timestamp.Equal(obs.Timestamp) {
			series[i] = obs
			replaced = true
			break
		}
	}
	if !replaced {
		series = append(series, obs)
		sort.Slice(series, func(i, j int) bool {
			return series[i].Timestamp.Before(series[j].Timestamp)
		})
	}
	if len(series) > c.maxPerAsset {
		series = series[len(series)-c.maxPerAsset:]
	}
	c.series[obs.AssetID] = series

	return nil
}

// GetReturns serves the in-memory series, falling back to the repository on
// a cold asset. Only observations inside the lookback window are returned.
func (c *Cache) GetReturns(ctx context.Context, assetID domain.AssetID, lookback time.Duration) ([]domain.ReturnObservation, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	c.mu.RLock()
	series, ok := c.series[assetID]
	c.mu.RUnlock()

	if !ok {
		loaded, err := c.repo.GetSeries(assetID, lookback)
		if err != nil {
			return nil, err
		}

		c.mu.Lock()
		// A concurrent Record may have seeded the asset meanwhile; the
		// repository copy is at least as complete.
		c.series[assetID] = loaded
		c.mu.Unlock()
		series = loaded
	}

	cutoff := time.Now().Add(-lookback)
	out := make([]domain.ReturnObservation, 0, len(series))
	for _, obs := range series {
		if !obs.Timestamp.Before(cutoff) {
			out = append(out, obs)
		}
	}

	return out, nil
}

// Assets returns the asset ids currently held in memory.
func (c *Cache) Assets() []domain.AssetID {
	c.mu.RLock()
	defer c.mu.RUnlock()

	ids := make([]domain.AssetID, 0, len(c.series))
	for id := range c.series {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids
}
