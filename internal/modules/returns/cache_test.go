package returns

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/absfi/vaultd/internal/database"
	"github.com/absfi/vaultd/internal/domain"
)

func newTestCache(t *testing.T) (*Cache, *SnapshotStore) {
	t.Helper()

	dir := t.TempDir()

	historyDB, err := database.New(database.Config{
		Path: filepath.Join(dir, "history.db"),
		Name: "history",
	})
	require.NoError(t, err)
	t.Cleanup(func() { historyDB.Close() })
	require.NoError(t, historyDB.Migrate())

	cacheDB, err := database.New(database.Config{
		Path:    filepath.Join(dir, "cache.db"),
		Profile: database.ProfileCache,
		Name:    "cache",
	})
	require.NoError(t, err)
	t.Cleanup(func() { cacheDB.Close() })
	require.NoError(t, cacheDB.Migrate())

	repo := NewRepository(historyDB.Conn(), zerolog.Nop())
	cache := NewCache(repo, 0, zerolog.Nop())
	store := NewSnapshotStore(cacheDB.Conn(), zerolog.Nop())

	return cache, store
}

func obs(asset domain.AssetID, apy float64, age time.Duration) domain.ReturnObservation {
	return domain.ReturnObservation{
		AssetID:   asset,
		APY:       apy,
		Timestamp: time.Now().Add(-age).Truncate(time.Second),
	}
}

func TestCache_RecordAndGetReturns(t *testing.T) {
	cache, _ := newTestCache(t)
	ctx := context.Background()

	require.NoError(t, cache.Record(obs(1, 0.05, 48*time.Hour), 1000))
	require.NoError(t, cache.Record(obs(1, 0.06, 24*time.Hour), 1100))
	require.NoError(t, cache.Record(obs(1, 0.07, time.Hour), 1200))

	series, err := cache.GetReturns(ctx, 1, 30*24*time.Hour)
	require.NoError(t, err)
	require.Len(t, series, 3)

	// Oldest first
	assert.Equal(t, 0.05, series[0].APY)
	assert.Equal(t, 0.07, series[2].APY)
}

func TestCache_LookbackWindowFiltersOldObservations(t *testing.T) {
	cache, _ := newTestCache(t)
	ctx := context.Background()

	require.NoError(t, cache.Record(obs(1, 0.05, 40*24*time.Hour), 0))
	require.NoError(t, cache.Record(obs(1, 0.06, time.Hour), 0))

	series, err := cache.GetReturns(ctx, 1, 30*24*time.Hour)
	require.NoError(t, err)
	require.Len(t, series, 1)
	assert.Equal(t, 0.06, series[0].APY)
}

func TestCache_DuplicateTimestampReplaces(t *testing.T) {
	cache, _ := newTestCache(t)
	ctx := context.Background()

	ts := time.Now().Add(-time.Hour).Truncate(time.Second)
	require.NoError(t, cache.Record(domain.ReturnObservation{AssetID: 1, APY: 0.05, Timestamp: ts}, 0))
	require.NoError(t, cache.Record(domain.ReturnObservation{AssetID: 1, APY: 0.09, Timestamp: ts}, 0))

	series, err := cache.GetReturns(ctx, 1, 24*time.Hour)
	require.NoError(t, err)
	require.Len(t, series, 1)
	assert.Equal(t, 0.09, series[0].APY)
}

func TestCache_ColdAssetFallsBackToRepository(t *testing.T) {
	cache, _ := newTestCache(t)
	ctx := context.Background()

	require.NoError(t, cache.repo.Record(obs(9, 0.04, time.Hour), 500))

	series, err := cache.GetReturns(ctx, 9, 24*time.Hour)
	require.NoError(t, err)
	require.Len(t, series, 1)
	assert.Equal(t, 0.04, series[0].APY)
}

func TestCache_UnknownAssetReturnsEmpty(t *testing.T) {
	cache, _ := newTestCache(t)

	series, err := cache.GetReturns(context.Background(), 404, 24*time.Hour)
	require.NoError(t, err)
	assert.Empty(t, series)
}

func TestSnapshotStore_RoundTrip(t *testing.T) {
	cache, store := newTestCache(t)

	require.NoError(t, cache.Record(obs(1, 0.05, 2*time.Hour), 0))
	require.NoError(t, cache.Record(obs(1, 0.06, time.Hour), 0))
	require.NoError(t, cache.Record(obs(2, 0.10, time.Hour), 0))

	require.NoError(t, store.Save(cache))

	// A fresh cache over an empty history table warms up from snapshots.
	restored := NewCache(NewRepository(cache.repo.db, zerolog.Nop()), 0, zerolog.Nop())
	require.NoError(t, store.Load(restored))

	assert.Equal(t, []domain.AssetID{1, 2}, restored.Assets())

	series, err := restored.GetReturns(context.Background(), 1, 24*time.Hour)
	require.NoError(t, err)
	require.Len(t, series, 2)
	assert.Equal(t, 0.05, series[0].APY)
	assert.Equal(t, 0.06, series[1].APY)
}

func TestRepository_PruneBefore(t *testing.T) {
	cache, _ := newTestCache(t)

	require.NoError(t, cache.repo.Record(obs(1, 0.05, 90*24*time.Hour), 0))
	require.NoError(t, cache.repo.Record(obs(1, 0.06, time.Hour), 0))

	deleted, err := cache.repo.PruneBefore(time.Now().Add(-60 * 24 * time.Hour))
	require.NoError(t, err)
	assert.Equal(t, int64(1), deleted)

	series, err := cache.repo.GetSeries(1, 365*24*time.Hour)
	require.NoError(t, err)
	require.Len(t, series, 1)
	assert.Equal(t, 0.06, series[0].APY)
}

func TestRepository_LatestTVL(t *testing.T) {
	cache, _ := newTestCache(t)

	require.NoError(t, cache.repo.Record(obs(1, 0.05, 48*time.Hour), 1000))
	require.NoError(t, cache.repo.Record(obs(1, 0.06, time.Hour), 2500))

	tvl, err := cache.repo.LatestTVL(1)
	require.NoError(t, err)
	assert.Equal(t, 2500.0, tvl)

	_, err = cache.repo.LatestTVL(999)
	assert.Error(t, err)
}
