package ledger

import (
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/absfi/vaultd/internal/domain"
)

func entry(asset domain.AssetID, amount float64, ts string) domain.LedgerEntry {
	return domain.LedgerEntry{
		VaultID:   1,
		AssetID:   asset,
		Amount:    amount,
		Status:    "confirmed",
		Timestamp: ts,
	}
}

func TestReconcile_SnapshotPreferred(t *testing.T) {
	entries := []domain.LedgerEntry{
		entry(1, 5, "2026-01-01T00:00:00Z"),
		entry(1, 10, "2026-02-01T00:00:00Z"),
		entry(2, 20, "2026-02-01T00:00:00Z"),
	}

	result := Reconcile(entries)

	assert.True(t, result.FromSnapshot)
	assert.Equal(t, map[domain.AssetID]float64{1: 10, 2: 20}, result.Allocation)
}

func TestReconcile_SnapshotSkipsGroupsWithNonPositiveAmounts(t *testing.T) {
	// The most recent group contains a withdrawal, so it is not a
	// restatement; the older all-positive group wins.
	entries := []domain.LedgerEntry{
		entry(1, 100, "2026-01-01T00:00:00Z"),
		entry(2, 200, "2026-01-01T00:00:00Z"),
		entry(1, -30, "2026-03-01T00:00:00Z"),
		entry(2, 10, "2026-03-01T00:00:00Z"),
	}

	result := Reconcile(entries)

	assert.True(t, result.FromSnapshot)
	assert.Equal(t, map[domain.AssetID]float64{1: 100, 2: 200}, result.Allocation)
}

func TestReconcile_CumulativeFallback(t *testing.T) {
	// Every timestamp group includes a non-positive amount, so totals are
	// summed across the whole ledger.
	entries := []domain.LedgerEntry{
		entry(1, 100, "2026-01-01T00:00:00Z"),
		entry(2, -5, "2026-01-01T00:00:00Z"),
		entry(1, -40, "2026-01-02T00:00:00Z"),
		entry(2, -10, "2026-01-02T00:00:00Z"),
		entry(3, 0, "2026-01-02T00:00:00Z"),
	}

	result := Reconcile(entries)

	assert.False(t, result.FromSnapshot)
	// Asset 2 sums to -15 and asset 3 to 0; both are excluded.
	assert.Equal(t, map[domain.AssetID]float64{1: 60}, result.Allocation)
}

func TestReconcile_UnparsableTimestampsDroppedAndCounted(t *testing.T) {
	entries := []domain.LedgerEntry{
		entry(1, 10, "2026-01-01T00:00:00Z"),
		entry(2, 99, "not-a-timestamp"),
		entry(3, 50, ""),
	}

	result := Reconcile(entries)

	assert.Equal(t, 2, result.DroppedRows)
	assert.Equal(t, map[domain.AssetID]float64{1: 10}, result.Allocation)
}

func TestReconcile_AcceptsCommonTimestampFormats(t *testing.T) {
	entries := []domain.LedgerEntry{
		entry(1, 10, "2026-01-02 15:04:05"),
		entry(2, 20, "2026-01-02 15:04:05"),
	}

	result := Reconcile(entries)

	assert.Zero(t, result.DroppedRows)
	assert.Equal(t, map[domain.AssetID]float64{1: 10, 2: 20}, result.Allocation)
}

func TestReconcile_EmptyLedger(t *testing.T) {
	result := Reconcile(nil)

	assert.Empty(t, result.Allocation)
	assert.False(t, result.FromSnapshot)
	assert.Zero(t, result.DroppedRows)
}

func TestReconcile_OrderIndependent(t *testing.T) {
	entries := []domain.LedgerEntry{
		entry(1, 5, "2026-01-01T00:00:00Z"),
		entry(2, -3, "2026-01-05T00:00:00Z"),
		entry(1, 10, "2026-02-01T00:00:00Z"),
		entry(2, 20, "2026-02-01T00:00:00Z"),
		entry(3, 7, "2026-02-01T00:00:00Z"),
		entry(4, 1, "bad-timestamp"),
	}

	want := Reconcile(entries)

	rng := rand.New(rand.NewSource(42))
	for i := 0; i < 50; i++ {
		shuffled := make([]domain.LedgerEntry, len(entries))
		copy(shuffled, entries)
		rng.Shuffle(len(shuffled), func(a, b int) {
			shuffled[a], shuffled[b] = shuffled[b], shuffled[a]
		})

		got := Reconcile(shuffled)
		require.Equal(t, want.Allocation, got.Allocation)
		require.Equal(t, want.FromSnapshot, got.FromSnapshot)
		require.Equal(t, want.DroppedRows, got.DroppedRows)
	}
}
