package ledger

import (
	"sort"
	"time"

	"github.com/rs/zerolog"

	"github.com/absfi/vaultd/internal/domain"
)

// Reconciler derives a vault's current allocation from its ledger rows.
//
// Real ledgers mix full restatements (deposits that re-seed the whole
// allocation) with incremental deltas (partial withdrawals). The most recent
// timestamp group in which every amount is strictly positive is treated as an
// authoritative snapshot; when none exists, per-asset cumulative sums are
// used, keeping only strictly positive totals.
type Reconciler struct {
	repo *Repository
	log  zerolog.Logger
}

// Result carries the reconciled allocation plus provenance.
type Result struct {
	Allocation   map[domain.AssetID]float64
	FromSnapshot bool
	DroppedRows  int
}

// NewReconciler creates a new reconciler
func NewReconciler(repo *Repository, log zerolog.Logger) *Reconciler {
	return &Reconciler{
		repo: repo,
		log:  log.With().Str("component", "reconciler").Logger(),
	}
}

// ReconcileVault loads the vault's ledger and reconciles it.
func (rc *Reconciler) ReconcileVault(vaultID domain.VaultID) (*Result, error) {
	entries, err := rc.repo.GetByVault(vaultID)
	if err != nil {
		return nil, err
	}

	result := Reconcile(entries)

	rc.log.Info().
		Int64("vault_id", int64(vaultID)).
		Int("entries", len(entries)).
		Int("assets", len(result.Allocation)).
		Int("dropped_rows", result.DroppedRows).
		Bool("from_snapshot", result.FromSnapshot).
		Msg("Vault ledger reconciled")

	return result, nil
}

// Reconcile rebuilds an allocation map from ledger entries. The result
// depends only on entry timestamps and amounts, never on input order.
// Entries whose timestamps fail to parse are dropped and counted.
func Reconcile(entries []domain.LedgerEntry) *Result {
	result := &Result{
		Allocation: make(map[domain.AssetID]float64),
	}

	// Identical timestamps form one atomic group.
	groups := make(map[int64][]domain.LedgerEntry)
	for _, entry := range entries {
		ts, err := parseTimestamp(entry.Timestamp)
		if err != nil {
			result.DroppedRows++
			continue
		}
		key := ts.UnixNano()
		groups[key] = append(groups[key], entry)
	}

	if len(groups) == 0 {
		return result
	}

	keys := make([]int64, 0, len(groups))
	for key := range groups {
		keys = append(keys, key)
	}
	sort.Slice(keys, func(i, j int) bool { return keys[i] > keys[j] })

	// Most recent all-positive group wins as a full restatement.
	for _, key := range keys {
		group := groups[key]
		allPositive := true
		for _, entry := range group {
			if entry.Amount <= 0 {
				allPositive = false
				break
			}
		}
		if !allPositive {
			continue
		}

		for _, entry := range group {
			result.Allocation[entry.AssetID] += entry.Amount
		}
		result.FromSnapshot = true
		return result
	}

	// Cumulative fallback across the entire ledger.
	totals := make(map[domain.AssetID]float64)
	for _, key := range keys {
		for _, entry := range groups[key] {
			totals[entry.AssetID] += entry.Amount
		}
	}
	for assetID, total := range totals {
		if total > 0 {
			result.Allocation[assetID] = total
		}
	}

	return result
}

// timestampLayouts covers the formats the upstream feed has been observed to
// send. RFC3339 dominates; the space-separated form shows up in backfills.
var timestampLayouts = []string{
	time.RFC3339Nano,
	time.RFC3339,
	"2006-01-02 15:04:05",
	"2006-01-02",
}

func parseTimestamp(raw string) (time.Time, error) {
	var lastErr error
	for _, layout := range timestampLayouts {
		ts, err := time.Parse(layout, raw)
		if err == nil {
			return ts, nil
		}
		lastErr = err
	}
	return time.Time{}, lastErr
}
