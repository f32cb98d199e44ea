// Package returns stores per-asset APY observations and serves them to the
// optimizer as a return-series provider.
package returns

import (
	"database/sql"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/absfi/vaultd/internal/domain"
)

// Repository handles return history database operations
// Database: history.db (return_history table)
type Repository struct {
	db  *sql.DB
	log zerolog.Logger
}

// NewRepository creates a new return history repository
func NewRepository(db *sql.DB, log zerolog.Logger) *Repository {
	return &Repository{
		db:  db,
		log: log.With().Str("repo", "returns").Logger(),
	}
}

// Record upserts one observation. The feed delivers at least once, so
// duplicate (asset_id, observed_at) pairs are overwritten rather than
// duplicated.
func (r *Repository) Record(obs domain.ReturnObservation, tvl float64) error {
	query := `
		INSERT INTO return_history (asset_id, apy, tvl, observed_at)
		VALUES (?, ?, ?, ?)
		ON CONFLICT(asset_id, observed_at) DO UPDATE SET
			apy = excluded.apy,
			tvl = excluded.tvl
	`

	_, err := r.db.Exec(query, int64(obs.AssetID), obs.APY, tvl, obs.Timestamp.Unix())
	if err != nil {
		return fmt.Errorf("failed to record return observation: %w", err)
	}

	return nil
}

// GetSeries returns observations for an asset newer than the lookback
// horizon, oldest first.
func (r *Repository) GetSeries(assetID domain.AssetID, lookback time.Duration) ([]domain.ReturnObservation, error) {
	cutoff := time.Now().Add(-lookback).Unix()

	query := `
		SELECT asset_id, apy, observed_at
		FROM return_history
		WHERE asset_id = ? AND observed_at >= ?
		ORDER BY observed_at ASC
	`

	rows, err := r.db.Query(query, int64(assetID), cutoff)
	if err != nil {
		return nil, fmt.Errorf("failed to query return history: %w", err)
	}
	defer rows.Close()

	var series []domain.ReturnObservation
	for rows.Next() {
		var aid, observedAt int64
		var apy float64

		if err := rows.Scan(&aid, &apy, &observedAt); err != nil {
			return nil, fmt.Errorf("failed to scan return observation: %w", err)
		}

		series = append(series, domain.ReturnObservation{
			AssetID:   domain.AssetID(aid),
			APY:       apy,
			Timestamp: time.Unix(observedAt, 0).UTC(),
		})
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating return history: %w", err)
	}

	return series, nil
}

// LatestTVL returns the most recently observed TVL for an asset.
func (r *Repository) LatestTVL(assetID domain.AssetID) (float64, error) {
	query := `
		SELECT tvl
		FROM return_history
		WHERE asset_id = ?
		ORDER BY observed_at DESC
		LIMIT 1
	`

	var tvl float64
	if err := r.db.QueryRow(query, int64(assetID)).Scan(&tvl); err != nil {
		if err == sql.ErrNoRows {
			return 0, fmt.Errorf("no TVL observed for asset %s", assetID)
		}
		return 0, fmt.Errorf("failed to query latest TVL: %w", err)
	}

	return tvl, nil
}

// PruneBefore deletes observations older than the cutoff. Called by the
// maintenance job so history.db does not grow without bound.
func (r *Repository) PruneBefore(cutoff time.Time) (int64, error) {
	result, err := r.db.Exec("DELETE FROM return_history WHERE observed_at < ?", cutoff.Unix())
	if err != nil {
		return 0, fmt.Errorf("failed to prune return history: %w", err)
	}

	deleted, _ := result.RowsAffected()
	if deleted > 0 {
		r.log.Debug().Int64("deleted", deleted).Msg("Pruned return history")
	}

	return deleted, nil
}
