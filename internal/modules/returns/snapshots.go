package returns

import (
	"database/sql"
	"fmt"
	"time"

	"github.com/rs/zerolog"
	"github.com/vmihailenco/msgpack/v5"

	"github.com/absfi/vaultd/internal/domain"
)

// snapshotObservation is the msgpack wire form of one observation.
type snapshotObservation struct {
	Timestamp int64   `msgpack:"t"`
	APY       float64 `msgpack:"a"`
}

// SnapshotStore persists per-asset series snapshots so the cache warms up
// after a restart without replaying the full history table.
// Database: cache.db (return_series_snapshots table)
type SnapshotStore struct {
	db  *sql.DB
	log zerolog.Logger
}

// NewSnapshotStore creates a new snapshot store
func NewSnapshotStore(db *sql.DB, log zerolog.Logger) *SnapshotStore {
	return &SnapshotStore{
		db:  db,
		log: log.With().Str("repo", "return_snapshots").Logger(),
	}
}

// Save writes the cache's current series, one msgpack blob per asset.
func (s *SnapshotStore) Save(cache *Cache) error {
	saved := 0
	for _, assetID := range cache.Assets() {
		cache.mu.RLock()
		series := cache.series[assetID]
		cache.mu.RUnlock()

		payload := make([]snapshotObservation, 0, len(series))
		for _, obs := range series {
			payload = append(payload, snapshotObservation{
				Timestamp: obs.Timestamp.Unix(),
				APY:       obs.APY,
			})
		}

		blob, err := msgpack.Marshal(payload)
		if err != nil {
			return fmt.Errorf("failed to encode snapshot for asset %d: %w", int64(assetID), err)
		}

		_, err = s.db.Exec(`
			INSERT INTO return_series_snapshots (asset_id, payload, updated_at)
			VALUES (?, ?, ?)
			ON CONFLICT(asset_id) DO UPDATE SET
				payload = excluded.payload,
				updated_at = excluded.updated_at
		`, int64(assetID), blob, time.Now().Unix())
		if err != nil {
			return fmt.Errorf("failed to save snapshot for asset %d: %w", int64(assetID), err)
		}
		saved++
	}

	s.log.Debug().Int("assets", saved).Msg("Return series snapshots saved")
	return nil
}

// Load seeds the cache from stored snapshots. Decode failures skip the asset
// rather than failing startup; the history table remains the fallback.
func (s *SnapshotStore) Load(cache *Cache) error {
	rows, err := s.db.Query("SELECT asset_id, payload FROM return_series_snapshots")
	if err != nil {
		return fmt.Errorf("failed to query snapshots: %w", err)
	}
	defer rows.Close()

	loaded := 0
	for rows.Next() {
		var aid int64
		var blob []byte
		if err := rows.Scan(&aid, &blob); err != nil {
			return fmt.Errorf("failed to scan snapshot: %w", err)
		}

		var payload []snapshotObservation
		if err := msgpack.Unmarshal(blob, &payload); err != nil {
			s.log.Warn().Int64("asset_id", aid).Err(err).Msg("Skipping undecodable snapshot")
			continue
		}

		series := make([]domain.ReturnObservation, 0, len(payload))
		for _, obs := range payload {
			series = append(series, domain.ReturnObservation{
				AssetID:   domain.AssetID(aid),
				Timestamp: time.Unix(obs.Timestamp, 0).UTC(),
				APY:       obs.APY,
			})
		}

		cache.mu.Lock()
		cache.series[domain.AssetID(aid)] = series
		cache.mu.Unlock()
		loaded++
	}

	if err := rows.Err(); err != nil {
		return fmt.Errorf("error iterating snapshots: %w", err)
	}

	s.log.Info().Int("assets", loaded).Msg("Return series snapshots loaded")
	return nil
}
