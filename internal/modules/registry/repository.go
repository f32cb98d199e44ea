// Package registry owns per-vault configuration and current-allocation
// state. Every other component reads and writes vault state through the
// registry service; nothing else touches config.db.
package registry

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"sort"
	"time"

	"github.com/rs/zerolog"

	"github.com/absfi/vaultd/internal/domain"
)

// Repository handles vault configuration database operations
// Database: config.db (vaults table)
type Repository struct {
	db  *sql.DB
	log zerolog.Logger
}

// NewRepository creates a new vault repository
func NewRepository(db *sql.DB, log zerolog.Logger) *Repository {
	return &Repository{
		db:  db,
		log: log.With().Str("repo", "registry").Logger(),
	}
}

// storedAdaptor is the JSON shape persisted in the adaptors column.
type storedAdaptor struct {
	Name    string  `json:"name"`
	Members []int64 `json:"members"`
	Cap     float64 `json:"cap"`
}

// Upsert persists a vault's configuration. CurrentAllocation is not stored
// here; the ledger is its source of truth.
func (r *Repository) Upsert(vault *domain.Vault) error {
	pools := make([]int64, 0, len(vault.AllowedPools))
	for asset := range vault.AllowedPools {
		pools = append(pools, int64(asset))
	}
	sort.Slice(pools, func(i, j int) bool { return pools[i] < pools[j] })

	poolsJSON, err := json.Marshal(pools)
	if err != nil {
		return fmt.Errorf("failed to encode allowed pools: %w", err)
	}

	stored := make([]storedAdaptor, 0, len(vault.Adaptors))
	for _, a := range vault.Adaptors {
		members := make([]int64, 0, len(a.Members))
		for asset := range a.Members {
			members = append(members, int64(asset))
		}
		sort.Slice(members, func(i, j int) bool { return members[i] < members[j] })
		stored = append(stored, storedAdaptor{Name: a.Name, Members: members, Cap: a.Cap})
	}

	adaptorsJSON, err := json.Marshal(stored)
	if err != nil {
		return fmt.Errorf("failed to encode adaptors: %w", err)
	}

	query := `
		INSERT INTO vaults (id, strategy, allowed_pools, adaptors, updated_at)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			strategy = excluded.strategy,
			allowed_pools = excluded.allowed_pools,
			adaptors = excluded.adaptors,
			updated_at = excluded.updated_at
	`

	_, err = r.db.Exec(query,
		int64(vault.ID),
		string(vault.Strategy),
		string(poolsJSON),
		string(adaptorsJSON),
		time.Now().Unix(),
	)
	if err != nil {
		return fmt.Errorf("failed to upsert vault %s: %w", vault.ID, err)
	}

	r.log.Debug().
		Int64("vault_id", int64(vault.ID)).
		Str("strategy", string(vault.Strategy)).
		Int("allowed_pools", len(pools)).
		Msg("Vault configuration upserted")

	return nil
}

// GetAll loads every vault configuration. CurrentAllocation maps come back
// empty; the service reconciles them from the ledger.
func (r *Repository) GetAll() ([]*domain.Vault, error) {
	rows, err := r.db.Query("SELECT id, strategy, allowed_pools, adaptors, updated_at FROM vaults ORDER BY id")
	if err != nil {
		return nil, fmt.Errorf("failed to query vaults: %w", err)
	}
	defer rows.Close()

	var vaults []*domain.Vault
	for rows.Next() {
		vault, err := scanVault(rows)
		if err != nil {
			return nil, err
		}
		vaults = append(vaults, vault)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating vaults: %w", err)
	}

	return vaults, nil
}

func scanVault(rows *sql.Rows) (*domain.Vault, error) {
	var id, updatedAt int64
	var strategy, poolsJSON, adaptorsJSON string

	if err := rows.Scan(&id, &strategy, &poolsJSON, &adaptorsJSON, &updatedAt); err != nil {
		return nil, fmt.Errorf("failed to scan vault: %w", err)
	}

	var pools []int64
	if err := json.Unmarshal([]byte(poolsJSON), &pools); err != nil {
		return nil, fmt.Errorf("failed to decode allowed pools for vault %d: %w", id, err)
	}

	var stored []storedAdaptor
	if err := json.Unmarshal([]byte(adaptorsJSON), &stored); err != nil {
		return nil, fmt.Errorf("failed to decode adaptors for vault %d: %w", id, err)
	}

	vault := &domain.Vault{
		ID:                domain.VaultID(id),
		Strategy:          domain.Strategy(strategy),
		AllowedPools:      make(map[domain.AssetID]bool, len(pools)),
		CurrentAllocation: make(map[domain.AssetID]float64),
		UpdatedAt:         time.Unix(updatedAt, 0).UTC(),
	}
	for _, asset := range pools {
		vault.AllowedPools[domain.AssetID(asset)] = true
	}
	for _, s := range stored {
		adaptor := domain.Adaptor{
			Name:    s.Name,
			Members: make(map[domain.AssetID]bool, len(s.Members)),
			Cap:     s.Cap,
		}
		for _, asset := range s.Members {
			adaptor.Members[domain.AssetID(asset)] = true
		}
		vault.Adaptors = append(vault.Adaptors, adaptor)
	}

	return vault, nil
}
