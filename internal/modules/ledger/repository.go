// Package ledger stores and reconciles the append-only allocation ledger.
//
// Every deposit and withdrawal lands here as a signed row. Nothing in this
// package mutates or deletes rows; current state is always derived by the
// Reconciler.
package ledger

import (
	"database/sql"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/absfi/vaultd/internal/domain"
)

// Repository handles allocation ledger database operations
// Database: ledger.db (allocation_ledger table)
type Repository struct {
	db  *sql.DB
	log zerolog.Logger
}

// NewRepository creates a new ledger repository
func NewRepository(db *sql.DB, log zerolog.Logger) *Repository {
	return &Repository{
		db:  db,
		log: log.With().Str("repo", "ledger").Logger(),
	}
}

// Append records a single ledger entry. The recorded_at value is stored
// verbatim so malformed timestamps survive to reconciliation, where they are
// counted and skipped rather than rejected at the door.
func (r *Repository) Append(entry domain.LedgerEntry) error {
	status := entry.Status
	if status == "" {
		status = "confirmed"
	}

	query := `
		INSERT INTO allocation_ledger (vault_id, asset_id, amount, status, recorded_at, created_at)
		VALUES (?, ?, ?, ?, ?, ?)
	`

	_, err := r.db.Exec(query,
		int64(entry.VaultID),
		int64(entry.AssetID),
		entry.Amount,
		status,
		entry.Timestamp,
		time.Now().Unix(),
	)
	if err != nil {
		return fmt.Errorf("failed to append ledger entry: %w", err)
	}

	r.log.Debug().
		Int64("vault_id", int64(entry.VaultID)).
		Int64("asset_id", int64(entry.AssetID)).
		Float64("amount", entry.Amount).
		Str("status", status).
		Msg("Ledger entry appended")

	return nil
}

// GetByVault returns every ledger row for a vault, oldest first by insertion
// order. Row order carries no meaning for reconciliation; it is returned
// deterministically for the API.
func (r *Repository) GetByVault(vaultID domain.VaultID) ([]domain.LedgerEntry, error) {
	query := `
		SELECT id, vault_id, asset_id, amount, status, recorded_at
		FROM allocation_ledger
		WHERE vault_id = ?
		ORDER BY id ASC
	`

	rows, err := r.db.Query(query, int64(vaultID))
	if err != nil {
		return nil, fmt.Errorf("failed to query ledger entries: %w", err)
	}
	defer rows.Close()

	var entries []domain.LedgerEntry
	for rows.Next() {
		var entry domain.LedgerEntry
		var vid, aid int64

		if err := rows.Scan(&entry.ID, &vid, &aid, &entry.Amount, &entry.Status, &entry.Timestamp); err != nil {
			return nil, fmt.Errorf("failed to scan ledger entry: %w", err)
		}

		entry.VaultID = domain.VaultID(vid)
		entry.AssetID = domain.AssetID(aid)
		entries = append(entries, entry)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating ledger entries: %w", err)
	}

	return entries, nil
}

// CountByVault returns the number of ledger rows for a vault.
func (r *Repository) CountByVault(vaultID domain.VaultID) (int, error) {
	var count int
	err := r.db.QueryRow(
		"SELECT COUNT(*) FROM allocation_ledger WHERE vault_id = ?",
		int64(vaultID),
	).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("failed to count ledger entries: %w", err)
	}
	return count, nil
}
