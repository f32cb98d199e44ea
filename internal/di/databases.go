package di

import (
	"fmt"
	"path/filepath"

	"github.com/rs/zerolog"

	"github.com/absfi/vaultd/internal/config"
	"github.com/absfi/vaultd/internal/database"
)

// InitializeDatabases opens all four databases and applies schemas.
func InitializeDatabases(cfg *config.Config, log zerolog.Logger) (*Container, error) {
	container := &Container{}

	specs := []struct {
		name    string
		profile database.DatabaseProfile
		target  **database.DB
	}{
		// ledger.db is the source of truth for allocations; it gets the
		// maximum-durability profile.
		{"ledger", database.ProfileLedger, &container.LedgerDB},
		{"config", database.ProfileStandard, &container.ConfigDB},
		{"history", database.ProfileStandard, &container.HistoryDB},
		{"cache", database.ProfileCache, &container.CacheDB},
	}

	for _, spec := range specs {
		db, err := database.New(database.Config{
			Path:    filepath.Join(cfg.DataDir, spec.name+".db"),
			Profile: spec.profile,
			Name:    spec.name,
		})
		if err != nil {
			container.Close()
			return nil, fmt.Errorf("failed to initialize %s database: %w", spec.name, err)
		}
		*spec.target = db

		if err := db.Migrate(); err != nil {
			container.Close()
			return nil, fmt.Errorf("failed to migrate %s database: %w", spec.name, err)
		}

		log.Debug().Str("database", spec.name).Str("path", db.Path()).Msg("Database ready")
	}

	return container, nil
}
