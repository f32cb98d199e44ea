package scheduler

import (
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/absfi/vaultd/internal/database"
	"github.com/absfi/vaultd/internal/modules/returns"
)

// PruneReturnsJob deletes return observations older than the retention
// window. The optimizer never reads past its lookback, so rows beyond the
// retention window only grow the history database.
type PruneReturnsJob struct {
	repo      *returns.Repository
	retention time.Duration
	log       zerolog.Logger
}

// NewPruneReturnsJob creates a prune job with the given retention window.
func NewPruneReturnsJob(repo *returns.Repository, retention time.Duration, log zerolog.Logger) *PruneReturnsJob {
	return &PruneReturnsJob{
		repo:      repo,
		retention: retention,
		log:       log.With().Str("job", "prune_returns").Logger(),
	}
}

// Name returns the job name.
func (j *PruneReturnsJob) Name() string { return "prune_returns" }

// Run executes the prune job.
func (j *PruneReturnsJob) Run() error {
	cutoff := time.Now().UTC().Add(-j.retention)
	deleted, err := j.repo.PruneBefore(cutoff)
	if err != nil {
		return fmt.Errorf("failed to prune return observations: %w", err)
	}

	j.log.Info().
		Int64("deleted", deleted).
		Time("cutoff", cutoff).
		Msg("Return history pruned")
	return nil
}

// SaveSnapshotsJob persists the in-memory return series so a restart can
// warm the cache without replaying the feed.
type SaveSnapshotsJob struct {
	store *returns.SnapshotStore
	cache *returns.Cache
	log   zerolog.Logger
}

// NewSaveSnapshotsJob creates a snapshot persistence job.
func NewSaveSnapshotsJob(store *returns.SnapshotStore, cache *returns.Cache, log zerolog.Logger) *SaveSnapshotsJob {
	return &SaveSnapshotsJob{
		store: store,
		cache: cache,
		log:   log.With().Str("job", "save_snapshots").Logger(),
	}
}

// Name returns the job name.
func (j *SaveSnapshotsJob) Name() string { return "save_snapshots" }

// Run executes the snapshot job.
func (j *SaveSnapshotsJob) Run() error {
	if err := j.store.Save(j.cache); err != nil {
		return fmt.Errorf("failed to save return snapshots: %w", err)
	}
	j.log.Debug().Msg("Return snapshots saved")
	return nil
}

// CheckWALCheckpointsJob runs passive WAL checkpoints across all databases
// so WAL files do not grow unbounded between restarts.
type CheckWALCheckpointsJob struct {
	databases []*database.DB
	log       zerolog.Logger
}

// NewCheckWALCheckpointsJob creates a WAL checkpoint job over the given
// databases. Nil entries are skipped.
func NewCheckWALCheckpointsJob(log zerolog.Logger, databases ...*database.DB) *CheckWALCheckpointsJob {
	return &CheckWALCheckpointsJob{
		databases: databases,
		log:       log.With().Str("job", "check_wal_checkpoints").Logger(),
	}
}

// Name returns the job name.
func (j *CheckWALCheckpointsJob) Name() string { return "check_wal_checkpoints" }

// Run executes the WAL checkpoint job.
func (j *CheckWALCheckpointsJob) Run() error {
	checked := 0
	for _, db := range j.databases {
		if db == nil {
			continue
		}

		if err := db.WALCheckpoint("PASSIVE"); err != nil {
			j.log.Warn().
				Err(err).
				Str("database", db.Name()).
				Msg("Failed to checkpoint WAL")
			continue
		}
		checked++
	}

	j.log.Debug().
		Int("checked", checked).
		Msg("WAL checkpoint sweep completed")
	return nil
}
