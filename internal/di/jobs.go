package di

import (
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/absfi/vaultd/internal/config"
	"github.com/absfi/vaultd/internal/reliability"
	"github.com/absfi/vaultd/internal/scheduler"
)

// RegisterJobs creates the maintenance scheduler and registers its jobs.
func RegisterJobs(container *Container, cfg *config.Config, log zerolog.Logger) error {
	sched := scheduler.New(log)

	// History beyond twice the lookback can never influence a decision.
	retention := 2 * time.Duration(cfg.LookbackDays) * 24 * time.Hour
	jobs := []struct {
		schedule string
		job      scheduler.Job
	}{
		{"@every 6h", scheduler.NewPruneReturnsJob(container.ReturnsRepo, retention, log)},
		{"@every 10m", scheduler.NewSaveSnapshotsJob(container.SnapshotStore, container.ReturnsCache, log)},
		{"@hourly", scheduler.NewCheckWALCheckpointsJob(log,
			container.LedgerDB, container.ConfigDB, container.HistoryDB, container.CacheDB)},
		{"@daily", reliability.NewDiskSpaceJob(cfg.DataDir, log)},
		{"@weekly", reliability.NewVacuumJob(log,
			container.LedgerDB, container.ConfigDB, container.HistoryDB, container.CacheDB)},
	}

	for _, entry := range jobs {
		if err := sched.AddJob(entry.schedule, entry.job); err != nil {
			return fmt.Errorf("failed to register job %s: %w", entry.job.Name(), err)
		}
	}

	container.Scheduler = sched
	return nil
}
