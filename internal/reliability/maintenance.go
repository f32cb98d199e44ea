// Package reliability provides operational maintenance jobs: disk space
// checks and periodic database compaction.
package reliability

import (
	"fmt"
	"syscall"

	"github.com/rs/zerolog"

	"github.com/absfi/vaultd/internal/database"
)

// DiskSpaceJob verifies sufficient disk space is available for the data
// directory. The ledger is append-only; running out of disk means losing
// allocation history.
type DiskSpaceJob struct {
	dataDir string
	log     zerolog.Logger
}

// NewDiskSpaceJob creates a disk space check job.
func NewDiskSpaceJob(dataDir string, log zerolog.Logger) *DiskSpaceJob {
	return &DiskSpaceJob{
		dataDir: dataDir,
		log:     log.With().Str("job", "check_disk_space").Logger(),
	}
}

// Name returns the job name.
func (j *DiskSpaceJob) Name() string { return "check_disk_space" }

// Run executes the disk space check.
func (j *DiskSpaceJob) Run() error {
	stat := syscall.Statfs_t{}
	if err := syscall.Statfs(j.dataDir, &stat); err != nil {
		return fmt.Errorf("failed to stat filesystem: %w", err)
	}

	availableBytes := stat.Bavail * uint64(stat.Bsize)
	availableGB := float64(availableBytes) / 1e9

	switch {
	case availableGB < 0.5:
		j.log.Error().Float64("available_gb", availableGB).Msg("Critically low disk space")
		return fmt.Errorf("only %.2f GB free", availableGB)
	case availableGB < 5.0:
		j.log.Warn().Float64("available_gb", availableGB).Msg("Disk space running low")
	default:
		j.log.Debug().Float64("available_gb", availableGB).Msg("Disk space check OK")
	}

	return nil
}

// VacuumJob compacts the databases. The ledger only grows and the return
// history is pruned on a schedule; VACUUM reclaims the freed pages.
type VacuumJob struct {
	databases []*database.DB
	log       zerolog.Logger
}

// NewVacuumJob creates a vacuum job over the given databases. Nil entries
// are skipped.
func NewVacuumJob(log zerolog.Logger, databases ...*database.DB) *VacuumJob {
	return &VacuumJob{
		databases: databases,
		log:       log.With().Str("job", "vacuum_databases").Logger(),
	}
}

// Name returns the job name.
func (j *VacuumJob) Name() string { return "vacuum_databases" }

// Run executes VACUUM on every database.
func (j *VacuumJob) Run() error {
	for _, db := range j.databases {
		if db == nil {
			continue
		}
		if err := j.vacuum(db); err != nil {
			return err
		}
	}
	return nil
}

func (j *VacuumJob) vacuum(db *database.DB) error {
	var pageCount, pageSize int
	db.Conn().QueryRow("PRAGMA page_count").Scan(&pageCount)
	db.Conn().QueryRow("PRAGMA page_size").Scan(&pageSize)
	sizeBefore := float64(pageCount*pageSize) / 1024 / 1024

	if _, err := db.Conn().Exec("VACUUM"); err != nil {
		return fmt.Errorf("VACUUM of %s failed: %w", db.Name(), err)
	}

	db.Conn().QueryRow("PRAGMA page_count").Scan(&pageCount)
	sizeAfter := float64(pageCount*pageSize) / 1024 / 1024

	j.log.Info().
		Str("database", db.Name()).
		Float64("size_before_mb", sizeBefore).
		Float64("size_after_mb", sizeAfter).
		Float64("space_reclaimed_mb", sizeBefore-sizeAfter).
		Msg("VACUUM completed")

	return nil
}
