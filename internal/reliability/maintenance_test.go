package reliability

import (
	"path/filepath"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/absfi/vaultd/internal/database"
)

func TestDiskSpaceJob(t *testing.T) {
	job := NewDiskSpaceJob(t.TempDir(), zerolog.Nop())
	assert.Equal(t, "check_disk_space", job.Name())
	// A temp dir on any sane CI machine has more than 500MB free.
	require.NoError(t, job.Run())
}

func TestVacuumJob(t *testing.T) {
	db, err := database.New(database.Config{
		Path: filepath.Join(t.TempDir(), "ledger.db"),
		Name: "ledger",
	})
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	require.NoError(t, db.Migrate())

	job := NewVacuumJob(zerolog.Nop(), db, nil)
	assert.Equal(t, "vacuum_databases", job.Name())
	require.NoError(t, job.Run())
}
