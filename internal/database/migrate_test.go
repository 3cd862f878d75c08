package database

import (
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/rcdash/telemetry/internal/model"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/datatypes"
)

func seedBackup(t *testing.T, path string) string {
	t.Helper()
	db, err := OpenSqlite(path)
	require.NoError(t, err)
	require.NoError(t, Setup(db, slog.New(slog.NewTextHandler(io.Discard, nil))))

	id := uuid.NewString()
	now := time.Now().UTC().Truncate(time.Second)
	require.NoError(t, db.Create(&model.Driver{ID: "d1", Username: "ada"}).Error)
	require.NoError(t, db.Omit("Driver").Create(&model.Session{ID: id, DriverID: "d1", Source: "simulated", StartedAt: now}).Error)
	for i := 1; i <= 3; i++ {
		require.NoError(t, db.Omit("Session").Create(&model.SnapshotRecord{
			Time:      now.Add(time.Duration(i) * 100 * time.Millisecond),
			SessionID: id,
			Seq:       uint64(i),
			Gear:      "1",
			Tires:     datatypes.JSON("[]"),
		}).Error)
	}
	gas := 0.4
	require.NoError(t, db.Omit("Session").Create(&model.SignalRecord{Time: now, SessionID: id, Gas: &gas}).Error)

	sqlDB, err := db.DB()
	require.NoError(t, err)
	require.NoError(t, sqlDB.Close())
	return id
}

func TestGetBackupDBPaths(t *testing.T) {
	dir := t.TempDir()
	for _, name := range []string{"b.db", "a.db", "a.db" + MigratedSuffix, "notes.txt"} {
		require.NoError(t, os.WriteFile(filepath.Join(dir, name), nil, 0644))
	}

	paths, err := GetBackupDBPaths(dir)
	require.NoError(t, err)
	assert.Equal(t, []string{filepath.Join(dir, "a.db"), filepath.Join(dir, "b.db")}, paths)
}

func TestMigrateBackup(t *testing.T) {
	dir := t.TempDir()
	log := slog.New(slog.NewTextHandler(io.Discard, nil))
	srcPath := filepath.Join(dir, "backup.db")
	id := seedBackup(t, srcPath)

	src, err := OpenSqlite(srcPath)
	require.NoError(t, err)
	dst, err := OpenSqlite(filepath.Join(dir, "main.db"))
	require.NoError(t, err)

	counts, err := MigrateBackup(src, dst, log)
	require.NoError(t, err)
	assert.Equal(t, int64(1), counts["drivers"])
	assert.Equal(t, int64(1), counts["sessions"])
	assert.Equal(t, int64(3), counts["snapshots"])
	assert.Equal(t, int64(1), counts["signals"])
	assert.Equal(t, int64(0), counts["pipeline_performances"])

	var snaps []model.SnapshotRecord
	require.NoError(t, dst.Where("session_id = ?", id).Order("seq").Find(&snaps).Error)
	require.Len(t, snaps, 3)
	assert.Equal(t, uint64(3), snaps[2].Seq)

	// existing keys are skipped on a second pass
	counts, err = MigrateBackup(src, dst, log)
	require.NoError(t, err)
	assert.Equal(t, int64(0), counts["drivers"])
	assert.Equal(t, int64(0), counts["sessions"])
}
