package database

import (
	"fmt"
	"log/slog"
	"path/filepath"
	"sort"

	"github.com/rcdash/telemetry/internal/model"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

const migrateBatchSize = 1000

// MigratedSuffix is appended to a backup file once its rows were copied.
const MigratedSuffix = ".migrated"

// GetBackupDBPaths lists the SQLite dumps in dir.
func GetBackupDBPaths(dir string) ([]string, error) {
	paths, err := filepath.Glob(filepath.Join(dir, "*.db"))
	if err != nil {
		return nil, fmt.Errorf("error listing backups in %s: %w", dir, err)
	}
	sort.Strings(paths)
	return paths, nil
}

// MigrateBackup copies every recorded row from src into dst in one
// transaction and returns the number of rows inserted per table. Rows that
// already exist in dst are skipped.
func MigrateBackup(src, dst *gorm.DB, log *slog.Logger) (map[string]int64, error) {
	if err := Setup(dst, log); err != nil {
		return nil, err
	}

	counts := map[string]int64{}
	err := dst.Transaction(func(tx *gorm.DB) error {
		steps := []struct {
			table string
			run   func() (int64, error)
		}{
			{"drivers", func() (int64, error) { return migrateTable[model.Driver](src, tx, log, nil) }},
			{"sessions", func() (int64, error) { return migrateTable[model.Session](src, tx, log, nil) }},
			{"snapshots", func() (int64, error) {
				return migrateTable(src, tx, log, func(r *model.SnapshotRecord) { r.ID = 0 })
			}},
			{"signals", func() (int64, error) {
				return migrateTable(src, tx, log, func(r *model.SignalRecord) { r.ID = 0 })
			}},
			{"pipeline_performances", func() (int64, error) { return migrateTable[model.PipelinePerformance](src, tx, log, nil) }},
		}
		for _, step := range steps {
			n, err := step.run()
			if err != nil {
				return fmt.Errorf("error migrating %s: %w", step.table, err)
			}
			counts[step.table] = n
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return counts, nil
}

// migrateTable copies all rows of M. prepare may clear generated keys so
// the destination assigns its own.
func migrateTable[M any](src, dst *gorm.DB, log *slog.Logger, prepare func(*M)) (int64, error) {
	var rows []M
	if err := src.Find(&rows).Error; err != nil {
		return 0, err
	}
	log.Info("Found records", "count", len(rows), "table", fmt.Sprintf("%T", *new(M)))
	if len(rows) == 0 {
		return 0, nil
	}

	if prepare != nil {
		for i := range rows {
			prepare(&rows[i])
		}
	}

	res := dst.Omit(clause.Associations).
		Clauses(clause.OnConflict{DoNothing: true}).
		CreateInBatches(rows, migrateBatchSize)
	return res.RowsAffected, res.Error
}
