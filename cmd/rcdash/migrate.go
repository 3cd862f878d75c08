package main

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/rcdash/telemetry/internal/config"
	"github.com/rcdash/telemetry/internal/database"
)

func newMigrateCmd() *cobra.Command {
	var dir string
	cmd := &cobra.Command{
		Use:   "migrate [backup.db...]",
		Short: "Copy SQLite recordings into the postgres database",
		Long: `Copies every session stored in SQLite dumps into postgres. Without
arguments all *.db files in --dir are migrated. Each migrated file is renamed
with a .migrated suffix.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			log := cliLogger()
			storageCfg := config.GetStorageConfig()

			paths := args
			if len(paths) == 0 {
				if dir == "" {
					dir = filepath.Dir(storageCfg.SQLite.Path)
				}
				var err error
				if paths, err = database.GetBackupDBPaths(dir); err != nil {
					return err
				}
			}
			if len(paths) == 0 {
				log.Info("No backups found", "dir", dir)
				return nil
			}

			postgresDB, err := database.OpenPostgres(storageCfg.DB)
			if err != nil {
				return fmt.Errorf("error getting postgres database: %w", err)
			}

			migrated := make([]string, 0, len(paths))
			for _, path := range paths {
				sqliteDB, err := database.OpenSqlite(path)
				if err != nil {
					return fmt.Errorf("error opening %s: %w", path, err)
				}
				counts, err := database.MigrateBackup(sqliteDB, postgresDB, log)
				if sqlDB, dbErr := sqliteDB.DB(); dbErr == nil {
					if cerr := sqlDB.Close(); cerr != nil {
						log.Error("Error closing sqlite connection", "error", cerr)
					}
				}
				if err != nil {
					return fmt.Errorf("error migrating %s: %w", path, err)
				}
				log.Info("Migrated backup", "path", path, "rows", counts)

				if err := os.Rename(path, path+database.MigratedSuffix); err != nil {
					log.Error("Error renaming sqlite file", "error", err)
				}
				migrated = append(migrated, path)
			}

			log.Info("Successfully migrated backups", "count", len(migrated), "paths", migrated)
			return nil
		},
	}
	cmd.Flags().StringVar(&dir, "dir", "", "directory with SQLite dumps (default: directory of storage.sqlite.path)")
	return cmd
}
