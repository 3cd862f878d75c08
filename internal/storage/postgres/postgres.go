// Package postgres records sessions to PostgreSQL through the GORM backend.
package postgres

import (
	"log/slog"

	"github.com/rcdash/telemetry/internal/config"
	"github.com/rcdash/telemetry/internal/database"
	gormstorage "github.com/rcdash/telemetry/internal/storage/gorm"

	"gorm.io/gorm"
)

// New returns a GORM backend that connects to cfg on Init.
func New(cfg config.DBConfig, log *slog.Logger) *gormstorage.Backend {
	return gormstorage.New(gormstorage.Dependencies{
		Open: func() (*gorm.DB, error) {
			return database.OpenPostgres(cfg)
		},
		Logger: log,
	})
}
