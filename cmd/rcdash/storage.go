package main

import (
	"fmt"
	"log/slog"
	"strings"
	"time"

	"gorm.io/gorm"

	"github.com/rcdash/telemetry/internal/config"
	"github.com/rcdash/telemetry/internal/database"
	"github.com/rcdash/telemetry/internal/storage"
	"github.com/rcdash/telemetry/internal/storage/memory"
	pgstorage "github.com/rcdash/telemetry/internal/storage/postgres"
	sqlitestorage "github.com/rcdash/telemetry/internal/storage/sqlite"
	wsstorage "github.com/rcdash/telemetry/internal/storage/websocket"
)

// dbBackend is implemented by the backends writing through gorm.
type dbBackend interface {
	DB() *gorm.DB
}

func createStorageBackend(storageCfg config.StorageConfig, uploadCfg config.UploadConfig, tickInterval time.Duration, log *slog.Logger) (storage.Backend, error) {
	switch storageCfg.Type {
	case "none":
		log.Info("Recording disabled")
		return storage.Nop{}, nil

	case "postgres":
		log.Info("Postgres storage backend initialized", "host", storageCfg.DB.Host)
		return pgstorage.New(storageCfg.DB, log), nil

	case "sqlite":
		backend, err := sqlitestorage.New(storageCfg.SQLite, log)
		if err != nil {
			return nil, fmt.Errorf("failed to create SQLite backend: %w", err)
		}
		log.Info("SQLite storage backend initialized", "path", storageCfg.SQLite.Path)
		return backend, nil

	case "websocket":
		wsCfg := storageCfg.WebSocket
		if wsCfg.URL == "" {
			wsCfg.URL = httpToWS(uploadCfg.URL) + "/api"
		}
		if wsCfg.Secret == "" {
			wsCfg.Secret = uploadCfg.APIKey
		}
		log.Info("WebSocket storage backend initialized", "url", wsCfg.URL)
		return wsstorage.New(wsCfg, log), nil

	case "memory", "":
		log.Info("Memory storage backend initialized", "outputDir", storageCfg.Memory.OutputDir)
		return memory.New(storageCfg.Memory, tickInterval), nil

	default:
		return nil, fmt.Errorf("unknown storage type %q", storageCfg.Type)
	}
}

// openRecordingsDB opens the database recordings were written to, for the
// commands that read them back.
func openRecordingsDB(storageCfg config.StorageConfig) (*gorm.DB, error) {
	switch storageCfg.Type {
	case "postgres":
		return database.OpenPostgres(storageCfg.DB)
	case "sqlite":
		if storageCfg.SQLite.Path == "" {
			return nil, fmt.Errorf("storage.sqlite.path is not set")
		}
		return database.OpenSqlite(storageCfg.SQLite.Path)
	default:
		return nil, fmt.Errorf("storage type %q keeps no database, use sqlite or postgres", storageCfg.Type)
	}
}

// httpToWS converts an HTTP(S) URL to a WebSocket URL.
func httpToWS(httpURL string) string {
	s := strings.TrimRight(httpURL, "/")
	s = strings.Replace(s, "https://", "wss://", 1)
	s = strings.Replace(s, "http://", "ws://", 1)
	return s
}
