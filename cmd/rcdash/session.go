package main

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/nats-io/nats.go"

	"github.com/rcdash/telemetry/internal/api"
	"github.com/rcdash/telemetry/internal/config"
	"github.com/rcdash/telemetry/internal/display"
	"github.com/rcdash/telemetry/internal/natsbus"
	"github.com/rcdash/telemetry/internal/session"
	"github.com/rcdash/telemetry/internal/storage"
)

const uploadTimeout = 2 * time.Minute

// openSessionStore returns the store holding the user record. nc is only
// used by the nats store.
func openSessionStore(ctx context.Context, cfg config.SessionConfig, natsCfg config.NATSConfig, nc *nats.Conn) (session.Store, error) {
	switch cfg.Store {
	case "memory", "":
		return session.NewMemoryStore(), nil
	case "nats":
		if nc == nil {
			return nil, fmt.Errorf("session store nats needs a NATS connection")
		}
		return natsbus.NewKVStore(ctx, nc, natsCfg.Bucket)
	default:
		return nil, fmt.Errorf("unknown session store %q", cfg.Store)
	}
}

// endSession stops the clock, closes the session in storage and uploads
// the export file when the backend wrote one.
func endSession(sess *session.Session, backend storage.Backend, uploadCfg config.UploadConfig, log *slog.Logger) {
	elapsed := sess.Stop()
	rec := sess.Record()
	if err := backend.EndSession(rec); err != nil {
		log.Error("Failed to end session in storage backend", "error", err)
		return
	}
	log.Info("Session ended", "elapsed", display.FormatElapsed(elapsed))

	up, ok := backend.(storage.Uploadable)
	if !ok || !uploadCfg.Enabled {
		return
	}
	path := up.GetExportedFilePath()
	if path == "" {
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), uploadTimeout)
	defer cancel()
	client := api.New(uploadCfg.URL, uploadCfg.APIKey)
	err := client.Upload(ctx, path, api.UploadMetadata{
		SessionID:       rec.ID.String(),
		Driver:          rec.User.Username,
		Source:          rec.Source,
		DurationSeconds: rec.Duration.Seconds(),
	})
	if err != nil {
		log.Error("Failed to upload recording, file kept on disk", "path", path, "error", err)
		return
	}
	log.Info("Recording uploaded", "path", path, "url", client.BaseURL())
}
