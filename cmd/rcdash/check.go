package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/rcdash/telemetry/internal/api"
	"github.com/rcdash/telemetry/internal/config"
	"github.com/rcdash/telemetry/internal/logging"
)

const checkTimeout = 10 * time.Second

// cliLogger logs to stderr so command output on stdout stays clean.
func cliLogger() *slog.Logger {
	m := logging.NewSlogManager()
	m.Setup(logging.Options{
		File:  os.Stderr,
		Level: viper.GetString("logLevel"),
	})
	return m.Logger()
}

func newCheckCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "check",
		Short: "Probe the live-signal device and the upload endpoint",
		RunE: func(cmd *cobra.Command, args []string) error {
			srcCfg, err := config.GetSourceConfig()
			if err != nil && !errors.Is(err, config.ErrMissingSetting) {
				return err
			}
			return check(cmd.Context(), srcCfg.Live, config.GetUploadConfig(), cliLogger())
		},
	}
}

func check(ctx context.Context, live config.LiveConfig, upload config.UploadConfig, log *slog.Logger) error {
	ctx, cancel := context.WithTimeout(ctx, checkTimeout)
	defer cancel()

	var errs []error
	device := api.New(live.HealthURL, "")
	if err := device.Healthcheck(ctx); err != nil {
		log.Error("Live-signal device is offline", "url", device.BaseURL(), "error", err)
		errs = append(errs, fmt.Errorf("device: %w", err))
	} else {
		log.Info("Live-signal device is online", "url", device.BaseURL())
	}

	if upload.Enabled {
		frontend := api.New(upload.URL, upload.APIKey)
		if err := frontend.Healthcheck(ctx); err != nil {
			log.Error("Upload endpoint is offline", "url", frontend.BaseURL(), "error", err)
			errs = append(errs, fmt.Errorf("upload: %w", err))
		} else {
			log.Info("Upload endpoint is online", "url", frontend.BaseURL())
		}
	}
	return errors.Join(errs...)
}
