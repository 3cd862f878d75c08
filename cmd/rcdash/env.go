package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"
	"sync/atomic"
	"time"

	"github.com/Graylog2/go-gelf/gelf"
	"github.com/rs/zerolog"
	"github.com/spf13/viper"

	"github.com/rcdash/telemetry/internal/config"
	"github.com/rcdash/telemetry/internal/logging"
	intOtel "github.com/rcdash/telemetry/internal/otel"
)

const serviceName = "rcdash"

// env holds the logging and telemetry plumbing shared by every command.
type env struct {
	start     time.Time
	logs      *logging.SlogManager
	log       *slog.Logger
	logFile   *os.File
	logPath   string
	otel      *intOtel.Provider
	graylog   *gelf.Writer
	sessionID atomic.Value
}

// setupEnv creates the log file, the OTel providers and the slog logger.
// Failures of optional outputs are logged and skipped.
func setupEnv() (*env, error) {
	e := &env{
		start: time.Now(),
		logs:  logging.NewSlogManager(),
	}
	e.sessionID.Store("")

	logsDir := viper.GetString("logsDir")
	if err := os.MkdirAll(logsDir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create logs dir: %w", err)
	}
	e.logPath = logging.LogFilePath(logsDir, serviceName, e.start)
	if _, err := os.Stat(e.logPath); err == nil {
		_ = os.Rename(e.logPath, e.logPath+".old")
	}
	f, err := os.OpenFile(e.logPath, os.O_RDWR|os.O_CREATE|os.O_APPEND, 0666)
	if err != nil {
		return nil, fmt.Errorf("failed to open log file: %w", err)
	}
	e.logFile = f

	// console and file both get the text output until the full setup below
	e.logs.Setup(logging.Options{
		File:  io.MultiWriter(os.Stdout, f),
		Level: viper.GetString("logLevel"),
	})
	bootLog := e.logs.Logger()

	otelCfg := config.GetOTelConfig()
	e.otel, err = intOtel.New(intOtel.Config{
		Enabled:        otelCfg.Enabled,
		ServiceName:    otelCfg.ServiceName,
		BatchTimeout:   otelCfg.BatchTimeout,
		LogWriter:      f,
		MetricWriter:   f,
		MetricInterval: otelCfg.MetricInterval,
		Endpoint:       otelCfg.Endpoint,
		Insecure:       otelCfg.Insecure,
	})
	if err != nil {
		bootLog.Error("Failed to initialize OTel provider", "error", err)
		e.otel, _ = intOtel.New(intOtel.Config{})
	}

	if gl := config.GetGraylogConfig(); gl.Enabled {
		e.graylog, err = logging.NewGraylogWriter(gl.Address)
		if err != nil {
			bootLog.Error("Failed to set up Graylog output", "error", err)
		}
	}

	opts := logging.Options{
		File:        io.MultiWriter(os.Stdout, f),
		Level:       viper.GetString("logLevel"),
		Provider:    e.otel.LoggerProvider(),
		ServiceName: otelCfg.ServiceName,
		Context:     logging.SessionAttrs(e.currentSessionID),
	}
	if e.graylog != nil {
		opts.Graylog = e.graylog
	}
	e.logs.Setup(opts)
	e.log = e.logs.Logger()
	e.log.Info("Logging to file", "path", e.logPath)
	return e, nil
}

func (e *env) currentSessionID() string {
	id, _ := e.sessionID.Load().(string)
	return id
}

// setSessionID tags every following log record with id.
func (e *env) setSessionID(id string) {
	e.sessionID.Store(id)
}

// zerolog builds the logger used by the InfluxDB manager, writing to the
// same file at the same level.
func (e *env) zerolog(component string) zerolog.Logger {
	lvl, err := zerolog.ParseLevel(strings.ToLower(e.logs.Level().String()))
	if err != nil {
		lvl = zerolog.InfoLevel
	}
	return zerolog.New(e.logFile).Level(lvl).With().
		Timestamp().
		Str("component", component).
		Logger()
}

// close flushes and releases everything setupEnv created.
func (e *env) close() error {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	var errs []error
	if err := e.otel.Flush(ctx); err != nil {
		errs = append(errs, err)
	}
	if err := e.otel.Shutdown(ctx); err != nil {
		errs = append(errs, err)
	}
	errs = append(errs, e.logFile.Close())
	return errors.Join(errs...)
}
