package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"sync/atomic"
	"syscall"

	"github.com/nats-io/nats.go"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"gorm.io/gorm"

	"github.com/rcdash/telemetry/internal/config"
	"github.com/rcdash/telemetry/internal/dispatcher"
	"github.com/rcdash/telemetry/internal/display"
	"github.com/rcdash/telemetry/internal/hub"
	"github.com/rcdash/telemetry/internal/influx"
	"github.com/rcdash/telemetry/internal/logging"
	"github.com/rcdash/telemetry/internal/monitor"
	"github.com/rcdash/telemetry/internal/natsbus"
	"github.com/rcdash/telemetry/internal/session"
	"github.com/rcdash/telemetry/internal/source"
	"github.com/rcdash/telemetry/internal/worker"
	"github.com/rcdash/telemetry/pkg/core"
)

func newRunCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "run",
		Short: "Run the telemetry engine until interrupted",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			return run(ctx)
		},
	}
}

// cleanup runs registered functions in reverse order.
type cleanup []func()

func (c *cleanup) add(fn func()) { *c = append(*c, fn) }

func (c cleanup) run() {
	for i := len(c) - 1; i >= 0; i-- {
		c[i]()
	}
}

func run(ctx context.Context) error {
	srcCfg, err := config.GetSourceConfig()
	if err != nil {
		return err
	}
	dispCfg, err := config.GetDisplayConfig()
	if err != nil {
		return err
	}

	e, err := setupEnv()
	if err != nil {
		return err
	}
	var closers cleanup
	defer func() {
		closers.run()
		if err := e.close(); err != nil {
			fmt.Fprintln(os.Stderr, "Error closing logs:", err)
		}
	}()
	log := e.log
	log.Info("Starting up", "version", Version, "buildDate", BuildDate, "source", srcCfg.Type)

	natsCfg := config.GetNATSConfig()
	sessionCfg := config.GetSessionConfig()
	var nc *nats.Conn
	if natsCfg.Enabled || sessionCfg.Store == "nats" {
		nc, err = natsbus.Connect(natsCfg, log)
		if err != nil {
			return err
		}
		closers.add(func() {
			if err := nc.Drain(); err != nil {
				log.Warn("Failed to drain NATS connection", "error", err)
			}
		})
	}

	store, err := openSessionStore(ctx, sessionCfg, natsCfg, nc)
	if err != nil {
		return err
	}
	sess, err := session.Open(ctx, store, sessionCfg.Key, sessionCfg.Username, srcCfg.Type)
	if err != nil {
		return fmt.Errorf("failed to open session: %w", err)
	}
	sessionID := sess.ID().String()
	e.setSessionID(sessionID)
	log.Info("Session opened", "user", sess.User().Username)

	d, err := dispatcher.New(logging.NewDispatcherLogger(log))
	if err != nil {
		return fmt.Errorf("failed to create dispatcher: %w", err)
	}

	var published atomic.Uint64
	var clients func() int

	hubCfg := config.GetHubConfig()
	if hubCfg.Enabled {
		h := hub.New(hub.Config{
			Addr:           hubCfg.Addr,
			AllowedOrigins: hubCfg.AllowedOrigins,
		}, display.Scale{
			MaxSpeedKmh: dispCfg.MaxSpeedKmh,
			MaxRPM:      dispCfg.MaxRPM,
		}, hub.WithElapsed(sess.Elapsed), hub.WithLogger(log))
		if _, err := h.Start(); err != nil {
			return fmt.Errorf("failed to start render gateway: %w", err)
		}
		closers.add(func() {
			if err := h.Shutdown(context.Background()); err != nil {
				log.Warn("Render gateway shutdown", "error", err)
			}
		})
		d.Register(dispatcher.KindSnapshot, "hub", func(ev dispatcher.Event) error {
			h.Publish(*ev.Snapshot)
			return nil
		})
		clients = func() int { return int(h.Clients()) }
	}

	storageCfg := config.GetStorageConfig()
	uploadCfg := config.GetUploadConfig()
	backend, err := createStorageBackend(storageCfg, uploadCfg, srcCfg.TickInterval, log)
	if err != nil {
		return err
	}
	if err := backend.Init(); err != nil {
		return fmt.Errorf("failed to initialize storage backend: %w", err)
	}
	closers.add(func() {
		if err := backend.Close(); err != nil {
			log.Error("Failed to close storage backend", "error", err)
		}
	})

	wm := worker.NewManager(worker.Dependencies{
		Logger:     log,
		BufferSize: storageCfg.BufferSize,
	}, backend)
	wm.RegisterHandlers(d)

	influxCfg := config.GetInfluxConfig()
	if influxCfg.Enabled {
		im := influx.NewManager(influxCfg, e.zerolog("influx"),
			filepath.Join(viper.GetString("logsDir"), fmt.Sprintf("influx_%s.lp.gz", e.start.Format("20060102_150405"))))
		if err := im.Connect(ctx); err != nil {
			log.Error("Failed to connect to InfluxDB", "error", err)
		} else {
			closers.add(func() {
				if err := im.Close(); err != nil {
					log.Warn("Failed to close InfluxDB manager", "error", err)
				}
			})
			d.Register(dispatcher.KindSnapshot, "influx", im.SnapshotSink(sessionID),
				dispatcher.Buffered(storageCfg.BufferSize), dispatcher.Logged())
		}
	}

	if natsCfg.Enabled && nc != nil {
		pub := natsbus.NewPublisher(nc, natsCfg.Subject, log)
		d.Register(dispatcher.KindSnapshot, "nats", pub.HandleSnapshot,
			dispatcher.Buffered(storageCfg.BufferSize), dispatcher.Logged())
	}

	closers.add(d.Close)

	var db *gorm.DB
	if b, ok := backend.(dbBackend); ok {
		db = b.DB()
	}
	monCfg := config.GetMonitorConfig()
	mon := monitor.NewService(monitor.Dependencies{
		DB:            db,
		Logger:        log,
		WorkerManager: wm,
		Queues:        d,
		Clients:       clients,
		Published:     published.Load,
		SessionID:     sessionID,
		StatusFile:    monCfg.StatusFile,
		Interval:      monCfg.Interval,
	})
	if err := mon.Start(); err != nil {
		log.Warn("Failed to start status monitor", "error", err)
	} else {
		closers.add(mon.Stop)
	}

	src, err := source.New(srcCfg,
		source.WithLogger(log),
		source.WithSignalHook(func(sig core.RawSignal) {
			if err := d.Dispatch(dispatcher.SignalEvent(sig)); err != nil {
				log.Debug("Signal dispatch", "error", err)
			}
		}))
	if err != nil {
		return err
	}

	sess.Start()
	if err := backend.StartSession(sess.Record()); err != nil {
		log.Error("Failed to start session in storage backend", "error", err)
	}
	closers.add(func() {
		if err := src.Stop(); err != nil {
			log.Warn("Failed to stop source", "error", err)
		}
		// drain the recorder before the backend closes the session
		d.Close()
		endSession(sess, backend, uploadCfg, log)
	})

	snapshots, err := src.Start(ctx)
	if err != nil {
		return fmt.Errorf("failed to start source: %w", err)
	}
	log.Info("Engine running", "source", src.Name())

	err = pump(ctx, snapshots, d.Dispatch, &published, log)
	log.Info("Shutting down", "published", published.Load(), "elapsed", display.FormatElapsed(sess.Elapsed()))
	return err
}

// errSourceEnded means the source closed its channel while the process was
// still meant to run, e.g. after the live reconnect attempts ran out.
var errSourceEnded = errors.New("telemetry source ended before shutdown")

// pump dispatches every snapshot until the source closes its channel.
func pump(ctx context.Context, snapshots <-chan core.Snapshot, dispatch func(dispatcher.Event) error, published *atomic.Uint64, log *slog.Logger) error {
	for snap := range snapshots {
		published.Add(1)
		if err := dispatch(dispatcher.SnapshotEvent(snap)); err != nil {
			log.Debug("Snapshot dispatch", "seq", snap.Seq, "error", err)
		}
	}

	err := ctx.Err()
	switch {
	case err == nil:
		return errSourceEnded
	case errors.Is(err, context.Canceled):
		return nil
	default:
		return err
	}
}
