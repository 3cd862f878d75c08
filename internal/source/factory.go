package source

import (
	"fmt"

	"github.com/rcdash/telemetry/internal/config"
)

// New builds the source named by cfg.Type. There is no default type.
func New(cfg config.SourceConfig, opts ...Option) (TelemetrySource, error) {
	switch cfg.Type {
	case TypeSimulated:
		return NewSimulated(SimulatedConfig{
			TickInterval: cfg.TickInterval,
			Seed:         cfg.Seed,
		}, opts...), nil
	case TypeLive:
		return NewLive(LiveConfig{
			URL:            cfg.Live.URL,
			MaxSpeedKmh:    cfg.Live.MaxSpeedKmh,
			InitialBackoff: cfg.Live.InitialBackoff,
			MaxBackoff:     cfg.Live.MaxBackoff,
			MaxAttempts:    cfg.Live.MaxAttempts,
		}, opts...)
	default:
		return nil, fmt.Errorf("unknown source type %q (want %s or %s)", cfg.Type, TypeSimulated, TypeLive)
	}
}
