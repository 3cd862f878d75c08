package source

import (
	"context"
	"math/rand/v2"
	"time"

	"github.com/rcdash/telemetry/internal/telemetry"
	"github.com/rcdash/telemetry/pkg/core"
)

// SimulatedConfig configures the simulation.
type SimulatedConfig struct {
	// TickInterval defaults to telemetry.TickInterval.
	TickInterval time.Duration
	// Seed makes runs reproducible. Zero seeds from the clock.
	Seed uint64
}

// SimulatedSource owns one VehicleState and advances it on a fixed tick.
type SimulatedSource struct {
	lifecycle
	cfg   SimulatedConfig
	opts  options
	rng   telemetry.Rand
	inst  instruments
	state telemetry.VehicleState
	seq   uint64
}

// NewSimulated creates a simulation source. It does nothing until Start.
func NewSimulated(cfg SimulatedConfig, opts ...Option) *SimulatedSource {
	if cfg.TickInterval <= 0 {
		cfg.TickInterval = telemetry.TickInterval
	}
	seed := cfg.Seed
	if seed == 0 {
		seed = uint64(time.Now().UnixNano())
	}
	return &SimulatedSource{
		cfg:   cfg,
		opts:  buildOptions(TypeSimulated, opts),
		rng:   rand.New(rand.NewPCG(seed, seed^0x9e3779b97f4a7c15)),
		inst:  newInstruments(),
		state: telemetry.NewVehicleState(),
	}
}

func (s *SimulatedSource) Name() string { return TypeSimulated }

// Start publishes the initial state and then one snapshot per tick until
// ctx is cancelled or Stop is called.
func (s *SimulatedSource) Start(ctx context.Context) (<-chan core.Snapshot, error) {
	runCtx, err := s.begin(ctx)
	if err != nil {
		return nil, err
	}
	out := make(chan core.Snapshot, 1)
	s.emit(runCtx, out)

	go func() {
		defer s.finished()
		defer close(out)

		ticker := time.NewTicker(s.cfg.TickInterval)
		defer ticker.Stop()

		s.opts.logger.Info("Simulation started", "interval", s.cfg.TickInterval)
		for {
			select {
			case <-runCtx.Done():
				s.opts.logger.Info("Simulation stopped", "ticks", s.seq)
				return
			case <-ticker.C:
				in := telemetry.DrawInputs(s.rng, s.state.SpeedKmh)
				s.state = telemetry.Step(s.state, in)
				s.emit(runCtx, out)
			}
		}
	}()
	return out, nil
}

func (s *SimulatedSource) emit(ctx context.Context, out chan core.Snapshot) {
	snap := s.state.Snapshot()
	s.seq++
	snap.Seq = s.seq
	snap.Time = time.Now()
	snap.Source = TypeSimulated
	publish(out, snap)
	s.inst.published.Add(ctx, 1)
}

// Stop cancels the ticker and waits for the loop to exit.
func (s *SimulatedSource) Stop() error {
	s.stop()
	return nil
}
