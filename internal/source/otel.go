package source

import (
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/metric/noop"
)

const instrumentationName = "github.com/rcdash/telemetry/internal/source"

type instruments struct {
	published  metric.Int64Counter
	skipped    metric.Int64Counter
	reconnects metric.Int64Counter
}

// newInstruments registers the source counters on the global meter. Errors
// fall back to no-op counters so that metrics never stop a source.
func newInstruments() instruments {
	m := otel.Meter(instrumentationName)
	var in instruments
	var err error
	if in.published, err = m.Int64Counter("source.snapshots.published",
		metric.WithDescription("Snapshots published to the render layer")); err != nil {
		otel.Handle(err)
		in.published = noop.Int64Counter{}
	}
	if in.skipped, err = m.Int64Counter("source.signals.skipped",
		metric.WithDescription("Raw signals skipped as incomplete or malformed")); err != nil {
		otel.Handle(err)
		in.skipped = noop.Int64Counter{}
	}
	if in.reconnects, err = m.Int64Counter("source.reconnects",
		metric.WithDescription("Live subscription reconnect attempts")); err != nil {
		otel.Handle(err)
		in.reconnects = noop.Int64Counter{}
	}
	return in
}
