// internal/storage/memory/export.go
package memory

import (
	"compress/gzip"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/rcdash/telemetry/pkg/core"
)

// ExportVersion is bumped whenever the export layout changes.
const ExportVersion = 1

// SessionExport is the root JSON structure of a recorded session
type SessionExport struct {
	Version         int            `json:"version"`
	SessionID       string         `json:"sessionId"`
	Driver          core.User      `json:"driver"`
	Source          string         `json:"source"`
	StartedAt       time.Time      `json:"startedAt"`
	EndedAt         *time.Time     `json:"endedAt,omitempty"`
	DurationSeconds float64        `json:"durationSeconds"`
	Elapsed         string         `json:"elapsed"`
	Summary         Summary        `json:"summary"`
	Snapshots       []SnapshotJSON `json:"snapshots"`
	Signals         []SignalJSON   `json:"signals"`
}

// Summary holds per-session aggregates.
type Summary struct {
	Snapshots       int     `json:"snapshots"`
	Signals         int     `json:"signals"`
	TopSpeedKmh     int     `json:"topSpeedKmh"`
	PeakRPM         int     `json:"peakRpm"`
	TopGear         string  `json:"topGear"`
	TurboSeconds    float64 `json:"turboSeconds"`
	AverageSpeedKmh float64 `json:"averageSpeedKmh"`
}

// SnapshotJSON is a snapshot as a compact positional array:
// [seq, unixMillis, speedKmh, rpm, gear, acceleration, braking, turbo, tires]
type SnapshotJSON []any

// SignalJSON is one raw signal. Absent fields are null.
type SignalJSON struct {
	Time  time.Time `json:"time"`
	Gas   *float64  `json:"gas"`
	Brake *float64  `json:"brake"`
	Gear  *string   `json:"gear"`
	Motor *int      `json:"motor"`
}

// BuildExport assembles the export document of one session.
// tickInterval is used to estimate time spent with the turbo on.
func BuildExport(s core.Session, snapshots []core.Snapshot, signals []core.RawSignal, tickInterval time.Duration) SessionExport {
	export := SessionExport{
		Version:         ExportVersion,
		SessionID:       s.ID.String(),
		Driver:          s.User,
		Source:          s.Source,
		StartedAt:       s.StartedAt,
		DurationSeconds: s.Duration.Seconds(),
		Elapsed:         formatElapsed(s.Duration),
		Snapshots:       make([]SnapshotJSON, 0, len(snapshots)),
		Signals:         make([]SignalJSON, 0, len(signals)),
	}
	if !s.EndedAt.IsZero() {
		ended := s.EndedAt
		export.EndedAt = &ended
	}

	var speedSum int
	topGear := core.GearNeutral
	for _, snap := range snapshots {
		tires := make([][]float64, 0, len(snap.Tires))
		for _, t := range snap.Tires {
			tires = append(tires, []float64{t.TemperatureC, t.PressurePsi})
		}
		export.Snapshots = append(export.Snapshots, SnapshotJSON{
			snap.Seq,
			snap.Time.UnixMilli(),
			snap.SpeedKmh,
			snap.RPM,
			snap.Gear.String(),
			snap.Acceleration,
			snap.Braking,
			boolToInt(snap.TurboActive),
			tires,
		})

		speedSum += snap.SpeedKmh
		export.Summary.TopSpeedKmh = max(export.Summary.TopSpeedKmh, snap.SpeedKmh)
		export.Summary.PeakRPM = max(export.Summary.PeakRPM, snap.RPM)
		topGear = max(topGear, snap.Gear)
		if snap.TurboActive {
			export.Summary.TurboSeconds += tickInterval.Seconds()
		}
	}

	for _, sig := range signals {
		export.Signals = append(export.Signals, SignalJSON{
			Time:  sig.ReceivedAt,
			Gas:   sig.Gas,
			Brake: sig.Brake,
			Gear:  sig.Gear,
			Motor: sig.Motor,
		})
	}

	export.Summary.Snapshots = len(snapshots)
	export.Summary.Signals = len(signals)
	export.Summary.TopGear = topGear.String()
	if len(snapshots) > 0 {
		export.Summary.AverageSpeedKmh = float64(speedSum) / float64(len(snapshots))
	}
	return export
}

// WriteExport encodes export to w, gzipped when compress is set.
func WriteExport(w io.Writer, export SessionExport, compress bool) error {
	if !compress {
		return json.NewEncoder(w).Encode(export)
	}

	gzWriter := gzip.NewWriter(w)
	if err := json.NewEncoder(gzWriter).Encode(export); err != nil {
		gzWriter.Close()
		return err
	}
	return gzWriter.Close()
}

// ExportFileName is <driver>_<yyyymmdd_hhmmss>_<session id>.json[.gz]
func ExportFileName(s core.Session, compress bool) string {
	driver := s.User.Username
	if driver == "" {
		driver = "anonymous"
	}
	driver = strings.NewReplacer(" ", "_", ":", "_", "/", "_").Replace(driver)

	name := fmt.Sprintf("%s_%s_%s.json", driver, s.StartedAt.Format("20060102_150405"), s.ID)
	if compress {
		name += ".gz"
	}
	return name
}

// exportJSON writes the session data to a JSON file in the output directory
func (b *Backend) exportJSON() error {
	if b.session == nil {
		return fmt.Errorf("no session started")
	}

	export := BuildExport(*b.session, b.snapshots, b.signals, b.tickInterval)

	if err := os.MkdirAll(b.cfg.OutputDir, 0755); err != nil {
		return fmt.Errorf("failed to create output directory: %w", err)
	}

	outputPath := filepath.Join(b.cfg.OutputDir, ExportFileName(*b.session, b.cfg.CompressOutput))
	f, err := os.Create(outputPath)
	if err != nil {
		return fmt.Errorf("failed to create file: %w", err)
	}
	if err := WriteExport(f, export, b.cfg.CompressOutput); err != nil {
		f.Close()
		return fmt.Errorf("failed to write export: %w", err)
	}
	if err := f.Close(); err != nil {
		return err
	}

	b.lastExportPath = outputPath
	return nil
}

func formatElapsed(d time.Duration) string {
	secs := int(d.Seconds())
	return fmt.Sprintf("%02d:%02d", secs/60, secs%60)
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
