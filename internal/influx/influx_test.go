package influx

import (
	"bufio"
	"compress/gzip"
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	influxdb2_write "github.com/influxdata/influxdb-client-go/v2/api/write"
	"github.com/rcdash/telemetry/internal/config"
	"github.com/rcdash/telemetry/internal/dispatcher"
	"github.com/rcdash/telemetry/pkg/core"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func unreachableConfig() config.InfluxConfig {
	return config.InfluxConfig{
		Enabled:  true,
		Host:     "127.0.0.1",
		Port:     "1",
		Protocol: "http",
		Org:      "rcdash",
		Bucket:   "telemetry",
	}
}

func TestConnectDisabled(t *testing.T) {
	m := NewManager(config.InfluxConfig{}, zerolog.Nop(), "")
	assert.Error(t, m.Connect(context.Background()))
}

func TestServerURL(t *testing.T) {
	m := NewManager(unreachableConfig(), zerolog.Nop(), "")
	assert.Equal(t, "http://127.0.0.1:1", m.ServerURL())
	assert.Equal(t, []string{"telemetry", PerformanceBucket}, m.BucketNames)
}

func TestSnapshotPoint(t *testing.T) {
	s := core.Snapshot{
		Seq:         3,
		Time:        time.Unix(1700000000, 0),
		Source:      "simulated",
		SpeedKmh:    87,
		RPM:         5219,
		Gear:        core.Gear2,
		TurboActive: true,
		Tires:       []core.Tire{{TemperatureC: 78.5, PressurePsi: 25}},
	}

	line := influxdb2_write.PointToLineProtocol(SnapshotPoint(s, "abc"), time.Second)

	assert.True(t, strings.HasPrefix(line, "vehicle,"), line)
	assert.Contains(t, line, "gear=2")
	assert.Contains(t, line, "session=abc")
	assert.Contains(t, line, "source=simulated")
	assert.Contains(t, line, "speed_kmh=87i")
	assert.Contains(t, line, "rpm=5219i")
	assert.Contains(t, line, "turbo=true")
	assert.Contains(t, line, "tire0_temp_c=78.5")
	assert.True(t, strings.HasSuffix(strings.TrimSpace(line), " 1700000000"), line)
}

func TestBackupWriterWhenUnreachable(t *testing.T) {
	backup := filepath.Join(t.TempDir(), "influx.backup.gz")
	m := NewManager(unreachableConfig(), zerolog.Nop(), backup)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	require.NoError(t, m.Connect(ctx))
	assert.False(t, m.IsValid)

	sink := m.SnapshotSink("abc")
	require.NoError(t, sink(dispatcher.SnapshotEvent(core.Snapshot{Seq: 1, Time: time.Unix(1, 0), Gear: core.Gear1})))
	require.NoError(t, sink(dispatcher.SnapshotEvent(core.Snapshot{Seq: 2, Time: time.Unix(2, 0), Gear: core.Gear1})))
	require.NoError(t, sink(dispatcher.Event{Kind: dispatcher.KindSnapshot}))
	require.NoError(t, m.Close())
	require.NoError(t, m.Close())

	f, err := os.Open(backup)
	require.NoError(t, err)
	defer f.Close()
	gz, err := gzip.NewReader(f)
	require.NoError(t, err)

	var lines []string
	scanner := bufio.NewScanner(gz)
	for scanner.Scan() {
		lines = append(lines, scanner.Text())
	}
	require.NoError(t, scanner.Err())
	require.Len(t, lines, 2)
	assert.Contains(t, lines[1], "seq=2")
}

func TestWritePointUnknownBucket(t *testing.T) {
	m := NewManager(unreachableConfig(), zerolog.Nop(), "")
	m.IsValid = true

	err := m.WritePoint("missing", influxdb2_write.NewPointWithMeasurement("x").AddField("v", 1))
	assert.Error(t, err)
}

func TestWritePointWithoutBackup(t *testing.T) {
	m := NewManager(unreachableConfig(), zerolog.Nop(), "")

	err := m.WritePoint("telemetry", influxdb2_write.NewPointWithMeasurement("x").AddField("v", 1))
	assert.Error(t, err)
}
