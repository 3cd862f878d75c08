package display

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rcdash/telemetry/pkg/core"
)

func count(lights [RevLightCount]Light, want Light) int {
	n := 0
	for _, l := range lights {
		if l == want {
			n++
		}
	}
	return n
}

func TestRevLights(t *testing.T) {
	tests := []struct {
		rpm   float64
		green int
		red   int
		shift int
	}{
		{0, 0, 0, 0},
		{800, 1, 0, 0},
		{4400, 6, 0, 0},
		{6400, 0, 8, 0},
		{7200, 0, 9, 0},
		{7300, 0, 0, 10},
		{8000, 0, 0, 10},
	}
	for _, tt := range tests {
		lights := RevLights(tt.rpm, 8000)
		assert.Equal(t, tt.green, count(lights, LightGreen), "green at %v", tt.rpm)
		assert.Equal(t, tt.red, count(lights, LightRed), "red at %v", tt.rpm)
		assert.Equal(t, tt.shift, count(lights, LightShift), "shift at %v", tt.rpm)
		assert.Equal(t, RevLightCount, tt.green+tt.red+tt.shift+count(lights, LightOff))
	}

	assert.Equal(t, LightOff, RevLights(8000, 0)[0])
}

func TestNeedleAngle(t *testing.T) {
	assert.Equal(t, -135.0, NeedleAngle(0, 280))
	assert.Equal(t, 0.0, NeedleAngle(140, 280))
	assert.Equal(t, 135.0, NeedleAngle(280, 280))
	assert.Equal(t, 135.0, NeedleAngle(400, 280))
	assert.Equal(t, 0.0, NeedleAngle(40, 80))
	assert.Equal(t, -135.0, NeedleAngle(10, 0))
}

func TestFormatElapsed(t *testing.T) {
	assert.Equal(t, "00:00", FormatElapsed(0))
	assert.Equal(t, "00:59", FormatElapsed(59*time.Second+900*time.Millisecond))
	assert.Equal(t, "01:05", FormatElapsed(65*time.Second))
	assert.Equal(t, "75:00", FormatElapsed(75*time.Minute))
	assert.Equal(t, "00:00", FormatElapsed(-time.Second))
}

func TestFrameJSON(t *testing.T) {
	sc := Scale{MaxSpeedKmh: 80}
	f := sc.NewFrame(core.Snapshot{Seq: 3, SpeedKmh: 40, RPM: 4400, Gear: core.Gear3}, 65*time.Second)

	b, err := json.Marshal(f)
	require.NoError(t, err)

	var m map[string]any
	require.NoError(t, json.Unmarshal(b, &m))
	assert.Equal(t, "3", m["gear"])
	assert.Equal(t, 40.0, m["speedKmh"])
	assert.Equal(t, 0.0, m["needleDeg"])
	assert.Equal(t, "01:05", m["elapsed"])
	assert.Len(t, m["revLights"], RevLightCount)
}
