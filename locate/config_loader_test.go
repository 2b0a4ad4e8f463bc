package locate

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const sampleConfig = `
solver:
  ransacIterations: 250
  ransacThresholdM: 12.5
  seed: 7
cameras:
  - id: cam-north
    position: {x: 0, y: 1500, z: 40}
    color: "#FF0000"
  - id: cam-east
    position: {x: 1500, y: 0, z: 35}
mqtt:
  broker: tcp://localhost:1883
  observationTopic: sky/obs/+
  publishPrefix: sky
window: 3s
`

func TestParseConfig(t *testing.T) {
	cfg, err := ParseConfig([]byte(sampleConfig))
	require.NoError(t, err)

	defaults := DefaultSolverConfig()
	assert.Equal(t, 250, cfg.Solver.RansacIterations)
	assert.Equal(t, 12.5, cfg.Solver.RansacThresholdM)
	assert.Equal(t, int64(7), cfg.Solver.Seed)
	// untouched fields keep their defaults
	assert.Equal(t, defaults.MinLinesPerTarget, cfg.Solver.MinLinesPerTarget)
	assert.Equal(t, defaults.LMIterations, cfg.Solver.LMIterations)
	assert.Equal(t, defaults.LMInitialLambda, cfg.Solver.LMInitialLambda)

	require.Len(t, cfg.Cameras, 2)
	assert.Equal(t, Position{X: 0, Y: 1500, Z: 40}, cfg.Cameras[0].Position)
	assert.Equal(t, "#FF0000", cfg.Cameras[0].Color)
	assert.Equal(t, "sky/obs/+", cfg.MQTT.ObservationTopic)
	assert.Equal(t, 3*time.Second, cfg.GetWindow())

	cam := cfg.GetCameraByID("cam-east")
	require.NotNil(t, cam)
	assert.Equal(t, 1500.0, cam.Position.X)
	assert.Nil(t, cfg.GetCameraByID("missing"))
}

func TestParseConfig_Invalid(t *testing.T) {
	tests := []struct {
		name    string
		yaml    string
		wantErr string
	}{
		{"bad yaml", "solver: [", "parsing config YAML"},
		{"bad params", "solver:\n  minLinesPerTarget: 1\n", "minLinesPerTarget"},
		{"missing camera id", "cameras:\n  - position: {x: 1}\n", "camera[0].id is required"},
		{"duplicate camera", "cameras:\n  - id: a\n  - id: a\n", "duplicated"},
		{"bad window", "window: soon\n", "parsing window"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ParseConfig([]byte(tt.yaml))
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestLoadConfig_MissingFile(t *testing.T) {
	_, err := LoadConfig(filepath.Join(t.TempDir(), "nope.yaml"))
	require.Error(t, err)
	assert.True(t, strings.HasPrefix(err.Error(), "config file not found"))
}

func TestSaveConfig_RoundTrip(t *testing.T) {
	cfg, err := ParseConfig([]byte(sampleConfig))
	require.NoError(t, err)

	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, SaveConfig(path, cfg))

	_, err = os.Stat(path)
	require.NoError(t, err)

	loaded, err := LoadConfig(path)
	require.NoError(t, err)
	assert.Equal(t, cfg, loaded)
}

func TestGetWindow_Default(t *testing.T) {
	cfg := &Config{}
	assert.Equal(t, DefaultWindow, cfg.GetWindow())
}
