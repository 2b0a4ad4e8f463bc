package locate

import (
	"time"

	"github.com/golang/geo/r3"
)

// DefaultWindow is how long the service buffers observations before solving.
const DefaultWindow = 5 * time.Second

// Position is a point in the shared Cartesian frame, in meters.
type Position struct {
	X float64 `yaml:"x" json:"x"`
	Y float64 `yaml:"y" json:"y"`
	Z float64 `yaml:"z" json:"z"`
}

// Vector converts the position to an r3.Vector.
func (p Position) Vector() r3.Vector {
	return r3.Vector{X: p.X, Y: p.Y, Z: p.Z}
}

// CameraConfig defines a fixed camera from the config file
type CameraConfig struct {
	ID       string   `yaml:"id" json:"id"`
	Position Position `yaml:"position" json:"position"`
	Color    string   `yaml:"color,omitempty" json:"color,omitempty"` // hex color used by the renderers
}

// SolverConfig holds the solver parameters plus the RANSAC seed.
type SolverConfig struct {
	Params  `yaml:",inline"`
	Seed    int64 `yaml:"seed,omitempty" json:"seed,omitempty"` // 0 seeds from the clock
	Verbose bool  `yaml:"verbose,omitempty" json:"verbose,omitempty"`
}

// DefaultSolverConfig returns the parameters used when the config file leaves them out.
// 20m threshold and 3 rays per target suit kilometer-scale camera baselines.
// With noisy bearings 50 LM iterations can stop a few decimetres short of the
// least-squares optimum; raise lmIterations when that matters.
func DefaultSolverConfig() SolverConfig {
	return SolverConfig{
		Params: Params{
			RansacIterations:  100,
			RansacThresholdM:  20.0,
			MinLinesPerTarget: 3,
			LMIterations:      50,
			LMInitialLambda:   1e-3,
			Workers:           1,
		},
	}
}

// MQTTConfig holds MQTT connection settings
type MQTTConfig struct {
	Broker           string `yaml:"broker" json:"broker"`
	ClientID         string `yaml:"clientId" json:"clientId"`
	Username         string `yaml:"username,omitempty" json:"username,omitempty"`
	Password         string `yaml:"password,omitempty" json:"password,omitempty"`
	ObservationTopic string `yaml:"observationTopic" json:"observationTopic"` // may contain a trailing + wildcard for the camera id
	PublishPrefix    string `yaml:"publishPrefix" json:"publishPrefix"`
}

// Config represents the full configuration file
type Config struct {
	Solver    SolverConfig   `yaml:"solver" json:"solver"`
	Cameras   []CameraConfig `yaml:"cameras" json:"cameras"`
	MQTT      MQTTConfig     `yaml:"mqtt,omitempty" json:"mqtt,omitempty"`
	Window    string         `yaml:"window,omitempty" json:"window,omitempty"`       // duration string like "5s"
	CachePath string         `yaml:"cachePath,omitempty" json:"cachePath,omitempty"` // where the service keeps its last solution
}

// GetCameraByID returns the camera config for the given ID
func (c *Config) GetCameraByID(id string) *CameraConfig {
	for i := range c.Cameras {
		if c.Cameras[i].ID == id {
			return &c.Cameras[i]
		}
	}
	return nil
}

// GetWindow returns the observation window, falling back to DefaultWindow.
func (c *Config) GetWindow() time.Duration {
	if c.Window == "" {
		return DefaultWindow
	}
	d, err := time.ParseDuration(c.Window)
	if err != nil || d <= 0 {
		return DefaultWindow
	}
	return d
}
