package locate

import (
	"fmt"
	"math"
	"math/rand"

	"github.com/golang/geo/r3"
)

// Range is a closed [min, max] interval.
type Range [2]float64

func (r Range) sample(rng *rand.Rand) float64 {
	if r[1] <= r[0] {
		return r[0]
	}
	return r[0] + rng.Float64()*(r[1]-r[0])
}

// symmetric samples uniformly from [-half, half].
func symmetric(rng *rand.Rand, half float64) float64 {
	if half <= 0 {
		return 0
	}
	return (rng.Float64()*2 - 1) * half
}

// ScenarioConfig describes a simulated sky: targets, the stations looking at
// them and the measurement noise. Noise values are half-widths of uniform
// distributions.
type ScenarioConfig struct {
	NumTargets        int     `yaml:"numTargets" json:"numTargets"`
	TargetX           Range   `yaml:"targetX" json:"targetX"`
	TargetY           Range   `yaml:"targetY" json:"targetY"`
	TargetZ           Range   `yaml:"targetZ" json:"targetZ"`
	StationsPerTarget [2]int  `yaml:"stationsPerTarget" json:"stationsPerTarget"` // inclusive
	StationDistance   Range   `yaml:"stationDistance" json:"stationDistance"`     // horizontal, from the target
	StationZ          Range   `yaml:"stationZ" json:"stationZ"`
	PositionNoise     float64 `yaml:"positionNoise" json:"positionNoise"` // meters, x and y
	AltitudeNoise     float64 `yaml:"altitudeNoise" json:"altitudeNoise"` // meters
	AngleNoise        float64 `yaml:"angleNoise" json:"angleNoise"`       // added to each unit-direction component
	OutlierRays       int     `yaml:"outlierRays" json:"outlierRays"`     // detector false positives
}

// DefaultScenarioConfig returns three targets seen by 3-5 stations each
// from 0.5-2km away.
func DefaultScenarioConfig() ScenarioConfig {
	return ScenarioConfig{
		NumTargets:        3,
		TargetX:           Range{-500, 500},
		TargetY:           Range{-500, 500},
		TargetZ:           Range{50, 200},
		StationsPerTarget: [2]int{3, 5},
		StationDistance:   Range{500, 2000},
		StationZ:          Range{30, 70},
		PositionNoise:     5.0,
		AltitudeNoise:     2.0,
		AngleNoise:        0.005,
	}
}

// Scenario is a generated data set with its ground truth.
type Scenario struct {
	Truths       []r3.Vector   `json:"truths"`
	Measurements []Measurement `json:"measurements"`
	// Labels[i] is the index of the truth measurement i looks at, or -1 for an outlier.
	Labels []int `json:"labels"`
}

// GenerateScenario simulates noisy station measurements of random targets.
func GenerateScenario(cfg ScenarioConfig, rng *rand.Rand) Scenario {
	var sc Scenario

	for t := 0; t < cfg.NumTargets; t++ {
		target := r3.Vector{
			X: cfg.TargetX.sample(rng),
			Y: cfg.TargetY.sample(rng),
			Z: cfg.TargetZ.sample(rng),
		}
		sc.Truths = append(sc.Truths, target)

		stations := cfg.StationsPerTarget[0]
		if spread := cfg.StationsPerTarget[1] - cfg.StationsPerTarget[0]; spread > 0 {
			stations += rng.Intn(spread + 1)
		}

		for s := 0; s < stations; s++ {
			angle := rng.Float64() * 2 * math.Pi
			dist := cfg.StationDistance.sample(rng)
			station := r3.Vector{
				X: target.X + dist*math.Cos(angle),
				Y: target.Y + dist*math.Sin(angle),
				Z: cfg.StationZ.sample(rng),
			}
			direction := target.Sub(station).Normalize()

			measured := r3.Vector{
				X: station.X + symmetric(rng, cfg.PositionNoise),
				Y: station.Y + symmetric(rng, cfg.PositionNoise),
				Z: station.Z + symmetric(rng, cfg.AltitudeNoise),
			}
			noisy := r3.Vector{
				X: direction.X + symmetric(rng, cfg.AngleNoise),
				Y: direction.Y + symmetric(rng, cfg.AngleNoise),
				Z: direction.Z + symmetric(rng, cfg.AngleNoise),
			}.Normalize()

			sc.Measurements = append(sc.Measurements, measurementOf(measured, noisy))
			sc.Labels = append(sc.Labels, t)
		}
	}

	for o := 0; o < cfg.OutlierRays; o++ {
		origin := r3.Vector{
			X: cfg.TargetX.sample(rng) * 2,
			Y: cfg.TargetY.sample(rng) * 2,
			Z: cfg.StationZ.sample(rng),
		}
		// Random bearing above the horizon, as a detector false positive would report.
		direction := DirectionFromAngles(rng.Float64()*360, 5+rng.Float64()*80)
		sc.Measurements = append(sc.Measurements, measurementOf(origin, direction))
		sc.Labels = append(sc.Labels, -1)
	}

	return sc
}

func measurementOf(origin, direction r3.Vector) Measurement {
	return Measurement{
		X: origin.X, Y: origin.Y, Z: origin.Z,
		DirectionX: direction.X, DirectionY: direction.Y, DirectionZ: direction.Z,
	}
}

// Observations re-expresses the scenario as camera bearings: one camera per
// measurement, named station-<n>.
func (sc Scenario) Observations() ([]CameraConfig, []Observation) {
	cameras := make([]CameraConfig, len(sc.Measurements))
	observations := make([]Observation, len(sc.Measurements))
	for i, m := range sc.Measurements {
		id := fmt.Sprintf("station-%d", i+1)
		cameras[i] = CameraConfig{ID: id, Position: Position{X: m.X, Y: m.Y, Z: m.Z}}
		az, el := AnglesFromDirection(r3.Vector{X: m.DirectionX, Y: m.DirectionY, Z: m.DirectionZ})
		observations[i] = Observation{CameraID: id, Azimuth: az, Elevation: el}
	}
	return cameras, observations
}
