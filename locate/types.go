package locate

import (
	"fmt"

	"github.com/golang/geo/r3"
)

// Params configures one FindTargets run. Every field is required; defaults
// belong to the configuration layer (see DefaultSolverConfig).
type Params struct {
	RansacIterations  int     `yaml:"ransacIterations" json:"ransacIterations"`
	RansacThresholdM  float64 `yaml:"ransacThresholdM" json:"ransacThresholdM"` // inlier distance in meters
	MinLinesPerTarget int     `yaml:"minLinesPerTarget" json:"minLinesPerTarget"`
	LMIterations      int     `yaml:"lmIterations" json:"lmIterations"`
	LMInitialLambda   float64 `yaml:"lmInitialLambda" json:"lmInitialLambda"`
	Workers           int     `yaml:"workers,omitempty" json:"workers,omitempty"` // >1 scores RANSAC trials in parallel
}

// Validate checks the parameters before any work is done.
func (p Params) Validate() error {
	switch {
	case p.RansacIterations <= 0:
		return fmt.Errorf("ransacIterations must be positive, got %d: %w", p.RansacIterations, ErrInvalidParams)
	case !(p.RansacThresholdM > 0):
		return fmt.Errorf("ransacThresholdM must be positive, got %g: %w", p.RansacThresholdM, ErrInvalidParams)
	case p.MinLinesPerTarget < 2:
		return fmt.Errorf("minLinesPerTarget must be at least 2, got %d: %w", p.MinLinesPerTarget, ErrInvalidParams)
	case p.LMIterations < 0:
		return fmt.Errorf("lmIterations must not be negative, got %d: %w", p.LMIterations, ErrInvalidParams)
	case !(p.LMInitialLambda > 0):
		return fmt.Errorf("lmInitialLambda must be positive, got %g: %w", p.LMInitialLambda, ErrInvalidParams)
	case p.Workers < 0:
		return fmt.Errorf("workers must not be negative, got %d: %w", p.Workers, ErrInvalidParams)
	}
	return nil
}

// LocatedTarget is one target found by FindTargets.
type LocatedTarget struct {
	ID                 string    `json:"id"`
	Position           r3.Vector `json:"position"`
	SupportingRayCount int       `json:"supportingRayCount"`
	// MeanResidual averages the refined point's distance to the rays RANSAC
	// accepted. Membership is not re-checked after refinement.
	MeanResidual float64   `json:"meanResidual"`
	RMSResidual  float64   `json:"rmsResidual"`
	RayIndices   []int     `json:"rayIndices"` // indices into the input rays
	Seed         r3.Vector `json:"seed"`       // RANSAC point before refinement
}

// Measurement is a raw station reading: position plus a (not necessarily unit)
// pointing direction.
type Measurement struct {
	X          float64 `json:"x"`
	Y          float64 `json:"y"`
	Z          float64 `json:"z"`
	DirectionX float64 `json:"directionX"`
	DirectionY float64 `json:"directionY"`
	DirectionZ float64 `json:"directionZ"`
}

// Ray converts the measurement, normalizing its direction.
func (m Measurement) Ray() (Ray, error) {
	return NewRay(
		r3.Vector{X: m.X, Y: m.Y, Z: m.Z},
		r3.Vector{X: m.DirectionX, Y: m.DirectionY, Z: m.DirectionZ},
	)
}

// MeasurementsToRays converts every measurement, failing on the first bad one.
func MeasurementsToRays(ms []Measurement) ([]Ray, error) {
	rays := make([]Ray, len(ms))
	for i, m := range ms {
		r, err := m.Ray()
		if err != nil {
			return nil, fmt.Errorf("measurement %d: %w", i, err)
		}
		rays[i] = r
	}
	return rays, nil
}

// MeasurementFromRay is the inverse of Measurement.Ray.
func MeasurementFromRay(r Ray) Measurement {
	return Measurement{
		X: r.Origin.X, Y: r.Origin.Y, Z: r.Origin.Z,
		DirectionX: r.Direction.X, DirectionY: r.Direction.Y, DirectionZ: r.Direction.Z,
	}
}
