package locate

import (
	"fmt"
	"math"

	"github.com/golang/geo/r3"
)

// Observation is one bearing reported by a camera's motion detector.
// Angles are in degrees: azimuth clockwise from north (+Y) in the ground
// plane, elevation up from the ground plane.
type Observation struct {
	CameraID  string  `json:"cameraId" yaml:"cameraId"`
	Azimuth   float64 `json:"azimuth" yaml:"azimuth"`
	Elevation float64 `json:"elevation" yaml:"elevation"`
	Timestamp int64   `json:"timestamp,omitempty" yaml:"timestamp,omitempty"` // unix millis
}

// DirectionFromAngles returns the unit vector for an azimuth/elevation pair.
func DirectionFromAngles(azimuthDeg, elevationDeg float64) r3.Vector {
	az := azimuthDeg * math.Pi / 180
	el := elevationDeg * math.Pi / 180
	return r3.Vector{
		X: math.Cos(el) * math.Sin(az),
		Y: math.Cos(el) * math.Cos(az),
		Z: math.Sin(el),
	}
}

// AnglesFromDirection is the inverse of DirectionFromAngles. Azimuth is
// normalized to [0, 360).
func AnglesFromDirection(d r3.Vector) (azimuthDeg, elevationDeg float64) {
	d = d.Normalize()
	azimuthDeg = NormalizeAngle(math.Atan2(d.X, d.Y) * 180 / math.Pi)
	elevationDeg = math.Asin(math.Max(-1, math.Min(1, d.Z))) * 180 / math.Pi
	return azimuthDeg, elevationDeg
}

// NormalizeAngle normalizes an angle in degrees to the range [0, 360).
func NormalizeAngle(degrees float64) float64 {
	degrees = math.Mod(degrees, 360)
	if degrees < 0 {
		degrees += 360
	}
	if degrees >= 360 {
		degrees = 0
	}
	return degrees
}

// ObservationRay builds the ray seen by camera for obs.
func ObservationRay(camera CameraConfig, obs Observation) (Ray, error) {
	return NewRay(camera.Position.Vector(), DirectionFromAngles(obs.Azimuth, obs.Elevation))
}

// ResolveObservations turns observations into rays using the configured camera
// positions. Observations from unknown cameras fail with ErrUnknownCamera.
func ResolveObservations(cameras []CameraConfig, observations []Observation) ([]Ray, error) {
	byID := make(map[string]CameraConfig, len(cameras))
	for _, c := range cameras {
		byID[c.ID] = c
	}

	rays := make([]Ray, 0, len(observations))
	for i, obs := range observations {
		cam, ok := byID[obs.CameraID]
		if !ok {
			return nil, fmt.Errorf("observation %d from %q: %w", i, obs.CameraID, ErrUnknownCamera)
		}
		r, err := ObservationRay(cam, obs)
		if err != nil {
			return nil, fmt.Errorf("observation %d: %w", i, err)
		}
		rays = append(rays, r)
	}
	return rays, nil
}
