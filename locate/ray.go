package locate

import (
	"fmt"
	"math"

	"github.com/golang/geo/r3"
)

// MinDirectionNorm is the smallest direction length NewRay accepts.
const MinDirectionNorm = 1e-12

// Ray is a camera line of sight: an origin and a unit direction.
// Rays are values; nothing in this package mutates one after construction.
type Ray struct {
	Origin    r3.Vector `json:"origin"`
	Direction r3.Vector `json:"direction"`
}

// NewRay builds a ray, normalizing direction. Origins and directions with
// NaN or Inf components fail with ErrNonFiniteRay.
func NewRay(origin, direction r3.Vector) (Ray, error) {
	if !finite(origin) || !finite(direction) {
		return Ray{}, fmt.Errorf("building ray from %v towards %v: %w", origin, direction, ErrNonFiniteRay)
	}
	n := direction.Norm()
	if n < MinDirectionNorm {
		return Ray{}, fmt.Errorf("building ray from %v: %w", origin, ErrZeroDirection)
	}
	return Ray{Origin: origin, Direction: direction.Mul(1 / n)}, nil
}

// At returns the point at parameter t along the ray.
func (r Ray) At(t float64) r3.Vector {
	return r.Origin.Add(r.Direction.Mul(t))
}

// perpendicular returns the component of p - origin orthogonal to the direction,
// i.e. (I - d·dᵗ)(p - o).
func (r Ray) perpendicular(p r3.Vector) r3.Vector {
	v := p.Sub(r.Origin)
	return v.Sub(r.Direction.Mul(v.Dot(r.Direction)))
}

// DistanceTo returns the perpendicular distance from p to the infinite line of r.
func (r Ray) DistanceTo(p r3.Vector) float64 {
	return r.perpendicular(p).Norm()
}

// DistanceToPoint is the residual primitive used throughout the solver.
func DistanceToPoint(r Ray, p r3.Vector) float64 {
	return r.DistanceTo(p)
}

// IntersectionEstimate returns the point minimizing the summed squared
// perpendicular distance to all rays. It solves Σ(I - dᵢdᵢᵗ)x = Σ(I - dᵢdᵢᵗ)oᵢ.
// Near-parallel rays yield ErrDegenerateGeometry.
func IntersectionEstimate(rays []Ray) (r3.Vector, error) {
	if len(rays) < 2 {
		return r3.Vector{}, ErrTooFewRays
	}

	var a sym3
	var b r3.Vector
	for _, r := range rays {
		p := projector(r.Direction)
		a = a.add(p)
		b = b.Add(p.mulVec(r.Origin))
	}

	x, err := solve3(a, b)
	if err != nil {
		return r3.Vector{}, err
	}
	return x, nil
}

func finite(v r3.Vector) bool {
	for _, c := range [3]float64{v.X, v.Y, v.Z} {
		if math.IsNaN(c) || math.IsInf(c, 0) {
			return false
		}
	}
	return true
}
