package locate

import (
	"math"

	"github.com/golang/geo/r3"
	"github.com/paulmach/orb"
	"github.com/paulmach/orb/geojson"
	"github.com/paulmach/orb/planar"
)

// DefaultRayTrackLength is how far an unassigned ray is drawn, in meters.
const DefaultRayTrackLength = 2000.0

// groundPoint drops the height of v.
func groundPoint(v r3.Vector) orb.Point {
	return orb.Point{v.X, v.Y}
}

// rayOwners maps each input ray index to the target that claimed it.
func rayOwners(targets []LocatedTarget) map[int]string {
	owners := make(map[int]string)
	for _, t := range targets {
		for _, idx := range t.RayIndices {
			owners[idx] = t.ID
		}
	}
	return owners
}

// rayTrackEnd returns where a ray's ground track ends: the point of the ray
// closest to its target, or trackLength along it when unassigned.
func rayTrackEnd(r Ray, target *LocatedTarget, trackLength float64) r3.Vector {
	if target == nil {
		return r.At(trackLength)
	}
	t := target.Position.Sub(r.Origin).Dot(r.Direction)
	if t < 0 {
		t = 0
	}
	return r.At(t)
}

// SolutionToFeatureCollection exports a solution as GeoJSON in the local
// frame: one Point per target and one LineString ground track per ray.
// Heights travel in the properties.
func SolutionToFeatureCollection(sol *Solution, trackLength float64) *geojson.FeatureCollection {
	fc := geojson.NewFeatureCollection()
	if sol == nil {
		return fc
	}
	if trackLength <= 0 {
		trackLength = DefaultRayTrackLength
	}

	byID := make(map[string]*LocatedTarget, len(sol.Targets))
	for i := range sol.Targets {
		t := &sol.Targets[i]
		byID[t.ID] = t

		f := geojson.NewFeature(groundPoint(t.Position))
		f.ID = t.ID
		f.Properties["layerType"] = "target"
		f.Properties["z"] = t.Position.Z
		f.Properties["rays"] = t.SupportingRayCount
		f.Properties["meanResidual"] = t.MeanResidual
		f.Properties["rmsResidual"] = t.RMSResidual
		fc.Append(f)
	}

	owners := rayOwners(sol.Targets)
	for i, r := range sol.Rays {
		owner := owners[i]
		end := rayTrackEnd(r, byID[owner], trackLength)

		f := geojson.NewFeature(orb.LineString{groundPoint(r.Origin), groundPoint(end)})
		f.Properties["layerType"] = "ray"
		f.Properties["ray"] = i
		f.Properties["target"] = owner
		f.Properties["originZ"] = r.Origin.Z
		f.Properties["endZ"] = end.Z
		fc.Append(f)
	}

	return fc
}

// HorizontalSeparation returns the ground distance between two targets.
func HorizontalSeparation(a, b LocatedTarget) float64 {
	return planar.Distance(groundPoint(a.Position), groundPoint(b.Position))
}

// MinHorizontalSeparation returns the smallest ground distance between any
// two targets, or +Inf with fewer than two.
func MinHorizontalSeparation(targets []LocatedTarget) float64 {
	best := math.Inf(1)
	for i := range targets {
		for j := i + 1; j < len(targets); j++ {
			if d := HorizontalSeparation(targets[i], targets[j]); d < best {
				best = d
			}
		}
	}
	return best
}

// SolutionBound returns the ground extent of all ray origins, targets and
// ray track ends.
func SolutionBound(sol *Solution, trackLength float64) orb.Bound {
	if trackLength <= 0 {
		trackLength = DefaultRayTrackLength
	}
	var mp orb.MultiPoint
	for _, t := range sol.Targets {
		mp = append(mp, groundPoint(t.Position))
	}

	byID := make(map[string]*LocatedTarget, len(sol.Targets))
	for i := range sol.Targets {
		byID[sol.Targets[i].ID] = &sol.Targets[i]
	}
	owners := rayOwners(sol.Targets)
	for i, r := range sol.Rays {
		mp = append(mp, groundPoint(r.Origin), groundPoint(rayTrackEnd(r, byID[owners[i]], trackLength)))
	}

	if len(mp) == 0 {
		return orb.Bound{Min: orb.Point{-1, -1}, Max: orb.Point{1, 1}}
	}
	return mp.Bound()
}
