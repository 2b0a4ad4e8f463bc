package locate

import (
	"context"
	"fmt"
	"math"

	"github.com/golang/geo/r3"
)

// FindTargets peels targets off rays one at a time.
//
// While at least MinLinesPerTarget rays remain, RANSAC looks for the best
// supported point among them, Levenberg-Marquardt refines it on RANSAC's
// inliers, and those inliers are consumed so no later target can reuse them.
// The loop ends when RANSAC finds nothing. Targets come back in discovery order.
//
// The only error is an invalid Params; too few rays give an empty result.
func FindTargets(rays []Ray, params Params, sampler IndexSampler) ([]LocatedTarget, error) {
	return FindTargetsContext(context.Background(), rays, params, sampler)
}

// FindTargetsContext is FindTargets with a context for the parallel RANSAC
// scorer. The sequential path never blocks and ignores ctx.
func FindTargetsContext(ctx context.Context, rays []Ray, params Params, sampler IndexSampler) ([]LocatedTarget, error) {
	if err := params.Validate(); err != nil {
		return nil, err
	}

	pool := NewRayPool(rays)
	var targets []LocatedTarget

	for pool.Len() >= params.MinLinesPerTarget {
		remaining := pool.Remaining()
		subset := pool.Rays(remaining)

		candidate, ok, err := RansacFitLinesParallel(ctx, subset,
			params.RansacIterations, params.RansacThresholdM, params.MinLinesPerTarget,
			sampler, params.Workers)
		if err != nil {
			return nil, fmt.Errorf("fitting target %d: %w", len(targets)+1, err)
		}
		if !ok {
			break
		}

		members := make([]int, len(candidate.Inliers))
		for i, local := range candidate.Inliers {
			members[i] = remaining[local]
		}
		inlierRays := pool.Rays(members)

		position := LevenbergMarquardtOptimize(inlierRays, candidate.Point, params.LMIterations, params.LMInitialLambda)
		mean, rms := residualStats(inlierRays, position)

		targets = append(targets, LocatedTarget{
			ID:                 fmt.Sprintf("Target_%d", len(targets)+1),
			Position:           position,
			SupportingRayCount: len(members),
			MeanResidual:       mean,
			RMSResidual:        rms,
			RayIndices:         members,
			Seed:               candidate.Point,
		})
		pool.Consume(members)
	}

	return targets, nil
}

// FindTargetsFromMeasurements converts measurements to rays and runs FindTargets.
func FindTargetsFromMeasurements(ms []Measurement, params Params, sampler IndexSampler) ([]LocatedTarget, error) {
	rays, err := MeasurementsToRays(ms)
	if err != nil {
		return nil, err
	}
	return FindTargets(rays, params, sampler)
}

// residualStats returns the mean and root-mean-square distance from p to rays.
func residualStats(rays []Ray, p r3.Vector) (mean, rms float64) {
	if len(rays) == 0 {
		return 0, 0
	}
	var sum, sumSq float64
	for _, r := range rays {
		d := r.DistanceTo(p)
		sum += d
		sumSq += d * d
	}
	n := float64(len(rays))
	return sum / n, math.Sqrt(sumSq / n)
}
