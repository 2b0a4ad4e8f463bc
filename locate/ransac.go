package locate

import (
	"context"

	"github.com/golang/geo/r3"
	"golang.org/x/sync/errgroup"
)

// Candidate is a RANSAC hypothesis: an intersection point and the indices of
// the rays lying within the inlier threshold of it.
type Candidate struct {
	Point   r3.Vector
	Inliers []int // indices into the slice handed to RANSAC, ascending
	Trial   int   // trial that produced the hypothesis
}

// better reports whether c beats other: more inliers wins, earlier trial breaks ties.
func (c Candidate) better(other Candidate) bool {
	if len(c.Inliers) != len(other.Inliers) {
		return len(c.Inliers) > len(other.Inliers)
	}
	return c.Trial < other.Trial
}

// RansacFitLines searches rays for the point supported by the most rays.
//
// Every trial draws two distinct rays from sampler, intersects them and counts
// the rays closer than threshold to the intersection. Degenerate pairs are
// skipped. The trial with the most inliers wins; on a tie the earliest trial is
// kept. ok is false when no trial reaches minLines inliers or fewer than two
// rays are given. The returned point is the raw pair intersection; refinement
// is left to the caller.
func RansacFitLines(rays []Ray, iterations int, threshold float64, minLines int, sampler IndexSampler) (Candidate, bool) {
	if len(rays) < 2 {
		return Candidate{}, false
	}

	var best Candidate
	found := false
	for trial := 0; trial < iterations; trial++ {
		a, b := drawPair(sampler, len(rays))
		c, ok := scoreTrial(rays, trial, a, b, threshold, minLines)
		if !ok {
			continue
		}
		if !found || c.better(best) {
			best = c
			found = true
		}
	}
	return best, found
}

// RansacFitLinesParallel is RansacFitLines with trial scoring spread over up to
// workers goroutines. Samples are still drawn from sampler in trial order, so
// for the same sampler sequence the result equals the sequential one.
func RansacFitLinesParallel(ctx context.Context, rays []Ray, iterations int, threshold float64, minLines int, sampler IndexSampler, workers int) (Candidate, bool, error) {
	if workers <= 1 {
		c, ok := RansacFitLines(rays, iterations, threshold, minLines, sampler)
		return c, ok, nil
	}
	if len(rays) < 2 || iterations <= 0 {
		return Candidate{}, false, nil
	}

	pairs := make([][2]int, iterations)
	for trial := range pairs {
		a, b := drawPair(sampler, len(rays))
		pairs[trial] = [2]int{a, b}
	}

	if workers > iterations {
		workers = iterations
	}
	chunk := (iterations + workers - 1) / workers
	bests := make([]Candidate, workers)
	founds := make([]bool, workers)

	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(workers)
	for w := 0; w < workers; w++ {
		start := w * chunk
		end := min(start+chunk, iterations)
		g.Go(func() error {
			for trial := start; trial < end; trial++ {
				if err := ctx.Err(); err != nil {
					return err
				}
				c, ok := scoreTrial(rays, trial, pairs[trial][0], pairs[trial][1], threshold, minLines)
				if !ok {
					continue
				}
				if !founds[w] || c.better(bests[w]) {
					bests[w] = c
					founds[w] = true
				}
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return Candidate{}, false, err
	}

	var best Candidate
	found := false
	for w := range bests {
		if founds[w] && (!found || bests[w].better(best)) {
			best = bests[w]
			found = true
		}
	}
	return best, found, nil
}

// scoreTrial intersects rays a and b and collects inliers. ok is false for a
// degenerate pair or when fewer than minLines rays support the point.
func scoreTrial(rays []Ray, trial, a, b int, threshold float64, minLines int) (Candidate, bool) {
	point, err := IntersectionEstimate([]Ray{rays[a], rays[b]})
	if err != nil {
		return Candidate{}, false
	}
	inliers := collectInliers(rays, point, threshold)
	if len(inliers) < minLines {
		return Candidate{}, false
	}
	return Candidate{Point: point, Inliers: inliers, Trial: trial}, true
}

func collectInliers(rays []Ray, point r3.Vector, threshold float64) []int {
	var inliers []int
	for i, r := range rays {
		if r.DistanceTo(point) < threshold {
			inliers = append(inliers, i)
		}
	}
	return inliers
}
