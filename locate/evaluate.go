package locate

import (
	"context"
	"math"
	"math/rand"

	"github.com/golang/geo/r3"
	"golang.org/x/sync/errgroup"
)

// Match pairs a true target with the located target closest to it.
type Match struct {
	Truth   int     `json:"truth"`
	Located int     `json:"located"`
	Error   float64 `json:"error"` // 3D distance in meters
}

// MatchTargets greedily pairs each truth, in order, with the nearest located
// target not yet taken. Truths left without a candidate are not matched.
func MatchTargets(truths []r3.Vector, located []LocatedTarget) []Match {
	used := make([]bool, len(located))
	var matches []Match

	for ti, truth := range truths {
		best := -1
		bestDist := math.MaxFloat64
		for li, lt := range located {
			if used[li] {
				continue
			}
			if d := lt.Position.Sub(truth).Norm2(); d < bestDist {
				bestDist = d
				best = li
			}
		}
		if best < 0 {
			continue
		}
		used[best] = true
		matches = append(matches, Match{Truth: ti, Located: best, Error: math.Sqrt(bestDist)})
	}
	return matches
}

// RunReport summarizes one simulated run.
type RunReport struct {
	Run       int     `json:"run"`
	Expected  int     `json:"expected"`
	Located   int     `json:"located"`
	Matched   int     `json:"matched"`
	MeanError float64 `json:"meanError"` // zero when nothing matched
	Matches   []Match `json:"matches"`

	Truths  []r3.Vector     `json:"truths"`
	Targets []LocatedTarget `json:"targets"`
}

// AccuracyReport aggregates repeated simulated runs.
type AccuracyReport struct {
	Runs           []RunReport `json:"runs"`
	SuccessfulRuns int         `json:"successfulRuns"` // runs with at least one match
	TotalExpected  int         `json:"totalExpected"`
	TotalMatched   int         `json:"totalMatched"`
	// OverallMeanError averages the per-run mean errors of successful runs.
	// It is zero when SuccessfulRuns is zero.
	OverallMeanError float64 `json:"overallMeanError"`
	SuccessRate      float64 `json:"successRate"` // TotalMatched / TotalExpected
}

// Evaluate simulates runs scenarios from cfg and solves each with params.
// Run i uses seed+i for both the scenario and the RANSAC sampler, so a report
// is reproducible for a given seed regardless of workers.
func Evaluate(ctx context.Context, cfg ScenarioConfig, params Params, runs int, seed int64, workers int) (*AccuracyReport, error) {
	if err := params.Validate(); err != nil {
		return nil, err
	}
	if workers < 1 {
		workers = 1
	}

	reports := make([]RunReport, runs)
	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(workers)
	for i := 0; i < runs; i++ {
		g.Go(func() error {
			if err := ctx.Err(); err != nil {
				return err
			}
			runSeed := seed + int64(i)
			sc := GenerateScenario(cfg, rand.New(rand.NewSource(runSeed)))
			rays, err := MeasurementsToRays(sc.Measurements)
			if err != nil {
				return err
			}
			targets, err := FindTargetsContext(ctx, rays, params, NewRandSampler(runSeed))
			if err != nil {
				return err
			}
			reports[i] = newRunReport(i+1, sc, targets)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	return summarize(reports), nil
}

func newRunReport(run int, sc Scenario, targets []LocatedTarget) RunReport {
	matches := MatchTargets(sc.Truths, targets)
	rr := RunReport{
		Run:      run,
		Expected: len(sc.Truths),
		Located:  len(targets),
		Matched:  len(matches),
		Matches:  matches,
		Truths:   sc.Truths,
		Targets:  targets,
	}
	if len(matches) > 0 {
		var sum float64
		for _, m := range matches {
			sum += m.Error
		}
		rr.MeanError = sum / float64(len(matches))
	}
	return rr
}

func summarize(runs []RunReport) *AccuracyReport {
	rep := &AccuracyReport{Runs: runs}
	var errSum float64
	for _, r := range runs {
		rep.TotalExpected += r.Expected
		rep.TotalMatched += r.Matched
		if r.Matched > 0 {
			rep.SuccessfulRuns++
			errSum += r.MeanError
		}
	}
	if rep.SuccessfulRuns > 0 {
		rep.OverallMeanError = errSum / float64(rep.SuccessfulRuns)
	}
	if rep.TotalExpected > 0 {
		rep.SuccessRate = float64(rep.TotalMatched) / float64(rep.TotalExpected)
	}
	return rep
}
