package locate

import (
	"errors"
	"math"
	"math/rand"
	"sort"
	"testing"

	"github.com/golang/geo/r3"
	"github.com/google/go-cmp/cmp"
	"github.com/google/go-cmp/cmp/cmpopts"
)

func testParams() Params {
	return Params{
		RansacIterations:  200,
		RansacThresholdM:  5,
		MinLinesPerTarget: 3,
		LMIterations:      50,
		LMInitialLambda:   1e-3,
	}
}

// twoTargetScene has four exact rays per target plus two vertical outliers.
func twoTargetScene(t *testing.T) ([]Ray, []r3.Vector) {
	t.Helper()
	a := r3.Vector{X: -400, Y: 300, Z: 150}
	b := r3.Vector{X: 600, Y: -500, Z: 80}

	rays := []Ray{
		rayThrough(t, r3.Vector{X: -400 + 1500, Y: 300, Z: 40}, a),
		rayThrough(t, r3.Vector{X: -400, Y: 300 + 1200, Z: 60}, a),
		rayThrough(t, r3.Vector{X: 600, Y: -500 - 1400, Z: 30}, b),
		rayThrough(t, r3.Vector{X: -400 - 900, Y: 300, Z: 35}, a),
		rayThrough(t, r3.Vector{X: 4000, Y: -4000}, r3.Vector{X: 4000, Y: -4000, Z: 1}),
		rayThrough(t, r3.Vector{X: 600 + 1000, Y: -500 + 800, Z: 50}, b),
		rayThrough(t, r3.Vector{X: -400 - 700, Y: 300 - 1100, Z: 45}, a),
		rayThrough(t, r3.Vector{X: 600 - 1300, Y: -500 + 100, Z: 55}, b),
		rayThrough(t, r3.Vector{X: -4000, Y: 4000}, r3.Vector{X: -4000, Y: 4000, Z: 1}),
		rayThrough(t, r3.Vector{X: 600 + 200, Y: -500 - 1600, Z: 65}, b),
	}
	return rays, []r3.Vector{a, b}
}

func TestFindTargets_TwoTargets(t *testing.T) {
	rays, truths := twoTargetScene(t)

	targets, err := FindTargets(rays, testParams(), NewRandSampler(42))
	if err != nil {
		t.Fatalf("FindTargets: %v", err)
	}
	if len(targets) != 2 {
		t.Fatalf("found %d targets, want 2", len(targets))
	}

	wantRays := map[r3.Vector][]int{
		truths[0]: {0, 1, 3, 6},
		truths[1]: {2, 5, 7, 9},
	}
	claimed := make(map[int]string)
	for i, tgt := range targets {
		wantID := []string{"Target_1", "Target_2"}[i]
		if tgt.ID != wantID {
			t.Errorf("targets[%d].ID = %q, want %q", i, tgt.ID, wantID)
		}

		var truth r3.Vector
		for _, tr := range truths {
			if vecNear(tgt.Position, tr, 1e-3) {
				truth = tr
			}
		}
		want, ok := wantRays[truth]
		if !ok {
			t.Fatalf("%s at %v matches no truth", tgt.ID, tgt.Position)
		}
		if diff := cmp.Diff(want, tgt.RayIndices); diff != "" {
			t.Errorf("%s ray indices (-want +got):\n%s", tgt.ID, diff)
		}
		if tgt.SupportingRayCount != len(tgt.RayIndices) {
			t.Errorf("%s SupportingRayCount = %d, want %d", tgt.ID, tgt.SupportingRayCount, len(tgt.RayIndices))
		}
		if tgt.MeanResidual > 1e-6 || tgt.RMSResidual > 1e-6 {
			t.Errorf("%s residuals mean=%g rms=%g, want ~0", tgt.ID, tgt.MeanResidual, tgt.RMSResidual)
		}
		for _, idx := range tgt.RayIndices {
			if prev, dup := claimed[idx]; dup {
				t.Errorf("ray %d claimed by both %s and %s", idx, prev, tgt.ID)
			}
			claimed[idx] = tgt.ID
		}
	}
	if _, ok := claimed[4]; ok {
		t.Error("outlier ray 4 was assigned")
	}
	if _, ok := claimed[8]; ok {
		t.Error("outlier ray 8 was assigned")
	}
}

func TestFindTargets_EmptyAndTooFew(t *testing.T) {
	rays, _ := twoTargetScene(t)

	tests := []struct {
		name string
		rays []Ray
	}{
		{"nil", nil},
		{"empty", []Ray{}},
		{"below minimum", rays[:2]},
		{"outliers only", []Ray{rays[4], rays[8], rays[4]}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			targets, err := FindTargets(tt.rays, testParams(), NewRandSampler(1))
			if err != nil {
				t.Fatalf("FindTargets: %v", err)
			}
			if len(targets) != 0 {
				t.Errorf("found %d targets, want 0", len(targets))
			}
		})
	}
}

func TestFindTargets_InvalidParams(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Params)
	}{
		{"zero iterations", func(p *Params) { p.RansacIterations = 0 }},
		{"negative threshold", func(p *Params) { p.RansacThresholdM = -1 }},
		{"zero threshold", func(p *Params) { p.RansacThresholdM = 0 }},
		{"min lines 1", func(p *Params) { p.MinLinesPerTarget = 1 }},
		{"negative LM iterations", func(p *Params) { p.LMIterations = -1 }},
		{"zero lambda", func(p *Params) { p.LMInitialLambda = 0 }},
		{"negative workers", func(p *Params) { p.Workers = -2 }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := testParams()
			tt.mutate(&p)
			_, err := FindTargets(nil, p, NewRandSampler(1))
			if !errors.Is(err, ErrInvalidParams) {
				t.Errorf("error = %v, want ErrInvalidParams", err)
			}
		})
	}
}

func TestFindTargets_ZeroLMIterationsKeepsSeed(t *testing.T) {
	rays, _ := twoTargetScene(t)
	p := testParams()
	p.LMIterations = 0

	targets, err := FindTargets(rays, p, NewRandSampler(42))
	if err != nil {
		t.Fatalf("FindTargets: %v", err)
	}
	for _, tgt := range targets {
		if tgt.Position != tgt.Seed {
			t.Errorf("%s moved from seed %v to %v without refinement", tgt.ID, tgt.Seed, tgt.Position)
		}
	}
}

func TestFindTargets_Deterministic(t *testing.T) {
	cfg := DefaultScenarioConfig()
	cfg.OutlierRays = 3
	sc := GenerateScenario(cfg, rand.New(rand.NewSource(8)))
	rays, err := MeasurementsToRays(sc.Measurements)
	if err != nil {
		t.Fatalf("MeasurementsToRays: %v", err)
	}
	params := DefaultSolverConfig().Params

	first, err := FindTargets(rays, params, NewRandSampler(123))
	if err != nil {
		t.Fatalf("FindTargets: %v", err)
	}
	second, err := FindTargets(rays, params, NewRandSampler(123))
	if err != nil {
		t.Fatalf("FindTargets: %v", err)
	}
	if diff := cmp.Diff(first, second); diff != "" {
		t.Errorf("same seed gave different results (-first +second):\n%s", diff)
	}

	params.Workers = 4
	parallel, err := FindTargets(rays, params, NewRandSampler(123))
	if err != nil {
		t.Fatalf("FindTargets (parallel): %v", err)
	}
	if diff := cmp.Diff(first, parallel); diff != "" {
		t.Errorf("parallel scoring changed the result (-seq +par):\n%s", diff)
	}
}

func TestFindTargets_SimulatedAccuracy(t *testing.T) {
	cfg := DefaultScenarioConfig()
	cfg.StationsPerTarget = [2]int{4, 5}
	cfg.PositionNoise = 1
	cfg.AltitudeNoise = 1
	cfg.AngleNoise = 0.001

	report, err := Evaluate(t.Context(), cfg, DefaultSolverConfig().Params, 10, 2024, 2)
	if err != nil {
		t.Fatalf("Evaluate: %v", err)
	}
	if report.SuccessRate < 0.9 {
		t.Errorf("SuccessRate = %.2f, want >= 0.9", report.SuccessRate)
	}
	if report.OverallMeanError > 10 {
		t.Errorf("OverallMeanError = %.2fm, want <= 10m", report.OverallMeanError)
	}
}

func TestFindTargetsFromMeasurements(t *testing.T) {
	rays, truths := twoTargetScene(t)
	ms := make([]Measurement, len(rays))
	for i, r := range rays {
		ms[i] = MeasurementFromRay(r)
	}

	targets, err := FindTargetsFromMeasurements(ms, testParams(), NewRandSampler(42))
	if err != nil {
		t.Fatalf("FindTargetsFromMeasurements: %v", err)
	}

	got := make([]r3.Vector, len(targets))
	for i, tgt := range targets {
		got[i] = tgt.Position
	}
	byX := cmpopts.SortSlices(func(a, b r3.Vector) bool { return a.X < b.X })
	if diff := cmp.Diff(truths, got, byX, cmpopts.EquateApprox(0, 1e-3)); diff != "" {
		t.Errorf("positions (-want +got):\n%s", diff)
	}

	ms[3].DirectionX, ms[3].DirectionY, ms[3].DirectionZ = 0, 0, 0
	if _, err := FindTargetsFromMeasurements(ms, testParams(), NewRandSampler(42)); !errors.Is(err, ErrZeroDirection) {
		t.Errorf("error = %v, want ErrZeroDirection", err)
	}

	ms[3].DirectionX = math.Inf(1)
	if _, err := FindTargetsFromMeasurements(ms, testParams(), NewRandSampler(42)); !errors.Is(err, ErrNonFiniteRay) {
		t.Errorf("error = %v, want ErrNonFiniteRay", err)
	}
}

func TestFindTargets_NonFiniteRayIgnored(t *testing.T) {
	rays, truths := twoTargetScene(t)
	bad := len(rays)
	rays = append(rays, Ray{Direction: r3.Vector{X: math.NaN(), Y: 1}})

	targets, err := FindTargets(rays, testParams(), NewRandSampler(42))
	if err != nil {
		t.Fatalf("FindTargets: %v", err)
	}
	if len(targets) != len(truths) {
		t.Fatalf("got %d targets, want %d", len(targets), len(truths))
	}
	for _, tgt := range targets {
		for _, idx := range tgt.RayIndices {
			if idx == bad {
				t.Errorf("%s was assigned the non-finite ray", tgt.ID)
			}
		}
	}
}

func TestRayPool(t *testing.T) {
	rays, _ := twoTargetScene(t)
	pool := NewRayPool(rays)

	if pool.Len() != len(rays) {
		t.Fatalf("Len = %d, want %d", pool.Len(), len(rays))
	}
	pool.Consume([]int{1, 3, 3, 8})
	if pool.Len() != len(rays)-3 {
		t.Errorf("Len after consume = %d, want %d", pool.Len(), len(rays)-3)
	}
	if !pool.IsConsumed(3) || pool.IsConsumed(2) {
		t.Error("IsConsumed mismatch")
	}

	remaining := pool.Remaining()
	if !sort.IntsAreSorted(remaining) {
		t.Errorf("Remaining not ascending: %v", remaining)
	}
	if diff := cmp.Diff([]int{0, 2, 4, 5, 6, 7, 9}, remaining); diff != "" {
		t.Errorf("Remaining (-want +got):\n%s", diff)
	}
	if got := pool.Rays([]int{9}); got[0] != rays[9] {
		t.Errorf("Rays([9]) = %v, want %v", got[0], rays[9])
	}
}
