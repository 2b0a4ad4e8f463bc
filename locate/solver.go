package locate

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/google/uuid"
)

// Solution is the result of one solve, as stored and published by the service.
type Solution struct {
	ID         string          `json:"id"`
	SolvedAt   int64           `json:"solvedAt"` // unix seconds
	DurationMs float64         `json:"durationMs"`
	RayCount   int             `json:"rayCount"`
	Unassigned int             `json:"unassigned"` // rays no target claimed
	Params     Params          `json:"params"`
	Targets    []LocatedTarget `json:"targets"`
	// Rays are kept so renderers can draw the lines of sight.
	Rays []Ray `json:"rays,omitempty"`
}

// Solver runs FindTargets with a fixed configuration.
type Solver struct {
	Params  Params
	Seed    int64 // 0 seeds every solve from the clock
	Verbose bool

	// NewSampler overrides sampler construction (tests).
	NewSampler func() IndexSampler
}

// NewSolver creates a solver from the solver section of the config.
func NewSolver(cfg SolverConfig) *Solver {
	return &Solver{
		Params:  cfg.Params,
		Seed:    cfg.Seed,
		Verbose: cfg.Verbose,
	}
}

func (s *Solver) sampler() IndexSampler {
	if s.NewSampler != nil {
		return s.NewSampler()
	}
	if s.Seed != 0 {
		return NewRandSampler(s.Seed)
	}
	return NewTimeSeededSampler()
}

// Solve locates targets among rays.
func (s *Solver) Solve(ctx context.Context, rays []Ray) (*Solution, error) {
	start := time.Now()

	targets, err := FindTargetsContext(ctx, rays, s.Params, s.sampler())
	if err != nil {
		return nil, fmt.Errorf("solving %d rays: %w", len(rays), err)
	}

	assigned := 0
	for _, t := range targets {
		assigned += t.SupportingRayCount
	}

	sol := &Solution{
		ID:         uuid.NewString(),
		SolvedAt:   start.Unix(),
		DurationMs: float64(time.Since(start).Microseconds()) / 1000,
		RayCount:   len(rays),
		Unassigned: len(rays) - assigned,
		Params:     s.Params,
		Targets:    targets,
		Rays:       rays,
	}

	if s.Verbose {
		log.Printf("[SOLVE] %s: %d rays -> %d targets, %d unassigned (%.1fms)",
			sol.ID, sol.RayCount, len(sol.Targets), sol.Unassigned, sol.DurationMs)
		for _, t := range targets {
			log.Printf("[SOLVE]   %s at (%.2f, %.2f, %.2f) rays=%d mean=%.3fm rms=%.3fm",
				t.ID, t.Position.X, t.Position.Y, t.Position.Z,
				t.SupportingRayCount, t.MeanResidual, t.RMSResidual)
		}
	}

	return sol, nil
}

// SolveObservations resolves observations against cameras and solves them.
func (s *Solver) SolveObservations(ctx context.Context, cameras []CameraConfig, observations []Observation) (*Solution, error) {
	rays, err := ResolveObservations(cameras, observations)
	if err != nil {
		return nil, fmt.Errorf("resolving observations: %w", err)
	}
	return s.Solve(ctx, rays)
}
