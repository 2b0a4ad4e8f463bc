package locate

import (
	"math"

	"github.com/golang/geo/r3"
)

const (
	// LambdaFactor divides λ after an accepted step and multiplies it after a rejected one.
	LambdaFactor = 10.0

	// MinLambda and MaxLambda clamp the damping factor.
	MinLambda = 1e-6
	MaxLambda = 1e16

	// MinDiagonalRatio floors each diag(JᵗJ) entry at this fraction of the
	// largest one, so directions with no Jacobian support are still damped.
	MinDiagonalRatio = 1e-2

	// ConvergedCost stops the iteration once Σ distance² falls below it.
	ConvergedCost = 1e-24

	// minRelativeImprovement stops the iteration after an accepted step that
	// improves the cost by less than this fraction.
	minRelativeImprovement = 1e-15
)

// LMResult is the outcome of a Levenberg-Marquardt run.
type LMResult struct {
	Position    r3.Vector
	InitialCost float64
	Cost        float64 // Σ distance² at Position
	Lambda      float64 // damping factor after the last iteration
	Iterations  int
	Accepted    int
	Rejected    int
	CostHistory []float64 // cost after each accepted step
	Converged   bool      // stopped early on ConvergedCost or a negligible improvement
}

// lmState is the damping state machine carried between iterations.
type lmState struct {
	x      r3.Vector
	lambda float64
	cost   float64
}

// LevenbergMarquardtOptimize refines initial towards the point minimizing the
// summed squared perpendicular distance to rays and returns the final estimate.
// initialLambda is clamped to [MinLambda, MaxLambda] before the first step.
func LevenbergMarquardtOptimize(rays []Ray, initial r3.Vector, iterations int, initialLambda float64) r3.Vector {
	return LevenbergMarquardt(rays, initial, iterations, initialLambda).Position
}

// LevenbergMarquardt runs at most iterations damped Gauss-Newton steps.
//
// The residual of ray i is its distance rᵢ to the current point x, and row i of
// the Jacobian is the unit vector (I - dᵢdᵢᵗ)(x - oᵢ)/rᵢ. Each iteration solves
// (JᵗJ + λ·D)Δ = -Jᵗr, where D is diag(JᵗJ) with each entry raised to at
// least MinDiagonalRatio times the largest one. A step that lowers the cost
// is taken and λ shrinks; otherwise x stays put and λ grows. Rejected steps
// use up an iteration like accepted ones.
func LevenbergMarquardt(rays []Ray, initial r3.Vector, iterations int, initialLambda float64) LMResult {
	st := lmState{
		x:      initial,
		lambda: clampLambda(initialLambda),
		cost:   sumSquaredDistances(rays, initial),
	}
	res := LMResult{InitialCost: st.cost}

	if len(rays) > 0 {
		for iter := 0; iter < iterations; iter++ {
			if st.cost < ConvergedCost {
				res.Converged = true
				break
			}
			res.Iterations = iter + 1

			next, accepted := st.step(rays)
			if !accepted {
				res.Rejected++
				st = next
				continue
			}

			res.Accepted++
			res.CostHistory = append(res.CostHistory, next.cost)
			improvement := st.cost - next.cost
			st = next
			if improvement <= minRelativeImprovement*st.cost {
				res.Converged = true
				break
			}
		}
	}

	res.Position = st.x
	res.Cost = st.cost
	res.Lambda = st.lambda
	return res
}

// step proposes one damped update and returns the next state.
func (st lmState) step(rays []Ray) (lmState, bool) {
	jtj, jtr := normalEquations(rays, st.x)

	maxDiag := math.Max(jtj[0][0], math.Max(jtj[1][1], jtj[2][2]))
	floor := MinDiagonalRatio * maxDiag
	damped := jtj
	for k := 0; k < 3; k++ {
		damped[k][k] += st.lambda * math.Max(jtj[k][k], floor)
	}

	delta, err := solve3(damped, jtr.Mul(-1))
	if err != nil {
		st.lambda = clampLambda(st.lambda * LambdaFactor)
		return st, false
	}

	candidate := st.x.Add(delta)
	cost := sumSquaredDistances(rays, candidate)
	if !(cost < st.cost) {
		st.lambda = clampLambda(st.lambda * LambdaFactor)
		return st, false
	}

	return lmState{
		x:      candidate,
		lambda: clampLambda(st.lambda / LambdaFactor),
		cost:   cost,
	}, true
}

// normalEquations returns JᵗJ and Jᵗr at x. A ray passing exactly through x
// contributes a zero Jacobian row.
func normalEquations(rays []Ray, x r3.Vector) (sym3, r3.Vector) {
	var jtj sym3
	var jtr r3.Vector
	for _, r := range rays {
		perp := r.perpendicular(x)
		dist := perp.Norm()
		if dist == 0 {
			continue
		}
		u := perp.Mul(1 / dist)
		jtj = jtj.add(outer(u))
		// Jᵗr row contribution is u·dist, which is perp itself.
		jtr = jtr.Add(perp)
	}
	return jtj, jtr
}

func sumSquaredDistances(rays []Ray, x r3.Vector) float64 {
	var sum float64
	for _, r := range rays {
		sum += r.perpendicular(x).Norm2()
	}
	return sum
}

func clampLambda(l float64) float64 {
	if !(l >= MinLambda) {
		return MinLambda
	}
	return math.Min(l, MaxLambda)
}
