package locate

import (
	"math"

	"github.com/golang/geo/r3"
	"gonum.org/v1/gonum/mat"
)

// DegenerateEpsilon bounds the reciprocal condition number (smallest over
// largest singular value) of every 3x3 system the solver inverts. Systems below
// it are treated as singular. The same rule guards IntersectionEstimate and
// the Levenberg-Marquardt step.
const DegenerateEpsilon = 1e-9

// sym3 is a symmetric 3x3 matrix stored row-major.
type sym3 [3][3]float64

// projector returns I - d·dᵗ for a unit vector d.
func projector(d r3.Vector) sym3 {
	v := [3]float64{d.X, d.Y, d.Z}
	var p sym3
	for i := 0; i < 3; i++ {
		for j := 0; j < 3; j++ {
			p[i][j] = -v[i] * v[j]
		}
		p[i][i] += 1
	}
	return p
}

// outer returns u·uᵗ.
func outer(u r3.Vector) sym3 {
	v := [3]float64{u.X, u.Y, u.Z}
	var o sym3
	for i := 0; i < 3; i++ {
		for j := 0; j < 3; j++ {
			o[i][j] = v[i] * v[j]
		}
	}
	return o
}

func (m sym3) add(o sym3) sym3 {
	for i := 0; i < 3; i++ {
		for j := 0; j < 3; j++ {
			m[i][j] += o[i][j]
		}
	}
	return m
}

func (m sym3) mulVec(v r3.Vector) r3.Vector {
	return r3.Vector{
		X: m[0][0]*v.X + m[0][1]*v.Y + m[0][2]*v.Z,
		Y: m[1][0]*v.X + m[1][1]*v.Y + m[1][2]*v.Z,
		Z: m[2][0]*v.X + m[2][1]*v.Y + m[2][2]*v.Z,
	}
}

func (m sym3) dense() *mat.SymDense {
	return mat.NewSymDense(3, []float64{
		m[0][0], m[0][1], m[0][2],
		m[1][0], m[1][1], m[1][2],
		m[2][0], m[2][1], m[2][2],
	})
}

// conditioned reports whether a passes the DegenerateEpsilon test.
func conditioned(a mat.Matrix) bool {
	r, c := a.Dims()
	for i := 0; i < r; i++ {
		for j := 0; j < c; j++ {
			if v := a.At(i, j); math.IsNaN(v) || math.IsInf(v, 0) {
				return false
			}
		}
	}

	var svd mat.SVD
	if !svd.Factorize(a, mat.SVDNone) {
		return false
	}
	values := svd.Values(nil)
	largest, smallest := values[0], values[len(values)-1]
	if largest <= 0 {
		return false
	}
	return smallest/largest >= DegenerateEpsilon
}

// solve3 solves a·x = b, returning ErrDegenerateGeometry for ill-conditioned a.
func solve3(a sym3, b r3.Vector) (r3.Vector, error) {
	am := a.dense()
	if !conditioned(am) {
		return r3.Vector{}, ErrDegenerateGeometry
	}

	var x mat.VecDense
	if err := x.SolveVec(am, mat.NewVecDense(3, []float64{b.X, b.Y, b.Z})); err != nil {
		return r3.Vector{}, ErrDegenerateGeometry
	}
	return r3.Vector{X: x.AtVec(0), Y: x.AtVec(1), Z: x.AtVec(2)}, nil
}
