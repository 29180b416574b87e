package pips

import (
	"math"

	"github.com/pkg/errors"
	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/mat"

	"power-system-opf/sparse"
)

// ErrSingular is returned by a LinearSolver that cannot solve its system.
var ErrSingular = errors.New("pips: singular linear system")

// LinearSolver solves the square Newton system a·x = b.
type LinearSolver interface {
	Solve(a *sparse.Matrix, b []float64) ([]float64, error)
}

// DenseLU solves with a row-equilibrated dense LU factorisation.
// Ill-conditioned systems are accepted as long as the solution is finite.
type DenseLU struct{}

func (DenseLU) Solve(a *sparse.Matrix, b []float64) ([]float64, error) {
	n, c := a.Dims()
	if n != c || n != len(b) {
		return nil, errors.Errorf("pips: KKT system is %d×%d with %d right-hand sides", n, c, len(b))
	}
	scale := make([]float64, n)
	a.DoNonZero(func(i, _ int, v float64) {
		scale[i] = math.Max(scale[i], math.Abs(v))
	})
	rhs := make([]float64, n)
	for i, s := range scale {
		if s == 0 {
			return nil, ErrSingular
		}
		scale[i] = 1 / s
		rhs[i] = b[i] * scale[i]
	}

	var lu mat.LU
	lu.Factorize(a.Scale(scale, nil).Dense())
	var x mat.VecDense
	if err := lu.SolveVecTo(&x, false, mat.NewVecDense(n, rhs)); err != nil {
		var cond mat.Condition
		if !errors.As(err, &cond) || math.IsInf(float64(cond), 1) {
			return nil, ErrSingular
		}
	}
	sol := x.RawVector().Data
	if floats.HasNaN(sol) || math.IsInf(floats.Norm(sol, math.Inf(1)), 0) {
		return nil, ErrSingular
	}
	return sol, nil
}
