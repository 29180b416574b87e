package opf

import (
	"context"
	"math"

	"github.com/pkg/errors"
	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/optimize/convex/lp"

	"power-system-opf/pips"
	"power-system-opf/sparse"
)

const simplexTol = 1e-10

func (o *OPF) solveDC(ctx context.Context, f *formulation) (*pips.Result, error) {
	a, l, u := f.m.LinearConstraints()
	_, xmin, xmax := f.m.Bounds()
	h, c, c0 := f.cost.QP()

	if o.algorithm == Simplex {
		if !f.cost.IsLinear() {
			return nil, ErrNonlinearCost
		}
		res, err := simplexDispatch(c, a, l, u, xmin, xmax, f.m.NumLin())
		if err != nil {
			return nil, err
		}
		res.F += c0
		return res, nil
	}

	res, err := pips.SolveQP(ctx, &pips.QP{
		H:       h,
		C:       c,
		A:       a,
		L:       l,
		U:       u,
		XMin:    xmin,
		XMax:    xmax,
		X0:      f.initialPoint(),
		Options: o.opt,
		Solver:  o.solver,
		Logger:  o.logger,
	})
	if res != nil {
		res.F += c0
	}
	return res, err
}

// simplexDispatch solves min cᵀx s.t. l ≤ A·x ≤ u, xmin ≤ x ≤ xmax with
// the simplex method. The result carries zero multipliers.
func simplexDispatch(c []float64, a *sparse.Matrix, l, u, xmin, xmax []float64, nA int) (*pips.Result, error) {
	nx := len(c)
	type row struct {
		m *sparse.Matrix
		s float64
	}
	var eqRows, ineqRows []row
	var b, hv []float64
	bound := func(m *sparse.Matrix, lo, hi float64) {
		if math.Abs(hi-lo) <= 1e-12 {
			eqRows = append(eqRows, row{m, 1})
			b = append(b, hi)
			return
		}
		if !math.IsInf(hi, 1) {
			ineqRows = append(ineqRows, row{m, 1})
			hv = append(hv, hi)
		}
		if !math.IsInf(lo, -1) {
			ineqRows = append(ineqRows, row{m, -1})
			hv = append(hv, -lo)
		}
	}
	id := sparse.Identity(nx)
	for i := 0; i < nx; i++ {
		bound(id.SelectRows([]int{i}), xmin[i], xmax[i])
	}
	for i := 0; i < nA; i++ {
		bound(a.SelectRows([]int{i}), l[i], u[i])
	}
	stack := func(rows []row) *sparse.Matrix {
		t := sparse.NewTriplet(len(rows), nx)
		for r, rw := range rows {
			t.AppendScaled(rw.m, r, 0, rw.s)
		}
		return t.Matrix()
	}

	var g, ae mat.Matrix
	if len(hv) > 0 {
		g = stack(ineqRows)
	}
	if len(b) > 0 {
		ae = stack(eqRows)
	}
	cs, as, bs := lp.Convert(c, g, hv, ae, b)
	fopt, xs, err := lp.Simplex(cs, as, bs, simplexTol, nil)
	if err != nil {
		return nil, errors.Wrap(err, "opf: simplex dispatch")
	}
	x := make([]float64, nx)
	for i := range x {
		x[i] = xs[i] - xs[nx+i]
	}
	return &pips.Result{
		X:      x,
		F:      fopt,
		Status: pips.Converged,
		Lambda: pips.Multipliers{
			MuL:   make([]float64, nA),
			MuU:   make([]float64, nA),
			Lower: make([]float64, nx),
			Upper: make([]float64, nx),
		},
		Output: pips.Output{Message: "simplex optimum"},
	}, nil
}
