package opf

import (
	"context"

	"power-system-opf/pips"
	"power-system-opf/sparse"
)

// acCostMult replaces the default cost multiplier of 1 in AC solves.
const acCostMult = 1e-4

func (o *OPF) solveAC(ctx context.Context, f *formulation) (*pips.Result, error) {
	a, l, u := f.m.LinearConstraints()
	_, xmin, xmax := f.m.Bounds()

	opt := o.opt
	if opt.CostMult == 0 || opt.CostMult == 1 {
		opt.CostMult = acCostMult
	}
	hessian := func(x, lam, mu []float64, costMult float64) (*sparse.Matrix, error) {
		_, _, d2f := f.cost.Eval(x)
		hc, err := f.pf.Hessian(x, lam, mu)
		if err != nil {
			return nil, err
		}
		return d2f.ScaleBy(costMult).Add(hc), nil
	}
	return pips.Solve(ctx, &pips.Problem{
		X0:          f.initialPoint(),
		A:           a,
		L:           l,
		U:           u,
		XMin:        xmin,
		XMax:        xmax,
		Objective:   f.cost.Eval,
		Constraints: f.pf.Constraints,
		Hessian:     hessian,
		Options:     opt,
		Solver:      o.solver,
		Logger:      o.logger,
	})
}
