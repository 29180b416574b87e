package pips

import (
	"context"

	"github.com/pkg/errors"
	"go.uber.org/zap"
	"gonum.org/v1/gonum/floats"

	"power-system-opf/sparse"
)

// QP is the quadratic program
//
//	min ½xᵀHx + cᵀx  s.t. l ≤ A·x ≤ u, xmin ≤ x ≤ xmax.
//
// A nil H makes it a linear program.
type QP struct {
	H          *sparse.Matrix
	C          []float64
	A          *sparse.Matrix
	L, U       []float64
	XMin, XMax []float64
	// X0 defaults to the zero vector.
	X0      []float64
	Options Options
	Solver  LinearSolver
	Logger  *zap.Logger
}

// SolveQP solves qp with the interior point method.
func SolveQP(ctx context.Context, qp *QP) (*Result, error) {
	nx := len(qp.C)
	if nx == 0 && qp.H != nil {
		nx, _ = qp.H.Dims()
	}
	if nx == 0 {
		return nil, ErrNoVariables
	}
	c := qp.C
	if c == nil {
		c = make([]float64, nx)
	}
	h := qp.H
	if h == nil {
		h = sparse.Zeros(nx, nx)
	}
	if r, cols := h.Dims(); r != nx || cols != nx || len(c) != nx {
		return nil, errors.Wrap(ErrDimension, "quadratic cost")
	}
	x0 := qp.X0
	if x0 == nil {
		x0 = make([]float64, nx)
	}

	objective := func(x []float64) (float64, []float64, *sparse.Matrix) {
		hx := h.MulVec(x)
		f := 0.5*floats.Dot(x, hx) + floats.Dot(c, x)
		floats.Add(hx, c)
		return f, hx, h
	}
	return Solve(ctx, &Problem{
		X0:        x0,
		A:         qp.A,
		L:         qp.L,
		U:         qp.U,
		XMin:      qp.XMin,
		XMax:      qp.XMax,
		Objective: objective,
		Options:   qp.Options,
		Solver:    qp.Solver,
		Logger:    qp.Logger,
	})
}
