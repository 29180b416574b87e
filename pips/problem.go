package pips

import (
	"github.com/pkg/errors"
	"go.uber.org/zap"

	"power-system-opf/sparse"
)

// ObjectiveFunc returns f(x), ∇f(x) and ∇²f(x). The Hessian is only used
// when the problem has no nonlinear constraints and may be nil otherwise.
type ObjectiveFunc func(x []float64) (f float64, df []float64, d2f *sparse.Matrix)

// ConstraintFunc returns the nonlinear inequalities h(x) ≤ 0, equalities
// g(x) = 0 and their Jacobians (one row per constraint).
type ConstraintFunc func(x []float64) (h, g []float64, dh, dg *sparse.Matrix, err error)

// HessianFunc returns the Hessian of the Lagrangian
// costMult·f(x) + lamᵀg(x) + muᵀh(x), objective term included. lam and mu
// hold the multipliers of the nonlinear constraints only.
type HessianFunc func(x, lam, mu []float64, costMult float64) (*sparse.Matrix, error)

var (
	ErrNoVariables        = errors.New("pips: problem has no variables")
	ErrNoObjective        = errors.New("pips: objective function is required")
	ErrNoHessian          = errors.New("pips: nonlinear constraints require a Hessian function")
	ErrInconsistentBounds = errors.New("pips: lower bound exceeds upper bound")
	ErrDimension          = errors.New("pips: dimension mismatch")
)

// Problem is a nonlinear program. A nil A means no linear constraints; nil
// XMin and XMax mean unbounded variables; a nil Constraints function means
// the problem has linear constraints only.
type Problem struct {
	X0          []float64
	A           *sparse.Matrix
	L, U        []float64
	XMin, XMax  []float64
	Objective   ObjectiveFunc
	Constraints ConstraintFunc
	Hessian     HessianFunc
	Options     Options
	// Solver factors the Newton system; DenseLU when nil.
	Solver LinearSolver
	// Logger receives progress when Options.Verbose is set; zap.NewNop when
	// nil.
	Logger *zap.Logger
}

func (p *Problem) validate() error {
	nx := len(p.X0)
	var err error
	switch {
	case nx == 0:
		err = ErrNoVariables
	case p.Objective == nil:
		err = ErrNoObjective
	case p.Constraints != nil && p.Hessian == nil:
		err = ErrNoHessian
	case p.XMin != nil && len(p.XMin) != nx, p.XMax != nil && len(p.XMax) != nx:
		err = errors.Wrap(ErrDimension, "variable bounds")
	}
	if err != nil {
		return err
	}
	if p.A != nil {
		r, c := p.A.Dims()
		if c != nx || p.L != nil && len(p.L) != r || p.U != nil && len(p.U) != r {
			return errors.Wrap(ErrDimension, "linear constraints")
		}
	}
	for i := 0; i < nx; i++ {
		if p.XMin != nil && p.XMax != nil && p.XMin[i] > p.XMax[i] {
			return errors.Wrapf(ErrInconsistentBounds, "variable %d: %g > %g", i, p.XMin[i], p.XMax[i])
		}
	}
	for i := range p.L {
		if p.U != nil && p.L[i] > p.U[i] {
			return errors.Wrapf(ErrInconsistentBounds, "linear constraint %d: %g > %g", i, p.L[i], p.U[i])
		}
	}
	return nil
}
