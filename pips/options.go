// Package pips implements a primal-dual interior point method for nonlinear
// programs of the form
//
//	min f(x)
//	s.t. g(x) = 0, h(x) ≤ 0, l ≤ A·x ≤ u, xmin ≤ x ≤ xmax
//
// using Newton steps on the perturbed KKT conditions with slack variables
// for the inequalities.
package pips

const (
	// xi is the fraction of the step to the boundary taken for z and mu.
	xi = 0.99995
	// sigma is the centering parameter.
	sigma = 0.1
	// z0 is the default initial value of the slacks.
	z0 = 1.0
	// alphaMin is the smallest step accepted before the solve is declared
	// numerically failed.
	alphaMin = 1e-8
	// muThreshold is the multiplier value below which a non-binding
	// constraint's multiplier is reported as zero.
	muThreshold = 1e-5
	// rhoMin and rhoMax bound the accepted ratio of actual to predicted
	// change of the merit function when step control is on.
	rhoMin = 0.95
	rhoMax = 1.05
	// big marks a linear bound as absent.
	big = 1e10
)

// Options controls termination and scaling. Zero fields take the values of
// DefaultOptions.
type Options struct {
	// FeasTol is the termination tolerance on feasibility.
	FeasTol float64 `json:"feastol" yaml:"feastol"`
	// GradTol is the termination tolerance on the gradient of the
	// Lagrangian.
	GradTol float64 `json:"gradtol" yaml:"gradtol"`
	// CompTol is the termination tolerance on complementarity.
	CompTol float64 `json:"comptol" yaml:"comptol"`
	// CostTol is the termination tolerance on the relative cost change.
	CostTol float64 `json:"costtol" yaml:"costtol"`
	// MaxIt is the iteration limit.
	MaxIt int `json:"max_it" yaml:"max_it"`
	// MaxRed is the maximum number of step halvings under step control.
	MaxRed int `json:"max_red" yaml:"max_red"`
	// StepControl enables the merit function safeguard on the Newton step.
	StepControl bool `json:"step_control" yaml:"step_control"`
	// CostMult scales the objective before solving; results are reported
	// unscaled.
	CostMult float64 `json:"cost_mult" yaml:"cost_mult"`
	// Verbose logs every iteration at Info level.
	Verbose bool `json:"verbose" yaml:"verbose"`
}

func DefaultOptions() Options {
	return Options{
		FeasTol:  1e-6,
		GradTol:  1e-6,
		CompTol:  1e-6,
		CostTol:  1e-6,
		MaxIt:    150,
		MaxRed:   20,
		CostMult: 1,
	}
}

func (o Options) withDefaults() Options {
	d := DefaultOptions()
	if o.FeasTol == 0 {
		o.FeasTol = d.FeasTol
	}
	if o.GradTol == 0 {
		o.GradTol = d.GradTol
	}
	if o.CompTol == 0 {
		o.CompTol = d.CompTol
	}
	if o.CostTol == 0 {
		o.CostTol = d.CostTol
	}
	if o.MaxIt == 0 {
		o.MaxIt = d.MaxIt
	}
	if o.MaxRed == 0 {
		o.MaxRed = d.MaxRed
	}
	if o.CostMult == 0 {
		o.CostMult = d.CostMult
	}
	return o
}
