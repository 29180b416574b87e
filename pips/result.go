package pips

import "fmt"

// Status is the terminal state of a solve.
type Status int

const (
	// NotConverged means the iteration limit was reached.
	NotConverged Status = iota
	// Converged means all four termination criteria were met.
	Converged
	// NumericallyFailed means the iteration broke down; see FailReason.
	NumericallyFailed
)

func (s Status) String() string {
	switch s {
	case NotConverged:
		return "not converged"
	case Converged:
		return "converged"
	case NumericallyFailed:
		return "numerically failed"
	}
	return fmt.Sprintf("Status(%d)", int(s))
}

// FailReason explains a NumericallyFailed status.
type FailReason int

const (
	NoFailure FailReason = iota
	// NonFiniteIterate means x contains NaN or Inf.
	NonFiniteIterate
	// StepTooSmall means the primal or dual step fell below 1e-8.
	StepTooSmall
	// BarrierOutOfRange means the barrier parameter left [eps, 1/eps].
	BarrierOutOfRange
	// SingularKKT means the Newton system could not be solved.
	SingularKKT
)

func (r FailReason) String() string {
	switch r {
	case NoFailure:
		return "none"
	case NonFiniteIterate:
		return "non-finite iterate"
	case StepTooSmall:
		return "step size too small"
	case BarrierOutOfRange:
		return "barrier parameter out of range"
	case SingularKKT:
		return "singular KKT system"
	}
	return fmt.Sprintf("FailReason(%d)", int(r))
}

// Multipliers are the Lagrange multipliers at the solution, unscaled.
type Multipliers struct {
	// EqNonlin and IneqNonlin belong to the nonlinear constraints g and h.
	EqNonlin   []float64
	IneqNonlin []float64
	// MuL and MuU belong to the lower and upper sides of l ≤ A·x ≤ u.
	MuL []float64
	MuU []float64
	// Lower and Upper belong to the variable bounds.
	Lower []float64
	Upper []float64
}

// Iteration records the progress measures of one iteration.
type Iteration struct {
	Iter     int
	FeasCond float64
	GradCond float64
	CompCond float64
	CostCond float64
	Gamma    float64
	StepSize float64
	Obj      float64
	AlphaP   float64
	AlphaD   float64
}

// Output describes how the solve went.
type Output struct {
	Iterations int
	Message    string
	// History starts with the initial point (Iter 0).
	History []Iteration
}

// Result is the outcome of Solve.
type Result struct {
	X      []float64
	F      float64
	Status Status
	Reason FailReason
	Lambda Multipliers
	Output Output
}

func (r *Result) Converged() bool { return r.Status == Converged }
