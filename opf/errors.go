package opf

import "github.com/pkg/errors"

var (
	ErrNoCase = errors.New("opf: no case given")
	// ErrReferenceBus means the case does not have exactly one reference bus.
	ErrReferenceBus = errors.New("opf: case must have exactly one reference bus")
	// ErrDispatchableLoad means a dispatchable load has both Q limits set,
	// so its power factor is undefined.
	ErrDispatchableLoad = errors.New("opf: either QMin or QMax of a dispatchable load must be zero")
	// ErrNonlinearCost means the simplex dispatch was asked to solve a case
	// with quadratic costs.
	ErrNonlinearCost = errors.New("opf: simplex dispatch requires linear costs")
	// ErrNotSolved is returned by Result.Apply for a numerically failed solve.
	ErrNotSolved = errors.New("opf: result of a failed solve cannot be applied")
	// ErrCaseMismatch means a result is applied to a case of another shape.
	ErrCaseMismatch = errors.New("opf: result does not match the case")
)
