package powerflow

import (
	"fmt"

	"github.com/pkg/errors"
)

var (
	ErrReferenceBus = errors.New("powerflow: case needs exactly one reference bus with a generator")
	ErrSingular     = errors.New("powerflow: singular power flow matrix")
	ErrNotConverged = errors.New("powerflow: solution did not converge")
	ErrCaseMismatch = errors.New("powerflow: case does not match the solution")
)

// NumericDegeneracyError is returned when a bus voltage magnitude is zero,
// where the polar derivatives are undefined.
type NumericDegeneracyError struct {
	Bus int
}

func (e *NumericDegeneracyError) Error() string {
	return fmt.Sprintf("powerflow: zero voltage magnitude at bus %d", e.Bus)
}
