package cost

import "fmt"

// UnsupportedCostOrderError is returned for polynomial costs above second
// order.
type UnsupportedCostOrderError struct {
	Gen   int
	Order int
}

func (e *UnsupportedCostOrderError) Error() string {
	return fmt.Sprintf("cost: generator %d: polynomial of order %d not supported", e.Gen, e.Order)
}

// BadCostDataError reports a malformed piecewise linear cost curve.
type BadCostDataError struct {
	Gen    int
	Reason string
}

func (e *BadCostDataError) Error() string {
	return fmt.Sprintf("cost: generator %d: bad piecewise linear data: %s", e.Gen, e.Reason)
}
