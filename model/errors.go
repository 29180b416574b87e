package model

import "fmt"

// DuplicateNameError is returned when a set name is registered twice.
type DuplicateNameError struct {
	Kind string
	Name string
}

func (e *DuplicateNameError) Error() string {
	return fmt.Sprintf("model: %s %q already registered", e.Kind, e.Name)
}

// DimensionMismatchError reports a length or column count that does not
// agree with the registered sets.
type DimensionMismatchError struct {
	Name string
	Got  int
	Want int
}

func (e *DimensionMismatchError) Error() string {
	return fmt.Sprintf("model: %s: dimension %d, expected %d", e.Name, e.Got, e.Want)
}

// UnknownNameError is returned when a constraint references a variable set
// that has not been registered.
type UnknownNameError struct {
	Constraint string
	Name       string
}

func (e *UnknownNameError) Error() string {
	return fmt.Sprintf("model: %s references unknown variable set %q", e.Constraint, e.Name)
}

// BoundOrderError reports a constraint row with L > U.
type BoundOrderError struct {
	Name string
	Row  int
	L, U float64
}

func (e *BoundOrderError) Error() string {
	return fmt.Sprintf("model: %s row %d: lower bound %g exceeds upper bound %g", e.Name, e.Row, e.L, e.U)
}
