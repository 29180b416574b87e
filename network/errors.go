package network

import (
	"fmt"

	"github.com/pkg/errors"
)

var (
	ErrBaseMVA       = errors.New("network: base MVA must be positive")
	ErrNoBuses       = errors.New("network: case has no connected buses")
	ErrBusType       = errors.New("unknown bus type")
	ErrBusRange      = errors.New("bus reference out of range")
	ErrZeroImpedance = errors.New("zero series impedance")
	ErrCostModel     = errors.New("unknown cost model")
	ErrFormat        = errors.New("network: unsupported case file format")
)

// ElementError reports a problem with one bus, branch or generator.
type ElementError struct {
	Kind  string
	Index int
	Err   error
}

func (e *ElementError) Error() string {
	return fmt.Sprintf("network: %s %d: %v", e.Kind, e.Index, e.Err)
}

func (e *ElementError) Unwrap() error { return e.Err }
