package network

import (
	"fmt"
	"strings"

	"github.com/pkg/errors"
)

// CostModel selects which representation of a generator cost curve is in
// use. Evaluation switches on it.
type CostModel int

const (
	// Polynomial costs are Σ Coeffs[k]·P^(n-1-k) in $/h with P in MW.
	Polynomial CostModel = iota
	// PiecewiseLinear costs interpolate Points; a convex curve is assumed.
	PiecewiseLinear
)

func (m CostModel) String() string {
	switch m {
	case Polynomial:
		return "polynomial"
	case PiecewiseLinear:
		return "pwl"
	}
	return fmt.Sprintf("CostModel(%d)", int(m))
}

func (m CostModel) MarshalText() ([]byte, error) {
	if m != Polynomial && m != PiecewiseLinear {
		return nil, ErrCostModel
	}
	return []byte(m.String()), nil
}

func (m *CostModel) UnmarshalText(b []byte) error {
	switch strings.ToLower(strings.TrimSpace(string(b))) {
	case "polynomial", "poly", "2":
		*m = Polynomial
	case "pwl", "piecewise_linear", "1":
		*m = PiecewiseLinear
	default:
		return errors.Wrapf(ErrCostModel, "network: %q", string(b))
	}
	return nil
}

// Point is a breakpoint of a piecewise linear cost curve.
type Point struct {
	// 出力 (MW)
	P float64 `json:"p" yaml:"p"`
	// 费用 ($/h)
	C float64 `json:"c" yaml:"c"`
}

// 发电成本
type Cost struct {
	Model  CostModel `json:"model" yaml:"model"`
	Coeffs []float64 `json:"coeffs,omitempty" yaml:"coeffs,omitempty"`
	Points []Point   `json:"points,omitempty" yaml:"points,omitempty"`
}

func (c Cost) validate() error {
	if c.Model != Polynomial && c.Model != PiecewiseLinear {
		return ErrCostModel
	}
	return nil
}

func (c Cost) clone() Cost {
	return Cost{
		Model:  c.Model,
		Coeffs: append([]float64(nil), c.Coeffs...),
		Points: append([]Point(nil), c.Points...),
	}
}
