package cost

import (
	"math"
	"testing"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"power-system-opf/network"
)

const delta = 1e-9

func poly(c ...float64) network.Cost {
	return network.Cost{Model: network.Polynomial, Coeffs: c}
}

func pwl(pts ...network.Point) network.Cost {
	return network.Cost{Model: network.PiecewiseLinear, Points: pts}
}

func TestPolyval(t *testing.T) {
	assert.Equal(t, 12.0, Polyval([]float64{2, 3, 7}, 1))
	assert.Equal(t, 21.0, Polyval([]float64{2, 3, 7}, 2))
	assert.Equal(t, 7.0, Polyval([]float64{2, 3, 7}, 0))
	assert.Equal(t, []float64{4, 3}, Polyder([]float64{2, 3, 7}))
	assert.Nil(t, Polyder([]float64{5}))
}

func TestLinearCost(t *testing.T) {
	gens := []network.Generator{{Cost: poly(12, 30)}}
	e, err := NewEvaluator(gens, 100, 0, 1, 1)
	require.NoError(t, err)

	f, df, d2f := e.Eval([]float64{0.5})
	assert.InDelta(t, 12*50+30, f, delta)
	assert.InDelta(t, 12*100, df[0], delta)
	assert.Equal(t, 0, d2f.NNZ())
	assert.True(t, e.IsLinear())
}

func TestQuadraticMatchesQP(t *testing.T) {
	gens := []network.Generator{
		{Cost: poly(0.01, 5, 3)},
		{Cost: poly(7, 0)},
		{Cost: pwl(network.Point{P: 0, C: 0}, network.Point{P: 50, C: 100}, network.Point{P: 100, C: 300})},
	}
	// x = [Pg0, Pg1, Pg2, y]
	e, err := NewEvaluator(gens, 100, 0, 3, 4)
	require.NoError(t, err)
	require.Equal(t, 1, e.NumY())
	assert.False(t, e.IsLinear())

	x := []float64{0.3, 1.2, 0.4, 250}
	f, df, d2f := e.Eval(x)
	assert.InDelta(t, 0.01*900+5*30+3+7*120+250, f, delta)
	assert.InDelta(t, 100*(0.02*30+5), df[0], delta)
	assert.InDelta(t, 700, df[1], delta)
	assert.Equal(t, 0.0, df[2])
	assert.Equal(t, 1.0, df[3])
	assert.InDelta(t, 0.02*100*100, d2f.At(0, 0), delta)

	h, c, c0 := e.QP()
	hx := h.MulVec(x)
	var q float64
	for i := range x {
		q += 0.5*x[i]*hx[i] + c[i]*x[i]
	}
	assert.InDelta(t, f, q+c0, 1e-9)
}

func TestUnsupportedOrder(t *testing.T) {
	gens := []network.Generator{{Cost: poly(1, 0.01, 5, 0)}}
	_, err := NewEvaluator(gens, 100, 0, 1, 1)
	var order *UnsupportedCostOrderError
	require.True(t, errors.As(err, &order))
	assert.Equal(t, 3, order.Order)
}

func TestBasin(t *testing.T) {
	gens := []network.Generator{
		{Cost: poly(1, 0)},
		{Cost: pwl(network.Point{P: 0, C: 0}, network.Point{P: 50, C: 100}, network.Point{P: 100, C: 300})},
	}
	a, l, u, err := Basin(gens, 100)
	require.NoError(t, err)
	r, c := a.Dims()
	assert.Equal(t, 2, r)
	assert.Equal(t, 3, c)

	// slopes in $/h per p.u.
	assert.InDelta(t, 200, a.At(0, 1), delta)
	assert.InDelta(t, 400, a.At(1, 1), delta)
	assert.Equal(t, -1.0, a.At(1, 2))
	assert.True(t, math.IsInf(l[0], -1))
	assert.InDelta(t, 0, u[0], delta)
	assert.InDelta(t, 400*0.5-100, u[1], delta)

	// y on the curve satisfies every row with equality at its own segment.
	x := []float64{0, 0.75, 200}
	row := a.MulVec(x)
	assert.LessOrEqual(t, row[0], u[0]+delta)
	assert.InDelta(t, u[1], row[1], delta)
}

func TestBadBreakpoints(t *testing.T) {
	gens := []network.Generator{{Cost: pwl(network.Point{P: 10, C: 0}, network.Point{P: 10, C: 5})}}
	_, _, _, err := Basin(gens, 100)
	var bad *BadCostDataError
	require.True(t, errors.As(err, &bad))
}

func TestPWL1ToPoly(t *testing.T) {
	gens := []network.Generator{
		{Cost: pwl(network.Point{P: 10, C: 100}, network.Point{P: 30, C: 300})},
		{Cost: pwl(network.Point{P: 0, C: 0}, network.Point{P: 1, C: 1}, network.Point{P: 2, C: 3})},
	}
	PWL1ToPoly(gens)
	assert.Equal(t, network.Polynomial, gens[0].Cost.Model)
	assert.InDeltaSlice(t, []float64{10, 0}, gens[0].Cost.Coeffs, delta)
	assert.Equal(t, network.PiecewiseLinear, gens[1].Cost.Model)
	assert.Equal(t, 3.0, MaxPWLCost(gens))
}

func TestTotal(t *testing.T) {
	assert.InDelta(t, 10+50*20, Total(poly(0, 50, 10), 20), delta)
	c := pwl(network.Point{P: 0, C: 0}, network.Point{P: 100, C: 1000}, network.Point{P: 200, C: 3000})
	assert.InDelta(t, 500, Total(c, 50), delta)
	assert.InDelta(t, 2000, Total(c, 150), delta)
	assert.InDelta(t, 4000, Total(c, 250), delta)
	assert.InDelta(t, -100, Total(c, -10), delta)
}
