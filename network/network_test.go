package network

import (
	"bytes"
	"math"
	"math/cmplx"
	"testing"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const delta = 1e-9

func TestLoadJSONAndYAML(t *testing.T) {
	fromJSON, err := Load("testdata/case3.json")
	require.NoError(t, err)
	fromYAML, err := Load("testdata/case3.yaml")
	require.NoError(t, err)

	for _, c := range []*Case{fromJSON, fromYAML} {
		assert.Equal(t, 100.0, c.BaseMVA)
		require.Len(t, c.Buses, 3)
		require.Len(t, c.Branches, 3)
		require.Len(t, c.Generators, 2)
		assert.Equal(t, Reference, c.Buses[0].Type)
		assert.Equal(t, PQ, c.Buses[2].Type)
		assert.Equal(t, 1.0, c.Buses[1].Vm)
		assert.Equal(t, 1.1, c.Buses[1].VMax)
		assert.Equal(t, 0.9, c.Buses[1].VMin)
		assert.Equal(t, 60.0, c.Branches[1].RateA)
		assert.Equal(t, []int{0}, c.RefBuses())
	}
	assert.Equal(t, []float64{0.01, 5, 0}, fromYAML.Generators[0].Cost.Coeffs)
	assert.Equal(t, PiecewiseLinear, fromYAML.Generators[1].Cost.Model)
	assert.Equal(t, Point{P: 200, C: 1400}, fromYAML.Generators[1].Cost.Points[1])
}

func TestLoadUnknownFormat(t *testing.T) {
	_, err := Load("testdata/case3.txt")
	require.Error(t, err)
}

func TestValidate(t *testing.T) {
	c := twoBus()
	require.NoError(t, c.Validate())

	c.Branches[0].To = 5
	err := c.Validate()
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrBusRange))
	var ee *ElementError
	require.True(t, errors.As(err, &ee))
	assert.Equal(t, "branch", ee.Kind)

	c = twoBus()
	c.Branches[0].R, c.Branches[0].X = 0, 0
	assert.True(t, errors.Is(c.Validate(), ErrZeroImpedance))

	c = twoBus()
	c.BaseMVA = 0
	assert.Equal(t, ErrBaseMVA, c.Validate())
}

func TestInternalRenumbers(t *testing.T) {
	c := &Case{
		BaseMVA: 100,
		Buses: []Bus{
			{Type: Reference}, {Type: Isolated}, {Type: PQ, Pd: 10},
		},
		Branches: []Branch{
			{From: 1, To: 2, X: 0.1},
			{From: 1, To: 3, X: 0.1},
			{From: 3, To: 1, X: 0.2, OutOfService: true},
		},
		Generators: []Generator{
			{Bus: 1, PMax: 50},
			{Bus: 2, PMax: 50},
			{Bus: 3, PMax: 50, OutOfService: true},
		},
	}
	in, m, err := c.Internal()
	require.NoError(t, err)
	assert.Equal(t, []int{0, 2}, m.Buses)
	assert.Equal(t, []int{1}, m.Branches)
	assert.Equal(t, []int{0}, m.Generators)
	require.Len(t, in.Branches, 1)
	assert.Equal(t, 1, in.Branches[0].From)
	assert.Equal(t, 2, in.Branches[0].To)
	assert.Equal(t, 10.0, in.Buses[1].Pd)

	in.Generators[0].PMax = 1
	assert.Equal(t, 50.0, c.Generators[0].PMax)
}

func TestMakeYbusLine(t *testing.T) {
	c := twoBus()
	ybus, yf, yt := MakeYbus(c)

	ys := 1 / complex(0.01, 0.1)
	assert.InDelta(t, 0, cmplx.Abs(ybus.At(0, 0)-(ys+complex(0, 0.01))), delta)
	assert.InDelta(t, 0, cmplx.Abs(ybus.At(0, 1)+ys), delta)
	assert.InDelta(t, 0, cmplx.Abs(ybus.At(1, 1)-(ys+complex(0, 0.01))-complex(0.1, 0.2)), delta)
	assert.InDelta(t, 0, cmplx.Abs(yf.At(0, 1)+ys), delta)
	assert.InDelta(t, 0, cmplx.Abs(yt.At(0, 0)+ys), delta)

	// Without shunts or charging the self admittance is minus the row sum.
	c.Branches[0].B = 0
	c.Buses[1].Gs, c.Buses[1].Bs = 0, 0
	ybus, _, _ = MakeYbus(c)
	for i := 0; i < 2; i++ {
		assert.InDelta(t, 0, cmplx.Abs(ybus.At(i, 0)+ybus.At(i, 1)), delta)
	}
}

func TestMakeYbusTransformer(t *testing.T) {
	c := twoBus()
	c.Branches[0].B = 0
	c.Branches[0].Ratio = 2
	c.Branches[0].Shift = 30
	ybus, _, _ := MakeYbus(c)

	ys := 1 / complex(0.01, 0.1)
	tap := cmplx.Rect(2, math.Pi/6)
	assert.InDelta(t, 0, cmplx.Abs(ybus.At(0, 0)-ys/4), delta)
	assert.InDelta(t, 0, cmplx.Abs(ybus.At(0, 1)+ys/cmplx.Conj(tap)), delta)
	assert.InDelta(t, 0, cmplx.Abs(ybus.At(1, 0)+ys/tap), delta)
}

func TestMakeBdc(t *testing.T) {
	c := twoBus()
	c.Branches[0].Shift = -10
	bbus, bf, pbusinj, pfinj := MakeBdc(c)

	assert.InDelta(t, 10, bbus.At(0, 0), delta)
	assert.InDelta(t, -10, bbus.At(1, 0), delta)
	assert.InDelta(t, -10, bf.At(0, 1), delta)
	assert.InDelta(t, 10*10*math.Pi/180, pfinj[0], delta)
	assert.InDelta(t, pfinj[0], pbusinj[0], delta)
	assert.InDelta(t, -pfinj[0], pbusinj[1], delta)
}

func TestMakeSbus(t *testing.T) {
	c := twoBus()
	c.Generators = []Generator{{Bus: 2}}
	s := MakeSbus(c, []float64{0.5}, []float64{0.1})
	assert.Equal(t, complex(0, 0), s[0])
	assert.InDelta(t, 0, cmplx.Abs(s[1]-complex(0.5-0.4, 0.1-0.2)), delta)

	cg := GenConnection(c)
	assert.Equal(t, 1.0, cg.At(1, 0))
	cf, ct := BranchConnection(c)
	assert.Equal(t, 1.0, cf.At(0, 0))
	assert.Equal(t, 1.0, ct.At(0, 1))
}

func TestFprintComplexMatrix(t *testing.T) {
	c := twoBus()
	c.Branches[0].R, c.Branches[0].X, c.Branches[0].B = 0.1, 0.1, 0
	c.Buses[1].Gs, c.Buses[1].Bs = 0, 0
	ybus, _, _ := MakeYbus(c)
	var buf bytes.Buffer
	require.NoError(t, FprintComplexMatrix(&buf, ybus))
	assert.Equal(t, "5.000 - j5.000\t\t-5.000 + j5.000\t\t\n-5.000 + j5.000\t\t5.000 - j5.000\t\t\n", buf.String())
}

func TestCloneIsDeep(t *testing.T) {
	c := twoBus()
	c.Generators = []Generator{{Bus: 1, Cost: Cost{Coeffs: []float64{1, 2}}}}
	d := c.Clone()
	d.Buses[0].Pd = 99
	d.Generators[0].Cost.Coeffs[0] = 7
	assert.Equal(t, 0.0, c.Buses[0].Pd)
	assert.Equal(t, 1.0, c.Generators[0].Cost.Coeffs[0])
}

func twoBus() *Case {
	return &Case{
		BaseMVA: 100,
		Buses: []Bus{
			{Type: Reference, Vm: 1, VMax: 1.1, VMin: 0.9},
			{Type: PQ, Pd: 40, Qd: 20, Gs: 10, Bs: 20, Vm: 1, VMax: 1.1, VMin: 0.9},
		},
		Branches: []Branch{{From: 1, To: 2, R: 0.01, X: 0.1, B: 0.02}},
	}
}

func TestUnknownEnumText(t *testing.T) {
	var bt BusType
	err := bt.UnmarshalText([]byte("slack"))
	assert.True(t, errors.Is(err, ErrBusType))
	_, err = BusType(9).MarshalText()
	assert.True(t, errors.Is(err, ErrBusType))

	var m CostModel
	err = m.UnmarshalText([]byte("cubic"))
	assert.True(t, errors.Is(err, ErrCostModel))

	require.NoError(t, bt.UnmarshalText([]byte("3")))
	assert.Equal(t, "ref", bt.String())
}
