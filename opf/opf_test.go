package opf

import (
	"context"
	"math"
	"math/cmplx"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"

	"power-system-opf/cost"
	"power-system-opf/network"
	"power-system-opf/pips"
	"power-system-opf/powerflow"
)

func loadCase3(t *testing.T) *network.Case {
	t.Helper()
	c, err := network.Load("testdata/case3.json")
	require.NoError(t, err)
	return c
}

func solve(t *testing.T, c *network.Case, opts ...Option) *Result {
	t.Helper()
	o, err := New(c, opts...)
	require.NoError(t, err)
	res, err := o.Solve()
	require.NoError(t, err)
	require.True(t, res.Converged(), "%s: %s", res.Status, res.Output.Message)
	return res
}

// With the 60 MW limit on branch 1-3 binding, the cheap unit at bus 1 is
// held back to 30 MW and the prices split to 5.6, 7 and 8.4 $/MWh.
func TestDCCongestedCase(t *testing.T) {
	c := loadCase3(t)
	res := solve(t, c, WithDC(true))

	assert.True(t, res.DC)
	assert.InDelta(t, 999, res.F, 1e-2)
	assert.InDelta(t, 30, res.Generators[0].Pg, 1e-2)
	assert.InDelta(t, 120, res.Generators[1].Pg, 1e-2)

	assert.InDelta(t, -30, res.Branches[0].Pf, 1e-2)
	assert.InDelta(t, 60, res.Branches[1].Pf, 1e-2)
	assert.InDelta(t, 90, res.Branches[2].Pf, 1e-2)
	for _, br := range res.Branches {
		assert.Equal(t, -br.Pf, br.Pt)
		assert.Zero(t, br.Qf)
	}

	assert.InDelta(t, 5.6, res.Buses[0].LamP, 1e-3)
	assert.InDelta(t, 7, res.Buses[1].LamP, 1e-3)
	assert.InDelta(t, 8.4, res.Buses[2].LamP, 1e-3)
	assert.Zero(t, res.Buses[0].LamQ)

	assert.InDelta(t, 4.2, res.Branches[1].MuSf, 1e-3)
	assert.InDelta(t, 0, res.Branches[1].MuSt, 1e-6)
	assert.InDelta(t, 0, res.Branches[0].MuSf, 1e-6)
	assert.InDelta(t, 0, res.Branches[2].MuSf, 1e-6)

	assert.InDelta(t, 0, res.Buses[0].Va, 1e-9)
	for _, b := range res.Buses {
		assert.Equal(t, 1.0, b.Vm)
	}
}

func TestDCWithoutCongestion(t *testing.T) {
	c := loadCase3(t)
	c.Branches[1].RateA = 0
	res := solve(t, c, WithDC(true))
	assert.InDelta(t, 100, res.Generators[0].Pg, 1e-2)
	assert.InDelta(t, 50, res.Generators[1].Pg, 1e-2)
	for _, b := range res.Buses {
		assert.InDelta(t, 7, b.LamP, 1e-3)
	}
	assert.Zero(t, res.Branches[1].MuSf)
}

func TestDCPiecewiseLinearCost(t *testing.T) {
	c := loadCase3(t)
	c.Generators[1].Cost = network.Cost{
		Model:  network.PiecewiseLinear,
		Points: []network.Point{{P: 0, C: 0}, {P: 100, C: 700}, {P: 200, C: 1400}},
	}
	res := solve(t, c, WithDC(true))
	assert.InDelta(t, 999, res.F, 1e-2)
	assert.InDelta(t, 120, res.Generators[1].Pg, 1e-2)
	assert.InDelta(t, 8.4, res.Buses[2].LamP, 1e-3)
	// the case itself keeps its curve
	assert.Equal(t, network.PiecewiseLinear, c.Generators[1].Cost.Model)
}

func TestDCAngleLimits(t *testing.T) {
	c := loadCase3(t)
	c.Branches[1].RateA = 0
	// 0.06 rad across x = 0.1 carries 60 MW
	c.Branches[1].AngMax = 0.06 / deg2rad

	res := solve(t, c, WithDC(true))
	assert.InDelta(t, 100, res.Generators[0].Pg, 1e-2, "angle limits are ignored by default")
	assert.Zero(t, res.Branches[1].MuAngMax)

	res = solve(t, c, WithDC(true), WithAngleLimits(true))
	assert.InDelta(t, 30, res.Generators[0].Pg, 1e-2)
	assert.InDelta(t, 60, res.Branches[1].Pf, 1e-2)
	assert.InDelta(t, 4.2*100/0.1*deg2rad, res.Branches[1].MuAngMax, 1e-2)
	assert.InDelta(t, 0, res.Branches[1].MuAngMin, 1e-6)
}

func TestDCSimplexAgreesWithInteriorPoint(t *testing.T) {
	c := loadCase3(t)
	c.Generators[0].Cost.Coeffs = []float64{10, 0}
	c.Generators[1].Cost.Coeffs = []float64{20, 0}

	ipm := solve(t, c, WithDC(true))
	lp := solve(t, c, WithDC(true), WithDCAlgorithm(Simplex))
	assert.InDelta(t, 2700, lp.F, 1e-6)
	assert.InDelta(t, ipm.F, lp.F, 1e-2)
	for k := range lp.Generators {
		assert.InDelta(t, ipm.Generators[k].Pg, lp.Generators[k].Pg, 1e-2)
	}
	assert.InDelta(t, 30, lp.Generators[0].Pg, 1e-6)
	assert.Zero(t, lp.Buses[2].LamP)
}

func TestSimplexRejectsQuadraticCost(t *testing.T) {
	o, err := New(loadCase3(t), WithDC(true), WithDCAlgorithm(Simplex))
	require.NoError(t, err)
	_, err = o.Solve()
	assert.True(t, errors.Is(err, ErrNonlinearCost))
}

func TestSolveIsDeterministicAndLeavesCaseAlone(t *testing.T) {
	c := loadCase3(t)
	before := c.Clone()
	r1 := solve(t, c, WithDC(true))
	r2 := solve(t, c, WithDC(true))
	assert.Equal(t, r1.X, r2.X)
	assert.Equal(t, r1.Output.History, r2.Output.History)
	assert.Equal(t, before, c)
}

func TestApply(t *testing.T) {
	c := loadCase3(t)
	res := solve(t, c, WithDC(true))
	require.NoError(t, res.Apply(c))
	assert.InDelta(t, 30, c.Generators[0].Pg, 1e-2)
	assert.InDelta(t, 8.4, c.Buses[2].LamP, 1e-3)
	assert.InDelta(t, 60, c.Branches[1].Pf, 1e-2)
	assert.InDelta(t, 4.2, c.Branches[1].MuSf, 1e-3)
	assert.False(t, c.Generators[1].OutOfService)

	failed := &Result{Status: pips.NumericallyFailed}
	assert.Equal(t, ErrNotSolved, failed.Apply(c))

	assert.Equal(t, ErrCaseMismatch, res.Apply(&network.Case{BaseMVA: 100}))
}

func TestApplyDCKeepsReactiveData(t *testing.T) {
	c := loadCase3(t)
	c.Generators[0].Qg, c.Generators[1].Qg = 35, -12
	c.Generators[0].MuQMax = 0.5
	c.Generators[1].Vg = 1.02
	c.Buses[2].Vm, c.Buses[2].LamQ = 0.97, 1.5
	c.Branches[0].Qf, c.Branches[0].Qt = 4, -6

	res := solve(t, c, WithDC(true))
	require.NoError(t, res.Apply(c))
	assert.InDelta(t, 120, c.Generators[1].Pg, 1e-2)
	assert.Equal(t, 35.0, c.Generators[0].Qg)
	assert.Equal(t, -12.0, c.Generators[1].Qg)
	assert.Equal(t, 0.5, c.Generators[0].MuQMax)
	assert.Equal(t, 1.02, c.Generators[1].Vg)
	assert.Equal(t, 0.97, c.Buses[2].Vm)
	assert.Equal(t, 1.5, c.Buses[2].LamQ)
	assert.Equal(t, 4.0, c.Branches[0].Qf)
	assert.Equal(t, -6.0, c.Branches[0].Qt)
}

func TestOutOfServiceElements(t *testing.T) {
	c := loadCase3(t)
	c.Buses = append(c.Buses, network.Bus{Type: network.Isolated, Vm: 1, VMax: 1.1, VMin: 0.9})
	c.Generators = append(c.Generators, network.Generator{Bus: 4, PMax: 100, Vg: 1,
		Cost: network.Cost{Coeffs: []float64{1, 0}}})
	c.Branches = append(c.Branches, network.Branch{From: 1, To: 3, X: 0.1, OutOfService: true})

	res := solve(t, c, WithDC(true))
	assert.InDelta(t, 999, res.F, 1e-2)
	require.Len(t, res.Buses, 4)
	assert.False(t, res.Buses[3].InService)
	assert.False(t, res.Generators[2].InService)
	assert.False(t, res.Branches[3].InService)
	assert.Zero(t, res.Branches[3].Pf)

	c.Branches[3].Pf = 12
	require.NoError(t, res.Apply(c))
	assert.Zero(t, c.Branches[3].Pf)
	assert.True(t, c.Generators[2].OutOfService)
}

func TestReferenceBusCheck(t *testing.T) {
	c := loadCase3(t)
	c.Buses[1].Type = network.Reference
	o, err := New(c, WithDC(true))
	require.NoError(t, err)
	_, err = o.Solve()
	assert.True(t, errors.Is(err, ErrReferenceBus))

	c.Buses[0].Type, c.Buses[1].Type = network.PV, network.PV
	_, err = o.Solve()
	assert.True(t, errors.Is(err, ErrReferenceBus))
}

func TestUnsupportedCostOrder(t *testing.T) {
	c := loadCase3(t)
	c.Generators[0].Cost.Coeffs = []float64{1, 1, 1, 1}
	o, err := New(c)
	require.NoError(t, err)
	_, err = o.Solve()
	var order *cost.UnsupportedCostOrderError
	require.True(t, errors.As(err, &order))
	assert.Equal(t, 0, order.Gen)
	assert.Equal(t, 3, order.Order)
}

func TestOptions(t *testing.T) {
	_, err := New(nil)
	assert.Equal(t, ErrNoCase, err)

	c := loadCase3(t)
	_, err = New(c, WithFlowLimit(powerflow.FlowLimit(7)))
	assert.Error(t, err)
	_, err = New(c, WithLogger(nil))
	assert.Error(t, err)
	_, err = New(c, WithDCAlgorithm(Algorithm(5)))
	assert.Error(t, err)
	_, err = New(c, WithPIPSOptions(pips.Options{MaxIt: -1}))
	assert.Error(t, err)

	a, err := ParseAlgorithm("Simplex")
	require.NoError(t, err)
	assert.Equal(t, Simplex, a)
	_, err = ParseAlgorithm("barrier")
	assert.Error(t, err)
}

func TestCancelledSolve(t *testing.T) {
	o, err := New(loadCase3(t), WithDC(true))
	require.NoError(t, err)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	res, err := o.SolveWithContext(ctx)
	assert.True(t, errors.Is(err, context.Canceled))
	require.NotNil(t, res)
	assert.Equal(t, pips.NotConverged, res.Status)
}

func TestIterationLimit(t *testing.T) {
	o, err := New(loadCase3(t), WithDC(true), WithPIPSOptions(pips.Options{MaxIt: 2}))
	require.NoError(t, err)
	res, err := o.Solve()
	require.NoError(t, err)
	assert.Equal(t, pips.NotConverged, res.Status)
	assert.Equal(t, 2, res.Output.Iterations)
	assert.NoError(t, res.Apply(loadCase3(t)))
}

func TestLogging(t *testing.T) {
	core, logs := observer.New(zapcore.DebugLevel)
	solve(t, loadCase3(t), WithDC(true), WithLogger(zap.New(core)))
	assert.Equal(t, 1, logs.FilterMessage("opf model built").Len())
	assert.Equal(t, 1, logs.FilterMessage("opf solved").Len())
	assert.Zero(t, logs.FilterMessage("pips iteration").Len())
}

func TestAC(t *testing.T) {
	for _, limit := range []powerflow.FlowLimit{powerflow.ApparentPower, powerflow.RealPower, powerflow.Current} {
		t.Run(limit.String(), func(t *testing.T) {
			c := loadCase3(t)
			res := solve(t, c, WithFlowLimit(limit))
			assert.False(t, res.DC)

			// bus 3 has no shunt, so its load is met by the two branch ends
			inj := complex(res.Branches[1].Pt+res.Branches[2].Pt, res.Branches[1].Qt+res.Branches[2].Qt)
			assert.InDelta(t, -150, real(inj), 1e-3)
			assert.InDelta(t, -30, imag(inj), 1e-3)

			sf := complex(res.Branches[1].Pf, res.Branches[1].Qf)
			switch limit {
			case powerflow.ApparentPower:
				assert.LessOrEqual(t, cmplx.Abs(sf), 60+1e-3)
			case powerflow.RealPower:
				assert.LessOrEqual(t, math.Abs(real(sf)), 60+1e-3)
			}
			assert.Greater(t, res.Branches[1].MuSf, 0.0)
			assert.Greater(t, res.Buses[2].LamP, res.Buses[0].LamP)

			for _, b := range res.Buses {
				assert.GreaterOrEqual(t, b.Vm, 0.9-1e-6)
				assert.LessOrEqual(t, b.Vm, 1.1+1e-6)
			}
			for k, g := range res.Generators {
				assert.GreaterOrEqual(t, g.Pg, c.Generators[k].PMin-1e-4)
				assert.LessOrEqual(t, g.Pg, c.Generators[k].PMax+1e-4)
				assert.InDelta(t, res.Buses[c.Generators[k].Bus-1].Vm, g.Vg, 1e-12)
			}
			// resistive losses
			assert.Greater(t, res.Generators[0].Pg+res.Generators[1].Pg, 150.0)
		})
	}
}

func TestACInitialVoltages(t *testing.T) {
	c := loadCase3(t)
	c.Generators[1].Vg = 1.05
	c.Buses[2].Vm = 1.3
	f, err := newFormulation(c, false, false, powerflow.ApparentPower)
	require.NoError(t, err)

	x0 := f.initialPoint()
	assert.Equal(t, []float64{1, 1.05, 1.1}, f.m.Split("Vm", x0))
	for _, va := range f.m.Split("Va", x0) {
		assert.Zero(t, va)
	}
	// Pg starts at the middle of [0, 2] p.u.
	assert.Equal(t, []float64{1, 1}, f.m.Split("Pg", x0))
}

func TestACDispatchableLoad(t *testing.T) {
	c := loadCase3(t)
	c.Generators = append(c.Generators, network.Generator{
		Bus: 3, PMin: -50, PMax: 0, QMin: -10, QMax: 0, Vg: 1,
		Cost: network.Cost{Coeffs: []float64{20, 0}},
	})
	res := solve(t, c)
	vl := res.Generators[2]
	require.Less(t, vl.Pg, -1e-3)
	assert.InDelta(t, vl.Pg*10/50, vl.Qg, 1e-4)

	c.Generators[2].QMax = 5
	o, err := New(c)
	require.NoError(t, err)
	_, err = o.Solve()
	assert.True(t, errors.Is(err, ErrDispatchableLoad))
}

func TestConfig(t *testing.T) {
	cfg, err := LoadConfig("testdata/opf.yaml")
	require.NoError(t, err)
	assert.True(t, cfg.DC)
	assert.True(t, cfg.AngleLimits)
	assert.Equal(t, powerflow.RealPower, cfg.FlowLimit)
	assert.Equal(t, Simplex, cfg.DCAlgorithm)
	assert.Equal(t, 1e-8, cfg.PIPS.FeasTol)
	assert.Equal(t, 60, cfg.PIPS.MaxIt)
	assert.True(t, cfg.PIPS.StepControl)

	o, err := New(loadCase3(t), WithConfig(cfg))
	require.NoError(t, err)
	assert.True(t, o.dc)
	assert.Equal(t, Simplex, o.algorithm)

	path := filepath.Join(t.TempDir(), "opf.json")
	require.NoError(t, os.WriteFile(path, []byte(`{"flow_limit": "I", "pips": {"max_it": 30}}`), 0o644))
	cfg, err = LoadConfig(path)
	require.NoError(t, err)
	assert.False(t, cfg.DC)
	assert.Equal(t, powerflow.Current, cfg.FlowLimit)
	assert.Equal(t, InteriorPoint, cfg.DCAlgorithm)

	_, err = LoadConfig("testdata/case3.txt")
	assert.Error(t, err)
}

func TestFprint(t *testing.T) {
	res := solve(t, loadCase3(t), WithDC(true))
	var sb strings.Builder
	require.NoError(t, res.Fprint(&sb))
	assert.Contains(t, sb.String(), "DC OPF converged")
	assert.Contains(t, sb.String(), "cost 999.0")
}
