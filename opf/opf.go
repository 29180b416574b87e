// Package opf solves the optimal power flow of a network case. The DC
// formulation is a quadratic program in bus angles and real dispatch; the AC
// formulation adds voltage magnitudes and reactive dispatch and keeps the
// power balance and branch flow limits nonlinear. Both are handed to the
// interior point solver of package pips.
package opf

import (
	"context"
	"fmt"
	"strings"

	"github.com/pkg/errors"
	"go.uber.org/zap"

	"power-system-opf/network"
	"power-system-opf/pips"
	"power-system-opf/powerflow"
)

// Algorithm selects the DC dispatch method.
type Algorithm int

const (
	// InteriorPoint solves the DC problem with pips.
	InteriorPoint Algorithm = iota
	// Simplex solves a linear-cost DC problem with gonum's simplex method.
	// It reports no multipliers.
	Simplex
)

func (a Algorithm) String() string {
	switch a {
	case InteriorPoint:
		return "pips"
	case Simplex:
		return "simplex"
	}
	return fmt.Sprintf("Algorithm(%d)", int(a))
}

func ParseAlgorithm(s string) (Algorithm, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "pips", "ipm":
		return InteriorPoint, nil
	case "simplex", "lp":
		return Simplex, nil
	}
	return 0, errors.Errorf("opf: unknown DC algorithm %q", s)
}

func (a Algorithm) MarshalText() ([]byte, error) { return []byte(a.String()), nil }

func (a *Algorithm) UnmarshalText(b []byte) (err error) {
	*a, err = ParseAlgorithm(string(b))
	return err
}

// OPF is an optimal power flow problem over one case. The case is read but
// never modified by Solve.
type OPF struct {
	c           *network.Case
	dc          bool
	limit       powerflow.FlowLimit
	angleLimits bool
	algorithm   Algorithm
	opt         pips.Options
	solver      pips.LinearSolver
	logger      *zap.Logger
}

type Option func(*OPF) error

// WithDC selects the DC formulation.
func WithDC(dc bool) Option {
	return func(o *OPF) error {
		o.dc = dc
		return nil
	}
}

// WithFlowLimit selects the quantity bounded by branch ratings in the AC
// formulation.
func WithFlowLimit(l powerflow.FlowLimit) Option {
	return func(o *OPF) error {
		switch l {
		case powerflow.ApparentPower, powerflow.RealPower, powerflow.Current:
			o.limit = l
			return nil
		}
		return errors.Errorf("unknown flow limit %d", int(l))
	}
}

// WithAngleLimits enforces the branch angle difference limits of the case.
// They are ignored by default.
func WithAngleLimits(on bool) Option {
	return func(o *OPF) error {
		o.angleLimits = on
		return nil
	}
}

func WithPIPSOptions(opt pips.Options) Option {
	return func(o *OPF) error {
		if opt.MaxIt < 0 || opt.MaxRed < 0 || opt.CostMult < 0 {
			return errors.New("negative pips option")
		}
		o.opt = opt
		return nil
	}
}

// WithLinearSolver replaces the dense LU factorisation of the Newton
// system.
func WithLinearSolver(s pips.LinearSolver) Option {
	return func(o *OPF) error {
		o.solver = s
		return nil
	}
}

func WithDCAlgorithm(a Algorithm) Option {
	return func(o *OPF) error {
		if a != InteriorPoint && a != Simplex {
			return errors.Errorf("unknown DC algorithm %d", int(a))
		}
		o.algorithm = a
		return nil
	}
}

func WithLogger(l *zap.Logger) Option {
	return func(o *OPF) error {
		if l == nil {
			return errors.New("nil logger")
		}
		o.logger = l
		return nil
	}
}

// WithConfig applies every setting of cfg.
func WithConfig(cfg *Config) Option {
	return func(o *OPF) error {
		for _, opt := range cfg.Options() {
			if err := opt(o); err != nil {
				return err
			}
		}
		return nil
	}
}

// New returns an AC OPF over c unless WithDC is given.
func New(c *network.Case, opts ...Option) (*OPF, error) {
	if c == nil {
		return nil, ErrNoCase
	}
	o := &OPF{
		c:      c,
		limit:  powerflow.ApparentPower,
		opt:    pips.DefaultOptions(),
		logger: zap.NewNop(),
	}
	for _, opt := range opts {
		if err := opt(o); err != nil {
			return nil, errors.Wrap(err, "applying opf option")
		}
	}
	return o, nil
}

// options returns the settings of o as options, for solving copies of the
// case the same way.
func (o *OPF) options() []Option {
	opts := []Option{
		WithDC(o.dc),
		WithFlowLimit(o.limit),
		WithAngleLimits(o.angleLimits),
		WithPIPSOptions(o.opt),
		WithDCAlgorithm(o.algorithm),
		WithLogger(o.logger),
	}
	if o.solver != nil {
		opts = append(opts, WithLinearSolver(o.solver))
	}
	return opts
}

func (o *OPF) Solve() (*Result, error) {
	return o.SolveWithContext(context.Background())
}

// SolveWithContext builds and solves the OPF. An iteration limit or a
// numerical failure is reported through Result.Status. When ctx is done the
// partial result is returned together with the context error.
func (o *OPF) SolveWithContext(ctx context.Context) (*Result, error) {
	in, mapping, err := o.c.Internal()
	if err != nil {
		return nil, errors.Wrap(err, "opf: invalid case")
	}
	if refs := in.RefBuses(); len(refs) != 1 {
		return nil, errors.Wrapf(ErrReferenceBus, "found %d", len(refs))
	}

	f, err := newFormulation(in, o.dc, o.angleLimits, o.limit)
	if err != nil {
		return nil, errors.Wrap(err, "opf: building model")
	}
	o.logger.Debug("opf model built",
		zap.Bool("dc", o.dc),
		zap.Int("buses", len(in.Buses)),
		zap.Int("branches", len(in.Branches)),
		zap.Int("generators", len(in.Generators)),
		zap.Int("variables", f.m.NumVars()),
		zap.Int("linear_rows", f.m.NumLin()),
		zap.Int("nonlinear_rows", f.m.NumNln()),
	)

	var res *pips.Result
	if o.dc {
		res, err = o.solveDC(ctx, f)
	} else {
		res, err = o.solveAC(ctx, f)
	}
	if res == nil {
		return nil, err
	}
	out := f.result(res, o.c, mapping)
	o.logger.Info("opf solved",
		zap.Bool("dc", o.dc),
		zap.Stringer("status", res.Status),
		zap.Int("iterations", res.Output.Iterations),
		zap.Float64("cost", res.F),
	)
	return out, err
}
