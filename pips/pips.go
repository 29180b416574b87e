package pips

import (
	"context"
	"math"

	"github.com/pkg/errors"
	"go.uber.org/zap"
	"gonum.org/v1/gonum/floats"

	"power-system-opf/sparse"
)

var eps = math.Nextafter(1, 2) - 1

// linear holds the variable bounds and linear constraints split into
// equalities (Ae·x = be) and one-sided inequalities (Ai·x ≤ bi).
type linear struct {
	ae, ai             *sparse.Matrix
	be, bi             []float64
	ieq, igt, ilt, ibx []int
	nA                 int
}

func splitLinear(nx int, a *sparse.Matrix, l, u, xmin, xmax []float64) *linear {
	aa := sparse.Identity(nx)
	nA := 0
	if a != nil {
		nA, _ = a.Dims()
		aa = sparse.VStack(aa, a)
	}
	ll := make([]float64, nx+nA)
	uu := make([]float64, nx+nA)
	for i := range ll {
		ll[i], uu[i] = math.Inf(-1), math.Inf(1)
	}
	if xmin != nil {
		copy(ll, xmin)
	}
	if xmax != nil {
		copy(uu, xmax)
	}
	if l != nil {
		copy(ll[nx:], l)
	}
	if u != nil {
		copy(uu[nx:], u)
	}

	lin := &linear{nA: nA}
	for i, lo := range ll {
		hi := uu[i]
		switch {
		case math.Abs(hi-lo) <= eps:
			lin.ieq = append(lin.ieq, i)
		case hi >= big && lo > -big:
			lin.igt = append(lin.igt, i)
		case lo <= -big && hi < big:
			lin.ilt = append(lin.ilt, i)
		case hi < big && lo > -big:
			lin.ibx = append(lin.ibx, i)
		}
	}

	lin.ae = aa.SelectRows(lin.ieq)
	lin.ai = sparse.VStack(
		aa.SelectRows(lin.ilt),
		aa.SelectRows(lin.igt).ScaleBy(-1),
		aa.SelectRows(lin.ibx),
		aa.SelectRows(lin.ibx).ScaleBy(-1),
	)
	for _, i := range lin.ieq {
		lin.be = append(lin.be, uu[i])
	}
	for _, i := range lin.ilt {
		lin.bi = append(lin.bi, uu[i])
	}
	for _, i := range lin.igt {
		lin.bi = append(lin.bi, -ll[i])
	}
	for _, i := range lin.ibx {
		lin.bi = append(lin.bi, uu[i])
	}
	for _, i := range lin.ibx {
		lin.bi = append(lin.bi, -ll[i])
	}
	return lin
}

// point is the problem evaluated at one x, with the objective already
// multiplied by the cost multiplier.
type point struct {
	f      float64
	df     []float64
	d2f    *sparse.Matrix
	h, g   []float64
	dh, dg *sparse.Matrix
}

type solver struct {
	p      *Problem
	opt    Options
	lin    *linear
	nx     int
	neqnln int
	niqnln int
	linsys LinearSolver
	log    *zap.Logger
}

// Solve runs the interior point method from p.X0. A NumericallyFailed or
// NotConverged solve is reported through Result.Status, not as an error.
// Errors are returned for invalid problems, for failing callbacks and when
// ctx is done, in which case the result holds the last iterate.
func Solve(ctx context.Context, p *Problem) (*Result, error) {
	if err := p.validate(); err != nil {
		return nil, err
	}
	s := &solver{
		p:      p,
		opt:    p.Options.withDefaults(),
		nx:     len(p.X0),
		linsys: p.Solver,
		log:    p.Logger,
	}
	if s.linsys == nil {
		s.linsys = DenseLU{}
	}
	if s.log == nil {
		s.log = zap.NewNop()
	}
	s.lin = splitLinear(s.nx, p.A, p.L, p.U, p.XMin, p.XMax)
	return s.run(ctx)
}

func (s *solver) evaluate(x []float64) (*point, error) {
	cm := s.opt.CostMult
	f, df, d2f := s.p.Objective(x)
	pt := &point{f: f * cm, df: make([]float64, s.nx), d2f: d2f}
	floats.ScaleTo(pt.df, cm, df)

	hl := s.lin.ai.MulVec(x)
	floats.Sub(hl, s.lin.bi)
	gl := s.lin.ae.MulVec(x)
	floats.Sub(gl, s.lin.be)

	if s.p.Constraints == nil {
		pt.h, pt.g, pt.dh, pt.dg = hl, gl, s.lin.ai, s.lin.ae
		return pt, nil
	}
	hn, gn, dhn, dgn, err := s.p.Constraints(x)
	if err != nil {
		return nil, err
	}
	if dhn == nil {
		dhn = sparse.Zeros(len(hn), s.nx)
	}
	if dgn == nil {
		dgn = sparse.Zeros(len(gn), s.nx)
	}
	s.niqnln, s.neqnln = len(hn), len(gn)
	pt.h = append(append(make([]float64, 0, len(hn)+len(hl)), hn...), hl...)
	pt.g = append(append(make([]float64, 0, len(gn)+len(gl)), gn...), gl...)
	pt.dh = sparse.VStack(dhn, s.lin.ai)
	pt.dg = sparse.VStack(dgn, s.lin.ae)
	return pt, nil
}

// gradLagrangian returns ∇f + dgᵀ·lam + dhᵀ·mu.
func gradLagrangian(pt *point, lam, mu []float64) []float64 {
	lx := append([]float64(nil), pt.df...)
	floats.Add(lx, pt.dg.MulVecT(lam))
	floats.Add(lx, pt.dh.MulVecT(mu))
	return lx
}

func norm(v []float64) float64 { return floats.Norm(v, math.Inf(1)) }

func feasibility(pt *point, x, z []float64) float64 {
	maxh := math.Inf(-1)
	if len(pt.h) > 0 {
		maxh = floats.Max(pt.h)
	}
	return math.Max(norm(pt.g), maxh) / (1 + math.Max(norm(x), norm(z)))
}

func stationarity(lx, lam, mu []float64) float64 {
	return norm(lx) / (1 + math.Max(norm(lam), norm(mu)))
}

// merit is the barrier augmented Lagrangian used by step control.
func merit(pt *point, z, lam, mu []float64, gamma float64) float64 {
	l := pt.f + floats.Dot(lam, pt.g)
	for k := range z {
		l += mu[k]*(pt.h[k]+z[k]) - gamma*math.Log(z[k])
	}
	return l
}

// stepLength returns the largest step in (0, 1] keeping v + α·dv positive
// up to the fraction xi.
func stepLength(v, dv []float64) float64 {
	alpha := 1.0
	for k := range v {
		if dv[k] < 0 {
			alpha = math.Min(alpha, xi*v[k]/-dv[k])
		}
	}
	return alpha
}

func (s *solver) hessian(pt *point, x, lam, mu []float64) (*sparse.Matrix, error) {
	if s.p.Constraints != nil {
		return s.p.Hessian(x, lam[:s.neqnln], mu[:s.niqnln], s.opt.CostMult)
	}
	if pt.d2f == nil {
		return sparse.Zeros(s.nx, s.nx), nil
	}
	return pt.d2f.ScaleBy(s.opt.CostMult), nil
}

// newton solves the reduced KKT system for the primal and equality
// multiplier steps.
func (s *solver) newton(pt *point, lxx *sparse.Matrix, lx, z, mu []float64, gamma float64) (dx, dlam []float64, err error) {
	nx, neq, niq := s.nx, len(pt.g), len(pt.h)
	w := make([]float64, niq)
	r := make([]float64, niq)
	for k := 0; k < niq; k++ {
		w[k] = mu[k] / z[k]
		r[k] = (mu[k]*pt.h[k] + gamma) / z[k]
	}
	m := lxx.Add(pt.dh.Transpose().Scale(nil, w).Mul(pt.dh))
	n := pt.dh.MulVecT(r)
	floats.Add(n, lx)

	t := sparse.NewTriplet(nx+neq, nx+neq)
	t.AppendMatrix(m, 0, 0)
	t.AppendMatrix(pt.dg.Transpose(), 0, nx)
	t.AppendMatrix(pt.dg, nx, 0)
	b := make([]float64, nx+neq)
	floats.ScaleTo(b[:nx], -1, n)
	floats.ScaleTo(b[nx:], -1, pt.g)

	sol, err := s.linsys.Solve(t.Matrix(), b)
	if err != nil {
		return nil, nil, err
	}
	return sol[:nx], sol[nx:], nil
}

func (s *solver) run(ctx context.Context) (*Result, error) {
	opt := s.opt
	x := append([]float64(nil), s.p.X0...)
	pt, err := s.evaluate(x)
	if err != nil {
		return nil, err
	}
	neq, niq := len(pt.g), len(pt.h)

	gamma := 1.0
	lam := make([]float64, neq)
	z := make([]float64, niq)
	mu := make([]float64, niq)
	for k := range z {
		z[k] = z0
		if pt.h[k] < -z0 {
			z[k] = -pt.h[k]
		}
		mu[k] = z0
		if gamma/z[k] > z0 {
			mu[k] = gamma / z[k]
		}
	}

	f0 := pt.f
	var l0 float64
	if opt.StepControl {
		l0 = merit(pt, z, lam, mu, gamma)
	}
	lx := gradLagrangian(pt, lam, mu)
	feascond := feasibility(pt, x, z)
	gradcond := stationarity(lx, lam, mu)
	compcond := floats.Dot(z, mu) / (1 + norm(x))
	costcond := 0.0

	hist := []Iteration{{
		FeasCond: feascond,
		GradCond: gradcond,
		CompCond: compcond,
		CostCond: costcond,
		Gamma:    gamma,
		Obj:      pt.f / opt.CostMult,
	}}
	s.logIteration(hist[0])

	status, reason := NotConverged, NoFailure
	converged := func() bool {
		return feascond < opt.FeasTol && gradcond < opt.GradTol &&
			compcond < opt.CompTol && costcond < opt.CostTol
	}
	if converged() {
		status = Converged
	}

	i := 0
	for status == NotConverged && i < opt.MaxIt {
		if err := ctx.Err(); err != nil {
			res := s.finish(x, pt, lam, mu, status, reason, i, hist)
			return res, errors.Wrap(err, "pips: solve interrupted")
		}
		i++

		lxx, err := s.hessian(pt, x, lam, mu)
		if err != nil {
			return nil, err
		}
		dx, dlam, err := s.newton(pt, lxx, lx, z, mu, gamma)
		if err != nil {
			if !errors.Is(err, ErrSingular) {
				return nil, err
			}
			status, reason = NumericallyFailed, SingularKKT
			break
		}
		dz := pt.dh.MulVec(dx)
		for k := range dz {
			dz[k] = -pt.h[k] - z[k] - dz[k]
		}
		dmu := make([]float64, niq)
		for k := range dmu {
			dmu[k] = -mu[k] + (gamma-mu[k]*dz[k])/z[k]
		}

		if opt.StepControl {
			alpha, err := s.stepControl(pt, lxx, lx, x, dx, z, lam, mu, gamma, l0, feascond, gradcond)
			if err != nil {
				return nil, err
			}
			if alpha != 1 {
				floats.Scale(alpha, dx)
				floats.Scale(alpha, dz)
				floats.Scale(alpha, dlam)
				floats.Scale(alpha, dmu)
			}
		}

		alphap := stepLength(z, dz)
		alphad := stepLength(mu, dmu)
		floats.AddScaled(x, alphap, dx)
		floats.AddScaled(z, alphap, dz)
		floats.AddScaled(lam, alphad, dlam)
		floats.AddScaled(mu, alphad, dmu)
		if niq > 0 {
			gamma = sigma * floats.Dot(z, mu) / float64(niq)
		}

		if pt, err = s.evaluate(x); err != nil {
			return nil, err
		}
		lx = gradLagrangian(pt, lam, mu)
		feascond = feasibility(pt, x, z)
		gradcond = stationarity(lx, lam, mu)
		compcond = floats.Dot(z, mu) / (1 + norm(x))
		costcond = math.Abs(pt.f-f0) / (1 + math.Abs(f0))

		it := Iteration{
			Iter:     i,
			FeasCond: feascond,
			GradCond: gradcond,
			CompCond: compcond,
			CostCond: costcond,
			Gamma:    gamma,
			StepSize: floats.Norm(dx, 2),
			Obj:      pt.f / opt.CostMult,
			AlphaP:   alphap,
			AlphaD:   alphad,
		}
		hist = append(hist, it)
		s.logIteration(it)

		switch {
		case converged():
			status = Converged
		case floats.HasNaN(x) || math.IsInf(norm(x), 0):
			status, reason = NumericallyFailed, NonFiniteIterate
		case alphap < alphaMin || alphad < alphaMin:
			status, reason = NumericallyFailed, StepTooSmall
		case gamma < eps || gamma > 1/eps:
			status, reason = NumericallyFailed, BarrierOutOfRange
		}
		f0 = pt.f
		if opt.StepControl {
			l0 = merit(pt, z, lam, mu, gamma)
		}
	}

	return s.finish(x, pt, lam, mu, status, reason, i, hist), nil
}

// stepControl returns the fraction of the Newton step to take. The full step
// is kept unless it worsens both feasibility and stationarity, in which case
// it is halved until the merit function changes as predicted.
func (s *solver) stepControl(pt *point, lxx *sparse.Matrix, lx, x, dx, z, lam, mu []float64, gamma, l0, feascond, gradcond float64) (float64, error) {
	x1 := append([]float64(nil), x...)
	floats.Add(x1, dx)
	pt1, err := s.evaluate(x1)
	if err != nil {
		return 0, err
	}
	lx1 := gradLagrangian(pt1, lam, mu)
	if !(feasibility(pt1, x1, z) > feascond && stationarity(lx1, lam, mu) > gradcond) {
		return 1, nil
	}

	alpha := 1.0
	dx1 := make([]float64, len(dx))
	for j := 0; j < s.opt.MaxRed; j++ {
		floats.ScaleTo(dx1, alpha, dx)
		copy(x1, x)
		floats.Add(x1, dx1)
		pt1, err = s.evaluate(x1)
		if err != nil {
			return 0, err
		}
		l1 := merit(pt1, z, lam, mu, gamma)
		predicted := floats.Dot(lx, dx1) + 0.5*floats.Dot(dx1, lxx.MulVec(dx1))
		rho := (l1 - l0) / predicted
		if rho > rhoMin && rho < rhoMax {
			break
		}
		alpha /= 2
	}
	return alpha, nil
}

func (s *solver) finish(x []float64, pt *point, lam, mu []float64, status Status, reason FailReason, iters int, hist []Iteration) *Result {
	cm := s.opt.CostMult
	lam = append([]float64(nil), lam...)
	mu = append([]float64(nil), mu...)
	// multipliers of clearly inactive constraints are reported as zero
	for k := range mu {
		if pt.h[k] < -s.opt.FeasTol && mu[k] < muThreshold {
			mu[k] = 0
		}
	}
	floats.Scale(1/cm, lam)
	floats.Scale(1/cm, mu)

	nx, lin := s.nx, s.lin
	mul := make([]float64, nx+lin.nA)
	muu := make([]float64, nx+lin.nA)
	lamLin, muLin := lam[s.neqnln:], mu[s.niqnln:]
	for k, i := range lin.ieq {
		switch {
		case lamLin[k] < 0:
			mul[i] = -lamLin[k]
		case lamLin[k] > 0:
			muu[i] = lamLin[k]
		}
	}
	nlt, ngt, nbx := len(lin.ilt), len(lin.igt), len(lin.ibx)
	for k, i := range lin.ilt {
		muu[i] = muLin[k]
	}
	for k, i := range lin.igt {
		mul[i] = muLin[nlt+k]
	}
	for k, i := range lin.ibx {
		muu[i] = muLin[nlt+ngt+k]
		mul[i] = muLin[nlt+ngt+nbx+k]
	}

	res := &Result{
		X:      append([]float64(nil), x...),
		F:      pt.f / cm,
		Status: status,
		Reason: reason,
		Lambda: Multipliers{
			EqNonlin:   lam[:s.neqnln],
			IneqNonlin: mu[:s.niqnln],
			MuL:        mul[nx:],
			MuU:        muu[nx:],
			Lower:      mul[:nx],
			Upper:      muu[:nx],
		},
		Output: Output{Iterations: iters, History: hist},
	}
	switch status {
	case Converged:
		res.Output.Message = "converged"
	case NumericallyFailed:
		res.Output.Message = "numerically failed: " + reason.String()
	default:
		res.Output.Message = "did not converge"
	}
	s.log.Debug("pips finished",
		zap.Stringer("status", status),
		zap.Int("iterations", iters),
		zap.Float64("f", res.F),
	)
	return res
}

func (s *solver) logIteration(it Iteration) {
	if !s.opt.Verbose {
		return
	}
	s.log.Info("pips iteration",
		zap.Int("it", it.Iter),
		zap.Float64("obj", it.Obj),
		zap.Float64("step", it.StepSize),
		zap.Float64("feascond", it.FeasCond),
		zap.Float64("gradcond", it.GradCond),
		zap.Float64("compcond", it.CompCond),
		zap.Float64("costcond", it.CostCond),
		zap.Float64("gamma", it.Gamma),
	)
}
