package opf

import (
	"context"
	"math"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"power-system-opf/cost"
	"power-system-opf/network"
)

// UDOPF solves the OPF with unit de-commitment. Units are first shut down,
// most expensive first, while their combined minimum output exceeds the
// load. Then, one stage at a time, every unit held at a binding minimum
// output is tried offline and the cheapest improvement is kept, until no
// shutdown lowers the total cost.
//
// The candidate OPFs of a stage are solved concurrently, each on its own
// copy of the case. Equal costs are resolved in favour of the lowest
// generator index. Decommitted units are marked not in service in the
// result.
func (o *OPF) UDOPF(ctx context.Context) (*Result, error) {
	work := o.c.Clone()
	stage := o.decommitForLoad(work)

	best, err := o.solveCopy(ctx, work)
	if err != nil {
		return best, err
	}
	if !best.Converged() {
		o.logger.Warn("udopf base case did not converge", zap.String("message", best.Output.Message))
		return best, nil
	}
	o.logger.Debug("udopf base case", zap.Float64("cost", best.F))

	for {
		cands := shutdownCandidates(work, best)
		if len(cands) == 0 {
			break
		}
		stage++
		o.logger.Debug("udopf stage", zap.Int("stage", stage), zap.Ints("candidates", cands))

		results := make([]*Result, len(cands))
		g, gctx := errgroup.WithContext(ctx)
		for j, k := range cands {
			j, k := j, k
			g.Go(func() error {
				c := work.Clone()
				c.Generators[k].OutOfService = true
				r, err := o.solveCopy(gctx, c)
				if err != nil {
					if gctx.Err() != nil {
						return err
					}
					o.logger.Debug("udopf candidate failed", zap.Int("generator", k), zap.Error(err))
					return nil
				}
				results[j] = r
				return nil
			})
		}
		if err := g.Wait(); err != nil {
			return best, err
		}

		pick := -1
		for j, r := range results {
			if r == nil || !r.Converged() {
				continue
			}
			if r.F < best.F && (pick < 0 || r.F < results[pick].F) {
				pick = j
			}
		}
		if pick < 0 {
			break
		}
		work.Generators[cands[pick]].OutOfService = true
		best = results[pick]
		o.logger.Info("udopf shutting down generator",
			zap.Int("generator", cands[pick]),
			zap.Float64("cost", best.F),
		)
	}
	o.logger.Info("udopf solved", zap.Int("stages", stage), zap.Float64("cost", best.F))
	return best, nil
}

func (o *OPF) solveCopy(ctx context.Context, c *network.Case) (*Result, error) {
	op, err := New(c, o.options()...)
	if err != nil {
		return nil, err
	}
	return op.SolveWithContext(ctx)
}

// decommitForLoad shuts down units until the total minimum output of the
// online generators no longer exceeds the load. It returns the number of
// units shut down.
func (o *OPF) decommitForLoad(c *network.Case) int {
	load := 0.0
	for _, bus := range c.Buses {
		if bus.Type != network.Isolated {
			load += bus.Pd
		}
	}
	for _, g := range c.Generators {
		if !g.OutOfService && g.IsLoad() {
			load -= g.PMin
		}
	}

	n := 0
	for {
		pmin := 0.0
		pick, worst := -1, math.Inf(-1)
		for k := range c.Generators {
			g := &c.Generators[k]
			if g.OutOfService || g.IsLoad() {
				continue
			}
			pmin += g.PMin
			if g.PMin <= 0 {
				continue
			}
			if avg := cost.Total(g.Cost, g.PMin) / g.PMin; avg > worst {
				pick, worst = k, avg
			}
		}
		if pmin <= load || pick < 0 {
			return n
		}
		c.Generators[pick].OutOfService = true
		n++
		o.logger.Info("udopf shutting down generator to satisfy minimum output limits",
			zap.Int("generator", pick),
			zap.Float64("avg_cost", worst),
		)
	}
}

// shutdownCandidates returns the online units with a positive minimum
// output whose lower limit is binding in res.
func shutdownCandidates(c *network.Case, res *Result) []int {
	var cands []int
	for k, g := range c.Generators {
		rg := res.Generators[k]
		if !rg.InService || g.IsLoad() || g.PMin <= 0 {
			continue
		}
		if math.Round(rg.MuPMin*1e4)/1e4 > 0 {
			cands = append(cands, k)
		}
	}
	return cands
}
