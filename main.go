package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"

	"go.uber.org/zap"

	"power-system-opf/network"
	"power-system-opf/opf"
	"power-system-opf/pips"
	"power-system-opf/powerflow"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	code := run(ctx, os.Args[1:], os.Stdout, os.Stderr)
	stop()
	os.Exit(code)
}

func printUsage(w io.Writer) {
	fmt.Fprintln(w, "usage: power-system-opf -case <case.json|case.yaml> [flags]")
	fmt.Fprintln(w, "  -config <opf.yaml>  solver settings, overridden by flags given explicitly")
	fmt.Fprintln(w, "  -dc                 DC formulation")
	fmt.Fprintln(w, "  -flow S|P|I         quantity limited by branch ratings")
	fmt.Fprintln(w, "  -angles             enforce branch angle difference limits")
	fmt.Fprintln(w, "  -udopf              solve with unit de-commitment")
	fmt.Fprintln(w, "  -pf                 run a power flow (Newton, or DC with -dc) instead of the OPF")
	fmt.Fprintln(w, "  -ybus               print the bus admittance matrix")
	fmt.Fprintln(w, "  -out <solved.json>  write the case with the solution")
	fmt.Fprintln(w, "  -verbose            log solver progress")
}

func run(ctx context.Context, args []string, stdout, stderr io.Writer) int {
	fs := flag.NewFlagSet("power-system-opf", flag.ContinueOnError)
	fs.SetOutput(stderr)
	fs.Usage = func() { printUsage(stderr) }
	casePath := fs.String("case", "", "case file")
	configPath := fs.String("config", "", "opf config file")
	dc := fs.Bool("dc", false, "DC formulation")
	flow := fs.String("flow", "S", "flow limit S, P or I")
	angles := fs.Bool("angles", false, "enforce angle difference limits")
	udopf := fs.Bool("udopf", false, "unit de-commitment")
	pf := fs.Bool("pf", false, "power flow only")
	ybus := fs.Bool("ybus", false, "print the bus admittance matrix")
	out := fs.String("out", "", "solved case file")
	verbose := fs.Bool("verbose", false, "log solver progress")
	if err := fs.Parse(args); err != nil {
		return 2
	}
	if *casePath == "" {
		fmt.Fprintln(stderr, "missing -case")
		printUsage(stderr)
		return 2
	}

	logger := zap.NewNop()
	if *verbose {
		l, err := zap.NewDevelopment()
		if err != nil {
			fmt.Fprintf(stderr, "logger: %v\n", err)
			return 1
		}
		logger = l
		defer func() { _ = logger.Sync() }()
	}

	c, err := network.Load(*casePath)
	if err != nil {
		fmt.Fprintf(stderr, "load case: %v\n", err)
		return 1
	}

	opts := []opf.Option{opf.WithLogger(logger)}
	useDC := *dc
	if *configPath != "" {
		cfg, err := opf.LoadConfig(*configPath)
		if err != nil {
			fmt.Fprintf(stderr, "%v\n", err)
			return 1
		}
		if !flagSet(fs, "dc") {
			useDC = cfg.DC
		}
		if *verbose {
			cfg.PIPS.Verbose = true
		}
		opts = append(opts, opf.WithConfig(cfg))
	} else if *verbose {
		opts = append(opts, opf.WithPIPSOptions(verboseOptions()))
	}

	// flags given on the command line win over the config file
	var flagErr error
	fs.Visit(func(f *flag.Flag) {
		switch f.Name {
		case "dc":
			opts = append(opts, opf.WithDC(*dc))
		case "angles":
			opts = append(opts, opf.WithAngleLimits(*angles))
		case "flow":
			l, err := powerflow.ParseFlowLimit(*flow)
			if err != nil {
				flagErr = err
				return
			}
			opts = append(opts, opf.WithFlowLimit(l))
		}
	})
	if flagErr != nil {
		fmt.Fprintf(stderr, "%v\n", flagErr)
		return 2
	}

	if *ybus {
		if err := printYbus(stdout, c); err != nil {
			fmt.Fprintf(stderr, "admittance matrix: %v\n", err)
			return 1
		}
	}

	if *pf {
		return runPowerFlow(ctx, c, useDC, *out, logger, stdout, stderr)
	}

	o, err := opf.New(c, opts...)
	if err != nil {
		fmt.Fprintf(stderr, "%v\n", err)
		return 1
	}
	var res *opf.Result
	if *udopf {
		res, err = o.UDOPF(ctx)
	} else {
		res, err = o.SolveWithContext(ctx)
	}
	if err != nil {
		fmt.Fprintf(stderr, "solve: %v\n", err)
		return 1
	}
	if err := res.Fprint(stdout); err != nil {
		fmt.Fprintf(stderr, "print result: %v\n", err)
		return 1
	}

	if *out != "" {
		if err := res.Apply(c); err != nil {
			fmt.Fprintf(stderr, "apply result: %v\n", err)
			return 1
		}
		if err := network.Save(*out, c); err != nil {
			fmt.Fprintf(stderr, "%v\n", err)
			return 1
		}
	}
	if !res.Converged() {
		return 3
	}
	return 0
}

func flagSet(fs *flag.FlagSet, name string) bool {
	found := false
	fs.Visit(func(f *flag.Flag) {
		if f.Name == name {
			found = true
		}
	})
	return found
}

func runPowerFlow(ctx context.Context, c *network.Case, dc bool, out string, logger *zap.Logger, stdout, stderr io.Writer) int {
	solver := &powerflow.Solver{Logger: logger}
	var sol *powerflow.Solution
	var err error
	if dc {
		sol, err = solver.DC(c)
	} else {
		sol, err = solver.Newton(ctx, c)
	}
	if err != nil {
		fmt.Fprintf(stderr, "power flow: %v\n", err)
		return 1
	}
	if err := sol.Fprint(stdout); err != nil {
		fmt.Fprintf(stderr, "print solution: %v\n", err)
		return 1
	}
	if !sol.Converged {
		return 3
	}
	if out != "" {
		if err := sol.Apply(c); err != nil {
			fmt.Fprintf(stderr, "apply solution: %v\n", err)
			return 1
		}
		if err := network.Save(out, c); err != nil {
			fmt.Fprintf(stderr, "%v\n", err)
			return 1
		}
	}
	return 0
}

func verboseOptions() pips.Options {
	opt := pips.DefaultOptions()
	opt.Verbose = true
	return opt
}

// printYbus prints the admittance matrix of the in-service part of c,
// numbered consecutively.
func printYbus(w io.Writer, c *network.Case) error {
	in, _, err := c.Internal()
	if err != nil {
		return err
	}
	y, _, _ := network.MakeYbus(in)
	fmt.Fprintf(w, "Ybus (%d buses)\n", len(in.Buses))
	if err := network.FprintComplexMatrix(w, y); err != nil {
		return err
	}
	_, err = fmt.Fprintln(w)
	return err
}
