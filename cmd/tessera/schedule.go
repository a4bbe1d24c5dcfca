package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"strings"
	"text/tabwriter"

	"github.com/goccy/go-json"
	"github.com/urfave/cli/v3"

	"github.com/samcharles93/tessera/internal/driver"
	"github.com/samcharles93/tessera/internal/graph"
	"github.com/samcharles93/tessera/internal/logger"
	"github.com/samcharles93/tessera/internal/schedule"
)

type scheduleFlags struct {
	pattern    string
	graphPath  string
	shape      string
	dtype      string
	attrs      string
	singleCore bool
	out        string
	format     string
}

func scheduleCmd() *cli.Command {
	var f scheduleFlags

	return &cli.Command{
		Name:      "schedule",
		Usage:     "Synthesize the schedule of one kernel",
		ArgsUsage: "[pattern]",
		Flags: append(profileFlags(),
			&cli.StringFlag{
				Name:        "kernel",
				Aliases:     []string{"k"},
				Usage:       "kernel pattern (" + strings.Join(driver.Patterns(), ", ") + ")",
				Destination: &f.pattern,
			},
			&cli.StringFlag{
				Name:        "graph",
				Aliases:     []string{"g"},
				Usage:       "JSON graph spec file (- for stdin)",
				Destination: &f.graphPath,
			},
			&cli.StringFlag{
				Name:        "shape",
				Usage:       "input shape of the reference kernel, e.g. 1,1,512,512,16",
				Destination: &f.shape,
			},
			&cli.StringFlag{
				Name:        "dtype",
				Usage:       "input dtype of the reference kernel",
				Destination: &f.dtype,
			},
			&cli.StringFlag{
				Name:        "attrs",
				Usage:       "pattern attributes as a JSON object",
				Destination: &f.attrs,
			},
			&cli.BoolFlag{
				Name:        "single-core",
				Usage:       "skip core binding",
				Destination: &f.singleCore,
			},
			&cli.StringFlag{
				Name:        "out",
				Aliases:     []string{"o"},
				Usage:       "write the schedule to a file instead of stdout",
				Destination: &f.out,
			},
			&cli.StringFlag{
				Name:        "format",
				Usage:       "output format (json, summary)",
				Value:       "json",
				Destination: &f.format,
			},
		),
		Action: withSetup(func(ctx context.Context, cmd *cli.Command) error {
			log := logger.FromContext(ctx)
			applyProfileConfig(cmd, settings, &f.singleCore)
			if f.pattern == "" {
				f.pattern = cmd.Args().First()
			}

			spec, err := f.requestSpec(os.Stdin)
			if err != nil {
				return err
			}
			reg, err := loadRegistry()
			if err != nil {
				return err
			}
			req, err := spec.Resolve(reg)
			if err != nil {
				return err
			}
			log.Debug("scheduling", "pattern", spec.Pattern, "profile", req.Capability.Name)
			sched, err := driver.Schedule(ctx, req)
			if err != nil {
				return err
			}
			log.Info("schedule ready", "pattern", sched.Pattern, "block_dim", sched.BlockDim(), "stages", len(sched.Stages))

			return withOutput(f.out, func(w io.Writer) error {
				if f.format == "summary" {
					return writeSummary(w, sched)
				}
				return schedule.Encode(w, sched)
			})
		}),
	}
}

// requestSpec assembles the request from flags. stdin backs a "-" graph path.
func (f scheduleFlags) requestSpec(stdin io.Reader) (driver.RequestSpec, error) {
	if f.pattern == "" {
		return driver.RequestSpec{}, fmt.Errorf("a kernel pattern is required (%s)", strings.Join(driver.Patterns(), ", "))
	}
	if f.format != "json" && f.format != "summary" {
		return driver.RequestSpec{}, fmt.Errorf("unknown output format %q", f.format)
	}
	spec := driver.RequestSpec{
		Pattern: f.pattern,
		Profile: profileName,
		Options: driver.Options{SingleCore: f.singleCore},
	}
	if f.attrs != "" {
		if !json.Valid([]byte(f.attrs)) {
			return driver.RequestSpec{}, fmt.Errorf("--attrs is not valid JSON: %s", f.attrs)
		}
		spec.Attrs = json.RawMessage(f.attrs)
	}

	switch {
	case f.graphPath != "" && f.shape != "":
		return driver.RequestSpec{}, fmt.Errorf("--graph and --shape are mutually exclusive")
	case f.graphPath != "":
		g, err := readGraph(f.graphPath, stdin)
		if err != nil {
			return driver.RequestSpec{}, err
		}
		spec.Graph = &g
	case f.shape != "":
		shape, err := parseShape(f.shape)
		if err != nil {
			return driver.RequestSpec{}, err
		}
		spec.Shape = shape
		if f.dtype != "" {
			dt, err := graph.ParseDType(f.dtype)
			if err != nil {
				return driver.RequestSpec{}, err
			}
			spec.DType = dt
		}
	default:
		return driver.RequestSpec{}, fmt.Errorf("one of --graph or --shape is required")
	}
	return spec, nil
}

func readGraph(path string, stdin io.Reader) (graph.Spec, error) {
	if path == "-" {
		return graph.DecodeSpec(stdin)
	}
	fh, err := os.Open(path)
	if err != nil {
		return graph.Spec{}, err
	}
	defer func() { _ = fh.Close() }()
	return graph.DecodeSpec(fh)
}

// withOutput runs write against path, or stdout when path is empty.
func withOutput(path string, write func(io.Writer) error) error {
	if path == "" {
		return write(os.Stdout)
	}
	fh, err := os.Create(path)
	if err != nil {
		return err
	}
	if err := write(fh); err != nil {
		_ = fh.Close()
		return err
	}
	return fh.Close()
}

func writeSummary(w io.Writer, s *schedule.Schedule) error {
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintf(tw, "pattern\t%s\n", s.Pattern)
	fmt.Fprintf(tw, "capability\t%s\n", s.Capability)
	fmt.Fprintf(tw, "block_dim\t%d\n", s.BlockDim())
	if b := s.Binding; b != nil {
		fmt.Fprintf(tw, "binding\t%s axes=%v parts=%d per_core=%d\n", b.Rule, b.Axes, b.Parts, b.PerCore)
	}
	fmt.Fprintf(tw, "tiling\t%s\n", s.Tiling)
	if r := s.Reduction; r != nil {
		fmt.Fprintf(tw, "reduction\t%s split_axis=%d parts=%d\n", r.Mode, r.SplitAxis, r.Parts)
	}

	fmt.Fprintln(tw, "\nLOOP\tEXTENT\tROLE")
	for _, l := range s.Nest.Loops {
		fmt.Fprintf(tw, "%s\t%d\t%s\n", l.Name, l.Extent, l.Role)
	}

	fmt.Fprintln(tw, "\nSTAGE\tSCOPE\tATTACH\tINSTRUCTION")
	for _, st := range s.Stages {
		attach := "-"
		if e, ok := s.Edge(st.Name); ok {
			attach = e.Consumer + "@" + e.Level
		}
		if st.Inline {
			attach = "inline"
		}
		instr := "-"
		if ib, ok := s.Instruction(st.Tensor); ok && st.Kind != schedule.StageRead && st.Kind != schedule.StageWrite {
			instr = ib.Instruction
		}
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\n", st.Name, st.Scope, attach, instr)
	}

	for _, db := range s.DoubleBuffer {
		if db.Enabled {
			fmt.Fprintf(tw, "\ndouble_buffer\t%s trips=%d\n", db.Stage, db.TripCount)
		}
	}
	return tw.Flush()
}
