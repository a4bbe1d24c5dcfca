package main

import (
	"context"
	"fmt"
	"io"
	"os"

	"github.com/goccy/go-json"
	"github.com/urfave/cli/v3"

	"github.com/samcharles93/tessera/internal/batch"
	"github.com/samcharles93/tessera/internal/driver"
	"github.com/samcharles93/tessera/internal/logger"
)

func batchCmd() *cli.Command {
	var (
		limit int
		out   string
	)

	return &cli.Command{
		Name:      "batch",
		Usage:     "Schedule a JSON array of requests concurrently",
		ArgsUsage: "<requests.json|->",
		Flags: append(profileFlags(),
			&cli.IntFlag{
				Name:        "limit",
				Aliases:     []string{"j"},
				Usage:       "requests scheduled at once (0 = GOMAXPROCS)",
				Destination: &limit,
			},
			&cli.StringFlag{
				Name:        "out",
				Aliases:     []string{"o"},
				Usage:       "write the results to a file instead of stdout",
				Destination: &out,
			},
		),
		Action: withSetup(func(ctx context.Context, cmd *cli.Command) error {
			log := logger.FromContext(ctx)
			applyProfileConfig(cmd, settings, nil)
			if settings.BatchLimit != nil && !cmd.IsSet("limit") {
				limit = *settings.BatchLimit
			}
			if cmd.Args().Len() != 1 {
				return fmt.Errorf("batch takes exactly one requests file")
			}

			specs, err := readRequests(cmd.Args().First(), os.Stdin)
			if err != nil {
				return err
			}
			defaultProfile(specs, profileName)
			reg, err := loadRegistry()
			if err != nil {
				return err
			}

			runner := &batch.Runner{Limit: limit, Registry: reg}
			results, err := runner.Run(ctx, specs)
			if err != nil {
				return err
			}
			ok, failed := batch.Summary(results)
			log.Info("batch finished", "requests", len(results), "succeeded", ok, "failed", failed)

			if err := withOutput(out, func(w io.Writer) error {
				enc := json.NewEncoder(w)
				enc.SetIndent("", "  ")
				return enc.Encode(results)
			}); err != nil {
				return err
			}
			if failed > 0 {
				return fmt.Errorf("%d of %d requests failed", failed, len(results))
			}
			return nil
		}),
	}
}

func readRequests(path string, stdin io.Reader) ([]driver.RequestSpec, error) {
	if path == "-" {
		return driver.DecodeRequests(stdin)
	}
	fh, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer func() { _ = fh.Close() }()
	return driver.DecodeRequests(fh)
}

// defaultProfile fills in profile for specs that name no capability.
func defaultProfile(specs []driver.RequestSpec, profile string) {
	for i := range specs {
		if specs[i].Profile == "" && specs[i].Capability == nil {
			specs[i].Profile = profile
		}
	}
}
