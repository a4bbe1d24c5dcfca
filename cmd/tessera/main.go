package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"

	"github.com/urfave/cli/v3"

	"github.com/samcharles93/tessera/internal/logger"
)

func main() {
	app := &cli.Command{
		Name:  "tessera",
		Usage: "Schedule synthesizer for accelerator kernels",
		Flags: append(loggingFlags(), configFlag()),
		Action: func(ctx context.Context, cmd *cli.Command) error {
			return cli.ShowAppHelp(cmd)
		},
		Commands: []*cli.Command{
			scheduleCmd(),
			batchCmd(),
			serveCmd(),
			profilesCmd(),
			versionCmd(),
		},
	}

	if err := app.Run(context.Background(), os.Args); err != nil {
		_, _ = fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

// withSetup loads the config file and installs the logger before fn runs.
// It wraps each command action so flags given after the command name count.
func withSetup(fn cli.ActionFunc) cli.ActionFunc {
	return func(ctx context.Context, cmd *cli.Command) error {
		cfg, err := LoadConfig(configFile)
		if err != nil {
			return err
		}
		settings = cfg
		applyLoggingConfig(cmd, cfg)
		log, err := openLogger()
		if err != nil {
			return err
		}
		return fn(logger.WithContext(ctx, log), cmd)
	}
}

func openLogger() (logger.Logger, error) {
	format, err := logger.ParseFormat(logFormat)
	if err != nil {
		return nil, err
	}
	level := logger.ParseLevel(logLevel)
	if debug {
		level = slog.LevelDebug
	}
	return logger.Open(os.Stderr, format, level, stderrIsTTY), nil
}
