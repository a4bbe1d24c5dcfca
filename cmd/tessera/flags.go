package main

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/urfave/cli/v3"

	"github.com/samcharles93/tessera/internal/capability"
)

var (
	configFile   string
	logLevel     string
	logFormat    string
	debug        bool
	profileName  string
	profilesFile string

	// settings holds the config file loaded before any command runs.
	settings Config
)

func configFlag() cli.Flag {
	return &cli.StringFlag{
		Name:        "config",
		Usage:       "path to config.yaml (default: user config dir)",
		Sources:     cli.EnvVars("TESSERA_CONFIG"),
		Destination: &configFile,
	}
}

func loggingFlags() []cli.Flag {
	return []cli.Flag{
		&cli.StringFlag{
			Name:        "log-level",
			Usage:       "log level (debug, info, warn, error)",
			Value:       "info",
			Destination: &logLevel,
		},
		&cli.StringFlag{
			Name:        "log-format",
			Usage:       "log format (auto, pretty, json, text)",
			Value:       "auto",
			Destination: &logFormat,
		},
		&cli.BoolFlag{
			Name:        "debug",
			Usage:       "enable debug logging (shorthand for --log-level=debug)",
			Destination: &debug,
		},
	}
}

func profileFlags() []cli.Flag {
	return []cli.Flag{
		&cli.StringFlag{
			Name:        "profile",
			Aliases:     []string{"p"},
			Usage:       "capability profile name",
			Value:       capability.DefaultProfile,
			Destination: &profileName,
		},
		&cli.StringFlag{
			Name:        "profiles",
			Usage:       "YAML file with extra capability profiles",
			Destination: &profilesFile,
		},
	}
}

// parseShape reads a comma or x separated list of positive extents.
func parseShape(s string) ([]int, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil, fmt.Errorf("empty shape")
	}
	fields := strings.FieldsFunc(s, func(r rune) bool { return r == ',' || r == 'x' || r == ' ' })
	shape := make([]int, 0, len(fields))
	for _, f := range fields {
		n, err := strconv.Atoi(f)
		if err != nil {
			return nil, fmt.Errorf("shape %q: %w", s, err)
		}
		if n <= 0 {
			return nil, fmt.Errorf("shape %q: extent %d must be positive", s, n)
		}
		shape = append(shape, n)
	}
	return shape, nil
}
