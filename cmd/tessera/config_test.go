package main

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/urfave/cli/v3"
)

func TestLoadConfig(t *testing.T) {
	t.Run("missing file is empty", func(t *testing.T) {
		cfg, err := LoadConfig(filepath.Join(t.TempDir(), "absent.yaml"))
		if err != nil {
			t.Fatalf("LoadConfig returned error: %v", err)
		}
		if cfg.Profile != "" || cfg.BatchLimit != nil {
			t.Fatalf("expected zero config, got %+v", cfg)
		}
	})

	t.Run("fields decode", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "config.yaml")
		body := "profile: lite\nsingle_core: true\nlog_format: json\nbatch_limit: 3\nserver_address: 0.0.0.0:9090\n"
		if err := os.WriteFile(path, []byte(body), 0o644); err != nil {
			t.Fatal(err)
		}
		cfg, err := LoadConfig(path)
		if err != nil {
			t.Fatalf("LoadConfig returned error: %v", err)
		}
		if cfg.Profile != "lite" || cfg.LogFormat != "json" || cfg.ServerAddress != "0.0.0.0:9090" {
			t.Fatalf("unexpected config: %+v", cfg)
		}
		if cfg.SingleCore == nil || !*cfg.SingleCore || cfg.BatchLimit == nil || *cfg.BatchLimit != 3 {
			t.Fatalf("unexpected pointer fields: %+v", cfg)
		}
	})

	t.Run("malformed file is an error", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "config.yaml")
		if err := os.WriteFile(path, []byte("profile: [unterminated"), 0o644); err != nil {
			t.Fatal(err)
		}
		if _, err := LoadConfig(path); err == nil || !strings.Contains(err.Error(), "parse config") {
			t.Fatalf("expected parse error, got %v", err)
		}
	})
}

// runWith parses args against the profile and logging flags and calls fn
// from the action. It touches package flag state, so callers are serial.
func runWith(t *testing.T, args []string, extra []cli.Flag, fn func(cmd *cli.Command)) {
	t.Helper()
	flags := append(append(loggingFlags(), profileFlags()...), extra...)
	cmd := &cli.Command{
		Name:  "test",
		Flags: flags,
		Action: func(ctx context.Context, cmd *cli.Command) error {
			fn(cmd)
			return nil
		},
	}
	if err := cmd.Run(context.Background(), append([]string{"test"}, args...)); err != nil {
		t.Fatalf("run %v: %v", args, err)
	}
}

func TestExplicitFlagsBeatConfig(t *testing.T) {
	yes := true
	limit := 6
	cfg := Config{
		Profile:       "edge",
		SingleCore:    &yes,
		LogLevel:      "debug",
		LogFormat:     "json",
		ServerAddress: "0.0.0.0:9000",
		BatchLimit:    &limit,
	}

	var singleCore bool
	runWith(t, nil, []cli.Flag{&cli.BoolFlag{Name: "single-core", Destination: &singleCore}}, func(cmd *cli.Command) {
		applyLoggingConfig(cmd, cfg)
		applyProfileConfig(cmd, cfg, &singleCore)
	})
	if profileName != "edge" || !singleCore || logLevel != "debug" || logFormat != "json" {
		t.Fatalf("config defaults not applied: profile=%q single=%v level=%q format=%q", profileName, singleCore, logLevel, logFormat)
	}

	singleCore = false
	runWith(t, []string{"--profile", "lite", "--log-format", "text", "--single-core=false"},
		[]cli.Flag{&cli.BoolFlag{Name: "single-core", Destination: &singleCore}}, func(cmd *cli.Command) {
			applyLoggingConfig(cmd, cfg)
			applyProfileConfig(cmd, cfg, &singleCore)
		})
	if profileName != "lite" || singleCore || logFormat != "text" || logLevel != "debug" {
		t.Fatalf("explicit flags lost: profile=%q single=%v level=%q format=%q", profileName, singleCore, logLevel, logFormat)
	}

	var (
		addr  string
		batch int
	)
	serveFlags := []cli.Flag{
		&cli.StringFlag{Name: "addr", Value: "127.0.0.1:8080", Destination: &addr},
		&cli.IntFlag{Name: "limit", Destination: &batch},
	}
	runWith(t, []string{"--limit", "2"}, serveFlags, func(cmd *cli.Command) {
		applyServeConfig(cmd, cfg, &addr, &batch)
	})
	if addr != "0.0.0.0:9000" || batch != 2 {
		t.Fatalf("serve config: addr=%q limit=%d", addr, batch)
	}
}

func TestLoadRegistryWithProfilesFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "profiles.yaml")
	body := "profiles:\n  - name: bench\n    scratchpad_bytes: 131072\n    core_num: 4\n"
	if err := os.WriteFile(path, []byte(body), 0o644); err != nil {
		t.Fatal(err)
	}

	old := profilesFile
	t.Cleanup(func() { profilesFile = old })

	profilesFile = path
	reg, err := loadRegistry()
	if err != nil {
		t.Fatalf("loadRegistry: %v", err)
	}
	c, err := reg.Lookup("bench")
	if err != nil {
		t.Fatalf("bench profile missing: %v", err)
	}
	if c.CoreNum != 4 || c.BlockBytes != 32 || c.Generation != 1 {
		t.Fatalf("defaults not applied to loaded profile: %+v", c)
	}

	profilesFile = filepath.Join(t.TempDir(), "absent.yaml")
	if _, err := loadRegistry(); err == nil {
		t.Fatal("expected error for a missing profiles file")
	}
}
