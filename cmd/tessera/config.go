package main

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"

	"github.com/urfave/cli/v3"
	"gopkg.in/yaml.v3"

	"github.com/samcharles93/tessera/internal/capability"
)

// Config represents the tessera configuration file (~/.config/tessera/config.yaml).
// Pointer fields distinguish "not set" from zero values.
type Config struct {
	Profile      string `yaml:"profile"`
	ProfilesFile string `yaml:"profiles_file"`
	SingleCore   *bool  `yaml:"single_core"`

	LogLevel  string `yaml:"log_level"`
	LogFormat string `yaml:"log_format"`

	ServerAddress string `yaml:"server_address"`
	BatchLimit    *int   `yaml:"batch_limit"`
}

func configPath() string {
	dir, err := os.UserConfigDir()
	if err != nil {
		return ""
	}
	return filepath.Join(dir, "tessera", "config.yaml")
}

// LoadConfig reads path, or the default location when path is empty. A
// missing file yields a zero Config; a malformed one is an error.
func LoadConfig(path string) (Config, error) {
	if path == "" {
		path = configPath()
	}
	if path == "" {
		return Config{}, nil
	}
	data, err := os.ReadFile(path)
	if errors.Is(err, fs.ErrNotExist) {
		return Config{}, nil
	}
	if err != nil {
		return Config{}, fmt.Errorf("read config: %w", err)
	}
	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return Config{}, fmt.Errorf("parse config %s: %w", path, err)
	}
	return cfg, nil
}

func applyLoggingConfig(c *cli.Command, cfg Config) {
	if cfg.LogLevel != "" && !c.IsSet("log-level") {
		logLevel = cfg.LogLevel
	}
	if cfg.LogFormat != "" && !c.IsSet("log-format") {
		logFormat = cfg.LogFormat
	}
}

// applyProfileConfig applies config defaults for the capability flags. A nil
// singleCore skips the single-core default.
func applyProfileConfig(c *cli.Command, cfg Config, singleCore *bool) {
	if cfg.Profile != "" && !c.IsSet("profile") {
		profileName = cfg.Profile
	}
	if cfg.ProfilesFile != "" && !c.IsSet("profiles") {
		profilesFile = cfg.ProfilesFile
	}
	if singleCore != nil && cfg.SingleCore != nil && !c.IsSet("single-core") {
		*singleCore = *cfg.SingleCore
	}
}

func applyServeConfig(c *cli.Command, cfg Config, addr *string, batchLimit *int) {
	applyProfileConfig(c, cfg, nil)
	if cfg.ServerAddress != "" && !c.IsSet("addr") {
		*addr = cfg.ServerAddress
	}
	if cfg.BatchLimit != nil && !c.IsSet("limit") {
		*batchLimit = *cfg.BatchLimit
	}
}

// loadRegistry returns the built-in profiles plus those of profilesFile.
func loadRegistry() (*capability.Registry, error) {
	reg := capability.NewRegistry()
	if profilesFile == "" {
		return reg, nil
	}
	if err := reg.LoadFile(profilesFile); err != nil {
		return nil, err
	}
	return reg, nil
}
