package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"

	"github.com/tailscale/hujson"
)

// Config holds pkdbd's configuration, loadable from a JSONC file and
// overridable by CLI flags, the same layered precedence the teacher's
// config.go uses for its ticket store.
type Config struct {
	DBPath        string `json:"db_path"`
	MetricsAddr   string `json:"metrics_addr"`
	HistoryPath   string `json:"history_path,omitempty"`
}

// DefaultConfig returns pkdbd's defaults.
func DefaultConfig() Config {
	return Config{
		DBPath:      "pakdb.db",
		MetricsAddr: ":9090",
	}
}

var errConfigRead = errors.New("reading config file")

// LoadConfig reads JSONC config from path (if non-empty) layered over
// DefaultConfig, then applies cliOverrides on top.
func LoadConfig(path string, cliOverrides Config, hasDBPathOverride, hasMetricsAddrOverride bool) (Config, error) {
	cfg := DefaultConfig()

	if path != "" {
		fileCfg, err := loadConfigFile(path)
		if err != nil {
			return Config{}, err
		}
		cfg = mergeConfig(cfg, fileCfg)
	}

	if hasDBPathOverride {
		cfg.DBPath = cliOverrides.DBPath
	}
	if hasMetricsAddrOverride {
		cfg.MetricsAddr = cliOverrides.MetricsAddr
	}
	if cliOverrides.HistoryPath != "" {
		cfg.HistoryPath = cliOverrides.HistoryPath
	}

	if cfg.DBPath == "" {
		return Config{}, fmt.Errorf("db_path must not be empty")
	}

	return cfg, nil
}

func loadConfigFile(path string) (Config, error) {
	data, err := os.ReadFile(path) //nolint:gosec // path is operator-supplied
	if err != nil {
		if os.IsNotExist(err) {
			return Config{}, nil
		}
		return Config{}, fmt.Errorf("%w %s: %w", errConfigRead, path, err)
	}

	standardized, err := hujson.Standardize(data)
	if err != nil {
		return Config{}, fmt.Errorf("invalid JSONC in %s: %w", path, err)
	}

	var cfg Config
	if err := json.Unmarshal(standardized, &cfg); err != nil {
		return Config{}, fmt.Errorf("invalid JSON in %s: %w", path, err)
	}

	return cfg, nil
}

func mergeConfig(base, overlay Config) Config {
	if overlay.DBPath != "" {
		base.DBPath = overlay.DBPath
	}
	if overlay.MetricsAddr != "" {
		base.MetricsAddr = overlay.MetricsAddr
	}
	if overlay.HistoryPath != "" {
		base.HistoryPath = overlay.HistoryPath
	}
	return base
}
