// Package config loads scanner configuration from a YAML file with
// environment variable overrides.
package config

import (
	"fmt"
	"os"
	"strconv"

	"gopkg.in/yaml.v3"

	"ichiscan/internal/domain"
)

// Config holds all application configuration.
type Config struct {
	Cache struct {
		Dir           string `yaml:"dir"`
		PostgresDSN   string `yaml:"postgres_dsn"`
		ClickhouseDSN string `yaml:"clickhouse_dsn"`
	} `yaml:"cache"`
	History struct {
		SQLitePath string `yaml:"sqlite_path"`
	} `yaml:"history"`
	Scan struct {
		Tenkan             int     `yaml:"tenkan"`
		Kijun              int     `yaml:"kijun"`
		Senkou             int     `yaml:"senkou"`
		Lookback           int     `yaml:"lookback"`
		StrictCross        bool    `yaml:"strict_cross"`
		MinPrice           float64 `yaml:"min_price"`
		MinAvgDollarVolume float64 `yaml:"min_avg_dollar_volume"`
		Workers            int     `yaml:"workers"`
	} `yaml:"scan"`
	Server struct {
		Addr         string `yaml:"addr"`
		ScheduleCron string `yaml:"schedule_cron"`
		TickersFile  string `yaml:"tickers_file"`
	} `yaml:"server"`
}

// Load reads config from a YAML file (missing file is not an error), then
// applies environment variable overrides.
func Load(path string) (*Config, error) {
	cfg := &Config{}
	cfg.Cache.Dir = ".ichiscan-cache"
	cfg.Scan.Tenkan = domain.DefaultTenkanPeriod
	cfg.Scan.Kijun = domain.DefaultKijunPeriod
	cfg.Scan.Senkou = domain.DefaultSenkouPeriod
	cfg.Scan.Lookback = domain.DefaultLookback
	cfg.Scan.StrictCross = true
	cfg.Scan.Workers = domain.DefaultWorkers
	cfg.Server.Addr = ":8080"

	data, err := os.ReadFile(path)
	if err != nil && !os.IsNotExist(err) {
		return nil, fmt.Errorf("read config: %w", err)
	}
	if len(data) > 0 {
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parse config: %w", err)
		}
	}

	if v := os.Getenv("ICHISCAN_CACHE_DIR"); v != "" {
		cfg.Cache.Dir = v
	}
	if v := os.Getenv("POSTGRES_DSN"); v != "" {
		cfg.Cache.PostgresDSN = v
	}
	if v := os.Getenv("CLICKHOUSE_DSN"); v != "" {
		cfg.Cache.ClickhouseDSN = v
	}
	if v := os.Getenv("ICHISCAN_SQLITE_PATH"); v != "" {
		cfg.History.SQLitePath = v
	}
	if v := os.Getenv("ICHISCAN_ADDR"); v != "" {
		cfg.Server.Addr = v
	}
	if v := os.Getenv("ICHISCAN_WORKERS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			cfg.Scan.Workers = n
		}
	}

	return cfg, nil
}
