package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"MacroTracker/internal/series"
)

// Config holds all application configuration.
type Config struct {
	Log struct {
		Level  string `yaml:"level"`
		Format string `yaml:"format"` // console or json
	} `yaml:"log"`
	Sync struct {
		EpochDefault      string        `yaml:"epoch_default"` // first-run backfill start, YYYY-MM-DD
		EpochFloor        string        `yaml:"epoch_floor"`   // earliest acceptable explicit start
		Workers           int           `yaml:"worker_pool_size"`
		ProjectionWorkers int           `yaml:"projection_workers"`
		PerSourceTimeout  time.Duration `yaml:"per_source_timeout"`
		SpotTimeout       time.Duration `yaml:"spot_timeout"`
	} `yaml:"sync"`
	Sources struct {
		IndexRateURL        string   `yaml:"index_rate_url"`
		IndexRatePageLimit  int      `yaml:"index_rate_page_limit"`
		FXChartURL          string   `yaml:"fx_chart_url"`
		SpotURL             string   `yaml:"spot_url"`
		BenchmarkURL        string   `yaml:"benchmark_url"`
		ProjectionListURL   string   `yaml:"projection_list_url"`
		ProjectionBaseURL   string   `yaml:"projection_base_url"`
		TLSVerifyExceptions []string `yaml:"tls_verify_exceptions"`
	} `yaml:"sources"`
	Store struct {
		Backend string `yaml:"backend"` // sheets, sqlite or noop
		Sheets  struct {
			BaseURL         string `yaml:"base_url"`
			SpreadsheetID   string `yaml:"spreadsheet_id"`
			Token           string `yaml:"token"`
			DailySheet      string `yaml:"daily_sheet"`
			MonthlySheet    string `yaml:"monthly_sheet"`
			ProjectionSheet string `yaml:"projection_sheet"`
		} `yaml:"sheets"`
		SQLitePath string `yaml:"sqlite_path"`
	} `yaml:"store"`
	Schedule struct {
		Cron       string `yaml:"cron"`
		RunOnStart bool   `yaml:"run_on_start"`
	} `yaml:"schedule"`

	// Parsed by Validate.
	Epoch    series.Date `yaml:"-"`
	EpochMin series.Date `yaml:"-"`
}

// Load reads config from a YAML file, then applies environment variable
// overrides and defaults. A missing file is not an error; overrides and
// defaults still apply.
func Load(path string) (*Config, error) {
	cfg := &Config{}

	data, err := os.ReadFile(path)
	if err != nil && !os.IsNotExist(err) {
		return nil, fmt.Errorf("read config: %w", err)
	}
	if len(data) > 0 {
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parse config: %w", err)
		}
	}

	// Environment variable overrides
	if v := os.Getenv("SPREADSHEET_ID"); v != "" {
		cfg.Store.Sheets.SpreadsheetID = v
	}
	if v := os.Getenv("SHEETS_TOKEN"); v != "" {
		cfg.Store.Sheets.Token = v
	}
	if v := os.Getenv("STORE_BACKEND"); v != "" {
		cfg.Store.Backend = v
	}
	if v := os.Getenv("SQLITE_PATH"); v != "" {
		cfg.Store.SQLitePath = v
	}
	if v := os.Getenv("LOG_LEVEL"); v != "" {
		cfg.Log.Level = v
	}
	if v := os.Getenv("SYNC_CRON"); v != "" {
		cfg.Schedule.Cron = v
	}
	if v := os.Getenv("SYNC_WORKERS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.Sync.Workers = n
		}
	}

	// Defaults
	if cfg.Log.Level == "" {
		cfg.Log.Level = "info"
	}
	if cfg.Log.Format == "" {
		cfg.Log.Format = "console"
	}
	if cfg.Sync.EpochDefault == "" {
		cfg.Sync.EpochDefault = "2022-01-01"
	}
	if cfg.Sync.EpochFloor == "" {
		cfg.Sync.EpochFloor = "2010-01-01"
	}
	if cfg.Sync.Workers == 0 {
		cfg.Sync.Workers = 5
	}
	if cfg.Sync.ProjectionWorkers == 0 {
		cfg.Sync.ProjectionWorkers = 3
	}
	if cfg.Sync.PerSourceTimeout == 0 {
		cfg.Sync.PerSourceTimeout = 30 * time.Second
	}
	if cfg.Sync.SpotTimeout == 0 {
		cfg.Sync.SpotTimeout = 10 * time.Second
	}
	if cfg.Sources.IndexRatePageLimit == 0 {
		cfg.Sources.IndexRatePageLimit = 3000
	}
	if cfg.Store.Backend == "" {
		cfg.Store.Backend = "sqlite"
	}
	if cfg.Store.SQLitePath == "" {
		cfg.Store.SQLitePath = "data/macrotracker.db"
	}
	if cfg.Store.Sheets.BaseURL == "" {
		cfg.Store.Sheets.BaseURL = "https://sheets.googleapis.com/v4/spreadsheets"
	}
	if cfg.Store.Sheets.DailySheet == "" {
		cfg.Store.Sheets.DailySheet = "historic_data"
	}
	if cfg.Store.Sheets.MonthlySheet == "" {
		cfg.Store.Sheets.MonthlySheet = "market_data"
	}
	if cfg.Store.Sheets.ProjectionSheet == "" {
		cfg.Store.Sheets.ProjectionSheet = "projections"
	}
	if cfg.Schedule.Cron == "" {
		cfg.Schedule.Cron = "0 0 21 * * 1-5"
	}

	return cfg, nil
}

// Validate checks that all required fields are set and parses the epochs.
func (c *Config) Validate() error {
	var err error
	if c.Epoch, err = series.ParseDate(c.Sync.EpochDefault); err != nil {
		return fmt.Errorf("sync.epoch_default: %w", err)
	}
	if c.EpochMin, err = series.ParseDate(c.Sync.EpochFloor); err != nil {
		return fmt.Errorf("sync.epoch_floor: %w", err)
	}
	if c.Epoch.Before(c.EpochMin) {
		return fmt.Errorf("sync.epoch_default %s is before sync.epoch_floor %s", c.Epoch, c.EpochMin)
	}
	if c.Sync.Workers <= 0 {
		return fmt.Errorf("sync.worker_pool_size must be positive")
	}
	if c.Sync.ProjectionWorkers <= 0 {
		return fmt.Errorf("sync.projection_workers must be positive")
	}
	if c.Sources.IndexRateURL == "" {
		return fmt.Errorf("sources.index_rate_url is required")
	}
	switch c.Store.Backend {
	case "sqlite", "noop":
	case "sheets":
		if c.Store.Sheets.SpreadsheetID == "" {
			return fmt.Errorf("store.sheets.spreadsheet_id is required for the sheets backend")
		}
		if c.Store.Sheets.Token == "" {
			return fmt.Errorf("store.sheets.token is required for the sheets backend")
		}
	default:
		return fmt.Errorf("store.backend must be 'sheets', 'sqlite' or 'noop', got %q", c.Store.Backend)
	}
	for _, h := range c.Sources.TLSVerifyExceptions {
		if strings.Contains(h, "/") {
			return fmt.Errorf("sources.tls_verify_exceptions entries must be host names, got %q", h)
		}
	}
	return nil
}
