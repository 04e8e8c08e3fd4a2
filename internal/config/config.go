package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"
)

const dateLayout = "2006-01-02"

// Config holds all application configuration.
type Config struct {
	Tickers   []string `yaml:"tickers" validate:"min=1,dive,required"`
	StartDate string   `yaml:"start_date" validate:"required"`
	EndDate   string   `yaml:"end_date"` // empty means today
	Timezone  string   `yaml:"timezone" validate:"required"`
	Fetch     struct {
		MaxRetries        int `yaml:"max_retries" validate:"min=1"`
		RetryDelaySeconds int `yaml:"retry_delay_seconds" validate:"min=0"`
	} `yaml:"fetch"`
	Cache struct {
		Backend             string `yaml:"backend" validate:"oneof=csv sqlite none"`
		Directory           string `yaml:"directory"`
		SQLitePath          string `yaml:"sqlite_path"`
		MaxStalenessSeconds int    `yaml:"max_staleness_seconds" validate:"min=0"`
	} `yaml:"cache"`
	Export struct {
		Format    string `yaml:"format" validate:"omitempty,oneof=csv json parquet"`
		Directory string `yaml:"directory"`
	} `yaml:"export"`
	Schedule struct {
		RefreshCron string `yaml:"refresh_cron"`
	} `yaml:"schedule"`
	Proxy string `yaml:"proxy"`
}

// Load reads config from a YAML file over a fully-defaulted base, then
// applies environment variable overrides. Defaults are populated before
// unmarshalling so that an explicit zero in the file (a zero staleness
// window, a zero retry delay) survives instead of being mistaken for an
// unset key. A missing file is fine: defaults plus environment cover the
// common one-ticker case.
func Load(path string) (*Config, error) {
	cfg := defaultConfig()

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
	if v := os.Getenv("STOCKCACHE_TICKERS"); v != "" {
		cfg.Tickers = splitList(v)
	}
	if v := os.Getenv("STOCKCACHE_START_DATE"); v != "" {
		cfg.StartDate = v
	}
	if v := os.Getenv("STOCKCACHE_END_DATE"); v != "" {
		cfg.EndDate = v
	}
	if v := os.Getenv("STOCKCACHE_TIMEZONE"); v != "" {
		cfg.Timezone = v
	}
	if v := os.Getenv("STOCKCACHE_CACHE_DIR"); v != "" {
		cfg.Cache.Directory = v
	}
	if v := os.Getenv("STOCKCACHE_CACHE_BACKEND"); v != "" {
		cfg.Cache.Backend = v
	}
	if v := os.Getenv("STOCKCACHE_MAX_STALENESS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.Cache.MaxStalenessSeconds = n
		}
	}
	if v := os.Getenv("HTTPS_PROXY"); v != "" {
		cfg.Proxy = v
	}

	return cfg, nil
}

func defaultConfig() *Config {
	cfg := &Config{
		Tickers:   []string{"0700.HK"},
		StartDate: "2020-01-01",
		Timezone:  "UTC",
	}
	cfg.Fetch.MaxRetries = 3
	cfg.Fetch.RetryDelaySeconds = 2
	cfg.Cache.Backend = "csv"
	cfg.Cache.Directory = "data"
	cfg.Cache.SQLitePath = "data/stockcache.db"
	cfg.Cache.MaxStalenessSeconds = 24 * 60 * 60
	cfg.Export.Directory = "out"
	cfg.Schedule.RefreshCron = "0 0 18 * * 1-5"
	return cfg
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if p := strings.TrimSpace(part); p != "" {
			out = append(out, p)
		}
	}
	return out
}

// Validate checks struct constraints plus the rules tags cannot express:
// a loadable IANA zone and a well-ordered date range.
func (c *Config) Validate() error {
	if err := validator.New().Struct(c); err != nil {
		return fmt.Errorf("config: %w", err)
	}
	loc, err := c.Location()
	if err != nil {
		return err
	}
	start, end, err := c.Range(loc)
	if err != nil {
		return err
	}
	if end.Before(start) {
		return fmt.Errorf("config: end_date %s before start_date %s", c.EndDate, c.StartDate)
	}
	return nil
}

// Location resolves the configured IANA zone.
func (c *Config) Location() (*time.Location, error) {
	loc, err := time.LoadLocation(c.Timezone)
	if err != nil {
		return nil, fmt.Errorf("config: bad timezone %q: %w", c.Timezone, err)
	}
	return loc, nil
}

// Range parses the configured date range in loc. An empty end date means
// today.
func (c *Config) Range(loc *time.Location) (start, end time.Time, err error) {
	start, err = time.ParseInLocation(dateLayout, c.StartDate, loc)
	if err != nil {
		return time.Time{}, time.Time{}, fmt.Errorf("config: bad start_date %q: %w", c.StartDate, err)
	}
	if c.EndDate == "" {
		now := time.Now().In(loc)
		end = time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, loc)
		return start, end, nil
	}
	end, err = time.ParseInLocation(dateLayout, c.EndDate, loc)
	if err != nil {
		return time.Time{}, time.Time{}, fmt.Errorf("config: bad end_date %q: %w", c.EndDate, err)
	}
	return start, end, nil
}

// MaxStaleness returns the staleness window as a duration.
func (c *Config) MaxStaleness() time.Duration {
	return time.Duration(c.Cache.MaxStalenessSeconds) * time.Second
}

// RetryDelay returns the fixed wait between fetch attempts.
func (c *Config) RetryDelay() time.Duration {
	return time.Duration(c.Fetch.RetryDelaySeconds) * time.Second
}
