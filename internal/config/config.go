// Package config provides configuration management for the scanner service.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/viper"

	"okx-scanner/internal/errors"
	"okx-scanner/internal/models"
	"okx-scanner/pkg/utils"
)

// Defaults shared by the template, viper and the env parser.
const (
	DefaultAPIKey      = "change-me"
	DefaultDataDir     = "/var/tmp/okxdata"
	DefaultBaseURL     = "https://www.okx.com"
	DefaultPort        = 8000
	DefaultBatch       = 5
	DefaultIntervalSec = 30
	DefaultTimeoutSec  = 10
	DefaultSymbols     = "ETH-USDT,SOL-USDT,BNB-USDT,OP-USDT,ARB-USDT"
	DefaultBars        = "1D:50,4H:50,1H:50,15m:150,5m:150"
)

// Storage backends.
const (
	BackendCSV    = "csv"
	BackendSQLite = "sqlite"
)

// Config holds all application configuration.
type Config struct {
	Server  ServerConfig  `mapstructure:"server"`
	OKX     OKXConfig     `mapstructure:"okx"`
	Scan    ScanSettings  `mapstructure:"scan"`
	Storage StorageConfig `mapstructure:"storage"`
	Risk    RiskConfig    `mapstructure:"risk"`
	Logging LoggingConfig `mapstructure:"logging"`

	// envSet lists the environment variables that overrode file values.
	envSet []string
}

// ServerConfig holds HTTP server configuration.
type ServerConfig struct {
	Port             int    `mapstructure:"port"`
	APIKey           string `mapstructure:"api_key"`
	AutoStartScanner bool   `mapstructure:"auto_start_scanner"`
}

// OKXConfig holds upstream configuration.
type OKXConfig struct {
	BaseURL    string `mapstructure:"base_url"`
	TimeoutSec int    `mapstructure:"timeout_sec"`

	// BreakerFailures consecutive outages open the circuit; 0 disables it.
	BreakerFailures    int `mapstructure:"breaker_failures"`
	BreakerCooldownSec int `mapstructure:"breaker_cooldown_sec"`
}

// ScanSettings holds the initial scanner configuration.
type ScanSettings struct {
	Symbols     string `mapstructure:"symbols"`
	Bars        string `mapstructure:"bars"`
	Batch       int    `mapstructure:"batch"`
	IntervalSec int    `mapstructure:"interval_sec"`
}

// StorageConfig selects where scanned candles go.
type StorageConfig struct {
	Backend string `mapstructure:"backend"` // csv, sqlite
	DataDir string `mapstructure:"data_dir"`
	DBPath  string `mapstructure:"db_path"`
}

// RiskConfig holds the default sizing inputs for evaluations.
type RiskConfig struct {
	FundsTotal  float64 `mapstructure:"funds_total"`
	FundsSplit  int     `mapstructure:"funds_split"`
	Leverage    float64 `mapstructure:"leverage"`
	RiskPercent float64 `mapstructure:"risk_percent"`
}

// LoggingConfig holds logging configuration.
type LoggingConfig struct {
	Level string `mapstructure:"level"`
	File  bool   `mapstructure:"file"`
	JSON  bool   `mapstructure:"json"`
}

// DefaultConfigDir returns the default configuration directory.
func DefaultConfigDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ".config/okx-scanner"
	}
	return filepath.Join(home, ".config", "okx-scanner")
}

// Load loads configuration from the specified directory.
// If configDir is empty, uses the default config directory. A missing
// config.toml is replaced by a template and the defaults apply.
func Load(configDir string) (*Config, error) {
	if configDir == "" {
		configDir = DefaultConfigDir()
	}

	cfg := &Config{}
	if err := loadConfigFile(configDir, "config", cfg); err != nil {
		return nil, fmt.Errorf("loading config.toml: %w", err)
	}

	cfg.envSet = applyEnvOverrides(cfg, os.LookupEnv)
	cfg.fillDerived()

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("%w: %w", errors.ErrConfigInvalid, err)
	}
	return cfg, nil
}

// Default returns the configuration used when no file or environment is
// present.
func Default() *Config {
	v := viper.New()
	setDefaults(v)
	cfg := &Config{}
	_ = v.Unmarshal(cfg)
	cfg.fillDerived()
	return cfg
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.port", DefaultPort)
	v.SetDefault("server.api_key", DefaultAPIKey)
	v.SetDefault("server.auto_start_scanner", false)
	v.SetDefault("okx.base_url", DefaultBaseURL)
	v.SetDefault("okx.timeout_sec", DefaultTimeoutSec)
	v.SetDefault("okx.breaker_failures", 5)
	v.SetDefault("okx.breaker_cooldown_sec", 30)
	v.SetDefault("scan.symbols", DefaultSymbols)
	v.SetDefault("scan.bars", DefaultBars)
	v.SetDefault("scan.batch", DefaultBatch)
	v.SetDefault("scan.interval_sec", DefaultIntervalSec)
	v.SetDefault("storage.backend", BackendCSV)
	v.SetDefault("storage.data_dir", DefaultDataDir)
	v.SetDefault("storage.db_path", "")
	v.SetDefault("risk.funds_total", 694.0)
	v.SetDefault("risk.funds_split", 7)
	v.SetDefault("risk.leverage", 5.0)
	v.SetDefault("risk.risk_percent", 2.0)
	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.file", false)
	v.SetDefault("logging.json", false)
}

func loadConfigFile(configDir, name string, target *Config) error {
	v := viper.New()
	v.SetConfigName(name)
	v.SetConfigType("toml")
	v.AddConfigPath(configDir)
	setDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return err
		}
		// best effort: a read-only config dir still runs on defaults
		_ = createTemplateConfig(configDir, name)
	}

	return v.Unmarshal(target)
}

// lookupFunc matches os.LookupEnv.
type lookupFunc func(string) (string, bool)

// applyEnvOverrides applies the service environment variables and returns
// the names that were set.
func applyEnvOverrides(cfg *Config, lookup lookupFunc) []string {
	var set []string
	str := func(name string, dst *string) {
		if v, ok := lookup(name); ok && strings.TrimSpace(v) != "" {
			*dst = strings.TrimSpace(v)
			set = append(set, name)
		}
	}
	num := func(name string, dst *int) {
		if v, ok := lookup(name); ok && strings.TrimSpace(v) != "" {
			n, err := strconv.Atoi(strings.TrimSpace(v))
			if err != nil {
				// keep an impossible value so Validate reports it
				n = -1
			}
			*dst = n
			set = append(set, name)
		}
	}

	str("API_KEY", &cfg.Server.APIKey)
	str("DATA_DIR", &cfg.Storage.DataDir)
	str("SCAN_SYMBOLS", &cfg.Scan.Symbols)
	str("SCAN_BARS", &cfg.Scan.Bars)
	num("SCAN_BATCH", &cfg.Scan.Batch)
	num("SCAN_INTERVAL_SEC", &cfg.Scan.IntervalSec)
	str("OKX_BASE", &cfg.OKX.BaseURL)
	num("PORT", &cfg.Server.Port)
	str("LOG_LEVEL", &cfg.Logging.Level)
	str("STORE_BACKEND", &cfg.Storage.Backend)
	str("STORE_DB_PATH", &cfg.Storage.DBPath)
	return set
}

func (c *Config) fillDerived() {
	c.Storage.Backend = strings.ToLower(strings.TrimSpace(c.Storage.Backend))
	if c.Storage.DBPath == "" && c.Storage.DataDir != "" {
		c.Storage.DBPath = filepath.Join(c.Storage.DataDir, "okxscan.db")
	}
}

// EnvOverridden reports whether the named environment variable overrode the
// configuration.
func (c *Config) EnvOverridden(name string) bool {
	return slices.Contains(c.envSet, name)
}

// scanEnv maps scan preference fields to the variables that pin them.
var scanEnv = map[string]string{
	"bars":         "SCAN_BARS",
	"batch":        "SCAN_BATCH",
	"interval_sec": "SCAN_INTERVAL_SEC",
}

// ScanFieldPinned reports whether a scan field ("bars", "batch",
// "interval_sec") was set through the environment and must not be replaced
// by preferences.
func (c *Config) ScanFieldPinned(field string) bool {
	name, ok := scanEnv[field]
	return ok && c.EnvOverridden(name)
}

// Validate validates the configuration.
func (c *Config) Validate() error {
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		return errors.NewValidationError("server.port", c.Server.Port, "must be between 1 and 65535")
	}
	if c.Server.APIKey == "" {
		return errors.NewValidationError("server.api_key", "", "must not be empty")
	}
	if len(ParseSymbols(c.Scan.Symbols)) == 0 {
		return errors.NewValidationError("scan.symbols", c.Scan.Symbols, "at least one symbol required")
	}
	if _, err := ParseBars(c.Scan.Bars); err != nil {
		return err
	}
	if c.Scan.Batch <= 0 {
		return errors.NewValidationError("scan.batch", c.Scan.Batch, "must be positive")
	}
	if c.Scan.IntervalSec <= 0 {
		return errors.NewValidationError("scan.interval_sec", c.Scan.IntervalSec, "must be positive")
	}
	if c.Storage.Backend != BackendCSV && c.Storage.Backend != BackendSQLite {
		return errors.NewValidationError("storage.backend", c.Storage.Backend, "must be 'csv' or 'sqlite'")
	}
	if c.Storage.DataDir == "" {
		return errors.NewValidationError("storage.data_dir", "", "must not be empty")
	}
	if c.OKX.BreakerFailures < 0 || c.OKX.BreakerCooldownSec < 0 {
		return errors.NewValidationError("okx.breaker_failures", c.OKX.BreakerFailures, "breaker settings must not be negative")
	}
	if c.Risk.RiskPercent < 0 || c.Risk.RiskPercent > 100 {
		return errors.NewValidationError("risk.risk_percent", c.Risk.RiskPercent, "must be between 0 and 100")
	}
	return nil
}

// ScanConfig returns the scanner configuration described by the settings.
func (c *Config) ScanConfig() models.ScanConfig {
	bars, _ := ParseBars(c.Scan.Bars)
	return models.ScanConfig{
		Symbols:  ParseSymbols(c.Scan.Symbols),
		Bars:     bars,
		Batch:    c.Scan.Batch,
		Interval: time.Duration(c.Scan.IntervalSec) * time.Second,
	}
}

// Timeout returns the upstream request timeout.
func (c *Config) Timeout() time.Duration {
	return time.Duration(c.OKX.TimeoutSec) * time.Second
}

// ParseSymbols splits a comma separated list, dropping blanks.
func ParseSymbols(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if p := strings.TrimSpace(part); p != "" {
			out = append(out, p)
		}
	}
	return out
}

// ParseBars parses "1D:50,4H:50" into an ordered bar set. A repeated bar
// keeps its first position and takes the last limit.
func ParseBars(s string) (models.BarSet, error) {
	var out models.BarSet
	for _, part := range strings.Split(s, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		bar, limitStr, ok := strings.Cut(part, ":")
		bar = strings.TrimSpace(bar)
		if !ok {
			return nil, errors.NewValidationError("scan.bars", part, "expected BAR:LIMIT")
		}
		if !utils.IsValidBar(bar) {
			return nil, errors.NewValidationError("scan.bars", bar, "unknown bar")
		}
		limit, err := strconv.Atoi(strings.TrimSpace(limitStr))
		if err != nil || limit <= 0 {
			return nil, errors.NewValidationError("scan.bars", part, "limit must be a positive integer")
		}
		if i := slices.IndexFunc(out, func(b models.BarSpec) bool { return b.Bar == bar }); i >= 0 {
			out[i].Limit = limit
			continue
		}
		out = append(out, models.BarSpec{Bar: bar, Limit: limit})
	}
	if len(out) == 0 {
		return nil, errors.NewValidationError("scan.bars", s, "at least one bar required")
	}
	return out, nil
}
