package config

import (
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"time"
	_ "time/tzdata" // facility zones must resolve on hosts without zoneinfo

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"github.com/linkcomfort/linkcomfort/pkg/score"
)

// Default values applied when fields are absent from the config file.
const (
	DefaultConfigPath        = "config.yaml"
	DefaultOpenHour          = 9
	DefaultCloseHour         = 22
	DefaultTimezone          = "Local"
	DefaultCommand           = "speedtest"
	DefaultCommandTimeoutSec = 120
	DefaultRetryCount        = 3
	DefaultRetryWaitSec      = 10
	DefaultDBPath            = "data/linkcomfort.db"
	DefaultRetentionDays     = 90
	DefaultReportDays        = 28
	DefaultRecentHours       = 24
	DefaultOutputDir         = "assets"
	DefaultGranularity       = "hourly"
	DefaultServerAddr        = ":8080"
	DefaultStreamIntervalSec = 60
	DefaultAuthHeader        = "X-API-Key"
)

// EnvConfigPath names the environment variable that overrides the default
// config file location.
const EnvConfigPath = "LINKCOMFORT_CONFIG"

// DefaultArgs are passed to the Ookla CLI so it emits one JSON document and
// never blocks on an interactive license prompt.
var DefaultArgs = []string{"--format=json", "--accept-license", "--accept-gdpr"}

// Config is the top-level configuration shared by the collector and reporter.
// Fields map 1:1 to config.example.yaml.
type Config struct {
	Facility    FacilityConfig    `yaml:"facility"`
	Measurement MeasurementConfig `yaml:"measurement"`
	Storage     StorageConfig     `yaml:"storage"`
	Scoring     score.Config      `yaml:"scoring"`
	Report      ReportConfig      `yaml:"report"`
	Server      ServerConfig      `yaml:"server"`
	Metrics     MetricsConfig     `yaml:"metrics"`
}

// FacilityConfig describes the monitored site's operating hours.
type FacilityConfig struct {
	// OpenHour is the first local hour (0–23) inside operating hours.
	OpenHour int `yaml:"open_hour"`

	// CloseHour is the first local hour (1–24) after operating hours.
	// An hour h is within operating hours iff OpenHour <= h < CloseHour.
	CloseHour int `yaml:"close_hour"`

	// Timezone is an IANA zone name used for every hour-of-day and
	// calendar-date computation. "Local" uses the host zone.
	Timezone string `yaml:"timezone"`
}

// Within reports whether a local hour-of-day falls inside operating hours.
func (f FacilityConfig) Within(hour int) bool {
	return f.OpenHour <= hour && hour < f.CloseHour
}

// Location resolves Timezone. Validate guarantees it loads.
func (f FacilityConfig) Location() *time.Location {
	loc, err := time.LoadLocation(f.Timezone)
	if err != nil {
		return time.Local
	}
	return loc
}

// MeasurementConfig controls how the external speed-test command is run.
type MeasurementConfig struct {
	// Command is the executable name or path of the measurement CLI.
	Command string `yaml:"command"`

	// Args are passed to Command verbatim.
	Args []string `yaml:"args"`

	// CommandTimeoutSec bounds a single attempt.
	CommandTimeoutSec int `yaml:"command_timeout_sec"`

	// RetryCount is the number of additional attempts after the first failure.
	RetryCount int `yaml:"retry_count"`

	// RetryWaitSec is the fixed delay between attempts.
	RetryWaitSec int `yaml:"retry_wait_sec"`
}

// Timeout returns CommandTimeoutSec as a duration.
func (m MeasurementConfig) Timeout() time.Duration {
	return time.Duration(m.CommandTimeoutSec) * time.Second
}

// RetryWait returns RetryWaitSec as a duration.
func (m MeasurementConfig) RetryWait() time.Duration {
	return time.Duration(m.RetryWaitSec) * time.Second
}

// StorageConfig configures the SQLite sample store.
type StorageConfig struct {
	// Path is the filesystem path of the SQLite database file.
	Path string `yaml:"path"`

	// RetentionDays is the maximum sample age before hard deletion.
	RetentionDays int `yaml:"retention_days"`
}

// ReportConfig controls report generation.
type ReportConfig struct {
	// Days is the heatmap window length.
	Days int `yaml:"days"`

	// RecentHours is the trend panel window length.
	RecentHours int `yaml:"recent_hours"`

	// OutputDir receives generated images when no explicit path is given.
	OutputDir string `yaml:"output_dir"`

	// Granularity selects the default file name: daily (YYYY-MM-DD.png)
	// or hourly (YYYY-MM-DD_HH00.png).
	Granularity string `yaml:"granularity"`
}

// ServerConfig configures `reporter serve`.
type ServerConfig struct {
	Addr string `yaml:"addr"`

	// StreamIntervalSec is how often the WebSocket stream pushes a fresh
	// summary to connected clients.
	StreamIntervalSec int `yaml:"stream_interval_sec"`

	// Auth protects the /api/v1 and /ws endpoints.
	Auth AuthConfig `yaml:"auth"`
}

// StreamInterval returns StreamIntervalSec as a duration.
func (s ServerConfig) StreamInterval() time.Duration {
	return time.Duration(s.StreamIntervalSec) * time.Second
}

// AuthConfig controls client authentication for `reporter serve`.
type AuthConfig struct {
	// Mode is one of: apikey | none.
	Mode string `yaml:"mode"`

	// KeyEnv is the name of the environment variable that holds the expected
	// API key. Used when Mode == "apikey".
	KeyEnv string `yaml:"key_env"`

	// Header is the HTTP header to read the key from. Defaults to X-API-Key.
	Header string `yaml:"header"`
}

// Key returns the expected API key resolved from the environment.
func (a AuthConfig) Key() string {
	if a.KeyEnv == "" {
		return ""
	}
	return os.Getenv(a.KeyEnv)
}

// ResolveKey returns the expected API key. In apikey mode an unset or empty
// key_env variable is an error; in other modes the key is "".
func (a AuthConfig) ResolveKey() (string, error) {
	if a.Mode != "apikey" {
		return "", nil
	}
	key := a.Key()
	if key == "" {
		return "", fmt.Errorf("config: auth: mode apikey but $%s is empty", a.KeyEnv)
	}
	return key, nil
}

// EffectiveHeader returns the configured header name, or DefaultAuthHeader.
func (a AuthConfig) EffectiveHeader() string {
	if a.Header != "" {
		return a.Header
	}
	return DefaultAuthHeader
}

// MetricsConfig configures collector metrics output.
type MetricsConfig struct {
	// Textfile is where each collector run writes its Prometheus metrics,
	// typically inside node_exporter's textfile directory. Empty disables it.
	Textfile string `yaml:"textfile"`
}

// Load reads and parses the YAML config file at path.
// Missing optional fields are filled with sensible defaults.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("config: read file: %w", err)
	}

	cfg := Defaults()
	// Drop the default args so a configured list replaces rather than
	// appends; restored below when the file does not set any.
	cfg.Measurement.Args = nil
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("config: parse yaml: %w", err)
	}
	if cfg.Measurement.Args == nil {
		cfg.Measurement.Args = append([]string(nil), DefaultArgs...)
	}

	if err := validate(cfg); err != nil {
		return nil, fmt.Errorf("config: %w", err)
	}

	return cfg, nil
}

// Resolve loads .env (if present) and picks the config file: the explicit
// path when non-empty, else $LINKCOMFORT_CONFIG, else config.yaml.
//
// Only the implicit default may be absent, in which case built-in defaults
// are used. A missing explicitly requested file is an error.
func Resolve(explicit string) (*Config, string, error) {
	if err := loadDotEnv(); err != nil {
		return nil, "", fmt.Errorf("config: load .env: %w", err)
	}

	path := explicit
	if path == "" {
		path = os.Getenv(EnvConfigPath)
	}
	if path != "" {
		cfg, err := Load(path)
		return cfg, path, err
	}

	cfg, err := Load(DefaultConfigPath)
	if errors.Is(err, fs.ErrNotExist) {
		slog.Warn("config: file not found, using defaults", "path", DefaultConfigPath)
		return Defaults(), "", nil
	}
	return cfg, DefaultConfigPath, err
}

// Defaults returns a Config pre-populated with default values.
func Defaults() *Config {
	return &Config{
		Facility: FacilityConfig{
			OpenHour:  DefaultOpenHour,
			CloseHour: DefaultCloseHour,
			Timezone:  DefaultTimezone,
		},
		Measurement: MeasurementConfig{
			Command:           DefaultCommand,
			Args:              append([]string(nil), DefaultArgs...),
			CommandTimeoutSec: DefaultCommandTimeoutSec,
			RetryCount:        DefaultRetryCount,
			RetryWaitSec:      DefaultRetryWaitSec,
		},
		Storage: StorageConfig{
			Path:          DefaultDBPath,
			RetentionDays: DefaultRetentionDays,
		},
		Scoring: score.DefaultConfig(),
		Report: ReportConfig{
			Days:        DefaultReportDays,
			RecentHours: DefaultRecentHours,
			OutputDir:   DefaultOutputDir,
			Granularity: DefaultGranularity,
		},
		Server: ServerConfig{
			Addr:              DefaultServerAddr,
			StreamIntervalSec: DefaultStreamIntervalSec,
			Auth:              AuthConfig{Mode: "none"},
		},
	}
}

// validate checks required fields and structural constraints.
func validate(cfg *Config) error {
	f := cfg.Facility
	if f.OpenHour < 0 || f.OpenHour > 23 {
		return fmt.Errorf("facility.open_hour %d is out of range [0, 23]", f.OpenHour)
	}
	if f.CloseHour < 1 || f.CloseHour > 24 {
		return fmt.Errorf("facility.close_hour %d is out of range [1, 24]", f.CloseHour)
	}
	if f.OpenHour >= f.CloseHour {
		return fmt.Errorf("facility.open_hour (%d) must be before close_hour (%d)", f.OpenHour, f.CloseHour)
	}
	if _, err := time.LoadLocation(f.Timezone); err != nil {
		return fmt.Errorf("facility.timezone %q: %w", f.Timezone, err)
	}

	m := cfg.Measurement
	if m.Command == "" {
		return fmt.Errorf("measurement.command is required")
	}
	if m.CommandTimeoutSec <= 0 {
		return fmt.Errorf("measurement.command_timeout_sec must be positive")
	}
	if m.RetryCount < 0 {
		return fmt.Errorf("measurement.retry_count must not be negative")
	}
	if m.RetryWaitSec < 0 {
		return fmt.Errorf("measurement.retry_wait_sec must not be negative")
	}

	if cfg.Storage.Path == "" {
		return fmt.Errorf("storage.path is required")
	}
	if cfg.Storage.RetentionDays <= 0 {
		return fmt.Errorf("storage.retention_days must be positive")
	}

	if err := cfg.Scoring.Validate(); err != nil {
		return err
	}

	if cfg.Report.Days <= 0 {
		return fmt.Errorf("report.days must be positive")
	}
	if cfg.Report.RecentHours <= 0 {
		return fmt.Errorf("report.recent_hours must be positive")
	}
	switch cfg.Report.Granularity {
	case "daily", "hourly":
	default:
		return fmt.Errorf("report.granularity %q unknown: want daily|hourly", cfg.Report.Granularity)
	}

	if cfg.Server.StreamIntervalSec <= 0 {
		return fmt.Errorf("server.stream_interval_sec must be positive")
	}
	switch cfg.Server.Auth.Mode {
	case "apikey", "none", "":
	default:
		return fmt.Errorf("server.auth.mode %q unknown: want apikey|none", cfg.Server.Auth.Mode)
	}
	if cfg.Server.Auth.Mode == "apikey" && cfg.Server.Auth.KeyEnv == "" {
		return fmt.Errorf("server.auth.key_env is required when mode is apikey")
	}
	return nil
}

func loadDotEnv() error {
	if _, err := os.Stat(".env"); err == nil {
		return godotenv.Load(".env")
	}
	return nil
}
