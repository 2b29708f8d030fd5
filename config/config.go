package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"gopkg.in/yaml.v3"
)

// Storage backends understood by the daemon.
const (
	BackendLevelDB = "leveldb"
	BackendMemory  = "memory"
)

// Config captures the runtime settings for the marketplace daemon.
type Config struct {
	ListenAddress  string                     `toml:"ListenAddress" yaml:"listen"`
	DataDir        string                     `toml:"DataDir" yaml:"data_dir"`
	StorageBackend string                     `toml:"StorageBackend" yaml:"storage_backend"`
	IndexDSN       string                     `toml:"IndexDSN" yaml:"index_dsn"`
	PlatformFeePct uint8                      `toml:"PlatformFeePct" yaml:"platform_fee_pct"`
	AdminAddress   string                     `toml:"AdminAddress" yaml:"admin_address"`
	Env            string                     `toml:"Env" yaml:"env"`
	LogLevel       string                     `toml:"LogLevel" yaml:"log_level"`
	LogFile        LogFileConfig              `toml:"logfile" yaml:"log_file"`
	ReadTimeout    Duration                   `toml:"ReadTimeout" yaml:"read_timeout"`
	WriteTimeout   Duration                   `toml:"WriteTimeout" yaml:"write_timeout"`
	Auth           AuthConfig                 `toml:"auth" yaml:"auth"`
	RateLimits     map[string]RateLimitConfig `toml:"ratelimits" yaml:"rate_limits"`
	Telemetry      TelemetryConfig            `toml:"telemetry" yaml:"telemetry"`
	CORS           CORSConfig                 `toml:"cors" yaml:"cors"`
}

// LogFileConfig enables a rotated log file in addition to stdout.
type LogFileConfig struct {
	Path       string `toml:"Path" yaml:"path"`
	MaxSizeMB  int    `toml:"MaxSizeMB" yaml:"max_size_mb"`
	MaxBackups int    `toml:"MaxBackups" yaml:"max_backups"`
	MaxAgeDays int    `toml:"MaxAgeDays" yaml:"max_age_days"`
}

// AuthConfig controls bearer token verification on the HTTP surface.
type AuthConfig struct {
	Enabled    bool     `toml:"Enabled" yaml:"enabled"`
	HMACSecret string   `toml:"HMACSecret" yaml:"hmac_secret"`
	Issuer     string   `toml:"Issuer" yaml:"issuer"`
	Audience   string   `toml:"Audience" yaml:"audience"`
	ScopeClaim string   `toml:"ScopeClaim" yaml:"scope_claim"`
	ClockSkew  Duration `toml:"ClockSkew" yaml:"clock_skew"`
}

// RateLimitConfig describes one token bucket. Tokens maps "METHOD /path" to
// the cost of a request.
type RateLimitConfig struct {
	RatePerSecond     float64        `toml:"RatePerSecond" yaml:"rate_per_second"`
	RequestsPerMinute float64        `toml:"RequestsPerMinute" yaml:"requests_per_minute"`
	Burst             int            `toml:"Burst" yaml:"burst"`
	DefaultTokens     int            `toml:"DefaultTokens" yaml:"default_tokens"`
	Tokens            map[string]int `toml:"Tokens" yaml:"tokens"`
}

// Rate returns the configured refill rate in tokens per second.
func (r RateLimitConfig) Rate() float64 {
	if r.RatePerSecond > 0 {
		return r.RatePerSecond
	}
	if r.RequestsPerMinute > 0 {
		return r.RequestsPerMinute / 60.0
	}
	return 0
}

// TelemetryConfig configures the OTLP exporters.
type TelemetryConfig struct {
	Endpoint string            `toml:"Endpoint" yaml:"endpoint"`
	Insecure bool              `toml:"Insecure" yaml:"insecure"`
	Headers  map[string]string `toml:"Headers" yaml:"headers"`
	Traces   bool              `toml:"Traces" yaml:"traces"`
	Metrics  bool              `toml:"Metrics" yaml:"metrics"`
	// SampleRatio keeps this fraction of root spans; 0 keeps all of them.
	SampleRatio    float64  `toml:"SampleRatio" yaml:"sample_ratio"`
	MetricInterval Duration `toml:"MetricInterval" yaml:"metric_interval"`
}

type CORSConfig struct {
	AllowedOrigins   []string `toml:"AllowedOrigins" yaml:"allowed_origins"`
	AllowCredentials bool     `toml:"AllowCredentials" yaml:"allow_credentials"`
}

// Duration decodes values such as "15s" from either file format.
type Duration struct {
	time.Duration
}

func (d *Duration) UnmarshalText(text []byte) error {
	trimmed := strings.TrimSpace(string(text))
	if trimmed == "" {
		d.Duration = 0
		return nil
	}
	parsed, err := time.ParseDuration(trimmed)
	if err != nil {
		return fmt.Errorf("invalid duration %q: %w", trimmed, err)
	}
	d.Duration = parsed
	return nil
}

func (d Duration) MarshalText() ([]byte, error) {
	return []byte(d.Duration.String()), nil
}

func (d *Duration) UnmarshalYAML(node *yaml.Node) error {
	return d.UnmarshalText([]byte(node.Value))
}

// Default returns the configuration written when no file exists yet.
func Default() *Config {
	return &Config{
		ListenAddress:  ":8080",
		DataDir:        "./market-data",
		StorageBackend: BackendLevelDB,
		IndexDSN:       "",
		PlatformFeePct: 5,
		AdminAddress:   "",
		Env:            "dev",
		LogLevel:       "info",
		LogFile:        LogFileConfig{MaxSizeMB: 100, MaxBackups: 5, MaxAgeDays: 30},
		ReadTimeout:    Duration{15 * time.Second},
		WriteTimeout:   Duration{15 * time.Second},
		Auth: AuthConfig{
			ScopeClaim: "scope",
			ClockSkew:  Duration{30 * time.Second},
		},
		RateLimits: map[string]RateLimitConfig{
			"market": {RatePerSecond: 5, Burst: 20},
			"admin":  {RatePerSecond: 1, Burst: 5},
		},
		Telemetry: TelemetryConfig{Insecure: true},
		CORS:      CORSConfig{AllowedOrigins: []string{"*"}},
	}
}

// Load reads the configuration at path. Files ending in .yaml or .yml are
// decoded as YAML, everything else as TOML. A missing file is created with
// the defaults in TOML form.
func Load(path string) (*Config, error) {
	if strings.TrimSpace(path) == "" {
		return nil, fmt.Errorf("config path required")
	}
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return createDefault(path)
	}

	cfg := Default()
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		file, err := os.Open(path)
		if err != nil {
			return nil, fmt.Errorf("open config: %w", err)
		}
		defer file.Close()
		if err := yaml.NewDecoder(file).Decode(cfg); err != nil {
			return nil, fmt.Errorf("decode config: %w", err)
		}
	default:
		meta, err := toml.DecodeFile(path, cfg)
		if err != nil {
			return nil, fmt.Errorf("decode config: %w", err)
		}
		if undecoded := meta.Undecoded(); len(undecoded) > 0 {
			return nil, fmt.Errorf("config file %s has unknown key %s", path, undecoded[0])
		}
	}

	cfg.normalize()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (cfg *Config) normalize() {
	cfg.ListenAddress = strings.TrimSpace(cfg.ListenAddress)
	cfg.StorageBackend = strings.ToLower(strings.TrimSpace(cfg.StorageBackend))
	if cfg.StorageBackend == "" {
		cfg.StorageBackend = BackendLevelDB
	}
	cfg.AdminAddress = strings.TrimSpace(cfg.AdminAddress)
	cfg.Env = strings.TrimSpace(cfg.Env)
	cfg.IndexDSN = strings.TrimSpace(cfg.IndexDSN)
	if strings.TrimSpace(cfg.Auth.ScopeClaim) == "" {
		cfg.Auth.ScopeClaim = "scope"
	}
	if cfg.RateLimits == nil {
		cfg.RateLimits = map[string]RateLimitConfig{}
	}
}

// createDefault creates and saves a default configuration file.
func createDefault(path string) (*Config, error) {
	cfg := Default()
	if err := persist(path, cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

func persist(path string, cfg *Config) error {
	dir := filepath.Dir(path)
	if dir != "." && dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return err
		}
	}
	f, err := os.OpenFile(path, os.O_WRONLY|os.O_TRUNC|os.O_CREATE, 0o644)
	if err != nil {
		return err
	}
	defer f.Close()

	return toml.NewEncoder(f).Encode(cfg)
}
