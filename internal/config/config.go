package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strings"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"
)

// DefaultPath is the config file picked up from the working directory.
const DefaultPath = "vra.yaml"

// Config represents the top-level vra.yaml configuration.
type Config struct {
	Store     StoreConfig     `yaml:"store" mapstructure:"store"`
	Matching  MatchingConfig  `yaml:"matching" mapstructure:"matching"`
	Reconcile ReconcileConfig `yaml:"reconcile" mapstructure:"reconcile"`
	Proofs    ProofsConfig    `yaml:"proofs" mapstructure:"proofs"`
	Backfill  BackfillConfig  `yaml:"backfill" mapstructure:"backfill"`
	Import    ImportConfig    `yaml:"import" mapstructure:"import"`
	Analytics AnalyticsConfig `yaml:"analytics" mapstructure:"analytics"`
	Tracing   TracingConfig   `yaml:"tracing" mapstructure:"tracing"`
	Log       LogConfig       `yaml:"log" mapstructure:"log"`
}

// StoreConfig selects the database driver ("sqlite" or "pgx") and DSN.
type StoreConfig struct {
	Driver string `yaml:"driver" mapstructure:"driver"`
	DSN    string `yaml:"dsn" mapstructure:"dsn"`
}

// MatchingConfig tunes the matching engine.
type MatchingConfig struct {
	TimeWindowSec   int     `yaml:"time_window_sec" mapstructure:"time_window_sec"`
	AutoThreshold   float64 `yaml:"auto_threshold" mapstructure:"auto_threshold"`
	ReviewThreshold float64 `yaml:"review_threshold" mapstructure:"review_threshold"`
}

// ReconcileConfig holds the anomaly thresholds.
type ReconcileConfig struct {
	FXBandPct        float64 `yaml:"fx_band_pct" mapstructure:"fx_band_pct"`
	ViewabilityGapPP float64 `yaml:"viewability_gap_pp" mapstructure:"viewability_gap_pp"`
	BaselineDays     int     `yaml:"baseline_days" mapstructure:"baseline_days"`
	MaxWindowHours   int     `yaml:"max_window_hours" mapstructure:"max_window_hours"`
	Currency         string  `yaml:"currency" mapstructure:"currency"`
}

// ProofsConfig holds the digest signing material. SigningKey is a base64
// ed25519 private key; SigningSecret is used to derive one when no key is set.
type ProofsConfig struct {
	SigningKey    string `yaml:"signing_key,omitempty" mapstructure:"signing_key"`
	SigningSecret string `yaml:"signing_secret,omitempty" mapstructure:"signing_secret"`
}

// BackfillConfig controls the batch orchestrator. CheckpointRedisURL, when
// set, keeps the checkpoint in Redis instead of CheckpointPath.
type BackfillConfig struct {
	CheckpointPath     string  `yaml:"checkpoint_path" mapstructure:"checkpoint_path"`
	CheckpointRedisURL string  `yaml:"checkpoint_redis_url,omitempty" mapstructure:"checkpoint_redis_url"`
	WindowHours        int     `yaml:"window_hours" mapstructure:"window_hours"`
	StagesPerSec       float64 `yaml:"stages_per_sec" mapstructure:"stages_per_sec"`
	RunLogPath         string  `yaml:"run_log_path" mapstructure:"run_log_path"`
}

// ImportConfig restricts which ad networks may be imported. An empty
// allowlist accepts every network.
type ImportConfig struct {
	AllowedNetworks []string `yaml:"allowed_networks" mapstructure:"allowed_networks"`
}

// AnalyticsConfig points signal samples at a ClickHouse rollup. Empty keeps
// them in the relational store.
type AnalyticsConfig struct {
	ClickHouseDSN string `yaml:"clickhouse_dsn,omitempty" mapstructure:"clickhouse_dsn"`
}

// TracingConfig exports run spans over OTLP/HTTP when an endpoint is set.
type TracingConfig struct {
	OTLPEndpoint string `yaml:"otlp_endpoint,omitempty" mapstructure:"otlp_endpoint"`
	Insecure     bool   `yaml:"insecure,omitempty" mapstructure:"insecure"`
}

// LogConfig controls structured logging.
type LogConfig struct {
	Level  string `yaml:"level" mapstructure:"level"`
	Format string `yaml:"format" mapstructure:"format"` // "json" or "text"
}

// Default returns a Config with the documented defaults.
func Default() *Config {
	return &Config{
		Store: StoreConfig{
			Driver: "sqlite",
			DSN:    ".vra/vra.db",
		},
		Matching: MatchingConfig{
			TimeWindowSec:   3600,
			AutoThreshold:   0.8,
			ReviewThreshold: 0.5,
		},
		Reconcile: ReconcileConfig{
			FXBandPct:        2.0,
			ViewabilityGapPP: 10.0,
			BaselineDays:     28,
			MaxWindowHours:   72,
			Currency:         "USD",
		},
		Backfill: BackfillConfig{
			CheckpointPath: ".vra/backfill-checkpoint.yaml",
			WindowHours:    24,
			StagesPerSec:   5,
			RunLogPath:     ".vra/run-log.csv",
		},
		Import: ImportConfig{
			AllowedNetworks: []string{},
		},
		Log: LogConfig{
			Level:  "info",
			Format: "text",
		},
	}
}

// envBindings maps config keys to the environment variables operators set.
var envBindings = map[string]string{
	"store.driver":                  "VRA_DB_DRIVER",
	"store.dsn":                     "VRA_DB_DSN",
	"matching.time_window_sec":      "VRA_MATCH_TIME_WINDOW_SEC",
	"matching.auto_threshold":       "VRA_MATCH_AUTO_THRESHOLD",
	"matching.review_threshold":     "VRA_MATCH_REVIEW_THRESHOLD",
	"reconcile.fx_band_pct":         "VRA_FX_BAND_PCT",
	"reconcile.viewability_gap_pp":  "VRA_VIEWABILITY_GAP_PP",
	"reconcile.baseline_days":       "VRA_BASELINE_DAYS",
	"reconcile.max_window_hours":    "VRA_MAX_WINDOW_HOURS",
	"reconcile.currency":            "VRA_CURRENCY",
	"proofs.signing_key":            "VRA_PROOF_SIGNING_KEY",
	"proofs.signing_secret":         "VRA_PROOF_SIGNING_SECRET",
	"backfill.checkpoint_path":      "VRA_CHECKPOINT_PATH",
	"backfill.checkpoint_redis_url": "VRA_CHECKPOINT_REDIS_URL",
	"backfill.window_hours":         "VRA_BACKFILL_WINDOW_HOURS",
	"backfill.stages_per_sec":       "VRA_BACKFILL_STAGES_PER_SEC",
	"backfill.run_log_path":         "VRA_RUN_LOG",
	"import.allowed_networks":       "VRA_ALLOWED_NETWORKS",
	"analytics.clickhouse_dsn":      "VRA_CLICKHOUSE_DSN",
	"tracing.otlp_endpoint":         "VRA_OTLP_ENDPOINT",
	"tracing.insecure":              "VRA_OTLP_INSECURE",
	"log.level":                     "VRA_LOG_LEVEL",
	"log.format":                    "VRA_LOG_FORMAT",
}

// Load builds a Config from defaults, an optional YAML file, a .env file in
// the working directory, and VRA_* environment variables (highest precedence).
// An empty path skips the file.
func Load(path string) (*Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("loading .env: %w", err)
	}

	v := viper.New()
	setDefaults(v, Default())

	for key, env := range envBindings {
		if err := v.BindEnv(key, env); err != nil {
			return nil, fmt.Errorf("binding %s: %w", env, err)
		}
	}

	if path != "" {
		if _, err := os.Stat(path); err != nil {
			return nil, fmt.Errorf("reading config: %w", err)
		}
		v.SetConfigFile(path)
		v.SetConfigType("yaml")
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("parsing config: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("decoding config: %w", err)
	}
	cfg.Store.Driver = strings.ToLower(cfg.Store.Driver)
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate rejects configurations the engines cannot run with.
func (c *Config) Validate() error {
	switch c.Store.Driver {
	case "sqlite", "pgx":
	default:
		return fmt.Errorf("config: unknown store driver %q", c.Store.Driver)
	}
	if c.Matching.TimeWindowSec <= 0 {
		return fmt.Errorf("config: matching.time_window_sec must be positive, got %d", c.Matching.TimeWindowSec)
	}
	if c.Matching.ReviewThreshold > c.Matching.AutoThreshold {
		return fmt.Errorf("config: review threshold %.2f above auto threshold %.2f",
			c.Matching.ReviewThreshold, c.Matching.AutoThreshold)
	}
	if c.Reconcile.FXBandPct < 0 || c.Reconcile.ViewabilityGapPP < 0 {
		return fmt.Errorf("config: reconcile thresholds must not be negative")
	}
	if c.Reconcile.MaxWindowHours <= 0 {
		return fmt.Errorf("config: reconcile.max_window_hours must be positive")
	}
	return nil
}

// Save writes a Config to a YAML file.
func Save(path string, cfg *Config) error {
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("marshaling config: %w", err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("writing config: %w", err)
	}
	return nil
}

func setDefaults(v *viper.Viper, cfg *Config) {
	v.SetDefault("store.driver", cfg.Store.Driver)
	v.SetDefault("store.dsn", cfg.Store.DSN)
	v.SetDefault("matching.time_window_sec", cfg.Matching.TimeWindowSec)
	v.SetDefault("matching.auto_threshold", cfg.Matching.AutoThreshold)
	v.SetDefault("matching.review_threshold", cfg.Matching.ReviewThreshold)
	v.SetDefault("reconcile.fx_band_pct", cfg.Reconcile.FXBandPct)
	v.SetDefault("reconcile.viewability_gap_pp", cfg.Reconcile.ViewabilityGapPP)
	v.SetDefault("reconcile.baseline_days", cfg.Reconcile.BaselineDays)
	v.SetDefault("reconcile.max_window_hours", cfg.Reconcile.MaxWindowHours)
	v.SetDefault("reconcile.currency", cfg.Reconcile.Currency)
	v.SetDefault("proofs.signing_key", cfg.Proofs.SigningKey)
	v.SetDefault("proofs.signing_secret", cfg.Proofs.SigningSecret)
	v.SetDefault("backfill.checkpoint_path", cfg.Backfill.CheckpointPath)
	v.SetDefault("backfill.checkpoint_redis_url", cfg.Backfill.CheckpointRedisURL)
	v.SetDefault("backfill.window_hours", cfg.Backfill.WindowHours)
	v.SetDefault("backfill.stages_per_sec", cfg.Backfill.StagesPerSec)
	v.SetDefault("backfill.run_log_path", cfg.Backfill.RunLogPath)
	v.SetDefault("import.allowed_networks", cfg.Import.AllowedNetworks)
	v.SetDefault("analytics.clickhouse_dsn", cfg.Analytics.ClickHouseDSN)
	v.SetDefault("tracing.otlp_endpoint", cfg.Tracing.OTLPEndpoint)
	v.SetDefault("tracing.insecure", cfg.Tracing.Insecure)
	v.SetDefault("log.level", cfg.Log.Level)
	v.SetDefault("log.format", cfg.Log.Format)
}
