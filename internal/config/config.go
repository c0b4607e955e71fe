// Package config loads policybench configuration from a YAML file,
// POLICYSTACK_* environment variables and built-in defaults.
package config

import (
	"os"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/pkg/errors"
	"github.com/spf13/viper"
)

// EnvPrefix prefixes every environment override, e.g. POLICYSTACK_POLICY_STACK.
const EnvPrefix = "POLICYSTACK"

// Config is the complete policybench configuration.
type Config struct {
	// Logging controls the structured logger
	Logging LoggingConfig `mapstructure:"logging" yaml:"logging"`

	// Policy selects and sizes the policy stack
	Policy PolicyConfig `mapstructure:"policy" yaml:"policy"`

	// Workload shapes the synthetic access stream
	Workload WorkloadConfig `mapstructure:"workload" yaml:"workload"`

	// Metrics exposes Prometheus metrics over HTTP
	Metrics MetricsConfig `mapstructure:"metrics" yaml:"metrics"`

	// Store is where mappings and hints are persisted between runs
	Store StoreConfig `mapstructure:"store" yaml:"store"`
}

// LoggingConfig controls the logger.
type LoggingConfig struct {
	Level  string `mapstructure:"level" validate:"required,oneof=DEBUG INFO WARN ERROR debug info warn error" yaml:"level"`
	Format string `mapstructure:"format" validate:"required,oneof=text json" yaml:"format"`
	Output string `mapstructure:"output" validate:"required" yaml:"output"`
}

// PolicyConfig describes the stack under test.
type PolicyConfig struct {
	// Stack is a policy spec such as "era+stats+lru"
	Stack        string `mapstructure:"stack" validate:"required" yaml:"stack"`
	CacheBlocks  uint32 `mapstructure:"cache_blocks" validate:"required,gt=0" yaml:"cache_blocks"`
	OriginBlocks uint64 `mapstructure:"origin_blocks" validate:"required,gt=0" yaml:"origin_blocks"`
	// BlockSize is in 512-byte sectors
	BlockSize uint32 `mapstructure:"block_size" validate:"required,gt=0" yaml:"block_size"`
	// MigrationThreshold, when set, is pushed to the terminal on startup
	MigrationThreshold uint32 `mapstructure:"migration_threshold" validate:"omitempty,min=1" yaml:"migration_threshold"`
}

// WorkloadConfig shapes the synthetic workload.
type WorkloadConfig struct {
	Duration   time.Duration `mapstructure:"duration" validate:"required,gt=0" yaml:"duration"`
	Workers    int           `mapstructure:"workers" validate:"required,min=1" yaml:"workers"`
	WriteRatio float64       `mapstructure:"write_ratio" validate:"gte=0,lte=1" yaml:"write_ratio"`
	// ZipfS and ZipfV parameterize math/rand.NewZipf (s > 1, v >= 1)
	ZipfS float64 `mapstructure:"zipf_s" validate:"gt=1" yaml:"zipf_s"`
	ZipfV float64 `mapstructure:"zipf_v" validate:"gte=1" yaml:"zipf_v"`
	// EraInterval bumps the era counter periodically (0 disables)
	EraInterval time.Duration `mapstructure:"era_interval" validate:"gte=0" yaml:"era_interval"`
	// UnmapLag unmaps blocks older than current era minus lag after each bump (0 disables)
	UnmapLag     uint32        `mapstructure:"unmap_lag" yaml:"unmap_lag"`
	TickInterval time.Duration `mapstructure:"tick_interval" validate:"gte=0" yaml:"tick_interval"`
	// Seed for the per-worker generators; 0 picks one from the clock
	Seed int64 `mapstructure:"seed" yaml:"seed"`
}

// MetricsConfig controls the Prometheus endpoint.
type MetricsConfig struct {
	Enabled bool   `mapstructure:"enabled" yaml:"enabled"`
	Addr    string `mapstructure:"addr" validate:"required_if=Enabled true" yaml:"addr"`
}

// StoreConfig controls persistence. An empty Dir keeps the store in memory.
type StoreConfig struct {
	Dir     string `mapstructure:"dir" yaml:"dir"`
	Restore bool   `mapstructure:"restore" yaml:"restore"`
	// CheckpointInterval saves mappings while the workload runs (0 saves only at exit)
	CheckpointInterval time.Duration `mapstructure:"checkpoint_interval" validate:"gte=0" yaml:"checkpoint_interval"`
}

// Load loads configuration from file, environment, and defaults.
//
// Configuration precedence (highest to lowest):
//  1. Environment variables (POLICYSTACK_*)
//  2. Configuration file (skipped when path is empty or missing)
//  3. Default values
func Load(path string) (*Config, error) {
	v := viper.New()
	setDefaults(v)

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			if _, ok := err.(viper.ConfigFileNotFoundError); !ok && !os.IsNotExist(err) {
				return nil, errors.Wrapf(err, "read config %q", path)
			}
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, errors.Wrap(err, "unmarshal config")
	}
	cfg.Logging.Level = strings.ToUpper(cfg.Logging.Level)

	if err := Validate(&cfg); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate checks struct constraints.
func Validate(cfg *Config) error {
	validate := validator.New(validator.WithRequiredStructEnabled())
	if err := validate.Struct(cfg); err != nil {
		return errors.Wrap(err, "configuration validation failed")
	}
	return nil
}

// Default returns the configuration used when nothing is overridden.
func Default() *Config {
	v := viper.New()
	setDefaults(v)
	var cfg Config
	// defaults always decode
	_ = v.Unmarshal(&cfg)
	return &cfg
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("logging.level", "INFO")
	v.SetDefault("logging.format", "text")
	v.SetDefault("logging.output", "stderr")

	v.SetDefault("policy.stack", "era+stats+lru")
	v.SetDefault("policy.cache_blocks", 4096)
	v.SetDefault("policy.origin_blocks", 1<<20)
	v.SetDefault("policy.block_size", 128)
	v.SetDefault("policy.migration_threshold", 0)

	v.SetDefault("workload.duration", "10s")
	v.SetDefault("workload.workers", 4)
	v.SetDefault("workload.write_ratio", 0.2)
	v.SetDefault("workload.zipf_s", 1.1)
	v.SetDefault("workload.zipf_v", 1.0)
	v.SetDefault("workload.era_interval", "1s")
	v.SetDefault("workload.unmap_lag", 0)
	v.SetDefault("workload.tick_interval", "500ms")
	v.SetDefault("workload.seed", 0)

	v.SetDefault("metrics.enabled", false)
	v.SetDefault("metrics.addr", ":9090")

	v.SetDefault("store.dir", "")
	v.SetDefault("store.restore", false)
	v.SetDefault("store.checkpoint_interval", "0s")
}
