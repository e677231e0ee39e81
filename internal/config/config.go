// Package config loads the settings of the s3transfer command.
//
// Values are resolved in order of precedence: command-line flags, environment
// variables prefixed with S3TRANSFER_, an optional config file and defaults.
package config

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

// EnvPrefix is the prefix of environment variables read by Load.
const EnvPrefix = "S3TRANSFER"

// Config holds the command configuration.
type Config struct {
	Region         string        `mapstructure:"region"`
	Endpoint       string        `mapstructure:"endpoint"         validate:"omitempty,url"`
	ForcePathStyle bool          `mapstructure:"force_path_style"`
	MaxRetries     int           `mapstructure:"max_retries"      validate:"gte=0,lte=20"`
	Timeout        time.Duration `mapstructure:"timeout"          validate:"gte=0"`

	// PartSize is in bytes; 0 lets the planner choose
	PartSize int64 `mapstructure:"part_size" validate:"gte=0"`
	TaskNum  int   `mapstructure:"task_num"  validate:"gte=1,lte=1000"`

	// CheckpointDir holds one checkpoint file per transfer
	CheckpointDir string `mapstructure:"checkpoint_dir"`
	NoCheckpoint  bool   `mapstructure:"no_checkpoint"`
	StrictResume  bool   `mapstructure:"strict_resume"`

	// RateLimit is in bytes per second; 0 disables throttling
	RateLimit int64 `mapstructure:"rate_limit" validate:"gte=0"`

	LogLevel string `mapstructure:"log_level" validate:"oneof=debug info warn error"`
	Quiet    bool   `mapstructure:"quiet"`
}

// keys lists every setting; flags are bound under the same name with dashes.
var keys = []string{
	"region", "endpoint", "force_path_style", "max_retries", "timeout",
	"part_size", "task_num", "checkpoint_dir", "no_checkpoint", "strict_resume",
	"rate_limit", "log_level", "quiet",
}

// Load resolves the configuration. configFile may be empty.
func Load(configFile string, flags *pflag.FlagSet) (*Config, error) {
	v := viper.New()
	setDefaults(v)

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	v.AutomaticEnv()

	if configFile != "" {
		v.SetConfigFile(configFile)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("error reading config file: %w", err)
		}
	}

	if flags != nil {
		for _, key := range keys {
			flag := flags.Lookup(strings.ReplaceAll(key, "_", "-"))
			if flag == nil {
				continue
			}
			if err := v.BindPFlag(key, flag); err != nil {
				return nil, fmt.Errorf("failed to bind flag %s: %w", flag.Name, err)
			}
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to decode configuration: %w", err)
	}
	if err := validator.New(validator.WithRequiredStructEnabled()).Struct(&cfg); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return &cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("region", "")
	v.SetDefault("endpoint", "")
	v.SetDefault("force_path_style", false)
	v.SetDefault("max_retries", 3)
	v.SetDefault("timeout", 0)
	v.SetDefault("part_size", 0)
	v.SetDefault("task_num", 3)
	v.SetDefault("checkpoint_dir", DefaultCheckpointDir())
	v.SetDefault("no_checkpoint", false)
	v.SetDefault("strict_resume", false)
	v.SetDefault("rate_limit", 0)
	v.SetDefault("log_level", "warn")
	v.SetDefault("quiet", false)
}

// DefaultCheckpointDir is the per-user cache directory of the command.
func DefaultCheckpointDir() string {
	dir, err := os.UserCacheDir()
	if err != nil {
		dir = os.TempDir()
	}
	return filepath.Join(dir, "s3transfer")
}

// CheckpointPath returns the checkpoint directory with a trailing separator,
// or "" when checkpointing is disabled.
func (c *Config) CheckpointPath() string {
	if c.NoCheckpoint || c.CheckpointDir == "" {
		return ""
	}
	return strings.TrimRight(c.CheckpointDir, string(filepath.Separator)) + string(filepath.Separator)
}

// SlogLevel maps LogLevel to a slog level.
func (c *Config) SlogLevel() slog.Level {
	switch c.LogLevel {
	case "debug":
		return slog.LevelDebug
	case "info":
		return slog.LevelInfo
	case "error":
		return slog.LevelError
	default:
		return slog.LevelWarn
	}
}
