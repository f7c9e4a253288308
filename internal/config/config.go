// Package config loads orindb's runtime configuration: buffer pool
// capacity, data directory, table file naming, and log level, from a YAML
// file with flag and environment overrides, the same way the teacher's
// NovaSqlConfig does for its own settings.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"log/slog"

	"github.com/fsnotify/fsnotify"
	"github.com/spf13/cast"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

// Config is orindb's runtime configuration.
type Config struct {
	Buffer struct {
		// Capacity is the number of frames the buffer pool holds.
		Capacity int `mapstructure:"capacity"`
	} `mapstructure:"buffer"`

	Storage struct {
		// DataDir is the directory table files are created under.
		DataDir string `mapstructure:"data_dir"`
		// DefaultTable is the table name cmd/orindb-cli opens when none is
		// given explicitly.
		DefaultTable string `mapstructure:"default_table"`
	} `mapstructure:"storage"`

	Log struct {
		Level string `mapstructure:"level"`
	} `mapstructure:"log"`
}

func defaults(v *viper.Viper) {
	v.SetDefault("buffer.capacity", 64)
	v.SetDefault("storage.data_dir", "./data")
	v.SetDefault("storage.default_table", "main")
	v.SetDefault("log.level", "info")
}

// RegisterFlags adds the flags cmd/orindb-cli overlays onto the loaded
// config to fs. Call it, then fs.Parse, then pass fs to Load — the
// resulting precedence is flag > env > file > default, viper's own rule.
func RegisterFlags(fs *pflag.FlagSet) {
	fs.Int("buffer.capacity", 0, "buffer pool capacity (frames)")
	fs.String("storage.data-dir", "", "data directory")
	fs.String("log.level", "", "log level (debug, info, warn, error)")
}

func bindFlags(v *viper.Viper, fs *pflag.FlagSet) error {
	if fs == nil {
		return nil
	}
	if err := v.BindPFlag("buffer.capacity", fs.Lookup("buffer.capacity")); err != nil {
		return err
	}
	if err := v.BindPFlag("storage.data_dir", fs.Lookup("storage.data-dir")); err != nil {
		return err
	}
	return v.BindPFlag("log.level", fs.Lookup("log.level"))
}

// Load reads the YAML config at path (if it exists; a missing file is not
// an error, since defaults alone are a valid configuration), applies
// environment variable overrides prefixed ORINDB_, and overlays any flags
// already parsed into fs (pass nil to skip flag overlay, as tests do).
func Load(path string, fs *pflag.FlagSet) (*Config, *viper.Viper, error) {
	v := viper.New()
	defaults(v)

	v.SetEnvPrefix("ORINDB")
	v.AutomaticEnv()

	if path != "" {
		v.SetConfigFile(path)
		v.SetConfigType("yaml")
		if err := v.ReadInConfig(); err != nil {
			var notFound viper.ConfigFileNotFoundError
			if !errors.As(err, &notFound) && !errors.Is(err, fs.ErrNotExist) {
				return nil, nil, fmt.Errorf("config: read %q: %w", path, err)
			}
		}
	}

	if err := bindFlags(v, fs); err != nil {
		return nil, nil, fmt.Errorf("config: bind flags: %w", err)
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, nil, fmt.Errorf("config: unmarshal: %w", err)
	}
	if cfg.Buffer.Capacity < 1 {
		return nil, nil, fmt.Errorf("config: buffer.capacity must be >= 1, got %d", cfg.Buffer.Capacity)
	}
	return &cfg, v, nil
}

// WatchLogLevel hot-reloads the log level whenever the config file on disk
// changes, without restarting the process or re-reading any other field.
func WatchLogLevel(v *viper.Viper, level *slog.LevelVar) {
	v.OnConfigChange(func(e fsnotify.Event) {
		newLevel := cast.ToString(v.Get("log.level"))
		parsed, err := parseLevel(newLevel)
		if err != nil {
			slog.Warn("config: ignoring invalid log level on reload", "value", newLevel, "err", err)
			return
		}
		level.Set(parsed)
		slog.Info("config: log level reloaded", "level", newLevel, "file", e.Name)
	})
	v.WatchConfig()
}

func parseLevel(s string) (slog.Level, error) {
	var level slog.Level
	if err := level.UnmarshalText([]byte(s)); err != nil {
		return 0, fmt.Errorf("config: invalid log level %q: %w", s, err)
	}
	return level, nil
}
