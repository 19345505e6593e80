// Package config resolves tracker settings from defaults, an optional YAML
// file, TRACKER_* environment variables and command line flags.
package config

import (
	"fmt"
	"log/slog"
	"strings"

	"github.com/spf13/viper"
)

// Config keys. Flags use the same names.
const (
	KeyAddr             = "addr"
	KeyDB               = "db"
	KeyLogLevel         = "log-level"
	KeyLogFormat        = "log-format"
	KeySeedFile         = "seed-file"
	KeyDefaultWorkspace = "default-workspace"
)

// Config is the resolved process configuration.
type Config struct {
	Addr             string
	DBPath           string
	LogLevel         slog.Level
	LogFormat        string
	SeedFile         string
	DefaultWorkspace string
}

// New returns a viper instance with defaults and environment binding.
// Precedence is flag > env > config file > default.
func New() *viper.Viper {
	v := viper.New()
	v.SetConfigType("yaml")

	// TRACKER_LOG_LEVEL maps to "log-level".
	v.SetEnvPrefix("TRACKER")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_", "-", "_"))
	v.AutomaticEnv()

	v.SetDefault(KeyAddr, ":8080")
	v.SetDefault(KeyDB, "data/tracker.db")
	v.SetDefault(KeyLogLevel, "info")
	v.SetDefault(KeyLogFormat, "text")
	v.SetDefault(KeySeedFile, "")
	v.SetDefault(KeyDefaultWorkspace, "default")
	return v
}

// Load reads configFile into v when given and resolves the final Config.
func Load(v *viper.Viper, configFile string) (Config, error) {
	if configFile != "" {
		v.SetConfigFile(configFile)
		if err := v.ReadInConfig(); err != nil {
			return Config{}, fmt.Errorf("read config %s: %w", configFile, err)
		}
	}

	var level slog.Level
	if err := level.UnmarshalText([]byte(v.GetString(KeyLogLevel))); err != nil {
		return Config{}, fmt.Errorf("invalid log level %q: %w", v.GetString(KeyLogLevel), err)
	}

	format := strings.ToLower(strings.TrimSpace(v.GetString(KeyLogFormat)))
	switch format {
	case "text", "json":
	default:
		return Config{}, fmt.Errorf("invalid log format %q: want text or json", format)
	}

	cfg := Config{
		Addr:             v.GetString(KeyAddr),
		DBPath:           v.GetString(KeyDB),
		LogLevel:         level,
		LogFormat:        format,
		SeedFile:         v.GetString(KeySeedFile),
		DefaultWorkspace: strings.TrimSpace(v.GetString(KeyDefaultWorkspace)),
	}
	if cfg.DBPath == "" {
		return Config{}, fmt.Errorf("database path must not be empty")
	}
	if cfg.DefaultWorkspace == "" {
		return Config{}, fmt.Errorf("default workspace must not be empty")
	}
	return cfg, nil
}
