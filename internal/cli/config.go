package cli

import (
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/spf13/viper"
)

const (
	configFileName = "formsync"
	configFileType = "yaml"
	envPrefix      = "FORMSYNC"

	cfgKeyDB           = "db"
	cfgKeyLogLevel     = "log_level"
	cfgKeyFormat       = "format"
	cfgKeySlotCacheTTL = "slot_cache_ttl"

	defaultDB           = "formsync.db"
	defaultLogLevel     = "warn"
	defaultFormat       = "text"
	defaultSlotCacheTTL = 5 * time.Minute
)

// Config is the runtime configuration shared by every command.
// Flags override it; it overrides the defaults.
type Config struct {
	DB           string
	LogLevel     string
	Format       string
	SlotCacheTTL time.Duration
}

// LoadConfig reads formsync.yaml from path, or from the working directory
// when path is empty, then applies FORMSYNC_* environment variables.
// A missing config file is not an error unless path names it explicitly.
func LoadConfig(path string) (*Config, error) {
	v := viper.New()
	v.SetDefault(cfgKeyDB, defaultDB)
	v.SetDefault(cfgKeyLogLevel, defaultLogLevel)
	v.SetDefault(cfgKeyFormat, defaultFormat)
	v.SetDefault(cfgKeySlotCacheTTL, defaultSlotCacheTTL)

	v.SetEnvPrefix(envPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.SetConfigName(configFileName)
		v.SetConfigType(configFileType)
		v.AddConfigPath(".")
	}

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if path != "" || !errors.As(err, &notFound) {
			return nil, fmt.Errorf("read config: %w", err)
		}
	}

	cfg := &Config{
		DB:           v.GetString(cfgKeyDB),
		LogLevel:     v.GetString(cfgKeyLogLevel),
		Format:       v.GetString(cfgKeyFormat),
		SlotCacheTTL: v.GetDuration(cfgKeySlotCacheTTL),
	}
	if _, err := parseLogLevel(cfg.LogLevel); err != nil {
		return nil, err
	}
	return cfg, nil
}

// parseLogLevel maps a config log level to slog.
func parseLogLevel(s string) (slog.Level, error) {
	var level slog.Level
	if err := level.UnmarshalText([]byte(s)); err != nil {
		return 0, fmt.Errorf("invalid log_level %q: must be debug, info, warn or error", s)
	}
	return level, nil
}
