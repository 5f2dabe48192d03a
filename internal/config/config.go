// Package config loads and validates the daemon configuration. Values come
// from a YAML file, WRITEBACK_-prefixed environment variables and built-in
// defaults, in descending precedence after flags.
package config

import (
	"fmt"
	"net/url"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/viper"

	apperrors "github.com/dmeireles/writeback/internal/errors"
)

// API configures the backend the queue replays against.
type API struct {
	BaseURL   string        `mapstructure:"base_url"`
	Timeout   time.Duration `mapstructure:"timeout"`
	Token     string        `mapstructure:"token"`
	TokenFile string        `mapstructure:"token_file"`
	UserAgent string        `mapstructure:"user_agent"`
}

// Store configures the queue storage backend. The memory driver drops the
// queue on restart and exists for hosts that bring their own durability.
type Store struct {
	Driver string `mapstructure:"driver"`
	Path   string `mapstructure:"path"`
}

// Sync configures the drain engine.
type Sync struct {
	MaxAttempts int           `mapstructure:"max_attempts"`
	Interval    time.Duration `mapstructure:"interval"`
}

// Probe configures the connectivity prober. An empty URL is derived from
// api.base_url at load time.
type Probe struct {
	Enabled  bool          `mapstructure:"enabled"`
	URL      string        `mapstructure:"url"`
	Interval time.Duration `mapstructure:"interval"`
	Timeout  time.Duration `mapstructure:"timeout"`
}

// Admin configures the local inspection API.
type Admin struct {
	Enabled bool   `mapstructure:"enabled"`
	Addr    string `mapstructure:"addr"`
}

// DeadLetter configures the archive for dropped operations. An empty path is
// derived from store.path at load time.
type DeadLetter struct {
	Enabled bool   `mapstructure:"enabled"`
	Path    string `mapstructure:"path"`
}

// Telemetry configures trace export. An empty endpoint disables it.
type Telemetry struct {
	OTLPEndpoint string `mapstructure:"otlp_endpoint"`
	ServiceName  string `mapstructure:"service_name"`
}

// Log configures process logging.
type Log struct {
	Level  string `mapstructure:"level"`
	Pretty bool   `mapstructure:"pretty"`
}

// Config is the full daemon configuration.
type Config struct {
	API        API        `mapstructure:"api"`
	Store      Store      `mapstructure:"store"`
	Sync       Sync       `mapstructure:"sync"`
	Probe      Probe      `mapstructure:"probe"`
	Admin      Admin      `mapstructure:"admin"`
	DeadLetter DeadLetter `mapstructure:"deadletter"`
	Telemetry  Telemetry  `mapstructure:"telemetry"`
	Log        Log        `mapstructure:"log"`
}

// setDefaults registers every key so environment overrides reach Unmarshal.
func setDefaults(v *viper.Viper) {
	v.SetDefault("api.base_url", "")
	v.SetDefault("api.timeout", 15*time.Second)
	v.SetDefault("api.token", "")
	v.SetDefault("api.token_file", "")
	v.SetDefault("api.user_agent", "writebackd")

	v.SetDefault("store.driver", "sqlite")
	v.SetDefault("store.path", "./data")

	v.SetDefault("sync.max_attempts", 5)
	v.SetDefault("sync.interval", 5*time.Minute)

	v.SetDefault("probe.enabled", true)
	v.SetDefault("probe.url", "")
	v.SetDefault("probe.interval", 30*time.Second)
	v.SetDefault("probe.timeout", 5*time.Second)

	v.SetDefault("admin.enabled", true)
	v.SetDefault("admin.addr", "127.0.0.1:8787")

	v.SetDefault("deadletter.enabled", false)
	v.SetDefault("deadletter.path", "")

	v.SetDefault("telemetry.otlp_endpoint", "")
	v.SetDefault("telemetry.service_name", "writeback")

	v.SetDefault("log.level", "info")
	v.SetDefault("log.pretty", false)
}

// Load reads configuration. With an explicit path the file must exist; with
// an empty path a writeback.yaml is picked up from the working directory or
// ~/.config/writeback when present. Normalization and validation are left to
// the caller so flag overrides can land first.
func Load(path string) (*Config, error) {
	v := viper.New()
	setDefaults(v)

	v.SetEnvPrefix("WRITEBACK")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, apperrors.Wrap(apperrors.ErrConfig, "failed to read config file", err)
		}
	} else {
		v.SetConfigName("writeback")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		v.AddConfigPath("$HOME/.config/writeback")
		if err := v.ReadInConfig(); err != nil {
			if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
				return nil, apperrors.Wrap(apperrors.ErrConfig, "failed to read config file", err)
			}
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, apperrors.Wrap(apperrors.ErrConfig, "failed to parse configuration", err)
	}
	return &cfg, nil
}

// Normalize fills values derived from other sections. Call it after any
// overrides and before Validate.
func (c *Config) Normalize() {
	c.API.BaseURL = strings.TrimRight(strings.TrimSpace(c.API.BaseURL), "/")
	if c.Probe.URL == "" && c.API.BaseURL != "" {
		c.Probe.URL = c.API.BaseURL + "/healthz"
	}
	if c.DeadLetter.Path == "" {
		c.DeadLetter.Path = filepath.Join(c.Store.Path, "deadletter.jsonl")
	}
}

// Validate checks the configuration is usable. Every failure carries the
// CONFIG_ERROR code.
func (c *Config) Validate() error {
	if c.API.BaseURL == "" {
		return apperrors.New(apperrors.ErrConfig, "api.base_url is required")
	}
	u, err := url.Parse(c.API.BaseURL)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return apperrors.New(apperrors.ErrConfig, fmt.Sprintf("api.base_url %q is not a valid http(s) URL", c.API.BaseURL))
	}
	if c.Sync.MaxAttempts < 1 {
		return apperrors.New(apperrors.ErrConfig, "sync.max_attempts must be at least 1")
	}
	if c.Sync.Interval < time.Second {
		return apperrors.New(apperrors.ErrConfig, "sync.interval must be at least one second")
	}
	switch c.Store.Driver {
	case "sqlite":
		if c.Store.Path == "" {
			return apperrors.New(apperrors.ErrConfig, "store.path is required for the sqlite driver")
		}
	case "memory":
	default:
		return apperrors.New(apperrors.ErrConfig, fmt.Sprintf("unknown store.driver %q", c.Store.Driver))
	}
	if c.Admin.Enabled && c.Admin.Addr == "" {
		return apperrors.New(apperrors.ErrConfig, "admin.addr is required when the admin API is enabled")
	}
	if c.Probe.Enabled && c.Probe.URL == "" {
		return apperrors.New(apperrors.ErrConfig, "probe.url is required when the prober is enabled")
	}
	if c.API.Token != "" && c.API.TokenFile != "" {
		return apperrors.New(apperrors.ErrConfig, "api.token and api.token_file are mutually exclusive")
	}
	return nil
}
