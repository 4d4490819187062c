package config

import (
	"fmt"
	"path/filepath"
	"strings"

	"github.com/loykin/winsession/internal/logger"
	"github.com/loykin/winsession/internal/session"
	"github.com/loykin/winsession/internal/snapshot"
	"github.com/spf13/viper"
)

// DefaultKey is the store key holding the saved window snapshot.
const DefaultKey = session.DefaultKey

// EnvPrefix is the prefix for environment overrides, e.g. WINSESSION_STORE_DSN.
const EnvPrefix = "WINSESSION"

// FileConfig represents the top-level TOML structure.
type FileConfig struct {
	Store   StoreConfig   `toml:"store" mapstructure:"store"`
	Session SessionConfig `toml:"session" mapstructure:"session"`
	Log     logger.Config `toml:"log" mapstructure:"log"`
	Server  ServerConfig  `toml:"server" mapstructure:"server"`
	Metrics MetricsConfig `toml:"metrics" mapstructure:"metrics"`
	History HistoryConfig `toml:"history" mapstructure:"history"`
}

type StoreConfig struct {
	DSN string `toml:"dsn" mapstructure:"dsn"`
}

type SessionConfig struct {
	Key        string `toml:"key" mapstructure:"key"`
	TestMode   bool   `toml:"test_mode" mapstructure:"test_mode"`
	MaxWindows int    `toml:"max_windows" mapstructure:"max_windows"`
	MaxTabs    int    `toml:"max_tabs" mapstructure:"max_tabs"`
}

// Limits converts the session caps into snapshot limits.
func (s SessionConfig) Limits() snapshot.Limits {
	return snapshot.Limits{MaxWindows: s.MaxWindows, MaxTabs: s.MaxTabs}
}

type ServerConfig struct {
	Listen   string `toml:"listen" mapstructure:"listen"`
	BasePath string `toml:"base_path" mapstructure:"base_path"`
}

type MetricsConfig struct {
	Listen string `toml:"listen" mapstructure:"listen"`
}

type HistoryConfig struct {
	Sinks []string `toml:"sinks" mapstructure:"sinks"`
}

// Default returns the configuration used when no file is given.
func Default() FileConfig {
	return FileConfig{
		Store: StoreConfig{DSN: "memory://"},
		Session: SessionConfig{
			Key:        DefaultKey,
			MaxWindows: snapshot.DefaultMaxWindows,
			MaxTabs:    snapshot.DefaultMaxTabs,
		},
		Log:    logger.Config{Level: "info", Format: "text"},
		Server: ServerConfig{Listen: "127.0.0.1:7070", BasePath: "/api"},
	}
}

func newViper() *viper.Viper {
	v := viper.New()
	d := Default()
	v.SetDefault("store.dsn", d.Store.DSN)
	v.SetDefault("session.key", d.Session.Key)
	v.SetDefault("session.test_mode", false)
	v.SetDefault("session.max_windows", d.Session.MaxWindows)
	v.SetDefault("session.max_tabs", d.Session.MaxTabs)
	v.SetDefault("log.level", d.Log.Level)
	v.SetDefault("log.format", d.Log.Format)
	v.SetDefault("log.file", "")
	v.SetDefault("server.listen", d.Server.Listen)
	v.SetDefault("server.base_path", d.Server.BasePath)
	v.SetDefault("metrics.listen", "")
	v.SetDefault("history.sinks", []string{})

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	return v
}

// Load reads the config file at path (TOML, or YAML by extension) layered
// over defaults and WINSESSION_* environment overrides. An empty path
// yields defaults plus environment.
func Load(path string) (FileConfig, error) {
	v := newViper()
	if path != "" {
		v.SetConfigFile(path)
		switch strings.ToLower(filepath.Ext(path)) {
		case ".yaml", ".yml":
			v.SetConfigType("yaml")
		default:
			v.SetConfigType("toml")
		}
		if err := v.ReadInConfig(); err != nil {
			return FileConfig{}, fmt.Errorf("read config %s: %w", path, err)
		}
	}
	var fc FileConfig
	if err := v.Unmarshal(&fc); err != nil {
		return FileConfig{}, fmt.Errorf("decode config: %w", err)
	}
	// AutomaticEnv does not split list values
	if len(fc.History.Sinks) == 1 && strings.Contains(fc.History.Sinks[0], ",") {
		fc.History.Sinks = strings.Split(fc.History.Sinks[0], ",")
	}
	if err := fc.Validate(); err != nil {
		return FileConfig{}, err
	}
	return fc, nil
}

// Validate rejects settings the daemon cannot run with.
func (fc FileConfig) Validate() error {
	if strings.TrimSpace(fc.Store.DSN) == "" {
		return fmt.Errorf("store.dsn is required")
	}
	if strings.TrimSpace(fc.Session.Key) == "" {
		return fmt.Errorf("session.key must not be empty")
	}
	if fc.Session.MaxWindows < 0 || fc.Session.MaxTabs < 0 {
		return fmt.Errorf("session limits must not be negative (max_windows=%d, max_tabs=%d)",
			fc.Session.MaxWindows, fc.Session.MaxTabs)
	}
	if fc.Server.BasePath != "" && !strings.HasPrefix(fc.Server.BasePath, "/") {
		return fmt.Errorf("server.base_path must start with '/': %q", fc.Server.BasePath)
	}
	return nil
}
