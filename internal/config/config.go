// Package config loads the hub's own tunables from a YAML file and
// hot-reloads them on change. It never holds server registrations: those
// live only in the in-memory Registry, driven by the admin API.
package config

import (
	"fmt"
	"log/slog"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/spf13/viper"
)

// Tunables are the hub settings read from the config file. The Watcher
// re-reads all of them on change, but a running hub applies only
// DownstreamTimeout (read each time a downstream client is built); the
// refresh interval, listen addresses and session-store URL are taken once
// at startup.
type Tunables struct {
	DownstreamTimeout time.Duration `mapstructure:"downstreamTimeoutSeconds"`
	RefreshInterval   time.Duration `mapstructure:"refreshIntervalSeconds"`
	MCPListenAddress  string        `mapstructure:"mcpListenAddress"`
	AdminListenAddress string       `mapstructure:"adminListenAddress"`
	SessionStoreURL   string        `mapstructure:"sessionStoreURL"`
}

// rawTunables mirrors Tunables but with the two duration fields expressed
// in seconds, matching how they're written in the YAML file.
type rawTunables struct {
	DownstreamTimeoutSeconds int    `mapstructure:"downstreamTimeoutSeconds"`
	RefreshIntervalSeconds   int    `mapstructure:"refreshIntervalSeconds"`
	MCPListenAddress         string `mapstructure:"mcpListenAddress"`
	AdminListenAddress       string `mapstructure:"adminListenAddress"`
	SessionStoreURL          string `mapstructure:"sessionStoreURL"`
}

// Defaults returns the Tunables the hub uses when the config file cannot be
// loaded at startup.
func Defaults() Tunables {
	return toTunables(defaults())
}

func defaults() rawTunables {
	return rawTunables{
		DownstreamTimeoutSeconds: 10,
		RefreshIntervalSeconds:   30,
		MCPListenAddress:         ":8080",
		AdminListenAddress:       ":8081",
	}
}

// Load reads path into Tunables, applying defaults for anything unset.
func Load(path string) (Tunables, error) {
	v := viper.New()
	v.SetConfigFile(path)

	raw := defaults()
	v.SetDefault("downstreamTimeoutSeconds", raw.DownstreamTimeoutSeconds)
	v.SetDefault("refreshIntervalSeconds", raw.RefreshIntervalSeconds)
	v.SetDefault("mcpListenAddress", raw.MCPListenAddress)
	v.SetDefault("adminListenAddress", raw.AdminListenAddress)

	if err := v.ReadInConfig(); err != nil {
		return Tunables{}, fmt.Errorf("config: reading %s: %w", path, err)
	}
	if err := v.Unmarshal(&raw); err != nil {
		return Tunables{}, fmt.Errorf("config: unmarshalling %s: %w", path, err)
	}

	return toTunables(raw), nil
}

func toTunables(raw rawTunables) Tunables {
	return Tunables{
		DownstreamTimeout:  time.Duration(raw.DownstreamTimeoutSeconds) * time.Second,
		RefreshInterval:    time.Duration(raw.RefreshIntervalSeconds) * time.Second,
		MCPListenAddress:   raw.MCPListenAddress,
		AdminListenAddress: raw.AdminListenAddress,
		SessionStoreURL:    raw.SessionStoreURL,
	}
}

// Watcher reloads Tunables from disk whenever the backing file changes and
// invokes onChange with the new value.
type Watcher struct {
	v      *viper.Viper
	path   string
	logger *slog.Logger
}

// NewWatcher sets up hot-reload for path. Call Start to begin watching.
func NewWatcher(path string, logger *slog.Logger) *Watcher {
	if logger == nil {
		logger = slog.Default()
	}
	v := viper.New()
	v.SetConfigFile(path)
	raw := defaults()
	v.SetDefault("downstreamTimeoutSeconds", raw.DownstreamTimeoutSeconds)
	v.SetDefault("refreshIntervalSeconds", raw.RefreshIntervalSeconds)
	v.SetDefault("mcpListenAddress", raw.MCPListenAddress)
	v.SetDefault("adminListenAddress", raw.AdminListenAddress)
	return &Watcher{v: v, path: path, logger: logger.With("component", "config-watcher")}
}

// Start begins watching the config file and calls onChange on every
// detected edit, after re-reading and re-unmarshalling it. onChange is
// never called for a read that fails; the previous Tunables keep applying.
func (w *Watcher) Start(onChange func(Tunables)) {
	w.v.OnConfigChange(func(e fsnotify.Event) {
		w.logger.Info("config file changed", "path", e.Name)
		if err := w.v.ReadInConfig(); err != nil {
			w.logger.Error("failed re-reading config after change", "error", err)
			return
		}
		var raw rawTunables
		if err := w.v.Unmarshal(&raw); err != nil {
			w.logger.Error("failed unmarshalling config after change", "error", err)
			return
		}
		onChange(toTunables(raw))
	})
	w.v.WatchConfig()
}
