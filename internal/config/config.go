// Package config loads process configuration the way
// apps/exchange/settings.py does: environment variables with sane
// defaults, optionally overridden by a config file, using viper in
// place of pydantic's BaseSettings.
package config

import (
	"fmt"
	"strings"

	"github.com/spf13/viper"
)

// Settings is the full set of knobs the server binary needs at startup.
type Settings struct {
	ListenAddr string `mapstructure:"listen_addr"`

	StoragePath string `mapstructure:"storage_path"`

	MulticastGroup string `mapstructure:"mcast_group"`
	MulticastPort  int    `mapstructure:"mcast_port"`
	MulticastTTL   int    `mapstructure:"mcast_ttl"`

	EventLogDir string `mapstructure:"eventlog_dir"`

	TransportWorkers int `mapstructure:"transport_workers"`
	EventLogWorkers  int `mapstructure:"eventlog_workers"`
	DurableQueueSize int `mapstructure:"durable_queue_size"`

	LogLevel string `mapstructure:"log_level"`
}

func defaults() *viper.Viper {
	v := viper.New()
	v.SetDefault("listen_addr", ":9090")
	v.SetDefault("storage_path", "fenrir.db")
	v.SetDefault("mcast_group", "224.1.1.1")
	v.SetDefault("mcast_port", 4444)
	v.SetDefault("mcast_ttl", 1)
	v.SetDefault("eventlog_dir", "text_backup")
	v.SetDefault("transport_workers", 8)
	v.SetDefault("eventlog_workers", 1)
	v.SetDefault("durable_queue_size", 4096)
	v.SetDefault("log_level", "info")
	return v
}

// Load reads configuration from environment variables (FENRIR_ prefix)
// and, if configPath is non-empty, from a config file. Environment
// variables take precedence over the file, and the file over the defaults.
func Load(configPath string) (*Settings, error) {
	v := defaults()
	v.SetEnvPrefix("fenrir")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if configPath != "" {
		v.SetConfigFile(configPath)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("read config %s: %w", configPath, err)
		}
	}

	var s Settings
	if err := v.Unmarshal(&s); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}
	return &s, nil
}

// String renders a compact, log-friendly summary, mirroring
// Settings.show() in the original.
func (s *Settings) String() string {
	return fmt.Sprintf("listen=%s storage=%s mcast=%s:%d log_level=%s",
		s.ListenAddr, s.StoragePath, s.MulticastGroup, s.MulticastPort, s.LogLevel)
}
