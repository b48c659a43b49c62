package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config is the process-wide configuration a node reads at launch. It is
// loaded from a TOML file with GRIDNODE_* environment overrides.
type Config struct {
	Node      NodeConfig      `mapstructure:"node"`
	Admin     AdminConfig     `mapstructure:"admin"`
	Dashboard DashboardConfig `mapstructure:"dashboard"`
	History   HistoryConfig   `mapstructure:"history"`
	Log       LogConfig       `mapstructure:"log"`
	Services  []ServiceConfig `mapstructure:"services"`
}

type NodeConfig struct {
	// Listen is the primary protocol listen address, "host:port".
	Listen          string `mapstructure:"listen"`
	ConnectionLimit int    `mapstructure:"connection-limit"`
	Deserialize     bool   `mapstructure:"deserialize"`
	// DeathTimeout bounds startup; zero disables the bound.
	DeathTimeout time.Duration `mapstructure:"death-timeout"`
	// Timeout is forwarded to the connection pool.
	Timeout time.Duration `mapstructure:"timeout"`
}

// AdminConfig controls the in-memory log capture served to peers.
type AdminConfig struct {
	LogLength int    `mapstructure:"log-length"`
	LogFormat string `mapstructure:"log-format"`
}

type DashboardConfig struct {
	// Address is the requested dashboard address; empty means default port.
	Address     string    `mapstructure:"address"`
	DefaultPort int       `mapstructure:"default-port"`
	TLS         TLSConfig `mapstructure:"tls"`
}

// TLSConfig enables HTTPS for the dashboard when Cert is set. The endpoint
// is encrypted but does not authenticate clients.
type TLSConfig struct {
	Key          string `mapstructure:"key"`
	Cert         string `mapstructure:"cert"`
	CAFile       string `mapstructure:"ca-file"`
	AutoGenerate bool   `mapstructure:"auto-generate"`
	// Dir holds auto-generated certificate files when AutoGenerate is set
	// and no explicit paths are given.
	Dir string `mapstructure:"dir"`
}

// HistoryConfig configures optional lifecycle-event sinks.
type HistoryConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	Backend string `mapstructure:"backend"` // sqlite, postgres or clickhouse
	DSN     string `mapstructure:"dsn"`
	Table   string `mapstructure:"table"`
}

// LogConfig describes the daemon's own log output file. Rotation parameters
// follow lumberjack semantics.
type LogConfig struct {
	File       string `mapstructure:"file"`
	Level      string `mapstructure:"level"`
	MaxSizeMB  int    `mapstructure:"max_size_mb"`
	MaxBackups int    `mapstructure:"max_backups"`
	MaxAgeDays int    `mapstructure:"max_age_days"`
	Compress   bool   `mapstructure:"compress"`
}

// ServiceConfig declares one auxiliary service to start with the node.
// Port accepts any port-spec shape: absent, integer, "host:port", or a
// one/two element list.
type ServiceConfig struct {
	Name string         `mapstructure:"name"`
	Kind string         `mapstructure:"kind"`
	Port any            `mapstructure:"port"`
	Opts map[string]any `mapstructure:"opts"`
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("node.listen", "0.0.0.0:8786")
	v.SetDefault("node.connection-limit", 512)
	v.SetDefault("node.deserialize", true)
	v.SetDefault("node.death-timeout", "0s")
	v.SetDefault("node.timeout", "10s")
	v.SetDefault("admin.log-length", 10000)
	v.SetDefault("admin.log-format", "%(levelname)s:%(name)s:%(message)s")
	v.SetDefault("dashboard.default-port", 8787)
	v.SetDefault("history.table", "node_history")
}

// Load reads path (TOML). An empty path yields defaults plus environment
// overrides only.
func Load(path string) (*Config, error) {
	v := viper.New()
	setDefaults(v)
	v.SetEnvPrefix("GRIDNODE")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_", "-", "_"))
	v.AutomaticEnv()

	if path != "" {
		v.SetConfigFile(path)
		v.SetConfigType("toml")
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("read config %s: %w", path, err)
		}
	}

	var c Config
	if err := v.Unmarshal(&c); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}
	if err := c.Validate(); err != nil {
		return nil, err
	}
	return &c, nil
}

// Validate rejects configurations the node cannot act on.
func (c *Config) Validate() error {
	if c.Node.ConnectionLimit < 0 {
		return fmt.Errorf("node.connection-limit must not be negative, got %d", c.Node.ConnectionLimit)
	}
	if c.Admin.LogLength < 0 {
		return fmt.Errorf("admin.log-length must not be negative, got %d", c.Admin.LogLength)
	}
	if c.History.Enabled {
		switch c.History.Backend {
		case "sqlite", "postgres", "clickhouse":
		default:
			return fmt.Errorf("history.backend must be sqlite, postgres or clickhouse, got %q", c.History.Backend)
		}
		if c.History.DSN == "" {
			return fmt.Errorf("history.dsn is required when history is enabled")
		}
	}
	if c.Dashboard.TLS.Cert != "" && c.Dashboard.TLS.Key == "" {
		return fmt.Errorf("dashboard.tls.key is required when dashboard.tls.cert is set")
	}
	seen := make(map[string]struct{}, len(c.Services))
	for _, s := range c.Services {
		if s.Name == "" {
			return fmt.Errorf("services entries require a name")
		}
		if _, dup := seen[s.Name]; dup {
			return fmt.Errorf("duplicate service name %q", s.Name)
		}
		seen[s.Name] = struct{}{}
	}
	return nil
}
