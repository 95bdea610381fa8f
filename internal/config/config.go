package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the full application configuration loaded from YAML.
type Config struct {
	Engine       EngineConfig       `yaml:"engine"`
	Inbound      InboundConfig      `yaml:"inbound"`
	LogLevel     string             `yaml:"log_level"`
	ProfilesDir  string             `yaml:"profiles_dir"`
	Database     DatabaseConfig     `yaml:"database"`
	GeoIP        GeoIPConfig        `yaml:"geoip"`
	Routing      RoutingSettings    `yaml:"routing"`
	VPN          VPNSettings        `yaml:"vpn"`
	DNS          DNSSettings        `yaml:"dns"`
	Monitoring   MonitoringSettings `yaml:"monitoring"`
	Subscription SubscriptionConfig `yaml:"subscription"`
}

// EngineConfig describes the external sing-box process and its control API.
type EngineConfig struct {
	// Binary is an explicit path. Empty means discover: bundled bin/
	// directory first, then PATH.
	Binary string `yaml:"binary"`
	// RunArgs is the invocation convention; the config file path is
	// appended as the final argument ("run -c" vs "-config" style cores).
	RunArgs   []string `yaml:"run_args"`
	APIAddr   string   `yaml:"api_addr"`
	APISecret string   `yaml:"api_secret"`
	LogFile   string   `yaml:"log_file"`
}

// InboundConfig is the local mixed SOCKS+HTTP listener.
type InboundConfig struct {
	Listen string `yaml:"listen"`
	Port   int    `yaml:"port"`
}

type DatabaseConfig struct {
	Path string `yaml:"path"`
}

type GeoIPConfig struct {
	CountryPath string `yaml:"country_path"`
}

type SubscriptionConfig struct {
	UserAgent string        `yaml:"user_agent"`
	Insecure  bool          `yaml:"insecure"`
	Timeout   time.Duration `yaml:"timeout"`
}

// Load reads the YAML config, applying defaults before unmarshal so an
// absent key keeps its default value.
func Load(path string) (*Config, error) {
	if path == "" {
		path = "config.yaml"
	}

	cfg := Default()

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return cfg, nil
		}
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config yaml: %w", err)
	}

	if cfg.Inbound.Port <= 0 {
		cfg.Inbound.Port = 2080
	}
	if len(cfg.Engine.RunArgs) == 0 {
		cfg.Engine.RunArgs = []string{"run", "-c"}
	}

	return cfg, nil
}

// Default returns the built-in configuration.
func Default() *Config {
	return &Config{
		Engine: EngineConfig{
			RunArgs: []string{"run", "-c"},
			APIAddr: "127.0.0.1:9090",
		},
		Inbound: InboundConfig{
			Listen: "127.0.0.1",
			Port:   2080,
		},
		LogLevel:    "warn",
		ProfilesDir: "profiles",
		Database:    DatabaseConfig{Path: "boxpilot.db"},
		GeoIP:       GeoIPConfig{CountryPath: "GeoLite2-Country.mmdb"},
		Routing:     RoutingSettings{Mode: RouteBypassLocal},
		DNS:         DNSSettings{Provider: DNSGoogle, UseProxy: true},
		Monitoring: MonitoringSettings{
			Enabled:  true,
			Interval: 10 * time.Second,
			TestURL:  "https://www.google.com/generate_204",
		},
		Subscription: SubscriptionConfig{
			UserAgent: "boxpilot/1.0",
			Timeout:   30 * time.Second,
		},
	}
}
