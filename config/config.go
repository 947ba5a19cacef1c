// Package config loads and validates the monitor's settings. Out of
// range values are rejected at load time so that probes never have to
// re-check their own configuration.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"
)

// ErrInvalid wraps every configuration validation failure.
var ErrInvalid = errors.New("invalid configuration")

// Sources recognized for the public address lookup.
var Sources = []string{"ipapi", "ipinfo", "ipgeolocation"}

// Config holds every user-tunable setting. The address lookup itself
// is always enabled and has no per-metric block.
type Config struct {
	// UpdateInterval is the collection cadence in seconds, 30 to 600.
	UpdateInterval int `yaml:"update_interval"`
	// AddressSource is the lookup provider tried first.
	AddressSource string `yaml:"address_source"`
	// AddressToken authenticates against ipinfo.io.
	AddressToken string `yaml:"address_token,omitempty"`
	// AddressAPIKey authenticates against ipgeolocation.io.
	AddressAPIKey string `yaml:"address_api_key,omitempty"`

	DNSConfig      Metric `yaml:"dns_config"`
	Latency        Sample `yaml:"latency"`
	PacketLoss     Sample `yaml:"packet_loss"`
	Jitter         Sample `yaml:"jitter"`
	Throughput     Metric `yaml:"throughput"`
	DNSReliability Metric `yaml:"dns_reliability"`
	RouteStability Route  `yaml:"route_stability"`
	NATInfo        Metric `yaml:"nat_info"`
}

// Metric is the common per-metric block. Enabled is a pointer so that
// an absent key means "use the default", not "off".
type Metric struct {
	Enabled  *bool `yaml:"enabled,omitempty"`
	Interval int   `yaml:"interval"`
}

// On reports whether the metric is enabled.
func (m Metric) On() bool { return m.Enabled == nil || *m.Enabled }

// Sample configures one of the latency-family metrics.
type Sample struct {
	Metric `yaml:",inline"`
	// Target is the host to echo against.
	Target string `yaml:"target"`
	// Count is how many echoes one measurement sends.
	Count int `yaml:"count"`
}

// Route configures the route-stability metric.
type Route struct {
	Metric `yaml:",inline"`
	// Target is the host to trace toward.
	Target string `yaml:"target"`
	// MaxHops caps the trace depth.
	MaxHops int `yaml:"max_hops"`
	// HistorySize is how many routes the stability score looks back
	// over.
	HistorySize int `yaml:"history_size"`
}

// Default returns the configuration used when no file is given.
func Default() Config {
	cfg := Config{}
	ApplyDefaults(&cfg)
	return cfg
}

// Load reads, fills in, and validates a YAML configuration file.
func Load(path string) (Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Config{}, err
	}
	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return Config{}, fmt.Errorf("%w: %v", ErrInvalid, err)
	}
	ApplyDefaults(&cfg)
	if err := Validate(cfg); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Save writes a YAML configuration file.
func Save(path string, cfg Config) error {
	ApplyDefaults(&cfg)
	if err := Validate(cfg); err != nil {
		return err
	}
	data, err := yaml.Marshal(&cfg)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	return os.WriteFile(path, data, 0o600)
}

// ApplyDefaults fills in default values when empty.
func ApplyDefaults(cfg *Config) {
	if cfg.UpdateInterval == 0 {
		cfg.UpdateInterval = 60
	}
	if cfg.AddressSource == "" {
		cfg.AddressSource = "ipapi"
	}
	if cfg.DNSConfig.Interval == 0 {
		cfg.DNSConfig.Interval = 60
	}
	if cfg.Latency.Interval == 0 {
		cfg.Latency.Interval = 60
	}
	if cfg.Latency.Count == 0 {
		cfg.Latency.Count = 3
	}
	if cfg.Latency.Target == "" {
		cfg.Latency.Target = "8.8.8.8"
	}
	if cfg.PacketLoss.Interval == 0 {
		cfg.PacketLoss.Interval = 120
	}
	if cfg.PacketLoss.Count == 0 {
		cfg.PacketLoss.Count = 10
	}
	if cfg.PacketLoss.Target == "" {
		cfg.PacketLoss.Target = "8.8.8.8"
	}
	if cfg.Jitter.Interval == 0 {
		cfg.Jitter.Interval = 120
	}
	if cfg.Jitter.Count == 0 {
		cfg.Jitter.Count = 10
	}
	if cfg.Jitter.Target == "" {
		cfg.Jitter.Target = "8.8.8.8"
	}
	if cfg.Throughput.Interval == 0 {
		cfg.Throughput.Interval = 3600
	}
	if cfg.DNSReliability.Interval == 0 {
		cfg.DNSReliability.Interval = 180
	}
	if cfg.RouteStability.Interval == 0 {
		cfg.RouteStability.Interval = 1800
	}
	if cfg.RouteStability.Target == "" {
		cfg.RouteStability.Target = "8.8.8.8"
	}
	if cfg.RouteStability.MaxHops == 0 {
		cfg.RouteStability.MaxHops = 10
	}
	if cfg.RouteStability.HistorySize == 0 {
		cfg.RouteStability.HistorySize = 10
	}
	if cfg.NATInfo.Enabled == nil {
		// The NAT probe talks to third-party STUN servers, so it is
		// opt-in.
		off := false
		cfg.NATInfo.Enabled = &off
	}
	if cfg.NATInfo.Interval == 0 {
		cfg.NATInfo.Interval = 1800
	}
}

// Validate rejects out-of-range settings. Every returned error wraps
// ErrInvalid.
func Validate(cfg Config) error {
	if cfg.UpdateInterval < 30 || cfg.UpdateInterval > 600 {
		return fmt.Errorf("%w: update_interval %d outside 30..600", ErrInvalid, cfg.UpdateInterval)
	}
	source := false
	for _, s := range Sources {
		if cfg.AddressSource == s {
			source = true
			break
		}
	}
	if !source {
		return fmt.Errorf("%w: address_source %q not one of %v", ErrInvalid, cfg.AddressSource, Sources)
	}
	type ranged struct {
		name     string
		interval int
		min, max int
	}
	for _, r := range []ranged{
		{"dns_config", cfg.DNSConfig.Interval, 30, 3600},
		{"latency", cfg.Latency.Interval, 30, 3600},
		{"packet_loss", cfg.PacketLoss.Interval, 30, 3600},
		{"jitter", cfg.Jitter.Interval, 30, 3600},
		{"throughput", cfg.Throughput.Interval, 3600, 86400},
		{"dns_reliability", cfg.DNSReliability.Interval, 30, 3600},
		{"route_stability", cfg.RouteStability.Interval, 30, 3600},
		{"nat_info", cfg.NATInfo.Interval, 30, 86400},
	} {
		if r.interval < r.min || r.interval > r.max {
			return fmt.Errorf("%w: %s.interval %d outside %d..%d", ErrInvalid, r.name, r.interval, r.min, r.max)
		}
	}
	for _, s := range []struct {
		name  string
		count int
	}{
		{"latency", cfg.Latency.Count},
		{"packet_loss", cfg.PacketLoss.Count},
		{"jitter", cfg.Jitter.Count},
	} {
		if s.count < 1 {
			return fmt.Errorf("%w: %s.count %d below 1", ErrInvalid, s.name, s.count)
		}
	}
	if cfg.RouteStability.HistorySize < 2 {
		return fmt.Errorf("%w: route_stability.history_size %d below 2", ErrInvalid, cfg.RouteStability.HistorySize)
	}
	return nil
}
