package config

import (
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/go-test/deep"
)

func TestDefault(t *testing.T) {
	t.Parallel()
	cfg := Default()
	if err := Validate(cfg); err != nil {
		t.Fatalf("Validate(Default()) = %v, want nil", err)
	}
	if cfg.UpdateInterval != 60 {
		t.Errorf("update_interval = %d, want 60", cfg.UpdateInterval)
	}
	if cfg.AddressSource != "ipapi" {
		t.Errorf("address_source = %q, want ipapi", cfg.AddressSource)
	}
	if !cfg.Latency.On() || cfg.Latency.Count != 3 {
		t.Errorf("latency defaults = on:%v count:%d, want on:true count:3", cfg.Latency.On(), cfg.Latency.Count)
	}
	if cfg.Throughput.Interval != 3600 {
		t.Errorf("throughput.interval = %d, want 3600", cfg.Throughput.Interval)
	}
	if cfg.NATInfo.On() {
		t.Error("nat_info enabled by default, want opt-in")
	}
}

func TestLoad(t *testing.T) {
	t.Parallel()
	path := filepath.Join(t.TempDir(), "ispmon.yaml")
	text := `
update_interval: 120
address_source: ipinfo
address_token: abc123
latency:
  target: 1.1.1.1
  count: 5
throughput:
  enabled: false
`
	if err := os.WriteFile(path, []byte(text), 0o600); err != nil {
		t.Fatal(err)
	}
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load() = %v, want nil", err)
	}
	if cfg.UpdateInterval != 120 || cfg.AddressSource != "ipinfo" || cfg.AddressToken != "abc123" {
		t.Errorf("top-level settings not honored: %+v", cfg)
	}
	if cfg.Latency.Target != "1.1.1.1" || cfg.Latency.Count != 5 {
		t.Errorf("latency block not honored: %+v", cfg.Latency)
	}
	if cfg.Latency.Interval != 60 {
		t.Errorf("latency.interval = %d, want default 60", cfg.Latency.Interval)
	}
	if cfg.Throughput.On() {
		t.Error("throughput.enabled=false not honored")
	}
	if !cfg.Jitter.On() {
		t.Error("absent enabled key turned jitter off, want default on")
	}
}

func TestLoadRejectsOutOfRange(t *testing.T) {
	t.Parallel()
	tests := []struct {
		name string
		text string
	}{
		{"interval too low", "update_interval: 5\n"},
		{"interval too high", "update_interval: 9000\n"},
		{"bad source", "address_source: whois\n"},
		{"throughput below floor", "throughput:\n  interval: 60\n"},
		{"zero-ish count", "latency:\n  count: -1\n"},
		{"history too small", "route_stability:\n  history_size: 1\n"},
		{"not yaml", "update_interval: [\n"},
	}
	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			path := filepath.Join(t.TempDir(), "ispmon.yaml")
			if err := os.WriteFile(path, []byte(tt.text), 0o600); err != nil {
				t.Fatal(err)
			}
			if _, err := Load(path); !errors.Is(err, ErrInvalid) {
				t.Errorf("Load() = %v, want ErrInvalid", err)
			}
		})
	}
}

func TestSaveLoadRoundTrip(t *testing.T) {
	t.Parallel()
	path := filepath.Join(t.TempDir(), "sub", "ispmon.yaml")
	want := Default()
	want.UpdateInterval = 300
	want.AddressSource = "ipgeolocation"
	want.AddressAPIKey = "key"
	off := false
	want.RouteStability.Enabled = &off
	if err := Save(path, want); err != nil {
		t.Fatalf("Save() = %v, want nil", err)
	}
	got, err := Load(path)
	if err != nil {
		t.Fatalf("Load() = %v, want nil", err)
	}
	if diff := deep.Equal(got, want); diff != nil {
		t.Errorf("round trip mismatch: %v", diff)
	}
}
