package wanaddr

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/go-test/deep"

	"github.com/ispmon/ispmon/probe"
)

// fakeProvider scripts one provider's answer and counts lookups.
type fakeProvider struct {
	name  string
	info  Info
	err   error
	calls int
}

func (f *fakeProvider) Name() string { return f.name }

func (f *fakeProvider) Lookup(ctx context.Context) (Info, error) {
	f.calls++
	if f.err != nil {
		return Info{}, f.err
	}
	return f.info, nil
}

func TestOrder(t *testing.T) {
	t.Parallel()
	tests := []struct {
		preferred string
		want      []string
	}{
		{"", []string{"ipapi", "ipinfo", "ipgeolocation"}},
		{"ipapi", []string{"ipapi", "ipinfo", "ipgeolocation"}},
		{"ipinfo", []string{"ipinfo", "ipapi", "ipgeolocation"}},
		{"ipgeolocation", []string{"ipgeolocation", "ipapi", "ipinfo"}},
	}
	for _, test := range tests {
		if diff := deep.Equal(Order(test.preferred), test.want); diff != nil {
			t.Errorf("Order(%q): %v", test.preferred, diff)
		}
	}
}

func TestFetchFailover(t *testing.T) {
	t.Parallel()
	failing := &fakeProvider{name: "ipapi", err: errors.New("connection refused")}
	working := &fakeProvider{name: "ipinfo", info: Info{IP: "8.8.8.8", Source: "ipinfo.io"}}
	unused := &fakeProvider{name: "ipgeolocation", info: Info{IP: "8.8.8.8", Source: "ipgeolocation.io"}}
	p := &Probe{Providers: []Provider{failing, working, unused}}

	got := p.Fetch(context.Background())
	if got.Status != probe.StatusOnline {
		t.Fatalf("Fetch() status = %q, want %q (error %q)", got.Status, probe.StatusOnline, got.Error)
	}
	info, ok := got.Detail.(Info)
	if !ok {
		t.Fatalf("Fetch() detail is %T, want Info", got.Detail)
	}
	if info.Source != "ipinfo.io" {
		t.Errorf("Fetch() source = %q, want %q", info.Source, "ipinfo.io")
	}
	if failing.calls != 1 || working.calls != 1 {
		t.Errorf("lookups = %d and %d, want 1 and 1", failing.calls, working.calls)
	}
	if unused.calls != 0 {
		t.Errorf("provider after first success ran %d times, want 0", unused.calls)
	}
}

func TestFetchAllProvidersFail(t *testing.T) {
	t.Parallel()
	p := &Probe{Providers: []Provider{
		&fakeProvider{name: "ipapi", err: errors.New("connection refused")},
		&fakeProvider{name: "ipinfo", err: errors.New("HTTP 429")},
		&fakeProvider{name: "ipgeolocation", err: errors.New("api key required")},
	}}
	got := p.Fetch(context.Background())
	if got.Status != probe.StatusError {
		t.Fatalf("Fetch() status = %q, want %q", got.Status, probe.StatusError)
	}
	for _, fragment := range []string{"ipapi", "ipinfo", "ipgeolocation"} {
		if !strings.Contains(got.Error, fragment) {
			t.Errorf("Fetch() error %q does not mention %q", got.Error, fragment)
		}
	}
}

func TestNewProbeOrder(t *testing.T) {
	t.Parallel()
	p, err := NewProbe(Config{Source: "ipinfo"})
	if err != nil {
		t.Fatalf("NewProbe() = %v, want nil", err)
	}
	var names []string
	for _, provider := range p.Providers {
		names = append(names, provider.Name())
	}
	if diff := deep.Equal(names, []string{"ipinfo", "ipapi", "ipgeolocation"}); diff != nil {
		t.Errorf("NewProbe() provider order: %v", diff)
	}
	if got := p.Name(); got != "ip_info" {
		t.Errorf("Name() = %q, want %q", got, "ip_info")
	}
}

func TestNewProbeUnknownSource(t *testing.T) {
	t.Parallel()
	if _, err := NewProbe(Config{Source: "bogus"}); err == nil {
		t.Fatal("NewProbe(bogus) = nil, want error")
	}
}
