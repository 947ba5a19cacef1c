package dnscheck

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/miekg/dns"

	"github.com/ispmon/ispmon/probe"
)

// fakeExchanger answers per-domain: domains in fail get an error,
// everything else resolves with one A record.
type fakeExchanger struct {
	fail  map[string]bool
	rtt   time.Duration
	calls int
}

func (f *fakeExchanger) ExchangeContext(ctx context.Context, m *dns.Msg, addr string) (*dns.Msg, time.Duration, error) {
	f.calls++
	name := m.Question[0].Name
	if f.fail[name] {
		return nil, 0, errors.New("i/o timeout")
	}
	resp := &dns.Msg{}
	resp.SetReply(m)
	rr, err := dns.NewRR(name + " 300 IN A 203.0.113.10")
	if err != nil {
		return nil, 0, err
	}
	resp.Answer = append(resp.Answer, rr)
	return resp, f.rtt, nil
}

func TestFetchAllSucceed(t *testing.T) {
	t.Parallel()
	ex := &fakeExchanger{rtt: 20 * time.Millisecond}
	p := &Probe{Server: "8.8.8.8", Exchanger: ex}
	got := p.Fetch(context.Background())
	if got.Status != probe.StatusOnline {
		t.Fatalf("Fetch() status = %q, want %q", got.Status, probe.StatusOnline)
	}
	if got.Metrics["overall_success_rate"] != 100.0 {
		t.Errorf("success rate = %v, want 100", got.Metrics["overall_success_rate"])
	}
	if got.Metrics["successful_queries"] != 3 {
		t.Errorf("successful_queries = %v, want 3", got.Metrics["successful_queries"])
	}
	if got.Metrics["total_queries"] != 3 {
		t.Errorf("total_queries = %v, want 3", got.Metrics["total_queries"])
	}
	if got.Metrics["average_response_ms"] != 20.0 {
		t.Errorf("average_response_ms = %v, want 20", got.Metrics["average_response_ms"])
	}
	if ex.calls != 3 {
		t.Errorf("exchanger ran %d times, want 3", ex.calls)
	}
}

func TestFetchMajorityFails(t *testing.T) {
	t.Parallel()
	ex := &fakeExchanger{fail: map[string]bool{
		"google.com.":     true,
		"cloudflare.com.": true,
	}}
	p := &Probe{Server: "8.8.8.8", Exchanger: ex}
	got := p.Fetch(context.Background())
	if got.Status != probe.StatusOffline {
		t.Fatalf("Fetch() status = %q, want %q", got.Status, probe.StatusOffline)
	}
	if got.Metrics["overall_success_rate"] != 33.33 {
		t.Errorf("success rate = %v, want 33.33", got.Metrics["overall_success_rate"])
	}
}

func TestFetchExactlyHalfIsOffline(t *testing.T) {
	t.Parallel()
	ex := &fakeExchanger{fail: map[string]bool{
		"a.example.": true,
		"b.example.": true,
	}}
	p := &Probe{
		Domains:   []string{"a.example", "b.example", "c.example", "d.example"},
		Server:    "8.8.8.8",
		Exchanger: ex,
	}
	got := p.Fetch(context.Background())
	if got.Status != probe.StatusOffline {
		t.Fatalf("Fetch() status = %q, want %q; a half success rate is not online", got.Status, probe.StatusOffline)
	}
	if got.Metrics["overall_success_rate"] != 50.0 {
		t.Errorf("success rate = %v, want 50", got.Metrics["overall_success_rate"])
	}
}

func TestServerFromResolvConf(t *testing.T) {
	t.Parallel()
	path := filepath.Join(t.TempDir(), "resolv.conf")
	if err := os.WriteFile(path, []byte("nameserver 75.75.75.75\n"), 0o644); err != nil {
		t.Fatalf("WriteFile() = %v, want nil", err)
	}
	p := &Probe{ResolvConf: path}
	if got := p.server(); got != "75.75.75.75" {
		t.Errorf("server() = %q, want %q", got, "75.75.75.75")
	}

	missing := &Probe{ResolvConf: filepath.Join(t.TempDir(), "missing")}
	if got := missing.server(); got != "8.8.8.8" {
		t.Errorf("server() = %q, want the public default %q", got, "8.8.8.8")
	}
}

func TestFetchSpentBudget(t *testing.T) {
	t.Parallel()
	ctx, cancel := context.WithDeadline(context.Background(), time.Now().Add(-time.Second))
	defer cancel()
	ex := &fakeExchanger{}
	p := &Probe{Server: "8.8.8.8", Exchanger: ex}
	got := p.Fetch(ctx)
	if got.Status != probe.StatusOffline {
		t.Fatalf("Fetch() status = %q, want %q", got.Status, probe.StatusOffline)
	}
	if got.Metrics["overall_success_rate"] != 0.0 {
		t.Errorf("success rate = %v, want 0", got.Metrics["overall_success_rate"])
	}
	if ex.calls != 0 {
		t.Errorf("exchanger ran %d times after the deadline, want 0", ex.calls)
	}
}
