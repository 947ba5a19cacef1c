package dnsconfig

import (
	"context"
	"errors"
	"log"
	"net"
	"time"

	"github.com/miekg/dns"

	"github.com/ispmon/ispmon/probe"
)

var errResolution = errors.New("DNS resolution failed")

// Exchanger runs one DNS query against one server. *dns.Client
// satisfies it.
type Exchanger interface {
	ExchangeContext(ctx context.Context, m *dns.Msg, addr string) (*dns.Msg, time.Duration, error)
}

// Config is the detected DNS configuration reported as probe detail.
type Config struct {
	Primary   string   `json:"primary_dns"`
	Secondary string   `json:"secondary_dns"`
	Servers   []string `json:"all_dns_servers"`
	Source    string   `json:"source"`
}

// Probe reports the detected upstream DNS servers and whether names
// currently resolve through the primary one.
type Probe struct {
	Detector *Detector
	// Exchanger runs the resolution test query. Nil uses a dns.Client
	// with a five second timeout.
	Exchanger Exchanger
	// TestDomain is the name resolved to decide online or offline.
	// Empty means google.com.
	TestDomain string
}

// Name returns the metric name.
func (p *Probe) Name() string { return "dns_config" }

// Fetch detects the upstream servers and runs the resolution test.
// Detection itself cannot run out of candidates; only a spent budget
// or a failing resolution test degrades the result.
func (p *Probe) Fetch(ctx context.Context) probe.Result {
	servers, source, err := p.Detector.Chain().Resolve(ctx)
	if err != nil {
		if ctx.Err() != nil {
			return probe.Offline(probe.ErrTimeout)
		}
		return probe.Errorf("detect DNS servers: %v", err)
	}
	cfg := Config{
		Primary:   servers[0],
		Secondary: "None",
		Servers:   servers,
		Source:    source,
	}
	if len(servers) > 1 {
		cfg.Secondary = servers[1]
	}
	if !p.resolves(ctx, cfg.Primary) {
		r := probe.Offline(errResolution)
		r.Detail = cfg
		return r
	}
	r := probe.Online(nil)
	r.Detail = cfg
	return r
}

// resolves reports whether the test domain has at least one A record
// according to the given server.
func (p *Probe) resolves(ctx context.Context, server string) bool {
	domain := p.TestDomain
	if domain == "" {
		domain = "google.com"
	}
	ex := p.Exchanger
	if ex == nil {
		ex = &dns.Client{Timeout: 5 * time.Second}
	}
	m := &dns.Msg{}
	m.SetQuestion(dns.Fqdn(domain), dns.TypeA)
	resp, _, err := ex.ExchangeContext(ctx, m, net.JoinHostPort(server, "53"))
	if err != nil {
		log.Printf("resolution test against %s failed (error: %v)", server, err)
		return false
	}
	return resp.Rcode == dns.RcodeSuccess && len(resp.Answer) > 0
}
