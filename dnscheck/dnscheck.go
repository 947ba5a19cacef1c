// Package dnscheck measures DNS reliability by resolving a fixed set
// of well-known domains and scoring the success rate.
package dnscheck

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net"
	"time"

	"github.com/miekg/dns"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/ispmon/ispmon/probe"
)

var dnsQueries = promauto.NewCounterVec(
	prometheus.CounterOpts{
		Name: "dns_check_queries_total",
		Help: "The number of reliability test queries run, by outcome",
	},
	[]string{"outcome"},
)

// defaultDomains are resolved when the probe is not configured with
// its own list.
var defaultDomains = []string{"google.com", "cloudflare.com", "github.com"}

// Exchanger runs one DNS query against one server. *dns.Client
// satisfies it.
type Exchanger interface {
	ExchangeContext(ctx context.Context, m *dns.Msg, addr string) (*dns.Msg, time.Duration, error)
}

// Probe resolves each test domain once and reports the share that
// succeeded. A success rate at or below fifty percent marks the
// connection offline.
type Probe struct {
	// Domains are the names to resolve. Empty means google.com,
	// cloudflare.com, and github.com.
	Domains []string
	// Server is the resolver to query, host only. Empty picks the
	// first system resolver, or 8.8.8.8 when none is configured.
	Server string
	// Exchanger runs the queries. Nil uses a dns.Client with a five
	// second timeout.
	Exchanger Exchanger
	// ResolvConf is where the system resolver is read from. Empty
	// means /etc/resolv.conf.
	ResolvConf string
}

// Name returns the metric name.
func (p *Probe) Name() string { return "dns_reliability" }

// Fetch runs one query per domain. Individual failures only lower the
// success rate; a domain skipped because the budget ran out counts as
// a failure too.
func (p *Probe) Fetch(ctx context.Context) probe.Result {
	domains := p.Domains
	if len(domains) == 0 {
		domains = defaultDomains
	}
	server := p.server()
	ex := p.Exchanger
	if ex == nil {
		ex = &dns.Client{Timeout: 5 * time.Second}
	}

	successes := 0
	var totalRTT time.Duration
	for _, domain := range domains {
		if ctx.Err() != nil {
			break
		}
		rtt, err := query(ctx, ex, server, domain)
		if err != nil {
			dnsQueries.WithLabelValues("failure").Inc()
			log.Printf("reliability query for %s via %s failed (error: %v)", domain, server, err)
			continue
		}
		dnsQueries.WithLabelValues("success").Inc()
		successes++
		totalRTT += rtt
	}

	rate := probe.Round2(float64(successes) / float64(len(domains)) * 100)
	metrics := map[string]interface{}{
		"overall_success_rate": rate,
		"successful_queries":   successes,
		"total_queries":        len(domains),
	}
	if successes > 0 {
		mean := float64(totalRTT) / float64(successes) / float64(time.Millisecond)
		metrics["average_response_ms"] = probe.Round2(mean)
	}
	r := probe.Online(metrics)
	if rate <= 50 {
		r.Status = probe.StatusOffline
	}
	return r
}

// server picks the resolver to test against.
func (p *Probe) server() string {
	if p.Server != "" {
		return p.Server
	}
	path := p.ResolvConf
	if path == "" {
		path = "/etc/resolv.conf"
	}
	conf, err := dns.ClientConfigFromFile(path)
	if err == nil && len(conf.Servers) > 0 {
		return conf.Servers[0]
	}
	return "8.8.8.8"
}

// query resolves one domain's A records and returns the round-trip
// time of the query.
func query(ctx context.Context, ex Exchanger, server, domain string) (time.Duration, error) {
	m := &dns.Msg{}
	m.SetQuestion(dns.Fqdn(domain), dns.TypeA)
	resp, rtt, err := ex.ExchangeContext(ctx, m, net.JoinHostPort(server, "53"))
	if err != nil {
		return 0, err
	}
	if resp.Rcode != dns.RcodeSuccess {
		return 0, fmt.Errorf("rcode %s", dns.RcodeToString[resp.Rcode])
	}
	if len(resp.Answer) == 0 {
		return 0, errors.New("no answers")
	}
	return rtt, nil
}
