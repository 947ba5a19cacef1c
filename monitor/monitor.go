// Package monitor drives the enabled probes and assembles their
// results into one health report per collection cycle.
package monitor

import (
	"context"
	"log"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"golang.org/x/sync/errgroup"

	"github.com/ispmon/ispmon/config"
	"github.com/ispmon/ispmon/dnscheck"
	"github.com/ispmon/ispmon/dnsconfig"
	"github.com/ispmon/ispmon/natinfo"
	"github.com/ispmon/ispmon/pinger"
	"github.com/ispmon/ispmon/probe"
	"github.com/ispmon/ispmon/routetrace"
	"github.com/ispmon/ispmon/speedtest"
	"github.com/ispmon/ispmon/wanaddr"
)

var (
	probeRuns = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "monitor_probe_runs_total",
			Help: "The number of probe runs, by metric and resulting status",
		},
		[]string{"metric", "status"},
	)
	probeDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "monitor_probe_duration_seconds",
			Help:    "How long each probe run took, by metric",
			Buckets: []float64{.1, .5, 1, 5, 10, 30, 60, 120},
		},
		[]string{"metric"},
	)
)

// Report is the outcome of one collection cycle: one entry per
// configured metric, enabled or not. A report is never mutated after
// CollectAll returns it.
type Report struct {
	ID      string                  `json:"report_id"`
	Time    time.Time               `json:"timestamp"`
	Results map[string]probe.Result `json:"results"`
}

// entry pairs a probe with the time budget one of its runs may spend.
type entry struct {
	prober probe.Prober
	budget time.Duration
}

// Monitor owns the probe set built from one configuration. CollectAll
// is not reentrant: the route-stability probe's history must not see
// concurrent cycles. The daemon runs cycles back to back, never
// overlapped.
type Monitor struct {
	entries  []entry
	disabled []string
}

// New builds the probe set for cfg. The address lookup is always
// enabled; every other metric follows its configuration block.
func New(cfg config.Config) (*Monitor, error) {
	addr, err := wanaddr.NewProbe(wanaddr.Config{
		Source: cfg.AddressSource,
		Token:  cfg.AddressToken,
		APIKey: cfg.AddressAPIKey,
	})
	if err != nil {
		return nil, err
	}
	m := &Monitor{}
	// The address probe's providers carry their own timeouts; the 30
	// second budget is an outer ceiling on the whole chain.
	m.entries = append(m.entries, entry{addr, 30 * time.Second})

	runner := &pinger.CommandRunner{}
	m.add(cfg.DNSConfig.On(), entry{&dnsconfig.Probe{Detector: &dnsconfig.Detector{}}, time.Minute}, "dns_config")
	m.add(cfg.Latency.On(), entry{
		&pinger.Latency{Target: cfg.Latency.Target, Count: cfg.Latency.Count, Runner: runner},
		sampleBudget(cfg.Latency.Count),
	}, "latency")
	m.add(cfg.PacketLoss.On(), entry{
		&pinger.PacketLoss{Target: cfg.PacketLoss.Target, Count: cfg.PacketLoss.Count, Runner: runner},
		sampleBudget(cfg.PacketLoss.Count),
	}, "packet_loss")
	m.add(cfg.Jitter.On(), entry{
		&pinger.Jitter{Target: cfg.Jitter.Target, Count: cfg.Jitter.Count, Runner: runner},
		sampleBudget(cfg.Jitter.Count),
	}, "jitter")
	m.add(cfg.Throughput.On(), entry{&speedtest.Probe{}, 150 * time.Second}, "throughput")
	m.add(cfg.DNSReliability.On(), entry{&dnscheck.Probe{}, 30 * time.Second}, "dns_reliability")
	m.add(cfg.RouteStability.On(), entry{
		routetrace.NewProbe(
			cfg.RouteStability.Target,
			&routetrace.CommandTracer{MaxHops: cfg.RouteStability.MaxHops},
			cfg.RouteStability.HistorySize,
		),
		35 * time.Second,
	}, "route_stability")
	m.add(cfg.NATInfo.On(), entry{&natinfo.Probe{}, 30 * time.Second}, "nat_info")
	return m, nil
}

func (m *Monitor) add(enabled bool, e entry, name string) {
	if enabled {
		m.entries = append(m.entries, e)
		return
	}
	m.disabled = append(m.disabled, name)
}

// sampleBudget covers count sequential echoes at the ten second
// per-subprocess ceiling, plus slack for process startup.
func sampleBudget(count int) time.Duration {
	return time.Duration(count)*10*time.Second + 5*time.Second
}

// CollectAll runs every enabled probe concurrently and waits for all
// of them to settle. A probe that fails, panics, or exhausts its
// budget contributes an error or offline entry for its own metric and
// nothing else; the report always carries one entry per configured
// metric.
func (m *Monitor) CollectAll(ctx context.Context) Report {
	report := Report{
		ID:      uuid.NewString(),
		Time:    time.Now().UTC(),
		Results: make(map[string]probe.Result, len(m.entries)+len(m.disabled)),
	}
	var mu sync.Mutex
	var eg errgroup.Group
	for _, e := range m.entries {
		e := e
		eg.Go(func() error {
			r := fetchOne(ctx, e)
			mu.Lock()
			report.Results[e.prober.Name()] = r
			mu.Unlock()
			return nil
		})
	}
	eg.Wait()
	for _, name := range m.disabled {
		report.Results[name] = probe.Disabled()
	}
	return report
}

// fetchOne runs one probe under its budget and contains its failures.
func fetchOne(ctx context.Context, e entry) (result probe.Result) {
	start := time.Now()
	name := e.prober.Name()
	defer func() {
		if r := recover(); r != nil {
			log.Printf("probe %s panicked (recovered: %v)", name, r)
			result = probe.Errorf("probe panicked: %v", r)
		}
		probeRuns.WithLabelValues(name, string(result.Status)).Inc()
		probeDuration.WithLabelValues(name).Observe(time.Since(start).Seconds())
	}()
	ctx, cancel := context.WithTimeout(ctx, e.budget)
	defer cancel()
	return e.prober.Fetch(ctx)
}
