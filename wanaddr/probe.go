package wanaddr

import (
	"context"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/ispmon/ispmon/fallback"
	"github.com/ispmon/ispmon/probe"
)

var addressLookups = promauto.NewCounterVec(
	prometheus.CounterOpts{
		Name: "address_lookups_total",
		Help: "The number of public address lookups, by provider and outcome",
	},
	[]string{"provider", "outcome"},
)

// Config selects the preferred provider and carries the credentials
// the providers need.
type Config struct {
	// Source is the provider tried first. Empty means ipapi.
	Source string
	// Token authenticates against ipinfo.io.
	Token string
	// APIKey authenticates against ipgeolocation.io.
	APIKey string
}

// Order returns the provider try order: the preferred provider first,
// then the free-before-keyed order with the preferred one removed.
func Order(preferred string) []string {
	standard := []string{"ipapi", "ipinfo", "ipgeolocation"}
	if preferred == "" {
		return standard
	}
	order := []string{preferred}
	for _, name := range standard {
		if name != preferred {
			order = append(order, name)
		}
	}
	return order
}

// Probe looks up the public address record, trying each provider in
// order until one answers.
type Probe struct {
	Providers []Provider
}

// NewProbe builds the probe for the given configuration.
func NewProbe(cfg Config) (*Probe, error) {
	pc := ProviderConfig{Token: cfg.Token, APIKey: cfg.APIKey}
	var providers []Provider
	for _, name := range Order(cfg.Source) {
		p, err := New(name, pc)
		if err != nil {
			return nil, err
		}
		providers = append(providers, p)
	}
	return &Probe{Providers: providers}, nil
}

// Name returns the metric name.
func (p *Probe) Name() string { return "ip_info" }

// Fetch resolves the public address record. There is no default
// record: when every provider fails, the aggregated failure is the
// result.
func (p *Probe) Fetch(ctx context.Context) probe.Result {
	methods := make([]fallback.Method[Info], 0, len(p.Providers))
	for _, provider := range p.Providers {
		provider := provider
		methods = append(methods, fallback.Method[Info]{
			Name: provider.Name(),
			Run: func(ctx context.Context) ([]Info, error) {
				info, err := provider.Lookup(ctx)
				if err != nil {
					addressLookups.WithLabelValues(provider.Name(), "failure").Inc()
					return nil, err
				}
				addressLookups.WithLabelValues(provider.Name(), "success").Inc()
				return []Info{info}, nil
			},
		})
	}
	chain := &fallback.Chain[Info]{Methods: methods}
	infos, _, err := chain.Resolve(ctx)
	if err != nil {
		if ctx.Err() != nil {
			return probe.Offline(probe.ErrTimeout)
		}
		return probe.Errorf("%v", err)
	}
	r := probe.Online(nil)
	r.Detail = infos[0]
	return r
}
