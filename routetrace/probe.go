package routetrace

import (
	"context"

	"github.com/ispmon/ispmon/probe"
)

// Detail is the structured payload of a route-stability result.
type Detail struct {
	Stability    float64 `json:"overall_stability"`
	RouteChanges int     `json:"route_changes"`
	HopCount     int     `json:"hop_count"`
	Route        Route   `json:"current_route"`
}

// Probe traces the path to one target and scores its stability against
// the remembered history. It is the only stateful probe: the history
// belongs to this instance and must not be shared across instances or
// across concurrent runs of the same instance.
type Probe struct {
	Target  string
	tracer  Tracer
	history *History
}

// NewProbe builds a route-stability probe for target with a history of
// the given capacity. A nil tracer uses the system traceroute binary.
func NewProbe(target string, tracer Tracer, capacity int) *Probe {
	if tracer == nil {
		tracer = &CommandTracer{}
	}
	return &Probe{
		Target:  target,
		tracer:  tracer,
		history: NewHistory(capacity),
	}
}

// Name returns the metric name.
func (p *Probe) Name() string { return "route_stability" }

// Fetch runs one trace. A failed trace leaves the history untouched
// and reports offline; a successful one is appended before scoring, so
// the score always covers the route just observed.
func (p *Probe) Fetch(ctx context.Context) probe.Result {
	route, err := p.tracer.Trace(ctx, p.Target)
	if err != nil {
		if ctx.Err() != nil {
			return probe.Offline(probe.ErrTimeout)
		}
		return probe.Offline(err)
	}
	p.history.Append(route)
	stability := p.history.Stability()
	r := probe.Online(map[string]interface{}{"average": stability})
	r.Detail = Detail{
		Stability:    stability,
		RouteChanges: p.history.Comparisons(),
		HopCount:     len(route),
		Route:        route,
	}
	return r
}
