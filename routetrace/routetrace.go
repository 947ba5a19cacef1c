// Package routetrace watches the network path to a target and scores
// how stable the path stays across observations.
package routetrace

import (
	"bytes"
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	pipe "gopkg.in/m-lab/pipe.v3"

	"github.com/ispmon/ispmon/probe"
)

var tracesPerformed = promauto.NewCounterVec(
	prometheus.CounterOpts{
		Name: "route_traces_total",
		Help: "The number of route traces run, by outcome",
	},
	[]string{"outcome"},
)

// Route is the ordered list of hop addresses one trace observed.
type Route []string

// Equal reports whether two routes have the same hops in the same
// order.
func (r Route) Equal(other Route) bool {
	if len(r) != len(other) {
		return false
	}
	for i := range r {
		if r[i] != other[i] {
			return false
		}
	}
	return true
}

// Tracer runs one route trace against a target.
type Tracer interface {
	Trace(ctx context.Context, target string) (Route, error)
}

// CommandTracer shells out to the system traceroute binary.
type CommandTracer struct {
	// Binary is the traceroute executable. Empty means "traceroute".
	Binary string
	// MaxHops caps the probe depth (the -m flag). Zero means ten.
	MaxHops int
	// Timeout is the ceiling on one trace. Zero means thirty seconds.
	// The remaining context budget lowers it further.
	Timeout time.Duration
}

// Trace runs one numeric traceroute and parses the responding hops.
func (t *CommandTracer) Trace(ctx context.Context, target string) (Route, error) {
	binary := t.Binary
	if binary == "" {
		binary = "traceroute"
	}
	maxHops := t.MaxHops
	if maxHops <= 0 {
		maxHops = 10
	}
	timeout := t.Timeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	if deadline, ok := ctx.Deadline(); ok {
		if remaining := time.Until(deadline); remaining < timeout {
			timeout = remaining
		}
	}
	if timeout <= 0 {
		tracesPerformed.WithLabelValues("timeout").Inc()
		return nil, probe.ErrTimeout
	}

	buff := bytes.Buffer{}
	cmd := pipe.Line(
		pipe.Exec(binary, "-n", "-m", strconv.Itoa(maxHops), target),
		pipe.Write(&buff),
	)
	err := pipe.RunTimeout(cmd, timeout)
	if err != nil && err.Error() == pipe.ErrTimeout.Error() {
		tracesPerformed.WithLabelValues("timeout").Inc()
		return nil, probe.ErrTimeout
	}
	if err != nil {
		tracesPerformed.WithLabelValues("failure").Inc()
		return nil, fmt.Errorf("%w: %v", probe.ErrUnavailable, err)
	}
	route := parseRoute(buff.Bytes())
	if len(route) == 0 {
		tracesPerformed.WithLabelValues("failure").Inc()
		return nil, fmt.Errorf("%w: no hops in traceroute output", probe.ErrParse)
	}
	tracesPerformed.WithLabelValues("success").Inc()
	return route, nil
}

// parseRoute extracts the responding hop addresses from numeric
// traceroute output. Hops that never answered show up as "*" and are
// skipped.
func parseRoute(output []byte) Route {
	var route Route
	for _, line := range strings.Split(string(output), "\n") {
		if strings.Contains(line, "traceroute") || strings.TrimSpace(line) == "" {
			continue
		}
		fields := strings.Fields(line)
		if len(fields) >= 3 && fields[1] != "*" {
			route = append(route, fields[1])
		}
	}
	return route
}
