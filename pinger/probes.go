package pinger

import (
	"context"
	"log"

	"github.com/ispmon/ispmon/probe"
)

// Latency reports round-trip time statistics for one target.
type Latency struct {
	Target string
	Count  int
	Runner Runner
}

// Name returns the metric name.
func (p *Latency) Name() string { return "latency" }

// Fetch runs the configured number of echoes and reports the average,
// minimum, and maximum round-trip time over the ones that succeeded.
func (p *Latency) Fetch(ctx context.Context) probe.Result {
	s := collect(ctx, p.Runner, p.Target, p.Count)
	if s.Received == 0 {
		return offline(ctx, ErrNoSamples)
	}
	return probe.Online(map[string]interface{}{
		"average": s.Average,
		"min":     s.Min,
		"max":     s.Max,
	})
}

// PacketLoss reports the share of echoes that went unanswered.
type PacketLoss struct {
	Target string
	Count  int
	Runner Runner
}

// Name returns the metric name.
func (p *PacketLoss) Name() string { return "packet_loss" }

// Fetch reports the loss percentage. Loss at or above fifty percent
// marks the connection offline; the percentage is reported either way.
func (p *PacketLoss) Fetch(ctx context.Context) probe.Result {
	s := collect(ctx, p.Runner, p.Target, p.Count)
	r := probe.Online(map[string]interface{}{"average": s.Loss})
	if s.Loss >= 50 {
		r.Status = probe.StatusOffline
	}
	return r
}

// Jitter reports latency variation for one target.
type Jitter struct {
	Target string
	Count  int
	Runner Runner
}

// Name returns the metric name.
func (p *Jitter) Name() string { return "jitter" }

// Fetch reports the population standard deviation of the round-trip
// times. Jitter is undefined for fewer than two successful echoes.
func (p *Jitter) Fetch(ctx context.Context) probe.Result {
	s := collect(ctx, p.Runner, p.Target, p.Count)
	if s.Received < 2 {
		return offline(ctx, ErrInsufficient)
	}
	return probe.Online(map[string]interface{}{"average": s.Stddev})
}

// collect runs count sequential echoes against target. A failed echo
// shrinks the sample set and nothing else.
func collect(ctx context.Context, r Runner, target string, count int) Stats {
	var rtts []float64
	for i := 0; i < count; i++ {
		rtt, err := r.Ping(ctx, target)
		if err != nil {
			log.Printf("echo %d/%d to %s failed (error: %v)", i+1, count, target, err)
			continue
		}
		rtts = append(rtts, rtt)
	}
	return Summarize(count, rtts)
}

// offline maps a failed run to its result. A spent budget takes
// precedence over the statistical reason.
func offline(ctx context.Context, reason error) probe.Result {
	if ctx.Err() != nil {
		return probe.Offline(probe.ErrTimeout)
	}
	return probe.Offline(reason)
}
