package pinger

import (
	"math"

	"github.com/ispmon/ispmon/probe"
)

// Stats summarizes one sampling run. All millisecond values are
// rounded to two decimals and computed over the echoes that succeeded;
// their order does not matter.
type Stats struct {
	Sent     int
	Received int
	Min      float64
	Average  float64
	Max      float64
	// Stddev is the population standard deviation of the round-trip
	// times. It is only meaningful when Received >= 2.
	Stddev float64
	// Loss is the percentage of sent echoes that went unanswered.
	Loss float64
}

// Summarize aggregates the successful round-trip times out of sent
// attempts.
func Summarize(sent int, rtts []float64) Stats {
	s := Stats{Sent: sent, Received: len(rtts)}
	if sent > 0 {
		s.Loss = probe.Round2(float64(sent-len(rtts)) / float64(sent) * 100)
	}
	if len(rtts) == 0 {
		return s
	}
	min, max, sum := rtts[0], rtts[0], 0.0
	for _, rtt := range rtts {
		if rtt < min {
			min = rtt
		}
		if rtt > max {
			max = rtt
		}
		sum += rtt
	}
	mean := sum / float64(len(rtts))
	s.Min = probe.Round2(min)
	s.Average = probe.Round2(mean)
	s.Max = probe.Round2(max)
	if len(rtts) >= 2 {
		var squares float64
		for _, rtt := range rtts {
			d := rtt - mean
			squares += d * d
		}
		s.Stddev = probe.Round2(math.Sqrt(squares / float64(len(rtts))))
	}
	return s
}
