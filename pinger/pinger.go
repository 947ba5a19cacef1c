// Package pinger measures round-trip latency, packet loss, and jitter
// by running single-echo pings against a target and aggregating the
// outcomes.
package pinger

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	pipe "gopkg.in/m-lab/pipe.v3"

	"github.com/ispmon/ispmon/probe"
)

var (
	ErrNoSamples    = errors.New("all attempts failed")
	ErrInsufficient = errors.New("insufficient data")
)

var echoRequests = promauto.NewCounterVec(
	prometheus.CounterOpts{
		Name: "echo_requests_total",
		Help: "The number of echo requests run, by outcome",
	},
	[]string{"outcome"},
)

// Runner sends one echo request and reports the round-trip time in
// milliseconds. A failed or unanswered echo returns an error.
type Runner interface {
	Ping(ctx context.Context, target string) (float64, error)
}

// CommandRunner runs the system ping binary, one echo per call.
type CommandRunner struct {
	// Binary is the ping executable. Empty means "ping".
	Binary string
	// Wait is how long one echo waits for its reply (the -W flag,
	// whole seconds). Zero means five seconds.
	Wait time.Duration
	// Timeout is the hard ceiling on one ping subprocess. Zero means
	// ten seconds.
	Timeout time.Duration
}

// Ping sends a single echo request. The remaining context budget caps
// the subprocess timeout, so a run whose deadline has passed fails
// immediately instead of starting another subprocess.
func (r *CommandRunner) Ping(ctx context.Context, target string) (float64, error) {
	binary := r.Binary
	if binary == "" {
		binary = "ping"
	}
	wait := int(r.Wait / time.Second)
	if wait <= 0 {
		wait = 5
	}
	timeout := r.Timeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	if deadline, ok := ctx.Deadline(); ok {
		if remaining := time.Until(deadline); remaining < timeout {
			timeout = remaining
		}
	}
	if timeout <= 0 {
		echoRequests.WithLabelValues("timeout").Inc()
		return 0, probe.ErrTimeout
	}

	buff := bytes.Buffer{}
	cmd := pipe.Line(
		pipe.Exec(binary, "-c", "1", "-W", strconv.Itoa(wait), target),
		pipe.Write(&buff),
	)
	err := pipe.RunTimeout(cmd, timeout)
	if err != nil && err.Error() == pipe.ErrTimeout.Error() {
		echoRequests.WithLabelValues("timeout").Inc()
		return 0, probe.ErrTimeout
	}
	if err != nil {
		echoRequests.WithLabelValues("failure").Inc()
		return 0, fmt.Errorf("%w: %v", probe.ErrUnavailable, err)
	}
	rtt, err := parseRTT(buff.Bytes())
	if err != nil {
		echoRequests.WithLabelValues("parse").Inc()
		return 0, err
	}
	echoRequests.WithLabelValues("success").Inc()
	return rtt, nil
}

// parseRTT extracts the round-trip time in milliseconds from
// single-echo ping output, e.g.
// "64 bytes from 8.8.8.8: icmp_seq=1 ttl=118 time=11.9 ms".
func parseRTT(output []byte) (float64, error) {
	for _, line := range strings.Split(string(output), "\n") {
		i := strings.Index(line, "time=")
		if i < 0 {
			continue
		}
		fields := strings.Fields(line[i+len("time="):])
		if len(fields) == 0 {
			break
		}
		rtt, err := strconv.ParseFloat(fields[0], 64)
		if err != nil {
			return 0, fmt.Errorf("%w: bad rtt %q", probe.ErrParse, fields[0])
		}
		return rtt, nil
	}
	return 0, fmt.Errorf("%w: no rtt in ping output", probe.ErrParse)
}
