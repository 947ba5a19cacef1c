// Package probe defines the contract between the connection monitor
// and the individual health probes, along with the result values that
// all probes report.
package probe

import (
	"context"
	"errors"
	"fmt"
	"math"
	"time"
)

var (
	ErrTimeout     = errors.New("timed out")
	ErrUnavailable = errors.New("external source unavailable")
	ErrParse       = errors.New("malformed payload")
)

// Status classifies the outcome of a single probe run.
type Status string

const (
	StatusOnline   Status = "online"
	StatusOffline  Status = "offline"
	StatusDisabled Status = "disabled"
	StatusError    Status = "error"
)

// Result is the outcome of one probe run. Metrics holds the numeric
// measurements keyed by name, Detail holds probe-specific structured
// data (e.g., the current route or the resolved address record), and
// Error holds the failure text for offline and error results.
type Result struct {
	Status    Status                 `json:"status"`
	Metrics   map[string]interface{} `json:"metrics,omitempty"`
	Detail    interface{}            `json:"detail,omitempty"`
	Error     string                 `json:"error,omitempty"`
	Timestamp time.Time              `json:"timestamp"`
}

// Prober is a single connection-health probe. Fetch runs one
// measurement and reports its outcome. Implementations must honor ctx
// cancellation, must return within their configured budget, and must
// never panic across the Fetch boundary.
type Prober interface {
	Name() string
	Fetch(ctx context.Context) Result
}

// Online returns a successful result carrying the given metrics.
func Online(metrics map[string]interface{}) Result {
	return Result{
		Status:    StatusOnline,
		Metrics:   metrics,
		Timestamp: time.Now().UTC(),
	}
}

// Offline returns a degraded result recording why the measurement
// found the connection unusable.
func Offline(reason error) Result {
	r := Result{
		Status:    StatusOffline,
		Timestamp: time.Now().UTC(),
	}
	if reason != nil {
		r.Error = reason.Error()
	}
	return r
}

// Disabled returns the result reported for a probe that is configured
// off. It carries no metrics.
func Disabled() Result {
	return Result{
		Status:    StatusDisabled,
		Timestamp: time.Now().UTC(),
	}
}

// Errorf returns a failed result. The message must describe the
// failure; an error result always carries a non-empty Error.
func Errorf(format string, args ...interface{}) Result {
	return Result{
		Status:    StatusError,
		Error:     fmt.Sprintf(format, args...),
		Timestamp: time.Now().UTC(),
	}
}

// Round2 rounds a measurement to two decimal places, the precision at
// which all probes report numeric metrics.
func Round2(v float64) float64 {
	return math.Round(v*100) / 100
}
