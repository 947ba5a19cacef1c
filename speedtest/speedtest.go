// Package speedtest measures connection throughput by transferring a
// known volume of data against a public bandwidth-measurement service
// and timing the transfer.
package speedtest

import (
	"bytes"
	"context"
	"crypto/rand"
	"fmt"
	"io"
	"log"
	"net/http"
	"net/http/httptrace"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/ispmon/ispmon/probe"
)

var transfersPerformed = promauto.NewCounterVec(
	prometheus.CounterOpts{
		Name: "speedtest_transfers_total",
		Help: "The number of throughput transfers run, by direction and outcome",
	},
	[]string{"direction", "outcome"},
)

const (
	defaultDownloadURL = "https://speed.cloudflare.com/__down?bytes=10000000"
	defaultUploadURL   = "https://speed.cloudflare.com/__up"
	defaultUploadBytes = 2_000_000
)

// Probe measures download and upload throughput in megabits per
// second, plus the time to first byte of the download as a ping
// approximation.
type Probe struct {
	// DownloadURL serves a fixed-size payload. Empty uses the
	// Cloudflare speed endpoint with a ten megabyte payload.
	DownloadURL string
	// UploadURL accepts POSTed payloads. Empty uses the Cloudflare
	// speed endpoint.
	UploadURL string
	// UploadBytes is the upload payload size. Zero means two
	// megabytes.
	UploadBytes int
	// Client issues the transfers. Nil uses a client with a two
	// minute timeout.
	Client *http.Client
}

// Name returns the metric name.
func (p *Probe) Name() string { return "throughput" }

// Fetch runs the download measurement and then the upload measurement.
// A failed download marks the connection offline; a failed upload only
// drops the upload figure, since the download already proved the
// connection moves data.
func (p *Probe) Fetch(ctx context.Context) probe.Result {
	downMbps, pingMs, err := p.download(ctx)
	if err != nil {
		transfersPerformed.WithLabelValues("download", "failure").Inc()
		if ctx.Err() != nil {
			return probe.Offline(probe.ErrTimeout)
		}
		return probe.Offline(fmt.Errorf("%w: %v", probe.ErrUnavailable, err))
	}
	transfersPerformed.WithLabelValues("download", "success").Inc()

	metrics := map[string]interface{}{
		"download_mbps": downMbps,
		"ping_ms":       pingMs,
	}
	upMbps, err := p.upload(ctx)
	if err != nil {
		transfersPerformed.WithLabelValues("upload", "failure").Inc()
		log.Printf("upload measurement failed (error: %v)", err)
	} else {
		transfersPerformed.WithLabelValues("upload", "success").Inc()
		metrics["upload_mbps"] = upMbps
	}
	return probe.Online(metrics)
}

func (p *Probe) client() *http.Client {
	if p.Client != nil {
		return p.Client
	}
	return &http.Client{Timeout: 2 * time.Minute}
}

// download fetches the payload, timing the transfer from the first
// response byte so that server think time does not count against
// bandwidth, and returns Mbps plus time to first byte in milliseconds.
func (p *Probe) download(ctx context.Context) (float64, float64, error) {
	url := p.DownloadURL
	if url == "" {
		url = defaultDownloadURL
	}
	var firstByte time.Time
	trace := &httptrace.ClientTrace{
		GotFirstResponseByte: func() { firstByte = time.Now() },
	}
	req, err := http.NewRequestWithContext(httptrace.WithClientTrace(ctx, trace), http.MethodGet, url, nil)
	if err != nil {
		return 0, 0, err
	}
	start := time.Now()
	resp, err := p.client().Do(req)
	if err != nil {
		return 0, 0, err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return 0, 0, fmt.Errorf("download status %s", resp.Status)
	}
	n, err := io.Copy(io.Discard, resp.Body)
	if err != nil {
		return 0, 0, err
	}
	if firstByte.IsZero() {
		firstByte = start
	}
	elapsed := time.Since(firstByte)
	pingMs := probe.Round2(float64(firstByte.Sub(start)) / float64(time.Millisecond))
	return mbps(n, elapsed), pingMs, nil
}

// upload POSTs a random payload and returns Mbps over the whole
// request, response included.
func (p *Probe) upload(ctx context.Context) (float64, error) {
	url := p.UploadURL
	if url == "" {
		url = defaultUploadURL
	}
	size := p.UploadBytes
	if size <= 0 {
		size = defaultUploadBytes
	}
	payload := make([]byte, size)
	if _, err := rand.Read(payload); err != nil {
		return 0, err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(payload))
	if err != nil {
		return 0, err
	}
	req.Header.Set("Content-Type", "application/octet-stream")
	start := time.Now()
	resp, err := p.client().Do(req)
	if err != nil {
		return 0, err
	}
	defer resp.Body.Close()
	io.Copy(io.Discard, resp.Body)
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return 0, fmt.Errorf("upload status %s", resp.Status)
	}
	return mbps(int64(size), time.Since(start)), nil
}

// mbps converts a byte count over a duration into megabits per second.
func mbps(n int64, elapsed time.Duration) float64 {
	if elapsed <= 0 {
		elapsed = time.Nanosecond
	}
	bits := float64(n) * 8
	return probe.Round2(bits / elapsed.Seconds() / 1e6)
}
