package speedtest

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/ispmon/ispmon/probe"
)

func TestFetchBothDirections(t *testing.T) {
	t.Parallel()
	payload := make([]byte, 256*1024)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.Method {
		case http.MethodGet:
			w.Write(payload)
		case http.MethodPost:
			io.Copy(io.Discard, r.Body)
			w.WriteHeader(http.StatusOK)
		}
	}))
	defer srv.Close()

	p := &Probe{
		DownloadURL: srv.URL + "/down",
		UploadURL:   srv.URL + "/up",
		UploadBytes: 64 * 1024,
		Client:      srv.Client(),
	}
	r := p.Fetch(context.Background())
	if r.Status != probe.StatusOnline {
		t.Fatalf("Fetch() status = %q (error %q), want online", r.Status, r.Error)
	}
	for _, key := range []string{"download_mbps", "upload_mbps", "ping_ms"} {
		v, ok := r.Metrics[key].(float64)
		if !ok {
			t.Errorf("metrics[%s] missing or not a float: %v", key, r.Metrics[key])
			continue
		}
		if key != "ping_ms" && v <= 0 {
			t.Errorf("metrics[%s] = %v, want > 0", key, v)
		}
	}
}

func TestFetchDownloadFailure(t *testing.T) {
	t.Parallel()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "no", http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	p := &Probe{DownloadURL: srv.URL, UploadURL: srv.URL, Client: srv.Client()}
	r := p.Fetch(context.Background())
	if r.Status != probe.StatusOffline {
		t.Fatalf("Fetch() status = %q, want offline", r.Status)
	}
	if r.Error == "" {
		t.Error("offline result carries no error text")
	}
}

func TestFetchUploadFailureKeepsDownload(t *testing.T) {
	t.Parallel()
	payload := make([]byte, 64*1024)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method == http.MethodPost {
			http.Error(w, "no", http.StatusBadGateway)
			return
		}
		w.Write(payload)
	}))
	defer srv.Close()

	p := &Probe{
		DownloadURL: srv.URL + "/down",
		UploadURL:   srv.URL + "/up",
		UploadBytes: 1024,
		Client:      srv.Client(),
	}
	r := p.Fetch(context.Background())
	if r.Status != probe.StatusOnline {
		t.Fatalf("Fetch() status = %q, want online", r.Status)
	}
	if _, ok := r.Metrics["download_mbps"]; !ok {
		t.Error("download_mbps missing after upload failure")
	}
	if _, ok := r.Metrics["upload_mbps"]; ok {
		t.Error("upload_mbps reported although the upload failed")
	}
}

func TestFetchSpentBudget(t *testing.T) {
	t.Parallel()
	ctx, cancel := context.WithTimeout(context.Background(), time.Nanosecond)
	defer cancel()
	time.Sleep(time.Millisecond)
	p := &Probe{DownloadURL: "http://127.0.0.1:0/never"}
	r := p.Fetch(ctx)
	if r.Status != probe.StatusOffline {
		t.Fatalf("Fetch() status = %q, want offline", r.Status)
	}
	if r.Error != probe.ErrTimeout.Error() {
		t.Errorf("Fetch() error = %q, want %q", r.Error, probe.ErrTimeout)
	}
}

func TestMbps(t *testing.T) {
	t.Parallel()
	// 1,250,000 bytes in one second is exactly 10 Mbit/s.
	if got := mbps(1_250_000, time.Second); got != 10.0 {
		t.Errorf("mbps() = %v, want 10.0", got)
	}
}
