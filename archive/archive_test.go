package archive

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/go-test/deep"

	"github.com/ispmon/ispmon/monitor"
	"github.com/ispmon/ispmon/probe"
	"github.com/ispmon/ispmon/schema"
)

func TestWriteReadRoundTrip(t *testing.T) {
	t.Parallel()
	w, err := NewWriter(t.TempDir())
	if err != nil {
		t.Fatalf("NewWriter() = %v, want nil", err)
	}
	report := monitor.Report{
		ID:   "report-1",
		Time: time.Date(2026, 8, 29, 12, 0, 0, 0, time.UTC),
		Results: map[string]probe.Result{
			"latency": {
				Status:  probe.StatusOnline,
				Metrics: map[string]interface{}{"average": 11.5},
			},
		},
	}
	path, err := w.Write(report)
	if err != nil {
		t.Fatalf("Write() = %v, want nil", err)
	}
	if dir := filepath.Dir(path); dir != w.DayDir(report.Time) {
		t.Errorf("report written to %s, want %s", dir, w.DayDir(report.Time))
	}
	if !strings.Contains(filepath.Base(path), report.ID) {
		t.Errorf("file name %s does not carry the report ID", filepath.Base(path))
	}
	got, err := Read(path)
	if err != nil {
		t.Fatalf("Read() = %v, want nil", err)
	}
	if diff := deep.Equal(got, schema.FromReport(report)); diff != nil {
		t.Errorf("round trip mismatch: %v", diff)
	}
}

func TestReadRejectsGarbage(t *testing.T) {
	t.Parallel()
	dir := t.TempDir()
	path := filepath.Join(dir, "bad.json")
	if err := os.WriteFile(path, []byte("not json"), 0o644); err != nil {
		t.Fatal(err)
	}
	if _, err := Read(path); err == nil {
		t.Fatal("Read() accepted malformed JSON")
	}
	if _, err := Read(filepath.Join(dir, "missing.json")); err == nil {
		t.Fatal("Read() accepted a missing file")
	}
}
