// Package schema defines the archival row form of a health report.
// BigQuery cannot infer schemas for maps, so the per-metric result
// maps are flattened into repeated records before archiving or schema
// generation.
package schema

import (
	"encoding/json"
	"sort"
	"time"

	"github.com/ispmon/ispmon/monitor"
)

// SchemaVersion identifies the row layout. Bump it when the row shape
// changes.
const SchemaVersion = "1"

// MetricValue is one numeric measurement of one probe.
type MetricValue struct {
	Name  string  `json:"name" bigquery:"name"`
	Value float64 `json:"value" bigquery:"value"`
}

// ProbeRow is one probe's outcome in archival form. Detail carries the
// probe-specific structured payload as JSON text; BigQuery consumers
// parse it on demand.
type ProbeRow struct {
	Metric string        `json:"metric" bigquery:"metric"`
	Status string        `json:"status" bigquery:"status"`
	Error  string        `json:"error" bigquery:"error"`
	Values []MetricValue `json:"values" bigquery:"values"`
	Detail string        `json:"detail" bigquery:"detail"`
}

// ReportRow is one collection cycle in archival form.
type ReportRow struct {
	SchemaVersion string     `json:"schema_version" bigquery:"schema_version"`
	ID            string     `json:"report_id" bigquery:"report_id"`
	ReportTime    time.Time  `json:"report_time" bigquery:"report_time"`
	Probes        []ProbeRow `json:"probes" bigquery:"probes"`
}

// FromReport flattens a report into its archival row. Probes are
// ordered by metric name so that identical reports produce identical
// rows.
func FromReport(r monitor.Report) ReportRow {
	row := ReportRow{
		SchemaVersion: SchemaVersion,
		ID:            r.ID,
		ReportTime:    r.Time,
	}
	names := make([]string, 0, len(r.Results))
	for name := range r.Results {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		result := r.Results[name]
		pr := ProbeRow{
			Metric: name,
			Status: string(result.Status),
			Error:  result.Error,
		}
		valueNames := make([]string, 0, len(result.Metrics))
		for vn := range result.Metrics {
			valueNames = append(valueNames, vn)
		}
		sort.Strings(valueNames)
		for _, vn := range valueNames {
			if v, ok := toFloat(result.Metrics[vn]); ok {
				pr.Values = append(pr.Values, MetricValue{Name: vn, Value: v})
			}
		}
		if result.Detail != nil {
			if b, err := json.Marshal(result.Detail); err == nil {
				pr.Detail = string(b)
			}
		}
		row.Probes = append(row.Probes, pr)
	}
	return row
}

func toFloat(v interface{}) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case float32:
		return float64(n), true
	case int:
		return float64(n), true
	case int64:
		return float64(n), true
	}
	return 0, false
}
