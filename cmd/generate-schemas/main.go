package main

import (
	"flag"
	"os"

	"github.com/m-lab/go/cloud/bqx"
	"github.com/m-lab/go/rtx"

	"cloud.google.com/go/bigquery"

	"github.com/ispmon/ispmon/schema"
)

var reportSchema string

func init() {
	flag.StringVar(&reportSchema, "report", "/var/spool/datatypes/health_report.json", "filename to write the health report schema")
}

func main() {
	flag.Parse()

	// Generate and save the health report schema for autoloading.
	row := schema.ReportRow{}
	sch, err := bigquery.InferSchema(row)
	rtx.Must(err, "failed to generate health report schema")
	sch = bqx.RemoveRequired(sch)
	b, err := sch.ToJSONFields()
	rtx.Must(err, "failed to marshal schema")
	rtx.Must(os.WriteFile(reportSchema, b, 0o644), "failed to write schema")
}
