// ispmon measures the health of an internet connection by running a
// set of independent diagnostic probes (public address lookup, DNS
// configuration, latency, packet loss, jitter, throughput, DNS
// reliability, route stability) and unifying their results into one
// report per cycle.
//
// Reports are archived to dated directories; cmd/hrex examines them.
package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/m-lab/go/flagx"
	"github.com/m-lab/go/memoryless"
	"github.com/m-lab/go/prometheusx"
	"github.com/m-lab/go/rtx"

	"github.com/ispmon/ispmon/archive"
	"github.com/ispmon/ispmon/config"
	"github.com/ispmon/ispmon/monitor"
)

var (
	configPath   = flag.String("config", "", "The path to the YAML configuration file. Empty uses the defaults.")
	reportOutput = flag.String("report-output", "/var/spool/ispmon", "The path to store health reports.")
	oneshot      = flag.Bool("oneshot", false, "Run one collection cycle, print the report, and exit.")
	addrSource   = flagx.Enum{
		Options: config.Sources,
		Value:   "ipapi",
	}
	addrToken = flag.String("address-token", "", "Override the configured address lookup credential.")

	// Variables to aid in testing of main()
	ctx, cancel = context.WithCancel(context.Background())
	logFatal    = log.Fatal
)

func init() {
	flag.Var(&addrSource, "address-source", "Override the configured address lookup provider.")
}

func main() {
	log.SetFlags(log.LstdFlags | log.Lshortfile)

	flag.Parse()
	rtx.Must(flagx.ArgsFromEnv(flag.CommandLine), "failed to get args from environment")

	cfg := config.Default()
	if *configPath != "" {
		var err error
		cfg, err = config.Load(*configPath)
		rtx.Must(err, "failed to load configuration")
	}
	flag.Visit(func(f *flag.Flag) {
		switch f.Name {
		case "address-source":
			cfg.AddressSource = addrSource.Value
		case "address-token":
			cfg.AddressToken = *addrToken
		}
	})

	m, err := monitor.New(cfg)
	rtx.Must(err, "failed to build the probe set")
	writer, err := archive.NewWriter(*reportOutput)
	rtx.Must(err, "failed to create directory for health reports")

	defer cancel()
	go func() {
		sigs := make(chan os.Signal, 1)
		signal.Notify(sigs, syscall.SIGINT, syscall.SIGTERM)
		<-sigs
		cancel()
	}()

	if *oneshot {
		report := m.CollectAll(ctx)
		b, err := json.MarshalIndent(report, "", "  ")
		rtx.Must(err, "failed to marshal the report")
		os.Stdout.Write(append(b, '\n'))
		return
	}

	promSrv := prometheusx.MustServeMetrics()
	defer func() {
		if err := promSrv.Shutdown(ctx); err != nil && !errors.Is(err, context.Canceled) {
			log.Printf("failed to shut down Prometheus server (error: %v)", err)
		}
	}()

	interval := time.Duration(cfg.UpdateInterval) * time.Second
	err = memoryless.Run(ctx, func() { collectAndArchive(m, writer) }, memoryless.Config{
		Expected: interval,
		Min:      interval / 2,
		Max:      2 * interval,
	})
	if err != nil {
		logFatal(err)
	}
}

// collectAndArchive runs one cycle and stores the report. Archiving
// failures are logged, not fatal: the next cycle may well succeed.
func collectAndArchive(m *monitor.Monitor, writer *archive.Writer) {
	report := m.CollectAll(ctx)
	path, err := writer.Write(report)
	if err != nil {
		log.Printf("failed to archive report %s (error: %v)", report.ID, err)
		return
	}
	log.Printf("wrote report %s with %d metrics to %s", report.ID, len(report.Results), path)
}
