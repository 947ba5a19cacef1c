// hrex is the health report examiner. It walks archived report files
// and summarizes per-metric outcomes, so that an operator can answer
// "when did the connection degrade and which probe saw it" without
// loading anything into a database.
package main

import (
	"flag"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"

	"github.com/ispmon/ispmon/archive"
	"github.com/ispmon/ispmon/schema"
)

var (
	metricFilter = flag.String("m", "", "only print results for the named metric")
	errorsOnly   = flag.Bool("e", false, "print only probes whose status is error or offline")
	verbose      = flag.Bool("v", false, "enable verbose mode (mostly for debugging)")

	// Statistics printed before exiting.
	nFilesFound   uint32 // files found
	nFilesSkipped uint32 // files skipped (not .json)
	nReadErrors   uint32 // files that couldn't be read or parsed
	nFilesParsed  uint32 // files successfully parsed
	nProbeErrors  uint32 // probe results with error or offline status
)

func usage() {
	fmt.Fprintf(os.Stderr, "Usage: %s [-ev] [-m <metric>] path [path...]\n", os.Args[0])
	fmt.Fprintf(os.Stderr, "path  a pathname to a file or directory (if directory, all files are processed recursively)\n")
	fmt.Fprintf(os.Stderr, "-h    print usage message and exit\n")
	flag.VisitAll(func(f *flag.Flag) {
		fmt.Fprintf(os.Stderr, "-%v    %v\n", f.Name, f.Usage)
	})
}

func main() {
	flag.Usage = usage
	flag.Parse()
	if flag.NArg() == 0 {
		usage()
		os.Exit(1)
	}
	for _, path := range flag.Args() {
		stat, err := os.Stat(path)
		if err != nil {
			fmt.Fprintf(os.Stderr, "%s: %v\n", path, err)
			continue
		}
		if stat.IsDir() {
			if err := filepath.Walk(path, walk); err != nil {
				fmt.Fprintf(os.Stderr, "%s: %v\n", path, err)
			}
		} else {
			examine(path)
		}
	}
	printStats()
}

func walk(path string, info fs.FileInfo, err error) error {
	if err != nil {
		return err
	}
	if info.Mode().IsRegular() {
		examine(path)
	}
	return nil
}

// examine prints the matching probe results of one archived report.
func examine(fileName string) {
	nFilesFound++
	if filepath.Ext(fileName) != ".json" {
		nFilesSkipped++
		if *verbose {
			fmt.Printf("skipping %s (not .json)\n", fileName)
		}
		return
	}
	row, err := archive.Read(fileName)
	if err != nil {
		fmt.Fprintf(os.Stderr, "%s: %v\n", fileName, err)
		nReadErrors++
		return
	}
	nFilesParsed++
	for _, p := range row.Probes {
		if *metricFilter != "" && p.Metric != *metricFilter {
			continue
		}
		degraded := p.Status == "error" || p.Status == "offline"
		if degraded {
			nProbeErrors++
		}
		if *errorsOnly && !degraded {
			continue
		}
		printProbe(row, p, fileName)
	}
}

func printProbe(row schema.ReportRow, p schema.ProbeRow, fileName string) {
	fmt.Printf("%s %-16s %-8s", row.ReportTime.Format("2006-01-02T15:04:05Z"), p.Metric, p.Status)
	for _, v := range p.Values {
		fmt.Printf(" %s=%.2f", v.Name, v.Value)
	}
	if p.Error != "" {
		fmt.Printf(" error=%q", p.Error)
	}
	if *verbose {
		fmt.Printf(" file=%s", fileName)
		if p.Detail != "" {
			fmt.Printf(" detail=%s", p.Detail)
		}
	}
	fmt.Println()
}

func printStats() {
	fmt.Printf("\nfiles found:     %8d\n", nFilesFound)
	fmt.Printf("files skipped:   %8d\n", nFilesSkipped)
	fmt.Printf("read errors:     %8d\n", nReadErrors)
	fmt.Printf("files parsed:    %8d\n", nFilesParsed)
	fmt.Printf("degraded probes: %8d\n", nProbeErrors)
}
