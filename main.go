package main

import (
	"errors"
	"flag"
	"fmt"
	"io"
	"log"
	"os"
	"time"
)

// Version is set at build time via -ldflags
var Version = "dev"

// AppOptions holds the parsed command line
type AppOptions struct {
	ConfigFile    string
	SolutionCache string
	SolveFile     string
	FetchURL      string
	OutputFile    string
	RenderFile    string
	RenderFormat  string
	Simulate      bool
	Evaluate      bool
	Targets       int
	Outliers      int
	Runs          int
	Seed          int64
	Workers       int
	ChartPrefix   string
	Interval      time.Duration
	Verbose       bool
	MqttMode      bool
	HttpMode      bool
	HttpPort      int
}

// Application is what run dispatches to; App implements it.
type Application interface {
	ApplyOptions(opts AppOptions)
	RunSolve() error
	RunFetch() error
	RunSimulate() error
	RunEvaluate() error
	RunService() error
}

func main() {
	log.SetFlags(log.LstdFlags)

	app := NewApp()
	if err := run(os.Args[1:], os.Stdout, app); err != nil {
		if errors.Is(err, flag.ErrHelp) {
			os.Exit(0)
		}
		log.Fatalf("Error: %v", err)
	}
}

// run parses args and dispatches to the selected mode
func run(args []string, out io.Writer, app Application) error {
	fs := flag.NewFlagSet("skylocate", flag.ContinueOnError)
	fs.SetOutput(out)

	var opts AppOptions
	fs.StringVar(&opts.ConfigFile, "config", "config.yaml", "Path to configuration file")
	fs.StringVar(&opts.SolutionCache, "solution-cache", "", "Path to the solution cache file (default from config)")
	fs.StringVar(&opts.SolveFile, "solve", "", "Solve a measurement/observation file (.json or .csv) and exit")
	fs.StringVar(&opts.FetchURL, "fetch", "", "Fetch observations from an HTTP endpoint (solves once, or polls in service mode)")
	fs.StringVar(&opts.OutputFile, "output", "", "Output file: .json, .csv or .geojson (default: JSON on stdout)")
	fs.StringVar(&opts.RenderFile, "render", "", "Write a top view of the solution to this .png or .svg file")
	fs.StringVar(&opts.RenderFormat, "format", "raster", "PNG render format: raster or vector")
	fs.BoolVar(&opts.Simulate, "simulate", false, "Generate a simulated scenario and exit")
	fs.BoolVar(&opts.Evaluate, "evaluate", false, "Run repeated simulations and report accuracy")
	fs.IntVar(&opts.Targets, "targets", 0, "Simulated targets per scenario (default 3)")
	fs.IntVar(&opts.Outliers, "outliers", 0, "Random outlier rays per scenario")
	fs.IntVar(&opts.Runs, "runs", 20, "Number of simulated runs for --evaluate")
	fs.Int64Var(&opts.Seed, "seed", 0, "Random seed (0 = from config, or time-based)")
	fs.IntVar(&opts.Workers, "workers", 0, "Parallel workers (0 = from config)")
	fs.StringVar(&opts.ChartPrefix, "chart", "", "Write accuracy charts to <prefix>_positions.png and <prefix>_errors.png")
	fs.DurationVar(&opts.Interval, "interval", 2*time.Second, "How often the service solves buffered observations")
	fs.BoolVar(&opts.Verbose, "verbose", false, "Log every solve")
	fs.BoolVar(&opts.MqttMode, "mqtt", false, "Run MQTT service mode")
	fs.BoolVar(&opts.HttpMode, "http", false, "Enable HTTP server")
	fs.IntVar(&opts.HttpPort, "http-port", 8080, "HTTP server port (default 8080)")

	if err := fs.Parse(args); err != nil {
		return err
	}

	_, _ = fmt.Fprintf(out, "skylocate version: %s\n", Version)
	app.ApplyOptions(opts)

	switch {
	case opts.Simulate:
		return app.RunSimulate()
	case opts.Evaluate:
		return app.RunEvaluate()
	case opts.SolveFile != "":
		return app.RunSolve()
	case opts.MqttMode || opts.HttpMode:
		return app.RunService()
	case opts.FetchURL != "":
		return app.RunFetch()
	}

	_, _ = fmt.Fprintln(out, "Use --solve=FILE to locate targets in a measurement file")
	_, _ = fmt.Fprintln(out, "Use --fetch=URL to locate targets from an observation endpoint")
	_, _ = fmt.Fprintln(out, "Use --simulate to generate a test scenario")
	_, _ = fmt.Fprintln(out, "Use --evaluate to measure accuracy over simulated runs")
	_, _ = fmt.Fprintln(out, "Use --mqtt and/or --http to run the service")
	_, _ = fmt.Fprintln(out, "\nConfiguration:")
	_, _ = fmt.Fprintln(out, "  config.yaml - cameras, solver parameters and MQTT settings")
	return nil
}
