package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"math/rand"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/kwv/skylocate/locate"
)

// App encapsulates the application state and dependencies
type App struct {
	Config       *locate.Config
	Solver       *locate.Solver
	StateTracker *locate.StateTracker
	MQTTClient   *locate.MQTTClient
	Publisher    *locate.Publisher

	// Out receives reports and stdout output
	Out io.Writer

	// CLI Flags (effectively dependencies)
	ConfigFile    string
	SolutionCache string
	SolveFile     string
	FetchURL      string
	OutputFile    string
	RenderFile    string
	RenderFormat  string
	Targets       int
	Outliers      int
	Runs          int
	Seed          int64
	Workers       int
	ChartPrefix   string
	Interval      time.Duration
	Verbose       bool
	HttpPort      int
	MqttMode      bool
	HttpMode      bool
}

// NewApp creates a new App instance
func NewApp() *App {
	return &App{
		StateTracker: locate.NewStateTracker(locate.DefaultWindow),
		Out:          os.Stdout,
		Interval:     2 * time.Second,
	}
}

// ApplyOptions applies CLI options to the App instance
func (a *App) ApplyOptions(opts AppOptions) {
	a.ConfigFile = opts.ConfigFile
	a.SolutionCache = opts.SolutionCache
	a.SolveFile = opts.SolveFile
	a.FetchURL = opts.FetchURL
	a.OutputFile = opts.OutputFile
	a.RenderFile = opts.RenderFile
	a.RenderFormat = opts.RenderFormat
	a.Targets = opts.Targets
	a.Outliers = opts.Outliers
	a.Runs = opts.Runs
	a.Seed = opts.Seed
	a.Workers = opts.Workers
	a.ChartPrefix = opts.ChartPrefix
	a.Interval = opts.Interval
	a.Verbose = opts.Verbose
	a.HttpPort = opts.HttpPort
	a.MqttMode = opts.MqttMode
	a.HttpMode = opts.HttpMode
}

// loadConfig reads the config file. A missing default config.yaml yields the
// built-in defaults; a missing explicitly named file is an error.
// CLI seed, worker and verbose settings override the file.
func (a *App) loadConfig(required bool) error {
	var config *locate.Config
	if _, err := os.Stat(a.ConfigFile); err == nil || required || a.ConfigFile != "config.yaml" {
		config, err = locate.LoadConfig(a.ConfigFile)
		if err != nil {
			return fmt.Errorf("loading config: %w", err)
		}
		log.Printf("Loaded config from %s", a.ConfigFile)
	} else {
		config = &locate.Config{Solver: locate.DefaultSolverConfig()}
	}

	if a.Seed != 0 {
		config.Solver.Seed = a.Seed
	}
	if a.Workers > 0 {
		config.Solver.Workers = a.Workers
	}
	if a.Verbose {
		config.Solver.Verbose = true
	}

	a.Config = config
	a.Solver = locate.NewSolver(config.Solver)
	return nil
}

// RunSolve locates targets in the file given by --solve
func (a *App) RunSolve() error {
	if err := a.loadConfig(false); err != nil {
		return err
	}

	in, err := locate.ParseInputFile(a.SolveFile)
	if err != nil {
		return err
	}
	rays, err := in.Rays(a.Config.Cameras)
	if err != nil {
		return fmt.Errorf("building rays from %s: %w", a.SolveFile, err)
	}
	log.Printf("Loaded %d rays from %s", len(rays), a.SolveFile)

	sol, err := a.Solver.Solve(context.Background(), rays)
	if err != nil {
		return err
	}
	return a.emitSolution(sol, append(append([]locate.CameraConfig{}, a.Config.Cameras...), in.Cameras...))
}

// RunFetch fetches one observation batch from --fetch and solves it
func (a *App) RunFetch() error {
	if err := a.loadConfig(false); err != nil {
		return err
	}

	ctx, cancel := context.WithTimeout(context.Background(), 2*locate.DefaultFetchTimeout)
	defer cancel()

	obs, err := locate.FetchObservationsFromAPI(ctx, a.FetchURL)
	if err != nil {
		return err
	}
	log.Printf("Fetched %d observations from %s", len(obs), a.FetchURL)

	sol, err := a.Solver.SolveObservations(ctx, a.Config.Cameras, obs)
	if err != nil {
		return err
	}
	return a.emitSolution(sol, a.Config.Cameras)
}

// emitSolution prints a summary, writes --output and --render, and updates
// the solution cache when one is configured.
func (a *App) emitSolution(sol *locate.Solution, cameras []locate.CameraConfig) error {
	_, _ = fmt.Fprintf(a.Out, "Located %d target(s) from %d rays (%d unassigned)\n",
		len(sol.Targets), sol.RayCount, sol.Unassigned)
	for _, t := range sol.Targets {
		_, _ = fmt.Fprintf(a.Out, "  %s: (%.2f, %.2f, %.2f) rays=%d mean=%.3fm\n",
			t.ID, t.Position.X, t.Position.Y, t.Position.Z, t.SupportingRayCount, t.MeanResidual)
	}

	if err := a.writeSolution(sol); err != nil {
		return err
	}
	if a.RenderFile != "" {
		if err := a.renderSolution(sol, cameras, a.RenderFile); err != nil {
			return err
		}
		_, _ = fmt.Fprintf(a.Out, "Created: %s\n", a.RenderFile)
	}

	if cachePath := a.solutionCachePath(); cachePath != "" {
		if err := locate.SaveSolution(cachePath, sol); err != nil {
			log.Printf("Warning: Failed to save solution cache %s: %v", cachePath, err)
		}
	}
	return nil
}

func (a *App) solutionCachePath() string {
	if a.SolutionCache != "" {
		return a.SolutionCache
	}
	if a.Config != nil {
		return a.Config.CachePath
	}
	return ""
}

// writeSolution writes sol to --output, choosing the format by extension
func (a *App) writeSolution(sol *locate.Solution) error {
	if a.OutputFile == "" {
		return nil
	}

	f, err := os.Create(a.OutputFile)
	if err != nil {
		return fmt.Errorf("creating output file %s: %w", a.OutputFile, err)
	}
	defer func() {
		if err := f.Close(); err != nil {
			log.Printf("Warning: error closing output file %s: %v", a.OutputFile, err)
		}
	}()

	switch strings.ToLower(filepath.Ext(a.OutputFile)) {
	case ".csv":
		err = locate.WriteTargetsCSV(f, sol.Targets)
	case ".geojson":
		err = writeJSON(f, locate.SolutionToFeatureCollection(sol, locate.DefaultRayTrackLength))
	default:
		err = writeJSON(f, sol)
	}
	if err != nil {
		return fmt.Errorf("writing %s: %w", a.OutputFile, err)
	}
	_, _ = fmt.Fprintf(a.Out, "Wrote: %s\n", a.OutputFile)
	return nil
}

// renderSolution draws the top view. SVG always uses the vector renderer;
// PNG uses it when RenderFormat is "vector".
func (a *App) renderSolution(sol *locate.Solution, cameras []locate.CameraConfig, path string) error {
	ext := strings.ToLower(filepath.Ext(path))
	if ext != ".png" && ext != ".svg" {
		return fmt.Errorf("unsupported render file %s (must be .png or .svg)", path)
	}

	if ext == ".png" && a.RenderFormat != "vector" {
		renderer := locate.NewTopViewRenderer(sol)
		renderer.Cameras = cameras
		return renderer.SavePNG(path)
	}

	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("creating %s: %w", path, err)
	}
	defer func() { _ = f.Close() }()

	vr := locate.NewVectorRenderer(sol, cameras)
	if ext == ".svg" {
		return vr.RenderToSVG(f)
	}
	return vr.RenderToPNG(f)
}

func writeJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

// scenarioConfig applies --targets and --outliers to the default scenario
func (a *App) scenarioConfig() locate.ScenarioConfig {
	cfg := locate.DefaultScenarioConfig()
	if a.Targets > 0 {
		cfg.NumTargets = a.Targets
	}
	if a.Outliers > 0 {
		cfg.OutlierRays = a.Outliers
	}
	return cfg
}

func (a *App) seed() int64 {
	if a.Seed != 0 {
		return a.Seed
	}
	if a.Config != nil && a.Config.Solver.Seed != 0 {
		return a.Config.Solver.Seed
	}
	return time.Now().UnixNano()
}

// RunSimulate writes a simulated scenario. JSON output can be fed straight
// back into --solve; CSV carries the measurements only.
func (a *App) RunSimulate() error {
	seed := a.seed()
	sc := locate.GenerateScenario(a.scenarioConfig(), rand.New(rand.NewSource(seed)))

	out := a.Out
	if a.OutputFile != "" {
		f, err := os.Create(a.OutputFile)
		if err != nil {
			return fmt.Errorf("creating output file %s: %w", a.OutputFile, err)
		}
		defer func() { _ = f.Close() }()
		out = f
	}

	var err error
	if strings.EqualFold(filepath.Ext(a.OutputFile), ".csv") {
		err = locate.WriteMeasurementsCSV(out, sc.Measurements)
	} else {
		err = writeJSON(out, sc)
	}
	if err != nil {
		return fmt.Errorf("writing scenario: %w", err)
	}

	log.Printf("Simulated %d targets, %d measurements (seed %d)", len(sc.Truths), len(sc.Measurements), seed)
	for i, t := range sc.Truths {
		log.Printf("  truth %d: (%.2f, %.2f, %.2f)", i, t.X, t.Y, t.Z)
	}
	return nil
}

// RunEvaluate runs repeated simulations and prints the accuracy report
func (a *App) RunEvaluate() error {
	if err := a.loadConfig(false); err != nil {
		return err
	}

	runs := a.Runs
	if runs < 1 {
		runs = 1
	}
	workers := a.Config.Solver.Workers
	if workers < 1 {
		workers = 1
	}
	seed := a.seed()

	report, err := locate.Evaluate(context.Background(), a.scenarioConfig(), a.Config.Solver.Params, runs, seed, workers)
	if err != nil {
		return err
	}

	_, _ = fmt.Fprintf(a.Out, "Accuracy over %d runs (seed %d)\n", len(report.Runs), seed)
	_, _ = fmt.Fprintf(a.Out, "  matched:      %d/%d (%.1f%%)\n", report.TotalMatched, report.TotalExpected, 100*report.SuccessRate)
	_, _ = fmt.Fprintf(a.Out, "  successful:   %d runs\n", report.SuccessfulRuns)
	_, _ = fmt.Fprintf(a.Out, "  mean error:   %.2f m\n", report.OverallMeanError)

	if a.OutputFile != "" {
		f, err := os.Create(a.OutputFile)
		if err != nil {
			return fmt.Errorf("creating output file %s: %w", a.OutputFile, err)
		}
		defer func() { _ = f.Close() }()
		if err := writeJSON(f, report); err != nil {
			return fmt.Errorf("writing report: %w", err)
		}
	}

	if a.ChartPrefix != "" {
		paths, err := locate.SaveAccuracyCharts(report, a.ChartPrefix)
		if err != nil {
			return err
		}
		for _, p := range paths {
			_, _ = fmt.Fprintf(a.Out, "Created: %s\n", p)
		}
	}
	return nil
}

// handleObservations is the MQTT observation handler
func (a *App) handleObservations(cameraID string, obs []locate.Observation, err error) {
	if err != nil {
		log.Printf("Error receiving observations for %q: %v", cameraID, err)
		return
	}
	a.StateTracker.AddObservations(obs)
	if a.Verbose {
		log.Printf("[MQTT] %d observation(s) from %q, %d buffered", len(obs), cameraID, a.StateTracker.ObservationCount())
	}
}

// solveBuffered solves the observations currently inside the window,
// stores the solution and publishes it when MQTT is up.
func (a *App) solveBuffered(ctx context.Context) (*locate.Solution, error) {
	obs := a.StateTracker.Observations()
	if len(obs) < 2 {
		return nil, nil
	}

	sol, err := a.Solver.SolveObservations(ctx, a.Config.Cameras, obs)
	if err != nil {
		return nil, err
	}
	a.StateTracker.SetSolution(sol)

	if a.Publisher != nil {
		if err := a.Publisher.PublishSolution(sol); err != nil {
			log.Printf("Error publishing solution %s: %v", sol.ID, err)
		}
	}
	return sol, nil
}

// pollOnce pulls one batch from --fetch into the state tracker
func (a *App) pollOnce(ctx context.Context) {
	obs, err := locate.FetchObservationsFromAPI(ctx, a.FetchURL, locate.WithMaxRetries(1), locate.WithTimeout(a.Interval))
	if err != nil {
		log.Printf("Error fetching observations: %v", err)
		return
	}
	a.StateTracker.AddObservations(obs)
}

// serviceLoop solves buffered observations every interval until ctx ends
func (a *App) serviceLoop(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		interval = 2 * time.Second
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if a.FetchURL != "" {
				a.pollOnce(ctx)
			}
			if _, err := a.solveBuffered(ctx); err != nil {
				log.Printf("Error solving buffered observations: %v", err)
			}
		}
	}
}

// RunService runs the MQTT and/or HTTP service until interrupted
func (a *App) RunService() error {
	fmt.Println("Starting skylocate service...")

	if err := a.loadConfig(true); err != nil {
		return err
	}
	if len(a.Config.Cameras) == 0 {
		return fmt.Errorf("no cameras configured in %s", a.ConfigFile)
	}

	cachePath := a.solutionCachePath()
	if cachePath == "" {
		cachePath = locate.DefaultSolutionCachePath
	}
	a.StateTracker = locate.NewStateTrackerWithCache(a.Config.GetWindow(), cachePath)
	for _, cam := range a.Config.Cameras {
		if cam.Color != "" {
			a.StateTracker.SetColor(cam.ID, cam.Color)
		}
	}
	log.Printf("Observation window: %s, solving every %s", a.StateTracker.Window(), a.Interval)

	if a.MqttMode {
		client, err := locate.InitMQTT(a.Config, a.handleObservations)
		if err != nil {
			return fmt.Errorf("initializing MQTT: %w", err)
		}
		if client == nil {
			return fmt.Errorf("MQTT broker not configured in %s", a.ConfigFile)
		}
		a.MQTTClient = client
		a.Publisher = locate.NewPublisher(client.GetClient(), a.Config.MQTT.PublishPrefix)
		fmt.Println("MQTT target publisher initialized")
	}

	var server *http.Server
	if a.HttpMode {
		server = &http.Server{
			Addr:              fmt.Sprintf(":%d", a.HttpPort),
			Handler:           newHTTPServer(a.StateTracker, a.Config, a.Solver),
			ReadHeaderTimeout: 10 * time.Second,
		}
		go func() {
			fmt.Printf("HTTP server starting on %s\n", server.Addr)
			if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
				log.Fatalf("HTTP server error: %v", err)
			}
		}()
	}

	fmt.Println("\nService Running")
	fmt.Println("===============")
	if a.MqttMode {
		fmt.Println("\nMQTT:")
		fmt.Printf("  Subscribed topic: %s\n", a.MQTTClient.ObservationTopic())
		fmt.Printf("  Publishing to: %s/target/{id}\n", a.Publisher.Prefix())
		fmt.Printf("  Combined targets: %s/targets\n", a.Publisher.Prefix())
	}
	if a.HttpMode {
		fmt.Printf("\nHTTP endpoints (port %d):\n", a.HttpPort)
		fmt.Println("  GET  /health          - Health check")
		fmt.Println("  GET  /targets.json    - Latest solution")
		fmt.Println("  GET  /targets.geojson - Latest solution as GeoJSON")
		fmt.Println("  GET  /topview.png     - Top view (raster)")
		fmt.Println("  GET  /topview.svg     - Top view (vector)")
		fmt.Println("  GET  /observations    - Buffered observations")
		fmt.Println("  POST /observations    - Add observations")
		fmt.Println("  POST /solve           - Solve an input document")
	}
	fmt.Println("\nPress Ctrl+C to stop")

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	a.serviceLoop(ctx, a.Interval)

	fmt.Println("\nShutting down service...")
	if server != nil {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := server.Shutdown(shutdownCtx); err != nil {
			log.Printf("HTTP shutdown error: %v", err)
		}
	}
	if a.MQTTClient != nil {
		a.MQTTClient.Disconnect()
	}
	fmt.Println("Service stopped")
	return nil
}
