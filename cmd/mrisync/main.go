package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"time"

	"mrisync/internal/scenario"
	"mrisync/pkg/config"
	"mrisync/pkg/journal"
	"mrisync/pkg/service"
	"mrisync/pkg/synchronizer"
	"mrisync/pkg/visualization"
)

func main() {
	// Parse command line arguments
	configPath := flag.String("config", "mrisync.yaml", "Synchronizer configuration file")
	scenarioPath := flag.String("scenario", "", "Scenario file replaying producer pushes and sync requests")
	journalPath := flag.String("journal", "", "SQLite journal file (overrides journal.path)")
	snapshotsDir := flag.String("snapshots", "", "Directory receiving a JPEG of every frame output after each synchronization")
	logLevel := flag.String("log-level", "", "Log level: debug, info, warn, error (overrides logging.level)")
	writeDefault := flag.Bool("write-default-config", false, "Write the default configuration to -config and exit")
	flag.Parse()

	if *writeDefault {
		if err := config.SaveConfig(config.DefaultConfig(), *configPath); err != nil {
			log.Fatalf("Failed to write default config: %v", err)
		}
		fmt.Printf("Default configuration written to %s\n", *configPath)
		return
	}

	if *scenarioPath == "" {
		flag.Usage()
		os.Exit(1)
	}

	opts := options{
		configPath:   *configPath,
		scenarioPath: *scenarioPath,
		journalPath:  *journalPath,
		snapshotsDir: *snapshotsDir,
		logLevel:     *logLevel,
	}
	if err := run(opts); err != nil {
		log.Fatalf("Error: %v", err)
	}
}

type options struct {
	configPath   string
	scenarioPath string
	journalPath  string
	snapshotsDir string
	logLevel     string
}

// run replays a scenario through a pipeline built from the configuration.
// Resources opened here are released before an error is returned.
func run(opts options) error {
	cfg, err := config.LoadConfig(opts.configPath)
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}
	if opts.logLevel != "" {
		cfg.Logging.Level = opts.logLevel
	}
	if opts.journalPath != "" {
		cfg.Journal.Path = opts.journalPath
	}

	logger, err := cfg.NewLogger(os.Stderr)
	if err != nil {
		return fmt.Errorf("failed to create logger: %w", err)
	}

	fmt.Println("================================")
	fmt.Println("MULTI-TIMELINE FRAME/MATRIX SYNCHRONIZER")
	fmt.Println("================================")

	pipeline, err := service.Build(cfg, logger)
	if err != nil {
		return fmt.Errorf("failed to build pipeline: %w", err)
	}
	fmt.Printf("Session: %s\n", pipeline.Service.ID())
	fmt.Printf("Inputs: %d frame, %d matrix timelines\n", len(pipeline.FrameTimelines), len(pipeline.MatrixTimelines))
	fmt.Printf("Outputs: %d frames, %d matrices\n", len(pipeline.FrameOutputs), len(pipeline.MatrixOutputs))
	fmt.Printf("Tolerance: %d ms, policy: %s\n\n", cfg.Tolerance, cfg.Policy)

	pipeline.Service.Subscribe(synchronizer.ListenerFunc(func(ev synchronizer.Event) {
		fmt.Printf("  event %s\n", ev)
	}))

	ctx := context.Background()
	var j *journal.Journal
	if cfg.Journal.Path != "" {
		j, err = journal.Open(cfg.Journal.Path, logger)
		if err != nil {
			return fmt.Errorf("failed to open journal: %w", err)
		}
		defer j.Close()
		if err := j.Init(ctx); err != nil {
			return fmt.Errorf("failed to init journal: %w", err)
		}
		pipeline.Service.Subscribe(j.Listener(pipeline.Service.ID().String()))
	}

	var recorder *visualization.Recorder
	if opts.snapshotsDir != "" {
		viewers := make([]*visualization.Viewer, len(pipeline.FrameOutputs))
		for i, out := range pipeline.FrameOutputs {
			viewers[i] = visualization.NewViewer(out.Image, cfg.Outputs.Frames[i].Key)
		}
		recorder = visualization.NewRecorder(opts.snapshotsDir, logger, viewers...)
		pipeline.Service.Subscribe(recorder)
	}

	sc, err := scenario.Load(opts.scenarioPath)
	if err != nil {
		return fmt.Errorf("failed to load scenario: %w", err)
	}

	fmt.Printf("Replaying %d steps from %s...\n", len(sc.Steps), opts.scenarioPath)
	startTime := time.Now()
	reports, err := sc.Run(pipeline)
	if err != nil {
		return fmt.Errorf("scenario failed: %w", err)
	}
	elapsed := time.Since(startTime)

	fmt.Printf("\nScenario completed in %s\n", elapsed)
	for _, r := range reports {
		fmt.Printf("- step %d: %s", r.Step, r.Result.Outcome)
		if r.Result.Outcome != synchronizer.OutcomeNoOp {
			fmt.Printf(" (%d)", r.Result.Timestamp)
		}
		fmt.Println()
	}

	stats := pipeline.Service.Stats()
	fmt.Printf("\nSynchronization statistics:\n")
	fmt.Printf("=======================================\n")
	fmt.Printf("Done: %d, skipped: %d, no-op: %d, tagging failures: %d\n",
		stats.Done, stats.Skipped, stats.NoOp, stats.TagFailures)
	for _, cs := range stats.Channels {
		fmt.Printf("- %-10s synchronized=%-5v last=%d skew mean=%.2f sd=%.2f (n=%d)\n",
			cs.Slot, cs.Synchronized, cs.LastWritten, cs.MeanSkew, cs.StdDevSkew, cs.Samples)
	}

	if j != nil {
		counts, err := j.Counts(ctx, pipeline.Service.ID().String())
		if err != nil {
			log.Printf("Warning: Failed to read journal: %v", err)
		} else {
			fmt.Printf("\nJournal %s:\n", cfg.Journal.Path)
			for typ, n := range counts {
				fmt.Printf("- %s: %d\n", typ, n)
			}
		}
	}

	if recorder != nil {
		fmt.Printf("\n%d snapshots saved to %s\n", recorder.Saved, opts.snapshotsDir)
	}
	return nil
}
