package cli

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/talgya/reson/internal/api"
	"github.com/talgya/reson/internal/config"
	"github.com/talgya/reson/internal/engine"
	"github.com/talgya/reson/internal/parser"
	"github.com/talgya/reson/internal/persistence"
	"github.com/talgya/reson/internal/report"
)

// RunOptions holds flags for the run command.
type RunOptions struct {
	*RootOptions
	ConfigPath  string
	Start       string
	Duration    string
	ReportEvery string
	CSV         string
	JSONLDir    string
	Database    string
	Listen      string
}

// NewRunCommand creates the run command.
func NewRunCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &RunOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "run [definitions]",
		Short: "Run a simulation",
		Long: `Run a simulation from a .reson or YAML definitions file.

Settings come from --config (YAML) when given, then from flags. Rows are
written to every configured sink: CSV, compressed JSONL and SQLite. With
--listen, rows are also streamed to websocket clients at /api/v1/stream.

Example:
  resonsim run example/simple_pencil.reson --duration 7d --every 1h
  resonsim run --config run.yaml --db runs.db --listen :8080`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := opts.resolve(cmd, args)
			if err != nil {
				return err
			}
			return runSimulation(cmd, opts, cfg)
		},
	}

	cmd.Flags().StringVarP(&opts.ConfigPath, "config", "c", "", "YAML run configuration")
	cmd.Flags().StringVar(&opts.Start, "start", "", "start time (RFC 3339)")
	cmd.Flags().StringVarP(&opts.Duration, "duration", "d", "", "run length, e.g. 7d")
	cmd.Flags().StringVarP(&opts.ReportEvery, "every", "e", "", "reporting interval, e.g. 1h")
	cmd.Flags().StringVar(&opts.CSV, "csv", "", "CSV output path (\"-\" disables)")
	cmd.Flags().StringVar(&opts.JSONLDir, "jsonl-dir", "", "directory for zstd-compressed JSONL rows")
	cmd.Flags().StringVar(&opts.Database, "db", "", "SQLite database for run records")
	cmd.Flags().StringVar(&opts.Listen, "listen", "", "serve the HTTP API and live row stream on this address")

	return cmd
}

// resolve layers defaults, the config file, then explicit flags.
func (o *RunOptions) resolve(cmd *cobra.Command, args []string) (config.Config, error) {
	cfg := config.Default()
	if o.ConfigPath != "" {
		var err error
		if cfg, err = config.Load(o.ConfigPath); err != nil {
			return cfg, WrapExitError(ExitCommandError, "failed to load config", err)
		}
	}

	if len(args) == 1 {
		cfg.Definitions = args[0]
	}
	flags := cmd.Flags()
	if flags.Changed("start") {
		t, err := time.Parse(time.RFC3339, o.Start)
		if err != nil {
			return cfg, WrapExitError(ExitCommandError, "invalid --start", err)
		}
		cfg.StartTime = t
	}
	if flags.Changed("duration") {
		cfg.Duration = o.Duration
	}
	if flags.Changed("every") {
		cfg.ReportEvery = o.ReportEvery
	}
	if flags.Changed("csv") {
		cfg.Sinks.CSV = o.CSV
		if o.CSV == "-" {
			cfg.Sinks.CSV = ""
		}
	}
	if flags.Changed("jsonl-dir") {
		cfg.Sinks.JSONLDir = o.JSONLDir
	}
	if flags.Changed("db") {
		cfg.Sinks.SQLite = o.Database
	}
	if flags.Changed("listen") {
		cfg.Listen = o.Listen
	}

	if err := cfg.Validate(); err != nil {
		return cfg, WrapExitError(ExitCommandError, "invalid configuration", err)
	}
	return cfg, nil
}

func runSimulation(cmd *cobra.Command, opts *RunOptions, cfg config.Config) error {
	level, _ := cfg.Level()
	setupLogging(level, opts.Verbose)
	out := cmd.OutOrStdout()

	duration, _ := cfg.DurationSeconds()
	every, _ := cfg.ReportSeconds()

	slog.Info("loading definitions", "path", cfg.Definitions)
	defs, err := parser.ParseFile(cfg.Definitions)
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to parse definitions", err)
	}
	slog.Info("definitions loaded",
		"resources", len(defs.Resources),
		"processes", len(defs.Processes),
		"pools", len(defs.OnUse),
	)

	sim := engine.New(defs.Resources, defs.Processes, defs.OnUse)
	sim.SetStartTime(cfg.StartTime)
	sim.SetReportingInterval(every)

	// ── Sinks ─────────────────────────────────────────────────────────
	var (
		sinks report.Multi
		db    *persistence.DB
		runID = uuid.NewString()
	)
	defer func() {
		if err := sinks.Close(); err != nil {
			slog.Error("error closing sinks", "error", err)
		}
		if db != nil {
			if err := db.Close(); err != nil {
				slog.Error("error closing database", "error", err)
			}
		}
	}()

	if cfg.Sinks.SQLite != "" {
		db, err = persistence.Open(cfg.Sinks.SQLite)
		if err != nil {
			return WrapExitError(ExitCommandError, "failed to open database", err)
		}
		runID, err = db.StartRun(cfg.Definitions, cfg.StartTime, every)
		if err != nil {
			return WrapExitError(ExitCommandError, "failed to record run", err)
		}
		sinks = append(sinks, db.Sink(runID))
		slog.Info("database opened", "path", cfg.Sinks.SQLite, "run", runID)
	}
	if cfg.Sinks.CSV != "" {
		csvSink, err := report.CreateCSV(cfg.Sinks.CSV)
		if err != nil {
			return WrapExitError(ExitCommandError, "failed to create CSV output", err)
		}
		sinks = append(sinks, csvSink)
	}
	if cfg.Sinks.JSONLDir != "" {
		jsonlSink, err := report.CreateJSONL(cfg.Sinks.JSONLDir, runID)
		if err != nil {
			return WrapExitError(ExitCommandError, "failed to create JSONL output", err)
		}
		sinks = append(sinks, jsonlSink)
	}
	if cfg.Listen != "" {
		hub := api.NewHub()
		sinks = append(sinks, hub)
		stop := serveInBackground(&api.Server{
			DB:      db,
			Hub:     hub,
			Addr:    cfg.Listen,
			Limiter: api.NewRateLimiter(defaultRatePerMinute, time.Minute),
		})
		defer func() {
			_ = hub.Close()
			stop()
		}()
	}
	sim.SetSink(sinks)

	// ── Run ───────────────────────────────────────────────────────────
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	defer signal.Stop(sigCh)
	done := make(chan struct{})
	defer close(done)
	go func() {
		select {
		case sig := <-sigCh:
			slog.Info("received signal, stopping after current tick", "signal", sig)
			sim.Stop()
		case <-done:
		}
	}()

	fmt.Fprint(out, sim.Snapshot())
	slog.Info("simulation starting",
		"start", engine.SimTime(sim.Now()),
		"duration", humanize.Comma(int64(duration))+"s",
		"report_every", every,
	)

	started := time.Now()
	runErr := sim.Run(duration)
	slog.Info("simulation finished",
		"ticks", sim.Stats.Ticks,
		"invocations", sim.Stats.Invocations,
		"rows", sim.Stats.Rows,
		"anomalies", sim.Stats.Anomalies,
		"elapsed", time.Since(started).Round(time.Millisecond),
	)

	if db != nil {
		if err := db.SaveAnomalies(runID, sim.DrainAnomalies()); err != nil {
			slog.Error("failed to save anomalies", "error", err)
		}
		if err := db.FinishRun(runID, sim.Stats); err != nil {
			slog.Error("failed to finish run record", "error", err)
		}
		if err := db.SaveMeta(lastRunKey, runID); err != nil {
			slog.Error("failed to save last run", "error", err)
		}
	}

	if runErr != nil {
		return WrapExitError(ExitFailure, "simulation stopped", runErr)
	}

	fmt.Fprint(out, sim.Snapshot())
	if opts.Format == "json" {
		return writeJSON(out, map[string]any{"run": runID, "stats": sim.Stats})
	}
	return nil
}

// serveInBackground starts srv and returns a function that stops it and
// waits for it to finish.
func serveInBackground(srv *api.Server) (stop func()) {
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		defer close(done)
		if err := srv.Start(ctx); err != nil {
			slog.Error("HTTP API failed", "addr", srv.Addr, "error", err)
		}
	}()
	return func() {
		cancel()
		<-done
	}
}
