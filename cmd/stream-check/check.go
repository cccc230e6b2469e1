package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/log"

	"github.com/snapetech/streamcheck/internal/catalog"
	"github.com/snapetech/streamcheck/internal/checker"
	"github.com/snapetech/streamcheck/internal/checkpoint"
	"github.com/snapetech/streamcheck/internal/config"
	"github.com/snapetech/streamcheck/internal/httpclient"
	"github.com/snapetech/streamcheck/internal/indexer"
	"github.com/snapetech/streamcheck/internal/logging"
	"github.com/snapetech/streamcheck/internal/metrics"
	"github.com/snapetech/streamcheck/internal/probe"
	"github.com/snapetech/streamcheck/internal/report"
	"github.com/snapetech/streamcheck/internal/tui"
)

// loadConfig parses args into a flag set that carries every config flag plus
// -config, then layers flags over file and environment values.
func loadConfig(fs *flag.FlagSet, args []string) (*config.Config, error) {
	configPath := fs.String("config", "", "TOML config file (default: STREAM_CHECK_CONFIG)")
	flags := config.RegisterFlags(fs)
	if err := fs.Parse(args); err != nil {
		return nil, err
	}
	cfg, err := config.Load(*configPath)
	if err != nil {
		return nil, err
	}
	if err := flags.Apply(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

func newLogger(cfg *config.Config, console io.Writer) (*log.Logger, func() error, error) {
	if cfg.TUI {
		console = nil
	}
	return logging.New(logging.Options{Level: cfg.LogLevel, File: cfg.LogFile, Console: console})
}

func newProber(cfg *config.Config, logger *log.Logger) *probe.Prober {
	client := httpclient.New(cfg.HTTPOptions())
	return probe.New(cfg.ProbeOptions(), client, httpclient.NewHostSemaphore(cfg.PerHost), logger.WithPrefix("probe"))
}

func openManager(ctx context.Context, cfg *config.Config, logger *log.Logger) (*checkpoint.Manager, error) {
	var store checkpoint.Store
	if cfg.Checkpoint {
		backend, err := cfg.Backend()
		if err != nil {
			return nil, err
		}
		store, err = checkpoint.Open(backend, cfg.CheckpointPath)
		if err != nil {
			return nil, err
		}
	}
	m := checkpoint.NewManager(store, cfg.SaveInterval, logger.WithPrefix("checkpoint"))
	m.Load(ctx)
	return m, nil
}

func runCheck(ctx context.Context, args []string, stdout, stderr io.Writer) int {
	fs := flag.NewFlagSet("check", flag.ContinueOnError)
	fs.SetOutput(stderr)
	cfg, err := loadConfig(fs, args)
	if err != nil {
		if errors.Is(err, flag.ErrHelp) {
			return exitOK
		}
		fmt.Fprintf(stderr, "check: %v\n", err)
		return exitFailure
	}
	if fs.NArg() > 0 {
		cfg.InputDir = fs.Arg(0)
	}
	logger, closeLog, err := newLogger(cfg, stderr)
	if err != nil {
		fmt.Fprintf(stderr, "check: %v\n", err)
		return exitFailure
	}
	defer closeLog()

	files, err := indexer.Scan(cfg.InputDir, cfg.Extensions, cfg.Recursive)
	if err != nil {
		logger.Error("input scan failed", "err", err)
		return exitFailure
	}
	records := indexer.ExtractFiles(files, logger.WithPrefix("indexer"))
	candidates := indexer.Candidates(records)
	logger.Info("feed loaded", "dir", cfg.InputDir, "files", len(files), "candidates", len(candidates), "skipped", len(records)-len(candidates))

	mgr, err := openManager(ctx, cfg, logger)
	if err != nil {
		logger.Error("checkpoint open failed", "path", cfg.CheckpointPath, "err", err)
		return exitFailure
	}
	defer mgr.Close()

	m := metrics.New()
	mgr.OnFlush = m.Flush
	serveCtx, stopServe := context.WithCancel(context.WithoutCancel(ctx))
	defer stopServe()
	if cfg.MetricsAddr != "" {
		go func() {
			if err := metrics.Serve(serveCtx, cfg.MetricsAddr, m, logger.WithPrefix("metrics")); err != nil {
				logger.Warn("metrics listener stopped", "err", err)
			}
		}()
	}

	chk := checker.New(cfg.CheckerOptions(), newProber(cfg, logger), mgr, m, logger.WithPrefix("checker"))
	out, runErr := runChecker(ctx, cfg, chk, candidates)
	if errors.Is(runErr, checker.ErrNoCandidates) {
		logger.Error("nothing to check", "dir", cfg.InputDir, "extensions", cfg.Extensions)
		return exitFailure
	}
	if runErr != nil {
		var pe *checkpoint.PersistError
		if errors.As(runErr, &pe) {
			logger.Error("checkpoint write failed, stopping", "path", pe.Path, "err", pe.Err)
		} else {
			logger.Error("check failed", "err", runErr)
		}
		return exitFailure
	}

	stats := report.RunStats{
		Resumed:     out.Resumed,
		Checked:     out.Checked,
		Duplicates:  out.Duplicates,
		Rejected:    out.RejectedTotal(),
		Interrupted: out.Interrupted,
	}
	if mgr.Enabled() {
		stats.CheckpointPath = mgr.Location()
	}
	persistCtx := context.WithoutCancel(ctx)
	if cfg.ResultsJSON != "" {
		if err := report.NewArtifact(mgr.RunID(), out.Summary, out.Results, out.Interrupted).Save(cfg.ResultsJSON); err != nil {
			logger.Error("results write failed", "path", cfg.ResultsJSON, "err", err)
			return exitFailure
		}
		stats.ResultsPath = cfg.ResultsJSON
	}
	if !out.Interrupted {
		cat := catalog.Aggregate(out.Results, catalog.AggregateOptions{Clusters: cfg.Grouped, PrefixLen: cfg.ClusterPrefix})
		if err := cat.Save(cfg.Output); err != nil {
			logger.Error("catalog write failed, checkpoint kept", "path", cfg.Output, "err", err)
			return exitFailure
		}
		stats.CatalogPath = cfg.Output
		stats.Entries = len(cat.Entries)
		stats.Categories = len(cat.Categories())
		stats.Clusters = len(cat.Clusters)
		if err := mgr.Finalize(persistCtx); err != nil {
			logger.Error("checkpoint cleanup failed; remove it before the next run", "err", err)
			return exitFailure
		}
	}

	if cfg.TUI {
		fmt.Fprint(stdout, tui.RenderSummary(out.Summary, stats))
	} else if err := report.WriteSummary(stdout, out.Summary, stats); err != nil {
		logger.Error("summary write failed", "err", err)
	}
	if out.Interrupted {
		return exitInterrupted
	}
	return exitOK
}

// runChecker runs chk directly or under the progress UI.
func runChecker(ctx context.Context, cfg *config.Config, chk *checker.Checker, candidates []catalog.Candidate) (*checker.Outcome, error) {
	if !cfg.TUI {
		return chk.Run(ctx, candidates)
	}
	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()
	progressCh := make(chan checker.Progress, 256)
	chk.Progress = progressCh
	model := tui.NewModel(runCtx, cancel, len(candidates), func(ctx context.Context) (*checker.Outcome, error) {
		return chk.Run(ctx, candidates)
	}, progressCh)
	final, err := tea.NewProgram(model).Run()
	if err != nil {
		return nil, fmt.Errorf("progress display: %w", err)
	}
	fm := final.(tui.Model)
	return fm.Outcome(), fm.Err()
}
