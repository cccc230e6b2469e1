package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"io/fs"
	"os"

	"github.com/dustin/go-humanize"

	"github.com/snapetech/streamcheck/internal/catalog"
	"github.com/snapetech/streamcheck/internal/checkpoint"
)

// runStatus prints what the configured checkpoint holds. A missing checkpoint
// is not an error; an unreadable one is.
func runStatus(ctx context.Context, args []string, stdout, stderr io.Writer) int {
	flags := flag.NewFlagSet("status", flag.ContinueOnError)
	flags.SetOutput(stderr)
	cfg, err := loadConfig(flags, args)
	if err != nil {
		if errors.Is(err, flag.ErrHelp) {
			return exitOK
		}
		fmt.Fprintf(stderr, "status: %v\n", err)
		return exitFailure
	}
	if flags.NArg() > 0 {
		cfg.CheckpointPath = flags.Arg(0)
		cfg.CheckpointBackend = ""
	}
	backend, err := cfg.Backend()
	if err != nil {
		fmt.Fprintf(stderr, "status: %v\n", err)
		return exitFailure
	}
	if _, err := os.Stat(cfg.CheckpointPath); errors.Is(err, fs.ErrNotExist) {
		fmt.Fprintf(stdout, "No checkpoint at %s\n", cfg.CheckpointPath)
		return exitOK
	}
	store, err := checkpoint.OpenReadOnly(backend, cfg.CheckpointPath)
	if err != nil {
		fmt.Fprintf(stderr, "status: %v\n", err)
		return exitFailure
	}
	defer store.Close()

	st, err := store.Load(ctx)
	if err == nil && st != nil {
		err = st.Validate()
	}
	if err != nil {
		fmt.Fprintf(stderr, "status: %s: %v (the next check starts fresh)\n", store.Location(), err)
		return exitFailure
	}
	if st == nil {
		fmt.Fprintf(stdout, "No checkpoint at %s\n", store.Location())
		return exitOK
	}
	s := catalog.Summarize(st.Results, 0)
	fmt.Fprintf(stdout, "Checkpoint %s (%s)\n", store.Location(), backend)
	fmt.Fprintf(stdout, "  run       %s\n", st.RunID)
	fmt.Fprintf(stdout, "  saved     %s (%s)\n", st.SavedAt.Local().Format("2006-01-02 15:04:05"), humanize.Time(st.SavedAt))
	fmt.Fprintf(stdout, "  processed %s\n", humanize.Comma(int64(len(st.Processed))))
	for _, status := range catalog.Statuses {
		fmt.Fprintf(stdout, "  %-9s %s (%.1f%%)\n", status, humanize.Comma(int64(s.Count(status))), s.Percent(status))
	}
	return exitOK
}
