package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"

	"github.com/snapetech/streamcheck/internal/candidate"
	"github.com/snapetech/streamcheck/internal/catalog"
)

// runProbe checks one URL. It exits 0 only when the stream is valid.
func runProbe(ctx context.Context, args []string, stdout, stderr io.Writer) int {
	fs := flag.NewFlagSet("probe", flag.ContinueOnError)
	fs.SetOutput(stderr)
	rawURL := fs.String("url", "", "stream URL to check")
	name := fs.String("name", "", "display name recorded in the result")
	cfg, err := loadConfig(fs, args)
	if err != nil {
		if errors.Is(err, flag.ErrHelp) {
			return exitOK
		}
		fmt.Fprintf(stderr, "probe: %v\n", err)
		return exitFailure
	}
	if *rawURL == "" && fs.NArg() > 0 {
		*rawURL = fs.Arg(0)
	}
	c, reason := candidate.Canonicalize(catalog.Candidate{Name: *name, URL: *rawURL})
	if reason != "" {
		fmt.Fprintf(stderr, "probe: %q: %s\n", *rawURL, reason)
		return exitFailure
	}
	logger, closeLog, err := newLogger(cfg, stderr)
	if err != nil {
		fmt.Fprintf(stderr, "probe: %v\n", err)
		return exitFailure
	}
	defer closeLog()

	res := newProber(cfg, logger).Check(ctx, c)
	enc := json.NewEncoder(stdout)
	enc.SetEscapeHTML(false)
	enc.SetIndent("", "  ")
	if err := enc.Encode(res); err != nil {
		fmt.Fprintf(stderr, "probe: %v\n", err)
		return exitFailure
	}
	if res.Status != catalog.StatusValid {
		return exitFailure
	}
	return exitOK
}
