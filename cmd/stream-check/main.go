// Command stream-check validates candidate stream URLs and writes a
// deduplicated, categorized catalog of the ones that work.
//
//	check   Scan the input directory, check every candidate, write the catalog. Resumes from a checkpoint.
//	probe   Check a single URL and print its result as JSON.
//	status  Inspect an existing checkpoint.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/snapetech/streamcheck/internal/config"
)

const (
	exitOK          = 0
	exitFailure     = 1
	exitInterrupted = 130
)

func usage() {
	fmt.Fprintf(os.Stderr, "Usage: %s <check|probe|status> [flags]\n", os.Args[0])
	fmt.Fprintf(os.Stderr, "  check   Check every stream found in the input directory and write the final catalog\n")
	fmt.Fprintf(os.Stderr, "  probe   Check one URL (-url) and print the result\n")
	fmt.Fprintf(os.Stderr, "  status  Show what an existing checkpoint holds\n")
	fmt.Fprintf(os.Stderr, "Run '%s <command> -h' for flags. Settings also come from STREAM_CHECK_* and .env.\n", os.Args[0])
}

func main() {
	_ = config.LoadEnvFile(".env")
	if len(os.Args) < 2 {
		usage()
		os.Exit(exitFailure)
	}
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	var code int
	switch os.Args[1] {
	case "check":
		code = runCheck(ctx, os.Args[2:], os.Stdout, os.Stderr)
	case "probe":
		code = runProbe(ctx, os.Args[2:], os.Stdout, os.Stderr)
	case "status":
		code = runStatus(ctx, os.Args[2:], os.Stdout, os.Stderr)
	case "-h", "-help", "--help", "help":
		usage()
	default:
		fmt.Fprintf(os.Stderr, "unknown command %q\n", os.Args[1])
		usage()
		code = exitFailure
	}
	stop()
	os.Exit(code)
}
