package config

import (
	"flag"
	"strings"
)

// Flags stages command-line overrides. Only flags the user actually passed
// are applied, so an unset flag never masks a file or environment value.
type Flags struct {
	fs     *flag.FlagSet
	staged Config
	copy   map[string]func(dst, src *Config)
}

// RegisterFlags defines the run flags on fs.
func RegisterFlags(fs *flag.FlagSet) *Flags {
	f := &Flags{fs: fs, staged: Defaults(), copy: make(map[string]func(dst, src *Config))}
	s := &f.staged

	fs.IntVar(&s.Concurrency, "concurrency", s.Concurrency, "max concurrent checks")
	f.on("concurrency", func(d, s *Config) { d.Concurrency = s.Concurrency })
	fs.DurationVar(&s.Timeout, "timeout", s.Timeout, "per-check timeout")
	f.on("timeout", func(d, s *Config) { d.Timeout = s.Timeout })
	fs.Float64Var(&s.RateLimit, "rate", s.RateLimit, "max checks started per second (0 = unlimited)")
	f.on("rate", func(d, s *Config) { d.RateLimit = s.RateLimit })
	fs.IntVar(&s.PerHost, "per-host", s.PerHost, "max concurrent requests per host (0 = unlimited)")
	f.on("per-host", func(d, s *Config) { d.PerHost = s.PerHost })
	fs.BoolVar(&s.Retry, "retry", s.Retry, "retry once on 429 and 5xx")
	f.on("retry", func(d, s *Config) { d.Retry = s.Retry })

	fs.BoolVar(&s.Checkpoint, "checkpoint", s.Checkpoint, "save progress for resume")
	f.on("checkpoint", func(d, s *Config) { d.Checkpoint = s.Checkpoint })
	fs.StringVar(&s.CheckpointPath, "checkpoint-path", s.CheckpointPath, "checkpoint file (.db/.sqlite selects the sqlite backend)")
	f.on("checkpoint-path", func(d, s *Config) { d.CheckpointPath = s.CheckpointPath })
	fs.StringVar(&s.CheckpointBackend, "checkpoint-backend", s.CheckpointBackend, "checkpoint backend: file or sqlite")
	f.on("checkpoint-backend", func(d, s *Config) { d.CheckpointBackend = s.CheckpointBackend })
	fs.IntVar(&s.SaveInterval, "save-interval", s.SaveInterval, "results between checkpoint saves")
	f.on("save-interval", func(d, s *Config) { d.SaveInterval = s.SaveInterval })

	fs.BoolVar(&s.DeepValidation, "deep", s.DeepValidation, "validate playlist and container content")
	f.on("deep", func(d, s *Config) { d.DeepValidation = s.DeepValidation })
	fs.IntVar(&s.Segments, "segments", s.Segments, "playlist variants/segments sampled per stream")
	f.on("segments", func(d, s *Config) { d.Segments = s.Segments })
	fs.IntVar(&s.SampleQuorum, "sample-quorum", s.SampleQuorum, "sampled references that must answer (0 = all)")
	f.on("sample-quorum", func(d, s *Config) { d.SampleQuorum = s.SampleQuorum })
	fs.BoolVar(&s.ValidatePlaylist, "validate-playlist", s.ValidatePlaylist, "require the #EXTM3U marker")
	f.on("validate-playlist", func(d, s *Config) { d.ValidatePlaylist = s.ValidatePlaylist })
	fs.BoolVar(&s.ValidateOther, "validate-other", s.ValidateOther, "check FLV headers and stream signatures")
	f.on("validate-other", func(d, s *Config) { d.ValidateOther = s.ValidateOther })
	fs.BoolVar(&s.FFprobe, "ffprobe", s.FFprobe, "verify streams with ffprobe when available")
	f.on("ffprobe", func(d, s *Config) { d.FFprobe = s.FFprobe })
	fs.StringVar(&s.FFprobePath, "ffprobe-path", s.FFprobePath, "ffprobe binary")
	f.on("ffprobe-path", func(d, s *Config) { d.FFprobePath = s.FFprobePath })
	fs.StringVar(&s.UserAgent, "user-agent", s.UserAgent, "User-Agent header")
	f.on("user-agent", func(d, s *Config) { d.UserAgent = s.UserAgent })

	fs.StringVar(&s.InputDir, "input", s.InputDir, "directory scanned for feed files")
	f.on("input", func(d, s *Config) { d.InputDir = s.InputDir })
	fs.Func("ext", "comma-separated feed file extensions (default "+strings.Join(DefaultExtensions, ",")+")", func(v string) error {
		s.Extensions = strings.Split(v, ",")
		return nil
	})
	f.on("ext", func(d, s *Config) { d.Extensions = s.Extensions })
	fs.BoolVar(&s.Recursive, "recursive", s.Recursive, "scan subdirectories")
	f.on("recursive", func(d, s *Config) { d.Recursive = s.Recursive })

	fs.StringVar(&s.Output, "out", "", "final catalog path (default results_<timestamp>_final.txt)")
	f.on("out", func(d, s *Config) { d.Output = s.Output })
	fs.StringVar(&s.ResultsJSON, "results-json", s.ResultsJSON, "also write every check result as JSON")
	f.on("results-json", func(d, s *Config) { d.ResultsJSON = s.ResultsJSON })
	fs.BoolVar(&s.Grouped, "grouped", s.Grouped, "append the name-cluster section")
	f.on("grouped", func(d, s *Config) { d.Grouped = s.Grouped })
	fs.IntVar(&s.ClusterPrefix, "cluster-prefix", s.ClusterPrefix, "leading characters used as the cluster key")
	f.on("cluster-prefix", func(d, s *Config) { d.ClusterPrefix = s.ClusterPrefix })

	fs.StringVar(&s.MetricsAddr, "metrics", s.MetricsAddr, "serve Prometheus metrics on this address")
	f.on("metrics", func(d, s *Config) { d.MetricsAddr = s.MetricsAddr })
	fs.StringVar(&s.LogLevel, "log-level", s.LogLevel, "debug, info, warn or error")
	f.on("log-level", func(d, s *Config) { d.LogLevel = s.LogLevel })
	fs.StringVar(&s.LogFile, "log-file", s.LogFile, "also write logs to this file")
	f.on("log-file", func(d, s *Config) { d.LogFile = s.LogFile })
	fs.BoolVar(&s.TUI, "tui", s.TUI, "show interactive progress")
	f.on("tui", func(d, s *Config) { d.TUI = s.TUI })
	return f
}

func (f *Flags) on(name string, fn func(dst, src *Config)) { f.copy[name] = fn }

// Apply copies the flags passed on the command line into c and renormalizes it.
// Call it after fs.Parse.
func (f *Flags) Apply(c *Config) error {
	f.fs.Visit(func(fl *flag.Flag) {
		if fn, ok := f.copy[fl.Name]; ok {
			fn(c, &f.staged)
		}
	})
	return c.Normalize()
}
