// Package config builds the run configuration from defaults, an optional TOML
// file, the environment (including .env) and command-line flags, in that
// order of increasing precedence.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/snapetech/streamcheck/internal/catalog"
	"github.com/snapetech/streamcheck/internal/checker"
	"github.com/snapetech/streamcheck/internal/checkpoint"
	"github.com/snapetech/streamcheck/internal/httpclient"
	"github.com/snapetech/streamcheck/internal/probe"
)

// EnvPrefix prefixes every environment variable read by Load.
const EnvPrefix = "STREAM_CHECK_"

const (
	DefaultConcurrency    = 100
	DefaultTimeout        = 10 * time.Second
	DefaultSaveInterval   = 100
	DefaultCheckpointPath = "stream_checker_checkpoint.json"
	DefaultSegments       = 3
)

// DefaultExtensions are the feed file types scanned in the input directory.
var DefaultExtensions = []string{".txt", ".m3u", ".m3u8", ".json"}

// now is swapped in tests.
var now = time.Now

// Config holds every run setting.
type Config struct {
	// Checking
	Concurrency int
	Timeout     time.Duration
	RateLimit   float64 // checks started per second; 0 = unlimited
	PerHost     int     // concurrent requests per host; 0 = unlimited
	Retry       bool    // retry once on 429/5xx

	// Checkpoint
	Checkpoint        bool
	CheckpointPath    string
	CheckpointBackend string // "", "file" or "sqlite"; "" picks by extension
	SaveInterval      int

	// Validation
	DeepValidation   bool
	Segments         int
	SampleQuorum     int
	ValidatePlaylist bool
	ValidateOther    bool
	FFprobe          bool
	FFprobePath      string
	UserAgent        string

	// Input
	InputDir   string
	Extensions []string
	Recursive  bool

	// Output
	Output        string
	ResultsJSON   string
	Grouped       bool
	ClusterPrefix int

	// Observability
	MetricsAddr string
	LogLevel    string
	LogFile     string
	TUI         bool
}

// Defaults returns the built-in configuration.
func Defaults() Config {
	return Config{
		Concurrency:      DefaultConcurrency,
		Timeout:          DefaultTimeout,
		Checkpoint:       true,
		CheckpointPath:   DefaultCheckpointPath,
		SaveInterval:     DefaultSaveInterval,
		DeepValidation:   true,
		Segments:         DefaultSegments,
		ValidatePlaylist: true,
		ValidateOther:    true,
		FFprobePath:      "ffprobe",
		UserAgent:        probe.DefaultUserAgent,
		InputDir:         ".",
		Extensions:       append([]string(nil), DefaultExtensions...),
		Recursive:        true,
		Output:           DefaultOutput(now()),
		ClusterPrefix:    catalog.DefaultClusterPrefixLen,
		LogLevel:         "info",
	}
}

// DefaultOutput names the final catalog file for a run started at t.
func DefaultOutput(t time.Time) string {
	return "results_" + t.Format("20060102_150405") + "_final.txt"
}

// Load returns defaults overlaid with the TOML file at path (skipped when
// path and STREAM_CHECK_CONFIG are both empty) and then the environment.
// Call LoadEnvFile first so .env values are visible.
func Load(path string) (*Config, error) {
	c := Defaults()
	if path == "" {
		path = os.Getenv(EnvPrefix + "CONFIG")
	}
	if path != "" {
		if err := c.applyFile(path); err != nil {
			return nil, err
		}
	}
	c.applyEnv()
	if err := c.Normalize(); err != nil {
		return nil, err
	}
	return &c, nil
}

func (c *Config) applyEnv() {
	c.Concurrency = getEnvInt("CONCURRENCY", c.Concurrency)
	c.Timeout = getEnvDuration("TIMEOUT", c.Timeout)
	c.RateLimit = getEnvFloat("RATE_LIMIT", c.RateLimit)
	c.PerHost = getEnvInt("PER_HOST", c.PerHost)
	c.Retry = getEnvBool("RETRY", c.Retry)
	c.Checkpoint = getEnvBool("CHECKPOINT", c.Checkpoint)
	c.CheckpointPath = getEnv("CHECKPOINT_PATH", c.CheckpointPath)
	c.CheckpointBackend = getEnv("CHECKPOINT_BACKEND", c.CheckpointBackend)
	c.SaveInterval = getEnvInt("SAVE_INTERVAL", c.SaveInterval)
	c.DeepValidation = getEnvBool("DEEP_VALIDATION", c.DeepValidation)
	c.Segments = getEnvInt("SEGMENTS", c.Segments)
	c.SampleQuorum = getEnvInt("SAMPLE_QUORUM", c.SampleQuorum)
	c.ValidatePlaylist = getEnvBool("VALIDATE_PLAYLIST", c.ValidatePlaylist)
	c.ValidateOther = getEnvBool("VALIDATE_OTHER", c.ValidateOther)
	c.FFprobe = getEnvBool("FFPROBE", c.FFprobe)
	c.FFprobePath = getEnv("FFPROBE_PATH", c.FFprobePath)
	c.UserAgent = getEnv("USER_AGENT", c.UserAgent)
	c.InputDir = getEnv("INPUT_DIR", c.InputDir)
	c.Extensions = getEnvList("EXTENSIONS", c.Extensions)
	c.Recursive = getEnvBool("RECURSIVE", c.Recursive)
	c.Output = getEnv("OUTPUT", c.Output)
	c.ResultsJSON = getEnv("RESULTS_JSON", c.ResultsJSON)
	c.Grouped = getEnvBool("GROUPED", c.Grouped)
	c.ClusterPrefix = getEnvInt("CLUSTER_PREFIX", c.ClusterPrefix)
	c.MetricsAddr = getEnv("METRICS_ADDR", c.MetricsAddr)
	c.LogLevel = getEnv("LOG_LEVEL", c.LogLevel)
	c.LogFile = getEnv("LOG_FILE", c.LogFile)
	c.TUI = getEnvBool("TUI", c.TUI)
}

// Normalize clamps out-of-range values back to defaults and rejects an
// unknown checkpoint backend.
func (c *Config) Normalize() error {
	if c.Concurrency <= 0 {
		c.Concurrency = DefaultConcurrency
	}
	if c.Timeout <= 0 {
		c.Timeout = DefaultTimeout
	}
	if c.SaveInterval <= 0 {
		c.SaveInterval = DefaultSaveInterval
	}
	if c.Segments <= 0 {
		c.Segments = DefaultSegments
	}
	if c.SampleQuorum < 0 || c.SampleQuorum > c.Segments {
		c.SampleQuorum = 0
	}
	if c.ClusterPrefix <= 0 {
		c.ClusterPrefix = catalog.DefaultClusterPrefixLen
	}
	if c.RateLimit < 0 {
		c.RateLimit = 0
	}
	if c.PerHost < 0 {
		c.PerHost = 0
	}
	if c.CheckpointPath == "" {
		c.CheckpointPath = DefaultCheckpointPath
	}
	if c.FFprobePath == "" {
		c.FFprobePath = "ffprobe"
	}
	if c.UserAgent == "" {
		c.UserAgent = probe.DefaultUserAgent
	}
	if c.InputDir == "" {
		c.InputDir = "."
	}
	if c.Output == "" {
		c.Output = DefaultOutput(now())
	}
	c.Extensions = normalizeExtensions(c.Extensions)
	if len(c.Extensions) == 0 {
		c.Extensions = append([]string(nil), DefaultExtensions...)
	}
	if _, err := c.Backend(); err != nil {
		return err
	}
	return nil
}

// Backend resolves the checkpoint store backend.
func (c *Config) Backend() (checkpoint.Backend, error) {
	b, err := checkpoint.BackendFor(c.CheckpointBackend, c.CheckpointPath)
	if err != nil {
		return "", fmt.Errorf("config: %w", err)
	}
	return b, nil
}

// ProbeOptions derives the validator settings.
func (c *Config) ProbeOptions() probe.Options {
	o := probe.Options{
		Timeout:                 c.Timeout,
		UserAgent:               c.UserAgent,
		DeepValidation:          c.DeepValidation,
		SegmentSampleCount:      c.Segments,
		SampleQuorum:            c.SampleQuorum,
		ValidatePlaylistContent: c.ValidatePlaylist,
		ValidateOtherFormats:    c.ValidateOther,
		UseFFprobe:              c.FFprobe,
		FFprobePath:             c.FFprobePath,
	}
	if c.Retry {
		o.Retry = httpclient.TransientRetryPolicy
	}
	return o
}

// CheckerOptions derives the worker pool settings.
func (c *Config) CheckerOptions() checker.Options {
	return checker.Options{Concurrency: c.Concurrency, Timeout: c.Timeout, RateLimit: c.RateLimit}
}

// HTTPOptions derives the shared client settings.
func (c *Config) HTTPOptions() httpclient.Options {
	return httpclient.Options{Timeout: c.Timeout, MaxConns: c.Concurrency, Cookies: true}
}

func normalizeExtensions(in []string) []string {
	seen := make(map[string]bool, len(in))
	out := make([]string, 0, len(in))
	for _, e := range in {
		e = strings.ToLower(strings.TrimSpace(e))
		if e == "" {
			continue
		}
		if !strings.HasPrefix(e, ".") {
			e = "." + e
		}
		if seen[e] {
			continue
		}
		seen[e] = true
		out = append(out, e)
	}
	return out
}

func getEnv(key, defaultVal string) string {
	if v := os.Getenv(EnvPrefix + key); v != "" {
		return v
	}
	return defaultVal
}

func getEnvInt(key string, defaultVal int) int {
	if v := os.Getenv(EnvPrefix + key); v != "" {
		n, _ := strconv.Atoi(strings.TrimSpace(v))
		return n
	}
	return defaultVal
}

func getEnvFloat(key string, defaultVal float64) float64 {
	if v := os.Getenv(EnvPrefix + key); v != "" {
		if f, err := strconv.ParseFloat(strings.TrimSpace(v), 64); err == nil {
			return f
		}
	}
	return defaultVal
}

func getEnvBool(key string, defaultVal bool) bool {
	if v := strings.TrimSpace(os.Getenv(EnvPrefix + key)); v != "" {
		return v == "1" || strings.EqualFold(v, "true") || strings.EqualFold(v, "yes") || strings.EqualFold(v, "on")
	}
	return defaultVal
}

// getEnvDuration accepts Go durations ("15s") or bare seconds ("15").
func getEnvDuration(key string, defaultVal time.Duration) time.Duration {
	v := strings.TrimSpace(os.Getenv(EnvPrefix + key))
	if v == "" {
		return defaultVal
	}
	if d, err := parseDuration(v); err == nil {
		return d
	}
	return defaultVal
}

func getEnvList(key string, defaultVal []string) []string {
	v := os.Getenv(EnvPrefix + key)
	if v == "" {
		return defaultVal
	}
	return strings.Split(v, ",")
}

func parseDuration(s string) (time.Duration, error) {
	if secs, err := strconv.ParseFloat(s, 64); err == nil {
		return time.Duration(secs * float64(time.Second)), nil
	}
	return time.ParseDuration(s)
}
