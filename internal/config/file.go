package config

import (
	"fmt"
	"os"

	"github.com/pelletier/go-toml/v2"
)

// fileConfig mirrors the TOML layout. Pointer fields distinguish "absent"
// from a zero value so the file only overrides what it names.
type fileConfig struct {
	Check struct {
		Concurrency *int     `toml:"concurrency"`
		Timeout     *string  `toml:"timeout"`
		RateLimit   *float64 `toml:"rate_limit"`
		PerHost     *int     `toml:"per_host"`
		Retry       *bool    `toml:"retry"`
	} `toml:"check"`
	Checkpoint struct {
		Enabled      *bool   `toml:"enabled"`
		Path         *string `toml:"path"`
		Backend      *string `toml:"backend"`
		SaveInterval *int    `toml:"save_interval"`
	} `toml:"checkpoint"`
	Validation struct {
		Deep             *bool   `toml:"deep"`
		Segments         *int    `toml:"segments"`
		SampleQuorum     *int    `toml:"sample_quorum"`
		ValidatePlaylist *bool   `toml:"validate_playlist"`
		ValidateOther    *bool   `toml:"validate_other"`
		FFprobe          *bool   `toml:"ffprobe"`
		FFprobePath      *string `toml:"ffprobe_path"`
		UserAgent        *string `toml:"user_agent"`
	} `toml:"validation"`
	Input struct {
		Dir        *string  `toml:"dir"`
		Extensions []string `toml:"extensions"`
		Recursive  *bool    `toml:"recursive"`
	} `toml:"input"`
	Output struct {
		Catalog       *string `toml:"catalog"`
		ResultsJSON   *string `toml:"results_json"`
		Grouped       *bool   `toml:"grouped"`
		ClusterPrefix *int    `toml:"cluster_prefix"`
	} `toml:"output"`
	Log struct {
		Level *string `toml:"level"`
		File  *string `toml:"file"`
	} `toml:"log"`
	Metrics struct {
		Addr *string `toml:"addr"`
	} `toml:"metrics"`
}

func (c *Config) applyFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read config %s: %w", path, err)
	}
	var f fileConfig
	if err := toml.Unmarshal(data, &f); err != nil {
		return fmt.Errorf("parse config %s: %w", path, err)
	}
	set(&c.Concurrency, f.Check.Concurrency)
	if f.Check.Timeout != nil {
		d, err := parseDuration(*f.Check.Timeout)
		if err != nil {
			return fmt.Errorf("parse config %s: check.timeout: %w", path, err)
		}
		c.Timeout = d
	}
	set(&c.RateLimit, f.Check.RateLimit)
	set(&c.PerHost, f.Check.PerHost)
	set(&c.Retry, f.Check.Retry)
	set(&c.Checkpoint, f.Checkpoint.Enabled)
	set(&c.CheckpointPath, f.Checkpoint.Path)
	set(&c.CheckpointBackend, f.Checkpoint.Backend)
	set(&c.SaveInterval, f.Checkpoint.SaveInterval)
	set(&c.DeepValidation, f.Validation.Deep)
	set(&c.Segments, f.Validation.Segments)
	set(&c.SampleQuorum, f.Validation.SampleQuorum)
	set(&c.ValidatePlaylist, f.Validation.ValidatePlaylist)
	set(&c.ValidateOther, f.Validation.ValidateOther)
	set(&c.FFprobe, f.Validation.FFprobe)
	set(&c.FFprobePath, f.Validation.FFprobePath)
	set(&c.UserAgent, f.Validation.UserAgent)
	set(&c.InputDir, f.Input.Dir)
	if f.Input.Extensions != nil {
		c.Extensions = f.Input.Extensions
	}
	set(&c.Recursive, f.Input.Recursive)
	set(&c.Output, f.Output.Catalog)
	set(&c.ResultsJSON, f.Output.ResultsJSON)
	set(&c.Grouped, f.Output.Grouped)
	set(&c.ClusterPrefix, f.Output.ClusterPrefix)
	set(&c.LogLevel, f.Log.Level)
	set(&c.LogFile, f.Log.File)
	set(&c.MetricsAddr, f.Metrics.Addr)
	return nil
}

func set[T any](dst *T, v *T) {
	if v != nil {
		*dst = *v
	}
}
