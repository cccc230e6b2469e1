package probe

import (
	"context"
	"encoding/json"
	"fmt"
	"os/exec"
	"strconv"
	"strings"
	"time"
)

// FFprobe runs an external ffprobe binary to confirm a URL carries media.
type FFprobe struct {
	path    string
	timeout time.Duration
}

// Verdict is the part of ffprobe's answer a check needs.
type Verdict struct {
	CodecTypes []string // codec_type of each stream, in order
}

// HasMedia reports whether any audio or video stream was found.
func (v Verdict) HasMedia() bool {
	for _, t := range v.CodecTypes {
		if t == "video" || t == "audio" {
			return true
		}
	}
	return false
}

// LookupFFprobe resolves path (default "ffprobe") on PATH.
func LookupFFprobe(path string, timeout time.Duration) (*FFprobe, error) {
	if path == "" {
		path = "ffprobe"
	}
	resolved, err := exec.LookPath(path)
	if err != nil {
		return nil, err
	}
	return &FFprobe{path: resolved, timeout: timeout}, nil
}

// ffprobeOutput is a minimal model for ffprobe JSON output.
type ffprobeOutput struct {
	Streams []struct {
		CodecType string `json:"codec_type"`
	} `json:"streams"`
}

// Probe runs ffprobe against streamURL, bounded by ctx and the probe timeout.
func (f *FFprobe) Probe(ctx context.Context, streamURL string) (Verdict, error) {
	ctx, cancel := context.WithTimeout(ctx, f.timeout)
	defer cancel()
	args := []string{
		"-v", "error",
		"-rw_timeout", strconv.FormatInt(f.timeout.Microseconds(), 10),
		"-show_entries", "stream=codec_type",
		"-of", "json",
		streamURL,
	}
	out, err := exec.CommandContext(ctx, f.path, args...).Output()
	if ctx.Err() != nil {
		return Verdict{}, fmt.Errorf("ffprobe timed out after %v: %w", f.timeout, ctx.Err())
	}
	if err != nil {
		if ee, ok := err.(*exec.ExitError); ok && len(ee.Stderr) > 0 {
			return Verdict{}, fmt.Errorf("ffprobe: %s", strings.TrimSpace(string(ee.Stderr)))
		}
		return Verdict{}, fmt.Errorf("ffprobe: %w", err)
	}
	return parseFFprobe(out)
}

func parseFFprobe(out []byte) (Verdict, error) {
	var result ffprobeOutput
	if err := json.Unmarshal(out, &result); err != nil {
		return Verdict{}, fmt.Errorf("parse ffprobe output: %w", err)
	}
	v := Verdict{CodecTypes: make([]string, 0, len(result.Streams))}
	for _, s := range result.Streams {
		v.CodecTypes = append(v.CodecTypes, s.CodecType)
	}
	return v, nil
}
