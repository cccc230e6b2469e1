// Package report writes run artifacts: the results JSON, the final catalog
// and the plain-text run summary.
package report

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/dustin/go-humanize"

	"github.com/snapetech/streamcheck/internal/catalog"
	"github.com/snapetech/streamcheck/internal/fsutil"
)

// ArtifactVersion is bumped when the results JSON layout changes.
const ArtifactVersion = 1

// Result is one processed candidate in the results artifact.
type Result struct {
	URL       string         `json:"url"`
	Name      string         `json:"name"`
	Category  string         `json:"category"`
	Status    catalog.Status `json:"status"`
	LatencyMs int64          `json:"latency_ms"`
	Detail    string         `json:"detail,omitempty"`
	CheckedAt time.Time      `json:"checked_at"`
}

// Artifact is the results JSON document.
type Artifact struct {
	Version     int             `json:"version"`
	RunID       string          `json:"run_id"`
	GeneratedAt time.Time       `json:"generated_at"`
	Interrupted bool            `json:"interrupted,omitempty"`
	Summary     catalog.Summary `json:"summary"`
	Results     []Result        `json:"results"`
}

// NewArtifact builds the artifact for results.
func NewArtifact(runID string, summary catalog.Summary, results []catalog.CheckResult, interrupted bool) *Artifact {
	a := &Artifact{
		Version:     ArtifactVersion,
		RunID:       runID,
		GeneratedAt: time.Now().UTC(),
		Interrupted: interrupted,
		Summary:     summary,
		Results:     make([]Result, len(results)),
	}
	for i, r := range results {
		a.Results[i] = Result{
			URL:       r.URL,
			Name:      r.Name,
			Category:  r.Category,
			Status:    r.Status,
			LatencyMs: r.LatencyMs,
			Detail:    r.Detail,
			CheckedAt: r.CheckedAt,
		}
	}
	return a
}

// Save writes the artifact atomically. Names and urls are written unescaped.
func (a *Artifact) Save(path string) error {
	return fsutil.WriteAtomic(path, 0o644, func(w io.Writer) error {
		enc := json.NewEncoder(w)
		enc.SetEscapeHTML(false)
		enc.SetIndent("", "  ")
		return enc.Encode(a)
	})
}

// RunStats carries the feed and output figures printed with the summary.
type RunStats struct {
	Resumed     int
	Checked     int
	Duplicates  int
	Rejected    int
	Entries     int
	Categories  int
	Clusters    int
	CatalogPath string
	ResultsPath string
	Interrupted bool

	// CheckpointPath is where an interrupted run left its progress; empty
	// when checkpointing is disabled.
	CheckpointPath string
}

// ResumeHint tells the user what an interrupted run left behind.
func ResumeHint(st RunStats) string {
	if st.CheckpointPath == "" {
		return "Checkpointing disabled: progress was not saved"
	}
	return "Progress saved to " + st.CheckpointPath + ", rerun to resume"
}

// WriteSummary prints per-status counts with percentages and the run figures.
func WriteSummary(w io.Writer, s catalog.Summary, st RunStats) error {
	var b strings.Builder
	verb := "Checked"
	if st.Interrupted {
		verb = "Interrupted after checking"
	}
	fmt.Fprintf(&b, "%s %s streams in %s\n", verb, humanize.Comma(int64(s.Total)), s.Elapsed.Round(time.Millisecond))
	for _, status := range catalog.Statuses {
		fmt.Fprintf(&b, "  %-8s %8s  %5.1f%%\n", status, humanize.Comma(int64(s.Count(status))), s.Percent(status))
	}
	fmt.Fprintf(&b, "  this run %s, resumed %s, duplicates %s, rejected %s\n",
		humanize.Comma(int64(st.Checked)), humanize.Comma(int64(st.Resumed)),
		humanize.Comma(int64(st.Duplicates)), humanize.Comma(int64(st.Rejected)))
	if st.CatalogPath != "" {
		fmt.Fprintf(&b, "Catalog: %s (%s entries in %d categories", st.CatalogPath, humanize.Comma(int64(st.Entries)), st.Categories)
		if st.Clusters > 0 {
			fmt.Fprintf(&b, ", %d clusters", st.Clusters)
		}
		b.WriteString(")\n")
	}
	if st.ResultsPath != "" {
		fmt.Fprintf(&b, "Results: %s\n", st.ResultsPath)
	}
	if st.Interrupted {
		b.WriteString(ResumeHint(st))
		b.WriteString("\n")
	}
	_, err := io.WriteString(w, b.String())
	return err
}
