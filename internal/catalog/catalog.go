package catalog

import (
	"bufio"
	"io"
	"os"
	"strings"
	"time"

	"github.com/snapetech/streamcheck/internal/fsutil"
)

// DefaultCategory is the bucket for candidates whose source gave no category.
const DefaultCategory = "uncategorized"

// ClusterSectionLabel heads the optional name-prefix cluster section of the catalog text.
const ClusterSectionLabel = "聚合分组"

// Candidate is one {name, url, category} record from the candidate feed.
// Seq is the feed position; it is only used as a deterministic tie-break.
type Candidate struct {
	Name     string `json:"name"`
	URL      string `json:"url"`
	Category string `json:"category"`
	Seq      int    `json:"seq"`
}

// Status is the terminal state of one check.
type Status string

const (
	StatusValid   Status = "valid"
	StatusInvalid Status = "invalid"
	StatusTimeout Status = "timeout"
	StatusError   Status = "error"
)

// Statuses lists every terminal status in summary order.
var Statuses = []Status{StatusValid, StatusInvalid, StatusTimeout, StatusError}

// CheckResult is the outcome of validating one candidate. It is never mutated after creation.
type CheckResult struct {
	Candidate
	Status    Status    `json:"status"`
	LatencyMs int64     `json:"latency_ms"`
	Detail    string    `json:"detail,omitempty"`
	CheckedAt time.Time `json:"checked_at"`
}

// Entry is one line of the final catalog.
type Entry struct {
	DisplayName string `json:"display_name"`
	URL         string `json:"url"`
	Category    string `json:"category"`
	LatencyMs   int64  `json:"latency_ms"`
}

// ClusterGroup holds entries sharing a name prefix, fastest first.
type ClusterGroup struct {
	Key     string  `json:"key"`
	Entries []Entry `json:"entries"`
}

// Catalog is the aggregated, sorted output of a run.
type Catalog struct {
	Entries  []Entry        `json:"entries"`
	Clusters []ClusterGroup `json:"clusters,omitempty"`
}

// Categories returns the distinct categories in output order.
func (c *Catalog) Categories() []string {
	var out []string
	for i, e := range c.Entries {
		if i == 0 || c.Entries[i-1].Category != e.Category {
			out = append(out, e.Category)
		}
	}
	return out
}

// WriteText writes the catalog in the "<category>,#genre#" / "name,url" grammar.
// Category blocks are separated by one blank line; the cluster section, when
// present, follows as one more block.
func (c *Catalog) WriteText(w io.Writer) error {
	bw := bufio.NewWriter(w)
	for i, e := range c.Entries {
		if i == 0 || c.Entries[i-1].Category != e.Category {
			if i > 0 {
				bw.WriteString("\n")
			}
			writeHeader(bw, e.Category)
		}
		writeLine(bw, e.DisplayName, e.URL)
	}
	if len(c.Clusters) > 0 {
		if len(c.Entries) > 0 {
			bw.WriteString("\n")
		}
		writeHeader(bw, ClusterSectionLabel)
		for _, g := range c.Clusters {
			for _, e := range g.Entries {
				writeLine(bw, e.DisplayName, e.URL)
			}
		}
	}
	return bw.Flush()
}

// Save writes the catalog text to path atomically.
func (c *Catalog) Save(path string) error {
	return fsutil.WriteAtomic(path, 0644, c.WriteText)
}

// LoadText parses catalog text back into entries (cluster section skipped).
func LoadText(path string) ([]Entry, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	var out []Entry
	category := ""
	sc := bufio.NewScanner(f)
	for sc.Scan() {
		line := strings.TrimSpace(sc.Text())
		if line == "" {
			continue
		}
		name, rest, ok := strings.Cut(line, ",")
		if !ok {
			continue
		}
		if rest == "#genre#" {
			category = name
			continue
		}
		if category == ClusterSectionLabel {
			continue
		}
		out = append(out, Entry{DisplayName: name, URL: rest, Category: category})
	}
	return out, sc.Err()
}

func writeHeader(w *bufio.Writer, category string) {
	w.WriteString(CleanField(category))
	w.WriteString(",#genre#\n")
}

func writeLine(w *bufio.Writer, name, url string) {
	w.WriteString(CleanField(name))
	w.WriteByte(',')
	w.WriteString(strings.TrimSpace(url))
	w.WriteByte('\n')
}

