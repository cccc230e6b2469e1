package report

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/snapetech/streamcheck/internal/catalog"
)

func sampleResults() []catalog.CheckResult {
	at := time.Date(2026, 5, 1, 0, 0, 0, 0, time.UTC)
	return []catalog.CheckResult{
		{Candidate: catalog.Candidate{Name: "A&B", URL: "http://x.example/a?x=1&y=<2>", Category: "news"}, Status: catalog.StatusValid, LatencyMs: 40, CheckedAt: at},
		{Candidate: catalog.Candidate{Name: "C", URL: "http://x.example/c", Category: "news"}, Status: catalog.StatusInvalid, LatencyMs: 90, Detail: "variant 1: HTTP status: 404", CheckedAt: at},
	}
}

func TestArtifact_Save(t *testing.T) {
	results := sampleResults()
	s := catalog.Summarize(results, 1500*time.Millisecond)
	path := filepath.Join(t.TempDir(), "out", "results.json")
	if err := NewArtifact("run-1", s, results, false).Save(path); err != nil {
		t.Fatalf("Save: %v", err)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	if !bytes.Contains(data, []byte(`"http://x.example/a?x=1&y=<2>"`)) || !bytes.Contains(data, []byte(`"A&B"`)) {
		t.Errorf("urls or names were escaped:\n%s", data)
	}
	var raw map[string]any
	if err := json.Unmarshal(data, &raw); err != nil {
		t.Fatal(err)
	}
	if raw["run_id"] != "run-1" {
		t.Errorf("run_id = %v", raw["run_id"])
	}
	sum := raw["summary"].(map[string]any)
	if sum["total"] != 2.0 || sum["valid"] != 1.0 || sum["elapsed_ms"] != 1500.0 {
		t.Errorf("summary = %v", sum)
	}
	res := raw["results"].([]any)
	second := res[1].(map[string]any)
	if second["status"] != "invalid" || second["latency_ms"] != 90.0 || second["detail"] == nil {
		t.Errorf("results[1] = %v", second)
	}
	if _, ok := res[0].(map[string]any)["detail"]; ok {
		t.Error("empty detail should be omitted")
	}
}

func TestWriteSummary(t *testing.T) {
	var results []catalog.CheckResult
	for i := 0; i < 1200; i++ {
		st := catalog.StatusValid
		if i%4 == 0 {
			st = catalog.StatusTimeout
		}
		results = append(results, catalog.CheckResult{Status: st})
	}
	s := catalog.Summarize(results, 90*time.Second)
	var buf bytes.Buffer
	err := WriteSummary(&buf, s, RunStats{Checked: 1000, Resumed: 200, Duplicates: 3, Entries: 900, Categories: 4, CatalogPath: "final.txt"})
	if err != nil {
		t.Fatal(err)
	}
	out := buf.String()
	for _, want := range []string{"Checked 1,200 streams in 1m30s", "valid", "900", "75.0%", "timeout", "25.0%", "resumed 200", "Catalog: final.txt (900 entries in 4 categories)"} {
		if !strings.Contains(out, want) {
			t.Errorf("summary missing %q:\n%s", want, out)
		}
	}
	if strings.Contains(out, "Results:") {
		t.Errorf("results line printed without a path:\n%s", out)
	}
	if strings.Contains(out, "rerun") || strings.Contains(out, "not saved") {
		t.Errorf("resume hint printed for a complete run:\n%s", out)
	}
}

func TestWriteSummary_interrupted(t *testing.T) {
	s := catalog.Summarize([]catalog.CheckResult{{Status: catalog.StatusValid}}, time.Second)
	tests := []struct {
		name string
		st   RunStats
		want string
	}{
		{"checkpointed", RunStats{Interrupted: true, CheckpointPath: "cp.db"}, "Progress saved to cp.db, rerun to resume"},
		{"no checkpoint", RunStats{Interrupted: true}, "Checkpointing disabled: progress was not saved"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var buf bytes.Buffer
			if err := WriteSummary(&buf, s, tt.st); err != nil {
				t.Fatal(err)
			}
			if !strings.Contains(buf.String(), "Interrupted after checking") || !strings.Contains(buf.String(), tt.want) {
				t.Errorf("summary missing %q:\n%s", tt.want, buf.String())
			}
		})
	}
}
