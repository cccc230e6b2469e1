package catalog

import (
	"bytes"
	"path/filepath"
	"testing"
)

func TestWriteText_grammar(t *testing.T) {
	c := &Catalog{Entries: []Entry{
		{DisplayName: "a", URL: "http://h/a", Category: "A"},
		{DisplayName: "z", URL: "http://h/z", Category: "A"},
		{DisplayName: "b", URL: "http://h/b", Category: "B"},
	}}
	var buf bytes.Buffer
	if err := c.WriteText(&buf); err != nil {
		t.Fatal(err)
	}
	want := "A,#genre#\na,http://h/a\nz,http://h/z\n\nB,#genre#\nb,http://h/b\n"
	if buf.String() != want {
		t.Errorf("text =\n%q\nwant\n%q", buf.String(), want)
	}
}

func TestWriteText_clusterSection(t *testing.T) {
	c := Aggregate([]CheckResult{
		valid("CCTV-1", "http://h/1", "News", 20, 0),
		valid("CCTV-2", "http://h/2", "News", 10, 1),
	}, AggregateOptions{Clusters: true})
	var buf bytes.Buffer
	if err := c.WriteText(&buf); err != nil {
		t.Fatal(err)
	}
	want := "News,#genre#\nCCTV-1,http://h/1\nCCTV-2,http://h/2\n\n" +
		ClusterSectionLabel + ",#genre#\nCCTV-2,http://h/2\nCCTV-1,http://h/1\n"
	if buf.String() != want {
		t.Errorf("text =\n%q\nwant\n%q", buf.String(), want)
	}
}

func TestWriteText_sanitizesSeparators(t *testing.T) {
	c := &Catalog{Entries: []Entry{{DisplayName: "News, Live\n", URL: "http://h/x", Category: "A,B"}}}
	var buf bytes.Buffer
	c.WriteText(&buf)
	want := "A B,#genre#\nNews  Live,http://h/x\n"
	if buf.String() != want {
		t.Errorf("text = %q, want %q", buf.String(), want)
	}
}

func TestSave_LoadText_roundtrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "final.txt")
	c := Aggregate([]CheckResult{
		valid("X", "http://h/1", "A", 20, 0),
		valid("X", "http://h/2", "A", 10, 1),
		valid("Y", "http://h/3", "B", 10, 2),
	}, AggregateOptions{Clusters: true})
	if err := c.Save(path); err != nil {
		t.Fatalf("Save: %v", err)
	}
	got, err := LoadText(path)
	if err != nil {
		t.Fatalf("LoadText: %v", err)
	}
	if len(got) != 3 {
		t.Fatalf("entries = %+v", got)
	}
	if got[0].DisplayName != "X 1" || got[0].URL != "http://h/2" || got[2].Category != "B" {
		t.Errorf("entries = %+v", got)
	}
}

func TestSummarize(t *testing.T) {
	s := Summarize([]CheckResult{
		{Status: StatusValid}, {Status: StatusValid}, {Status: StatusTimeout}, {Status: StatusError},
	}, 0)
	if s.Total != 4 || s.Valid != 2 || s.Timeout != 1 || s.Error != 1 || s.Invalid != 0 {
		t.Errorf("summary = %+v", s)
	}
	if p := s.Percent(StatusValid); p != 50 {
		t.Errorf("valid percent = %v", p)
	}
}
