package indexer

import (
	"io"
	"os"
	"path/filepath"
	"reflect"
	"testing"

	"github.com/charmbracelet/log"
)

func writeFile(t *testing.T, path, body string) {
	t.Helper()
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(path, []byte(body), 0o644); err != nil {
		t.Fatal(err)
	}
}

func TestScan(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, filepath.Join(dir, "b.txt"), "")
	writeFile(t, filepath.Join(dir, "a.M3U"), "")
	writeFile(t, filepath.Join(dir, "notes.md"), "")
	writeFile(t, filepath.Join(dir, "sub", "c.json"), "")

	got, err := Scan(dir, []string{".txt", ".m3u", ".json"}, true)
	if err != nil {
		t.Fatal(err)
	}
	want := []string{filepath.Join(dir, "a.M3U"), filepath.Join(dir, "b.txt"), filepath.Join(dir, "sub", "c.json")}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("recursive = %v, want %v", got, want)
	}

	got, err = Scan(dir, []string{".txt", ".m3u", ".json"}, false)
	if err != nil {
		t.Fatal(err)
	}
	if !reflect.DeepEqual(got, want[:2]) {
		t.Errorf("flat = %v, want %v", got, want[:2])
	}

	if _, err := Scan(filepath.Join(dir, "missing"), []string{".txt"}, false); err == nil {
		t.Error("expected error for missing dir")
	}
}

func TestExtractFiles(t *testing.T) {
	dir := t.TempDir()
	m3u := filepath.Join(dir, "a.txt")
	writeFile(t, m3u, "#EXTM3U\n#EXTINF:-1,Sniffed\nhttp://x.example/s\n")
	txt := filepath.Join(dir, "b.txt")
	writeFile(t, txt, "News,#genre#\nA,http://x.example/a\n")
	js := filepath.Join(dir, "c.json")
	writeFile(t, js, `[{"name":"J","url":"http://x.example/j"}]`)

	recs := ExtractFiles([]string{m3u, txt, js, filepath.Join(dir, "gone.txt")}, log.New(io.Discard))
	cands := Candidates(recs)
	if len(cands) != 3 {
		t.Fatalf("candidates = %+v", cands)
	}
	if cands[0].Name != "Sniffed" || cands[1].Category != "News" || cands[2].Name != "J" || cands[2].Seq != 2 {
		t.Errorf("candidates = %+v", cands)
	}
}
