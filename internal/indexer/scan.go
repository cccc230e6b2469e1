package indexer

import (
	"bytes"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/charmbracelet/log"
)

// Scan lists files under dir whose extension is in exts (case-insensitive),
// descending into subdirectories when recursive. The result is sorted.
func Scan(dir string, exts []string, recursive bool) ([]string, error) {
	want := make(map[string]bool, len(exts))
	for _, e := range exts {
		want[strings.ToLower(e)] = true
	}
	match := func(name string) bool { return want[strings.ToLower(filepath.Ext(name))] }

	var files []string
	if recursive {
		err := filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
			if err != nil {
				return err
			}
			if d.Type().IsRegular() && match(d.Name()) {
				files = append(files, path)
			}
			return nil
		})
		if err != nil {
			return nil, fmt.Errorf("scan %s: %w", dir, err)
		}
	} else {
		entries, err := os.ReadDir(dir)
		if err != nil {
			return nil, fmt.Errorf("scan %s: %w", dir, err)
		}
		for _, e := range entries {
			if e.Type().IsRegular() && match(e.Name()) {
				files = append(files, filepath.Join(dir, e.Name()))
			}
		}
	}
	sort.Strings(files)
	return files, nil
}

// ExtractFile parses one feed file, choosing the reader by extension. Files
// that begin with #EXTM3U are read as M3U whatever their extension.
func ExtractFile(path string) ([]Record, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	switch ext := strings.ToLower(filepath.Ext(path)); {
	case ext == ".json":
		return parseJSONOrText(data, path)
	case ext == ".m3u" || ext == ".m3u8" || looksLikeM3U(data):
		return ParseM3U(bytes.NewReader(data), path)
	default:
		return ParseGenreText(bytes.NewReader(data), path)
	}
}

func looksLikeM3U(data []byte) bool {
	data = bytes.TrimPrefix(data, []byte("\ufeff"))
	return bytes.HasPrefix(bytes.TrimSpace(data), []byte("#EXTM3U"))
}

// ExtractFiles parses every path in order. Unreadable files are logged and skipped.
func ExtractFiles(paths []string, logger *log.Logger) []Record {
	var out []Record
	for _, p := range paths {
		recs, err := ExtractFile(p)
		if err != nil {
			logger.Warn("skipping feed file", "path", p, "err", err)
			continue
		}
		found := 0
		for _, r := range recs {
			if !r.Skipped() {
				found++
			}
		}
		logger.Debug("feed file parsed", "path", p, "candidates", found, "skipped", len(recs)-found)
		out = append(out, recs...)
	}
	return out
}
