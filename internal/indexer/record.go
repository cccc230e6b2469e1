// Package indexer extracts candidate streams from feed documents: genre-text
// lists, M3U playlists and JSON files found in an input directory.
package indexer

import (
	"regexp"
	"strconv"
	"strings"

	"github.com/snapetech/streamcheck/internal/catalog"
)

const maxLineSize = 1 << 20 // 1 MiB per line

// Record is one extraction outcome. When Skip is set the entry produced no
// candidate and Skip says why.
type Record struct {
	Candidate catalog.Candidate
	Skip      string
	// Source is "<file>:<line>" for text formats and "<file>" for JSON.
	Source string
}

// Skipped reports whether r carries no candidate.
func (r Record) Skipped() bool { return r.Skip != "" }

const (
	SkipNoURL      = "no stream url"
	SkipOrphanInfo = "#EXTINF without url"
)

// urlPattern finds stream addresses embedded in free text.
var urlPattern = regexp.MustCompile(`(?i)\b(?:https?|rtmps?|rtsp|mmsh?)://[^\s,"'<>]+`)

func findURLs(s string) []string {
	return urlPattern.FindAllString(s, -1)
}

// isURL reports whether s, as a whole, starts with a stream scheme.
func isURL(s string) bool {
	loc := urlPattern.FindStringIndex(s)
	return loc != nil && loc[0] == 0
}

// Candidates returns the candidates of records in order, numbering them with
// a feed-wide Seq.
func Candidates(records []Record) []catalog.Candidate {
	out := make([]catalog.Candidate, 0, len(records))
	for _, r := range records {
		if r.Skipped() {
			continue
		}
		c := r.Candidate
		c.Seq = len(out)
		out = append(out, c)
	}
	return out
}

func source(file string, line int) string {
	if line <= 0 {
		return file
	}
	return file + ":" + strconv.Itoa(line)
}

// streamName synthesizes a name for an unnamed url in category.
func streamName(category string, n int) string {
	return strings.TrimSpace(category + " Stream " + strconv.Itoa(n))
}
