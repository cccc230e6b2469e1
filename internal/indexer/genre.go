package indexer

import (
	"bufio"
	"io"
	"strings"
)

// isGenreHeader matches "<category>,#genre#" and "<category>,#type#" lines.
func isGenreHeader(line string) bool {
	return strings.HasSuffix(line, ",#genre#") || strings.HasSuffix(line, "#type#")
}

// ParseGenreText reads the genre-text list format:
//
//	<category>,#genre#
//	<name>,<url>
//	<url>
//
// A line with no comma contributes every url in it; the text around the url
// becomes the name, or "<category> Stream N" when there is none.
func ParseGenreText(r io.Reader, file string) ([]Record, error) {
	sc := bufio.NewScanner(r)
	sc.Buffer(nil, maxLineSize)
	var out []Record
	category := ""
	n := 0
	for sc.Scan() {
		n++
		line := strings.TrimSpace(sc.Text())
		if n == 1 {
			line = strings.TrimPrefix(line, "\ufeff")
		}
		if line == "" {
			continue
		}
		if isGenreHeader(line) {
			category, _, _ = strings.Cut(line, ",")
			category = strings.TrimSpace(category)
			continue
		}
		src := source(file, n)
		if name, rest, ok := strings.Cut(line, ","); ok {
			name, rest = strings.TrimSpace(name), strings.TrimSpace(rest)
			if isURL(rest) {
				out = append(out, candidateRecord(name, rest, category, src))
				continue
			}
			urls := findURLs(rest)
			if len(urls) == 0 {
				out = append(out, Record{Skip: SkipNoURL, Source: src})
			}
			for _, u := range urls {
				out = append(out, candidateRecord(name, u, category, src))
			}
			continue
		}
		urls := findURLs(line)
		if len(urls) == 0 {
			out = append(out, Record{Skip: SkipNoURL, Source: src})
			continue
		}
		for _, u := range urls {
			name := strings.TrimSpace(strings.Replace(line, u, "", 1))
			if name == "" {
				name = streamName(category, len(out)+1)
			}
			out = append(out, candidateRecord(name, u, category, src))
		}
	}
	return out, sc.Err()
}
