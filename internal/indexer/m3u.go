package indexer

import (
	"bufio"
	"io"
	"strings"

	"github.com/snapetech/streamcheck/internal/catalog"
)

// ParseM3U reads an extended M3U playlist. The entry name comes from tvg-name,
// falling back to the title after the attribute list; the category from
// group-title or a preceding #EXTGRP line. Directives between #EXTINF and the
// url (#EXTVLCOPT and friends) are ignored.
func ParseM3U(r io.Reader, file string) ([]Record, error) {
	sc := bufio.NewScanner(r)
	sc.Buffer(nil, maxLineSize)
	var out []Record
	var extinf string
	var extinfLine int
	group := ""
	n := 0
	flushOrphan := func() {
		if extinf != "" {
			out = append(out, Record{Skip: SkipOrphanInfo, Source: source(file, extinfLine)})
		}
		extinf = ""
	}
	for sc.Scan() {
		n++
		line := strings.TrimSpace(sc.Text())
		if n == 1 {
			line = strings.TrimPrefix(line, "\ufeff")
		}
		if line == "" {
			continue
		}
		switch {
		case strings.HasPrefix(line, "#EXTINF:"):
			flushOrphan()
			extinf, extinfLine = line, n
			continue
		case strings.HasPrefix(line, "#EXTGRP:"):
			group = strings.TrimSpace(strings.TrimPrefix(line, "#EXTGRP:"))
			continue
		case strings.HasPrefix(line, "#"):
			continue
		}
		src := source(file, n)
		urls := []string{line}
		if !isURL(line) {
			urls = findURLs(line)
		}
		if len(urls) == 0 {
			out = append(out, Record{Skip: SkipNoURL, Source: src})
			continue
		}
		name, category := m3uName(extinf), group
		if g := attr(extinf, "group-title"); g != "" {
			category = g
		}
		for _, u := range urls {
			if name == "" {
				name = streamName("", len(out)+1)
			}
			out = append(out, candidateRecord(name, u, category, src))
			name = ""
		}
		extinf, group = "", ""
	}
	flushOrphan()
	return out, sc.Err()
}

func m3uName(extinf string) string {
	if extinf == "" {
		return ""
	}
	if name := attr(extinf, "tvg-name"); name != "" {
		return name
	}
	return extinfTitle(extinf)
}

// extinfTitle returns the text after the first comma outside quotes.
func extinfTitle(extinf string) string {
	inQuote := false
	for i := 0; i < len(extinf); i++ {
		switch extinf[i] {
		case '"':
			inQuote = !inQuote
		case ',':
			if !inQuote {
				return strings.TrimSpace(extinf[i+1:])
			}
		}
	}
	return ""
}

// attr returns the quoted value of key="..." in an #EXTINF line.
func attr(extinf, key string) string {
	prefix := key + `="`
	i := strings.Index(extinf, prefix)
	if i < 0 {
		return ""
	}
	if i > 0 && extinf[i-1] != ' ' && extinf[i-1] != ':' {
		return ""
	}
	i += len(prefix)
	j := strings.IndexByte(extinf[i:], '"')
	if j < 0 {
		return ""
	}
	return strings.TrimSpace(extinf[i : i+j])
}

func candidateRecord(name, url, category, src string) Record {
	return Record{
		Candidate: catalog.Candidate{Name: name, URL: url, Category: category},
		Source:    src,
	}
}
