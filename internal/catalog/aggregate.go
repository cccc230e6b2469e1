package catalog

import (
	"sort"
	"strconv"
	"strings"
	"unicode"
)

// DefaultClusterPrefixLen is the number of runes used for a cluster key.
const DefaultClusterPrefixLen = 3

// AggregateOptions controls optional parts of aggregation.
type AggregateOptions struct {
	Clusters  bool // build ClusterGroups
	PrefixLen int  // runes per cluster key; <= 0 uses DefaultClusterPrefixLen
}

// Aggregate builds the final catalog from check results. Only valid results
// are used. Within a category, names shared by two or more entries are
// suffixed " 1".." n" fastest first; entries are then sorted by category
// and display name. Names and categories are compared as CleanField writes
// them, so two names that differ only in separators collide. The output does
// not depend on the order of results.
func Aggregate(results []CheckResult, opts AggregateOptions) *Catalog {
	byCategory := make(map[string][]CheckResult)
	for _, r := range results {
		if r.Status != StatusValid {
			continue
		}
		cat := CleanField(r.Category)
		if cat == "" {
			cat = DefaultCategory
		}
		byCategory[cat] = append(byCategory[cat], r)
	}
	var entries []Entry
	for cat, rs := range byCategory {
		entries = append(entries, numberCategory(cat, rs)...)
	}
	sort.Slice(entries, func(i, j int) bool {
		a, b := entries[i], entries[j]
		if a.Category != b.Category {
			return a.Category < b.Category
		}
		if a.DisplayName != b.DisplayName {
			return a.DisplayName < b.DisplayName
		}
		return a.URL < b.URL
	})
	c := &Catalog{Entries: entries}
	if opts.Clusters {
		c.Clusters = Cluster(entries, opts.PrefixLen)
	}
	return c
}

// numberCategory assigns display names within one category. Colliders are
// ordered by latency, then feed position, then URL. A generated "<name> k"
// that equals an unsuffixed name in the same category is skipped so display
// names stay unique.
func numberCategory(cat string, rs []CheckResult) []Entry {
	groups := make(map[string][]CheckResult)
	for _, r := range rs {
		name := CleanField(r.Name)
		groups[name] = append(groups[name], r)
	}
	reserved := make(map[string]bool)
	for name, g := range groups {
		if len(g) == 1 {
			reserved[name] = true
		}
	}
	out := make([]Entry, 0, len(rs))
	for name, g := range groups {
		if len(g) == 1 {
			out = append(out, entryFor(g[0], name, cat))
			continue
		}
		sort.Slice(g, func(i, j int) bool { return collidesBefore(g[i], g[j]) })
		k := 0
		for _, r := range g {
			var display string
			for {
				k++
				display = name + " " + strconv.Itoa(k)
				if !reserved[display] {
					break
				}
			}
			out = append(out, entryFor(r, display, cat))
		}
	}
	return out
}

func collidesBefore(a, b CheckResult) bool {
	if a.LatencyMs != b.LatencyMs {
		return a.LatencyMs < b.LatencyMs
	}
	if a.Seq != b.Seq {
		return a.Seq < b.Seq
	}
	return a.URL < b.URL
}

func entryFor(r CheckResult, display, cat string) Entry {
	return Entry{DisplayName: display, URL: r.URL, Category: cat, LatencyMs: r.LatencyMs}
}

// Cluster groups entries by ClusterKey. Groups are ordered by key and each
// group is ordered by latency ascending.
func Cluster(entries []Entry, prefixLen int) []ClusterGroup {
	idx := make(map[string]int)
	var groups []ClusterGroup
	for _, e := range entries {
		key := ClusterKey(e.DisplayName, prefixLen)
		i, ok := idx[key]
		if !ok {
			i = len(groups)
			idx[key] = i
			groups = append(groups, ClusterGroup{Key: key})
		}
		groups[i].Entries = append(groups[i].Entries, e)
	}
	sort.Slice(groups, func(i, j int) bool { return groups[i].Key < groups[j].Key })
	for _, g := range groups {
		sort.SliceStable(g.Entries, func(i, j int) bool {
			a, b := g.Entries[i], g.Entries[j]
			if a.LatencyMs != b.LatencyMs {
				return a.LatencyMs < b.LatencyMs
			}
			if a.Category != b.Category {
				return a.Category < b.Category
			}
			if a.DisplayName != b.DisplayName {
				return a.DisplayName < b.DisplayName
			}
			return a.URL < b.URL
		})
	}
	return groups
}

// ClusterKey returns the grouping key for name: its leading run of letters
// and digits, cut to prefixLen runes. A name that does not start with a
// letter or digit uses its first prefixLen runes instead.
func ClusterKey(name string, prefixLen int) string {
	if prefixLen <= 0 {
		prefixLen = DefaultClusterPrefixLen
	}
	name = strings.TrimSpace(name)
	end := strings.IndexFunc(name, func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})
	run := name
	if end >= 0 {
		run = name[:end]
	}
	if run == "" {
		run = name
	}
	rs := []rune(run)
	if len(rs) > prefixLen {
		rs = rs[:prefixLen]
	}
	return string(rs)
}
