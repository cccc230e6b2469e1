package candidate

import (
	"sync"

	bloom "github.com/bits-and-blooms/bloom/v3"
)

// Deduplicator admits each canonical URL once. It is seeded with the URLs a
// previous run already processed so resume-skip and dedup are the same check.
// The bloom filter is only a negative fast path: a miss admits without a map
// lookup, a hit is always confirmed against the exact set, so a false positive
// never drops a URL.
type Deduplicator struct {
	mu     sync.Mutex
	filter *bloom.BloomFilter
	seen   map[string]struct{}
}

// NewDeduplicator sizes the filter for about expected URLs.
func NewDeduplicator(expected int) *Deduplicator {
	if expected < 1024 {
		expected = 1024
	}
	return &Deduplicator{
		filter: bloom.NewWithEstimates(uint(expected), 0.001),
		seen:   make(map[string]struct{}, expected),
	}
}

// Seed marks urls as seen.
func (d *Deduplicator) Seed(urls []string) {
	d.mu.Lock()
	defer d.mu.Unlock()
	for _, u := range urls {
		d.addLocked(u)
	}
}

// Admit reports whether canonicalURL is new, marking it seen if so.
func (d *Deduplicator) Admit(canonicalURL string) bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.filter.TestString(canonicalURL) {
		if _, ok := d.seen[canonicalURL]; ok {
			return false
		}
	}
	d.addLocked(canonicalURL)
	return true
}

// Len returns the number of distinct URLs seen.
func (d *Deduplicator) Len() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.seen)
}

func (d *Deduplicator) addLocked(u string) {
	d.filter.AddString(u)
	d.seen[u] = struct{}{}
}
