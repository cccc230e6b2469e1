package httpclient

import (
	"context"
	"net/url"
	"sync"
)

// HostSemaphore is a per-host concurrency limiter. Playlists from one origin
// usually share a CDN edge; capping per host keeps a large worker pool from
// hammering a single upstream.
//
// Usage: acquire before sending a request, release when the response body is done.
//
//	release, err := sem.Acquire(ctx, rawURL)
//	if err != nil { ... }
//	defer release()
type HostSemaphore struct {
	mu    sync.Mutex
	sems  map[string]chan struct{}
	limit int
}

// NewHostSemaphore returns a limiter allowing concurrency requests per host.
// concurrency <= 0 returns nil, which never blocks.
func NewHostSemaphore(concurrency int) *HostSemaphore {
	if concurrency <= 0 {
		return nil
	}
	return &HostSemaphore{
		sems:  make(map[string]chan struct{}),
		limit: concurrency,
	}
}

// Acquire blocks until a slot is free for the host of rawURL or ctx is done.
func (h *HostSemaphore) Acquire(ctx context.Context, rawURL string) (func(), error) {
	if h == nil {
		return func() {}, nil
	}
	sem := h.semFor(rawURL)
	select {
	case sem <- struct{}{}:
		return func() { <-sem }, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

func (h *HostSemaphore) semFor(rawURL string) chan struct{} {
	// Normalise: strip path/query, keep scheme+host.
	key := rawURL
	if u, err := url.Parse(rawURL); err == nil {
		key = u.Scheme + "://" + u.Host
	}
	h.mu.Lock()
	s, ok := h.sems[key]
	if !ok {
		s = make(chan struct{}, h.limit)
		h.sems[key] = s
	}
	h.mu.Unlock()
	return s
}
