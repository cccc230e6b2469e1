package probe

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"

	"golang.org/x/sync/errgroup"

	"github.com/snapetech/streamcheck/internal/catalog"
)

const maxLineSize = 1 << 20 // 1 MiB per line

// playlist is the part of an HLS playlist deep validation needs.
type playlist struct {
	master bool     // has #EXT-X-STREAM-INF variant entries
	refs   []string // absolute variant or segment URIs in playlist order
}

// parsePlaylist collects URI lines from body, resolving relative ones against base.
func parsePlaylist(body string, base *url.URL) playlist {
	var p playlist
	sc := bufio.NewScanner(strings.NewReader(body))
	sc.Buffer(nil, maxLineSize)
	for sc.Scan() {
		line := strings.TrimSpace(sc.Text())
		if line == "" {
			continue
		}
		if strings.HasPrefix(line, "#") {
			if strings.HasPrefix(line, "#EXT-X-STREAM-INF") {
				p.master = true
			}
			continue
		}
		ref, err := url.Parse(line)
		if err != nil {
			continue
		}
		if base != nil {
			ref = base.ResolveReference(ref)
		}
		p.refs = append(p.refs, ref.String())
	}
	return p
}

// validatePlaylist runs the playlist branch of deep validation on a fetched body.
func (p *Prober) validatePlaylist(ctx context.Context, f *fetched) (catalog.Status, string) {
	body := string(f.body)
	if p.opts.ValidatePlaylistContent && !hasPlaylistMarker(f.body) {
		return catalog.StatusInvalid, "missing " + playlistMarker + " header"
	}
	pl := parsePlaylist(trimPlaylistStart(body), f.finalURL)
	what := "segment"
	if pl.master {
		what = "variant"
	}
	if len(pl.refs) == 0 {
		return catalog.StatusInvalid, "no " + what + " references in playlist"
	}
	if p.opts.SegmentSampleCount <= 0 {
		return catalog.StatusValid, fmt.Sprintf("%d %ss, sampling off", len(pl.refs), what)
	}
	return p.sample(ctx, pl.refs, pl.master, what)
}

// sample probes the first K references concurrently. Every sampled reference
// is probed; the candidate is valid only if at least quorum of them answer.
func (p *Prober) sample(ctx context.Context, refs []string, master bool, what string) (catalog.Status, string) {
	k := min(p.opts.SegmentSampleCount, len(refs))
	errs := make([]error, k)
	var g errgroup.Group
	for i, ref := range refs[:k] {
		g.Go(func() error {
			errs[i] = p.fetchSubresource(ctx, ref, master)
			return nil
		})
	}
	g.Wait()
	ok, firstFail := 0, -1
	for i, err := range errs {
		if err == nil {
			ok++
		} else if firstFail < 0 {
			firstFail = i
		}
	}
	if ok < quorum(p.opts.SampleQuorum, k) {
		return catalog.StatusInvalid, fmt.Sprintf("%s %d: %v", what, firstFail+1, errs[firstFail])
	}
	return catalog.StatusValid, fmt.Sprintf("%d/%d %ss reachable", ok, len(refs), what)
}

func quorum(q, k int) int {
	if q <= 0 || q > k {
		return k
	}
	return q
}

// fetchSubresource checks one variant (GET) or segment (HEAD, GET when HEAD
// is refused) within its own timeout.
func (p *Prober) fetchSubresource(ctx context.Context, ref string, variant bool) error {
	ctx, cancel := context.WithTimeout(ctx, p.opts.Timeout)
	defer cancel()
	method := http.MethodHead
	if variant {
		method = http.MethodGet
	}
	code, err := p.statusOf(ctx, method, ref)
	if err == nil && method == http.MethodHead && (code == http.StatusMethodNotAllowed || code == http.StatusNotImplemented) {
		code, err = p.statusOf(ctx, http.MethodGet, ref)
	}
	if err != nil {
		if isTimeout(err) {
			return errTimedOut
		}
		return err
	}
	if code >= 400 {
		return fmt.Errorf("HTTP status: %d", code)
	}
	return nil
}

func (p *Prober) statusOf(ctx context.Context, method, ref string) (int, error) {
	resp, release, err := p.do(ctx, method, ref)
	if err != nil {
		return 0, err
	}
	defer release()
	_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 4<<10))
	resp.Body.Close()
	return resp.StatusCode, nil
}
