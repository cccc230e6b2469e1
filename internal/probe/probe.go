// Package probe validates one candidate stream: a liveness probe followed by
// optional format-aware deep validation (HLS playlists, FLV headers, other
// stream formats) and an optional external ffprobe check.
package probe

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"runtime/debug"
	"strings"
	"time"

	"github.com/charmbracelet/log"

	"github.com/snapetech/streamcheck/internal/catalog"
	"github.com/snapetech/streamcheck/internal/httpclient"
	"github.com/snapetech/streamcheck/internal/safeurl"
)

const (
	DefaultUserAgent = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/91.0.4472.124 Safari/537.36"

	headBytes           = 1024
	DefaultMaxBodyBytes = 2 << 20
)

var errTimedOut = errors.New("timed out")

// Options configures a Prober. It is copied at construction.
type Options struct {
	Timeout                 time.Duration // per request; sub-resources get their own
	UserAgent               string
	DeepValidation          bool
	SegmentSampleCount      int  // K: variants or segments sampled per playlist
	SampleQuorum            int  // sampled references that must answer; 0 means all K
	ValidatePlaylistContent bool // require the #EXTM3U marker
	ValidateOtherFormats    bool // FLV header and stream signature checks
	UseFFprobe              bool
	FFprobePath             string
	Retry                   httpclient.RetryPolicy
	MaxBodyBytes            int64 // playlist read cap
}

// State is a step of a single check. Terminal outcomes are catalog.Status values.
type State string

const (
	StatePending        State = "pending"
	StateConnecting     State = "connecting"
	StateConnected      State = "connected"
	StateDeepValidating State = "deep_validating"
)

// Prober checks candidates. It is safe for concurrent use.
type Prober struct {
	opts    Options
	client  *http.Client
	hostSem *httpclient.HostSemaphore
	ffprobe *FFprobe
	log     *log.Logger
	dialer  net.Dialer
}

// New returns a Prober. client may be nil; hostSem may be nil (no per-host cap);
// logger may be nil.
func New(opts Options, client *http.Client, hostSem *httpclient.HostSemaphore, logger *log.Logger) *Prober {
	if opts.Timeout <= 0 {
		opts.Timeout = httpclient.DefaultTimeout
	}
	if opts.UserAgent == "" {
		opts.UserAgent = DefaultUserAgent
	}
	if opts.MaxBodyBytes <= 0 {
		opts.MaxBodyBytes = DefaultMaxBodyBytes
	}
	if client == nil {
		client = httpclient.New(httpclient.Options{Timeout: opts.Timeout, Cookies: true})
	}
	if logger == nil {
		logger = log.New(io.Discard)
	}
	p := &Prober{opts: opts, client: client, hostSem: hostSem, log: logger}
	p.dialer.Timeout = opts.Timeout
	if opts.UseFFprobe {
		ff, err := LookupFFprobe(opts.FFprobePath, opts.Timeout)
		if err != nil {
			logger.Warn("external probe unavailable, using heuristics", "err", err)
		} else {
			p.ffprobe = ff
		}
	}
	return p
}

// Check runs the full state machine for c and always returns a result.
func (p *Prober) Check(ctx context.Context, c catalog.Candidate) (res catalog.CheckResult) {
	start := time.Now()
	res.Candidate = c
	defer func() {
		if r := recover(); r != nil {
			p.log.Error("check panicked", "url", safeurl.RedactURL(c.URL), "panic", r, "stack", string(debug.Stack()))
			res.Status = catalog.StatusError
			res.Detail = fmt.Sprintf("internal error: %v", r)
		}
		res.LatencyMs = time.Since(start).Milliseconds()
		res.CheckedAt = time.Now().UTC()
		p.log.Debug("checked", "url", safeurl.RedactURL(c.URL), "status", res.Status, "ms", res.LatencyMs, "detail", res.Detail)
	}()
	res.Status, res.Detail = p.check(ctx, c.URL)
	return res
}

func (p *Prober) trace(rawURL string, s State) {
	p.log.Debug("state", "url", safeurl.RedactURL(rawURL), "state", s)
}

func (p *Prober) check(ctx context.Context, rawURL string) (catalog.Status, string) {
	p.trace(rawURL, StatePending)
	u, err := url.Parse(rawURL)
	if err != nil || u.Host == "" {
		return catalog.StatusError, "invalid url"
	}
	if !safeurl.IsHTTPOrHTTPS(rawURL) {
		return p.checkNonHTTP(ctx, u)
	}

	p.trace(rawURL, StateConnecting)
	f, err := p.fetch(ctx, rawURL)
	if err != nil {
		if isTimeout(err) {
			return catalog.StatusTimeout, "request timed out"
		}
		return catalog.StatusError, errDetail(err)
	}
	if f.code >= 400 {
		return catalog.StatusError, fmt.Sprintf("HTTP status: %d", f.code)
	}
	p.trace(rawURL, StateConnected)
	if !p.opts.DeepValidation {
		return catalog.StatusValid, ""
	}
	kind := Classify(f.finalURL, f.contentType, f.body)
	if kind == KindUnknown {
		return catalog.StatusValid, ""
	}

	p.trace(rawURL, StateDeepValidating)
	switch kind {
	case KindPlaylist:
		return p.validatePlaylist(ctx, f)
	case KindFLV:
		if !p.opts.ValidateOtherFormats {
			break
		}
		if st, detail, ok := p.external(ctx, rawURL); ok {
			return st, detail
		}
		if !ValidFLVHeader(f.body) {
			return catalog.StatusInvalid, "not a valid FLV stream"
		}
		return catalog.StatusValid, "flv header ok"
	}
	return p.validateStream(ctx, f)
}

// validateStream handles recognized non-playlist formats: a stream
// Content-Type or a matching signature is enough, no sub-resources are fetched.
func (p *Prober) validateStream(ctx context.Context, f *fetched) (catalog.Status, string) {
	if IsStreamContentType(f.contentType) {
		return catalog.StatusValid, "stream content type " + f.contentType
	}
	if !p.opts.ValidateOtherFormats {
		return catalog.StatusValid, "stream url pattern"
	}
	if st, detail, ok := p.external(ctx, f.finalURL.String()); ok {
		return st, detail
	}
	if sniffStream(f.finalURL.Path, f.body) {
		return catalog.StatusValid, "stream signature"
	}
	return catalog.StatusInvalid, "content does not look like a stream"
}

// external asks ffprobe for a verdict. ok is false when ffprobe is disabled
// or could not run, so the caller falls back to heuristics.
func (p *Prober) external(ctx context.Context, rawURL string) (catalog.Status, string, bool) {
	if p.ffprobe == nil {
		return "", "", false
	}
	v, err := p.ffprobe.Probe(ctx, rawURL)
	if err != nil {
		p.log.Debug("external probe failed, using heuristics", "url", safeurl.RedactURL(rawURL), "err", err)
		return "", "", false
	}
	if !v.HasMedia() {
		return catalog.StatusInvalid, "ffprobe: no audio or video streams", true
	}
	return catalog.StatusValid, "ffprobe: " + strings.Join(v.CodecTypes, ","), true
}

// fetched is the part of the base probe response deep validation needs.
type fetched struct {
	code        int
	contentType string
	finalURL    *url.URL
	body        []byte // first headBytes, or the whole playlist up to MaxBodyBytes
}

// fetch issues the liveness GET. The host slot is released before returning
// so sub-resource sampling on the same host cannot deadlock.
func (p *Prober) fetch(ctx context.Context, rawURL string) (*fetched, error) {
	ctx, cancel := context.WithTimeout(ctx, p.opts.Timeout)
	defer cancel()
	resp, release, err := p.do(ctx, http.MethodGet, rawURL)
	if err != nil {
		return nil, err
	}
	defer release()
	defer resp.Body.Close()
	f := &fetched{
		code:        resp.StatusCode,
		contentType: resp.Header.Get("Content-Type"),
		finalURL:    resp.Request.URL,
	}
	if f.code >= 400 {
		return f, nil
	}
	body, err := httpclient.DecodeBody(resp)
	if err != nil {
		return nil, fmt.Errorf("decode body: %w", err)
	}
	defer body.Close()
	head, err := readHead(body, headBytes)
	if err != nil {
		return nil, err
	}
	f.body = head
	if p.opts.DeepValidation && Classify(f.finalURL, f.contentType, head) == KindPlaylist {
		// A read error here still leaves a usable prefix of the playlist.
		rest, _ := io.ReadAll(io.LimitReader(body, p.opts.MaxBodyBytes-int64(len(head))))
		f.body = append(head, rest...)
	}
	return f, nil
}

// readHead reads up to n bytes. A short body is fine; a read that fails
// before producing anything is an error.
func readHead(r io.Reader, n int) ([]byte, error) {
	buf := make([]byte, n)
	got, err := io.ReadFull(r, buf)
	switch {
	case err == nil, errors.Is(err, io.EOF), errors.Is(err, io.ErrUnexpectedEOF):
		return buf[:got], nil
	case got > 0:
		return buf[:got], nil
	}
	return nil, fmt.Errorf("read body: %w", err)
}

// do sends one request with browser-like headers under the per-host limit.
// The caller must close resp.Body and then call release.
func (p *Prober) do(ctx context.Context, method, rawURL string) (*http.Response, func(), error) {
	release, err := p.hostSem.Acquire(ctx, rawURL)
	if err != nil {
		return nil, nil, err
	}
	req, err := http.NewRequestWithContext(ctx, method, rawURL, nil)
	if err != nil {
		release()
		return nil, nil, err
	}
	httpclient.SetBrowserHeaders(req, p.opts.UserAgent)
	resp, err := httpclient.DoWithRetry(ctx, p.client, req, p.opts.Retry)
	if err != nil {
		release()
		return nil, nil, err
	}
	return resp, release, nil
}

func isTimeout(err error) bool {
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, errTimedOut) {
		return true
	}
	var ne net.Error
	return errors.As(err, &ne) && ne.Timeout()
}

// errDetail strips the *url.Error wrapper, which repeats the full URL.
func errDetail(err error) string {
	var ue *url.Error
	if errors.As(err, &ue) {
		err = ue.Err
	}
	return err.Error()
}
