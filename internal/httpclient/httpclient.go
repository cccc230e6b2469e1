// Package httpclient builds the shared HTTP client used for stream checks.
package httpclient

import (
	"compress/gzip"
	"io"
	"net"
	"net/http"
	"net/http/cookiejar"
	"strings"
	"time"

	"github.com/andybalholm/brotli"
	"golang.org/x/net/publicsuffix"
)

const (
	DefaultTimeout         = 10 * time.Second
	DefaultIdleConnTimeout = 90 * time.Second
	MaxIdleConnsPerHost    = 16
	DialTimeout            = 5 * time.Second
)

// Options tunes a client built by New.
type Options struct {
	// Timeout bounds a whole request including the body read. 0 = DefaultTimeout.
	Timeout time.Duration
	// MaxConns caps idle connections kept across all hosts; usually the worker count.
	MaxConns int
	// Cookies keeps a jar so token cookies set by a playlist apply to its segments.
	Cookies bool
}

// New returns a client with a tuned transport. Redirects are followed (the
// default policy, up to 10), and the final URL is available on resp.Request.URL.
func New(opts Options) *http.Client {
	if opts.Timeout <= 0 {
		opts.Timeout = DefaultTimeout
	}
	if opts.MaxConns <= 0 {
		opts.MaxConns = 100
	}
	c := &http.Client{
		Timeout: opts.Timeout,
		Transport: &http.Transport{
			Proxy:                 http.ProxyFromEnvironment,
			DialContext:           (&net.Dialer{Timeout: DialTimeout, KeepAlive: 30 * time.Second}).DialContext,
			MaxIdleConns:          opts.MaxConns,
			MaxIdleConnsPerHost:   MaxIdleConnsPerHost,
			IdleConnTimeout:       DefaultIdleConnTimeout,
			TLSHandshakeTimeout:   opts.Timeout,
			ResponseHeaderTimeout: opts.Timeout,
		},
	}
	if opts.Cookies {
		// cookiejar.New only fails on a nil-safe options value; publicsuffix never errors.
		jar, _ := cookiejar.New(&cookiejar.Options{PublicSuffixList: publicsuffix.List})
		c.Jar = jar
	}
	return c
}

// SetBrowserHeaders sets the headers streaming origins expect from a player:
// the given User-Agent, Accept, Referer and Origin of the target itself.
func SetBrowserHeaders(req *http.Request, userAgent string) {
	if userAgent != "" {
		req.Header.Set("User-Agent", userAgent)
	}
	req.Header.Set("Accept", "*/*")
	req.Header.Set("Accept-Encoding", "gzip, br")
	if req.URL != nil && req.URL.Host != "" {
		origin := req.URL.Scheme + "://" + req.URL.Host
		req.Header.Set("Referer", origin+"/")
		req.Header.Set("Origin", origin)
	}
}

// DecodeBody wraps resp.Body according to Content-Encoding. The returned
// reader must be closed; closing it also closes resp.Body.
func DecodeBody(resp *http.Response) (io.ReadCloser, error) {
	switch strings.ToLower(strings.TrimSpace(resp.Header.Get("Content-Encoding"))) {
	case "br":
		return readCloser{Reader: brotli.NewReader(resp.Body), closer: resp.Body}, nil
	case "gzip", "x-gzip":
		zr, err := gzip.NewReader(resp.Body)
		if err != nil {
			return nil, err
		}
		return readCloser{Reader: zr, closer: multiCloser{zr, resp.Body}}, nil
	}
	return resp.Body, nil
}

type readCloser struct {
	io.Reader
	closer io.Closer
}

func (r readCloser) Close() error { return r.closer.Close() }

type multiCloser []io.Closer

func (m multiCloser) Close() error {
	var first error
	for _, c := range m {
		if err := c.Close(); err != nil && first == nil {
			first = err
		}
	}
	return first
}
