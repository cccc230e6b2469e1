package probe

import (
	"context"
	"net"
	"net/url"
	"strings"

	"github.com/snapetech/streamcheck/internal/catalog"
)

// defaultPorts for schemes checked outside net/http.
var defaultPorts = map[string]string{
	"rtmp":  "1935",
	"rtmps": "443",
	"rtsp":  "554",
	"mms":   "1755",
	"mmsh":  "80",
}

// checkNonHTTP handles rtmp/rtsp/mms addresses. ffprobe gives a real answer
// when available; otherwise a TCP connect is the liveness probe and there is
// no deep validation to apply.
func (p *Prober) checkNonHTTP(ctx context.Context, u *url.URL) (catalog.Status, string) {
	scheme := strings.ToLower(u.Scheme)
	port, ok := defaultPorts[scheme]
	if !ok {
		return catalog.StatusError, "unsupported scheme " + scheme
	}
	if p.opts.DeepValidation {
		if st, detail, ok := p.external(ctx, u.String()); ok {
			return st, detail
		}
	}
	p.trace(u.String(), StateConnecting)
	addr := u.Host
	if u.Port() == "" {
		addr = net.JoinHostPort(u.Hostname(), port)
	}
	ctx, cancel := context.WithTimeout(ctx, p.opts.Timeout)
	defer cancel()
	conn, err := p.dialer.DialContext(ctx, "tcp", addr)
	if err != nil {
		if isTimeout(err) {
			return catalog.StatusTimeout, "connect timed out"
		}
		return catalog.StatusError, err.Error()
	}
	conn.Close()
	p.trace(u.String(), StateConnected)
	return catalog.StatusValid, scheme + " port open"
}
