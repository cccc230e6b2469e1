// Package candidate normalizes and deduplicates candidate stream records
// before they reach the checker.
package candidate

import (
	"net"
	"net/url"
	"strconv"
	"strings"

	"golang.org/x/net/idna"

	"github.com/snapetech/streamcheck/internal/catalog"
)

// Reason explains why a candidate was rejected. The zero value means accepted.
type Reason string

const (
	ReasonEmpty       Reason = "empty url"
	ReasonBlacklisted Reason = "blacklisted pattern"
	ReasonMalformed   Reason = "malformed url"
	ReasonScheme      Reason = "unsupported scheme"
	ReasonHost        Reason = "invalid host"
)

// Schemes accepted as stream addresses.
var Schemes = map[string]bool{
	"http": true, "https": true,
	"rtmp": true, "rtmps": true, "rtsp": true,
	"mms": true, "mmsh": true,
}

// hostProfile maps and validates hostnames like a resolver would but allows
// underscores, which some stream CDNs use.
var hostProfile = idna.New(idna.MapForLookup(), idna.StrictDomainName(false))

// CanonicalURL returns raw trimmed and cut at its first '#'.
func CanonicalURL(raw string) string {
	s := strings.TrimSpace(raw)
	if i := strings.IndexByte(s, '#'); i >= 0 {
		s = strings.TrimSpace(s[:i])
	}
	return s
}

// Canonicalize normalizes c. The URL is replaced by its canonical form, the
// name and category are cleaned with catalog.CleanField, an empty name becomes "Stream <n>" and an
// empty category becomes catalog.DefaultCategory. A non-empty Reason means
// c must not be checked; Canonicalize is idempotent for accepted records.
func Canonicalize(c catalog.Candidate) (catalog.Candidate, Reason) {
	c.URL = CanonicalURL(catalog.ValidText(c.URL))
	c.Name = catalog.CleanField(c.Name)
	c.Category = catalog.CleanField(c.Category)
	if c.Category == "" {
		c.Category = catalog.DefaultCategory
	}
	if c.Name == "" {
		c.Name = "Stream " + strconv.Itoa(c.Seq+1)
	}
	if c.URL == "" {
		return c, ReasonEmpty
	}
	if strings.Contains(strings.ToLower(c.URL), "jar") {
		return c, ReasonBlacklisted
	}
	return c, checkAddress(c.URL)
}

func checkAddress(raw string) Reason {
	u, err := url.Parse(raw)
	if err != nil {
		return ReasonMalformed
	}
	if !Schemes[strings.ToLower(u.Scheme)] {
		return ReasonScheme
	}
	host := u.Hostname()
	if host == "" {
		return ReasonHost
	}
	if net.ParseIP(host) != nil {
		return ""
	}
	if _, err := hostProfile.ToASCII(host); err != nil {
		return ReasonHost
	}
	return ""
}
