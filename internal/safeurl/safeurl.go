package safeurl

import (
	"net/url"
	"strings"
)

// IsHTTPOrHTTPS returns true if u is a valid URL with scheme http or https.
// Other schemes go through the external probe or a plain TCP dial, never net/http.
func IsHTTPOrHTTPS(u string) bool {
	parsed, err := url.Parse(u)
	if err != nil {
		return false
	}
	s := strings.ToLower(parsed.Scheme)
	return s == "http" || s == "https"
}

// sensitiveParams are query keys that commonly carry provider credentials or tokens.
var sensitiveParams = []string{"username", "password", "token", "key", "auth", "sign", "signature"}

// RedactURL returns u with userinfo and credential-like query values masked,
// for logging. Unparseable input is returned with its query cut off.
func RedactURL(u string) string {
	parsed, err := url.Parse(u)
	if err != nil {
		if i := strings.IndexByte(u, '?'); i >= 0 {
			return u[:i] + "?REDACTED"
		}
		return u
	}
	if parsed.User != nil {
		parsed.User = url.User("REDACTED")
	}
	if parsed.RawQuery != "" {
		q := parsed.Query()
		changed := false
		for key := range q {
			lk := strings.ToLower(key)
			for _, s := range sensitiveParams {
				if lk == s {
					q.Set(key, "REDACTED")
					changed = true
					break
				}
			}
		}
		if changed {
			parsed.RawQuery = q.Encode()
		}
	}
	return parsed.String()
}
