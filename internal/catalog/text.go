package catalog

import (
	"strings"
	"unicode/utf8"
)

var fieldReplacer = strings.NewReplacer(",", " ", "\r", " ", "\n", " ")

// ValidText replaces each invalid UTF-8 byte in s with U+FFFD. encoding/json
// makes the same substitution, so a ValidText value survives a JSON round trip
// byte for byte.
func ValidText(s string) string {
	if utf8.ValidString(s) {
		return s
	}
	return string([]rune(s))
}

// CleanField returns s as valid UTF-8 on a single line without the catalog
// field separator, trimmed. It is idempotent.
func CleanField(s string) string {
	s = ValidText(s)
	if strings.ContainsAny(s, ",\r\n") {
		s = fieldReplacer.Replace(s)
	}
	return strings.TrimSpace(s)
}
