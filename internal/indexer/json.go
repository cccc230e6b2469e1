package indexer

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strings"
)

var (
	nameKeys = []string{"name", "title", "label", "channel", "tvg-name"}
	urlKeys  = []string{"url", "link", "src", "href", "api"}
	// keys never used as a stream name when their value is a url
	reservedKeys = map[string]bool{"url": true, "link": true, "src": true, "href": true, "api": true, "ext": true, "jar": true}
)

// member is one object field, kept in document order.
type member struct {
	key string
	val any
}

type object []member

func (o object) str(key string) (string, bool) {
	for _, m := range o {
		if m.key == key {
			s, ok := m.val.(string)
			return s, ok
		}
	}
	return "", false
}

// ParseJSON walks any JSON document and emits every http(s) url it finds.
// An object's name comes from its first name key; a url found under an
// arbitrary key is named after that key. Objects and arrays are visited in
// document order.
func ParseJSON(r io.Reader, file string) ([]Record, error) {
	dec := json.NewDecoder(r)
	dec.UseNumber()
	v, err := decodeOrdered(dec)
	if err != nil {
		return nil, fmt.Errorf("parse json %s: %w", file, err)
	}
	var out []Record
	walkJSON(v, file, &out)
	return out, nil
}

func isHTTP(s string) bool {
	return strings.HasPrefix(s, "http://") || strings.HasPrefix(s, "https://")
}

func walkJSON(v any, file string, out *[]Record) {
	switch v := v.(type) {
	case []any:
		for _, item := range v {
			walkJSON(item, file, out)
		}
	case object:
		name := ""
		for _, k := range nameKeys {
			if s, ok := v.str(k); ok {
				name = strings.TrimSpace(s)
				break
			}
		}
		primary := ""
		for _, k := range urlKeys {
			if s, ok := v.str(k); ok && isHTTP(s) {
				primary = s
				break
			}
		}
		if primary != "" {
			n := name
			if n == "" {
				n = streamName("", len(*out)+1)
			}
			*out = append(*out, candidateRecord(n, primary, "", file))
		}
		for _, m := range v {
			switch val := m.val.(type) {
			case string:
				if !isHTTP(val) || val == primary {
					continue
				}
				n := m.key
				if strings.HasPrefix(n, "_") || reservedKeys[n] {
					n = streamName("", len(*out)+1)
				}
				*out = append(*out, candidateRecord(n, val, "", file))
			case object, []any:
				walkJSON(val, file, out)
			}
		}
	}
}

// decodeOrdered decodes one JSON value, representing objects as object so
// field order survives.
func decodeOrdered(dec *json.Decoder) (any, error) {
	tok, err := dec.Token()
	if err != nil {
		return nil, err
	}
	switch t := tok.(type) {
	case json.Delim:
		switch t {
		case '{':
			var o object
			for dec.More() {
				kt, err := dec.Token()
				if err != nil {
					return nil, err
				}
				key, ok := kt.(string)
				if !ok {
					return nil, errors.New("object key is not a string")
				}
				val, err := decodeOrdered(dec)
				if err != nil {
					return nil, err
				}
				o = append(o, member{key: key, val: val})
			}
			if _, err := dec.Token(); err != nil {
				return nil, err
			}
			return o, nil
		case '[':
			arr := []any{}
			for dec.More() {
				val, err := decodeOrdered(dec)
				if err != nil {
					return nil, err
				}
				arr = append(arr, val)
			}
			if _, err := dec.Token(); err != nil {
				return nil, err
			}
			return arr, nil
		}
		return nil, fmt.Errorf("unexpected delimiter %q", t)
	default:
		return t, nil
	}
}

// parseJSONOrText falls back to the genre-text reader for .json files that do
// not parse, which catches lists saved with the wrong extension.
func parseJSONOrText(data []byte, file string) ([]Record, error) {
	recs, err := ParseJSON(bytes.NewReader(data), file)
	if err == nil {
		return recs, nil
	}
	return ParseGenreText(bytes.NewReader(data), file)
}
