package probe

import (
	"bytes"
	"encoding/binary"
	"net/url"
	"regexp"
	"strings"
)

// Kind is the format family deep validation dispatches on.
type Kind string

const (
	KindUnknown  Kind = ""
	KindPlaylist Kind = "playlist"
	KindFLV      Kind = "flv"
	KindStream   Kind = "stream" // other recognized stream formats
)

// streamContentTypes are Content-Type fragments that identify a media stream.
var streamContentTypes = []string{
	"application/vnd.apple.mpegurl",
	"application/x-mpegurl",
	"application/octet-stream",
	"video/mp2t",
	"video/mp4",
	"video/x-flv",
	"audio/mpegurl",
	"audio/x-mpegurl",
	"application/dash+xml",
	"video/x-ms-asf",
	"video/x-ms-wmv",
	"video/webm",
	"application/x-rtsp",
	"application/x-rtmp",
	"application/x-shockwave-flash",
	"flv-application/octet-stream",
	"video/x-matroska",
}

// streamURLPatterns match addresses that usually serve live media.
var streamURLPatterns = []*regexp.Regexp{
	regexp.MustCompile(`(?i)\.(m3u8|flv|ts|mp4|mpd|ism|smil|f4m)(\?.*)?$`),
	regexp.MustCompile(`(?i)^(rtmps?|rtsp|mms|mmsh)://`),
	regexp.MustCompile(`(?i)\.php\?.*(id|key|token|stream|channel|live|url)=`),
	regexp.MustCompile(`(?i)/(live|play|stream|hls|dash)/`),
	regexp.MustCompile(`(?i)/api/(live|stream)`),
}

const playlistMarker = "#EXTM3U"

// LooksLikeStreamURL reports whether raw matches a known streaming address pattern.
func LooksLikeStreamURL(raw string) bool {
	for _, re := range streamURLPatterns {
		if re.MatchString(raw) {
			return true
		}
	}
	return false
}

// IsStreamContentType reports whether ct is a known media Content-Type.
func IsStreamContentType(ct string) bool {
	ct = strings.ToLower(ct)
	for _, s := range streamContentTypes {
		if strings.Contains(ct, s) {
			return true
		}
	}
	return false
}

// Classify picks the deep-validation family from the URL, the response
// Content-Type and the first bytes of the body.
func Classify(u *url.URL, contentType string, head []byte) Kind {
	path := ""
	if u != nil {
		path = strings.ToLower(u.Path)
	}
	ct := strings.ToLower(contentType)
	switch {
	case strings.HasSuffix(path, ".m3u8"), strings.Contains(ct, "mpegurl"), hasPlaylistMarker(head):
		return KindPlaylist
	case strings.HasSuffix(path, ".flv"), strings.Contains(ct, "flv"), bytes.HasPrefix(head, []byte("FLV")):
		return KindFLV
	case IsStreamContentType(ct), u != nil && LooksLikeStreamURL(u.String()):
		return KindStream
	}
	return KindUnknown
}

// ValidFLVHeader reports whether b starts with a well-formed FLV file header:
// signature "FLV", version 1, audio/video flags 1, 4 or 5, header size 9.
func ValidFLVHeader(b []byte) bool {
	if len(b) < 9 || !bytes.HasPrefix(b, []byte("FLV")) {
		return false
	}
	if b[3] != 1 {
		return false
	}
	switch b[4] {
	case 1, 4, 5:
	default:
		return false
	}
	return binary.BigEndian.Uint32(b[5:9]) == 9
}

const tsPacketSize = 188

// isTransportStream checks the MPEG-TS sync byte, and the next packet's when
// enough bytes were read.
func isTransportStream(b []byte) bool {
	if len(b) == 0 || b[0] != 0x47 {
		return false
	}
	return len(b) <= tsPacketSize || b[tsPacketSize] == 0x47
}

// sniffStream reports whether head looks like media for the address in path.
// Known extensions require their own signature; anything else may match any.
func sniffStream(path string, head []byte) bool {
	path = strings.ToLower(path)
	switch {
	case strings.HasSuffix(path, ".ts"):
		return isTransportStream(head)
	case strings.HasSuffix(path, ".mp4"):
		return bytes.Contains(head, []byte("ftyp"))
	case strings.HasSuffix(path, ".flv"):
		return ValidFLVHeader(head)
	}
	return hasPlaylistMarker(head) ||
		isTransportStream(head) ||
		bytes.Contains(head, []byte("ftyp")) ||
		ValidFLVHeader(head) ||
		bytes.Contains(head, []byte("<?xml"))
}

func hasPlaylistMarker(b []byte) bool {
	return strings.HasPrefix(trimPlaylistStart(string(b)), playlistMarker)
}

// trimPlaylistStart drops a UTF-8 BOM and leading whitespace.
func trimPlaylistStart(s string) string {
	s = strings.TrimPrefix(s, "\ufeff")
	return strings.TrimLeft(s, " \t\r\n")
}
