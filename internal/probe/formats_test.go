package probe

import (
	"net/url"
	"testing"
)

func TestValidFLVHeader(t *testing.T) {
	tests := []struct {
		name string
		b    []byte
		want bool
	}{
		{"audio+video", []byte{'F', 'L', 'V', 1, 5, 0, 0, 0, 9}, true},
		{"video only", []byte{'F', 'L', 'V', 1, 1, 0, 0, 0, 9, 0xff}, true},
		{"audio only", []byte{'F', 'L', 'V', 1, 4, 0, 0, 0, 9}, true},
		{"short", []byte("FLV"), false},
		{"bad version", []byte{'F', 'L', 'V', 2, 5, 0, 0, 0, 9}, false},
		{"bad flags", []byte{'F', 'L', 'V', 1, 3, 0, 0, 0, 9}, false},
		{"bad header size", []byte{'F', 'L', 'V', 1, 5, 0, 0, 0, 10}, false},
		{"other magic", []byte("<html>xxxxxx"), false},
	}
	for _, tt := range tests {
		if got := ValidFLVHeader(tt.b); got != tt.want {
			t.Errorf("%s: ValidFLVHeader = %v, want %v", tt.name, got, tt.want)
		}
	}
}

func TestClassify(t *testing.T) {
	tests := []struct {
		url  string
		ct   string
		head string
		want Kind
	}{
		{"http://h/a.m3u8", "", "", KindPlaylist},
		{"http://h/a", "application/x-mpegURL", "", KindPlaylist},
		{"http://h/a", "text/plain", "\ufeff#EXTM3U\n", KindPlaylist},
		{"http://h/a.flv", "", "", KindFLV},
		{"http://h/a", "video/x-flv", "", KindFLV},
		{"http://h/a", "", "FLV\x01", KindFLV},
		{"http://h/a", "video/mp2t", "", KindStream},
		{"http://h/live/1", "text/html", "", KindStream},
		{"http://h/get.php?channel=3", "", "", KindStream},
		{"http://h/index.html", "text/html", "<html>", KindUnknown},
	}
	for _, tt := range tests {
		u, _ := url.Parse(tt.url)
		if got := Classify(u, tt.ct, []byte(tt.head)); got != tt.want {
			t.Errorf("Classify(%q, %q, %q) = %q, want %q", tt.url, tt.ct, tt.head, got, tt.want)
		}
	}
}

func TestSniffStream(t *testing.T) {
	ts := make([]byte, 400)
	ts[0], ts[188] = 0x47, 0x47
	badStride := make([]byte, 400)
	badStride[0] = 0x47
	tests := []struct {
		path string
		head []byte
		want bool
	}{
		{"/a.ts", ts, true},
		{"/a.ts", badStride, false},
		{"/a.mp4", []byte("\x00\x00\x00\x18ftypmp42"), true},
		{"/a.mp4", []byte("<html>"), false},
		{"/x", []byte("<?xml version=\"1.0\"?><MPD>"), true},
		{"/x", []byte("#EXTM3U"), true},
		{"/x", []byte("hello"), false},
	}
	for _, tt := range tests {
		if got := sniffStream(tt.path, tt.head); got != tt.want {
			t.Errorf("sniffStream(%q, %q...) = %v, want %v", tt.path, tt.head[:min(8, len(tt.head))], got, tt.want)
		}
	}
}

func TestLooksLikeStreamURL(t *testing.T) {
	for _, u := range []string{"http://h/a.m3u8?token=1", "rtmp://h/live", "http://h/tv.php?id=1", "http://h/hls/1", "http://h/api/live?x"} {
		if !LooksLikeStreamURL(u) {
			t.Errorf("LooksLikeStreamURL(%q) = false", u)
		}
	}
	for _, u := range []string{"http://h/index.html", "http://h/a.tsx"} {
		if LooksLikeStreamURL(u) {
			t.Errorf("LooksLikeStreamURL(%q) = true", u)
		}
	}
}

func TestParsePlaylist(t *testing.T) {
	base, _ := url.Parse("http://h/path/index.m3u8?t=1")
	p := parsePlaylist("#EXTM3U\n#EXT-X-STREAM-INF:BANDWIDTH=1\nlow/index.m3u8\n#EXT-X-STREAM-INF:BANDWIDTH=2\nhttp://cdn/high.m3u8\n\n/abs.m3u8\n", base)
	if !p.master {
		t.Error("master not detected")
	}
	want := []string{"http://h/path/low/index.m3u8", "http://cdn/high.m3u8", "http://h/abs.m3u8"}
	if len(p.refs) != len(want) {
		t.Fatalf("refs = %v", p.refs)
	}
	for i := range want {
		if p.refs[i] != want[i] {
			t.Errorf("refs[%d] = %q, want %q", i, p.refs[i], want[i])
		}
	}
}
