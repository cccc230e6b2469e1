package candidate

import (
	"testing"

	"github.com/snapetech/streamcheck/internal/catalog"
)

func TestCanonicalURL(t *testing.T) {
	tests := []struct{ in, want string }{
		{"http://h/live.m3u8", "http://h/live.m3u8"},
		{"  http://h/live.m3u8#backup  ", "http://h/live.m3u8"},
		{"http://h/a#b#c", "http://h/a"},
		{"#only", ""},
		{"", ""},
	}
	for _, tt := range tests {
		if got := CanonicalURL(tt.in); got != tt.want {
			t.Errorf("CanonicalURL(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestCanonicalize_idempotent(t *testing.T) {
	inputs := []catalog.Candidate{
		{Name: " CCTV-1 ", URL: " http://h/cctv1.m3u8#alt ", Category: " News "},
		{URL: "rtmp://live.example.com/app/stream", Seq: 4},
		{Name: "x", URL: "https://例子.测试/live/1"},
		{Name: "News,HD\n", URL: "http://h/n", Category: "体育,\xb1\xb1"},
	}
	for _, in := range inputs {
		once, r1 := Canonicalize(in)
		twice, r2 := Canonicalize(once)
		if r1 != "" || r2 != "" {
			t.Errorf("Canonicalize(%+v) rejected: %q / %q", in, r1, r2)
		}
		if once != twice {
			t.Errorf("not idempotent: %+v -> %+v", once, twice)
		}
	}
}

func TestCanonicalize_defaults(t *testing.T) {
	got, r := Canonicalize(catalog.Candidate{URL: "http://h/x", Seq: 2})
	if r != "" {
		t.Fatalf("rejected: %q", r)
	}
	if got.Name != "Stream 3" {
		t.Errorf("Name = %q", got.Name)
	}
	if got.Category != catalog.DefaultCategory {
		t.Errorf("Category = %q", got.Category)
	}
}

func TestCanonicalize_cleansText(t *testing.T) {
	got, r := Canonicalize(catalog.Candidate{Name: " CCTV\xb1\xb1,HD ", URL: "http://h/\xff#x", Category: "a,b"})
	if r != "" {
		t.Fatalf("rejected: %q", r)
	}
	if got.Name != "CCTV\ufffd\ufffd HD" || got.Category != "a b" || got.URL != "http://h/\ufffd" {
		t.Errorf("Canonicalize = %+v", got)
	}
	if _, r := Canonicalize(catalog.Candidate{Name: ",", URL: "http://h/y", Seq: 1}); r != "" {
		t.Errorf("separator-only name rejected: %q", r)
	}
}

func TestCanonicalize_rejects(t *testing.T) {
	tests := []struct {
		url  string
		want Reason
	}{
		{"", ReasonEmpty},
		{"   #frag", ReasonEmpty},
		{"http://h/app.JAR", ReasonBlacklisted},
		{"http://jar.example.com/live", ReasonBlacklisted},
		{"file:///etc/passwd", ReasonScheme},
		{"javascript:alert(1)", ReasonScheme},
		{"not a url", ReasonScheme},
		{"http:///nohost", ReasonHost},
		{"http://bad host/x", ReasonMalformed},
		{"http://%zz/", ReasonMalformed},
	}
	for _, tt := range tests {
		_, got := Canonicalize(catalog.Candidate{URL: tt.url})
		if got != tt.want {
			t.Errorf("Canonicalize(%q) reason = %q, want %q", tt.url, got, tt.want)
		}
	}
}

func TestCanonicalize_accepts(t *testing.T) {
	for _, u := range []string{
		"http://192.168.1.10:8080/live/1.ts",
		"http://[::1]:5004/auto/v1",
		"https://cdn_1.example.com/hls/index.m3u8",
		"rtsp://cam.local/stream",
		"MMSH://media.example.com/x",
	} {
		if _, r := Canonicalize(catalog.Candidate{URL: u}); r != "" {
			t.Errorf("Canonicalize(%q) rejected: %q", u, r)
		}
	}
}
