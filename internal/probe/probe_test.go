package probe

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/snapetech/streamcheck/internal/catalog"
)

var flvHeader = []byte{'F', 'L', 'V', 1, 5, 0, 0, 0, 9, 0, 0, 0, 0}

func testOptions() Options {
	return Options{
		Timeout:                 2 * time.Second,
		DeepValidation:          true,
		SegmentSampleCount:      3,
		ValidatePlaylistContent: true,
		ValidateOtherFormats:    true,
	}
}

// hitCounter records requests per path.
type hitCounter struct {
	mu   sync.Mutex
	hits map[string]int
}

func (h *hitCounter) add(path string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.hits == nil {
		h.hits = make(map[string]int)
	}
	h.hits[path]++
}

func (h *hitCounter) get(path string) int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.hits[path]
}

func streamServer(t *testing.T, hits *hitCounter) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.add(r.URL.Path)
		switch r.URL.Path {
		case "/master.m3u8":
			var b strings.Builder
			b.WriteString("#EXTM3U\n")
			for i := 1; i <= 5; i++ {
				fmt.Fprintf(&b, "#EXT-X-STREAM-INF:BANDWIDTH=%d\nv%d.m3u8\n", i*1000, i)
			}
			w.Header().Set("Content-Type", "application/vnd.apple.mpegurl")
			w.Write([]byte(b.String()))
		case "/master-bad.m3u8":
			w.Write([]byte("#EXTM3U\n#EXT-X-STREAM-INF:BANDWIDTH=1\nv1.m3u8\n#EXT-X-STREAM-INF:BANDWIDTH=2\nmissing.m3u8\n#EXT-X-STREAM-INF:BANDWIDTH=3\nv3.m3u8\n#EXT-X-STREAM-INF:BANDWIDTH=4\nv4.m3u8\n"))
		case "/v1.m3u8", "/v2.m3u8", "/v3.m3u8", "/v4.m3u8", "/v5.m3u8":
			w.Write([]byte("#EXTM3U\n#EXTINF:4,\nseg1.ts\n"))
		case "/media.m3u8":
			w.Write([]byte("#EXTM3U\n#EXT-X-TARGETDURATION:4\n#EXTINF:4,\nseg/1.ts\n#EXTINF:4,\nseg/2.ts\n#EXTINF:4,\nseg/3.ts\n#EXTINF:4,\nseg/4.ts\n"))
		case "/media-nohead.m3u8":
			w.Write([]byte("#EXTM3U\n#EXTINF:4,\n/nohead/1.ts\n"))
		case "/nohead/1.ts":
			if r.Method == http.MethodHead {
				w.WriteHeader(http.StatusMethodNotAllowed)
				return
			}
			w.Write([]byte{0x47})
		case "/seg/1.ts", "/seg/2.ts", "/seg/3.ts", "/seg/4.ts":
			w.Header().Set("Content-Type", "video/mp2t")
		case "/redirect.m3u8":
			http.Redirect(w, r, "/sub/index.m3u8", http.StatusFound)
		case "/sub/index.m3u8":
			w.Write([]byte("#EXTM3U\n#EXTINF:4,\nchunk.ts\n"))
		case "/sub/chunk.ts":
		case "/nomarker.m3u8":
			w.Write([]byte("<html>login</html>"))
		case "/empty.m3u8":
			w.Write([]byte("#EXTM3U\n#EXT-X-VERSION:3\n"))
		case "/good.flv":
			w.Write(flvHeader)
		case "/bad.flv":
			w.Write([]byte("<html>not found</html>"))
		case "/live/ch1.ts":
			w.Write(append([]byte{0x47}, make([]byte, 300)...))
		case "/live/html.ts":
			w.Header().Set("Content-Type", "text/html")
			w.Write([]byte("<html>offline</html>"))
		case "/stream.php":
			w.Header().Set("Content-Type", "video/mp2t")
		case "/page.html":
			w.Header().Set("Content-Type", "text/html")
			w.Write([]byte("<html>hello</html>"))
		case "/slow":
			select {
			case <-r.Context().Done():
			case <-time.After(2 * time.Second):
			}
		default:
			http.NotFound(w, r)
		}
	}))
	t.Cleanup(srv.Close)
	return srv
}

func check(t *testing.T, p *Prober, rawURL string) catalog.CheckResult {
	t.Helper()
	return p.Check(context.Background(), catalog.Candidate{Name: "x", URL: rawURL, Category: "c"})
}

func TestCheck_masterPlaylistSamplesFirstK(t *testing.T) {
	hits := &hitCounter{}
	srv := streamServer(t, hits)
	p := New(testOptions(), nil, nil, nil)
	res := check(t, p, srv.URL+"/master.m3u8")
	if res.Status != catalog.StatusValid {
		t.Fatalf("status = %s (%s), want valid", res.Status, res.Detail)
	}
	for i := 1; i <= 5; i++ {
		want := 0
		if i <= 3 {
			want = 1
		}
		if got := hits.get(fmt.Sprintf("/v%d.m3u8", i)); got != want {
			t.Errorf("variant %d fetched %d times, want %d", i, got, want)
		}
	}
}

func TestCheck_masterPlaylistAnySampledFailureInvalid(t *testing.T) {
	hits := &hitCounter{}
	srv := streamServer(t, hits)
	p := New(testOptions(), nil, nil, nil)
	res := check(t, p, srv.URL+"/master-bad.m3u8")
	if res.Status != catalog.StatusInvalid {
		t.Fatalf("status = %s, want invalid", res.Status)
	}
	if !strings.Contains(res.Detail, "variant 2") {
		t.Errorf("detail = %q", res.Detail)
	}
	if hits.get("/v1.m3u8") != 1 || hits.get("/v3.m3u8") != 1 {
		t.Error("all sampled variants should be probed")
	}
	if hits.get("/v4.m3u8") != 0 {
		t.Error("variant 4 is outside the sample")
	}
}

func TestCheck_sampleQuorum(t *testing.T) {
	srv := streamServer(t, &hitCounter{})
	tests := []struct {
		quorum int
		want   catalog.Status
	}{
		{0, catalog.StatusInvalid},
		{2, catalog.StatusValid},
		{3, catalog.StatusInvalid},
		{9, catalog.StatusInvalid},
	}
	for _, tt := range tests {
		opts := testOptions()
		opts.SampleQuorum = tt.quorum
		res := check(t, New(opts, nil, nil, nil), srv.URL+"/master-bad.m3u8")
		if res.Status != tt.want {
			t.Errorf("quorum %d: status = %s (%s), want %s", tt.quorum, res.Status, res.Detail, tt.want)
		}
	}
}

func TestCheck_mediaPlaylistHeadsSegments(t *testing.T) {
	hits := &hitCounter{}
	srv := streamServer(t, hits)
	p := New(testOptions(), nil, nil, nil)
	res := check(t, p, srv.URL+"/media.m3u8")
	if res.Status != catalog.StatusValid {
		t.Fatalf("status = %s (%s)", res.Status, res.Detail)
	}
	if hits.get("/seg/3.ts") != 1 || hits.get("/seg/4.ts") != 0 {
		t.Errorf("segment hits: 3=%d 4=%d", hits.get("/seg/3.ts"), hits.get("/seg/4.ts"))
	}
}

func TestCheck_headRefusedFallsBackToGet(t *testing.T) {
	hits := &hitCounter{}
	srv := streamServer(t, hits)
	res := check(t, New(testOptions(), nil, nil, nil), srv.URL+"/media-nohead.m3u8")
	if res.Status != catalog.StatusValid {
		t.Fatalf("status = %s (%s)", res.Status, res.Detail)
	}
	if hits.get("/nohead/1.ts") != 2 {
		t.Errorf("segment requests = %d, want HEAD then GET", hits.get("/nohead/1.ts"))
	}
}

func TestCheck_relativeRefsResolveAgainstFinalURL(t *testing.T) {
	hits := &hitCounter{}
	srv := streamServer(t, hits)
	res := check(t, New(testOptions(), nil, nil, nil), srv.URL+"/redirect.m3u8")
	if res.Status != catalog.StatusValid {
		t.Fatalf("status = %s (%s)", res.Status, res.Detail)
	}
	if hits.get("/sub/chunk.ts") != 1 {
		t.Error("segment not resolved against redirected playlist URL")
	}
}

func TestCheck_playlistFailures(t *testing.T) {
	srv := streamServer(t, &hitCounter{})
	p := New(testOptions(), nil, nil, nil)
	for _, path := range []string{"/nomarker.m3u8", "/empty.m3u8"} {
		if res := check(t, p, srv.URL+path); res.Status != catalog.StatusInvalid {
			t.Errorf("%s: status = %s, want invalid", path, res.Status)
		}
	}
}

func TestCheck_containerAndStreams(t *testing.T) {
	srv := streamServer(t, &hitCounter{})
	p := New(testOptions(), nil, nil, nil)
	tests := []struct {
		path string
		want catalog.Status
	}{
		{"/good.flv", catalog.StatusValid},
		{"/bad.flv", catalog.StatusInvalid},
		{"/live/ch1.ts", catalog.StatusValid},
		{"/live/html.ts", catalog.StatusInvalid},
		{"/stream.php?id=5", catalog.StatusValid},
		{"/page.html", catalog.StatusValid},
		{"/missing", catalog.StatusError},
	}
	for _, tt := range tests {
		res := check(t, p, srv.URL+tt.path)
		if res.Status != tt.want {
			t.Errorf("%s: status = %s (%s), want %s", tt.path, res.Status, res.Detail, tt.want)
		}
	}
}

func TestCheck_deepValidationDisabled(t *testing.T) {
	hits := &hitCounter{}
	srv := streamServer(t, hits)
	opts := testOptions()
	opts.DeepValidation = false
	p := New(opts, nil, nil, nil)
	for _, path := range []string{"/bad.flv", "/nomarker.m3u8", "/master.m3u8"} {
		if res := check(t, p, srv.URL+path); res.Status != catalog.StatusValid {
			t.Errorf("%s: status = %s, want valid", path, res.Status)
		}
	}
	if hits.get("/v1.m3u8") != 0 {
		t.Error("variants fetched with deep validation off")
	}
}

func TestCheck_otherFormatsDisabledSkipsSignatures(t *testing.T) {
	srv := streamServer(t, &hitCounter{})
	opts := testOptions()
	opts.ValidateOtherFormats = false
	p := New(opts, nil, nil, nil)
	for _, path := range []string{"/bad.flv", "/live/html.ts"} {
		if res := check(t, p, srv.URL+path); res.Status != catalog.StatusValid {
			t.Errorf("%s: status = %s, want valid", path, res.Status)
		}
	}
}

func TestCheck_timeout(t *testing.T) {
	srv := streamServer(t, &hitCounter{})
	opts := testOptions()
	opts.Timeout = 100 * time.Millisecond
	res := check(t, New(opts, nil, nil, nil), srv.URL+"/slow")
	if res.Status != catalog.StatusTimeout {
		t.Fatalf("status = %s (%s), want timeout", res.Status, res.Detail)
	}
	if res.LatencyMs < 100 {
		t.Errorf("latency = %dms", res.LatencyMs)
	}
	if res.CheckedAt.IsZero() || res.URL != srv.URL+"/slow" {
		t.Errorf("result = %+v", res)
	}
}

func TestCheck_connectionRefused(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatal(err)
	}
	addr := ln.Addr().String()
	ln.Close()
	res := check(t, New(testOptions(), nil, nil, nil), "http://"+addr+"/live.m3u8")
	if res.Status != catalog.StatusError {
		t.Errorf("status = %s, want error", res.Status)
	}
}

func TestCheck_nonHTTPDial(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatal(err)
	}
	defer ln.Close()
	go func() {
		for {
			c, err := ln.Accept()
			if err != nil {
				return
			}
			c.Close()
		}
	}()
	p := New(testOptions(), nil, nil, nil)
	if res := check(t, p, "rtmp://"+ln.Addr().String()+"/live/x"); res.Status != catalog.StatusValid {
		t.Errorf("open port: status = %s (%s)", res.Status, res.Detail)
	}
	port := ln.Addr().(*net.TCPAddr).Port
	ln.Close()
	if res := check(t, p, fmt.Sprintf("rtsp://127.0.0.1:%d/x", port)); res.Status != catalog.StatusError {
		t.Errorf("closed port: status = %s, want error", res.Status)
	}
}

func fakeFFprobe(t *testing.T, output string, exit int) string {
	t.Helper()
	if runtime.GOOS == "windows" {
		t.Skip("shell script stand-in needs a POSIX shell")
	}
	path := filepath.Join(t.TempDir(), "ffprobe")
	script := fmt.Sprintf("#!/bin/sh\ncat <<'JSON'\n%s\nJSON\nexit %d\n", output, exit)
	if err := os.WriteFile(path, []byte(script), 0755); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestFFprobe_verdicts(t *testing.T) {
	ff, err := LookupFFprobe(fakeFFprobe(t, `{"streams":[{"codec_type":"video"},{"codec_type":"audio"}]}`, 0), time.Second)
	if err != nil {
		t.Fatal(err)
	}
	v, err := ff.Probe(context.Background(), "rtmp://example/live")
	if err != nil {
		t.Fatal(err)
	}
	if !v.HasMedia() || len(v.CodecTypes) != 2 {
		t.Errorf("verdict = %+v", v)
	}
	if (Verdict{CodecTypes: []string{"data"}}).HasMedia() {
		t.Error("data-only stream reported as media")
	}
}

func TestCheck_ffprobeOverridesHeuristics(t *testing.T) {
	srv := streamServer(t, &hitCounter{})
	opts := testOptions()
	opts.UseFFprobe = true
	opts.FFprobePath = fakeFFprobe(t, `{"streams":[]}`, 0)
	res := check(t, New(opts, nil, nil, nil), srv.URL+"/good.flv")
	if res.Status != catalog.StatusInvalid || !strings.Contains(res.Detail, "ffprobe") {
		t.Errorf("status = %s (%s), want ffprobe invalid", res.Status, res.Detail)
	}
}

func TestCheck_ffprobeFailureDegrades(t *testing.T) {
	srv := streamServer(t, &hitCounter{})
	opts := testOptions()
	opts.UseFFprobe = true
	opts.FFprobePath = fakeFFprobe(t, "", 1)
	res := check(t, New(opts, nil, nil, nil), srv.URL+"/good.flv")
	if res.Status != catalog.StatusValid {
		t.Errorf("status = %s (%s), want valid from header check", res.Status, res.Detail)
	}
	opts.FFprobePath = filepath.Join(t.TempDir(), "no-such-ffprobe")
	res = check(t, New(opts, nil, nil, nil), srv.URL+"/bad.flv")
	if res.Status != catalog.StatusInvalid {
		t.Errorf("missing ffprobe: status = %s, want invalid from header check", res.Status)
	}
}
