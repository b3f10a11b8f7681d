package fixture

import (
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"
)

func get(t *testing.T, h http.Handler, method, path string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, path, nil)
	w := httptest.NewRecorder()
	h.ServeHTTP(w, req)
	return w
}

func TestStaleElementPage(t *testing.T) {
	// WHAT: The page carries the configured interval and the initial hierarchy.
	// WHY: The rebuild script reads its period from data-interval.
	h := NewRouter(Config{Interval: 250 * time.Millisecond, Keep: 7})
	w := get(t, h, http.MethodGet, "/stale-element.html")
	if w.Code != 200 {
		t.Fatalf("status: got %d, want 200", w.Code)
	}
	body := w.Body.String()
	for _, want := range []string{
		`data-interval="250"`,
		`data-keep="7"`,
		`<div id="top"><div id="middle"><div id="bottom"></div></div></div>`,
		`<div id="mod10"></div>`,
		`<script src="/stale-element.js"></script>`,
	} {
		if !strings.Contains(body, want) {
			t.Errorf("body missing %q", want)
		}
	}
}

func TestScript(t *testing.T) {
	w := get(t, NewRouter(Config{}), http.MethodGet, "/stale-element.js")
	if ct := w.Header().Get("Content-Type"); !strings.HasPrefix(ct, "application/javascript") {
		t.Fatalf("Content-Type: got %q", ct)
	}
	if !strings.Contains(w.Body.String(), "replaceChildren") {
		t.Fatal("script body does not rebuild the hierarchy")
	}
}

func TestFormEchoesQuery(t *testing.T) {
	w := get(t, NewRouter(Config{}), http.MethodGet, "/form.html?q=a%3Cb")
	body := w.Body.String()
	if !strings.Contains(body, `<p id="echo">a&lt;b</p>`) {
		t.Fatalf("echo not escaped or missing: %s", body)
	}
}

func TestHeaders(t *testing.T) {
	// WHAT: Every response carries the CSP and a request id.
	// WHY: The CSP forbids inline script; the page must work under it.
	w := get(t, NewRouter(Config{}), http.MethodGet, "/healthz")
	if got := w.Header().Get("X-Content-Type-Options"); got != "nosniff" {
		t.Errorf("X-Content-Type-Options: got %q, want nosniff", got)
	}
	if got := w.Header().Get("Content-Security-Policy"); !strings.Contains(got, "script-src 'self'") {
		t.Errorf("Content-Security-Policy: got %q", got)
	}
	if w.Header().Get("X-Request-ID") == "" {
		t.Error("X-Request-ID header missing")
	}
	b, _ := io.ReadAll(w.Body)
	if string(b) != "ok" {
		t.Errorf("healthz body: got %q", b)
	}
}

func TestHead(t *testing.T) {
	w := get(t, NewRouter(Config{}), http.MethodHead, "/stale-element.html")
	if w.Code != 200 {
		t.Fatalf("HEAD status: got %d, want 200", w.Code)
	}
}

func TestUnknownPath(t *testing.T) {
	w := get(t, NewRouter(Config{}), http.MethodGet, "/nope")
	if w.Code != http.StatusNotFound {
		t.Fatalf("status: got %d, want 404", w.Code)
	}
}
