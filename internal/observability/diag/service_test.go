package diag

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	logx "ticksched/pkg/logx"
)

func TestIsLoopbackAddr(t *testing.T) {
	cases := map[string]bool{
		"127.0.0.1:6060": true,
		"localhost:6060": true,
		"[::1]:6060":     true,
		"0.0.0.0:6060":   false,
		":6060":          false,
		"10.0.0.5:6060":  false,
		"not-an-addr":    false,
	}
	for addr, want := range cases {
		if got := isLoopbackAddr(addr); got != want {
			t.Fatalf("%s: expected %v, got %v", addr, want, got)
		}
	}
}

func TestWithAuth(t *testing.T) {
	s := New(Config{}, nil, logx.Nop())
	ok := func(w http.ResponseWriter, r *http.Request) { w.WriteHeader(http.StatusOK) }

	h := s.withAuth("secret", ok)

	probe := func(mutate func(*http.Request)) int {
		req := httptest.NewRequest(http.MethodGet, "/metrics", nil)
		mutate(req)
		rr := httptest.NewRecorder()
		h(rr, req)
		return rr.Code
	}

	if code := probe(func(*http.Request) {}); code != http.StatusUnauthorized {
		t.Fatalf("no credentials: expected 401, got %d", code)
	}
	if code := probe(func(r *http.Request) { r.Header.Set("Authorization", "Bearer secret") }); code != http.StatusOK {
		t.Fatalf("bearer token: expected 200, got %d", code)
	}
	if code := probe(func(r *http.Request) { r.Header.Set("Authorization", "Bearer wrong") }); code != http.StatusUnauthorized {
		t.Fatalf("bad bearer: expected 401, got %d", code)
	}
	if code := probe(func(r *http.Request) { r.URL.RawQuery = "token=secret" }); code != http.StatusOK {
		t.Fatalf("query token: expected 200, got %d", code)
	}
	if code := probe(func(r *http.Request) { r.URL.RawQuery = "token=wrong" }); code != http.StatusUnauthorized {
		t.Fatalf("bad query token: expected 401, got %d", code)
	}

	// Empty token disables the check entirely.
	open := s.withAuth("", ok)
	req := httptest.NewRequest(http.MethodGet, "/healthz", nil)
	rr := httptest.NewRecorder()
	open(rr, req)
	if rr.Code != http.StatusOK {
		t.Fatalf("open handler: expected 200, got %d", rr.Code)
	}
}

func TestNeedsRestart(t *testing.T) {
	base := Config{Addr: "127.0.0.1:6060", Token: "t", ReadTimeout: time.Second}
	if needsRestart(base, base) {
		t.Fatalf("identical config must not restart")
	}
	if !needsRestart(base, Config{Addr: "127.0.0.1:7070", Token: "t", ReadTimeout: time.Second}) {
		t.Fatalf("addr change must restart")
	}
	if !needsRestart(base, Config{Addr: "127.0.0.1:6060", Token: "u", ReadTimeout: time.Second}) {
		t.Fatalf("token change must restart")
	}
	if !needsRestart(base, Config{Addr: "127.0.0.1:6060", Token: "t", ReadTimeout: 2 * time.Second}) {
		t.Fatalf("timeout change must restart")
	}
}
