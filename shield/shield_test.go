package shield

import (
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/hazyhaar/locator/kit"
)

func okHandler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("OK"))
	})
}

func TestSecurityHeaders(t *testing.T) {
	handler := SecurityHeaders(DefaultHeaders())(okHandler())
	w := httptest.NewRecorder()
	handler.ServeHTTP(w, httptest.NewRequest("GET", "/", nil))

	if got := w.Header().Get("X-Frame-Options"); got != "DENY" {
		t.Errorf("X-Frame-Options: got %q", got)
	}
	if got := w.Header().Get("Content-Security-Policy"); !strings.Contains(got, "default-src 'none'") {
		t.Errorf("CSP: got %q", got)
	}
	if got := w.Header().Get("X-Content-Type-Options"); got != "nosniff" {
		t.Errorf("X-Content-Type-Options: got %q", got)
	}
	if got := w.Header().Get("Cache-Control"); got != "no-store" {
		t.Errorf("Cache-Control: got %q", got)
	}
}

func TestSecurityHeaders_HandlerOverrides(t *testing.T) {
	h := DefaultHeaders()
	handler := SecurityHeaders(h)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Cache-Control", "max-age=60")
	}))
	w := httptest.NewRecorder()
	handler.ServeHTTP(w, httptest.NewRequest("GET", "/health", nil))
	if got := w.Header().Get("Cache-Control"); got != "max-age=60" {
		t.Errorf("override: got %q", got)
	}
	if h.Get("Cache-Control") != "no-store" {
		t.Error("handler override leaked into the shared header set")
	}
}

func TestMaxBody(t *testing.T) {
	var readErr error
	handler := MaxBody(8)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, readErr = io.ReadAll(r.Body)
	}))

	handler.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest("POST", "/", strings.NewReader("short")))
	if readErr != nil {
		t.Errorf("small body: %v", readErr)
	}

	handler.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest("POST", "/", strings.NewReader("much too long for the limit")))
	if readErr == nil {
		t.Error("expected error for oversized body")
	}
}

func TestMaxBody_Disabled(t *testing.T) {
	next := okHandler()
	if h := MaxBody(0)(next); h == nil {
		t.Fatal("nil handler")
	}
}

func TestRequestID(t *testing.T) {
	var seen string
	handler := RequestID(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen = kit.GetRequestID(r.Context())
		if GetLogger(r.Context()) == nil {
			t.Error("nil logger")
		}
	}))

	w := httptest.NewRecorder()
	handler.ServeHTTP(w, httptest.NewRequest("GET", "/", nil))
	if seen == "" {
		t.Fatal("request ID not set in context")
	}
	if got := w.Header().Get("X-Request-ID"); got != seen {
		t.Errorf("header %q != context %q", got, seen)
	}

	const incoming = "0190f0e2-7b1c-7cc0-8a4e-9f1d2c3b4a59"
	req := httptest.NewRequest("GET", "/", nil)
	req.Header.Set("X-Request-ID", incoming)
	handler.ServeHTTP(httptest.NewRecorder(), req)
	if seen != incoming {
		t.Errorf("incoming ID not kept: got %q", seen)
	}

	req = httptest.NewRequest("GET", "/", nil)
	req.Header.Set("X-Request-ID", "not-an-id")
	handler.ServeHTTP(httptest.NewRecorder(), req)
	if seen == "not-an-id" {
		t.Error("malformed incoming ID kept")
	}
}

func TestHeadAsGet(t *testing.T) {
	var method string
	handler := HeadAsGet(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		method = r.Method
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusTeapot)
		w.Write([]byte(`{"events":[]}`))
	}))

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest("HEAD", "/events", nil))
	if method != "GET" {
		t.Errorf("method: got %q, want GET", method)
	}
	if rec.Code != http.StatusTeapot {
		t.Errorf("status: got %d, want %d", rec.Code, http.StatusTeapot)
	}
	if rec.Header().Get("Content-Type") != "application/json" {
		t.Errorf("content type lost: %q", rec.Header().Get("Content-Type"))
	}
	if rec.Body.Len() != 0 {
		t.Errorf("HEAD body: got %q, want empty", rec.Body.String())
	}

	rec = httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest("GET", "/events", nil))
	if rec.Body.String() != `{"events":[]}` {
		t.Errorf("GET body: got %q", rec.Body.String())
	}
}

func TestDefaultStack(t *testing.T) {
	if got := len(DefaultStack(1 << 20)); got != 4 {
		t.Errorf("stack size: got %d, want 4", got)
	}
}
