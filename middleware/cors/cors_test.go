package cors

import (
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestMiddleware_OptionsShortCircuits(t *testing.T) {
	calls := 0
	next := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) { calls++ })
	h := Middleware(Policy{Methods: []string{http.MethodGet, http.MethodPost}})(next)

	r := httptest.NewRequest(http.MethodOptions, "http://example/api/x", nil)
	r.Header.Set("Origin", "https://painel.novaeuropa.com.br")
	w := httptest.NewRecorder()
	h.ServeHTTP(w, r)

	if w.Code != http.StatusNoContent {
		t.Fatalf("expected 204, got %d", w.Code)
	}
	if w.Body.Len() != 0 {
		t.Fatalf("expected empty body, got %q", w.Body.String())
	}
	if calls != 0 {
		t.Fatalf("next must not be called on preflight")
	}
	if got := w.Header().Get("Access-Control-Allow-Origin"); got != "https://painel.novaeuropa.com.br" {
		t.Fatalf("expected origin echoed, got %q", got)
	}
	if got := w.Header().Get("Access-Control-Allow-Methods"); got != "GET,POST,OPTIONS" {
		t.Fatalf("unexpected allow methods %q", got)
	}
	if got := w.Header().Get("Access-Control-Max-Age"); got != "86400" {
		t.Fatalf("unexpected max-age %q", got)
	}
}

func TestMiddleware_DisallowedMethodReturns405WithAllow(t *testing.T) {
	h := Middleware(Policy{Methods: []string{http.MethodPost}})(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		t.Fatalf("next must not be called")
	}))

	for _, m := range []string{http.MethodGet, http.MethodPut, http.MethodDelete, http.MethodPatch, http.MethodHead} {
		r := httptest.NewRequest(m, "http://example/", nil)
		w := httptest.NewRecorder()
		h.ServeHTTP(w, r)

		if w.Code != http.StatusMethodNotAllowed {
			t.Fatalf("%s: expected 405, got %d", m, w.Code)
		}
		if got := w.Header().Get("Allow"); got != "POST,OPTIONS" {
			t.Fatalf("%s: unexpected Allow %q", m, got)
		}
		if got := w.Header().Get("Access-Control-Allow-Origin"); got != "*" {
			t.Fatalf("%s: expected wildcard origin, got %q", m, got)
		}
	}
}

func TestMiddleware_CustomMethodNotAllowedBody(t *testing.T) {
	p := Policy{
		Methods: []string{http.MethodPost},
		MethodNotAllowed: func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusMethodNotAllowed)
			_, _ = io.WriteString(w, `{"ok":false}`)
		},
	}
	h := Middleware(p)(http.NotFoundHandler())

	w := httptest.NewRecorder()
	h.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "http://example/", nil))
	if w.Code != http.StatusMethodNotAllowed || w.Body.String() != `{"ok":false}` {
		t.Fatalf("unexpected response %d %q", w.Code, w.Body.String())
	}
	if w.Header().Get("Allow") != "POST,OPTIONS" {
		t.Fatalf("Allow must be set before the callback")
	}
}

func TestMiddleware_AllowedMethodPassesWithFixedOrigin(t *testing.T) {
	h := Middleware(Policy{Methods: []string{http.MethodGet}, Origin: "https://a.example", AllowHeaders: "Content-Type, SOAPAction"})(
		http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) { w.WriteHeader(http.StatusAccepted) }),
	)
	r := httptest.NewRequest(http.MethodGet, "http://example/", nil)
	r.Header.Set("Origin", "https://b.example")
	w := httptest.NewRecorder()
	h.ServeHTTP(w, r)

	if w.Code != http.StatusAccepted {
		t.Fatalf("expected 202 from next, got %d", w.Code)
	}
	if got := w.Header().Get("Access-Control-Allow-Origin"); got != "https://a.example" {
		t.Fatalf("expected fixed origin, got %q", got)
	}
	if got := w.Header().Get("Access-Control-Allow-Headers"); got != "Content-Type, SOAPAction" {
		t.Fatalf("unexpected allow headers %q", got)
	}
}

func TestPolicy_AllowedDeduplicates(t *testing.T) {
	p := Policy{Methods: []string{"get", "GET", "OPTIONS", "post"}}
	if got := p.AllowHeaderValue(); got != "GET,OPTIONS,POST" {
		t.Fatalf("unexpected %q", got)
	}
}
