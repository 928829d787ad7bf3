// Package cors aplica, num único middleware, o que cada handler serverless repetia:
// cabeçalhos CORS, resposta 204 para preflight OPTIONS e 405 para métodos fora da lista.
package cors

import (
	"net/http"
	"strconv"
	"strings"
	"time"
)

const DefaultAllowHeaders = "Content-Type, Authorization, X-Requested-With"

type Policy struct {
	// Methods permitidos na rota. OPTIONS é sempre aceito (preflight).
	Methods []string
	// AllowHeaders vai em Access-Control-Allow-Headers. Vazio usa DefaultAllowHeaders.
	AllowHeaders string
	// Origin fixa Access-Control-Allow-Origin. Vazio ecoa o header Origin da request (ou "*").
	Origin string
	MaxAge time.Duration

	// MethodNotAllowed escreve a resposta 405 (status e corpo). O header Allow já está
	// definido quando ele é chamado. Nil escreve "Method Not Allowed" em texto puro.
	MethodNotAllowed func(w http.ResponseWriter, r *http.Request)
}

// Allowed retorna a lista efetiva de métodos (Methods + OPTIONS, sem repetição).
func (p Policy) Allowed() []string {
	out := make([]string, 0, len(p.Methods)+1)
	seen := make(map[string]bool, len(p.Methods)+1)
	for _, m := range append(append([]string{}, p.Methods...), http.MethodOptions) {
		m = strings.ToUpper(strings.TrimSpace(m))
		if m == "" || seen[m] {
			continue
		}
		seen[m] = true
		out = append(out, m)
	}
	return out
}

// AllowHeaderValue é o valor de Allow e Access-Control-Allow-Methods.
func (p Policy) AllowHeaderValue() string {
	return strings.Join(p.Allowed(), ",")
}

// SetHeaders grava os cabeçalhos CORS da política.
func (p Policy) SetHeaders(w http.ResponseWriter, r *http.Request) {
	origin := p.Origin
	if origin == "" {
		origin = r.Header.Get("Origin")
	}
	if origin == "" {
		origin = "*"
	}
	allowHeaders := p.AllowHeaders
	if allowHeaders == "" {
		allowHeaders = DefaultAllowHeaders
	}
	maxAge := p.MaxAge
	if maxAge <= 0 {
		maxAge = 24 * time.Hour
	}

	h := w.Header()
	h.Set("Access-Control-Allow-Origin", origin)
	h.Set("Access-Control-Allow-Methods", p.AllowHeaderValue())
	h.Set("Access-Control-Allow-Headers", allowHeaders)
	h.Set("Access-Control-Max-Age", strconv.Itoa(int(maxAge.Seconds())))
	if p.Origin == "" && r.Header.Get("Origin") != "" {
		h.Add("Vary", "Origin")
	}
}

func (p Policy) allows(method string) bool {
	for _, m := range p.Allowed() {
		if m == method {
			return true
		}
	}
	return false
}

// Middleware responde OPTIONS e métodos proibidos sem chamar next.
func Middleware(p Policy) func(next http.Handler) http.Handler {
	allow := p.AllowHeaderValue()

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			p.SetHeaders(w, r)

			if r.Method == http.MethodOptions {
				w.WriteHeader(http.StatusNoContent)
				return
			}

			if !p.allows(r.Method) {
				w.Header().Set("Allow", allow)
				if p.MethodNotAllowed != nil {
					p.MethodNotAllowed(w, r)
					return
				}
				w.Header().Set("Content-Type", "text/plain; charset=utf-8")
				w.WriteHeader(http.StatusMethodNotAllowed)
				_, _ = w.Write([]byte("Method Not Allowed"))
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}
