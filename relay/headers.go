package relay

import (
	"net/http"
	"strings"
)

// hopByHop nunca atravessa o gateway em nenhum sentido. Content-Length é recalculado.
var hopByHop = map[string]bool{
	"Host":                true,
	"Connection":          true,
	"Content-Length":      true,
	"Keep-Alive":          true,
	"Proxy-Connection":    true,
	"Proxy-Authenticate":  true,
	"Proxy-Authorization": true,
	"Te":                  true,
	"Trailer":             true,
	"Transfer-Encoding":   true,
	"Upgrade":             true,
}

// ForwardHeaders calcula os headers enviados ao upstream.
func ForwardHeaders(in http.Header, rt Route) http.Header {
	out := make(http.Header)
	if rt.Forward == ForwardAll {
		for k, vv := range in {
			if hopByHop[http.CanonicalHeaderKey(k)] {
				continue
			}
			out[k] = append([]string(nil), vv...)
		}
	}

	for _, fh := range rt.FixedHeaders {
		v := ""
		if fh.FromRequest {
			v = strings.TrimSpace(in.Get(fh.Name))
		}
		if v == "" {
			v = fh.Value
		}
		if v != "" {
			out.Set(fh.Name, v)
		}
	}
	return out
}

// copyResponseHeaders grava em dst os headers do upstream conforme a rota.
// Access-Control-* não é copiado: os valores do gateway prevalecem.
func copyResponseHeaders(dst, src http.Header, rt Route) {
	if rt.Response == ResponseContentType {
		ct := src.Get("Content-Type")
		if ct == "" {
			ct = rt.DefaultContentType
		}
		if ct != "" {
			dst.Set("Content-Type", ct)
		}
		return
	}

	for k, vv := range src {
		ck := http.CanonicalHeaderKey(k)
		if hopByHop[ck] || strings.HasPrefix(ck, "Access-Control-") {
			continue
		}
		dst[ck] = append([]string(nil), vv...)
	}
}
