package relay

import (
	"fmt"
	"net/http"
	"net/url"
	"strings"
)

// TargetURL monta a URL do upstream: base + segmentos do sufixo + query.
// suffix vem escapado (como em URL.EscapedPath) e é decodificado segmento a segmento.
func TargetURL(base, suffix, rawQuery string) (*url.URL, error) {
	u, err := url.Parse(strings.TrimSpace(base))
	if err != nil {
		return nil, fmt.Errorf("invalid upstream url %q: %w", base, err)
	}
	if u.Scheme == "" || u.Host == "" {
		return nil, fmt.Errorf("invalid upstream url %q", base)
	}

	if suffix = strings.Trim(suffix, "/"); suffix != "" {
		var segs []string
		for _, s := range strings.Split(suffix, "/") {
			if s == "" {
				continue
			}
			dec, err := url.PathUnescape(s)
			if err != nil {
				return nil, fmt.Errorf("invalid path segment %q: %w", s, err)
			}
			segs = append(segs, dec)
		}
		u = u.JoinPath(segs...)
	}

	switch {
	case rawQuery == "":
	case u.RawQuery == "":
		u.RawQuery = rawQuery
	default:
		u.RawQuery = u.RawQuery + "&" + rawQuery
	}
	return u, nil
}

// suffixOf retorna o trecho do path depois do prefixo da rota.
func suffixOf(r *http.Request, prefix string) string {
	p := r.URL.EscapedPath()
	if prefix == "" || !strings.HasPrefix(p, prefix) {
		return ""
	}
	return strings.TrimPrefix(p, prefix)
}

// SelectQuery monta a query a partir de params, usando o primeiro alias preenchido.
func SelectQuery(in url.Values, params []QueryParam) string {
	out := url.Values{}
	for _, p := range params {
		for _, name := range append([]string{p.Name}, p.Aliases...) {
			if v := strings.TrimSpace(in.Get(name)); v != "" {
				out.Set(p.Name, v)
				break
			}
		}
	}
	return out.Encode()
}

func (rt Route) rawQuery(r *http.Request) string {
	switch rt.Query {
	case QueryNone:
		return ""
	case QuerySelected:
		return SelectQuery(r.URL.Query(), rt.QueryParams)
	default:
		return r.URL.RawQuery
	}
}
