// Package relay implementa o relay de upstream: recebe a request, encaminha método,
// headers e corpo para o upstream configurado na rota, com timeout, e devolve status,
// headers e corpo do upstream ao cliente. Uma única tentativa, sem retry.
//
// Falhas: timeout antes da resposta do upstream vira 504; qualquer outra falha de
// transporte vira 502, sempre com "Upstream error: <mensagem>" em texto puro.
package relay

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"strconv"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"novaeuropa-gateway/internal/httpjson"
	"novaeuropa-gateway/middleware/accesslog"
	"novaeuropa-gateway/middleware/cors"
	"novaeuropa-gateway/traffic"
)

const DefaultTimeout = 25 * time.Second

var (
	ErrUpstreamTimeout     = errors.New("upstream timeout")
	ErrUpstreamUnavailable = errors.New("upstream unavailable")
)

type Handler struct {
	route  Route
	client *http.Client
	log    *zap.Logger
	events traffic.Recorder
	mws    []func(http.Handler) http.Handler

	chain http.Handler
}

type Option func(*Handler)

// WithClient usa o client informado. Redirects nunca são seguidos.
func WithClient(c *http.Client) Option {
	return func(h *Handler) { h.client = c }
}

func WithLogger(l *zap.Logger) Option {
	return func(h *Handler) { h.log = l }
}

func WithRecorder(r traffic.Recorder) Option {
	return func(h *Handler) { h.events = r }
}

// WithMiddleware insere middlewares entre o CORS e o relay (ex.: throttle, interceptação SQL).
// O primeiro informado é o mais externo.
func WithMiddleware(mws ...func(http.Handler) http.Handler) Option {
	return func(h *Handler) { h.mws = append(h.mws, mws...) }
}

func New(rt Route, opts ...Option) *Handler {
	if rt.Timeout <= 0 {
		rt.Timeout = DefaultTimeout
	}
	h := &Handler{route: rt}
	for _, opt := range opts {
		opt(h)
	}
	if h.log == nil {
		h.log = zap.NewNop()
	}
	h.log = h.log.With(zap.String("route", rt.Name))
	if h.events == nil {
		h.events = traffic.Nop{}
	}

	c := http.Client{}
	if h.client != nil {
		c = *h.client
	}
	c.CheckRedirect = func(*http.Request, []*http.Request) error { return http.ErrUseLastResponse }
	// o timeout é por rota, aplicado via context
	c.Timeout = 0
	h.client = &c

	var core http.Handler = http.HandlerFunc(h.forward)
	for i := len(h.mws) - 1; i >= 0; i-- {
		core = h.mws[i](core)
	}
	h.chain = cors.Middleware(rt.Policy())(core)
	return h
}

func (h *Handler) Route() Route { return h.route }

func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	h.chain.ServeHTTP(w, r)
}

func (h *Handler) forward(w http.ResponseWriter, r *http.Request) {
	rt := h.route
	if rt.Upstream == "" {
		name := rt.UpstreamEnv
		if name == "" {
			name = "upstream"
		}
		httpjson.Text(w, http.StatusInternalServerError, name+" nao configurada no gateway.")
		return
	}

	suffix := ""
	if rt.AppendPath {
		suffix = suffixOf(r, rt.Path)
	}
	target, err := TargetURL(rt.Upstream, suffix, rt.rawQuery(r))
	if err != nil {
		h.log.Error("invalid relay target", zap.Error(err))
		httpjson.Text(w, http.StatusInternalServerError, err.Error())
		return
	}

	// O timeout vale até o upstream responder os headers; o corpo é transmitido sem prazo
	// próprio (fica limitado pelo WriteTimeout do servidor).
	ctx, cancel := context.WithCancel(r.Context())
	defer cancel()
	var timedOut atomic.Bool
	timer := time.AfterFunc(rt.Timeout, func() {
		timedOut.Store(true)
		cancel()
	})

	var body io.Reader = http.NoBody
	if r.Method != http.MethodGet && r.Method != http.MethodHead && r.Body != nil && r.ContentLength != 0 {
		body = r.Body
	}
	out, err := http.NewRequestWithContext(ctx, r.Method, target.String(), body)
	if err != nil {
		timer.Stop()
		httpjson.Text(w, http.StatusBadGateway, "Upstream error: "+err.Error())
		return
	}
	if body != http.NoBody {
		out.ContentLength = r.ContentLength
	}
	out.Header = ForwardHeaders(r.Header, rt)

	start := time.Now()
	resp, err := h.client.Do(out)
	// Stop devolve false se o prazo já venceu: o ctx foi (ou está sendo) cancelado e o
	// corpo seria cortado no meio, então a resposta conta como timeout.
	expired := !timer.Stop()
	elapsed := time.Since(start)

	if err == nil && expired {
		_ = resp.Body.Close()
		err = context.DeadlineExceeded
	}
	if err != nil {
		h.fail(w, r, target.String(), classify(err, expired || timedOut.Load(), r.Context()), elapsed)
		return
	}
	defer resp.Body.Close()

	copyResponseHeaders(w.Header(), resp.Header, rt)
	if resp.ContentLength >= 0 {
		w.Header().Set("Content-Length", strconv.FormatInt(resp.ContentLength, 10))
	}
	w.WriteHeader(resp.StatusCode)

	n, copyErr := io.Copy(w, resp.Body)
	if copyErr != nil {
		h.log.Warn("relay body interrupted",
			zap.String("request_id", accesslog.RequestID(r.Context())),
			zap.String("target", target.String()),
			zap.Int64("bytes", n),
			zap.Error(copyErr),
		)
	}

	_ = h.events.Record(r.Context(), traffic.Event{
		Route:    rt.Name,
		Method:   r.Method,
		Outcome:  traffic.OutcomeOK,
		Status:   resp.StatusCode,
		Duration: elapsed,
		At:       start,
	})
}

type upstreamError struct {
	kind error
	err  error
}

func (e *upstreamError) Error() string { return e.err.Error() }
func (e *upstreamError) Unwrap() []error { return []error{e.kind, e.err} }

// classify separa timeout (504), cancelamento pelo cliente e falha de rede (502).
func classify(err error, timedOut bool, clientCtx context.Context) *upstreamError {
	var ne net.Error
	switch {
	case timedOut, errors.As(err, &ne) && ne.Timeout():
		return &upstreamError{kind: ErrUpstreamTimeout, err: err}
	case clientCtx.Err() != nil:
		return &upstreamError{kind: context.Canceled, err: err}
	default:
		return &upstreamError{kind: ErrUpstreamUnavailable, err: err}
	}
}

func (h *Handler) fail(w http.ResponseWriter, r *http.Request, target string, uerr *upstreamError, elapsed time.Duration) {
	status := http.StatusBadGateway
	outcome := traffic.OutcomeBadGateway
	switch {
	case errors.Is(uerr, ErrUpstreamTimeout):
		status = http.StatusGatewayTimeout
		outcome = traffic.OutcomeTimeout
	case errors.Is(uerr, context.Canceled):
		outcome = traffic.OutcomeCanceled
	}

	h.log.Warn("upstream request failed",
		zap.String("request_id", accesslog.RequestID(r.Context())),
		zap.String("method", r.Method),
		zap.String("target", target),
		zap.Int("status", status),
		zap.Duration("elapsed", elapsed),
		zap.Error(uerr.err),
	)
	_ = h.events.Record(context.WithoutCancel(r.Context()), traffic.Event{
		Route:    h.route.Name,
		Method:   r.Method,
		Outcome:  outcome,
		Status:   status,
		Duration: elapsed,
		At:       time.Now(),
	})

	if outcome == traffic.OutcomeCanceled {
		// cliente já foi embora; ninguém vai ler a resposta
		return
	}
	httpjson.Text(w, status, fmt.Sprintf("Upstream error: %s", uerr.err.Error()))
}
