package main

import (
	"context"
	"net"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"

	"novaeuropa-gateway/internal/httpjson"
	"novaeuropa-gateway/middleware/accesslog"
	"novaeuropa-gateway/middleware/cors"
	"novaeuropa-gateway/middleware/throttle"
	"novaeuropa-gateway/middleware/throttle/domain"
	"novaeuropa-gateway/presenca"
	"novaeuropa-gateway/relay"
	"novaeuropa-gateway/traffic"
)

const (
	acceptAny       = "application/json, text/plain, */*"
	contentTypeJSON = "application/json; charset=utf-8"
	contentTypeSOAP = "text/xml;charset=UTF-8"
)

// relayRoutes descreve as rotas que só encaminham para o upstream.
func relayRoutes(cfg config) []relay.Route {
	return []relay.Route{
		{
			Name:         "bmg",
			Path:         "/api/bmg",
			Upstream:     cfg.bmgURL,
			UpstreamEnv:  "BMG_SOAP_URL",
			Methods:      []string{http.MethodPost},
			AllowHeaders: "Content-Type, SOAPAction, X-Requested-With",
			Timeout:      25 * time.Second,
			Forward:      relay.ForwardFixed,
			FixedHeaders: []relay.FixedHeader{
				{Name: "Content-Type", Value: contentTypeSOAP, FromRequest: true},
				{Name: "SOAPAction", Value: cfg.bmgSOAPAction, FromRequest: true},
			},
			Response:           relay.ResponseContentType,
			DefaultContentType: contentTypeSOAP,
			Query:              relay.QueryNone,
		},
		{
			Name:     "clientes-v8-import-csv",
			Path:     "/api/clientes-v8/import-csv",
			Upstream: cfg.importCSVURL,
			Methods:  []string{http.MethodPost},
			Timeout:  30 * time.Second,
			Forward:  relay.ForwardFixed,
			FixedHeaders: []relay.FixedHeader{
				{Name: "Content-Type", Value: "application/json", FromRequest: true},
			},
			Response:           relay.ResponseContentType,
			DefaultContentType: contentTypeJSON,
			Query:              relay.QueryNone,
		},
		{
			Name:               "clientes-v8-import-status",
			Path:               "/api/clientes-v8/import-status",
			Upstream:           cfg.importStatusURL,
			Methods:            []string{http.MethodGet},
			Timeout:            20 * time.Second,
			Forward:            relay.ForwardFixed,
			FixedHeaders:       []relay.FixedHeader{{Name: "Accept", Value: acceptAny}},
			Response:           relay.ResponseContentType,
			DefaultContentType: contentTypeJSON,
			Query:              relay.QuerySelected,
			QueryParams:        []relay.QueryParam{{Name: "jobId", Aliases: []string{"job_id"}}},
		},
		{
			Name:       "consulta-presenca",
			Path:       "/api/consulta-presenca",
			AppendPath: true,
			Upstream:   cfg.presencaBaseURL,
			Methods:    relay.AllMethods,
			Timeout:    cfg.presencaTimeout,
		},
		{
			Name:       "consulta-v8",
			Path:       "/api/consulta-v8",
			AppendPath: true,
			Upstream:   cfg.consultaV8BaseURL,
			Methods:    relay.AllMethods,
			Timeout:    25 * time.Second,
		},
		{
			Name:               "health-consult",
			Path:               "/api/health-consult",
			Upstream:           cfg.healthConsultURL,
			Methods:            []string{http.MethodGet},
			Timeout:            20 * time.Second,
			Forward:            relay.ForwardFixed,
			FixedHeaders:       []relay.FixedHeader{{Name: "Accept", Value: acceptAny}},
			Response:           relay.ResponseContentType,
			DefaultContentType: contentTypeJSON,
		},
		{
			Name:     "health-consult-force-backup",
			Path:     "/api/health-consult/force-backup",
			Upstream: cfg.healthForceURL,
			Methods:  []string{http.MethodPost},
			Timeout:  45 * time.Second,
			Query:    relay.QueryNone,
		},
	}
}

// presencaStore é o que as rotas de presença precisam do banco.
type presencaStore interface {
	presenca.BatchExecutor
	presenca.PendingWriter
}

type deps struct {
	log      *zap.Logger
	client   *http.Client
	events   traffic.Recorder
	limiter  domain.LimiterStore
	presenca presencaStore
	metrics  http.Handler
	// sqlPing é nil quando o banco não está configurado.
	sqlPing func(ctx context.Context) error
}

func newUpstreamClient(cfg config) *http.Client {
	return &http.Client{
		Transport: &http.Transport{
			Proxy:                 http.ProxyFromEnvironment,
			DialContext:           (&net.Dialer{Timeout: cfg.upstreamDialTimeout, KeepAlive: 30 * time.Second}).DialContext,
			ForceAttemptHTTP2:     true,
			MaxIdleConns:          cfg.upstreamMaxIdle,
			MaxIdleConnsPerHost:   cfg.upstreamMaxIdle,
			IdleConnTimeout:       90 * time.Second,
			TLSHandshakeTimeout:   10 * time.Second,
			ExpectContinueTimeout: 1 * time.Second,
		},
	}
}

func newRouter(cfg config, d deps) http.Handler {
	if d.log == nil {
		d.log = zap.NewNop()
	}
	if d.events == nil {
		d.events = traffic.Nop{}
	}

	rateFor := func(route string) func(http.Handler) http.Handler {
		return throttle.Middleware(throttle.Options{
			Route:               route,
			Store:               d.limiter,
			Events:              d.events,
			KeyHeader:           cfg.rateKeyHeader,
			TrustXForwardedFor:  cfg.trustXFF,
			RejectStatus:        http.StatusTooManyRequests,
			RetryAfter:          cfg.retryAfter,
			AddRateLimitHeaders: cfg.addHeaders,
		})
	}

	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	r.Use(accesslog.Middleware(d.log, "gateway"))

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		sqlStatus := "unconfigured"
		if d.sqlPing != nil {
			ctx, cancel := context.WithTimeout(r.Context(), 3*time.Second)
			defer cancel()
			sqlStatus = "ok"
			if err := d.sqlPing(ctx); err != nil {
				sqlStatus = "error: " + err.Error()
			}
		}
		httpjson.Write(w, http.StatusOK, map[string]any{"status": "ok", "sql": sqlStatus})
	})
	if d.metrics != nil {
		r.Method(http.MethodGet, "/metrics", d.metrics)
	}

	r.Group(func(r chi.Router) {
		// todas as rotas de negócio dividem o mesmo semáforo de concorrência
		r.Use(throttle.ConcurrencyMiddleware(throttle.ConcurrencyOptions{
			Route:          "gateway",
			Max:            cfg.concurrencyMax,
			RejectStatus:   http.StatusServiceUnavailable,
			AcquireTimeout: cfg.concurrencyTimeout,
			Events:         d.events,
		}))

		validate := presenca.NewValidator()
		deleteHandler := &presenca.DeleteHandler{
			Exec:      d.presenca,
			BatchSize: cfg.deleteBatchSize,
			Log:       d.log,
			Validate:  validate,
		}

		for _, rt := range relayRoutes(cfg) {
			mws := []func(http.Handler) http.Handler{rateFor(rt.Name)}
			if rt.Name == "consulta-presenca" {
				mws = append(mws, presenca.InterceptConsultas(deleteHandler))
			}
			h := relay.New(rt,
				relay.WithClient(d.client),
				relay.WithLogger(d.log),
				relay.WithRecorder(d.events),
				relay.WithMiddleware(mws...),
			)
			r.Handle(rt.Path, h)
			if rt.AppendPath {
				r.Handle(rt.Path+"/*", h)
			}
		}

		pending := &presenca.PendingHandler{Writer: d.presenca, Log: d.log, Validate: validate}
		r.Handle("/api/presenca/pending",
			cors.Middleware(presenca.PendingPolicy())(rateFor("presenca-pending")(pending)))
	})

	return r
}
