package main

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"novaeuropa-gateway/middleware/throttle/infra"
	"novaeuropa-gateway/presenca"
	"novaeuropa-gateway/traffic"
)

func TestNormalizeSOAPURL(t *testing.T) {
	assert.Equal(t, "https://ws.bmg/SolicitacaoSaque", normalizeSOAPURL(" https://ws.bmg/SolicitacaoSaque?WSDL "))
	assert.Equal(t, "https://ws.bmg/x", normalizeSOAPURL("https://ws.bmg/x"))
	assert.Equal(t, "", normalizeSOAPURL(""))
}

func TestReadConfig_Defaults(t *testing.T) {
	t.Setenv("CONSULTA_PRESENCA_PROXY_TIMEOUT_MS", "")
	t.Setenv("BMG_SOAP_URL", "")
	t.Setenv("VITE_BMG_SOAP_URL", "")
	t.Setenv("BMG_SOAP_ENDPOINT", "https://bmg/ws?wsdl")
	t.Setenv("BMG_SOAP_ACTION", "")
	t.Setenv("VITE_BMG_SOAP_ACTION", "")

	cfg, err := readConfig()
	require.NoError(t, err)
	assert.Equal(t, "https://bmg/ws", cfg.bmgURL)
	assert.Equal(t, "inserirSolicitacao", cfg.bmgSOAPAction)
	assert.Equal(t, 45*time.Second, cfg.presencaTimeout)
	assert.Equal(t, "http://85.31.61.242:3002/api/consulta-presenca", cfg.presencaBaseURL)
	assert.Equal(t, 1000, cfg.deleteBatchSize)
}

func TestReadConfig_PresencaTimeoutHasFloor(t *testing.T) {
	t.Setenv("CONSULTA_PRESENCA_PROXY_TIMEOUT_MS", "2000")
	cfg, err := readConfig()
	require.NoError(t, err)
	assert.Equal(t, 10*time.Second, cfg.presencaTimeout)

	t.Setenv("CONSULTA_PRESENCA_PROXY_TIMEOUT_MS", "60000")
	cfg, err = readConfig()
	require.NoError(t, err)
	assert.Equal(t, time.Minute, cfg.presencaTimeout)
}

func TestParseRouteLimits(t *testing.T) {
	got, err := parseRouteLimits(" consulta-presenca=2:4 , bmg=0.5:1,")
	require.NoError(t, err)
	assert.Equal(t, map[string]infra.RouteLimit{
		"consulta-presenca": {RPS: 2, Burst: 4},
		"bmg":               {RPS: 0.5, Burst: 1},
	}, got)

	for _, bad := range []string{"bmg", "bmg=1", "=1:1", "bmg=x:1", "bmg=1:0"} {
		_, err := parseRouteLimits(bad)
		assert.Error(t, err, bad)
	}
}

func TestReadConfig_StatsNeedRedisAddr(t *testing.T) {
	t.Setenv("TRAFFIC_STATS_ENABLED", "true")
	t.Setenv("TRAFFIC_STATS_REDIS_ADDR", "")
	_, err := readConfig()
	assert.Error(t, err)
}

func TestReadConfig_SQLCredentialsAnyCase(t *testing.T) {
	t.Setenv("HOST_KING", "sql.local")
	t.Setenv("user_king", "sa")
	t.Setenv("pass_king", "x")
	t.Setenv("DATABASE_KING", "king")

	cfg, err := readConfig()
	require.NoError(t, err)
	assert.True(t, cfg.sqlConfigured())
	assert.Equal(t, "sql.local", cfg.sql.Host)
}

type fakePresenca struct {
	remaining int64
	inserted  int
}

func (f *fakePresenca) DeleteBatch(_ context.Context, _ presenca.DeleteFilter, size int) (int64, error) {
	n := int64(size)
	if f.remaining < n {
		n = f.remaining
	}
	f.remaining -= n
	return n, nil
}

func (f *fakePresenca) InsertPending(_ context.Context, b presenca.PendingBatch) (int64, error) {
	f.inserted += len(b.Rows)
	return int64(len(b.Rows)), nil
}

type testGateway struct {
	handler  http.Handler
	upstream *httptest.Server
	mu       sync.Mutex
	hits     []string
	events   *traffic.MemoryRecorder
	store    *fakePresenca
}

func newTestGateway(t *testing.T, mutate func(*config)) *testGateway {
	t.Helper()
	g := &testGateway{events: traffic.NewMemoryRecorder(), store: &fakePresenca{remaining: 2500}}
	g.upstream = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		g.mu.Lock()
		g.hits = append(g.hits, r.Method+" "+r.URL.RequestURI())
		g.mu.Unlock()
		w.Header().Set("Content-Type", "application/json")
		_, _ = io.WriteString(w, `{"upstream":true}`)
	}))
	t.Cleanup(g.upstream.Close)

	base := g.upstream.URL + "/api"
	cfg := config{
		bmgURL:            base + "/bmg",
		bmgSOAPAction:     "inserirSolicitacao",
		importCSVURL:      base + "/clientes-v8/import-csv",
		importStatusURL:   base + "/clientes-v8/import-status",
		presencaBaseURL:   base + "/consulta-presenca",
		presencaTimeout:   10 * time.Second,
		consultaV8BaseURL: base + "/consulta-v8",
		healthConsultURL:  base + "/health-consult",
		healthForceURL:    base + "/health-consult/force-backup",
		rateRPS:           100,
		rateBurst:         100,
		retryAfter:        time.Second,
		deleteBatchSize:   1000,
	}
	if mutate != nil {
		mutate(&cfg)
	}

	reg := prometheus.NewRegistry()
	prom, err := traffic.NewPromRecorder(reg)
	require.NoError(t, err)

	g.handler = newRouter(cfg, deps{
		events:   traffic.Multi(g.events, prom),
		limiter:  infra.NewStore(cfg.rateRPS, cfg.rateBurst, infra.WithRouteLimits(cfg.rateRouteLimits)),
		presenca: g.store,
		metrics:  promhttp.HandlerFor(reg, promhttp.HandlerOpts{}),
	})
	return g
}

func (g *testGateway) upstreamHits() []string {
	g.mu.Lock()
	defer g.mu.Unlock()
	return append([]string(nil), g.hits...)
}

func (g *testGateway) do(method, target string, body string) *httptest.ResponseRecorder {
	var rd io.Reader
	if body != "" {
		rd = strings.NewReader(body)
	}
	r := httptest.NewRequest(method, target, rd)
	r.RemoteAddr = "10.0.0.1:1234"
	w := httptest.NewRecorder()
	g.handler.ServeHTTP(w, r)
	return w
}

func TestGateway_OptionsAndMethodsOnEveryRoute(t *testing.T) {
	g := newTestGateway(t, nil)

	allow := map[string]string{
		"/api/bmg":                         "POST,OPTIONS",
		"/api/clientes-v8/import-csv":      "POST,OPTIONS",
		"/api/clientes-v8/import-status":   "GET,OPTIONS",
		"/api/consulta-presenca/x":         "GET,POST,PUT,PATCH,DELETE,OPTIONS",
		"/api/consulta-v8/x":               "GET,POST,PUT,PATCH,DELETE,OPTIONS",
		"/api/health-consult":              "GET,OPTIONS",
		"/api/health-consult/force-backup": "POST,OPTIONS",
	}
	for path, want := range allow {
		w := g.do(http.MethodOptions, path, "")
		assert.Equal(t, http.StatusNoContent, w.Code, path)
		assert.Equal(t, want, w.Header().Get("Access-Control-Allow-Methods"), path)

		w = g.do("TRACE", path, "")
		assert.Equal(t, http.StatusMethodNotAllowed, w.Code, path)
		assert.Equal(t, want, w.Header().Get("Allow"), path)
	}
	assert.Empty(t, g.upstreamHits())
}

func TestGateway_RelaysWildcardAndQuery(t *testing.T) {
	g := newTestGateway(t, nil)

	w := g.do(http.MethodGet, "/api/consulta-v8/clientes/42?page=2", "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"upstream":true}`, w.Body.String())

	w = g.do(http.MethodGet, "/api/consulta-presenca?login=abc", "")
	require.Equal(t, http.StatusOK, w.Code)

	w = g.do(http.MethodGet, "/api/clientes-v8/import-status?job_id=9&x=1", "")
	require.Equal(t, http.StatusOK, w.Code)

	assert.Equal(t, []string{
		"GET /api/consulta-v8/clientes/42?page=2",
		"GET /api/consulta-presenca?login=abc",
		"GET /api/clientes-v8/import-status?jobId=9",
	}, g.upstreamHits())
	assert.EqualValues(t, 3, g.events.Total(traffic.OutcomeOK))
}

func TestGateway_ConsultasDeleteIsInterceptedAndBatched(t *testing.T) {
	g := newTestGateway(t, nil)

	w := g.do(http.MethodPost, "/api/consulta-presenca/consultas?id_user=1&equipe_id=2&id_consulta_presenca=3&tipoConsulta=lote.csv", "")
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.Contains(t, w.Body.String(), `"deleted_count":2500`)
	assert.NotEmpty(t, w.Header().Get("Access-Control-Allow-Origin"))
	assert.Empty(t, g.upstreamHits())
}

func TestGateway_PresencaPending(t *testing.T) {
	g := newTestGateway(t, nil)

	w := g.do(http.MethodPost, "/api/presenca/pending",
		`{"loginP":"op","tipoConsulta":"a.csv","rows":[{"cpf":"12345678901","nome":"A","telefone":"11987654321"}]}`)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.Equal(t, 1, g.store.inserted)

	w = g.do(http.MethodGet, "/api/presenca/pending", "")
	assert.Equal(t, http.StatusMethodNotAllowed, w.Code)
	assert.JSONEq(t, `{"ok":false,"error":"Method Not Allowed"}`, w.Body.String())
}

func TestGateway_MissingBMGURL(t *testing.T) {
	g := newTestGateway(t, func(c *config) { c.bmgURL = "" })

	w := g.do(http.MethodPost, "/api/bmg", "<soap/>")
	assert.Equal(t, http.StatusInternalServerError, w.Code)
	assert.Equal(t, "BMG_SOAP_URL nao configurada no gateway.", w.Body.String())
}

func TestGateway_RateLimitPerRoute(t *testing.T) {
	g := newTestGateway(t, func(c *config) {
		c.rateRPS = 0.001
		c.rateBurst = 1
	})

	assert.Equal(t, http.StatusOK, g.do(http.MethodGet, "/api/consulta-v8/a", "").Code)
	w := g.do(http.MethodGet, "/api/consulta-v8/a", "")
	assert.Equal(t, http.StatusTooManyRequests, w.Code)
	assert.NotEmpty(t, w.Header().Get("Retry-After"))
	// bucket separado por rota
	assert.Equal(t, http.StatusOK, g.do(http.MethodGet, "/api/health-consult", "").Code)
	assert.EqualValues(t, 1, g.events.Total(traffic.OutcomeDenied))
}

func TestGateway_RouteLimitOverride(t *testing.T) {
	g := newTestGateway(t, func(c *config) {
		c.rateRPS = 0.001
		c.rateBurst = 1
		c.rateRouteLimits = map[string]infra.RouteLimit{"consulta-v8": {RPS: 0.001, Burst: 2}}
	})

	assert.Equal(t, http.StatusOK, g.do(http.MethodGet, "/api/consulta-v8/a", "").Code)
	assert.Equal(t, http.StatusOK, g.do(http.MethodGet, "/api/consulta-v8/a", "").Code)
	assert.Equal(t, http.StatusTooManyRequests, g.do(http.MethodGet, "/api/consulta-v8/a", "").Code)
}

func TestGateway_HealthzAndMetrics(t *testing.T) {
	g := newTestGateway(t, nil)
	g.do(http.MethodGet, "/api/consulta-v8/a", "")

	w := g.do(http.MethodGet, "/healthz", "")
	assert.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"status":"ok","sql":"unconfigured"}`, w.Body.String())

	w = g.do(http.MethodGet, "/metrics", "")
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `novaeuropa_gateway_events_total{method="GET",outcome="ok",route="consulta-v8",status="200"} 1`)
}
