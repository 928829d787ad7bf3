package main

import (
	"errors"
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"

	"novaeuropa-gateway/internal/envcfg"
	"novaeuropa-gateway/internal/sqlserver"
	"novaeuropa-gateway/middleware/throttle/infra"
)

const (
	n8nBase = "http://85.31.61.242:3002/api"

	defaultPresencaTimeout = 45 * time.Second
	minPresencaTimeout     = 10 * time.Second
)

type config struct {
	listenAddr string
	logLevel   string
	logFormat  string

	bmgURL              string
	bmgSOAPAction       string
	importCSVURL        string
	importStatusURL     string
	presencaBaseURL     string
	presencaTimeout     time.Duration
	consultaV8BaseURL   string
	healthConsultURL    string
	healthForceURL      string
	upstreamMaxIdle     int
	upstreamDialTimeout time.Duration

	rateEnabled        bool
	rateRPS            float64
	rateBurst          int
	rateRouteLimits    map[string]infra.RouteLimit
	rateKeyHeader      string
	trustXFF           bool
	retryAfter         time.Duration
	addHeaders         bool
	concurrencyMax     int
	concurrencyTimeout time.Duration

	statsEnabled       bool
	statsRedisAddr     string
	statsRedisPassword string
	statsRedisDB       int
	statsPrefix        string
	statsTTL           time.Duration
	statsBucket        string
	statsTrackClients  bool

	metricsEnabled bool

	sql             sqlserver.Config
	sqlQueryTimeout time.Duration
	sqlRetryBackoff time.Duration
	deleteBatchSize int
}

var wsdlSuffix = regexp.MustCompile(`(?i)\?wsdl$`)

// normalizeSOAPURL tira o ?wsdl que às vezes vem colado na URL do serviço.
func normalizeSOAPURL(v string) string {
	return wsdlSuffix.ReplaceAllString(strings.TrimSpace(v), "")
}

// presencaTimeout lê CONSULTA_PRESENCA_PROXY_TIMEOUT_MS, nunca abaixo de 10s.
func presencaTimeout() time.Duration {
	d := envcfg.MillisDefault("CONSULTA_PRESENCA_PROXY_TIMEOUT_MS", defaultPresencaTimeout)
	if d < minPresencaTimeout {
		return minPresencaTimeout
	}
	return d
}

// parseRouteLimits lê RATE_ROUTE_LIMITS no formato "rota=rps:burst,rota=rps:burst".
func parseRouteLimits(v string) (map[string]infra.RouteLimit, error) {
	out := map[string]infra.RouteLimit{}
	for _, item := range strings.Split(v, ",") {
		item = strings.TrimSpace(item)
		if item == "" {
			continue
		}
		route, spec, ok := strings.Cut(item, "=")
		rpsStr, burstStr, ok2 := strings.Cut(spec, ":")
		if !ok || !ok2 || strings.TrimSpace(route) == "" {
			return nil, fmt.Errorf("RATE_ROUTE_LIMITS: invalid item %q (want route=rps:burst)", item)
		}
		rps, err := strconv.ParseFloat(strings.TrimSpace(rpsStr), 64)
		if err != nil || rps <= 0 {
			return nil, fmt.Errorf("RATE_ROUTE_LIMITS: invalid rps in %q", item)
		}
		burst, err := strconv.Atoi(strings.TrimSpace(burstStr))
		if err != nil || burst <= 0 {
			return nil, fmt.Errorf("RATE_ROUTE_LIMITS: invalid burst in %q", item)
		}
		out[strings.TrimSpace(route)] = infra.RouteLimit{RPS: rps, Burst: burst}
	}
	return out, nil
}

func readConfig() (config, error) {
	cfg := config{}
	cfg.listenAddr = envcfg.Default("LISTEN_ADDR", ":8080")
	cfg.logLevel = envcfg.Default("LOG_LEVEL", "info")
	cfg.logFormat = envcfg.Default("LOG_FORMAT", "json")

	cfg.bmgURL = normalizeSOAPURL(envcfg.First("BMG_SOAP_URL", "VITE_BMG_SOAP_URL", "BMG_SOAP_ENDPOINT"))
	cfg.bmgSOAPAction = envcfg.First("BMG_SOAP_ACTION", "VITE_BMG_SOAP_ACTION")
	if cfg.bmgSOAPAction == "" {
		cfg.bmgSOAPAction = "inserirSolicitacao"
	}
	cfg.importCSVURL = envcfg.Default("V8_IMPORT_CSV_UPSTREAM_URL", n8nBase+"/clientes-v8/import-csv")
	cfg.importStatusURL = envcfg.Default("V8_IMPORT_STATUS_UPSTREAM_URL", n8nBase+"/clientes-v8/import-status")
	cfg.presencaBaseURL = envcfg.Default("CONSULTA_PRESENCA_BASE_URL", n8nBase+"/consulta-presenca")
	cfg.presencaTimeout = presencaTimeout()
	cfg.consultaV8BaseURL = envcfg.Default("CONSULTA_V8_BASE_URL", n8nBase+"/consulta-v8")
	cfg.healthConsultURL = envcfg.Default("HEALTH_CONSULT_UPSTREAM_URL", n8nBase+"/health-consult")
	cfg.healthForceURL = envcfg.Default("HEALTH_CONSULT_FORCE_UPSTREAM_URL", n8nBase+"/health-consult/force-backup")
	cfg.upstreamMaxIdle = envcfg.IntDefault("UPSTREAM_MAX_IDLE_CONNS", 100)
	cfg.upstreamDialTimeout = envcfg.DurationDefault("UPSTREAM_DIAL_TIMEOUT", 10*time.Second)

	cfg.rateEnabled = envcfg.BoolDefault("RATE_ENABLED", true)
	cfg.rateRPS = envcfg.FloatDefault("RATE_RPS", 10)
	// burst é a rajada inicial por cliente; com RPS < 1 o padrão cai para 1.
	if burst, ok := envcfg.Int("RATE_BURST"); ok {
		cfg.rateBurst = burst
	} else {
		cfg.rateBurst = 20
		if envcfg.IsSet("RATE_RPS") && cfg.rateRPS > 0 && cfg.rateRPS < 1 {
			cfg.rateBurst = 1
		}
	}
	limits, err := parseRouteLimits(envcfg.Get("RATE_ROUTE_LIMITS"))
	if err != nil {
		return config{}, err
	}
	cfg.rateRouteLimits = limits
	cfg.rateKeyHeader = envcfg.Get("RATE_KEY_HEADER")
	cfg.trustXFF = envcfg.BoolDefault("TRUST_XFF", false)
	cfg.retryAfter = envcfg.DurationDefault("RETRY_AFTER", 1*time.Second)
	cfg.addHeaders = envcfg.BoolDefault("ADD_RATELIMIT_HEADERS", false)
	cfg.concurrencyMax = envcfg.IntDefault("CONCURRENCY_MAX", 100)
	cfg.concurrencyTimeout = envcfg.DurationDefault("CONCURRENCY_TIMEOUT", 0)

	cfg.statsEnabled = envcfg.BoolDefault("TRAFFIC_STATS_ENABLED", false)
	cfg.statsRedisAddr = envcfg.Get("TRAFFIC_STATS_REDIS_ADDR")
	cfg.statsRedisPassword = envcfg.Get("TRAFFIC_STATS_REDIS_PASSWORD")
	cfg.statsRedisDB = envcfg.IntDefault("TRAFFIC_STATS_REDIS_DB", 0)
	cfg.statsPrefix = envcfg.Default("TRAFFIC_STATS_PREFIX", "novaeuropa:traffic")
	cfg.statsTTL = envcfg.DurationDefault("TRAFFIC_STATS_TTL", 24*time.Hour)
	cfg.statsBucket = envcfg.Default("TRAFFIC_STATS_BUCKET", "minute")
	cfg.statsTrackClients = envcfg.BoolDefault("TRAFFIC_STATS_TRACK_CLIENTS", false)

	cfg.metricsEnabled = envcfg.BoolDefault("METRICS_ENABLED", true)

	cfg.sql = sqlserver.Config{
		Host:                   envcfg.Get("host_king"),
		Port:                   envcfg.IntDefault("port_king", 1433),
		User:                   envcfg.Get("user_king"),
		Password:               envcfg.Get("pass_king"),
		Database:               envcfg.Get("database_king"),
		TrustServerCertificate: true,
		AppName:                "novaeuropa-gateway",
		MaxOpenConns:           envcfg.IntDefault("SQL_MAX_OPEN_CONNS", 5),
		MaxIdleConns:           envcfg.IntDefault("SQL_MAX_IDLE_CONNS", 2),
		ConnMaxIdleTime:        envcfg.DurationDefault("SQL_CONN_MAX_IDLE_TIME", 30*time.Second),
		DialTimeout:            envcfg.DurationDefault("SQL_DIAL_TIMEOUT", 15*time.Second),
	}
	cfg.sqlQueryTimeout = envcfg.DurationDefault("SQL_QUERY_TIMEOUT", 30*time.Second)
	cfg.sqlRetryBackoff = envcfg.DurationDefault("SQL_RETRY_BACKOFF", 5*time.Second)
	cfg.deleteBatchSize = envcfg.IntDefault("CONSULTA_PRESENCA_DELETE_BATCH", 1000)

	if cfg.statsEnabled && cfg.statsRedisAddr == "" {
		return config{}, errors.New("TRAFFIC_STATS_REDIS_ADDR is required when TRAFFIC_STATS_ENABLED=true")
	}
	if cfg.rateRPS <= 0 {
		return config{}, errors.New("RATE_RPS must be > 0")
	}
	if cfg.rateBurst <= 0 {
		return config{}, errors.New("RATE_BURST must be > 0")
	}
	if cfg.concurrencyMax < 0 {
		return config{}, errors.New("CONCURRENCY_MAX must be >= 0")
	}
	if cfg.deleteBatchSize <= 0 {
		return config{}, errors.New("CONSULTA_PRESENCA_DELETE_BATCH must be > 0")
	}
	return cfg, nil
}

// sqlConfigured diz se as quatro credenciais host_king/user_king/pass_king/database_king existem.
func (c config) sqlConfigured() bool {
	return c.sql.Validate() == nil
}
