package main

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"novaeuropa-gateway/internal/envcfg"
	"novaeuropa-gateway/internal/sqlserver"
)

type config struct {
	listenAddr string
	logLevel   string
	logFormat  string

	token       string
	corsOrigin  string
	pingTimeout time.Duration

	sql             sqlserver.Config
	sqlQueryTimeout time.Duration
	sqlRetryBackoff time.Duration
}

// envFiles é a ordem de busca dos .env: ENV_FILE, ou ../.env seguido de .env.
func envFiles() []string {
	if f := envcfg.Get("ENV_FILE"); f != "" {
		return []string{f}
	}
	return []string{"../.env", ".env"}
}

func readConfig() (config, error) {
	cfg := config{}

	port := envcfg.IntDefault("PORT", 7171)
	if port <= 0 || port > 65535 {
		return config{}, fmt.Errorf("PORT must be between 1 and 65535, got %d", port)
	}
	cfg.listenAddr = ":" + strconv.Itoa(port)
	cfg.logLevel = envcfg.Default("LOG_LEVEL", "info")
	cfg.logFormat = envcfg.Default("LOG_FORMAT", "json")

	cfg.token = envcfg.Get("API_TOKEN")
	cfg.corsOrigin = envcfg.Default("CORS_ORIGIN", "*")
	cfg.pingTimeout = envcfg.DurationDefault("HEALTH_PING_TIMEOUT", 5*time.Second)

	cfg.sql = sqlserver.Config{
		Host:     envcfg.Get("DB_HOST"),
		Port:     envcfg.IntDefault("DB_PORT", 1433),
		User:     envcfg.Get("DB_USER"),
		Password: envcfg.Get("DB_PASSWORD"),
		Database: envcfg.Default("DB_NAME", "vieira_online"),
		// o servidor do relatório não fala TLS
		Encrypt:                false,
		TrustServerCertificate: true,
		AppName:                "novaeuropa-andamento",
		MaxOpenConns:           envcfg.IntDefault("SQL_MAX_OPEN_CONNS", 10),
		MaxIdleConns:           envcfg.IntDefault("SQL_MAX_IDLE_CONNS", 2),
		ConnMaxIdleTime:        envcfg.DurationDefault("SQL_CONN_MAX_IDLE_TIME", 30*time.Second),
		DialTimeout:            envcfg.DurationDefault("SQL_DIAL_TIMEOUT", 15*time.Second),
	}
	cfg.sqlQueryTimeout = envcfg.DurationDefault("SQL_QUERY_TIMEOUT", 30*time.Second)
	cfg.sqlRetryBackoff = envcfg.DurationDefault("SQL_RETRY_BACKOFF", 5*time.Second)

	var missing []string
	for _, req := range []struct{ key, val string }{
		{"API_TOKEN", cfg.token},
		{"DB_USER", cfg.sql.User},
		{"DB_PASSWORD", cfg.sql.Password},
		{"DB_HOST", cfg.sql.Host},
	} {
		if req.val == "" {
			missing = append(missing, req.key)
		}
	}
	if len(missing) > 0 {
		return config{}, errors.New("missing required env: " + strings.Join(missing, ", "))
	}
	return cfg, nil
}
