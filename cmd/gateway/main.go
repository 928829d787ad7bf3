package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"novaeuropa-gateway/internal/envcfg"
	"novaeuropa-gateway/internal/logging"
	"novaeuropa-gateway/internal/sqlserver"
	"novaeuropa-gateway/middleware/throttle/domain"
	"novaeuropa-gateway/middleware/throttle/infra"
	"novaeuropa-gateway/presenca"
	"novaeuropa-gateway/traffic"
)

func main() {
	loaded, err := envcfg.LoadFiles(envcfg.Default("ENV_FILE", ".env"))
	if err != nil {
		log.Fatalf("env file error: %v", err)
	}

	cfg, err := readConfig()
	if err != nil {
		log.Fatalf("config error: %v", err)
	}

	logger, err := logging.New(cfg.logLevel, cfg.logFormat)
	if err != nil {
		log.Fatalf("logger error: %v", err)
	}
	defer func() { _ = logger.Sync() }()
	if len(loaded) > 0 {
		logger.Info("env files loaded", zap.Strings("files", loaded))
	}

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	var recorders []traffic.Recorder
	var metrics http.Handler
	if cfg.metricsEnabled {
		reg := prometheus.NewRegistry()
		reg.MustRegister(
			collectors.NewGoCollector(),
			collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		)
		prom, err := traffic.NewPromRecorder(reg)
		if err != nil {
			logger.Fatal("prometheus recorder", zap.Error(err))
		}
		recorders = append(recorders, prom)
		metrics = promhttp.HandlerFor(reg, promhttp.HandlerOpts{})
	}

	if cfg.statsEnabled {
		rdb := redis.NewClient(&redis.Options{
			Addr:     cfg.statsRedisAddr,
			Password: cfg.statsRedisPassword,
			DB:       cfg.statsRedisDB,
		})
		defer func() { _ = rdb.Close() }()

		pingCtx, cancel := context.WithTimeout(ctx, 2*time.Second)
		_, err := rdb.Ping(pingCtx).Result()
		cancel()
		if err != nil {
			logger.Fatal("redis stats ping error", zap.String("addr", cfg.statsRedisAddr), zap.Error(err))
		}

		recorders = append(recorders, traffic.NewRedisRecorder(
			rdb,
			traffic.WithPrefix(cfg.statsPrefix),
			traffic.WithTTL(cfg.statsTTL),
			traffic.WithBucket(cfg.statsBucket),
			traffic.WithRedisTrackClients(cfg.statsTrackClients),
		))
	}

	var limiter domain.LimiterStore
	if cfg.rateEnabled {
		store := infra.NewStore(cfg.rateRPS, cfg.rateBurst, infra.WithRouteLimits(cfg.rateRouteLimits))
		store.StartJanitor(ctx)
		limiter = store
	}

	d := deps{
		log:     logger,
		client:  newUpstreamClient(cfg),
		events:  traffic.Multi(recorders...),
		limiter: limiter,
		metrics: metrics,
	}

	if !cfg.sqlConfigured() {
		logger.Warn("sql server credentials missing; presenca routes will answer 500",
			zap.Error(cfg.sql.Validate()))
		d.presenca = presenca.Unavailable(presenca.ErrNotConfigured)
	} else {
		pool := sqlserver.NewPool(cfg.sql, logger, sqlserver.WithRetryBackoff(cfg.sqlRetryBackoff))
		defer func() { _ = pool.Close() }()

		// primeira tentativa já no boot; se falhar, a próxima request tenta de novo
		openCtx, cancel := context.WithTimeout(ctx, cfg.sql.DialTimeout+15*time.Second)
		if _, err := pool.DB(openCtx); err != nil {
			logger.Warn("sql server unavailable at startup; will retry on demand", zap.Error(err))
		}
		cancel()

		d.presenca = presenca.NewSQLStoreFrom(pool, cfg.sqlQueryTimeout)
		d.sqlPing = pool.Ping
	}

	srv := &http.Server{
		Addr:              cfg.listenAddr,
		Handler:           newRouter(cfg, d),
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       60 * time.Second,
		// maior que o maior timeout de rota (consulta-presenca)
		WriteTimeout: cfg.presencaTimeout + 30*time.Second,
		IdleTimeout:  90 * time.Second,
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
	}()

	logger.Info("gateway listening",
		zap.String("addr", cfg.listenAddr),
		zap.Bool("metrics", cfg.metricsEnabled),
	)
	logger.Info("rate",
		zap.Bool("enabled", cfg.rateEnabled),
		zap.Float64("rps", cfg.rateRPS),
		zap.Int("burst", cfg.rateBurst),
		zap.String("keyHeader", cfg.rateKeyHeader),
		zap.Bool("trustXFF", cfg.trustXFF),
	)
	logger.Info("traffic-stats",
		zap.Bool("enabled", cfg.statsEnabled),
		zap.String("redisAddr", cfg.statsRedisAddr),
		zap.String("bucket", cfg.statsBucket),
		zap.Duration("ttl", cfg.statsTTL),
		zap.Bool("trackClients", cfg.statsTrackClients),
	)
	logger.Info("concurrency", zap.Int("max", cfg.concurrencyMax), zap.Duration("acquireTimeout", cfg.concurrencyTimeout))
	for _, rt := range relayRoutes(cfg) {
		logger.Info("relay route",
			zap.String("route", rt.Name),
			zap.String("path", rt.Path),
			zap.String("upstream", rt.Upstream),
			zap.Duration("timeout", rt.Timeout),
		)
	}

	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		logger.Fatal("server error", zap.Error(err))
	}
}
