package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	"novaeuropa-gateway/andamento"
	"novaeuropa-gateway/internal/envcfg"
	"novaeuropa-gateway/internal/logging"
	"novaeuropa-gateway/internal/sqlserver"
)

func main() {
	loaded, err := envcfg.LoadFiles(envFiles()...)
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

	// sem TLS e sem fallback; se o banco estiver fora no boot, a próxima request tenta de novo
	pool := sqlserver.NewPool(cfg.sql, logger,
		sqlserver.WithOpener(sqlserver.Open),
		sqlserver.WithRetryBackoff(cfg.sqlRetryBackoff))
	defer func() { _ = pool.Close() }()

	openCtx, cancelOpen := context.WithTimeout(ctx, cfg.sql.DialTimeout+5*time.Second)
	if _, err := pool.DB(openCtx); err != nil {
		logger.Warn("sql server unavailable at startup; will retry on demand",
			zap.String("database", cfg.sql.Database), zap.Error(err))
	}
	cancelOpen()

	server := andamento.NewServer(andamento.NewSQLStoreFrom(pool, cfg.sqlQueryTimeout), andamento.Config{
		Token:       cfg.token,
		CORSOrigin:  cfg.corsOrigin,
		PingTimeout: cfg.pingTimeout,
	}, logger)

	srv := &http.Server{
		Addr:              cfg.listenAddr,
		Handler:           server.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
		WriteTimeout:      cfg.sqlQueryTimeout + 15*time.Second,
		IdleTimeout:       90 * time.Second,
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
	}()

	logger.Info("andamento listening",
		zap.String("addr", cfg.listenAddr),
		zap.String("corsOrigin", cfg.corsOrigin),
	)
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		logger.Fatal("server error", zap.Error(err))
	}
}
