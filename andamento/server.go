// Package andamento serve o relatório de propostas em andamento (cadastrados no SQL Server)
// protegido por Bearer token.
package andamento

import (
	"context"
	"crypto/subtle"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"

	"novaeuropa-gateway/internal/httpjson"
	"novaeuropa-gateway/middleware/accesslog"
	"novaeuropa-gateway/middleware/cors"
)

const (
	msgUnauthorized = "Unauthorized."
	msgInvalidDate  = "Invalid date format. Use YYYY-MM-DD."
	msgQueryFailed  = "Failed to query database."
	msgNotFound     = "Not found."
)

type Config struct {
	Token      string
	CORSOrigin string
	// PingTimeout limita o SELECT 1 de /api/health.
	PingTimeout time.Duration
	Now         func() time.Time
}

type Server struct {
	store  Store
	cfg    Config
	log    *zap.Logger
	policy cors.Policy
}

func NewServer(store Store, cfg Config, log *zap.Logger) *Server {
	if log == nil {
		log = zap.NewNop()
	}
	if cfg.CORSOrigin == "" {
		cfg.CORSOrigin = "*"
	}
	if cfg.PingTimeout <= 0 {
		cfg.PingTimeout = 5 * time.Second
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	return &Server{
		store: store,
		cfg:   cfg,
		log:   log,
		policy: cors.Policy{
			Methods:      []string{http.MethodGet},
			AllowHeaders: "Content-Type, Authorization",
			Origin:       cfg.CORSOrigin,
		},
	}
}

// Handler monta as rotas. Qualquer OPTIONS responde 204; o resto fora das rotas é 404.
func (s *Server) Handler() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	r.Use(accesslog.Middleware(s.log, "andamento"))
	r.Use(s.corsHeaders)

	r.Get("/get-andamento", s.handleAndamento)
	r.Get("/api/get-andamento", s.handleAndamento)
	r.Get("/api/health", s.handleHealth)

	notFound := func(w http.ResponseWriter, r *http.Request) {
		httpjson.Error(w, http.StatusNotFound, msgNotFound)
	}
	r.NotFound(notFound)
	r.MethodNotAllowed(notFound)
	return r
}

func (s *Server) corsHeaders(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		s.policy.SetHeaders(w, r)
		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusNoContent)
			return
		}
		next.ServeHTTP(w, r)
	})
}

// authorized compara o Bearer token em tempo constante.
func (s *Server) authorized(r *http.Request) bool {
	typ, token, ok := strings.Cut(r.Header.Get("Authorization"), " ")
	if !ok || typ != "Bearer" || token == "" || s.cfg.Token == "" {
		return false
	}
	return subtle.ConstantTimeCompare([]byte(token), []byte(s.cfg.Token)) == 1
}

func (s *Server) handleAndamento(w http.ResponseWriter, r *http.Request) {
	if !s.authorized(r) {
		w.Header().Set("WWW-Authenticate", "Bearer")
		httpjson.Error(w, http.StatusUnauthorized, msgUnauthorized)
		return
	}

	start, final, err := ResolveRange(r.URL.Query(), s.cfg.Now())
	if err != nil {
		httpjson.Error(w, http.StatusBadRequest, msgInvalidDate)
		return
	}

	began := time.Now()
	rows, err := s.store.Andamento(r.Context(), start, final)
	if err != nil {
		if !errors.Is(err, context.Canceled) {
			s.log.Error("andamento query failed",
				zap.String("request_id", accesslog.RequestID(r.Context())),
				zap.String("startDate", start),
				zap.String("finalDate", final),
				zap.Error(err),
			)
		}
		httpjson.Error(w, http.StatusInternalServerError, msgQueryFailed)
		return
	}

	accesslog.Annotate(r.Context(),
		zap.Int("rows", len(rows)),
		zap.Duration("query_duration", time.Since(began)),
		zap.String("startDate", start),
		zap.String("finalDate", final),
	)
	httpjson.Write(w, http.StatusOK, rows)
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), s.cfg.PingTimeout)
	defer cancel()

	if err := s.store.Ping(ctx); err != nil {
		httpjson.Write(w, http.StatusInternalServerError, map[string]any{
			"status":  "ERROR",
			"message": "Erro na conexão com banco de dados",
			"error":   err.Error(),
		})
		return
	}
	httpjson.Write(w, http.StatusOK, map[string]any{
		"status":    "OK",
		"message":   "API e banco de dados funcionando",
		"timestamp": s.cfg.Now().UTC().Format(time.RFC3339Nano),
	})
}
