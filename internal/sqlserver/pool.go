package sqlserver

import (
	"context"
	"database/sql"
	"sync"
	"time"

	"go.uber.org/zap"
)

// Source entrega o pool para quem executa statements.
type Source interface {
	DB(ctx context.Context) (*sql.DB, error)
}

type fixed struct{ db *sql.DB }

// Fixed embrulha um *sql.DB já aberto.
func Fixed(db *sql.DB) Source { return fixed{db: db} }

func (f fixed) DB(context.Context) (*sql.DB, error) { return f.db, nil }

// Pool abre a conexão sob demanda. Se a abertura falhar (banco fora do ar no boot,
// rede instável), a próxima chamada depois do backoff tenta de novo. Uma vez aberto,
// o *sql.DB é reaproveitado e o database/sql cuida das reconexões.
type Pool struct {
	cfg     Config
	log     *zap.Logger
	open    func(ctx context.Context) (*sql.DB, Config, error)
	backoff time.Duration
	now     func() time.Time

	mu      sync.Mutex
	db      *sql.DB
	lastErr error
	lastTry time.Time
}

type PoolOption func(*Pool)

// WithRetryBackoff é o intervalo mínimo entre duas tentativas de abertura.
func WithRetryBackoff(d time.Duration) PoolOption {
	return func(p *Pool) { p.backoff = d }
}

// WithOpener troca a abertura padrão (OpenWithFallback) por fn, sem fallback de TLS.
func WithOpener(fn OpenFunc) PoolOption {
	return func(p *Pool) {
		p.open = func(ctx context.Context) (*sql.DB, Config, error) {
			db, err := fn(ctx, p.cfg)
			return db, p.cfg, err
		}
	}
}

func NewPool(cfg Config, log *zap.Logger, opts ...PoolOption) *Pool {
	if log == nil {
		log = zap.NewNop()
	}
	p := &Pool{cfg: cfg, log: log, backoff: 5 * time.Second, now: time.Now}
	p.open = func(ctx context.Context) (*sql.DB, Config, error) {
		return OpenWithFallback(ctx, p.cfg, p.log)
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// DB devolve o pool aberto, abrindo agora se ainda não houver um.
// Credenciais ausentes não são retentadas: o erro é sempre ErrMissingCredentials.
func (p *Pool) DB(ctx context.Context) (*sql.DB, error) {
	if err := p.cfg.Validate(); err != nil {
		return nil, err
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	if p.db != nil {
		return p.db, nil
	}
	if p.lastErr != nil && p.now().Sub(p.lastTry) < p.backoff {
		return nil, p.lastErr
	}

	db, used, err := p.open(ctx)
	if err != nil {
		// request cancelada no meio não conta como falha do banco
		if ctx.Err() == nil {
			p.lastErr, p.lastTry = err, p.now()
		}
		p.log.Warn("sql server connection failed",
			zap.String("host", p.cfg.Host), zap.Duration("retryIn", p.backoff), zap.Error(err))
		return nil, err
	}
	p.db, p.lastErr = db, nil
	p.log.Info("sql server connected",
		zap.String("host", used.Host),
		zap.String("database", used.Database),
		zap.Bool("encrypt", used.Encrypt))
	return db, nil
}

// Ping abre o pool se preciso e confirma que o servidor responde.
func (p *Pool) Ping(ctx context.Context) error {
	db, err := p.DB(ctx)
	if err != nil {
		return err
	}
	return db.PingContext(ctx)
}

func (p *Pool) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.db == nil {
		return nil
	}
	err := p.db.Close()
	p.db = nil
	return err
}
