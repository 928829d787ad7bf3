// Package infra traz as implementações concretas do throttle: token bucket por chave
// (golang.org/x/time/rate) e semáforo de vagas baseado em channel.
package infra

import (
	"context"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"novaeuropa-gateway/middleware/throttle/domain"
)

// RouteLimit sobrescreve o limite padrão de uma rota (ex.: consulta-presenca é mais pesada).
type RouteLimit struct {
	RPS   float64
	Burst int
}

// Store guarda um *rate.Limiter por (rota, cliente). Cada rota tem seu próprio mapa de
// clientes e seu próprio limite; clientes ociosos são descartados pelo janitor.
type Store struct {
	mu     sync.Mutex
	routes map[string]*routeBuckets
	def    RouteLimit
	limits map[string]RouteLimit

	idleTTL      time.Duration
	cleanupEvery time.Duration
	now          func() time.Time
}

type routeBuckets struct {
	limit   rate.Limit
	burst   int
	clients map[string]*bucket
}

type bucket struct {
	lim      *rate.Limiter
	lastSeen time.Time
}

type StoreOption func(*Store)

func WithIdleTTL(d time.Duration) StoreOption {
	return func(s *Store) { s.idleTTL = d }
}

func WithCleanupEvery(d time.Duration) StoreOption {
	return func(s *Store) { s.cleanupEvery = d }
}

// WithRouteLimits define limites próprios para algumas rotas. Rotas ausentes usam o padrão.
func WithRouteLimits(limits map[string]RouteLimit) StoreOption {
	return func(s *Store) {
		for route, l := range limits {
			if l.RPS > 0 && l.Burst > 0 {
				s.limits[route] = l
			}
		}
	}
}

func NewStore(rps float64, burst int, opts ...StoreOption) *Store {
	s := &Store{
		routes:       make(map[string]*routeBuckets),
		def:          RouteLimit{RPS: rps, Burst: burst},
		limits:       make(map[string]RouteLimit),
		idleTTL:      15 * time.Minute,
		cleanupEvery: 2 * time.Minute,
		now:          time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Limits devolve o limite efetivo da rota.
func (s *Store) Limits(route string) (float64, int) {
	l := s.limitFor(route)
	return l.RPS, l.Burst
}

func (s *Store) limitFor(route string) RouteLimit {
	if l, ok := s.limits[route]; ok {
		return l
	}
	return s.def
}

// Len retorna quantos clientes estão em cache, somando todas as rotas.
func (s *Store) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for _, rb := range s.routes {
		n += len(rb.clients)
	}
	return n
}

// Get implementa domain.LimiterStore.
func (s *Store) Get(key domain.Key) domain.Limiter {
	now := s.now()

	s.mu.Lock()
	defer s.mu.Unlock()

	rb, ok := s.routes[key.Route]
	if !ok {
		l := s.limitFor(key.Route)
		rb = &routeBuckets{limit: rate.Limit(l.RPS), burst: l.Burst, clients: make(map[string]*bucket)}
		s.routes[key.Route] = rb
	}
	if b, ok := rb.clients[key.Client]; ok {
		b.lastSeen = now
		return b.lim
	}
	b := &bucket{lim: rate.NewLimiter(rb.limit, rb.burst), lastSeen: now}
	rb.clients[key.Client] = b
	return b.lim
}

// Cleanup remove clientes sem uso há mais de idleTTL e retorna quantos saíram.
func (s *Store) Cleanup() int {
	cutoff := s.now().Add(-s.idleTTL)

	s.mu.Lock()
	defer s.mu.Unlock()

	removed := 0
	for route, rb := range s.routes {
		for client, b := range rb.clients {
			if b.lastSeen.Before(cutoff) {
				delete(rb.clients, client)
				removed++
			}
		}
		if len(rb.clients) == 0 {
			delete(s.routes, route)
		}
	}
	return removed
}

// StartJanitor roda Cleanup a cada cleanupEvery até o ctx ser cancelado.
func (s *Store) StartJanitor(ctx context.Context) {
	if s.cleanupEvery <= 0 {
		return
	}
	go func() {
		t := time.NewTicker(s.cleanupEvery)
		defer t.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-t.C:
				s.Cleanup()
			}
		}
	}()
}
