package traffic

import (
	"context"
	"sync"
)

// MemoryRecorder conta eventos em memória, por rota e por resultado.
// Útil para testes e desenvolvimento; não expira nada.
type MemoryRecorder struct {
	mu      sync.Mutex
	total   map[Outcome]int64
	byRoute map[string]map[Outcome]int64
	byKey   map[string]map[Outcome]int64

	trackClients bool
}

type MemoryOption func(*MemoryRecorder)

func WithTrackClients(track bool) MemoryOption {
	return func(s *MemoryRecorder) { s.trackClients = track }
}

func NewMemoryRecorder(opts ...MemoryOption) *MemoryRecorder {
	s := &MemoryRecorder{
		total:   make(map[Outcome]int64),
		byRoute: make(map[string]map[Outcome]int64),
		byKey:   make(map[string]map[Outcome]int64),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *MemoryRecorder) Record(_ context.Context, ev Event) error {
	route := ev.Method + " " + ev.Route

	s.mu.Lock()
	defer s.mu.Unlock()

	s.total[ev.Outcome]++
	incr(s.byRoute, route, ev.Outcome)
	if s.trackClients && ev.Client != "" {
		incr(s.byKey, ev.Client, ev.Outcome)
	}
	return nil
}

func incr(m map[string]map[Outcome]int64, k string, o Outcome) {
	c := m[k]
	if c == nil {
		c = make(map[Outcome]int64)
		m[k] = c
	}
	c[o]++
}

func (s *MemoryRecorder) Total(o Outcome) int64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.total[o]
}

// Route retorna os contadores de "METHOD rota".
func (s *MemoryRecorder) Route(methodRoute string) map[Outcome]int64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return clone(s.byRoute[methodRoute])
}

func (s *MemoryRecorder) Client(key string) map[Outcome]int64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return clone(s.byKey[key])
}

func clone(in map[Outcome]int64) map[Outcome]int64 {
	out := make(map[Outcome]int64, len(in))
	for k, v := range in {
		out[k] = v
	}
	return out
}
