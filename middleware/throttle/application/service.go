// Package application contém os casos de uso do throttle (decidir, adquirir vaga)
// sem conhecer HTTP.
package application

import (
	"context"
	"time"

	"novaeuropa-gateway/middleware/throttle/domain"
)

// RateService aplica o rate limit e devolve apenas uma decisão.
type RateService struct {
	Store      domain.LimiterStore
	RetryAfter time.Duration
}

func (s RateService) Decide(key domain.Key) domain.Decision {
	if s.Store == nil {
		return domain.Decision{Allowed: true}
	}
	lim := s.Store.Get(key)
	if lim == nil {
		return domain.Decision{Allowed: true}
	}

	allowed := lim.Allow()
	remaining := int(lim.Tokens())
	if remaining < 0 {
		remaining = 0
	}
	if allowed {
		return domain.Decision{Allowed: true, Remaining: remaining}
	}

	retry := s.RetryAfter
	if retry <= 0 {
		retry = time.Second
	}
	return domain.Decision{Allowed: false, Remaining: remaining, RetryAfter: retry}
}

// SlotService aplica a regra de aquisição de vaga com timeout.
type SlotService struct {
	Pool           domain.SlotPool
	AcquireTimeout time.Duration
}

// Acquire tenta adquirir uma vaga.
// AcquireTimeout <= 0 espera até o ctx cancelar; > 0 espera no máximo esse tempo.
func (s SlotService) Acquire(ctx context.Context) (func(), bool) {
	if s.Pool == nil {
		return func() {}, true
	}
	if s.AcquireTimeout <= 0 {
		return s.Pool.Acquire(ctx)
	}

	acqCtx, cancel := context.WithTimeout(ctx, s.AcquireTimeout)
	defer cancel()
	return s.Pool.Acquire(acqCtx)
}
