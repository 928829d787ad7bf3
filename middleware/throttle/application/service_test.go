package application

import (
	"context"
	"testing"
	"time"

	"novaeuropa-gateway/middleware/throttle/domain"
)

type fakeLimiter struct {
	allow  bool
	tokens float64
}

func (f fakeLimiter) Allow() bool     { return f.allow }
func (f fakeLimiter) Tokens() float64 { return f.tokens }

type fakeStore struct {
	lim  domain.Limiter
	keys []domain.Key
}

func (s *fakeStore) Get(k domain.Key) domain.Limiter {
	s.keys = append(s.keys, k)
	return s.lim
}

func TestRateService_AllowsWhenNoStore(t *testing.T) {
	dec := RateService{}.Decide(domain.NewKey("", "k"))
	if !dec.Allowed || dec.RetryAfter != 0 {
		t.Fatalf("expected allowed without retry, got %+v", dec)
	}
}

func TestRateService_ReportsRemainingTokens(t *testing.T) {
	store := &fakeStore{lim: fakeLimiter{allow: true, tokens: 3.7}}
	dec := RateService{Store: store}.Decide(domain.NewKey("bmg", "10.0.0.1"))
	if !dec.Allowed {
		t.Fatalf("expected allowed")
	}
	if dec.Remaining != 3 {
		t.Fatalf("expected remaining 3, got %d", dec.Remaining)
	}
	if len(store.keys) != 1 || store.keys[0].String() != "bmg|10.0.0.1" {
		t.Fatalf("unexpected keys %v", store.keys)
	}
}

func TestRateService_BlocksWithDefaultRetryAfter(t *testing.T) {
	dec := RateService{Store: &fakeStore{lim: fakeLimiter{tokens: -0.5}}}.Decide(domain.NewKey("", "k"))
	if dec.Allowed {
		t.Fatalf("expected blocked")
	}
	if dec.RetryAfter != time.Second {
		t.Fatalf("expected default 1s, got %s", dec.RetryAfter)
	}
	if dec.Remaining != 0 {
		t.Fatalf("negative tokens must clamp to 0, got %d", dec.Remaining)
	}
}

func TestRateService_BlocksWithConfiguredRetryAfter(t *testing.T) {
	dec := RateService{Store: &fakeStore{lim: fakeLimiter{}}, RetryAfter: 2500 * time.Millisecond}.Decide(domain.NewKey("", "k"))
	if dec.RetryAfter != 2500*time.Millisecond {
		t.Fatalf("expected 2.5s, got %s", dec.RetryAfter)
	}
}

type blockingPool struct{}

func (p *blockingPool) Acquire(ctx context.Context) (func(), bool) {
	<-ctx.Done()
	return nil, false
}
func (p *blockingPool) InUse() int { return 1 }

type immediatePool struct{ acquired int }

func (p *immediatePool) Acquire(context.Context) (func(), bool) {
	p.acquired++
	return func() {}, true
}
func (p *immediatePool) InUse() int { return p.acquired }

func TestSlotService_AllowsWhenNoPool(t *testing.T) {
	release, ok := SlotService{}.Acquire(context.Background())
	if !ok {
		t.Fatalf("expected ok")
	}
	release()
}

func TestSlotService_UsesTimeout(t *testing.T) {
	svc := SlotService{Pool: &blockingPool{}, AcquireTimeout: 10 * time.Millisecond}
	if _, ok := svc.Acquire(context.Background()); ok {
		t.Fatalf("expected timeout and ok=false")
	}
}

func TestSlotService_NoTimeoutDelegatesToPool(t *testing.T) {
	pool := &immediatePool{}
	if _, ok := (SlotService{Pool: pool}).Acquire(context.Background()); !ok {
		t.Fatalf("expected ok")
	}
	if pool.acquired != 1 {
		t.Fatalf("expected pool Acquire once, got %d", pool.acquired)
	}
}
