package domain

// Camada de domínio do throttle.
//
// Regras e contratos (interfaces/tipos) sem dependência de net/http.

import (
	"context"
	"time"
)

// Key identifica quem está sendo limitado. Rotas diferentes têm buckets independentes.
type Key struct {
	Route  string
	Client string
}

func NewKey(route, client string) Key {
	return Key{Route: route, Client: client}
}

func (k Key) String() string {
	if k.Route == "" {
		return k.Client
	}
	return k.Route + "|" + k.Client
}

// Limiter decide se uma ação é permitida agora e quantas fichas restam.
type Limiter interface {
	Allow() bool
	Tokens() float64
}

// LimiterStore obtém um limiter por chave (rota + IP ou API key).
type LimiterStore interface {
	Get(Key) Limiter
}

type Decision struct {
	Allowed bool
	// Remaining é o número (inteiro, truncado) de fichas após a decisão.
	Remaining int
	// RetryAfter é o valor de Retry-After quando bloquear. 0 = sem recomendação.
	RetryAfter time.Duration
}

// SlotPool representa um recurso com capacidade finita (chamadas simultâneas ao upstream).
//
// Acquire bloqueia até conseguir uma vaga ou até o ctx encerrar.
// Ao adquirir, retorna uma função de release que deve ser chamada exatamente uma vez.
type SlotPool interface {
	Acquire(ctx context.Context) (release func(), ok bool)
	InUse() int
}
