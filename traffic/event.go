// Package traffic registra eventos de tráfego do gateway: o resultado de cada chamada
// ao upstream e as decisões do throttle (permitido, negado, sem vaga).
//
// Implementações disponíveis: memória (testes), Redis (contadores agregados) e
// Prometheus (/metrics). Gravar evento é best-effort: erro nunca derruba a request.
package traffic

import (
	"context"
	"errors"
	"time"
)

type Outcome string

const (
	// Relay
	OutcomeOK         Outcome = "ok"
	OutcomeTimeout    Outcome = "timeout"
	OutcomeBadGateway Outcome = "bad_gateway"
	OutcomeCanceled   Outcome = "canceled"

	// Throttle
	OutcomeAllowed Outcome = "allowed"
	OutcomeDenied  Outcome = "denied"
	OutcomeBusy    Outcome = "busy"
)

// Event descreve uma ocorrência no gateway.
//
// Observação: cuidado com cardinalidade. Route é o nome da rota configurada
// (ex.: "consulta-presenca"), nunca o path bruto com sufixos.
type Event struct {
	Route   string
	Method  string
	Client  string
	Outcome Outcome
	Status  int

	Duration time.Duration
	At       time.Time
}

type Recorder interface {
	Record(ctx context.Context, ev Event) error
}

type multi []Recorder

// Multi encaminha o evento para todos os recorders não nulos.
func Multi(recs ...Recorder) Recorder {
	var out multi
	for _, r := range recs {
		if r != nil {
			out = append(out, r)
		}
	}
	return out
}

func (m multi) Record(ctx context.Context, ev Event) error {
	var errs []error
	for _, r := range m {
		if err := r.Record(ctx, ev); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// Nop descarta eventos.
type Nop struct{}

func (Nop) Record(context.Context, Event) error { return nil }
