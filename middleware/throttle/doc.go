// Package throttle fornece middlewares net/http de rate limit e de limite de chamadas
// simultâneas, aplicados às rotas de relay do gateway.
//
// Camadas:
//
//   - domain: contratos e tipos (sem net/http)
//   - application: decisão allow/deny e aquisição de vaga com timeout
//   - infra: token bucket (x/time/rate) e semáforo
//   - throttle (este pacote): extração da chave do cliente, status/headers e eventos de tráfego
//
// Fluxo numa rota:
//
//  1. cors responde OPTIONS/405 antes de chegar aqui
//  2. extrai a chave do cliente (header/XFF/IP) e combina com o nome da rota
//  3. bloqueado pelo rate limit: 429 + Retry-After; sem vaga: 503
//  4. permitido: chama o próximo handler (relay)
package throttle
