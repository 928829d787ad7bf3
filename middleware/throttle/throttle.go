package throttle

import (
	"math"
	"net/http"
	"strconv"
	"time"

	"novaeuropa-gateway/middleware/throttle/application"
	"novaeuropa-gateway/middleware/throttle/domain"
	"novaeuropa-gateway/middleware/throttle/infra"
	"novaeuropa-gateway/traffic"
)

type Options struct {
	// Route é o nome da rota (ex.: "consulta-presenca"); separa os buckets por rota.
	Route  string
	Store  domain.LimiterStore
	Events traffic.Recorder

	KeyFn              KeyFunc
	KeyHeader          string
	TrustXForwardedFor bool

	RejectStatus        int
	RetryAfter          time.Duration
	AddRateLimitHeaders bool
}

// rateInfo é implementado por stores que sabem o limite efetivo de cada rota.
type rateInfo interface {
	Limits(route string) (rps float64, burst int)
}

// retryAfterSeconds arredonda para cima, com mínimo de 1s.
func retryAfterSeconds(d time.Duration) string {
	secs := int(math.Ceil(d.Seconds()))
	if secs < 1 {
		secs = 1
	}
	return strconv.Itoa(secs)
}

// Middleware aplica o rate limit por (rota, cliente).
func Middleware(opts Options) func(next http.Handler) http.Handler {
	if opts.Store == nil {
		return func(next http.Handler) http.Handler { return next }
	}
	if opts.RejectStatus == 0 {
		opts.RejectStatus = http.StatusTooManyRequests
	}
	if opts.RetryAfter == 0 {
		opts.RetryAfter = time.Second
	}
	if opts.KeyFn == nil {
		opts.KeyFn = DefaultKeyFunc(opts.KeyHeader, opts.TrustXForwardedFor)
	}
	if opts.Events == nil {
		opts.Events = traffic.Nop{}
	}

	svc := application.RateService{Store: opts.Store, RetryAfter: opts.RetryAfter}

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			client := opts.KeyFn(r)
			dec := svc.Decide(domain.NewKey(opts.Route, client))

			if opts.AddRateLimitHeaders {
				h := w.Header()
				if ri, ok := opts.Store.(rateInfo); ok {
					rps, burst := ri.Limits(opts.Route)
					h.Set("X-RateLimit-Limit", strconv.FormatFloat(rps, 'f', -1, 64))
					h.Set("X-RateLimit-Burst", strconv.Itoa(burst))
				}
				h.Set("X-RateLimit-Remaining", strconv.Itoa(dec.Remaining))
			}

			outcome := traffic.OutcomeAllowed
			if !dec.Allowed {
				outcome = traffic.OutcomeDenied
			}
			_ = opts.Events.Record(r.Context(), traffic.Event{
				Route:   opts.Route,
				Method:  r.Method,
				Client:  client,
				Outcome: outcome,
				At:      time.Now(),
			})

			if !dec.Allowed {
				w.Header().Set("Retry-After", retryAfterSeconds(dec.RetryAfter))
				http.Error(w, http.StatusText(opts.RejectStatus), opts.RejectStatus)
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}

type ConcurrencyOptions struct {
	Route          string
	Max            int
	RejectStatus   int
	AcquireTimeout time.Duration
	Events         traffic.Recorder
}

// ConcurrencyMiddleware limita quantas requests passam ao mesmo tempo. Max <= 0 desliga.
// Todas as rotas que recebem o mesmo middleware compartilham o mesmo semáforo.
func ConcurrencyMiddleware(opts ConcurrencyOptions) func(next http.Handler) http.Handler {
	if opts.Max <= 0 {
		return func(next http.Handler) http.Handler { return next }
	}
	if opts.RejectStatus == 0 {
		opts.RejectStatus = http.StatusServiceUnavailable
	}
	if opts.Events == nil {
		opts.Events = traffic.Nop{}
	}

	svc := application.SlotService{
		Pool:           infra.NewChanPool(opts.Max),
		AcquireTimeout: opts.AcquireTimeout,
	}

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			release, ok := svc.Acquire(r.Context())
			if !ok {
				_ = opts.Events.Record(r.Context(), traffic.Event{
					Route:   opts.Route,
					Method:  r.Method,
					Outcome: traffic.OutcomeBusy,
					Status:  opts.RejectStatus,
					At:      time.Now(),
				})
				http.Error(w, http.StatusText(opts.RejectStatus), opts.RejectStatus)
				return
			}
			defer release()

			next.ServeHTTP(w, r)
		})
	}
}
