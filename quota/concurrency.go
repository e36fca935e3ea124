package quota

import (
	"net/http"
	"time"

	"logquota/quota/application"
	"logquota/quota/domain"
	"logquota/quota/infra"
)

type ConcurrencyOptions struct {
	Max            int
	RejectStatus   int
	AcquireTimeout time.Duration
	Stats          domain.StatsStore
	KeyFn          KeyFunc
}

// ConcurrencyMiddleware limita requests simultâneos. Max <= 0 desliga.
func ConcurrencyMiddleware(opts ConcurrencyOptions) func(next http.Handler) http.Handler {
	if opts.Max <= 0 {
		return func(next http.Handler) http.Handler { return next }
	}
	if opts.RejectStatus == 0 {
		opts.RejectStatus = http.StatusServiceUnavailable
	}
	if opts.KeyFn == nil {
		opts.KeyFn = DefaultKeyFunc(false)
	}

	svc := application.ConcurrencyService{
		Pool:           infra.NewChanPool(opts.Max),
		AcquireTimeout: opts.AcquireTimeout,
		Stats:          opts.Stats,
	}

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			release, ok := svc.Acquire(r.Context(), domain.Key(opts.KeyFn(r)))
			if !ok {
				writeMessage(w, opts.RejectStatus, http.StatusText(opts.RejectStatus))
				return
			}
			defer release()

			next.ServeHTTP(w, r)
		})
	}
}
