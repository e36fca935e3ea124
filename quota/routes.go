package quota

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"logquota/quota/domain"
)

// HealthHandler responde 200 quando o ledger responde ao ping dentro do timeout.
func HealthHandler(ledger domain.Ledger, timeout time.Duration, log *slog.Logger) http.Handler {
	if timeout <= 0 {
		timeout = 2 * time.Second
	}
	if log == nil {
		log = slog.New(slog.DiscardHandler)
	}
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), timeout)
		defer cancel()
		if err := ledger.Ping(ctx); err != nil {
			log.Warn("health check failed", "error", err)
			writeMessage(w, http.StatusServiceUnavailable, "unavailable")
			return
		}
		writeMessage(w, http.StatusOK, "ok")
	})
}

type Routes struct {
	Log     http.Handler
	Health  http.Handler
	Metrics http.Handler
	// LogMiddleware envolve só o POST /log (throttle, concorrência).
	LogMiddleware []func(http.Handler) http.Handler
}

// NewMux monta as rotas. Métodos diferentes do declarado recebem 405 do ServeMux.
func NewMux(rt Routes) *http.ServeMux {
	mux := http.NewServeMux()

	logHandler := rt.Log
	for i := len(rt.LogMiddleware) - 1; i >= 0; i-- {
		logHandler = rt.LogMiddleware[i](logHandler)
	}
	mux.Handle("POST /log", logHandler)

	if rt.Health != nil {
		mux.Handle("GET /healthz", rt.Health)
	}
	if rt.Metrics != nil {
		mux.Handle("GET /metrics", rt.Metrics)
	}
	return mux
}
