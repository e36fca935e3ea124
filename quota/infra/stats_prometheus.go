package infra

import (
	"context"

	"logquota/quota/domain"

	"github.com/prometheus/client_golang/prometheus"
)

// PrometheusStats exporta decisões como contador rotulado por origem e resultado.
// O identificador nunca vira label (cardinalidade).
type PrometheusStats struct {
	decisions *prometheus.CounterVec
}

func NewPrometheusStats(reg prometheus.Registerer) (*PrometheusStats, error) {
	decisions := prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "logquota",
		Name:      "decisions_total",
		Help:      "Number of admit/reject decisions, by source (quota, throttle) and result.",
	}, []string{"source", "result"})
	if err := reg.Register(decisions); err != nil {
		return nil, err
	}
	return &PrometheusStats{decisions: decisions}, nil
}

func (s *PrometheusStats) Record(_ context.Context, ev domain.StatsEvent) error {
	result := "denied"
	if ev.Allowed {
		result = "allowed"
	}
	src := ev.Source
	if src == "" {
		src = "unknown"
	}
	s.decisions.WithLabelValues(src, result).Inc()
	return nil
}
