package auth

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	metricsOnce  sync.Once
	authAttempts *prometheus.CounterVec
)

// initMetrics registra las métricas del gate en el registry por defecto.
// sync.Once porque el gate puede construirse más de una vez en tests.
func initMetrics() {
	metricsOnce.Do(func() {
		authAttempts = prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "auth_attempts_total",
			Help: "Intentos de autenticación por tipo de credencial y resultado",
		}, []string{"kind", "result"}) // kind: bearer|api_key|none
		prometheus.MustRegister(authAttempts)
	})
}

func observeAuth(kind, result string) {
	initMetrics()
	authAttempts.WithLabelValues(kind, result).Inc()
}
