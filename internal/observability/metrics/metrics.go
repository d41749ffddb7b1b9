// Package metrics concentra los collectors Prometheus del servicio: HTTP, login,
// rate limit, auditoría y pool de base de datos.
package metrics

import (
	"net/http"
	"sync"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	metricsOnce sync.Once
	metricsErr  error

	// HTTP
	httpRequestsTotal   *prometheus.CounterVec
	httpRequestDuration *prometheus.HistogramVec
	httpInflight        *prometheus.GaugeVec

	// Dominio
	loginOutcomesTotal  *prometheus.CounterVec
	rateLimitBlocked    *prometheus.CounterVec
	auditWriteFailures  prometheus.Counter
	devicesCleanedTotal prometheus.Counter
)

// Config agrupa dependencias necesarias para exponer /metrics.
type Config struct {
	Registry prometheus.Registerer
	Gatherer prometheus.Gatherer
	// Pool opcional; si está, se exportan gauges del pgxpool.
	Pool func() *pgxpool.Pool
}

// Register inicializa los collectors y devuelve el handler para /metrics.
// Es idempotente: llamadas repetidas ignoran collectors ya registrados.
func Register(cfg Config) (http.Handler, error) {
	registry := cfg.Registry
	if registry == nil {
		registry = prometheus.DefaultRegisterer
	}

	metricsOnce.Do(func() {
		initCollectors()
		for _, c := range []prometheus.Collector{
			httpRequestsTotal, httpRequestDuration, httpInflight,
			loginOutcomesTotal, rateLimitBlocked, auditWriteFailures, devicesCleanedTotal,
		} {
			if err := registerCollector(registry, c); err != nil {
				metricsErr = err
				return
			}
		}
	})
	if metricsErr != nil {
		return nil, metricsErr
	}

	if cfg.Pool != nil {
		if err := registerCollector(registry, newPoolCollector(cfg.Pool)); err != nil {
			return nil, err
		}
	}

	if cfg.Gatherer != nil {
		return promhttp.HandlerFor(cfg.Gatherer, promhttp.HandlerOpts{}), nil
	}
	return promhttp.Handler(), nil
}

func initCollectors() {
	httpRequestsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "http_requests_total",
		Help: "Número total de requests procesadas",
	}, []string{"method", "path", "status"})

	httpRequestDuration = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "http_request_duration_seconds",
		Help:    "Latencia de los requests HTTP",
		Buckets: prometheus.DefBuckets,
	}, []string{"method", "path"})

	httpInflight = prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Name: "http_inflight_requests",
		Help: "Requests en vuelo por método y ruta",
	}, []string{"method", "path"})

	loginOutcomesTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "cinelog_login_outcomes_total",
		Help: "Resultados de login por tipo",
	}, []string{"outcome"}) // success|invalid_credentials|missing_totp|invalid_totp|rate_limited

	rateLimitBlocked = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "cinelog_rate_limit_blocked_total",
		Help: "Intentos bloqueados por el rate limiter",
	}, []string{"scope"})

	auditWriteFailures = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "cinelog_audit_write_failures_total",
		Help: "Eventos de auditoría que no pudieron persistirse",
	})

	devicesCleanedTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "cinelog_trusted_devices_cleaned_total",
		Help: "Dispositivos de confianza vencidos eliminados por limpieza",
	})
}

// registerCollector registra el collector en el registry indicado, ignorando duplicados.
func registerCollector(reg prometheus.Registerer, collector prometheus.Collector) error {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	if err := reg.Register(collector); err != nil {
		if _, ok := err.(prometheus.AlreadyRegisteredError); ok {
			return nil
		}
		return err
	}
	return nil
}

// LoginOutcome cuenta un resultado de login.
func LoginOutcome(kind string) {
	if loginOutcomesTotal != nil {
		loginOutcomesTotal.WithLabelValues(kind).Inc()
	}
}

func RateLimitBlocked(scope string) {
	if rateLimitBlocked != nil {
		rateLimitBlocked.WithLabelValues(scope).Inc()
	}
}

func AuditWriteFailed() {
	if auditWriteFailures != nil {
		auditWriteFailures.Inc()
	}
}

func DevicesCleaned(n int64) {
	if devicesCleanedTotal != nil && n > 0 {
		devicesCleanedTotal.Add(float64(n))
	}
}
