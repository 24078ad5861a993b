// Package metrics agrupa las métricas Prometheus del gate de admisión y del sign-in.
// Definidas en un paquete aparte para evitar ciclos entre jwt, admission y session.
//
// Todos los métodos aceptan receptor nil: los componentes funcionan sin métricas
// (tests, CLI verify-token).
package metrics

import (
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Metrics contiene los collectors registrados.
type Metrics struct {
	AdmissionDecisions *prometheus.CounterVec
	JWKSFetches        *prometheus.CounterVec
	JWKSKeys           prometheus.Gauge
	JWKSInvalidations  prometheus.Counter
	AllowListChecks    *prometheus.CounterVec
	AllowListLatency   prometheus.Histogram
	SignInAttempts     *prometheus.CounterVec
	SessionsActive     prometheus.Gauge

	HTTPRequests *prometheus.CounterVec
	HTTPDuration *prometheus.HistogramVec
	HTTPInflight prometheus.Gauge
}

// New crea y registra las métricas en reg (DefaultRegisterer si nil).
// Llamar una sola vez por registry: un registro duplicado devuelve error.
func New(reg prometheus.Registerer) (*Metrics, error) {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	m := &Metrics{
		AdmissionDecisions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "portalgate_admission_decisions_total",
			Help: "Decisiones del gate de admisión por resultado y motivo",
		}, []string{"outcome", "reason"}),
		JWKSFetches: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "portalgate_jwks_fetches_total",
			Help: "Fetches al endpoint JWKS por resultado (ok|error|stale)",
		}, []string{"result"}),
		JWKSKeys: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "portalgate_jwks_keys",
			Help: "Cantidad de claves de firma en el KeySet vigente",
		}),
		JWKSInvalidations: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "portalgate_jwks_invalidations_total",
			Help: "Invalidaciones forzadas del cache JWKS (kid desconocido)",
		}),
		AllowListChecks: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "portalgate_allowlist_checks_total",
			Help: "Consultas al allow-list externo por resultado",
		}, []string{"result"}),
		AllowListLatency: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "portalgate_allowlist_duration_seconds",
			Help:    "Latencia de la consulta al allow-list externo",
			Buckets: []float64{0.01, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5},
		}),
		SignInAttempts: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "portalgate_signin_attempts_total",
			Help: "Intentos de sign-in por tipo de credencial, estado final y motivo",
		}, []string{"kind", "state", "reason"}),
		SessionsActive: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "portalgate_sessions_established",
			Help: "Sesiones establecidas menos sesiones cerradas desde el arranque",
		}),

		HTTPRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "portalgate_http_requests_total",
			Help: "Requests HTTP por método, ruta y status",
		}, []string{"method", "route", "status"}),
		HTTPDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "portalgate_http_request_duration_seconds",
			Help:    "Latencia de los requests HTTP",
			Buckets: prometheus.DefBuckets,
		}, []string{"method", "route"}),
		HTTPInflight: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "portalgate_http_inflight_requests",
			Help: "Requests HTTP en curso",
		}),
	}

	for _, c := range []prometheus.Collector{
		m.AdmissionDecisions, m.JWKSFetches, m.JWKSKeys, m.JWKSInvalidations,
		m.AllowListChecks, m.AllowListLatency, m.SignInAttempts, m.SessionsActive,
		m.HTTPRequests, m.HTTPDuration, m.HTTPInflight,
	} {
		if err := reg.Register(c); err != nil {
			return nil, err
		}
	}
	return m, nil
}

// ObserveAdmission cuenta una decisión del gate.
func (m *Metrics) ObserveAdmission(outcome, reason string) {
	if m == nil {
		return
	}
	m.AdmissionDecisions.WithLabelValues(outcome, reason).Inc()
}

// ObserveJWKSFetch cuenta un fetch JWKS; keys<0 no actualiza el gauge.
func (m *Metrics) ObserveJWKSFetch(result string, keys int) {
	if m == nil {
		return
	}
	m.JWKSFetches.WithLabelValues(result).Inc()
	if keys >= 0 {
		m.JWKSKeys.Set(float64(keys))
	}
}

// ObserveInvalidation cuenta una invalidación forzada del cache.
func (m *Metrics) ObserveInvalidation() {
	if m == nil {
		return
	}
	m.JWKSInvalidations.Inc()
}

// ObserveAllowList cuenta una consulta al allow-list y su latencia.
func (m *Metrics) ObserveAllowList(result string, took time.Duration) {
	if m == nil {
		return
	}
	m.AllowListChecks.WithLabelValues(result).Inc()
	m.AllowListLatency.Observe(took.Seconds())
}

// ObserveSignIn cuenta un intento de sign-in terminado.
func (m *Metrics) ObserveSignIn(kind, state, reason string) {
	if m == nil {
		return
	}
	m.SignInAttempts.WithLabelValues(kind, state, reason).Inc()
}

// SessionOpened / SessionClosed ajustan el gauge de sesiones.
func (m *Metrics) SessionOpened() {
	if m == nil {
		return
	}
	m.SessionsActive.Inc()
}

func (m *Metrics) SessionClosed() {
	if m == nil {
		return
	}
	m.SessionsActive.Dec()
}

// SessionsExpired descuenta las sesiones que borró el janitor.
func (m *Metrics) SessionsExpired(n int) {
	if m == nil || n <= 0 {
		return
	}
	m.SessionsActive.Sub(float64(n))
}

// ObserveHTTP registra un request terminado. route es el patrón (no el path
// crudo) para acotar la cardinalidad.
func (m *Metrics) ObserveHTTP(method, route string, status int, took time.Duration) {
	if m == nil {
		return
	}
	m.HTTPRequests.WithLabelValues(method, route, strconv.Itoa(status)).Inc()
	m.HTTPDuration.WithLabelValues(method, route).Observe(took.Seconds())
}

// InflightAdd suma delta al gauge de requests en curso.
func (m *Metrics) InflightAdd(delta float64) {
	if m == nil {
		return
	}
	m.HTTPInflight.Add(delta)
}
