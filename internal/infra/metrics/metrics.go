// Package metrics exposes the authentication counters of the service.
package metrics

import (
	"net/http"

	kitmetrics "github.com/go-kit/kit/metrics"
	"github.com/go-kit/kit/metrics/discard"
	kitprometheus "github.com/go-kit/kit/metrics/prometheus"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Label names used by the counters.
const (
	LabelOutcome = "outcome"
	LabelReason  = "reason"
)

// MetricsConfig holds configuration for the metrics registry.
type MetricsConfig struct {
	// Namespace prefixes every metric name
	Namespace string `env:"NAMESPACE" default:"tokenauth"`

	// ServerAddr is the separate listen address of the /metrics endpoint, empty disables it
	ServerAddr string `env:"SERVER_ADDR" default:"127.0.0.1:9090"`
}

// AuthMetrics groups the counters updated by the auth services.
type AuthMetrics struct {
	// TokenValidations counts token validations by outcome (ok, blank, expired, ...)
	TokenValidations kitmetrics.Counter
	// Signins counts signin attempts by outcome
	Signins kitmetrics.Counter
	// Signups counts signup attempts by outcome
	Signups kitmetrics.Counter
	// GuardRejections counts authorization rejections by reason
	GuardRejections kitmetrics.Counter

	tokenValidations *prometheus.CounterVec
	signins          *prometheus.CounterVec
	signups          *prometheus.CounterVec
	guardRejections  *prometheus.CounterVec
}

// NewAuthMetrics creates the counters and registers them with reg.
func NewAuthMetrics(reg prometheus.Registerer, cfg MetricsConfig) (*AuthMetrics, error) {
	m := &AuthMetrics{
		tokenValidations: newCounterVec(cfg.Namespace, "token_validations_total", "Token validations by outcome.", LabelOutcome),
		signins:          newCounterVec(cfg.Namespace, "signins_total", "Signin attempts by outcome.", LabelOutcome),
		signups:          newCounterVec(cfg.Namespace, "signups_total", "Signup attempts by outcome.", LabelOutcome),
		guardRejections:  newCounterVec(cfg.Namespace, "guard_rejections_total", "Authorization rejections by reason.", LabelReason),
	}

	for _, c := range []prometheus.Collector{m.tokenValidations, m.signins, m.signups, m.guardRejections} {
		if err := reg.Register(c); err != nil {
			return nil, err //nolint:wrapcheck
		}
	}

	m.TokenValidations = kitprometheus.NewCounter(m.tokenValidations)
	m.Signins = kitprometheus.NewCounter(m.signins)
	m.Signups = kitprometheus.NewCounter(m.signups)
	m.GuardRejections = kitprometheus.NewCounter(m.guardRejections)

	return m, nil
}

// NewNopAuthMetrics returns counters that discard every observation.
func NewNopAuthMetrics() *AuthMetrics {
	return &AuthMetrics{
		TokenValidations: discard.NewCounter(),
		Signins:          discard.NewCounter(),
		Signups:          discard.NewCounter(),
		GuardRejections:  discard.NewCounter(),
	}
}

// NewRegistry returns a registry preloaded with the Go runtime and process collectors.
func NewRegistry() *prometheus.Registry {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	return reg
}

// Handler serves the metrics gathered by g at /metrics in the Prometheus exposition format.
// It is meant for a listener separate from the public API.
func Handler(g prometheus.Gatherer) http.Handler {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(g, promhttp.HandlerOpts{})) //nolint:exhaustruct

	return mux
}

func newCounterVec(namespace, name, help, label string) *prometheus.CounterVec {
	return prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      name,
		Help:      help,
	}, []string{label})
}
