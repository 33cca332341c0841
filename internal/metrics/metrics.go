package metrics

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"
)

// Metrics holds the collectors exported by the conversion server. A nil
// *Metrics is valid and records nothing.
type Metrics struct {
	registry *prometheus.Registry

	// Connections
	ActiveConnections prometheus.Gauge
	ConnectionsTotal  prometheus.Counter
	SessionsClosed    *prometheus.CounterVec

	// Requests
	RequestsTotal   *prometheus.CounterVec
	RequestDuration *prometheus.HistogramVec

	// Rate table
	RateRefreshTotal    *prometheus.CounterVec
	RateTableAge        prometheus.Gauge
	RateTableCurrencies prometheus.Gauge
}

// New registers every collector on a fresh registry.
func New() *Metrics {
	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	factory := promauto.With(reg)

	return &Metrics{
		registry: reg,

		ActiveConnections: factory.NewGauge(prometheus.GaugeOpts{
			Name: "fxconv_connections_active",
			Help: "Connections currently being served",
		}),
		ConnectionsTotal: factory.NewCounter(prometheus.CounterOpts{
			Name: "fxconv_connections_total",
			Help: "Connections accepted since start",
		}),
		SessionsClosed: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "fxconv_sessions_closed_total",
				Help: "Closed sessions by reason",
			},
			[]string{"reason"},
		),

		RequestsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "fxconv_requests_total",
				Help: "Conversion requests by protocol and outcome",
			},
			[]string{"protocol", "status"},
		),
		RequestDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "fxconv_request_duration_seconds",
				Help:    "Time from decoded request to written response",
				Buckets: prometheus.ExponentialBuckets(0.0001, 4, 10), // 100µs .. ~26s
			},
			[]string{"protocol"},
		),

		RateRefreshTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "fxconv_rate_refresh_total",
				Help: "Rate table refreshes by result (primary, fallback)",
			},
			[]string{"result"},
		),
		RateTableAge: factory.NewGauge(prometheus.GaugeOpts{
			Name: "fxconv_rate_table_age_seconds",
			Help: "Age of the published rate table",
		}),
		RateTableCurrencies: factory.NewGauge(prometheus.GaugeOpts{
			Name: "fxconv_rate_table_currencies",
			Help: "Currencies in the published rate table",
		}),
	}
}

// ConnectionOpened records an accepted connection.
func (m *Metrics) ConnectionOpened() {
	if m == nil {
		return
	}
	m.ConnectionsTotal.Inc()
	m.ActiveConnections.Inc()
}

// ConnectionClosed records a finished session.
func (m *Metrics) ConnectionClosed(reason string) {
	if m == nil {
		return
	}
	m.ActiveConnections.Dec()
	m.SessionsClosed.WithLabelValues(reason).Inc()
}

// RecordRequest records one answered request.
func (m *Metrics) RecordRequest(protocol, status string, elapsed time.Duration) {
	if m == nil {
		return
	}
	m.RequestsTotal.WithLabelValues(protocol, status).Inc()
	m.RequestDuration.WithLabelValues(protocol).Observe(elapsed.Seconds())
}

// RecordRefresh records a published rate table.
func (m *Metrics) RecordRefresh(fallback bool, currencies int) {
	if m == nil {
		return
	}
	result := "primary"
	if fallback {
		result = "fallback"
	}
	m.RateRefreshTotal.WithLabelValues(result).Inc()
	m.RateTableCurrencies.Set(float64(currencies))
}

// SetRateAge updates the age gauge.
func (m *Metrics) SetRateAge(age time.Duration) {
	if m == nil {
		return
	}
	m.RateTableAge.Set(age.Seconds())
}

// Registry exposes the underlying registry.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// Handler serves the registry in the Prometheus text format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// Serve exposes /metrics on addr until ctx is cancelled.
func (m *Metrics) Serve(ctx context.Context, addr string, logger zerolog.Logger) error {
	mux := http.NewServeMux()
	mux.Handle("/metrics", m.Handler())

	srv := &http.Server{
		Addr:              addr,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info().Str("addr", addr).Msg("metrics endpoint listening")
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	}
}
