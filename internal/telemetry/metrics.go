package telemetry

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/prometheus/client_golang/prometheus/push"
)

// Результаты команды для rcctl_commands_total.
const (
	ResultSuccess = "success"
	ResultError   = "error"
)

// Metrics — метрики одного запуска CLI.
//
// Процесс живёт секунды, поэтому scrape невозможен: метрики собираются
// в собственный реестр и отправляются в Pushgateway после команды.
type Metrics struct {
	registry *prometheus.Registry

	APIRequests *prometheus.CounterVec
	APIDuration *prometheus.HistogramVec
	Commands    *prometheus.CounterVec
}

// NewMetrics создаёт метрики в новом реестре.
func NewMetrics() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		APIRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "rcctl_api_requests_total",
			Help: "Total Remote Config API requests by operation and HTTP status code",
		}, []string{"operation", "code"}),
		APIDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "rcctl_api_request_duration_seconds",
			Help:    "Remote Config API request latency",
			Buckets: prometheus.DefBuckets,
		}, []string{"operation"}),
		Commands: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "rcctl_commands_total",
			Help: "Total rcctl command invocations by result",
		}, []string{"command", "result"}),
	}

	m.registry.MustRegister(m.APIRequests, m.APIDuration, m.Commands)
	return m
}

// Registry возвращает реестр метрик.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// InstrumentRoundTripper оборачивает транспорт счётчиком и гистограммой.
// operation извлекает имя операции API из контекста запроса.
func (m *Metrics) InstrumentRoundTripper(next http.RoundTripper, operation func(context.Context) string) http.RoundTripper {
	if m == nil {
		return next
	}
	if next == nil {
		next = http.DefaultTransport
	}

	label := promhttp.WithLabelFromCtx("operation", operation)
	return promhttp.InstrumentRoundTripperCounter(m.APIRequests,
		promhttp.InstrumentRoundTripperDuration(m.APIDuration, next, label),
		label,
	)
}

// ObserveCommand учитывает завершение команды.
func (m *Metrics) ObserveCommand(command string, err error) {
	if m == nil {
		return
	}
	result := ResultSuccess
	if err != nil {
		result = ResultError
	}
	m.Commands.WithLabelValues(command, result).Inc()
}

// Push отправляет метрики в Pushgateway.
func (m *Metrics) Push(ctx context.Context, gatewayURL, job string) error {
	if m == nil {
		return nil
	}
	if gatewayURL == "" {
		return errors.New("pushgateway url is empty")
	}

	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	err := push.New(gatewayURL, job).
		Gatherer(m.registry).
		PushContext(ctx)
	if err != nil {
		return fmt.Errorf("push metrics to %s: %w", gatewayURL, err)
	}
	return nil
}
