package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "composition"

// Outcome 標籤值
const (
	OutcomeSuccess  = "success"
	OutcomeFailure  = "failure"
	OutcomeTimeout  = "timeout"
	OutcomeCached   = "cached"
	OutcomeFallback = "fallback"
	OutcomeEmpty    = "empty"
)

// Metrics 應用指標，使用獨立 registry 避免重複註冊。
// nil *Metrics 的所有方法皆為 no-op。
type Metrics struct {
	registry           *prometheus.Registry
	providerAttempts   *prometheus.CounterVec
	providerDuration   *prometheus.HistogramVec
	catalogLookups     *prometheus.CounterVec
	pageFetches        *prometheus.CounterVec
	resolutions        *prometheus.CounterVec
	resolutionDuration *prometheus.HistogramVec
	queueInFlight      prometheus.Gauge
}

// New 建立並註冊所有指標
func New() *Metrics {
	reg := prometheus.NewRegistry()
	m := &Metrics{
		registry: reg,
		providerAttempts: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "provider_attempts_total",
			Help:      "Language-model provider attempts by provider and outcome.",
		}, []string{"provider", "outcome"}),
		providerDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "provider_duration_seconds",
			Help:      "Language-model call latency.",
			Buckets:   []float64{0.5, 1, 2, 5, 10, 20, 40, 60, 120},
		}, []string{"provider"}),
		catalogLookups: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "catalog_lookups_total",
			Help:      "Catalog lookups by source and outcome.",
		}, []string{"source", "outcome"}),
		pageFetches: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "page_fetches_total",
			Help:      "Reference page fetches by outcome.",
		}, []string{"outcome"}),
		resolutions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "resolutions_total",
			Help:      "Composition resolutions by kind and outcome.",
		}, []string{"kind", "outcome"}),
		resolutionDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "resolution_duration_seconds",
			Help:      "End-to-end composition resolution latency.",
			Buckets:   prometheus.ExponentialBuckets(0.05, 2, 12),
		}, []string{"kind"}),
		queueInFlight: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "provider_calls_in_flight",
			Help:      "Provider calls currently holding a queue slot.",
		}),
	}

	reg.MustRegister(
		m.providerAttempts,
		m.providerDuration,
		m.catalogLookups,
		m.pageFetches,
		m.resolutions,
		m.resolutionDuration,
		m.queueInFlight,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return m
}

// Handler 回傳 /metrics handler
func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return promhttp.Handler()
	}
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}

// Registry 回傳底層 registry
func (m *Metrics) Registry() *prometheus.Registry {
	if m == nil {
		return nil
	}
	return m.registry
}

// ObserveProvider 記錄一次供應商調用
func (m *Metrics) ObserveProvider(provider, outcome string, d time.Duration) {
	if m == nil {
		return
	}
	m.providerAttempts.WithLabelValues(provider, outcome).Inc()
	if outcome != OutcomeCached {
		m.providerDuration.WithLabelValues(provider).Observe(d.Seconds())
	}
}

// ObserveCatalog 記錄一次型錄查詢
func (m *Metrics) ObserveCatalog(source, outcome string) {
	if m == nil {
		return
	}
	m.catalogLookups.WithLabelValues(source, outcome).Inc()
}

// ObservePageFetch 記錄一次網頁擷取
func (m *Metrics) ObservePageFetch(outcome string) {
	if m == nil {
		return
	}
	m.pageFetches.WithLabelValues(outcome).Inc()
}

// ObserveResolution 記錄一次組成解析
func (m *Metrics) ObserveResolution(kind, outcome string, d time.Duration) {
	if m == nil {
		return
	}
	m.resolutions.WithLabelValues(kind, outcome).Inc()
	m.resolutionDuration.WithLabelValues(kind).Observe(d.Seconds())
}

// QueueAcquired 佔用一個隊列位置
func (m *Metrics) QueueAcquired() {
	if m == nil {
		return
	}
	m.queueInFlight.Inc()
}

// QueueReleased 釋放一個隊列位置
func (m *Metrics) QueueReleased() {
	if m == nil {
		return
	}
	m.queueInFlight.Dec()
}
