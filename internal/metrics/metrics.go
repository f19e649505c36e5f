// Package metrics exposes Prometheus collectors for the badge service.
package metrics

import (
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	datasetLoadsTotal          *prometheus.CounterVec
	datasetIdentifiers         prometheus.Gauge
	datasetMalformedLinesTotal prometheus.Counter
	datasetLoadDurationSeconds prometheus.Histogram
	datasetReady               prometheus.Gauge

	scanPassesTotal            *prometheus.CounterVec
	scanPassDurationSeconds    *prometheus.HistogramVec
	scanElementsTotal          *prometheus.CounterVec
	scanActiveElements         prometheus.Gauge
	domNotificationsTotal      *prometheus.CounterVec
	settingsAppliesTotal       *prometheus.CounterVec
	httpRequestsTotal          *prometheus.CounterVec
	httpRequestDurationSeconds *prometheus.HistogramVec

	once sync.Once
)

// Init initializes the Prometheus metrics collectors.
// It is safe to call this function multiple times.
func Init() {
	once.Do(func() {
		datasetLoadsTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "dubbadge_dataset_loads_total",
				Help: "Dataset reloads, labeled by outcome.",
			},
			[]string{"outcome"},
		)

		datasetIdentifiers = promauto.NewGauge(
			prometheus.GaugeOpts{
				Name: "dubbadge_dataset_identifiers",
				Help: "Number of host identifiers in the committed dubbed set.",
			},
		)

		datasetMalformedLinesTotal = promauto.NewCounter(
			prometheus.CounterOpts{
				Name: "dubbadge_dataset_malformed_lines_total",
				Help: "Mapping table lines skipped because they could not be parsed.",
			},
		)

		datasetLoadDurationSeconds = promauto.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "dubbadge_dataset_load_duration_seconds",
				Help:    "Histogram of dataset reload durations.",
				Buckets: []float64{0.1, 0.25, 0.5, 1, 2, 5, 10, 30},
			},
		)

		datasetReady = promauto.NewGauge(
			prometheus.GaugeOpts{
				Name: "dubbadge_dataset_ready",
				Help: "1 when the dubbed set is ready for matching.",
			},
		)

		scanPassesTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "dubbadge_scan_passes_total",
				Help: "Scan passes, labeled by trigger and result.",
			},
			[]string{"trigger", "result"},
		)

		scanPassDurationSeconds = promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "dubbadge_scan_pass_duration_seconds",
				Help:    "Histogram of scan pass durations, labeled by trigger.",
				Buckets: []float64{0.005, 0.01, 0.05, 0.1, 0.25, 0.5, 1, 2},
			},
			[]string{"trigger"},
		)

		scanElementsTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "dubbadge_scan_elements_total",
				Help: "Card elements processed, labeled by outcome.",
			},
			[]string{"outcome"},
		)

		scanActiveElements = promauto.NewGauge(
			prometheus.GaugeOpts{
				Name: "dubbadge_scan_active_elements",
				Help: "Card elements currently being processed.",
			},
		)

		domNotificationsTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "dubbadge_dom_notifications_total",
				Help: "Observer notifications from the browser, labeled by result.",
			},
			[]string{"result"},
		)

		settingsAppliesTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "dubbadge_settings_applies_total",
				Help: "Settings applications, labeled by action.",
			},
			[]string{"action"},
		)

		httpRequestsTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "dubbadge_http_requests_total",
				Help: "Total number of HTTP requests, labeled by method and code.",
			},
			[]string{"method", "code"},
		)

		httpRequestDurationSeconds = promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "dubbadge_http_request_duration_seconds",
				Help:    "Histogram of HTTP request latencies, labeled by method and route.",
				Buckets: []float64{0.005, 0.01, 0.05, 0.1, 0.25, 0.5, 1, 2, 5},
			},
			[]string{"method", "route"},
		)
	})
}

// Handler returns an http.Handler for exposing Prometheus metrics.
func Handler() http.Handler {
	return promhttp.Handler()
}

// ObserveDatasetLoad records the outcome of a reload. identifiers is ignored
// unless the load succeeded.
func ObserveDatasetLoad(outcome string, identifiers int, duration time.Duration) {
	Init()
	datasetLoadsTotal.WithLabelValues(outcome).Inc()
	datasetLoadDurationSeconds.Observe(duration.Seconds())
	if outcome == "success" {
		datasetIdentifiers.Set(float64(identifiers))
	}
}

// ObserveMalformedLines adds skipped mapping lines.
func ObserveMalformedLines(n int) {
	Init()
	if n > 0 {
		datasetMalformedLinesTotal.Add(float64(n))
	}
}

// SetDatasetReady mirrors the readiness flag.
func SetDatasetReady(ready bool) {
	Init()
	if ready {
		datasetReady.Set(1)
		return
	}
	datasetReady.Set(0)
}

// ObserveScanPass records a pass attempt. Skipped passes carry a zero duration
// and are not added to the histogram.
func ObserveScanPass(trigger, result string, duration time.Duration) {
	Init()
	scanPassesTotal.WithLabelValues(trigger, result).Inc()
	if duration > 0 {
		scanPassDurationSeconds.WithLabelValues(trigger).Observe(duration.Seconds())
	}
}

// ObserveElement counts one processed card.
func ObserveElement(outcome string) {
	Init()
	scanElementsTotal.WithLabelValues(outcome).Inc()
}

// IncActiveElements increments the in-flight element gauge.
func IncActiveElements() {
	Init()
	scanActiveElements.Inc()
}

// DecActiveElements decrements the in-flight element gauge.
func DecActiveElements() {
	Init()
	scanActiveElements.Dec()
}

// ObserveDOMNotification counts browser observer notifications.
func ObserveDOMNotification(result string) {
	Init()
	domNotificationsTotal.WithLabelValues(result).Inc()
}

// ObserveSettingsApply counts settings applications by resulting action.
func ObserveSettingsApply(action string) {
	Init()
	settingsAppliesTotal.WithLabelValues(action).Inc()
}

// ObserveHTTPRequest increments the HTTP request metrics.
func ObserveHTTPRequest(method, route string, code int, duration time.Duration) {
	Init()
	httpRequestsTotal.WithLabelValues(method, strconv.Itoa(code)).Inc()
	httpRequestDurationSeconds.WithLabelValues(method, route).Observe(duration.Seconds())
}
