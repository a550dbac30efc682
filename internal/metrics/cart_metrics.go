package metrics

import (
	"fmt"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// CartMetrics содержит метрики операций сверки корзины.
type CartMetrics struct {
	// Счётчики исходов добавления
	addAttempts       prometheus.Counter
	addCreated        prometheus.Counter
	addMerged         prometheus.Counter
	conflictRecovered prometheus.Counter
	addFailed         prometheus.Counter

	// Гистограммы времени выполнения
	addDuration     prometheus.Histogram
	backendDuration *prometheus.HistogramVec

	// Счётчик событий outbox
	outboxEvents prometheus.Counter

	// Gauge для добавлений в полёте
	inFlightAdds prometheus.Gauge
}

// NewCartMetrics создаёт новый экземпляр метрик корзины.
func NewCartMetrics() *CartMetrics {
	return newCartMetricsWithRegisterer(prometheus.DefaultRegisterer)
}

func newCartMetricsWithRegisterer(registerer prometheus.Registerer) *CartMetrics {
	if registerer == nil {
		registerer = prometheus.DefaultRegisterer
	}

	return &CartMetrics{
		addAttempts: registerCounter(registerer, prometheus.CounterOpts{
			Name: "cartsync_add_attempts_total",
			Help: "Total number of add-to-cart attempts",
		}),
		addCreated: registerCounter(registerer, prometheus.CounterOpts{
			Name: "cartsync_add_created_total",
			Help: "Total number of adds that created a new cart line",
		}),
		addMerged: registerCounter(registerer, prometheus.CounterOpts{
			Name: "cartsync_add_merged_total",
			Help: "Total number of adds merged into an existing cart line",
		}),
		conflictRecovered: registerCounter(registerer, prometheus.CounterOpts{
			Name: "cartsync_conflict_recovered_total",
			Help: "Total number of uniqueness conflicts recovered by re-listing",
		}),
		addFailed: registerCounter(registerer, prometheus.CounterOpts{
			Name: "cartsync_add_failed_total",
			Help: "Total number of adds that surfaced an error",
		}),
		addDuration: registerHistogram(registerer, prometheus.HistogramOpts{
			Name:    "cartsync_add_duration_seconds",
			Help:    "Duration of add-to-cart operations in seconds",
			Buckets: prometheus.DefBuckets,
		}),
		backendDuration: registerHistogramVec(registerer, prometheus.HistogramOpts{
			Name:    "cartsync_backend_call_duration_seconds",
			Help:    "Duration of individual backend calls in seconds",
			Buckets: []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1.0, 2.5, 5.0},
		}, []string{"call"}),
		outboxEvents: registerCounter(registerer, prometheus.CounterOpts{
			Name: "cartsync_outbox_events_total",
			Help: "Total number of cart events enqueued to the outbox",
		}),
		inFlightAdds: registerGauge(registerer, prometheus.GaugeOpts{
			Name: "cartsync_inflight_adds",
			Help: "Number of add-to-cart operations currently in flight",
		}),
	}
}

func registerCounter(registerer prometheus.Registerer, opts prometheus.CounterOpts) prometheus.Counter {
	collector := prometheus.NewCounter(opts)
	if err := registerer.Register(collector); err != nil {
		if alreadyRegistered, ok := err.(prometheus.AlreadyRegisteredError); ok {
			existing, ok := alreadyRegistered.ExistingCollector.(prometheus.Counter)
			if !ok {
				panic(fmt.Sprintf("collector %q already registered with unexpected type", opts.Name))
			}
			return existing
		}
		panic(fmt.Sprintf("register counter %q: %v", opts.Name, err))
	}
	return collector
}

func registerGauge(registerer prometheus.Registerer, opts prometheus.GaugeOpts) prometheus.Gauge {
	collector := prometheus.NewGauge(opts)
	if err := registerer.Register(collector); err != nil {
		if alreadyRegistered, ok := err.(prometheus.AlreadyRegisteredError); ok {
			existing, ok := alreadyRegistered.ExistingCollector.(prometheus.Gauge)
			if !ok {
				panic(fmt.Sprintf("collector %q already registered with unexpected type", opts.Name))
			}
			return existing
		}
		panic(fmt.Sprintf("register gauge %q: %v", opts.Name, err))
	}
	return collector
}

func registerHistogram(registerer prometheus.Registerer, opts prometheus.HistogramOpts) prometheus.Histogram {
	collector := prometheus.NewHistogram(opts)
	if err := registerer.Register(collector); err != nil {
		if alreadyRegistered, ok := err.(prometheus.AlreadyRegisteredError); ok {
			existing, ok := alreadyRegistered.ExistingCollector.(prometheus.Histogram)
			if !ok {
				panic(fmt.Sprintf("collector %q already registered with unexpected type", opts.Name))
			}
			return existing
		}
		panic(fmt.Sprintf("register histogram %q: %v", opts.Name, err))
	}
	return collector
}

func registerHistogramVec(registerer prometheus.Registerer, opts prometheus.HistogramOpts, labels []string) *prometheus.HistogramVec {
	collector := prometheus.NewHistogramVec(opts, labels)
	if err := registerer.Register(collector); err != nil {
		if alreadyRegistered, ok := err.(prometheus.AlreadyRegisteredError); ok {
			existing, ok := alreadyRegistered.ExistingCollector.(*prometheus.HistogramVec)
			if !ok {
				panic(fmt.Sprintf("collector %q already registered with unexpected type", opts.Name))
			}
			return existing
		}
		panic(fmt.Sprintf("register histogram vec %q: %v", opts.Name, err))
	}
	return collector
}

// RecordAddAttempt увеличивает счётчик попыток и количество операций в полёте.
func (m *CartMetrics) RecordAddAttempt() {
	m.addAttempts.Inc()
	m.inFlightAdds.Inc()
}

// RecordAddFinished уменьшает количество операций в полёте.
func (m *CartMetrics) RecordAddFinished() {
	m.inFlightAdds.Dec()
}

// RecordAddCreated увеличивает счётчик созданных строк.
func (m *CartMetrics) RecordAddCreated() {
	m.addCreated.Inc()
}

// RecordAddMerged увеличивает счётчик слияний с существующей строкой.
func (m *CartMetrics) RecordAddMerged() {
	m.addMerged.Inc()
}

// RecordConflictRecovered увеличивает счётчик восстановленных конфликтов.
func (m *CartMetrics) RecordConflictRecovered() {
	m.conflictRecovered.Inc()
}

// RecordAddFailed увеличивает счётчик неудачных добавлений.
func (m *CartMetrics) RecordAddFailed() {
	m.addFailed.Inc()
}

// RecordAddDuration записывает время выполнения добавления.
func (m *CartMetrics) RecordAddDuration(duration time.Duration) {
	m.addDuration.Observe(duration.Seconds())
}

// RecordBackendCall записывает время отдельного вызова backend'а.
func (m *CartMetrics) RecordBackendCall(call string, duration time.Duration) {
	m.backendDuration.WithLabelValues(call).Observe(duration.Seconds())
}

// RecordOutboxEvent увеличивает счётчик событий outbox.
func (m *CartMetrics) RecordOutboxEvent() {
	m.outboxEvents.Inc()
}
