package metrics

import (
	"fmt"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// SweepMetrics содержит метрики sweep-цикла и жизненного цикла записей.
type SweepMetrics struct {
	// Счётчики циклов и исходов
	sweepCycles   prometheus.Counter
	sweepOutcomes *prometheus.CounterVec

	// Гистограммы времени выполнения
	sweepDuration  prometheus.Histogram
	entityDuration prometheus.Histogram

	// Счётчики проверок зависимостей
	dependencyChecks *prometheus.CounterVec

	// Уведомления операторского канала
	notificationsPublished prometheus.Counter
	notificationsDropped   prometheus.Counter

	// Отправки во внешнюю TMS
	sendAttempts *prometheus.CounterVec

	// Gauge отставания
	pendingEntities prometheus.Gauge
}

// NewSweepMetrics создаёт новый экземпляр метрик sweep.
func NewSweepMetrics() *SweepMetrics {
	return newSweepMetricsWithRegisterer(prometheus.DefaultRegisterer)
}

func newSweepMetricsWithRegisterer(registerer prometheus.Registerer) *SweepMetrics {
	if registerer == nil {
		registerer = prometheus.DefaultRegisterer
	}

	return &SweepMetrics{
		sweepCycles: registerCounter(registerer, prometheus.CounterOpts{
			Name: "fos_sweep_cycles_total",
			Help: "Total number of completed sweep cycles",
		}),
		sweepOutcomes: registerCounterVec(registerer, prometheus.CounterOpts{
			Name: "fos_sweep_outcomes_total",
			Help: "Total number of per-entity sweep outcomes grouped by resulting status",
		}, []string{"status"}),
		sweepDuration: registerHistogram(registerer, prometheus.HistogramOpts{
			Name:    "fos_sweep_duration_seconds",
			Help:    "Duration of a full sweep cycle in seconds",
			Buckets: prometheus.DefBuckets,
		}),
		entityDuration: registerHistogram(registerer, prometheus.HistogramOpts{
			Name:    "fos_sweep_entity_duration_seconds",
			Help:    "Duration of a single entity evaluation in seconds",
			Buckets: []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1.0, 2.5, 5.0},
		}),
		dependencyChecks: registerCounterVec(registerer, prometheus.CounterOpts{
			Name: "fos_dependency_checks_total",
			Help: "Total number of upstream table checks grouped by result",
		}, []string{"result"}),
		notificationsPublished: registerCounter(registerer, prometheus.CounterOpts{
			Name: "fos_notifications_published_total",
			Help: "Total number of operator notifications handed to the publisher",
		}),
		notificationsDropped: registerCounter(registerer, prometheus.CounterOpts{
			Name: "fos_notifications_dropped_total",
			Help: "Total number of operator notifications dropped due to a full queue",
		}),
		sendAttempts: registerCounterVec(registerer, prometheus.CounterOpts{
			Name: "fos_send_attempts_total",
			Help: "Total number of carrier send attempts grouped by result",
		}, []string{"result"}),
		pendingEntities: registerGauge(registerer, prometheus.GaugeOpts{
			Name: "fos_pending_entities",
			Help: "Number of entities currently in PENDING status",
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

func registerCounterVec(registerer prometheus.Registerer, opts prometheus.CounterOpts, labels []string) *prometheus.CounterVec {
	collector := prometheus.NewCounterVec(opts, labels)
	if err := registerer.Register(collector); err != nil {
		if alreadyRegistered, ok := err.(prometheus.AlreadyRegisteredError); ok {
			existing, ok := alreadyRegistered.ExistingCollector.(*prometheus.CounterVec)
			if !ok {
				panic(fmt.Sprintf("collector %q already registered with unexpected type", opts.Name))
			}
			return existing
		}
		panic(fmt.Sprintf("register counter vec %q: %v", opts.Name, err))
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

// RecordSweepCycle увеличивает счётчик завершённых циклов.
func (m *SweepMetrics) RecordSweepCycle() {
	m.sweepCycles.Inc()
}

// RecordSweepOutcome фиксирует итоговый статус одной записи после прохода.
func (m *SweepMetrics) RecordSweepOutcome(status string) {
	m.sweepOutcomes.WithLabelValues(status).Inc()
}

// RecordSweepDuration записывает длительность полного цикла.
func (m *SweepMetrics) RecordSweepDuration(duration time.Duration) {
	m.sweepDuration.Observe(duration.Seconds())
}

// RecordEntityDuration записывает длительность обработки одной записи.
func (m *SweepMetrics) RecordEntityDuration(duration time.Duration) {
	m.entityDuration.Observe(duration.Seconds())
}

// RecordDependencyCheck фиксирует результат одной проверки upstream-таблицы.
func (m *SweepMetrics) RecordDependencyCheck(result string) {
	m.dependencyChecks.WithLabelValues(result).Inc()
}

// RecordNotificationPublished увеличивает счётчик отправленных уведомлений.
func (m *SweepMetrics) RecordNotificationPublished() {
	m.notificationsPublished.Inc()
}

// RecordNotificationDropped увеличивает счётчик потерянных уведомлений.
func (m *SweepMetrics) RecordNotificationDropped() {
	m.notificationsDropped.Inc()
}

// RecordSendAttempt фиксирует результат обращения к TMS.
func (m *SweepMetrics) RecordSendAttempt(result string) {
	m.sendAttempts.WithLabelValues(result).Inc()
}

// SetPendingEntities выставляет текущее число записей в PENDING.
func (m *SweepMetrics) SetPendingEntities(count int) {
	m.pendingEntities.Set(float64(count))
}
