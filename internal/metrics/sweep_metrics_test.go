package metrics

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	dto "github.com/prometheus/client_model/go"
)

func TestNewSweepMetrics(t *testing.T) {
	metrics := NewSweepMetrics()

	if metrics == nil {
		t.Fatal("NewSweepMetrics should not return nil")
	}

	if metrics.sweepCycles == nil {
		t.Error("sweepCycles counter should not be nil")
	}

	if metrics.sweepOutcomes == nil {
		t.Error("sweepOutcomes counter vec should not be nil")
	}

	if metrics.sweepDuration == nil {
		t.Error("sweepDuration histogram should not be nil")
	}

	if metrics.entityDuration == nil {
		t.Error("entityDuration histogram should not be nil")
	}

	if metrics.dependencyChecks == nil {
		t.Error("dependencyChecks counter vec should not be nil")
	}

	if metrics.notificationsPublished == nil {
		t.Error("notificationsPublished counter should not be nil")
	}

	if metrics.notificationsDropped == nil {
		t.Error("notificationsDropped counter should not be nil")
	}

	if metrics.sendAttempts == nil {
		t.Error("sendAttempts counter vec should not be nil")
	}

	if metrics.pendingEntities == nil {
		t.Error("pendingEntities gauge should not be nil")
	}
}

func TestNewSweepMetrics_ReregisterReturnsExisting(t *testing.T) {
	reg := prometheus.NewRegistry()

	first := newSweepMetricsWithRegisterer(reg)
	second := newSweepMetricsWithRegisterer(reg)

	if first.sweepCycles != second.sweepCycles {
		t.Error("expected re-registration to reuse the existing counter")
	}
}

func TestRecordSweepOutcome(t *testing.T) {
	reg := prometheus.NewRegistry()

	sweepOutcomes := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "test_sweep_outcomes_total",
		Help: "Test counter vec",
	}, []string{"status"})

	reg.MustRegister(sweepOutcomes)

	metrics := &SweepMetrics{
		sweepOutcomes: sweepOutcomes,
	}

	metrics.RecordSweepOutcome("PENDING")
	metrics.RecordSweepOutcome("PENDING")
	metrics.RecordSweepOutcome("READY")

	metric := &dto.Metric{}
	if err := sweepOutcomes.WithLabelValues("PENDING").Write(metric); err != nil {
		t.Fatalf("failed to write metric: %v", err)
	}

	if metric.Counter.GetValue() != 2.0 {
		t.Errorf("expected counter value 2.0, got %f", metric.Counter.GetValue())
	}
}

func TestRecordSweepDuration(t *testing.T) {
	reg := prometheus.NewRegistry()

	sweepDuration := prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "test_sweep_duration_seconds",
		Help:    "Test histogram",
		Buckets: prometheus.DefBuckets,
	})

	reg.MustRegister(sweepDuration)

	metrics := &SweepMetrics{
		sweepDuration: sweepDuration,
	}

	metrics.RecordSweepDuration(100 * time.Millisecond)
	metrics.RecordSweepDuration(400 * time.Millisecond)

	metric := &dto.Metric{}
	if err := sweepDuration.Write(metric); err != nil {
		t.Fatalf("failed to write metric: %v", err)
	}

	if metric.Histogram.GetSampleCount() != 2 {
		t.Errorf("expected 2 samples, got %d", metric.Histogram.GetSampleCount())
	}

	// Check sum is approximately correct (0.1 + 0.4 = 0.5)
	sum := metric.Histogram.GetSampleSum()
	if sum < 0.45 || sum > 0.55 {
		t.Errorf("expected sum around 0.5, got %f", sum)
	}
}

func TestSetPendingEntities(t *testing.T) {
	reg := prometheus.NewRegistry()

	pendingEntities := prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "test_pending_entities",
		Help: "Test gauge",
	})

	reg.MustRegister(pendingEntities)

	metrics := &SweepMetrics{
		pendingEntities: pendingEntities,
	}

	metrics.SetPendingEntities(12)
	metrics.SetPendingEntities(7)

	gaugeMetric := &dto.Metric{}
	if err := pendingEntities.Write(gaugeMetric); err != nil {
		t.Fatalf("failed to write gauge: %v", err)
	}

	if gaugeMetric.Gauge.GetValue() != 7.0 {
		t.Errorf("expected gauge value 7.0, got %f", gaugeMetric.Gauge.GetValue())
	}
}

func TestRecordNotificationCounters(t *testing.T) {
	reg := prometheus.NewRegistry()

	published := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "test_notifications_published_total",
		Help: "Test counter",
	})
	dropped := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "test_notifications_dropped_total",
		Help: "Test counter",
	})

	reg.MustRegister(published, dropped)

	metrics := &SweepMetrics{
		notificationsPublished: published,
		notificationsDropped:   dropped,
	}

	metrics.RecordNotificationPublished()
	metrics.RecordNotificationPublished()
	metrics.RecordNotificationDropped()

	metric := &dto.Metric{}
	if err := published.Write(metric); err != nil {
		t.Fatalf("failed to write metric: %v", err)
	}
	if metric.Counter.GetValue() != 2.0 {
		t.Errorf("expected 2 published, got %f", metric.Counter.GetValue())
	}

	metric = &dto.Metric{}
	if err := dropped.Write(metric); err != nil {
		t.Fatalf("failed to write metric: %v", err)
	}
	if metric.Counter.GetValue() != 1.0 {
		t.Errorf("expected 1 dropped, got %f", metric.Counter.GetValue())
	}
}

func TestRecordSendAttempt(t *testing.T) {
	reg := prometheus.NewRegistry()

	sendAttempts := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "test_send_attempts_total",
		Help: "Test counter vec",
	}, []string{"result"})

	reg.MustRegister(sendAttempts)

	metrics := &SweepMetrics{
		sendAttempts: sendAttempts,
	}

	metrics.RecordSendAttempt("sent")
	metrics.RecordSendAttempt("rejected")
	metrics.RecordSendAttempt("sent")

	metric := &dto.Metric{}
	if err := sendAttempts.WithLabelValues("sent").Write(metric); err != nil {
		t.Fatalf("failed to write metric: %v", err)
	}

	if metric.Counter.GetValue() != 2.0 {
		t.Errorf("expected counter value 2.0, got %f", metric.Counter.GetValue())
	}
}
