package notify

import (
	"context"
	"sync"

	log "github.com/sirupsen/logrus"

	"github.com/vladislavdragonenkov/fos/internal/domain"
	"github.com/vladislavdragonenkov/fos/internal/metrics"
)

const defaultQueueSize = 256

// DispatcherOptions задаёт параметры диспетчера уведомлений.
type DispatcherOptions struct {
	Logger    *log.Entry
	Metrics   *metrics.SweepMetrics
	QueueSize int
}

// Option настраивает Dispatcher.
type Option func(*DispatcherOptions)

// WithLogger задаёт logger диспетчера.
func WithLogger(logger *log.Entry) Option {
	return func(opts *DispatcherOptions) {
		opts.Logger = logger
	}
}

// WithMetrics подключает метрики уведомлений.
func WithMetrics(m *metrics.SweepMetrics) Option {
	return func(opts *DispatcherOptions) {
		opts.Metrics = m
	}
}

// WithQueueSize задаёт ёмкость очереди уведомлений.
func WithQueueSize(size int) Option {
	return func(opts *DispatcherOptions) {
		opts.QueueSize = size
	}
}

// Dispatcher буферизует операторские уведомления и доставляет их в sink
// отдельным воркером. Канал best-effort: при переполненной очереди
// уведомление теряется с warning'ом, а переходы жизненного цикла не блокируются.
type Dispatcher struct {
	sink    domain.NotificationPublisher
	logger  *log.Entry
	metrics *metrics.SweepMetrics
	queue   chan domain.Notification
	stopCh  chan struct{}
	wg      sync.WaitGroup
}

var _ domain.NotificationPublisher = (*Dispatcher)(nil)

// NewDispatcher создаёт диспетчер поверх конечного publisher'а.
func NewDispatcher(sink domain.NotificationPublisher, options ...Option) *Dispatcher {
	opts := DispatcherOptions{QueueSize: defaultQueueSize}
	for _, option := range options {
		option(&opts)
	}

	logger := opts.Logger
	if logger == nil {
		logger = log.New().WithField("component", "notify-dispatcher")
	}

	if opts.QueueSize <= 0 {
		opts.QueueSize = defaultQueueSize
	}

	return &Dispatcher{
		sink:    sink,
		logger:  logger,
		metrics: opts.Metrics,
		queue:   make(chan domain.Notification, opts.QueueSize),
		stopCh:  make(chan struct{}),
	}
}

// Publish ставит уведомление в очередь, не блокируя вызывающего.
func (d *Dispatcher) Publish(n domain.Notification) error {
	select {
	case d.queue <- n:
		return nil
	default:
		d.logger.WithFields(log.Fields{
			"notification_id": n.ID,
			"station":         n.StationCode,
		}).Warn("notification queue full, dropping notification")
		if d.metrics != nil {
			d.metrics.RecordNotificationDropped()
		}
		return nil
	}
}

// Start запускает воркер доставки.
func (d *Dispatcher) Start(ctx context.Context) {
	d.wg.Add(1)
	go d.run(ctx)
	d.logger.Info("Notification dispatcher started")
}

// Воркер доставки работает до отмены ctx или Stop.
// Остаток очереди дочитывается перед выходом.
func (d *Dispatcher) run(ctx context.Context) {
	defer d.wg.Done()

	for {
		select {
		case <-ctx.Done():
			d.drain()
			return
		case <-d.stopCh:
			d.drain()
			return
		case n := <-d.queue:
			d.deliver(n)
		}
	}
}

// Stop останавливает воркер и дожидается его завершения.
func (d *Dispatcher) Stop() {
	close(d.stopCh)
	d.wg.Wait()
	d.logger.Info("Notification dispatcher stopped")
}

func (d *Dispatcher) drain() {
	for {
		select {
		case n := <-d.queue:
			d.deliver(n)
		default:
			return
		}
	}
}

func (d *Dispatcher) deliver(n domain.Notification) {
	if d.sink == nil {
		return
	}
	if err := d.sink.Publish(n); err != nil {
		d.logger.WithError(err).WithField("notification_id", n.ID).Warn("failed to deliver notification")
		if d.metrics != nil {
			d.metrics.RecordNotificationDropped()
		}
		return
	}
	if d.metrics != nil {
		d.metrics.RecordNotificationPublished()
	}
}
