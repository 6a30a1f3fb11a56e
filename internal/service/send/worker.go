package send

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	log "github.com/sirupsen/logrus"

	"github.com/vladislavdragonenkov/fos/internal/domain"
	"github.com/vladislavdragonenkov/fos/internal/metrics"
)

const (
	defaultDispatchInterval = 10 * time.Second
	defaultMaxParallelSends = 4
	senderActor             = "send-worker"
)

// WorkerOptions задаёт параметры воркера отправки.
type WorkerOptions struct {
	Logger           *log.Entry
	Audit            domain.AuditRepository
	Notifications    domain.NotificationPublisher
	Metrics          *metrics.SweepMetrics
	DispatchInterval time.Duration
	MaxParallel      int
}

// Option настраивает Worker.
type Option func(*WorkerOptions)

// WithLogger задаёт logger воркера.
func WithLogger(logger *log.Entry) Option {
	return func(opts *WorkerOptions) {
		opts.Logger = logger
	}
}

// WithAudit подключает журнал переходов.
func WithAudit(audit domain.AuditRepository) Option {
	return func(opts *WorkerOptions) {
		opts.Audit = audit
	}
}

// WithNotifications подключает операторский канал для отклонённых заказов.
func WithNotifications(publisher domain.NotificationPublisher) Option {
	return func(opts *WorkerOptions) {
		opts.Notifications = publisher
	}
}

// WithMetrics подключает метрики отправок.
func WithMetrics(m *metrics.SweepMetrics) Option {
	return func(opts *WorkerOptions) {
		opts.Metrics = m
	}
}

// WithDispatchInterval задаёт период опроса READY-записей.
func WithDispatchInterval(interval time.Duration) Option {
	return func(opts *WorkerOptions) {
		opts.DispatchInterval = interval
	}
}

// WithMaxParallel задаёт число одновременных отправок.
func WithMaxParallel(maxParallel int) Option {
	return func(opts *WorkerOptions) {
		opts.MaxParallel = maxParallel
	}
}

// Worker забирает READY-записи и отправляет их во внешнюю TMS.
// Успех фиксируется как SENT вместе с ответом TMS; бизнес-отказ — как FAILED.
type Worker struct {
	repo             domain.EntityRepository
	sender           domain.SendService
	audit            domain.AuditRepository
	notifications    domain.NotificationPublisher
	metrics          *metrics.SweepMetrics
	logger           *log.Entry
	dispatchInterval time.Duration
	maxParallel      int
}

// NewWorker создаёт воркер отправки.
func NewWorker(repo domain.EntityRepository, sender domain.SendService, options ...Option) *Worker {
	opts := WorkerOptions{
		DispatchInterval: defaultDispatchInterval,
		MaxParallel:      defaultMaxParallelSends,
	}
	for _, option := range options {
		option(&opts)
	}

	logger := opts.Logger
	if logger == nil {
		logger = log.New().WithField("component", "send-worker")
	}

	if opts.DispatchInterval <= 0 {
		opts.DispatchInterval = defaultDispatchInterval
	}
	if opts.MaxParallel <= 0 {
		opts.MaxParallel = defaultMaxParallelSends
	}

	return &Worker{
		repo:             repo,
		sender:           sender,
		audit:            opts.Audit,
		notifications:    opts.Notifications,
		metrics:          opts.Metrics,
		logger:           logger,
		dispatchInterval: opts.DispatchInterval,
		maxParallel:      opts.MaxParallel,
	}
}

// Run запускает периодическую отправку до отмены ctx.
func (w *Worker) Run(ctx context.Context) {
	if w.repo == nil || w.sender == nil {
		w.logger.Warn("send worker is disabled: repo or sender is nil")
		return
	}

	ticker := time.NewTicker(w.dispatchInterval)
	defer ticker.Stop()

	w.ProcessOnce(ctx)
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			w.ProcessOnce(ctx)
		}
	}
}

// ProcessOnce выполняет один цикл отправки READY-записей.
func (w *Worker) ProcessOnce(ctx context.Context) {
	if ctx.Err() != nil {
		return
	}

	entities, err := w.repo.ListByStatus(domain.StatusReady)
	if err != nil {
		w.logger.WithError(err).Error("failed to list ready entities")
		return
	}
	if len(entities) == 0 {
		return
	}

	limit := w.maxParallel
	if limit > len(entities) {
		limit = len(entities)
	}

	semaphore := make(chan struct{}, limit)
	var wg sync.WaitGroup
	for _, entity := range entities {
		if ctx.Err() != nil {
			break
		}

		wg.Add(1)
		semaphore <- struct{}{}
		go func(key string) {
			defer wg.Done()
			defer func() { <-semaphore }()

			if err := w.dispatchEntity(key); err != nil {
				w.logger.WithError(err).WithField("entity_key", key).Error("dispatch of entity failed")
			}
		}(entity.Key)
	}

	wg.Wait()
}

// dispatchEntity отправляет одну запись. Транспортный сбой оставляет запись
// в READY до следующего цикла; бизнес-отказ TMS переводит её в FAILED.
func (w *Worker) dispatchEntity(key string) error {
	entity, err := w.repo.Get(key)
	if err != nil {
		return fmt.Errorf("get entity: %w", err)
	}
	if entity.Lifecycle != domain.StatusReady {
		return nil
	}

	response, sendErr := w.sender.Send(entity)
	if sendErr != nil {
		if domain.IsSendRejected(sendErr) {
			w.recordAttempt("rejected")
			return w.markFailed(key, sendErr)
		}
		// Транспортный сбой: запись остаётся READY, цикл повторит отправку.
		w.recordAttempt("transport_error")
		return fmt.Errorf("send to carrier: %w", sendErr)
	}

	updated, err := w.repo.Update(key, func(e *domain.TrackedEntity) {
		if e.Lifecycle != domain.StatusReady {
			return
		}
		e.Lifecycle = domain.StatusSent
		e.Response = response
		e.LastUpdatedAt = time.Now().UTC()
		e.LastUpdatedBy = senderActor
	})
	if err != nil {
		return fmt.Errorf("mark entity sent: %w", err)
	}

	w.recordAttempt("sent")
	w.appendTransition(updated.Key, domain.StatusReady, updated.Lifecycle, "dispatched to carrier")

	w.logger.WithFields(log.Fields{
		"entity_key":  updated.Key,
		"entity_type": updated.EntityType,
	}).Info("Entity dispatched to carrier")

	return nil
}

func (w *Worker) markFailed(key string, cause error) error {
	updated, err := w.repo.Update(key, func(e *domain.TrackedEntity) {
		if e.Lifecycle != domain.StatusReady {
			return
		}
		e.Lifecycle = domain.StatusFailed
		e.LastUpdatedAt = time.Now().UTC()
		e.LastUpdatedBy = senderActor
	})
	if err != nil {
		return fmt.Errorf("mark entity failed: %w", err)
	}

	w.appendTransition(updated.Key, domain.StatusReady, updated.Lifecycle, cause.Error())
	w.notifyRejection(updated, cause)

	return nil
}

func (w *Worker) appendTransition(key string, from, to domain.LifecycleStatus, reason string) {
	if w.audit == nil || from == to {
		return
	}

	event := domain.TransitionEvent{
		ID:        uuid.NewString(),
		EntityKey: key,
		From:      from,
		To:        to,
		Actor:     senderActor,
		Reason:    reason,
		Occurred:  time.Now().UTC(),
	}
	if err := w.audit.Append(event); err != nil {
		w.logger.WithError(err).WithField("entity_key", key).Warn("failed to append transition event")
	}
}

func (w *Worker) notifyRejection(entity domain.TrackedEntity, cause error) {
	if w.notifications == nil {
		return
	}

	notification := domain.Notification{
		ID:          uuid.NewString(),
		Subject:     fmt.Sprintf("Carrier rejected shipment %s", entity.Key),
		Body:        fmt.Sprintf("Order %s was rejected by the carrier: %v.\nTo retry, set Status to PENDING and reset RetryCount to 0.", entity.Key, cause),
		StationCode: entity.Snapshot.ControlStation,
		CreatedAt:   time.Now().UTC(),
	}
	if err := w.notifications.Publish(notification); err != nil {
		w.logger.WithError(err).WithField("entity_key", entity.Key).Warn("failed to publish rejection notification")
	}
}

func (w *Worker) recordAttempt(result string) {
	if w.metrics != nil {
		w.metrics.RecordSendAttempt(result)
	}
}
