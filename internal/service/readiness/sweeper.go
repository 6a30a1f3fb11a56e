package readiness

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	log "github.com/sirupsen/logrus"

	"github.com/vladislavdragonenkov/fos/internal/domain"
	"github.com/vladislavdragonenkov/fos/internal/metrics"
)

const (
	defaultSweepInterval      = 30 * time.Second
	defaultMaxParallelSweeps  = 8
	sweeperActor              = "sweeper"
	failureRemediationMessage = "To retry, set Status to PENDING and reset RetryCount to 0."
)

// SweeperOptions задаёт параметры sweep-цикла.
type SweeperOptions struct {
	Logger        *log.Entry
	Audit         domain.AuditRepository
	Notifications domain.NotificationPublisher
	Metrics       *metrics.SweepMetrics
	SweepInterval time.Duration
	MaxParallel   int
	// TypeFilter ограничивает проход подмножеством типов записей;
	// пустой фильтр означает все типы.
	TypeFilter []domain.EntityType
	// StartDelay откладывает первый проход после запуска,
	// давая intake время наполнить хранилище.
	StartDelay time.Duration
}

// SweeperOption настраивает Sweeper.
type SweeperOption func(*SweeperOptions)

// WithLogger задаёт logger для sweeper'а.
func WithLogger(logger *log.Entry) SweeperOption {
	return func(opts *SweeperOptions) {
		opts.Logger = logger
	}
}

// WithAudit подключает журнал переходов жизненного цикла.
func WithAudit(audit domain.AuditRepository) SweeperOption {
	return func(opts *SweeperOptions) {
		opts.Audit = audit
	}
}

// WithNotifications подключает операторский канал для FAILED-записей.
func WithNotifications(publisher domain.NotificationPublisher) SweeperOption {
	return func(opts *SweeperOptions) {
		opts.Notifications = publisher
	}
}

// WithMetrics подключает метрики sweep-цикла.
func WithMetrics(m *metrics.SweepMetrics) SweeperOption {
	return func(opts *SweeperOptions) {
		opts.Metrics = m
	}
}

// WithSweepInterval задаёт период между проходами.
func WithSweepInterval(interval time.Duration) SweeperOption {
	return func(opts *SweeperOptions) {
		opts.SweepInterval = interval
	}
}

// WithMaxParallel задаёт число одновременно обрабатываемых записей.
func WithMaxParallel(maxParallel int) SweeperOption {
	return func(opts *SweeperOptions) {
		opts.MaxParallel = maxParallel
	}
}

// WithTypeFilter ограничивает проход заданными типами записей.
func WithTypeFilter(types ...domain.EntityType) SweeperOption {
	return func(opts *SweeperOptions) {
		opts.TypeFilter = types
	}
}

// WithStartDelay откладывает первый проход после запуска.
func WithStartDelay(delay time.Duration) SweeperOption {
	return func(opts *SweeperOptions) {
		opts.StartDelay = delay
	}
}

// Sweeper периодически перечитывает PENDING-записи, перепроверяет их
// зависимости и двигает жизненный цикл по политике готовности.
type Sweeper struct {
	repo          domain.EntityRepository
	evaluator     *Evaluator
	audit         domain.AuditRepository
	notifications domain.NotificationPublisher
	metrics       *metrics.SweepMetrics
	logger        *log.Entry
	sweepInterval time.Duration
	maxParallel   int
	typeFilter    map[domain.EntityType]struct{}
	startDelay    time.Duration
}

// NewSweeper создаёт sweeper поверх хранилища и evaluator'а.
func NewSweeper(repo domain.EntityRepository, evaluator *Evaluator, options ...SweeperOption) *Sweeper {
	opts := SweeperOptions{
		SweepInterval: defaultSweepInterval,
		MaxParallel:   defaultMaxParallelSweeps,
	}
	for _, option := range options {
		option(&opts)
	}

	logger := opts.Logger
	if logger == nil {
		logger = log.New().WithField("component", "readiness-sweeper")
	}

	if opts.SweepInterval <= 0 {
		opts.SweepInterval = defaultSweepInterval
	}
	if opts.MaxParallel <= 0 {
		opts.MaxParallel = defaultMaxParallelSweeps
	}

	var filter map[domain.EntityType]struct{}
	if len(opts.TypeFilter) > 0 {
		filter = make(map[domain.EntityType]struct{}, len(opts.TypeFilter))
		for _, entityType := range opts.TypeFilter {
			filter[entityType] = struct{}{}
		}
	}

	return &Sweeper{
		repo:          repo,
		evaluator:     evaluator,
		audit:         opts.Audit,
		notifications: opts.Notifications,
		metrics:       opts.Metrics,
		logger:        logger,
		sweepInterval: opts.SweepInterval,
		maxParallel:   opts.MaxParallel,
		typeFilter:    filter,
		startDelay:    opts.StartDelay,
	}
}

// Run запускает периодический sweep до отмены ctx.
func (s *Sweeper) Run(ctx context.Context) {
	if s.startDelay > 0 {
		select {
		case <-ctx.Done():
			return
		case <-time.After(s.startDelay):
		}
	}

	ticker := time.NewTicker(s.sweepInterval)
	defer ticker.Stop()

	s.SweepOnce(ctx)
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.SweepOnce(ctx)
		}
	}
}

// SweepOnce выполняет один проход по всем PENDING-записям.
func (s *Sweeper) SweepOnce(ctx context.Context) {
	if ctx.Err() != nil {
		return
	}

	started := time.Now()

	entities, err := s.repo.ListByStatus(domain.StatusPending)
	if err != nil {
		s.logger.WithError(err).Error("failed to list pending entities")
		return
	}

	if s.metrics != nil {
		s.metrics.SetPendingEntities(len(entities))
	}

	keys := make([]string, 0, len(entities))
	for _, entity := range entities {
		if s.typeFilter != nil {
			if _, ok := s.typeFilter[entity.EntityType]; !ok {
				continue
			}
		}
		keys = append(keys, entity.Key)
	}

	if len(keys) > 0 {
		s.logger.WithField("pending", len(keys)).Debug("sweep cycle started")
		s.sweepInParallel(ctx, keys)
	}

	if s.metrics != nil {
		s.metrics.RecordSweepCycle()
		s.metrics.RecordSweepDuration(time.Since(started))
	}
}

// Проход по записям ограничен семафором; ошибка одной записи
// не останавливает остальные.
func (s *Sweeper) sweepInParallel(ctx context.Context, keys []string) {
	limit := s.maxParallel
	if limit > len(keys) {
		limit = len(keys)
	}

	semaphore := make(chan struct{}, limit)
	var wg sync.WaitGroup
	for _, key := range keys {
		if ctx.Err() != nil {
			break
		}

		wg.Add(1)
		semaphore <- struct{}{}
		go func(entityKey string) {
			defer wg.Done()
			defer func() { <-semaphore }()

			if err := s.sweepEntity(entityKey); err != nil {
				s.logger.WithError(err).WithField("entity_key", entityKey).Error("sweep of entity failed")
			}
		}(key)
	}

	wg.Wait()
}

// sweepEntity перепроверяет одну запись и применяет решение политики.
func (s *Sweeper) sweepEntity(key string) error {
	started := time.Now()
	defer func() {
		if s.metrics != nil {
			s.metrics.RecordEntityDuration(time.Since(started))
		}
	}()

	entity, err := s.repo.Get(key)
	if err != nil {
		return fmt.Errorf("get entity: %w", err)
	}
	// Запись могла уйти из PENDING между ListByStatus и Get
	// (retrigger, void, ручное вмешательство).
	if entity.Lifecycle != domain.StatusPending {
		return nil
	}

	var (
		decision    Decision
		updatedDeps domain.DependencyStatusMap
		updatedLegs domain.LegStatusMap
	)

	if entity.EntityType == domain.TypeMultiStop {
		updatedLegs, err = s.evaluator.EvaluateLegs(entity.Key, entity.Legs)
		if err == nil {
			decision = DecideLegs(updatedLegs, entity.RetryCount)
		}
	} else {
		qc := domain.QueryContext{OrderNo: entity.Snapshot.OrderNo, ConsolNo: entity.Snapshot.ConsolNo}
		updatedDeps, err = s.evaluator.Evaluate(entity.EntityType, qc, entity.Dependencies)
		if err == nil {
			decision = Decide(updatedDeps, entity.RetryCount)
		}
	}
	if err != nil {
		// Сбой источника — не бизнес-исход: обновление пропускается,
		// попытка не тратится, запись дождётся следующего прохода.
		return fmt.Errorf("re-check dependencies: %w", err)
	}

	updated, err := s.repo.Update(key, func(e *domain.TrackedEntity) {
		if e.Lifecycle != domain.StatusPending {
			return
		}
		if updatedLegs != nil {
			e.Legs = updatedLegs
		}
		if updatedDeps != nil {
			e.Dependencies = updatedDeps
		}
		e.Lifecycle = decision.Status
		if decision.IncrementRetry {
			e.RetryCount++
		}
		e.LastUpdatedAt = time.Now().UTC()
		e.LastUpdatedBy = sweeperActor
	})
	if err != nil {
		return fmt.Errorf("update entity: %w", err)
	}

	if s.metrics != nil {
		s.metrics.RecordSweepOutcome(string(updated.Lifecycle))
	}

	if updated.Lifecycle != domain.StatusPending {
		s.recordTransition(updated, decision)
	}
	if updated.Lifecycle == domain.StatusFailed {
		s.notifyFailure(updated, decision)
	}

	return nil
}

func (s *Sweeper) recordTransition(entity domain.TrackedEntity, decision Decision) {
	if s.audit == nil {
		return
	}

	reason := "all dependencies ready"
	switch entity.Lifecycle {
	case domain.StatusReady:
		if len(decision.Missing) > 0 {
			reason = "confirmation cost shortcut"
		}
	case domain.StatusFailed:
		reason = fmt.Sprintf("retry ceiling reached after %d attempts", entity.RetryCount)
	}

	event := domain.TransitionEvent{
		ID:        uuid.NewString(),
		EntityKey: entity.Key,
		From:      domain.StatusPending,
		To:        entity.Lifecycle,
		Actor:     sweeperActor,
		Reason:    reason,
		Occurred:  time.Now().UTC(),
	}
	if err := s.audit.Append(event); err != nil {
		s.logger.WithError(err).WithField("entity_key", entity.Key).Warn("failed to append transition event")
	}
}

// notifyFailure публикует операторское уведомление с перечнем незаполненных
// полей. Уведомление отправляется один раз: только на переходе в FAILED.
func (s *Sweeper) notifyFailure(entity domain.TrackedEntity, decision Decision) {
	if s.notifications == nil {
		return
	}

	notification := domain.Notification{
		ID:          uuid.NewString(),
		Subject:     fmt.Sprintf("Shipment %s is not dispatched to the carrier", entity.Key),
		Body:        buildFailureBody(entity, decision),
		StationCode: entity.Snapshot.ControlStation,
		CreatedAt:   time.Now().UTC(),
	}

	if err := s.notifications.Publish(notification); err != nil {
		s.logger.WithError(err).WithField("entity_key", entity.Key).Warn("failed to publish failure notification")
		if s.metrics != nil {
			s.metrics.RecordNotificationDropped()
		}
		return
	}
	if s.metrics != nil {
		s.metrics.RecordNotificationPublished()
	}
}

func buildFailureBody(entity domain.TrackedEntity, decision Decision) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Order %s (%s) exhausted %d readiness attempts and was marked FAILED.\n",
		entity.Key, entity.EntityType, entity.RetryCount)
	b.WriteString("The following dependencies are still pending:\n")
	for _, dep := range decision.Missing {
		fmt.Fprintf(&b, "  - %s: %s\n", dep, strings.Join(domain.RequiredFieldsFor(dep), "; "))
	}
	b.WriteString(failureRemediationMessage)
	return b.String()
}
