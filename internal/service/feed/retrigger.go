package feed

import (
	"fmt"
	"time"

	"github.com/google/uuid"
	log "github.com/sirupsen/logrus"

	"github.com/vladislavdragonenkov/fos/internal/domain"
)

const retriggerActor = "retrigger"

// Retrigger возвращает FAILED-записи в оборот после корректирующей правки
// upstream-данных: статус сбрасывается в PENDING, счётчик попыток — в ноль.
type Retrigger struct {
	repo   domain.EntityRepository
	audit  domain.AuditRepository
	logger *log.Entry
}

// NewRetrigger создаёт retrigger-контроллер.
func NewRetrigger(repo domain.EntityRepository, audit domain.AuditRepository, logger *log.Entry) *Retrigger {
	if logger == nil {
		logger = log.New().WithField("component", "feed-retrigger")
	}

	return &Retrigger{
		repo:   repo,
		audit:  audit,
		logger: logger,
	}
}

// Apply сбрасывает запись по ключу, если она в FAILED. Отсутствие записи
// и любой другой статус — no-op, не ошибка: события фида приходят и по
// заказам, которые никогда не отслеживались.
func (r *Retrigger) Apply(key string) error {
	if key == "" {
		return nil
	}

	entity, err := r.repo.Get(key)
	if err != nil {
		if domain.IsNotFound(err) {
			return nil
		}
		return fmt.Errorf("get entity: %w", err)
	}
	if entity.Lifecycle != domain.StatusFailed {
		return nil
	}

	updated, err := r.repo.Update(key, func(e *domain.TrackedEntity) {
		if e.Lifecycle != domain.StatusFailed {
			return
		}
		e.Lifecycle = domain.StatusPending
		e.RetryCount = 0
		e.LastUpdatedAt = time.Now().UTC()
		e.LastUpdatedBy = retriggerActor
	})
	if err != nil {
		return fmt.Errorf("retrigger entity: %w", err)
	}
	if updated.Lifecycle != domain.StatusPending {
		return nil
	}

	if r.audit != nil {
		event := domain.TransitionEvent{
			ID:        uuid.NewString(),
			EntityKey: key,
			From:      domain.StatusFailed,
			To:        domain.StatusPending,
			Actor:     retriggerActor,
			Reason:    "upstream corrective write",
			Occurred:  time.Now().UTC(),
		}
		if err := r.audit.Append(event); err != nil {
			r.logger.WithError(err).WithField("entity_key", key).Warn("failed to append retrigger event")
		}
	}

	r.logger.WithField("entity_key", key).Info("Failed entity retriggered back to PENDING")
	return nil
}
