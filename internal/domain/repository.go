package domain

import "time"

// EntityRepository описывает требования к хранилищу отслеживаемых записей.
type EntityRepository interface {
	// Create сохраняет новую запись. Возвращает ErrEntityExists, если ключ занят.
	Create(entity TrackedEntity) error
	// Get возвращает запись по ключу или ErrEntityNotFound, если её нет.
	Get(key string) (TrackedEntity, error)
	// Update применяет мутацию к текущему значению и перезаписывает его.
	// Семантика last-write-wins: конкурентные sweep'ы по одному ключу
	// исключаются партиционированием работы, а не блокировками.
	Update(key string, mutate func(*TrackedEntity)) (TrackedEntity, error)
	// ListByStatus возвращает записи в заданном статусе через вторичный индекс.
	ListByStatus(status LifecycleStatus) ([]TrackedEntity, error)
}

// TransitionEvent фиксирует один переход жизненного цикла для аудита.
type TransitionEvent struct {
	ID        string
	EntityKey string
	From      LifecycleStatus
	To        LifecycleStatus
	Actor     string
	Reason    string
	Occurred  time.Time
}

// AuditRepository хранит историю переходов записи.
type AuditRepository interface {
	Append(event TransitionEvent) error
	List(entityKey string) ([]TransitionEvent, error)
}
