package memory

import (
	"sort"
	"sync"

	"github.com/vladislavdragonenkov/fos/internal/domain"
)

// auditRepositoryInMemory — in-memory журнал переходов жизненного цикла.
type auditRepositoryInMemory struct {
	mu     sync.RWMutex
	events []domain.TransitionEvent
}

// NewAuditRepository возвращает in-memory журнал для локальной разработки и тестов.
func NewAuditRepository() domain.AuditRepository {
	return &auditRepositoryInMemory{}
}

// Append добавляет событие перехода в журнал.
func (r *auditRepositoryInMemory) Append(event domain.TransitionEvent) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.events = append(r.events, event)
	return nil
}

// List возвращает события записи в порядке их наступления.
func (r *auditRepositoryInMemory) List(entityKey string) ([]domain.TransitionEvent, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var result []domain.TransitionEvent
	for _, event := range r.events {
		if event.EntityKey == entityKey {
			result = append(result, event)
		}
	}

	sort.Slice(result, func(i, j int) bool { return result[i].Occurred.Before(result[j].Occurred) })
	return result, nil
}

var _ domain.AuditRepository = (*auditRepositoryInMemory)(nil)
