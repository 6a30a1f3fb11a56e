package memory

import (
	"sort"
	"sync"

	"github.com/vladislavdragonenkov/fos/internal/domain"
)

// entityRepositoryInMemory — простая in-memory реализация EntityRepository.
type entityRepositoryInMemory struct {
	mu    sync.RWMutex
	items map[string]domain.TrackedEntity
	// byStatus — вторичный индекс статус → ключи.
	byStatus map[domain.LifecycleStatus]map[string]struct{}
}

// NewEntityRepository возвращает in-memory репозиторий для локальной разработки и тестов.
func NewEntityRepository() domain.EntityRepository {
	return &entityRepositoryInMemory{
		items:    make(map[string]domain.TrackedEntity),
		byStatus: make(map[domain.LifecycleStatus]map[string]struct{}),
	}
}

// Create сохраняет новую запись, если ключ ещё не занят.
func (r *entityRepositoryInMemory) Create(entity domain.TrackedEntity) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.items[entity.Key]; exists {
		return domain.ErrEntityExists
	}
	// Сохраняем копию, чтобы избежать непредсказуемых мутаций извне.
	r.items[entity.Key] = cloneEntity(entity)
	r.indexStatus(entity.Key, "", entity.Lifecycle)
	return nil
}

// Get возвращает запись или ErrEntityNotFound, если её нет.
func (r *entityRepositoryInMemory) Get(key string) (domain.TrackedEntity, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	entity, ok := r.items[key]
	if !ok {
		return domain.TrackedEntity{}, domain.ErrEntityNotFound
	}
	return cloneEntity(entity), nil
}

// Update применяет мутацию к текущему значению и перезаписывает его.
func (r *entityRepositoryInMemory) Update(key string, mutate func(*domain.TrackedEntity)) (domain.TrackedEntity, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	current, ok := r.items[key]
	if !ok {
		return domain.TrackedEntity{}, domain.ErrEntityNotFound
	}

	entity := cloneEntity(current)
	mutate(&entity)
	entity.Key = key // ключ неизменяем

	r.items[key] = cloneEntity(entity)
	r.indexStatus(key, current.Lifecycle, entity.Lifecycle)
	return entity, nil
}

// ListByStatus возвращает записи в заданном статусе через вторичный индекс.
func (r *entityRepositoryInMemory) ListByStatus(status domain.LifecycleStatus) ([]domain.TrackedEntity, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	keys := r.byStatus[status]
	result := make([]domain.TrackedEntity, 0, len(keys))
	for key := range keys {
		result = append(result, cloneEntity(r.items[key]))
	}

	sort.Slice(result, func(i, j int) bool { return result[i].Key < result[j].Key })
	return result, nil
}

func (r *entityRepositoryInMemory) indexStatus(key string, from, to domain.LifecycleStatus) {
	if from == to {
		return
	}
	if from != "" {
		delete(r.byStatus[from], key)
	}
	bucket, ok := r.byStatus[to]
	if !ok {
		bucket = make(map[string]struct{})
		r.byStatus[to] = bucket
	}
	bucket[key] = struct{}{}
}

func cloneEntity(entity domain.TrackedEntity) domain.TrackedEntity {
	clone := entity
	clone.Dependencies = entity.Dependencies.Clone()
	clone.Legs = entity.Legs.Clone()
	if entity.Response != nil {
		clone.Response = append([]byte(nil), entity.Response...)
	}
	return clone
}

var _ domain.EntityRepository = (*entityRepositoryInMemory)(nil)
