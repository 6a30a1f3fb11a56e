package memory

import (
	"sync"

	"github.com/vladislavdragonenkov/fos/internal/domain"
)

// tableSourceInMemory — in-memory источник upstream-таблиц. Таблица, которую
// ни разу не наполняли, считается отсутствующей: это воспроизводит поведение
// настоящего upstream'а, создающего таблицы по мере появления данных.
type tableSourceInMemory struct {
	mu     sync.RWMutex
	tables map[string][]domain.Row
}

// NewTableSource возвращает in-memory источник для локальной разработки и тестов.
func NewTableSource() *tableSourceInMemory {
	return &tableSourceInMemory{
		tables: make(map[string][]domain.Row),
	}
}

// Seed наполняет таблицу строками, создавая её при необходимости.
func (s *tableSourceInMemory) Seed(table string, rows ...domain.Row) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.tables[table] = append(s.tables[table], rows...)
}

// QueryByKey возвращает строки таблицы с совпадающим значением ключевого поля.
func (s *tableSourceInMemory) QueryByKey(q domain.TableQuery) ([]domain.Row, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rows, ok := s.tables[q.Table]
	if !ok {
		return nil, domain.ErrTableMissing
	}

	var result []domain.Row
	for _, row := range rows {
		if row[q.KeyField] != q.KeyValue {
			continue
		}
		// Копия строки: вызывающий не должен видеть последующие Seed'ы.
		clone := make(domain.Row, len(row))
		for field, value := range row {
			clone[field] = value
		}
		result = append(result, clone)
	}
	return result, nil
}

var _ domain.TableSource = (*tableSourceInMemory)(nil)
