package readiness

import (
	"fmt"
	"strings"
	"sync"

	log "github.com/sirupsen/logrus"

	"github.com/vladislavdragonenkov/fos/internal/domain"
	"github.com/vladislavdragonenkov/fos/internal/metrics"
)

const defaultMaxParallelChecks = 4

// Evaluator перечитывает ещё не готовые зависимости записи из upstream-таблиц.
// Зависимости, уже помеченные READY, не перепроверяются: READY не откатывается.
type Evaluator struct {
	source            domain.TableSource
	logger            *log.Entry
	metrics           *metrics.SweepMetrics
	maxParallelChecks int
}

// NewEvaluator создаёт evaluator поверх источника upstream-таблиц.
func NewEvaluator(source domain.TableSource, logger *log.Entry) *Evaluator {
	if logger == nil {
		logger = log.New().WithField("component", "readiness-evaluator")
	}

	return &Evaluator{
		source:            source,
		logger:            logger,
		maxParallelChecks: defaultMaxParallelChecks,
	}
}

// WithMetrics подключает метрики проверок зависимостей.
func (ev *Evaluator) WithMetrics(m *metrics.SweepMetrics) *Evaluator {
	ev.metrics = m
	return ev
}

// Evaluate возвращает обновлённую копию карты статусов. Исходная карта не
// мутируется: решение фиксируется политикой, а затем одной записью в хранилище.
// Сбой источника (кроме отсутствующей таблицы) возвращается ошибкой: такой
// проход не даёт бизнес-исхода и не тратит попытку записи.
func (ev *Evaluator) Evaluate(entityType domain.EntityType, qc domain.QueryContext, deps domain.DependencyStatusMap) (domain.DependencyStatusMap, error) {
	updated := deps.Clone()

	pending := make([]domain.DependencyName, 0, len(deps))
	for name, state := range deps {
		if state == domain.DepPending {
			pending = append(pending, name)
		}
	}
	if len(pending) == 0 {
		return updated, nil
	}

	var (
		mu      sync.Mutex
		evalErr error
	)
	ev.checkInParallel(len(pending), func(index int) {
		name := pending[index]
		state, err := ev.checkDependency(entityType, name, qc)

		mu.Lock()
		updated[name] = state
		if err != nil && evalErr == nil {
			evalErr = err
		}
		mu.Unlock()
	})

	return updated, evalErr
}

// checkDependency проверяет одну зависимость. Отсутствующая таблица, пустой
// результат и ненаполненные строки оставляют её в PENDING; сбой запроса —
// ошибка вызывающему.
func (ev *Evaluator) checkDependency(entityType domain.EntityType, name domain.DependencyName, qc domain.QueryContext) (domain.DependencyState, error) {
	query, err := domain.QueryFor(entityType, name, qc)
	if err != nil {
		ev.recordCheck("query_error")
		return domain.DepPending, fmt.Errorf("build query for %s dependency %s: %w", entityType, name, err)
	}

	rows, err := ev.source.QueryByKey(query)
	if err != nil {
		if domain.IsTableMissing(err) {
			// Таблицы ещё нет: upstream создаёт её позже. Это штатный PENDING.
			ev.recordCheck("table_missing")
			return domain.DepPending, nil
		}
		ev.recordCheck("error")
		return domain.DepPending, fmt.Errorf("query %s by %s=%s: %w", query.Table, query.KeyField, query.KeyValue, err)
	}

	if len(rows) == 0 {
		ev.recordCheck("empty")
		return domain.DepPending, nil
	}

	if name == domain.DepConfirmationCost && !confirmationCostComplete(rows) {
		ev.recordCheck("incomplete")
		return domain.DepPending, nil
	}

	ev.recordCheck("ready")
	return domain.DepReady, nil
}

// confirmationCostComplete проверяет, что в каждой строке confirmation cost
// заполнены адресные поля отправителя и получателя.
func confirmationCostComplete(rows []domain.Row) bool {
	required := []string{
		"ShipName", "ShipAddress1", "ShipCity", "FK_ShipState", "FK_ShipCountry",
		"ConName", "ConAddress1", "ConCity", "FK_ConState", "FK_ConCountry",
	}
	for _, row := range rows {
		for _, field := range required {
			if !fieldPopulated(row[field]) {
				return false
			}
		}
	}
	return true
}

// Upstream пишет литеральную строку "NULL" вместо пустого значения.
func fieldPopulated(value string) bool {
	trimmed := strings.TrimSpace(value)
	return trimmed != "" && !strings.EqualFold(trimmed, "NULL")
}

func (ev *Evaluator) checkInParallel(size int, checkFn func(index int)) {
	if size == 0 {
		return
	}

	limit := ev.maxParallelChecks
	if limit <= 0 {
		limit = 1
	}
	if limit > size {
		limit = size
	}

	semaphore := make(chan struct{}, limit)
	var wg sync.WaitGroup
	for idx := 0; idx < size; idx++ {
		wg.Add(1)
		semaphore <- struct{}{}
		go func(index int) {
			defer wg.Done()
			defer func() { <-semaphore }()
			checkFn(index)
		}(idx)
	}

	wg.Wait()
}

func (ev *Evaluator) recordCheck(result string) {
	if ev.metrics != nil {
		ev.metrics.RecordDependencyCheck(result)
	}
}
