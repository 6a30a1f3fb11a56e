package readiness

import (
	"sync"

	"github.com/vladislavdragonenkov/fos/internal/domain"
)

// EvaluateLegs перепроверяет зависимости каждой ноги мультистопа. Ноги
// опрашиваются параллельно, решение политика принимает по объединённому
// результату. Консоль-зависимые таблицы опрашиваются по номеру консоли,
// остальные — по номеру заказа конкретной ноги.
func (ev *Evaluator) EvaluateLegs(consolNo string, legs domain.LegStatusMap) (domain.LegStatusMap, error) {
	updated := make(domain.LegStatusMap, len(legs))

	orderNos := make([]string, 0, len(legs))
	for legOrderNo := range legs {
		orderNos = append(orderNos, legOrderNo)
	}

	var (
		mu      sync.Mutex
		legsErr error
	)
	ev.checkInParallel(len(orderNos), func(index int) {
		legOrderNo := orderNos[index]
		qc := domain.QueryContext{OrderNo: legOrderNo, ConsolNo: consolNo}
		deps, err := ev.Evaluate(domain.TypeMultiStop, qc, legs[legOrderNo])

		mu.Lock()
		updated[legOrderNo] = deps
		if err != nil && legsErr == nil {
			legsErr = err
		}
		mu.Unlock()
	})

	return updated, legsErr
}
