package readiness

import (
	"sort"

	"github.com/vladislavdragonenkov/fos/internal/domain"
)

const (
	// ShortcutRetryThreshold — с этой попытки запись, у которой не готов
	// только confirmation cost, пропускается в READY: таблица заполняется
	// людьми заметно позже остальных и не должна держать заказ вечно.
	ShortcutRetryThreshold = 3
	// RetryCeiling — потолок попыток; следующий неуспешный проход переводит
	// запись в FAILED и зовёт оператора.
	RetryCeiling = 5
)

// Decision — результат применения политики к свежим статусам зависимостей.
type Decision struct {
	Status domain.LifecycleStatus
	// IncrementRetry истинен, если проход оставил запись в PENDING
	// или перевёл её в FAILED. Переход в READY счётчик не трогает.
	IncrementRetry bool
	// Missing — зависимости, не готовые на момент решения, в стабильном порядке.
	Missing []domain.DependencyName
}

// Decide применяет упорядоченные правила готовности к карте статусов.
// Правила проверяются сверху вниз, первое сработавшее определяет исход:
//  1. все зависимости READY → READY;
//  2. retryCount >= ShortcutRetryThreshold и не готов только
//     confirmation cost → READY (шорткат);
//  3. retryCount >= RetryCeiling → FAILED;
//  4. иначе → PENDING.
func Decide(deps domain.DependencyStatusMap, retryCount int) Decision {
	missing := sortedPending(deps)

	if len(missing) == 0 {
		return Decision{Status: domain.StatusReady}
	}

	if retryCount >= ShortcutRetryThreshold && onlyConfirmationCost(missing) {
		return Decision{Status: domain.StatusReady, Missing: missing}
	}

	if retryCount >= RetryCeiling {
		return Decision{Status: domain.StatusFailed, IncrementRetry: true, Missing: missing}
	}

	return Decision{Status: domain.StatusPending, IncrementRetry: true, Missing: missing}
}

// DecideLegs агрегирует решение по всем ногам мультистопа. Счётчик попыток
// общий на консолидацию, поэтому правила применяются к объединённому
// множеству неготовых зависимостей всех ног.
func DecideLegs(legs domain.LegStatusMap, retryCount int) Decision {
	merged := make(domain.DependencyStatusMap)
	for _, deps := range legs {
		for name, state := range deps {
			if state == domain.DepPending {
				merged[name] = domain.DepPending
				continue
			}
			if _, seen := merged[name]; !seen {
				merged[name] = domain.DepReady
			}
		}
	}
	return Decide(merged, retryCount)
}

func sortedPending(deps domain.DependencyStatusMap) []domain.DependencyName {
	missing := make([]domain.DependencyName, 0, len(deps))
	for name, state := range deps {
		if state == domain.DepPending {
			missing = append(missing, name)
		}
	}
	sort.Slice(missing, func(i, j int) bool { return missing[i] < missing[j] })
	return missing
}

func onlyConfirmationCost(missing []domain.DependencyName) bool {
	return len(missing) == 1 && missing[0] == domain.DepConfirmationCost
}
