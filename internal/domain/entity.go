package domain

import (
	"encoding/json"
	"time"
)

// LifecycleStatus описывает жизненный цикл отслеживаемой записи в FOS.
type LifecycleStatus string

const (
	// StatusPending — запись создана, зависимые таблицы ещё наполняются.
	StatusPending LifecycleStatus = "PENDING"
	// StatusReady — все зависимости готовы, запись можно отправлять в TMS.
	StatusReady LifecycleStatus = "READY"
	// StatusSent — заказ отправлен внешнему перевозчику; терминальный для sweep'а.
	StatusSent LifecycleStatus = "SENT"
	// StatusFailed — исчерпан потолок попыток; требуется вмешательство оператора.
	StatusFailed LifecycleStatus = "FAILED"
	// StatusCanceled — отправленный заказ аннулирован после void-события.
	StatusCanceled LifecycleStatus = "CANCELED"
)

// EntityType определяет набор зависимостей записи в каталоге.
type EntityType string

const (
	// TypeNonConsole — одиночный заказ без консолидации.
	TypeNonConsole EntityType = "NON_CONSOLE"
	// TypeConsole — консолидированный заказ (один заголовок на консоль).
	TypeConsole EntityType = "CONSOLE"
	// TypeMultiStop — мультистоповая консолидация: зависимости отслеживаются по каждой ноге.
	TypeMultiStop EntityType = "MULTI_STOP"
)

// DependencyState — статус одной upstream-зависимости.
type DependencyState string

const (
	// DepPending — в зависимой таблице ещё нет данных.
	DepPending DependencyState = "PENDING"
	// DepReady — данные появились; однажды READY зависимость назад не откатывается.
	DepReady DependencyState = "READY"
)

// DependencyName — имя upstream-таблицы, наполнение которой отслеживается.
type DependencyName string

// DependencyStatusMap хранит статусы зависимостей одной записи (или одной ноги).
type DependencyStatusMap map[DependencyName]DependencyState

// LegStatusMap хранит статусы зависимостей по каждой ноге мультистопа,
// ключ — номер заказа остановки.
type LegStatusMap map[string]DependencyStatusMap

// ShipmentSnapshot — срез upstream-записи shipment-apar, зафиксированный при создании.
// Используется для классификации, построения запросов и void-логики.
type ShipmentSnapshot struct {
	OrderNo        string
	ConsolNo       string
	ServiceLevelID string
	VendorID       string
	Consolidation  string
	ControlStation string
	SeqNo          string
	UpdatedBy      string
	CreateDateTime string
}

// TrackedEntity агрегирует состояние оркестрации одного заказа или консолидации.
type TrackedEntity struct {
	// Key — номер заказа (NON_CONSOLE/CONSOLE) или номер консоли (MULTI_STOP).
	Key        string
	EntityType EntityType
	// Dependencies заполняется для NON_CONSOLE/CONSOLE; для MULTI_STOP — Legs.
	Dependencies DependencyStatusMap
	Legs         LegStatusMap
	Lifecycle    LifecycleStatus
	// RetryCount растёт ровно на единицу за каждый sweep-проход,
	// оставивший запись в PENDING или переведший её в FAILED.
	RetryCount    int
	CreatedAt     time.Time
	LastUpdatedAt time.Time
	LastUpdatedBy string
	Snapshot      ShipmentSnapshot
	// Response — ответ TMS после отправки; нужен для последующего void.
	Response json.RawMessage
}

// NewTrackedEntity создаёт запись NON_CONSOLE/CONSOLE с набором зависимостей из каталога.
func NewTrackedEntity(key string, entityType EntityType, snapshot ShipmentSnapshot, now time.Time) (TrackedEntity, error) {
	if entityType == TypeMultiStop {
		return TrackedEntity{}, ErrLegsRequired
	}
	deps, err := DependenciesFor(entityType)
	if err != nil {
		return TrackedEntity{}, err
	}
	return TrackedEntity{
		Key:           key,
		EntityType:    entityType,
		Dependencies:  deps,
		Lifecycle:     StatusPending,
		CreatedAt:     now,
		LastUpdatedAt: now,
		LastUpdatedBy: "intake",
		Snapshot:      snapshot,
	}, nil
}

// NewMultiStopEntity создаёт запись MULTI_STOP: по одному набору зависимостей на каждую ногу.
func NewMultiStopEntity(consolNo string, legOrderNos []string, snapshot ShipmentSnapshot, now time.Time) (TrackedEntity, error) {
	if len(legOrderNos) == 0 {
		return TrackedEntity{}, ErrLegsRequired
	}
	legs := make(LegStatusMap, len(legOrderNos))
	for _, legNo := range legOrderNos {
		deps, err := DependenciesFor(TypeMultiStop)
		if err != nil {
			return TrackedEntity{}, err
		}
		legs[legNo] = deps
	}
	return TrackedEntity{
		Key:           consolNo,
		EntityType:    TypeMultiStop,
		Legs:          legs,
		Lifecycle:     StatusPending,
		CreatedAt:     now,
		LastUpdatedAt: now,
		LastUpdatedBy: "intake",
		Snapshot:      snapshot,
	}, nil
}

// IsTerminal сообщает, закончила ли запись участие в sweep'е.
func (e *TrackedEntity) IsTerminal() bool {
	return e.Lifecycle == StatusSent || e.Lifecycle == StatusCanceled
}

// PendingDependencies возвращает имена ещё не готовых зависимостей (без нод мультистопа).
func (e *TrackedEntity) PendingDependencies() []DependencyName {
	return pendingOf(e.Dependencies)
}

func pendingOf(deps DependencyStatusMap) []DependencyName {
	result := make([]DependencyName, 0, len(deps))
	for name, state := range deps {
		if state == DepPending {
			result = append(result, name)
		}
	}
	return result
}

// CloneDependencies возвращает копию карты зависимостей,
// чтобы evaluator не мутировал запись до записи решения.
func (m DependencyStatusMap) Clone() DependencyStatusMap {
	if m == nil {
		return nil
	}
	clone := make(DependencyStatusMap, len(m))
	for name, state := range m {
		clone[name] = state
	}
	return clone
}

// Clone возвращает глубокую копию карты нод.
func (m LegStatusMap) Clone() LegStatusMap {
	if m == nil {
		return nil
	}
	clone := make(LegStatusMap, len(m))
	for leg, deps := range m {
		clone[leg] = deps.Clone()
	}
	return clone
}

// ValidateInvariants проверяет базовые инварианты записи и возвращает список замечаний.
func (e *TrackedEntity) ValidateInvariants() []error {
	var errs []error

	if e.Key == "" {
		errs = append(errs, ErrKeyRequired)
	}
	if e.RetryCount < 0 {
		errs = append(errs, ErrRetryCountNegative)
	}

	switch e.EntityType {
	case TypeNonConsole, TypeConsole:
		if err := checkCatalogKeys(e.EntityType, e.Dependencies); err != nil {
			errs = append(errs, err)
		}
		if len(e.Legs) != 0 {
			errs = append(errs, ErrLegsUnexpected)
		}
	case TypeMultiStop:
		if len(e.Legs) == 0 {
			errs = append(errs, ErrLegsRequired)
		}
		for _, deps := range e.Legs {
			if err := checkCatalogKeys(TypeMultiStop, deps); err != nil {
				errs = append(errs, err)
				break
			}
		}
	default:
		errs = append(errs, ErrUnknownEntityType)
	}

	return errs
}

// Ключи карты зависимостей обязаны совпадать с объявленным в каталоге набором:
// ни лишних, ни отсутствующих.
func checkCatalogKeys(entityType EntityType, deps DependencyStatusMap) error {
	declared, err := DependenciesFor(entityType)
	if err != nil {
		return err
	}
	if len(deps) != len(declared) {
		return ErrDependencySetMismatch
	}
	for name := range declared {
		if _, ok := deps[name]; !ok {
			return ErrDependencySetMismatch
		}
	}
	return nil
}
