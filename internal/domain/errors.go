package domain

import "errors"

var (
	// ErrKeyRequired — у записи отсутствует ключ (номер заказа/консоли).
	ErrKeyRequired = errors.New("entity key is required")
	// ErrRetryCountNegative — счётчик попыток не может быть отрицательным.
	ErrRetryCountNegative = errors.New("retry count must be non-negative")
	// ErrLegsRequired — мультистоп обязан содержать хотя бы одну ногу.
	ErrLegsRequired = errors.New("multi-stop entity must contain at least one leg")
	// ErrLegsUnexpected — ноги допустимы только у мультистопа.
	ErrLegsUnexpected = errors.New("legs are only valid for multi-stop entities")
	// ErrDependencySetMismatch — ключи карты статусов не совпадают с каталогом.
	ErrDependencySetMismatch = errors.New("dependency set does not match catalog")
	// ErrEntityNotFound возвращается, если запись не найдена в хранилище.
	ErrEntityNotFound = errors.New("entity not found")
	// ErrEntityExists — запись с таким ключом уже создана (intake идемпотентен).
	ErrEntityExists = errors.New("entity already exists")
	// ErrUnknownEntityType — тип записи отсутствует в каталоге; ошибка программиста.
	ErrUnknownEntityType = errors.New("unknown entity type")
	// ErrUnknownDependency — зависимость не объявлена для данного типа.
	ErrUnknownDependency = errors.New("unknown dependency for entity type")
	// ErrTableMissing — зависимой таблицы ещё не существует; трактуется как PENDING.
	ErrTableMissing = errors.New("upstream table missing")
	// ErrSendRejected — TMS отклонил заказ (бизнес-ошибка, не транспортная).
	ErrSendRejected = errors.New("send rejected by carrier")
	// ErrCircuitOpen — circuit breaker блокирует обращения к TMS.
	ErrCircuitOpen = errors.New("send circuit breaker is open")
)

// IsNotFound проверяет, является ли ошибка отсутствием записи.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrEntityNotFound)
}

// IsTableMissing проверяет документированное отображение "нет таблицы" → PENDING.
func IsTableMissing(err error) bool {
	return errors.Is(err, ErrTableMissing)
}

// IsSendRejected отличает бизнес-отказ TMS от транспортного сбоя.
func IsSendRejected(err error) bool {
	return errors.Is(err, ErrSendRejected)
}
