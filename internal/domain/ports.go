package domain

import (
	"encoding/json"
	"time"
)

// Row — одна строка upstream-таблицы. Поля слабо типизированы:
// upstream пишется независимыми системами, нам важно лишь наличие значений.
type Row map[string]string

// TableSource описывает чтение зависимых upstream-таблиц.
type TableSource interface {
	// QueryByKey возвращает строки по ключу. Отсутствие самой таблицы —
	// отдельный не-ошибочный исход: ErrTableMissing.
	QueryByKey(q TableQuery) ([]Row, error)
}

// SendService описывает внешнего коллаборатора, создающего и аннулирующего
// заказы в партнёрской TMS. Ядро не строит payload само.
type SendService interface {
	// Send передаёт готовую запись; возвращает непрозрачный ответ TMS.
	Send(entity TrackedEntity) (json.RawMessage, error)
	// Cancel аннулирует ранее отправленный заказ по сохранённому ответу.
	Cancel(entity TrackedEntity, prior json.RawMessage) error
}

// Notification — сообщение операторского канала.
type Notification struct {
	ID          string
	Subject     string
	Body        string
	StationCode string
	CreatedAt   time.Time
}

// NotificationPublisher публикует операторские уведомления.
// Канал best-effort: доставка не гарантируется и не блокирует переходы.
type NotificationPublisher interface {
	Publish(n Notification) error
}

// ChangeEvent — одно событие change-feed'а upstream-таблиц.
// Порядок гарантируется только в пределах одного ключа.
type ChangeEvent struct {
	TableName string            `json:"table_name"`
	Key       string            `json:"key"`
	NewImage  map[string]string `json:"new_image,omitempty"`
	OldImage  map[string]string `json:"old_image,omitempty"`
	Occurred  time.Time         `json:"occurred"`
}
