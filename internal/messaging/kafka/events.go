package kafka

import (
	"encoding/json"
	"fmt"

	"github.com/IBM/sarama"

	"github.com/vladislavdragonenkov/fos/internal/domain"
)

// Topics для Kafka
const (
	// TopicChangeFeed — CDC-поток upstream-таблиц (один топик, routing по table_name).
	TopicChangeFeed = "fos.change.feed"
	// TopicNotifications — операторские уведомления.
	TopicNotifications = "fos.ops.notifications"
	// TopicDeadLetterQueue — Dead Letter Queue для failed messages.
	TopicDeadLetterQueue = "fos.dlq"
)

// Kafka headers для retry логики
const (
	HeaderRetryCount    = "x-retry-count"
	HeaderOriginalTopic = "x-original-topic"
	HeaderErrorMessage  = "x-error-message"
	HeaderFailedAt      = "x-failed-at"
)

// notificationEnvelope — wire-формат операторского уведомления.
type notificationEnvelope struct {
	ID          string `json:"id"`
	Subject     string `json:"subject"`
	Body        string `json:"body"`
	StationCode string `json:"station_code,omitempty"`
	CreatedAt   string `json:"created_at"`
}

// ParseChangeEvent парсит ChangeEvent из сообщения change-feed'а.
func ParseChangeEvent(message *sarama.ConsumerMessage) (*domain.ChangeEvent, error) {
	var event domain.ChangeEvent
	if err := json.Unmarshal(message.Value, &event); err != nil {
		return nil, fmt.Errorf("failed to unmarshal change event: %w", err)
	}
	if event.TableName == "" {
		return nil, fmt.Errorf("change event without table_name")
	}
	return &event, nil
}
