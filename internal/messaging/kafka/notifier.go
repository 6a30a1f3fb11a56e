package kafka

import (
	"time"

	log "github.com/sirupsen/logrus"

	"github.com/vladislavdragonenkov/fos/internal/domain"
)

// Notifier публикует операторские уведомления в Kafka-топик,
// откуда их забирает почтовый шлюз станции.
type Notifier struct {
	producer *Producer
	topic    string
	logger   *log.Entry
}

// NewNotifier возвращает паблишер уведомлений поверх Kafka producer'а.
func NewNotifier(producer *Producer) *Notifier {
	return &Notifier{
		producer: producer,
		topic:    TopicNotifications,
		logger:   log.WithField("component", "kafka-notifier"),
	}
}

var _ domain.NotificationPublisher = (*Notifier)(nil)

// Publish отправляет уведомление; ключ партиционирования — код станции,
// чтобы письма одной станции шли по порядку.
func (n *Notifier) Publish(notification domain.Notification) error {
	envelope := notificationEnvelope{
		ID:          notification.ID,
		Subject:     notification.Subject,
		Body:        notification.Body,
		StationCode: notification.StationCode,
		CreatedAt:   notification.CreatedAt.UTC().Format(time.RFC3339),
	}

	key := notification.StationCode
	if key == "" {
		key = notification.ID
	}

	if err := n.producer.PublishEvent(n.topic, key, envelope); err != nil {
		return err
	}

	n.logger.WithFields(log.Fields{
		"notification_id": notification.ID,
		"station":         notification.StationCode,
	}).Debug("notification published")
	return nil
}
