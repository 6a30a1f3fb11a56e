package notify

import (
	log "github.com/sirupsen/logrus"

	"github.com/vladislavdragonenkov/fos/internal/domain"
)

// LogSink пишет уведомления в лог. Используется, когда брокер не настроен:
// операторский канал тогда деградирует до структурированных записей лога.
type LogSink struct {
	logger *log.Entry
}

var _ domain.NotificationPublisher = (*LogSink)(nil)

// NewLogSink создаёт лог-издатель уведомлений.
func NewLogSink(logger *log.Entry) *LogSink {
	if logger == nil {
		logger = log.New().WithField("component", "notify-log-sink")
	}
	return &LogSink{logger: logger}
}

// Publish выводит уведомление одной записью уровня Warn.
func (s *LogSink) Publish(n domain.Notification) error {
	s.logger.WithFields(log.Fields{
		"notification_id": n.ID,
		"station":         n.StationCode,
		"subject":         n.Subject,
	}).Warn(n.Body)
	return nil
}
