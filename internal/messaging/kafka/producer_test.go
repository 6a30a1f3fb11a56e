package kafka

import (
	"testing"
	"time"

	"github.com/IBM/sarama"
	"github.com/IBM/sarama/mocks"
	log "github.com/sirupsen/logrus"

	"github.com/vladislavdragonenkov/fos/internal/domain"
)

func TestProducer_PublishEvent(t *testing.T) {
	// Создаем mock producer
	mockProducer := mocks.NewSyncProducer(t, nil)

	producer := &Producer{
		producer: mockProducer,
		logger:   log.WithField("component", "kafka-producer-test"),
	}

	// Настраиваем ожидания
	mockProducer.ExpectSendMessageAndSucceed()

	event := domain.ChangeEvent{
		TableName: "tbl_Shipper",
		Key:       "4100001",
		NewImage:  map[string]string{"FK_ShipOrderNo": "4100001"},
		Occurred:  time.Now().UTC(),
	}

	// Публикуем событие
	err := producer.PublishEvent(TopicChangeFeed, "4100001", event)
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}

	// Проверяем, что все ожидания выполнены
	if err := mockProducer.Close(); err != nil {
		t.Fatal(err)
	}
}

func TestProducer_PublishEvent_Error(t *testing.T) {
	// Создаем mock producer с ошибкой
	mockProducer := mocks.NewSyncProducer(t, nil)

	producer := &Producer{
		producer: mockProducer,
		logger:   log.WithField("component", "kafka-producer-test"),
	}

	// Настраиваем ожидание ошибки
	mockProducer.ExpectSendMessageAndFail(sarama.ErrOutOfBrokers)

	err := producer.PublishEvent(TopicChangeFeed, "4100001", domain.ChangeEvent{TableName: "tbl_Shipper", Key: "4100001"})
	if err == nil {
		t.Fatal("expected error, got nil")
	}

	if err := mockProducer.Close(); err != nil {
		t.Fatal(err)
	}
}

func TestProducer_PublishEvent_MarshalError(t *testing.T) {
	mockProducer := mocks.NewSyncProducer(t, nil)

	producer := &Producer{
		producer: mockProducer,
		logger:   log.WithField("component", "kafka-producer-test"),
	}

	// Несериализуемое событие не должно доходить до брокера.
	if err := producer.PublishEvent(TopicChangeFeed, "4100001", make(chan int)); err == nil {
		t.Fatal("expected marshal error")
	}

	if err := mockProducer.Close(); err != nil {
		t.Fatal(err)
	}
}

func TestNotifier_Publish(t *testing.T) {
	mockProducer := mocks.NewSyncProducer(t, nil)
	mockProducer.ExpectSendMessageAndSucceed()

	notifier := &Notifier{
		producer: &Producer{producer: mockProducer, logger: log.WithField("component", "kafka-producer-test")},
		topic:    TopicNotifications,
		logger:   log.WithField("component", "kafka-notifier-test"),
	}

	err := notifier.Publish(domain.Notification{
		ID:          "n-1",
		Subject:     "Shipment 4100001 is not dispatched to the carrier",
		Body:        "missing shipper name",
		StationCode: "OTR",
		CreatedAt:   time.Now().UTC(),
	})
	if err != nil {
		t.Fatalf("publish failed: %v", err)
	}

	if err := mockProducer.Close(); err != nil {
		t.Fatal(err)
	}
}

func TestNotifier_Publish_Error(t *testing.T) {
	mockProducer := mocks.NewSyncProducer(t, nil)
	mockProducer.ExpectSendMessageAndFail(sarama.ErrOutOfBrokers)

	notifier := &Notifier{
		producer: &Producer{producer: mockProducer, logger: log.WithField("component", "kafka-producer-test")},
		topic:    TopicNotifications,
		logger:   log.WithField("component", "kafka-notifier-test"),
	}

	if err := notifier.Publish(domain.Notification{ID: "n-1"}); err == nil {
		t.Fatal("expected publish error")
	}

	if err := mockProducer.Close(); err != nil {
		t.Fatal(err)
	}
}
