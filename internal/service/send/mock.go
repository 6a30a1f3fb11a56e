package send

import (
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	log "github.com/sirupsen/logrus"

	"github.com/vladislavdragonenkov/fos/internal/domain"
)

// carrierResponse — форма ответа TMS на создание заказа. Ответ сохраняется
// у записи как есть и используется позже для аннулирования.
type carrierResponse struct {
	ID    string   `json:"id"`
	Stops []string `json:"stops,omitempty"`
}

// MockCarrier имитирует партнёрскую TMS: создание заказа возвращает
// идентификатор, аннулирование проверяет его наличие. Используется
// в тестах и в окружениях без настоящей интеграции.
type MockCarrier struct {
	logger *log.Entry

	mu       sync.Mutex
	created  map[string]carrierResponse
	canceled map[string]bool
	// rejectKeys перечисляет ключи, на которые TMS отвечает бизнес-отказом.
	rejectKeys map[string]bool
	latency    time.Duration
}

var _ domain.SendService = (*MockCarrier)(nil)

// NewMockCarrier создаёт мок TMS.
func NewMockCarrier(logger *log.Entry) *MockCarrier {
	if logger == nil {
		logger = log.New().WithField("component", "mock-carrier")
	}

	return &MockCarrier{
		logger:     logger,
		created:    make(map[string]carrierResponse),
		canceled:   make(map[string]bool),
		rejectKeys: make(map[string]bool),
	}
}

// RejectKey помечает ключ как отклоняемый TMS.
func (mc *MockCarrier) RejectKey(key string) {
	mc.mu.Lock()
	defer mc.mu.Unlock()
	mc.rejectKeys[key] = true
}

// SetLatency задаёт имитируемую задержку ответа.
func (mc *MockCarrier) SetLatency(latency time.Duration) {
	mc.mu.Lock()
	defer mc.mu.Unlock()
	mc.latency = latency
}

// Send создаёт заказ в TMS и возвращает её ответ.
func (mc *MockCarrier) Send(entity domain.TrackedEntity) (json.RawMessage, error) {
	mc.mu.Lock()
	latency := mc.latency
	rejected := mc.rejectKeys[entity.Key]
	mc.mu.Unlock()

	if latency > 0 {
		time.Sleep(latency)
	}

	if rejected {
		return nil, fmt.Errorf("%w: key %s", domain.ErrSendRejected, entity.Key)
	}

	response := carrierResponse{ID: uuid.NewString()}
	if entity.EntityType == domain.TypeMultiStop {
		for legOrderNo := range entity.Legs {
			response.Stops = append(response.Stops, legOrderNo)
		}
	}

	payload, err := json.Marshal(response)
	if err != nil {
		return nil, fmt.Errorf("marshal carrier response: %w", err)
	}

	mc.mu.Lock()
	mc.created[entity.Key] = response
	mc.mu.Unlock()

	mc.logger.WithFields(log.Fields{
		"entity_key": entity.Key,
		"carrier_id": response.ID,
	}).Info("Order created in carrier TMS")

	return payload, nil
}

// Cancel аннулирует ранее созданный заказ по сохранённому ответу.
func (mc *MockCarrier) Cancel(entity domain.TrackedEntity, prior json.RawMessage) error {
	var response carrierResponse
	if err := json.Unmarshal(prior, &response); err != nil {
		return fmt.Errorf("unmarshal stored carrier response: %w", err)
	}
	if response.ID == "" {
		return fmt.Errorf("%w: stored response has no carrier id", domain.ErrSendRejected)
	}

	mc.mu.Lock()
	mc.canceled[entity.Key] = true
	mc.mu.Unlock()

	mc.logger.WithFields(log.Fields{
		"entity_key": entity.Key,
		"carrier_id": response.ID,
		"stops":      len(response.Stops),
	}).Info("Order canceled in carrier TMS")

	return nil
}

// Canceled сообщает, был ли заказ аннулирован.
func (mc *MockCarrier) Canceled(key string) bool {
	mc.mu.Lock()
	defer mc.mu.Unlock()
	return mc.canceled[key]
}
