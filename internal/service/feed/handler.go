package feed

import (
	log "github.com/sirupsen/logrus"

	"github.com/vladislavdragonenkov/fos/internal/domain"
)

// ShipmentHeaderTable — таблица заголовков, чьи события несут отмену заказа.
const ShipmentHeaderTable = "tbl_ShipmentHeader"

// Handler маршрутизирует события change-feed по контроллерам: intake для
// вставок shipment-apar, void для дисквалифицирующих правок, retrigger для
// корректирующих правок любой зависимой таблицы.
type Handler struct {
	intake    *Intake
	retrigger *Retrigger
	void      *Void
	logger    *log.Entry
}

// NewHandler создаёт маршрутизатор событий фида.
func NewHandler(intake *Intake, retrigger *Retrigger, void *Void, logger *log.Entry) *Handler {
	if logger == nil {
		logger = log.New().WithField("component", "feed-handler")
	}

	return &Handler{
		intake:    intake,
		retrigger: retrigger,
		void:      void,
		logger:    logger,
	}
}

// Handle обрабатывает одно событие фида. Порядок внутри ключа гарантирует
// брокер; здесь события независимы и обрабатываются по одному.
func (h *Handler) Handle(event domain.ChangeEvent) error {
	switch event.TableName {
	case ShipmentAparTable:
		return h.handleApar(event)
	case ShipmentHeaderTable:
		if err := h.void.HandleHeaderEvent(event); err != nil {
			return err
		}
		return h.retrigger.Apply(h.entityKey(event))
	default:
		// Правка любой другой зависимой таблицы — потенциальное исправление
		// данных, из-за которых запись ушла в FAILED.
		return h.retrigger.Apply(event.Key)
	}
}

func (h *Handler) handleApar(event domain.ChangeEvent) error {
	if vendorMovedAway(event) {
		return h.void.HandleAparEvent(event)
	}

	_, created, err := h.intake.Handle(event)
	if err != nil {
		return err
	}
	if created {
		return nil
	}

	// Запись уже существовала: правка apar — корректирующее действие оператора.
	return h.retrigger.Apply(h.entityKey(event))
}

// entityKey восстанавливает ключ отслеживаемой записи из события:
// для классифицируемых срезов — ключ по типу, иначе натуральный ключ события.
func (h *Handler) entityKey(event domain.ChangeEvent) string {
	snapshot := SnapshotFromImage(event.NewImage)
	if entityType, tracked := Classify(snapshot); tracked {
		return entityKeyFor(entityType, snapshot)
	}
	if orderNo := event.NewImage["PK_OrderNo"]; orderNo != "" {
		return orderNo
	}
	return event.Key
}
