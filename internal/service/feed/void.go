package feed

import (
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	log "github.com/sirupsen/logrus"

	"github.com/vladislavdragonenkov/fos/internal/domain"
)

const (
	voidActor = "void"
	// canceledOrderStatus — статус заказа в shipment header, означающий отмену.
	canceledOrderStatus = "CAN"
)

// Void аннулирует уже отправленные заказы, когда upstream дисквалифицирует их:
// перевозчик у записи сменился с отслеживаемого, либо заказ отменён.
// Аннулирование выполняется сохранённым ответом TMS.
type Void struct {
	repo          domain.EntityRepository
	source        domain.TableSource
	sender        domain.SendService
	audit         domain.AuditRepository
	notifications domain.NotificationPublisher
	logger        *log.Entry
}

// NewVoid создаёт void-контроллер.
func NewVoid(repo domain.EntityRepository, source domain.TableSource, sender domain.SendService, audit domain.AuditRepository, notifications domain.NotificationPublisher, logger *log.Entry) *Void {
	if logger == nil {
		logger = log.New().WithField("component", "feed-void")
	}

	return &Void{
		repo:          repo,
		source:        source,
		sender:        sender,
		audit:         audit,
		notifications: notifications,
		logger:        logger,
	}
}

// vendorMovedAway определяет, ушла ли запись shipment-apar от отслеживаемого
// перевозчика: он был назначен и либо заменён, либо удалён.
func vendorMovedAway(event domain.ChangeEvent) bool {
	oldVendor := SnapshotFromImage(event.OldImage).VendorID
	newVendor := SnapshotFromImage(event.NewImage).VendorID
	return oldVendor == TrackedVendor && newVendor != TrackedVendor
}

// HandleAparEvent обрабатывает событие shipment-apar: смена перевозчика
// у отправленной записи ведёт к аннулированию.
func (v *Void) HandleAparEvent(event domain.ChangeEvent) error {
	if !vendorMovedAway(event) {
		return nil
	}

	// Ключ и тип берём из последнего образа с данными.
	image := event.NewImage
	if SnapshotFromImage(image).OrderNo == "" {
		image = event.OldImage
	}
	snapshot := SnapshotFromImage(image)
	snapshot.VendorID = TrackedVendor // классифицируем запись такой, какой она отслеживалась

	entityType, tracked := Classify(snapshot)
	if !tracked {
		return nil
	}

	return v.cancel(entityKeyFor(entityType, snapshot), "vendor reassigned upstream")
}

// HandleHeaderEvent обрабатывает событие shipment header: статус CAN
// у отправленного заказа ведёт к аннулированию. Заказ может быть ногой
// консолидации — тогда запись отслеживается по номеру консоли, и её
// тоже нужно аннулировать.
func (v *Void) HandleHeaderEvent(event domain.ChangeEvent) error {
	if event.NewImage["FK_OrderStatusId"] != canceledOrderStatus {
		return nil
	}

	orderNo := event.NewImage["PK_OrderNo"]
	if orderNo == "" {
		orderNo = event.Key
	}
	if orderNo == "" {
		return nil
	}

	if err := v.cancel(orderNo, "order canceled upstream"); err != nil {
		return err
	}

	for _, consolNo := range v.consolidationKeys(orderNo) {
		if err := v.cancel(consolNo, "member order canceled upstream"); err != nil {
			return err
		}
	}
	return nil
}

// consolidationKeys находит консолидации заказа по sibling-записям
// shipment-apar. Нулевой номер консоли означает одиночный заказ.
func (v *Void) consolidationKeys(orderNo string) []string {
	if v.source == nil {
		return nil
	}

	rows, err := v.source.QueryByKey(domain.TableQuery{
		Table:    ShipmentAparTable,
		KeyField: "FK_OrderNo",
		KeyValue: orderNo,
	})
	if err != nil {
		if !domain.IsTableMissing(err) {
			v.logger.WithError(err).WithField("order_no", orderNo).Warn("failed to resolve consolidations for canceled order")
		}
		return nil
	}

	seen := map[string]bool{}
	var keys []string
	for _, row := range rows {
		consolNo := strings.TrimSpace(row["ConsolNo"])
		if consolNo == "" || consolNo == "0" || seen[consolNo] {
			continue
		}
		seen[consolNo] = true
		keys = append(keys, consolNo)
	}
	return keys
}

// cancel аннулирует запись, если она была отправлена. Любой другой статус —
// no-op: нечего отменять во внешней TMS.
func (v *Void) cancel(key, reason string) error {
	if key == "" {
		return nil
	}

	entity, err := v.repo.Get(key)
	if err != nil {
		if domain.IsNotFound(err) {
			return nil
		}
		return fmt.Errorf("get entity: %w", err)
	}
	if entity.Lifecycle != domain.StatusSent {
		return nil
	}

	if err := v.sender.Cancel(entity, entity.Response); err != nil {
		return fmt.Errorf("cancel order in carrier: %w", err)
	}

	updated, err := v.repo.Update(key, func(e *domain.TrackedEntity) {
		if e.Lifecycle != domain.StatusSent {
			return
		}
		e.Lifecycle = domain.StatusCanceled
		e.RetryCount = 0
		e.LastUpdatedAt = time.Now().UTC()
		e.LastUpdatedBy = voidActor
	})
	if err != nil {
		return fmt.Errorf("mark entity canceled: %w", err)
	}
	if updated.Lifecycle != domain.StatusCanceled {
		return nil
	}

	if v.audit != nil {
		event := domain.TransitionEvent{
			ID:        uuid.NewString(),
			EntityKey: key,
			From:      domain.StatusSent,
			To:        domain.StatusCanceled,
			Actor:     voidActor,
			Reason:    reason,
			Occurred:  time.Now().UTC(),
		}
		if err := v.audit.Append(event); err != nil {
			v.logger.WithError(err).WithField("entity_key", key).Warn("failed to append void event")
		}
	}

	v.notifyVoid(updated, reason)
	v.logger.WithFields(log.Fields{
		"entity_key": key,
		"reason":     reason,
	}).Info("Sent entity voided in carrier TMS")

	return nil
}

func (v *Void) notifyVoid(entity domain.TrackedEntity, reason string) {
	if v.notifications == nil {
		return
	}

	notification := domain.Notification{
		ID:          uuid.NewString(),
		Subject:     fmt.Sprintf("Void notification ~ %s", entity.Key),
		Body:        fmt.Sprintf("The shipment associated with the following details has been cancelled:\nOrder ID: %s\nConsolidation Number: %s\nNote: %s", entity.Snapshot.OrderNo, entity.Snapshot.ConsolNo, reason),
		StationCode: entity.Snapshot.ControlStation,
		CreatedAt:   time.Now().UTC(),
	}
	if err := v.notifications.Publish(notification); err != nil {
		v.logger.WithError(err).WithField("entity_key", entity.Key).Warn("failed to publish void notification")
	}
}
