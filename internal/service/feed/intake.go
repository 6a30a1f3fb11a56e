package feed

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	log "github.com/sirupsen/logrus"

	"github.com/vladislavdragonenkov/fos/internal/domain"
)

const (
	// TrackedVendor — идентификатор перевозчика, чьи заказы оркестрируются.
	TrackedVendor = "LIVELOGI"
	// OverTheRoadStation — станция контроля, обслуживающая консолидации.
	OverTheRoadStation = "OTR"
	// ShipmentAparTable — корневая upstream-таблица, с которой начинается intake.
	ShipmentAparTable = "tbl_ShipmentApar"

	intakeActor = "intake"
	// SeqNo 9999 помечает агрегирующую запись консоли, а не ногу.
	consolAggregateSeqNo = "9999"
)

// SnapshotFromImage собирает срез shipment-apar из образа change-feed события.
func SnapshotFromImage(image map[string]string) domain.ShipmentSnapshot {
	return domain.ShipmentSnapshot{
		OrderNo:        image["FK_OrderNo"],
		ConsolNo:       image["ConsolNo"],
		ServiceLevelID: image["FK_ServiceId"],
		VendorID:       strings.ToUpper(image["FK_VendorId"]),
		Consolidation:  image["Consolidation"],
		ControlStation: image["FK_ConsolStationId"],
		SeqNo:          image["SeqNo"],
		UpdatedBy:      image["UpdatedBy"],
		CreateDateTime: image["CreateDateTime"],
	}
}

// Classify определяет тип записи по бизнес-предикатам среза.
// Срез, не подходящий ни под один тип, не отслеживается.
func Classify(s domain.ShipmentSnapshot) (domain.EntityType, bool) {
	consolNo, consolErr := strconv.Atoi(strings.TrimSpace(s.ConsolNo))
	highwayService := s.ServiceLevelID == "HS" || s.ServiceLevelID == "TL"

	if consolErr == nil && consolNo == 0 && highwayService && s.VendorID == TrackedVendor {
		return domain.TypeNonConsole, true
	}
	if consolErr == nil && consolNo > 0 && s.Consolidation == "Y" && highwayService &&
		s.VendorID == TrackedVendor && s.ControlStation == OverTheRoadStation {
		return domain.TypeConsole, true
	}
	if consolErr == nil && s.Consolidation == "N" && s.ServiceLevelID == "MT" &&
		s.ControlStation == OverTheRoadStation {
		return domain.TypeMultiStop, true
	}
	return "", false
}

// entityKeyFor возвращает ключ записи: номер заказа для одиночных,
// номер консоли для консолидированных типов.
func entityKeyFor(entityType domain.EntityType, s domain.ShipmentSnapshot) string {
	if entityType == domain.TypeNonConsole {
		return s.OrderNo
	}
	return strings.TrimSpace(s.ConsolNo)
}

// Intake создаёт отслеживаемые записи из событий вставки shipment-apar.
// Создание идемпотентно: повторное событие по существующему ключу — no-op.
type Intake struct {
	repo   domain.EntityRepository
	source domain.TableSource
	audit  domain.AuditRepository
	logger *log.Entry
}

// NewIntake создаёт intake-сервис.
func NewIntake(repo domain.EntityRepository, source domain.TableSource, audit domain.AuditRepository, logger *log.Entry) *Intake {
	if logger == nil {
		logger = log.New().WithField("component", "feed-intake")
	}

	return &Intake{
		repo:   repo,
		source: source,
		audit:  audit,
		logger: logger,
	}
}

// Handle обрабатывает одно событие shipment-apar. Возвращает созданную запись
// и признак того, что создание произошло.
func (in *Intake) Handle(event domain.ChangeEvent) (domain.TrackedEntity, bool, error) {
	snapshot := SnapshotFromImage(event.NewImage)

	entityType, tracked := Classify(snapshot)
	if !tracked {
		return domain.TrackedEntity{}, false, nil
	}

	key := entityKeyFor(entityType, snapshot)
	if key == "" {
		return domain.TrackedEntity{}, false, fmt.Errorf("%w: empty key for %s event", domain.ErrKeyRequired, entityType)
	}

	now := time.Now().UTC()

	var (
		entity domain.TrackedEntity
		err    error
	)
	if entityType == domain.TypeMultiStop {
		legs, legsErr := in.collectLegs(key, snapshot)
		if legsErr != nil {
			return domain.TrackedEntity{}, false, fmt.Errorf("collect consolidation legs: %w", legsErr)
		}
		entity, err = domain.NewMultiStopEntity(key, legs, snapshot, now)
	} else {
		entity, err = domain.NewTrackedEntity(key, entityType, snapshot, now)
	}
	if err != nil {
		return domain.TrackedEntity{}, false, fmt.Errorf("build entity: %w", err)
	}

	if err := in.repo.Create(entity); err != nil {
		if err == domain.ErrEntityExists {
			in.logger.WithFields(log.Fields{
				"entity_key":  key,
				"entity_type": entityType,
			}).Debug("entity already tracked, skipping intake")
			return domain.TrackedEntity{}, false, nil
		}
		return domain.TrackedEntity{}, false, fmt.Errorf("create entity: %w", err)
	}

	in.appendCreated(entity)
	in.logger.WithFields(log.Fields{
		"entity_key":  key,
		"entity_type": entityType,
		"order_no":    snapshot.OrderNo,
	}).Info("Entity created from upstream insertion")

	return entity, true, nil
}

// collectLegs собирает номера заказов-ног консолидации из sibling-записей
// shipment-apar. Триггерный заказ включается всегда.
func (in *Intake) collectLegs(consolNo string, snapshot domain.ShipmentSnapshot) ([]string, error) {
	seen := map[string]bool{}
	var legs []string
	appendLeg := func(orderNo string) {
		if orderNo == "" || seen[orderNo] {
			return
		}
		seen[orderNo] = true
		legs = append(legs, orderNo)
	}

	appendLeg(snapshot.OrderNo)

	rows, err := in.source.QueryByKey(domain.TableQuery{
		Table:    ShipmentAparTable,
		KeyField: "ConsolNo",
		KeyValue: consolNo,
	})
	if err != nil {
		if domain.IsTableMissing(err) {
			return legs, nil
		}
		return nil, err
	}

	for _, row := range rows {
		if row["Consolidation"] != "N" || row["FK_ServiceId"] != "MT" {
			continue
		}
		if row["SeqNo"] == consolAggregateSeqNo {
			continue
		}
		appendLeg(row["FK_OrderNo"])
	}

	return legs, nil
}

func (in *Intake) appendCreated(entity domain.TrackedEntity) {
	if in.audit == nil {
		return
	}

	event := domain.TransitionEvent{
		ID:        uuid.NewString(),
		EntityKey: entity.Key,
		From:      domain.StatusPending,
		To:        domain.StatusPending,
		Actor:     intakeActor,
		Reason:    fmt.Sprintf("created as %s", entity.EntityType),
		Occurred:  time.Now().UTC(),
	}
	if err := in.audit.Append(event); err != nil {
		in.logger.WithError(err).WithField("entity_key", entity.Key).Warn("failed to append creation event")
	}
}
