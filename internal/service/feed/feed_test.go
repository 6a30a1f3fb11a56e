package feed

import (
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/vladislavdragonenkov/fos/internal/domain"
)

type stubEntityRepo struct {
	mu       sync.Mutex
	entities map[string]domain.TrackedEntity
}

func newStubEntityRepo(entities ...domain.TrackedEntity) *stubEntityRepo {
	repo := &stubEntityRepo{entities: make(map[string]domain.TrackedEntity)}
	for _, entity := range entities {
		repo.entities[entity.Key] = entity
	}
	return repo
}

func (r *stubEntityRepo) Create(entity domain.TrackedEntity) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.entities[entity.Key]; ok {
		return domain.ErrEntityExists
	}
	r.entities[entity.Key] = entity
	return nil
}

func (r *stubEntityRepo) Get(key string) (domain.TrackedEntity, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	entity, ok := r.entities[key]
	if !ok {
		return domain.TrackedEntity{}, domain.ErrEntityNotFound
	}
	return entity, nil
}

func (r *stubEntityRepo) Update(key string, mutate func(*domain.TrackedEntity)) (domain.TrackedEntity, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	entity, ok := r.entities[key]
	if !ok {
		return domain.TrackedEntity{}, domain.ErrEntityNotFound
	}
	mutate(&entity)
	r.entities[key] = entity
	return entity, nil
}

func (r *stubEntityRepo) ListByStatus(status domain.LifecycleStatus) ([]domain.TrackedEntity, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var result []domain.TrackedEntity
	for _, entity := range r.entities {
		if entity.Lifecycle == status {
			result = append(result, entity)
		}
	}
	return result, nil
}

type stubTableSource struct {
	rows map[string][]domain.Row
}

func (s *stubTableSource) QueryByKey(q domain.TableQuery) ([]domain.Row, error) {
	if s.rows == nil {
		return nil, domain.ErrTableMissing
	}
	return s.rows[q.Table], nil
}

type stubCanceler struct {
	mu       sync.Mutex
	err      error
	canceled []string
}

func (s *stubCanceler) Send(entity domain.TrackedEntity) (json.RawMessage, error) {
	return nil, errors.New("not used")
}

func (s *stubCanceler) Cancel(entity domain.TrackedEntity, prior json.RawMessage) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err != nil {
		return s.err
	}
	s.canceled = append(s.canceled, entity.Key)
	return nil
}

func nonConsoleImage(orderNo string) map[string]string {
	return map[string]string{
		"FK_OrderNo":         orderNo,
		"ConsolNo":           "0",
		"FK_ServiceId":       "HS",
		"FK_VendorId":        "LIVELOGI",
		"Consolidation":      "N",
		"FK_ConsolStationId": "DAL",
		"SeqNo":              "1",
		"UpdatedBy":          "jdoe",
		"CreateDateTime":     "2026-08-01 10:00:00",
	}
}

func multiStopImage(orderNo, consolNo string) map[string]string {
	return map[string]string{
		"FK_OrderNo":         orderNo,
		"ConsolNo":           consolNo,
		"FK_ServiceId":       "MT",
		"FK_VendorId":        "LIVELOGI",
		"Consolidation":      "N",
		"FK_ConsolStationId": "OTR",
		"SeqNo":              "1",
	}
}

func TestClassify(t *testing.T) {
	t.Parallel()

	cases := []struct {
		name    string
		image   map[string]string
		want    domain.EntityType
		tracked bool
	}{
		{"non console", nonConsoleImage("4100001"), domain.TypeNonConsole, true},
		{
			"console",
			map[string]string{
				"FK_OrderNo": "4100001", "ConsolNo": "7700", "FK_ServiceId": "TL",
				"FK_VendorId": "LIVELOGI", "Consolidation": "Y", "FK_ConsolStationId": "OTR",
			},
			domain.TypeConsole, true,
		},
		{"multi stop", multiStopImage("4100001", "7700"), domain.TypeMultiStop, true},
		{
			"wrong vendor",
			map[string]string{
				"FK_OrderNo": "4100001", "ConsolNo": "0", "FK_ServiceId": "HS", "FK_VendorId": "OTHER",
			},
			"", false,
		},
		{
			"console outside otr",
			map[string]string{
				"FK_OrderNo": "4100001", "ConsolNo": "7700", "FK_ServiceId": "HS",
				"FK_VendorId": "LIVELOGI", "Consolidation": "Y", "FK_ConsolStationId": "DAL",
			},
			"", false,
		},
		{
			"unparseable consol number",
			map[string]string{
				"FK_OrderNo": "4100001", "ConsolNo": "abc", "FK_ServiceId": "HS", "FK_VendorId": "LIVELOGI",
			},
			"", false,
		},
	}

	for _, tc := range cases {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			got, tracked := Classify(SnapshotFromImage(tc.image))
			if tracked != tc.tracked {
				t.Fatalf("expected tracked=%v, got %v", tc.tracked, tracked)
			}
			if tracked && got != tc.want {
				t.Fatalf("expected type %s, got %s", tc.want, got)
			}
		})
	}
}

func TestIntake_CreatesNonConsoleEntity(t *testing.T) {
	t.Parallel()

	repo := newStubEntityRepo()
	intake := NewIntake(repo, &stubTableSource{}, nil, nil)

	entity, created, err := intake.Handle(domain.ChangeEvent{
		TableName: ShipmentAparTable,
		Key:       "4100001",
		NewImage:  nonConsoleImage("4100001"),
	})
	if err != nil {
		t.Fatalf("intake handle: %v", err)
	}
	if !created {
		t.Fatal("expected entity to be created")
	}
	if entity.EntityType != domain.TypeNonConsole {
		t.Fatalf("expected NON_CONSOLE, got %s", entity.EntityType)
	}
	if entity.Lifecycle != domain.StatusPending {
		t.Fatalf("expected PENDING, got %s", entity.Lifecycle)
	}
	if entity.Snapshot.UpdatedBy != "jdoe" {
		t.Fatal("snapshot must be captured from the event image")
	}
}

func TestIntake_IsIdempotent(t *testing.T) {
	t.Parallel()

	repo := newStubEntityRepo()
	intake := NewIntake(repo, &stubTableSource{}, nil, nil)

	event := domain.ChangeEvent{TableName: ShipmentAparTable, Key: "4100001", NewImage: nonConsoleImage("4100001")}
	if _, created, err := intake.Handle(event); err != nil || !created {
		t.Fatalf("first handle: created=%v err=%v", created, err)
	}

	_, created, err := intake.Handle(event)
	if err != nil {
		t.Fatalf("second handle: %v", err)
	}
	if created {
		t.Fatal("duplicate event must not create a second entity")
	}
}

func TestIntake_IgnoresUntrackedSnapshots(t *testing.T) {
	t.Parallel()

	repo := newStubEntityRepo()
	intake := NewIntake(repo, &stubTableSource{}, nil, nil)

	image := nonConsoleImage("4100001")
	image["FK_VendorId"] = "OTHER"

	_, created, err := intake.Handle(domain.ChangeEvent{TableName: ShipmentAparTable, NewImage: image})
	if err != nil {
		t.Fatalf("handle: %v", err)
	}
	if created {
		t.Fatal("untracked snapshot must not create an entity")
	}
}

func TestIntake_MultiStopCollectsSiblingLegs(t *testing.T) {
	t.Parallel()

	repo := newStubEntityRepo()
	source := &stubTableSource{rows: map[string][]domain.Row{
		ShipmentAparTable: {
			{"FK_OrderNo": "4100002", "Consolidation": "N", "FK_ServiceId": "MT", "SeqNo": "2"},
			{"FK_OrderNo": "4100003", "Consolidation": "N", "FK_ServiceId": "MT", "SeqNo": "3"},
			// Агрегирующая запись консоли и чужой сервис не являются ногами.
			{"FK_OrderNo": "7700", "Consolidation": "N", "FK_ServiceId": "MT", "SeqNo": "9999"},
			{"FK_OrderNo": "4100004", "Consolidation": "N", "FK_ServiceId": "HS", "SeqNo": "4"},
		},
	}}
	intake := NewIntake(repo, source, nil, nil)

	entity, created, err := intake.Handle(domain.ChangeEvent{
		TableName: ShipmentAparTable,
		Key:       "4100001",
		NewImage:  multiStopImage("4100001", "7700"),
	})
	if err != nil {
		t.Fatalf("intake handle: %v", err)
	}
	if !created {
		t.Fatal("expected multi-stop entity to be created")
	}
	if entity.Key != "7700" {
		t.Fatalf("multi-stop entity must be keyed by consol number, got %s", entity.Key)
	}
	if len(entity.Legs) != 3 {
		t.Fatalf("expected legs for 4100001, 4100002, 4100003; got %d", len(entity.Legs))
	}
	for _, leg := range []string{"4100001", "4100002", "4100003"} {
		if _, ok := entity.Legs[leg]; !ok {
			t.Fatalf("missing leg %s", leg)
		}
	}
}

func TestRetrigger_ResetsFailedEntity(t *testing.T) {
	t.Parallel()

	entity, _ := domain.NewTrackedEntity("4100001", domain.TypeNonConsole, domain.ShipmentSnapshot{OrderNo: "4100001"}, time.Now().UTC())
	entity.Lifecycle = domain.StatusFailed
	entity.RetryCount = 6
	repo := newStubEntityRepo(entity)

	retrigger := NewRetrigger(repo, nil, nil)
	if err := retrigger.Apply("4100001"); err != nil {
		t.Fatalf("apply: %v", err)
	}

	got, _ := repo.Get("4100001")
	if got.Lifecycle != domain.StatusPending {
		t.Fatalf("expected PENDING, got %s", got.Lifecycle)
	}
	if got.RetryCount != 0 {
		t.Fatalf("expected retry count reset to 0, got %d", got.RetryCount)
	}
}

func TestRetrigger_NoopForNonFailed(t *testing.T) {
	t.Parallel()

	entity, _ := domain.NewTrackedEntity("4100001", domain.TypeNonConsole, domain.ShipmentSnapshot{}, time.Now().UTC())
	entity.Lifecycle = domain.StatusSent
	entity.RetryCount = 2
	repo := newStubEntityRepo(entity)

	retrigger := NewRetrigger(repo, nil, nil)
	if err := retrigger.Apply("4100001"); err != nil {
		t.Fatalf("apply: %v", err)
	}

	got, _ := repo.Get("4100001")
	if got.Lifecycle != domain.StatusSent || got.RetryCount != 2 {
		t.Fatal("non-FAILED entity must not be touched")
	}
}

func TestRetrigger_NoopForMissingEntity(t *testing.T) {
	t.Parallel()

	retrigger := NewRetrigger(newStubEntityRepo(), nil, nil)
	if err := retrigger.Apply("absent"); err != nil {
		t.Fatalf("missing entity must be a no-op, got %v", err)
	}
}

func sentEntity(t *testing.T, key string) domain.TrackedEntity {
	t.Helper()
	entity, err := domain.NewTrackedEntity(key, domain.TypeNonConsole,
		domain.ShipmentSnapshot{OrderNo: key, ConsolNo: "0", ServiceLevelID: "HS", VendorID: TrackedVendor},
		time.Now().UTC())
	if err != nil {
		t.Fatalf("new entity: %v", err)
	}
	entity.Lifecycle = domain.StatusSent
	entity.RetryCount = 1
	entity.Response = json.RawMessage(`{"id":"carrier-1"}`)
	return entity
}

func TestVoid_VendorMovedAwayCancelsSentEntity(t *testing.T) {
	t.Parallel()

	repo := newStubEntityRepo(sentEntity(t, "4100001"))
	canceler := &stubCanceler{}
	void := NewVoid(repo, &stubTableSource{}, canceler, nil, nil, nil)

	oldImage := nonConsoleImage("4100001")
	newImage := nonConsoleImage("4100001")
	newImage["FK_VendorId"] = "OTHER"

	err := void.HandleAparEvent(domain.ChangeEvent{
		TableName: ShipmentAparTable,
		Key:       "4100001",
		OldImage:  oldImage,
		NewImage:  newImage,
	})
	if err != nil {
		t.Fatalf("handle apar event: %v", err)
	}

	got, _ := repo.Get("4100001")
	if got.Lifecycle != domain.StatusCanceled {
		t.Fatalf("expected CANCELED, got %s", got.Lifecycle)
	}
	if got.RetryCount != 0 {
		t.Fatalf("void must reset retry count, got %d", got.RetryCount)
	}
	if len(canceler.canceled) != 1 || canceler.canceled[0] != "4100001" {
		t.Fatalf("expected one cancel call for 4100001, got %v", canceler.canceled)
	}
}

func TestVoid_NoopWhenNotSent(t *testing.T) {
	t.Parallel()

	entity := sentEntity(t, "4100001")
	entity.Lifecycle = domain.StatusPending
	repo := newStubEntityRepo(entity)
	canceler := &stubCanceler{}
	void := NewVoid(repo, &stubTableSource{}, canceler, nil, nil, nil)

	oldImage := nonConsoleImage("4100001")
	newImage := nonConsoleImage("4100001")
	newImage["FK_VendorId"] = ""

	if err := void.HandleAparEvent(domain.ChangeEvent{OldImage: oldImage, NewImage: newImage}); err != nil {
		t.Fatalf("handle apar event: %v", err)
	}

	got, _ := repo.Get("4100001")
	if got.Lifecycle != domain.StatusPending {
		t.Fatalf("non-SENT entity must not be voided, got %s", got.Lifecycle)
	}
	if len(canceler.canceled) != 0 {
		t.Fatal("cancel must not be called for non-SENT entities")
	}
}

func TestVoid_CancelFailureKeepsEntitySent(t *testing.T) {
	t.Parallel()

	repo := newStubEntityRepo(sentEntity(t, "4100001"))
	canceler := &stubCanceler{err: errors.New("carrier unavailable")}
	void := NewVoid(repo, &stubTableSource{}, canceler, nil, nil, nil)

	oldImage := nonConsoleImage("4100001")
	newImage := nonConsoleImage("4100001")
	newImage["FK_VendorId"] = "OTHER"

	err := void.HandleAparEvent(domain.ChangeEvent{OldImage: oldImage, NewImage: newImage})
	if err == nil {
		t.Fatal("expected cancel failure to surface")
	}

	got, _ := repo.Get("4100001")
	if got.Lifecycle != domain.StatusSent {
		t.Fatalf("entity must stay SENT when cancel fails, got %s", got.Lifecycle)
	}
}

func TestVoid_HeaderCancellation(t *testing.T) {
	t.Parallel()

	repo := newStubEntityRepo(sentEntity(t, "4100001"))
	canceler := &stubCanceler{}
	void := NewVoid(repo, &stubTableSource{}, canceler, nil, nil, nil)

	err := void.HandleHeaderEvent(domain.ChangeEvent{
		TableName: ShipmentHeaderTable,
		Key:       "4100001",
		NewImage:  map[string]string{"PK_OrderNo": "4100001", "FK_OrderStatusId": "CAN"},
	})
	if err != nil {
		t.Fatalf("handle header event: %v", err)
	}

	got, _ := repo.Get("4100001")
	if got.Lifecycle != domain.StatusCanceled {
		t.Fatalf("expected CANCELED, got %s", got.Lifecycle)
	}
}

func TestVoid_HeaderCancellationCancelsConsolidation(t *testing.T) {
	t.Parallel()

	entity, err := domain.NewTrackedEntity("500", domain.TypeConsole,
		domain.ShipmentSnapshot{OrderNo: "100", ConsolNo: "500", ServiceLevelID: "HS",
			VendorID: TrackedVendor, Consolidation: "Y", ControlStation: OverTheRoadStation},
		time.Now().UTC())
	if err != nil {
		t.Fatalf("new entity: %v", err)
	}
	entity.Lifecycle = domain.StatusSent
	entity.Response = json.RawMessage(`{"id":"carrier-500"}`)
	repo := newStubEntityRepo(entity)

	// Заказ "100" — нога консолидации "500", видимая через shipment-apar.
	source := &stubTableSource{rows: map[string][]domain.Row{
		ShipmentAparTable: {
			{"FK_OrderNo": "100", "ConsolNo": "500"},
		},
	}}
	canceler := &stubCanceler{}
	void := NewVoid(repo, source, canceler, nil, nil, nil)

	err = void.HandleHeaderEvent(domain.ChangeEvent{
		TableName: ShipmentHeaderTable,
		Key:       "100",
		NewImage:  map[string]string{"PK_OrderNo": "100", "FK_OrderStatusId": "CAN"},
	})
	if err != nil {
		t.Fatalf("handle header event: %v", err)
	}

	got, _ := repo.Get("500")
	if got.Lifecycle != domain.StatusCanceled {
		t.Fatalf("consolidation tracked by consol number must be voided, got %s", got.Lifecycle)
	}
	if len(canceler.canceled) != 1 || canceler.canceled[0] != "500" {
		t.Fatalf("expected one cancel call for 500, got %v", canceler.canceled)
	}
}

func TestVoid_HeaderCancellationIgnoresSingleOrderConsolZero(t *testing.T) {
	t.Parallel()

	repo := newStubEntityRepo(sentEntity(t, "4100001"))
	source := &stubTableSource{rows: map[string][]domain.Row{
		ShipmentAparTable: {
			{"FK_OrderNo": "4100001", "ConsolNo": "0"},
		},
	}}
	canceler := &stubCanceler{}
	void := NewVoid(repo, source, canceler, nil, nil, nil)

	err := void.HandleHeaderEvent(domain.ChangeEvent{
		TableName: ShipmentHeaderTable,
		Key:       "4100001",
		NewImage:  map[string]string{"PK_OrderNo": "4100001", "FK_OrderStatusId": "CAN"},
	})
	if err != nil {
		t.Fatalf("handle header event: %v", err)
	}

	if len(canceler.canceled) != 1 || canceler.canceled[0] != "4100001" {
		t.Fatalf("consol number 0 must not trigger a second cancel, got %v", canceler.canceled)
	}
}

func TestHandler_RoutesAparInsertToIntake(t *testing.T) {
	t.Parallel()

	repo := newStubEntityRepo()
	handler := NewHandler(
		NewIntake(repo, &stubTableSource{}, nil, nil),
		NewRetrigger(repo, nil, nil),
		NewVoid(repo, &stubTableSource{}, &stubCanceler{}, nil, nil, nil),
		nil,
	)

	err := handler.Handle(domain.ChangeEvent{
		TableName: ShipmentAparTable,
		Key:       "4100001",
		NewImage:  nonConsoleImage("4100001"),
	})
	if err != nil {
		t.Fatalf("handle: %v", err)
	}

	if _, err := repo.Get("4100001"); err != nil {
		t.Fatalf("expected entity to be created: %v", err)
	}
}

func TestHandler_AparUpdateRetriggersFailedEntity(t *testing.T) {
	t.Parallel()

	entity, _ := domain.NewTrackedEntity("4100001", domain.TypeNonConsole, domain.ShipmentSnapshot{OrderNo: "4100001"}, time.Now().UTC())
	entity.Lifecycle = domain.StatusFailed
	entity.RetryCount = 6
	repo := newStubEntityRepo(entity)

	handler := NewHandler(
		NewIntake(repo, &stubTableSource{}, nil, nil),
		NewRetrigger(repo, nil, nil),
		NewVoid(repo, &stubTableSource{}, &stubCanceler{}, nil, nil, nil),
		nil,
	)

	err := handler.Handle(domain.ChangeEvent{
		TableName: ShipmentAparTable,
		Key:       "4100001",
		OldImage:  nonConsoleImage("4100001"),
		NewImage:  nonConsoleImage("4100001"),
	})
	if err != nil {
		t.Fatalf("handle: %v", err)
	}

	got, _ := repo.Get("4100001")
	if got.Lifecycle != domain.StatusPending || got.RetryCount != 0 {
		t.Fatalf("expected retriggered entity, got %s retry=%d", got.Lifecycle, got.RetryCount)
	}
}

func TestHandler_DependencyTableEventRetriggers(t *testing.T) {
	t.Parallel()

	entity, _ := domain.NewTrackedEntity("4100001", domain.TypeNonConsole, domain.ShipmentSnapshot{OrderNo: "4100001"}, time.Now().UTC())
	entity.Lifecycle = domain.StatusFailed
	repo := newStubEntityRepo(entity)

	handler := NewHandler(
		NewIntake(repo, &stubTableSource{}, nil, nil),
		NewRetrigger(repo, nil, nil),
		NewVoid(repo, &stubTableSource{}, &stubCanceler{}, nil, nil, nil),
		nil,
	)

	err := handler.Handle(domain.ChangeEvent{
		TableName: "tbl_ConfirmationCost",
		Key:       "4100001",
		NewImage:  map[string]string{"FK_OrderNo": "4100001"},
	})
	if err != nil {
		t.Fatalf("handle: %v", err)
	}

	got, _ := repo.Get("4100001")
	if got.Lifecycle != domain.StatusPending {
		t.Fatalf("dependency table event must retrigger FAILED entity, got %s", got.Lifecycle)
	}
}
