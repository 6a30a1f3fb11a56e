package domain

// Имена зависимых upstream-таблиц. Значения стабильны: они сериализуются
// в карте статусов и фигурируют в операторских уведомлениях.
const (
	DepShipmentHeader    DependencyName = "tbl_ShipmentHeader"
	DepShipmentDesc      DependencyName = "tbl_ShipmentDesc"
	DepConfirmationCost  DependencyName = "tbl_ConfirmationCost"
	DepShipper           DependencyName = "tbl_Shipper"
	DepConsignee         DependencyName = "tbl_Consignee"
	DepCustomers         DependencyName = "tbl_Customers"
	DepTimeZoneMaster    DependencyName = "tbl_TimeZoneMaster"
	DepTrackingNotes     DependencyName = "tbl_TrackingNotes"
	DepConsolStopHeaders DependencyName = "tbl_ConsolStopHeaders"
	DepConsolStopItems   DependencyName = "tbl_ConsolStopItems"
	DepUsers             DependencyName = "tbl_Users"
)

// QueryContext несёт идентификаторы, необходимые запросу зависимости.
// Для мультистопа OrderNo — номер заказа конкретной ноги.
type QueryContext struct {
	OrderNo  string
	ConsolNo string
}

// TableQuery — декларативное описание запроса к upstream-таблице.
type TableQuery struct {
	Table    string
	KeyField string
	KeyValue string
}

// catalogEntry описывает одну зависимость: начальный статус и построитель запроса.
type catalogEntry struct {
	initial DependencyState
	query   func(QueryContext) TableQuery
}

func byOrderNo(table, keyField string) func(QueryContext) TableQuery {
	return func(qc QueryContext) TableQuery {
		return TableQuery{Table: table, KeyField: keyField, KeyValue: qc.OrderNo}
	}
}

func byConsolNo(table, keyField string) func(QueryContext) TableQuery {
	return func(qc QueryContext) TableQuery {
		return TableQuery{Table: table, KeyField: keyField, KeyValue: qc.ConsolNo}
	}
}

// Каталог зависимостей по типу записи. tbl_TimeZoneMaster — справочник,
// он считается наполненным с самого начала.
var dependencyCatalog = map[EntityType]map[DependencyName]catalogEntry{
	TypeNonConsole: {
		DepConfirmationCost: {DepPending, byOrderNo("tbl_ConfirmationCost", "FK_OrderNo")},
		DepShipper:          {DepPending, byOrderNo("tbl_Shipper", "FK_ShipOrderNo")},
		DepConsignee:        {DepPending, byOrderNo("tbl_Consignee", "FK_ConOrderNo")},
		DepShipmentDesc:     {DepPending, byOrderNo("tbl_ShipmentDesc", "FK_OrderNo")},
		DepShipmentHeader:   {DepPending, byOrderNo("tbl_ShipmentHeader", "PK_OrderNo")},
		DepCustomers:        {DepPending, byOrderNo("tbl_Customers", "FK_OrderNo")},
		DepTimeZoneMaster:   {DepReady, byOrderNo("tbl_TimeZoneMaster", "FK_OrderNo")},
		DepTrackingNotes:    {DepPending, byOrderNo("tbl_TrackingNotes", "FK_OrderNo")},
	},
	TypeConsole: {
		DepConfirmationCost: {DepPending, byConsolNo("tbl_ConfirmationCost", "FK_OrderNo")},
		DepShipper:          {DepPending, byConsolNo("tbl_Shipper", "FK_ShipOrderNo")},
		DepConsignee:        {DepPending, byConsolNo("tbl_Consignee", "FK_ConOrderNo")},
		DepShipmentDesc:     {DepPending, byOrderNo("tbl_ShipmentDesc", "FK_OrderNo")},
		DepShipmentHeader:   {DepPending, byOrderNo("tbl_ShipmentHeader", "PK_OrderNo")},
		DepCustomers:        {DepPending, byOrderNo("tbl_Customers", "FK_OrderNo")},
		DepTimeZoneMaster:   {DepReady, byOrderNo("tbl_TimeZoneMaster", "FK_OrderNo")},
		DepTrackingNotes:    {DepPending, byOrderNo("tbl_TrackingNotes", "FK_OrderNo")},
	},
	TypeMultiStop: {
		DepShipmentHeader:    {DepPending, byOrderNo("tbl_ShipmentHeader", "PK_OrderNo")},
		DepConsolStopItems:   {DepPending, byConsolNo("tbl_ConsolStopItems", "FK_ConsolNo")},
		DepConsolStopHeaders: {DepPending, byConsolNo("tbl_ConsolStopHeaders", "FK_ConsolNo")},
		DepUsers:             {DepPending, byOrderNo("tbl_Users", "FK_OrderNo")},
		DepTimeZoneMaster:    {DepReady, byOrderNo("tbl_TimeZoneMaster", "FK_OrderNo")},
		DepCustomers:         {DepPending, byOrderNo("tbl_Customers", "FK_OrderNo")},
		DepShipmentDesc:      {DepPending, byOrderNo("tbl_ShipmentDesc", "FK_OrderNo")},
	},
}

// DependenciesFor возвращает стартовую карту статусов для типа записи.
func DependenciesFor(entityType EntityType) (DependencyStatusMap, error) {
	entries, ok := dependencyCatalog[entityType]
	if !ok {
		return nil, ErrUnknownEntityType
	}
	deps := make(DependencyStatusMap, len(entries))
	for name, entry := range entries {
		deps[name] = entry.initial
	}
	return deps, nil
}

// QueryFor строит запрос зависимости для данного типа записи.
func QueryFor(entityType EntityType, dep DependencyName, qc QueryContext) (TableQuery, error) {
	entries, ok := dependencyCatalog[entityType]
	if !ok {
		return TableQuery{}, ErrUnknownEntityType
	}
	entry, ok := entries[dep]
	if !ok {
		return TableQuery{}, ErrUnknownDependency
	}
	return entry.query(qc), nil
}
