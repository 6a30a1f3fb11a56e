package domain

// requiredFields сопоставляет зависимость со списком бизнес-полей,
// которые оператор должен заполнить, чтобы таблица считалась наполненной.
// Текст попадает в уведомления как есть.
var requiredFields = map[DependencyName][]string{
	DepShipmentHeader:    {"Shipment header (bill to, ready date, order status)"},
	DepShipmentDesc:      {"Shipment description (pieces, weight, commodity)"},
	DepConfirmationCost:  {"Confirmation cost (shipper and consignee name, address, city, state, country)"},
	DepShipper:           {"Shipper name", "Shipper address", "Shipper city", "Shipper state", "Shipper country"},
	DepConsignee:         {"Consignee name", "Consignee address", "Consignee city", "Consignee state", "Consignee country"},
	DepCustomers:         {"Customer record (bill-to customer id)"},
	DepTimeZoneMaster:    {"Time zone reference"},
	DepTrackingNotes:     {"Tracking note with pickup instructions"},
	DepConsolStopHeaders: {"Consol stop headers (stop sequence, address, appointment times)"},
	DepConsolStopItems:   {"Consol stop items (order to stop mapping)"},
	DepUsers:             {"Operator user record (email, station)"},
}

// RequiredFieldsFor возвращает человекочитаемый список полей для зависимости.
func RequiredFieldsFor(dep DependencyName) []string {
	fields, ok := requiredFields[dep]
	if !ok {
		return []string{string(dep)}
	}
	return fields
}
