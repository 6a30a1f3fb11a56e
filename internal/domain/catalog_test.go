package domain

import (
	"errors"
	"testing"
)

func TestDependenciesFor_UnknownType(t *testing.T) {
	if _, err := DependenciesFor(EntityType("P2P")); !errors.Is(err, ErrUnknownEntityType) {
		t.Fatalf("expected ErrUnknownEntityType, got %v", err)
	}
}

func TestQueryFor_OrderScoped(t *testing.T) {
	q, err := QueryFor(TypeNonConsole, DepShipmentHeader, QueryContext{OrderNo: "4100001"})
	if err != nil {
		t.Fatalf("query for shipment header: %v", err)
	}
	if q.Table != "tbl_ShipmentHeader" || q.KeyField != "PK_OrderNo" || q.KeyValue != "4100001" {
		t.Fatalf("unexpected query: %+v", q)
	}
}

func TestQueryFor_ConsolScoped(t *testing.T) {
	q, err := QueryFor(TypeMultiStop, DepConsolStopHeaders, QueryContext{OrderNo: "4100001", ConsolNo: "7700"})
	if err != nil {
		t.Fatalf("query for consol stop headers: %v", err)
	}
	if q.KeyField != "FK_ConsolNo" || q.KeyValue != "7700" {
		t.Fatalf("unexpected query: %+v", q)
	}
}

func TestQueryFor_UnknownDependency(t *testing.T) {
	if _, err := QueryFor(TypeNonConsole, DepConsolStopItems, QueryContext{}); !errors.Is(err, ErrUnknownDependency) {
		t.Fatalf("expected ErrUnknownDependency, got %v", err)
	}
}

func TestRequiredFieldsFor_FallsBackToDependencyName(t *testing.T) {
	fields := RequiredFieldsFor(DependencyName("tbl_Whatever"))
	if len(fields) != 1 || fields[0] != "tbl_Whatever" {
		t.Fatalf("expected fallback to dependency name, got %v", fields)
	}
}
