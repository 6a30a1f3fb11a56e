package domain

import (
	"errors"
	"testing"
	"time"
)

func TestNewTrackedEntity_SeedsCatalogSet(t *testing.T) {
	now := time.Now().UTC()
	entity, err := NewTrackedEntity("4100001", TypeNonConsole, ShipmentSnapshot{OrderNo: "4100001"}, now)
	if err != nil {
		t.Fatalf("new entity: %v", err)
	}

	if entity.Lifecycle != StatusPending {
		t.Fatalf("expected initial status PENDING, got %s", entity.Lifecycle)
	}
	if len(entity.Dependencies) != 8 {
		t.Fatalf("expected 8 dependencies for NON_CONSOLE, got %d", len(entity.Dependencies))
	}
	if entity.Dependencies[DepTimeZoneMaster] != DepReady {
		t.Fatalf("time zone reference must start READY")
	}
	if entity.Dependencies[DepConfirmationCost] != DepPending {
		t.Fatalf("confirmation cost must start PENDING")
	}
	if errs := entity.ValidateInvariants(); len(errs) != 0 {
		t.Fatalf("expected no invariant violations, got %v", errs)
	}
}

func TestNewTrackedEntity_RejectsMultiStop(t *testing.T) {
	_, err := NewTrackedEntity("100", TypeMultiStop, ShipmentSnapshot{}, time.Now().UTC())
	if !errors.Is(err, ErrLegsRequired) {
		t.Fatalf("expected ErrLegsRequired, got %v", err)
	}
}

func TestNewMultiStopEntity_PerLegDependencies(t *testing.T) {
	entity, err := NewMultiStopEntity("7700", []string{"4100001", "4100002"}, ShipmentSnapshot{ConsolNo: "7700"}, time.Now().UTC())
	if err != nil {
		t.Fatalf("new multi-stop entity: %v", err)
	}

	if len(entity.Legs) != 2 {
		t.Fatalf("expected 2 legs, got %d", len(entity.Legs))
	}
	for leg, deps := range entity.Legs {
		if len(deps) != 7 {
			t.Fatalf("leg %s: expected 7 dependencies, got %d", leg, len(deps))
		}
		if deps[DepTimeZoneMaster] != DepReady {
			t.Fatalf("leg %s: time zone reference must start READY", leg)
		}
	}
	if errs := entity.ValidateInvariants(); len(errs) != 0 {
		t.Fatalf("expected no invariant violations, got %v", errs)
	}
}

func TestValidateInvariants_DependencySetMismatch(t *testing.T) {
	entity, err := NewTrackedEntity("4100001", TypeConsole, ShipmentSnapshot{}, time.Now().UTC())
	if err != nil {
		t.Fatalf("new entity: %v", err)
	}
	entity.Dependencies["tbl_Unknown"] = DepPending
	delete(entity.Dependencies, DepShipper)

	errs := entity.ValidateInvariants()
	found := false
	for _, e := range errs {
		if errors.Is(e, ErrDependencySetMismatch) {
			found = true
		}
	}
	if !found {
		t.Fatalf("expected ErrDependencySetMismatch, got %v", errs)
	}
}

func TestClone_DoesNotAliasOriginal(t *testing.T) {
	deps := DependencyStatusMap{DepShipper: DepPending}
	clone := deps.Clone()
	clone[DepShipper] = DepReady

	if deps[DepShipper] != DepPending {
		t.Fatalf("clone must not alias the original map")
	}
}

func TestIsTerminal(t *testing.T) {
	cases := []struct {
		status   LifecycleStatus
		terminal bool
	}{
		{StatusPending, false},
		{StatusReady, false},
		{StatusFailed, false},
		{StatusSent, true},
		{StatusCanceled, true},
	}
	for _, tc := range cases {
		e := TrackedEntity{Lifecycle: tc.status}
		if e.IsTerminal() != tc.terminal {
			t.Fatalf("status %s: expected terminal=%v", tc.status, tc.terminal)
		}
	}
}
