package postgres

import (
	"strings"
	"testing"
	"testing/fstest"
)

func TestLoadMigrationsFromFS_Embedded(t *testing.T) {
	t.Parallel()

	migrations, err := loadMigrationsFromFS(migrationsFS)
	if err != nil {
		t.Fatalf("load embedded migrations: %v", err)
	}
	if len(migrations) == 0 {
		t.Fatal("expected at least one embedded migration")
	}
	for i, m := range migrations {
		if m.UpSQL == "" || m.DownSQL == "" {
			t.Fatalf("migration %d_%s must have both directions", m.Version, m.Name)
		}
		if i > 0 && migrations[i-1].Version >= m.Version {
			t.Fatalf("migrations must be sorted by version: %d then %d", migrations[i-1].Version, m.Version)
		}
	}
}

func TestLoadMigrationsFromFS_MissingDown(t *testing.T) {
	t.Parallel()

	fsys := fstest.MapFS{
		"sql/migrations/0001_create_entities.up.sql": &fstest.MapFile{Data: []byte("CREATE TABLE t (id INT)")},
	}

	_, err := loadMigrationsFromFS(fsys)
	if err == nil || !strings.Contains(err.Error(), "must have both up and down files") {
		t.Fatalf("expected both-directions error, got %v", err)
	}
}

func TestLoadMigrationsFromFS_InvalidName(t *testing.T) {
	t.Parallel()

	fsys := fstest.MapFS{
		"sql/migrations/entities.sql": &fstest.MapFile{Data: []byte("SELECT 1")},
	}

	_, err := loadMigrationsFromFS(fsys)
	if err == nil || !strings.Contains(err.Error(), "invalid migration file name") {
		t.Fatalf("expected invalid-name error, got %v", err)
	}
}

func TestLoadMigrationsFromFS_NameMismatch(t *testing.T) {
	t.Parallel()

	fsys := fstest.MapFS{
		"sql/migrations/0001_create_entities.up.sql": &fstest.MapFile{Data: []byte("CREATE TABLE t (id INT)")},
		"sql/migrations/0001_drop_entities.down.sql": &fstest.MapFile{Data: []byte("DROP TABLE t")},
	}

	_, err := loadMigrationsFromFS(fsys)
	if err == nil || !strings.Contains(err.Error(), "name mismatch") {
		t.Fatalf("expected name-mismatch error, got %v", err)
	}
}

func TestValidateIdentifier(t *testing.T) {
	t.Parallel()

	for _, name := range []string{"tbl_Shipper", "FK_ShipOrderNo", "a", "_private"} {
		if err := validateIdentifier(name); err != nil {
			t.Fatalf("identifier %q must be accepted: %v", name, err)
		}
	}
	for _, name := range []string{"", "tbl-Shipper", "tbl Shipper", `tbl";DROP TABLE x;--`, "1tbl"} {
		if err := validateIdentifier(name); err == nil {
			t.Fatalf("identifier %q must be rejected", name)
		}
	}
}
