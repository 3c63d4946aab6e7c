package db

import (
	"testing"
	"testing/fstest"
)

func TestLoadMigrations_SortsByVersion(t *testing.T) {
	fsys := fstest.MapFS{
		"0010_slot_cache.sql": {Data: []byte("SELECT 10;")},
		"0002_schedule.sql":   {Data: []byte("SELECT 2;")},
		"0001_bookings.sql":   {Data: []byte("SELECT 1;")},
	}

	migrations, err := loadMigrations(fsys)
	if err != nil {
		t.Fatalf("loadMigrations: %v", err)
	}
	if len(migrations) != 3 {
		t.Fatalf("expected 3 migrations, got %d", len(migrations))
	}
	want := []int{1, 2, 10}
	for i, v := range want {
		if migrations[i].Version != v {
			t.Errorf("migration[%d]: version %d, want %d", i, migrations[i].Version, v)
		}
	}
	if migrations[0].SQL != "SELECT 1;" {
		t.Errorf("unexpected SQL for first migration: %q", migrations[0].SQL)
	}
}

func TestLoadMigrations_SkipsUnnumberedFiles(t *testing.T) {
	fsys := fstest.MapFS{
		"0001_bookings.sql": {Data: []byte("SELECT 1;")},
		"readme.sql":        {Data: []byte("-- no version prefix")},
		"notes.txt":         {Data: []byte("not sql")},
		"abc_bad.sql":       {Data: []byte("-- non-numeric prefix")},
	}

	migrations, err := loadMigrations(fsys)
	if err != nil {
		t.Fatalf("loadMigrations: %v", err)
	}
	if len(migrations) != 1 {
		t.Fatalf("expected 1 migration, got %d", len(migrations))
	}
	if migrations[0].Name != "0001_bookings.sql" {
		t.Errorf("unexpected migration kept: %s", migrations[0].Name)
	}
}

func TestLoadMigrations_EmptyDir(t *testing.T) {
	migrations, err := loadMigrations(fstest.MapFS{})
	if err != nil {
		t.Fatalf("loadMigrations: %v", err)
	}
	if len(migrations) != 0 {
		t.Errorf("expected no migrations, got %d", len(migrations))
	}
}
