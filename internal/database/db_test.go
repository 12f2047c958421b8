package database

import (
	"slices"
	"testing"
	"testing/fstest"
)

func TestPendingMigrations(t *testing.T) {
	fsys := fstest.MapFS{
		"002_indexes.up.sql":         {Data: []byte("SELECT 1")},
		"001_dataset_cache.up.sql":   {Data: []byte("SELECT 1")},
		"001_dataset_cache.down.sql": {Data: []byte("SELECT 1")},
		"README.md":                  {Data: []byte("docs")},
		"003_later.up.sql":           {Data: []byte("SELECT 1")},
	}

	got, err := pendingMigrations(fsys, map[string]bool{"002_indexes.up.sql": true})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	want := []string{"001_dataset_cache.up.sql", "003_later.up.sql"}
	if !slices.Equal(got, want) {
		t.Errorf("pending = %v, want %v", got, want)
	}
}

func TestPendingMigrationsAllApplied(t *testing.T) {
	fsys := fstest.MapFS{"001_dataset_cache.up.sql": {Data: []byte("SELECT 1")}}
	got, err := pendingMigrations(fsys, map[string]bool{"001_dataset_cache.up.sql": true})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(got) != 0 {
		t.Errorf("pending = %v, want none", got)
	}
}
